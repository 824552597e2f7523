package core

import (
	"github.com/google/btree"
)

const backlogDegree = 16

// Backlog is the set of packets a relay path still has to process, ordered by sequence.
// A sequence has at most one outstanding obligation at a time.
type Backlog struct {
	tree *btree.BTreeG[*PendingPacket]
}

func NewBacklog() *Backlog {
	return &Backlog{
		tree: btree.NewG(backlogDegree, func(a, b *PendingPacket) bool {
			return a.Key.Sequence < b.Key.Sequence
		}),
	}
}

func (b *Backlog) Len() int {
	return b.tree.Len()
}

// Get returns the packet with the sequence
func (b *Backlog) Get(seq uint64) (*PendingPacket, bool) {
	return b.tree.Get(&PendingPacket{Key: PacketKey{Sequence: seq}})
}

// Put inserts p, replacing any packet with the same sequence
func (b *Backlog) Put(p *PendingPacket) {
	b.tree.ReplaceOrInsert(p)
}

// Remove deletes the packet with the sequence and returns it
func (b *Backlog) Remove(seq uint64) (*PendingPacket, bool) {
	return b.tree.Delete(&PendingPacket{Key: PacketKey{Sequence: seq}})
}

// Ascend calls fn for each packet in increasing sequence order until fn returns false
func (b *Backlog) Ascend(fn func(p *PendingPacket) bool) {
	b.tree.Ascend(fn)
}

// Filter returns the packets for which fn returns true, in increasing sequence order
func (b *Backlog) Filter(fn func(p *PendingPacket) bool) []*PendingPacket {
	var ps []*PendingPacket
	b.tree.Ascend(func(p *PendingPacket) bool {
		if fn(p) {
			ps = append(ps, p)
		}
		return true
	})
	return ps
}

// Sequences returns the sequences of packets with the obligation
func (b *Backlog) Sequences(obligation Obligation) []uint64 {
	var seqs []uint64
	b.tree.Ascend(func(p *PendingPacket) bool {
		if p.Obligation == obligation {
			seqs = append(seqs, p.Key.Sequence)
		}
		return true
	})
	return seqs
}

// Outcomes returns a copy of the state of every packet
func (b *Backlog) Outcomes() []PacketOutcome {
	outcomes := make([]PacketOutcome, 0, b.tree.Len())
	b.tree.Ascend(func(p *PendingPacket) bool {
		outcomes = append(outcomes, p.outcome())
		return true
	})
	return outcomes
}

func (p *PendingPacket) outcome() PacketOutcome {
	o := PacketOutcome{
		Key:        p.Key,
		Obligation: p.Obligation,
		Status:     p.Status,
		Attempts:   p.Attempts,
		TxHash:     p.TxHash,
		Reason:     p.Reason,
		BlockedBy:  p.BlockedBy,
	}
	if !p.ProofHeight.IsZero() {
		o.ProofHeight = p.ProofHeight.String()
	}
	return o
}
