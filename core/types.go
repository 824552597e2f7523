package core

import (
	"fmt"
	"time"

	clienttypes "github.com/cosmos/ibc-go/v8/modules/core/02-client/types"
	chantypes "github.com/cosmos/ibc-go/v8/modules/core/04-channel/types"
)

// ChannelEnd identifies one side of a channel.
type ChannelEnd struct {
	ChainID   string `json:"chain_id" yaml:"chain-id"`
	PortID    string `json:"port_id" yaml:"port-id"`
	ChannelID string `json:"channel_id" yaml:"channel-id"`
}

func (ce ChannelEnd) String() string {
	return fmt.Sprintf("%s/%s/%s", ce.ChainID, ce.PortID, ce.ChannelID)
}

// PacketKey uniquely identifies a packet instance.
type PacketKey struct {
	Src      ChannelEnd `json:"src"`
	Sequence uint64     `json:"sequence"`
}

func (k PacketKey) String() string {
	return fmt.Sprintf("%s#%d", k.Src, k.Sequence)
}

// PacketInfo represents the packet information that is acquired from a SendPacket event or
// a WriteAcknowledgement event. In the former case, the `Acknowledgement` field becomes nil.
// `EventHeight` is the height of the block containing the event.
type PacketInfo struct {
	chantypes.Packet
	Acknowledgement []byte             `json:"acknowledgement"`
	EventHeight     clienttypes.Height `json:"event_height"`
}

// PacketInfoList represents a list of PacketInfo that is sorted in the order in which
// underlying events occur.
type PacketInfoList []*PacketInfo

func (ps PacketInfoList) ExtractSequenceList() []uint64 {
	var seqs []uint64
	for _, p := range ps {
		seqs = append(seqs, p.Sequence)
	}
	return seqs
}

func (ps PacketInfoList) Subtract(seqs []uint64) PacketInfoList {
	var ret PacketInfoList
out:
	for _, p := range ps {
		for _, seq := range seqs {
			if p.Sequence == seq {
				continue out
			}
		}
		ret = append(ret, p)
	}
	return ret
}

func (ps PacketInfoList) Filter(seqs []uint64) PacketInfoList {
	var ret PacketInfoList
	for _, p := range ps {
		for _, seq := range seqs {
			if p.Sequence == seq {
				ret = append(ret, p)
				break
			}
		}
	}
	return ret
}

// Obligation is the kind of message a pending packet still needs.
type Obligation int

const (
	// ObligationRecv delivers the packet to the destination chain.
	ObligationRecv Obligation = iota
	// ObligationAck delivers the acknowledgement back to the source chain.
	ObligationAck
	// ObligationTimeout proves non-receipt to the source chain.
	ObligationTimeout
)

func (o Obligation) String() string {
	switch o {
	case ObligationRecv:
		return "recv"
	case ObligationAck:
		return "ack"
	case ObligationTimeout:
		return "timeout"
	default:
		return fmt.Sprintf("Obligation(%d)", int(o))
	}
}

// PacketStatus is the relay status of a pending packet.
type PacketStatus int

const (
	StatusAwaitingProof PacketStatus = iota
	StatusProofReady
	StatusSubmitted
	StatusConfirmed
	StatusTimedOut
	StatusFailed
)

func (s PacketStatus) String() string {
	switch s {
	case StatusAwaitingProof:
		return "AwaitingProof"
	case StatusProofReady:
		return "ProofReady"
	case StatusSubmitted:
		return "Submitted"
	case StatusConfirmed:
		return "Confirmed"
	case StatusTimedOut:
		return "TimedOut"
	case StatusFailed:
		return "Failed"
	default:
		return fmt.Sprintf("PacketStatus(%d)", int(s))
	}
}

// IsTerminal reports whether no further automatic processing happens in this status.
func (s PacketStatus) IsTerminal() bool {
	return s == StatusConfirmed || s == StatusFailed
}

// PendingPacket is a packet tracked in the backlog of a RelayPath.
type PendingPacket struct {
	Key             PacketKey
	Packet          chantypes.Packet
	Acknowledgement []byte
	Obligation      Obligation
	Status          PacketStatus

	// EventHeight is the height of the event that created the current obligation.
	EventHeight clienttypes.Height
	// RequiredHeight is the minimum proof height that can prove the obligation.
	RequiredHeight clienttypes.Height

	Proof            []byte
	ProofHeight      clienttypes.Height
	NextSequenceRecv uint64

	// TxHash is set when the packet is Submitted.
	TxHash string
	// Reason is set when the packet is Failed.
	Reason string
	// BlockedBy is set when an ordered channel cannot proceed past a failed sequence.
	BlockedBy uint64
	// Isolate requests that the packet is submitted in its own transaction.
	Isolate bool

	Attempts    uint
	NextAttempt time.Time
	ObservedAt  time.Time
}

func newPendingPacket(src ChannelEnd, info *PacketInfo, obligation Obligation, now time.Time) *PendingPacket {
	p := &PendingPacket{
		Key:             PacketKey{Src: src, Sequence: info.Sequence},
		Packet:          info.Packet,
		Acknowledgement: info.Acknowledgement,
		Obligation:      obligation,
		Status:          StatusAwaitingProof,
		EventHeight:     info.EventHeight,
		ObservedAt:      now,
	}
	if !info.EventHeight.IsZero() {
		// the state written by a block becomes provable from the next height
		p.RequiredHeight = info.EventHeight.Increment().(clienttypes.Height)
	}
	return p
}

// resetProof drops the proof so that it is fetched again.
func (p *PendingPacket) resetProof() {
	p.Proof = nil
	p.ProofHeight = clienttypes.ZeroHeight()
	if p.Status == StatusProofReady || p.Status == StatusSubmitted {
		p.Status = StatusAwaitingProof
	}
}

// convertToTimeout turns a receive obligation into a timeout obligation proven at or after detectedAt.
func (p *PendingPacket) convertToTimeout(detectedAt clienttypes.Height) {
	p.resetProof()
	p.Obligation = ObligationTimeout
	p.Status = StatusTimedOut
	p.RequiredHeight = detectedAt
	p.Attempts = 0
	p.NextAttempt = time.Time{}
}

// isTimedOut reports whether the packet can no longer be received on a chain
// whose latest finalized height and timestamp are given.
func isTimedOut(packet chantypes.Packet, height clienttypes.Height, timestamp time.Time) bool {
	if !packet.TimeoutHeight.IsZero() && height.GTE(packet.TimeoutHeight) {
		return true
	}
	if packet.TimeoutTimestamp != 0 && uint64(timestamp.UnixNano()) >= packet.TimeoutTimestamp {
		return true
	}
	return false
}

// PacketOutcome is the operator-facing result for one packet.
type PacketOutcome struct {
	Key         PacketKey    `json:"key"`
	Obligation  Obligation   `json:"obligation"`
	Status      PacketStatus `json:"status"`
	Attempts    uint         `json:"attempts"`
	TxHash      string       `json:"tx_hash,omitempty"`
	Reason      string       `json:"reason,omitempty"`
	BlockedBy   uint64       `json:"blocked_by,omitempty"`
	ProofHeight string       `json:"proof_height,omitempty"`
}

func (o PacketOutcome) String() string {
	s := fmt.Sprintf("%v %s %s", o.Key, o.Obligation, o.Status)
	if o.TxHash != "" {
		s += " tx=" + o.TxHash
	}
	if o.Reason != "" {
		s += " reason=" + o.Reason
	}
	if o.BlockedBy != 0 {
		s += fmt.Sprintf(" blocked_by=%d", o.BlockedBy)
	}
	return s
}
