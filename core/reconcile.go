package core

import (
	"context"
	"time"

	retry "github.com/avast/retry-go"
	clienttypes "github.com/cosmos/ibc-go/v8/modules/core/02-client/types"
	chantypes "github.com/cosmos/ibc-go/v8/modules/core/04-channel/types"
	"go.opentelemetry.io/otel/codes"
	"golang.org/x/sync/errgroup"
)

// mergeEvents applies observed events to the backlogs of the path
func (rp *RelayPath) mergeEvents(evs ...*RelayEvent) {
	rp.mu.Lock()
	defer rp.mu.Unlock()
	now := rp.cfg.Clock()
	for _, ev := range evs {
		for _, d := range rp.dirs {
			rp.mergeEvent(d, ev, now)
		}
	}
}

func (rp *RelayPath) mergeEvent(d *direction, ev *RelayEvent, now time.Time) {
	srcEnd, dstEnd := d.srcEnd.ChannelEnd(), d.dstEnd.ChannelEnd()
	local := ev.LocalEnd()
	seq := ev.Packet.Sequence

	switch ev.Kind {
	case EventSendPacket:
		if local != srcEnd || ev.Packet.DestinationPort != dstEnd.PortID || ev.Packet.DestinationChannel != dstEnd.ChannelID {
			return
		}
		if _, found := d.backlog.Get(seq); found {
			return
		}
		p := newPendingPacket(srcEnd, ev.PacketInfo(), ObligationRecv, now)
		if d.closed {
			rp.fail(p, ErrChannelClosed.Error())
		}
		d.backlog.Put(p)
		rp.logger.Debug("packet observed", "sequence", seq, "height", ev.Height.String())

	case EventRecvPacket:
		if local != dstEnd {
			return
		}
		// the packet was received, possibly through another relayer; its acknowledgement is tracked once written
		if p, found := d.backlog.Get(seq); found && p.Obligation != ObligationAck {
			rp.resolve(d, p, StatusConfirmed, "received on "+dstEnd.ChainID)
		}

	case EventWriteAcknowledgement:
		if local != dstEnd {
			return
		}
		p, found := d.backlog.Get(seq)
		if found && p.Obligation == ObligationAck {
			return
		}
		ack := newPendingPacket(srcEnd, ev.PacketInfo(), ObligationAck, now)
		if found {
			ack.ObservedAt = p.ObservedAt
		}
		d.backlog.Put(ack)
		rp.logger.Debug("acknowledgement observed", "sequence", seq, "height", ev.Height.String())

	case EventAcknowledgePacket, EventTimeoutPacket:
		if local != srcEnd {
			return
		}
		if p, found := d.backlog.Get(seq); found {
			rp.resolve(d, p, StatusConfirmed, ev.Kind.String()+" on "+srcEnd.ChainID)
		}

	case EventChannelCloseInit, EventChannelCloseConfirm:
		if local != srcEnd && local != dstEnd {
			return
		}
		rp.closeDirection(d)

	default:
		if local == srcEnd || local == dstEnd {
			rp.logger.Debug("channel event observed", "event", ev.String())
		}
	}
}

// closeDirection fails every outstanding receive of d
func (rp *RelayPath) closeDirection(d *direction) {
	if !d.closed {
		rp.logger.Warn("channel closed", "direction", d.String())
	}
	d.closed = true
	d.backlog.Ascend(func(p *PendingPacket) bool {
		if p.Obligation == ObligationRecv && !p.Status.IsTerminal() {
			rp.fail(p, ErrChannelClosed.Error())
		}
		return true
	})
}

// reconcile rebuilds the backlog of d from the chains.
// Packets whose obligations were fulfilled while unobserved are resolved, and missing ones are added.
func (rp *RelayPath) reconcile(ctx context.Context, d *direction) error {
	ctx, span := tracer.Start(ctx, "RelayPath.reconcile",
		WithChannelAttributes(d.srcEnd.ChannelEnd(), d.dstEnd.ChannelEnd()),
	)
	defer span.End()

	var (
		srcHeight, dstHeight clienttypes.Height
		sent, written        PacketInfoList
		unreceived, unacked  []uint64
		channel              *chantypes.Channel
	)

	timeout := rp.cfg.CallTimeout
	eg, egCtx := errgroup.WithContext(ctx)
	eg.Go(func() error {
		return rp.retryQuery(egCtx, "packets", func() error {
			var err error
			if srcHeight = d.queryHeight; srcHeight.IsZero() {
				if srcHeight, err = withCallTimeout(egCtx, timeout, d.src.LatestHeight); err != nil {
					return err
				}
			}
			if sent, err = withCallTimeout(egCtx, timeout, func(ctx context.Context) (PacketInfoList, error) {
				return d.src.QueryUnfinalizedRelayPackets(NewQueryContext(ctx, srcHeight), d.srcEnd.ChannelEnd())
			}); err != nil {
				return err
			}
			unreceived, err = withCallTimeout(egCtx, timeout, func(ctx context.Context) ([]uint64, error) {
				return d.dst.QueryUnreceivedPackets(NewLatestQueryContext(ctx), d.dstEnd.ChannelEnd(), sent.ExtractSequenceList())
			})
			return err
		})
	})
	eg.Go(func() error {
		return rp.retryQuery(egCtx, "acknowledgements", func() error {
			var err error
			if dstHeight, err = withCallTimeout(egCtx, timeout, d.dst.LatestHeight); err != nil {
				return err
			}
			if written, err = withCallTimeout(egCtx, timeout, func(ctx context.Context) (PacketInfoList, error) {
				return d.dst.QueryUnfinalizedRelayAcknowledgements(NewQueryContext(ctx, dstHeight), d.dstEnd.ChannelEnd())
			}); err != nil {
				return err
			}
			unacked, err = withCallTimeout(egCtx, timeout, func(ctx context.Context) ([]uint64, error) {
				return d.src.QueryUnreceivedAcknowledgements(NewLatestQueryContext(ctx), d.srcEnd.ChannelEnd(), written.ExtractSequenceList())
			})
			return err
		})
	})
	eg.Go(func() error {
		return rp.retryQuery(egCtx, "channel", func() error {
			var err error
			channel, err = withCallTimeout(egCtx, timeout, func(ctx context.Context) (*chantypes.Channel, error) {
				return d.src.QueryChannel(NewLatestQueryContext(ctx), d.srcEnd.ChannelEnd())
			})
			return err
		})
	})
	if err := eg.Wait(); err != nil {
		span.SetStatus(codes.Error, err.Error())
		return err
	}

	var (
		now         = rp.cfg.Clock()
		srcEnd      = d.srcEnd.ChannelEnd()
		committed   = toSet(sent.ExtractSequenceList())
		unrecvSet   = toSet(unreceived)
		unackedSet  = toSet(unacked)
		writtenAcks = make(map[uint64]*PacketInfo, len(written))
	)
	for _, info := range written {
		writtenAcks[info.Sequence] = info
	}

	for _, p := range d.backlog.Filter(func(*PendingPacket) bool { return true }) {
		seq := p.Key.Sequence
		switch p.Obligation {
		case ObligationRecv, ObligationTimeout:
			// an entry newer than the queried state cannot be judged by it
			if p.EventHeight.GT(srcHeight) {
				continue
			}
			if !committed[seq] {
				rp.resolve(d, p, StatusConfirmed, "commitment removed on "+srcEnd.ChainID)
			} else if !unrecvSet[seq] {
				if info, ok := writtenAcks[seq]; ok && unackedSet[seq] {
					d.backlog.Put(rp.ackFromInfo(srcEnd, info, dstHeight, p.ObservedAt))
				} else {
					rp.resolve(d, p, StatusConfirmed, "received on "+d.dstEnd.ChainID)
				}
			}
		case ObligationAck:
			if p.EventHeight.GT(dstHeight) {
				continue
			}
			if !unackedSet[seq] {
				rp.resolve(d, p, StatusConfirmed, "acknowledged on "+srcEnd.ChainID)
			}
		}
	}

	for _, info := range sent.Filter(unreceived) {
		if _, found := d.backlog.Get(info.Sequence); found {
			continue
		}
		if info.EventHeight.IsZero() {
			info.EventHeight = srcHeight
		}
		d.backlog.Put(newPendingPacket(srcEnd, info, ObligationRecv, now))
	}
	for _, info := range written.Filter(unacked) {
		if p, found := d.backlog.Get(info.Sequence); found && p.Obligation == ObligationAck {
			continue
		}
		d.backlog.Put(rp.ackFromInfo(srcEnd, info, dstHeight, now))
	}

	if channel.State == chantypes.CLOSED {
		rp.closeDirection(d)
	}
	rp.logger.DebugContext(ctx, "backlog reconciled", "direction", d.String(), "size", d.backlog.Len())
	return nil
}

func (rp *RelayPath) ackFromInfo(src ChannelEnd, info *PacketInfo, queried clienttypes.Height, observedAt time.Time) *PendingPacket {
	if info.EventHeight.IsZero() {
		info.EventHeight = queried
	}
	return newPendingPacket(src, info, ObligationAck, observedAt)
}

func (rp *RelayPath) retryQuery(ctx context.Context, what string, fn func() error) error {
	return retry.Do(fn, rtyAtt, rtyDel, rtyErr, retry.Context(ctx), retry.OnRetry(func(n uint, err error) {
		rp.logger.InfoContext(ctx,
			"retrying to query",
			"query", what,
			"try", n+1,
			"try_limit", rtyAttNum,
			"error", err.Error(),
		)
	}))
}

func toSet(seqs []uint64) map[uint64]bool {
	set := make(map[uint64]bool, len(seqs))
	for _, seq := range seqs {
		set[seq] = true
	}
	return set
}
