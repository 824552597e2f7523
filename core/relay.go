package core

import (
	"bytes"
	"context"
	"fmt"
	"regexp"
	"strconv"
	"time"

	"github.com/cockroachdb/errors"
	sdk "github.com/cosmos/cosmos-sdk/types"
	clienttypes "github.com/cosmos/ibc-go/v8/modules/core/02-client/types"
	chantypes "github.com/cosmos/ibc-go/v8/modules/core/04-channel/types"
	host "github.com/cosmos/ibc-go/v8/modules/core/24-host"
	"github.com/hyperledger-labs/yui-packet-relayer/internal/telemetry"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	api "go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"
)

// obligationGroup is the set of obligations of a direction that are submitted to the same chain
type obligationGroup struct {
	name string
	// host is the chain the msgs are submitted to
	host *ProvableChain
	// subject is the chain the proofs are taken from
	subject *ProvableChain
	// clientID is the client on host that tracks subject
	clientID string
	accepts  func(Obligation) bool
}

func (g *obligationGroup) trustKey() string {
	return TrustKey(g.host.ChainID(), g.clientID)
}

func recvGroup(d *direction) *obligationGroup {
	return &obligationGroup{
		name:     "recv",
		host:     d.dst,
		subject:  d.src,
		clientID: d.dstEnd.ClientID,
		accepts:  func(o Obligation) bool { return o == ObligationRecv },
	}
}

func ackGroup(d *direction) *obligationGroup {
	return &obligationGroup{
		name:     "ack",
		host:     d.src,
		subject:  d.dst,
		clientID: d.srcEnd.ClientID,
		accepts:  func(o Obligation) bool { return o == ObligationAck || o == ObligationTimeout },
	}
}

// relayDirection converts expired receives into timeouts, then relays receives to dst
// followed by acknowledgements and timeouts to src.
// It returns the errors that stalled the direction. Submission failures are recorded in c.
func (rp *RelayPath) relayDirection(ctx context.Context, c *cycle, d *direction) error {
	if d.backlog.Len() == 0 {
		return nil
	}

	dstHeader, err := withCallTimeout(ctx, rp.cfg.CallTimeout, d.dst.GetLatestFinalizedHeader)
	if err != nil {
		return errors.Wrapf(err, "failed to get the latest finalized header of %s", d.dst.ChainID())
	}
	dstState, err := withCallTimeout(ctx, rp.cfg.CallTimeout, func(ctx context.Context) (*ChainState, error) {
		return d.dst.QueryState(NewQueryContext(ctx, dstHeader.GetHeight()))
	})
	if err != nil {
		return errors.Wrapf(err, "failed to query the state of %s at %v", d.dst.ChainID(), dstHeader.GetHeight())
	}
	rp.convertTimeouts(d, dstHeader.GetHeight(), dstState.Timestamp)

	srcHeader, err := withCallTimeout(ctx, rp.cfg.CallTimeout, d.src.GetLatestFinalizedHeader)
	if err != nil {
		return errors.Wrapf(err, "failed to get the latest finalized header of %s", d.src.ChainID())
	}

	// a failure in one group does not prevent the other from progressing
	if c.stopped() {
		return nil
	}
	recvErr := rp.relayGroup(ctx, c, d, recvGroup(d), srcHeader)
	if c.stopped() {
		return recvErr
	}
	ackErr := rp.relayGroup(ctx, c, d, ackGroup(d), dstHeader)
	return errors.Join(recvErr, ackErr)
}

// convertTimeouts turns receives that can no longer be received on dst into timeouts
func (rp *RelayPath) convertTimeouts(d *direction, height clienttypes.Height, timestamp time.Time) {
	d.backlog.Ascend(func(p *PendingPacket) bool {
		if p.Obligation != ObligationRecv || p.Status.IsTerminal() {
			return true
		}
		if isTimedOut(p.Packet, height, timestamp) {
			p.convertToTimeout(height)
			rp.logger.Info("packet timed out",
				"sequence", p.Key.Sequence,
				"timeout_height", p.Packet.TimeoutHeight.String(),
				"timeout_timestamp", p.Packet.TimeoutTimestamp,
				"detected_at", height.String(),
			)
		}
		return true
	})
}

func (rp *RelayPath) relayGroup(ctx context.Context, c *cycle, d *direction, g *obligationGroup, target Header) error {
	ctx, span := tracer.Start(ctx, "RelayPath.relayGroup",
		WithChainAttributes(g.host.ChainID()),
		trace.WithAttributes(AttributeKeyObligation.String(g.name), AttributeKeyDirection.String(d.String())),
	)
	defer span.End()

	candidates := rp.selectCandidates(d, g, target.GetHeight(), rp.cfg.Clock())
	if len(candidates) == 0 {
		return nil
	}

	var required clienttypes.Height
	for _, p := range candidates {
		if p.RequiredHeight.GT(required) {
			required = p.RequiredHeight
		}
	}

	updates, proofHeight, err := rp.ensureTrust(ctx, g, required, target)
	if err != nil {
		span.SetStatus(codes.Error, err.Error())
		return err
	}

	ready, err := rp.fetchProofs(ctx, d, g, candidates, proofHeight)
	if len(ready) > 0 {
		if serr := rp.submit(ctx, c, d, g, updates, ready); errors.Is(serr, ErrVerification) {
			err = errors.Join(err, serr)
		} else if serr != nil {
			span.SetStatus(codes.Error, serr.Error())
			c.record(serr)
		}
	}
	if err != nil {
		span.SetStatus(codes.Error, err.Error())
	}
	return err
}

// selectCandidates returns the packets of g that can be proven at available, in increasing sequence order.
// Selection stops at the first packet that is not ready so that no sequence overtakes a lower pending one.
// On an ordered channel, packets behind a failed one are flagged instead of selected.
func (rp *RelayPath) selectCandidates(d *direction, g *obligationGroup, available clienttypes.Height, now time.Time) []*PendingPacket {
	var (
		candidates []*PendingPacket
		blockedBy  uint64
	)
	d.backlog.Ascend(func(p *PendingPacket) bool {
		if !g.accepts(p.Obligation) {
			// an ordered channel cannot receive past a sequence that is timing out
			return !(d.ordered() && p.Obligation == ObligationTimeout && !p.Status.IsTerminal())
		}
		if blockedBy != 0 {
			p.BlockedBy = blockedBy
			return true
		}
		p.BlockedBy = 0
		switch {
		case p.Status.IsTerminal():
			if p.Status == StatusFailed && d.ordered() {
				blockedBy = p.Key.Sequence
			}
			return true
		case p.NextAttempt.After(now):
			return false
		case p.RequiredHeight.GT(available):
			return false
		}
		candidates = append(candidates, p)
		return true
	})
	return candidates
}

// ensureTrust makes the client of g on its host cover required.
// It returns the client update msgs to submit ahead of the packets and the height to query proofs at.
// The new trusted state is verified and persisted before any proof is fetched.
func (rp *RelayPath) ensureTrust(ctx context.Context, g *obligationGroup, required clienttypes.Height, target Header) ([]sdk.Msg, clienttypes.Height, error) {
	key := g.trustKey()
	logger := rp.logger.WithClient(g.host.ChainID(), g.clientID)

	onChain, err := withCallTimeout(ctx, rp.cfg.CallTimeout, func(ctx context.Context) (*TrustedState, error) {
		return g.host.QueryClientTrustedState(NewLatestQueryContext(ctx), g.clientID)
	})
	if err != nil {
		return nil, clienttypes.Height{}, errors.Wrapf(err, "failed to query the client state of %s", key)
	}
	if _, err := rp.trust.Observe(key, *onChain); err != nil {
		return nil, clienttypes.Height{}, err
	}

	force := rp.forceUpdate[key]
	if onChain.Height.GTE(required) && !force {
		return nil, onChain.Height, nil
	}
	if !target.GetHeight().GT(onChain.Height) {
		return nil, onChain.Height, nil
	}

	headers, err := withCallTimeout(ctx, rp.cfg.CallTimeout, func(ctx context.Context) ([]Header, error) {
		return g.subject.SetupHeadersForUpdate(ctx, *onChain, target)
	})
	if err != nil {
		return nil, clienttypes.Height{}, errors.Wrapf(err, "failed to set up headers for %s", key)
	}
	next, err := rp.trust.Apply(key, *onChain, g.subject.Verifier(), headers)
	if err != nil {
		logger.ErrorContext(ctx, "failed to verify headers", err, "trusted_height", onChain.Height.String(), "target_height", target.GetHeight().String())
		return nil, clienttypes.Height{}, err
	}

	signer, err := g.host.GetAddress()
	if err != nil {
		return nil, clienttypes.Height{}, errors.Wrapf(err, "failed to get the relayer address on %s", g.host.ChainID())
	}
	msgs := make([]sdk.Msg, 0, len(headers))
	for _, h := range headers {
		msg, err := clienttypes.NewMsgUpdateClient(g.clientID, h.ClientMessage(), signer.String())
		if err != nil {
			return nil, clienttypes.Height{}, errors.Wrapf(err, "failed to build MsgUpdateClient for %s at %v", key, h.GetHeight())
		}
		msgs = append(msgs, msg)
	}
	delete(rp.forceUpdate, key)

	attrs := rp.metricAttributes(attribute.String("client", key))
	telemetry.TrustedHeightGauge.Set(int64(next.Height.RevisionHeight), attrs...)
	telemetry.LightClientUpdatesCounter.Add(ctx, int64(len(headers)), api.WithAttributes(attrs...))
	logger.DebugContext(ctx, "light client update prepared", "from", onChain.Height.String(), "to", target.GetHeight().String(), "headers", len(headers))
	return msgs, target.GetHeight(), nil
}

// fetchProofs proves candidates at proofHeight and returns the packets that became ProofReady, in order.
// Fetching stops at the first transient error, which is returned.
func (rp *RelayPath) fetchProofs(ctx context.Context, d *direction, g *obligationGroup, candidates []*PendingPacket, proofHeight clienttypes.Height) ([]*PendingPacket, error) {
	var ready []*PendingPacket
	for _, p := range candidates {
		if err := rp.fetchProof(ctx, d, p, proofHeight); err != nil {
			if IsPrunedHeight(err) {
				// the next cycle updates the client beyond the pruned height
				rp.forceUpdate[g.trustKey()] = true
			}
			return ready, errors.Wrapf(err, "failed to fetch the proof of sequence %d", p.Key.Sequence)
		}
		switch p.Status {
		case StatusProofReady:
			ready = append(ready, p)
		case StatusFailed:
			if d.ordered() {
				return ready, nil
			}
		}
	}
	return ready, nil
}

// fetchProof proves the obligation of p at height. A packet whose obligation turns out to be fulfilled
// is resolved and a packet whose proven value contradicts it is failed.
func (rp *RelayPath) fetchProof(ctx context.Context, d *direction, p *PendingPacket, height clienttypes.Height) error {
	callCtx, cancel := context.WithTimeout(ctx, rp.cfg.CallTimeout)
	defer cancel()
	var (
		qctx = NewQueryContext(callCtx, height)
		sp   *StateProof
		err  error
	)
	seq := p.Key.Sequence
	switch p.Obligation {
	case ObligationRecv:
		sp, err = d.src.QueryProof(qctx, host.PacketCommitmentPath(p.Packet.SourcePort, p.Packet.SourceChannel, seq))
		if err != nil {
			return err
		}
		if len(sp.Value) == 0 {
			rp.resolve(d, p, StatusConfirmed, "commitment removed on "+d.src.ChainID())
			return nil
		}
		if expected := chantypes.CommitPacket(nil, p.Packet); !bytes.Equal(sp.Value, expected) {
			rp.fail(p, "packet commitment mismatch")
			return nil
		}

	case ObligationAck:
		sp, err = d.dst.QueryProof(qctx, host.PacketAcknowledgementPath(p.Packet.DestinationPort, p.Packet.DestinationChannel, seq))
		if err != nil {
			return err
		}
		if len(sp.Value) == 0 {
			rp.fail(p, "acknowledgement not found on "+d.dst.ChainID())
			return nil
		}
		if expected := chantypes.CommitAcknowledgement(p.Acknowledgement); !bytes.Equal(sp.Value, expected) {
			rp.fail(p, "acknowledgement commitment mismatch")
			return nil
		}

	case ObligationTimeout:
		if d.ordered() {
			sp, err = d.dst.QueryProof(qctx, host.NextSequenceRecvPath(p.Packet.DestinationPort, p.Packet.DestinationChannel))
			if err != nil {
				return err
			}
			if len(sp.Value) != 8 {
				return errors.Wrapf(ErrProofUnavailable, "invalid next sequence receive of %d bytes", len(sp.Value))
			}
			next := sdk.BigEndianToUint64(sp.Value)
			if next > seq {
				rp.resolve(d, p, StatusConfirmed, "received on "+d.dst.ChainID()+" before timeout")
				return nil
			}
			p.NextSequenceRecv = next
		} else {
			sp, err = d.dst.QueryProof(qctx, host.PacketReceiptPath(p.Packet.DestinationPort, p.Packet.DestinationChannel, seq))
			if err != nil {
				return err
			}
			if len(sp.Value) > 0 {
				rp.resolve(d, p, StatusConfirmed, "received on "+d.dst.ChainID()+" before timeout")
				return nil
			}
			p.NextSequenceRecv = seq
		}

	default:
		return fmt.Errorf("unknown obligation: %v", p.Obligation)
	}

	if !sp.ProofHeight.EQ(height) {
		return errors.Wrapf(ErrProofUnavailable, "proof height %v differs from the requested height %v", sp.ProofHeight, height)
	}
	p.Proof = sp.Proof
	p.ProofHeight = sp.ProofHeight
	p.Status = StatusProofReady
	return nil
}

// submit sends ready packets to the host of g in batches. A failed batch stops the later ones
// because they may depend on the client updates carried by the first. No batch is started once c is stopped.
func (rp *RelayPath) submit(ctx context.Context, c *cycle, d *direction, g *obligationGroup, updates []sdk.Msg, ready []*PendingPacket) error {
	signer, err := g.host.GetAddress()
	if err != nil {
		return errors.Wrapf(err, "failed to get the relayer address on %s", g.host.ChainID())
	}
	build := func(p *PendingPacket) (sdk.Msg, error) {
		switch p.Obligation {
		case ObligationRecv:
			return chantypes.NewMsgRecvPacket(p.Packet, p.Proof, p.ProofHeight, signer.String()), nil
		case ObligationAck:
			return chantypes.NewMsgAcknowledgement(p.Packet, p.Acknowledgement, p.Proof, p.ProofHeight, signer.String()), nil
		case ObligationTimeout:
			return chantypes.NewMsgTimeout(p.Packet, p.NextSequenceRecv, p.Proof, p.ProofHeight, signer.String()), nil
		default:
			return nil, fmt.Errorf("unknown obligation: %v", p.Obligation)
		}
	}

	batches, err := rp.cfg.RelayMsgs.Split(updates, ready, build)
	if err != nil {
		return err
	}
	reset := func(rest []*relayBatch) {
		for _, b := range rest {
			for _, p := range b.packets {
				p.resetProof()
			}
		}
	}
	for i, b := range batches {
		if c.stopped() {
			reset(batches[i:])
			return nil
		}
		if err := rp.submitBatch(ctx, d, g, b); err != nil {
			reset(batches[i+1:])
			return err
		}
	}
	return nil
}

func (rp *RelayPath) submitBatch(ctx context.Context, d *direction, g *obligationGroup, b *relayBatch) error {
	ctx, span := tracer.Start(ctx, "RelayPath.submitBatch",
		WithChainAttributes(g.host.ChainID()),
		trace.WithAttributes(
			AttributeKeyObligation.String(g.name),
			attribute.Int("packet_count", len(b.packets)),
			attribute.Int("msg_count", len(b.msgs)),
		),
	)
	defer span.End()

	seqs := make([]uint64, 0, len(b.packets))
	for _, p := range b.packets {
		p.Status = StatusSubmitted
		seqs = append(seqs, p.Key.Sequence)
	}

	callCtx, cancel := context.WithTimeout(ctx, rp.cfg.CallTimeout)
	defer cancel()
	txHash, err := rp.send(callCtx, g.host, b.msgs)
	for _, p := range b.packets {
		p.TxHash = txHash
	}
	err = classifySubmitError(err)

	logger := rp.logger.WithChain(g.host.ChainID())
	switch {
	case err == nil || errors.Is(err, ErrAlreadyRelayed):
		var reason string
		if err != nil {
			reason = ErrAlreadyRelayed.Error()
		}
		for _, p := range b.packets {
			telemetry.PacketsRelayedCounter.Add(ctx, 1, api.WithAttributes(rp.metricAttributes(attribute.String("obligation", p.Obligation.String()))...))
			rp.resolve(d, p, StatusConfirmed, reason)
		}
		logger.InfoContext(ctx, "packets relayed", "obligation", g.name, "sequences", seqs, "tx_hash", txHash, "msgs", GetMsgAction(b.msgs))
		return nil

	case ctx.Err() != nil:
		// abandoned on shutdown: the packets keep their status for the next run to reconcile
		logger.WarnContext(ctx, "submission abandoned", "obligation", g.name, "sequences", seqs)
		return ctx.Err()

	case errors.Is(err, ErrRejected) && rejectsUpdate(err, b.msgs):
		telemetry.SubmissionFailuresCounter.Add(ctx, 1, api.WithAttributes(rp.metricAttributes(attribute.String("kind", "update_rejected"))...))
		// the packets are not at fault; the client is updated again by a later cycle
		for _, p := range b.packets {
			p.resetProof()
		}
		logger.ErrorContext(ctx, "client update rejected", err, "obligation", g.name, "sequences", seqs)
		err = errors.Mark(errors.Wrapf(err, "client update on %s rejected", g.host.ChainID()), ErrVerification)

	case errors.Is(err, ErrRejected):
		telemetry.SubmissionFailuresCounter.Add(ctx, 1, api.WithAttributes(rp.metricAttributes(attribute.String("kind", "rejected"))...))
		if len(b.packets) > 1 {
			// one bad packet must not poison the others: retry them one per transaction
			for _, p := range b.packets {
				p.Isolate = true
				p.resetProof()
			}
			logger.WarnContext(ctx, "batch rejected; isolating packets", "obligation", g.name, "sequences", seqs, "error", err.Error())
		} else {
			rp.fail(b.packets[0], rejectionReason(err))
		}

	default:
		telemetry.SubmissionFailuresCounter.Add(ctx, 1, api.WithAttributes(rp.metricAttributes(attribute.String("kind", "unconfirmed"))...))
		now := rp.cfg.Clock()
		for _, p := range b.packets {
			p.Attempts++
			delay, giveUp := rp.cfg.Retry.NextDelay(p.Attempts)
			if giveUp {
				rp.fail(p, fmt.Sprintf("retry limit reached: %v", err))
				continue
			}
			p.resetProof()
			p.NextAttempt = now.Add(delay)
		}
		logger.WarnContext(ctx, "submission unconfirmed; retrying later", "obligation", g.name, "sequences", seqs, "error", err.Error())
	}

	span.SetStatus(codes.Error, err.Error())
	return err
}

// send submits msgs in one transaction and waits for its result
func (rp *RelayPath) send(ctx context.Context, chain *ProvableChain, msgs []sdk.Msg) (string, error) {
	ids, err := chain.SendMsgs(ctx, msgs)
	if err != nil {
		return "", err
	} else if len(ids) == 0 {
		return "", errors.Wrap(ErrUnconfirmed, "no msg id returned")
	}
	last := ids[len(ids)-1]
	res, err := chain.GetMsgResult(ctx, last)
	if err != nil {
		return last.TxHash(), err
	}
	if ok, reason := res.Status(); !ok {
		return last.TxHash(), NewRejectedError("%s", reason)
	}
	return last.TxHash(), nil
}

var rejectedMsgIndex = regexp.MustCompile(`message index: (\d+)`)

// rejectsUpdate reports whether the rejection err names a MsgUpdateClient of msgs as the failed msg
func rejectsUpdate(err error, msgs []sdk.Msg) bool {
	m := rejectedMsgIndex.FindStringSubmatch(rejectionReason(err))
	if m == nil {
		return false
	}
	i, perr := strconv.Atoi(m[1])
	if perr != nil || i >= len(msgs) {
		return false
	}
	_, ok := msgs[i].(*clienttypes.MsgUpdateClient)
	return ok
}

// withCallTimeout bounds a single endpoint call by timeout
func withCallTimeout[T any](ctx context.Context, timeout time.Duration, call func(context.Context) (T, error)) (T, error) {
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()
	return call(ctx)
}

func rejectionReason(err error) string {
	var rerr *RejectedError
	if errors.As(err, &rerr) {
		return rerr.Reason
	}
	return err.Error()
}
