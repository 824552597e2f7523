package tendermint

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	"github.com/cockroachdb/errors"
	rpcclient "github.com/cometbft/cometbft/rpc/client"
	coretypes "github.com/cometbft/cometbft/rpc/core/types"
	grpctypes "github.com/cosmos/cosmos-sdk/types/grpc"
	"github.com/cosmos/cosmos-sdk/types/query"
	clienttypes "github.com/cosmos/ibc-go/v8/modules/core/02-client/types"
	chantypes "github.com/cosmos/ibc-go/v8/modules/core/04-channel/types"
	commitmenttypes "github.com/cosmos/ibc-go/v8/modules/core/23-commitment/types"
	ibctm "github.com/cosmos/ibc-go/v8/modules/light-clients/07-tendermint"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/metadata"
	"google.golang.org/grpc/status"

	"github.com/hyperledger-labs/yui-packet-relayer/core"
)

const (
	ibcStoreQueryPath = "store/ibc/key"
	queryPageLimit    = 1000
	txSearchPerPage   = 100
)

func (c *Chain) QueryState(ctx core.QueryContext) (*core.ChainState, error) {
	h, err := c.resolveHeight(ctx)
	if err != nil {
		return nil, err
	}
	c.limiter.Take()
	res, err := c.client.Header(ctx.Context(), &h)
	if err != nil {
		return nil, c.heightError(ctx.Context(), err, h)
	}
	return &core.ChainState{
		Height:    c.height(res.Header.Height),
		Timestamp: res.Header.Time,
		AppHash:   res.Header.AppHash,
	}, nil
}

// QueryProof queries the IBC store at the block below the height of ctx.
// The app hash of a block commits to the state after its parent, so the proof verifies at the height of ctx.
func (c *Chain) QueryProof(ctx core.QueryContext, path string) (*core.StateProof, error) {
	h, err := c.resolveHeight(ctx)
	if err != nil {
		return nil, err
	}
	if h < 2 {
		return nil, &core.HeightNotFoundError{Height: c.height(h)}
	}
	c.limiter.Take()
	res, err := c.client.ABCIQueryWithOptions(ctx.Context(), ibcStoreQueryPath, []byte(path), rpcclient.ABCIQueryOptions{
		Height: h - 1,
		Prove:  true,
	})
	if err != nil {
		return nil, c.heightError(ctx.Context(), err, h)
	} else if !res.Response.IsOK() {
		return nil, c.heightError(ctx.Context(), errors.Newf("query failed: %s", res.Response.Log), h)
	}
	merkleProof, err := commitmenttypes.ConvertProofs(res.Response.ProofOps)
	if err != nil {
		return nil, errors.Mark(errors.Wrapf(err, "failed to convert the proof of %s", path), core.ErrProofUnavailable)
	}
	proof, err := c.codec.Marshal(&merkleProof)
	if err != nil {
		return nil, err
	}
	return &core.StateProof{
		Value:       res.Response.Value,
		Proof:       proof,
		ProofHeight: c.height(res.Response.Height + 1),
	}, nil
}

// heightError tells a pruned height from one that the node has not reached
func (c *Chain) heightError(ctx context.Context, err error, h int64) error {
	msg := err.Error()
	switch {
	case strings.Contains(msg, "must be less than or equal to the current blockchain height"),
		strings.Contains(msg, "greater than the current height"):
		return &core.HeightNotFoundError{Height: c.height(h)}
	case strings.Contains(msg, "is not available, lowest height is"),
		strings.Contains(msg, "version does not exist"),
		strings.Contains(msg, "pruned"):
		return &core.HeightNotFoundError{Height: c.height(h), Pruned: true}
	}
	if ctx.Err() != nil {
		return err
	}
	return errors.Mark(errors.Wrapf(err, "failed to query %s at %d", c.ChainID(), h), core.ErrChainUnavailable)
}

// queryContext attaches the block height header so that module queries read the state at h
func (c *Chain) queryContext(ctx core.QueryContext) (context.Context, int64, error) {
	h, err := c.resolveHeight(ctx)
	if err != nil {
		return nil, 0, err
	}
	c.limiter.Take()
	return metadata.AppendToOutgoingContext(ctx.Context(), grpctypes.GRPCBlockHeightHeader, strconv.FormatInt(h, 10)), h, nil
}

func (c *Chain) queryError(err error, format string, args ...any) error {
	if status.Code(err) == codes.NotFound {
		return core.NewRejectedError("%s: %v", fmt.Sprintf(format, args...), err)
	}
	return errors.Mark(errors.Wrapf(err, format, args...), core.ErrChainUnavailable)
}

func (c *Chain) QueryChannel(ctx core.QueryContext, end core.ChannelEnd) (*chantypes.Channel, error) {
	qctx, h, err := c.queryContext(ctx)
	if err != nil {
		return nil, err
	}
	res, err := chantypes.NewQueryClient(c.queryConn(h)).Channel(qctx, &chantypes.QueryChannelRequest{
		PortId:    end.PortID,
		ChannelId: end.ChannelID,
	})
	if err != nil {
		return nil, c.queryError(err, "failed to query channel %v", end)
	}
	return res.Channel, nil
}

func (c *Chain) QueryNextSequenceReceive(ctx core.QueryContext, end core.ChannelEnd) (uint64, error) {
	qctx, h, err := c.queryContext(ctx)
	if err != nil {
		return 0, err
	}
	res, err := chantypes.NewQueryClient(c.queryConn(h)).NextSequenceReceive(qctx, &chantypes.QueryNextSequenceReceiveRequest{
		PortId:    end.PortID,
		ChannelId: end.ChannelID,
	})
	if err != nil {
		return 0, c.queryError(err, "failed to query the next sequence receive of %v", end)
	}
	return res.NextSequenceReceive, nil
}

func (c *Chain) QueryUnfinalizedRelayPackets(ctx core.QueryContext, src core.ChannelEnd) (core.PacketInfoList, error) {
	qctx, h, err := c.queryContext(ctx)
	if err != nil {
		return nil, err
	}
	qc := chantypes.NewQueryClient(c.queryConn(h))
	var seqs []uint64
	req := &chantypes.QueryPacketCommitmentsRequest{
		PortId:     src.PortID,
		ChannelId:  src.ChannelID,
		Pagination: &query.PageRequest{Limit: queryPageLimit},
	}
	for {
		res, err := qc.PacketCommitments(qctx, req)
		if err != nil {
			return nil, c.queryError(err, "failed to query packet commitments of %v", src)
		}
		for _, pc := range res.Commitments {
			seqs = append(seqs, pc.Sequence)
		}
		if res.Pagination == nil || len(res.Pagination.NextKey) == 0 {
			break
		}
		req.Pagination = &query.PageRequest{Key: res.Pagination.NextKey, Limit: queryPageLimit}
	}
	return c.searchPackets(ctx.Context(), h, chantypes.EventTypeSendPacket, func(seq uint64) string {
		return fmt.Sprintf("%s.%s='%s' AND %s.%s='%s' AND %s.%s='%d'",
			chantypes.EventTypeSendPacket, chantypes.AttributeKeySrcPort, src.PortID,
			chantypes.EventTypeSendPacket, chantypes.AttributeKeySrcChannel, src.ChannelID,
			chantypes.EventTypeSendPacket, chantypes.AttributeKeySequence, seq,
		)
	}, seqs)
}

func (c *Chain) QueryUnreceivedPackets(ctx core.QueryContext, dst core.ChannelEnd, seqs []uint64) ([]uint64, error) {
	if len(seqs) == 0 {
		return nil, nil
	}
	qctx, h, err := c.queryContext(ctx)
	if err != nil {
		return nil, err
	}
	res, err := chantypes.NewQueryClient(c.queryConn(h)).UnreceivedPackets(qctx, &chantypes.QueryUnreceivedPacketsRequest{
		PortId:                    dst.PortID,
		ChannelId:                 dst.ChannelID,
		PacketCommitmentSequences: seqs,
	})
	if err != nil {
		return nil, c.queryError(err, "failed to query unreceived packets of %v", dst)
	}
	return res.Sequences, nil
}

func (c *Chain) QueryUnfinalizedRelayAcknowledgements(ctx core.QueryContext, dst core.ChannelEnd) (core.PacketInfoList, error) {
	qctx, h, err := c.queryContext(ctx)
	if err != nil {
		return nil, err
	}
	qc := chantypes.NewQueryClient(c.queryConn(h))
	var seqs []uint64
	req := &chantypes.QueryPacketAcknowledgementsRequest{
		PortId:     dst.PortID,
		ChannelId:  dst.ChannelID,
		Pagination: &query.PageRequest{Limit: queryPageLimit},
	}
	for {
		res, err := qc.PacketAcknowledgements(qctx, req)
		if err != nil {
			return nil, c.queryError(err, "failed to query packet acknowledgements of %v", dst)
		}
		for _, ack := range res.Acknowledgements {
			seqs = append(seqs, ack.Sequence)
		}
		if res.Pagination == nil || len(res.Pagination.NextKey) == 0 {
			break
		}
		req.Pagination = &query.PageRequest{Key: res.Pagination.NextKey, Limit: queryPageLimit}
	}
	return c.searchPackets(ctx.Context(), h, chantypes.EventTypeWriteAck, func(seq uint64) string {
		return fmt.Sprintf("%s.%s='%s' AND %s.%s='%s' AND %s.%s='%d'",
			chantypes.EventTypeWriteAck, chantypes.AttributeKeyDstPort, dst.PortID,
			chantypes.EventTypeWriteAck, chantypes.AttributeKeyDstChannel, dst.ChannelID,
			chantypes.EventTypeWriteAck, chantypes.AttributeKeySequence, seq,
		)
	}, seqs)
}

func (c *Chain) QueryUnreceivedAcknowledgements(ctx core.QueryContext, src core.ChannelEnd, seqs []uint64) ([]uint64, error) {
	if len(seqs) == 0 {
		return nil, nil
	}
	qctx, h, err := c.queryContext(ctx)
	if err != nil {
		return nil, err
	}
	res, err := chantypes.NewQueryClient(c.queryConn(h)).UnreceivedAcks(qctx, &chantypes.QueryUnreceivedAcksRequest{
		PortId:             src.PortID,
		ChannelId:          src.ChannelID,
		PacketAckSequences: seqs,
	})
	if err != nil {
		return nil, c.queryError(err, "failed to query unreceived acknowledgements of %v", src)
	}
	return res.Sequences, nil
}

// searchPackets rebuilds packets from the events of the txs that emitted them.
// Commitments hold hashes only, so the packet data has to come from the tx index.
func (c *Chain) searchPackets(ctx context.Context, maxHeight int64, eventType string, queryFor func(seq uint64) string, seqs []uint64) (core.PacketInfoList, error) {
	var packets core.PacketInfoList
	for _, seq := range seqs {
		txs, err := c.txSearch(ctx, queryFor(seq))
		if err != nil {
			return nil, err
		}
		info, err := c.findPacket(txs, eventType, seq, maxHeight)
		if err != nil {
			return nil, err
		}
		if info != nil {
			packets = append(packets, info)
		}
	}
	return packets, nil
}

func (c *Chain) txSearch(ctx context.Context, q string) ([]*coretypes.ResultTx, error) {
	var txs []*coretypes.ResultTx
	perPage := txSearchPerPage
	for page := 1; ; page++ {
		c.limiter.Take()
		p := page
		res, err := c.client.TxSearch(ctx, q, false, &p, &perPage, "asc")
		if err != nil {
			return nil, errors.Mark(errors.Wrapf(err, "failed to search txs: %s", q), core.ErrChainUnavailable)
		}
		txs = append(txs, res.Txs...)
		if len(txs) >= res.TotalCount || len(res.Txs) == 0 {
			return txs, nil
		}
	}
}

func (c *Chain) findPacket(txs []*coretypes.ResultTx, eventType string, seq uint64, maxHeight int64) (*core.PacketInfo, error) {
	var found *core.PacketInfo
	for _, tx := range txs {
		if tx.Height > maxHeight {
			continue
		}
		for i, ev := range tx.TxResult.Events {
			if ev.Type != eventType {
				continue
			}
			rev, ok, err := core.NormalizeEvent(c.ChainID(), core.ChainEvent{
				Height: c.height(tx.Height),
				Index:  eventIndex(tx.Index, i),
				Event:  ev,
			})
			if err != nil {
				return nil, err
			} else if !ok || rev.Packet.Sequence != seq {
				continue
			}
			// a later event for the same sequence wins, e.g. after a channel is reopened
			found = rev.PacketInfo()
		}
	}
	return found, nil
}

func (c *Chain) QueryClientTrustedState(ctx core.QueryContext, clientID string) (*core.TrustedState, error) {
	qctx, h, err := c.queryContext(ctx)
	if err != nil {
		return nil, err
	}
	qc := clienttypes.NewQueryClient(c.queryConn(h))
	csRes, err := qc.ClientState(qctx, &clienttypes.QueryClientStateRequest{ClientId: clientID})
	if err != nil {
		return nil, c.queryError(err, "failed to query client state of %s", clientID)
	}
	clientState, err := clienttypes.UnpackClientState(csRes.ClientState)
	if err != nil {
		return nil, err
	}
	latest, ok := clientState.GetLatestHeight().(clienttypes.Height)
	if !ok {
		return nil, errors.Errorf("unexpected height type: %T", clientState.GetLatestHeight())
	}

	consRes, err := qc.ConsensusState(qctx, &clienttypes.QueryConsensusStateRequest{
		ClientId:       clientID,
		RevisionNumber: latest.RevisionNumber,
		RevisionHeight: latest.RevisionHeight,
	})
	if err != nil {
		return nil, c.queryError(err, "failed to query consensus state of %s at %v", clientID, latest)
	}
	consState, err := clienttypes.UnpackConsensusState(consRes.ConsensusState)
	if err != nil {
		return nil, err
	}
	state := &core.TrustedState{
		ClientID:  clientID,
		Height:    latest,
		Timestamp: timeFromUnixNano(consState.GetTimestamp()),
	}
	if tmState, ok := consState.(*ibctm.ConsensusState); ok {
		state.Commitment = tmState.NextValidatorsHash
	}
	return state, nil
}
