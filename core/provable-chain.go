package core

import (
	"context"

	sdk "github.com/cosmos/cosmos-sdk/types"
	clienttypes "github.com/cosmos/ibc-go/v8/modules/core/02-client/types"
	chantypes "github.com/cosmos/ibc-go/v8/modules/core/04-channel/types"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

// ProvableChain represents a chain that is supported by the relayer.
//
// It wraps primary methods of the Chain and Prover interfaces with tracing.
// This allows the relayer to provide tracing functionality without modifying module code.
type ProvableChain struct {
	Chain
	Prover
}

// NewProvableChain returns a new ProvableChain instance
func NewProvableChain(chain Chain, prover Prover) *ProvableChain {
	return &ProvableChain{Chain: chain, Prover: prover}
}

func (pc *ProvableChain) SendMsgs(ctx context.Context, msgs []sdk.Msg) ([]MsgID, error) {
	ctx, span := tracer.Start(ctx, "Chain.SendMsgs",
		WithChainAttributes(pc.ChainID()),
		trace.WithAttributes(attribute.Int("msg_count", len(msgs))),
		withPackage(pc.Chain),
	)
	defer span.End()

	ids, err := pc.Chain.SendMsgs(ctx, msgs)
	if err != nil {
		span.SetStatus(codes.Error, err.Error())
	}
	return ids, err
}

func (pc *ProvableChain) GetMsgResult(ctx context.Context, id MsgID) (MsgResult, error) {
	ctx, span := tracer.Start(ctx, "Chain.GetMsgResult",
		WithChainAttributes(pc.ChainID()),
		trace.WithAttributes(AttributeKeyTxHash.String(id.TxHash())),
		withPackage(pc.Chain),
	)
	defer span.End()

	result, err := pc.Chain.GetMsgResult(ctx, id)
	if err != nil {
		span.SetStatus(codes.Error, err.Error())
	}
	return result, err
}

func (pc *ProvableChain) LatestHeight(ctx context.Context) (clienttypes.Height, error) {
	ctx, span := tracer.Start(ctx, "Chain.LatestHeight",
		WithChainAttributes(pc.ChainID()),
		withPackage(pc.Chain),
	)
	defer span.End()

	height, err := pc.Chain.LatestHeight(ctx)
	if err != nil {
		span.SetStatus(codes.Error, err.Error())
	}
	return height, err
}

func (pc *ProvableChain) QueryState(ctx QueryContext) (*ChainState, error) {
	ctx, span := StartTraceWithQueryContext(tracer, ctx, "Chain.QueryState",
		WithChainAttributes(pc.ChainID()),
		withPackage(pc.Chain),
	)
	defer span.End()

	state, err := pc.Chain.QueryState(ctx)
	if err != nil {
		span.SetStatus(codes.Error, err.Error())
	}
	return state, err
}

func (pc *ProvableChain) QueryProof(ctx QueryContext, path string) (*StateProof, error) {
	ctx, span := StartTraceWithQueryContext(tracer, ctx, "Chain.QueryProof",
		WithChainAttributes(pc.ChainID()),
		trace.WithAttributes(AttributeKeyPath.String(path)),
		withPackage(pc.Chain),
	)
	defer span.End()

	proof, err := pc.Chain.QueryProof(ctx, path)
	if err != nil {
		span.SetStatus(codes.Error, err.Error())
	}
	return proof, err
}

func (pc *ProvableChain) QueryChannel(ctx QueryContext, end ChannelEnd) (*chantypes.Channel, error) {
	ctx, span := StartTraceWithQueryContext(tracer, ctx, "Chain.QueryChannel",
		WithChainAttributes(pc.ChainID()),
		trace.WithAttributes(AttributeKeyPortID.String(end.PortID), AttributeKeyChannelID.String(end.ChannelID)),
		withPackage(pc.Chain),
	)
	defer span.End()

	channel, err := pc.Chain.QueryChannel(ctx, end)
	if err != nil {
		span.SetStatus(codes.Error, err.Error())
	}
	return channel, err
}

func (pc *ProvableChain) QueryUnfinalizedRelayPackets(ctx QueryContext, src ChannelEnd) (PacketInfoList, error) {
	ctx, span := StartTraceWithQueryContext(tracer, ctx, "Chain.QueryUnfinalizedRelayPackets",
		WithChainAttributes(pc.ChainID()),
		withPackage(pc.Chain),
	)
	defer span.End()

	packets, err := pc.Chain.QueryUnfinalizedRelayPackets(ctx, src)
	if err != nil {
		span.SetStatus(codes.Error, err.Error())
	}
	return packets, err
}

func (pc *ProvableChain) QueryUnreceivedPackets(ctx QueryContext, dst ChannelEnd, seqs []uint64) ([]uint64, error) {
	ctx, span := StartTraceWithQueryContext(tracer, ctx, "Chain.QueryUnreceivedPackets",
		WithChainAttributes(pc.ChainID()),
		withPackage(pc.Chain),
	)
	defer span.End()

	unreceived, err := pc.Chain.QueryUnreceivedPackets(ctx, dst, seqs)
	if err != nil {
		span.SetStatus(codes.Error, err.Error())
	}
	return unreceived, err
}

func (pc *ProvableChain) QueryUnfinalizedRelayAcknowledgements(ctx QueryContext, dst ChannelEnd) (PacketInfoList, error) {
	ctx, span := StartTraceWithQueryContext(tracer, ctx, "Chain.QueryUnfinalizedRelayAcknowledgements",
		WithChainAttributes(pc.ChainID()),
		withPackage(pc.Chain),
	)
	defer span.End()

	packets, err := pc.Chain.QueryUnfinalizedRelayAcknowledgements(ctx, dst)
	if err != nil {
		span.SetStatus(codes.Error, err.Error())
	}
	return packets, err
}

func (pc *ProvableChain) QueryUnreceivedAcknowledgements(ctx QueryContext, src ChannelEnd, seqs []uint64) ([]uint64, error) {
	ctx, span := StartTraceWithQueryContext(tracer, ctx, "Chain.QueryUnreceivedAcknowledgements",
		WithChainAttributes(pc.ChainID()),
		withPackage(pc.Chain),
	)
	defer span.End()

	unreceived, err := pc.Chain.QueryUnreceivedAcknowledgements(ctx, src, seqs)
	if err != nil {
		span.SetStatus(codes.Error, err.Error())
	}
	return unreceived, err
}

func (pc *ProvableChain) QueryClientTrustedState(ctx QueryContext, clientID string) (*TrustedState, error) {
	ctx, span := StartTraceWithQueryContext(tracer, ctx, "Chain.QueryClientTrustedState",
		WithChainAttributes(pc.ChainID()),
		trace.WithAttributes(AttributeKeyClientID.String(clientID)),
		withPackage(pc.Chain),
	)
	defer span.End()

	state, err := pc.Chain.QueryClientTrustedState(ctx, clientID)
	if err != nil {
		span.SetStatus(codes.Error, err.Error())
	}
	return state, err
}

func (pc *ProvableChain) GetLatestFinalizedHeader(ctx context.Context) (Header, error) {
	ctx, span := tracer.Start(ctx, "Prover.GetLatestFinalizedHeader",
		WithChainAttributes(pc.ChainID()),
		withPackage(pc.Prover),
	)
	defer span.End()

	header, err := pc.Prover.GetLatestFinalizedHeader(ctx)
	if err != nil {
		span.SetStatus(codes.Error, err.Error())
	}
	return header, err
}

func (pc *ProvableChain) SetupHeadersForUpdate(ctx context.Context, trusted TrustedState, latestFinalizedHeader Header) ([]Header, error) {
	ctx, span := tracer.Start(ctx, "Prover.SetupHeadersForUpdate",
		WithChainAttributes(pc.ChainID()),
		trace.WithAttributes(AttributeGroup("trusted", heightAttributes(trusted.Height)...)...),
		withPackage(pc.Prover),
	)
	defer span.End()

	headers, err := pc.Prover.SetupHeadersForUpdate(ctx, trusted, latestFinalizedHeader)
	if err != nil {
		span.SetStatus(codes.Error, err.Error())
	}
	return headers, err
}
