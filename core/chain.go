package core

import (
	"context"
	"time"

	sdk "github.com/cosmos/cosmos-sdk/types"
	clienttypes "github.com/cosmos/ibc-go/v8/modules/core/02-client/types"
	chantypes "github.com/cosmos/ibc-go/v8/modules/core/04-channel/types"
	ibcexported "github.com/cosmos/ibc-go/v8/modules/core/exported"
)

// Chain is the endpoint of a chain that the relayer observes and submits messages to.
// Implementations must be safe for concurrent use because several relay paths may share one endpoint.
type Chain interface {
	// ChainID returns ID of the chain
	ChainID() string

	// GetAddress returns the address of relayer
	GetAddress() (sdk.AccAddress, error)

	// LatestHeight returns the latest height of the chain
	LatestHeight(ctx context.Context) (clienttypes.Height, error)

	// QueryState returns the block level state at the height of the context.
	// A zero height means the latest height.
	QueryState(ctx QueryContext) (*ChainState, error)

	// QueryProof returns the value stored at the given IBC store path and a proof of it.
	// The proof is verifiable against a consensus state at the height of the context.
	// For an absent value, Value is empty and Proof proves non-membership.
	QueryProof(ctx QueryContext, path string) (*StateProof, error)

	// QueryChannel returns the channel of the given end
	QueryChannel(ctx QueryContext, end ChannelEnd) (*chantypes.Channel, error)

	// QueryNextSequenceReceive returns the next receive sequence of an ordered channel
	QueryNextSequenceReceive(ctx QueryContext, end ChannelEnd) (uint64, error)

	// QueryUnfinalizedRelayPackets returns packets sent from the given end whose commitments still exist
	QueryUnfinalizedRelayPackets(ctx QueryContext, src ChannelEnd) (PacketInfoList, error)

	// QueryUnreceivedPackets returns the sequences that have not been received on the given end
	QueryUnreceivedPackets(ctx QueryContext, dst ChannelEnd, seqs []uint64) ([]uint64, error)

	// QueryUnfinalizedRelayAcknowledgements returns packets received on the given end together with their acknowledgements
	QueryUnfinalizedRelayAcknowledgements(ctx QueryContext, dst ChannelEnd) (PacketInfoList, error)

	// QueryUnreceivedAcknowledgements returns the sequences whose acknowledgements have not been processed on the given end
	QueryUnreceivedAcknowledgements(ctx QueryContext, src ChannelEnd, seqs []uint64) ([]uint64, error)

	// QueryClientTrustedState returns the latest consensus state the chain stores for the client
	QueryClientTrustedState(ctx QueryContext, clientID string) (*TrustedState, error)

	// SendMsgs submits msgs in a single transaction and returns an ID per msg.
	// A deterministic rejection is reported with an error satisfying errors.Is(err, ErrRejected).
	SendMsgs(ctx context.Context, msgs []sdk.Msg) ([]MsgID, error)

	// GetMsgResult waits for the result of a submitted msg
	GetMsgResult(ctx context.Context, id MsgID) (MsgResult, error)

	// SubscribeEvents starts a stream of raw events.
	// The channel is closed when the underlying connection is lost or ctx is done.
	SubscribeEvents(ctx context.Context) (<-chan ChainEvent, error)
}

// ChainState is the block level state of a chain at a height
type ChainState struct {
	Height    clienttypes.Height
	Timestamp time.Time
	AppHash   []byte
}

// StateProof is a value and its commitment proof
type StateProof struct {
	Value       []byte
	Proof       []byte
	ProofHeight clienttypes.Height
}

// Header is a header of a chain, to be verified by a LightClientVerifier
// and submitted to the counterparty as a client update.
type Header interface {
	GetHeight() clienttypes.Height
	Hash() []byte
	ClientMessage() ibcexported.ClientMessage
}

// Prover produces headers of a chain for updating its light client on the counterparty
type Prover interface {
	// ClientType returns the type of the light client that tracks the chain
	ClientType() string

	// GetLatestFinalizedHeader returns the latest finalized header of the chain
	GetLatestFinalizedHeader(ctx context.Context) (Header, error)

	// SetupHeadersForUpdate returns the headers that bring a light client
	// from the trusted state up to latestFinalizedHeader, in increasing height order
	SetupHeadersForUpdate(ctx context.Context, trusted TrustedState, latestFinalizedHeader Header) ([]Header, error)

	// Verifier returns the verifier for the consensus family of the chain
	Verifier() LightClientVerifier
}

// ChainConfig builds a Chain from its configuration
type ChainConfig interface {
	Build(homePath string, timeout time.Duration) (Chain, error)
	Validate() error
}

// ProverConfig builds a Prover of a chain from its configuration
type ProverConfig interface {
	Build(chain Chain) (Prover, error)
	Validate() error
}
