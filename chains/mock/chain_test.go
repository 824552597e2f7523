package mock_test

import (
	"context"
	"testing"
	"time"

	"github.com/cockroachdb/errors"
	sdk "github.com/cosmos/cosmos-sdk/types"
	clienttypes "github.com/cosmos/ibc-go/v8/modules/core/02-client/types"
	chantypes "github.com/cosmos/ibc-go/v8/modules/core/04-channel/types"
	host "github.com/cosmos/ibc-go/v8/modules/core/24-host"
	"github.com/stretchr/testify/require"

	"github.com/hyperledger-labs/yui-packet-relayer/chains/mock"
	"github.com/hyperledger-labs/yui-packet-relayer/core"
)

func height(h uint64) clienttypes.Height {
	return clienttypes.NewHeight(0, h)
}

func connect(t *testing.T) (*mock.Chain, *mock.Chain, *core.Path) {
	t.Helper()
	a, b := mock.NewChain("chain-a"), mock.NewChain("chain-b")
	return a, b, mock.Connect(a, b, chantypes.UNORDERED)
}

// recvMsg proves packet on a at proofHeight and makes the client on b trust that height
func recvMsg(t *testing.T, a, b *mock.Chain, packet chantypes.Packet, proofHeight uint64) *chantypes.MsgRecvPacket {
	t.Helper()
	path := host.PacketCommitmentPath(packet.SourcePort, packet.SourceChannel, packet.Sequence)
	sp, err := a.QueryProof(core.NewQueryContext(context.Background(), height(proofHeight)), path)
	require.NoError(t, err)
	b.CreateClient(mock.DefaultClientID, a.ChainID(), sp.ProofHeight, a.BlockTime(proofHeight))
	addr, err := b.GetAddress()
	require.NoError(t, err)
	return chantypes.NewMsgRecvPacket(packet, sp.Proof, sp.ProofHeight, addr.String())
}

func TestConnect(t *testing.T) {
	a, b, path := connect(t)
	require.NoError(t, path.Validate())
	require.Equal(t, "chain-a", path.Src.ChainID)
	require.Equal(t, chantypes.UNORDERED, path.Src.ChannelOrder())

	ch, err := b.QueryChannel(core.NewLatestQueryContext(context.Background()), path.Dst.ChannelEnd())
	require.NoError(t, err)
	require.Equal(t, chantypes.OPEN, ch.State)
	require.Equal(t, path.Src.ChannelID, ch.Counterparty.ChannelId)

	require.Equal(t, height(1), a.ClientHeight(mock.DefaultClientID))
	require.Equal(t, clienttypes.ZeroHeight(), a.ClientHeight("unknown"))
}

func TestProofProvesPreviousBlock(t *testing.T) {
	ctx := context.Background()
	a, _, path := connect(t)

	packet, sentAt, err := a.SendPacket(path.Src.ChannelEnd(), []byte("data"), height(100), 0)
	require.NoError(t, err)
	require.Equal(t, height(a.Height()), sentAt)
	commitment := host.PacketCommitmentPath(packet.SourcePort, packet.SourceChannel, packet.Sequence)

	// a proof at the height of the block that wrote the value cannot show it
	sp, err := a.QueryProof(core.NewQueryContext(ctx, sentAt), commitment)
	require.NoError(t, err)
	require.Empty(t, sp.Value)

	a.Advance(1)
	next := sentAt.Increment().(clienttypes.Height)
	sp, err = a.QueryProof(core.NewQueryContext(ctx, next), commitment)
	require.NoError(t, err)
	require.Equal(t, chantypes.CommitPacket(nil, packet), sp.Value)
	require.Equal(t, next, sp.ProofHeight)
	require.Equal(t, mock.Proof(commitment, sp.Value, next), sp.Proof)

	_, err = a.QueryProof(core.NewQueryContext(ctx, height(a.Height()+1)), commitment)
	require.ErrorIs(t, err, core.ErrHeightNotFound)
	require.False(t, core.IsPrunedHeight(err))
}

func TestPrune(t *testing.T) {
	ctx := context.Background()
	a, _, _ := connect(t)
	a.Advance(5)
	a.Prune(4)

	_, err := a.QueryState(core.NewQueryContext(ctx, height(3)))
	require.True(t, core.IsPrunedHeight(err))

	state, err := a.QueryState(core.NewQueryContext(ctx, height(4)))
	require.NoError(t, err)
	require.Equal(t, a.BlockTime(4), state.Timestamp)

	// the proof at 4 shows the state of 3
	_, err = a.QueryProof(core.NewQueryContext(ctx, height(4)), "any")
	require.True(t, core.IsPrunedHeight(err))
}

func TestUnfinalizedQueries(t *testing.T) {
	ctx := context.Background()
	a, b, path := connect(t)
	packet, sentAt, err := a.SendPacket(path.Src.ChannelEnd(), []byte("data"), height(100), 0)
	require.NoError(t, err)

	before := core.NewQueryContext(ctx, height(sentAt.RevisionHeight-1))
	packets, err := a.QueryUnfinalizedRelayPackets(before, path.Src.ChannelEnd())
	require.NoError(t, err)
	require.Empty(t, packets)

	packets, err = a.QueryUnfinalizedRelayPackets(core.NewLatestQueryContext(ctx), path.Src.ChannelEnd())
	require.NoError(t, err)
	require.Equal(t, []uint64{1}, packets.ExtractSequenceList())
	require.Equal(t, sentAt, packets[0].EventHeight)

	unreceived, err := b.QueryUnreceivedPackets(core.NewLatestQueryContext(ctx), path.Dst.ChannelEnd(), []uint64{1, 2})
	require.NoError(t, err)
	require.Equal(t, []uint64{1, 2}, unreceived)

	a.Advance(1)
	_, err = b.SendMsgs(ctx, []sdk.Msg{recvMsg(t, a, b, packet, a.Height())})
	require.NoError(t, err)

	unreceived, err = b.QueryUnreceivedPackets(core.NewLatestQueryContext(ctx), path.Dst.ChannelEnd(), []uint64{1, 2})
	require.NoError(t, err)
	require.Equal(t, []uint64{2}, unreceived)

	acks, err := b.QueryUnfinalizedRelayAcknowledgements(core.NewLatestQueryContext(ctx), path.Dst.ChannelEnd())
	require.NoError(t, err)
	require.Len(t, acks, 1)
	require.Equal(t, mock.DefaultAcknowledgement, acks[0].Acknowledgement)

	unacked, err := a.QueryUnreceivedAcknowledgements(core.NewLatestQueryContext(ctx), path.Src.ChannelEnd(), []uint64{1})
	require.NoError(t, err)
	require.Equal(t, []uint64{1}, unacked)
}

func TestSendMsgs(t *testing.T) {
	ctx := context.Background()
	a, b, path := connect(t)
	packet, _, err := a.SendPacket(path.Src.ChannelEnd(), []byte("data"), height(100), 0)
	require.NoError(t, err)
	a.Advance(1)
	msg := recvMsg(t, a, b, packet, a.Height())

	ids, err := b.SendMsgs(ctx, []sdk.Msg{msg})
	require.NoError(t, err)
	require.Len(t, ids, 1)
	res, err := b.GetMsgResult(ctx, ids[0])
	require.NoError(t, err)
	ok, _ := res.Status()
	require.True(t, ok)
	require.Equal(t, height(b.Height()), res.BlockHeight())

	// every packet msg of the second tx is redundant
	_, err = b.SendMsgs(ctx, []sdk.Msg{msg})
	require.ErrorIs(t, err, core.ErrAlreadyRelayed)
	require.Len(t, b.Applied(), 1)
}

func TestSendMsgsRejectsInvalidProof(t *testing.T) {
	ctx := context.Background()
	a, b, path := connect(t)
	packet, _, err := a.SendPacket(path.Src.ChannelEnd(), []byte("data"), height(100), 0)
	require.NoError(t, err)
	a.Advance(1)
	msg := recvMsg(t, a, b, packet, a.Height())
	msg.ProofCommitment = []byte("forged")

	_, err = b.SendMsgs(ctx, []sdk.Msg{msg})
	require.ErrorIs(t, err, core.ErrRejected)
	require.Empty(t, b.Applied())
}

func TestSendMsgsRejectsExpiredPacket(t *testing.T) {
	ctx := context.Background()
	a, b, path := connect(t)
	packet, _, err := a.SendPacket(path.Src.ChannelEnd(), []byte("data"), height(b.Height()+1), 0)
	require.NoError(t, err)
	a.Advance(1)

	_, err = b.SendMsgs(ctx, []sdk.Msg{recvMsg(t, a, b, packet, a.Height())})
	var rerr *core.RejectedError
	require.True(t, errors.As(err, &rerr))
	require.Contains(t, rerr.Reason, "timeout height")
}

func TestFaults(t *testing.T) {
	a, b, path := connect(t)
	packet, _, err := a.SendPacket(path.Src.ChannelEnd(), []byte("data"), height(100), 0)
	require.NoError(t, err)
	a.Advance(1)
	msg := recvMsg(t, a, b, packet, a.Height())

	b.InjectFaults(
		mock.Fault{Hang: true},
		mock.Fault{Err: core.ErrUnconfirmed},
		mock.Fault{Err: core.ErrUnconfirmed, Apply: true},
	)

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()
	_, err = b.SendMsgs(ctx, []sdk.Msg{msg})
	require.ErrorIs(t, err, context.DeadlineExceeded)

	_, err = b.SendMsgs(context.Background(), []sdk.Msg{msg})
	require.ErrorIs(t, err, core.ErrUnconfirmed)
	require.Empty(t, b.Applied())

	_, err = b.SendMsgs(context.Background(), []sdk.Msg{msg})
	require.ErrorIs(t, err, core.ErrUnconfirmed)
	require.Len(t, b.Applied(), 1, "the tx is applied although its result is lost")

	require.Len(t, b.CallLog().Calls(), 3)
}

func TestSubscribeEvents(t *testing.T) {
	a, _, path := connect(t)
	ctx, cancel := context.WithCancel(context.Background())
	events, err := a.SubscribeEvents(ctx)
	require.NoError(t, err)
	require.Equal(t, 1, a.Subscribers())

	_, sentAt, err := a.SendPacket(path.Src.ChannelEnd(), []byte("data"), height(100), 0)
	require.NoError(t, err)
	ce := <-events
	require.Equal(t, sentAt, ce.Height)
	ev, ok, err := core.NormalizeEvent(a.ChainID(), ce)
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, core.EventSendPacket, ev.Kind)
	require.Equal(t, uint64(1), ev.Packet.Sequence)

	a.Replay(sentAt.RevisionHeight)
	replayed := <-events
	require.Equal(t, ce, replayed)

	closeHeight := a.Emit(core.ChannelEvent(core.EventChannelCloseInit, path.Src.ChannelEnd(), path.Dst.ChannelEnd()))
	ce = <-events
	require.Equal(t, height(closeHeight), ce.Height)

	a.DisconnectSubscribers()
	_, open := <-events
	require.False(t, open)
	require.Zero(t, a.Subscribers())

	events, err = a.SubscribeEvents(ctx)
	require.NoError(t, err)
	cancel()
	require.Eventually(t, func() bool { return a.Subscribers() == 0 }, time.Second, time.Millisecond)
	_, open = <-events
	require.False(t, open)
}

func TestCloseChannel(t *testing.T) {
	a, _, path := connect(t)
	require.NoError(t, a.CloseChannel(path.Src.ChannelEnd()))

	ch, err := a.QueryChannel(core.NewLatestQueryContext(context.Background()), path.Src.ChannelEnd())
	require.NoError(t, err)
	require.Equal(t, chantypes.CLOSED, ch.State)

	_, _, err = a.SendPacket(path.Src.ChannelEnd(), []byte("data"), height(100), 0)
	require.Error(t, err)
}
