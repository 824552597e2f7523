package core

import (
	"testing"
	"time"

	sdk "github.com/cosmos/cosmos-sdk/types"
	clienttypes "github.com/cosmos/ibc-go/v8/modules/core/02-client/types"
	chantypes "github.com/cosmos/ibc-go/v8/modules/core/04-channel/types"
	"github.com/cosmos/gogoproto/proto"
	"github.com/stretchr/testify/require"
)

const testSigner = "cosmos1qqqqqqqqqqqqqqqqqqqqqqqqqqqqqqqqnrql8a"

func testPending(seq uint64) *PendingPacket {
	packet := chantypes.NewPacket([]byte("data"), seq, "transfer", "channel-0", "transfer", "channel-1", clienttypes.NewHeight(0, 100), 0)
	return &PendingPacket{
		Key:         PacketKey{Src: ChannelEnd{ChainID: "chain-a", PortID: "transfer", ChannelID: "channel-0"}, Sequence: seq},
		Packet:      packet,
		Proof:       []byte("proof"),
		ProofHeight: clienttypes.NewHeight(0, 10),
	}
}

func buildRecv(p *PendingPacket) (sdk.Msg, error) {
	return chantypes.NewMsgRecvPacket(p.Packet, p.Proof, p.ProofHeight, testSigner), nil
}

func batchSeqs(batches []*relayBatch) [][]uint64 {
	var out [][]uint64
	for _, b := range batches {
		var seqs []uint64
		for _, p := range b.packets {
			seqs = append(seqs, p.Key.Sequence)
		}
		out = append(out, seqs)
	}
	return out
}

func TestRelayMsgsSplit(t *testing.T) {
	update := &clienttypes.MsgUpdateClient{ClientId: "mock-client-0", Signer: testSigner}
	packets := func(seqs ...uint64) []*PendingPacket {
		var ps []*PendingPacket
		for _, seq := range seqs {
			ps = append(ps, testPending(seq))
		}
		return ps
	}
	recvSize := func() uint64 {
		msg, _ := buildRecv(testPending(1))
		return uint64(proto.Size(msg))
	}()

	cases := []struct {
		name      string
		relayMsgs RelayMsgs
		updates   []sdk.Msg
		packets   []*PendingPacket
		want      [][]uint64
		firstLen  int
	}{
		{
			name:     "unlimited",
			packets:  packets(1, 2, 3),
			updates:  []sdk.Msg{update},
			want:     [][]uint64{{1, 2, 3}},
			firstLen: 4,
		},
		{
			name:      "max msg length counts updates",
			relayMsgs: RelayMsgs{MaxMsgLength: 2},
			updates:   []sdk.Msg{update},
			packets:   packets(1, 2, 3),
			want:      [][]uint64{{1}, {2, 3}},
			firstLen:  2,
		},
		{
			name:      "max tx size",
			relayMsgs: RelayMsgs{MaxTxSize: recvSize*2 + 1},
			packets:   packets(1, 2, 3, 4, 5),
			want:      [][]uint64{{1, 2}, {3, 4}, {5}},
			firstLen:  2,
		},
		{
			name:      "an oversized packet is still sent",
			relayMsgs: RelayMsgs{MaxTxSize: 1},
			packets:   packets(1, 2),
			want:      [][]uint64{{1}, {2}},
			firstLen:  1,
		},
		{
			name: "isolated packet is alone",
			packets: func() []*PendingPacket {
				ps := packets(1, 2, 3, 4)
				ps[1].Isolate = true
				return ps
			}(),
			want:     [][]uint64{{1}, {2}, {3, 4}},
			firstLen: 1,
		},
		{
			name:    "no packets drops updates",
			updates: []sdk.Msg{update},
			want:    nil,
		},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			batches, err := tc.relayMsgs.Split(tc.updates, tc.packets, buildRecv)
			require.NoError(t, err)
			require.Equal(t, tc.want, batchSeqs(batches))
			if len(batches) > 0 {
				require.Len(t, batches[0].msgs, tc.firstLen)
			}
		})
	}
}

func TestRelayMsgsSplitUpdatesLead(t *testing.T) {
	update := &clienttypes.MsgUpdateClient{ClientId: "mock-client-0", Signer: testSigner}
	batches, err := RelayMsgs{}.Split([]sdk.Msg{update}, []*PendingPacket{testPending(1)}, buildRecv)
	require.NoError(t, err)
	require.Len(t, batches, 1)
	require.IsType(t, &clienttypes.MsgUpdateClient{}, batches[0].msgs[0])
	require.IsType(t, &chantypes.MsgRecvPacket{}, batches[0].msgs[1])
	require.Equal(t, "0:/ibc.core.client.v1.MsgUpdateClient,1:/ibc.core.channel.v1.MsgRecvPacket", GetMsgAction(batches[0].msgs))
}

func TestIsTimedOut(t *testing.T) {
	packet := chantypes.NewPacket(nil, 1, "transfer", "channel-0", "transfer", "channel-1", clienttypes.NewHeight(1, 100), 0)
	cases := []struct {
		name      string
		height    clienttypes.Height
		timestamp uint64
		packetTS  uint64
		want      bool
	}{
		{"below timeout height", clienttypes.NewHeight(1, 99), 0, 0, false},
		{"at timeout height", clienttypes.NewHeight(1, 100), 0, 0, true},
		{"later revision", clienttypes.NewHeight(2, 1), 0, 0, true},
		{"timestamp reached", clienttypes.NewHeight(1, 50), 2_000, 1_000, true},
		{"timestamp not reached", clienttypes.NewHeight(1, 50), 999, 1_000, false},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			p := packet
			p.TimeoutTimestamp = tc.packetTS
			require.Equal(t, tc.want, isTimedOut(p, tc.height, time.Unix(0, int64(tc.timestamp))))
		})
	}
}

func TestPacketInfoList(t *testing.T) {
	var list PacketInfoList
	for _, seq := range []uint64{3, 4, 5, 6, 7} {
		list = append(list, &PacketInfo{Packet: chantypes.Packet{Sequence: seq}})
	}
	require.Equal(t, []uint64{3, 4, 5, 6, 7}, list.ExtractSequenceList())
	require.Equal(t, []uint64{5, 6, 7}, list.Filter([]uint64{5, 6, 7, 8, 9}).ExtractSequenceList())
	require.Equal(t, []uint64{3, 4}, list.Subtract([]uint64{5, 6, 7, 8, 9}).ExtractSequenceList())
	require.Nil(t, PacketInfoList{}.ExtractSequenceList())
}

func TestConvertToTimeout(t *testing.T) {
	p := testPending(1)
	p.Status = StatusProofReady
	p.Attempts = 3
	p.convertToTimeout(clienttypes.NewHeight(0, 120))

	require.Equal(t, ObligationTimeout, p.Obligation)
	require.Equal(t, StatusTimedOut, p.Status)
	require.Equal(t, clienttypes.NewHeight(0, 120), p.RequiredHeight)
	require.Nil(t, p.Proof)
	require.Zero(t, p.Attempts)
}
