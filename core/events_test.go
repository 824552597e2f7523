package core_test

import (
	"testing"

	abci "github.com/cometbft/cometbft/abci/types"
	chantypes "github.com/cosmos/ibc-go/v8/modules/core/04-channel/types"
	"github.com/stretchr/testify/require"

	"github.com/hyperledger-labs/yui-packet-relayer/core"
)

func testPacket(seq uint64) chantypes.Packet {
	return chantypes.NewPacket([]byte("data"), seq, "transfer", "channel-0", "transfer", "channel-1", height(100), 0)
}

func TestNormalizeEvent(t *testing.T) {
	packet := testPacket(7)
	ack := []byte(`{"result":"AQ=="}`)

	cases := []struct {
		name     string
		event    abci.Event
		wantOK   bool
		wantErr  bool
		wantKind core.EventKind
		wantEnd  core.ChannelEnd
	}{
		{
			name:     "send packet",
			event:    core.PacketEvent(core.EventSendPacket, packet, nil, chantypes.UNORDERED),
			wantOK:   true,
			wantKind: core.EventSendPacket,
			wantEnd:  core.ChannelEnd{ChainID: "chain-a", PortID: "transfer", ChannelID: "channel-0"},
		},
		{
			name:     "write acknowledgement",
			event:    core.PacketEvent(core.EventWriteAcknowledgement, packet, ack, chantypes.UNORDERED),
			wantOK:   true,
			wantKind: core.EventWriteAcknowledgement,
			wantEnd:  core.ChannelEnd{ChainID: "chain-a", PortID: "transfer", ChannelID: "channel-1"},
		},
		{
			name: "channel close",
			event: core.ChannelEvent(core.EventChannelCloseInit,
				core.ChannelEnd{PortID: "transfer", ChannelID: "channel-0"},
				core.ChannelEnd{PortID: "transfer", ChannelID: "channel-1"},
			),
			wantOK:   true,
			wantKind: core.EventChannelCloseInit,
			wantEnd:  core.ChannelEnd{ChainID: "chain-a", PortID: "transfer", ChannelID: "channel-0"},
		},
		{
			name:   "unrelated event",
			event:  abci.Event{Type: "transfer", Attributes: []abci.EventAttribute{{Key: "amount", Value: "1stake"}}},
			wantOK: false,
		},
		{
			name: "missing sequence",
			event: abci.Event{Type: chantypes.EventTypeSendPacket, Attributes: []abci.EventAttribute{
				{Key: chantypes.AttributeKeySrcPort, Value: "transfer"},
			}},
			wantErr: true,
		},
		{
			name: "malformed timeout height",
			event: abci.Event{Type: chantypes.EventTypeSendPacket, Attributes: []abci.EventAttribute{
				{Key: chantypes.AttributeKeySequence, Value: "1"},
				{Key: chantypes.AttributeKeyTimeoutHeight, Value: "not-a-height"},
			}},
			wantErr: true,
		},
		{
			name:    "acknowledgement without ack",
			event:   core.PacketEvent(core.EventWriteAcknowledgement, packet, nil, chantypes.UNORDERED),
			wantErr: true,
		},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			ev, ok, err := core.NormalizeEvent("chain-a", core.ChainEvent{Height: height(100), Index: 3, Event: tc.event})
			if tc.wantErr {
				require.Error(t, err)
				return
			}
			require.NoError(t, err)
			require.Equal(t, tc.wantOK, ok)
			if !ok {
				return
			}
			require.Equal(t, tc.wantKind, ev.Kind)
			require.Equal(t, tc.wantEnd, ev.LocalEnd())
			require.Equal(t, height(100), ev.Height)
			require.Equal(t, uint64(3), ev.Index)
		})
	}
}

func TestNormalizeEventPacket(t *testing.T) {
	packet := testPacket(7)
	packet.TimeoutTimestamp = 1_700_000_000_000_000_000
	ack := []byte{0x01, 0x02}

	ev, ok, err := core.NormalizeEvent("chain-b", core.ChainEvent{
		Height: height(42),
		Event:  core.PacketEvent(core.EventWriteAcknowledgement, packet, ack, chantypes.ORDERED),
	})
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, packet, ev.Packet)
	require.Equal(t, ack, ev.Acknowledgement)
	require.Equal(t, chantypes.ORDERED, ev.Ordering)

	info := ev.PacketInfo()
	require.Equal(t, height(42), info.EventHeight)
	require.Equal(t, ack, info.Acknowledgement)
}

func TestEventKind(t *testing.T) {
	require.Equal(t, chantypes.EventTypeSendPacket, core.EventSendPacket.String())
	require.True(t, core.EventTimeoutPacket.IsPacketEvent())
	require.False(t, core.EventChannelCloseConfirm.IsPacketEvent())
}
