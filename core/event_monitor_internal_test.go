package core

import (
	"context"
	"testing"
	"time"

	clienttypes "github.com/cosmos/ibc-go/v8/modules/core/02-client/types"
	chantypes "github.com/cosmos/ibc-go/v8/modules/core/04-channel/types"
	"github.com/stretchr/testify/require"
)

// streamChain hands out event streams that the test controls
type streamChain struct {
	Chain
	chainID string
	streams chan chan ChainEvent
}

func (c *streamChain) ChainID() string {
	return c.chainID
}

func (c *streamChain) SubscribeEvents(ctx context.Context) (<-chan ChainEvent, error) {
	ch := make(chan ChainEvent, 16)
	select {
	case c.streams <- ch:
		return ch, nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

func testRelayPath(t *testing.T, cfg RelayPathConfig) *RelayPath {
	path := &Path{
		Src: &PathEnd{ChainID: "chain-a", ClientID: "mock-client-0", ChannelID: "channel-0", PortID: "transfer", Order: "unordered"},
		Dst: &PathEnd{ChainID: "chain-b", ClientID: "mock-client-0", ChannelID: "channel-0", PortID: "transfer", Order: "unordered"},
	}
	rp, err := newRelayPath("test", path, cfg)
	require.NoError(t, err)
	return rp
}

func sendEvent(seq uint64, height uint64) ChainEvent {
	packet := chantypes.NewPacket([]byte("data"), seq, "transfer", "channel-0", "transfer", "channel-0", clienttypes.NewHeight(0, 1000), 0)
	return ChainEvent{
		Height: clienttypes.NewHeight(0, height),
		Index:  0,
		Event:  PacketEvent(EventSendPacket, packet, nil, chantypes.UNORDERED),
	}
}

func newTestMonitor(t *testing.T, chain *streamChain) *EventMonitor {
	m, err := NewEventMonitor(&ProvableChain{Chain: chain}, 16, &ExponentialBackoff{Base: time.Millisecond, Max: time.Millisecond})
	require.NoError(t, err)
	return m
}

func TestEventMonitorDedupe(t *testing.T) {
	chain := &streamChain{chainID: "chain-a"}
	m := newTestMonitor(t, chain)
	rp := testRelayPath(t, RelayPathConfig{})
	m.Register(rp)

	ctx := context.Background()
	m.handle(ctx, sendEvent(1, 10))
	m.handle(ctx, sendEvent(1, 10))
	m.handle(ctx, sendEvent(2, 11))
	require.Len(t, rp.inbox, 2)

	ev := <-rp.inbox
	require.Equal(t, uint64(1), ev.Packet.Sequence)
}

func TestEventMonitorRoutesByChannel(t *testing.T) {
	chain := &streamChain{chainID: "chain-a"}
	m := newTestMonitor(t, chain)
	rp := testRelayPath(t, RelayPathConfig{})
	m.Register(rp)

	ce := sendEvent(1, 10)
	ce.Event = PacketEvent(EventSendPacket,
		chantypes.NewPacket([]byte("data"), 1, "transfer", "channel-9", "transfer", "channel-0", clienttypes.NewHeight(0, 1000), 0),
		nil, chantypes.UNORDERED)
	m.handle(context.Background(), ce)
	require.Empty(t, rp.inbox)
}

func TestEventMonitorMalformedEventRequestsRescan(t *testing.T) {
	chain := &streamChain{chainID: "chain-a"}
	m := newTestMonitor(t, chain)
	rp := testRelayPath(t, RelayPathConfig{})
	m.Register(rp)

	ce := sendEvent(1, 10)
	ce.Event.Attributes = ce.Event.Attributes[:1]
	m.handle(context.Background(), ce)
	require.Empty(t, rp.inbox)
	require.True(t, rp.rescan.Load())
}

func TestEventMonitorReconnect(t *testing.T) {
	chain := &streamChain{chainID: "chain-a", streams: make(chan chan ChainEvent)}
	m := newTestMonitor(t, chain)
	rp := testRelayPath(t, RelayPathConfig{})
	m.Register(rp)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- m.Run(ctx) }()

	first := <-chain.streams
	first <- sendEvent(1, 10)
	require.Eventually(t, func() bool { return len(rp.inbox) == 1 }, time.Second, time.Millisecond)
	require.False(t, rp.rescan.Load())

	// the stream is lost: the monitor resubscribes and asks for a rescan
	close(first)
	second := <-chain.streams
	require.Eventually(t, rp.rescan.Load, time.Second, time.Millisecond)

	// a replayed event is not delivered twice
	second <- sendEvent(1, 10)
	second <- sendEvent(2, 11)
	require.Eventually(t, func() bool { return len(rp.inbox) == 2 }, time.Second, time.Millisecond)

	cancel()
	require.NoError(t, <-done)
}

func TestDeliverSaturated(t *testing.T) {
	rp := testRelayPath(t, RelayPathConfig{InboxSize: 1, BlockTimeout: time.Millisecond})
	ev, ok, err := NormalizeEvent("chain-a", sendEvent(1, 10))
	require.NoError(t, err)
	require.True(t, ok)

	require.True(t, rp.Deliver(context.Background(), ev))
	require.False(t, rp.rescan.Load())
	require.False(t, rp.Deliver(context.Background(), ev))
	require.True(t, rp.rescan.Load(), "a dropped event is compensated by a rescan")
}
