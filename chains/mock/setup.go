package mock

import (
	"strings"
	"time"

	"github.com/cockroachdb/errors"
	abci "github.com/cometbft/cometbft/abci/types"
	sdk "github.com/cosmos/cosmos-sdk/types"
	clienttypes "github.com/cosmos/ibc-go/v8/modules/core/02-client/types"
	chantypes "github.com/cosmos/ibc-go/v8/modules/core/04-channel/types"
	host "github.com/cosmos/ibc-go/v8/modules/core/24-host"
	"github.com/hyperledger-labs/yui-packet-relayer/core"
)

const (
	DefaultClientID  = "mock-client-0"
	DefaultPortID    = "transfer"
	DefaultChannelID = "channel-0"
)

// Height returns the latest revision height
func (c *Chain) Height() uint64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.height
}

// Advance commits n empty blocks and returns the new height
func (c *Chain) Advance(n int) uint64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	for i := 0; i < n; i++ {
		c.commit(nil, nil)
	}
	return c.height
}

// AdvanceTo commits empty blocks until the chain reaches height
func (c *Chain) AdvanceTo(height uint64) uint64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	for c.height < height {
		c.commit(nil, nil)
	}
	return c.height
}

// CreateClient creates a client of the mock light client type that tracks counterpartyChainID,
// trusting the consensus state at height
func (c *Chain) CreateClient(clientID, counterpartyChainID string, height clienttypes.Height, timestamp time.Time) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.clients[clientID] = &client{
		counterpartyChainID: counterpartyChainID,
		latest:              height,
		consensus:           map[clienttypes.Height]uint64{height: uint64(timestamp.UnixNano())},
	}
}

// ClientHeight returns the latest height of a client
func (c *Chain) ClientHeight(clientID string) clienttypes.Height {
	c.mu.Lock()
	defer c.mu.Unlock()
	if cl, ok := c.clients[clientID]; ok {
		return cl.latest
	}
	return clienttypes.ZeroHeight()
}

// OpenChannel opens the local end of a channel whose counterparty is tracked by clientID
func (c *Chain) OpenChannel(local, counterparty core.ChannelEnd, clientID string, order chantypes.Order) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.channels[channelKey(local.PortID, local.ChannelID)] = &channel{
		end:          local,
		counterparty: counterparty,
		clientID:     clientID,
		order:        order,
		state:        chantypes.OPEN,
		nextSendSeq:  1,
		sent:         make(map[uint64]*core.PacketInfo),
		acks:         make(map[uint64]*core.PacketInfo),
	}
	ws := c.store.newWriteSet(c.height)
	ws.set(host.NextSequenceRecvPath(local.PortID, local.ChannelID), sdk.Uint64ToBigEndian(1))
	c.commit(ws, []abci.Event{core.ChannelEvent(core.EventChannelOpenConfirm, local, counterparty)})
}

// CloseChannel closes the local end of a channel
func (c *Chain) CloseChannel(end core.ChannelEnd) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	ch, err := c.channel(end)
	if err != nil {
		return err
	}
	ch.state = chantypes.CLOSED
	c.commit(nil, []abci.Event{core.ChannelEvent(core.EventChannelCloseInit, ch.end, ch.counterparty)})
	return nil
}

// SendPacket commits a packet on the channel end and returns it with the height of the block that includes it
func (c *Chain) SendPacket(end core.ChannelEnd, data []byte, timeoutHeight clienttypes.Height, timeoutTimestamp uint64) (chantypes.Packet, clienttypes.Height, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	ch, err := c.channel(end)
	if err != nil {
		return chantypes.Packet{}, clienttypes.Height{}, err
	}
	if ch.state != chantypes.OPEN {
		return chantypes.Packet{}, clienttypes.Height{}, errors.Newf("channel %v is not open", end)
	}
	seq := ch.nextSendSeq
	ch.nextSendSeq++
	packet := chantypes.NewPacket(data, seq,
		end.PortID, end.ChannelID,
		ch.counterparty.PortID, ch.counterparty.ChannelID,
		timeoutHeight, timeoutTimestamp,
	)

	height := c.heightOf(c.height + 1)
	ws := c.store.newWriteSet(c.height)
	ws.set(host.PacketCommitmentPath(end.PortID, end.ChannelID, seq), chantypes.CommitPacket(nil, packet))
	ch.sent[seq] = &core.PacketInfo{Packet: packet, EventHeight: height}
	c.commit(ws, []abci.Event{core.PacketEvent(core.EventSendPacket, packet, nil, ch.order)})
	return packet, height, nil
}

// InjectFaults queues outcomes for the next SendMsgs calls, one per call
func (c *Chain) InjectFaults(faults ...Fault) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.faults = append(c.faults, faults...)
}

// Applied returns the msgs of every committed transaction in order
func (c *Chain) Applied() [][]sdk.Msg {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([][]sdk.Msg{}, c.applied...)
}

// Prune makes heights below the given one unavailable for queries
func (c *Chain) Prune(below uint64) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.prunedBelow = below
}

// Connect creates a client of each chain on the other and opens a channel between them.
// The returned path has a as its src.
func Connect(a, b *Chain, order chantypes.Order) *core.Path {
	aEnd := core.ChannelEnd{ChainID: a.ChainID(), PortID: DefaultPortID, ChannelID: DefaultChannelID}
	bEnd := core.ChannelEnd{ChainID: b.ChainID(), PortID: DefaultPortID, ChannelID: DefaultChannelID}

	aHeight, bHeight := a.Height(), b.Height()
	a.CreateClient(DefaultClientID, b.ChainID(), b.heightOf(bHeight), b.BlockTime(bHeight))
	b.CreateClient(DefaultClientID, a.ChainID(), a.heightOf(aHeight), a.BlockTime(aHeight))
	a.OpenChannel(aEnd, bEnd, DefaultClientID, order)
	b.OpenChannel(bEnd, aEnd, DefaultClientID, order)

	orderName := strings.TrimPrefix(order.String(), "ORDER_")
	return &core.Path{
		Src: &core.PathEnd{ChainID: a.ChainID(), ClientID: DefaultClientID, ChannelID: DefaultChannelID, PortID: DefaultPortID, Order: orderName},
		Dst: &core.PathEnd{ChainID: b.ChainID(), ClientID: DefaultClientID, ChannelID: DefaultChannelID, PortID: DefaultPortID, Order: orderName},
	}
}
