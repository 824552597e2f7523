package mock

import (
	"sort"
	"time"

	sdk "github.com/cosmos/cosmos-sdk/types"
	chantypes "github.com/cosmos/ibc-go/v8/modules/core/04-channel/types"
	host "github.com/cosmos/ibc-go/v8/modules/core/24-host"
	"github.com/hyperledger-labs/yui-packet-relayer/core"
)

func (c *Chain) QueryState(ctx core.QueryContext) (*core.ChainState, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	h, err := c.resolve(ctx.Height())
	if err != nil {
		return nil, err
	}
	return &core.ChainState{
		Height:    c.heightOf(h),
		Timestamp: c.BlockTime(h),
		AppHash:   c.appHash(h),
	}, nil
}

func (c *Chain) QueryProof(ctx core.QueryContext, path string) (*core.StateProof, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	h, err := c.resolve(ctx.Height())
	if err != nil {
		return nil, err
	}
	if h-1 < c.prunedBelow {
		return nil, &core.HeightNotFoundError{Height: ctx.Height(), Pruned: true}
	}
	c.calls.Record("%s.QueryProof %s@%d", c.chainID, path, h)

	proofHeight := c.heightOf(h)
	value := c.store.get(path, h-1)
	return &core.StateProof{
		Value:       value,
		Proof:       Proof(path, value, proofHeight),
		ProofHeight: proofHeight,
	}, nil
}

func (c *Chain) channel(end core.ChannelEnd) (*channel, error) {
	ch, ok := c.channels[channelKey(end.PortID, end.ChannelID)]
	if !ok || end.ChainID != c.chainID {
		return nil, core.NewRejectedError("channel %v not found", end)
	}
	return ch, nil
}

func (c *Chain) QueryChannel(ctx core.QueryContext, end core.ChannelEnd) (*chantypes.Channel, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if _, err := c.resolve(ctx.Height()); err != nil {
		return nil, err
	}
	ch, err := c.channel(end)
	if err != nil {
		return nil, err
	}
	return &chantypes.Channel{
		State:          ch.state,
		Ordering:       ch.order,
		Counterparty:   chantypes.NewCounterparty(ch.counterparty.PortID, ch.counterparty.ChannelID),
		ConnectionHops: []string{"connection-0"},
		Version:        "mock-1",
	}, nil
}

func (c *Chain) QueryNextSequenceReceive(ctx core.QueryContext, end core.ChannelEnd) (uint64, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	h, err := c.resolve(ctx.Height())
	if err != nil {
		return 0, err
	}
	if _, err := c.channel(end); err != nil {
		return 0, err
	}
	return c.nextSequenceRecv(end.PortID, end.ChannelID, func(path string) []byte { return c.store.get(path, h) }), nil
}

func (c *Chain) nextSequenceRecv(portID, channelID string, get func(string) []byte) uint64 {
	bz := get(host.NextSequenceRecvPath(portID, channelID))
	if len(bz) == 0 {
		return 1
	}
	return sdk.BigEndianToUint64(bz)
}

func (c *Chain) QueryUnfinalizedRelayPackets(ctx core.QueryContext, src core.ChannelEnd) (core.PacketInfoList, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	h, err := c.resolve(ctx.Height())
	if err != nil {
		return nil, err
	}
	ch, err := c.channel(src)
	if err != nil {
		return nil, err
	}
	var packets core.PacketInfoList
	for _, seq := range sortedKeys(ch.sent) {
		info := ch.sent[seq]
		if c.store.get(host.PacketCommitmentPath(src.PortID, src.ChannelID, seq), h) == nil {
			continue
		}
		cp := *info
		packets = append(packets, &cp)
	}
	return packets, nil
}

func (c *Chain) QueryUnreceivedPackets(ctx core.QueryContext, dst core.ChannelEnd, seqs []uint64) ([]uint64, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	h, err := c.resolve(ctx.Height())
	if err != nil {
		return nil, err
	}
	ch, err := c.channel(dst)
	if err != nil {
		return nil, err
	}
	get := func(path string) []byte { return c.store.get(path, h) }
	next := c.nextSequenceRecv(dst.PortID, dst.ChannelID, get)

	var unreceived []uint64
	for _, seq := range seqs {
		if ch.order == chantypes.ORDERED {
			if seq >= next {
				unreceived = append(unreceived, seq)
			}
		} else if get(host.PacketReceiptPath(dst.PortID, dst.ChannelID, seq)) == nil {
			unreceived = append(unreceived, seq)
		}
	}
	return unreceived, nil
}

func (c *Chain) QueryUnfinalizedRelayAcknowledgements(ctx core.QueryContext, dst core.ChannelEnd) (core.PacketInfoList, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	h, err := c.resolve(ctx.Height())
	if err != nil {
		return nil, err
	}
	ch, err := c.channel(dst)
	if err != nil {
		return nil, err
	}
	var packets core.PacketInfoList
	for _, seq := range sortedKeys(ch.acks) {
		info := ch.acks[seq]
		if info.EventHeight.RevisionHeight > h {
			continue
		}
		cp := *info
		packets = append(packets, &cp)
	}
	return packets, nil
}

func (c *Chain) QueryUnreceivedAcknowledgements(ctx core.QueryContext, src core.ChannelEnd, seqs []uint64) ([]uint64, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	h, err := c.resolve(ctx.Height())
	if err != nil {
		return nil, err
	}
	if _, err := c.channel(src); err != nil {
		return nil, err
	}
	var unreceived []uint64
	for _, seq := range seqs {
		if c.store.get(host.PacketCommitmentPath(src.PortID, src.ChannelID, seq), h) != nil {
			unreceived = append(unreceived, seq)
		}
	}
	return unreceived, nil
}

func (c *Chain) QueryClientTrustedState(ctx core.QueryContext, clientID string) (*core.TrustedState, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	cl, ok := c.clients[clientID]
	if !ok {
		return nil, core.NewRejectedError("client %s not found", clientID)
	}
	c.calls.Record("%s.QueryClientTrustedState %s@%v", c.chainID, clientID, cl.latest)
	return &core.TrustedState{
		ClientID:  clientID,
		Height:    cl.latest,
		Timestamp: time.Unix(0, int64(cl.consensus[cl.latest])).UTC(),
	}, nil
}

func sortedKeys(m map[uint64]*core.PacketInfo) []uint64 {
	keys := make([]uint64, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Slice(keys, func(i, j int) bool { return keys[i] < keys[j] })
	return keys
}
