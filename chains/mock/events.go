package mock

import (
	"context"

	abci "github.com/cometbft/cometbft/abci/types"
	"github.com/hyperledger-labs/yui-packet-relayer/core"
)

const subscriptionBuffer = 1024

// emit delivers the events of a block to every subscriber. A subscriber whose buffer is full misses them.
func (c *Chain) emit(height uint64, events []abci.Event) {
	for _, sub := range c.subscribers {
		for i, ev := range events {
			select {
			case sub <- core.ChainEvent{Height: c.heightOf(height), Index: uint64(i), Event: ev}:
			default:
			}
		}
	}
}

func (c *Chain) SubscribeEvents(ctx context.Context) (<-chan core.ChainEvent, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	id := c.nextSubID
	c.nextSubID++
	ch := make(chan core.ChainEvent, subscriptionBuffer)
	c.subscribers[id] = ch
	context.AfterFunc(ctx, func() {
		c.mu.Lock()
		defer c.mu.Unlock()
		c.unsubscribe(id)
	})
	return ch, nil
}

func (c *Chain) unsubscribe(id int) {
	if ch, ok := c.subscribers[id]; ok {
		close(ch)
		delete(c.subscribers, id)
	}
}

// DisconnectSubscribers closes every event stream as if the connection to the chain was lost
func (c *Chain) DisconnectSubscribers() {
	c.mu.Lock()
	defer c.mu.Unlock()
	for id := range c.subscribers {
		c.unsubscribe(id)
	}
}

// Subscribers returns the number of open event streams
func (c *Chain) Subscribers() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.subscribers)
}

// Replay delivers the events of a committed block again, as a reconnecting stream may do
func (c *Chain) Replay(height uint64) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.emit(height, c.events[height])
}

// Emit commits an empty block carrying events. It lets tests deliver events that no msg produces.
func (c *Chain) Emit(events ...abci.Event) uint64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.commit(nil, events)
}
