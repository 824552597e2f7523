package tendermint

import (
	"context"
	"time"

	"github.com/cockroachdb/errors"
	cmttypes "github.com/cometbft/cometbft/types"

	"github.com/hyperledger-labs/yui-packet-relayer/core"
)

const (
	subscriber        = "yui-packet-relayer"
	subscriptionQuery = "tm.event='Tx'"
	subscriptionCap   = 1000
)

// eventIndex orders an event within its block by the position of its tx and the event in it
func eventIndex(txIndex uint32, eventIndex int) uint64 {
	return uint64(txIndex)<<20 | uint64(eventIndex)
}

func timeFromUnixNano(ns uint64) time.Time {
	return time.Unix(0, int64(ns)).UTC()
}

// SubscribeEvents subscribes to the txs committed on the node over its websocket endpoint
func (c *Chain) SubscribeEvents(ctx context.Context) (<-chan core.ChainEvent, error) {
	if !c.client.IsRunning() {
		if err := c.client.Start(); err != nil {
			return nil, errors.Mark(errors.Wrapf(err, "failed to start the websocket client of %s", c.ChainID()), core.ErrChainUnavailable)
		}
	}
	in, err := c.client.Subscribe(ctx, subscriber, subscriptionQuery, subscriptionCap)
	if err != nil {
		return nil, errors.Mark(errors.Wrapf(err, "failed to subscribe to %s", c.ChainID()), core.ErrChainUnavailable)
	}

	out := make(chan core.ChainEvent, subscriptionCap)
	go func() {
		defer close(out)
		defer func() {
			// the subscription context is done, so unsubscribe with a fresh one
			uctx, cancel := context.WithTimeout(context.Background(), c.timeout)
			defer cancel()
			if err := c.client.Unsubscribe(uctx, subscriber, subscriptionQuery); err != nil {
				c.logger.Warn("failed to unsubscribe", "error", err)
			}
		}()
		for {
			select {
			case <-ctx.Done():
				return
			case res, ok := <-in:
				if !ok {
					return
				}
				data, ok := res.Data.(cmttypes.EventDataTx)
				if !ok {
					continue
				}
				height := c.height(data.Height)
				for i, ev := range data.Result.Events {
					select {
					case out <- core.ChainEvent{Height: height, Index: eventIndex(data.Index, i), Event: ev}:
					case <-ctx.Done():
						return
					}
				}
			}
		}
	}()
	return out, nil
}
