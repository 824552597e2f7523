package core

import (
	"context"

	lru "github.com/hashicorp/golang-lru"
	"github.com/hyperledger-labs/yui-packet-relayer/internal/telemetry"
	"github.com/hyperledger-labs/yui-packet-relayer/log"
	"go.opentelemetry.io/otel/attribute"
	api "go.opentelemetry.io/otel/metric"
)

const defaultDedupeCacheSize = 8192

type eventKey struct {
	chainID string
	height  string
	index   uint64
}

// EventMonitor subscribes to the events of one chain and delivers them to the relay paths
// registered for the channel ends of the chain.
type EventMonitor struct {
	chain   *ProvableChain
	routes  map[ChannelEnd][]*RelayPath
	paths   []*RelayPath
	seen    *lru.Cache
	backoff RetryPolicy
	logger  *log.RelayLogger
}

// NewEventMonitor returns a monitor of chain. It remembers the last dedupeSize events to drop replays.
func NewEventMonitor(chain *ProvableChain, dedupeSize int, backoff RetryPolicy) (*EventMonitor, error) {
	if dedupeSize <= 0 {
		dedupeSize = defaultDedupeCacheSize
	}
	if backoff == nil {
		backoff = ReconnectBackoff()
	}
	seen, err := lru.New(dedupeSize)
	if err != nil {
		return nil, err
	}
	if err := telemetry.InitializeMetrics(); err != nil {
		return nil, err
	}
	return &EventMonitor{
		chain:   chain,
		routes:  make(map[ChannelEnd][]*RelayPath),
		seen:    seen,
		backoff: backoff,
		logger:  GetChainLogger(chain.ChainID(), "core.event-monitor"),
	}, nil
}

// Register routes the events of the channel ends of rp on the monitored chain to rp
func (m *EventMonitor) Register(rp *RelayPath) {
	registered := false
	for _, end := range rp.Ends() {
		if end.ChainID != m.chain.ChainID() {
			continue
		}
		m.routes[end] = append(m.routes[end], rp)
		registered = true
	}
	if registered {
		m.paths = append(m.paths, rp)
	}
}

// Run consumes the event stream until ctx is done. When the stream is lost it resubscribes with backoff,
// and every registered path is asked to rescan because events may have been missed in between.
func (m *EventMonitor) Run(ctx context.Context) error {
	var (
		attempt   uint
		connected bool
	)
	for {
		events, err := m.chain.SubscribeEvents(ctx)
		if err == nil {
			if connected {
				m.logger.InfoContext(ctx, "event stream reconnected")
				telemetry.EventStreamReconnectsCounter.Add(ctx, 1, api.WithAttributes(attribute.String("chain_id", m.chain.ChainID())))
				m.requestRescan()
			}
			connected = true
			attempt = 0
			m.consume(ctx, events)
			if ctx.Err() != nil {
				return nil
			}
			m.logger.WarnContext(ctx, "event stream disconnected")
		} else {
			if ctx.Err() != nil {
				return nil
			}
			m.logger.ErrorContext(ctx, "failed to subscribe to events", err)
		}

		attempt++
		delay, _ := m.backoff.NextDelay(attempt)
		if err := wait(ctx, delay); err != nil {
			return nil
		}
	}
}

func (m *EventMonitor) consume(ctx context.Context, events <-chan ChainEvent) {
	for {
		select {
		case <-ctx.Done():
			return
		case ce, ok := <-events:
			if !ok {
				return
			}
			m.handle(ctx, ce)
		}
	}
}

func (m *EventMonitor) handle(ctx context.Context, ce ChainEvent) {
	key := eventKey{chainID: m.chain.ChainID(), height: ce.Height.String(), index: ce.Index}
	if found, _ := m.seen.ContainsOrAdd(key, struct{}{}); found {
		return
	}

	ev, ok, err := NormalizeEvent(m.chain.ChainID(), ce)
	if err != nil {
		// the event cannot be routed, so every path has to recover it from the chain
		m.logger.ErrorContext(ctx, "failed to normalize event", err, "height", ce.Height.String(), "index", ce.Index)
		m.requestRescan()
		return
	} else if !ok {
		return
	}

	for _, rp := range m.routes[ev.LocalEnd()] {
		rp.Deliver(ctx, ev)
	}
}

func (m *EventMonitor) requestRescan() {
	for _, rp := range m.paths {
		rp.RequestRescan()
	}
}
