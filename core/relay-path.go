package core

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/cockroachdb/errors"
	dbm "github.com/cometbft/cometbft-db"
	clienttypes "github.com/cosmos/ibc-go/v8/modules/core/02-client/types"
	chantypes "github.com/cosmos/ibc-go/v8/modules/core/04-channel/types"
	"github.com/hyperledger-labs/yui-packet-relayer/internal/telemetry"
	"github.com/hyperledger-labs/yui-packet-relayer/log"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	api "go.opentelemetry.io/otel/metric"
)

const (
	defaultRescanInterval = time.Minute
	defaultInboxSize      = 1024
	defaultBlockTimeout   = 5 * time.Second
	defaultShutdownGrace  = 10 * time.Second
	defaultCallTimeout    = 30 * time.Second

	outcomeHistoryLimit = 1024
)

// RelayPathConfig holds the tunables of a RelayPath. Zero values are replaced with defaults.
type RelayPathConfig struct {
	// RescanInterval is the period of full backlog reconciliation
	RescanInterval time.Duration
	// InboxSize is the capacity of the event channel, the backpressure point of the path
	InboxSize int
	// BlockTimeout bounds how long a delivery blocks on a full inbox before the event is dropped
	BlockTimeout time.Duration
	// ShutdownGrace bounds how long in-flight work continues after shutdown is signalled
	ShutdownGrace time.Duration
	// CallTimeout bounds every endpoint call made by the path
	CallTimeout time.Duration

	RelayMsgs RelayMsgs
	Retry     RetryPolicy

	// TrustDB persists trusted states. A MemDB is used if nil.
	TrustDB dbm.DB
	// Clock returns the current time. time.Now is used if nil.
	Clock func() time.Time
}

func (c RelayPathConfig) withDefaults() RelayPathConfig {
	if c.RescanInterval <= 0 {
		c.RescanInterval = defaultRescanInterval
	}
	if c.InboxSize <= 0 {
		c.InboxSize = defaultInboxSize
	}
	if c.BlockTimeout <= 0 {
		c.BlockTimeout = defaultBlockTimeout
	}
	if c.ShutdownGrace <= 0 {
		c.ShutdownGrace = defaultShutdownGrace
	}
	if c.CallTimeout <= 0 {
		c.CallTimeout = defaultCallTimeout
	}
	if c.Retry == nil {
		c.Retry = DefaultRetryPolicy()
	}
	if c.Clock == nil {
		c.Clock = time.Now
	}
	return c
}

// direction relays the packets sent from src.
// Recv obligations are submitted to dst and proven from src.
// Ack and Timeout obligations are submitted to src and proven from dst.
type direction struct {
	src, dst       *ProvableChain
	srcEnd, dstEnd *PathEnd
	backlog        *Backlog

	// queryHeight is the height of src at which packet data is queried. Zero means latest.
	queryHeight clienttypes.Height
	closed      bool
}

func (d *direction) String() string {
	return fmt.Sprintf("%s->%s", d.srcEnd.ChainID, d.dstEnd.ChainID)
}

func (d *direction) ordered() bool {
	return d.srcEnd.ChannelOrder() == chantypes.ORDERED
}

// PathSnapshot is a read-only copy of the state of a RelayPath
type PathSnapshot struct {
	Name     string                  `json:"name"`
	Pending  []PacketOutcome         `json:"pending"`
	Resolved []PacketOutcome         `json:"resolved"`
	Trusted  map[string]TrustedState `json:"trusted"`
	Closed   bool                    `json:"closed"`
}

// RelayPath relays packets over one channel. Its backlog and trusted states are owned by
// the task running it: other tasks observe them only through Snapshot.
type RelayPath struct {
	name string
	path *Path
	dirs []*direction
	cfg  RelayPathConfig

	trust       *TrustStore
	forceUpdate map[string]bool
	resolved    []PacketOutcome

	inbox     chan *RelayEvent
	wake      chan struct{}
	snapshots chan chan PathSnapshot
	rescan    atomic.Bool
	mu        sync.Mutex

	// done is closed when the current Run returns. It is nil while the path is not running.
	done   chan struct{}
	doneMu sync.Mutex

	logger *log.RelayLogger
}

// NewRelayPath returns a path that relays packets in both directions of path.
// chains must contain the chains of both ends.
func NewRelayPath(name string, path *Path, chains map[string]*ProvableChain, cfg RelayPathConfig) (*RelayPath, error) {
	src, dst, err := pathChains(path, chains)
	if err != nil {
		return nil, err
	}
	rp, err := newRelayPath(name, path, cfg)
	if err != nil {
		return nil, err
	}
	rp.dirs = []*direction{
		{src: src, dst: dst, srcEnd: path.Src, dstEnd: path.Dst, backlog: NewBacklog()},
		{src: dst, dst: src, srcEnd: path.Dst, dstEnd: path.Src, backlog: NewBacklog()},
	}
	return rp, nil
}

// NewOneWayRelayPath returns a path that only relays the packets sent from path.Src.
// Packet data is queried at queryHeight of the source, or at the latest height if it is zero.
func NewOneWayRelayPath(name string, path *Path, chains map[string]*ProvableChain, queryHeight clienttypes.Height, cfg RelayPathConfig) (*RelayPath, error) {
	src, dst, err := pathChains(path, chains)
	if err != nil {
		return nil, err
	}
	rp, err := newRelayPath(name, path, cfg)
	if err != nil {
		return nil, err
	}
	rp.dirs = []*direction{
		{src: src, dst: dst, srcEnd: path.Src, dstEnd: path.Dst, backlog: NewBacklog(), queryHeight: queryHeight},
	}
	return rp, nil
}

func pathChains(path *Path, chains map[string]*ProvableChain) (*ProvableChain, *ProvableChain, error) {
	if err := path.Validate(); err != nil {
		return nil, nil, err
	}
	src, ok := chains[path.Src.ChainID]
	if !ok {
		return nil, nil, errors.Newf("chain %s not found", path.Src.ChainID)
	}
	dst, ok := chains[path.Dst.ChainID]
	if !ok {
		return nil, nil, errors.Newf("chain %s not found", path.Dst.ChainID)
	}
	return src, dst, nil
}

func newRelayPath(name string, path *Path, cfg RelayPathConfig) (*RelayPath, error) {
	if err := telemetry.InitializeMetrics(); err != nil {
		return nil, err
	}
	cfg = cfg.withDefaults()
	return &RelayPath{
		name:        name,
		path:        path,
		cfg:         cfg,
		trust:       NewTrustStore(cfg.TrustDB, "trust/"+name, 0),
		forceUpdate: make(map[string]bool),
		inbox:       make(chan *RelayEvent, cfg.InboxSize),
		wake:        make(chan struct{}, 1),
		snapshots:   make(chan chan PathSnapshot),
		logger:      GetPathLogger(name, path),
	}, nil
}

// Name returns the configured name of the path
func (rp *RelayPath) Name() string {
	return rp.name
}

// Ends returns the channel ends whose events concern the path
func (rp *RelayPath) Ends() []ChannelEnd {
	return []ChannelEnd{rp.path.Src.ChannelEnd(), rp.path.Dst.ChannelEnd()}
}

// Deliver hands ev to the path. If the inbox stays full for BlockTimeout, ev is dropped
// and a full rescan is requested instead, so no event is lost without compensation.
func (rp *RelayPath) Deliver(ctx context.Context, ev *RelayEvent) bool {
	select {
	case rp.inbox <- ev:
		return true
	default:
	}

	timer := time.NewTimer(rp.cfg.BlockTimeout)
	defer timer.Stop()
	select {
	case rp.inbox <- ev:
		return true
	case <-timer.C:
	case <-ctx.Done():
	}

	rp.logger.WarnContext(ctx, "relay path is saturated; dropping event and requesting a rescan", "event", ev.String())
	telemetry.DroppedEventsCounter.Add(context.Background(), 1, api.WithAttributes(rp.metricAttributes()...))
	rp.RequestRescan()
	return false
}

// RequestRescan makes the next cycle reconcile the whole backlog with the chains
func (rp *RelayPath) RequestRescan() {
	rp.rescan.Store(true)
	select {
	case rp.wake <- struct{}{}:
	default:
	}
}

// Snapshot returns a copy of the state of the path.
// While the path runs, the copy is taken by the path task between cycles.
func (rp *RelayPath) Snapshot(ctx context.Context) (PathSnapshot, error) {
	rp.doneMu.Lock()
	done := rp.done
	rp.doneMu.Unlock()
	if done != nil {
		req := make(chan PathSnapshot, 1)
		select {
		case rp.snapshots <- req:
			select {
			case s := <-req:
				return s, nil
			case <-ctx.Done():
				return PathSnapshot{}, ctx.Err()
			}
		case <-done:
			// Run returned before taking the request
		case <-ctx.Done():
			return PathSnapshot{}, ctx.Err()
		}
	}
	rp.mu.Lock()
	defer rp.mu.Unlock()
	return rp.snapshot(), nil
}

func (rp *RelayPath) snapshot() PathSnapshot {
	s := PathSnapshot{
		Name:     rp.name,
		Resolved: append([]PacketOutcome{}, rp.resolved...),
		Trusted:  rp.trust.Snapshot(),
	}
	for _, d := range rp.dirs {
		s.Pending = append(s.Pending, d.backlog.Outcomes()...)
		s.Closed = s.Closed || d.closed
	}
	return s
}

// Report returns the outcome of every packet handled so far followed by the pending ones.
// It must not be called while Run is active; use Snapshot instead.
func (rp *RelayPath) Report() []PacketOutcome {
	rp.mu.Lock()
	defer rp.mu.Unlock()
	s := rp.snapshot()
	return append(s.Resolved, s.Pending...)
}

// start marks the path as running. The returned func marks it stopped.
func (rp *RelayPath) start() (func(), error) {
	rp.doneMu.Lock()
	defer rp.doneMu.Unlock()
	if rp.done != nil {
		return nil, errors.Newf("relay path %s is already running", rp.name)
	}
	done := make(chan struct{})
	rp.done = done
	return func() {
		rp.doneMu.Lock()
		defer rp.doneMu.Unlock()
		rp.done = nil
		close(done)
	}, nil
}

// Run processes events and periodic rescans until ctx is done.
// Once ctx is done no new submission is started, and calls already in flight
// may continue for ShutdownGrace before they are abandoned.
func (rp *RelayPath) Run(ctx context.Context) error {
	stopped, err := rp.start()
	if err != nil {
		return err
	}
	defer stopped()

	workCtx, cancel := context.WithCancel(context.WithoutCancel(ctx))
	defer cancel()
	stop := context.AfterFunc(ctx, func() {
		time.AfterFunc(rp.cfg.ShutdownGrace, cancel)
	})
	defer stop()

	ticker := time.NewTicker(rp.cfg.RescanInterval)
	defer ticker.Stop()

	full := true
	for {
		rp.drainInbox()
		// errors are logged by the cycle and retried by the next one
		rp.runCycle(ctx, workCtx, full)
		if ctx.Err() != nil {
			rp.logger.InfoContext(workCtx, "relay path stopped")
			return nil
		}
		var ok bool
		if full, ok = rp.waitForTrigger(ctx, ticker.C); !ok {
			rp.logger.InfoContext(workCtx, "relay path stopped")
			return nil
		}
	}
}

// waitForTrigger blocks until the next cycle is due and reports whether it is a full one.
// Snapshot requests are answered while waiting.
func (rp *RelayPath) waitForTrigger(ctx context.Context, tick <-chan time.Time) (full bool, ok bool) {
	for {
		select {
		case <-ctx.Done():
			return false, false
		case ev := <-rp.inbox:
			rp.mergeEvents(ev)
			return false, true
		case <-rp.wake:
			return false, true
		case <-tick:
			return true, true
		case req := <-rp.snapshots:
			rp.mu.Lock()
			req <- rp.snapshot()
			rp.mu.Unlock()
		}
	}
}

// RunOnce reconciles the backlog with the chains and relays until every packet is resolved
// or failed. It returns the report of the path with an error when ctx is done, when a client
// cannot be verified, or when rtyAttNum consecutive cycles were stalled by the chains.
func (rp *RelayPath) RunOnce(ctx context.Context) ([]PacketOutcome, error) {
	var (
		full   = true
		stalls uint
	)
	for {
		c := rp.runCycle(ctx, ctx, full)
		if err := ctx.Err(); err != nil {
			return rp.Report(), err
		}
		switch {
		case c.stalled == nil:
			stalls = 0
		case errors.Is(c.stalled, ErrVerification), errors.Is(c.stalled, ErrInvalidHeader):
			return rp.Report(), c.stalled
		default:
			if stalls++; stalls >= rtyAttNum {
				return rp.Report(), errors.Wrapf(c.stalled, "relay path %s stalled for %d cycles", rp.name, stalls)
			}
		}
		full = false

		next, pending := rp.nextWakeup()
		if !pending {
			return rp.Report(), nil
		}
		if err := wait(ctx, next); err != nil {
			return rp.Report(), err
		}
	}
}

// Scan reconciles the backlog with the chains without submitting anything
func (rp *RelayPath) Scan(ctx context.Context) error {
	rp.mu.Lock()
	defer rp.mu.Unlock()
	rp.rescan.Store(false)
	var errs []error
	for _, d := range rp.dirs {
		errs = append(errs, rp.reconcile(ctx, d))
	}
	rp.updateMetrics()
	return errors.Join(errs...)
}

// nextWakeup returns how long to wait until a pending packet may progress
func (rp *RelayPath) nextWakeup() (time.Duration, bool) {
	rp.mu.Lock()
	defer rp.mu.Unlock()
	now := rp.cfg.Clock()
	var (
		// a requested rescan, e.g. after a failed reconcile, is pending work
		pending = rp.rescan.Load()
		delay   = rp.cfg.RescanInterval
	)
	for _, d := range rp.dirs {
		d.backlog.Ascend(func(p *PendingPacket) bool {
			if p.Status.IsTerminal() {
				return true
			}
			pending = true
			if p.NextAttempt.After(now) && p.NextAttempt.Sub(now) < delay {
				delay = p.NextAttempt.Sub(now)
			}
			return true
		})
	}
	if delay > time.Second && pending {
		// headers and proofs of new blocks are polled at a finer grain than rescans
		delay = time.Second
	}
	return delay, pending
}

// drainInbox merges all events that are already queued
func (rp *RelayPath) drainInbox() {
	for {
		select {
		case ev := <-rp.inbox:
			rp.mergeEvents(ev)
		default:
			return
		}
	}
}

// cycle is the state of one pass over the backlog
type cycle struct {
	// stop is done once no new work may start. Calls already made run on their own context.
	stop context.Context
	// err is the first error of the cycle
	err error
	// stalled is the first error that kept the path from progressing.
	// Submission outcomes are handled by the retry policy of each packet and are not recorded here.
	stalled error
}

func (c *cycle) stopped() bool {
	return c.stop.Err() != nil
}

func (c *cycle) record(err error) {
	if err != nil && c.err == nil {
		c.err = err
	}
}

func (c *cycle) stall(err error) {
	c.record(err)
	if err != nil && c.stalled == nil {
		c.stalled = err
	}
}

// RunCycle executes one scan cycle: reconcile (if full or requested), convert timeouts,
// then relay each obligation group of each direction.
// An error aborts only the group it occurred in; the first one is returned.
func (rp *RelayPath) RunCycle(ctx context.Context, full bool) error {
	return rp.runCycle(ctx, ctx, full).err
}

// runCycle makes calls on ctx and starts no new group or submission once stop is done
func (rp *RelayPath) runCycle(stop, ctx context.Context, full bool) *cycle {
	rp.mu.Lock()
	defer rp.mu.Unlock()

	ctx, span := tracer.Start(ctx, "RelayPath.RunCycle",
		WithChannelAttributes(rp.path.Src.ChannelEnd(), rp.path.Dst.ChannelEnd()),
	)
	defer span.End()

	if rp.rescan.Swap(false) {
		full = true
	}

	c := &cycle{stop: stop}
	for _, d := range rp.dirs {
		if c.stopped() {
			break
		}
		if full {
			if err := rp.reconcile(ctx, d); err != nil {
				rp.logger.ErrorContext(ctx, "failed to reconcile backlog", err, "direction", d.String())
				c.stall(err)
				// the packets known so far are still relayed and the next cycle reconciles again
				rp.rescan.Store(true)
			}
			if c.stopped() {
				break
			}
		}
		if err := rp.relayDirection(ctx, c, d); err != nil {
			rp.logger.ErrorContext(ctx, "failed to relay packets", err, "direction", d.String())
			c.stall(err)
		}
	}
	rp.updateMetrics()

	if c.err != nil {
		span.SetStatus(codes.Error, c.err.Error())
	}
	return c
}

// resolve removes p from the backlog and records its final outcome
func (rp *RelayPath) resolve(d *direction, p *PendingPacket, status PacketStatus, reason string) {
	d.backlog.Remove(p.Key.Sequence)
	p.Status = status
	if reason != "" {
		p.Reason = reason
	}
	rp.resolved = append(rp.resolved, p.outcome())
	if n := len(rp.resolved); n > outcomeHistoryLimit {
		rp.resolved = append([]PacketOutcome{}, rp.resolved[n-outcomeHistoryLimit:]...)
	}
}

func (rp *RelayPath) fail(p *PendingPacket, reason string) {
	p.resetProof()
	p.Status = StatusFailed
	p.Reason = reason
	rp.logger.Warn("packet failed", "sequence", p.Key.Sequence, "obligation", p.Obligation.String(), "reason", reason)
}

func (rp *RelayPath) metricAttributes(attrs ...attribute.KeyValue) []attribute.KeyValue {
	return append([]attribute.KeyValue{attribute.String("path", rp.name)}, attrs...)
}

func (rp *RelayPath) updateMetrics() {
	for _, d := range rp.dirs {
		attrs := rp.metricAttributes(attribute.String("direction", d.String()))
		telemetry.BacklogSizeGauge.Set(int64(d.backlog.Len()), attrs...)

		var oldest time.Time
		d.backlog.Ascend(func(p *PendingPacket) bool {
			if oldest.IsZero() || p.ObservedAt.Before(oldest) {
				oldest = p.ObservedAt
			}
			return true
		})
		if oldest.IsZero() {
			telemetry.BacklogOldestTimestampGauge.Set(0, attrs...)
		} else {
			telemetry.BacklogOldestTimestampGauge.Set(oldest.UnixNano(), attrs...)
		}
	}
}
