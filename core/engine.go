package core

import (
	"context"
	"sort"

	retry "github.com/avast/retry-go"
	"github.com/cockroachdb/errors"
	"github.com/hyperledger-labs/yui-packet-relayer/log"
	"golang.org/x/sync/errgroup"
)

// EngineConfig holds the tunables of an Engine
type EngineConfig struct {
	Path RelayPathConfig
	// DedupeCacheSize is the number of recent events each monitor remembers
	DedupeCacheSize int
	// Reconnect is the backoff of event stream resubscription
	Reconnect RetryPolicy
}

// Engine supervises one RelayPath per configured path and one EventMonitor per chain.
type Engine struct {
	chains   map[string]*ProvableChain
	paths    map[string]*RelayPath
	names    []string
	monitors []*EventMonitor
	logger   *log.RelayLogger
}

// NewEngine instantiates the relay paths of paths over chains
func NewEngine(chains map[string]*ProvableChain, paths Paths, cfg EngineConfig) (*Engine, error) {
	e := &Engine{
		chains: chains,
		paths:  make(map[string]*RelayPath, len(paths)),
		logger: log.GetLogger().WithModule("core.engine"),
	}
	for name := range paths {
		e.names = append(e.names, name)
	}
	sort.Strings(e.names)

	monitors := make(map[string]*EventMonitor)
	for _, name := range e.names {
		rp, err := NewRelayPath(name, paths[name], chains, cfg.Path)
		if err != nil {
			return nil, errors.Wrapf(err, "failed to create relay path %s", name)
		}
		e.paths[name] = rp

		for _, end := range rp.Ends() {
			m, ok := monitors[end.ChainID]
			if !ok {
				if m, err = NewEventMonitor(chains[end.ChainID], cfg.DedupeCacheSize, cfg.Reconnect); err != nil {
					return nil, err
				}
				monitors[end.ChainID] = m
				e.monitors = append(e.monitors, m)
			}
			m.Register(rp)
		}
	}
	return e, nil
}

// Path returns the relay path with the name
func (e *Engine) Path(name string) (*RelayPath, bool) {
	rp, ok := e.paths[name]
	return rp, ok
}

// CheckReachability returns an error wrapping ErrChainUnavailable if any chain cannot be reached
func (e *Engine) CheckReachability(ctx context.Context) error {
	return CheckReachability(ctx, e.chains)
}

// CheckReachability probes the latest height of every chain with retries
func CheckReachability(ctx context.Context, chains map[string]*ProvableChain) error {
	logger := log.GetLogger().WithModule("core.engine")
	eg, egCtx := errgroup.WithContext(ctx)
	for chainID, chain := range chains {
		chainID, chain := chainID, chain
		eg.Go(func() error {
			if err := retry.Do(func() error {
				_, err := chain.LatestHeight(egCtx)
				return err
			}, rtyAtt, rtyDel, rtyErr, retry.Context(egCtx), retry.OnRetry(func(n uint, err error) {
				logger.InfoContext(egCtx,
					"retrying to reach chain",
					"chain_id", chainID,
					"try", n+1,
					"try_limit", rtyAttNum,
					"error", err.Error(),
				)
			})); err != nil {
				return errors.Mark(errors.Wrapf(err, "chain %s is unreachable", chainID), ErrChainUnavailable)
			}
			return nil
		})
	}
	return eg.Wait()
}

// Run starts every monitor and path and blocks until ctx is done and all of them have stopped.
// In-flight submissions of each path are given its shutdown grace period.
func (e *Engine) Run(ctx context.Context) error {
	if err := e.CheckReachability(ctx); err != nil {
		return err
	}
	e.logger.InfoContext(ctx, "starting relay engine", "paths", e.names)

	var eg errgroup.Group
	for _, m := range e.monitors {
		m := m
		eg.Go(func() error { return m.Run(ctx) })
	}
	for _, name := range e.names {
		rp := e.paths[name]
		eg.Go(func() error { return rp.Run(ctx) })
	}
	err := eg.Wait()
	e.logger.InfoContext(context.WithoutCancel(ctx), "relay engine stopped")
	return err
}

// Snapshot returns read-only snapshots of every path
func (e *Engine) Snapshot(ctx context.Context) ([]PathSnapshot, error) {
	snapshots := make([]PathSnapshot, 0, len(e.names))
	for _, name := range e.names {
		s, err := e.paths[name].Snapshot(ctx)
		if err != nil {
			return nil, err
		}
		snapshots = append(snapshots, s)
	}
	return snapshots, nil
}
