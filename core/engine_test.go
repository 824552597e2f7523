package core_test

import (
	"context"
	"testing"
	"time"

	"github.com/cockroachdb/errors"
	clienttypes "github.com/cosmos/ibc-go/v8/modules/core/02-client/types"
	chantypes "github.com/cosmos/ibc-go/v8/modules/core/04-channel/types"
	"github.com/stretchr/testify/require"

	"github.com/hyperledger-labs/yui-packet-relayer/core"
)

// unreachableChain fails every height query
type unreachableChain struct {
	core.Chain
}

func (c unreachableChain) LatestHeight(ctx context.Context) (height clienttypes.Height, err error) {
	return height, errors.Wrap(core.ErrChainUnavailable, "connection refused")
}

func resolvedObligations(snapshots []core.PathSnapshot) map[core.Obligation]core.PacketStatus {
	out := make(map[core.Obligation]core.PacketStatus)
	for _, s := range snapshots {
		for _, o := range s.Resolved {
			out[o.Obligation] = o.Status
		}
	}
	return out
}

func TestEngineRelaysFromEvents(t *testing.T) {
	env := newTestEnv(t, chantypes.UNORDERED)
	engine, err := core.NewEngine(env.chains, core.Paths{"a-b": env.path}, core.EngineConfig{
		Path: core.RelayPathConfig{RescanInterval: 20 * time.Millisecond},
	})
	require.NoError(t, err)
	rp, ok := engine.Path("a-b")
	require.True(t, ok)
	require.Equal(t, "a-b", rp.Name())

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- engine.Run(ctx) }()

	require.Eventually(t, func() bool {
		return env.a.Subscribers() == 1 && env.b.Subscribers() == 1
	}, 5*time.Second, 10*time.Millisecond)

	env.send(t, "hello")
	require.Eventually(t, func() bool {
		// new blocks make the packet and then its acknowledgement provable
		env.a.Advance(1)
		env.b.Advance(1)
		snapshots, err := engine.Snapshot(ctx)
		if err != nil {
			return false
		}
		resolved := resolvedObligations(snapshots)
		return resolved[core.ObligationRecv] == core.StatusConfirmed && resolved[core.ObligationAck] == core.StatusConfirmed
	}, 10*time.Second, 20*time.Millisecond)

	snapshots, err := engine.Snapshot(ctx)
	require.NoError(t, err)
	require.Len(t, snapshots, 1)
	require.Empty(t, snapshots[0].Pending)

	cancel()
	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(10 * time.Second):
		t.Fatal("engine did not stop")
	}
}

func TestEngineRecoversMissedEvents(t *testing.T) {
	env := newTestEnv(t, chantypes.UNORDERED)
	engine, err := core.NewEngine(env.chains, core.Paths{"a-b": env.path}, core.EngineConfig{
		Path:      core.RelayPathConfig{RescanInterval: time.Hour},
		Reconnect: &core.ExponentialBackoff{Base: 200 * time.Millisecond, Max: 200 * time.Millisecond},
	})
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	done := make(chan error, 1)
	go func() { done <- engine.Run(ctx) }()

	require.Eventually(t, func() bool {
		return env.a.Subscribers() == 1 && env.b.Subscribers() == 1
	}, 5*time.Second, 10*time.Millisecond)

	// the stream is down while the packet is sent
	env.a.DisconnectSubscribers()
	env.send(t, "hello")
	env.a.Advance(1)

	// the resubscription triggers a rescan that finds the packet
	require.Eventually(t, func() bool {
		snapshots, err := engine.Snapshot(ctx)
		if err != nil {
			return false
		}
		return resolvedObligations(snapshots)[core.ObligationRecv] == core.StatusConfirmed
	}, 10*time.Second, 20*time.Millisecond)

	cancel()
	require.NoError(t, <-done)
}

func TestEngineCheckReachability(t *testing.T) {
	env := newTestEnv(t, chantypes.UNORDERED)
	require.NoError(t, core.CheckReachability(context.Background(), env.chains))

	ctx, cancel := context.WithTimeout(context.Background(), 100*time.Millisecond)
	defer cancel()
	env.chains["chain-b"] = core.NewProvableChain(unreachableChain{Chain: env.b}, env.chains["chain-b"].Prover)
	engine, err := core.NewEngine(env.chains, core.Paths{"a-b": env.path}, core.EngineConfig{})
	require.NoError(t, err)

	err = engine.Run(ctx)
	require.Error(t, err)
	require.True(t, errors.Is(err, core.ErrChainUnavailable), err.Error())
}

func TestNewEngineInvalidPath(t *testing.T) {
	env := newTestEnv(t, chantypes.UNORDERED)
	env.path.Dst.ChannelID = ""
	_, err := core.NewEngine(env.chains, core.Paths{"a-b": env.path}, core.EngineConfig{})
	require.ErrorContains(t, err, "a-b")
}
