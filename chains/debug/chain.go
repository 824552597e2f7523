package debug

import (
	"fmt"
	"os"
	"strconv"

	"github.com/cockroachdb/errors"
	"github.com/hyperledger-labs/yui-packet-relayer/core"
	"github.com/hyperledger-labs/yui-packet-relayer/log"
)

// Chain forwards every call to its origin chain and pretends that the origin prunes old heights.
// The retention is read from DEBUG_RELAYER_PRUNED_HEIGHT_<chain-id> on every query, so it can be
// changed while the relayer runs.
type Chain struct {
	core.Chain
	logger *log.RelayLogger
}

var _ core.Chain = (*Chain)(nil)

func NewChain(origin core.Chain) *Chain {
	return &Chain{
		Chain:  origin,
		logger: core.GetChainLogger(origin.ChainID(), "debug.chain"),
	}
}

// Origin returns the wrapped chain
func (c *Chain) Origin() core.Chain {
	return c.Chain
}

func retentionEnv(chainID string) string {
	return fmt.Sprintf("DEBUG_RELAYER_PRUNED_HEIGHT_%s", chainID)
}

// fakePruned fails a query of a height more than the retention below the latest height
func (c *Chain) fakePruned(ctx core.QueryContext) error {
	env := retentionEnv(c.ChainID())
	val, ok := os.LookupEnv(env)
	if !ok || ctx.Height().IsZero() {
		return nil
	}
	retention, err := strconv.ParseUint(val, 10, 64)
	if err != nil {
		c.logger.Warn("malformed retention", "env", env, "value", val, "error", err)
		return nil
	}
	latest, err := c.Chain.LatestHeight(ctx.Context())
	if err != nil {
		return err
	}
	if ctx.Height().RevisionHeight+retention < latest.RevisionHeight {
		c.logger.Info("fake pruned height", "height", ctx.Height(), "latest", latest, "retention", retention)
		return &core.HeightNotFoundError{Height: ctx.Height(), Pruned: true}
	}
	return nil
}

func (c *Chain) QueryState(ctx core.QueryContext) (*core.ChainState, error) {
	if err := c.fakePruned(ctx); err != nil {
		return nil, err
	}
	return c.Chain.QueryState(ctx)
}

func (c *Chain) QueryProof(ctx core.QueryContext, path string) (*core.StateProof, error) {
	if err := c.fakePruned(ctx); err != nil {
		return nil, errors.Wrapf(err, "failed to query proof of %s", path)
	}
	return c.Chain.QueryProof(ctx, path)
}

func (c *Chain) QueryUnfinalizedRelayPackets(ctx core.QueryContext, src core.ChannelEnd) (core.PacketInfoList, error) {
	if err := c.fakePruned(ctx); err != nil {
		return nil, err
	}
	return c.Chain.QueryUnfinalizedRelayPackets(ctx, src)
}

func (c *Chain) QueryUnfinalizedRelayAcknowledgements(ctx core.QueryContext, dst core.ChannelEnd) (core.PacketInfoList, error) {
	if err := c.fakePruned(ctx); err != nil {
		return nil, err
	}
	return c.Chain.QueryUnfinalizedRelayAcknowledgements(ctx, dst)
}
