package debug_test

import (
	"context"
	"testing"

	clienttypes "github.com/cosmos/ibc-go/v8/modules/core/02-client/types"
	"github.com/stretchr/testify/require"

	"github.com/hyperledger-labs/yui-packet-relayer/chains/debug"
	"github.com/hyperledger-labs/yui-packet-relayer/chains/mock"
	"github.com/hyperledger-labs/yui-packet-relayer/core"
)

func TestFakePrunedHeight(t *testing.T) {
	ctx := context.Background()
	origin := mock.NewChain("chain-a")
	origin.AdvanceTo(10)
	chain := debug.NewChain(origin)
	require.Same(t, origin, chain.Origin())

	at := func(h uint64) core.QueryContext {
		return core.NewQueryContext(ctx, clienttypes.NewHeight(0, h))
	}

	// without the variable nothing is pruned
	_, err := chain.QueryState(at(2))
	require.NoError(t, err)

	t.Setenv("DEBUG_RELAYER_PRUNED_HEIGHT_chain-a", "3")
	cases := []struct {
		name   string
		query  func() error
		pruned bool
	}{
		{"state below retention", func() error { _, err := chain.QueryState(at(6)); return err }, true},
		{"state within retention", func() error { _, err := chain.QueryState(at(7)); return err }, false},
		{"latest", func() error { _, err := chain.QueryState(core.NewLatestQueryContext(ctx)); return err }, false},
		{"proof below retention", func() error { _, err := chain.QueryProof(at(5), "any"); return err }, true},
		{"packets below retention", func() error {
			_, err := chain.QueryUnfinalizedRelayPackets(at(2), core.ChannelEnd{ChainID: "chain-a"})
			return err
		}, true},
		{"acknowledgements below retention", func() error {
			_, err := chain.QueryUnfinalizedRelayAcknowledgements(at(2), core.ChannelEnd{ChainID: "chain-a"})
			return err
		}, true},
	}
	for _, c := range cases {
		t.Run(c.name, func(t *testing.T) {
			err := c.query()
			if c.pruned {
				require.True(t, core.IsPrunedHeight(err), "%v", err)
			} else {
				require.NoError(t, err)
			}
		})
	}
}

func TestMalformedRetentionIsIgnored(t *testing.T) {
	origin := mock.NewChain("chain-b")
	origin.AdvanceTo(10)
	chain := debug.NewChain(origin)

	t.Setenv("DEBUG_RELAYER_PRUNED_HEIGHT_chain-b", "three")
	_, err := chain.QueryState(core.NewQueryContext(context.Background(), clienttypes.NewHeight(0, 1)))
	require.NoError(t, err)
}
