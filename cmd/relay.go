package cmd

import (
	"context"
	"os/signal"

	"github.com/cockroachdb/errors"
	"github.com/cosmos/cosmos-sdk/client/flags"
	clienttypes "github.com/cosmos/ibc-go/v8/modules/core/02-client/types"
	"github.com/hyperledger-labs/yui-packet-relayer/config"
	"github.com/hyperledger-labs/yui-packet-relayer/core"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"golang.org/x/sys/unix"
)

func relayCmd(ctx *config.Context) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "relay [dst-chain-id] [src-chain-id] [src-port-id] [src-channel-id]",
		Short: "relay the packets sent from a channel once and report the outcome of each packet",
		Long: `Relay every packet sent from the source channel end that is not yet resolved, 
then exit. The command fails if any packet ends up Failed or a chain is unreachable.`,
		Args: cobra.ExactArgs(4),
		RunE: func(cmd *cobra.Command, args []string) error {
			dstChainID, srcChainID, srcPortID, srcChannelID := args[0], args[1], args[2], args[3]
			path, err := ctx.Config.Paths.Find(dstChainID, srcChainID, srcPortID, srcChannelID)
			if err != nil {
				return err
			}
			chains, err := buildChains(ctx, srcChainID, dstChainID)
			if err != nil {
				return err
			}
			engineConfig, err := ctx.Config.EngineConfig(ctx.HomePath)
			if err != nil {
				return err
			}
			defer engineConfig.Path.TrustDB.Close()

			var queryHeight clienttypes.Height
			if h := viper.GetUint64(flags.FlagHeight); h > 0 {
				queryHeight = clienttypes.NewHeight(clienttypes.ParseChainID(srcChainID), h)
			}
			name := path.Src.ChannelEnd().String()
			rp, err := core.NewOneWayRelayPath(name, path, chains, queryHeight, engineConfig.Path)
			if err != nil {
				return err
			}

			sigCtx, stop := signal.NotifyContext(cmd.Context(), unix.SIGINT, unix.SIGTERM)
			defer stop()
			if err := core.CheckReachability(sigCtx, chains); err != nil {
				return err
			}
			outcomes, runErr := rp.RunOnce(sigCtx)
			if err := printOutput(cmd, outcomes); err != nil {
				return err
			}
			if runErr != nil && !errors.Is(runErr, context.Canceled) {
				return runErr
			}
			return checkOutcomes(outcomes)
		},
	}
	return yamlFlag(jsonFlag(heightFlag(cmd)))
}

// checkOutcomes returns an error if any packet failed or was left unresolved
func checkOutcomes(outcomes []core.PacketOutcome) error {
	var failed, unresolved int
	for _, o := range outcomes {
		switch {
		case o.Status == core.StatusFailed:
			failed++
		case !o.Status.IsTerminal():
			unresolved++
		}
	}
	switch {
	case failed > 0:
		return errors.Newf("%d of %d packets failed", failed, len(outcomes))
	case unresolved > 0:
		return errors.Newf("%d of %d packets are unresolved", unresolved, len(outcomes))
	}
	return nil
}

// buildChains builds the chains with the IDs
func buildChains(ctx *config.Context, chainIDs ...string) (map[string]*core.ProvableChain, error) {
	timeout, err := ctx.Config.Global.TimeoutDuration()
	if err != nil {
		return nil, err
	}
	chains := make(map[string]*core.ProvableChain, len(chainIDs))
	for _, chainID := range chainIDs {
		cc, err := ctx.Config.GetChain(chainID)
		if err != nil {
			return nil, err
		}
		chain, err := cc.Build(ctx.HomePath, timeout)
		if err != nil {
			return nil, errors.Wrapf(err, "failed to build chain %s", chainID)
		}
		chains[chainID] = chain
	}
	return chains, nil
}
