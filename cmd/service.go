package cmd

import (
	"os/signal"

	"github.com/cockroachdb/errors"
	"github.com/hyperledger-labs/yui-packet-relayer/config"
	"github.com/hyperledger-labs/yui-packet-relayer/core"
	"github.com/hyperledger-labs/yui-packet-relayer/log"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"golang.org/x/sys/unix"
)

func serviceCmd(ctx *config.Context) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "service",
		Short: "Relay Service Commands",
		Long:  "Commands to manage the relay service",
		RunE:  noCommand,
	}
	cmd.AddCommand(
		startCmd(ctx),
		snapshotCmd(ctx),
	)
	return cmd
}

func startCmd(ctx *config.Context) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "start",
		Short: "relay every configured path until interrupted",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if len(ctx.Config.Paths) == 0 {
				return errors.New("no paths configured")
			}
			chains, err := ctx.Config.BuildChains(ctx.HomePath)
			if err != nil {
				return err
			}
			engineConfig, err := ctx.Config.EngineConfig(ctx.HomePath)
			if err != nil {
				return err
			}
			defer engineConfig.Path.TrustDB.Close()
			if interval := viper.GetDuration(flagInterval); interval > 0 {
				engineConfig.Path.RescanInterval = interval
			}

			engine, err := core.NewEngine(chains.Map(), ctx.Config.Paths, engineConfig)
			if err != nil {
				return err
			}

			sigCtx, stop := signal.NotifyContext(cmd.Context(), unix.SIGINT, unix.SIGTERM)
			defer stop()
			if err := engine.Run(sigCtx); err != nil {
				log.GetLogger().ErrorContext(cmd.Context(), "relay service stopped with an error", err)
				return err
			}
			return nil
		},
	}
	return intervalFlag(cmd)
}

func snapshotCmd(ctx *config.Context) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "snapshot [path-name]",
		Short: "scan a path without relaying and print its backlog",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			path, err := ctx.Config.Paths.Get(args[0])
			if err != nil {
				return err
			}
			chains, err := buildChains(ctx, path.Src.ChainID, path.Dst.ChainID)
			if err != nil {
				return err
			}
			engineConfig, err := ctx.Config.EngineConfig(ctx.HomePath)
			if err != nil {
				return err
			}
			defer engineConfig.Path.TrustDB.Close()

			rp, err := core.NewRelayPath(args[0], path, chains, engineConfig.Path)
			if err != nil {
				return err
			}
			if err := core.CheckReachability(cmd.Context(), chains); err != nil {
				return err
			}
			if err := rp.Scan(cmd.Context()); err != nil {
				return err
			}
			snapshot, err := rp.Snapshot(cmd.Context())
			if err != nil {
				return err
			}
			return printOutput(cmd, snapshot)
		},
	}
	return yamlFlag(jsonFlag(cmd))
}
