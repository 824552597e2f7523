package cmd

import (
	"context"
	"os"
	"path/filepath"

	"github.com/cockroachdb/errors"
	"github.com/cosmos/cosmos-sdk/client/flags"
	"github.com/hyperledger-labs/yui-packet-relayer/config"
	"github.com/hyperledger-labs/yui-packet-relayer/internal/telemetry"
	"github.com/hyperledger-labs/yui-packet-relayer/log"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

const appName = "uly"

var defaultHome = os.ExpandEnv("$HOME/.yui-packet-relayer")

// NewRootCmd returns the root command with the commands of modules attached
func NewRootCmd(modules ...config.ModuleI) *cobra.Command {
	ctx := config.NewContext(modules...)

	// rootCmd represents the base command when called without any subcommands
	rootCmd := &cobra.Command{
		Use:   appName,
		Short: "This application relays packets between configured IBC enabled chains",
	}
	cobra.EnableCommandSorting = false
	rootCmd.SilenceUsage = true

	rootCmd.PersistentFlags().String(flags.FlagHome, defaultHome, "set home directory")
	rootCmd.PersistentFlags().String(flagLogLevel, "", "overrides the log level in the config")
	if err := viper.BindPFlag(flags.FlagHome, rootCmd.PersistentFlags().Lookup(flags.FlagHome)); err != nil {
		panic(err)
	}
	if err := viper.BindPFlag(flagLogLevel, rootCmd.PersistentFlags().Lookup(flagLogLevel)); err != nil {
		panic(err)
	}

	var shutdownTelemetry func(context.Context) error
	rootCmd.PersistentPreRunE = func(cmd *cobra.Command, _ []string) error {
		// reads `homeDir/config/config.yaml` into `ctx.Config` before each command
		if err := initConfig(ctx); err != nil {
			return err
		}
		global := ctx.Config.Global
		level := global.Logger.Level
		if l := viper.GetString(flagLogLevel); l != "" {
			level = l
		}
		if err := log.InitLogger(level, global.Logger.Format, global.Logger.Output, global.Telemetry.Enable); err != nil {
			return err
		}
		if global.Telemetry.Enable {
			shutdown, err := telemetry.SetupOTelSDK(cmd.Context(), telemetry.Options{
				ServiceName: appName,
				MetricsAddr: global.Telemetry.MetricsAddr,
			})
			if err != nil {
				return errors.Wrap(err, "failed to set up the OpenTelemetry SDK")
			}
			shutdownTelemetry = shutdown
		}
		return nil
	}
	rootCmd.PersistentPostRunE = func(cmd *cobra.Command, _ []string) error {
		if shutdownTelemetry == nil {
			return nil
		}
		return shutdownTelemetry(context.WithoutCancel(cmd.Context()))
	}

	rootCmd.AddCommand(
		configCmd(ctx),
		chainsCmd(ctx),
		pathsCmd(ctx),
		relayCmd(ctx),
		serviceCmd(ctx),
		modulesCmd(ctx),
	)
	for _, m := range modules {
		if cmd := m.GetCmd(ctx); cmd != nil {
			rootCmd.AddCommand(cmd)
		}
	}
	return rootCmd
}

// Execute adds all child commands to the root command and sets flags appropriately.
// This is called by main.main(). It only needs to happen once to the rootCmd.
func Execute(modules ...config.ModuleI) error {
	return NewRootCmd(modules...).ExecuteContext(context.Background())
}

// initConfig reads in the config file if it exists and falls back to the defaults otherwise
func initConfig(ctx *config.Context) error {
	ctx.HomePath = viper.GetString(flags.FlagHome)
	cfgPath := filepath.Join(ctx.HomePath, config.DefaultConfigDir, config.DefaultConfigFile)
	if _, err := os.Stat(cfgPath); err == nil {
		cfg, err := config.Load(ctx.Registry, cfgPath)
		if err != nil {
			return err
		}
		ctx.Config = cfg
	} else if os.IsNotExist(err) {
		defConfig := config.DefaultConfig(cfgPath)
		ctx.Config = &defConfig
	} else {
		return err
	}
	return nil
}

func noCommand(cmd *cobra.Command, _ []string) error {
	return cmd.Help()
}
