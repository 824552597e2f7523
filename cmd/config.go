package cmd

import (
	"fmt"
	"os"

	"github.com/cockroachdb/errors"
	"github.com/hyperledger-labs/yui-packet-relayer/config"
	"github.com/spf13/cobra"
)

func configCmd(ctx *config.Context) *cobra.Command {
	cmd := &cobra.Command{
		Use:     "config",
		Aliases: []string{"cfg"},
		Short:   "manage configuration file",
		RunE:    noCommand,
	}

	cmd.AddCommand(
		configShowCmd(ctx),
		configInitCmd(ctx),
	)

	return cmd
}

// Command for inititalizing an empty config at the --home location
func configInitCmd(ctx *config.Context) *cobra.Command {
	cmd := &cobra.Command{
		Use:     "init",
		Aliases: []string{"i"},
		Short:   "Creates a default home directory at path defined by --home",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfgPath := ctx.Config.ConfigPath
			// Otherwise, the config file exists, and an error is returned...
			if _, err := os.Stat(cfgPath); err == nil {
				return errors.Newf("config already exists: %s", cfgPath)
			} else if !os.IsNotExist(err) {
				return err
			}
			defConfig := config.DefaultConfig(cfgPath)
			if err := config.Save(&defConfig); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "config created at %s\n", cfgPath)
			return nil
		},
	}
	return cmd
}

// Command for printing current configuration
func configShowCmd(ctx *config.Context) *cobra.Command {
	cmd := &cobra.Command{
		Use:     "show",
		Aliases: []string{"s", "list", "l"},
		Short:   "Prints current configuration",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfgPath := ctx.Config.ConfigPath
			if _, err := os.Stat(cfgPath); os.IsNotExist(err) {
				return errors.Newf("config does not exist: %s", cfgPath)
			}

			out, err := config.Marshal(ctx.Config)
			if err != nil {
				return err
			}

			fmt.Fprint(cmd.OutOrStdout(), string(out))
			return nil
		},
	}

	return cmd
}
