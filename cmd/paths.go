package cmd

import (
	"fmt"
	"os"

	"github.com/cockroachdb/errors"
	"github.com/hyperledger-labs/yui-packet-relayer/config"
	"github.com/hyperledger-labs/yui-packet-relayer/core"
	"github.com/spf13/cobra"
	"gopkg.in/yaml.v2"
)

func pathsCmd(ctx *config.Context) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "paths",
		Short: "manage path configurations",
		Long: `
A path represents the "full path" or "link" for communication between two chains. This includes the client 
and channel ids from both the source and destination chains together with the channel ordering`,
		RunE: noCommand,
	}

	cmd.AddCommand(
		pathsListCmd(ctx),
		pathsAddCmd(ctx),
	)

	return cmd
}

func pathsListCmd(ctx *config.Context) *cobra.Command {
	cmd := &cobra.Command{
		Use:     "list",
		Aliases: []string{"l"},
		Short:   "print out configured paths",
		RunE: func(cmd *cobra.Command, args []string) error {
			return printOutput(cmd, ctx.Config.Paths)
		},
	}
	return yamlFlag(jsonFlag(cmd))
}

func pathsAddCmd(ctx *config.Context) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "add [path-name]",
		Short: "add a path to the list of paths",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			file, err := cmd.Flags().GetString(flagFile)
			if err != nil {
				return err
			}
			bz, err := os.ReadFile(file)
			if err != nil {
				return errors.Wrapf(err, "failed to read file %s", file)
			}
			var path core.Path
			if err := yaml.UnmarshalStrict(bz, &path); err != nil {
				return errors.Wrapf(err, "failed to unmarshal file %s", file)
			}
			if err := path.Validate(); err != nil {
				return err
			}
			if err := ctx.Config.AddPath(args[0], &path); err != nil {
				return err
			}
			if err := ctx.Config.Validate(); err != nil {
				return err
			}
			if err := config.Save(ctx.Config); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "added %s\n", args[0])
			return nil
		},
	}
	cmd = fileFlag(cmd)
	if err := cmd.MarkFlagRequired(flagFile); err != nil {
		panic(err)
	}
	return cmd
}
