package cmd

import (
	"fmt"
	"os"

	"github.com/cockroachdb/errors"
	"github.com/hyperledger-labs/yui-packet-relayer/config"
	"github.com/spf13/cobra"
	"gopkg.in/yaml.v2"
)

func chainsCmd(ctx *config.Context) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "chains",
		Short: "manage chain configurations",
		RunE:  noCommand,
	}

	cmd.AddCommand(
		chainsListCmd(ctx),
		chainsAddCmd(ctx),
	)

	return cmd
}

type chainEntry struct {
	ChainID    string `json:"chain_id" yaml:"chain-id"`
	ChainType  string `json:"chain_type" yaml:"chain-type"`
	ProverType string `json:"prover_type" yaml:"prover-type"`
}

func chainsListCmd(ctx *config.Context) *cobra.Command {
	cmd := &cobra.Command{
		Use:     "list",
		Aliases: []string{"l"},
		Short:   "print out configured chains",
		RunE: func(cmd *cobra.Command, args []string) error {
			entries := make([]chainEntry, 0, len(ctx.Config.Chains))
			for _, cc := range ctx.Config.Chains {
				chainType, proverType := cc.Type()
				entries = append(entries, chainEntry{
					ChainID:    cc.ChainID(),
					ChainType:  chainType,
					ProverType: proverType,
				})
			}
			return printOutput(cmd, entries)
		},
	}
	return yamlFlag(jsonFlag(cmd))
}

func chainsAddCmd(ctx *config.Context) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "add",
		Short: "add a chain from a file to the configuration file",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			file, err := cmd.Flags().GetString(flagFile)
			if err != nil {
				return err
			}
			bz, err := os.ReadFile(file)
			if err != nil {
				return errors.Wrapf(err, "failed to read file %s", file)
			}
			var cc config.ChainProverConfig
			if err := yaml.UnmarshalStrict(bz, &cc); err != nil {
				return errors.Wrapf(err, "failed to unmarshal file %s", file)
			}
			if err := cc.Init(ctx.Registry); err != nil {
				return errors.Wrapf(err, "failed to init chain %s", file)
			}
			if err := ctx.Config.AddChain(&cc); err != nil {
				return err
			}
			if err := config.Save(ctx.Config); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "added %s\n", cc.ChainID())
			return nil
		},
	}
	cmd = fileFlag(cmd)
	if err := cmd.MarkFlagRequired(flagFile); err != nil {
		panic(err)
	}
	return cmd
}
