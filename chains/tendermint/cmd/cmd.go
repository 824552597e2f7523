package cmd

import (
	"github.com/hyperledger-labs/yui-packet-relayer/config"
	"github.com/spf13/cobra"
)

func TendermintCmd(ctx *config.Context) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "tendermint",
		Short: "manage tendermint configurations",
	}

	cmd.AddCommand(
		configCmd(ctx),
		keysCmd(ctx),
	)

	return cmd
}
