package cmd

import (
	"fmt"

	"github.com/cosmos/cosmos-sdk/crypto/keyring"
	"github.com/hyperledger-labs/yui-packet-relayer/chains/tendermint"
	"github.com/hyperledger-labs/yui-packet-relayer/config"
	"github.com/spf13/cobra"
	"gopkg.in/yaml.v2"
)

const (
	flagRPCAddr       = "rpc-addr"
	flagAccountPrefix = "account-prefix"
	flagGasPrices     = "gas-prices"
)

func configCmd(ctx *config.Context) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "config",
		Short: "manage configuration file",
	}

	cmd.AddCommand(
		generateChainConfigCmd(ctx),
	)

	return cmd
}

func generateChainConfigCmd(ctx *config.Context) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "generate [chain-id]",
		Short: "print a chain config with defaults, to be added to the config file",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			rpcAddr, _ := cmd.Flags().GetString(flagRPCAddr)
			prefix, _ := cmd.Flags().GetString(flagAccountPrefix)
			gasPrices, _ := cmd.Flags().GetString(flagGasPrices)
			chain := &tendermint.ChainConfig{
				Key:                  "relayer",
				ChainID:              args[0],
				RPCAddr:              rpcAddr,
				AccountPrefix:        prefix,
				GasAdjustment:        1.5,
				GasPrices:            gasPrices,
				AverageBlockTimeMsec: 1000,
				MaxRetryForCommit:    5,
				KeyringBackend:       keyring.BackendTest,
			}
			prover := &tendermint.ProverConfig{
				TrustingPeriod: "336h",
				MaxClockDrift:  "10s",
				TrustLevel:     tendermint.Fraction{Numerator: 1, Denominator: 3},
			}
			cc, err := config.NewChainProverConfig(ctx.Registry, chain, prover)
			if err != nil {
				return err
			}
			bz, err := yaml.Marshal(cc)
			if err != nil {
				return err
			}
			fmt.Fprint(cmd.OutOrStdout(), string(bz))
			return nil
		},
	}
	cmd.Flags().String(flagRPCAddr, "http://localhost:26657", "address of the CometBFT RPC endpoint")
	cmd.Flags().String(flagAccountPrefix, "cosmos", "bech32 prefix of account addresses")
	cmd.Flags().String(flagGasPrices, "0.025stake", "gas prices of transactions")
	return cmd
}
