package cmd

import (
	"fmt"

	"github.com/cockroachdb/errors"
	"github.com/cosmos/cosmos-sdk/crypto/hd"
	"github.com/cosmos/cosmos-sdk/crypto/keyring"
	sdk "github.com/cosmos/cosmos-sdk/types"
	"github.com/cosmos/go-bip39"
	"github.com/hyperledger-labs/yui-packet-relayer/chains/tendermint"
	"github.com/hyperledger-labs/yui-packet-relayer/config"
	"github.com/spf13/cobra"
)

const flagCoinType = "coin-type"

func keysCmd(ctx *config.Context) *cobra.Command {
	cmd := &cobra.Command{
		Use:     "keys",
		Aliases: []string{"k"},
		Short:   "manage keys held by the relayer for each chain",
	}

	cmd.AddCommand(
		keysAddCmd(ctx),
		keysRestoreCmd(ctx),
		keysListCmd(ctx),
		keysShowCmd(ctx),
	)

	return cmd
}

// chainFor builds the tendermint chain of chainID without connecting to it
func chainFor(ctx *config.Context, chainID string) (*tendermint.Chain, error) {
	cc, err := ctx.Config.GetChain(chainID)
	if err != nil {
		return nil, err
	}
	chainConfig, err := cc.GetChainConfig()
	if err != nil {
		return nil, err
	}
	tmConfig, ok := chainConfig.(*tendermint.ChainConfig)
	if !ok {
		return nil, errors.Newf("chain %s is not a tendermint chain: %T", chainID, chainConfig)
	}
	return tendermint.NewChain(*tmConfig, ctx.HomePath, 0)
}

func hdPath(cmd *cobra.Command) string {
	coinType, _ := cmd.Flags().GetUint32(flagCoinType)
	return hd.CreateHDPath(coinType, 0, 0).String()
}

func keysAddCmd(ctx *config.Context) *cobra.Command {
	cmd := &cobra.Command{
		Use:     "add [chain-id] [[name]]",
		Aliases: []string{"a"},
		Short:   "adds a key to the keychain associated with a particular chain",
		Args:    cobra.RangeArgs(1, 2),
		RunE: func(cmd *cobra.Command, args []string) error {
			chain, err := chainFor(ctx, args[0])
			if err != nil {
				return err
			}
			name := chain.Config().Key
			if len(args) == 2 {
				name = args[1]
			}
			defer chain.UseSDKContext()()
			record, mnemonic, err := chain.Keybase().NewMnemonic(name, keyring.English, hdPath(cmd), keyring.DefaultBIP39Passphrase, hd.Secp256k1)
			if err != nil {
				return err
			}
			addr, err := record.GetAddress()
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "{\"mnemonic\":%q,\"address\":%q}\n", mnemonic, addr.String())
			return nil
		},
	}
	cmd.Flags().Uint32(flagCoinType, sdk.CoinType, "coin type number for HD derivation")
	return cmd
}

func keysRestoreCmd(ctx *config.Context) *cobra.Command {
	cmd := &cobra.Command{
		Use:     "restore [chain-id] [name] [mnemonic]",
		Aliases: []string{"r"},
		Short:   "restores a mnemonic to the keychain associated with a particular chain",
		Args:    cobra.ExactArgs(3),
		RunE: func(cmd *cobra.Command, args []string) error {
			chain, err := chainFor(ctx, args[0])
			if err != nil {
				return err
			}
			if !bip39.IsMnemonicValid(args[2]) {
				return errors.New("invalid mnemonic")
			}
			defer chain.UseSDKContext()()
			record, err := chain.Keybase().NewAccount(args[1], args[2], keyring.DefaultBIP39Passphrase, hdPath(cmd), hd.Secp256k1)
			if err != nil {
				return err
			}
			addr, err := record.GetAddress()
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), addr.String())
			return nil
		},
	}
	cmd.Flags().Uint32(flagCoinType, sdk.CoinType, "coin type number for HD derivation")
	return cmd
}

func keysListCmd(ctx *config.Context) *cobra.Command {
	return &cobra.Command{
		Use:     "list [chain-id]",
		Aliases: []string{"l"},
		Short:   "lists keys from the keychain associated with a particular chain",
		Args:    cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			chain, err := chainFor(ctx, args[0])
			if err != nil {
				return err
			}
			defer chain.UseSDKContext()()
			records, err := chain.Keybase().List()
			if err != nil {
				return err
			}
			for i, r := range records {
				addr, err := r.GetAddress()
				if err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "key(%d): %s -> %s\n", i, r.Name, addr.String())
			}
			return nil
		},
	}
}

func keysShowCmd(ctx *config.Context) *cobra.Command {
	return &cobra.Command{
		Use:     "show [chain-id] [[name]]",
		Aliases: []string{"s"},
		Short:   "shows the address of a key from the keychain associated with a particular chain",
		Args:    cobra.RangeArgs(1, 2),
		RunE: func(cmd *cobra.Command, args []string) error {
			chain, err := chainFor(ctx, args[0])
			if err != nil {
				return err
			}
			name := chain.Config().Key
			if len(args) == 2 {
				name = args[1]
			}
			defer chain.UseSDKContext()()
			record, err := chain.Keybase().Key(name)
			if err != nil {
				return err
			}
			addr, err := record.GetAddress()
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), addr.String())
			return nil
		},
	}
}
