package cmd

import (
	"github.com/cosmos/cosmos-sdk/client/flags"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"
)

const (
	flagJSON     = "json"
	flagYAML     = "yaml"
	flagFile     = "file"
	flagLogLevel = "log-level"
	flagInterval = "interval"
)

func heightFlag(cmd *cobra.Command) *cobra.Command {
	cmd.Flags().Uint64(flags.FlagHeight, 0, "height of the source chain to query packet data at (0 means latest)")
	bindFlag(cmd.Flags().Lookup(flags.FlagHeight))
	return cmd
}

func fileFlag(cmd *cobra.Command) *cobra.Command {
	cmd.Flags().StringP(flagFile, "f", "", "fetch yaml data from specified file")
	bindFlag(cmd.Flags().Lookup(flagFile))
	return cmd
}

func yamlFlag(cmd *cobra.Command) *cobra.Command {
	cmd.Flags().BoolP(flagYAML, "y", false, "output using yaml")
	bindFlag(cmd.Flags().Lookup(flagYAML))
	return cmd
}

func jsonFlag(cmd *cobra.Command) *cobra.Command {
	cmd.Flags().BoolP(flagJSON, "j", false, "returns the response in json format")
	bindFlag(cmd.Flags().Lookup(flagJSON))
	return cmd
}

func intervalFlag(cmd *cobra.Command) *cobra.Command {
	cmd.Flags().Duration(flagInterval, 0, "overrides the rescan interval in the config")
	bindFlag(cmd.Flags().Lookup(flagInterval))
	return cmd
}

// bindFlag makes the value of flag readable through viper
func bindFlag(flag *pflag.Flag) {
	if err := viper.BindPFlag(flag.Name, flag); err != nil {
		panic(err)
	}
}
