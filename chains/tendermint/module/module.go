package module

import (
	"github.com/hyperledger-labs/yui-packet-relayer/chains/tendermint"
	"github.com/hyperledger-labs/yui-packet-relayer/chains/tendermint/cmd"
	"github.com/hyperledger-labs/yui-packet-relayer/config"
	"github.com/hyperledger-labs/yui-packet-relayer/core"
	"github.com/spf13/cobra"
)

type Module struct{}

var _ config.ModuleI = (*Module)(nil)

// Name returns the name of the module
func (Module) Name() string {
	return "tendermint"
}

// RegisterConfigs registers the tendermint chain and prover configs
func (Module) RegisterConfigs(registry *config.Registry) {
	registry.RegisterChain(tendermint.ChainType, func() core.ChainConfig { return &tendermint.ChainConfig{} })
	registry.RegisterProver(tendermint.ProverType, func() core.ProverConfig { return &tendermint.ProverConfig{} })
}

// GetCmd returns the command
func (Module) GetCmd(ctx *config.Context) *cobra.Command {
	return cmd.TendermintCmd(ctx)
}
