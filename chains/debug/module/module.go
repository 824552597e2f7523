package module

import (
	"github.com/hyperledger-labs/yui-packet-relayer/chains/debug"
	"github.com/hyperledger-labs/yui-packet-relayer/config"
	"github.com/hyperledger-labs/yui-packet-relayer/core"
	"github.com/spf13/cobra"
)

type Module struct{}

var _ config.ModuleI = (*Module)(nil)

// Name returns the name of the module
func (Module) Name() string {
	return "debug"
}

// RegisterConfigs registers the debug chain config, which resolves its origin chain with registry
func (Module) RegisterConfigs(registry *config.Registry) {
	registry.RegisterChain(debug.ChainType, func() core.ChainConfig { return debug.NewChainConfig(registry) })
}

// GetCmd returns the command
func (Module) GetCmd(ctx *config.Context) *cobra.Command {
	return nil
}
