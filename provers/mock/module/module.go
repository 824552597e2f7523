package module

import (
	"github.com/hyperledger-labs/yui-packet-relayer/config"
	"github.com/hyperledger-labs/yui-packet-relayer/core"
	"github.com/hyperledger-labs/yui-packet-relayer/provers/mock"
	"github.com/spf13/cobra"
)

type Module struct{}

var _ config.ModuleI = (*Module)(nil)

// Name returns the name of the module
func (Module) Name() string {
	return "mock"
}

// RegisterConfigs registers the mock prover config
func (Module) RegisterConfigs(registry *config.Registry) {
	registry.RegisterProver(mock.ProverType, func() core.ProverConfig { return &mock.ProverConfig{} })
}

// GetCmd returns the command
func (Module) GetCmd(ctx *config.Context) *cobra.Command {
	return nil
}
