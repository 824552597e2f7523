package config

import (
	"github.com/spf13/cobra"
)

// ModuleI defines an interface of Module
type ModuleI interface {
	// Name returns the name of the module
	Name() string

	// RegisterConfigs registers the chain and prover config types of the module
	RegisterConfigs(registry *Registry)

	// GetCmd returns the command. It returns nil if the module has no command.
	GetCmd(ctx *Context) *cobra.Command
}
