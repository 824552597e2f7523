package cmd

import (
	"fmt"
	"reflect"
	"runtime/debug"
	"slices"
	"strings"

	"github.com/cockroachdb/errors"
	"github.com/hyperledger-labs/yui-packet-relayer/config"
	"github.com/spf13/cobra"
)

func modulesCmd(ctx *config.Context) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "modules",
		Short: "show the modules the relayer is built with",
		RunE:  noCommand,
	}

	cmd.AddCommand(
		showModulesCmd(ctx),
	)

	return cmd
}

// moduleInfo is a module and the config types it registers
type moduleInfo struct {
	Name    string   `json:"name" yaml:"name"`
	Path    string   `json:"path" yaml:"path"`
	Version string   `json:"version" yaml:"version"`
	Chains  []string `json:"chains,omitempty" yaml:"chains,omitempty"`
	Provers []string `json:"provers,omitempty" yaml:"provers,omitempty"`
}

func showModulesCmd(ctx *config.Context) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "show",
		Short: "list the modules with the chain and prover types they provide",
		RunE: func(cmd *cobra.Command, args []string) error {
			bi, ok := debug.ReadBuildInfo()
			if !ok {
				return errors.New("could not read build info")
			}
			infos := make([]moduleInfo, 0, len(ctx.Modules))
			for _, m := range ctx.Modules {
				info, err := describeModule(bi, m)
				if err != nil {
					return err
				}
				infos = append(infos, info)
			}
			slices.SortFunc(infos, func(a, b moduleInfo) int { return strings.Compare(a.Name, b.Name) })

			jsn, _ := cmd.Flags().GetBool(flagJSON)
			yml, _ := cmd.Flags().GetBool(flagYAML)
			if jsn || yml {
				return printOutput(cmd, infos)
			}
			for _, info := range infos {
				fmt.Fprintf(cmd.OutOrStdout(), "%s %s %s chains=%v provers=%v\n", info.Name, info.Path, info.Version, info.Chains, info.Provers)
			}
			return nil
		},
	}
	return yamlFlag(jsonFlag(cmd))
}

// describeModule finds the Go module that m is built from and the types m registers
func describeModule(bi *debug.BuildInfo, m config.ModuleI) (moduleInfo, error) {
	path, version, err := goModuleOf(bi, m)
	if err != nil {
		return moduleInfo{}, err
	}
	registry := config.NewRegistry()
	m.RegisterConfigs(registry)
	return moduleInfo{
		Name:    m.Name(),
		Path:    path,
		Version: version,
		Chains:  registry.ChainTypes(),
		Provers: registry.ProverTypes(),
	}, nil
}

func goModuleOf(bi *debug.BuildInfo, m config.ModuleI) (path, version string, err error) {
	pkgPath := reflect.TypeOf(m).PkgPath()
	if strings.HasPrefix(pkgPath, bi.Main.Path) {
		return bi.Main.Path, bi.Main.Version, nil
	}
	i := slices.IndexFunc(bi.Deps, func(dm *debug.Module) bool {
		return strings.HasPrefix(pkgPath, dm.Path)
	})
	if i == -1 {
		return "", "", errors.Newf("could not find module info for %s", m.Name())
	}
	return bi.Deps[i].Path, bi.Deps[i].Version, nil
}
