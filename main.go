package main

import (
	"os"

	debug "github.com/hyperledger-labs/yui-packet-relayer/chains/debug/module"
	tendermint "github.com/hyperledger-labs/yui-packet-relayer/chains/tendermint/module"
	"github.com/hyperledger-labs/yui-packet-relayer/cmd"
	mock "github.com/hyperledger-labs/yui-packet-relayer/provers/mock/module"
)

func main() {
	if err := cmd.Execute(
		tendermint.Module{},
		debug.Module{},
		mock.Module{},
	); err != nil {
		os.Exit(1)
	}
}
