package core

import (
	"github.com/hyperledger-labs/yui-packet-relayer/log"
)

// GetPathLogger returns a logger scoped to a relay path
func GetPathLogger(name string, path *Path) *log.RelayLogger {
	logger := log.GetLogger().
		WithModule("core.relay-path").
		WithChannel(
			path.Src.ChainID, path.Src.PortID, path.Src.ChannelID,
			path.Dst.ChainID, path.Dst.PortID, path.Dst.ChannelID,
		)
	return &log.RelayLogger{Logger: logger.With("path", name)}
}

// GetChainLogger returns a logger scoped to a chain
func GetChainLogger(chainID string, module string) *log.RelayLogger {
	return log.GetLogger().WithModule(module).WithChain(chainID)
}
