package mock

import (
	"github.com/hyperledger-labs/yui-packet-relayer/core"
)

const ProverType = "mock"

// ProverConfig configures a Prover for a chain whose counterparty runs a mock light client
type ProverConfig struct {
	// FinalityDelay is the number of blocks below the latest one that are considered unfinalized
	FinalityDelay uint64 `yaml:"finality-delay"`
}

var _ core.ProverConfig = (*ProverConfig)(nil)

func (c *ProverConfig) Build(chain core.Chain) (core.Prover, error) {
	return NewProver(chain, c.FinalityDelay), nil
}

func (c *ProverConfig) Validate() error {
	return nil
}
