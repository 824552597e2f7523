package config

import (
	"time"

	"github.com/cockroachdb/errors"
	"github.com/hyperledger-labs/yui-packet-relayer/core"
	"gopkg.in/yaml.v2"
)

const chainIDKey = "chain-id"

// ChainProverConfig defines the top level configuration for a chain instance.
// Each section carries a `type` that selects the config implementation registered by a module.
type ChainProverConfig struct {
	Chain  yaml.MapSlice `yaml:"chain"`
	Prover yaml.MapSlice `yaml:"prover"`

	// cache
	chain  core.ChainConfig
	prover core.ProverConfig
}

// NewChainProverConfig encodes chain and prover into typed sections
func NewChainProverConfig(registry *Registry, chain core.ChainConfig, prover core.ProverConfig) (*ChainProverConfig, error) {
	chainType, err := registry.chainTypeOf(chain)
	if err != nil {
		return nil, err
	}
	proverType, err := registry.proverTypeOf(prover)
	if err != nil {
		return nil, err
	}
	cs, err := withType(chainType, chain)
	if err != nil {
		return nil, errors.Wrap(err, "error marshalling chain config")
	}
	ps, err := withType(proverType, prover)
	if err != nil {
		return nil, errors.Wrap(err, "error marshalling prover config")
	}
	return &ChainProverConfig{Chain: cs, Prover: ps, chain: chain, prover: prover}, nil
}

// Init decodes the typed sections
func (cc *ChainProverConfig) Init(registry *Registry) error {
	chain, _, err := registry.decodeChain(cc.Chain)
	if err != nil {
		return err
	} else if err := chain.Validate(); err != nil {
		return errors.Wrap(err, "invalid chain config")
	}
	prover, _, err := registry.decodeProver(cc.Prover)
	if err != nil {
		return err
	} else if err := prover.Validate(); err != nil {
		return errors.Wrap(err, "invalid prover config")
	}
	cc.chain = chain
	cc.prover = prover
	return nil
}

// ChainID returns the chain-id of the chain section
func (cc *ChainProverConfig) ChainID() string {
	for _, item := range cc.Chain {
		if key, ok := item.Key.(string); ok && key == chainIDKey {
			id, _ := item.Value.(string)
			return id
		}
	}
	return ""
}

// Type returns the types of the chain and prover sections
func (cc *ChainProverConfig) Type() (chainType, proverType string) {
	chainType, _, _ = splitType(cc.Chain)
	proverType, _, _ = splitType(cc.Prover)
	return
}

func (cc *ChainProverConfig) Validate() error {
	if cc.chain == nil || cc.prover == nil {
		return errors.New("chain config is not initialized")
	}
	if cc.ChainID() == "" {
		return errors.Newf("%s is empty", chainIDKey)
	}
	return nil
}

// GetChainConfig returns the cached ChainConfig instance
func (cc *ChainProverConfig) GetChainConfig() (core.ChainConfig, error) {
	if cc.chain == nil {
		return nil, errors.New("chain is nil")
	}
	return cc.chain, nil
}

// GetProverConfig returns the cached ProverConfig instance
func (cc *ChainProverConfig) GetProverConfig() (core.ProverConfig, error) {
	if cc.prover == nil {
		return nil, errors.New("prover is nil")
	}
	return cc.prover, nil
}

// Build returns a new ProvableChain instance
func (cc *ChainProverConfig) Build(homePath string, timeout time.Duration) (*core.ProvableChain, error) {
	chainConfig, err := cc.GetChainConfig()
	if err != nil {
		return nil, err
	}
	proverConfig, err := cc.GetProverConfig()
	if err != nil {
		return nil, err
	}
	chain, err := chainConfig.Build(homePath, timeout)
	if err != nil {
		return nil, err
	}
	prover, err := proverConfig.Build(chain)
	if err != nil {
		return nil, err
	}
	return core.NewProvableChain(chain, prover), nil
}

type Chains []*core.ProvableChain

// Get returns the configuration for a given chain
func (cs Chains) Get(chainID string) (*core.ProvableChain, error) {
	for _, chain := range cs {
		if chainID == chain.ChainID() {
			return chain, nil
		}
	}
	return nil, errors.Newf("chain with ID %s is not configured", chainID)
}

// Gets returns a map chainIDs to their chains
func (cs Chains) Gets(chainIDs ...string) (map[string]*core.ProvableChain, error) {
	out := make(map[string]*core.ProvableChain)
	for _, cid := range chainIDs {
		chain, err := cs.Get(cid)
		if err != nil {
			return out, err
		}
		out[cid] = chain
	}
	return out, nil
}

// Map returns every chain keyed by its ID
func (cs Chains) Map() map[string]*core.ProvableChain {
	out := make(map[string]*core.ProvableChain, len(cs))
	for _, chain := range cs {
		out[chain.ChainID()] = chain
	}
	return out
}
