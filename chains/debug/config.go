package debug

import (
	"time"

	"github.com/cockroachdb/errors"
	"github.com/hyperledger-labs/yui-packet-relayer/config"
	"github.com/hyperledger-labs/yui-packet-relayer/core"
	"gopkg.in/yaml.v2"
)

const ChainType = "debug"

// ChainConfig wraps the config of another chain. ChainID must be the ID of the origin chain.
type ChainConfig struct {
	ChainID     string        `yaml:"chain-id"`
	OriginChain yaml.MapSlice `yaml:"origin-chain"`

	registry *config.Registry
}

var _ core.ChainConfig = (*ChainConfig)(nil)

// NewChainConfig returns an empty config that resolves its origin with registry
func NewChainConfig(registry *config.Registry) *ChainConfig {
	return &ChainConfig{registry: registry}
}

func (c *ChainConfig) origin() (core.ChainConfig, error) {
	if c.registry == nil {
		return nil, errors.New("debug chain config is not bound to a registry")
	}
	if len(c.OriginChain) == 0 {
		return nil, errors.New("config attribute \"origin-chain\" is empty")
	}
	return c.registry.DecodeChain(c.OriginChain)
}

func (c *ChainConfig) Build(homePath string, timeout time.Duration) (core.Chain, error) {
	originConfig, err := c.origin()
	if err != nil {
		return nil, err
	}
	origin, err := originConfig.Build(homePath, timeout)
	if err != nil {
		return nil, err
	}
	if origin.ChainID() != c.ChainID {
		return nil, errors.Newf("chain-id mismatch: debug=%s origin=%s", c.ChainID, origin.ChainID())
	}
	return NewChain(origin), nil
}

func (c *ChainConfig) Validate() error {
	if c.ChainID == "" {
		return errors.New("config attribute \"chain-id\" is empty")
	}
	originConfig, err := c.origin()
	if err != nil {
		return err
	}
	return errors.Wrap(originConfig.Validate(), "invalid origin chain")
}
