package tendermint

import (
	"strings"
	"time"

	"github.com/cockroachdb/errors"
	cmtmath "github.com/cometbft/cometbft/libs/math"
	"github.com/cosmos/cosmos-sdk/crypto/keyring"
	"github.com/hyperledger-labs/yui-packet-relayer/core"
)

const (
	ChainType  = "tendermint"
	ProverType = "tendermint"
)

// ChainConfig configures a Chain connected to a CometBFT node
type ChainConfig struct {
	Key            string `yaml:"key"`
	ChainID        string `yaml:"chain-id"`
	RPCAddr        string `yaml:"rpc-addr"`
	// GRPCAddr is used for module queries if set. Otherwise they go through ABCI queries on RPCAddr.
	GRPCAddr             string  `yaml:"grpc-addr,omitempty"`
	AccountPrefix        string  `yaml:"account-prefix"`
	GasAdjustment        float64 `yaml:"gas-adjustment"`
	GasPrices            string  `yaml:"gas-prices"`
	AverageBlockTimeMsec uint64  `yaml:"average-block-time-msec"`
	MaxRetryForCommit    uint64  `yaml:"max-retry-for-commit"`
	KeyringBackend       string  `yaml:"keyring-backend"`
	// QueriesPerSecond limits the RPC queries issued to the node. Zero means unlimited.
	QueriesPerSecond int `yaml:"queries-per-second,omitempty"`
}

var _ core.ChainConfig = (*ChainConfig)(nil)

func (c *ChainConfig) Build(homePath string, timeout time.Duration) (core.Chain, error) {
	return NewChain(*c, homePath, timeout)
}

func (c *ChainConfig) Validate() error {
	isEmpty := func(s string) bool {
		return strings.TrimSpace(s) == ""
	}

	var errs []error
	switch c.KeyringBackend {
	case keyring.BackendFile:
	case keyring.BackendOS:
	case keyring.BackendKWallet:
	case keyring.BackendPass:
	case keyring.BackendTest:
	case keyring.BackendMemory:
	default:
		errs = append(errs, errors.Newf("config attribute \"keyring-backend\" is unexpected: %s", c.KeyringBackend))
	}
	if isEmpty(c.Key) {
		errs = append(errs, errors.New("config attribute \"key\" is empty"))
	}
	if isEmpty(c.ChainID) {
		errs = append(errs, errors.New("config attribute \"chain-id\" is empty"))
	}
	if isEmpty(c.RPCAddr) {
		errs = append(errs, errors.New("config attribute \"rpc-addr\" is empty"))
	}
	if isEmpty(c.AccountPrefix) {
		errs = append(errs, errors.New("config attribute \"account-prefix\" is empty"))
	}
	if c.GasAdjustment <= 0 {
		errs = append(errs, errors.Newf("config attribute \"gas-adjustment\" is too small: %v", c.GasAdjustment))
	}
	if isEmpty(c.GasPrices) {
		errs = append(errs, errors.New("config attribute \"gas-prices\" is empty"))
	}
	if c.AverageBlockTimeMsec == 0 {
		errs = append(errs, errors.New("config attribute \"average-block-time-msec\" is zero"))
	}
	if c.MaxRetryForCommit == 0 {
		errs = append(errs, errors.New("config attribute \"max-retry-for-commit\" is zero"))
	}
	if c.QueriesPerSecond < 0 {
		errs = append(errs, errors.Newf("config attribute \"queries-per-second\" is negative: %d", c.QueriesPerSecond))
	}

	// errors.Join returns nil if len(errs) == 0
	return errors.Join(errs...)
}

// Fraction is a ratio of voting power
type Fraction struct {
	Numerator   uint64 `yaml:"numerator"`
	Denominator uint64 `yaml:"denominator"`
}

// ProverConfig configures the light client verification of a Chain
type ProverConfig struct {
	TrustingPeriod string   `yaml:"trusting-period"`
	MaxClockDrift  string   `yaml:"max-clock-drift"`
	TrustLevel     Fraction `yaml:"trust-level"`
}

var _ core.ProverConfig = (*ProverConfig)(nil)

func (c *ProverConfig) Build(chain core.Chain) (core.Prover, error) {
	chain_, ok := chain.(*Chain)
	if !ok {
		return nil, errors.Newf("chain type must be %T, not %T", &Chain{}, chain)
	}
	return NewProver(chain_, *c), nil
}

func (c *ProverConfig) Validate() error {
	var errs []error
	if d, err := time.ParseDuration(c.TrustingPeriod); err != nil {
		errs = append(errs, errors.Wrap(err, "config attribute \"trusting-period\" is invalid"))
	} else if d <= 0 {
		errs = append(errs, errors.New("config attribute \"trusting-period\" must be positive"))
	}
	if _, err := time.ParseDuration(c.MaxClockDrift); err != nil {
		errs = append(errs, errors.Wrap(err, "config attribute \"max-clock-drift\" is invalid"))
	}
	if c.TrustLevel.Denominator == 0 {
		errs = append(errs, errors.New("config attribute \"trust-level.denominator\" must not be zero"))
	} else if err := validateTrustLevel(c.TrustLevel); err != nil {
		errs = append(errs, err)
	}
	return errors.Join(errs...)
}

func validateTrustLevel(f Fraction) error {
	// the light client accepts a trust level in [1/3, 1]
	if f.Numerator*3 < f.Denominator || f.Numerator > f.Denominator {
		return errors.Newf("config attribute \"trust-level\" must be within [1/3, 1]: actual=%d/%d", f.Numerator, f.Denominator)
	}
	return nil
}

func (c ProverConfig) trustingPeriod() time.Duration {
	d, _ := time.ParseDuration(c.TrustingPeriod)
	return d
}

func (c ProverConfig) maxClockDrift() time.Duration {
	d, _ := time.ParseDuration(c.MaxClockDrift)
	return d
}

func (c ProverConfig) trustLevel() cmtmath.Fraction {
	return cmtmath.Fraction{Numerator: c.TrustLevel.Numerator, Denominator: c.TrustLevel.Denominator}
}
