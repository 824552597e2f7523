package tendermint

import (
	"testing"
	"time"

	errorsmod "cosmossdk.io/errors"
	"github.com/cockroachdb/errors"
	cmttypes "github.com/cometbft/cometbft/types"
	sdkerrors "github.com/cosmos/cosmos-sdk/types/errors"
	chantypes "github.com/cosmos/ibc-go/v8/modules/core/04-channel/types"
	"github.com/stretchr/testify/require"

	"github.com/hyperledger-labs/yui-packet-relayer/core"
)

func validChainConfig() ChainConfig {
	return ChainConfig{
		Key:                  "testkey",
		ChainID:              "ibc0",
		RPCAddr:              "http://localhost:26657",
		AccountPrefix:        "cosmos",
		GasAdjustment:        1.5,
		GasPrices:            "0.025stake",
		AverageBlockTimeMsec: 1000,
		MaxRetryForCommit:    5,
		KeyringBackend:       "test",
	}
}

func TestChainConfigValidate(t *testing.T) {
	cases := []struct {
		name     string
		modify   func(*ChainConfig)
		contains []string
	}{
		{"valid", func(*ChainConfig) {}, nil},
		{"keyring backend", func(c *ChainConfig) { c.KeyringBackend = "vault" }, []string{"keyring-backend"}},
		{"blank fields", func(c *ChainConfig) { c.Key, c.RPCAddr = " ", "" }, []string{`"key" is empty`, `"rpc-addr" is empty`}},
		{"gas", func(c *ChainConfig) { c.GasAdjustment = 0 }, []string{"gas-adjustment"}},
		{"qps", func(c *ChainConfig) { c.QueriesPerSecond = -1 }, []string{"queries-per-second"}},
	}
	for _, c := range cases {
		t.Run(c.name, func(t *testing.T) {
			cfg := validChainConfig()
			c.modify(&cfg)
			err := cfg.Validate()
			if len(c.contains) == 0 {
				require.NoError(t, err)
				return
			}
			for _, s := range c.contains {
				require.ErrorContains(t, err, s)
			}
		})
	}
}

func TestProverConfigValidate(t *testing.T) {
	valid := ProverConfig{TrustingPeriod: "336h", MaxClockDrift: "10s", TrustLevel: Fraction{1, 3}}
	require.NoError(t, valid.Validate())
	require.Equal(t, 336*time.Hour, valid.trustingPeriod())
	require.Equal(t, 10*time.Second, valid.maxClockDrift())

	cases := []struct {
		name     string
		cfg      ProverConfig
		contains string
	}{
		{"bad trusting period", ProverConfig{TrustingPeriod: "two weeks", MaxClockDrift: "0s", TrustLevel: Fraction{1, 3}}, "trusting-period"},
		{"zero trusting period", ProverConfig{TrustingPeriod: "0s", MaxClockDrift: "0s", TrustLevel: Fraction{1, 3}}, "must be positive"},
		{"bad drift", ProverConfig{TrustingPeriod: "1h", TrustLevel: Fraction{1, 3}}, "max-clock-drift"},
		{"zero denominator", ProverConfig{TrustingPeriod: "1h", MaxClockDrift: "0s"}, "denominator"},
		{"trust level too low", ProverConfig{TrustingPeriod: "1h", MaxClockDrift: "0s", TrustLevel: Fraction{1, 4}}, "[1/3, 1]"},
		{"trust level above one", ProverConfig{TrustingPeriod: "1h", MaxClockDrift: "0s", TrustLevel: Fraction{4, 3}}, "[1/3, 1]"},
	}
	for _, c := range cases {
		t.Run(c.name, func(t *testing.T) {
			require.ErrorContains(t, c.cfg.Validate(), c.contains)
		})
	}
}

func TestProverConfigBuildRequiresTendermintChain(t *testing.T) {
	cfg := ProverConfig{TrustingPeriod: "1h", MaxClockDrift: "0s", TrustLevel: Fraction{2, 3}}
	_, err := cfg.Build(nil)
	require.Error(t, err)
}

func TestClassifyABCIError(t *testing.T) {
	redundant := classifyABCIError(errorsmod.Wrap(chantypes.ErrRedundantTx, "packet messages are redundant"))
	require.True(t, errors.Is(redundant, core.ErrAlreadyRelayed))

	for _, err := range []error{sdkerrors.ErrWrongSequence, sdkerrors.ErrMempoolIsFull, sdkerrors.ErrOutOfGas} {
		require.True(t, errors.Is(classifyABCIError(errorsmod.Wrap(err, "broadcast")), core.ErrUnconfirmed), err.Error())
	}

	rejected := classifyABCIError(errorsmod.Wrap(sdkerrors.ErrInsufficientFee, "fee"))
	var rerr *core.RejectedError
	require.True(t, errors.As(rejected, &rerr))
	require.Contains(t, rerr.Reason, "insufficient fee")

	transport := errors.New("connection reset")
	require.Equal(t, transport, classifyABCIError(transport))
}

func TestEventIndex(t *testing.T) {
	require.Less(t, eventIndex(0, 5), eventIndex(1, 0))
	require.Less(t, eventIndex(1, 0), eventIndex(1, 1))
	require.NotEqual(t, eventIndex(2, 3), eventIndex(3, 2))
}

func TestVerifierRejectsUnpreparedHeaders(t *testing.T) {
	v := &Verifier{now: time.Now}
	trusted := core.TrustedState{}

	unprepared := &Header{SignedHeader: &cmttypes.SignedHeader{Header: &cmttypes.Header{ChainID: "ibc-0", Height: 5}}}
	_, err := v.Verify(trusted, []core.Header{unprepared})
	require.ErrorIs(t, err, core.ErrInvalidHeader)

	_, err = v.Verify(trusted, []core.Header{fakeHeader{}})
	require.ErrorIs(t, err, core.ErrInvalidHeader)

	next, err := v.Verify(trusted, nil)
	require.NoError(t, err)
	require.Equal(t, trusted, *next)
}

type fakeHeader struct {
	core.Header
}
