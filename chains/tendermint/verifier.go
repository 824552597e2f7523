package tendermint

import (
	"bytes"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/cometbft/cometbft/light"
	"github.com/cosmos/ibc-go/v8/modules/core/exported"

	"github.com/hyperledger-labs/yui-packet-relayer/core"
)

// Verifier checks tendermint headers with the light client skipping verification
type Verifier struct {
	config ProverConfig
	now    func() time.Time
}

var _ core.LightClientVerifier = (*Verifier)(nil)

func (v *Verifier) ClientType() string {
	return exported.Tendermint
}

func (v *Verifier) Verify(trusted core.TrustedState, headers []core.Header) (*core.TrustedState, error) {
	state := trusted
	for _, hi := range headers {
		h, ok := hi.(*Header)
		if !ok {
			return nil, errors.Wrapf(core.ErrInvalidHeader, "unexpected header type: %T", hi)
		}
		if h.TrustedHeader == nil || h.TrustedValidators == nil {
			return nil, errors.Wrapf(core.ErrInvalidHeader, "header at %v has no trusted header", h.GetHeight())
		}
		if !h.TrustedHeight.EQ(state.Height) {
			return nil, errors.Wrapf(core.ErrInvalidHeader, "header at %v is linked to %v, not the trusted height %v", h.GetHeight(), h.TrustedHeight, state.Height)
		}
		if len(state.HeaderHash) > 0 && !bytes.Equal(h.TrustedHeader.Hash(), state.HeaderHash) {
			return nil, errors.Wrapf(core.ErrInvalidHeader, "trusted header hash mismatch at %v: expected=%X actual=%X", state.Height, state.HeaderHash, h.TrustedHeader.Hash())
		}
		if len(state.Commitment) > 0 && !bytes.Equal(h.TrustedHeader.NextValidatorsHash, state.Commitment) {
			return nil, errors.Wrapf(core.ErrInvalidHeader, "next validators hash mismatch at %v", state.Height)
		}
		if !bytes.Equal(h.TrustedValidators.Hash(), h.TrustedHeader.NextValidatorsHash) {
			return nil, errors.Wrapf(core.ErrInvalidHeader, "trusted validators do not match the trusted header at %v", state.Height)
		}

		if err := light.Verify(
			h.TrustedHeader, h.TrustedValidators,
			h.SignedHeader, h.ValidatorSet,
			v.config.trustingPeriod(), v.now(), v.config.maxClockDrift(), v.config.trustLevel(),
		); err != nil {
			return nil, errors.Mark(errors.Wrapf(err, "failed to verify header at %v", h.GetHeight()), core.ErrVerification)
		}

		state = core.TrustedState{
			ClientID:   trusted.ClientID,
			Height:     h.GetHeight(),
			Timestamp:  h.SignedHeader.Time,
			Commitment: h.SignedHeader.NextValidatorsHash,
			HeaderHash: h.Hash(),
		}
	}
	return &state, nil
}
