package tendermint

import (
	"context"
	"time"

	"github.com/cockroachdb/errors"
	cmttypes "github.com/cometbft/cometbft/types"
	"github.com/cosmos/ibc-go/v8/modules/core/exported"

	"github.com/hyperledger-labs/yui-packet-relayer/core"
)

const validatorsPerPage = 100

// Prover produces headers of a tendermint chain for an 07-tendermint light client
type Prover struct {
	chain  *Chain
	config ProverConfig
}

var _ core.Prover = (*Prover)(nil)

func NewProver(chain *Chain, config ProverConfig) *Prover {
	return &Prover{chain: chain, config: config}
}

func (pr *Prover) ClientType() string {
	return exported.Tendermint
}

func (pr *Prover) Verifier() core.LightClientVerifier {
	return &Verifier{config: pr.config, now: time.Now}
}

// GetLatestFinalizedHeader returns the latest committed header. Tendermint blocks are final once committed.
func (pr *Prover) GetLatestFinalizedHeader(ctx context.Context) (core.Header, error) {
	latest, err := pr.chain.LatestHeight(ctx)
	if err != nil {
		return nil, err
	}
	return pr.headerAt(ctx, int64(latest.RevisionHeight))
}

// SetupHeadersForUpdate returns latestFinalizedHeader with the trusted header and validators attached.
// The 07-tendermint client can skip to any height within the trusting period.
func (pr *Prover) SetupHeadersForUpdate(ctx context.Context, trusted core.TrustedState, latestFinalizedHeader core.Header) ([]core.Header, error) {
	h, ok := latestFinalizedHeader.(*Header)
	if !ok {
		return nil, errors.Errorf("unexpected header type: %T", latestFinalizedHeader)
	}
	if !h.GetHeight().GT(trusted.Height) {
		return nil, nil
	}
	trustedHeight := int64(trusted.Height.RevisionHeight)
	trustedHeader, err := pr.signedHeader(ctx, trustedHeight)
	if err != nil {
		return nil, errors.Wrapf(err, "failed to query the trusted header at %v", trusted.Height)
	}
	// the client stores the next validators hash of the trusted height
	trustedVals, err := pr.validatorSet(ctx, trustedHeight+1)
	if err != nil {
		return nil, errors.Wrapf(err, "failed to query the validators at %d", trustedHeight+1)
	}
	header, err := h.withTrusted(trusted.Height, trustedHeader, trustedVals)
	if err != nil {
		return nil, err
	}
	return []core.Header{header}, nil
}

func (pr *Prover) headerAt(ctx context.Context, height int64) (*Header, error) {
	sh, err := pr.signedHeader(ctx, height)
	if err != nil {
		return nil, err
	}
	vals, err := pr.validatorSet(ctx, height)
	if err != nil {
		return nil, err
	}
	return newHeader(sh, vals)
}

func (pr *Prover) signedHeader(ctx context.Context, height int64) (*cmttypes.SignedHeader, error) {
	pr.chain.limiter.Take()
	res, err := pr.chain.client.Commit(ctx, &height)
	if err != nil {
		return nil, pr.chain.heightError(ctx, err, height)
	}
	return &res.SignedHeader, nil
}

func (pr *Prover) validatorSet(ctx context.Context, height int64) (*cmttypes.ValidatorSet, error) {
	var vals []*cmttypes.Validator
	perPage := validatorsPerPage
	for page := 1; ; page++ {
		pr.chain.limiter.Take()
		p := page
		res, err := pr.chain.client.Validators(ctx, &height, &p, &perPage)
		if err != nil {
			return nil, pr.chain.heightError(ctx, err, height)
		}
		vals = append(vals, res.Validators...)
		if len(vals) >= res.Total || len(res.Validators) == 0 {
			break
		}
	}
	vs := cmttypes.NewValidatorSet(vals)
	if err := vs.ValidateBasic(); err != nil {
		return nil, errors.Wrapf(err, "invalid validator set at %d", height)
	}
	return vs, nil
}
