package mock

import (
	"context"

	"github.com/cockroachdb/errors"
	clienttypes "github.com/cosmos/ibc-go/v8/modules/core/02-client/types"
	"github.com/hyperledger-labs/yui-packet-relayer/core"
)

// Prover produces headers of any chain for a mock light client on its counterparty
type Prover struct {
	chain         core.Chain
	finalityDelay uint64
}

var _ core.Prover = (*Prover)(nil)

func NewProver(chain core.Chain, finalityDelay uint64) *Prover {
	return &Prover{chain: chain, finalityDelay: finalityDelay}
}

func (pr *Prover) ClientType() string {
	return ClientType
}

func (pr *Prover) Verifier() core.LightClientVerifier {
	return Verifier{}
}

// GetLatestFinalizedHeader returns the header finalityDelay blocks below the latest height
func (pr *Prover) GetLatestFinalizedHeader(ctx context.Context) (core.Header, error) {
	latest, err := pr.chain.LatestHeight(ctx)
	if err != nil {
		return nil, err
	}
	if latest.RevisionHeight <= pr.finalityDelay {
		return nil, errors.Wrapf(core.ErrHeightNotFound, "no finalized header yet at %v", latest)
	}
	return pr.headerAt(ctx, clienttypes.NewHeight(latest.RevisionNumber, latest.RevisionHeight-pr.finalityDelay))
}

// SetupHeadersForUpdate returns the target header alone: the mock light client accepts a jump to any height
func (pr *Prover) SetupHeadersForUpdate(ctx context.Context, trusted core.TrustedState, latestFinalizedHeader core.Header) ([]core.Header, error) {
	if !latestFinalizedHeader.GetHeight().GT(trusted.Height) {
		return nil, nil
	}
	h, err := pr.headerAt(ctx, latestFinalizedHeader.GetHeight())
	if err != nil {
		return nil, err
	}
	return []core.Header{h}, nil
}

func (pr *Prover) headerAt(ctx context.Context, height clienttypes.Height) (*Header, error) {
	state, err := pr.chain.QueryState(core.NewQueryContext(ctx, height))
	if err != nil {
		return nil, errors.Wrapf(err, "failed to query the state of %s at %v", pr.chain.ChainID(), height)
	}
	h := &Header{
		ChainID:        pr.chain.ChainID(),
		Height:         state.Height,
		Time:           state.Timestamp,
		AppHash:        state.AppHash,
		ValidatorsHash: validatorsHash(pr.chain.ChainID()),
	}
	if height.RevisionHeight > 1 {
		parentHeight := clienttypes.NewHeight(height.RevisionNumber, height.RevisionHeight-1)
		parent, err := pr.chain.QueryState(core.NewQueryContext(ctx, parentHeight))
		if err == nil {
			h.ParentHash = headerHash(pr.chain.ChainID(), parent.Height, parent.Timestamp, parent.AppHash)
		} else if !core.IsPrunedHeight(err) {
			return nil, errors.Wrapf(err, "failed to query the state of %s at %v", pr.chain.ChainID(), parentHeight)
		}
	}
	return h, nil
}
