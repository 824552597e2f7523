package mock

import (
	"bytes"

	"github.com/cockroachdb/errors"
	"github.com/hyperledger-labs/yui-packet-relayer/core"
)

const ClientType = "mock-client"

// Verifier verifies mock headers. An adjacent header must link to the trusted header by its parent hash,
// and a non-adjacent one must be signed by the trusted validator set.
type Verifier struct{}

var _ core.LightClientVerifier = Verifier{}

func (Verifier) ClientType() string {
	return ClientType
}

func (Verifier) Verify(trusted core.TrustedState, headers []core.Header) (*core.TrustedState, error) {
	cur := trusted
	for _, h := range headers {
		header, ok := h.(*Header)
		if !ok {
			return nil, errors.Wrapf(core.ErrInvalidHeader, "unexpected header type %T", h)
		}
		if !header.Height.GT(cur.Height) {
			return nil, errors.Wrapf(core.ErrInvalidHeader, "header %v is not above the trusted height %v", header.Height, cur.Height)
		}
		adjacent := header.Height.RevisionNumber == cur.Height.RevisionNumber &&
			header.Height.RevisionHeight == cur.Height.RevisionHeight+1
		if adjacent {
			if len(cur.HeaderHash) > 0 && !bytes.Equal(header.ParentHash, cur.HeaderHash) {
				return nil, errors.Wrapf(core.ErrInvalidHeader, "header %v does not link to the trusted header %X", header.Height, cur.HeaderHash)
			}
		} else if len(cur.Commitment) > 0 && !bytes.Equal(header.ValidatorsHash, cur.Commitment) {
			return nil, errors.Wrapf(core.ErrInvalidHeader, "header %v is not signed by the trusted validators", header.Height)
		}
		if !cur.Timestamp.IsZero() && !header.Time.After(cur.Timestamp) {
			return nil, errors.Wrapf(core.ErrVerification, "header time %v is not after the trusted time %v", header.Time, cur.Timestamp)
		}
		cur = core.TrustedState{
			ClientID:   trusted.ClientID,
			Height:     header.Height,
			Timestamp:  header.Time,
			Commitment: header.ValidatorsHash,
			HeaderHash: header.Hash(),
		}
	}
	return &cur, nil
}
