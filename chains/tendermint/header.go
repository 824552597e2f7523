package tendermint

import (
	cmttypes "github.com/cometbft/cometbft/types"
	clienttypes "github.com/cosmos/ibc-go/v8/modules/core/02-client/types"
	ibcexported "github.com/cosmos/ibc-go/v8/modules/core/exported"
	ibctm "github.com/cosmos/ibc-go/v8/modules/light-clients/07-tendermint"

	"github.com/hyperledger-labs/yui-packet-relayer/core"
)

// Header is a signed header with the validator sets needed to verify it from a trusted height
type Header struct {
	SignedHeader *cmttypes.SignedHeader
	ValidatorSet *cmttypes.ValidatorSet

	// TrustedHeader is the header at TrustedHeight and TrustedValidators are its next validators.
	// Both are nil for a header that is not prepared for an update.
	TrustedHeight     clienttypes.Height
	TrustedHeader     *cmttypes.SignedHeader
	TrustedValidators *cmttypes.ValidatorSet

	msg *ibctm.Header
}

var _ core.Header = (*Header)(nil)

func newHeader(sh *cmttypes.SignedHeader, vals *cmttypes.ValidatorSet) (*Header, error) {
	protoVals, err := vals.ToProto()
	if err != nil {
		return nil, err
	}
	return &Header{
		SignedHeader: sh,
		ValidatorSet: vals,
		msg: &ibctm.Header{
			SignedHeader: sh.ToProto(),
			ValidatorSet: protoVals,
		},
	}, nil
}

// withTrusted returns a copy of h that can update a client trusting trustedHeader
func (h *Header) withTrusted(height clienttypes.Height, trustedHeader *cmttypes.SignedHeader, trustedVals *cmttypes.ValidatorSet) (*Header, error) {
	protoVals, err := trustedVals.ToProto()
	if err != nil {
		return nil, err
	}
	msg := *h.msg
	msg.TrustedHeight = height
	msg.TrustedValidators = protoVals
	return &Header{
		SignedHeader:      h.SignedHeader,
		ValidatorSet:      h.ValidatorSet,
		TrustedHeight:     height,
		TrustedHeader:     trustedHeader,
		TrustedValidators: trustedVals,
		msg:               &msg,
	}, nil
}

func (h *Header) GetHeight() clienttypes.Height {
	return clienttypes.NewHeight(clienttypes.ParseChainID(h.SignedHeader.ChainID), uint64(h.SignedHeader.Height))
}

func (h *Header) Hash() []byte {
	return h.SignedHeader.Hash()
}

func (h *Header) ClientMessage() ibcexported.ClientMessage {
	return h.msg
}
