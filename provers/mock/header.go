package mock

import (
	"crypto/sha256"
	"encoding/binary"
	"time"

	clienttypes "github.com/cosmos/ibc-go/v8/modules/core/02-client/types"
	ibcexported "github.com/cosmos/ibc-go/v8/modules/core/exported"
	mocktypes "github.com/datachainlab/ibc-mock-client/modules/light-clients/xx-mock/types"
	"github.com/hyperledger-labs/yui-packet-relayer/core"
)

// Header is a header of a chain tracked by a mock light client.
// It links to its parent by hash and carries a hash of the validator set.
type Header struct {
	ChainID        string
	Height         clienttypes.Height
	Time           time.Time
	AppHash        []byte
	ParentHash     []byte
	ValidatorsHash []byte
}

var _ core.Header = (*Header)(nil)

func (h *Header) GetHeight() clienttypes.Height {
	return h.Height
}

func (h *Header) Hash() []byte {
	return headerHash(h.ChainID, h.Height, h.Time, h.AppHash)
}

// ClientMessage returns the header in the form the mock light client on the counterparty accepts
func (h *Header) ClientMessage() ibcexported.ClientMessage {
	return &mocktypes.Header{
		Height:    h.Height,
		Timestamp: uint64(h.Time.UnixNano()),
	}
}

func headerHash(chainID string, height clienttypes.Height, t time.Time, appHash []byte) []byte {
	hasher := sha256.New()
	hasher.Write([]byte(chainID))
	hasher.Write(binary.BigEndian.AppendUint64(nil, height.RevisionNumber))
	hasher.Write(binary.BigEndian.AppendUint64(nil, height.RevisionHeight))
	hasher.Write(binary.BigEndian.AppendUint64(nil, uint64(t.UnixNano())))
	hasher.Write(appHash)
	return hasher.Sum(nil)
}

func validatorsHash(chainID string) []byte {
	bz := sha256.Sum256([]byte("validators/" + chainID))
	return bz[:]
}
