package mock

import (
	clienttypes "github.com/cosmos/ibc-go/v8/modules/core/02-client/types"
	"github.com/hyperledger-labs/yui-packet-relayer/core"
)

// MsgID is the index of a msg within a committed transaction
type MsgID struct {
	txHash   string
	msgIndex uint32
}

var _ core.MsgID = (*MsgID)(nil)

func (*MsgID) IsMsgID() {}

func (i *MsgID) TxHash() string {
	return i.txHash
}

func (i *MsgID) MsgIndex() uint32 {
	return i.msgIndex
}

type MsgResult struct {
	height        clienttypes.Height
	status        bool
	failureReason string
}

var _ core.MsgResult = (*MsgResult)(nil)

func (r *MsgResult) BlockHeight() clienttypes.Height {
	return r.height
}

func (r *MsgResult) Status() (bool, string) {
	return r.status, r.failureReason
}
