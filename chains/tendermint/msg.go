package tendermint

import (
	clienttypes "github.com/cosmos/ibc-go/v8/modules/core/02-client/types"
	"github.com/hyperledger-labs/yui-packet-relayer/core"
)

var (
	_ core.MsgID     = (*MsgID)(nil)
	_ core.MsgResult = (*MsgResult)(nil)
)

type MsgID struct {
	txHash   string
	msgIndex uint32
}

func (i *MsgID) IsMsgID() {}

func (i *MsgID) TxHash() string {
	return i.txHash
}

func (i *MsgID) MsgIndex() uint32 {
	return i.msgIndex
}

type MsgResult struct {
	height          clienttypes.Height
	txStatus        bool
	txFailureReason string
}

func (r *MsgResult) BlockHeight() clienttypes.Height {
	return r.height
}

func (r *MsgResult) Status() (bool, string) {
	return r.txStatus, r.txFailureReason
}
