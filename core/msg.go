package core

import (
	clienttypes "github.com/cosmos/ibc-go/v8/modules/core/02-client/types"
)

// MsgID identifies a submitted msg
type MsgID interface {
	IsMsgID()
	// TxHash returns the hash of the transaction that includes the msg
	TxHash() string
}

// MsgResult is the execution result of a submitted msg
type MsgResult interface {
	BlockHeight() clienttypes.Height
	// Status returns false and a failure reason if execution failed
	Status() (bool, string)
}
