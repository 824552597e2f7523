package core

import (
	"fmt"
	"strings"

	sdk "github.com/cosmos/cosmos-sdk/types"
	"github.com/cosmos/gogoproto/proto"
)

// RelayMsgs splits the msgs of a relay round into transactions.
// MaxTxSize and MaxMsgLength are ignored if they are set to zero.
type RelayMsgs struct {
	MaxTxSize    uint64 `json:"max_tx_size"`    // maximum permitted size of the msgs in a bundled relay transaction
	MaxMsgLength uint64 `json:"max_msg_length"` // maximum amount of messages in a bundled relay transaction
}

// relayBatch is one transaction: optional client updates followed by packet msgs
type relayBatch struct {
	packets []*PendingPacket
	msgs    []sdk.Msg
}

func (r RelayMsgs) IsMaxTx(msgLen, txSize uint64) bool {
	return (r.MaxMsgLength != 0 && msgLen > r.MaxMsgLength) ||
		(r.MaxTxSize != 0 && txSize > r.MaxTxSize)
}

// Split packs packets in the given order into batches. Update msgs lead the first batch.
// Every batch carries at least one packet, and a packet flagged for isolation is sent alone.
func (r RelayMsgs) Split(updates []sdk.Msg, packets []*PendingPacket, build func(*PendingPacket) (sdk.Msg, error)) ([]*relayBatch, error) {
	var (
		batches        []*relayBatch
		cur            = &relayBatch{}
		msgLen, txSize uint64
	)
	for _, msg := range updates {
		cur.msgs = append(cur.msgs, msg)
		msgLen++
		txSize += uint64(proto.Size(msg))
	}
	flush := func() {
		if len(cur.packets) > 0 {
			batches = append(batches, cur)
		}
		cur = &relayBatch{}
		msgLen, txSize = 0, 0
	}

	for _, p := range packets {
		msg, err := build(p)
		if err != nil {
			return nil, err
		}
		size := uint64(proto.Size(msg))
		if len(cur.packets) > 0 && (p.Isolate || r.IsMaxTx(msgLen+1, txSize+size)) {
			flush()
		}
		cur.packets = append(cur.packets, p)
		cur.msgs = append(cur.msgs, msg)
		msgLen++
		txSize += size
		if p.Isolate {
			flush()
		}
	}
	flush()
	return batches, nil
}

// GetMsgAction returns a short description of msgs for logging
func GetMsgAction(msgs []sdk.Msg) string {
	var out string
	for i, msg := range msgs {
		out += fmt.Sprintf("%d:%s,", i, sdk.MsgTypeURL(msg))
	}
	return strings.TrimSuffix(out, ",")
}
