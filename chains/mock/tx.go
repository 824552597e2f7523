package mock

import (
	"bytes"
	"context"
	"strings"
	"time"

	"github.com/cockroachdb/errors"
	abci "github.com/cometbft/cometbft/abci/types"
	sdk "github.com/cosmos/cosmos-sdk/types"
	clienttypes "github.com/cosmos/ibc-go/v8/modules/core/02-client/types"
	chantypes "github.com/cosmos/ibc-go/v8/modules/core/04-channel/types"
	host "github.com/cosmos/ibc-go/v8/modules/core/24-host"
	mocktypes "github.com/datachainlab/ibc-mock-client/modules/light-clients/xx-mock/types"
	"github.com/hyperledger-labs/yui-packet-relayer/core"
)

var errRedundant = errors.New("packet msg is redundant")

// txState is the staged effect of a transaction, applied only when every msg succeeds
type txState struct {
	ws        *writeSet
	height    uint64
	time      time.Time
	consensus map[string]map[clienttypes.Height]uint64
	acks      map[*channel][]*core.PacketInfo
	closes    []*channel
	events    []abci.Event
}

func (c *Chain) SendMsgs(ctx context.Context, msgs []sdk.Msg) ([]core.MsgID, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.calls.Record("%s.SendMsgs %s", c.chainID, msgTypes(msgs))

	var fault *Fault
	if len(c.faults) > 0 {
		fault = &c.faults[0]
		c.faults = c.faults[1:]
	}
	if fault != nil && fault.Hang {
		c.mu.Unlock()
		<-ctx.Done()
		c.mu.Lock()
		return nil, ctx.Err()
	}
	if fault != nil && !fault.Apply {
		return nil, fault.Err
	}

	ids, err := c.execute(msgs)
	if fault != nil {
		return nil, fault.Err
	}
	return ids, err
}

func (c *Chain) execute(msgs []sdk.Msg) ([]core.MsgID, error) {
	tx := &txState{
		ws:        c.store.newWriteSet(c.height),
		height:    c.height + 1,
		time:      c.BlockTime(c.height + 1),
		consensus: make(map[string]map[clienttypes.Height]uint64),
		acks:      make(map[*channel][]*core.PacketInfo),
	}
	var packetMsgs, redundant int
	for i, msg := range msgs {
		var err error
		switch msg := msg.(type) {
		case *clienttypes.MsgUpdateClient:
			err = c.updateClient(tx, msg)
		case *chantypes.MsgRecvPacket:
			packetMsgs++
			err = c.recvPacket(tx, msg)
		case *chantypes.MsgAcknowledgement:
			packetMsgs++
			err = c.acknowledgePacket(tx, msg)
		case *chantypes.MsgTimeout:
			packetMsgs++
			err = c.timeoutPacket(tx, msg)
		default:
			err = errors.Newf("unsupported msg %s", sdk.MsgTypeURL(msg))
		}
		if errors.Is(err, errRedundant) {
			redundant++
		} else if err != nil {
			return nil, core.NewRejectedError("failed to execute message; message index: %d: %v", i, err)
		}
	}
	if packetMsgs > 0 && redundant == packetMsgs {
		return nil, errors.Wrapf(core.ErrAlreadyRelayed, "%d packet msgs", packetMsgs)
	}

	for clientID, states := range tx.consensus {
		cl := c.clients[clientID]
		for h, ts := range states {
			cl.consensus[h] = ts
			if h.GT(cl.latest) {
				cl.latest = h
			}
		}
	}
	for ch, infos := range tx.acks {
		for _, info := range infos {
			ch.acks[info.Sequence] = info
		}
	}
	for _, ch := range tx.closes {
		ch.state = chantypes.CLOSED
	}
	height := c.commit(tx.ws, tx.events)

	hash := txHash(c.chainID, height)
	c.txs[hash] = txResult{height: c.heightOf(height), ok: true}
	c.applied = append(c.applied, msgs)

	ids := make([]core.MsgID, len(msgs))
	for i := range msgs {
		ids[i] = &MsgID{txHash: hash, msgIndex: uint32(i)}
	}
	return ids, nil
}

func (c *Chain) GetMsgResult(ctx context.Context, id core.MsgID) (core.MsgResult, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	msgID, ok := id.(*MsgID)
	if !ok {
		return nil, errors.Newf("unexpected msg id type: %T", id)
	}
	res, ok := c.txs[msgID.txHash]
	if !ok {
		return nil, errors.Wrapf(core.ErrUnconfirmed, "tx %s not found", msgID.txHash)
	}
	return &MsgResult{height: res.height, status: res.ok, failureReason: res.reason}, nil
}

func (c *Chain) consensusTimestamp(tx *txState, clientID string, height clienttypes.Height) (uint64, bool) {
	if ts, ok := tx.consensus[clientID][height]; ok {
		return ts, true
	}
	cl, ok := c.clients[clientID]
	if !ok {
		return 0, false
	}
	ts, ok := cl.consensus[height]
	return ts, ok
}

func (c *Chain) updateClient(tx *txState, msg *clienttypes.MsgUpdateClient) error {
	if _, ok := c.clients[msg.ClientId]; !ok {
		return errors.Newf("client %s not found", msg.ClientId)
	}
	if msg.ClientMessage == nil {
		return errors.New("client message is empty")
	}
	header, ok := msg.ClientMessage.GetCachedValue().(*mocktypes.Header)
	if !ok {
		return errors.Newf("unexpected client message: %T", msg.ClientMessage.GetCachedValue())
	}
	if header.Height.IsZero() || header.Timestamp == 0 {
		return errors.New("header height and timestamp must be set")
	}
	if ts, ok := c.consensusTimestamp(tx, msg.ClientId, header.Height); ok {
		if ts != header.Timestamp {
			return errors.Newf("conflicting header at %v", header.Height)
		}
		return nil
	}
	if tx.consensus[msg.ClientId] == nil {
		tx.consensus[msg.ClientId] = make(map[clienttypes.Height]uint64)
	}
	tx.consensus[msg.ClientId][header.Height] = header.Timestamp
	return nil
}

// verify checks a proof taken by the counterparty of clientID at proofHeight
func (c *Chain) verify(tx *txState, clientID string, proofHeight clienttypes.Height, path string, value, proof []byte) error {
	if _, ok := c.consensusTimestamp(tx, clientID, proofHeight); !ok {
		return errors.Newf("consensus state not found for height %v", proofHeight)
	}
	if !bytes.Equal(proof, Proof(path, value, proofHeight)) {
		return errors.Newf("failed to verify proof of %s at %v", path, proofHeight)
	}
	return nil
}

func (c *Chain) openChannel(portID, channelID string) (*channel, error) {
	ch, ok := c.channels[channelKey(portID, channelID)]
	if !ok {
		return nil, errors.Newf("channel %s/%s not found", portID, channelID)
	}
	if ch.state != chantypes.OPEN {
		return nil, errors.Newf("channel %s/%s is not open: %s", portID, channelID, ch.state)
	}
	return ch, nil
}

func (c *Chain) recvPacket(tx *txState, msg *chantypes.MsgRecvPacket) error {
	packet := msg.Packet
	ch, err := c.openChannel(packet.DestinationPort, packet.DestinationChannel)
	if err != nil {
		return err
	}
	if packet.SourcePort != ch.counterparty.PortID || packet.SourceChannel != ch.counterparty.ChannelID {
		return errors.Newf("packet source %s/%s does not match the counterparty %s/%s",
			packet.SourcePort, packet.SourceChannel, ch.counterparty.PortID, ch.counterparty.ChannelID)
	}
	if !packet.TimeoutHeight.IsZero() && c.heightOf(tx.height).GTE(packet.TimeoutHeight) {
		return errors.Newf("block height >= packet timeout height (%v >= %v)", c.heightOf(tx.height), packet.TimeoutHeight)
	}
	if packet.TimeoutTimestamp != 0 && uint64(tx.time.UnixNano()) >= packet.TimeoutTimestamp {
		return errors.Newf("block timestamp >= packet timeout timestamp (%d >= %d)", tx.time.UnixNano(), packet.TimeoutTimestamp)
	}

	seq := packet.Sequence
	receiptPath := host.PacketReceiptPath(packet.DestinationPort, packet.DestinationChannel, seq)
	nextSeqPath := host.NextSequenceRecvPath(packet.DestinationPort, packet.DestinationChannel)
	if ch.order == chantypes.ORDERED {
		next := c.nextSequenceRecv(packet.DestinationPort, packet.DestinationChannel, tx.ws.get)
		if seq < next {
			return errRedundant
		} else if seq > next {
			return errors.Newf("packet sequence %d != next receive sequence %d", seq, next)
		}
	} else if tx.ws.get(receiptPath) != nil {
		return errRedundant
	}

	commitmentPath := host.PacketCommitmentPath(packet.SourcePort, packet.SourceChannel, seq)
	if err := c.verify(tx, ch.clientID, msg.ProofHeight, commitmentPath, chantypes.CommitPacket(nil, packet), msg.ProofCommitment); err != nil {
		return err
	}

	if ch.order == chantypes.ORDERED {
		tx.ws.set(nextSeqPath, sdk.Uint64ToBigEndian(seq+1))
	} else {
		tx.ws.set(receiptPath, []byte{1})
	}
	ack := c.ackFunc(packet)
	tx.ws.set(host.PacketAcknowledgementPath(packet.DestinationPort, packet.DestinationChannel, seq), chantypes.CommitAcknowledgement(ack))
	tx.acks[ch] = append(tx.acks[ch], &core.PacketInfo{Packet: packet, Acknowledgement: ack, EventHeight: c.heightOf(tx.height)})
	tx.events = append(tx.events,
		core.PacketEvent(core.EventRecvPacket, packet, nil, ch.order),
		core.PacketEvent(core.EventWriteAcknowledgement, packet, ack, ch.order),
	)
	return nil
}

func (c *Chain) acknowledgePacket(tx *txState, msg *chantypes.MsgAcknowledgement) error {
	packet := msg.Packet
	ch, err := c.openChannel(packet.SourcePort, packet.SourceChannel)
	if err != nil {
		return err
	}
	seq := packet.Sequence
	commitmentPath := host.PacketCommitmentPath(packet.SourcePort, packet.SourceChannel, seq)
	commitment := tx.ws.get(commitmentPath)
	if commitment == nil {
		return errRedundant
	}
	if !bytes.Equal(commitment, chantypes.CommitPacket(nil, packet)) {
		return errors.Newf("commitment bytes are not equal for sequence %d", seq)
	}
	ackPath := host.PacketAcknowledgementPath(packet.DestinationPort, packet.DestinationChannel, seq)
	if err := c.verify(tx, ch.clientID, msg.ProofHeight, ackPath, chantypes.CommitAcknowledgement(msg.Acknowledgement), msg.ProofAcked); err != nil {
		return err
	}
	tx.ws.set(commitmentPath, nil)
	tx.events = append(tx.events, core.PacketEvent(core.EventAcknowledgePacket, packet, nil, ch.order))
	return nil
}

func (c *Chain) timeoutPacket(tx *txState, msg *chantypes.MsgTimeout) error {
	packet := msg.Packet
	ch, ok := c.channels[channelKey(packet.SourcePort, packet.SourceChannel)]
	if !ok {
		return errors.Newf("channel %s/%s not found", packet.SourcePort, packet.SourceChannel)
	}
	seq := packet.Sequence
	commitmentPath := host.PacketCommitmentPath(packet.SourcePort, packet.SourceChannel, seq)
	commitment := tx.ws.get(commitmentPath)
	if commitment == nil {
		return errRedundant
	}
	if !bytes.Equal(commitment, chantypes.CommitPacket(nil, packet)) {
		return errors.Newf("commitment bytes are not equal for sequence %d", seq)
	}

	ts, ok := c.consensusTimestamp(tx, ch.clientID, msg.ProofHeight)
	if !ok {
		return errors.Newf("consensus state not found for height %v", msg.ProofHeight)
	}
	heightReached := !packet.TimeoutHeight.IsZero() && msg.ProofHeight.GTE(packet.TimeoutHeight)
	timeReached := packet.TimeoutTimestamp != 0 && ts >= packet.TimeoutTimestamp
	if !heightReached && !timeReached {
		return errors.Newf("packet timeout has not been reached for height %v and timestamp %d", msg.ProofHeight, ts)
	}

	if ch.order == chantypes.ORDERED {
		if msg.NextSequenceRecv > seq {
			return errors.Newf("packet already received, next sequence receive %d > sequence %d", msg.NextSequenceRecv, seq)
		}
		path := host.NextSequenceRecvPath(packet.DestinationPort, packet.DestinationChannel)
		if err := c.verify(tx, ch.clientID, msg.ProofHeight, path, sdk.Uint64ToBigEndian(msg.NextSequenceRecv), msg.ProofUnreceived); err != nil {
			return err
		}
		tx.closes = append(tx.closes, ch)
	} else {
		path := host.PacketReceiptPath(packet.DestinationPort, packet.DestinationChannel, seq)
		if err := c.verify(tx, ch.clientID, msg.ProofHeight, path, nil, msg.ProofUnreceived); err != nil {
			return err
		}
	}
	tx.ws.set(commitmentPath, nil)
	tx.events = append(tx.events, core.PacketEvent(core.EventTimeoutPacket, packet, nil, ch.order))
	return nil
}

func msgTypes(msgs []sdk.Msg) string {
	names := make([]string, len(msgs))
	for i, msg := range msgs {
		name := sdk.MsgTypeURL(msg)
		names[i] = name[strings.LastIndex(name, ".")+1:]
	}
	return strings.Join(names, ",")
}
