package core

import (
	"encoding/hex"
	"fmt"
	"strconv"

	"github.com/cockroachdb/errors"
	abci "github.com/cometbft/cometbft/abci/types"
	clienttypes "github.com/cosmos/ibc-go/v8/modules/core/02-client/types"
	chantypes "github.com/cosmos/ibc-go/v8/modules/core/04-channel/types"
)

// EventKind tags a RelayEvent.
type EventKind int

const (
	EventSendPacket EventKind = iota + 1
	EventRecvPacket
	EventWriteAcknowledgement
	EventAcknowledgePacket
	EventTimeoutPacket
	EventChannelOpenInit
	EventChannelOpenTry
	EventChannelOpenAck
	EventChannelOpenConfirm
	EventChannelCloseInit
	EventChannelCloseConfirm
)

var eventKinds = map[string]EventKind{
	chantypes.EventTypeSendPacket:          EventSendPacket,
	chantypes.EventTypeRecvPacket:          EventRecvPacket,
	chantypes.EventTypeWriteAck:            EventWriteAcknowledgement,
	chantypes.EventTypeAcknowledgePacket:   EventAcknowledgePacket,
	chantypes.EventTypeTimeoutPacket:       EventTimeoutPacket,
	chantypes.EventTypeChannelOpenInit:     EventChannelOpenInit,
	chantypes.EventTypeChannelOpenTry:      EventChannelOpenTry,
	chantypes.EventTypeChannelOpenAck:      EventChannelOpenAck,
	chantypes.EventTypeChannelOpenConfirm:  EventChannelOpenConfirm,
	chantypes.EventTypeChannelCloseInit:    EventChannelCloseInit,
	chantypes.EventTypeChannelCloseConfirm: EventChannelCloseConfirm,
}

func (k EventKind) String() string {
	for name, kind := range eventKinds {
		if kind == k {
			return name
		}
	}
	return fmt.Sprintf("EventKind(%d)", int(k))
}

// IsPacketEvent reports whether events of this kind carry a packet.
func (k EventKind) IsPacketEvent() bool {
	return k >= EventSendPacket && k <= EventTimeoutPacket
}

// ChainEvent is a raw event as emitted by a chain endpoint.
// Index orders the event within its block.
type ChainEvent struct {
	Height clienttypes.Height
	Index  uint64
	Event  abci.Event
}

// RelayEvent is a normalized protocol event observed on ChainID.
type RelayEvent struct {
	Kind    EventKind
	ChainID string
	Height  clienttypes.Height
	Index   uint64

	// set for packet events
	Packet          chantypes.Packet
	Acknowledgement []byte
	Ordering        chantypes.Order

	// set for channel events
	PortID                string
	ChannelID             string
	CounterpartyPortID    string
	CounterpartyChannelID string
}

// LocalEnd returns the channel end on the observed chain that the event belongs to.
func (ev *RelayEvent) LocalEnd() ChannelEnd {
	switch ev.Kind {
	case EventSendPacket, EventAcknowledgePacket, EventTimeoutPacket:
		return ChannelEnd{ChainID: ev.ChainID, PortID: ev.Packet.SourcePort, ChannelID: ev.Packet.SourceChannel}
	case EventRecvPacket, EventWriteAcknowledgement:
		return ChannelEnd{ChainID: ev.ChainID, PortID: ev.Packet.DestinationPort, ChannelID: ev.Packet.DestinationChannel}
	default:
		return ChannelEnd{ChainID: ev.ChainID, PortID: ev.PortID, ChannelID: ev.ChannelID}
	}
}

// PacketInfo returns the packet carried by the event.
func (ev *RelayEvent) PacketInfo() *PacketInfo {
	return &PacketInfo{
		Packet:          ev.Packet,
		Acknowledgement: ev.Acknowledgement,
		EventHeight:     ev.Height,
	}
}

func (ev *RelayEvent) String() string {
	if ev.Kind.IsPacketEvent() {
		return fmt.Sprintf("%s(%s@%v seq=%d)", ev.Kind, ev.ChainID, ev.Height, ev.Packet.Sequence)
	}
	return fmt.Sprintf("%s(%s@%v %s/%s)", ev.Kind, ev.ChainID, ev.Height, ev.PortID, ev.ChannelID)
}

// NormalizeEvent converts a raw chain event into a RelayEvent.
// It returns false for events that are irrelevant to packet relay.
func NormalizeEvent(chainID string, ce ChainEvent) (*RelayEvent, bool, error) {
	kind, ok := eventKinds[ce.Event.Type]
	if !ok {
		return nil, false, nil
	}
	ev := &RelayEvent{
		Kind:    kind,
		ChainID: chainID,
		Height:  ce.Height,
		Index:   ce.Index,
	}
	var err error
	if kind.IsPacketEvent() {
		err = parsePacketAttributes(ev, ce.Event.Attributes)
	} else {
		err = parseChannelAttributes(ev, ce.Event.Attributes)
	}
	if err != nil {
		return nil, false, errors.Wrapf(err, "failed to parse %s event at %v", ce.Event.Type, ce.Height)
	}
	return ev, true, nil
}

func parsePacketAttributes(ev *RelayEvent, attrs []abci.EventAttribute) error {
	var err error
	for _, attr := range attrs {
		switch attr.Key {
		case chantypes.AttributeKeyDataHex:
			ev.Packet.Data, err = hex.DecodeString(attr.Value)
		case chantypes.AttributeKeyAckHex:
			ev.Acknowledgement, err = hex.DecodeString(attr.Value)
		case chantypes.AttributeKeyTimeoutHeight:
			ev.Packet.TimeoutHeight, err = clienttypes.ParseHeight(attr.Value)
		case chantypes.AttributeKeyTimeoutTimestamp:
			ev.Packet.TimeoutTimestamp, err = strconv.ParseUint(attr.Value, 10, 64)
		case chantypes.AttributeKeySequence:
			ev.Packet.Sequence, err = strconv.ParseUint(attr.Value, 10, 64)
		case chantypes.AttributeKeySrcPort:
			ev.Packet.SourcePort = attr.Value
		case chantypes.AttributeKeySrcChannel:
			ev.Packet.SourceChannel = attr.Value
		case chantypes.AttributeKeyDstPort:
			ev.Packet.DestinationPort = attr.Value
		case chantypes.AttributeKeyDstChannel:
			ev.Packet.DestinationChannel = attr.Value
		case chantypes.AttributeKeyChannelOrdering:
			ev.Ordering = OrderFromString(attr.Value)
		}
		if err != nil {
			return errors.Wrapf(err, "attribute %q", attr.Key)
		}
	}
	if ev.Packet.Sequence == 0 {
		return errors.New("packet sequence is missing")
	}
	if ev.Packet.SourcePort == "" || ev.Packet.SourceChannel == "" || ev.Packet.DestinationPort == "" || ev.Packet.DestinationChannel == "" {
		return errors.Newf("incomplete packet route for sequence %d", ev.Packet.Sequence)
	}
	if ev.Kind == EventWriteAcknowledgement && len(ev.Acknowledgement) == 0 {
		return errors.Newf("acknowledgement is missing for sequence %d", ev.Packet.Sequence)
	}
	return nil
}

func parseChannelAttributes(ev *RelayEvent, attrs []abci.EventAttribute) error {
	for _, attr := range attrs {
		switch attr.Key {
		case chantypes.AttributeKeyPortID:
			ev.PortID = attr.Value
		case chantypes.AttributeKeyChannelID:
			ev.ChannelID = attr.Value
		case chantypes.AttributeCounterpartyPortID:
			ev.CounterpartyPortID = attr.Value
		case chantypes.AttributeCounterpartyChannelID:
			ev.CounterpartyChannelID = attr.Value
		}
	}
	if ev.PortID == "" || ev.ChannelID == "" {
		return errors.New("port or channel identifier is missing")
	}
	return nil
}

// PacketEvent builds the abci event a chain emits for a packet.
// It is the inverse of NormalizeEvent and is used by endpoints that synthesize events.
func PacketEvent(kind EventKind, packet chantypes.Packet, ack []byte, order chantypes.Order) abci.Event {
	attrs := []abci.EventAttribute{
		{Key: chantypes.AttributeKeyDataHex, Value: hex.EncodeToString(packet.Data)},
		{Key: chantypes.AttributeKeyTimeoutHeight, Value: packet.TimeoutHeight.String()},
		{Key: chantypes.AttributeKeyTimeoutTimestamp, Value: strconv.FormatUint(packet.TimeoutTimestamp, 10)},
		{Key: chantypes.AttributeKeySequence, Value: strconv.FormatUint(packet.Sequence, 10)},
		{Key: chantypes.AttributeKeySrcPort, Value: packet.SourcePort},
		{Key: chantypes.AttributeKeySrcChannel, Value: packet.SourceChannel},
		{Key: chantypes.AttributeKeyDstPort, Value: packet.DestinationPort},
		{Key: chantypes.AttributeKeyDstChannel, Value: packet.DestinationChannel},
		{Key: chantypes.AttributeKeyChannelOrdering, Value: order.String()},
	}
	if kind == EventWriteAcknowledgement {
		attrs = append(attrs, abci.EventAttribute{Key: chantypes.AttributeKeyAckHex, Value: hex.EncodeToString(ack)})
	}
	return abci.Event{Type: kind.String(), Attributes: attrs}
}

// ChannelEvent builds the abci event a chain emits for a channel handshake step.
func ChannelEvent(kind EventKind, local, counterparty ChannelEnd) abci.Event {
	return abci.Event{
		Type: kind.String(),
		Attributes: []abci.EventAttribute{
			{Key: chantypes.AttributeKeyPortID, Value: local.PortID},
			{Key: chantypes.AttributeKeyChannelID, Value: local.ChannelID},
			{Key: chantypes.AttributeCounterpartyPortID, Value: counterparty.PortID},
			{Key: chantypes.AttributeCounterpartyChannelID, Value: counterparty.ChannelID},
		},
	}
}
