package core

import (
	"fmt"

	clienttypes "github.com/cosmos/ibc-go/v8/modules/core/02-client/types"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

const (
	AttributeKeyChainID        = attribute.Key("chain_id")
	AttributeKeyClientID       = attribute.Key("client_id")
	AttributeKeyChannelID      = attribute.Key("channel_id")
	AttributeKeyPortID         = attribute.Key("port_id")
	AttributeKeyDirection      = attribute.Key("direction")
	AttributeKeyObligation     = attribute.Key("obligation")
	AttributeKeyPath           = attribute.Key("path")
	AttributeKeyRevisionNumber = attribute.Key("revision_number")
	AttributeKeyRevisionHeight = attribute.Key("revision_height")
	AttributeKeyPackage        = attribute.Key("package")
	AttributeKeyTxHash         = attribute.Key("tx_hash")
	AttributeKeyReason         = attribute.Key("reason")
)

// AttributeGroup prefixes the given key to all attributes.
//
// For example, if the key is "foo" and the key of an attribute is "bar", the new key will be "foo.bar".
func AttributeGroup(key string, attributes ...attribute.KeyValue) []attribute.KeyValue {
	newAttrs := make([]attribute.KeyValue, 0, len(attributes))
	for _, attr := range attributes {
		newAttrs = append(newAttrs, attribute.KeyValue{
			Key:   attribute.Key(key + "." + string(attr.Key)),
			Value: attr.Value,
		})

	}
	return newAttrs
}

// WithChainAttributes returns a SpanStartOption that sets the chain id
func WithChainAttributes(chainID string) trace.SpanStartOption {
	return trace.WithAttributes(AttributeKeyChainID.String(chainID))
}

// WithChannelAttributes returns a SpanStartOption that sets both ends of a channel
func WithChannelAttributes(src, dst ChannelEnd) trace.SpanStartOption {
	var attrs []attribute.KeyValue
	attrs = append(attrs, AttributeGroup("src", channelEndAttributes(src)...)...)
	attrs = append(attrs, AttributeGroup("dst", channelEndAttributes(dst)...)...)
	return trace.WithAttributes(attrs...)
}

func channelEndAttributes(end ChannelEnd) []attribute.KeyValue {
	return []attribute.KeyValue{
		AttributeKeyChainID.String(end.ChainID),
		AttributeKeyPortID.String(end.PortID),
		AttributeKeyChannelID.String(end.ChannelID),
	}
}

// heightAttributes converts a height into attributes.
// The attribute package does not support uint64, so both numbers are strings.
func heightAttributes(h clienttypes.Height) []attribute.KeyValue {
	return []attribute.KeyValue{
		AttributeKeyRevisionNumber.String(fmt.Sprint(h.GetRevisionNumber())),
		AttributeKeyRevisionHeight.String(fmt.Sprint(h.GetRevisionHeight())),
	}
}
