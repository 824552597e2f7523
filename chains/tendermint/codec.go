package tendermint

import (
	"github.com/cosmos/cosmos-sdk/codec"
	codectypes "github.com/cosmos/cosmos-sdk/codec/types"
	"github.com/cosmos/cosmos-sdk/std"
	authtypes "github.com/cosmos/cosmos-sdk/x/auth/types"
	clienttypes "github.com/cosmos/ibc-go/v8/modules/core/02-client/types"
	chantypes "github.com/cosmos/ibc-go/v8/modules/core/04-channel/types"
	ibctm "github.com/cosmos/ibc-go/v8/modules/light-clients/07-tendermint"
	mocktypes "github.com/datachainlab/ibc-mock-client/modules/light-clients/xx-mock/types"
)

// MakeCodec returns a codec that knows the tx, client and packet types the relayer handles
func MakeCodec() codec.ProtoCodecMarshaler {
	registry := codectypes.NewInterfaceRegistry()
	std.RegisterInterfaces(registry)
	authtypes.RegisterInterfaces(registry)
	clienttypes.RegisterInterfaces(registry)
	chantypes.RegisterInterfaces(registry)
	ibctm.RegisterInterfaces(registry)
	mocktypes.RegisterInterfaces(registry)
	return codec.NewProtoCodec(registry)
}
