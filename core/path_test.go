package core_test

import (
	"testing"

	chantypes "github.com/cosmos/ibc-go/v8/modules/core/04-channel/types"
	"github.com/stretchr/testify/require"

	"github.com/hyperledger-labs/yui-packet-relayer/core"
)

func testPath() *core.Path {
	return &core.Path{
		Src: &core.PathEnd{ChainID: "ibc-0", ClientID: "07-tendermint-0", ChannelID: "channel-0", PortID: "transfer", Order: "unordered"},
		Dst: &core.PathEnd{ChainID: "ibc-1", ClientID: "07-tendermint-1", ChannelID: "channel-3", PortID: "transfer", Order: "unordered"},
	}
}

func TestPathValidate(t *testing.T) {
	cases := []struct {
		name   string
		modify func(p *core.Path)
		ok     bool
	}{
		{"valid", func(p *core.Path) {}, true},
		{"missing dst", func(p *core.Path) { p.Dst = nil }, false},
		{"same chain", func(p *core.Path) { p.Dst.ChainID = "ibc-0" }, false},
		{"invalid client", func(p *core.Path) { p.Src.ClientID = "x" }, false},
		{"invalid channel", func(p *core.Path) { p.Dst.ChannelID = "" }, false},
		{"unknown order", func(p *core.Path) { p.Src.Order, p.Dst.Order = "any", "any" }, false},
		{"order mismatch", func(p *core.Path) { p.Dst.Order = "ordered" }, false},
		{"proto order name", func(p *core.Path) { p.Src.Order, p.Dst.Order = "ORDER_ORDERED", "ordered" }, true},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			p := testPath()
			tc.modify(p)
			if tc.ok {
				require.NoError(t, p.Validate())
			} else {
				require.Error(t, p.Validate())
			}
		})
	}
}

func TestOrderFromString(t *testing.T) {
	require.Equal(t, chantypes.ORDERED, core.OrderFromString("ordered"))
	require.Equal(t, chantypes.ORDERED, core.OrderFromString("ORDER_ORDERED"))
	require.Equal(t, chantypes.UNORDERED, core.OrderFromString("Unordered"))
	require.Equal(t, chantypes.NONE, core.OrderFromString(""))
}

func TestPathsFind(t *testing.T) {
	paths := core.Paths{}
	require.NoError(t, paths.Add("demo", testPath()))
	require.Error(t, paths.Add("demo", testPath()), "duplicate name")

	p, err := paths.Find("ibc-1", "ibc-0", "transfer", "channel-0")
	require.NoError(t, err)
	require.Equal(t, "ibc-0", p.Src.ChainID)

	// the reverse direction of a configured path is found too
	p, err = paths.Find("ibc-0", "ibc-1", "transfer", "channel-3")
	require.NoError(t, err)
	require.Equal(t, "ibc-1", p.Src.ChainID)
	require.Equal(t, "channel-0", p.Dst.ChannelID)

	_, err = paths.Find("ibc-1", "ibc-0", "transfer", "channel-9")
	require.Error(t, err)

	_, err = paths.Get("missing")
	require.Error(t, err)
}
