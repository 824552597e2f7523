package core

import (
	"fmt"
	"strings"

	"github.com/cockroachdb/errors"
	chantypes "github.com/cosmos/ibc-go/v8/modules/core/04-channel/types"
	host "github.com/cosmos/ibc-go/v8/modules/core/24-host"
)

// PathEnd is one side of a configured relay path.
type PathEnd struct {
	ChainID   string `yaml:"chain-id" json:"chain-id"`
	ClientID  string `yaml:"client-id" json:"client-id"`
	ChannelID string `yaml:"channel-id" json:"channel-id"`
	PortID    string `yaml:"port-id" json:"port-id"`
	Order     string `yaml:"order" json:"order"`
}

// ChannelEnd returns the channel end identified by the path end.
func (pe *PathEnd) ChannelEnd() ChannelEnd {
	return ChannelEnd{ChainID: pe.ChainID, PortID: pe.PortID, ChannelID: pe.ChannelID}
}

// ChannelOrder returns the ordering of the channel.
func (pe *PathEnd) ChannelOrder() chantypes.Order {
	return OrderFromString(pe.Order)
}

func (pe PathEnd) String() string {
	return fmt.Sprintf("%s:cl(%s):ch(%s):pt(%s)", pe.ChainID, pe.ClientID, pe.ChannelID, pe.PortID)
}

// Validate returns errors about invalid identifiers
func (pe *PathEnd) Validate() error {
	if pe.ChainID == "" {
		return errors.New("chain-id is empty")
	}
	if err := host.ClientIdentifierValidator(pe.ClientID); err != nil {
		return errors.Wrapf(err, "invalid client-id of %s", pe.ChainID)
	}
	if err := host.ChannelIdentifierValidator(pe.ChannelID); err != nil {
		return errors.Wrapf(err, "invalid channel-id of %s", pe.ChainID)
	}
	if err := host.PortIdentifierValidator(pe.PortID); err != nil {
		return errors.Wrapf(err, "invalid port-id of %s", pe.ChainID)
	}
	if pe.ChannelOrder() == chantypes.NONE {
		return errors.Newf("channel must be either 'ORDERED' or 'UNORDERED' is '%s'", pe.Order)
	}
	return nil
}

// OrderFromString parses a string into a channel order.
// Both the short form ("ordered") and the proto enum name ("ORDER_ORDERED") are accepted.
func OrderFromString(order string) chantypes.Order {
	switch strings.TrimPrefix(strings.ToUpper(order), "ORDER_") {
	case "UNORDERED":
		return chantypes.UNORDERED
	case "ORDERED":
		return chantypes.ORDERED
	default:
		return chantypes.NONE
	}
}

// Path is a configured channel between two chains. It is relayed in both directions.
type Path struct {
	Src *PathEnd `yaml:"src" json:"src"`
	Dst *PathEnd `yaml:"dst" json:"dst"`
}

// Validate checks both ends and that they agree on the channel ordering
func (p *Path) Validate() error {
	if p.Src == nil || p.Dst == nil {
		return errors.New("path requires both src and dst")
	}
	if err := p.Src.Validate(); err != nil {
		return errors.Wrap(err, "invalid src")
	}
	if err := p.Dst.Validate(); err != nil {
		return errors.Wrap(err, "invalid dst")
	}
	if p.Src.ChainID == p.Dst.ChainID {
		return errors.Newf("src and dst must be different chains: %s", p.Src.ChainID)
	}
	if p.Src.ChannelOrder() != p.Dst.ChannelOrder() {
		return errors.Newf("channel ordering mismatch: src=%s dst=%s", p.Src.Order, p.Dst.Order)
	}
	return nil
}

// Reverse returns the path with src and dst swapped
func (p *Path) Reverse() *Path {
	return &Path{Src: p.Dst, Dst: p.Src}
}

// Paths represent channel paths between chains
type Paths map[string]*Path

// Get returns the configuration for a given path
func (p Paths) Get(name string) (path *Path, err error) {
	if pth, ok := p[name]; ok {
		path = pth
	} else {
		err = fmt.Errorf("path with name %s does not exist", name)
	}
	return
}

// MustGet panics if path is not found
func (p Paths) MustGet(name string) *Path {
	pth, err := p.Get(name)
	if err != nil {
		panic(err)
	}
	return pth
}

// Add adds a path by its name
func (p Paths) Add(name string, path *Path) error {
	if err := path.Validate(); err != nil {
		return err
	}
	if _, found := p[name]; found {
		return fmt.Errorf("path with name %s already exists", name)
	}
	p[name] = path
	return nil
}

// Find returns the path and direction whose source end is the given channel on srcChainID
// and whose destination is on dstChainID.
func (p Paths) Find(dstChainID, srcChainID, srcPortID, srcChannelID string) (*Path, error) {
	for _, path := range p {
		for _, pth := range []*Path{path, path.Reverse()} {
			if pth.Src.ChainID == srcChainID && pth.Src.PortID == srcPortID &&
				pth.Src.ChannelID == srcChannelID && pth.Dst.ChainID == dstChainID {
				return pth, nil
			}
		}
	}
	return nil, fmt.Errorf("failed to find a path from %s/%s/%s to %s", srcChainID, srcPortID, srcChannelID, dstChainID)
}
