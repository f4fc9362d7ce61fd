package page

import (
	"fmt"

	"github.com/BurntSushi/toml"
)

// layoutFile is the on-disk form of a page layout:
//
//	[[element]]
//	group = "orders"
//	source = "/orders/table"
type layoutFile struct {
	Elements []Element `toml:"element"`
}

// DefaultLayout mirrors the Shingo Core dashboard: one panel per refresh
// group and the two health indicators in the header.
func DefaultLayout() []Element {
	return []Element{
		{ID: RDSStatusID, Class: ClassHealth},
		{ID: MessagingStatusID, Class: ClassHealth},
		{ID: "dashboard-stats", Group: GroupDashboard, Source: "/"},
		{ID: "orders-table", Group: GroupOrders, Source: "/orders"},
		{ID: "nodestate-table", Group: GroupNodeState, Source: "/nodestate"},
		{ID: "nodes-table", Group: GroupNodes, Source: "/nodes"},
	}
}

// LoadLayout reads a TOML layout file. An empty path yields DefaultLayout.
func LoadLayout(path string) ([]Element, error) {
	if path == "" {
		return DefaultLayout(), nil
	}
	var lf layoutFile
	md, err := toml.DecodeFile(path, &lf)
	if err != nil {
		return nil, fmt.Errorf("reading layout %s: %w", path, err)
	}
	if undecoded := md.Undecoded(); len(undecoded) > 0 {
		return nil, fmt.Errorf("layout %s: unknown key %q", path, undecoded[0].String())
	}
	for i, e := range lf.Elements {
		if e.ID == "" && e.Group == "" {
			return nil, fmt.Errorf("layout %s: element %d has neither id nor group", path, i)
		}
	}
	return lf.Elements, nil
}
