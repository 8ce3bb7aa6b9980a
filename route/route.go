// Package route holds the in-memory forwarding table: an ordered snapshot
// of Routes rebuilt from scratch on every SPF recomputation (§4.6). It has
// no identity across rebuilds and does no computation of its own — router.Router
// builds a Table and hands it here for storage and display.
package route

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/rivo/uniseg"

	"github.com/linkstate/routerd/proto"
)

// Gateway marks a directly-connected route: there is no next-hop router,
// the destination network is reachable straight off the local interface.
const Gateway = "-"

// Route is one forwarding entry: reach dest_network/netmask via gateway,
// over iface, at the given metric.
type Route struct {
	DestNetwork proto.NetworkAddress
	Netmask     proto.IPv4Netmask
	Gateway     string // Gateway constant, or the next hop's address
	Metric      float64
	Iface       string
}

// DefaultRoute reports whether r is the 0.0.0.0/0.0.0.0 default route.
func (r Route) DefaultRoute() bool {
	return r.DestNetwork == (proto.NetworkAddress{}) && r.Netmask == (proto.IPv4Netmask{})
}

// Table is a snapshot of Routes kept in the order they were added. That
// order is not meaningful; String() renders the routes in that same order.
type Table struct {
	Routes []Route
}

// New returns an empty table.
func New() *Table {
	return &Table{}
}

// Add appends r to the table.
func (t *Table) Add(r Route) {
	t.Routes = append(t.Routes, r)
}

// Lookup returns the route for the given network, if present.
func (t *Table) Lookup(network proto.NetworkAddress) (Route, bool) {
	for _, r := range t.Routes {
		if r.DestNetwork == network {
			return r, true
		}
	}
	return Route{}, false
}

var columns = []string{"Destination", "Gateway", "Netmask", "Metric", "Iface"}

// String renders the table as a fixed-width aligned grid, padding each
// column to the display width (not byte length) of its widest cell so that
// multi-byte router/interface names still line up in a monospace terminal.
func (t *Table) String() string {
	rows := make([][]string, 0, len(t.Routes)+1)
	rows = append(rows, columns)
	for _, r := range t.Routes {
		rows = append(rows, []string{
			r.DestNetwork.String(),
			r.Gateway,
			r.Netmask.String(),
			strconv.FormatFloat(r.Metric, 'f', 3, 64),
			r.Iface,
		})
	}

	widths := make([]int, len(columns))
	for _, row := range rows {
		for i, cell := range row {
			if w := uniseg.StringWidth(cell); w > widths[i] {
				widths[i] = w
			}
		}
	}

	var b strings.Builder
	for _, row := range rows {
		for i, cell := range row {
			pad := widths[i] - uniseg.StringWidth(cell)
			fmt.Fprintf(&b, "%s%s", cell, strings.Repeat(" ", pad+2))
		}
		b.WriteByte('\n')
	}
	return b.String()
}
