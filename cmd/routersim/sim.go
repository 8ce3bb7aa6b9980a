package routersim

import (
	"fmt"
	"strings"
	"time"

	"github.com/schollz/progressbar/v3"
	"golang.org/x/term"

	"github.com/linkstate/routerd/internal/config"
	"github.com/linkstate/routerd/proto"
	"github.com/linkstate/routerd/route"
	"github.com/linkstate/routerd/router"
	"github.com/linkstate/routerd/timer"
)

// Sim is a set of routers built from a Topology and wired together over
// loopback TCP, all driven by a single real timer.Service.
type Sim struct {
	routers map[proto.RouterID]*router.Router
	order   []proto.RouterID
}

// Build constructs one router per RouterSpec and creates/configures its
// interfaces, but does not start the periodic timers yet (see Start).
func Build(top Topology, cfg config.Config, codec proto.Codec) (*Sim, error) {
	sim := &Sim{routers: make(map[proto.RouterID]*router.Router)}

	for _, rs := range top.Routers {
		id := proto.RouterID(rs.Hostname)
		r := router.New(id, cfg, timer.RealService{}, codec)
		sim.routers[id] = r
		sim.order = append(sim.order, id)

		for _, link := range rs.Links {
			if err := r.CreateInterface(link.Iface, link.BandwidBps, link.ListenPort); err != nil {
				return nil, fmt.Errorf("%s: create interface %s: %w", rs.Hostname, link.Iface, err)
			}

			addr, err := parseIPv4(link.Address)
			if err != nil {
				return nil, fmt.Errorf("%s: %w", rs.Hostname, err)
			}
			mask, err := parseNetmask(link.Netmask)
			if err != nil {
				return nil, fmt.Errorf("%s: %w", rs.Hostname, err)
			}

			if err := r.ConfigureInterface(link.Iface, addr, mask, link.RemoteHost, link.RemotePort); err != nil {
				return nil, fmt.Errorf("%s: configure interface %s: %w", rs.Hostname, link.Iface, err)
			}
		}
	}

	return sim, nil
}

// Start begins the periodic Hello/age/refresh timers on every router.
func (s *Sim) Start() {
	for _, id := range s.order {
		s.routers[id].Start()
	}
}

// Stop shuts every router's timers and interfaces down.
func (s *Sim) Stop() {
	for _, id := range s.order {
		s.routers[id].Stop()
	}
}

// Router returns the router with the given hostname, or nil.
func (s *Sim) Router(id proto.RouterID) *router.Router {
	return s.routers[id]
}

// Hostnames returns the hostnames in the order they appeared in the
// topology file.
func (s *Sim) Hostnames() []proto.RouterID {
	return s.order
}

// WaitForConvergence polls every router's routing table once per poll
// interval, showing a progress bar, until either every table has stopped
// changing across two consecutive polls, or timeout elapses.
func (s *Sim) WaitForConvergence(timeout, poll time.Duration) bool {
	bar := progressbar.NewOptions(int(timeout/poll),
		progressbar.OptionSetDescription("waiting for convergence"),
		progressbar.OptionShowCount(),
		progressbar.OptionClearOnFinish(),
	)

	var last string
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		snap := s.snapshot()
		if snap == last && snap != "" {
			bar.Finish()
			return true
		}
		last = snap
		bar.Add(1)
		time.Sleep(poll)
	}

	return false
}

func (s *Sim) snapshot() string {
	var b strings.Builder
	for _, id := range s.order {
		b.WriteString(string(id))
		b.WriteByte(':')
		b.WriteString(s.routers[id].RoutingTable().String())
	}
	return b.String()
}

// PrintRoutingTable prints one router's routing table under a header line
// underlined to the header's length, capped at the terminal width when
// stdout is a terminal (80 columns otherwise).
func PrintRoutingTable(id proto.RouterID, t *route.Table) {
	width := 80
	if w, _, err := term.GetSize(1); err == nil && w > 0 {
		width = w
	}

	header := fmt.Sprintf("Routing table for %s", id)
	fmt.Println(header)
	fmt.Println(strings.Repeat("-", min(width, len(header))))
	fmt.Print(t.String())
}

func min(a, b int) int {
	if a < b {
		return a
	}
	return b
}
