// Package routersim is the CLI driver for standing up one or more router
// instances in a single process and wiring them together over loopback, the
// same "run it on your laptop" demonstration model the chat client's input
// loop gave for the chat protocol (cmd/cmd.go, cmd/inputreader).
package routersim

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/linkstate/routerd/internal/config"
	"github.com/linkstate/routerd/proto"
)

// LinkSpec describes one end of a point-to-point link in a topology file:
// the interface name on this router, its bandwidth, and the address/netmask
// it advertises to the neighbor dialed at remote_host:remote_port.
type LinkSpec struct {
	Iface      string  `json:"iface"`
	BandwidBps float64 `json:"bandwidth_bps"`
	ListenPort int     `json:"listen_port"`
	Address    string  `json:"address"`
	Netmask    string  `json:"netmask"`
	RemoteHost string  `json:"remote_host"`
	RemotePort int     `json:"remote_port"`
}

// RouterSpec describes one router in a topology file: its hostname and the
// links it originates.
type RouterSpec struct {
	Hostname string     `json:"hostname"`
	Links    []LinkSpec `json:"links"`
}

// Topology is the top-level shape of a topology file passed to `routersim
// <file>`.
type Topology struct {
	Routers []RouterSpec `json:"routers"`
}

// LoadTopology reads and parses a topology file.
func LoadTopology(path string) (Topology, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Topology{}, fmt.Errorf("read topology: %w", err)
	}

	var top Topology
	if err := json.Unmarshal(data, &top); err != nil {
		return Topology{}, fmt.Errorf("parse topology: %w", err)
	}
	return top, nil
}

func parseIPv4(s string) (proto.IPv4Address, error) {
	var a proto.IPv4Address
	var b0, b1, b2, b3 int
	if _, err := fmt.Sscanf(s, "%d.%d.%d.%d", &b0, &b1, &b2, &b3); err != nil {
		return a, fmt.Errorf("invalid IPv4 address %q: %w", s, err)
	}
	a = proto.IPv4Address{byte(b0), byte(b1), byte(b2), byte(b3)}
	return a, nil
}

func parseNetmask(s string) (proto.IPv4Netmask, error) {
	addr, err := parseIPv4(s)
	if err != nil {
		return proto.IPv4Netmask{}, err
	}
	return proto.IPv4Netmask(addr), nil
}

// DefaultConfig is the config.Config a topology run is driven with: the
// spec's production defaults are too slow for an interactive demo, so
// routersim scales the intervals down the same way the tests do.
func DefaultConfig() config.Config {
	cfg := config.DefaultConfig()
	cfg.HelloInterval = cfg.HelloInterval / 5
	cfg.DeadInterval = cfg.DeadInterval / 5
	cfg.LSRefreshTime = cfg.LSRefreshTime / 60
	return cfg
}
