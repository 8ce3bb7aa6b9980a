// Package proto defines the wire-level data model shared by every router:
// router identifiers, IPv4 addressing, and the two packet types flooded
// between neighbors (Hello and LSA). It does not know how bytes reach a
// peer (see package iface) or how they are encoded (see Codec below).
package proto

import "fmt"

// RouterID is an opaque identifier, globally unique across the routed
// domain. The protocol never parses it; it is compared only for equality
// and ordering (lexicographic, used to break Dijkstra ties deterministically).
type RouterID string

// IPv4Address is a dotted-quad 32-bit address, stored as four octets in
// network byte order.
type IPv4Address [4]byte

func (a IPv4Address) String() string {
	return fmt.Sprintf("%d.%d.%d.%d", a[0], a[1], a[2], a[3])
}

// IPv4Netmask is a dotted-quad 32-bit netmask, stored the same way as
// IPv4Address.
type IPv4Netmask [4]byte

func (m IPv4Netmask) String() string {
	return fmt.Sprintf("%d.%d.%d.%d", m[0], m[1], m[2], m[3])
}

// NetworkAddress is the bitwise AND of an address and netmask: the network
// a link belongs to.
type NetworkAddress [4]byte

func (n NetworkAddress) String() string {
	return fmt.Sprintf("%d.%d.%d.%d", n[0], n[1], n[2], n[3])
}

// NetAdd computes the network address of an interface: addr & mask,
// octet-wise. Mirrors _get_netadd in the original implementation, operating
// on the parsed 4-byte form instead of dotted-quad strings.
func NetAdd(addr IPv4Address, mask IPv4Netmask) NetworkAddress {
	return NetworkAddress{
		addr[0] & mask[0],
		addr[1] & mask[1],
		addr[2] & mask[2],
		addr[3] & mask[3],
	}
}

// ZeroAddress and ZeroNetmask name 0.0.0.0, the address and netmask of a
// default route. Both equal the zero value of their types.
var (
	ZeroAddress = IPv4Address{0, 0, 0, 0}
	ZeroNetmask = IPv4Netmask{0, 0, 0, 0}
)

// HelloPacket advertises the sender's presence on a link and echoes the set
// of neighbor router IDs it has recently observed (§3 DATA MODEL).
type HelloPacket struct {
	RouterID RouterID
	Address  IPv4Address
	Netmask  IPv4Netmask
	Seen     []RouterID
}

// NetworkEntry describes one network reported inside an LSA: the peer
// reachable over it, the cost of traversing it, and the address/netmask the
// peer announced for that link in its Hello.
type NetworkEntry struct {
	Peer          RouterID
	Cost          float64
	LocalAddress  IPv4Address
	LocalNetmask  IPv4Netmask
}

// LSAPacket is a Link State Advertisement: a router's self-description of
// its direct links (§3 DATA MODEL). Networks is keyed by the network
// address so each link appears at most once.
type LSAPacket struct {
	AdvRouter RouterID
	SeqNo     uint32
	Age       uint32
	Networks  map[NetworkAddress]NetworkEntry
}

// Clone returns a deep copy of the LSA, so callers may freely mutate the
// LSDB's stored copy without aliasing a packet that is about to be
// transmitted, and vice versa.
func (l *LSAPacket) Clone() *LSAPacket {
	networks := make(map[NetworkAddress]NetworkEntry, len(l.Networks))
	for k, v := range l.Networks {
		networks[k] = v
	}
	return &LSAPacket{
		AdvRouter: l.AdvRouter,
		SeqNo:     l.SeqNo,
		Age:       l.Age,
		Networks:  networks,
	}
}
