// Package router implements the orchestrator: the single component that
// owns interfaces, neighbor state, the link-state database, and the
// routing table, and drives the Hello protocol, LSA origination, flooding,
// and shortest-path recomputation described in §4 of the component design
// this module follows.
package router

import (
	"fmt"
	"sort"
	"sync"

	"github.com/linkstate/routerd/internal/config"
	"github.com/linkstate/routerd/iface"
	"github.com/linkstate/routerd/lsdb"
	"github.com/linkstate/routerd/proto"
	"github.com/linkstate/routerd/route"
	"github.com/linkstate/routerd/timer"
	"github.com/linkstate/routerd/util/assert"
	"github.com/linkstate/routerd/util/logger"
)

// linkInfo is the (interface, address, netmask) triple recorded for a
// neighbor, either tentatively (_seen) or once adjacency is confirmed
// (_neighbors).
type linkInfo struct {
	ifaceName string
	address   proto.IPv4Address
	netmask   proto.IPv4Netmask
}

// Router is the protocol engine for one router. All mutation happens under
// mu, which stands in for the single-threaded event loop the design assumes
// (§5): every inbound packet and every timer callback runs to completion
// before another is admitted.
type Router struct {
	hostname proto.RouterID
	cfg      config.Config
	timers   timer.Service
	codec    proto.Codec

	mu         sync.Mutex
	interfaces map[string]*iface.Interface
	seen       map[proto.RouterID]linkInfo
	neighbors  map[proto.RouterID]linkInfo
	deadTimers map[proto.RouterID]timer.Timer
	db         *lsdb.Database
	table      *route.Table

	helloTimer   timer.Timer
	ageTimer     timer.Timer
	refreshTimer timer.Timer
	started      bool
}

// New creates a router identified by hostname. It does not start any
// timers or listen on any interface until Start is called.
func New(hostname proto.RouterID, cfg config.Config, timers timer.Service, codec proto.Codec) *Router {
	return &Router{
		hostname:   hostname,
		cfg:        cfg,
		timers:     timers,
		codec:      codec,
		interfaces: make(map[string]*iface.Interface),
		seen:       make(map[proto.RouterID]linkInfo),
		neighbors:  make(map[proto.RouterID]linkInfo),
		deadTimers: make(map[proto.RouterID]timer.Timer),
		db:         lsdb.New(cfg),
		table:      route.New(),
	}
}

// CreateInterface registers a new interface, named name, advertising
// bandwidthBps for cost computation, and starts listening on listenPort
// (§6 iface_create).
func (r *Router) CreateInterface(name string, bandwidthBps float64, listenPort int) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.interfaces[name]; exists {
		return fmt.Errorf("router: interface %q already exists", name)
	}

	link := iface.New(name, bandwidthBps, r.codec)
	link.Subscribe(r.onDelivery)
	if err := link.Open(listenPort); err != nil {
		return fmt.Errorf("router: opening interface %q: %w", name, err)
	}
	r.interfaces[name] = link
	return nil
}

// ConfigureInterface sets addressing and the remote endpoint for an
// existing interface (§6 iface_config). Fails if name is unknown, without
// any partial mutation (§7).
func (r *Router) ConfigureInterface(name string, address proto.IPv4Address, netmask proto.IPv4Netmask, remoteHost string, remotePort int) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	link, exists := r.interfaces[name]
	if !exists {
		return fmt.Errorf("router: unknown interface %q", name)
	}

	link.Configure(address, netmask, remoteHost, remotePort)
	return nil
}

// Start begins the periodic Hello, aging, and refresh cycles and sends the
// first round of Hellos immediately.
func (r *Router) Start() {
	r.mu.Lock()
	if r.started {
		r.mu.Unlock()
		return
	}
	r.started = true
	r.mu.Unlock()

	r.helloTimer = r.timers.Every(r.cfg.HelloInterval, r.hello)
	r.ageTimer = r.timers.Every(r.cfg.AgeInterval, r.updateLSDB)
	r.refreshTimer = r.timers.Every(r.cfg.LSRefreshTime, r.refreshLSA)

	r.hello()
}

// Stop cancels every timer and closes every interface. No callback fires
// after Stop returns (§5, §7).
func (r *Router) Stop() {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.helloTimer != nil {
		r.helloTimer.Stop()
	}
	if r.ageTimer != nil {
		r.ageTimer.Stop()
	}
	if r.refreshTimer != nil {
		r.refreshTimer.Stop()
	}
	for _, dt := range r.deadTimers {
		dt.Stop()
	}

	for _, link := range r.interfaces {
		link.Close()
	}
	r.started = false
}

// RoutingTable returns the router's current forwarding table snapshot.
func (r *Router) RoutingTable() *route.Table {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.table
}

// ListenPort returns the TCP port the named interface is listening on,
// useful when CreateInterface was called with port 0 for an OS-assigned
// ephemeral port (e.g. in tests wiring two routers together).
func (r *Router) ListenPort(name string) (int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	link, exists := r.interfaces[name]
	if !exists {
		return 0, fmt.Errorf("router: unknown interface %q", name)
	}
	return link.Port(), nil
}

// Hostname returns the router's identifier.
func (r *Router) Hostname() proto.RouterID { return r.hostname }

// LSAs returns every LSA currently held in the local database, sorted by
// originating router ID, for display (e.g. an `lsdb` CLI command).
func (r *Router) LSAs() []*proto.LSAPacket {
	r.mu.Lock()
	defer r.mu.Unlock()

	var out []*proto.LSAPacket
	r.db.Each(func(_ proto.RouterID, lsa *proto.LSAPacket) {
		out = append(out, lsa)
	})
	return out
}

func (r *Router) onDelivery(d iface.Delivery) {
	r.mu.Lock()
	defer r.mu.Unlock()

	switch p := d.Packet.(type) {
	case *proto.HelloPacket:
		r.onHelloReceived(d.IfaceName, p)
	case *proto.LSAPacket:
		r.onLSAReceived(d.IfaceName, p)
	default:
		logger.Warnf("%s: dropping packet of unknown type %T", d.IfaceName, d.Packet)
	}
}

// onHelloReceived implements §4.2.
func (r *Router) onHelloReceived(ifaceName string, packet *proto.HelloPacket) {
	neighborID := packet.RouterID

	if dt, ok := r.deadTimers[neighborID]; ok {
		dt.Stop()
	}
	r.deadTimers[neighborID] = r.timers.After(r.cfg.DeadInterval, func() { r.handleDeadTimer(neighborID) })

	r.seen[neighborID] = linkInfo{ifaceName: ifaceName, address: packet.Address, netmask: packet.Netmask}

	for _, id := range packet.Seen {
		if id == r.hostname {
			r.syncLSDB(neighborID)
			break
		}
	}
}

func (r *Router) handleDeadTimer(neighborID proto.RouterID) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.breakAdjacency(neighborID)
}

// hello implements the periodic Hello emission and the bootstrap half of
// adjacency formation described at the end of §4.2.
func (r *Router) hello() {
	r.mu.Lock()
	defer r.mu.Unlock()

	seen := make([]proto.RouterID, 0, len(r.seen))
	for id := range r.seen {
		seen = append(seen, id)
	}
	sort.Slice(seen, func(i, j int) bool { return seen[i] < seen[j] })

	for _, link := range r.interfaces {
		packet := &proto.HelloPacket{
			RouterID: r.hostname,
			Address:  link.Address,
			Netmask:  link.Netmask,
			Seen:     seen,
		}
		link.Transmit(packet)
	}

	for neighborID := range r.seen {
		if _, adjacent := r.neighbors[neighborID]; !adjacent {
			r.syncLSDB(neighborID)
		}
	}
}

// syncLSDB implements §4.2's adjacency-promotion logic.
func (r *Router) syncLSDB(neighborID proto.RouterID) {
	topologyChanged := true
	if _, ok := r.neighbors[neighborID]; ok {
		topologyChanged = false
	}

	r.neighbors[neighborID] = r.seen[neighborID]
	if topologyChanged {
		logger.Infof("Adjacency established with %s", neighborID)
	}

	if _, ok := r.db.Get(r.hostname); !ok {
		logger.Infof("Creating initial LSA")
		r.advertise()
		return
	}

	if !topologyChanged {
		return
	}

	r.advertise()

	link := r.interfaces[r.neighbors[neighborID].ifaceName]
	r.db.Each(func(_ proto.RouterID, lsa *proto.LSAPacket) {
		link.Transmit(lsa)
	})
}

// breakAdjacency implements §4.2's teardown path.
func (r *Router) breakAdjacency(neighborID proto.RouterID) {
	if dt, ok := r.deadTimers[neighborID]; ok {
		dt.Stop()
		delete(r.deadTimers, neighborID)
	}
	delete(r.neighbors, neighborID)
	delete(r.seen, neighborID)

	logger.Infof("%s is down", neighborID)
	r.advertise()
}

// advertise implements §4.3's LSA (re-)origination.
func (r *Router) advertise() {
	networks := make(map[proto.NetworkAddress]proto.NetworkEntry, len(r.neighbors))
	for neighborID, link := range r.neighbors {
		ownIface, ok := r.interfaces[link.ifaceName]
		assert.Assert(ok, "interface %q for neighbor %s not found", link.ifaceName, neighborID)

		netadd := proto.NetAdd(link.address, link.netmask)
		cost := r.cfg.BandwidthBase / ownIface.Bandwidth
		networks[netadd] = proto.NetworkEntry{
			Peer:         neighborID,
			Cost:         cost,
			LocalAddress: link.address,
			LocalNetmask: link.netmask,
		}
	}

	lsa, exists := r.db.Get(r.hostname)
	if exists {
		lsa = &proto.LSAPacket{
			AdvRouter: r.hostname,
			SeqNo:     lsa.SeqNo + 1,
			Age:       1,
			Networks:  networks,
		}
	} else {
		lsa = &proto.LSAPacket{
			AdvRouter: r.hostname,
			SeqNo:     r.cfg.InitialSequenceNumber,
			Age:       1,
			Networks:  networks,
		}
	}

	accepted := r.db.Insert(lsa)
	assert.Assert(accepted, "local re-origination must always supersede the prior copy")

	r.flood(lsa, "")
	r.updateRoutingTable()
}

// refreshLSA implements §4.3's periodic re-origination.
func (r *Router) refreshLSA() {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.db.Get(r.hostname); ok {
		logger.Infof("Refreshing own LSA")
		r.advertise()
	}
}

// updateLSDB implements §4.3's periodic aging.
func (r *Router) updateLSDB() {
	r.mu.Lock()
	defer r.mu.Unlock()

	flushed := r.db.Update(1)
	if len(flushed) > 0 {
		logger.Infof("LSA(s) of %v reached MaxAge and were flushed from the LSDB", flushed)
	}
}

// flood implements §4.4, split-horizon by interface of receipt.
func (r *Router) flood(packet *proto.LSAPacket, sourceIface string) {
	if packet.AdvRouter == r.hostname {
		logger.Debugf("Flooding own LSA")
	} else {
		logger.Debugf("Flooding LSA of %s", packet.AdvRouter)
	}

	sent := make(map[string]bool)
	for _, link := range r.neighbors {
		if link.ifaceName == sourceIface || sent[link.ifaceName] {
			continue
		}
		sent[link.ifaceName] = true
		r.interfaces[link.ifaceName].Transmit(packet)
	}
}

// onLSAReceived implements §4.5.
func (r *Router) onLSAReceived(ifaceName string, packet *proto.LSAPacket) {
	if r.db.Insert(packet) {
		if packet.AdvRouter == r.hostname {
			logger.Infof("Own LSA echoed back, re-asserting authority")
			r.advertise()
			return
		}
		r.flood(packet, ifaceName)
		r.updateRoutingTable()
		return
	}

	if packet.AdvRouter == r.hostname && packet.SeqNo == r.cfg.InitialSequenceNumber {
		logger.Infof("Stale startup copy of own LSA reappeared, re-originating")
		r.advertise()
	}
}

// updateRoutingTable implements §4.6.
func (r *Router) updateRoutingTable() {
	logger.Debugf("Recalculating shortest paths and updating routing table")

	table := route.New()

	paths := r.db.ShortestPaths(r.hostname)
	if len(paths) == 0 {
		r.table = table
		return
	}

	type reporter struct {
		router proto.RouterID
		cost   float64
	}
	networks := make(map[proto.NetworkAddress][]reporter)

	r.db.Each(func(node proto.RouterID, lsa *proto.LSAPacket) {
		for network, entry := range lsa.Networks {
			networks[network] = append(networks[network], reporter{router: node, cost: entry.Cost})
		}
	})

	type gatewayCandidate struct {
		gateway string
		iface   string
		cost    float64
	}
	var gateways []gatewayCandidate

	for network, reporters := range networks {
		if len(reporters) != 2 {
			continue
		}
		n1, n2 := reporters[0], reporters[1]

		var dest proto.RouterID
		var cost float64
		connected := n1.router == r.hostname || n2.router == r.hostname

		if connected {
			if n1.router == r.hostname {
				dest = n2.router
				cost = n1.cost
			} else {
				dest = n1.router
				cost = n2.cost
			}
		} else {
			cost1 := paths[n1.router].Cost + n1.cost
			cost2 := paths[n2.router].Cost + n2.cost
			if cost1 < cost2 {
				dest = n1.router
			} else {
				dest = n2.router
			}
			next := paths[dest]
			cost = next.Cost
			var destCost float64
			if dest == n1.router {
				destCost = n1.cost
			} else {
				destCost = n2.cost
			}
			cost += destCost
		}

		var nextHop proto.RouterID
		if connected {
			nextHop = dest
		} else {
			nextHop = paths[dest].NextHop
		}

		link, ok := r.neighbors[nextHop]
		if !ok {
			continue // next hop no longer adjacent; skip until the next recomputation
		}

		destLSA, ok := r.db.Get(dest)
		if !ok {
			continue
		}
		destEntry, ok := destLSA.Networks[network]
		if !ok {
			continue
		}

		gateway := link.address.String()
		if connected {
			gateways = append(gateways, gatewayCandidate{gateway: gateway, iface: link.ifaceName, cost: cost})
			gateway = route.Gateway
		}

		table.Add(route.Route{
			DestNetwork: network,
			Netmask:     destEntry.LocalNetmask,
			Gateway:     gateway,
			Metric:      cost,
			Iface:       link.ifaceName,
		})
	}

	if len(gateways) > 0 {
		best := gateways[0]
		for _, g := range gateways[1:] {
			if g.cost < best.cost {
				best = g
			}
		}
		table.Add(route.Route{
			DestNetwork: proto.NetworkAddress{},
			Netmask:     proto.IPv4Netmask{},
			Gateway:     best.gateway,
			Metric:      best.cost,
			Iface:       best.iface,
		})
	}

	r.table = table
}
