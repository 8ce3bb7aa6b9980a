package router

import (
	"sync"
	"testing"
	"time"

	"github.com/linkstate/routerd/iface"
	"github.com/linkstate/routerd/internal/config"
	"github.com/linkstate/routerd/proto"
	"github.com/linkstate/routerd/timer"
)

func testConfig() config.Config {
	cfg := config.DefaultConfig()
	cfg.HelloInterval = 1 * time.Second
	cfg.DeadInterval = 4 * time.Second
	cfg.AgeInterval = 1 * time.Second
	cfg.LSRefreshTime = 10 * time.Second
	cfg.MaxAge = 20
	cfg.AgeTolerance = 1
	cfg.BandwidthBase = 1e8
	return cfg
}

func newTestRouter(hostname proto.RouterID) (*Router, *timer.FakeService) {
	svc := timer.NewFakeService()
	var codec proto.BinaryCodec
	return New(hostname, testConfig(), svc, codec), svc
}

func link(id proto.RouterID, ifaceName string, address proto.IPv4Address, netmask proto.IPv4Netmask) (proto.RouterID, linkInfo) {
	return id, linkInfo{ifaceName: ifaceName, address: address, netmask: netmask}
}

func TestAdvertiseCreatesInitialLSA(t *testing.T) {
	r, _ := newTestRouter("A")

	r.advertise()

	lsa, ok := r.db.Get("A")
	if !ok {
		t.Fatal("expected local LSA to exist after advertise")
	}
	if lsa.SeqNo != r.cfg.InitialSequenceNumber {
		t.Fatalf("got seq_no %d, want %d", lsa.SeqNo, r.cfg.InitialSequenceNumber)
	}
	if lsa.Age != 1 {
		t.Fatalf("got age %d, want 1", lsa.Age)
	}
}

func TestAdvertiseIncrementsSequenceNumber(t *testing.T) {
	r, _ := newTestRouter("A")

	r.advertise()
	first, _ := r.db.Get("A")
	firstSeq := first.SeqNo

	r.advertise()
	second, _ := r.db.Get("A")

	if second.SeqNo <= firstSeq {
		t.Fatalf("expected strictly increasing seq_no, got %d then %d", firstSeq, second.SeqNo)
	}
}

func TestOnLSAReceivedRejectsStaleSequenceNumber(t *testing.T) {
	r, _ := newTestRouter("A")

	r.db.Insert(&proto.LSAPacket{AdvRouter: "X", SeqNo: 5, Age: 1, Networks: map[proto.NetworkAddress]proto.NetworkEntry{}})

	r.onLSAReceived("eth0", &proto.LSAPacket{AdvRouter: "X", SeqNo: 3, Age: 1, Networks: map[proto.NetworkAddress]proto.NetworkEntry{}})

	stored, _ := r.db.Get("X")
	if stored.SeqNo != 5 {
		t.Fatalf("expected stale LSA to be rejected, got stored seq_no %d", stored.SeqNo)
	}
}

func TestOnLSAReceivedHandlesSelfEchoAtStartup(t *testing.T) {
	r, _ := newTestRouter("A")

	// A peer echoes our own seq_no=1 startup LSA back before we have one
	// stored locally.
	r.onLSAReceived("eth0", &proto.LSAPacket{
		AdvRouter: "A",
		SeqNo:     1,
		Age:       1,
		Networks:  map[proto.NetworkAddress]proto.NetworkEntry{},
	})

	lsa, ok := r.db.Get("A")
	if !ok {
		t.Fatal("expected self-echo to originate a local LSA")
	}
	if lsa.SeqNo != 2 {
		t.Fatalf("expected re-origination with seq_no 2, got %d", lsa.SeqNo)
	}
}

func TestOnLSAReceivedReassertsAuthorityWhenAlreadyAdvertised(t *testing.T) {
	r, _ := newTestRouter("A")
	r.advertise() // seq_no becomes InitialSequenceNumber (1)

	local, _ := r.db.Get("A")

	// Someone floods an identical copy of our own seq_no==1 LSA back to us.
	echoed := local.Clone()
	echoed.SeqNo = local.SeqNo // identical copy is rejected by Insert...
	r.onLSAReceived("eth0", echoed)

	// ...but a dropped copy of our own LSA carrying the initial sequence
	// number is a stale startup echo (§4.5), so we re-originate with the
	// next sequence number.
	after, _ := r.db.Get("A")
	if after.SeqNo != local.SeqNo+1 {
		t.Fatalf("expected stale startup echo to trigger re-origination, got seq_no %d want %d", after.SeqNo, local.SeqNo+1)
	}
}

func TestBreakAdjacencyRemovesNeighborAndReoriginates(t *testing.T) {
	r, _ := newTestRouter("A")
	r.seen["B"] = linkInfo{ifaceName: "eth0", address: proto.IPv4Address{10, 0, 0, 2}, netmask: proto.IPv4Netmask{255, 255, 255, 0}}
	r.neighbors["B"] = r.seen["B"]

	deadFired := false
	r.deadTimers["B"] = fakeTimer{stopFn: func() { deadFired = true }}

	r.breakAdjacency("B")

	if _, ok := r.neighbors["B"]; ok {
		t.Fatal("expected neighbor B to be removed")
	}
	if _, ok := r.seen["B"]; ok {
		t.Fatal("expected seen entry for B to be removed")
	}
	if _, ok := r.deadTimers["B"]; ok {
		t.Fatal("expected dead timer for B to be removed")
	}
	if !deadFired {
		t.Fatal("expected dead timer to be stopped")
	}

	// With no neighbors left, the re-origination advertises an empty
	// networks map rather than failing.
	lsa, ok := r.db.Get("A")
	if !ok {
		t.Fatal("expected re-origination to create a local LSA")
	}
	if len(lsa.Networks) != 0 {
		t.Fatalf("expected empty networks after losing only neighbor, got %v", lsa.Networks)
	}
}

type fakeTimer struct {
	stopFn func()
}

func (f fakeTimer) Stop() { f.stopFn() }

func TestUpdateRoutingTableDirectlyConnectedNetwork(t *testing.T) {
	r, _ := newTestRouter("A")
	r.neighbors["B"] = linkInfo{ifaceName: "eth0", address: proto.IPv4Address{10, 0, 0, 2}, netmask: proto.IPv4Netmask{255, 255, 255, 0}}

	net := proto.NetworkAddress{10, 0, 0, 0}
	r.db.Insert(&proto.LSAPacket{
		AdvRouter: "A",
		SeqNo:     1,
		Age:       1,
		Networks: map[proto.NetworkAddress]proto.NetworkEntry{
			net: {Peer: "B", Cost: 1, LocalAddress: proto.IPv4Address{10, 0, 0, 2}, LocalNetmask: proto.IPv4Netmask{255, 255, 255, 0}},
		},
	})
	r.db.Insert(&proto.LSAPacket{
		AdvRouter: "B",
		SeqNo:     1,
		Age:       1,
		Networks: map[proto.NetworkAddress]proto.NetworkEntry{
			net: {Peer: "A", Cost: 1, LocalAddress: proto.IPv4Address{10, 0, 0, 1}, LocalNetmask: proto.IPv4Netmask{255, 255, 255, 0}},
		},
	})

	r.updateRoutingTable()

	route, ok := r.table.Lookup(net)
	if !ok {
		t.Fatal("expected a route for the shared network")
	}
	if route.Gateway != "-" {
		t.Fatalf("expected directly-connected gateway marker, got %q", route.Gateway)
	}
	if route.Metric != 1 {
		t.Fatalf("got metric %v, want 1", route.Metric)
	}
	if route.Iface != "eth0" {
		t.Fatalf("got iface %q, want eth0", route.Iface)
	}
}

func TestUpdateRoutingTableThreeRouterLine(t *testing.T) {
	// A -- B -- C, costs 1 and 2. A's table must have a route to C's far
	// network via next hop B, cost 1+2=3.
	r, _ := newTestRouter("A")
	r.neighbors["B"] = linkInfo{ifaceName: "toB", address: proto.IPv4Address{10, 0, 0, 2}, netmask: proto.IPv4Netmask{255, 255, 255, 0}}

	abNet := proto.NetworkAddress{10, 0, 0, 0}
	bcNet := proto.NetworkAddress{10, 0, 1, 0}

	r.db.Insert(&proto.LSAPacket{
		AdvRouter: "A", SeqNo: 1, Age: 1,
		Networks: map[proto.NetworkAddress]proto.NetworkEntry{
			abNet: {Peer: "B", Cost: 1, LocalAddress: proto.IPv4Address{10, 0, 0, 2}, LocalNetmask: proto.IPv4Netmask{255, 255, 255, 0}},
		},
	})
	r.db.Insert(&proto.LSAPacket{
		AdvRouter: "B", SeqNo: 1, Age: 1,
		Networks: map[proto.NetworkAddress]proto.NetworkEntry{
			abNet: {Peer: "A", Cost: 1, LocalAddress: proto.IPv4Address{10, 0, 0, 1}, LocalNetmask: proto.IPv4Netmask{255, 255, 255, 0}},
			bcNet: {Peer: "C", Cost: 2, LocalAddress: proto.IPv4Address{10, 0, 1, 2}, LocalNetmask: proto.IPv4Netmask{255, 255, 255, 0}},
		},
	})
	r.db.Insert(&proto.LSAPacket{
		AdvRouter: "C", SeqNo: 1, Age: 1,
		Networks: map[proto.NetworkAddress]proto.NetworkEntry{
			bcNet: {Peer: "B", Cost: 2, LocalAddress: proto.IPv4Address{10, 0, 1, 1}, LocalNetmask: proto.IPv4Netmask{255, 255, 255, 0}},
		},
	})

	r.updateRoutingTable()

	route, ok := r.table.Lookup(bcNet)
	if !ok {
		t.Fatal("expected a route to C's far network")
	}
	if route.Iface != "toB" {
		t.Fatalf("got iface %q, want toB", route.Iface)
	}
	if route.Gateway != "10.0.0.2" {
		t.Fatalf("got gateway %q, want 10.0.0.2 (B's address)", route.Gateway)
	}
	if route.Metric != 3 {
		t.Fatalf("got metric %v, want 3", route.Metric)
	}
}

func TestUpdateRoutingTableSkipsNetworksNotReportedByExactlyTwo(t *testing.T) {
	r, _ := newTestRouter("A")

	stubNet := proto.NetworkAddress{192, 168, 1, 0}
	r.db.Insert(&proto.LSAPacket{
		AdvRouter: "A", SeqNo: 1, Age: 1,
		Networks: map[proto.NetworkAddress]proto.NetworkEntry{
			stubNet: {Peer: "ghost", Cost: 1},
		},
	})

	r.updateRoutingTable()

	if _, ok := r.table.Lookup(stubNet); ok {
		t.Fatal("expected stub network reported by only one router to be skipped")
	}
}

func TestFloodDoesNotEchoBackToSourceInterface(t *testing.T) {
	r, _ := newTestRouter("A")

	peerB := newCountingPeer(t)
	defer peerB.iface.Close()
	peerC := newCountingPeer(t)
	defer peerC.iface.Close()

	toB := mustOpenTestIface(t, "toB", peerB.iface.Port())
	defer toB.Close()
	toC := mustOpenTestIface(t, "toC", peerC.iface.Port())
	defer toC.Close()

	r.interfaces["toB"] = toB
	r.interfaces["toC"] = toC
	r.neighbors["B"] = linkInfo{ifaceName: "toB"}
	r.neighbors["C"] = linkInfo{ifaceName: "toC"}

	lsa := &proto.LSAPacket{AdvRouter: "X", SeqNo: 1, Age: 1, Networks: map[proto.NetworkAddress]proto.NetworkEntry{}}
	r.flood(lsa, "toB")

	peerC.waitForOne(t)
	if peerB.count() != 0 {
		t.Fatal("expected source interface to be excluded from flooding")
	}
}

// countingPeer is a standalone listening interface used to observe whether
// a test router transmitted to it, without pulling in a second Router.
type countingPeer struct {
	iface *iface.Interface
	mu    sync.Mutex
	n     int
	ready chan struct{}
}

func newCountingPeer(t *testing.T) *countingPeer {
	t.Helper()
	var codec proto.BinaryCodec
	link := iface.New("peer", 1e8, codec)
	if err := link.Open(0); err != nil {
		t.Fatalf("open peer listener: %v", err)
	}

	p := &countingPeer{iface: link, ready: make(chan struct{}, 8)}
	link.Subscribe(p.record)
	return p
}

func (p *countingPeer) record(d iface.Delivery) {
	p.mu.Lock()
	p.n++
	p.mu.Unlock()
	p.ready <- struct{}{}
}

func (p *countingPeer) count() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.n
}

func (p *countingPeer) waitForOne(t *testing.T) {
	t.Helper()
	select {
	case <-p.ready:
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for a delivery")
	}
}

func mustOpenTestIface(t *testing.T, name string, remotePort int) *iface.Interface {
	t.Helper()
	var codec proto.BinaryCodec
	link := iface.New(name, 1e8, codec)
	if err := link.Open(0); err != nil {
		t.Fatalf("open %s: %v", name, err)
	}
	link.Configure(proto.IPv4Address{127, 0, 0, 1}, proto.IPv4Netmask{255, 255, 255, 255}, "127.0.0.1", remotePort)
	return link
}

// TestTwoRouterAdjacencyConverges exercises scenario 1 end-to-end over real
// TCP loopback connections: two routers exchange Hellos until both list
// each other, at which point both LSDBs contain both LSAs and both routing
// tables carry the directly-connected route with metric BandwidthBase/1e8.
func TestTwoRouterAdjacencyConverges(t *testing.T) {
	a, _ := newTestRouter("A")
	b, _ := newTestRouter("B")

	if err := a.CreateInterface("toB", 1e8, 0); err != nil {
		t.Fatalf("A CreateInterface: %v", err)
	}
	if err := b.CreateInterface("toA", 1e8, 0); err != nil {
		t.Fatalf("B CreateInterface: %v", err)
	}

	aPort, _ := a.ListenPort("toB")
	bPort, _ := b.ListenPort("toA")

	if err := a.ConfigureInterface("toB", proto.IPv4Address{10, 0, 0, 1}, proto.IPv4Netmask{255, 255, 255, 0}, "127.0.0.1", bPort); err != nil {
		t.Fatalf("A ConfigureInterface: %v", err)
	}
	if err := b.ConfigureInterface("toA", proto.IPv4Address{10, 0, 0, 2}, proto.IPv4Netmask{255, 255, 255, 0}, "127.0.0.1", aPort); err != nil {
		t.Fatalf("B ConfigureInterface: %v", err)
	}
	defer a.interfaces["toB"].Close()
	defer b.interfaces["toA"].Close()

	// Drive several Hello rounds by hand: first round lets each side learn
	// the other's router id into `seen`; second round lets each side see
	// itself echoed back in the peer's `seen` set, completing adjacency.
	for i := 0; i < 4; i++ {
		a.hello()
		b.hello()
		waitQuiescent()
	}

	aLSA, ok := a.db.Get("A")
	if !ok || len(aLSA.Networks) != 1 {
		t.Fatalf("A's local LSA not converged: %+v", aLSA)
	}
	if _, ok := a.db.Get("B"); !ok {
		t.Fatal("A's LSDB missing B's LSA after convergence")
	}
	if _, ok := b.db.Get("A"); !ok {
		t.Fatal("B's LSDB missing A's LSA after convergence")
	}

	net := proto.NetAdd(proto.IPv4Address{10, 0, 0, 1}, proto.IPv4Netmask{255, 255, 255, 0})
	route, ok := a.RoutingTable().Lookup(net)
	if !ok {
		t.Fatal("expected A's routing table to contain the shared network")
	}
	if route.Gateway != "-" {
		t.Fatalf("expected directly-connected gateway, got %q", route.Gateway)
	}
	wantMetric := a.cfg.BandwidthBase / 1e8
	if route.Metric != wantMetric {
		t.Fatalf("got metric %v, want %v", route.Metric, wantMetric)
	}
}

// waitQuiescent gives background accept/delivery goroutines time to settle
// after a synchronous round of Transmit calls, since delivery happens on a
// goroutine separate from the caller driving the timers.
func waitQuiescent() {
	time.Sleep(50 * time.Millisecond)
}
