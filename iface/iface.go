// Package iface implements the per-link transport: listening for inbound
// connections, framing packets with a fixed terminator, and opening
// short-lived outbound connections to transmit (§4.7). Each packet is its
// own connection; there is no persistent session between neighbors.
package iface

import (
	"bufio"
	"bytes"
	"fmt"
	"net"
	"sync"

	"github.com/linkstate/routerd/proto"
	"github.com/linkstate/routerd/util/assert"
	"github.com/linkstate/routerd/util/logger"
)

// Delivery is one packet received on an interface, handed to a subscriber
// for dispatch to the router's onHello/onLSA handlers.
type Delivery struct {
	IfaceName string
	Packet    any // *proto.HelloPacket or *proto.LSAPacket
}

// DeliveryFunc is notified once per inbound packet delivered on an
// interface. There is exactly one subscriber in practice (the owning
// Router), so this is a plain callback rather than a general fan-out.
type DeliveryFunc func(Delivery)

// Interface is one physical/logical link: a listening socket for inbound
// packets, and addressing/bandwidth/remote-end configuration for outbound
// transmission. The zero value is not usable; construct with New.
type Interface struct {
	Name      string
	Bandwidth float64 // bits per second, used for cost = BANDWIDTH_BASE / Bandwidth

	Address proto.IPv4Address
	Netmask proto.IPv4Netmask

	remoteEnd string // host:port dialed for outbound transmission

	codec       proto.Codec
	subscribers []DeliveryFunc

	mu       sync.Mutex
	listener net.Listener
	wg       sync.WaitGroup
	closed   bool
}

// New creates an interface using codec to encode and decode packets. The
// interface is not listening until Open is called with a port.
func New(name string, bandwidth float64, codec proto.Codec) *Interface {
	return &Interface{
		Name:      name,
		Bandwidth: bandwidth,
		codec:     codec,
	}
}

// Configure sets the link-local addressing and the remote endpoint dialed
// on Transmit (§6 iface_config).
func (i *Interface) Configure(address proto.IPv4Address, netmask proto.IPv4Netmask, remoteHost string, remotePort int) {
	i.Address = address
	i.Netmask = netmask
	i.remoteEnd = fmt.Sprintf("%s:%d", remoteHost, remotePort)
}

// Subscribe registers fn to be called once per inbound packet delivered on
// this interface. Must be called before Open.
func (i *Interface) Subscribe(fn DeliveryFunc) {
	i.subscribers = append(i.subscribers, fn)
}

// Open starts listening on listenPort for inbound connections.
func (i *Interface) Open(listenPort int) error {
	listener, err := net.Listen("tcp4", fmt.Sprintf(":%d", listenPort))
	if err != nil {
		return err
	}

	i.mu.Lock()
	i.listener = listener
	i.mu.Unlock()

	i.wg.Add(1)
	go i.acceptLoop(listener)

	logger.Infof("%s up", i.Name)
	return nil
}

// Port returns the TCP port the interface is listening on, useful when Open
// was called with port 0 and the OS assigned one. Panics if not open.
func (i *Interface) Port() int {
	i.mu.Lock()
	defer i.mu.Unlock()
	assert.IsNotNil(i.listener, "interface %s is not open", i.Name)
	return i.listener.Addr().(*net.TCPAddr).Port
}

func (i *Interface) acceptLoop(listener net.Listener) {
	defer i.wg.Done()

	for {
		conn, err := listener.Accept()
		if err != nil {
			return // listener closed
		}

		i.wg.Add(1)
		go i.handleConn(conn)
	}
}

// handleConn reads exactly one terminator-delimited packet from conn,
// decodes it, and delivers it to subscribers. Deserialization errors drop
// the packet and close the connection without mutating any state (§7).
func (i *Interface) handleConn(conn net.Conn) {
	defer i.wg.Done()
	defer conn.Close()

	data, err := readUntilTerminator(conn)
	if err != nil {
		logger.Debugf("%s: failed to read framed packet: %v", i.Name, err)
		return
	}

	packet, err := i.codec.Decode(data)
	if err != nil {
		logger.Debugf("%s: failed to decode packet: %v", i.Name, err)
		return
	}

	d := Delivery{IfaceName: i.Name, Packet: packet}
	for _, fn := range i.subscribers {
		fn(d)
	}
}

func readUntilTerminator(conn net.Conn) ([]byte, error) {
	reader := bufio.NewReader(conn)
	var buf bytes.Buffer

	terminator := proto.Terminator[:]
	for {
		b, err := reader.ReadByte()
		if err != nil {
			return nil, err
		}
		buf.WriteByte(b)

		if buf.Len() >= len(terminator) && bytes.HasSuffix(buf.Bytes(), terminator) {
			return buf.Bytes()[:buf.Len()-len(terminator)], nil
		}
	}
}

// Transmit opens a short-lived connection to the configured remote end,
// writes the encoded packet followed by the terminator, and closes.
// Transmission failure is swallowed: flooding is best-effort, and the next
// periodic Hello cycle re-establishes any lost state (§4.7, §7).
func (i *Interface) Transmit(packet any) {
	data, err := i.encode(packet)
	if err != nil {
		assert.Never() // packets originated locally must always be encodable
	}

	conn, err := net.Dial("tcp4", i.remoteEnd)
	if err != nil {
		logger.Debugf("%s: transmit to %s failed: %v", i.Name, i.remoteEnd, err)
		return
	}
	defer conn.Close()

	if _, err := conn.Write(append(data, proto.Terminator[:]...)); err != nil {
		logger.Debugf("%s: transmit to %s failed: %v", i.Name, i.remoteEnd, err)
	}
}

func (i *Interface) encode(packet any) ([]byte, error) {
	switch p := packet.(type) {
	case *proto.HelloPacket:
		return i.codec.EncodeHello(p)
	case *proto.LSAPacket:
		return i.codec.EncodeLSA(p)
	default:
		return nil, fmt.Errorf("iface: unsupported packet type %T", packet)
	}
}

// Close stops listening and releases the listener, then waits for every
// in-flight accepted connection to finish. It does not interrupt in-flight
// outbound Transmit calls; those complete or fail on their own.
func (i *Interface) Close() error {
	i.mu.Lock()
	if i.closed {
		i.mu.Unlock()
		return nil
	}
	i.closed = true
	listener := i.listener
	i.mu.Unlock()

	var err error
	if listener != nil {
		err = listener.Close()
	}
	i.wg.Wait()

	logger.Infof("%s down", i.Name)
	return err
}
