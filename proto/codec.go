package proto

import (
	"encoding/binary"
	"errors"
	"math"
)

// Terminator delimits one framed packet on the wire (§6 Wire format). It is
// chosen to be vanishingly unlikely to appear inside a well-formed encoded
// packet, and in any case the receiver only ever treats it as a delimiter,
// never inspects payload bytes for it ahead of time.
var Terminator = [6]byte{0x00, 'E', 0x00, 'O', 0x00, 'F'}

const (
	tagHello byte = 0x00
	tagLSA   byte = 0x01
)

// Codec turns HelloPacket/LSAPacket values into bytes and back. The
// encoding itself is a collaborator concern (§4.7); the engine only
// requires that decode(encode(p)) == p. Tests may substitute a
// deterministic stub; production code uses BinaryCodec.
type Codec interface {
	EncodeHello(p *HelloPacket) ([]byte, error)
	DecodeHello(data []byte) (*HelloPacket, error)
	EncodeLSA(p *LSAPacket) ([]byte, error)
	DecodeLSA(data []byte) (*LSAPacket, error)

	// Decode inspects the leading type tag and dispatches to DecodeHello or
	// DecodeLSA, returning the packet as *HelloPacket or *LSAPacket.
	Decode(data []byte) (any, error)
}

// BinaryCodec is a tagged, length-prefixed binary encoding: every router ID
// is preceded by a uint16 byte count, the Seen/Networks collections are
// preceded by a uint16 element count, and every fixed-width integer field
// uses encoding/binary big-endian.
type BinaryCodec struct{}

func (BinaryCodec) EncodeHello(p *HelloPacket) ([]byte, error) {
	buf := make([]byte, 0, 64)
	buf = append(buf, tagHello)
	buf = appendString(buf, string(p.RouterID))
	buf = append(buf, p.Address[:]...)
	buf = append(buf, p.Netmask[:]...)
	buf = appendUint16(buf, uint16(len(p.Seen)))
	for _, id := range p.Seen {
		buf = appendString(buf, string(id))
	}
	return buf, nil
}

func (BinaryCodec) DecodeHello(data []byte) (*HelloPacket, error) {
	r := &reader{data: data}
	tag, err := r.byte()
	if err != nil {
		return nil, err
	}
	if tag != tagHello {
		return nil, errors.New("proto: not a Hello packet")
	}

	routerID, err := r.str()
	if err != nil {
		return nil, err
	}
	addr, err := r.fixed4()
	if err != nil {
		return nil, err
	}
	mask, err := r.fixed4()
	if err != nil {
		return nil, err
	}
	count, err := r.uint16()
	if err != nil {
		return nil, err
	}

	seen := make([]RouterID, 0, count)
	for i := uint16(0); i < count; i++ {
		id, err := r.str()
		if err != nil {
			return nil, err
		}
		seen = append(seen, RouterID(id))
	}
	if !r.atEnd() {
		return nil, errors.New("proto: trailing bytes after Hello packet")
	}

	return &HelloPacket{
		RouterID: RouterID(routerID),
		Address:  IPv4Address(addr),
		Netmask:  IPv4Netmask(mask),
		Seen:     seen,
	}, nil
}

func (BinaryCodec) EncodeLSA(p *LSAPacket) ([]byte, error) {
	buf := make([]byte, 0, 128)
	buf = append(buf, tagLSA)
	buf = appendString(buf, string(p.AdvRouter))
	buf = appendUint32(buf, p.SeqNo)
	buf = appendUint32(buf, p.Age)
	buf = appendUint16(buf, uint16(len(p.Networks)))
	for netAddr, entry := range p.Networks {
		buf = append(buf, netAddr[:]...)
		buf = appendString(buf, string(entry.Peer))
		buf = appendUint64(buf, math.Float64bits(entry.Cost))
		buf = append(buf, entry.LocalAddress[:]...)
		buf = append(buf, entry.LocalNetmask[:]...)
	}
	return buf, nil
}

func (BinaryCodec) DecodeLSA(data []byte) (*LSAPacket, error) {
	r := &reader{data: data}
	tag, err := r.byte()
	if err != nil {
		return nil, err
	}
	if tag != tagLSA {
		return nil, errors.New("proto: not an LSA packet")
	}

	advRouter, err := r.str()
	if err != nil {
		return nil, err
	}
	seqNo, err := r.uint32()
	if err != nil {
		return nil, err
	}
	age, err := r.uint32()
	if err != nil {
		return nil, err
	}
	count, err := r.uint16()
	if err != nil {
		return nil, err
	}

	networks := make(map[NetworkAddress]NetworkEntry, count)
	for i := uint16(0); i < count; i++ {
		netAddr, err := r.fixed4()
		if err != nil {
			return nil, err
		}
		peer, err := r.str()
		if err != nil {
			return nil, err
		}
		costBits, err := r.uint64()
		if err != nil {
			return nil, err
		}
		localAddr, err := r.fixed4()
		if err != nil {
			return nil, err
		}
		localMask, err := r.fixed4()
		if err != nil {
			return nil, err
		}
		networks[NetworkAddress(netAddr)] = NetworkEntry{
			Peer:         RouterID(peer),
			Cost:         math.Float64frombits(costBits),
			LocalAddress: IPv4Address(localAddr),
			LocalNetmask: IPv4Netmask(localMask),
		}
	}
	if !r.atEnd() {
		return nil, errors.New("proto: trailing bytes after LSA packet")
	}

	return &LSAPacket{
		AdvRouter: RouterID(advRouter),
		SeqNo:     seqNo,
		Age:       age,
		Networks:  networks,
	}, nil
}

func (c BinaryCodec) Decode(data []byte) (any, error) {
	if len(data) == 0 {
		return nil, errors.New("proto: empty packet")
	}
	switch data[0] {
	case tagHello:
		return c.DecodeHello(data)
	case tagLSA:
		return c.DecodeLSA(data)
	default:
		return nil, errors.New("proto: unknown packet type tag")
	}
}

// --- small encode/decode helpers ---

func appendUint16(buf []byte, v uint16) []byte {
	var tmp [2]byte
	binary.BigEndian.PutUint16(tmp[:], v)
	return append(buf, tmp[:]...)
}

func appendUint32(buf []byte, v uint32) []byte {
	var tmp [4]byte
	binary.BigEndian.PutUint32(tmp[:], v)
	return append(buf, tmp[:]...)
}

func appendUint64(buf []byte, v uint64) []byte {
	var tmp [8]byte
	binary.BigEndian.PutUint64(tmp[:], v)
	return append(buf, tmp[:]...)
}

func appendString(buf []byte, s string) []byte {
	buf = appendUint16(buf, uint16(len(s)))
	return append(buf, s...)
}

type reader struct {
	data []byte
	pos  int
}

func (r *reader) atEnd() bool { return r.pos == len(r.data) }

func (r *reader) need(n int) error {
	if len(r.data)-r.pos < n {
		return errors.New("proto: truncated packet")
	}
	return nil
}

func (r *reader) byte() (byte, error) {
	if err := r.need(1); err != nil {
		return 0, err
	}
	b := r.data[r.pos]
	r.pos++
	return b, nil
}

func (r *reader) fixed4() ([4]byte, error) {
	var out [4]byte
	if err := r.need(4); err != nil {
		return out, err
	}
	copy(out[:], r.data[r.pos:r.pos+4])
	r.pos += 4
	return out, nil
}

func (r *reader) uint16() (uint16, error) {
	if err := r.need(2); err != nil {
		return 0, err
	}
	v := binary.BigEndian.Uint16(r.data[r.pos : r.pos+2])
	r.pos += 2
	return v, nil
}

func (r *reader) uint32() (uint32, error) {
	if err := r.need(4); err != nil {
		return 0, err
	}
	v := binary.BigEndian.Uint32(r.data[r.pos : r.pos+4])
	r.pos += 4
	return v, nil
}

func (r *reader) uint64() (uint64, error) {
	if err := r.need(8); err != nil {
		return 0, err
	}
	v := binary.BigEndian.Uint64(r.data[r.pos : r.pos+8])
	r.pos += 8
	return v, nil
}

func (r *reader) str() (string, error) {
	n, err := r.uint16()
	if err != nil {
		return "", err
	}
	if err := r.need(int(n)); err != nil {
		return "", err
	}
	s := string(r.data[r.pos : r.pos+int(n)])
	r.pos += int(n)
	return s, nil
}
