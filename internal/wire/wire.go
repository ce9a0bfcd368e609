// Package wire implements the byte-exact SRTLA overlay codec and the
// minimal SRT packet recognition this receiver needs. Every parser here
// rejects short input instead of panicking. Group ids are compared through
// ConstantTimeEqual rather than a short-circuiting primitive; type
// prefixes are compared as whole 16-bit integers, not through
// ConstantTimeEqual.
package wire

import (
	"crypto/subtle"
	"encoding/binary"
)

// Wire-format constants. These are a compatibility surface: they must
// match the sender's build exactly.
const (
	// SRTLAIDLen is the length in bytes of a full SRTLA group id (256 bits).
	SRTLAIDLen = 32
	// srtlaIDHalfLen is the length of each half of a group id (128 bits):
	// the client-chosen half and the server-generated nonce half.
	srtlaIDHalfLen = SRTLAIDLen / 2

	// RecvAckInt is the number of SRT sequence numbers batched into one
	// SRTLA ACK packet.
	RecvAckInt = 10

	// MTU is the minimum path MTU this receiver assumes for a single
	// SRTLA/SRT datagram.
	MTU = 1500

	// SRTMinLen is the fixed SRT packet header size in bytes.
	SRTMinLen = 16

	typePrefixLen = 2
)

// Type is an SRTLA overlay packet type, the 16-bit big-endian prefix
// shared by every message on the wire.
type Type uint16

// SRTLA overlay packet types.
const (
	TypeKeepalive Type = 0x1000
	TypeACK       Type = 0x1100
	TypeReg1      Type = 0x1200
	TypeReg2      Type = 0x1201
	TypeReg3      Type = 0x1202
	TypeRegErr    Type = 0x1203
	TypeRegNGP    Type = 0x1204
)

// Reg1Len is the fixed length of a REG1 packet: type prefix plus the
// 128-bit client-chosen id half.
const Reg1Len = typePrefixLen + srtlaIDHalfLen

// Reg2Len is the fixed length of a REG2 (or REG2-client) packet: type
// prefix plus the full 256-bit group id.
const Reg2Len = typePrefixLen + SRTLAIDLen

// fixedReplyLen is the length of a REG3, REG_ERR, REG_NGP or KEEPALIVE
// packet: just the type prefix.
const fixedReplyLen = typePrefixLen

// AckLen returns the fixed length of an SRTLA ACK packet carrying n
// sequence numbers: a 32-bit header followed by n big-endian uint32s.
func AckLen(n int) int {
	return 4 + n*4
}

// ClassifyType reads the 16-bit big-endian type prefix from buf. It does
// not validate the remaining length; callers use the per-type Parse
// functions for that. ok is false if buf is shorter than the prefix.
func ClassifyType(buf []byte) (Type, bool) {
	if len(buf) < typePrefixLen {
		return 0, false
	}
	return Type(binary.BigEndian.Uint16(buf[:typePrefixLen])), true
}

// ConstantTimeEqual reports whether a and b are byte-for-byte identical,
// in time independent of where they first differ. The registry uses it
// for group id comparison so that a peer cannot probe the id space via
// timing. Type prefixes do not go through it: the parsers in this
// package compare them as whole 16-bit integers.
func ConstantTimeEqual(a, b []byte) bool {
	if len(a) != len(b) {
		return false
	}
	return subtle.ConstantTimeCompare(a, b) == 1
}

// ParseReg1 parses a REG1 packet, returning the client-chosen id half.
// ok is false if buf is not exactly Reg1Len bytes or not type REG1.
func ParseReg1(buf []byte) (half [srtlaIDHalfLen]byte, ok bool) {
	if len(buf) != Reg1Len {
		return half, false
	}
	t, _ := ClassifyType(buf)
	if t != TypeReg1 {
		return half, false
	}
	copy(half[:], buf[typePrefixLen:])
	return half, true
}

// BuildReg1 builds a REG1 packet carrying the given client-chosen id half.
func BuildReg1(half [srtlaIDHalfLen]byte) []byte {
	buf := make([]byte, Reg1Len)
	binary.BigEndian.PutUint16(buf[:typePrefixLen], uint16(TypeReg1))
	copy(buf[typePrefixLen:], half[:])
	return buf
}

// ParseReg2 parses a REG2 (server reply) or REG2-client (connection
// attach) packet -- the two share an identical wire layout and are
// distinguished only by direction, not by bytes. ok is false if buf is
// not exactly Reg2Len bytes or not type REG2.
func ParseReg2(buf []byte) (id [SRTLAIDLen]byte, ok bool) {
	if len(buf) != Reg2Len {
		return id, false
	}
	t, _ := ClassifyType(buf)
	if t != TypeReg2 {
		return id, false
	}
	copy(id[:], buf[typePrefixLen:])
	return id, true
}

// BuildReg2 builds a REG2 packet carrying the full 256-bit group id.
func BuildReg2(id [SRTLAIDLen]byte) []byte {
	buf := make([]byte, Reg2Len)
	binary.BigEndian.PutUint16(buf[:typePrefixLen], uint16(TypeReg2))
	copy(buf[typePrefixLen:], id[:])
	return buf
}

// BuildReg3 builds a bare REG3 (attach acknowledgement) packet.
func BuildReg3() []byte {
	return buildFixedReply(TypeReg3)
}

// BuildRegErr builds a bare REG_ERR (generic negative reply) packet.
func BuildRegErr() []byte {
	return buildFixedReply(TypeRegErr)
}

// BuildRegNGP builds a bare REG_NGP ("no such group") packet.
func BuildRegNGP() []byte {
	return buildFixedReply(TypeRegNGP)
}

func buildFixedReply(t Type) []byte {
	buf := make([]byte, fixedReplyLen)
	binary.BigEndian.PutUint16(buf, uint16(t))
	return buf
}

// IsKeepalive reports whether buf is (at least) a KEEPALIVE packet.
// KEEPALIVE is echoed back byte-for-byte by the forwarding engine, so no
// Parse/Build pair is needed beyond type recognition.
func IsKeepalive(buf []byte) bool {
	t, ok := ClassifyType(buf)
	return ok && t == TypeKeepalive
}

// BuildKeepalive builds a bare KEEPALIVE packet, used only by tests and
// by callers that originate a keepalive rather than echo one.
func BuildKeepalive() []byte {
	return buildFixedReply(TypeKeepalive)
}

// ParseAck parses an SRTLA ACK packet expected to carry exactly n
// sequence numbers, returning them in wire (arrival) order. ok is false
// if the length doesn't match or the type isn't ACK.
func ParseAck(buf []byte, n int) (seqs [][4]byte, ok bool) {
	if len(buf) != AckLen(n) {
		return nil, false
	}
	hdr := binary.BigEndian.Uint32(buf[:4])
	if Type(hdr>>16) != TypeACK {
		return nil, false
	}
	seqs = make([][4]byte, n)
	for i := 0; i < n; i++ {
		copy(seqs[i][:], buf[4+i*4:8+i*4])
	}
	return seqs, true
}

// BuildAck builds an SRTLA ACK packet: a 32-bit header with TypeACK in
// the high 16 bits, followed by the given sequence numbers in order.
// Each entry is already in network byte order (as recorded by the
// link-ACK batcher), so it is copied verbatim.
func BuildAck(seqs [][4]byte) []byte {
	buf := make([]byte, AckLen(len(seqs)))
	binary.BigEndian.PutUint32(buf[:4], uint32(TypeACK)<<16)
	for i, s := range seqs {
		copy(buf[4+i*4:8+i*4], s[:])
	}
	return buf
}
