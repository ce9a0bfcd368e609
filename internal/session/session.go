// Package session holds the receiver's in-memory data model: the Group
// and Connection types from the core spec, and the Registry that indexes
// them by group id and by peer address. Every mutation here happens on
// the single reactor goroutine; the package takes no locks of its own,
// mirroring the teacher pack's single-owner registries (stream.Manager,
// ingest.Registry) but without their mutexes, since this design has only
// one writer and one reader.
package session

import (
	"net"
	"time"

	"github.com/IRLToolkit/srtla/internal/wire"
)

// Connection is one network path within a Group.
type Connection struct {
	Addr *net.UDPAddr

	// recvLog holds up to RecvAckInt entries, each a big-endian SRT
	// sequence number in the form they'll be retransmitted in an ACK.
	recvLog  [][4]byte
	lastRcvd time.Time
}

func newConnection(addr *net.UDPAddr, recvAckInt int, now time.Time) *Connection {
	return &Connection{
		Addr:     addr,
		recvLog:  make([][4]byte, 0, recvAckInt),
		lastRcvd: now,
	}
}

// LastRcvd returns the wall-clock time of the most recent inbound packet
// on this connection.
func (c *Connection) LastRcvd() time.Time { return c.lastRcvd }

// Touch records that a packet was just received on this connection.
func (c *Connection) Touch(now time.Time) { c.lastRcvd = now }

// RecvLogLen returns the number of sequence numbers currently buffered
// (the invariant 0 <= RecvLogLen < RecvAckInt holds between ACK flushes).
func (c *Connection) RecvLogLen() int { return len(c.recvLog) }

// AppendSeq appends a received SRT sequence number (already in the
// 4-byte wire form) to the buffer. Callers are responsible for flushing
// and resetting once the buffer reaches RecvAckInt; AppendSeq itself
// never flushes, keeping the ack-batching policy in one place
// (internal/ackbatch).
func (c *Connection) AppendSeq(seq [4]byte) {
	c.recvLog = append(c.recvLog, seq)
}

// DrainSeqs returns the buffered sequence numbers in arrival order and
// resets the buffer to empty.
func (c *Connection) DrainSeqs() [][4]byte {
	out := c.recvLog
	c.recvLog = make([][4]byte, 0, cap(out))
	return out
}

// Group is a logical client session grouping up to MaxConnsPerGroup
// connections that share an id and a single upstream SRT socket.
type Group struct {
	ID [wire.SRTLAIDLen]byte

	// handle is a stable integer identity used to key reactor event
	// sources, so that dispatch can re-resolve the live Group by handle
	// instead of holding a reference that destruction could invalidate
	// (see the reactor package's restart-the-batch rule).
	handle uint64

	conns []*Connection

	// SRTSock is the upstream UDP socket toward the configured SRT
	// server, lazily created on the first forwardable datagram and
	// closed on group destruction. Nil means no outbound SRT traffic
	// exists yet for this group.
	SRTSock *net.UDPConn

	// LastAddr is the peer address of the most recently received valid
	// packet belonging to this group. It is also set at registration
	// time, which is what prevents a second group from registering from
	// the same address while this one is alive.
	LastAddr *net.UDPAddr

	CreatedAt time.Time
}

// Handle returns the group's stable reactor identity.
func (g *Group) Handle() uint64 { return g.handle }

// Conns returns the group's live connections. Callers must not retain
// or mutate the returned slice past the current event.
func (g *Group) Conns() []*Connection { return g.conns }

func addrEqual(a, b *net.UDPAddr) bool {
	if a == nil || b == nil {
		return false
	}
	return a.Port == b.Port && a.IP.Equal(b.IP)
}
