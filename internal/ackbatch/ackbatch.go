// Package ackbatch implements the per-connection link-ACK batcher: it
// records received SRT sequence numbers and, every RecvAckInt insertion,
// emits one batched SRTLA ACK packet to the connection's peer.
package ackbatch

import (
	"log/slog"
	"net"

	"github.com/IRLToolkit/srtla/internal/session"
	"github.com/IRLToolkit/srtla/internal/wire"
)

// Sender is the subset of *net.UDPConn used to address an ACK to a peer.
type Sender interface {
	WriteToUDP(b []byte, addr *net.UDPAddr) (int, error)
}

// Batcher emits batched SRTLA ACKs as connections accumulate received
// sequence numbers.
type Batcher struct {
	log        *slog.Logger
	sender     Sender
	recvAckInt int
}

// New creates a Batcher. log may be nil (defaults to slog.Default()).
func New(log *slog.Logger, sender Sender, recvAckInt int) *Batcher {
	if log == nil {
		log = slog.Default()
	}
	return &Batcher{
		log:        log.With("component", "ackbatch"),
		sender:     sender,
		recvAckInt: recvAckInt,
	}
}

// RecordSeq appends seq to c's receive log. On reaching RecvAckInt
// entries it emits a batched ACK to c.Addr and resets the buffer,
// whether or not the send succeeds -- a stuck peer must never cause the
// buffer to grow unbounded or retransmit indefinitely.
func (b *Batcher) RecordSeq(c *session.Connection, seq int64) {
	var wireSeq [4]byte
	wireSeq[0] = byte(seq >> 24)
	wireSeq[1] = byte(seq >> 16)
	wireSeq[2] = byte(seq >> 8)
	wireSeq[3] = byte(seq)

	c.AppendSeq(wireSeq)
	if c.RecvLogLen() < b.recvAckInt {
		return
	}

	seqs := c.DrainSeqs()
	ack := wire.BuildAck(seqs)
	if _, err := b.sender.WriteToUDP(ack, c.Addr); err != nil {
		b.log.Warn("ACK send failed", "addr", c.Addr, "error", err)
	}
}
