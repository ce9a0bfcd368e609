// Package forward implements the bidirectional SRTLA<->SRT datapath: from
// SRTLA peers to the upstream SRT socket, and from the upstream SRT
// socket back to SRTLA peers with ACK fanout.
package forward

import (
	"log/slog"
	"net"
	"time"

	"github.com/IRLToolkit/srtla/internal/ackbatch"
	"github.com/IRLToolkit/srtla/internal/regsm"
	"github.com/IRLToolkit/srtla/internal/session"
	"github.com/IRLToolkit/srtla/internal/wire"
)

// Listener is the subset of *net.UDPConn the engine needs to talk to
// SRTLA peers on the shared listening socket.
type Listener interface {
	WriteToUDP(b []byte, addr *net.UDPAddr) (int, error)
}

// UpstreamOpener lazily creates a group's upstream SRT socket and
// registers it with the reactor's readiness set, keyed by the group's
// stable handle rather than a raw pointer (see the Upstream socket as
// event source design note).
type UpstreamOpener interface {
	Open(g *session.Group) error
}

// GroupDestroyer tears a group down: removes it from the registry,
// closes its upstream socket if present, and deregisters it from the
// reactor. Implemented by the reactor, which is the only component that
// can safely do all three together.
type GroupDestroyer interface {
	Destroy(g *session.Group, reason string)
}

// Engine implements the forwarding engine.
type Engine struct {
	log       *slog.Logger
	listener  Listener
	registry  *session.Registry
	regsm     *regsm.Machine
	batcher   *ackbatch.Batcher
	upstream  UpstreamOpener
	destroyer GroupDestroyer
}

// New creates a forwarding Engine. log may be nil (defaults to
// slog.Default()).
func New(log *slog.Logger, listener Listener, registry *session.Registry, m *regsm.Machine, batcher *ackbatch.Batcher, upstream UpstreamOpener, destroyer GroupDestroyer) *Engine {
	if log == nil {
		log = slog.Default()
	}
	return &Engine{
		log:       log.With("component", "forward"),
		listener:  listener,
		registry:  registry,
		regsm:     m,
		batcher:   batcher,
		upstream:  upstream,
		destroyer: destroyer,
	}
}

// HandleInbound processes one datagram received from an SRTLA peer on
// the listening socket.
func (e *Engine) HandleInbound(src *net.UDPAddr, buf []byte, now time.Time) {
	if t, ok := wire.ClassifyType(buf); ok {
		switch t {
		case wire.TypeReg1:
			e.regsm.HandleReg1(src, buf, now)
			return
		case wire.TypeReg2:
			e.regsm.HandleReg2Client(src, buf, now)
			return
		}
	}

	group, conn := e.registry.FindByAddr(src)
	if group == nil || conn == nil {
		// Unknown source: discard silently, never reply, to avoid
		// amplification.
		e.log.Debug("discarding datagram from unknown source", "src", src)
		return
	}

	conn.Touch(now)

	if wire.IsKeepalive(buf) {
		if _, err := e.listener.WriteToUDP(buf, src); err != nil {
			e.log.Warn("keepalive echo failed", "addr", src, "error", err)
		}
		return
	}

	if len(buf) < wire.SRTMinLen {
		return
	}

	group.LastAddr = src

	if seq := wire.DataSeq(buf); seq >= 0 {
		e.batcher.RecordSeq(conn, seq)
	}

	if group.SRTSock == nil {
		if err := e.upstream.Open(group); err != nil {
			e.log.Error("failed to open upstream socket", "group", group.Handle(), "error", err)
			e.destroyer.Destroy(group, "upstream open failed")
			return
		}
	}

	n, err := group.SRTSock.Write(buf)
	if err != nil || n != len(buf) {
		e.log.Error("upstream send failed", "group", group.Handle(), "error", err)
		e.destroyer.Destroy(group, "upstream send failed")
		return
	}
}

// HandleOutbound processes one datagram read from g's upstream SRT
// socket.
func (e *Engine) HandleOutbound(g *session.Group, buf []byte) {
	if len(buf) < wire.SRTMinLen {
		e.destroyer.Destroy(g, "upstream short read")
		return
	}

	if wire.IsSRTAck(buf) {
		for _, c := range g.Conns() {
			if _, err := e.listener.WriteToUDP(buf, c.Addr); err != nil {
				e.log.Warn("ACK fanout send failed", "addr", c.Addr, "error", err)
			}
		}
		return
	}

	if g.LastAddr == nil {
		return
	}
	if _, err := e.listener.WriteToUDP(buf, g.LastAddr); err != nil {
		e.log.Warn("return-path send failed", "addr", g.LastAddr, "error", err)
	}
}
