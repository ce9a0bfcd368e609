// Package reactor implements the single-threaded event loop over the
// listening SRTLA socket and the per-group upstream SRT sockets, plus
// the periodic eviction sweep that retires stale connections and
// groups.
//
// All registry/group/connection state is owned and mutated exclusively
// by the goroutine running Run. Per-socket reads happen on their own
// goroutines (Go has no portable single-call multi-socket readiness
// primitive exposed the way epoll/kqueue are in the source systems
// language), but each reader only ever produces an immutable event onto
// a shared channel -- the dispatch loop that drains that channel is the
// sole owner of state, so the concurrency model in spec §5 (no locks
// required, single writer) holds even though I/O is fanned across
// goroutines.
package reactor

import (
	"context"
	"fmt"
	"log/slog"
	"net"
	"sync"
	"sync/atomic"
	"time"

	"github.com/IRLToolkit/srtla/internal/ackbatch"
	"github.com/IRLToolkit/srtla/internal/config"
	"github.com/IRLToolkit/srtla/internal/forward"
	"github.com/IRLToolkit/srtla/internal/regsm"
	"github.com/IRLToolkit/srtla/internal/session"
)

// maxBatch bounds how many already-queued events are drained and
// processed before the reactor re-checks the clock and runs eviction,
// approximating the "small batch" the source system's epoll_wait call
// returns per iteration.
const maxBatch = 64

type event struct {
	handle     uint64 // 0 for the listener; otherwise a group handle
	isListener bool
	buf        []byte
	src        *net.UDPAddr
}

// Reactor is the receiver's single dispatch loop.
type Reactor struct {
	log      *slog.Logger
	listener *net.UDPConn
	srtAddr  *net.UDPAddr
	registry *session.Registry
	limits   config.Limits

	regsm   *regsm.Machine
	batcher *ackbatch.Batcher
	engine  *forward.Engine
	events  EventPublisher

	eventQueue chan event

	lastCleanup time.Time

	evictedGroups int64
	evictedConns  int64

	snapshot atomic.Pointer[Snapshot]
	subsMu   sync.Mutex
	subs     []chan *Snapshot
}

// Subscribe returns a buffered channel that receives a best-effort copy
// of every Snapshot published after an eviction sweep. Sends are
// non-blocking: a slow or absent reader never stalls the reactor.
func (r *Reactor) Subscribe() <-chan *Snapshot {
	ch := make(chan *Snapshot, 1)
	r.subsMu.Lock()
	r.subs = append(r.subs, ch)
	r.subsMu.Unlock()
	return ch
}

// LatestSnapshot returns the most recently published Snapshot, or nil
// if no eviction sweep has run yet.
func (r *Reactor) LatestSnapshot() *Snapshot {
	return r.snapshot.Load()
}

// AdmissionPolicy and EventPublisher mirror regsm's optional hooks so
// main doesn't need to import regsm directly to wire them.
type AdmissionPolicy = regsm.AdmissionPolicy
type EventPublisher = regsm.EventPublisher

// New builds a Reactor bound to the given listening socket and resolved
// upstream SRT address. log may be nil (defaults to slog.Default());
// policy and events may be nil (both optional features disabled).
func New(log *slog.Logger, listener *net.UDPConn, srtAddr *net.UDPAddr, limits config.Limits, policy AdmissionPolicy, events EventPublisher) *Reactor {
	if log == nil {
		log = slog.Default()
	}
	log = log.With("component", "reactor")

	registry := session.NewRegistry()
	r := &Reactor{
		log:        log,
		listener:   listener,
		srtAddr:    srtAddr,
		registry:   registry,
		limits:     limits,
		events:     events,
		eventQueue: make(chan event, 1024),
	}

	r.regsm = regsm.New(log, listener, registry, limits, policy, events)
	r.batcher = ackbatch.New(log, listener, limits.RecvAckInt)
	r.engine = forward.New(log, listener, registry, r.regsm, r.batcher, r, r)

	return r
}

// Registry exposes the live registry for read-only inspection (debug
// API, TUI). It must not be mutated outside the reactor goroutine.
func (r *Reactor) Registry() *session.Registry { return r.registry }

// Run drives the dispatch loop until ctx is cancelled, then returns nil.
// Read errors on the listening socket are logged and do not stop the
// loop.
func (r *Reactor) Run(ctx context.Context) error {
	go r.listenLoop(ctx)

	ticker := time.NewTicker(time.Second)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case ev := <-r.eventQueue:
			batch := []event{ev}
		drain:
			for len(batch) < maxBatch {
				select {
				case ev2 := <-r.eventQueue:
					batch = append(batch, ev2)
				default:
					break drain
				}
			}
			now := time.Now()
			for _, e := range batch {
				before := r.registry.Count()
				r.dispatch(e, now)
				if r.registry.Count() < before {
					// A group died mid-batch; any remaining events may
					// reference it. Abandon the rest of this batch and
					// re-enter the wait rather than risk dispatching
					// against a retired group.
					break
				}
			}
			r.maybeSweep(time.Now())
		case <-ticker.C:
			r.maybeSweep(time.Now())
		}
	}
}

func (r *Reactor) dispatch(e event, now time.Time) {
	if e.isListener {
		r.engine.HandleInbound(e.src, e.buf, now)
		return
	}
	g, ok := r.registry.FindByHandle(e.handle)
	if !ok {
		// Already destroyed earlier in this batch or a prior one;
		// nothing to dispatch against.
		return
	}
	r.engine.HandleOutbound(g, e.buf)
}

func (r *Reactor) listenLoop(ctx context.Context) {
	buf := make([]byte, 65507)
	for {
		if ctx.Err() != nil {
			return
		}
		r.listener.SetReadDeadline(time.Now().Add(time.Second))
		n, src, err := r.listener.ReadFromUDP(buf)
		if err != nil {
			if ne, ok := err.(net.Error); ok && ne.Timeout() {
				continue
			}
			if ctx.Err() != nil {
				return
			}
			r.log.Error("listener read failed", "error", err)
			continue
		}
		cp := make([]byte, n)
		copy(cp, buf[:n])
		r.enqueue(event{isListener: true, buf: cp, src: src})
	}
}

func (r *Reactor) upstreamLoop(g *session.Group, conn *net.UDPConn) {
	handle := g.Handle()
	buf := make([]byte, 65507)
	for {
		n, err := conn.Read(buf)
		if err != nil {
			return
		}
		cp := make([]byte, n)
		copy(cp, buf[:n])
		r.enqueue(event{handle: handle, buf: cp})
	}
}

func (r *Reactor) enqueue(e event) {
	select {
	case r.eventQueue <- e:
	default:
		r.log.Warn("event queue full, dropping datagram")
	}
}

// publish forwards a lifecycle event to the optional telemetry
// publisher, mirroring regsm's own best-effort publish helper.
func (r *Reactor) publish(event string, fields map[string]any) {
	if r.events != nil {
		r.events.Publish(event, fields)
	}
}

// Open implements forward.UpstreamOpener: it creates and connects the
// group's upstream SRT socket and starts its reader goroutine.
func (r *Reactor) Open(g *session.Group) error {
	conn, err := net.DialUDP("udp4", nil, r.srtAddr)
	if err != nil {
		return err
	}
	g.SRTSock = conn
	go r.upstreamLoop(g, conn)
	return nil
}

// Destroy implements forward.GroupDestroyer: it removes g from the
// registry first, then closes its upstream socket if present. The
// upstream reader goroutine exits on its own once the socket is closed.
func (r *Reactor) Destroy(g *session.Group, reason string) {
	r.registry.Remove(g)
	if g.SRTSock != nil {
		g.SRTSock.Close()
		g.SRTSock = nil
	}
	r.evictedGroups++
	r.log.Info("group destroyed", "group", g.Handle(), "reason", reason)
	r.publish("group_destroyed", map[string]any{"group": fmt.Sprintf("%x", g.ID), "reason": reason})
}
