package reactor

import (
	"fmt"
	"time"
)

// ConnSnapshot is a read-only view of one Connection, safe to hand to
// code outside the reactor goroutine.
type ConnSnapshot struct {
	Addr     string
	LastRcvd time.Time
}

// GroupSnapshot is a read-only view of one Group.
type GroupSnapshot struct {
	ID        string
	LastAddr  string
	CreatedAt time.Time
	Conns     []ConnSnapshot
}

// Stats is aggregate, process-lifetime counters for observability.
type Stats struct {
	LiveGroups    int
	LiveConns     int
	EvictedGroups int64
	EvictedConns  int64
	RegErr        int64
	RegNGP        int64
}

// Snapshot is an immutable point-in-time view of the reactor's state,
// published once per eviction sweep. Consumers (the debug HTTP API, the
// TUI) never touch live reactor state directly.
type Snapshot struct {
	Time   time.Time
	Groups []GroupSnapshot
	Stats  Stats
}

func (r *Reactor) buildSnapshot(now time.Time) *Snapshot {
	groups := r.registry.Groups()
	out := make([]GroupSnapshot, 0, len(groups))
	liveConns := 0

	for _, g := range groups {
		conns := g.Conns()
		liveConns += len(conns)
		cs := make([]ConnSnapshot, 0, len(conns))
		for _, c := range conns {
			addr := ""
			if c.Addr != nil {
				addr = c.Addr.String()
			}
			cs = append(cs, ConnSnapshot{Addr: addr, LastRcvd: c.LastRcvd()})
		}
		lastAddr := ""
		if g.LastAddr != nil {
			lastAddr = g.LastAddr.String()
		}
		out = append(out, GroupSnapshot{
			ID:        fmt.Sprintf("%x", g.ID),
			LastAddr:  lastAddr,
			CreatedAt: g.CreatedAt,
			Conns:     cs,
		})
	}

	return &Snapshot{
		Time:   now,
		Groups: out,
		Stats: Stats{
			LiveGroups:    len(groups),
			LiveConns:     liveConns,
			EvictedGroups: r.evictedGroups,
			EvictedConns:  r.evictedConns,
			RegErr:        r.regsm.RegErrCount(),
			RegNGP:        r.regsm.RegNGPCount(),
		},
	}
}

func (r *Reactor) publishSnapshot(now time.Time) {
	snap := r.buildSnapshot(now)
	r.snapshot.Store(snap)

	r.subsMu.Lock()
	subs := r.subs
	r.subsMu.Unlock()

	for _, ch := range subs {
		select {
		case ch <- snap:
		default:
		}
	}
}
