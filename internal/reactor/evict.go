package reactor

import (
	"fmt"
	"time"

	"github.com/IRLToolkit/srtla/internal/session"
)

// maybeSweep runs the eviction sweep at most once every CleanupPeriod,
// tracked by a single last-run timestamp (spec §4.7). It publishes a
// fresh snapshot after each sweep that runs; a call that returns early
// because CleanupPeriod has not elapsed publishes nothing.
func (r *Reactor) maybeSweep(now time.Time) {
	if now.Sub(r.lastCleanup) < r.limits.CleanupPeriod {
		return
	}
	r.lastCleanup = now
	r.sweep(now)
	r.publishSnapshot(now)
}

func (r *Reactor) sweep(now time.Time) {
	groupsExamined := 0
	connsExamined := 0
	connsRemoved := 0
	groupsRemoved := 0

	for _, g := range r.registry.Groups() {
		groupsExamined++
		for _, c := range append([]*session.Connection(nil), g.Conns()...) {
			connsExamined++
			if c.LastRcvd().Add(r.limits.ConnTimeout).Before(now) {
				g.RemoveConn(c)
				connsRemoved++
				addr := ""
				if c.Addr != nil {
					addr = c.Addr.String()
				}
				r.publish("connection_evicted", map[string]any{"group": fmt.Sprintf("%x", g.ID), "addr": addr})
			}
		}
	}

	var stale []*session.Group
	for _, g := range r.registry.Groups() {
		if len(g.Conns()) == 0 && g.CreatedAt.Add(r.limits.GroupTimeout).Before(now) {
			stale = append(stale, g)
		}
	}
	for _, g := range stale {
		r.Destroy(g, "eviction: empty and past group timeout")
		groupsRemoved++
	}

	r.evictedConns += int64(connsRemoved)

	if groupsExamined > 0 || connsExamined > 0 || groupsRemoved > 0 || connsRemoved > 0 {
		r.log.Info("eviction sweep",
			"groups_examined", groupsExamined,
			"conns_examined", connsExamined,
			"conns_removed", connsRemoved,
			"groups_removed", groupsRemoved,
		)
	}
}
