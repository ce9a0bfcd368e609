package reactor

import (
	"net"
	"testing"
	"time"

	"github.com/IRLToolkit/srtla/internal/config"
	"github.com/IRLToolkit/srtla/internal/wire"
)

func newTestReactor(t *testing.T, limits config.Limits) *Reactor {
	return newTestReactorWithEvents(t, limits, nil)
}

func newTestReactorWithEvents(t *testing.T, limits config.Limits, events EventPublisher) *Reactor {
	t.Helper()
	listener, err := net.ListenUDP("udp4", &net.UDPAddr{IP: net.ParseIP("127.0.0.1"), Port: 0})
	if err != nil {
		t.Skipf("cannot open loopback UDP socket in this sandbox: %v", err)
	}
	t.Cleanup(func() { listener.Close() })

	srtAddr := &net.UDPAddr{IP: net.ParseIP("127.0.0.1"), Port: 9}
	return New(nil, listener, srtAddr, limits, nil, events)
}

type capturingPublisher struct {
	events []string
}

func (p *capturingPublisher) Publish(event string, fields map[string]any) {
	p.events = append(p.events, event)
}

func (p *capturingPublisher) has(event string) bool {
	for _, ev := range p.events {
		if ev == event {
			return true
		}
	}
	return false
}

func TestSweepRemovesTimedOutConnButKeepsYoungGroup(t *testing.T) {
	t.Parallel()

	limits := config.Default()
	limits.ConnTimeout = time.Millisecond
	limits.GroupTimeout = time.Hour
	r := newTestReactor(t, limits)

	now := time.Now()
	g := r.registry.NewGroup([32]byte{1}, &net.UDPAddr{Port: 1}, now)
	r.registry.Insert(g)
	c := g.AddConn(&net.UDPAddr{Port: 2}, limits.RecvAckInt, now.Add(-time.Hour))

	r.sweep(now)

	if len(g.Conns()) != 0 {
		t.Fatalf("sweep left %d conns, want 0", len(g.Conns()))
	}
	if r.registry.Count() != 1 {
		t.Fatalf("sweep removed the young, now-empty group too: registry has %d groups", r.registry.Count())
	}
	if r.evictedConns != 1 {
		t.Errorf("evictedConns = %d, want 1", r.evictedConns)
	}
	_ = c
}

func TestSweepPublishesConnectionEvicted(t *testing.T) {
	t.Parallel()

	limits := config.Default()
	limits.ConnTimeout = time.Millisecond
	limits.GroupTimeout = time.Hour
	pub := &capturingPublisher{}
	r := newTestReactorWithEvents(t, limits, pub)

	now := time.Now()
	g := r.registry.NewGroup([32]byte{1}, &net.UDPAddr{Port: 1}, now)
	r.registry.Insert(g)
	g.AddConn(&net.UDPAddr{Port: 2}, limits.RecvAckInt, now.Add(-time.Hour))

	r.sweep(now)

	if !pub.has("connection_evicted") {
		t.Errorf("published events %v, want connection_evicted", pub.events)
	}
}

func TestSweepRemovesEmptyStaleGroup(t *testing.T) {
	t.Parallel()

	limits := config.Default()
	limits.GroupTimeout = time.Millisecond
	r := newTestReactor(t, limits)

	now := time.Now()
	g := r.registry.NewGroup([32]byte{1}, &net.UDPAddr{Port: 1}, now.Add(-time.Hour))
	r.registry.Insert(g)

	r.sweep(now)

	if r.registry.Count() != 0 {
		t.Fatalf("sweep left %d groups, want 0", r.registry.Count())
	}
	if r.evictedGroups != 1 {
		t.Errorf("evictedGroups = %d, want 1", r.evictedGroups)
	}
}

func TestSweepKeepsGroupWithLiveConn(t *testing.T) {
	t.Parallel()

	limits := config.Default()
	limits.GroupTimeout = time.Millisecond
	r := newTestReactor(t, limits)

	now := time.Now()
	g := r.registry.NewGroup([32]byte{1}, &net.UDPAddr{Port: 1}, now.Add(-time.Hour))
	r.registry.Insert(g)
	g.AddConn(&net.UDPAddr{Port: 2}, limits.RecvAckInt, now)

	r.sweep(now)

	if r.registry.Count() != 1 {
		t.Fatalf("sweep removed a group with a live connection")
	}
}

func TestMaybeSweepRespectsCleanupPeriod(t *testing.T) {
	t.Parallel()

	limits := config.Default()
	limits.CleanupPeriod = time.Hour
	limits.GroupTimeout = 0
	r := newTestReactor(t, limits)

	now := time.Now()
	g := r.registry.NewGroup([32]byte{1}, &net.UDPAddr{Port: 1}, now.Add(-2*time.Hour))
	r.registry.Insert(g)

	r.maybeSweep(now)
	if r.registry.Count() != 0 {
		t.Fatalf("first maybeSweep did not run: registry has %d groups", r.registry.Count())
	}

	g2 := r.registry.NewGroup([32]byte{2}, &net.UDPAddr{Port: 2}, now.Add(-2*time.Hour))
	r.registry.Insert(g2)

	r.maybeSweep(now.Add(time.Minute))
	if r.registry.Count() != 1 {
		t.Fatalf("second maybeSweep ran before CleanupPeriod elapsed: registry has %d groups", r.registry.Count())
	}
}

func TestDestroyRemovesGroupAndClosesSocket(t *testing.T) {
	t.Parallel()

	r := newTestReactor(t, config.Default())
	now := time.Now()
	g := r.registry.NewGroup([32]byte{1}, &net.UDPAddr{Port: 1}, now)
	r.registry.Insert(g)

	if err := r.Open(g); err != nil {
		t.Skipf("cannot open loopback upstream socket in this sandbox: %v", err)
	}
	sock := g.SRTSock

	r.Destroy(g, "test")

	if r.registry.Count() != 0 {
		t.Fatalf("Destroy left %d groups in the registry, want 0", r.registry.Count())
	}
	if g.SRTSock != nil {
		t.Errorf("Destroy left SRTSock set")
	}
	if _, err := sock.Write([]byte("x")); err == nil {
		t.Errorf("upstream socket still usable after Destroy")
	}
}

func TestDestroyPublishesGroupDestroyed(t *testing.T) {
	t.Parallel()

	pub := &capturingPublisher{}
	r := newTestReactorWithEvents(t, config.Default(), pub)
	now := time.Now()
	g := r.registry.NewGroup([32]byte{1}, &net.UDPAddr{Port: 1}, now)
	r.registry.Insert(g)

	r.Destroy(g, "test")

	if !pub.has("group_destroyed") {
		t.Errorf("published events %v, want group_destroyed", pub.events)
	}
}

func TestPublishSnapshotAndSubscribe(t *testing.T) {
	t.Parallel()

	r := newTestReactor(t, config.Default())
	now := time.Now()
	g := r.registry.NewGroup([32]byte{1, 2, 3}, &net.UDPAddr{Port: 1}, now)
	r.registry.Insert(g)
	g.AddConn(&net.UDPAddr{Port: 2}, config.Default().RecvAckInt, now)

	sub := r.Subscribe()
	r.publishSnapshot(now)

	snap := r.LatestSnapshot()
	if snap == nil {
		t.Fatalf("LatestSnapshot() returned nil after publish")
	}
	if snap.Stats.LiveGroups != 1 || snap.Stats.LiveConns != 1 {
		t.Fatalf("Stats = %+v, want 1 live group and 1 live conn", snap.Stats)
	}

	select {
	case got := <-sub:
		if got != snap {
			t.Errorf("subscriber received a different Snapshot than LatestSnapshot()")
		}
	default:
		t.Fatalf("subscriber channel empty after publishSnapshot")
	}
}

func TestSnapshotSurfacesRegErrAndRegNGP(t *testing.T) {
	t.Parallel()

	limits := config.Default()
	limits.MaxGroups = 1
	r := newTestReactor(t, limits)
	now := time.Now()

	g := r.registry.NewGroup([32]byte{1}, &net.UDPAddr{Port: 1}, now)
	r.registry.Insert(g)
	r.regsm.HandleReg1(&net.UDPAddr{Port: 2}, wire.BuildReg1([16]byte{0x02}), now)

	r.publishSnapshot(now)
	snap := r.LatestSnapshot()
	if snap.Stats.RegErr != 1 {
		t.Errorf("Stats.RegErr = %d, want 1", snap.Stats.RegErr)
	}

	var bogus [32]byte
	bogus[0] = 0xFF
	r.regsm.HandleReg2Client(&net.UDPAddr{Port: 3}, wire.BuildReg2(bogus), now)

	r.publishSnapshot(now)
	snap = r.LatestSnapshot()
	if snap.Stats.RegNGP != 1 {
		t.Errorf("Stats.RegNGP = %d, want 1", snap.Stats.RegNGP)
	}
}

func TestFindByHandleUnknownAfterDestroy(t *testing.T) {
	t.Parallel()

	r := newTestReactor(t, config.Default())
	now := time.Now()
	g := r.registry.NewGroup([32]byte{1}, &net.UDPAddr{Port: 1}, now)
	r.registry.Insert(g)
	handle := g.Handle()

	r.Destroy(g, "test")

	if _, ok := r.registry.FindByHandle(handle); ok {
		t.Errorf("destroyed group's handle still resolves")
	}
}
