package debugapi

import (
	"context"
	"encoding/json"
	"net/http"
	"testing"
	"time"

	"github.com/IRLToolkit/srtla/internal/reactor"
)

type fakeSource struct {
	snap *reactor.Snapshot
}

func (f *fakeSource) LatestSnapshot() *reactor.Snapshot { return f.snap }

func runServer(t *testing.T, addr string, source SnapshotSource) {
	t.Helper()
	s := New(nil, addr, source)
	ctx, cancel := context.WithCancel(context.Background())

	done := make(chan error, 1)
	go func() { done <- s.Run(ctx) }()
	t.Cleanup(func() {
		cancel()
		<-done
	})

	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if _, err := http.Get("http://" + addr + "/stats"); err == nil {
			return
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatalf("debug API never became reachable at %s", addr)
}

func TestStatsHandlerNoSnapshotYet(t *testing.T) {
	runServer(t, "127.0.0.1:18801", &fakeSource{})

	resp, err := http.Get("http://127.0.0.1:18801/stats")
	if err != nil {
		t.Fatalf("GET /stats: %v", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusServiceUnavailable {
		t.Errorf("status = %d, want %d", resp.StatusCode, http.StatusServiceUnavailable)
	}
}

func TestStatsHandlerWithSnapshot(t *testing.T) {
	source := &fakeSource{snap: &reactor.Snapshot{
		Stats: reactor.Stats{LiveGroups: 2, LiveConns: 3, EvictedGroups: 1, EvictedConns: 4},
	}}
	runServer(t, "127.0.0.1:18802", source)

	resp, err := http.Get("http://127.0.0.1:18802/stats")
	if err != nil {
		t.Fatalf("GET /stats: %v", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d, want 200", resp.StatusCode)
	}
	var got reactor.Stats
	if err := json.NewDecoder(resp.Body).Decode(&got); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if got != source.snap.Stats {
		t.Errorf("decoded stats = %+v, want %+v", got, source.snap.Stats)
	}
}

func TestGroupsHandlerWithSnapshot(t *testing.T) {
	source := &fakeSource{snap: &reactor.Snapshot{
		Groups: []reactor.GroupSnapshot{{ID: "abcd", LastAddr: "127.0.0.1:1"}},
	}}
	runServer(t, "127.0.0.1:18803", source)

	resp, err := http.Get("http://127.0.0.1:18803/groups")
	if err != nil {
		t.Fatalf("GET /groups: %v", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d, want 200", resp.StatusCode)
	}
	var got []reactor.GroupSnapshot
	if err := json.NewDecoder(resp.Body).Decode(&got); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(got) != 1 || got[0].ID != "abcd" {
		t.Errorf("decoded groups = %+v, want one group with ID abcd", got)
	}
}
