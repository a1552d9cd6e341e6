package registry

import (
	"context"
	"net/http"
	"net/http/httptest"
	"os"
	"sync/atomic"
	"testing"
	"time"

	"github.com/tidwall/gjson"

	"github.com/taskfleet/supervisor/domain"
)

type recorderStub struct {
	changes []*domain.StatusChange
}

func (r *recorderStub) RecordStatusChange(_ context.Context, change *domain.StatusChange) error {
	r.changes = append(r.changes, change)
	return nil
}

func healthyAgent(t *testing.T) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"status": "healthy"}`))
	}))
	t.Cleanup(srv.Close)
	return srv
}

func hangingAgent(t *testing.T, delay time.Duration) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		time.Sleep(delay)
		w.Write([]byte(`{"status": "healthy"}`))
	}))
	t.Cleanup(srv.Close)
	return srv
}

func TestSweepUpdatesAndPersists(t *testing.T) {
	up := healthyAgent(t)
	down := hangingAgent(t, 500*time.Millisecond)

	path := writeRegistry(t, `[
		{"id": "a", "url": "`+up.URL+`", "capabilities": ["search"]},
		{"id": "b", "url": "`+down.URL+`"}
	]`)
	s := NewStore(path)
	if err := s.Load(); err != nil {
		t.Fatalf("Load failed: %v", err)
	}

	r := NewReconciler(s, NewProber(100*time.Millisecond), nil, time.Minute)
	res := r.Sweep(context.Background())

	if res.Checked != 2 || res.Healthy != 1 || res.Offline != 1 {
		t.Fatalf("unexpected sweep result: %+v", res)
	}
	if res.PersistErr != nil {
		t.Fatalf("persist failed: %v", res.PersistErr)
	}

	a, _ := s.Get("a")
	b, _ := s.Get("b")
	if a.Status != domain.StatusHealthy {
		t.Fatalf("agent a = %s", a.Status)
	}
	if b.Status != domain.StatusOffline {
		t.Fatalf("agent b = %s", b.Status)
	}

	// The durable mirror matches the in-memory view, opaque fields intact.
	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("failed to read registry file: %v", err)
	}
	entries := gjson.ParseBytes(data).Array()
	if entries[0].Get("status").Str != "healthy" || entries[1].Get("status").Str != "offline" {
		t.Fatalf("on-disk statuses diverge: %s", data)
	}
	if entries[0].Get("capabilities").Array()[0].Str != "search" {
		t.Fatal("opaque field lost during persistence")
	}
}

func TestSweepIsIdempotent(t *testing.T) {
	up := healthyAgent(t)

	path := writeRegistry(t, `[{"id": "a", "url": "`+up.URL+`"}]`)
	s := NewStore(path)
	if err := s.Load(); err != nil {
		t.Fatalf("Load failed: %v", err)
	}

	r := NewReconciler(s, NewProber(time.Second), nil, time.Minute)

	r.Sweep(context.Background())
	first, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("failed to read registry file: %v", err)
	}
	firstView := s.List()

	r.Sweep(context.Background())
	second, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("failed to read registry file: %v", err)
	}
	secondView := s.List()

	if string(first) != string(second) {
		t.Fatalf("on-disk content changed between identical sweeps:\n%s\n%s", first, second)
	}
	for i := range firstView {
		if firstView[i].Status != secondView[i].Status {
			t.Fatalf("status changed between identical sweeps: %+v vs %+v", firstView[i], secondView[i])
		}
	}
}

func TestSweepEmptyRegistryStillPersists(t *testing.T) {
	path := writeRegistry(t, `[]`)
	s := NewStore(path)
	if err := s.Load(); err != nil {
		t.Fatalf("Load failed: %v", err)
	}

	r := NewReconciler(s, NewProber(time.Second), nil, time.Minute)
	res := r.Sweep(context.Background())

	if res.Checked != 0 {
		t.Fatalf("unexpected sweep result: %+v", res)
	}
	// One persist per sweep, even with nothing to overlay.
	if res.PersistErr != nil {
		t.Fatalf("persist failed: %v", res.PersistErr)
	}
	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("failed to read registry file: %v", err)
	}
	if !gjson.ParseBytes(data).IsArray() {
		t.Fatalf("registry file corrupted: %s", data)
	}
}

func TestSweepSurfacesPersistFailure(t *testing.T) {
	up := healthyAgent(t)

	path := writeRegistry(t, `[{"id": "a", "url": "`+up.URL+`"}]`)
	s := NewStore(path)
	if err := s.Load(); err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if err := os.Remove(path); err != nil {
		t.Fatalf("failed to remove registry file: %v", err)
	}

	r := NewReconciler(s, NewProber(time.Second), nil, time.Minute)
	res := r.Sweep(context.Background())

	if res.PersistErr == nil {
		t.Fatal("expected persist error with registry file gone")
	}
	// In-memory updates are kept; the mirror simply diverges.
	a, _ := s.Get("a")
	if a.Status != domain.StatusHealthy {
		t.Fatalf("in-memory update lost: %s", a.Status)
	}
}

func TestSweepRecordsTransitions(t *testing.T) {
	up := healthyAgent(t)

	path := writeRegistry(t, `[{"id": "a", "url": "`+up.URL+`"}]`)
	s := NewStore(path)
	if err := s.Load(); err != nil {
		t.Fatalf("Load failed: %v", err)
	}

	rec := &recorderStub{}
	r := NewReconciler(s, NewProber(time.Second), rec, time.Minute)

	r.Sweep(context.Background())
	if len(rec.changes) != 1 {
		t.Fatalf("expected 1 transition, got %d", len(rec.changes))
	}
	if rec.changes[0].From != domain.StatusUnknown || rec.changes[0].To != domain.StatusHealthy {
		t.Fatalf("unexpected transition: %+v", rec.changes[0])
	}

	// Second sweep with unchanged reachability records nothing.
	r.Sweep(context.Background())
	if len(rec.changes) != 1 {
		t.Fatalf("steady state recorded a transition: %d", len(rec.changes))
	}
}

func TestCheckLiveNotFoundTouchesNothing(t *testing.T) {
	var probes atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		probes.Add(1)
		w.Write([]byte(`{"status": "healthy"}`))
	}))
	t.Cleanup(srv.Close)

	path := writeRegistry(t, `[{"id": "a", "url": "`+srv.URL+`"}]`)
	before, _ := os.ReadFile(path)

	s := NewStore(path)
	if err := s.Load(); err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	r := NewReconciler(s, NewProber(time.Second), nil, time.Minute)

	if got := r.CheckLive(context.Background(), "ghost"); got != domain.StatusNotFound {
		t.Fatalf("expected not_found, got %s", got)
	}
	if probes.Load() != 0 {
		t.Fatalf("live check for unknown id made %d network calls", probes.Load())
	}
	after, _ := os.ReadFile(path)
	if string(before) != string(after) {
		t.Fatal("live check for unknown id touched durable storage")
	}
}

func TestCheckLiveRefreshesStatus(t *testing.T) {
	up := healthyAgent(t)

	path := writeRegistry(t, `[{"id": "a", "url": "`+up.URL+`"}]`)
	s := NewStore(path)
	if err := s.Load(); err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	r := NewReconciler(s, NewProber(time.Second), nil, time.Minute)

	if got := r.CheckLive(context.Background(), "a"); got != domain.StatusHealthy {
		t.Fatalf("expected healthy, got %s", got)
	}
	a, _ := s.Get("a")
	if a.Status != domain.StatusHealthy {
		t.Fatalf("in-memory status not refreshed: %s", a.Status)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("failed to read registry file: %v", err)
	}
	if got := gjson.GetBytes(data, "0.status").Str; got != "healthy" {
		t.Fatalf("on-disk status not refreshed: %q", got)
	}
}

func TestRunStopsOnCancel(t *testing.T) {
	up := healthyAgent(t)

	path := writeRegistry(t, `[{"id": "a", "url": "`+up.URL+`"}]`)
	s := NewStore(path)
	if err := s.Load(); err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	r := NewReconciler(s, NewProber(time.Second), nil, 10*time.Millisecond)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		r.Run(ctx)
		close(done)
	}()

	time.Sleep(50 * time.Millisecond)
	cancel()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Run did not stop after cancellation")
	}

	a, _ := s.Get("a")
	if a.Status != domain.StatusHealthy {
		t.Fatalf("periodic sweeps never landed: %s", a.Status)
	}
}
