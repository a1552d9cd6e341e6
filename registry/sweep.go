package registry

import (
	"context"
	"log"
	"sync"
	"time"

	"github.com/taskfleet/supervisor/domain"
)

// StatusRecorder receives observed liveness transitions. The reconciler needs
// nothing else from the history store.
type StatusRecorder interface {
	RecordStatusChange(ctx context.Context, change *domain.StatusChange) error
}

// SweepResult reports one reconciliation round. PersistErr is non-nil when
// the in-memory updates applied but the disk mirror could not be refreshed;
// the in-memory view stays authoritative either way.
type SweepResult struct {
	Checked    int
	Healthy    int
	Offline    int
	PersistErr error
}

// Reconciler keeps registry statuses in sync with actual agent reachability,
// either on a periodic sweep or on demand for a single agent.
type Reconciler struct {
	store    *Store
	prober   *Prober
	history  StatusRecorder
	interval time.Duration
}

// NewReconciler creates a reconciler. history may be nil to skip transition
// auditing.
func NewReconciler(store *Store, prober *Prober, history StatusRecorder, interval time.Duration) *Reconciler {
	if interval <= 0 {
		interval = 30 * time.Second
	}
	return &Reconciler{
		store:    store,
		prober:   prober,
		history:  history,
		interval: interval,
	}
}

// Sweep probes every registered agent concurrently. Each record's status
// lands in memory as soon as its own probe resolves; one slow agent delays
// only the final persistence step, never another agent's update. After all
// probes join, the statuses are mirrored to the registry file once.
//
// Cancelling ctx cancels outstanding probes; partially applied updates from a
// cancelled sweep are kept.
func (r *Reconciler) Sweep(ctx context.Context) SweepResult {
	agents := r.store.List()
	statuses := make([]domain.AgentStatus, len(agents))

	var wg sync.WaitGroup
	for i, a := range agents {
		wg.Add(1)
		go func(i int, a Agent) {
			defer wg.Done()
			statuses[i] = r.probeAndApply(ctx, a)
		}(i, a)
	}
	wg.Wait()

	res := SweepResult{Checked: len(agents)}
	for _, st := range statuses {
		switch st {
		case domain.StatusHealthy:
			res.Healthy++
		case domain.StatusOffline:
			res.Offline++
		}
	}

	if err := r.store.PersistStatuses(); err != nil {
		log.Printf("ERROR: failed to persist registry statuses: %v", err)
		res.PersistErr = err
	}

	log.Printf("Sweep complete: %d checked, %d healthy, %d offline", res.Checked, res.Healthy, res.Offline)
	return res
}

// Run drives periodic sweeps until ctx is cancelled. One sweep runs
// immediately so routers are not stuck with "unknown" for a full interval
// after startup.
func (r *Reconciler) Run(ctx context.Context) {
	r.Sweep(ctx)

	ticker := time.NewTicker(r.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			r.Sweep(ctx)
		}
	}
}

// CheckLive probes one agent synchronously and returns its fresh status.
// Unknown ids return StatusNotFound without any network or disk activity.
// The refreshed status is mirrored to the registry file best-effort.
func (r *Reconciler) CheckLive(ctx context.Context, id string) domain.AgentStatus {
	a, ok := r.store.Get(id)
	if !ok {
		return domain.StatusNotFound
	}

	status := r.probeAndApply(ctx, a)

	if err := r.store.PersistStatuses(); err != nil {
		log.Printf("ERROR: failed to persist registry statuses: %v", err)
	}
	return status
}

func (r *Reconciler) probeAndApply(ctx context.Context, a Agent) domain.AgentStatus {
	status := r.prober.Probe(ctx, a.URL)
	prev, ok := r.store.SetStatus(a.ID, status)
	if ok && prev != status && r.history != nil {
		change := &domain.StatusChange{
			AgentID:    a.ID,
			From:       prev,
			To:         status,
			ObservedAt: time.Now(),
		}
		if err := r.history.RecordStatusChange(ctx, change); err != nil {
			log.Printf("ERROR: failed to record status change for %s: %v", a.ID, err)
		}
	}
	return status
}
