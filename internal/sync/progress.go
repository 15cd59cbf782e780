// Package sync implements the incremental lead synchronization engine:
// run absorption, phone-keyed deduplication, capacity packing and the
// import coordinator that drives per-cluster migration workers.
package sync

import (
	stdsync "sync"
	"sync/atomic"

	"github.com/capitalead/leadsync/internal/model"
)

// Tracker holds in-memory migration progress. Exactly one migration may be
// in flight at a time; TryStart is the atomic gate. The tracker is the
// volatile view only; the imports table is the durable record.
type Tracker struct {
	running atomic.Bool

	mu        stdsync.Mutex
	status    model.ImportStatus
	completed map[string]int64
	total     int
}

// NewTracker returns a tracker with no run in flight.
func NewTracker() *Tracker {
	return &Tracker{status: model.ImportStatusNone}
}

// TryStart attempts to claim the single migration slot. It returns false
// when a run is already in flight. On success, progress is reset.
func (t *Tracker) TryStart() bool {
	if !t.running.CompareAndSwap(false, true) {
		return false
	}
	t.mu.Lock()
	t.status = model.ImportStatusInProgress
	t.completed = make(map[string]int64)
	t.total = 0
	t.mu.Unlock()
	return true
}

// SetTotal records the number of clusters the current run will visit.
func (t *Tracker) SetTotal(n int) {
	t.mu.Lock()
	t.total = n
	t.mu.Unlock()
}

// Complete records a cluster as done with its added-lead count.
func (t *Tracker) Complete(clusterID string, added int64) {
	t.mu.Lock()
	t.completed[clusterID] = added
	t.mu.Unlock()
}

// Finish marks the run completed and releases the slot.
func (t *Tracker) Finish() {
	t.mu.Lock()
	t.status = model.ImportStatusCompleted
	t.mu.Unlock()
	t.running.Store(false)
}

// Fail marks the run errored and releases the slot. Per-cluster results
// recorded so far are kept; completed clusters stay committed.
func (t *Tracker) Fail() {
	t.mu.Lock()
	t.status = model.ImportStatusError
	t.mu.Unlock()
	t.running.Store(false)
}

// Snapshot returns a point-in-time copy of the progress state.
func (t *Tracker) Snapshot() model.RunInfo {
	t.mu.Lock()
	defer t.mu.Unlock()

	completed := make(map[string]int64, len(t.completed))
	for k, v := range t.completed {
		completed[k] = v
	}
	return model.RunInfo{
		Status:            t.status,
		CompletedClusters: completed,
		TotalClusters:     t.total,
	}
}
