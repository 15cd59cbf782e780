package model

import (
	"time"

	"github.com/google/uuid"
)

// ImportStatus represents the lifecycle state of a coordinator run.
type ImportStatus string

const (
	ImportStatusNone       ImportStatus = "none"
	ImportStatusInProgress ImportStatus = "in_progress"
	ImportStatusCompleted  ImportStatus = "completed"
	ImportStatusError      ImportStatus = "error"
)

// Import is one end-to-end coordinator run spanning all clusters. It is
// created when the run starts, mutated throughout, and finalized exactly once
// as completed or error. The row is the durable audit trail; a crash mid-run
// leaves it in_progress until an operator reconciles it.
type Import struct {
	ID         uuid.UUID    `json:"id"`
	Started    time.Time    `json:"started"`
	Completed  *time.Time   `json:"completed,omitempty"`
	Status     ImportStatus `json:"status"`
	AddedCount int64        `json:"added_count"`
	Error      string       `json:"error,omitempty"`
}

// RunInfo is a point-in-time snapshot of migration progress, served to the
// status-polling surface while a run is in flight.
type RunInfo struct {
	Status            ImportStatus     `json:"status"`
	CompletedClusters map[string]int64 `json:"completed_clusters"`
	TotalClusters     int              `json:"total_clusters"`
}

// AddedTotal sums the per-cluster added counts.
func (r RunInfo) AddedTotal() int64 {
	var total int64
	for _, n := range r.CompletedClusters {
		total += n
	}
	return total
}
