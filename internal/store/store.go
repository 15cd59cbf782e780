// Package store persists leads, run ledger entries, duplicate evidence,
// destination lists and import audit rows in Postgres.
package store

import (
	"context"

	"github.com/google/uuid"

	"github.com/capitalead/leadsync/internal/model"
)

// chunkSize bounds the number of values sent per set-valued statement.
const chunkSize = 200

// Store is the persistence surface of the sync engine.
type Store interface {
	// FindExistingPhones returns the subset of phones already present in the
	// lead identity table. Input phones must be normalized.
	FindExistingPhones(ctx context.Context, phones []string) (map[string]struct{}, error)
	// InsertLeads inserts lead records, silently skipping any whose phone is
	// already taken. Returns the number of rows actually inserted.
	InsertLeads(ctx context.Context, leads []model.LeadRecord) (int64, error)

	// FindExistingRunIDs returns the subset of run ids already absorbed.
	FindExistingRunIDs(ctx context.Context, runIDs []string) (map[string]struct{}, error)
	// InsertProcessedRuns records absorbed runs. Re-recording a run id is a no-op.
	InsertProcessedRuns(ctx context.Context, runs []model.ProcessedRun) error

	// InsertDuplicates records suppressed-duplicate evidence rows.
	InsertDuplicates(ctx context.Context, dups []model.DuplicateLead) error
	// ListDuplicates returns duplicate evidence not yet cleaned up CRM-side.
	ListDuplicates(ctx context.Context) ([]model.DuplicateLead, error)
	// MarkDuplicateDeleted flags a duplicate whose CRM row has been removed.
	MarkDuplicateDeleted(ctx context.Context, id uuid.UUID) error

	// UpsertDestinationList inserts or refreshes a local list mirror row.
	UpsertDestinationList(ctx context.Context, list model.DestinationList) error
	// ListDestinationLists returns all known lists.
	ListDestinationLists(ctx context.Context) ([]model.DestinationList, error)
	// ListClusterLists returns a cluster's lists ordered by sequence index.
	ListClusterLists(ctx context.Context, clusterID string) ([]model.DestinationList, error)

	// CreateImport opens a new import audit row in state in_progress.
	CreateImport(ctx context.Context) (*model.Import, error)
	// CompleteImport finalizes an import as completed with its added count.
	CompleteImport(ctx context.Context, id uuid.UUID, added int64) error
	// FailImport finalizes an import as errored, keeping the partial count.
	FailImport(ctx context.Context, id uuid.UUID, added int64, msg string) error
	// LatestImport returns the most recently started import, or nil.
	LatestImport(ctx context.Context) (*model.Import, error)

	// KPIReport aggregates headline counts across all tables.
	KPIReport(ctx context.Context) (*KPIReport, error)

	Migrate(ctx context.Context) error
	Ping(ctx context.Context) error
	Close() error
}

// KPIReport is a snapshot of engine-wide totals.
type KPIReport struct {
	TotalLeads         int64 `json:"total_leads"`
	AssignedLeads      int64 `json:"assigned_leads"`
	DisabledLeads      int64 `json:"disabled_leads"`
	DuplicatesRecorded int64 `json:"duplicates_recorded"`
	DuplicatesDeleted  int64 `json:"duplicates_deleted"`
	RunsProcessed      int64 `json:"runs_processed"`
	DestinationLists   int64 `json:"destination_lists"`
}
