package sync

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/capitalead/leadsync/internal/db"
	"github.com/capitalead/leadsync/internal/metrics"
	"github.com/capitalead/leadsync/internal/model"
	"github.com/capitalead/leadsync/internal/store"
	"github.com/capitalead/leadsync/pkg/lobstr"
	"github.com/capitalead/leadsync/pkg/nocrm"
)

// DefaultMaxRunsPerCycle bounds how many new runs one migration pass
// absorbs per cluster. The remainder is picked up by the next pass.
const DefaultMaxRunsPerCycle = 3

// persistChunkSize is the lead batch size for the persist stage. Each
// chunk is re-checked against the identity store right before insert.
const persistChunkSize = 200

// Worker migrates a single cluster: it absorbs unprocessed runs, resolves
// their records into unique leads, packs them into lists and persists
// them. List capacity comes from the local mirror, which the coordinator
// refreshes from the CRM before workers start. A fetch error on one run
// skips that run only; packing and persistence errors fail the cluster.
type Worker struct {
	source          lobstr.Client
	store           store.Store
	resolver        *Resolver
	packer          *Packer
	maxRunsPerCycle int
	log             *zap.Logger
}

// NewWorker creates a migration worker. maxRunsPerCycle values below one
// fall back to the default.
func NewWorker(source lobstr.Client, crm nocrm.Client, st store.Store, maxRunsPerCycle int) *Worker {
	if maxRunsPerCycle < 1 {
		maxRunsPerCycle = DefaultMaxRunsPerCycle
	}
	return &Worker{
		source:          source,
		store:           st,
		resolver:        NewResolver(st),
		packer:          NewPacker(crm, st),
		maxRunsPerCycle: maxRunsPerCycle,
		log:             zap.L().With(zap.String("component", "sync.worker")),
	}
}

// MigrateCluster runs one migration pass for the cluster and returns the
// number of leads added.
func (w *Worker) MigrateCluster(ctx context.Context, cluster lobstr.Cluster, importID uuid.UUID) (int64, error) {
	start := time.Now()
	defer func() {
		metrics.ClusterMigrationDuration.WithLabelValues(cluster.ID).Observe(time.Since(start).Seconds())
	}()
	log := w.log.With(zap.String("cluster", cluster.ID), zap.String("name", cluster.Name))

	runIDs, err := w.source.ListRunIDs(ctx, cluster.ID)
	if err != nil {
		return 0, eris.Wrapf(err, "sync: list runs for cluster %s", cluster.ID)
	}

	newRuns, err := w.unprocessedRuns(ctx, runIDs)
	if err != nil {
		return 0, err
	}
	if len(newRuns) == 0 {
		log.Debug("no new runs")
		return 0, nil
	}
	log.Info("absorbing runs", zap.Int("count", len(newRuns)))

	// Fetching. A failed run is skipped and stays unabsorbed; the next
	// pass retries it. runOf remembers which run introduced each phone
	// so clean leads can be credited back to their run.
	var records []lobstr.RawRecord
	runOf := make(map[string]string)
	fetched := make([]model.ProcessedRun, 0, len(newRuns))
	for _, runID := range newRuns {
		runRecords, err := w.source.FetchRecords(ctx, runID)
		if err != nil {
			if ctx.Err() != nil {
				return 0, ctx.Err()
			}
			log.Warn("skipping run after fetch error", zap.String("run", runID), zap.Error(err))
			metrics.RunFetchFailures.WithLabelValues(cluster.ID).Inc()
			continue
		}
		for _, rec := range runRecords {
			phone := model.NormalizePhone(rec.Phone())
			if phone == "" {
				continue
			}
			if _, ok := runOf[phone]; !ok {
				runOf[phone] = runID
			}
		}
		records = append(records, runRecords...)
		fetched = append(fetched, model.ProcessedRun{
			ID:          uuid.New(),
			RunID:       runID,
			ClusterID:   cluster.ID,
			ProcessedAt: time.Now().UTC(),
		})
	}
	if len(fetched) == 0 {
		return 0, nil
	}

	// Resolving. One pass across all fetched runs so that cross-run
	// collisions keep the earliest occurrence.
	clean, dups, err := w.resolver.Resolve(ctx, importID, records)
	if err != nil {
		return 0, err
	}
	metrics.DuplicatesSuppressed.WithLabelValues(cluster.ID).Add(float64(len(dups)))

	// The ledger records each run's clean contribution: records it
	// introduced that survived both dedup passes.
	cleanByRun := make(map[string]int64, len(fetched))
	for _, l := range clean {
		cleanByRun[runOf[l.Phone]]++
	}
	for i := range fetched {
		fetched[i].LeadCount = cleanByRun[fetched[i].RunID]
	}

	// Record absorbed runs. Re-check the ledger first: a concurrent
	// instance may have absorbed a run since the initial filter.
	if err := w.recordRuns(ctx, cluster.ID, fetched); err != nil {
		return 0, err
	}

	// Packing. The mirror was refreshed from the CRM at cycle start and
	// only this worker touches the cluster's rows during the cycle.
	lists, err := w.store.ListClusterLists(ctx, cluster.ID)
	if err != nil {
		return 0, err
	}
	placed, err := w.packer.Pack(ctx, cluster.ID, cluster.Name, clean, lists)
	if err != nil {
		return 0, err
	}

	// Persisting.
	if len(dups) > 0 {
		if err := w.store.InsertDuplicates(ctx, dups); err != nil {
			return 0, err
		}
	}
	added, err := w.persistLeads(ctx, placed)
	if err != nil {
		return added, err
	}

	metrics.LeadsAdded.WithLabelValues(cluster.ID).Add(float64(added))
	log.Info("cluster migrated",
		zap.Int("runs", len(fetched)),
		zap.Int("records", len(records)),
		zap.Int64("added", added),
		zap.Duration("took", time.Since(start)))
	return added, nil
}

// unprocessedRuns filters out runs already in the ledger, bounded by
// maxRunsPerCycle.
func (w *Worker) unprocessedRuns(ctx context.Context, runIDs []string) ([]string, error) {
	if len(runIDs) == 0 {
		return nil, nil
	}
	existing, err := w.store.FindExistingRunIDs(ctx, runIDs)
	if err != nil {
		return nil, err
	}

	var newRuns []string
	for _, id := range runIDs {
		if _, ok := existing[id]; ok {
			continue
		}
		newRuns = append(newRuns, id)
		if len(newRuns) == w.maxRunsPerCycle {
			break
		}
	}
	return newRuns, nil
}

// recordRuns writes ledger entries for the absorbed runs, dropping any
// that appeared in the ledger since fetching started.
func (w *Worker) recordRuns(ctx context.Context, clusterID string, runs []model.ProcessedRun) error {
	ids := make([]string, len(runs))
	for i, r := range runs {
		ids[i] = r.RunID
	}
	existing, err := w.store.FindExistingRunIDs(ctx, ids)
	if err != nil {
		return err
	}

	fresh := runs[:0]
	for _, r := range runs {
		if _, ok := existing[r.RunID]; ok {
			continue
		}
		fresh = append(fresh, r)
	}
	if len(fresh) == 0 {
		return nil
	}
	if err := w.store.InsertProcessedRuns(ctx, fresh); err != nil {
		return err
	}
	metrics.RunsProcessed.WithLabelValues(clusterID).Add(float64(len(fresh)))
	return nil
}

// persistLeads inserts placed leads in chunks, re-checking each chunk's
// phones against the identity store immediately before insert. The
// store's conflict handling closes the residual race.
func (w *Worker) persistLeads(ctx context.Context, leads []model.LeadRecord) (int64, error) {
	var added int64
	for _, chunk := range db.Chunk(leads, persistChunkSize) {
		phones := make([]string, len(chunk))
		for i, l := range chunk {
			phones[i] = l.Phone
		}
		existing, err := w.store.FindExistingPhones(ctx, phones)
		if err != nil {
			return added, err
		}

		fresh := make([]model.LeadRecord, 0, len(chunk))
		for _, l := range chunk {
			if _, ok := existing[l.Phone]; ok {
				continue
			}
			fresh = append(fresh, l)
		}
		n, err := w.store.InsertLeads(ctx, fresh)
		if err != nil {
			return added, err
		}
		added += n
	}
	return added, nil
}
