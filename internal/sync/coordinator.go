package sync

import (
	"context"
	"sync/atomic"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/capitalead/leadsync/internal/metrics"
	"github.com/capitalead/leadsync/internal/model"
	"github.com/capitalead/leadsync/internal/store"
	"github.com/capitalead/leadsync/pkg/lobstr"
	"github.com/capitalead/leadsync/pkg/nocrm"
)

// Coordinator drives one full migration across all active clusters. At
// most one migration runs at a time; a second StartMigration while one is
// in flight is a silent no-op.
type Coordinator struct {
	source          lobstr.Client
	crm             nocrm.Client
	store           store.Store
	tracker         *Tracker
	concurrency     int
	maxRunsPerCycle int
	log             *zap.Logger
}

// NewCoordinator wires a coordinator. Concurrency below one falls back
// to sequential cluster processing.
func NewCoordinator(source lobstr.Client, crm nocrm.Client, st store.Store, tracker *Tracker, concurrency, maxRunsPerCycle int) *Coordinator {
	if concurrency < 1 {
		concurrency = 1
	}
	return &Coordinator{
		source:          source,
		crm:             crm,
		store:           st,
		tracker:         tracker,
		concurrency:     concurrency,
		maxRunsPerCycle: maxRunsPerCycle,
		log:             zap.L().With(zap.String("component", "sync.coordinator")),
	}
}

// Status returns the progress snapshot of the current (or last) run.
func (c *Coordinator) Status() model.RunInfo {
	return c.tracker.Snapshot()
}

// StartMigration runs a full migration pass. The import audit row is
// finalized exactly once: completed on success, error on any cluster
// failure. Clusters that finished before the failure stay committed.
func (c *Coordinator) StartMigration(ctx context.Context) error {
	if !c.tracker.TryStart() {
		c.log.Info("migration already in flight, ignoring trigger")
		return nil
	}
	metrics.MigrationsActive.Set(1)
	defer metrics.MigrationsActive.Set(0)

	imp, err := c.store.CreateImport(ctx)
	if err != nil {
		c.tracker.Fail()
		return eris.Wrap(err, "sync: start migration")
	}
	c.log.Info("migration started", zap.String("import", imp.ID.String()))

	clusters, err := c.source.ListClusters(ctx)
	if err != nil {
		return c.fail(ctx, imp, 0, eris.Wrap(err, "sync: list clusters"))
	}

	if err := c.ensureLists(ctx, clusters); err != nil {
		return c.fail(ctx, imp, 0, err)
	}

	c.tracker.SetTotal(len(clusters))

	var added atomic.Int64
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(c.concurrency)

	for _, cluster := range clusters {
		g.Go(func() error {
			worker := NewWorker(c.source, c.crm, c.store, c.maxRunsPerCycle)
			n, err := worker.MigrateCluster(gctx, cluster, imp.ID)
			if err != nil {
				return eris.Wrapf(err, "sync: cluster %s", cluster.ID)
			}
			added.Add(n)
			c.tracker.Complete(cluster.ID, n)
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return c.fail(ctx, imp, added.Load(), err)
	}

	if err := c.store.CompleteImport(ctx, imp.ID, added.Load()); err != nil {
		c.tracker.Fail()
		return eris.Wrap(err, "sync: finalize migration")
	}
	c.tracker.Finish()
	c.log.Info("migration completed",
		zap.String("import", imp.ID.String()),
		zap.Int64("added", added.Load()))
	return nil
}

// fail finalizes the import row as errored, keeping the partial count.
func (c *Coordinator) fail(ctx context.Context, imp *model.Import, added int64, cause error) error {
	c.log.Error("migration failed", zap.String("import", imp.ID.String()), zap.Error(cause))
	if err := c.store.FailImport(ctx, imp.ID, added, cause.Error()); err != nil {
		c.log.Error("failed to record import failure", zap.Error(err))
	}
	c.tracker.Fail()
	return cause
}

// ensureLists refreshes the local list mirror from the CRM and creates
// the first list for clusters that have none yet. Workers read their
// cluster's lists from the mirror afterwards.
func (c *Coordinator) ensureLists(ctx context.Context, clusters []lobstr.Cluster) error {
	byCluster, err := c.loadLists(ctx)
	if err != nil {
		return err
	}

	var createdAny bool
	for _, cluster := range clusters {
		if len(byCluster[cluster.ID]) > 0 {
			continue
		}
		title := nocrm.ListTitle(cluster.Name, 1)
		if _, err := c.crm.CreateSpreadsheet(ctx, title, nocrm.ListTags(cluster.ID, cluster.Name, 1)); err != nil {
			return eris.Wrapf(err, "sync: create first list for cluster %s", cluster.ID)
		}
		metrics.ListsCreated.WithLabelValues(cluster.ID).Inc()
		c.log.Info("created first list", zap.String("cluster", cluster.ID), zap.String("title", title))
		createdAny = true
	}

	// Re-list so freshly created lists carry their server-assigned ids.
	if createdAny {
		if _, err := c.loadLists(ctx); err != nil {
			return err
		}
	}
	return nil
}

// loadLists fetches all CRM lists, keeps the cluster-tagged ones and
// mirrors them locally.
func (c *Coordinator) loadLists(ctx context.Context) (map[string][]model.DestinationList, error) {
	sheets, err := c.crm.ListSpreadsheets(ctx)
	if err != nil {
		return nil, eris.Wrap(err, "sync: list spreadsheets")
	}

	byCluster := make(map[string][]model.DestinationList)
	for _, sheet := range sheets {
		clusterID, ok := nocrm.ClusterIDFromTags(sheet.Tags)
		if !ok {
			continue
		}
		list := model.DestinationList{
			ID:            sheet.ID,
			ClusterID:     clusterID,
			ClusterName:   nocrm.ClusterNameFromTags(sheet.Tags),
			Title:         sheet.Title,
			RowCount:      sheet.TotalRowCount,
			SequenceIndex: nocrm.SequenceIndexFromTags(sheet.Tags),
		}
		if err := c.store.UpsertDestinationList(ctx, list); err != nil {
			return nil, err
		}
		byCluster[clusterID] = append(byCluster[clusterID], list)
	}
	return byCluster, nil
}
