package sync

import (
	"context"
	"fmt"
	"testing"

	"github.com/google/uuid"
	"github.com/rotisserie/eris"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/capitalead/leadsync/internal/model"
	"github.com/capitalead/leadsync/pkg/lobstr"
)

func testCluster() lobstr.Cluster {
	return lobstr.Cluster{ID: testClusterID, Name: "Paris 18", IsActive: true}
}

// seedClusterList registers the cluster's first list in both the CRM and
// the local mirror, the state ensureLists leaves behind.
func seedClusterList(st *fakeStore, crm *fakeCRM) {
	crm.addSheet(11, "Paris 18 01", []string{testClusterID, "Paris 18", "P01"}, 0)
	st.lists[11] = model.DestinationList{
		ID: 11, ClusterID: testClusterID, ClusterName: "Paris 18",
		Title: "Paris 18 01", SequenceIndex: 1,
	}
}

func rawRecords(n, offset int) []lobstr.RawRecord {
	records := make([]lobstr.RawRecord, n)
	for i := range records {
		records[i] = lobstr.RawRecord{
			"phone":         fmt.Sprintf("06%08d", offset+i),
			"city":          "Paris",
			"scraping_time": "25/03/2024 09:00:00",
		}
	}
	return records
}

func TestMigrateCluster_AbsorbsOnce(t *testing.T) {
	st := newFakeStore()
	crm := newFakeCRM()
	seedClusterList(st, crm)
	source := &fakeSource{
		runsByCluster: map[string][]string{testClusterID: {"run-a"}},
		recordsByRun:  map[string][]lobstr.RawRecord{"run-a": rawRecords(5, 0)},
	}

	w := NewWorker(source, crm, st, 0)
	added, err := w.MigrateCluster(context.Background(), testCluster(), uuid.New())
	require.NoError(t, err)
	assert.Equal(t, int64(5), added)
	assert.Contains(t, st.runs, "run-a")
	assert.Equal(t, int64(5), st.runs["run-a"].LeadCount)
	assert.Equal(t, 5, crm.sheets[11].TotalRowCount)

	// Absorbing the same run again is a no-op.
	added, err = w.MigrateCluster(context.Background(), testCluster(), uuid.New())
	require.NoError(t, err)
	assert.Zero(t, added)
	assert.Equal(t, 5, crm.sheets[11].TotalRowCount)
	assert.Len(t, st.leads, 5)
}

func TestMigrateCluster_SkipsFailedRun(t *testing.T) {
	st := newFakeStore()
	crm := newFakeCRM()
	seedClusterList(st, crm)
	source := &fakeSource{
		runsByCluster: map[string][]string{testClusterID: {"run-a", "run-b"}},
		recordsByRun:  map[string][]lobstr.RawRecord{"run-b": rawRecords(3, 10)},
		fetchErr:      map[string]error{"run-a": eris.New("gateway timeout")},
	}

	added, err := NewWorker(source, crm, st, 0).MigrateCluster(context.Background(), testCluster(), uuid.New())

	require.NoError(t, err)
	assert.Equal(t, int64(3), added)
	// The failed run stays out of the ledger and is retried next pass.
	assert.NotContains(t, st.runs, "run-a")
	assert.Contains(t, st.runs, "run-b")
}

func TestMigrateCluster_BoundsRunsPerCycle(t *testing.T) {
	st := newFakeStore()
	crm := newFakeCRM()
	seedClusterList(st, crm)

	runIDs := make([]string, 5)
	recordsByRun := make(map[string][]lobstr.RawRecord, 5)
	for i := range runIDs {
		runIDs[i] = fmt.Sprintf("run-%d", i)
		recordsByRun[runIDs[i]] = rawRecords(1, i*100)
	}
	source := &fakeSource{
		runsByCluster: map[string][]string{testClusterID: runIDs},
		recordsByRun:  recordsByRun,
	}

	added, err := NewWorker(source, crm, st, 3).MigrateCluster(context.Background(), testCluster(), uuid.New())

	require.NoError(t, err)
	assert.Equal(t, int64(3), added)
	assert.Len(t, st.runs, 3)
}

func TestMigrateCluster_CrossRunDedup(t *testing.T) {
	st := newFakeStore()
	crm := newFakeCRM()
	seedClusterList(st, crm)
	source := &fakeSource{
		runsByCluster: map[string][]string{testClusterID: {"run-a", "run-b"}},
		recordsByRun: map[string][]lobstr.RawRecord{
			"run-a": {{"phone": "06.11.22.33.44", "city": "Lyon"}},
			"run-b": {{"phone": "0611223344", "city": "Paris"}, {"phone": "0622334455"}},
		},
	}

	added, err := NewWorker(source, crm, st, 0).MigrateCluster(context.Background(), testCluster(), uuid.New())

	require.NoError(t, err)
	assert.Equal(t, int64(2), added)
	// The earlier occurrence is canonical.
	assert.Equal(t, "Lyon", st.leads["0611223344"].Neighbourhood)
	assert.Len(t, st.dups, 1)
	// Each run is credited with the leads it introduced.
	assert.Equal(t, int64(1), st.runs["run-a"].LeadCount)
	assert.Equal(t, int64(1), st.runs["run-b"].LeadCount)
}

func TestMigrateCluster_LedgerCountsCleanContribution(t *testing.T) {
	st := newFakeStore()
	crm := newFakeCRM()
	seedClusterList(st, crm)
	// 0611223344 is already in the identity store.
	st.leads["0611223344"] = model.LeadRecord{ID: uuid.New(), Phone: "0611223344"}
	source := &fakeSource{
		runsByCluster: map[string][]string{testClusterID: {"run-a"}},
		recordsByRun: map[string][]lobstr.RawRecord{
			"run-a": {
				{"phone": "06.11.22.33.44", "city": "Paris"},
				{"phone": "0622334455", "city": "Lyon"},
				{"phone": "06.22.33.44.55", "city": "Lyon"},
			},
		},
	}

	added, err := NewWorker(source, crm, st, 0).MigrateCluster(context.Background(), testCluster(), uuid.New())

	require.NoError(t, err)
	// Of three fetched records, one collides with the store and one is an
	// in-batch duplicate. Only the clean lead counts toward the run.
	assert.Equal(t, int64(1), added)
	assert.Equal(t, int64(1), st.runs["run-a"].LeadCount)
}

func TestMigrateCluster_PackFailurePropagates(t *testing.T) {
	st := newFakeStore()
	crm := newFakeCRM()
	seedClusterList(st, crm)
	crm.failAppend[11] = eris.New("upstream 500")
	source := &fakeSource{
		runsByCluster: map[string][]string{testClusterID: {"run-a"}},
		recordsByRun:  map[string][]lobstr.RawRecord{"run-a": rawRecords(2, 0)},
	}

	_, err := NewWorker(source, crm, st, 0).MigrateCluster(context.Background(), testCluster(), uuid.New())

	require.Error(t, err)
	assert.Empty(t, st.leads)
}

func TestMigrateCluster_NoNewRuns(t *testing.T) {
	st := newFakeStore()
	crm := newFakeCRM()
	seedClusterList(st, crm)
	source := &fakeSource{runsByCluster: map[string][]string{testClusterID: nil}}

	added, err := NewWorker(source, crm, st, 0).MigrateCluster(context.Background(), testCluster(), uuid.New())

	require.NoError(t, err)
	assert.Zero(t, added)
}
