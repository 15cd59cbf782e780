package sync

import (
	"context"
	stdsync "sync"

	"github.com/google/uuid"
	"github.com/rotisserie/eris"

	"github.com/capitalead/leadsync/internal/model"
	"github.com/capitalead/leadsync/internal/store"
	"github.com/capitalead/leadsync/pkg/lobstr"
	"github.com/capitalead/leadsync/pkg/nocrm"
)

// fakeStore is an in-memory store.Store honoring phone and run-id
// uniqueness the way the Postgres constraints do.
type fakeStore struct {
	mu      stdsync.Mutex
	leads   map[string]model.LeadRecord
	runs    map[string]model.ProcessedRun
	dups    []model.DuplicateLead
	lists   map[int64]model.DestinationList
	imports []*model.Import
}

func newFakeStore() *fakeStore {
	return &fakeStore{
		leads: make(map[string]model.LeadRecord),
		runs:  make(map[string]model.ProcessedRun),
		lists: make(map[int64]model.DestinationList),
	}
}

var _ store.Store = (*fakeStore)(nil)

func (f *fakeStore) FindExistingPhones(_ context.Context, phones []string) (map[string]struct{}, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	existing := make(map[string]struct{})
	for _, p := range phones {
		if _, ok := f.leads[p]; ok {
			existing[p] = struct{}{}
		}
	}
	return existing, nil
}

func (f *fakeStore) InsertLeads(_ context.Context, leads []model.LeadRecord) (int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var n int64
	for _, l := range leads {
		if _, ok := f.leads[l.Phone]; ok {
			continue
		}
		f.leads[l.Phone] = l
		n++
	}
	return n, nil
}

func (f *fakeStore) FindExistingRunIDs(_ context.Context, runIDs []string) (map[string]struct{}, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	existing := make(map[string]struct{})
	for _, id := range runIDs {
		if _, ok := f.runs[id]; ok {
			existing[id] = struct{}{}
		}
	}
	return existing, nil
}

func (f *fakeStore) InsertProcessedRuns(_ context.Context, runs []model.ProcessedRun) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, r := range runs {
		if _, ok := f.runs[r.RunID]; ok {
			continue
		}
		f.runs[r.RunID] = r
	}
	return nil
}

func (f *fakeStore) InsertDuplicates(_ context.Context, dups []model.DuplicateLead) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.dups = append(f.dups, dups...)
	return nil
}

func (f *fakeStore) ListDuplicates(_ context.Context) ([]model.DuplicateLead, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []model.DuplicateLead
	for _, d := range f.dups {
		if !d.Deleted {
			out = append(out, d)
		}
	}
	return out, nil
}

func (f *fakeStore) MarkDuplicateDeleted(_ context.Context, id uuid.UUID) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	for i, d := range f.dups {
		if d.ID == id {
			f.dups[i].Deleted = true
			return nil
		}
	}
	return eris.Errorf("duplicate not found: %s", id)
}

func (f *fakeStore) UpsertDestinationList(_ context.Context, list model.DestinationList) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.lists[list.ID] = list
	return nil
}

func (f *fakeStore) ListDestinationLists(_ context.Context) ([]model.DestinationList, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []model.DestinationList
	for _, l := range f.lists {
		out = append(out, l)
	}
	return out, nil
}

func (f *fakeStore) ListClusterLists(_ context.Context, clusterID string) ([]model.DestinationList, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []model.DestinationList
	for _, l := range f.lists {
		if l.ClusterID == clusterID {
			out = append(out, l)
		}
	}
	return out, nil
}

func (f *fakeStore) CreateImport(_ context.Context) (*model.Import, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	imp := &model.Import{ID: uuid.New(), Status: model.ImportStatusInProgress}
	f.imports = append(f.imports, imp)
	return imp, nil
}

func (f *fakeStore) CompleteImport(_ context.Context, id uuid.UUID, added int64) error {
	return f.finalize(id, model.ImportStatusCompleted, added, "")
}

func (f *fakeStore) FailImport(_ context.Context, id uuid.UUID, added int64, msg string) error {
	return f.finalize(id, model.ImportStatusError, added, msg)
}

func (f *fakeStore) finalize(id uuid.UUID, status model.ImportStatus, added int64, msg string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, imp := range f.imports {
		if imp.ID == id {
			imp.Status = status
			imp.AddedCount = added
			imp.Error = msg
			return nil
		}
	}
	return eris.Errorf("import not found: %s", id)
}

func (f *fakeStore) LatestImport(_ context.Context) (*model.Import, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if len(f.imports) == 0 {
		return nil, nil
	}
	imp := *f.imports[len(f.imports)-1]
	return &imp, nil
}

func (f *fakeStore) KPIReport(_ context.Context) (*store.KPIReport, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	r := &store.KPIReport{
		TotalLeads:       int64(len(f.leads)),
		RunsProcessed:    int64(len(f.runs)),
		DestinationLists: int64(len(f.lists)),
	}
	for _, d := range f.dups {
		r.DuplicatesRecorded++
		if d.Deleted {
			r.DuplicatesDeleted++
		}
	}
	return r, nil
}

func (f *fakeStore) Migrate(context.Context) error { return nil }
func (f *fakeStore) Ping(context.Context) error    { return nil }
func (f *fakeStore) Close() error                  { return nil }

// fakeSource is an in-memory lobstr.Client.
type fakeSource struct {
	clusters      []lobstr.Cluster
	runsByCluster map[string][]string
	recordsByRun  map[string][]lobstr.RawRecord
	fetchErr      map[string]error
	listErr       error
}

var _ lobstr.Client = (*fakeSource)(nil)

func (f *fakeSource) ListRunIDs(_ context.Context, clusterID string) ([]string, error) {
	if f.listErr != nil {
		return nil, f.listErr
	}
	return f.runsByCluster[clusterID], nil
}

func (f *fakeSource) FetchRecords(_ context.Context, runID string) ([]lobstr.RawRecord, error) {
	if err := f.fetchErr[runID]; err != nil {
		return nil, err
	}
	return f.recordsByRun[runID], nil
}

func (f *fakeSource) ListClusters(context.Context) ([]lobstr.Cluster, error) {
	return f.clusters, nil
}

func (f *fakeSource) GetCluster(_ context.Context, clusterID string) (*lobstr.Cluster, error) {
	for _, cl := range f.clusters {
		if cl.ID == clusterID {
			return &cl, nil
		}
	}
	return nil, nil
}

// fakeCRM is an in-memory nocrm.Client tracking row counts per list.
type fakeCRM struct {
	mu         stdsync.Mutex
	nextID     int64
	sheets     map[int64]*nocrm.Spreadsheet
	order      []int64
	failAppend map[int64]error
	createErr  error
	maxRows    int
}

var _ nocrm.Client = (*fakeCRM)(nil)

func newFakeCRM() *fakeCRM {
	return &fakeCRM{nextID: 100, sheets: make(map[int64]*nocrm.Spreadsheet), failAppend: make(map[int64]error)}
}

func (f *fakeCRM) addSheet(id int64, title string, tags []string, rowCount int) {
	f.sheets[id] = &nocrm.Spreadsheet{ID: id, Title: title, Tags: tags, TotalRowCount: rowCount}
	f.order = append(f.order, id)
	if rowCount > f.maxRows {
		f.maxRows = rowCount
	}
}

func (f *fakeCRM) ListSpreadsheets(context.Context) ([]nocrm.Spreadsheet, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]nocrm.Spreadsheet, 0, len(f.order))
	for _, id := range f.order {
		sh := *f.sheets[id]
		sh.Rows = nil
		out = append(out, sh)
	}
	return out, nil
}

func (f *fakeCRM) GetSpreadsheet(_ context.Context, listID int64) (*nocrm.Spreadsheet, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	sh, ok := f.sheets[listID]
	if !ok {
		return nil, eris.Errorf("no such list %d", listID)
	}
	copied := *sh
	return &copied, nil
}

func (f *fakeCRM) CreateSpreadsheet(_ context.Context, title string, tags []string) (*nocrm.Spreadsheet, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.createErr != nil {
		return nil, f.createErr
	}
	f.nextID++
	sh := &nocrm.Spreadsheet{ID: f.nextID, Title: title, Tags: tags}
	f.sheets[sh.ID] = sh
	f.order = append(f.order, sh.ID)
	return sh, nil
}

func (f *fakeCRM) AppendRows(_ context.Context, listID int64, rows [][]any) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.failAppend[listID]; err != nil {
		return err
	}
	sh, ok := f.sheets[listID]
	if !ok {
		return eris.Errorf("no such list %d", listID)
	}
	for _, row := range rows {
		sh.TotalRowCount++
		sh.Rows = append(sh.Rows, nocrm.Row{
			ID:       int64(len(sh.Rows) + 1),
			IsActive: true,
			Content:  row,
		})
	}
	if sh.TotalRowCount > f.maxRows {
		f.maxRows = sh.TotalRowCount
	}
	return nil
}

func (f *fakeCRM) DeleteRow(_ context.Context, listID, rowID int64) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	sh, ok := f.sheets[listID]
	if !ok {
		return eris.Errorf("no such list %d", listID)
	}
	for i, row := range sh.Rows {
		if row.ID == rowID {
			sh.Rows = append(sh.Rows[:i], sh.Rows[i+1:]...)
			sh.TotalRowCount--
			return nil
		}
	}
	return eris.Errorf("no such row %d", rowID)
}
