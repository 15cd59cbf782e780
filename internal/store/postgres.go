package store

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rotisserie/eris"

	"github.com/capitalead/leadsync/internal/db"
	"github.com/capitalead/leadsync/internal/model"
)

// PostgresStore implements Store using pgxpool.
type PostgresStore struct {
	pool    db.Pool
	closeFn func()
}

// PoolConfig holds optional connection pool tuning parameters.
type PoolConfig struct {
	MaxConns int32 `yaml:"max_conns" mapstructure:"max_conns"`
	MinConns int32 `yaml:"min_conns" mapstructure:"min_conns"`
}

// NewPostgres creates a PostgresStore with a connection pool.
func NewPostgres(ctx context.Context, connString string, poolCfg *PoolConfig) (*PostgresStore, error) {
	pgxCfg, err := pgxpool.ParseConfig(connString)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: parse config")
	}

	maxConns := int32(10)
	minConns := int32(2)
	if poolCfg != nil {
		if poolCfg.MaxConns > 0 {
			maxConns = poolCfg.MaxConns
		}
		if poolCfg.MinConns > 0 {
			minConns = poolCfg.MinConns
		}
	}
	pgxCfg.MaxConns = maxConns
	pgxCfg.MinConns = minConns
	pgxCfg.MaxConnLifetime = 30 * time.Minute
	pgxCfg.MaxConnIdleTime = 5 * time.Minute

	pool, err := pgxpool.NewWithConfig(ctx, pgxCfg)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: create pool")
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, eris.Wrap(err, "postgres: ping")
	}
	return &PostgresStore{pool: pool, closeFn: pool.Close}, nil
}

// NewPostgresFromPool wraps an existing pool. Used by tests with a mock pool.
func NewPostgresFromPool(pool db.Pool) *PostgresStore {
	return &PostgresStore{pool: pool}
}

// Pool returns the underlying database pool.
func (s *PostgresStore) Pool() db.Pool {
	return s.pool
}

func (s *PostgresStore) Ping(ctx context.Context) error {
	_, err := s.pool.Exec(ctx, "SELECT 1")
	return eris.Wrap(err, "postgres: ping")
}

func (s *PostgresStore) Close() error {
	if s.closeFn != nil {
		s.closeFn()
	}
	return nil
}

var leadColumns = []string{
	"id", "neighbourhood", "parsing_date", "real_estate_type", "phone",
	"rooms", "size", "energy", "list_id", "import_id", "crm_lead_id", "disabled",
}

func leadValues(l model.LeadRecord) []any {
	return []any{
		l.ID, l.Neighbourhood, l.ParsingDate, l.RealEstateType, l.Phone,
		l.Rooms, l.Size, l.Energy, l.ListID, l.ImportID, l.CRMLeadID, l.Disabled,
	}
}

func (s *PostgresStore) FindExistingPhones(ctx context.Context, phones []string) (map[string]struct{}, error) {
	existing := make(map[string]struct{})
	for _, chunk := range db.Chunk(phones, chunkSize) {
		rows, err := s.pool.Query(ctx,
			`SELECT phone FROM leads WHERE phone = ANY($1)`,
			chunk,
		)
		if err != nil {
			return nil, eris.Wrap(err, "postgres: find existing phones")
		}
		for rows.Next() {
			var phone string
			if err := rows.Scan(&phone); err != nil {
				rows.Close()
				return nil, eris.Wrap(err, "postgres: scan phone")
			}
			existing[phone] = struct{}{}
		}
		rows.Close()
		if err := rows.Err(); err != nil {
			return nil, eris.Wrap(err, "postgres: find existing phones iterate")
		}
	}
	return existing, nil
}

func (s *PostgresStore) InsertLeads(ctx context.Context, leads []model.LeadRecord) (int64, error) {
	var inserted int64
	for _, chunk := range db.Chunk(leads, chunkSize) {
		rows := make([][]any, len(chunk))
		for i, l := range chunk {
			rows[i] = leadValues(l)
		}
		n, err := db.BulkInsertIgnore(ctx, s.pool, db.InsertIgnoreConfig{
			Table:        "leads",
			Columns:      leadColumns,
			ConflictKeys: []string{"phone"},
		}, rows)
		if err != nil {
			return inserted, eris.Wrap(err, "postgres: insert leads")
		}
		inserted += n
	}
	return inserted, nil
}

func (s *PostgresStore) FindExistingRunIDs(ctx context.Context, runIDs []string) (map[string]struct{}, error) {
	existing := make(map[string]struct{})
	for _, chunk := range db.Chunk(runIDs, chunkSize) {
		rows, err := s.pool.Query(ctx,
			`SELECT run_id FROM processed_runs WHERE run_id = ANY($1)`,
			chunk,
		)
		if err != nil {
			return nil, eris.Wrap(err, "postgres: find existing run ids")
		}
		for rows.Next() {
			var runID string
			if err := rows.Scan(&runID); err != nil {
				rows.Close()
				return nil, eris.Wrap(err, "postgres: scan run id")
			}
			existing[runID] = struct{}{}
		}
		rows.Close()
		if err := rows.Err(); err != nil {
			return nil, eris.Wrap(err, "postgres: find existing run ids iterate")
		}
	}
	return existing, nil
}

func (s *PostgresStore) InsertProcessedRuns(ctx context.Context, runs []model.ProcessedRun) error {
	for _, chunk := range db.Chunk(runs, chunkSize) {
		rows := make([][]any, len(chunk))
		for i, r := range chunk {
			rows[i] = []any{r.ID, r.RunID, r.ClusterID, r.LeadCount, r.ProcessedAt}
		}
		_, err := db.BulkInsertIgnore(ctx, s.pool, db.InsertIgnoreConfig{
			Table:        "processed_runs",
			Columns:      []string{"id", "run_id", "cluster_id", "lead_count", "processed_at"},
			ConflictKeys: []string{"run_id"},
		}, rows)
		if err != nil {
			return eris.Wrap(err, "postgres: insert processed runs")
		}
	}
	return nil
}

func (s *PostgresStore) InsertDuplicates(ctx context.Context, dups []model.DuplicateLead) error {
	for _, chunk := range db.Chunk(dups, chunkSize) {
		rows := make([][]any, len(chunk))
		for i, d := range chunk {
			rows[i] = []any{d.ID, d.Phone, d.ListID, d.CRMRowID, d.Content, d.Deleted}
		}
		_, err := db.CopyFrom(ctx, s.pool, "duplicate_leads",
			[]string{"id", "phone", "list_id", "crm_row_id", "content", "deleted"},
			rows,
		)
		if err != nil {
			return eris.Wrap(err, "postgres: insert duplicates")
		}
	}
	return nil
}

func (s *PostgresStore) ListDuplicates(ctx context.Context) ([]model.DuplicateLead, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT id, phone, list_id, crm_row_id, content, deleted
		 FROM duplicate_leads WHERE NOT deleted ORDER BY phone`,
	)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: list duplicates")
	}
	defer rows.Close()

	var dups []model.DuplicateLead
	for rows.Next() {
		var d model.DuplicateLead
		if err := rows.Scan(&d.ID, &d.Phone, &d.ListID, &d.CRMRowID, &d.Content, &d.Deleted); err != nil {
			return nil, eris.Wrap(err, "postgres: scan duplicate")
		}
		dups = append(dups, d)
	}
	return dups, eris.Wrap(rows.Err(), "postgres: list duplicates iterate")
}

func (s *PostgresStore) MarkDuplicateDeleted(ctx context.Context, id uuid.UUID) error {
	tag, err := s.pool.Exec(ctx,
		`UPDATE duplicate_leads SET deleted = true WHERE id = $1`,
		id,
	)
	if err != nil {
		return eris.Wrapf(err, "postgres: mark duplicate deleted %s", id)
	}
	if tag.RowsAffected() == 0 {
		return eris.Errorf("duplicate not found: %s", id)
	}
	return nil
}

func (s *PostgresStore) UpsertDestinationList(ctx context.Context, list model.DestinationList) error {
	_, err := s.pool.Exec(ctx,
		`INSERT INTO destination_lists (id, cluster_id, cluster_name, title, row_count, sequence_index)
		 VALUES ($1, $2, $3, $4, $5, $6)
		 ON CONFLICT (id) DO UPDATE SET
		   cluster_id = $2, cluster_name = $3, title = $4, row_count = $5, sequence_index = $6`,
		list.ID, list.ClusterID, list.ClusterName, list.Title, list.RowCount, list.SequenceIndex,
	)
	return eris.Wrapf(err, "postgres: upsert destination list %d", list.ID)
}

func (s *PostgresStore) ListDestinationLists(ctx context.Context) ([]model.DestinationList, error) {
	return s.queryLists(ctx,
		`SELECT id, cluster_id, cluster_name, title, row_count, sequence_index
		 FROM destination_lists ORDER BY cluster_id, sequence_index`,
	)
}

func (s *PostgresStore) ListClusterLists(ctx context.Context, clusterID string) ([]model.DestinationList, error) {
	return s.queryLists(ctx,
		`SELECT id, cluster_id, cluster_name, title, row_count, sequence_index
		 FROM destination_lists WHERE cluster_id = $1 ORDER BY sequence_index`,
		clusterID,
	)
}

func (s *PostgresStore) queryLists(ctx context.Context, query string, args ...any) ([]model.DestinationList, error) {
	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: list destination lists")
	}
	defer rows.Close()

	var lists []model.DestinationList
	for rows.Next() {
		var l model.DestinationList
		if err := rows.Scan(&l.ID, &l.ClusterID, &l.ClusterName, &l.Title, &l.RowCount, &l.SequenceIndex); err != nil {
			return nil, eris.Wrap(err, "postgres: scan destination list")
		}
		lists = append(lists, l)
	}
	return lists, eris.Wrap(rows.Err(), "postgres: list destination lists iterate")
}

func (s *PostgresStore) CreateImport(ctx context.Context) (*model.Import, error) {
	imp := &model.Import{
		ID:      uuid.New(),
		Started: time.Now().UTC(),
		Status:  model.ImportStatusInProgress,
	}
	_, err := s.pool.Exec(ctx,
		`INSERT INTO imports (id, started, status, added_count) VALUES ($1, $2, $3, 0)`,
		imp.ID, imp.Started, string(imp.Status),
	)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: create import")
	}
	return imp, nil
}

func (s *PostgresStore) CompleteImport(ctx context.Context, id uuid.UUID, added int64) error {
	tag, err := s.pool.Exec(ctx,
		`UPDATE imports SET status = $1, completed = $2, added_count = $3 WHERE id = $4`,
		string(model.ImportStatusCompleted), time.Now().UTC(), added, id,
	)
	if err != nil {
		return eris.Wrapf(err, "postgres: complete import %s", id)
	}
	if tag.RowsAffected() == 0 {
		return eris.Errorf("import not found: %s", id)
	}
	return nil
}

func (s *PostgresStore) FailImport(ctx context.Context, id uuid.UUID, added int64, msg string) error {
	tag, err := s.pool.Exec(ctx,
		`UPDATE imports SET status = $1, completed = $2, added_count = $3, error = $4 WHERE id = $5`,
		string(model.ImportStatusError), time.Now().UTC(), added, msg, id,
	)
	if err != nil {
		return eris.Wrapf(err, "postgres: fail import %s", id)
	}
	if tag.RowsAffected() == 0 {
		return eris.Errorf("import not found: %s", id)
	}
	return nil
}

func (s *PostgresStore) LatestImport(ctx context.Context) (*model.Import, error) {
	var imp model.Import
	var status string
	var errMsg *string

	err := s.pool.QueryRow(ctx,
		`SELECT id, started, completed, status, added_count, error
		 FROM imports ORDER BY started DESC LIMIT 1`,
	).Scan(&imp.ID, &imp.Started, &imp.Completed, &status, &imp.AddedCount, &errMsg)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, eris.Wrap(err, "postgres: latest import")
	}
	imp.Status = model.ImportStatus(status)
	if errMsg != nil {
		imp.Error = *errMsg
	}
	return &imp, nil
}

func (s *PostgresStore) KPIReport(ctx context.Context) (*KPIReport, error) {
	var r KPIReport
	err := s.pool.QueryRow(ctx,
		`SELECT
		   (SELECT COUNT(*) FROM leads),
		   (SELECT COUNT(*) FROM leads WHERE list_id IS NOT NULL),
		   (SELECT COUNT(*) FROM leads WHERE disabled),
		   (SELECT COUNT(*) FROM duplicate_leads),
		   (SELECT COUNT(*) FROM duplicate_leads WHERE deleted),
		   (SELECT COUNT(*) FROM processed_runs),
		   (SELECT COUNT(*) FROM destination_lists)`,
	).Scan(
		&r.TotalLeads, &r.AssignedLeads, &r.DisabledLeads,
		&r.DuplicatesRecorded, &r.DuplicatesDeleted, &r.RunsProcessed, &r.DestinationLists,
	)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: kpi report")
	}
	return &r, nil
}
