package main

import (
	"context"

	"github.com/rotisserie/eris"

	"github.com/capitalead/leadsync/internal/store"
	engine "github.com/capitalead/leadsync/internal/sync"
	"github.com/capitalead/leadsync/pkg/lobstr"
	"github.com/capitalead/leadsync/pkg/nocrm"
)

// syncEnv holds the initialized store, API clients and engine components
// shared by the serve/migrate/duplicates/kpi commands.
type syncEnv struct {
	Store       store.Store
	Source      lobstr.Client
	CRM         nocrm.Client
	Tracker     *engine.Tracker
	Coordinator *engine.Coordinator
	Scanner     *engine.Scanner
}

// Close releases resources held by the environment.
func (e *syncEnv) Close() {
	if e.Store != nil {
		_ = e.Store.Close()
	}
}

// initEnv validates config, connects to Postgres, applies migrations and
// wires the engine. Callers should defer env.Close().
func initEnv(ctx context.Context) (*syncEnv, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	st, err := store.NewPostgres(ctx, cfg.Store.DatabaseURL, &store.PoolConfig{
		MaxConns: cfg.Store.MaxConns,
		MinConns: cfg.Store.MinConns,
	})
	if err != nil {
		return nil, err
	}
	if err := st.Migrate(ctx); err != nil {
		_ = st.Close()
		return nil, eris.Wrap(err, "migrate store")
	}

	source := lobstr.NewClient(cfg.Lobstr.Token, lobstr.WithBaseURL(cfg.Lobstr.BaseURL))
	crm := nocrm.NewClient(cfg.NoCRM.APIKey, cfg.NoCRM.UserEmail, nocrm.WithBaseURL(cfg.NoCRM.BaseURL))

	tracker := engine.NewTracker()
	return &syncEnv{
		Store:       st,
		Source:      source,
		CRM:         crm,
		Tracker:     tracker,
		Coordinator: engine.NewCoordinator(source, crm, st, tracker, cfg.Sync.Concurrency, cfg.Sync.MaxRunsPerCycle),
		Scanner:     engine.NewScanner(crm, st, cfg.Sync.DuplicateScanConcurrency),
	}, nil
}
