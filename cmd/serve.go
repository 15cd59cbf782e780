package main

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"os/signal"
	"syscall"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/capitalead/leadsync/internal/model"
	"github.com/capitalead/leadsync/internal/store"
	engine "github.com/capitalead/leadsync/internal/sync"
)

var servePort int

// migrationRunner is the coordinator surface the trigger endpoints use.
type migrationRunner interface {
	StartMigration(ctx context.Context) error
	Status() model.RunInfo
}

// duplicateScanner is the scanner surface of the find-duplicates endpoint.
type duplicateScanner interface {
	Scan(ctx context.Context) (*engine.ScanReport, error)
}

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the trigger/status HTTP server",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		env, err := initEnv(ctx)
		if err != nil {
			return err
		}
		defer env.Close()

		port := servePort
		if port == 0 {
			port = cfg.Server.Port
		}

		srv := &http.Server{
			Addr:    fmt.Sprintf(":%d", port),
			Handler: newRouter(ctx, env.Coordinator, env.Scanner, env.Store),
		}

		go func() {
			<-ctx.Done()
			zap.L().Info("shutting down server")
			srv.Shutdown(context.Background())
		}()

		zap.L().Info("starting server", zap.Int("port", port))
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			return eris.Wrap(err, "server listen")
		}

		return nil
	},
}

// newRouter builds the API surface. Long-running jobs are triggered
// asynchronously and acknowledged with 202; jobCtx outlives the request.
func newRouter(jobCtx context.Context, runner migrationRunner, scanner duplicateScanner, st store.Store) http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.Recoverer)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: []string{"*"},
		AllowedMethods: []string{http.MethodGet},
	}))

	r.Get("/health", func(w http.ResponseWriter, req *http.Request) {
		if err := st.Ping(req.Context()); err != nil {
			zap.L().Warn("health check failed", zap.Error(err))
			writeJSON(w, http.StatusServiceUnavailable, map[string]string{"status": "unavailable"})
			return
		}
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})
	r.Handle("/metrics", promhttp.Handler())

	r.Route("/api/v1", func(r chi.Router) {
		r.Get("/run", func(w http.ResponseWriter, _ *http.Request) {
			go func() {
				if err := runner.StartMigration(jobCtx); err != nil {
					zap.L().Error("migration failed", zap.Error(err))
				}
			}()
			writeJSON(w, http.StatusAccepted, map[string]string{"status": "accepted"})
		})

		r.Get("/run-info", func(w http.ResponseWriter, _ *http.Request) {
			writeJSON(w, http.StatusOK, runner.Status())
		})

		r.Get("/find-duplicates", func(w http.ResponseWriter, _ *http.Request) {
			go func() {
				report, err := scanner.Scan(jobCtx)
				if err != nil {
					zap.L().Error("duplicate scan failed", zap.Error(err))
					return
				}
				zap.L().Info("duplicate scan complete",
					zap.Int("duplicates", report.DuplicatesFound),
					zap.Int64("backfilled", report.LeadsBackfilled))
			}()
			writeJSON(w, http.StatusAccepted, map[string]string{"status": "accepted"})
		})

		r.Get("/calculate-kpi", func(w http.ResponseWriter, req *http.Request) {
			report, err := engine.BuildReport(req.Context(), st)
			if err != nil {
				zap.L().Error("kpi report failed", zap.Error(err))
				writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "kpi report failed"})
				return
			}
			writeJSON(w, http.StatusOK, report)
		})
	})

	return r
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func init() {
	serveCmd.Flags().IntVar(&servePort, "port", 0, "server port (default from config)")
	rootCmd.AddCommand(serveCmd)
}
