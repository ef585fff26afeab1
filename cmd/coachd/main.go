// coachd is the HTTP trigger surface for the engine: manual sync, file
// imports, and coaching task invocation. Each endpoint is synchronous
// to completion and safe to re-invoke.
package main

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"os"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"golang.org/x/oauth2"

	"github.com/mycoach/server/pkg/bootstrap"
	"github.com/mycoach/server/pkg/coaching"
	"github.com/mycoach/server/pkg/infrastructure/oauth"
	"github.com/mycoach/server/pkg/infrastructure/sentry"
	"github.com/mycoach/server/pkg/ingest"
	"github.com/mycoach/server/pkg/progression"
	"github.com/mycoach/server/pkg/sources"
	"github.com/mycoach/server/pkg/sources/fitfile"
	"github.com/mycoach/server/pkg/sources/garmin"
	"github.com/mycoach/server/pkg/sources/hevycsv"
	"github.com/mycoach/server/pkg/types"
)

type server struct {
	sync   *ingest.SyncService
	engine *coaching.Engine
	logger *slog.Logger
}

func main() {
	ctx := context.Background()
	svc, err := bootstrap.NewService(ctx)
	if err != nil {
		slog.Error("bootstrap failed", "error", err)
		os.Exit(1)
	}
	logger := bootstrap.NewLogger("coachd", false)

	registerGarmin(ctx, logger)

	importer := ingest.NewImporter(svc.Store, logger.With("component", "importer"))
	merger := ingest.NewMerger(svc.Store, logger.With("component", "merger"), ingest.MergerConfig{})
	syncSvc := ingest.NewSyncService(svc.Store, importer, merger, svc.Pub, svc.Blobs, svc.Config.ArtifactBucket, logger.With("component", "sync"))

	ledger := coaching.NewCostLedger(svc.Store, svc.Config.CostCeilingUSD)
	backend := coaching.NewGeminiBackend(svc.Config.GeminiAPIKey)
	invoker := coaching.NewInvoker(backend, ledger, logger.With("component", "invoker"), coaching.InvokerConfig{})
	validator := coaching.NewValidator(invoker, svc.Store, logger.With("component", "validator"))
	assembler := coaching.NewAssembler(svc.Store, coaching.AssemblerConfig{}, logger.With("component", "assembler"))
	tracker := progression.NewTracker(svc.Store, logger.With("component", "progression"), progression.Config{})
	engine := coaching.NewEngine(svc.Store, assembler, validator, tracker, svc.Pub, logger.With("component", "engine"))

	s := &server{sync: syncSvc, engine: engine, logger: logger}

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(120 * time.Second))

	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})
	r.Route("/users/{userID}", func(r chi.Router) {
		r.Post("/sync/{sourceID}", s.handleSync)
		r.Post("/imports/hevy", s.handleHevyImport)
		r.Post("/imports/fit", s.handleFitImport)
		r.Post("/tasks/{taskType}", s.handleTask)
		r.Get("/results/{taskType}", s.handleGetResult)
	})

	port := os.Getenv("PORT")
	if port == "" {
		port = "8080"
	}
	logger.Info("coachd listening", "port", port)
	if err := http.ListenAndServe(":"+port, r); err != nil {
		logger.Error("server exited", "error", err)
		os.Exit(1)
	}
}

// registerGarmin wires the wearable adapter when credentials exist.
// Without a token the source simply is not registered; syncs against it
// return an unknown-source error instead of failing at startup. A
// refresh token plus client credentials upgrades the static token to a
// self-renewing one.
func registerGarmin(ctx context.Context, logger *slog.Logger) {
	access := os.Getenv("GARMIN_ACCESS_TOKEN")
	if access == "" {
		logger.Warn("GARMIN_ACCESS_TOKEN not set, Garmin source not registered")
		return
	}

	var ts oauth.TokenSource = oauth.StaticTokenSource(access)
	if refresh := os.Getenv("GARMIN_REFRESH_TOKEN"); refresh != "" {
		cfg := &oauth2.Config{
			ClientID:     os.Getenv("GARMIN_CLIENT_ID"),
			ClientSecret: os.Getenv("GARMIN_CLIENT_SECRET"),
			Endpoint: oauth2.Endpoint{
				TokenURL: "https://diauth.garmin.com/di-oauth2-service/oauth/token",
			},
		}
		ts = oauth.NewOAuth2Source(cfg, &oauth2.Token{AccessToken: access, RefreshToken: refresh})
	}

	client := garmin.NewClient(ts)
	auth := &garmin.TokenProbeAuthenticator{Probe: func(ctx context.Context) error {
		_, err := ts.Token(ctx)
		return err
	}}
	sources.Register(garmin.NewSource(client, auth, logger.With("component", "garmin")))
}

func (s *server) handleSync(w http.ResponseWriter, r *http.Request) {
	userID := chi.URLParam(r, "userID")
	sourceID := chi.URLParam(r, "sourceID")

	report, err := s.sync.RunSync(r.Context(), userID, sourceID)
	if err != nil {
		s.writeError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, report)
}

func (s *server) handleHevyImport(w http.ResponseWriter, r *http.Request) {
	s.handleFileImport(w, r, func(body []byte) sources.Source {
		return hevycsv.NewSource(body)
	})
}

func (s *server) handleFitImport(w http.ResponseWriter, r *http.Request) {
	filename := r.URL.Query().Get("filename")
	if filename == "" {
		filename = "upload.fit"
	}
	s.handleFileImport(w, r, func(body []byte) sources.Source {
		return fitfile.NewSource(filename, body)
	})
}

func (s *server) handleFileImport(w http.ResponseWriter, r *http.Request, build func([]byte) sources.Source) {
	userID := chi.URLParam(r, "userID")
	body, err := io.ReadAll(io.LimitReader(r.Body, 32<<20))
	if err != nil {
		http.Error(w, "failed to read body", http.StatusBadRequest)
		return
	}
	if len(body) == 0 {
		http.Error(w, "empty body", http.StatusBadRequest)
		return
	}

	report, err := s.sync.RunSyncSource(r.Context(), userID, build(body))
	if err != nil {
		s.writeError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, report)
}

func (s *server) handleTask(w http.ResponseWriter, r *http.Request) {
	userID := chi.URLParam(r, "userID")
	taskType := chi.URLParam(r, "taskType")
	date := r.URL.Query().Get("date")
	if date == "" {
		date = time.Now().UTC().Format(types.DateLayout)
	}

	result, err := s.engine.RunCoachingTask(r.Context(), userID, taskType, date)
	if err != nil {
		s.writeError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, result)
}

func (s *server) handleGetResult(w http.ResponseWriter, r *http.Request) {
	userID := chi.URLParam(r, "userID")
	taskType := chi.URLParam(r, "taskType")
	date := r.URL.Query().Get("date")
	if date == "" {
		http.Error(w, "date query parameter is required", http.StatusBadRequest)
		return
	}

	result, err := s.engine.GetResult(r.Context(), userID, taskType, date)
	if err != nil {
		s.writeError(w, err)
		return
	}
	if result == nil {
		http.Error(w, "not found", http.StatusNotFound)
		return
	}
	s.writeJSON(w, http.StatusOK, result)
}

func (s *server) writeError(w http.ResponseWriter, err error) {
	var budgetErr *coaching.BudgetExceededError
	status := http.StatusInternalServerError
	if errors.As(err, &budgetErr) {
		status = http.StatusPaymentRequired
	}
	if status >= 500 {
		sentry.CaptureException(err, nil)
	}
	s.logger.Error("request failed", "error", err)
	s.writeJSON(w, status, map[string]string{"error": err.Error()})
}

func (s *server) writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		s.logger.Error("failed to encode response", "error", err)
	}
}
