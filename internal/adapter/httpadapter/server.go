package httpadapter

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"path/filepath"
	"strconv"
	"time"

	sharedobs "github.com/couchcryptid/storm-data-shared/observability"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/victor-cakess/hometown/internal/domain"
)

const (
	defaultRunsLimit = 20
	maxRunsLimit     = 500
)

// RunHistory lists recent stage executions.
type RunHistory interface {
	Recent(ctx context.Context, limit int) ([]domain.StageRun, error)
}

// OutputInspector summarizes the newest consolidated output.
type OutputInspector interface {
	Inspect() (string, domain.Summary, error)
}

// Server exposes health, readiness, metrics, run history and the summary of
// the latest consolidated output.
type Server struct {
	httpServer *http.Server
	logger     *slog.Logger
}

// NewServer creates an HTTP server with /healthz, /readyz, /metrics, /runs
// and /summary routes.
func NewServer(addr string, ready sharedobs.ReadinessChecker, runs RunHistory, outputs OutputInspector, logger *slog.Logger) *Server {
	mux := http.NewServeMux()

	s := &Server{
		httpServer: &http.Server{
			Addr:         addr,
			Handler:      mux,
			ReadTimeout:  10 * time.Second,
			WriteTimeout: 10 * time.Second,
			IdleTimeout:  60 * time.Second,
		},
		logger: logger,
	}

	mux.HandleFunc("GET /healthz", sharedobs.LivenessHandler())
	mux.HandleFunc("GET /readyz", sharedobs.ReadinessHandler(ready))
	mux.Handle("GET /metrics", promhttp.Handler())
	mux.HandleFunc("GET /runs", s.handleRuns(runs))
	mux.HandleFunc("GET /summary", s.handleSummary(outputs))

	return s
}

// Start begins listening. Returns http.ErrServerClosed on graceful shutdown.
func (s *Server) Start() error {
	s.logger.Info("http server starting", "addr", s.httpServer.Addr)
	return s.httpServer.ListenAndServe()
}

// Shutdown gracefully drains connections within the given context deadline.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.httpServer.Shutdown(ctx)
}

// ServeHTTP delegates to the underlying handler, useful for testing.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.httpServer.Handler.ServeHTTP(w, r)
}

func (s *Server) handleRuns(runs RunHistory) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		limit := defaultRunsLimit
		if v := r.URL.Query().Get("limit"); v != "" {
			n, err := strconv.Atoi(v)
			if err != nil || n < 1 || n > maxRunsLimit {
				sharedobs.WriteJSON(w, http.StatusBadRequest, map[string]string{
					"error": "limit must be an integer between 1 and " + strconv.Itoa(maxRunsLimit),
				})
				return
			}
			limit = n
		}

		list, err := runs.Recent(r.Context(), limit)
		if err != nil {
			s.logger.Error("list stage runs failed", "error", err)
			sharedobs.WriteJSON(w, http.StatusInternalServerError, map[string]string{"error": "history unavailable"})
			return
		}
		sharedobs.WriteJSON(w, http.StatusOK, map[string]any{"runs": list})
	}
}

func (s *Server) handleSummary(outputs OutputInspector) http.HandlerFunc {
	return func(w http.ResponseWriter, _ *http.Request) {
		path, summary, err := outputs.Inspect()
		switch {
		case errors.Is(err, domain.ErrProcessing):
			sharedobs.WriteJSON(w, http.StatusNotFound, map[string]string{"error": err.Error()})
			return
		case err != nil:
			s.logger.Error("inspect consolidated output failed", "error", err)
			sharedobs.WriteJSON(w, http.StatusInternalServerError, map[string]string{"error": "summary unavailable"})
			return
		}
		sharedobs.WriteJSON(w, http.StatusOK, map[string]any{
			"file":    filepath.Base(path),
			"summary": summary,
		})
	}
}
