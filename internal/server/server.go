// Package server exposes the approval checker over HTTP together with
// health and Prometheus endpoints.
package server

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"github.com/dcshock/reviewpipe/internal/approval"
)

// Checker is the part of approval.Checker the server drives.
type Checker interface {
	Run(ctx context.Context) (approval.Summary, error)
	CheckTeamByID(ctx context.Context, scope approval.OrganizationAndTeamData) (approval.TeamReport, error)
}

type Server struct {
	Router  *chi.Mux
	Addr    string
	logger  *slog.Logger
	checker Checker

	// runMu keeps full runs from overlapping.
	runMu sync.Mutex
}

// New builds the router. gatherer backs /metrics; nil uses the default registry.
func New(addr string, checker Checker, gatherer prometheus.Gatherer, logger *slog.Logger) *Server {
	if gatherer == nil {
		gatherer = prometheus.DefaultGatherer
	}
	s := &Server{
		Router:  chi.NewRouter(),
		Addr:    addr,
		logger:  logger,
		checker: checker,
	}

	r := s.Router
	r.Use(RequestIDMiddleware)
	r.Use(LoggingMiddleware(logger))
	r.Use(middleware.Recoverer)
	r.Use(func(next http.Handler) http.Handler {
		return otelhttp.NewHandler(next, "reviewpipe")
	})

	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})
	r.Handle("/metrics", promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{}))

	r.Route("/v1/approval-checks", func(r chi.Router) {
		r.Post("/", s.handleRun)
		r.Post("/teams/{teamID}", s.handleTeam)
	})
	return s
}

func (s *Server) handleRun(w http.ResponseWriter, r *http.Request) {
	if !s.runMu.TryLock() {
		writeError(w, http.StatusConflict, errors.New("an approval check is already running"))
		return
	}
	defer s.runMu.Unlock()

	sum, err := s.checker.Run(r.Context())
	if err != nil {
		s.logger.ErrorContext(r.Context(), "approval check failed",
			slog.String("request_id", GetRequestID(r.Context())),
			slog.String("error", err.Error()))
		writeError(w, http.StatusInternalServerError, err)
		return
	}
	writeJSON(w, http.StatusOK, sum)
}

func (s *Server) handleTeam(w http.ResponseWriter, r *http.Request) {
	scope := approval.OrganizationAndTeamData{
		OrganizationID: r.URL.Query().Get("organizationId"),
		TeamID:         chi.URLParam(r, "teamID"),
	}
	report, err := s.checker.CheckTeamByID(r.Context(), scope)
	switch {
	case errors.Is(err, approval.ErrTeamNotFound):
		writeError(w, http.StatusNotFound, err)
	case err != nil:
		writeError(w, http.StatusInternalServerError, err)
	default:
		writeJSON(w, http.StatusOK, report)
	}
}

// Start serves until ctx is canceled, then shuts down gracefully.
func (s *Server) Start(ctx context.Context) error {
	srv := &http.Server{
		Addr:              s.Addr,
		Handler:           s.Router,
		ReadHeaderTimeout: 10 * time.Second,
	}
	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("starting server", slog.String("addr", s.Addr))
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return err
	}
	s.logger.Info("server stopped")
	return nil
}

type errorResponse struct {
	Error string `json:"error"`
}

func writeError(w http.ResponseWriter, status int, err error) {
	writeJSON(w, status, errorResponse{Error: err.Error()})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
