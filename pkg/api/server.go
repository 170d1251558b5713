// Package api exposes the coordination core over HTTP. The adapter is thin:
// it decodes requests, calls the orchestrator, and translates structured
// errors into status codes.
package api

import (
	"context"
	"encoding/json"
	stderrors "errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/odvcencio/northstar/pkg/conflict"
	"github.com/odvcencio/northstar/pkg/errors"
	"github.com/odvcencio/northstar/pkg/experiment"
	"github.com/odvcencio/northstar/pkg/gate"
	"github.com/odvcencio/northstar/pkg/logging"
	"github.com/odvcencio/northstar/pkg/outcome"
)

// Store is the read surface the API serves queries from. *storage.Store
// satisfies it.
type Store interface {
	GetOutcome(ctx context.Context, id string) (*outcome.Outcome, error)
	ListOutcomes(ctx context.Context, status outcome.Status) ([]*outcome.Outcome, error)
	GetExperiment(ctx context.Context, id string) (*experiment.Experiment, error)
	ListExperimentsByOutcome(ctx context.Context, outcomeID string) ([]*experiment.Experiment, error)
	GetGate(ctx context.Context, id string) (*gate.Gate, error)
	FindPendingByAssignee(ctx context.Context, assignee string) ([]*gate.Gate, error)
	ListConflicts(ctx context.Context, unresolvedOnly bool) ([]*conflict.Conflict, error)
}

// Server hosts the HTTP adapter.
type Server struct {
	svc        Orchestrator
	store      Store
	logger     *logging.Logger
	httpServer *http.Server
}

// NewServer builds a server bound to addr.
func NewServer(addr string, svc Orchestrator, store Store, logger *logging.Logger) *Server {
	s := &Server{svc: svc, store: store, logger: logger}
	s.httpServer = &http.Server{
		Addr:         addr,
		Handler:      s.Routes(),
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 30 * time.Second,
	}
	return s
}

// Routes assembles the router. Exposed separately so tests can drive the
// handler without a listener.
func (s *Server) Routes() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)

	r.Get("/healthz", s.handleHealth)
	r.Method(http.MethodGet, "/metrics", promhttp.Handler())

	r.Route("/api/v1", func(r chi.Router) {
		r.Route("/outcomes", func(r chi.Router) {
			r.Post("/", s.handleCreateOutcome)
			r.Get("/", s.handleListOutcomes)
			r.Get("/{id}", s.handleGetOutcome)
			r.Post("/{id}/activate", s.handleActivateOutcome)
			r.Post("/{id}/conclude", s.handleConcludeOutcome)
			r.Post("/{id}/candidates", s.handleSubmitCandidates)
			r.Get("/{id}/experiments", s.handleListExperiments)
		})

		r.Route("/experiments", func(r chi.Router) {
			r.Get("/{id}", s.handleGetExperiment)
			r.Post("/{id}/build-result", s.handleBuildResult)
			r.Post("/{id}/begin-measuring", s.handleBeginMeasuring)
			r.Post("/{id}/complete-measurement", s.handleCompleteMeasurement)
			r.Post("/{id}/scale-ready", s.handleScaleReady)
			r.Post("/{id}/kill", s.handleKill)
			r.Post("/{id}/measurements", s.handleRecordMeasurement)
		})

		r.Route("/gates", func(r chi.Router) {
			r.Get("/", s.handleListGates)
			r.Get("/{id}", s.handleGetGate)
			r.Post("/{id}/response", s.handleRespondGate)
		})

		r.Route("/conflicts", func(r chi.Router) {
			r.Get("/", s.handleListConflicts)
			r.Post("/check", s.handleCheckConflicts)
			r.Post("/{id}/resolve", s.handleResolveConflict)
		})
	})

	return r
}

// Start begins serving and blocks until the listener closes.
func (s *Server) Start() error {
	if s.logger != nil {
		s.logger.Info(logging.CategoryAPI, "server_started", "listening on "+s.httpServer.Addr, nil)
	}
	err := s.httpServer.ListenAndServe()
	if err == http.ErrServerClosed {
		return nil
	}
	return err
}

// Shutdown drains in-flight requests.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.httpServer.Shutdown(ctx)
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

// writeError maps error codes onto HTTP statuses. Conflicting workflow
// states (double gate response, terminal FSM states, re-resolution) are 409s.
func writeError(w http.ResponseWriter, err error) {
	status := http.StatusInternalServerError
	switch errors.GetCode(err) {
	case errors.ErrCodeInvalidInput, errors.ErrCodeCandidateInvalid:
		status = http.StatusBadRequest
	case errors.ErrCodeNotFound:
		status = http.StatusNotFound
	case errors.ErrCodeWrongState, errors.ErrCodeEventRejected, errors.ErrCodeAlreadyResolved:
		status = http.StatusConflict
	}

	body := map[string]string{"error": err.Error()}
	var e *errors.Error
	if stderrors.As(err, &e) {
		body["code"] = string(e.Code)
		if e.UserMessage != "" {
			body["error"] = e.UserMessage
		}
	}
	writeJSON(w, status, body)
}

func decodeJSON(r *http.Request, dst any) error {
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
		return errors.Wrap(err, errors.ErrCodeInvalidInput, "invalid request body")
	}
	return nil
}
