package api

import (
	"context"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/odvcencio/northstar/pkg/conflict"
	"github.com/odvcencio/northstar/pkg/errors"
	"github.com/odvcencio/northstar/pkg/experiment"
	"github.com/odvcencio/northstar/pkg/gate"
	"github.com/odvcencio/northstar/pkg/orchestrator"
	"github.com/odvcencio/northstar/pkg/outcome"
	"github.com/odvcencio/northstar/pkg/stats"
)

// Orchestrator is the write surface the handlers call.
// *orchestrator.Service satisfies it.
type Orchestrator interface {
	CreateOutcome(ctx context.Context, o *outcome.Outcome) (*outcome.Outcome, error)
	ActivateOutcome(ctx context.Context, outcomeID string) (*outcome.Outcome, error)
	ConcludeOutcome(ctx context.Context, outcomeID string, event outcome.Event) (*outcome.Outcome, error)
	SubmitCandidates(ctx context.Context, outcomeID string, candidates []*experiment.Candidate) (*orchestrator.AdmissionResult, error)
	RespondGate(ctx context.Context, gateID string, resp gate.Response) (*gate.Gate, error)
	ReportBuildResult(ctx context.Context, experimentID string, success bool, reason string) (*experiment.Experiment, error)
	BeginMeasuring(ctx context.Context, experimentID string) (*experiment.Experiment, error)
	CompleteMeasurement(ctx context.Context, experimentID string) (*experiment.Experiment, error)
	ReportScaleReady(ctx context.Context, experimentID string) (*experiment.Experiment, error)
	Kill(ctx context.Context, experimentID, reason string) (*experiment.Experiment, error)
	RecordMeasurement(ctx context.Context, experimentID string, m stats.Measurement) error
	CheckConflicts(ctx context.Context, experimentID, agentID string, paths []string) (*conflict.Conflict, error)
	ResolveConflict(ctx context.Context, conflictID, resolvedBy string) (*conflict.Conflict, error)
}

type createOutcomeRequest struct {
	Name                     string  `json:"name"`
	Owner                    string  `json:"owner"`
	SignalSource             string  `json:"signal_source"`
	SignalMetric             string  `json:"signal_metric"`
	SignalMethod             string  `json:"signal_method"`
	Direction                string  `json:"direction"`
	Threshold                float64 `json:"threshold"`
	ConfidenceRequired       float64 `json:"confidence_required"`
	MaxConcurrentExperiments int     `json:"max_concurrent_experiments"`
}

func (s *Server) handleCreateOutcome(w http.ResponseWriter, r *http.Request) {
	var req createOutcomeRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, err)
		return
	}

	o, err := s.svc.CreateOutcome(r.Context(), &outcome.Outcome{
		Name:  req.Name,
		Owner: req.Owner,
		Signal: outcome.Signal{
			Source: req.SignalSource,
			Metric: req.SignalMetric,
			Method: req.SignalMethod,
		},
		Target: outcome.Target{
			Direction:          outcome.Direction(req.Direction),
			Threshold:          req.Threshold,
			ConfidenceRequired: req.ConfidenceRequired,
		},
		MaxConcurrentExperiments: req.MaxConcurrentExperiments,
	})
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, o)
}

func (s *Server) handleListOutcomes(w http.ResponseWriter, r *http.Request) {
	status := outcome.Status(r.URL.Query().Get("status"))
	outcomes, err := s.store.ListOutcomes(r.Context(), status)
	if err != nil {
		writeError(w, err)
		return
	}
	if outcomes == nil {
		outcomes = []*outcome.Outcome{}
	}
	writeJSON(w, http.StatusOK, outcomes)
}

func (s *Server) handleGetOutcome(w http.ResponseWriter, r *http.Request) {
	o, err := s.store.GetOutcome(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, err)
		return
	}
	if o == nil {
		writeError(w, errors.New(errors.ErrCodeNotFound, "outcome not found"))
		return
	}
	writeJSON(w, http.StatusOK, o)
}

func (s *Server) handleActivateOutcome(w http.ResponseWriter, r *http.Request) {
	o, err := s.svc.ActivateOutcome(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, o)
}

func (s *Server) handleConcludeOutcome(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Event string `json:"event"`
	}
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, err)
		return
	}

	o, err := s.svc.ConcludeOutcome(r.Context(), chi.URLParam(r, "id"), outcome.Event(req.Event))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, o)
}

type submitCandidatesRequest struct {
	Candidates []*experiment.Candidate `json:"candidates"`
}

type submitCandidatesResponse struct {
	Admitted []*experiment.Experiment `json:"admitted"`
	Rejected []string                 `json:"rejected"`
}

func (s *Server) handleSubmitCandidates(w http.ResponseWriter, r *http.Request) {
	var req submitCandidatesRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, err)
		return
	}

	res, err := s.svc.SubmitCandidates(r.Context(), chi.URLParam(r, "id"), req.Candidates)
	if err != nil {
		writeError(w, err)
		return
	}

	resp := submitCandidatesResponse{
		Admitted: res.Admitted,
		Rejected: make([]string, 0, len(res.Rejected)),
	}
	if resp.Admitted == nil {
		resp.Admitted = []*experiment.Experiment{}
	}
	for _, rej := range res.Rejected {
		resp.Rejected = append(resp.Rejected, rej.Error())
	}
	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) handleListExperiments(w http.ResponseWriter, r *http.Request) {
	exps, err := s.store.ListExperimentsByOutcome(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, err)
		return
	}
	if exps == nil {
		exps = []*experiment.Experiment{}
	}
	writeJSON(w, http.StatusOK, exps)
}

func (s *Server) handleGetExperiment(w http.ResponseWriter, r *http.Request) {
	exp, err := s.store.GetExperiment(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, err)
		return
	}
	if exp == nil {
		writeError(w, errors.New(errors.ErrCodeNotFound, "experiment not found"))
		return
	}
	writeJSON(w, http.StatusOK, exp)
}

func (s *Server) handleBuildResult(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Success bool   `json:"success"`
		Reason  string `json:"reason"`
	}
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, err)
		return
	}

	exp, err := s.svc.ReportBuildResult(r.Context(), chi.URLParam(r, "id"), req.Success, req.Reason)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, exp)
}

func (s *Server) handleBeginMeasuring(w http.ResponseWriter, r *http.Request) {
	exp, err := s.svc.BeginMeasuring(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, exp)
}

func (s *Server) handleCompleteMeasurement(w http.ResponseWriter, r *http.Request) {
	exp, err := s.svc.CompleteMeasurement(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, exp)
}

func (s *Server) handleScaleReady(w http.ResponseWriter, r *http.Request) {
	exp, err := s.svc.ReportScaleReady(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, exp)
}

func (s *Server) handleKill(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Reason string `json:"reason"`
	}
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, err)
		return
	}

	exp, err := s.svc.Kill(r.Context(), chi.URLParam(r, "id"), req.Reason)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, exp)
}

type measurementRequest struct {
	Variant   string    `json:"variant"`
	Value     float64   `json:"value"`
	Timestamp time.Time `json:"timestamp"`
}

func (s *Server) handleRecordMeasurement(w http.ResponseWriter, r *http.Request) {
	var req measurementRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, err)
		return
	}

	variant := stats.Variant(req.Variant)
	switch variant {
	case stats.VariantControl, stats.VariantTreatment:
	default:
		writeError(w, errors.New(errors.ErrCodeInvalidInput, "variant must be control or treatment"))
		return
	}
	if req.Timestamp.IsZero() {
		req.Timestamp = time.Now().UTC()
	}

	err := s.svc.RecordMeasurement(r.Context(), chi.URLParam(r, "id"), stats.Measurement{
		Variant:   variant,
		Value:     req.Value,
		Timestamp: req.Timestamp,
	})
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusAccepted, map[string]string{"status": "recorded"})
}

func (s *Server) handleListGates(w http.ResponseWriter, r *http.Request) {
	assignee := r.URL.Query().Get("assignee")
	if assignee == "" {
		writeError(w, errors.New(errors.ErrCodeInvalidInput, "assignee query parameter is required"))
		return
	}

	gates, err := s.store.FindPendingByAssignee(r.Context(), assignee)
	if err != nil {
		writeError(w, err)
		return
	}
	if gates == nil {
		gates = []*gate.Gate{}
	}
	writeJSON(w, http.StatusOK, gates)
}

func (s *Server) handleGetGate(w http.ResponseWriter, r *http.Request) {
	g, err := s.store.GetGate(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, err)
		return
	}
	if g == nil {
		writeError(w, errors.New(errors.ErrCodeNotFound, "gate not found"))
		return
	}
	writeJSON(w, http.StatusOK, g)
}

type gateResponseRequest struct {
	By         string   `json:"by"`
	Status     string   `json:"status"`
	Decision   string   `json:"decision,omitempty"`
	Conditions []string `json:"conditions,omitempty"`
	Comment    string   `json:"comment,omitempty"`
}

func (s *Server) handleRespondGate(w http.ResponseWriter, r *http.Request) {
	var req gateResponseRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, err)
		return
	}

	g, err := s.svc.RespondGate(r.Context(), chi.URLParam(r, "id"), gate.Response{
		By:         req.By,
		Status:     gate.Status(req.Status),
		Decision:   experiment.Decision(req.Decision),
		Conditions: req.Conditions,
		Comment:    req.Comment,
	})
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, g)
}

func (s *Server) handleListConflicts(w http.ResponseWriter, r *http.Request) {
	unresolvedOnly := r.URL.Query().Get("unresolved") == "true"
	conflicts, err := s.store.ListConflicts(r.Context(), unresolvedOnly)
	if err != nil {
		writeError(w, err)
		return
	}
	if conflicts == nil {
		conflicts = []*conflict.Conflict{}
	}
	writeJSON(w, http.StatusOK, conflicts)
}

type checkConflictsRequest struct {
	ExperimentID string   `json:"experiment_id"`
	AgentID      string   `json:"agent_id"`
	Paths        []string `json:"paths"`
}

func (s *Server) handleCheckConflicts(w http.ResponseWriter, r *http.Request) {
	var req checkConflictsRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, err)
		return
	}
	if req.ExperimentID == "" || req.AgentID == "" {
		writeError(w, errors.New(errors.ErrCodeInvalidInput, "experiment_id and agent_id are required"))
		return
	}

	c, err := s.svc.CheckConflicts(r.Context(), req.ExperimentID, req.AgentID, req.Paths)
	if err != nil {
		writeError(w, err)
		return
	}
	if c == nil {
		writeJSON(w, http.StatusOK, map[string]any{"conflict": nil})
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"conflict": c})
}

func (s *Server) handleResolveConflict(w http.ResponseWriter, r *http.Request) {
	var req struct {
		ResolvedBy string `json:"resolved_by"`
	}
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, err)
		return
	}

	c, err := s.svc.ResolveConflict(r.Context(), chi.URLParam(r, "id"), req.ResolvedBy)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, c)
}
