// Package orchestrator ties the coordination core together: portfolio
// admission on active outcomes, gate responses driving experiment
// transitions, the statistical monitor's kill path, and the SLA sweep. All
// FSM applications for one entity are serialized behind its keyed lock.
package orchestrator

import (
	"context"
	"fmt"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/odvcencio/northstar/pkg/bus"
	"github.com/odvcencio/northstar/pkg/conflict"
	"github.com/odvcencio/northstar/pkg/errors"
	"github.com/odvcencio/northstar/pkg/experiment"
	"github.com/odvcencio/northstar/pkg/gate"
	"github.com/odvcencio/northstar/pkg/logging"
	"github.com/odvcencio/northstar/pkg/notify"
	"github.com/odvcencio/northstar/pkg/outcome"
	"github.com/odvcencio/northstar/pkg/parallel"
	"github.com/odvcencio/northstar/pkg/portfolio"
	"github.com/odvcencio/northstar/pkg/stats"
	"github.com/oklog/ulid/v2"
)

// Store is the persistence surface the orchestrator needs. *storage.Store
// satisfies it.
type Store interface {
	SaveOutcome(ctx context.Context, o *outcome.Outcome) error
	GetOutcome(ctx context.Context, id string) (*outcome.Outcome, error)
	UpdateOutcome(ctx context.Context, o *outcome.Outcome) error
	ListOutcomes(ctx context.Context, status outcome.Status) ([]*outcome.Outcome, error)

	SaveExperiment(ctx context.Context, e *experiment.Experiment) error
	GetExperiment(ctx context.Context, id string) (*experiment.Experiment, error)
	UpdateExperiment(ctx context.Context, e *experiment.Experiment) error
	ListExperimentsByOutcome(ctx context.Context, outcomeID string) ([]*experiment.Experiment, error)
	ListExperimentsByState(ctx context.Context, state experiment.State) ([]*experiment.Experiment, error)

	AppendMeasurement(ctx context.Context, experimentID string, m stats.Measurement) error
	Measurements(ctx context.Context, experimentID string) ([]stats.Measurement, error)
}

// Options configures a Service. Store, Gates, and Detector are required;
// everything else is optional.
type Options struct {
	Store    Store
	Gates    *gate.Engine
	Detector *conflict.Detector
	Checker  *stats.Checker
	Notifier *notify.Manager
	Bus      bus.MessageBus
	Logger   *logging.Logger

	MaxConcurrent int
	PollInterval  time.Duration
	SweepInterval time.Duration
}

// Service is the single owner of experiment and outcome state transitions.
type Service struct {
	store    Store
	gates    *gate.Engine
	detector *conflict.Detector
	notifier *notify.Manager
	bus      bus.MessageBus
	logger   *logging.Logger
	locks    *parallel.KeyedLocks
	monitor  *stats.Monitor

	maxConcurrent int
	sweepInterval time.Duration

	mu         sync.Mutex
	guardrails map[string][]stats.Constraint

	now func() time.Time
}

// NewService wires an orchestrator from its collaborators.
func NewService(opts Options) (*Service, error) {
	if opts.Store == nil {
		return nil, errors.New(errors.ErrCodeInvalidInput, "orchestrator requires a store")
	}
	if opts.Gates == nil {
		return nil, errors.New(errors.ErrCodeInvalidInput, "orchestrator requires a gate engine")
	}
	if opts.Detector == nil {
		return nil, errors.New(errors.ErrCodeInvalidInput, "orchestrator requires a conflict detector")
	}
	if opts.MaxConcurrent <= 0 {
		opts.MaxConcurrent = 3
	}
	if opts.PollInterval <= 0 {
		opts.PollInterval = time.Minute
	}
	if opts.SweepInterval <= 0 {
		opts.SweepInterval = 5 * time.Minute
	}

	s := &Service{
		store:         opts.Store,
		gates:         opts.Gates,
		detector:      opts.Detector,
		notifier:      opts.Notifier,
		bus:           opts.Bus,
		logger:        opts.Logger,
		locks:         parallel.NewKeyedLocks(),
		maxConcurrent: opts.MaxConcurrent,
		sweepInterval: opts.SweepInterval,
		guardrails:    make(map[string][]stats.Constraint),
		now:           time.Now,
	}

	checker := opts.Checker
	if checker == nil {
		checker = stats.NewChecker(nil, opts.Logger)
	}
	s.monitor = stats.NewMonitor(s, opts.Store, checker, s.killFromMonitor, opts.PollInterval, opts.Logger)

	return s, nil
}

// Run hosts the background loops until the context is cancelled: the
// statistical monitor and the gate SLA sweep.
func (s *Service) Run(ctx context.Context) error {
	g, ctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		return s.monitor.Run(ctx)
	})
	g.Go(func() error {
		ticker := time.NewTicker(s.sweepInterval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-ticker.C:
				s.gates.SweepSLA(ctx)
			}
		}
	})

	return g.Wait()
}

// CreateOutcome persists a new draft outcome. A missing id is generated.
func (s *Service) CreateOutcome(ctx context.Context, o *outcome.Outcome) (*outcome.Outcome, error) {
	if o == nil {
		return nil, errors.New(errors.ErrCodeInvalidInput, "outcome is nil")
	}
	if o.Name == "" {
		return nil, errors.New(errors.ErrCodeInvalidInput, "outcome requires a name")
	}
	if o.ID == "" {
		o.ID = ulid.Make().String()
	}
	o.Status = outcome.StatusDraft
	o.CreatedAt = s.now().UTC()
	if o.MaxConcurrentExperiments <= 0 {
		o.MaxConcurrentExperiments = s.maxConcurrent
	}

	if err := s.store.SaveOutcome(ctx, o); err != nil {
		return nil, err
	}
	s.logOutcome(o, "outcome_created", o.Name)
	return o, nil
}

// ActivateOutcome drives a draft outcome live so it can admit candidates.
func (s *Service) ActivateOutcome(ctx context.Context, outcomeID string) (*outcome.Outcome, error) {
	return s.applyOutcomeEvent(ctx, outcomeID, outcome.EventActivate)
}

// ConcludeOutcome ends an active outcome with ACHIEVE, ABANDON, or EXPIRE.
func (s *Service) ConcludeOutcome(ctx context.Context, outcomeID string, event outcome.Event) (*outcome.Outcome, error) {
	switch event {
	case outcome.EventAchieve, outcome.EventAbandon, outcome.EventExpire:
	default:
		return nil, errors.New(errors.ErrCodeInvalidInput, "not a concluding event").
			WithContext("event", string(event))
	}
	return s.applyOutcomeEvent(ctx, outcomeID, event)
}

func (s *Service) applyOutcomeEvent(ctx context.Context, outcomeID string, event outcome.Event) (*outcome.Outcome, error) {
	release := s.locks.Acquire("outcome:" + outcomeID)
	defer release()

	o, err := s.store.GetOutcome(ctx, outcomeID)
	if err != nil {
		return nil, err
	}
	if o == nil {
		return nil, errors.New(errors.ErrCodeNotFound, "outcome not found").
			WithContext("outcome", outcomeID)
	}

	from := o.Status
	if err := outcome.Apply(o, event, s.now().UTC()); err != nil {
		return nil, err
	}
	if err := s.store.UpdateOutcome(ctx, o); err != nil {
		return nil, err
	}

	s.logOutcome(o, "outcome_transition", fmt.Sprintf("%s -> %s", from, o.Status))
	s.publish(ctx, bus.SubjectOutcomeState, bus.OutcomeStateEvent{
		OutcomeID: o.ID,
		From:      string(from),
		To:        string(o.Status),
		At:        s.now().UTC(),
	})
	return o, nil
}

// AdmissionResult reports one portfolio admission pass.
type AdmissionResult struct {
	Admitted []*experiment.Experiment
	Scored   []portfolio.ScoredCandidate
	Rejected []error
}

// SubmitCandidates validates, scores, and admits a candidate batch against
// an active outcome. Admitted candidates become experiments parked at their
// portfolio gate, assigned to the outcome owner. Slots already occupied by
// live experiments count against the outcome's concurrency cap.
func (s *Service) SubmitCandidates(ctx context.Context, outcomeID string, candidates []*experiment.Candidate) (*AdmissionResult, error) {
	o, err := s.store.GetOutcome(ctx, outcomeID)
	if err != nil {
		return nil, err
	}
	if o == nil {
		return nil, errors.New(errors.ErrCodeNotFound, "outcome not found").
			WithContext("outcome", outcomeID)
	}
	if o.Status != outcome.StatusActive {
		return nil, errors.New(errors.ErrCodeWrongState, "outcome is not active").
			WithContext("outcome", outcomeID).
			WithContext("status", string(o.Status))
	}

	scored, rejected := portfolio.ScoreAll(candidates)
	recordRejection(len(rejected))

	live, err := s.countLiveExperiments(ctx, outcomeID)
	if err != nil {
		return nil, err
	}
	slots := o.MaxConcurrentExperiments - live
	if slots < 0 {
		slots = 0
	}

	selected := portfolio.SelectPortfolio(scored, slots)

	result := &AdmissionResult{Scored: scored, Rejected: rejected}
	now := s.now().UTC()
	for _, sc := range selected {
		exp := &experiment.Experiment{
			ID:        ulid.Make().String(),
			OutcomeID: outcomeID,
			Candidate: *sc.Candidate,
			State:     experiment.StateHypothesis,
			CreatedAt: now,
		}
		if err := experiment.Apply(exp, experiment.Input{Event: experiment.EventSubmit}, now); err != nil {
			return nil, err
		}
		if err := s.store.SaveExperiment(ctx, exp); err != nil {
			return nil, err
		}

		if _, err := s.openGate(ctx, exp, o, gate.TypePortfolio,
			fmt.Sprintf("Admit %q into the portfolio for %q?", exp.Candidate.Title, o.Name)); err != nil {
			return nil, err
		}
		result.Admitted = append(result.Admitted, exp)
	}

	recordAdmission(len(result.Admitted))
	if s.logger != nil {
		s.logger.Info(logging.CategoryPortfolio, "candidates_admitted", "portfolio admission pass", map[string]any{
			"outcome_id": outcomeID,
			"submitted":  len(candidates),
			"admitted":   len(result.Admitted),
			"rejected":   len(rejected),
			"slots":      slots,
		})
	}
	return result, nil
}

// RespondGate records a human response and drives the owning experiment
// through the matching lifecycle event.
func (s *Service) RespondGate(ctx context.Context, gateID string, resp gate.Response) (*gate.Gate, error) {
	g, err := s.gates.Respond(ctx, gateID, resp)
	if err != nil {
		return nil, err
	}

	s.publish(ctx, bus.SubjectGateResolved, bus.GateEvent{
		GateID:       g.ID,
		ExperimentID: g.ExperimentID,
		Type:         string(g.Type),
		Status:       string(g.Status),
		Assignee:     g.Assignee,
		At:           s.now().UTC(),
	})

	if g.ExperimentID == "" {
		return g, nil
	}
	in, ok := gateInput(g)
	if !ok {
		return g, nil
	}
	if _, err := s.applyExperimentEvent(ctx, g.ExperimentID, in); err != nil {
		return nil, err
	}
	return g, nil
}

// gateInput maps a resolved gate onto the experiment event it unlocks.
// Analysis gates carry the ship/scale/iterate/kill decision; rejecting one
// kills the experiment.
func gateInput(g *gate.Gate) (experiment.Input, bool) {
	approved := g.Status == gate.StatusApproved || g.Status == gate.StatusApprovedWithConditions

	switch g.Type {
	case gate.TypePortfolio:
		if approved {
			return experiment.Input{Event: experiment.EventPortfolioGateApproved}, true
		}
		return experiment.Input{Event: experiment.EventPortfolioGateRejected, Reason: g.Response.Comment}, true
	case gate.TypeLaunch:
		if approved {
			return experiment.Input{Event: experiment.EventLaunchGateApproved}, true
		}
		return experiment.Input{Event: experiment.EventLaunchGateRejected, Reason: g.Response.Comment}, true
	case gate.TypeAnalysis:
		if approved {
			return experiment.Input{Event: experiment.EventAnalysisGateApproved, Decision: g.Response.Decision}, true
		}
		// Rejection rides the decision fan-out as a kill; the FSM has no
		// dedicated analysis-rejected event.
		return experiment.Input{
			Event:    experiment.EventAnalysisGateApproved,
			Decision: experiment.DecisionKill,
			Reason:   "analysis gate rejected",
		}, true
	case gate.TypeScale:
		if approved {
			return experiment.Input{Event: experiment.EventScaleGateApproved}, true
		}
		return experiment.Input{Event: experiment.EventScaleGateRejected, Reason: g.Response.Comment}, true
	}
	return experiment.Input{}, false
}

// ReportBuildResult records the build agent's verdict for a building
// experiment. Success opens the launch gate; failure is terminal.
func (s *Service) ReportBuildResult(ctx context.Context, experimentID string, success bool, reason string) (*experiment.Experiment, error) {
	in := experiment.Input{Event: experiment.EventBuildSucceeded}
	if !success {
		in = experiment.Input{Event: experiment.EventBuildFailed, Reason: reason}
	}
	return s.applyExperimentEvent(ctx, experimentID, in)
}

// BeginMeasuring moves a running experiment into its measurement window.
func (s *Service) BeginMeasuring(ctx context.Context, experimentID string) (*experiment.Experiment, error) {
	return s.applyExperimentEvent(ctx, experimentID, experiment.Input{Event: experiment.EventBeginMeasuring})
}

// CompleteMeasurement ends the measurement window and opens the analysis
// gate.
func (s *Service) CompleteMeasurement(ctx context.Context, experimentID string) (*experiment.Experiment, error) {
	return s.applyExperimentEvent(ctx, experimentID, experiment.Input{Event: experiment.EventMeasurementComplete})
}

// ReportScaleReady signals that a scaling rollout reached its checkpoint and
// opens the scale gate.
func (s *Service) ReportScaleReady(ctx context.Context, experimentID string) (*experiment.Experiment, error) {
	return s.applyExperimentEvent(ctx, experimentID, experiment.Input{Event: experiment.EventScaleReady})
}

// Kill terminates an experiment with an operator-supplied reason.
func (s *Service) Kill(ctx context.Context, experimentID, reason string) (*experiment.Experiment, error) {
	return s.applyExperimentEvent(ctx, experimentID, experiment.Input{Event: experiment.EventKill, Reason: reason})
}

// RecordMeasurement appends one observation to an experiment's measurement
// stream.
func (s *Service) RecordMeasurement(ctx context.Context, experimentID string, m stats.Measurement) error {
	return s.store.AppendMeasurement(ctx, experimentID, m)
}

// SetGuardrails attaches secondary-signal constraints checked by the
// auto-kill monitor alongside the primary kill threshold.
func (s *Service) SetGuardrails(experimentID string, constraints []stats.Constraint) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(constraints) == 0 {
		delete(s.guardrails, experimentID)
		return
	}
	s.guardrails[experimentID] = constraints
}

func (s *Service) guardrailsFor(experimentID string) []stats.Constraint {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.guardrails[experimentID]
}

// MonitorTargets lists the experiments the statistical monitor should poll:
// everything currently running or measuring. Implements stats.TargetLister.
func (s *Service) MonitorTargets(ctx context.Context) ([]stats.Target, error) {
	var targets []stats.Target
	directions := make(map[string]outcome.Direction)

	for _, state := range []experiment.State{experiment.StateRunning, experiment.StateMeasuring} {
		exps, err := s.store.ListExperimentsByState(ctx, state)
		if err != nil {
			return nil, err
		}
		for _, exp := range exps {
			dir, ok := directions[exp.OutcomeID]
			if !ok {
				o, err := s.store.GetOutcome(ctx, exp.OutcomeID)
				if err != nil {
					return nil, err
				}
				dir = outcome.DirectionIncrease
				if o != nil {
					dir = o.Target.Direction
				}
				directions[exp.OutcomeID] = dir
			}

			t := stats.Target{
				ExperimentID: exp.ID,
				SignalName:   exp.Candidate.Prediction.Signal,
				Plan:         exp.Candidate.MeasurementPlan,
				Direction:    dir,
				Constraints:  s.guardrailsFor(exp.ID),
			}
			if exp.LaunchedAt != nil {
				t.LaunchedAt = *exp.LaunchedAt
			}
			targets = append(targets, t)
		}
	}
	return targets, nil
}

// killFromMonitor is the auto-kill callback. The transition goes through the
// same keyed lock as gate-driven events; notification and bus publication
// are fire-and-forget.
func (s *Service) killFromMonitor(ctx context.Context, experimentID string, decision stats.KillDecision) error {
	exp, err := s.applyExperimentEvent(ctx, experimentID,
		experiment.Input{Event: experiment.EventKill, Reason: decision.Reason})
	if err != nil {
		// Already terminal means a gate response or manual kill won the
		// race; nothing left to do.
		if errors.IsCode(err, errors.ErrCodeWrongState) {
			return nil
		}
		return err
	}

	event := bus.KillEvent{
		ExperimentID: exp.ID,
		Reason:       decision.Reason,
		At:           s.now().UTC(),
	}
	detail := map[string]any{}
	if decision.Detail != nil {
		event.Type = decision.Detail.Type
		event.Signal = decision.Detail.Signal
		event.Value = decision.Detail.Value
		event.Limit = decision.Detail.Limit
		detail["type"] = decision.Detail.Type
		detail["signal"] = decision.Detail.Signal
		detail["value"] = decision.Detail.Value
		detail["limit"] = decision.Detail.Limit
	}

	if s.notifier != nil {
		s.notifier.ExperimentKilled(ctx, exp.ID, decision.Reason, detail)
	}
	s.publish(ctx, bus.SubjectExperimentKilled, event)
	return nil
}

// CheckConflicts registers an agent's declared file scope and reports any
// collision with open changes from other experiments.
func (s *Service) CheckConflicts(ctx context.Context, experimentID, agentID string, paths []string) (*conflict.Conflict, error) {
	s.detector.RegisterChange(experimentID, agentID, paths)
	c, err := s.detector.Check(ctx, experimentID, agentID, paths)
	if err != nil || c == nil {
		return c, err
	}

	recordConflict()
	s.publish(ctx, bus.SubjectConflictDetected, bus.ConflictEvent{
		ConflictID:    c.ID,
		Severity:      string(c.Severity),
		ExperimentIDs: c.ExperimentIDs,
		Paths:         c.Paths,
		At:            s.now().UTC(),
	})
	return c, nil
}

// ResolveConflict marks a conflict handled by an operator.
func (s *Service) ResolveConflict(ctx context.Context, conflictID, resolvedBy string) (*conflict.Conflict, error) {
	return s.detector.Resolve(ctx, conflictID, resolvedBy)
}

// SweepSLA runs one gate SLA pass outside the ticker. Used by the CLI.
func (s *Service) SweepSLA(ctx context.Context) {
	s.gates.SweepSLA(ctx)
}

// applyExperimentEvent is the single path for experiment transitions: lock
// the experiment, load, apply, persist, then fan out side effects.
func (s *Service) applyExperimentEvent(ctx context.Context, experimentID string, in experiment.Input) (*experiment.Experiment, error) {
	release := s.locks.Acquire("experiment:" + experimentID)
	defer release()

	exp, err := s.store.GetExperiment(ctx, experimentID)
	if err != nil {
		return nil, err
	}
	if exp == nil {
		return nil, errors.New(errors.ErrCodeNotFound, "experiment not found").
			WithContext("experiment", experimentID)
	}

	from := exp.State
	now := s.now().UTC()
	if err := experiment.Apply(exp, in, now); err != nil {
		return nil, err
	}
	if err := s.store.UpdateExperiment(ctx, exp); err != nil {
		return nil, err
	}

	if s.logger != nil {
		s.logger.Info(logging.CategoryExperiment, "experiment_transition",
			fmt.Sprintf("%s -> %s", from, exp.State), map[string]any{
				"experiment_id": exp.ID,
				"event":         string(in.Event),
				"decision":      string(in.Decision),
			})
	}
	s.publish(ctx, bus.SubjectExperimentState, bus.ExperimentStateEvent{
		ExperimentID: exp.ID,
		OutcomeID:    exp.OutcomeID,
		From:         string(from),
		To:           string(exp.State),
		Event:        string(in.Event),
		At:           now,
	})

	if err := s.afterTransition(ctx, exp, from); err != nil {
		return nil, err
	}
	return exp, nil
}

// afterTransition opens follow-up gates and maintains the conflict registry
// and metrics for the state just entered.
func (s *Service) afterTransition(ctx context.Context, exp *experiment.Experiment, from experiment.State) error {
	switch exp.State {
	case experiment.StateBuilding:
		// The experiment's file scope is live from build start until a
		// terminal state.
		s.detector.RegisterChange(exp.ID, "builder:"+exp.ID, exp.Candidate.AffectedFiles)

	case experiment.StateAwaitingLaunch:
		o, err := s.store.GetOutcome(ctx, exp.OutcomeID)
		if err != nil {
			return err
		}
		if _, err := s.openGate(ctx, exp, o, gate.TypeLaunch,
			fmt.Sprintf("Launch %q to production traffic?", exp.Candidate.Title)); err != nil {
			return err
		}

	case experiment.StateAwaitingAnalysis:
		o, err := s.store.GetOutcome(ctx, exp.OutcomeID)
		if err != nil {
			return err
		}
		if _, err := s.openGate(ctx, exp, o, gate.TypeAnalysis,
			fmt.Sprintf("Measurement window closed for %q: ship, scale, iterate, or kill?", exp.Candidate.Title)); err != nil {
			return err
		}

	case experiment.StateAwaitingScaleGate:
		o, err := s.store.GetOutcome(ctx, exp.OutcomeID)
		if err != nil {
			return err
		}
		if _, err := s.openGate(ctx, exp, o, gate.TypeScale,
			fmt.Sprintf("Scale %q to full rollout?", exp.Candidate.Title)); err != nil {
			return err
		}

	case experiment.StateShipped:
		s.detector.ClearExperiment(exp.ID)
		s.SetGuardrails(exp.ID, nil)
		recordShipped()

	case experiment.StateKilled:
		s.detector.ClearExperiment(exp.ID)
		s.SetGuardrails(exp.ID, nil)
		recordKill()

	case experiment.StateFailedBuild:
		s.detector.ClearExperiment(exp.ID)
		s.SetGuardrails(exp.ID, nil)
		recordFailedBuild()
	}
	return nil
}

// openGate creates a gate assigned to the outcome owner and announces it.
// The context bundle gives the assignee what they need to decide without
// chasing the experiment record.
func (s *Service) openGate(ctx context.Context, exp *experiment.Experiment, o *outcome.Outcome, typ gate.Type, question string) (*gate.Gate, error) {
	assignee := "operator"
	if o != nil && o.Owner != "" {
		assignee = o.Owner
	}
	outcomeID := exp.OutcomeID

	g, err := s.gates.Create(ctx, gate.CreateInput{
		ExperimentID: exp.ID,
		OutcomeID:    outcomeID,
		Type:         typ,
		Question:     question,
		Context:      s.gateContext(ctx, exp, o, typ),
		Assignee:     assignee,
	})
	if err != nil {
		return nil, err
	}

	recordGateOpened()
	s.publish(ctx, bus.SubjectGateOpened, bus.GateEvent{
		GateID:       g.ID,
		ExperimentID: g.ExperimentID,
		Type:         string(g.Type),
		Status:       string(g.Status),
		Assignee:     g.Assignee,
		At:           s.now().UTC(),
	})
	return g, nil
}

// gateContext assembles the decision bundle shown alongside a gate question:
// the candidate's claim, where the experiment stands, and for post-launch
// gates a summary of the measurement stream. Best effort; a failed
// measurement read just leaves that part out.
func (s *Service) gateContext(ctx context.Context, exp *experiment.Experiment, o *outcome.Outcome, typ gate.Type) map[string]any {
	bundle := map[string]any{
		"candidate_title": exp.Candidate.Title,
		"hypothesis":      exp.Candidate.Hypothesis,
		"signal":          exp.Candidate.Prediction.Signal,
		"expected_delta":  exp.Candidate.Prediction.ExpectedDelta,
		"risk":            string(exp.Candidate.Risk),
		"state":           string(exp.State),
	}
	if o != nil {
		bundle["outcome_name"] = o.Name
	}

	if typ == gate.TypeAnalysis || typ == gate.TypeScale {
		ms, err := s.store.Measurements(ctx, exp.ID)
		if err == nil {
			bundle["measurement_count"] = len(ms)
			if n := len(ms); n > 0 {
				bundle["latest_value"] = ms[n-1].Value
			}
		}
	}
	return bundle
}

func (s *Service) countLiveExperiments(ctx context.Context, outcomeID string) (int, error) {
	exps, err := s.store.ListExperimentsByOutcome(ctx, outcomeID)
	if err != nil {
		return 0, err
	}
	live := 0
	for _, exp := range exps {
		if !exp.State.IsTerminal() {
			live++
		}
	}
	return live, nil
}

// publish sends a lifecycle event on the bus. Failures are logged and
// swallowed; the transition has already committed.
func (s *Service) publish(ctx context.Context, subject string, event any) {
	if err := bus.PublishJSON(ctx, s.bus, subject, event); err != nil && s.logger != nil {
		s.logger.Warn(logging.CategoryNotify, "bus_publish_failed", err.Error(), map[string]any{
			"subject": subject,
		})
	}
}

func (s *Service) logOutcome(o *outcome.Outcome, eventType, message string) {
	if s.logger == nil {
		return
	}
	s.logger.Log(logging.Event{
		Timestamp: s.now().UTC(),
		Level:     logging.LevelInfo,
		Category:  logging.CategoryOutcome,
		EventType: eventType,
		OutcomeID: o.ID,
		Message:   message,
		Details:   map[string]any{"status": string(o.Status)},
	})
}
