package gate

import (
	"context"
	"time"

	"github.com/oklog/ulid/v2"

	"github.com/odvcencio/northstar/pkg/errors"
	"github.com/odvcencio/northstar/pkg/experiment"
	"github.com/odvcencio/northstar/pkg/logging"
	"github.com/odvcencio/northstar/pkg/parallel"
)

// Store persists gates. The sqlite implementation lives in pkg/storage.
type Store interface {
	SaveGate(ctx context.Context, g *Gate) error
	GetGate(ctx context.Context, id string) (*Gate, error)
	UpdateGate(ctx context.Context, g *Gate) error
	ListOpenGates(ctx context.Context) ([]*Gate, error)
}

// Notifier receives gate lifecycle events. Delivery is best effort;
// implementations swallow and log transport failures.
type Notifier interface {
	GateCreated(ctx context.Context, g *Gate)
	GateReminder(ctx context.Context, g *Gate)
	GateEscalated(ctx context.Context, g *Gate, previousAssignee string)
	GateTimedOut(ctx context.Context, g *Gate)
}

// NopNotifier discards all gate events.
type NopNotifier struct{}

func (NopNotifier) GateCreated(context.Context, *Gate)           {}
func (NopNotifier) GateReminder(context.Context, *Gate)          {}
func (NopNotifier) GateEscalated(context.Context, *Gate, string) {}
func (NopNotifier) GateTimedOut(context.Context, *Gate)          {}

// Engine creates gates, applies responses, and runs the SLA sweep. All
// mutations of one gate are serialized behind its keyed lock, so a sweep
// pass can never clobber a response landing on the same gate.
type Engine struct {
	store    Store
	notifier Notifier
	logger   *logging.Logger
	locks    *parallel.KeyedLocks
	now      func() time.Time
}

// NewEngine wires a gate engine. notifier may be nil.
func NewEngine(store Store, notifier Notifier, logger *logging.Logger) *Engine {
	if notifier == nil {
		notifier = NopNotifier{}
	}
	return &Engine{
		store:    store,
		notifier: notifier,
		logger:   logger,
		locks:    parallel.NewKeyedLocks(),
		now:      time.Now,
	}
}

// CreateInput describes a gate to open. Context is the bundle shown to the
// assignee alongside the question: candidate details, current state,
// whatever helps them decide.
type CreateInput struct {
	ExperimentID    string
	OutcomeID       string
	Type            Type
	Question        string
	Context         map[string]any
	Assignee        string
	EscalationChain []string
	SLAHours        float64
}

// Create opens a pending gate. A missing escalation chain defaults to empty
// and a missing SLA defaults to 24 hours.
func (e *Engine) Create(ctx context.Context, in CreateInput) (*Gate, error) {
	if in.Assignee == "" {
		return nil, errors.New(errors.ErrCodeInvalidInput, "gate requires an assignee")
	}
	switch in.Type {
	case TypePortfolio, TypeLaunch, TypeAnalysis, TypeScale:
	default:
		return nil, errors.New(errors.ErrCodeInvalidInput, "unknown gate type").
			WithContext("type", string(in.Type))
	}

	chain := in.EscalationChain
	if chain == nil {
		chain = []string{}
	}
	sla := in.SLAHours
	if sla <= 0 {
		sla = DefaultSLAHours
	}

	g := &Gate{
		ID:              ulid.Make().String(),
		ExperimentID:    in.ExperimentID,
		OutcomeID:       in.OutcomeID,
		Type:            in.Type,
		Question:        in.Question,
		Context:         in.Context,
		Assignee:        in.Assignee,
		EscalationChain: chain,
		SLAHours:        sla,
		Status:          StatusPending,
		CreatedAt:       e.now().UTC(),
	}
	if err := e.store.SaveGate(ctx, g); err != nil {
		return nil, errors.Wrap(err, errors.ErrCodeStorageWrite, "failed to save gate")
	}

	e.notifier.GateCreated(ctx, g)
	if e.logger != nil {
		e.logger.Log(logging.Event{
			Level:        logging.LevelInfo,
			Category:     logging.CategoryGate,
			EventType:    "gate_created",
			GateID:       g.ID,
			ExperimentID: g.ExperimentID,
			OutcomeID:    g.OutcomeID,
			Details:      map[string]any{"type": string(g.Type), "assignee": g.Assignee, "sla_hours": g.SLAHours},
		})
	}
	return g, nil
}

// Respond applies a human response to an open gate. Gates that already
// carry a decision reject further responses.
func (e *Engine) Respond(ctx context.Context, gateID string, resp Response) (*Gate, error) {
	release := e.locks.Acquire("gate:" + gateID)
	defer release()

	g, err := e.store.GetGate(ctx, gateID)
	if err != nil {
		return nil, err
	}
	if g == nil {
		return nil, errors.New(errors.ErrCodeNotFound, "gate not found").
			WithContext("gate_id", gateID)
	}
	if !g.IsOpen() {
		return nil, errors.New(errors.ErrCodeWrongState, "gate already resolved").
			WithContext("gate_id", gateID).
			WithContext("status", string(g.Status)).
			WithUserMessage("This gate has already been answered.")
	}
	if resp.By == "" {
		return nil, errors.New(errors.ErrCodeInvalidInput, "response requires a responder")
	}

	switch resp.Status {
	case StatusApproved, StatusRejected, StatusApprovedWithConditions:
	default:
		return nil, errors.New(errors.ErrCodeInvalidInput, "invalid response status").
			WithContext("status", string(resp.Status))
	}
	if resp.Status == StatusApprovedWithConditions && len(resp.Conditions) == 0 {
		return nil, errors.New(errors.ErrCodeInvalidInput, "conditional approval requires conditions")
	}
	if g.Type == TypeAnalysis && resp.Status != StatusRejected {
		switch resp.Decision {
		case experiment.DecisionShip, experiment.DecisionScale, experiment.DecisionIterate, experiment.DecisionKill:
		default:
			return nil, errors.New(errors.ErrCodeInvalidInput, "analysis gate approval requires a decision").
				WithContext("decision", string(resp.Decision))
		}
	}

	respondedAt := e.now().UTC()
	g.Status = resp.Status
	g.Response = &resp
	g.RespondedAt = &respondedAt
	if err := e.store.UpdateGate(ctx, g); err != nil {
		return nil, errors.Wrap(err, errors.ErrCodeStorageWrite, "failed to update gate")
	}

	if e.logger != nil {
		e.logger.Log(logging.Event{
			Level:        logging.LevelInfo,
			Category:     logging.CategoryGate,
			EventType:    "gate_responded",
			GateID:       g.ID,
			ExperimentID: g.ExperimentID,
			Details:      map[string]any{"status": string(g.Status), "by": resp.By, "decision": string(resp.Decision)},
		})
	}
	return g, nil
}

// SweepSLA runs one pass over all open gates, sending due reminders and
// escalating or timing out overdue ones. Per-gate errors are logged and the
// sweep continues.
func (e *Engine) SweepSLA(ctx context.Context) {
	gates, err := e.store.ListOpenGates(ctx)
	if err != nil {
		if e.logger != nil {
			e.logger.Error(logging.CategoryGate, "sla_sweep_failed", err.Error(), nil)
		}
		return
	}

	now := e.now().UTC()
	for _, g := range gates {
		e.sweepGate(ctx, g.ID, now)
	}
}

// sweepGate applies one SLA check to one gate. The gate is re-fetched under
// its keyed lock: the listing is a point-in-time snapshot, and a response
// landing between the list and this check must win.
func (e *Engine) sweepGate(ctx context.Context, gateID string, now time.Time) {
	release := e.locks.Acquire("gate:" + gateID)
	defer release()

	g, err := e.store.GetGate(ctx, gateID)
	if err != nil {
		e.logSweepError(&Gate{ID: gateID}, err)
		return
	}
	if g == nil || !g.IsOpen() {
		return
	}

	action := CheckSLA(g, now)
	switch {
	case action.TimeOut:
		g.Status = StatusTimedOut
		if err := e.store.UpdateGate(ctx, g); err != nil {
			e.logSweepError(g, err)
			return
		}
		e.notifier.GateTimedOut(ctx, g)
		e.logSweep(g, "gate_timed_out", nil)

	case action.ShouldEscalate:
		previous := g.Assignee
		g.Assignee = action.NextAssignee
		g.Status = StatusDelegated
		if err := e.store.UpdateGate(ctx, g); err != nil {
			e.logSweepError(g, err)
			return
		}
		e.notifier.GateEscalated(ctx, g, previous)
		e.logSweep(g, "gate_escalated", map[string]any{"from": previous, "to": g.Assignee})

	case action.ShouldRemind:
		remindedAt := now
		g.ReminderSentAt = &remindedAt
		if err := e.store.UpdateGate(ctx, g); err != nil {
			e.logSweepError(g, err)
			return
		}
		e.notifier.GateReminder(ctx, g)
		e.logSweep(g, "gate_reminder", map[string]any{"assignee": g.Assignee})
	}
}

func (e *Engine) logSweep(g *Gate, eventType string, details map[string]any) {
	if e.logger == nil {
		return
	}
	e.logger.Log(logging.Event{
		Level:        logging.LevelInfo,
		Category:     logging.CategoryGate,
		EventType:    eventType,
		GateID:       g.ID,
		ExperimentID: g.ExperimentID,
		Details:      details,
	})
}

func (e *Engine) logSweepError(g *Gate, err error) {
	if e.logger == nil {
		return
	}
	e.logger.Log(logging.Event{
		Level:     logging.LevelError,
		Category:  logging.CategoryGate,
		EventType: "sla_sweep_update_failed",
		GateID:    g.ID,
		Message:   err.Error(),
	})
}
