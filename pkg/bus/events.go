package bus

import (
	"context"
	"encoding/json"
	"time"
)

// Canonical subjects for coordination events.
const (
	SubjectExperimentState  = "northstar.experiment.state"
	SubjectExperimentKilled = "northstar.experiment.killed"
	SubjectGateOpened       = "northstar.gate.opened"
	SubjectGateResolved     = "northstar.gate.resolved"
	SubjectConflictDetected = "northstar.conflict.detected"
	SubjectOutcomeState     = "northstar.outcome.state"

	// SubjectPing is the request/reply subject the daemon answers for
	// liveness checks over the bus.
	SubjectPing = "northstar.ping"
)

// ExperimentStateEvent announces an experiment FSM transition.
type ExperimentStateEvent struct {
	ExperimentID string    `json:"experiment_id"`
	OutcomeID    string    `json:"outcome_id"`
	From         string    `json:"from"`
	To           string    `json:"to"`
	Event        string    `json:"event"`
	At           time.Time `json:"at"`
}

// KillEvent announces an automatic or manual kill.
type KillEvent struct {
	ExperimentID string    `json:"experiment_id"`
	Reason       string    `json:"reason"`
	Type         string    `json:"type,omitempty"`
	Signal       string    `json:"signal,omitempty"`
	Value        float64   `json:"value,omitempty"`
	Limit        float64   `json:"limit,omitempty"`
	At           time.Time `json:"at"`
}

// GateEvent announces gate creation or resolution.
type GateEvent struct {
	GateID       string    `json:"gate_id"`
	ExperimentID string    `json:"experiment_id"`
	Type         string    `json:"type"`
	Status       string    `json:"status"`
	Assignee     string    `json:"assignee"`
	At           time.Time `json:"at"`
}

// ConflictEvent announces a detected file-scope conflict.
type ConflictEvent struct {
	ConflictID    string    `json:"conflict_id"`
	Severity      string    `json:"severity"`
	ExperimentIDs []string  `json:"experiment_ids"`
	Paths         []string  `json:"paths"`
	At            time.Time `json:"at"`
}

// OutcomeStateEvent announces an outcome FSM transition.
type OutcomeStateEvent struct {
	OutcomeID string    `json:"outcome_id"`
	From      string    `json:"from"`
	To        string    `json:"to"`
	At        time.Time `json:"at"`
}

// PingReply answers a liveness request on SubjectPing.
type PingReply struct {
	Name    string    `json:"name"`
	Version string    `json:"version"`
	Started time.Time `json:"started"`
	At      time.Time `json:"at"`
}

// PublishJSON marshals an event and publishes it on the subject. Best
// effort: callers treat failures as reportable, never fatal.
func PublishJSON(ctx context.Context, b MessageBus, subject string, event any) error {
	if b == nil {
		return nil
	}
	data, err := json.Marshal(event)
	if err != nil {
		return err
	}
	return b.Publish(ctx, subject, data)
}
