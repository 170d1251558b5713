// Package notify delivers human-facing notifications for the
// experiment-coordination workflow: gate assignments, SLA reminders,
// escalations, and auto-kill reports. Channels are best effort; a failed
// delivery never blocks or rolls back the state change that triggered it.
package notify

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/odvcencio/northstar/pkg/gate"
	"github.com/odvcencio/northstar/pkg/logging"
)

// EventType defines the type of notification event.
type EventType string

const (
	// EventGateOpened is sent when a gate is created and assigned.
	EventGateOpened EventType = "gate_opened"

	// EventGateReminder is sent when a gate passes half its SLA unanswered.
	EventGateReminder EventType = "gate_reminder"

	// EventGateEscalated is sent when an overdue gate moves down its chain.
	EventGateEscalated EventType = "gate_escalated"

	// EventGateTimedOut is sent when an overdue gate exhausts its chain.
	EventGateTimedOut EventType = "gate_timed_out"

	// EventKill is sent when the monitor kills an experiment.
	EventKill EventType = "experiment_killed"
)

// Event is a notification event.
type Event struct {
	ID           string         `json:"id"`
	Type         EventType      `json:"type"`
	GateID       string         `json:"gate_id,omitempty"`
	ExperimentID string         `json:"experiment_id,omitempty"`
	OutcomeID    string         `json:"outcome_id,omitempty"`
	Assignee     string         `json:"assignee,omitempty"`
	Title        string         `json:"title"`
	Message      string         `json:"message"`
	Metadata     map[string]any `json:"metadata,omitempty"`
	Timestamp    time.Time      `json:"timestamp"`
}

// Adapter sends notifications to a specific channel (Slack, Telegram, NATS).
type Adapter interface {
	// Name returns the adapter name
	Name() string

	// Send sends a notification
	Send(ctx context.Context, event *Event) error

	// Close closes the adapter
	Close() error
}

// Manager fans notifications out to all configured adapters. It implements
// gate.Notifier so the gate engine can talk to it directly.
type Manager struct {
	adapters []Adapter
	logger   *logging.Logger
}

// NewManager creates a notification manager.
func NewManager(logger *logging.Logger, adapters ...Adapter) *Manager {
	return &Manager{adapters: adapters, logger: logger}
}

// Notify sends a notification via all configured adapters. The last
// delivery error is returned but every adapter gets its attempt.
func (m *Manager) Notify(ctx context.Context, event *Event) error {
	var lastErr error
	for _, adapter := range m.adapters {
		if err := adapter.Send(ctx, event); err != nil {
			lastErr = fmt.Errorf("%s: %w", adapter.Name(), err)
			if m.logger != nil {
				m.logger.Warn(logging.CategoryNotify, "delivery_failed", err.Error(),
					map[string]any{"adapter": adapter.Name(), "event": string(event.Type)})
			}
		}
	}
	return lastErr
}

// notify fires and forgets; gate.Notifier callbacks must never fail.
func (m *Manager) notify(ctx context.Context, event *Event) {
	_ = m.Notify(ctx, event)
}

// GateCreated implements gate.Notifier.
func (m *Manager) GateCreated(ctx context.Context, g *gate.Gate) {
	m.notify(ctx, &Event{
		ID:           newEventID(),
		Type:         EventGateOpened,
		GateID:       g.ID,
		ExperimentID: g.ExperimentID,
		OutcomeID:    g.OutcomeID,
		Assignee:     g.Assignee,
		Title:        fmt.Sprintf("%s gate awaiting your decision", g.Type),
		Message:      g.Question,
		Metadata:     map[string]any{"sla_hours": g.SLAHours},
		Timestamp:    time.Now().UTC(),
	})
}

// GateReminder implements gate.Notifier.
func (m *Manager) GateReminder(ctx context.Context, g *gate.Gate) {
	m.notify(ctx, &Event{
		ID:           newEventID(),
		Type:         EventGateReminder,
		GateID:       g.ID,
		ExperimentID: g.ExperimentID,
		Assignee:     g.Assignee,
		Title:        fmt.Sprintf("Reminder: %s gate still open", g.Type),
		Message:      fmt.Sprintf("Gate %s has used over half its SLA. Deadline: %s.", g.ID, g.Deadline().Format(time.RFC3339)),
		Timestamp:    time.Now().UTC(),
	})
}

// GateEscalated implements gate.Notifier.
func (m *Manager) GateEscalated(ctx context.Context, g *gate.Gate, previousAssignee string) {
	m.notify(ctx, &Event{
		ID:           newEventID(),
		Type:         EventGateEscalated,
		GateID:       g.ID,
		ExperimentID: g.ExperimentID,
		Assignee:     g.Assignee,
		Title:        fmt.Sprintf("%s gate escalated to you", g.Type),
		Message:      fmt.Sprintf("Gate %s was not answered by %s within its SLA.", g.ID, previousAssignee),
		Metadata:     map[string]any{"previous_assignee": previousAssignee},
		Timestamp:    time.Now().UTC(),
	})
}

// GateTimedOut implements gate.Notifier.
func (m *Manager) GateTimedOut(ctx context.Context, g *gate.Gate) {
	m.notify(ctx, &Event{
		ID:           newEventID(),
		Type:         EventGateTimedOut,
		GateID:       g.ID,
		ExperimentID: g.ExperimentID,
		Assignee:     g.Assignee,
		Title:        fmt.Sprintf("%s gate timed out", g.Type),
		Message:      fmt.Sprintf("Gate %s exhausted its escalation chain without a decision.", g.ID),
		Timestamp:    time.Now().UTC(),
	})
}

// ExperimentKilled reports an auto-kill to all channels.
func (m *Manager) ExperimentKilled(ctx context.Context, experimentID, reason string, detail map[string]any) {
	m.notify(ctx, &Event{
		ID:           newEventID(),
		Type:         EventKill,
		ExperimentID: experimentID,
		Title:        "Experiment killed",
		Message:      reason,
		Metadata:     detail,
		Timestamp:    time.Now().UTC(),
	})
}

// Close closes all adapters.
func (m *Manager) Close() error {
	var lastErr error
	for _, adapter := range m.adapters {
		if err := adapter.Close(); err != nil {
			lastErr = err
		}
	}
	return lastErr
}

func newEventID() string {
	return "evt-" + uuid.NewString()
}

// JSON helpers
func (e *Event) JSON() []byte {
	data, _ := json.Marshal(e)
	return data
}

func ParseEvent(data []byte) (*Event, error) {
	var e Event
	if err := json.Unmarshal(data, &e); err != nil {
		return nil, err
	}
	return &e, nil
}
