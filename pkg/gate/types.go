// Package gate implements human decision checkpoints: creation with SLA
// defaults, response handling, and the reminder/escalation sweep.
package gate

import (
	"time"

	"github.com/odvcencio/northstar/pkg/experiment"
)

// Type names which checkpoint in the experiment lifecycle a gate guards.
type Type string

const (
	TypePortfolio Type = "portfolio"
	TypeLaunch    Type = "launch"
	TypeAnalysis  Type = "analysis"
	TypeScale     Type = "scale"
)

// Status of a gate. Pending is the only state that accepts responses.
type Status string

const (
	StatusPending                Status = "pending"
	StatusApproved               Status = "approved"
	StatusRejected               Status = "rejected"
	StatusApprovedWithConditions Status = "approved_with_conditions"
	StatusDelegated              Status = "delegated"
	StatusTimedOut               Status = "timed_out"
)

// Response is a human's answer to a pending gate.
type Response struct {
	By         string              `json:"by"`
	Status     Status              `json:"status"`
	Decision   experiment.Decision `json:"decision,omitempty"`
	Conditions []string            `json:"conditions,omitempty"`
	Comment    string              `json:"comment,omitempty"`
}

// Gate is one decision checkpoint assigned to a human.
type Gate struct {
	ID              string         `json:"id"`
	ExperimentID    string         `json:"experiment_id"`
	OutcomeID       string         `json:"outcome_id"`
	Type            Type           `json:"type"`
	Question        string         `json:"question"`
	Context         map[string]any `json:"context,omitempty"`
	Assignee        string         `json:"assignee"`
	EscalationChain []string       `json:"escalation_chain"`
	SLAHours        float64        `json:"sla_hours"`
	Status          Status         `json:"status"`
	CreatedAt       time.Time      `json:"created_at"`
	ReminderSentAt  *time.Time     `json:"reminder_sent_at,omitempty"`
	RespondedAt     *time.Time     `json:"responded_at,omitempty"`
	Response        *Response      `json:"response,omitempty"`
}

// IsOpen reports whether the gate still accepts a response. Delegated gates
// stay open under their new assignee.
func (g *Gate) IsOpen() bool {
	return g.Status == StatusPending || g.Status == StatusDelegated
}

// Deadline is the moment the gate's SLA expires.
func (g *Gate) Deadline() time.Time {
	return g.CreatedAt.Add(time.Duration(g.SLAHours * float64(time.Hour)))
}
