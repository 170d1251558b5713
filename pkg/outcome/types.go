// Package outcome models measurable business goals and their lifecycle.
package outcome

import "time"

// Direction indicates which way a signal should move for the outcome to count
// as progress.
type Direction string

const (
	DirectionIncrease Direction = "increase"
	DirectionDecrease Direction = "decrease"
)

// Signal describes where and how the outcome's metric is measured.
type Signal struct {
	Source string `json:"source"`
	Metric string `json:"metric"`
	Method string `json:"method,omitempty"`
}

// Target defines what the signal has to do for the outcome to be achieved.
type Target struct {
	Direction          Direction `json:"direction"`
	Threshold          float64   `json:"threshold"`
	ConfidenceRequired float64   `json:"confidence_required"`
}

// Outcome is a measurable business goal driving a pool of experiments.
type Outcome struct {
	ID                       string     `json:"id"`
	Name                     string     `json:"name"`
	Owner                    string     `json:"owner"`
	Signal                   Signal     `json:"signal"`
	Target                   Target     `json:"target"`
	MaxConcurrentExperiments int        `json:"max_concurrent_experiments"`
	Status                   Status     `json:"status"`
	CreatedAt                time.Time  `json:"created_at"`
	ActivatedAt              *time.Time `json:"activated_at,omitempty"`
	AchievedAt               *time.Time `json:"achieved_at,omitempty"`
	ConcludedAt              *time.Time `json:"concluded_at,omitempty"`
}

// Status captures lifecycle state for an outcome.
type Status string

const (
	StatusDraft     Status = "draft"
	StatusActive    Status = "active"
	StatusAchieved  Status = "achieved"
	StatusAbandoned Status = "abandoned"
	StatusExpired   Status = "expired"
)

// IsTerminal reports whether the status admits no further transitions.
func (s Status) IsTerminal() bool {
	switch s {
	case StatusAchieved, StatusAbandoned, StatusExpired:
		return true
	}
	return false
}
