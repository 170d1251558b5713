// Package conflict detects live file-scope overlap between agents working
// on different experiments.
package conflict

import "time"

// Severity of a detected overlap.
type Severity string

const (
	// SeverityCritical means an identical path is open under another
	// experiment.
	SeverityCritical Severity = "critical"

	// SeverityWarning means a parent/child directory relationship with no
	// exact path collision.
	SeverityWarning Severity = "warning"
)

// TypeFileOverlap is currently the only conflict type.
const TypeFileOverlap = "file_overlap"

// Conflict records one detected overlap. Colliding experiment and agent ids
// are deduplicated into a single record covering all affected paths.
type Conflict struct {
	ID            string     `json:"id"`
	Type          string     `json:"type"`
	Severity      Severity   `json:"severity"`
	ExperimentIDs []string   `json:"experiment_ids"`
	AgentIDs      []string   `json:"agent_ids"`
	Paths         []string   `json:"paths"`
	Resolved      bool       `json:"resolved"`
	ResolvedBy    string     `json:"resolved_by,omitempty"`
	ResolvedAt    *time.Time `json:"resolved_at,omitempty"`
	DetectedAt    time.Time  `json:"detected_at"`
}
