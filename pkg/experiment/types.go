// Package experiment models admitted hypotheses and their lifecycle from
// build through launch, measurement, and the final ship/scale/iterate/kill
// decision.
package experiment

import "time"

// RiskLevel grades how dangerous an intervention is to run in production.
type RiskLevel string

const (
	RiskLow    RiskLevel = "low"
	RiskMedium RiskLevel = "medium"
	RiskHigh   RiskLevel = "high"
)

// Prediction is the falsifiable claim a candidate makes about its signal.
type Prediction struct {
	Signal        string  `json:"signal"`
	ExpectedDelta float64 `json:"expected_delta"`
	DeltaLow      float64 `json:"delta_low"`
	DeltaHigh     float64 `json:"delta_high"`
	Confidence    float64 `json:"confidence"`
}

// MeasurementPlan defines how long and how carefully an experiment measures.
type MeasurementPlan struct {
	DurationHours      int     `json:"duration_hours"`
	MinSampleSize      int     `json:"min_sample_size"`
	ConfidenceRequired float64 `json:"confidence_required"`
	SuccessThreshold   float64 `json:"success_threshold"`
	KillThreshold      float64 `json:"kill_threshold"`
}

// RolloutPlan describes how the intervention reaches traffic.
type RolloutPlan struct {
	Strategy       string   `json:"strategy"`
	InitialPercent float64  `json:"initial_percent"`
	Steps          []string `json:"steps,omitempty"`
}

// Candidate is a scored-but-not-yet-admitted hypothesis produced by an
// external generation collaborator. It is untrusted input: validate before
// scoring.
type Candidate struct {
	Title           string          `json:"title"`
	Hypothesis      string          `json:"hypothesis"`
	Prediction      Prediction      `json:"prediction"`
	Intervention    string          `json:"intervention"`
	MeasurementPlan MeasurementPlan `json:"measurement_plan"`
	RolloutPlan     RolloutPlan     `json:"rollout_plan"`
	EffortHours     float64         `json:"effort_hours"`
	Risk            RiskLevel       `json:"risk"`
	Reversible      bool            `json:"reversible"`
	AffectedFiles   []string        `json:"affected_files,omitempty"`
	SubProblemID    string          `json:"sub_problem_id,omitempty"`
}

// Experiment is the admitted, running unit. It is retained as history after
// reaching a terminal state.
type Experiment struct {
	ID          string     `json:"id"`
	OutcomeID   string     `json:"outcome_id"`
	Candidate   Candidate  `json:"candidate"`
	State       State      `json:"state"`
	LaunchedAt  *time.Time `json:"launched_at,omitempty"`
	ConcludedAt *time.Time `json:"concluded_at,omitempty"`
	KillReason  string     `json:"kill_reason,omitempty"`
	FailReason  string     `json:"fail_reason,omitempty"`
	CreatedAt   time.Time  `json:"created_at"`
}

// State captures lifecycle state for an experiment.
type State string

const (
	StateHypothesis        State = "hypothesis"
	StateAwaitingPortfolio State = "awaiting_portfolio_gate"
	StateBuilding          State = "building"
	StateAwaitingLaunch    State = "awaiting_launch_gate"
	StateRunning           State = "running"
	StateMeasuring         State = "measuring"
	StateAwaitingAnalysis  State = "awaiting_analysis_gate"
	StateScaling           State = "scaling"
	StateAwaitingScaleGate State = "awaiting_scale_gate"
	StateShipped           State = "shipped"
	StateFailedBuild       State = "failed_build"
	StateKilled            State = "killed"
)

// IsTerminal reports whether the state admits no further transitions.
func (s State) IsTerminal() bool {
	switch s {
	case StateShipped, StateFailedBuild, StateKilled:
		return true
	}
	return false
}

// Decision is the analysis-gate verdict fanned out by the transition table.
type Decision string

const (
	DecisionShip    Decision = "ship"
	DecisionScale   Decision = "scale"
	DecisionIterate Decision = "iterate"
	DecisionKill    Decision = "kill"
)
