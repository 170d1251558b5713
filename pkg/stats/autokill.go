package stats

import (
	"context"

	"github.com/odvcencio/northstar/pkg/experiment"
	"github.com/odvcencio/northstar/pkg/logging"
	"github.com/odvcencio/northstar/pkg/outcome"
	"github.com/odvcencio/northstar/pkg/signal"
)

// Constraint is a guardrail bound on a secondary signal. A nil Min or Max
// means that side is unbounded.
type Constraint struct {
	Signal  string   `json:"signal" yaml:"signal"`
	Min     *float64 `json:"min,omitempty" yaml:"min,omitempty"`
	Max     *float64 `json:"max,omitempty" yaml:"max,omitempty"`
	Segment string   `json:"segment,omitempty" yaml:"segment,omitempty"`
}

// Violation types carried in a kill decision's detail.
const (
	KillTypeThreshold  = "kill_threshold"
	KillTypeConstraint = "constraint_violation"
)

// KillDetail pins down what tripped the kill.
type KillDetail struct {
	Type   string  `json:"type"`
	Signal string  `json:"signal"`
	Value  float64 `json:"value"`
	Limit  float64 `json:"limit"`
}

// KillDecision is the checker's verdict for one experiment poll.
type KillDecision struct {
	Kill   bool
	Reason string
	Detail *KillDetail
	Result Result
}

// Checker evaluates one experiment's measurement stream plus its guardrail
// constraints and decides whether the experiment should be killed.
type Checker struct {
	source signal.Source
	logger *logging.Logger
}

// NewChecker builds a checker. source may be nil when no constraints use
// secondary signals.
func NewChecker(source signal.Source, logger *logging.Logger) *Checker {
	return &Checker{source: source, logger: logger}
}

// CheckInput bundles everything a single check needs.
type CheckInput struct {
	ExperimentID string
	SignalName   string
	Measurements []Measurement
	Plan         experiment.MeasurementPlan
	Direction    outcome.Direction
	Constraints  []Constraint
	Window       signal.TimeRange
}

// Check evaluates significance first, then guardrail constraints in order.
// A fetch failure on a constraint's signal is treated as "no violation":
// killing on missing data would let a flaky metrics backend take down
// healthy experiments. The failure is logged so operators can see the gap.
func (c *Checker) Check(ctx context.Context, in CheckInput) KillDecision {
	res := Evaluate(in.Measurements, in.Plan, in.Direction)
	decision := KillDecision{Result: res}

	if res.ExceedsKillThreshold && res.EstimatedDelta != nil {
		decision.Kill = true
		decision.Reason = "primary signal crossed kill threshold"
		decision.Detail = &KillDetail{
			Type:   KillTypeThreshold,
			Signal: in.SignalName,
			Value:  *res.EstimatedDelta,
			Limit:  in.Plan.KillThreshold,
		}
		return decision
	}

	if c.source == nil {
		return decision
	}
	for _, con := range in.Constraints {
		sample, err := c.source.FetchMetric(ctx, con.Signal, in.Window, con.Segment)
		if err != nil {
			if c.logger != nil {
				c.logger.Log(logging.Event{
					Level:        logging.LevelWarn,
					Category:     logging.CategoryStats,
					EventType:    "constraint_fetch_failed",
					ExperimentID: in.ExperimentID,
					Message:      "skipping constraint check: " + err.Error(),
					Details:      map[string]any{"signal": con.Signal},
				})
			}
			continue
		}
		if con.Min != nil && sample.Value < *con.Min {
			decision.Kill = true
			decision.Reason = "guardrail constraint violated"
			decision.Detail = &KillDetail{
				Type:   KillTypeConstraint,
				Signal: con.Signal,
				Value:  sample.Value,
				Limit:  *con.Min,
			}
			return decision
		}
		if con.Max != nil && sample.Value > *con.Max {
			decision.Kill = true
			decision.Reason = "guardrail constraint violated"
			decision.Detail = &KillDetail{
				Type:   KillTypeConstraint,
				Signal: con.Signal,
				Value:  sample.Value,
				Limit:  *con.Max,
			}
			return decision
		}
	}
	return decision
}
