package stats

import (
	"context"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/odvcencio/northstar/pkg/experiment"
	"github.com/odvcencio/northstar/pkg/logging"
	"github.com/odvcencio/northstar/pkg/outcome"
	"github.com/odvcencio/northstar/pkg/signal"
)

// Target is one running experiment the monitor polls.
type Target struct {
	ExperimentID string
	SignalName   string
	Plan         experiment.MeasurementPlan
	Direction    outcome.Direction
	Constraints  []Constraint
	LaunchedAt   time.Time
}

// TargetLister enumerates the experiments currently eligible for polling.
type TargetLister interface {
	MonitorTargets(ctx context.Context) ([]Target, error)
}

// MeasurementFeed returns the measurement stream for an experiment.
type MeasurementFeed interface {
	Measurements(ctx context.Context, experimentID string) ([]Measurement, error)
}

// KillFunc is invoked when the checker decides an experiment must die.
// Implementations apply the kill through the experiment state machine.
type KillFunc func(ctx context.Context, experimentID string, decision KillDecision) error

// Monitor periodically polls running experiments, evaluates significance
// and guardrail constraints, and fires the kill callback on violations.
type Monitor struct {
	lister   TargetLister
	feed     MeasurementFeed
	checker  *Checker
	onKill   KillFunc
	interval time.Duration
	logger   *logging.Logger
}

// NewMonitor wires a monitor. interval must be positive.
func NewMonitor(lister TargetLister, feed MeasurementFeed, checker *Checker, onKill KillFunc, interval time.Duration, logger *logging.Logger) *Monitor {
	if interval <= 0 {
		interval = time.Minute
	}
	return &Monitor{
		lister:   lister,
		feed:     feed,
		checker:  checker,
		onKill:   onKill,
		interval: interval,
		logger:   logger,
	}
}

// Run polls on a ticker until the context is cancelled. Each tick fans out
// across targets; one experiment's failure never blocks the others.
func (m *Monitor) Run(ctx context.Context) error {
	ticker := time.NewTicker(m.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			m.PollAll(ctx)
		}
	}
}

// PollAll runs one monitoring pass over every current target.
func (m *Monitor) PollAll(ctx context.Context) {
	targets, err := m.lister.MonitorTargets(ctx)
	if err != nil {
		if m.logger != nil {
			m.logger.Error(logging.CategoryStats, "target_list_failed", err.Error(), nil)
		}
		return
	}

	g, gctx := errgroup.WithContext(ctx)
	for _, t := range targets {
		t := t
		g.Go(func() error {
			m.Poll(gctx, t)
			return nil
		})
	}
	g.Wait()
}

// Poll evaluates a single experiment. Errors are logged, not returned: the
// monitor is best-effort and the next tick retries.
func (m *Monitor) Poll(ctx context.Context, t Target) {
	measurements, err := m.feed.Measurements(ctx, t.ExperimentID)
	if err != nil {
		if m.logger != nil {
			m.logger.Log(logging.Event{
				Level:        logging.LevelError,
				Category:     logging.CategoryStats,
				EventType:    "measurement_fetch_failed",
				ExperimentID: t.ExperimentID,
				Message:      err.Error(),
			})
		}
		return
	}

	decision := m.checker.Check(ctx, CheckInput{
		ExperimentID: t.ExperimentID,
		SignalName:   t.SignalName,
		Measurements: measurements,
		Plan:         t.Plan,
		Direction:    t.Direction,
		Constraints:  t.Constraints,
		Window:       signal.TimeRange{Start: t.LaunchedAt, End: time.Now()},
	})
	if !decision.Kill {
		return
	}

	if m.logger != nil {
		details := map[string]any{"reason": decision.Reason}
		if decision.Detail != nil {
			details["type"] = decision.Detail.Type
			details["signal"] = decision.Detail.Signal
			details["value"] = decision.Detail.Value
			details["limit"] = decision.Detail.Limit
		}
		m.logger.Log(logging.Event{
			Level:        logging.LevelWarn,
			Category:     logging.CategoryStats,
			EventType:    "auto_kill",
			ExperimentID: t.ExperimentID,
			Message:      decision.Reason,
			Details:      details,
		})
	}

	if m.onKill != nil {
		if err := m.onKill(ctx, t.ExperimentID, decision); err != nil && m.logger != nil {
			m.logger.Log(logging.Event{
				Level:        logging.LevelError,
				Category:     logging.CategoryStats,
				EventType:    "kill_apply_failed",
				ExperimentID: t.ExperimentID,
				Message:      err.Error(),
			})
		}
	}
}
