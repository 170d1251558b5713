package orchestrator

import (
	"context"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/odvcencio/northstar/pkg/gate"
)

var (
	metricCandidatesAdmitted = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "northstar",
		Name:      "candidates_admitted_total",
		Help:      "Candidates admitted into the portfolio and turned into experiments.",
	})
	metricCandidatesRejected = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "northstar",
		Name:      "candidates_rejected_total",
		Help:      "Candidates rejected by validation before scoring.",
	})
	metricExperimentsKilled = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "northstar",
		Name:      "experiments_killed_total",
		Help:      "Experiments killed automatically or by gate decision.",
	})
	metricExperimentsShipped = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "northstar",
		Name:      "experiments_shipped_total",
		Help:      "Experiments that reached the shipped state.",
	})
	metricGatesOpened = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "northstar",
		Name:      "gates_opened_total",
		Help:      "Decision gates created.",
	})
	metricConflictsDetected = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "northstar",
		Name:      "conflicts_detected_total",
		Help:      "File-scope conflicts detected between experiments.",
	})
	metricGatesEscalated = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "northstar",
		Name:      "gates_escalated_total",
		Help:      "Gates reassigned down the escalation chain by the SLA sweep.",
	})
	metricGateReminders = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "northstar",
		Name:      "gate_reminders_total",
		Help:      "SLA reminders sent for open gates.",
	})
	metricActiveExperiments = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: "northstar",
		Name:      "active_experiments",
		Help:      "Experiments currently in a non-terminal state.",
	})
)

func recordAdmission(count int) {
	if count > 0 {
		metricCandidatesAdmitted.Add(float64(count))
		metricActiveExperiments.Add(float64(count))
	}
}

func recordRejection(count int) {
	if count > 0 {
		metricCandidatesRejected.Add(float64(count))
	}
}

func recordKill() {
	metricExperimentsKilled.Inc()
	metricActiveExperiments.Dec()
}

func recordShipped() {
	metricExperimentsShipped.Inc()
	metricActiveExperiments.Dec()
}

func recordFailedBuild() {
	metricActiveExperiments.Dec()
}

func recordGateOpened() {
	metricGatesOpened.Inc()
}

func recordConflict() {
	metricConflictsDetected.Inc()
}

// InstrumentGateNotifier wraps a gate notifier so SLA reminders and
// escalations feed the counters. next may be nil; events are then counted
// and otherwise dropped.
func InstrumentGateNotifier(next gate.Notifier) gate.Notifier {
	if next == nil {
		next = gate.NopNotifier{}
	}
	return &instrumentedGateNotifier{next: next}
}

type instrumentedGateNotifier struct {
	next gate.Notifier
}

func (n *instrumentedGateNotifier) GateCreated(ctx context.Context, g *gate.Gate) {
	n.next.GateCreated(ctx, g)
}

func (n *instrumentedGateNotifier) GateReminder(ctx context.Context, g *gate.Gate) {
	metricGateReminders.Inc()
	n.next.GateReminder(ctx, g)
}

func (n *instrumentedGateNotifier) GateEscalated(ctx context.Context, g *gate.Gate, previousAssignee string) {
	metricGatesEscalated.Inc()
	n.next.GateEscalated(ctx, g, previousAssignee)
}

func (n *instrumentedGateNotifier) GateTimedOut(ctx context.Context, g *gate.Gate) {
	n.next.GateTimedOut(ctx, g)
}
