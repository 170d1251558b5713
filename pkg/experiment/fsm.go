package experiment

import (
	"time"

	"github.com/odvcencio/northstar/pkg/errors"
)

// Event is a lifecycle event applied to an experiment.
type Event string

const (
	EventSubmit                Event = "SUBMIT"
	EventPortfolioGateApproved Event = "PORTFOLIO_GATE_APPROVED"
	EventPortfolioGateRejected Event = "PORTFOLIO_GATE_REJECTED"
	EventBuildSucceeded        Event = "BUILD_SUCCEEDED"
	EventBuildFailed           Event = "BUILD_FAILED"
	EventLaunchGateApproved    Event = "LAUNCH_GATE_APPROVED"
	EventLaunchGateRejected    Event = "LAUNCH_GATE_REJECTED"
	EventBeginMeasuring        Event = "BEGIN_MEASURING"
	EventMeasurementComplete   Event = "MEASUREMENT_COMPLETE"
	EventAnalysisGateApproved  Event = "ANALYSIS_GATE_APPROVED"
	EventScaleReady            Event = "SCALE_READY"
	EventScaleGateApproved     Event = "SCALE_GATE_APPROVED"
	EventScaleGateRejected     Event = "SCALE_GATE_REJECTED"
	EventKill                  Event = "KILL"
)

// Input carries an event plus its payload: the analysis decision for
// ANALYSIS_GATE_APPROVED, a reason string for kill/fail transitions.
type Input struct {
	Event    Event
	Decision Decision
	Reason   string
}

// Action mutates an experiment as part of a committed transition.
type Action func(e *Experiment, in Input, now time.Time)

// Transition carries the target state plus side effects. Decision-carrying
// events set Decisions instead of To; the decision selects the branch from
// the table, never from code.
type Transition struct {
	To        State
	Decisions map[Decision]Transition
	Actions   []Action
}

func stampLaunched(e *Experiment, _ Input, now time.Time) {
	t := now
	e.LaunchedAt = &t
}

func stampConcluded(e *Experiment, _ Input, now time.Time) {
	t := now
	e.ConcludedAt = &t
}

func setKillReason(e *Experiment, in Input, _ time.Time) {
	reason := in.Reason
	if reason == "" {
		reason = "killed"
	}
	e.KillReason = reason
}

func setFailReason(e *Experiment, in Input, _ time.Time) {
	reason := in.Reason
	if reason == "" {
		reason = "build failed"
	}
	e.FailReason = reason
}

// killTransition is shared by every edge into the killed state.
var killTransition = Transition{
	To:      StateKilled,
	Actions: []Action{setKillReason, stampConcluded},
}

// transitions is the experiment lifecycle table. The ANALYSIS_GATE_APPROVED
// fan-out is data in the Decisions map so all four branches are auditable in
// one place.
var transitions = map[State]map[Event]Transition{
	StateHypothesis: {
		EventSubmit: {To: StateAwaitingPortfolio},
	},
	StateAwaitingPortfolio: {
		EventPortfolioGateApproved: {To: StateBuilding},
		EventPortfolioGateRejected: killTransition,
		EventKill:                  killTransition,
	},
	StateBuilding: {
		EventBuildSucceeded: {To: StateAwaitingLaunch},
		EventBuildFailed: {
			To:      StateFailedBuild,
			Actions: []Action{setFailReason, stampConcluded},
		},
	},
	StateAwaitingLaunch: {
		EventLaunchGateApproved: {
			To:      StateRunning,
			Actions: []Action{stampLaunched},
		},
		EventLaunchGateRejected: killTransition,
		EventKill:               killTransition,
	},
	StateRunning: {
		EventBeginMeasuring: {To: StateMeasuring},
		EventKill:           killTransition,
	},
	StateMeasuring: {
		EventMeasurementComplete: {To: StateAwaitingAnalysis},
		EventKill:                killTransition,
	},
	StateAwaitingAnalysis: {
		EventAnalysisGateApproved: {
			Decisions: map[Decision]Transition{
				DecisionShip: {
					To:      StateShipped,
					Actions: []Action{stampConcluded},
				},
				DecisionScale:   {To: StateScaling},
				DecisionIterate: {To: StateRunning},
				DecisionKill:    killTransition,
			},
		},
	},
	StateScaling: {
		EventScaleReady: {To: StateAwaitingScaleGate},
		EventKill:       killTransition,
	},
	StateAwaitingScaleGate: {
		EventScaleGateApproved: {
			To:      StateShipped,
			Actions: []Action{stampConcluded},
		},
		EventScaleGateRejected: killTransition,
	},
}

// Apply drives the experiment through one lifecycle event. On rejection the
// experiment is left exactly as it was. Callers serialize per experiment;
// Apply itself does no locking.
func Apply(e *Experiment, in Input, now time.Time) error {
	if e == nil {
		return errors.New(errors.ErrCodeInvalidInput, "experiment is nil")
	}

	row, ok := transitions[e.State]
	if !ok {
		return errors.New(errors.ErrCodeWrongState, "experiment is in a terminal state").
			WithContext("experiment", e.ID).
			WithContext("state", string(e.State)).
			WithContext("event", string(in.Event))
	}

	tr, ok := row[in.Event]
	if !ok {
		return errors.New(errors.ErrCodeEventRejected, "event not valid for current state").
			WithContext("experiment", e.ID).
			WithContext("state", string(e.State)).
			WithContext("event", string(in.Event))
	}

	if tr.Decisions != nil {
		branch, ok := tr.Decisions[in.Decision]
		if !ok {
			return errors.New(errors.ErrCodeInvalidInput, "unknown analysis decision").
				WithContext("experiment", e.ID).
				WithContext("decision", string(in.Decision))
		}
		tr = branch
	}

	e.State = tr.To
	for _, action := range tr.Actions {
		action(e, in, now)
	}
	return nil
}

// KillableStates lists the states the statistical monitor or a constraint
// violation may pre-empt into killed.
func KillableStates() []State {
	states := make([]State, 0, len(transitions))
	for state, row := range transitions {
		if _, ok := row[EventKill]; ok {
			states = append(states, state)
		}
	}
	return states
}

// CanKill reports whether a KILL event is accepted in the given state.
func CanKill(s State) bool {
	row, ok := transitions[s]
	if !ok {
		return false
	}
	_, ok = row[EventKill]
	return ok
}
