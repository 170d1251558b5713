package outcome

import (
	"time"

	"github.com/odvcencio/northstar/pkg/errors"
)

// Event is a lifecycle event applied to an outcome.
type Event string

const (
	EventActivate Event = "ACTIVATE"
	EventAchieve  Event = "ACHIEVE"
	EventAbandon  Event = "ABANDON"
	EventExpire   Event = "EXPIRE"
)

// Guard validates an outcome before a transition is allowed.
type Guard func(o *Outcome) error

// Action mutates an outcome as part of a committed transition.
type Action func(o *Outcome, now time.Time)

// Transition carries the target status plus the side effects applied when the
// transition commits.
type Transition struct {
	To      Status
	Guard   Guard
	Actions []Action
}

// hasSignalConfig stands in for full signal validation: an outcome needs at
// least a metric identifier before it can go live.
func hasSignalConfig(o *Outcome) error {
	if o.Signal.Metric == "" {
		return errors.New(errors.ErrCodeInvalidInput, "outcome has no signal metric configured").
			WithContext("outcome", o.ID)
	}
	return nil
}

func stampActivated(o *Outcome, now time.Time) {
	t := now
	o.ActivatedAt = &t
}

func stampAchieved(o *Outcome, now time.Time) {
	t := now
	o.AchievedAt = &t
	o.ConcludedAt = &t
}

func stampConcluded(o *Outcome, now time.Time) {
	t := now
	o.ConcludedAt = &t
}

// transitions is the outcome lifecycle table. Events absent from the current
// status row are rejected and leave the outcome unchanged.
var transitions = map[Status]map[Event]Transition{
	StatusDraft: {
		EventActivate: {
			To:      StatusActive,
			Guard:   hasSignalConfig,
			Actions: []Action{stampActivated},
		},
	},
	StatusActive: {
		EventAchieve: {
			To:      StatusAchieved,
			Actions: []Action{stampAchieved},
		},
		EventAbandon: {
			To:      StatusAbandoned,
			Actions: []Action{stampConcluded},
		},
		EventExpire: {
			To:      StatusExpired,
			Actions: []Action{stampConcluded},
		},
	},
}

// Apply drives the outcome through one lifecycle event. On rejection the
// outcome is left exactly as it was.
func Apply(o *Outcome, event Event, now time.Time) error {
	if o == nil {
		return errors.New(errors.ErrCodeInvalidInput, "outcome is nil")
	}

	row, ok := transitions[o.Status]
	if !ok {
		return errors.New(errors.ErrCodeWrongState, "outcome is in a terminal state").
			WithContext("outcome", o.ID).
			WithContext("status", string(o.Status)).
			WithContext("event", string(event))
	}

	tr, ok := row[event]
	if !ok {
		return errors.New(errors.ErrCodeEventRejected, "event not valid for current status").
			WithContext("outcome", o.ID).
			WithContext("status", string(o.Status)).
			WithContext("event", string(event))
	}

	if tr.Guard != nil {
		if err := tr.Guard(o); err != nil {
			return err
		}
	}

	o.Status = tr.To
	for _, action := range tr.Actions {
		action(o, now)
	}
	return nil
}

// CanApply reports whether the event would be accepted without applying it.
// Guard failures count as not applicable.
func CanApply(o *Outcome, event Event) bool {
	if o == nil {
		return false
	}
	row, ok := transitions[o.Status]
	if !ok {
		return false
	}
	tr, ok := row[event]
	if !ok {
		return false
	}
	if tr.Guard != nil && tr.Guard(o) != nil {
		return false
	}
	return true
}
