package gate

import "time"

// DefaultSLAHours applies when a gate is created without an explicit SLA.
const DefaultSLAHours = 24.0

// SLAAction is what CheckSLA says should happen to a gate right now.
type SLAAction struct {
	ShouldRemind   bool
	IsOverdue      bool
	ShouldEscalate bool

	// NextAssignee is set when ShouldEscalate is true and somebody in the
	// escalation chain can still take the gate.
	NextAssignee string

	// TimeOut is set when the gate is overdue and the chain is exhausted
	// (or was never configured).
	TimeOut bool
}

// CheckSLA inspects an open gate against the clock. It is a pure function;
// the engine applies whatever it recommends.
//
// Below half the SLA nothing happens. From half onward a single reminder is
// due. Past the full SLA the gate escalates one hop down the chain per
// check; when the chain is exhausted the gate times out.
func CheckSLA(g *Gate, now time.Time) SLAAction {
	var action SLAAction
	if !g.IsOpen() {
		return action
	}

	sla := time.Duration(g.SLAHours * float64(time.Hour))
	if sla <= 0 {
		sla = time.Duration(DefaultSLAHours * float64(time.Hour))
	}
	elapsed := now.Sub(g.CreatedAt)

	if elapsed < sla/2 {
		return action
	}

	if elapsed < sla {
		action.ShouldRemind = g.ReminderSentAt == nil
		return action
	}

	action.IsOverdue = true
	action.ShouldEscalate = true
	if next, ok := nextInChain(g.EscalationChain, g.Assignee); ok {
		action.NextAssignee = next
	} else {
		action.TimeOut = true
	}
	return action
}

// nextInChain finds who takes the gate after the current assignee. An
// assignee not in the chain hands off to the chain's head.
func nextInChain(chain []string, current string) (string, bool) {
	if len(chain) == 0 {
		return "", false
	}
	for i, member := range chain {
		if member == current {
			if i+1 < len(chain) {
				return chain[i+1], true
			}
			return "", false
		}
	}
	return chain[0], true
}
