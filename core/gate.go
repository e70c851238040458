package core

import "fmt"

// Reason explains a gate decision.
type Reason string

const (
	ReasonOpen            Reason = "open"
	ReasonForced          Reason = "forced_open"
	ReasonNoConditions    Reason = "no_conditions"
	ReasonRated           Reason = "already_rated"
	ReasonTooFewLaunches  Reason = "too_few_launches"
	ReasonTooYoung        Reason = "too_few_days_in_use"
	ReasonTooFewSigEvents Reason = "too_few_significant_events"
	ReasonPostponed       Reason = "postpone_cooldown"
	ReasonOffline         Reason = "offline"
	ReasonNotRunning      Reason = "not_running"
)

// Decision is the outcome of a gate evaluation.
type Decision struct {
	Open   bool   `json:"open"`
	Reason Reason `json:"reason"`
	Detail string `json:"detail,omitempty"`
}

func closed(r Reason, format string, args ...any) Decision {
	return Decision{Reason: r, Detail: fmt.Sprintf(format, args...)}
}

// Check is one step of the gate. It returns ok=false with the closing decision
// when the step fails.
type Check interface {
	Check(st State, c Conditions, now int64) (Decision, bool)
}

// CheckFunc adapts a function to Check.
type CheckFunc func(st State, c Conditions, now int64) (Decision, bool)

func (f CheckFunc) Check(st State, c Conditions, now int64) (Decision, bool) { return f(st, c, now) }

// RatedCheck closes the gate permanently once the app was rated or declined.
var RatedCheck = CheckFunc(func(st State, _ Conditions, _ int64) (Decision, bool) {
	if st.Rated {
		return closed(ReasonRated, "app has already been rated"), false
	}
	return Decision{}, true
})

// LaunchCheck requires the configured number of launches.
var LaunchCheck = CheckFunc(func(st State, c Conditions, _ int64) (Decision, bool) {
	if st.LaunchCount < c.LaunchCount {
		return closed(ReasonTooFewLaunches, "launches %d < %d", st.LaunchCount, c.LaunchCount), false
	}
	return Decision{}, true
})

// DaysInUseCheck requires the installation to be at least DaysInUse days old.
var DaysInUseCheck = CheckFunc(func(st State, c Conditions, now int64) (Decision, bool) {
	if days := DaysSince(st.FirstLaunch, now); days < c.DaysInUse {
		return closed(ReasonTooYoung, "days in use %.2f < %.2f", days, c.DaysInUse), false
	}
	return Decision{}, true
})

// SigEventCheck requires the configured number of significant events unless disabled.
var SigEventCheck = CheckFunc(func(st State, c Conditions, _ int64) (Decision, bool) {
	if c.SigEventsEnabled() && st.SigEventCount < c.SigEventCount {
		return closed(ReasonTooFewSigEvents, "significant events %d < %d", st.SigEventCount, c.SigEventCount), false
	}
	return Decision{}, true
})

// PostponeCheck holds the gate closed during the cooldown after a postpone.
var PostponeCheck = CheckFunc(func(st State, c Conditions, now int64) (Decision, bool) {
	if !st.Postponed {
		return Decision{}, true
	}
	if days := DaysSince(st.PostponeTime, now); days < c.DaysToPostpone {
		return closed(ReasonPostponed, "days since postpone %.2f < %.2f", days, c.DaysToPostpone), false
	}
	return Decision{}, true
})

// DefaultChecks is the fixed evaluation order of the gate.
func DefaultChecks() []Check {
	return []Check{RatedCheck, LaunchCheck, DaysInUseCheck, SigEventCheck, PostponeCheck}
}

// Evaluate runs the gate. A nil conditions pointer keeps the gate closed. The
// online probe is consulted last, only when every other check passed.
func Evaluate(st State, c *Conditions, now int64, online func() bool) Decision {
	if c == nil {
		return closed(ReasonNoConditions, "no reminder conditions have been set")
	}
	for _, chk := range DefaultChecks() {
		if d, ok := chk.Check(st, *c, now); !ok {
			return d
		}
	}
	if online == nil || !online() {
		return closed(ReasonOffline, "network is not available")
	}
	return Decision{Open: true, Reason: ReasonOpen}
}
