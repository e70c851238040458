package core

import (
	"errors"
	"math"
	"strings"
)

// FormatVersion tags the layout written by this module.
const FormatVersion = 1

// NeverTime is the "infinite future" timestamp. It marks PostponeTime as
// undefined and is what the timestamp getters return in a failed engine.
const NeverTime int64 = math.MaxInt64

// SigEventsDisabled disables the significant event criterion of the gate.
// Any negative threshold behaves the same way.
const SigEventsDisabled int64 = -1

// State is the persisted reminder state of one installation.
// Timestamps are Unix seconds.
type State struct {
	Version       int   `json:"version"`
	Rated         bool  `json:"rated"`
	Postponed     bool  `json:"postponed"`
	FirstLaunch   int64 `json:"first_launch"`
	PostponeTime  int64 `json:"postpone_time"`
	LaunchCount   int64 `json:"launch_count"`
	SigEventCount int64 `json:"sig_event_count"`
}

// NewState returns the state of a fresh installation first seen at now.
func NewState(now int64) State {
	return State{
		Version:      FormatVersion,
		FirstLaunch:  now,
		PostponeTime: NeverTime,
	}
}

// AddLaunch records one launch. Counters saturate instead of wrapping.
func (s *State) AddLaunch() {
	if next, err := AddSafe(s.LaunchCount, 1); err == nil {
		s.LaunchCount = next
	}
}

// AddSigEvent records one significant event.
func (s *State) AddSigEvent() {
	if next, err := AddSafe(s.SigEventCount, 1); err == nil {
		s.SigEventCount = next
	}
}

// SetPostponed sets the postponed flag. Postponing stamps PostponeTime with
// now; clearing it invalidates PostponeTime.
func (s *State) SetPostponed(v bool, now int64) {
	s.Postponed = v
	if v {
		s.PostponeTime = now
	} else {
		s.PostponeTime = NeverTime
	}
}

// PostponedAt returns PostponeTime, or NeverTime when the reminder is not postponed.
func (s State) PostponedAt() int64 {
	if !s.Postponed {
		return NeverTime
	}
	return s.PostponeTime
}

// Conditions are the runtime thresholds that open the gate. They are supplied
// by the host and never persisted.
type Conditions struct {
	// DaysInUse is the minimum age of the installation in days.
	DaysInUse float64 `json:"days_in_use"`
	// LaunchCount is the minimum number of launches.
	LaunchCount int64 `json:"launch_count"`
	// SigEventCount is the minimum number of significant events; negative disables it.
	SigEventCount int64 `json:"sig_event_count"`
	// DaysToPostpone is the cooldown after the user picks "remind me later".
	DaysToPostpone float64 `json:"days_to_postpone"`
}

// SigEventsEnabled reports whether the significant event criterion applies.
func (c Conditions) SigEventsEnabled() bool { return c.SigEventCount >= 0 }

// Validate rejects thresholds that can never be met or make no sense.
func (c Conditions) Validate() error {
	var errs []string
	if c.DaysInUse < 0 || math.IsNaN(c.DaysInUse) {
		errs = append(errs, "days_in_use must be >= 0")
	}
	if c.LaunchCount < 0 {
		errs = append(errs, "launch_count must be >= 0")
	}
	if c.DaysToPostpone < 0 || math.IsNaN(c.DaysToPostpone) {
		errs = append(errs, "days_to_postpone must be >= 0")
	}
	if len(errs) > 0 {
		return errors.New(strings.Join(errs, "; "))
	}
	return nil
}

// AddSafe adds delta to base ensuring no signed overflow occurs.
func AddSafe(base int64, delta int64) (int64, error) {
	if (delta > 0 && base > math.MaxInt64-delta) || (delta < 0 && base < math.MinInt64-delta) {
		return 0, errors.New("integer overflow in AddSafe")
	}
	return base + delta, nil
}
