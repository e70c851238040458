package analytics

import (
	"context"
	"sync"
	"time"

	"appraisekit/core"
	"appraisekit/engine"
)

// Hook receives engine events.
type Hook interface {
	OnEvent(e core.Event)
}

// HookFunc adapts a function to Hook.
type HookFunc func(e core.Event)

func (f HookFunc) OnEvent(e core.Event) { f(e) }

// Attach subscribes h to every event published on bus.
func Attach(bus *engine.EventBus, h Hook) (detach func()) {
	return bus.SubscribeAll(func(_ context.Context, e core.Event) { h.OnEvent(e) })
}

// PromptStats counts reminder outcomes and gate decisions.
type PromptStats struct {
	mu       sync.Mutex
	counts   map[core.EventType]int64
	reasons  map[core.Reason]int64
	shownBy  map[string]int64
	lastSeen time.Time
}

func NewPromptStats() *PromptStats {
	return &PromptStats{
		counts:  map[core.EventType]int64{},
		reasons: map[core.Reason]int64{},
		shownBy: map[string]int64{},
	}
}

func (s *PromptStats) OnEvent(e core.Event) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.counts[e.Type]++
	if e.Type == core.EventGateEvaluated && e.Decision != nil {
		s.reasons[e.Decision.Reason]++
	}
	if e.Type == core.EventPromptShown {
		s.shownBy[dayKey(e.Time)]++
	}
	if e.Time.After(s.lastSeen) {
		s.lastSeen = e.Time
	}
}

// Count returns how many events of typ were seen.
func (s *PromptStats) Count(typ core.EventType) int64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.counts[typ]
}

// Reasons returns a copy of the gate decision histogram.
func (s *PromptStats) Reasons() map[core.Reason]int64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make(map[core.Reason]int64, len(s.reasons))
	for k, v := range s.reasons {
		out[k] = v
	}
	return out
}

// ShownOn returns how many prompts were shown on day (YYYY-MM-DD, UTC).
func (s *PromptStats) ShownOn(day string) int64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.shownBy[day]
}

// Snapshot is a point-in-time summary of PromptStats.
type Snapshot struct {
	Launches       int64                 `json:"launches"`
	SigEvents      int64                 `json:"significant_events"`
	Evaluations    int64                 `json:"gate_evaluations"`
	Shown          int64                 `json:"prompts_shown"`
	Rated          int64                 `json:"rated"`
	Postponed      int64                 `json:"postponed"`
	Declined       int64                 `json:"declined"`
	StoreFailures  int64                 `json:"store_open_failures"`
	PromptFailures int64                 `json:"prompt_failures"`
	ConversionRate float64               `json:"conversion_rate"`
	Reasons        map[core.Reason]int64 `json:"reasons"`
	LastEvent      time.Time             `json:"last_event"`
}

// Snapshot summarizes the counters. ConversionRate is rated over shown.
func (s *PromptStats) Snapshot() Snapshot {
	s.mu.Lock()
	snap := Snapshot{
		Launches:       s.counts[core.EventLaunched],
		SigEvents:      s.counts[core.EventSignificant],
		Evaluations:    s.counts[core.EventGateEvaluated],
		Shown:          s.counts[core.EventPromptShown],
		Rated:          s.counts[core.EventRated],
		Postponed:      s.counts[core.EventPostponed],
		Declined:       s.counts[core.EventDeclined],
		StoreFailures:  s.counts[core.EventStoreOpenFailed],
		PromptFailures: s.counts[core.EventPromptFailed],
		LastEvent:      s.lastSeen,
	}
	s.mu.Unlock()
	snap.Reasons = s.Reasons()
	if snap.Shown > 0 {
		snap.ConversionRate = float64(snap.Rated) / float64(snap.Shown)
	}
	return snap
}

func dayKey(t time.Time) string { return t.UTC().Format("2006-01-02") }
