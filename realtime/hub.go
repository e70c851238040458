package realtime

import (
	"context"
	"sync"
	"sync/atomic"

	"github.com/goccy/go-json"

	"appraisekit/core"
	"appraisekit/engine"
)

// Hub fans engine events out to channel subscribers such as WebSocket clients.
// Slow subscribers lose events rather than block the engine.
type Hub struct {
	mu      sync.RWMutex
	subs    map[int]subscriber
	next    int
	dropped atomic.Int64
}

type subscriber struct {
	ch    chan core.Event
	types map[core.EventType]bool
}

func (s subscriber) wants(t core.EventType) bool {
	return len(s.types) == 0 || s.types[t]
}

func NewHub() *Hub { return &Hub{subs: map[int]subscriber{}} }

// Subscribe returns a buffered channel receiving events of the given types,
// or of every type when none are given.
func (h *Hub) Subscribe(buffer int, types ...core.EventType) (int, <-chan core.Event) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.next++
	id := h.next
	s := subscriber{ch: make(chan core.Event, buffer)}
	if len(types) > 0 {
		s.types = make(map[core.EventType]bool, len(types))
		for _, t := range types {
			s.types[t] = true
		}
	}
	h.subs[id] = s
	return id, s.ch
}

func (h *Hub) Unsubscribe(id int) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if s, ok := h.subs[id]; ok {
		delete(h.subs, id)
		close(s.ch)
	}
}

// Len returns the number of live subscribers.
func (h *Hub) Len() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.subs)
}

// Dropped returns how many deliveries were skipped because a subscriber was full.
func (h *Hub) Dropped() int64 { return h.dropped.Load() }

func (h *Hub) Broadcast(_ context.Context, ev core.Event) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	// sends never block, so holding the read lock keeps Unsubscribe from
	// closing a channel mid-send
	for _, s := range h.subs {
		if !s.wants(ev.Type) {
			continue
		}
		select {
		case s.ch <- ev:
		default:
			h.dropped.Add(1)
		}
	}
}

// Attach forwards every event published on bus to the hub.
func (h *Hub) Attach(bus *engine.EventBus) (detach func()) {
	return bus.SubscribeAll(h.Broadcast)
}

// MarshalJSON is a helper to convert events to JSON bytes for WebSocket/SSE.
func MarshalJSON(ev core.Event) []byte {
	b, _ := json.Marshal(ev)
	return b
}
