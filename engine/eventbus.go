package engine

import (
	"context"
	"sync"
	"sync/atomic"

	"appraisekit/core"
)

type DispatchMode int

const (
	DispatchSync DispatchMode = iota
	DispatchAsync
)

// anyEvent subscribes to every event type.
const anyEvent core.EventType = "*"

type subscription struct {
	id int64
	fn func(context.Context, core.Event)
}

// EventBus fans engine events out to subscribers, either inline or through a
// small worker pool. Prompting is synchronous, so the engine defaults to sync.
type EventBus struct {
	mode       DispatchMode
	mu         sync.RWMutex
	subs       map[core.EventType]map[int64]subscription
	nextID     int64
	asyncQueue chan core.Event
	workers    sync.WaitGroup
	closeOnce  sync.Once
	done       chan struct{}
	dropped    atomic.Int64
}

func NewEventBus(mode DispatchMode) *EventBus {
	eb := &EventBus{
		mode: mode,
		subs: make(map[core.EventType]map[int64]subscription),
		done: make(chan struct{}),
	}
	if mode == DispatchAsync {
		eb.asyncQueue = make(chan core.Event, 256)
		eb.startWorkers(2)
	}
	return eb
}

func (e *EventBus) startWorkers(n int) {
	for i := 0; i < n; i++ {
		e.workers.Add(1)
		go func() {
			defer e.workers.Done()
			for {
				select {
				case ev := <-e.asyncQueue:
					e.dispatch(context.Background(), ev)
				case <-e.done:
					return
				}
			}
		}()
	}
}

// Close stops async workers and waits for them to exit. Safe to call twice.
func (e *EventBus) Close() {
	e.closeOnce.Do(func() {
		close(e.done)
		e.workers.Wait()
	})
}

// Dropped returns how many async events were discarded because the queue was full.
func (e *EventBus) Dropped() int64 { return e.dropped.Load() }

// Subscribe registers a handler for an event type. Returns unsubscribe func.
func (e *EventBus) Subscribe(typ core.EventType, handler func(context.Context, core.Event)) func() {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.nextID++
	id := e.nextID
	if e.subs[typ] == nil {
		e.subs[typ] = make(map[int64]subscription)
	}
	e.subs[typ][id] = subscription{id: id, fn: handler}
	return func() {
		e.mu.Lock()
		defer e.mu.Unlock()
		if m := e.subs[typ]; m != nil {
			delete(m, id)
		}
	}
}

// SubscribeAll registers a handler for every event type.
func (e *EventBus) SubscribeAll(handler func(context.Context, core.Event)) func() {
	return e.Subscribe(anyEvent, handler)
}

// Publish sends an event to subscribers. In async mode a full queue drops the event.
func (e *EventBus) Publish(ctx context.Context, ev core.Event) {
	if e.mode == DispatchAsync {
		select {
		case <-e.done:
			e.dropped.Add(1)
			return
		default:
		}
		select {
		case e.asyncQueue <- ev:
		default:
			e.dropped.Add(1)
		}
		return
	}
	e.dispatch(ctx, ev)
}

func (e *EventBus) dispatch(ctx context.Context, ev core.Event) {
	e.mu.RLock()
	handlers := make([]func(context.Context, core.Event), 0, len(e.subs[ev.Type])+len(e.subs[anyEvent]))
	for _, s := range e.subs[ev.Type] {
		handlers = append(handlers, s.fn)
	}
	for _, s := range e.subs[anyEvent] {
		handlers = append(handlers, s.fn)
	}
	e.mu.RUnlock()
	for _, h := range handlers {
		h(ctx, ev)
	}
}
