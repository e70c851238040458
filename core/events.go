package core

import "time"

// EventType enumerates engine events.
type EventType string

const (
	EventLaunched         EventType = "launched"
	EventSignificant      EventType = "significant_event"
	EventGateEvaluated    EventType = "gate_evaluated"
	EventPromptShown      EventType = "prompt_shown"
	EventRated            EventType = "rated"
	EventPostponed        EventType = "postponed"
	EventDeclined         EventType = "declined"
	EventStoreOpenFailed  EventType = "store_open_failed"
	EventPromptFailed     EventType = "prompt_failed"
	EventStorageFailed    EventType = "storage_failed"
	EventPlatformFailed   EventType = "platform_failed"
	EventUnknownSelection EventType = "unknown_selection"
)

// Event represents an immutable engine event.
type Event struct {
	Type     EventType      `json:"type"`
	Time     time.Time      `json:"time"`
	Decision *Decision      `json:"decision,omitempty"`
	Response Response       `json:"response,omitempty"`
	State    *State         `json:"state,omitempty"`
	Error    string         `json:"error,omitempty"`
	Metadata map[string]any `json:"metadata,omitempty"`
}

func NewCounted(typ EventType, st State) Event {
	return Event{Type: typ, Time: time.Now().UTC(), State: &st}
}

func NewGateEvaluated(d Decision) Event {
	return Event{Type: EventGateEvaluated, Time: time.Now().UTC(), Decision: &d}
}

func NewResponded(typ EventType, r Response, st State) Event {
	return Event{Type: typ, Time: time.Now().UTC(), Response: r, State: &st}
}

func NewFailure(typ EventType, err error) Event {
	ev := Event{Type: typ, Time: time.Now().UTC()}
	if err != nil {
		ev.Error = err.Error()
	}
	return ev
}
