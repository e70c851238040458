package core

// Response is the button the user picked in the reminder dialog.
type Response string

const (
	ResponseRateNow   Response = "rate_now"
	ResponseRateLater Response = "rate_later"
	ResponseNoThanks  Response = "no_thanks"
	ResponseUnknown   Response = "unknown"
)

// Button indexes in the order the dialog adds them.
const (
	ButtonRateNow = iota
	ButtonRateLater
	ButtonNoThanks
)

// ResponseFromIndex maps a selected button index to a Response.
func ResponseFromIndex(i int) Response {
	switch i {
	case ButtonRateNow:
		return ResponseRateNow
	case ButtonRateLater:
		return ResponseRateLater
	case ButtonNoThanks:
		return ResponseNoThanks
	default:
		return ResponseUnknown
	}
}

// ApplyResponse applies the state transition for r and returns the resulting
// event type. For ResponseRateNow the app is marked rated before openStore runs,
// so a process killed while the store is in front still counts as rated. If
// openStore fails the mark is rolled back and the reminder is postponed instead;
// the store error is returned.
func ApplyResponse(st *State, r Response, now int64, openStore func() error) (EventType, error) {
	switch r {
	case ResponseRateNow:
		st.Rated = true
		if openStore != nil {
			if err := openStore(); err != nil {
				st.Rated = false
				st.SetPostponed(true, now)
				return EventStoreOpenFailed, err
			}
		}
		st.SetPostponed(false, now)
		return EventRated, nil
	case ResponseRateLater:
		st.SetPostponed(true, now)
		return EventPostponed, nil
	case ResponseNoThanks:
		st.Rated = true
		st.SetPostponed(false, now)
		return EventDeclined, nil
	default:
		return EventUnknownSelection, nil
	}
}
