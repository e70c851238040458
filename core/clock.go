package core

import "time"

// SecondsPerDay is the divisor used for every "days since" computation.
// The calendar value is used; older builds divided by 86500.
const SecondsPerDay = 86400

// DaysSince returns the fractional number of days between t and now, both Unix
// seconds. It is negative when t lies in the future. The difference is taken
// in float64 so extreme timestamps cannot wrap around.
func DaysSince(t, now int64) float64 {
	return (float64(now) - float64(t)) / SecondsPerDay
}

// Clock returns the current time. Tests substitute a fixed clock.
type Clock func() time.Time

// Unix returns the clock reading in Unix seconds, falling back to time.Now.
func (c Clock) Unix() int64 {
	if c == nil {
		return time.Now().Unix()
	}
	return c().Unix()
}

// FixedClock returns a Clock that always reports t.
func FixedClock(t time.Time) Clock { return func() time.Time { return t } }
