package chrono

import (
	"time"
)

var jst = time.FixedZone("JST", 9*60*60)

// JST returns the [*time.Location] the platform reports times in.
func JST() *time.Location {
	return jst
}

// TimeAPI is the interface that anything depending on the system clock should use.
//
// note: fault injection point
type TimeAPI interface {
	// Now returns the current time in JST.
	Now() time.Time
	// After returns a channel that receives once d has elapsed, d <= 0 fires immediately.
	// Callers select on it together with a context so the wait stays cancellable.
	After(d time.Duration) <-chan time.Time
}

// StandardTime is the standard implementation of TimeAPI using the standard library.
type StandardTime struct{}

// NewStandardTime is the constructor of StandardTime.
func NewStandardTime() StandardTime {
	return StandardTime{}
}

func (StandardTime) Now() time.Time {
	return time.Now().In(jst)
}

func (StandardTime) After(d time.Duration) <-chan time.Time {
	return time.After(d)
}
