package domain

import (
	"time"

	"github.com/jonboulle/clockwork"
)

// clock stamps CreatedAt on persisted records. Tests freeze it via SetClock.
var clock = clockwork.NewRealClock()

// SetClock swaps the time source used for record creation times. Pass nil to
// reset to real time.
func SetClock(c clockwork.Clock) {
	if c == nil {
		clock = clockwork.NewRealClock()
		return
	}
	clock = c
}

// Now returns the current time from the package clock, truncated to the second.
func Now() time.Time {
	return clock.Now().UTC().Truncate(time.Second)
}
