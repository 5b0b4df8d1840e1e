package domain

import (
	"time"

	"github.com/jonboulle/clockwork"
)

// Taipei is the fixed +08:00 zone every announcement timestamp is expressed in.
// Taiwan has not observed DST since 1979, so a fixed zone avoids a tzdata dependency.
var Taipei = time.FixedZone("Asia/Taipei", 8*60*60)

// clock is a package-level time source so tests can freeze time via SetClock.
var clock = clockwork.NewRealClock()

// SetClock swaps the time source used for observation and backup timestamps.
// Pass nil to reset to real time.
func SetClock(c clockwork.Clock) {
	if c == nil {
		clock = clockwork.NewRealClock()
		return
	}
	clock = c
}

// Now returns the current time in the Taipei zone.
func Now() time.Time {
	return clock.Now().In(Taipei)
}
