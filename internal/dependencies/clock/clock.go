package clock

import "time"

// Clock provides the current time so tests can pin it
type Clock interface {
	Now() time.Time
}

// RealClock reads the system clock
type RealClock struct{}

// New creates a new RealClock
func New() *RealClock {
	return &RealClock{}
}

// Now returns the current time in UTC, so stored timestamps compare equal after a round trip
func (c *RealClock) Now() time.Time {
	return time.Now().UTC()
}
