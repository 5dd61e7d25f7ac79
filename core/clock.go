package core

import "time"

// Clock supplies monotonic time to the receive path and the uptime tick.
type Clock interface {
	Now() time.Time
}

// Sleeper performs the blocking transceiver turnaround wait. It is a
// separate capability so tests can substitute it without touching timing
// behavior elsewhere.
type Sleeper interface {
	Sleep(d time.Duration)
}

type systemClock struct{}

func (systemClock) Now() time.Time { return time.Now() }

type systemSleeper struct{}

func (systemSleeper) Sleep(d time.Duration) { time.Sleep(d) }

// SystemClock returns the wall clock.
func SystemClock() Clock { return systemClock{} }

// SystemSleeper returns a Sleeper backed by time.Sleep.
func SystemSleeper() Sleeper { return systemSleeper{} }
