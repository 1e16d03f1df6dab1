// Package clock provides the free-running monotonic counter used to stamp
// edge events. Instants are tick counts of a 16 MHz timer and are unrelated
// to wall-clock time.
package clock

import (
	"fmt"
	"sync/atomic"
	"time"
)

// TickRate is the counter frequency in Hz.
const TickRate = 16_000_000

// Instant is a point on the monotonic counter, in ticks since the clock started.
type Instant uint64

// String renders the instant as "<ticks> ticks @ (1/16000000)".
func (i Instant) String() string {
	return fmt.Sprintf("%d ticks @ (1/%d)", uint64(i), TickRate)
}

// Since returns the time elapsed from earlier to i.
// It returns 0 if earlier is after i.
func (i Instant) Since(earlier Instant) time.Duration {
	if earlier > i {
		return 0
	}
	return TicksToDuration(uint64(i - earlier))
}

// TicksToDuration converts a tick count to a duration.
func TicksToDuration(ticks uint64) time.Duration {
	// 1 tick = 62.5ns
	return time.Duration(ticks * 125 / 2)
}

// DurationToTicks converts a duration to a tick count, truncating.
func DurationToTicks(d time.Duration) uint64 {
	if d < 0 {
		return 0
	}
	return uint64(d) * 2 / 125
}

// Monotonic supplies non-decreasing instants.
// Now must be safe to call from interrupt context: no blocking, no allocation.
type Monotonic interface {
	Now() Instant
}

// System is a Monotonic backed by the Go runtime's monotonic clock.
type System struct {
	epoch time.Time
}

// NewSystem starts a counter at zero.
func NewSystem() *System {
	return &System{epoch: time.Now()}
}

// Now returns the ticks elapsed since NewSystem.
func (s *System) Now() Instant {
	return Instant(DurationToTicks(time.Since(s.epoch)))
}

// Fake is a Monotonic for tests. Each call to Now returns the current value
// and then advances it by Step.
type Fake struct {
	ticks atomic.Uint64
	Step  uint64
}

// NewFake creates a Fake starting at start that advances step ticks per read.
func NewFake(start Instant, step uint64) *Fake {
	f := &Fake{Step: step}
	f.ticks.Store(uint64(start))
	return f
}

// Now returns the current fake instant and advances it.
func (f *Fake) Now() Instant {
	return Instant(f.ticks.Add(f.Step) - f.Step)
}

// Set moves the fake clock to i.
func (f *Fake) Set(i Instant) {
	f.ticks.Store(uint64(i))
}
