// Package scheduler decides when the next snapshot upload is due.
package scheduler

import (
	"fmt"
	"time"
)

// Clock supplies the current instant. Values returned by time.Now carry a
// monotonic reading, so intervals measured with Sub ignore wall-clock jumps.
type Clock interface {
	Now() time.Time
}

// SystemClock is the process clock.
type SystemClock struct{}

// Now returns time.Now().
func (SystemClock) Now() time.Time { return time.Now() }

// State is the scheduler's position in its two-state cycle.
type State int

const (
	// Idle means the interval has not yet elapsed since the last emission.
	Idle State = iota

	// Due means the interval has elapsed and an emission is expected.
	Due
)

func (s State) String() string {
	switch s {
	case Idle:
		return "idle"
	case Due:
		return "due"
	default:
		return fmt.Sprintf("State(%d)", int(s))
	}
}

// Scheduler tracks time since the last emitted snapshot.
// It is not safe for concurrent use; only the driving loop touches it.
type Scheduler struct {
	interval time.Duration
	lastEmit time.Time
}

// New returns a scheduler whose first interval starts at start.
func New(interval time.Duration, start time.Time) (*Scheduler, error) {
	if interval <= 0 {
		return nil, fmt.Errorf("upload interval must be positive, got %v", interval)
	}
	return &Scheduler{interval: interval, lastEmit: start}, nil
}

// Interval returns the configured emission interval.
func (s *Scheduler) Interval() time.Duration {
	return s.interval
}

// Elapsed returns the time since the last emission.
func (s *Scheduler) Elapsed(now time.Time) time.Duration {
	return now.Sub(s.lastEmit)
}

// ShouldEmit reports whether at least one interval has passed since the last emission.
func (s *Scheduler) ShouldEmit(now time.Time) bool {
	return s.Elapsed(now) >= s.interval
}

// State returns Due when ShouldEmit(now) holds, Idle otherwise.
func (s *Scheduler) State(now time.Time) State {
	if s.ShouldEmit(now) {
		return Due
	}
	return Idle
}

// MarkEmitted resets the elapsed time to zero at now. Call it once per
// accepted emission, after the snapshot has been dispatched.
func (s *Scheduler) MarkEmitted(now time.Time) {
	s.lastEmit = now
}
