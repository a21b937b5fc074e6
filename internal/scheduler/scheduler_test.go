package scheduler

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewRejectsNonPositiveInterval(t *testing.T) {
	_, err := New(0, time.Now())
	assert.Error(t, err)

	_, err = New(-time.Second, time.Now())
	assert.Error(t, err)
}

func TestShouldEmitCrossesAtInterval(t *testing.T) {
	start := time.Now()
	s, err := New(60*time.Second, start)
	require.NoError(t, err)

	assert.False(t, s.ShouldEmit(start))
	assert.False(t, s.ShouldEmit(start.Add(59*time.Second)))
	assert.False(t, s.ShouldEmit(start.Add(60*time.Second-time.Nanosecond)))
	assert.True(t, s.ShouldEmit(start.Add(60*time.Second)))
	assert.True(t, s.ShouldEmit(start.Add(90*time.Second)))
}

func TestShouldEmitIsPure(t *testing.T) {
	start := time.Now()
	s, err := New(10*time.Second, start)
	require.NoError(t, err)

	due := start.Add(15 * time.Second)
	assert.True(t, s.ShouldEmit(due))
	assert.True(t, s.ShouldEmit(due))
	assert.Equal(t, 15*time.Second, s.Elapsed(due))
}

func TestMarkEmittedResetsElapsed(t *testing.T) {
	start := time.Now()
	s, err := New(10*time.Second, start)
	require.NoError(t, err)

	emit := start.Add(12 * time.Second)
	require.Equal(t, Due, s.State(emit))

	s.MarkEmitted(emit)
	assert.Equal(t, time.Duration(0), s.Elapsed(emit))
	assert.Equal(t, Idle, s.State(emit))
	assert.False(t, s.ShouldEmit(emit.Add(9*time.Second)))
	assert.True(t, s.ShouldEmit(emit.Add(10*time.Second)))
}

// With ticks strictly shorter than the interval, emission fires once per
// interval and never on two consecutive ticks.
func TestSteadyCadenceEmitsOncePerInterval(t *testing.T) {
	tests := []struct {
		name     string
		interval time.Duration
		tick     time.Duration
		ticks    int
	}{
		{"10s ticks, 60s interval", 60 * time.Second, 10 * time.Second, 60},
		{"10s ticks, 10s+1ns interval", 10*time.Second + time.Nanosecond, 10 * time.Second, 50},
		{"7s ticks, 60s interval", 60 * time.Second, 7 * time.Second, 100},
		{"3s ticks, 10s interval", 10 * time.Second, 3 * time.Second, 40},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			start := time.Now()
			s, err := New(tt.interval, start)
			require.NoError(t, err)

			var emits []time.Time
			for i := 1; i <= tt.ticks; i++ {
				now := start.Add(time.Duration(i) * tt.tick)
				if s.ShouldEmit(now) {
					emits = append(emits, now)
					s.MarkEmitted(now)
				}
			}

			require.NotEmpty(t, emits)
			prev := start
			for _, e := range emits {
				gap := e.Sub(prev)
				assert.GreaterOrEqual(t, gap, tt.interval, "emitted before interval elapsed")
				assert.Less(t, gap, tt.interval+tt.tick, "skipped a due interval")
				prev = e
			}
		})
	}
}

func TestStateString(t *testing.T) {
	assert.Equal(t, "idle", Idle.String())
	assert.Equal(t, "due", Due.String())
}

func TestSystemClockIsMonotonic(t *testing.T) {
	a := SystemClock{}.Now()
	b := SystemClock{}.Now()
	assert.GreaterOrEqual(t, b.Sub(a), time.Duration(0))
}
