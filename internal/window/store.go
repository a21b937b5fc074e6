// Package window provides the bounded per-sensor reading history.
package window

import (
	"fmt"
	"sync"
	"time"

	"github.com/cisco/edge-temperature-pipeline/pkg/models"
)

// LatestOnly is the capacity that keeps just the most recent reading per sensor.
const LatestOnly = 1

// RetentionPolicy selects how many readings each sensor window keeps.
type RetentionPolicy struct {
	Capacity int
}

// Validate reports whether the policy can back a store.
func (p RetentionPolicy) Validate() error {
	if p.Capacity < 1 {
		return fmt.Errorf("window capacity must be >= 1, got %d", p.Capacity)
	}
	return nil
}

// Store keeps, per sensor, an oldest-first window of at most Capacity readings.
// Windows are created on the first Record for a sensor and never removed.
// It is safe for concurrent use by multiple goroutines.
type Store struct {
	mu       sync.RWMutex
	capacity int
	windows  map[models.SensorID][]models.Reading
	order    []models.SensorID
}

// NewStore creates an empty store for the given retention policy.
func NewStore(policy RetentionPolicy) (*Store, error) {
	if err := policy.Validate(); err != nil {
		return nil, err
	}
	return &Store{
		capacity: policy.Capacity,
		windows:  make(map[models.SensorID][]models.Reading),
	}, nil
}

// Record appends a reading to the sensor's window, evicting the oldest reading
// when the window would exceed capacity. Eviction and append happen under one
// lock so readers never observe the intermediate state.
func (s *Store) Record(sensor models.SensorID, value float64, ts time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()

	buf, exists := s.windows[sensor]
	if !exists {
		s.order = append(s.order, sensor)
	}
	if len(buf) >= s.capacity {
		// shift in place; a full window is never reallocated
		n := copy(buf, buf[len(buf)-s.capacity+1:])
		buf = buf[:n]
	}
	s.windows[sensor] = append(buf, models.Reading{Value: value, Timestamp: ts})
}

// Latest returns the most recent reading for the sensor, or false if it was never recorded.
func (s *Store) Latest(sensor models.SensorID) (models.Reading, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	buf := s.windows[sensor]
	if len(buf) == 0 {
		return models.Reading{}, false
	}
	return buf[len(buf)-1], true
}

// Window returns a copy of the sensor's retained readings, oldest first.
// The result is nil for an unseen sensor.
func (s *Store) Window(sensor models.SensorID) []models.Reading {
	s.mu.RLock()
	defer s.mu.RUnlock()

	buf := s.windows[sensor]
	if len(buf) == 0 {
		return nil
	}
	out := make([]models.Reading, len(buf))
	copy(out, buf)
	return out
}

// Len returns the number of readings retained for the sensor.
func (s *Store) Len(sensor models.SensorID) int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.windows[sensor])
}

// KnownSensors returns the sensors with data in first-seen order.
func (s *Store) KnownSensors() []models.SensorID {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]models.SensorID, 0, len(s.order))
	for _, id := range s.order {
		if len(s.windows[id]) > 0 {
			out = append(out, id)
		}
	}
	return out
}

// Capacity returns the configured per-sensor window bound.
func (s *Store) Capacity() int {
	return s.capacity
}

// View calls fn for every sensor with data, in first-seen order, while holding
// the read lock, so all windows come from one consistent state. fn must not
// retain or modify the slice and must not call back into the store.
func (s *Store) View(fn func(sensor models.SensorID, window []models.Reading)) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	for _, id := range s.order {
		if buf := s.windows[id]; len(buf) > 0 {
			fn(id, buf)
		}
	}
}

// Stats summarizes the store contents.
type Stats struct {
	Sensors  int `json:"sensors"`
	Readings int `json:"readings"`
	Capacity int `json:"capacity"`
}

// Stats returns the number of sensors and retained readings.
func (s *Store) Stats() Stats {
	s.mu.RLock()
	defer s.mu.RUnlock()

	st := Stats{Capacity: s.capacity}
	for _, buf := range s.windows {
		if len(buf) > 0 {
			st.Sensors++
			st.Readings += len(buf)
		}
	}
	return st
}
