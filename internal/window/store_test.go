package window

import (
	"math/rand"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cisco/edge-temperature-pipeline/pkg/models"
)

func values(readings []models.Reading) []float64 {
	out := make([]float64, len(readings))
	for i, r := range readings {
		out[i] = r.Value
	}
	return out
}

func newTestStore(t *testing.T, capacity int) *Store {
	t.Helper()
	s, err := NewStore(RetentionPolicy{Capacity: capacity})
	require.NoError(t, err)
	return s
}

func TestNewStoreRejectsInvalidCapacity(t *testing.T) {
	for _, capacity := range []int{0, -1} {
		s, err := NewStore(RetentionPolicy{Capacity: capacity})
		assert.Error(t, err)
		assert.Nil(t, s)
	}
}

func TestWindowNeverExceedsCapacity(t *testing.T) {
	rng := rand.New(rand.NewSource(42))
	for _, capacity := range []int{1, 2, 6, 17} {
		s := newTestStore(t, capacity)
		for i := 0; i < 200; i++ {
			s.Record("s1", rng.Float64()*40, time.Now())
			require.LessOrEqual(t, s.Len("s1"), capacity)
			require.Len(t, s.Window("s1"), min(i+1, capacity))
		}
	}
}

func TestFIFOEviction(t *testing.T) {
	s := newTestStore(t, 3)
	for i := 1; i <= 4; i++ {
		s.Record("s1", float64(i), time.Unix(int64(i), 0))
	}

	w := s.Window("s1")
	assert.Equal(t, []float64{2, 3, 4}, values(w))
	assert.Equal(t, time.Unix(2, 0), w[0].Timestamp)
}

func TestScenarioSixReadingWindow(t *testing.T) {
	s := newTestStore(t, 6)
	for _, v := range []float64{21, 22, 23, 24, 25, 26, 27} {
		s.Record("s1", v, time.Now())
	}

	assert.Equal(t, []float64{22, 23, 24, 25, 26, 27}, values(s.Window("s1")))
}

func TestLatestOnlyCapacity(t *testing.T) {
	s := newTestStore(t, LatestOnly)
	s.Record("s1", 20, time.Now())
	s.Record("s1", 25, time.Now())

	assert.Equal(t, []float64{25}, values(s.Window("s1")))
	latest, ok := s.Latest("s1")
	require.True(t, ok)
	assert.Equal(t, 25.0, latest.Value)
}

func TestLatestAbsentForUnseenSensor(t *testing.T) {
	s := newTestStore(t, 6)
	s.Record("s1", 0, time.Now())

	_, ok := s.Latest("s3")
	assert.False(t, ok)
	assert.Empty(t, s.Window("s3"))
	assert.Equal(t, 0, s.Len("s3"))

	// a measured zero is data, not absence
	latest, ok := s.Latest("s1")
	require.True(t, ok)
	assert.Equal(t, 0.0, latest.Value)
}

func TestSensorsAreIndependent(t *testing.T) {
	s := newTestStore(t, 2)
	s.Record("s1", 1, time.Now())
	s.Record("s2", 10, time.Now())
	s.Record("s2", 11, time.Now())
	s.Record("s2", 12, time.Now())

	assert.Equal(t, []float64{1}, values(s.Window("s1")))
	assert.Equal(t, []float64{11, 12}, values(s.Window("s2")))
}

func TestWindowReturnsCopy(t *testing.T) {
	s := newTestStore(t, 3)
	s.Record("s1", 1, time.Now())

	w := s.Window("s1")
	w[0].Value = 99

	latest, _ := s.Latest("s1")
	assert.Equal(t, 1.0, latest.Value)
}

func TestKnownSensorsFirstSeenOrder(t *testing.T) {
	s := newTestStore(t, 6)
	assert.Empty(t, s.KnownSensors())

	s.Record("s3", 1, time.Now())
	s.Record("s1", 1, time.Now())
	s.Record("s3", 2, time.Now())
	s.Record("s2", 1, time.Now())

	assert.Equal(t, models.SensorIDs("s3", "s1", "s2"), s.KnownSensors())
}

func TestViewVisitsEverySensor(t *testing.T) {
	s := newTestStore(t, 2)
	s.Record("s1", 1, time.Now())
	s.Record("s2", 2, time.Now())
	s.Record("s2", 3, time.Now())

	seen := map[models.SensorID][]float64{}
	s.View(func(id models.SensorID, w []models.Reading) {
		seen[id] = values(w)
	})

	assert.Equal(t, map[models.SensorID][]float64{"s1": {1}, "s2": {2, 3}}, seen)
}

func TestStats(t *testing.T) {
	s := newTestStore(t, 2)
	s.Record("s1", 1, time.Now())
	s.Record("s1", 2, time.Now())
	s.Record("s1", 3, time.Now())
	s.Record("s2", 1, time.Now())

	assert.Equal(t, Stats{Sensors: 2, Readings: 3, Capacity: 2}, s.Stats())
}

// Readers must only ever see consecutive values: a window caught between
// eviction and append would show a gap or a short window.
func TestConcurrentRecordAndRead(t *testing.T) {
	const capacity = 6
	const writes = 5000
	s := newTestStore(t, capacity)

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		for i := 1; i <= writes; i++ {
			s.Record("s1", float64(i), time.Now())
		}
	}()

	for r := 0; r < 4; r++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := 0; i < writes; i++ {
				w := s.Window("s1")
				if len(w) == 0 {
					continue
				}
				last := w[len(w)-1].Value
				if last >= capacity && len(w) != capacity {
					t.Errorf("partial window observed: %v", values(w))
					return
				}
				for j := 1; j < len(w); j++ {
					if w[j].Value != w[j-1].Value+1 {
						t.Errorf("non-contiguous window observed: %v", values(w))
						return
					}
				}
			}
		}()
	}

	wg.Wait()
	assert.Equal(t, []float64{4995, 4996, 4997, 4998, 4999, 5000}, values(s.Window("s1")))
}

func TestWindowGrowsOnDemand(t *testing.T) {
	const capacity = 1 << 20
	s := newTestStore(t, capacity)

	s.Record("s1", 21, time.Now())
	s.Record("s1", 22, time.Now())
	s.Record("s1", 23, time.Now())

	s.mu.RLock()
	allocated := cap(s.windows["s1"])
	s.mu.RUnlock()
	assert.Less(t, allocated, 64, "a window only holds what was recorded")
	assert.Equal(t, []float64{21, 22, 23}, values(s.Window("s1")))
}

func TestEvictionAfterGrowth(t *testing.T) {
	s := newTestStore(t, 5)
	for i := 1; i <= 12; i++ {
		s.Record("s1", float64(i), time.Now())
		require.LessOrEqual(t, s.Len("s1"), 5)
	}
	assert.Equal(t, []float64{8, 9, 10, 11, 12}, values(s.Window("s1")))
}
