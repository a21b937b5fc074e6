// Package query implements ranking and aggregation over a windowed store.
package query

import (
	"fmt"
	"sort"
	"time"

	"github.com/google/uuid"
	"github.com/montanaflynn/stats"

	"github.com/cisco/edge-temperature-pipeline/internal/window"
	"github.com/cisco/edge-temperature-pipeline/pkg/models"
)

// AbsentPolicy decides how a ranking treats sensors that have no readings.
type AbsentPolicy int

const (
	// AbsentExclude leaves sensors without data out of the ranking.
	AbsentExclude AbsentPolicy = iota

	// AbsentDefaultZero ranks sensors without data as if they read 0.
	// A genuine 0°C reading is then indistinguishable from no data.
	AbsentDefaultZero
)

// ParseAbsentPolicy maps the configuration names "exclude" and "zero" to a policy.
func ParseAbsentPolicy(name string) (AbsentPolicy, error) {
	switch name {
	case "", "exclude":
		return AbsentExclude, nil
	case "zero":
		return AbsentDefaultZero, nil
	default:
		return AbsentExclude, fmt.Errorf("unknown absent policy %q", name)
	}
}

func (p AbsentPolicy) String() string {
	switch p {
	case AbsentExclude:
		return "exclude"
	case AbsentDefaultZero:
		return "zero"
	default:
		return fmt.Sprintf("AbsentPolicy(%d)", int(p))
	}
}

// Engine answers ranking and aggregation queries. It never mutates the store.
type Engine struct {
	store *window.Store
	now   func() time.Time
}

// NewEngine creates a query engine over the store.
func NewEngine(store *window.Store) *Engine {
	return &Engine{store: store, now: time.Now}
}

// TopK returns up to k sensors from subset ranked by latest value, highest first.
// Sensors without data are excluded. Equal values keep their order in subset.
func (e *Engine) TopK(k int, subset []models.SensorID) []models.RankedSensor {
	return e.Rank(k, subset, AbsentExclude)
}

// Rank is TopK with an explicit policy for sensors that have no data.
func (e *Engine) Rank(k int, subset []models.SensorID, policy AbsentPolicy) []models.RankedSensor {
	if k <= 0 || len(subset) == 0 {
		return []models.RankedSensor{}
	}

	candidates := make([]models.RankedSensor, 0, len(subset))
	for _, id := range subset {
		r, ok := e.store.Latest(id)
		switch {
		case ok:
			candidates = append(candidates, models.RankedSensor{SensorID: id, Value: r.Value})
		case policy == AbsentDefaultZero:
			candidates = append(candidates, models.RankedSensor{SensorID: id, Value: 0})
		}
	}

	sort.SliceStable(candidates, func(i, j int) bool {
		return candidates[i].Value > candidates[j].Value
	})

	if len(candidates) > k {
		candidates = candidates[:k]
	}
	return candidates
}

// Aggregate returns the mean of every retained reading for each sensor with data.
// Sensors without data are absent from the result.
func (e *Engine) Aggregate() map[models.SensorID]float64 {
	out := make(map[models.SensorID]float64)
	e.store.View(func(id models.SensorID, w []models.Reading) {
		data := make(stats.Float64Data, len(w))
		for i, r := range w {
			data[i] = r.Value
		}
		// Mean only fails on empty input, which View never passes.
		if mean, err := stats.Mean(data); err == nil {
			out[id] = mean
		}
	})
	return out
}

// Current returns the latest value for each sensor with data.
func (e *Engine) Current() map[models.SensorID]float64 {
	out := make(map[models.SensorID]float64)
	e.store.View(func(id models.SensorID, w []models.Reading) {
		out[id] = w[len(w)-1].Value
	})
	return out
}

// Snapshot builds an immutable snapshot of the given kind stamped with the
// current wall-clock time.
func (e *Engine) Snapshot(kind models.SnapshotKind) (models.Snapshot, error) {
	var values map[models.SensorID]float64
	switch kind {
	case models.SnapshotAggregate:
		values = e.Aggregate()
	case models.SnapshotCurrent:
		values = e.Current()
	default:
		return models.Snapshot{}, fmt.Errorf("unknown snapshot kind %q", kind)
	}

	return models.Snapshot{
		ID:        uuid.New().String(),
		Kind:      kind,
		CreatedAt: e.now().UTC(),
		Values:    values,
	}, nil
}
