// Package simulator generates or replays temperature readings and publishes
// them to the broker the edge processor listens on.
package simulator

import (
	"errors"
	"fmt"
	"io"
	"math"
	"math/rand"
	"time"

	"github.com/cisco/edge-temperature-pipeline/internal/parser"
	"github.com/cisco/edge-temperature-pipeline/pkg/config"
	"github.com/cisco/edge-temperature-pipeline/pkg/models"
)

// ReadingSource yields the readings to publish on each tick. Next returns
// io.EOF once the source is exhausted.
type ReadingSource interface {
	Next() ([]models.SensorReading, error)
	Close() error
}

// RandomSource draws one uniform reading per sensor on every call.
type RandomSource struct {
	sensors  []models.SensorID
	min, max float64
	rng      *rand.Rand
	now      func() time.Time
}

// NewRandomSource returns a source of values in [min, max) rounded to two decimals.
func NewRandomSource(sensors []string, min, max float64, seed int64) (*RandomSource, error) {
	if len(sensors) == 0 {
		return nil, errors.New("at least one sensor is required")
	}
	if !(min < max) {
		return nil, fmt.Errorf("min temperature %.2f must be below max %.2f", min, max)
	}
	return &RandomSource{
		sensors: models.SensorIDs(sensors...),
		min:     min,
		max:     max,
		rng:     rand.New(rand.NewSource(seed)),
		now:     time.Now,
	}, nil
}

func (s *RandomSource) Next() ([]models.SensorReading, error) {
	ts := s.now().UTC()
	out := make([]models.SensorReading, len(s.sensors))
	for i, id := range s.sensors {
		v := s.min + s.rng.Float64()*(s.max-s.min)
		v = math.Floor(v*100) / 100
		out[i] = models.SensorReading{SensorID: id, Temperature: v, Timestamp: ts}
	}
	return out, nil
}

func (s *RandomSource) Close() error { return nil }

// CSVSource replays a CSV file batch rows at a time. Replayed readings are
// restamped with the current time.
type CSVSource struct {
	parser *parser.CSVParser
	batch  int
	loop   bool
	now    func() time.Time
}

// NewCSVSource opens path for replay. When loop is set the file restarts at EOF.
func NewCSVSource(path string, batch int, loop bool) (*CSVSource, error) {
	if batch < 1 {
		batch = 1
	}
	if err := parser.ValidateCSV(path); err != nil {
		return nil, fmt.Errorf("invalid CSV file: %w", err)
	}
	p, err := parser.NewCSVParser(path)
	if err != nil {
		return nil, err
	}
	return &CSVSource{parser: p, batch: batch, loop: loop, now: time.Now}, nil
}

func (s *CSVSource) Next() ([]models.SensorReading, error) {
	rows, err := s.parser.ReadBatch(s.batch)
	if err != nil {
		return nil, err
	}

	if len(rows) < s.batch && s.loop {
		if err := s.parser.Reset(); err != nil {
			return nil, err
		}
		if len(rows) == 0 {
			if rows, err = s.parser.ReadBatch(s.batch); err != nil {
				return nil, err
			}
		}
	}
	if len(rows) == 0 {
		return nil, io.EOF
	}

	ts := s.now().UTC()
	out := make([]models.SensorReading, len(rows))
	for i, r := range rows {
		out[i] = *r
		out[i].Timestamp = ts
	}
	return out, nil
}

func (s *CSVSource) Close() error {
	return s.parser.Close()
}

// NewSource builds the replay source when a CSV path is configured and the
// random source otherwise.
func NewSource(cfg config.SimulatorConfig) (ReadingSource, error) {
	if cfg.CSVPath != "" {
		return NewCSVSource(cfg.CSVPath, len(cfg.Sensors), cfg.Loop)
	}
	return NewRandomSource(cfg.Sensors, cfg.MinTemp, cfg.MaxTemp, time.Now().UnixNano())
}
