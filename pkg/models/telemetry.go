// Package models defines the core data structures for sensor temperature telemetry.
package models

import (
	"encoding/json"
	"time"
)

// SensorID identifies a temperature sensor (e.g., "s1").
type SensorID string

// Reading is a single recorded temperature sample. Readings are immutable once
// recorded in a window.
type Reading struct {
	// Value is the temperature in degrees Celsius
	Value float64 `json:"value"`

	// Timestamp is when the reading was taken (or received, if the payload had none)
	Timestamp time.Time `json:"timestamp"`
}

// SensorReading is the normalized ingestion event delivered to the store.
// It is also the JSON shape published on the shared temperature topic.
type SensorReading struct {
	SensorID    SensorID  `json:"sensor_id"`
	Temperature float64   `json:"temperature"`
	Timestamp   time.Time `json:"timestamp"`
}

// RankedSensor is one row of a top-k ranking.
type RankedSensor struct {
	SensorID SensorID `json:"sensor_id"`
	Value    float64  `json:"value"`
}

// SnapshotKind selects which query produced the values of a snapshot.
type SnapshotKind string

const (
	// SnapshotAggregate holds the mean of every retained reading per sensor.
	SnapshotAggregate SnapshotKind = "aggregate"

	// SnapshotCurrent holds the latest reading per sensor.
	SnapshotCurrent SnapshotKind = "current"
)

// KeyPrefix returns the storage sub-path used for snapshots of this kind.
func (k SnapshotKind) KeyPrefix() string {
	switch k {
	case SnapshotAggregate:
		return "agg"
	case SnapshotCurrent:
		return "cloud_input"
	default:
		return string(k)
	}
}

// Valid reports whether k is a known snapshot kind.
func (k SnapshotKind) Valid() bool {
	return k == SnapshotAggregate || k == SnapshotCurrent
}

// Snapshot is an immutable mapping of sensor to value, emitted to durable storage.
// Only Values is written to the sink; the other fields identify the snapshot.
type Snapshot struct {
	// ID uniquely identifies this snapshot
	ID string `json:"id"`

	// Kind is the query that produced Values
	Kind SnapshotKind `json:"kind"`

	// CreatedAt is the wall-clock time the snapshot was taken; used for storage keys
	CreatedAt time.Time `json:"created_at"`

	// Values maps each sensor with data to its value
	Values map[SensorID]float64 `json:"values"`
}

// Blob returns the wire form of the snapshot: a JSON object of sensor to value.
func (s *Snapshot) Blob() ([]byte, error) {
	return json.Marshal(s.Values)
}

// ToJSON serializes the SensorReading to JSON bytes.
func (r *SensorReading) ToJSON() ([]byte, error) {
	return json.Marshal(r)
}

// FromJSON deserializes JSON bytes into a SensorReading.
func (r *SensorReading) FromJSON(data []byte) error {
	return json.Unmarshal(data, r)
}

// SensorIDs converts plain strings into sensor identifiers, preserving order.
func SensorIDs(ids ...string) []SensorID {
	out := make([]SensorID, len(ids))
	for i, id := range ids {
		out[i] = SensorID(id)
	}
	return out
}

// UnitCelsius is the unit of every temperature value in the pipeline.
const UnitCelsius = "°C"
