// Package ingest turns transport messages into sensor readings for the windowed store.
package ingest

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"strconv"
	"strings"
	"time"

	"github.com/relvacode/iso8601"

	"github.com/cisco/edge-temperature-pipeline/pkg/models"
)

// Decoding errors. Every rejected payload wraps exactly one of these.
var (
	ErrEmptySensorID    = errors.New("empty sensor id")
	ErrInvalidValue     = errors.New("invalid temperature value")
	ErrMalformedPayload = errors.New("malformed payload")
)

// Rejection reasons reported on edge_ingest_rejected_total.
const (
	ReasonEmptySensorID    = "empty_sensor_id"
	ReasonInvalidValue     = "invalid_value"
	ReasonMalformedPayload = "malformed_payload"
)

// Reason maps a decoding error to its metric label.
func Reason(err error) string {
	switch {
	case errors.Is(err, ErrEmptySensorID):
		return ReasonEmptySensorID
	case errors.Is(err, ErrInvalidValue):
		return ReasonInvalidValue
	default:
		return ReasonMalformedPayload
	}
}

// Decoder normalizes both wire shapes into models.SensorReading:
// bare numeric payloads on per-sensor topics, and JSON objects carrying
// their own sensor id on the shared topic.
type Decoder struct {
	sharedTopic string
	now         func() time.Time
}

// NewDecoder returns a decoder that treats sharedTopic as the JSON topic.
func NewDecoder(sharedTopic string) *Decoder {
	return &Decoder{sharedTopic: sharedTopic, now: time.Now}
}

// Decode decodes a message received on topic. Payloads on the shared topic, or
// any payload that is a JSON object, use the JSON shape; everything else is a
// bare number for the sensor named by the last topic segment.
func (d *Decoder) Decode(topic string, payload []byte) (models.SensorReading, error) {
	trimmed := bytes.TrimSpace(payload)
	if topic == d.sharedTopic {
		return d.DecodeJSON(trimmed, "")
	}
	fallback := SensorIDFromTopic(topic)
	if len(trimmed) > 0 && trimmed[0] == '{' {
		return d.DecodeJSON(trimmed, fallback)
	}
	return d.DecodeValue(fallback, trimmed)
}

// DecodeValue parses a bare numeric payload for sensor.
func (d *Decoder) DecodeValue(sensor models.SensorID, payload []byte) (models.SensorReading, error) {
	if strings.TrimSpace(string(sensor)) == "" {
		return models.SensorReading{}, ErrEmptySensorID
	}

	raw := strings.TrimSpace(string(payload))
	value, err := strconv.ParseFloat(raw, 64)
	if err != nil {
		return models.SensorReading{}, fmt.Errorf("%w: %q", ErrInvalidValue, truncate(raw))
	}
	if err := checkFinite(value); err != nil {
		return models.SensorReading{}, err
	}

	return models.SensorReading{
		SensorID:    sensor,
		Temperature: value,
		Timestamp:   d.now().UTC(),
	}, nil
}

// sensorEnvelope is the JSON shape; temp is accepted as an alias of temperature.
type sensorEnvelope struct {
	SensorID    string          `json:"sensor_id"`
	Temperature json.RawMessage `json:"temperature"`
	Temp        json.RawMessage `json:"temp"`
	Timestamp   json.RawMessage `json:"timestamp"`
}

// DecodeJSON parses the JSON shape. fallbackID names the sensor when the
// payload carries none (e.g. the Kafka message key).
func (d *Decoder) DecodeJSON(payload []byte, fallbackID models.SensorID) (models.SensorReading, error) {
	var env sensorEnvelope
	dec := json.NewDecoder(bytes.NewReader(payload))
	dec.UseNumber()
	if err := dec.Decode(&env); err != nil {
		return models.SensorReading{}, fmt.Errorf("%w: %v", ErrMalformedPayload, err)
	}

	sensor := models.SensorID(strings.TrimSpace(env.SensorID))
	if sensor == "" {
		sensor = models.SensorID(strings.TrimSpace(string(fallbackID)))
	}
	if sensor == "" {
		return models.SensorReading{}, ErrEmptySensorID
	}

	rawValue := env.Temperature
	if len(rawValue) == 0 {
		rawValue = env.Temp
	}
	value, err := parseValue(rawValue)
	if err != nil {
		return models.SensorReading{}, err
	}

	ts, err := parseTimestamp(env.Timestamp)
	if err != nil {
		return models.SensorReading{}, err
	}
	if ts.IsZero() {
		ts = d.now()
	}

	return models.SensorReading{
		SensorID:    sensor,
		Temperature: value,
		Timestamp:   ts.UTC(),
	}, nil
}

// SensorIDFromTopic returns the last segment of an MQTT topic.
func SensorIDFromTopic(topic string) models.SensorID {
	if i := strings.LastIndexByte(topic, '/'); i >= 0 {
		topic = topic[i+1:]
	}
	return models.SensorID(strings.TrimSpace(topic))
}

// parseValue accepts a JSON number or a numeric string.
func parseValue(raw json.RawMessage) (float64, error) {
	if len(raw) == 0 || string(raw) == "null" {
		return 0, fmt.Errorf("%w: temperature missing", ErrInvalidValue)
	}

	var num json.Number
	if err := json.Unmarshal(raw, &num); err != nil {
		var s string
		if err := json.Unmarshal(raw, &s); err != nil {
			return 0, fmt.Errorf("%w: %s", ErrInvalidValue, truncate(string(raw)))
		}
		num = json.Number(strings.TrimSpace(s))
	}

	value, err := strconv.ParseFloat(string(num), 64)
	if err != nil {
		return 0, fmt.Errorf("%w: %q", ErrInvalidValue, truncate(string(num)))
	}
	return value, checkFinite(value)
}

// parseTimestamp accepts an ISO-8601 string. A missing timestamp yields the zero time.
func parseTimestamp(raw json.RawMessage) (time.Time, error) {
	if len(raw) == 0 || string(raw) == "null" {
		return time.Time{}, nil
	}

	var s string
	if err := json.Unmarshal(raw, &s); err != nil {
		return time.Time{}, fmt.Errorf("%w: timestamp must be a string", ErrMalformedPayload)
	}
	if strings.TrimSpace(s) == "" {
		return time.Time{}, nil
	}

	ts, err := iso8601.ParseString(strings.TrimSpace(s))
	if err != nil {
		return time.Time{}, fmt.Errorf("%w: timestamp %q: %v", ErrMalformedPayload, truncate(s), err)
	}
	return ts, nil
}

func checkFinite(v float64) error {
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return fmt.Errorf("%w: %v", ErrInvalidValue, v)
	}
	return nil
}

func truncate(s string) string {
	const max = 32
	if len(s) > max {
		return s[:max] + "..."
	}
	return s
}
