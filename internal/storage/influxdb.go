package storage

import (
	"context"
	"encoding/json"
	"fmt"
	"path"
	"sort"
	"strings"
	"time"

	influxdb2 "github.com/influxdata/influxdb-client-go/v2"
	"github.com/influxdata/influxdb-client-go/v2/api/write"

	"github.com/cisco/edge-temperature-pipeline/pkg/config"
	"github.com/cisco/edge-temperature-pipeline/pkg/models"
)

// MeasurementSnapshot is the InfluxDB measurement snapshot points are written to.
const MeasurementSnapshot = "temperature_snapshot"

// pointWriter is the blocking write API subset used by the sink.
type pointWriter interface {
	WritePoint(ctx context.Context, point ...*write.Point) error
}

// InfluxDBSink writes each snapshot as one point per sensor.
type InfluxDBSink struct {
	client   influxdb2.Client
	writeAPI pointWriter
	config   config.InfluxDBConfig
	now      func() time.Time
}

// NewInfluxDBSink connects to InfluxDB and verifies its health.
func NewInfluxDBSink(ctx context.Context, cfg config.InfluxDBConfig) (*InfluxDBSink, error) {
	client := influxdb2.NewClient(cfg.URL, cfg.Token)

	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	health, err := client.Health(ctx)
	if err != nil {
		client.Close()
		return nil, fmt.Errorf("failed to connect to InfluxDB: %w", err)
	}
	if health.Status != "pass" {
		client.Close()
		return nil, fmt.Errorf("InfluxDB health check failed: %s", health.Status)
	}

	return &InfluxDBSink{
		client:   client,
		writeAPI: client.WriteAPIBlocking(cfg.Org, cfg.Bucket),
		config:   cfg,
		now:      time.Now,
	}, nil
}

// Put decodes the blob's sensor values and writes them as a batch.
func (s *InfluxDBSink) Put(ctx context.Context, key string, blob []byte) error {
	var values map[models.SensorID]float64
	if err := json.Unmarshal(blob, &values); err != nil {
		return fmt.Errorf("failed to decode snapshot %s: %w", key, err)
	}
	if len(values) == 0 {
		return nil
	}

	kind, ts, ok := ParseSnapshotKey(key)
	if !ok {
		ts = s.now().UTC()
	}

	ids := make([]string, 0, len(values))
	for id := range values {
		ids = append(ids, string(id))
	}
	sort.Strings(ids)

	points := make([]*write.Point, 0, len(values))
	for _, id := range ids {
		point := influxdb2.NewPointWithMeasurement(MeasurementSnapshot).
			AddTag("sensor_id", id).
			AddTag("kind", string(kind)).
			AddTag("key", key).
			AddField("value", values[models.SensorID(id)]).
			SetTime(ts)
		points = append(points, point)
	}

	if err := s.writeAPI.WritePoint(ctx, points...); err != nil {
		return fmt.Errorf("failed to write batch to InfluxDB: %w", err)
	}
	return nil
}

// Name returns "influxdb".
func (s *InfluxDBSink) Name() string {
	return "influxdb"
}

// Close closes the InfluxDB client.
func (s *InfluxDBSink) Close() error {
	if s.client != nil {
		s.client.Close()
	}
	return nil
}

// ParseSnapshotKey recovers the snapshot kind and timestamp from a key built
// by SnapshotKey. ok is false when the key does not follow that layout.
func ParseSnapshotKey(key string) (kind models.SnapshotKind, ts time.Time, ok bool) {
	dir, file := path.Split(key)
	switch path.Base(dir) {
	case models.SnapshotAggregate.KeyPrefix():
		kind = models.SnapshotAggregate
	case models.SnapshotCurrent.KeyPrefix():
		kind = models.SnapshotCurrent
	default:
		kind = models.SnapshotKind(path.Base(dir))
	}

	ts, err := time.Parse(time.RFC3339Nano, strings.TrimSuffix(file, ".json"))
	if err != nil {
		return kind, time.Time{}, false
	}
	return kind, ts, kind.Valid()
}
