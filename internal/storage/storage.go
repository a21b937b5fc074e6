// Package storage provides durable snapshot sinks.
package storage

import (
	"context"
	"fmt"
	"path"
	"time"

	"go.uber.org/multierr"

	"github.com/cisco/edge-temperature-pipeline/pkg/config"
	"github.com/cisco/edge-temperature-pipeline/pkg/models"
)

// Sink persists snapshot blobs under a key.
// Used by: the upload queue
type Sink interface {
	// Put stores blob under key, overwriting any previous object
	Put(ctx context.Context, key string, blob []byte) error

	// Name identifies the sink in logs and metrics
	Name() string

	// Close releases the sink's resources
	Close() error
}

// SnapshotKey builds the storage key of a snapshot:
// <prefix>/<kind prefix>/<RFC3339 UTC timestamp>.json
func SnapshotKey(prefix string, snap *models.Snapshot) string {
	ts := snap.CreatedAt.UTC().Format(time.RFC3339Nano)
	return path.Join(prefix, snap.Kind.KeyPrefix(), ts+".json")
}

// MultiSink writes every blob to all of its sinks.
type MultiSink struct {
	sinks []Sink
}

// NewMultiSink fans out to the given sinks.
func NewMultiSink(sinks ...Sink) *MultiSink {
	return &MultiSink{sinks: sinks}
}

// Put writes to every sink and returns the combined errors.
func (m *MultiSink) Put(ctx context.Context, key string, blob []byte) error {
	var errs error
	for _, s := range m.sinks {
		if err := s.Put(ctx, key, blob); err != nil {
			errs = multierr.Append(errs, fmt.Errorf("%s: %w", s.Name(), err))
		}
	}
	return errs
}

// Name returns "multi".
func (m *MultiSink) Name() string {
	return "multi"
}

// Close closes every sink.
func (m *MultiSink) Close() error {
	var errs error
	for _, s := range m.sinks {
		errs = multierr.Append(errs, s.Close())
	}
	return errs
}

// New builds the sink described by cfg. Several backends are combined into a MultiSink.
func New(ctx context.Context, cfg config.SinkConfig) (Sink, error) {
	sinks := make([]Sink, 0, len(cfg.Backends))
	for _, backend := range cfg.Backends {
		var (
			s   Sink
			err error
		)
		switch backend {
		case config.SinkS3:
			s, err = NewS3Sink(ctx, cfg.S3)
		case config.SinkInfluxDB:
			s, err = NewInfluxDBSink(ctx, cfg.InfluxDB)
		case config.SinkFile:
			s, err = NewFileSink(cfg.File.Dir)
		default:
			err = fmt.Errorf("unknown sink backend %q", backend)
		}
		if err != nil {
			for _, opened := range sinks {
				_ = opened.Close()
			}
			return nil, err
		}
		sinks = append(sinks, s)
	}

	switch len(sinks) {
	case 0:
		return nil, fmt.Errorf("no sink backends configured")
	case 1:
		return sinks[0], nil
	default:
		return NewMultiSink(sinks...), nil
	}
}
