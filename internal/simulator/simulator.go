package simulator

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"path"
	"strconv"
	"sync/atomic"
	"time"

	"go.uber.org/zap"

	"github.com/cisco/edge-temperature-pipeline/pkg/config"
	"github.com/cisco/edge-temperature-pipeline/pkg/models"
)

// Encoder turns a reading into a wire message for one of the two shapes the
// edge processor accepts.
type Encoder struct {
	Shape       string
	TopicPrefix string
	SharedTopic string
}

// sharedPayload is the JSON body of the shared-topic shape.
type sharedPayload struct {
	SensorID    models.SensorID `json:"sensor_id"`
	Temperature float64         `json:"temperature"`
	Timestamp   string          `json:"timestamp"`
}

// Encode renders r. The per-topic shape publishes the bare value to
// <prefix>/<sensor>; the shared shape publishes a JSON object to the shared topic.
func (e Encoder) Encode(r models.SensorReading) (Message, error) {
	switch e.Shape {
	case config.ShapePerTopic:
		return Message{
			Topic:   path.Join(e.TopicPrefix, string(r.SensorID)),
			Key:     string(r.SensorID),
			Payload: []byte(strconv.FormatFloat(r.Temperature, 'f', -1, 64)),
		}, nil
	case config.ShapeShared:
		payload, err := json.Marshal(sharedPayload{
			SensorID:    r.SensorID,
			Temperature: r.Temperature,
			Timestamp:   r.Timestamp.UTC().Format(time.RFC3339Nano),
		})
		if err != nil {
			return Message{}, err
		}
		return Message{Topic: e.SharedTopic, Key: string(r.SensorID), Payload: payload}, nil
	default:
		return Message{}, fmt.Errorf("unknown payload shape %q", e.Shape)
	}
}

// Stats counts what the simulator has published.
type Stats struct {
	Ticks     int64 `json:"ticks"`
	Published int64 `json:"published"`
	Failed    int64 `json:"failed"`
}

// Simulator publishes one batch of readings per interval.
type Simulator struct {
	source   ReadingSource
	pub      Publisher
	encoder  Encoder
	interval time.Duration
	log      *zap.SugaredLogger

	ticks     atomic.Int64
	published atomic.Int64
	failed    atomic.Int64
}

// New creates a simulator. Kafka always carries the shared JSON shape because
// the Kafka topic cannot encode the sensor id.
func New(cfg config.SimulatorConfig, source ReadingSource, pub Publisher, logger *zap.SugaredLogger) (*Simulator, error) {
	if source == nil || pub == nil {
		return nil, errors.New("source and publisher are required")
	}
	if cfg.Interval <= 0 {
		return nil, fmt.Errorf("interval must be positive, got %v", cfg.Interval)
	}
	if logger == nil {
		logger = zap.NewNop().Sugar()
	}

	enc := Encoder{Shape: cfg.Shape, TopicPrefix: cfg.TopicPrefix, SharedTopic: cfg.MQTT.SharedTopic}
	if pub.Name() == config.TransportKafka {
		enc.Shape = config.ShapeShared
	}
	if enc.Shape != config.ShapePerTopic && enc.Shape != config.ShapeShared {
		return nil, fmt.Errorf("unknown payload shape %q", enc.Shape)
	}
	if enc.Shape == config.ShapeShared && enc.SharedTopic == "" && pub.Name() == config.TransportMQTT {
		return nil, errors.New("shared topic is required for the shared shape")
	}

	return &Simulator{
		source:   source,
		pub:      pub,
		encoder:  enc,
		interval: cfg.Interval,
		log:      logger,
	}, nil
}

// Run publishes a batch immediately and then once per interval until ctx is
// cancelled or the source is exhausted.
func (s *Simulator) Run(ctx context.Context) error {
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		if err := s.Step(ctx); err != nil {
			if errors.Is(err, io.EOF) {
				s.log.Infow("Source exhausted", "published", s.published.Load())
				return nil
			}
			if ctx.Err() != nil {
				return nil
			}
			return err
		}

		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
		}
	}
}

// Step publishes one batch. Publish failures are logged and counted; only
// source errors are returned.
func (s *Simulator) Step(ctx context.Context) error {
	readings, err := s.source.Next()
	if err != nil {
		return err
	}
	s.ticks.Add(1)

	for _, r := range readings {
		msg, err := s.encoder.Encode(r)
		if err != nil {
			return err
		}
		if err := s.pub.Publish(ctx, msg); err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			s.failed.Add(1)
			s.log.Warnw("Publish failed", "transport", s.pub.Name(), "topic", msg.Topic, "error", err)
			continue
		}
		s.published.Add(1)
	}

	s.log.Debugw("Published readings", "count", len(readings), "total", s.published.Load())
	return nil
}

func (s *Simulator) Stats() Stats {
	return Stats{
		Ticks:     s.ticks.Load(),
		Published: s.published.Load(),
		Failed:    s.failed.Load(),
	}
}
