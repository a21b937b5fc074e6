package ingest

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/segmentio/kafka-go"
	"go.uber.org/zap"

	"github.com/cisco/edge-temperature-pipeline/pkg/config"
	"github.com/cisco/edge-temperature-pipeline/pkg/models"
)

// kafkaMessageReader is the part of *kafka.Reader the source uses.
type kafkaMessageReader interface {
	FetchMessage(ctx context.Context) (kafka.Message, error)
	CommitMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// KafkaSource consumes JSON readings from a Kafka topic. The message key names
// the sensor when the payload has no sensor_id.
type KafkaSource struct {
	cfg     config.KafkaConfig
	reader  kafkaMessageReader
	poll    time.Duration
	backoff time.Duration
	*pipeline
}

// NewKafkaSource creates a consumer-group reader for cfg.Topic.
func NewKafkaSource(cfg config.KafkaConfig, recorder Recorder, logger *zap.SugaredLogger) (*KafkaSource, error) {
	if len(cfg.Brokers) == 0 {
		return nil, errors.New("at least one kafka broker is required")
	}
	if strings.TrimSpace(cfg.Topic) == "" {
		return nil, errors.New("kafka topic must not be empty")
	}
	if strings.TrimSpace(cfg.GroupID) == "" {
		return nil, errors.New("kafka consumer group must not be empty")
	}

	reader := kafka.NewReader(kafka.ReaderConfig{
		Brokers:     cfg.Brokers,
		GroupID:     cfg.GroupID,
		Topic:       cfg.Topic,
		StartOffset: kafka.LastOffset,
		MinBytes:    1,
		MaxBytes:    1e6,
	})
	return newKafkaSource(cfg, reader, recorder, logger), nil
}

func newKafkaSource(cfg config.KafkaConfig, reader kafkaMessageReader, recorder Recorder, logger *zap.SugaredLogger) *KafkaSource {
	return &KafkaSource{
		cfg:      cfg,
		reader:   reader,
		poll:     5 * time.Second,
		backoff:  time.Second,
		pipeline: newPipeline(TransportKafka, NewDecoder(""), recorder, logger),
	}
}

// Run consumes until ctx is cancelled or the reader is closed.
func (k *KafkaSource) Run(ctx context.Context) error {
	k.log.Infow("Kafka consumer started",
		"topic", k.cfg.Topic, "group", k.cfg.GroupID, "brokers", strings.Join(k.cfg.Brokers, ","))
	defer k.log.Info("Kafka consumer stopped")

	for {
		if ctx.Err() != nil {
			return ctx.Err()
		}

		fetchCtx, cancel := context.WithTimeout(ctx, k.poll)
		msg, err := k.reader.FetchMessage(fetchCtx)
		cancel()
		if err != nil {
			switch {
			case errors.Is(err, context.DeadlineExceeded):
				continue
			case errors.Is(err, context.Canceled):
				if ctx.Err() != nil {
					return ctx.Err()
				}
				continue
			case errors.Is(err, io.EOF), errors.Is(err, io.ErrClosedPipe), errors.Is(err, kafka.ErrGroupClosed):
				return nil
			}
			k.log.Errorw("Kafka fetch failed", "error", err)
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(k.backoff):
			}
			continue
		}

		k.HandleMessage(msg)

		commitCtx, commitCancel := context.WithTimeout(ctx, k.poll)
		if err := k.reader.CommitMessages(commitCtx, msg); err != nil {
			if !(errors.Is(err, context.Canceled) && ctx.Err() != nil) {
				k.log.Errorw("Kafka commit failed", "offset", msg.Offset, "error", err)
			}
		}
		commitCancel()
	}
}

// HandleMessage decodes one Kafka message and records it.
func (k *KafkaSource) HandleMessage(msg kafka.Message) bool {
	reading, err := k.decoder.DecodeJSON(msg.Value, models.SensorID(strings.TrimSpace(string(msg.Key))))
	if err != nil {
		err = fmt.Errorf("partition %d offset %d: %w", msg.Partition, msg.Offset, err)
	}
	return k.accept(fmt.Sprintf("%s/%d", msg.Topic, msg.Partition), reading, err)
}

// Stats returns the source counters.
func (k *KafkaSource) Stats() SourceStats {
	return k.stats(true)
}

// Close shuts down the underlying Kafka reader.
func (k *KafkaSource) Close() error {
	return k.reader.Close()
}
