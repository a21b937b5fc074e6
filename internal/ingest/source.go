package ingest

import (
	"sync/atomic"
	"time"

	"go.uber.org/zap"

	"github.com/cisco/edge-temperature-pipeline/internal/metrics"
	"github.com/cisco/edge-temperature-pipeline/pkg/models"
)

// Transport labels.
const (
	TransportMQTT  = "mqtt"
	TransportKafka = "kafka"
)

// Recorder accepts normalized readings. *window.Store implements it.
type Recorder interface {
	Record(sensor models.SensorID, value float64, ts time.Time)
}

// SourceStats reports per-source counters.
type SourceStats struct {
	Transport string `json:"transport"`
	Received  int64  `json:"received"`
	Recorded  int64  `json:"recorded"`
	Rejected  int64  `json:"rejected"`
	Connected bool   `json:"connected"`
}

// pipeline decodes one transport message and records it. Rejected payloads
// are logged and counted and never reach the recorder.
type pipeline struct {
	transport string
	decoder   *Decoder
	recorder  Recorder
	log       *zap.SugaredLogger

	received atomic.Int64
	recorded atomic.Int64
	rejected atomic.Int64
}

func newPipeline(transport string, decoder *Decoder, recorder Recorder, logger *zap.SugaredLogger) *pipeline {
	if logger == nil {
		logger = zap.NewNop().Sugar()
	}
	return &pipeline{
		transport: transport,
		decoder:   decoder,
		recorder:  recorder,
		log:       logger,
	}
}

// accept records reading, or counts err as a rejection when it is non-nil.
func (p *pipeline) accept(source string, reading models.SensorReading, err error) bool {
	p.received.Add(1)
	if err != nil {
		p.rejected.Add(1)
		metrics.IngestRejected.WithLabelValues(Reason(err)).Inc()
		p.log.Warnw("Discarding payload", "source", source, "error", err)
		return false
	}

	p.recorder.Record(reading.SensorID, reading.Temperature, reading.Timestamp)
	p.recorded.Add(1)
	metrics.ReadingsRecorded.WithLabelValues(p.transport).Inc()
	p.log.Debugw("Recorded reading",
		"source", source, "sensor_id", reading.SensorID, "temperature", reading.Temperature)
	return true
}

func (p *pipeline) stats(connected bool) SourceStats {
	return SourceStats{
		Transport: p.transport,
		Received:  p.received.Load(),
		Recorded:  p.recorded.Load(),
		Rejected:  p.rejected.Load(),
		Connected: connected,
	}
}
