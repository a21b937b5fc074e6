// Package uploader delivers snapshots to durable storage off the ingestion path.
// Snapshots wait in a bounded in-memory queue and are written by a single
// consumer goroutine with a per-attempt timeout and exponential backoff.
package uploader

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"
	"k8s.io/apimachinery/pkg/util/wait"

	"github.com/cisco/edge-temperature-pipeline/internal/metrics"
	"github.com/cisco/edge-temperature-pipeline/internal/storage"
	"github.com/cisco/edge-temperature-pipeline/pkg/config"
	"github.com/cisco/edge-temperature-pipeline/pkg/models"
)

// Common errors returned by the upload queue.
var (
	ErrQueueShutdown = errors.New("upload queue is shutting down")
	ErrInvalidConfig = errors.New("invalid upload queue configuration")
)

// Drop reasons reported on edge_upload_dropped_total.
const (
	DropQueueFull        = "queue_full"
	DropRetriesExhausted = "retries_exhausted"
)

// Job is one blob waiting to be written.
type Job struct {
	Key        string              `json:"key"`
	Blob       []byte              `json:"-"`
	Kind       models.SnapshotKind `json:"kind"`
	SnapshotID string              `json:"snapshot_id"`
	Enqueued   time.Time           `json:"enqueued"`
}

// QueueStats provides statistics about the queue.
type QueueStats struct {
	Pending     int       `json:"pending"`
	Capacity    int       `json:"capacity"`
	Enqueued    int64     `json:"enqueued"`
	Uploaded    int64     `json:"uploaded"`
	Failed      int64     `json:"failed"`
	Dropped     int64     `json:"dropped"`
	Retries     int64     `json:"retries"`
	LastSuccess time.Time `json:"last_success,omitempty"`
	LastKey     string    `json:"last_key,omitempty"`
}

// QueueConfig configures the queue behavior.
type QueueConfig struct {
	QueueSize  int           `json:"queue_size"`
	Timeout    time.Duration `json:"timeout"`     // bound on a single sink call
	MaxRetries int           `json:"max_retries"` // attempts after the first failure
	RetryDelay time.Duration `json:"retry_delay"` // first backoff delay, doubled per retry
}

// QueueConfigFrom extracts the queue settings from the upload configuration.
func QueueConfigFrom(cfg config.UploadConfig) QueueConfig {
	return QueueConfig{
		QueueSize:  cfg.QueueSize,
		Timeout:    cfg.Timeout,
		MaxRetries: cfg.MaxRetries,
		RetryDelay: cfg.RetryDelay,
	}
}

func (c QueueConfig) validate() error {
	if c.QueueSize < 1 {
		return fmt.Errorf("%w: queue size must be at least 1, got %d", ErrInvalidConfig, c.QueueSize)
	}
	if c.Timeout <= 0 {
		return fmt.Errorf("%w: timeout must be positive, got %v", ErrInvalidConfig, c.Timeout)
	}
	if c.MaxRetries < 0 {
		return fmt.Errorf("%w: max retries must not be negative, got %d", ErrInvalidConfig, c.MaxRetries)
	}
	if c.RetryDelay <= 0 {
		return fmt.Errorf("%w: retry delay must be positive, got %v", ErrInvalidConfig, c.RetryDelay)
	}
	return nil
}

// Queue is a bounded FIFO of upload jobs drained by one consumer goroutine.
// When full, the oldest pending job is discarded to make room.
type Queue struct {
	sink   storage.Sink
	config QueueConfig
	log    *zap.SugaredLogger

	pending []*Job
	mu      sync.Mutex

	notify  chan struct{} // signaled when a job is enqueued
	closing chan struct{}
	ctx     context.Context
	cancel  context.CancelFunc
	wg      sync.WaitGroup
	running bool

	// Stats
	enqueued    atomic.Int64
	uploaded    atomic.Int64
	failed      atomic.Int64
	dropped     atomic.Int64
	retries     atomic.Int64
	lastSuccess atomic.Value // time.Time
	lastKey     atomic.Value // string
}

// NewQueue creates an upload queue writing to sink. Call Start before Enqueue.
func NewQueue(sink storage.Sink, cfg QueueConfig, logger *zap.SugaredLogger) (*Queue, error) {
	if sink == nil {
		return nil, fmt.Errorf("%w: sink is required", ErrInvalidConfig)
	}
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	if logger == nil {
		logger = zap.NewNop().Sugar()
	}

	ctx, cancel := context.WithCancel(context.Background())
	return &Queue{
		sink:    sink,
		config:  cfg,
		log:     logger,
		pending: make([]*Job, 0, cfg.QueueSize),
		notify:  make(chan struct{}, 1),
		closing: make(chan struct{}),
		ctx:     ctx,
		cancel:  cancel,
	}, nil
}

// Start launches the consumer goroutine.
func (q *Queue) Start() {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.running || q.ctx.Err() != nil {
		return
	}
	q.running = true
	q.wg.Add(1)
	go q.consumeLoop()
}

// Shutdown stops accepting jobs and waits for pending ones to be written.
// If ctx expires first, in-flight uploads are cancelled and ctx.Err is returned.
func (q *Queue) Shutdown(ctx context.Context) error {
	q.mu.Lock()
	if !q.running {
		q.mu.Unlock()
		q.cancel()
		return nil
	}
	q.running = false
	close(q.closing)
	q.mu.Unlock()

	done := make(chan struct{})
	go func() {
		q.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		q.cancel()
		return nil
	case <-ctx.Done():
		q.cancel()
		<-done
		return ctx.Err()
	}
}

// EnqueueSnapshot serializes snap and queues it under its storage key.
func (q *Queue) EnqueueSnapshot(prefix string, snap *models.Snapshot) (string, error) {
	blob, err := snap.Blob()
	if err != nil {
		return "", fmt.Errorf("failed to serialize snapshot %s: %w", snap.ID, err)
	}
	key := storage.SnapshotKey(prefix, snap)
	err = q.Enqueue(&Job{
		Key:        key,
		Blob:       blob,
		Kind:       snap.Kind,
		SnapshotID: snap.ID,
	})
	return key, err
}

// Enqueue adds job to the tail of the queue without blocking.
func (q *Queue) Enqueue(job *Job) error {
	if job.Enqueued.IsZero() {
		job.Enqueued = time.Now()
	}

	q.mu.Lock()
	if !q.running {
		q.mu.Unlock()
		return ErrQueueShutdown
	}
	var evicted *Job
	if len(q.pending) >= q.config.QueueSize {
		evicted = q.pending[0]
		q.pending[0] = nil
		q.pending = q.pending[1:]
	}
	q.pending = append(q.pending, job)
	depth := len(q.pending)
	q.mu.Unlock()

	q.enqueued.Add(1)
	metrics.UploadQueueDepth.Set(float64(depth))
	if evicted != nil {
		q.dropped.Add(1)
		metrics.UploadDropped.WithLabelValues(DropQueueFull).Inc()
		q.log.Warnw("Upload queue full, dropped oldest snapshot",
			"key", evicted.Key, "kind", evicted.Kind, "queue_size", q.config.QueueSize)
	}

	select {
	case q.notify <- struct{}{}:
	default:
		// Already has pending notification
	}
	return nil
}

// consumeLoop uploads jobs in FIFO order until shutdown, then drains what is left.
func (q *Queue) consumeLoop() {
	defer q.wg.Done()

	for {
		if job := q.pop(); job != nil {
			q.upload(job)
			continue
		}

		select {
		case <-q.notify:
		case <-q.closing:
			for job := q.pop(); job != nil; job = q.pop() {
				q.upload(job)
			}
			return
		}
	}
}

func (q *Queue) pop() *Job {
	q.mu.Lock()
	defer q.mu.Unlock()

	if len(q.pending) == 0 {
		return nil
	}
	job := q.pending[0]
	q.pending[0] = nil
	q.pending = q.pending[1:]
	metrics.UploadQueueDepth.Set(float64(len(q.pending)))
	return job
}

// upload writes job to the sink, retrying with exponential backoff. A job that
// still fails after the last attempt is dropped.
func (q *Queue) upload(job *Job) {
	sinkName := q.sink.Name()
	backoff := wait.Backoff{
		Duration: q.config.RetryDelay,
		Factor:   2,
		Jitter:   0.1,
		Steps:    q.config.MaxRetries + 1,
	}

	attempt := 0
	var lastErr error
	err := wait.ExponentialBackoffWithContext(q.ctx, backoff, func(ctx context.Context) (bool, error) {
		attempt++
		if attempt > 1 {
			q.retries.Add(1)
		}

		attemptCtx, cancel := context.WithTimeout(ctx, q.config.Timeout)
		defer cancel()

		start := time.Now()
		lastErr = q.sink.Put(attemptCtx, job.Key, job.Blob)
		metrics.UploadDuration.WithLabelValues(sinkName).Observe(time.Since(start).Seconds())

		if lastErr != nil {
			metrics.Uploads.WithLabelValues(sinkName, metrics.StatusRetry).Inc()
			q.log.Warnw("Snapshot upload attempt failed",
				"key", job.Key, "sink", sinkName, "attempt", attempt, "error", lastErr)
			return false, nil
		}
		return true, nil
	})

	if err == nil {
		q.uploaded.Add(1)
		q.lastSuccess.Store(time.Now())
		q.lastKey.Store(job.Key)
		metrics.Uploads.WithLabelValues(sinkName, metrics.StatusSuccess).Inc()
		q.log.Infow("Uploaded snapshot",
			"key", job.Key, "kind", job.Kind, "sink", sinkName, "attempts", attempt,
			"latency", time.Since(job.Enqueued))
		return
	}

	if lastErr == nil {
		lastErr = err
	}
	q.failed.Add(1)
	q.dropped.Add(1)
	metrics.Uploads.WithLabelValues(sinkName, metrics.StatusFailed).Inc()
	metrics.UploadDropped.WithLabelValues(DropRetriesExhausted).Inc()
	q.log.Errorw("Dropping snapshot after failed upload",
		"key", job.Key, "kind", job.Kind, "sink", sinkName, "attempts", attempt,
		"interrupted", wait.Interrupted(err), "error", lastErr)
}

// Len returns the number of pending jobs.
func (q *Queue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.pending)
}

// GetStats returns queue statistics.
func (q *Queue) GetStats() QueueStats {
	stats := QueueStats{
		Pending:  q.Len(),
		Capacity: q.config.QueueSize,
		Enqueued: q.enqueued.Load(),
		Uploaded: q.uploaded.Load(),
		Failed:   q.failed.Load(),
		Dropped:  q.dropped.Load(),
		Retries:  q.retries.Load(),
	}
	if t, ok := q.lastSuccess.Load().(time.Time); ok {
		stats.LastSuccess = t
	}
	if k, ok := q.lastKey.Load().(string); ok {
		stats.LastKey = k
	}
	return stats
}
