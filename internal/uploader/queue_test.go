package uploader

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"github.com/cisco/edge-temperature-pipeline/pkg/config"
	"github.com/cisco/edge-temperature-pipeline/pkg/models"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

// fakeSink records puts and can fail or block on demand.
type fakeSink struct {
	mu       sync.Mutex
	keys     []string
	blobs    map[string][]byte
	attempts int
	failN    int           // fail this many attempts before succeeding; -1 fails forever
	gate     chan struct{} // when set, Put blocks until closed or ctx is done
	started  chan struct{} // receives once per Put call, if set
}

func newFakeSink() *fakeSink {
	return &fakeSink{blobs: make(map[string][]byte)}
}

func (f *fakeSink) Put(ctx context.Context, key string, blob []byte) error {
	if f.started != nil {
		f.started <- struct{}{}
	}
	if f.gate != nil {
		select {
		case <-f.gate:
		case <-ctx.Done():
			return ctx.Err()
		}
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	f.attempts++
	if f.failN < 0 || f.attempts <= f.failN {
		return errors.New("sink unavailable")
	}
	f.keys = append(f.keys, key)
	f.blobs[key] = blob
	return nil
}

func (f *fakeSink) Name() string { return "fake" }

func (f *fakeSink) Close() error { return nil }

func (f *fakeSink) snapshot() ([]string, int) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.keys...), f.attempts
}

func testConfig() QueueConfig {
	return QueueConfig{
		QueueSize:  8,
		Timeout:    time.Second,
		MaxRetries: 3,
		RetryDelay: time.Millisecond,
	}
}

func newStartedQueue(t *testing.T, sink *fakeSink, cfg QueueConfig) *Queue {
	t.Helper()
	q, err := NewQueue(sink, cfg, nil)
	require.NoError(t, err)
	q.Start()
	return q
}

func job(key string) *Job {
	return &Job{Key: key, Blob: []byte(`{}`), Kind: models.SnapshotAggregate}
}

func TestNewQueueValidation(t *testing.T) {
	_, err := NewQueue(nil, testConfig(), nil)
	assert.ErrorIs(t, err, ErrInvalidConfig)

	tests := []struct {
		name   string
		mutate func(*QueueConfig)
	}{
		{"zero queue size", func(c *QueueConfig) { c.QueueSize = 0 }},
		{"zero timeout", func(c *QueueConfig) { c.Timeout = 0 }},
		{"negative retries", func(c *QueueConfig) { c.MaxRetries = -1 }},
		{"zero retry delay", func(c *QueueConfig) { c.RetryDelay = 0 }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := testConfig()
			tt.mutate(&cfg)
			_, err := NewQueue(newFakeSink(), cfg, nil)
			assert.ErrorIs(t, err, ErrInvalidConfig)
		})
	}
}

func TestQueueConfigFrom(t *testing.T) {
	cfg := QueueConfigFrom(config.UploadConfig{
		QueueSize:  4,
		Timeout:    2 * time.Second,
		MaxRetries: 5,
		RetryDelay: 300 * time.Millisecond,
	})
	assert.Equal(t, QueueConfig{QueueSize: 4, Timeout: 2 * time.Second, MaxRetries: 5, RetryDelay: 300 * time.Millisecond}, cfg)
}

func TestUploadsInFIFOOrder(t *testing.T) {
	sink := newFakeSink()
	q := newStartedQueue(t, sink, testConfig())

	for i := 0; i < 5; i++ {
		require.NoError(t, q.Enqueue(job(fmt.Sprintf("k%d", i))))
	}
	require.NoError(t, q.Shutdown(context.Background()))

	keys, _ := sink.snapshot()
	assert.Equal(t, []string{"k0", "k1", "k2", "k3", "k4"}, keys)

	stats := q.GetStats()
	assert.Equal(t, int64(5), stats.Enqueued)
	assert.Equal(t, int64(5), stats.Uploaded)
	assert.Equal(t, "k4", stats.LastKey)
	assert.False(t, stats.LastSuccess.IsZero())
	assert.Zero(t, stats.Pending)
}

func TestRetriesUntilSuccess(t *testing.T) {
	sink := newFakeSink()
	sink.failN = 2
	q := newStartedQueue(t, sink, testConfig())

	require.NoError(t, q.Enqueue(job("k")))
	require.NoError(t, q.Shutdown(context.Background()))

	keys, attempts := sink.snapshot()
	assert.Equal(t, []string{"k"}, keys)
	assert.Equal(t, 3, attempts)

	stats := q.GetStats()
	assert.Equal(t, int64(1), stats.Uploaded)
	assert.Equal(t, int64(2), stats.Retries)
	assert.Zero(t, stats.Failed)
}

func TestDropsAfterRetriesExhausted(t *testing.T) {
	sink := newFakeSink()
	sink.failN = -1
	cfg := testConfig()
	cfg.MaxRetries = 2
	q := newStartedQueue(t, sink, cfg)

	require.NoError(t, q.Enqueue(job("lost")))
	require.NoError(t, q.Enqueue(job("also-lost")))
	require.NoError(t, q.Shutdown(context.Background()))

	keys, attempts := sink.snapshot()
	assert.Empty(t, keys)
	assert.Equal(t, 6, attempts, "each job gets one attempt plus MaxRetries")

	stats := q.GetStats()
	assert.Equal(t, int64(2), stats.Failed)
	assert.Equal(t, int64(2), stats.Dropped)
	assert.Zero(t, stats.Uploaded)
}

func TestNoRetriesMeansSingleAttempt(t *testing.T) {
	sink := newFakeSink()
	sink.failN = -1
	cfg := testConfig()
	cfg.MaxRetries = 0
	q := newStartedQueue(t, sink, cfg)

	require.NoError(t, q.Enqueue(job("k")))
	require.NoError(t, q.Shutdown(context.Background()))

	_, attempts := sink.snapshot()
	assert.Equal(t, 1, attempts)
}

func TestFullQueueDropsOldest(t *testing.T) {
	sink := newFakeSink()
	sink.gate = make(chan struct{})
	sink.started = make(chan struct{}, 16)
	cfg := testConfig()
	cfg.QueueSize = 2
	q := newStartedQueue(t, sink, cfg)

	require.NoError(t, q.Enqueue(job("k0")))
	<-sink.started // consumer holds k0

	for _, k := range []string{"k1", "k2", "k3"} {
		require.NoError(t, q.Enqueue(job(k)))
	}
	assert.Equal(t, 2, q.Len())

	close(sink.gate)
	require.NoError(t, q.Shutdown(context.Background()))

	keys, _ := sink.snapshot()
	assert.Equal(t, []string{"k0", "k2", "k3"}, keys)
	assert.Equal(t, int64(1), q.GetStats().Dropped)
}

func TestEnqueueRequiresRunningQueue(t *testing.T) {
	q, err := NewQueue(newFakeSink(), testConfig(), nil)
	require.NoError(t, err)
	assert.ErrorIs(t, q.Enqueue(job("early")), ErrQueueShutdown)

	q.Start()
	require.NoError(t, q.Shutdown(context.Background()))
	assert.ErrorIs(t, q.Enqueue(job("late")), ErrQueueShutdown)

	// A second shutdown is a no-op.
	assert.NoError(t, q.Shutdown(context.Background()))
}

func TestShutdownDeadlineCancelsInFlightUpload(t *testing.T) {
	sink := newFakeSink()
	sink.gate = make(chan struct{}) // never released
	cfg := testConfig()
	cfg.Timeout = time.Hour
	q := newStartedQueue(t, sink, cfg)

	require.NoError(t, q.Enqueue(job("stuck")))

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	err := q.Shutdown(ctx)
	assert.ErrorIs(t, err, context.DeadlineExceeded)

	stats := q.GetStats()
	assert.Equal(t, int64(1), stats.Failed)
	assert.Zero(t, stats.Uploaded)
}

func TestPerAttemptTimeout(t *testing.T) {
	sink := newFakeSink()
	sink.gate = make(chan struct{}) // never released; only the attempt timeout frees Put
	cfg := testConfig()
	cfg.Timeout = 10 * time.Millisecond
	cfg.MaxRetries = 1
	q := newStartedQueue(t, sink, cfg)

	require.NoError(t, q.Enqueue(job("slow")))
	require.NoError(t, q.Shutdown(context.Background()))

	assert.Equal(t, int64(1), q.GetStats().Failed)
}

func TestEnqueueSnapshot(t *testing.T) {
	sink := newFakeSink()
	q := newStartedQueue(t, sink, testConfig())

	snap := &models.Snapshot{
		ID:        "id-1",
		Kind:      models.SnapshotAggregate,
		CreatedAt: time.Date(2024, 1, 2, 3, 4, 5, 0, time.UTC),
		Values:    map[models.SensorID]float64{"s1": 21.5},
	}
	key, err := q.EnqueueSnapshot("temps", snap)
	require.NoError(t, err)
	assert.Equal(t, "temps/agg/2024-01-02T03:04:05Z.json", key)

	require.NoError(t, q.Shutdown(context.Background()))
	sink.mu.Lock()
	defer sink.mu.Unlock()
	assert.JSONEq(t, `{"s1":21.5}`, string(sink.blobs[key]))
}

// Settings the queue refuses must already fail configuration validation.
func TestValidatedUploadConfigBuildsQueue(t *testing.T) {
	edgeCfg := config.DefaultEdgeConfig()
	require.NoError(t, edgeCfg.Validate())
	_, err := NewQueue(newFakeSink(), QueueConfigFrom(edgeCfg.Upload), nil)
	require.NoError(t, err)

	tests := []struct {
		name   string
		mutate func(*config.UploadConfig)
	}{
		{"zero queue size", func(c *config.UploadConfig) { c.QueueSize = 0 }},
		{"zero timeout", func(c *config.UploadConfig) { c.Timeout = 0 }},
		{"negative retries", func(c *config.UploadConfig) { c.MaxRetries = -1 }},
		{"zero retry delay", func(c *config.UploadConfig) { c.RetryDelay = 0 }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := config.DefaultEdgeConfig()
			tt.mutate(&cfg.Upload)

			_, err := NewQueue(newFakeSink(), QueueConfigFrom(cfg.Upload), nil)
			assert.ErrorIs(t, err, ErrInvalidConfig)
			assert.Error(t, cfg.Validate())
		})
	}
}
