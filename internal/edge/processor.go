// Package edge runs the driving loop of the edge processor: periodic ranking
// queries over the windowed store and scheduled snapshot emission.
package edge

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/cisco/edge-temperature-pipeline/internal/metrics"
	"github.com/cisco/edge-temperature-pipeline/internal/query"
	"github.com/cisco/edge-temperature-pipeline/internal/scheduler"
	"github.com/cisco/edge-temperature-pipeline/internal/window"
	"github.com/cisco/edge-temperature-pipeline/pkg/config"
	"github.com/cisco/edge-temperature-pipeline/pkg/models"
)

// SnapshotEnqueuer accepts snapshots for asynchronous upload.
// *uploader.Queue implements it.
type SnapshotEnqueuer interface {
	EnqueueSnapshot(prefix string, snap *models.Snapshot) (string, error)
}

// QueryResult is the latest evaluation of one configured ranking query.
type QueryResult struct {
	Name      string                `json:"name"`
	K         int                   `json:"k"`
	Sensors   []models.SensorID     `json:"sensors"`
	Ranking   []models.RankedSensor `json:"ranking"`
	Evaluated time.Time             `json:"evaluated"`
}

// Status summarizes the driving loop.
type Status struct {
	Ticks        int64         `json:"ticks"`
	Emissions    int64         `json:"emissions"`
	LastTick     time.Time     `json:"last_tick,omitempty"`
	LastEmit     time.Time     `json:"last_emit,omitempty"`
	LastKeys     []string      `json:"last_keys,omitempty"`
	State        string        `json:"scheduler_state"`
	NextEmitIn   time.Duration `json:"next_emit_in"`
	PollInterval time.Duration `json:"poll_interval"`
	AbsentPolicy string        `json:"absent_policy"`
}

// Processor owns the scheduler and evaluates queries on every tick.
type Processor struct {
	store   *window.Store
	engine  *query.Engine
	sched   *scheduler.Scheduler
	uploads SnapshotEnqueuer
	log     *zap.SugaredLogger

	queries []config.QueryConfig
	policy  query.AbsentPolicy
	kinds   []models.SnapshotKind
	prefix  string
	poll    time.Duration

	clock scheduler.Clock
	ticks <-chan time.Time // overrides the poll ticker when set

	mu        sync.RWMutex
	results   []QueryResult
	status    Status
	emitCount int64
	tickCount int64
}

// NewProcessor wires a processor over store. The scheduler's first interval
// starts now.
func NewProcessor(cfg config.EdgeConfig, store *window.Store, uploads SnapshotEnqueuer, logger *zap.SugaredLogger) (*Processor, error) {
	return newProcessor(cfg, store, uploads, logger, scheduler.SystemClock{})
}

func newProcessor(cfg config.EdgeConfig, store *window.Store, uploads SnapshotEnqueuer, logger *zap.SugaredLogger, clock scheduler.Clock) (*Processor, error) {
	if store == nil {
		return nil, errors.New("store is required")
	}
	if uploads == nil {
		return nil, errors.New("upload queue is required")
	}
	if cfg.PollInterval <= 0 {
		return nil, fmt.Errorf("poll interval must be positive, got %v", cfg.PollInterval)
	}
	if logger == nil {
		logger = zap.NewNop().Sugar()
	}

	policy, err := query.ParseAbsentPolicy(cfg.AbsentPolicy)
	if err != nil {
		return nil, err
	}

	kinds := make([]models.SnapshotKind, 0, len(cfg.Upload.Kinds))
	for _, k := range cfg.Upload.Kinds {
		kind := models.SnapshotKind(k)
		if !kind.Valid() {
			return nil, fmt.Errorf("unknown snapshot kind %q", k)
		}
		kinds = append(kinds, kind)
	}
	if len(kinds) == 0 {
		kinds = []models.SnapshotKind{models.SnapshotAggregate}
	}

	sched, err := scheduler.New(cfg.Upload.Interval, clock.Now())
	if err != nil {
		return nil, err
	}

	return &Processor{
		store:   store,
		engine:  query.NewEngine(store),
		sched:   sched,
		uploads: uploads,
		log:     logger,
		queries: cfg.Queries,
		policy:  policy,
		kinds:   kinds,
		prefix:  cfg.Upload.Prefix,
		poll:    cfg.PollInterval,
		clock:   clock,
	}, nil
}

// Engine exposes the query engine for on-demand queries.
func (p *Processor) Engine() *query.Engine {
	return p.engine
}

// Run ticks every poll interval until ctx is cancelled.
func (p *Processor) Run(ctx context.Context) error {
	ticks := p.ticks
	if ticks == nil {
		ticker := time.NewTicker(p.poll)
		defer ticker.Stop()
		ticks = ticker.C
	}

	p.log.Infow("Edge processor started",
		"poll_interval", p.poll, "upload_interval", p.sched.Interval(),
		"queries", len(p.queries), "absent_policy", p.policy.String())

	for {
		select {
		case <-ctx.Done():
			p.log.Info("Edge processor stopped")
			return nil
		case <-ticks:
			p.Tick()
		}
	}
}

// Tick evaluates every configured query and emits snapshots when the
// scheduler is due. It reports whether an emission happened.
func (p *Processor) Tick() bool {
	now := p.clock.Now()
	results := p.evaluate(now)

	stats := p.store.Stats()
	metrics.SensorsKnown.Set(float64(stats.Sensors))

	// Only Tick writes the scheduler; Status reads it under mu.
	var keys []string
	emitted := p.sched.ShouldEmit(now)
	if emitted {
		keys = p.emit()
	}

	p.mu.Lock()
	p.tickCount++
	p.results = results
	p.status.LastTick = now
	if emitted {
		p.sched.MarkEmitted(now)
		p.emitCount++
		p.status.LastEmit = now
		p.status.LastKeys = keys
	}
	p.mu.Unlock()
	return emitted
}

func (p *Processor) evaluate(now time.Time) []QueryResult {
	results := make([]QueryResult, 0, len(p.queries))
	for _, q := range p.queries {
		subset := models.SensorIDs(q.Sensors...)
		ranking := p.engine.Rank(q.K, subset, p.policy)
		results = append(results, QueryResult{
			Name:      q.Name,
			K:         q.K,
			Sensors:   subset,
			Ranking:   ranking,
			Evaluated: now,
		})
		p.log.Infow("Top-k", "query", q.Name, "k", q.K, "ranking", ranking)
	}
	return results
}

// emit hands one snapshot per configured kind to the upload queue. Enqueue
// failures are logged; the scheduler advances either way.
func (p *Processor) emit() []string {
	keys := make([]string, 0, len(p.kinds))
	for _, kind := range p.kinds {
		snap, err := p.engine.Snapshot(kind)
		if err != nil {
			p.log.Errorw("Failed to build snapshot", "kind", kind, "error", err)
			continue
		}

		key, err := p.uploads.EnqueueSnapshot(p.prefix, &snap)
		if err != nil {
			p.log.Errorw("Failed to enqueue snapshot", "kind", kind, "key", key, "error", err)
			continue
		}
		metrics.SnapshotsEmitted.WithLabelValues(string(kind)).Inc()
		p.log.Infow("Snapshot emitted", "kind", kind, "key", key, "sensors", len(snap.Values))
		keys = append(keys, key)
	}
	return keys
}

// Results returns the most recent query evaluations.
func (p *Processor) Results() []QueryResult {
	p.mu.RLock()
	defer p.mu.RUnlock()
	out := make([]QueryResult, len(p.results))
	copy(out, p.results)
	return out
}

// Status returns the loop counters and scheduler position.
func (p *Processor) Status() Status {
	now := p.clock.Now()

	p.mu.RLock()
	st := p.status
	st.Ticks = p.tickCount
	st.Emissions = p.emitCount
	st.LastKeys = append([]string(nil), p.status.LastKeys...)
	st.State = p.sched.State(now).String()
	remaining := p.sched.Interval() - p.sched.Elapsed(now)
	p.mu.RUnlock()

	if remaining > 0 {
		st.NextEmitIn = remaining
	}
	st.PollInterval = p.poll
	st.AbsentPolicy = p.policy.String()
	return st
}
