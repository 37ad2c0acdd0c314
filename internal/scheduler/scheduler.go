// Package scheduler serializes asynchronous classifier work (predict,
// train, evaluate) through a priority queue and a fixed worker pool, so
// callers under load can submit and await instead of blocking on the
// model lock directly.
package scheduler

import (
	"container/heap"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"runtime"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/PanagiotisVasilakis/thesis-sub000/internal/metrics"
	"github.com/PanagiotisVasilakis/thesis-sub000/internal/predictor"
)

var (
	// ErrQueueFull rejects a submission when pending+running operations
	// reach the queue capacity. Callers decide whether to retry.
	ErrQueueFull = errors.New("scheduler: queue full")

	// ErrTimeout is returned by Await when the deadline passes first;
	// the operation is cancelled cooperatively.
	ErrTimeout = errors.New("scheduler: operation timed out")

	// ErrCancelled is returned by Await for operations cancelled by
	// another caller.
	ErrCancelled = errors.New("scheduler: operation cancelled")

	// ErrNotFound is returned for unknown or already purged operations.
	ErrNotFound = errors.New("scheduler: operation not found")
)

const (
	// DefaultQueueSize bounds tracked (pending+running) operations.
	DefaultQueueSize = 1000

	// DefaultRetention keeps terminal operations visible to Await/Get
	// before purging.
	DefaultRetention = time.Hour

	purgeInterval = time.Minute
)

// Backend is the synchronous classifier surface the workers drive. The
// predictor Guard satisfies it; the same model lock serializes scheduler
// work and direct pipeline calls.
type Backend interface {
	Predict(features map[string]float64) ([]string, []float64, error)
	Train(samples []predictor.Sample) (map[string]any, error)
	Evaluate(samples []predictor.Sample) (map[string]any, error)
}

// Config sizes the scheduler.
type Config struct {
	QueueSize int
	Workers   int
	Retention time.Duration
}

// WorkerStats counts per-worker activity.
type WorkerStats struct {
	Executed int64
	Failed   int64
}

// Stats is a point-in-time scheduler snapshot.
type Stats struct {
	QueueSize      int
	Pending        int
	Running        int
	TotalSubmitted int64
	TotalCompleted int64
	TotalFailed    int64
	TotalCancelled int64
	Workers        []WorkerStats
}

// Scheduler is a priority work queue over a fixed worker pool.
type Scheduler struct {
	backend Backend
	cfg     Config
	logger  *slog.Logger
	nowFn   func() time.Time

	mu      sync.Mutex
	pending opHeap
	ops     map[string]*operation
	seq     uint64
	tracked int // pending + running
	running int

	totalSubmitted int64
	totalCompleted int64
	totalFailed    int64
	totalCancelled int64
	workerStats    []WorkerStats

	wake chan struct{}
}

// New creates a scheduler. Fails fast on invalid sizing.
func New(backend Backend, cfg Config, logger *slog.Logger) (*Scheduler, error) {
	if backend == nil {
		return nil, fmt.Errorf("scheduler: backend is required")
	}
	if cfg.QueueSize == 0 {
		cfg.QueueSize = DefaultQueueSize
	}
	if cfg.QueueSize < 0 {
		return nil, fmt.Errorf("scheduler: queue size must be positive, got %d", cfg.QueueSize)
	}
	if cfg.Workers == 0 {
		cfg.Workers = runtime.NumCPU()
	}
	if cfg.Workers < 0 {
		return nil, fmt.Errorf("scheduler: worker count must be positive, got %d", cfg.Workers)
	}
	if cfg.Retention <= 0 {
		cfg.Retention = DefaultRetention
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Scheduler{
		backend:     backend,
		cfg:         cfg,
		logger:      logger.With("component", "scheduler"),
		nowFn:       time.Now,
		ops:         make(map[string]*operation),
		workerStats: make([]WorkerStats, cfg.Workers),
		wake:        make(chan struct{}, 1),
	}, nil
}

// Run starts the worker pool and the retention purger, blocking until
// ctx is cancelled.
func (s *Scheduler) Run(ctx context.Context) error {
	s.logger.Info("scheduler started", "workers", s.cfg.Workers, "queue_size", s.cfg.QueueSize)

	g, gCtx := errgroup.WithContext(ctx)
	for i := 0; i < s.cfg.Workers; i++ {
		workerID := i
		g.Go(func() error {
			return s.worker(gCtx, workerID)
		})
	}
	g.Go(func() error {
		return s.purgeLoop(gCtx)
	})

	err := g.Wait()
	s.logger.Info("scheduler stopped")
	if errors.Is(err, context.Canceled) {
		return nil
	}
	return err
}

// Submit enqueues an operation. Lower priority values are served first;
// equal priorities run in submission order.
func (s *Scheduler) Submit(kind Kind, payload any, priority int) (string, error) {
	s.mu.Lock()
	if s.tracked >= s.cfg.QueueSize {
		s.mu.Unlock()
		metrics.SchedulerOpsTotal.WithLabelValues("rejected").Inc()
		return "", ErrQueueFull
	}

	s.seq++
	op := &operation{
		id:        uuid.NewString(),
		kind:      kind,
		payload:   payload,
		priority:  priority,
		seq:       s.seq,
		createdAt: s.nowFn(),
		state:     StatePending,
		done:      make(chan struct{}),
	}
	heap.Push(&s.pending, op)
	s.ops[op.id] = op
	s.tracked++
	s.totalSubmitted++
	metrics.SchedulerQueueSize.Set(float64(s.pending.Len()))
	s.mu.Unlock()

	select {
	case s.wake <- struct{}{}:
	default:
	}
	return op.id, nil
}

// Await blocks until the operation reaches a terminal state or timeout
// elapses. On timeout the operation is cancelled cooperatively: a worker
// already executing it is not interrupted, but its result is discarded.
func (s *Scheduler) Await(ctx context.Context, id string, timeout time.Duration) (any, error) {
	s.mu.Lock()
	op, ok := s.ops[id]
	s.mu.Unlock()
	if !ok {
		return nil, ErrNotFound
	}

	timer := time.NewTimer(timeout)
	defer timer.Stop()

	select {
	case <-op.done:
	case <-timer.C:
		if s.Cancel(id) {
			return nil, ErrTimeout
		}
		// Lost the race: the operation finished as the timer fired.
	case <-ctx.Done():
		return nil, ctx.Err()
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	switch op.state {
	case StateCompleted:
		return op.result, nil
	case StateFailed:
		return nil, op.err
	case StateCancelled:
		return nil, ErrCancelled
	default:
		return nil, fmt.Errorf("scheduler: operation %s in unexpected state %s", id, op.state)
	}
}

// Cancel marks a pending or running operation cancelled. Running work is
// not interrupted; its result is discarded on completion. Returns false
// when the operation is unknown or already terminal.
func (s *Scheduler) Cancel(id string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	op, ok := s.ops[id]
	if !ok || op.state.Terminal() {
		return false
	}

	if op.state == StateRunning {
		s.running--
		metrics.SchedulerRunning.Set(float64(s.running))
	}
	s.tracked--
	op.state = StateCancelled
	op.completedAt = s.nowFn()
	s.totalCancelled++
	metrics.SchedulerOpsTotal.WithLabelValues("cancelled").Inc()
	close(op.done)
	return true
}

// Get returns a snapshot of an operation.
func (s *Scheduler) Get(id string) (OperationView, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	op, ok := s.ops[id]
	if !ok {
		return OperationView{}, false
	}
	return op.view(), true
}

// Stats returns a snapshot of queue and worker counters.
func (s *Scheduler) Stats() Stats {
	s.mu.Lock()
	defer s.mu.Unlock()
	workers := make([]WorkerStats, len(s.workerStats))
	copy(workers, s.workerStats)
	return Stats{
		QueueSize:      s.pending.Len(),
		Pending:        s.tracked - s.running,
		Running:        s.running,
		TotalSubmitted: s.totalSubmitted,
		TotalCompleted: s.totalCompleted,
		TotalFailed:    s.totalFailed,
		TotalCancelled: s.totalCancelled,
		Workers:        workers,
	}
}

func (s *Scheduler) worker(ctx context.Context, workerID int) error {
	for {
		op := s.next()
		if op == nil {
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-s.wake:
				continue
			}
		}

		// More work may be queued behind this one; nudge a sibling.
		select {
		case s.wake <- struct{}{}:
		default:
		}

		start := s.nowFn()
		result, err := s.execute(op)
		latency := s.nowFn().Sub(start)
		metrics.SchedulerOpLatency.WithLabelValues(string(op.kind)).Observe(latency.Seconds())

		s.mu.Lock()
		if op.state == StateCancelled {
			// Cancelled mid-flight: discard whatever the backend produced.
			s.mu.Unlock()
			continue
		}
		op.completedAt = s.nowFn()
		s.running--
		s.tracked--
		if err != nil {
			op.state = StateFailed
			op.err = err
			s.totalFailed++
			s.workerStats[workerID].Failed++
			metrics.SchedulerOpsTotal.WithLabelValues("failed").Inc()
		} else {
			op.state = StateCompleted
			op.result = result
			s.totalCompleted++
			metrics.SchedulerOpsTotal.WithLabelValues("completed").Inc()
		}
		s.workerStats[workerID].Executed++
		metrics.SchedulerRunning.Set(float64(s.running))
		close(op.done)
		s.mu.Unlock()

		if err != nil {
			s.logger.Warn("operation failed",
				"operation_id", op.id,
				"kind", op.kind,
				"error", err,
			)
		}
	}
}

// next pops the highest-priority pending operation, skipping entries
// cancelled while queued. Returns nil when the queue is empty.
func (s *Scheduler) next() *operation {
	s.mu.Lock()
	defer s.mu.Unlock()
	for s.pending.Len() > 0 {
		op := heap.Pop(&s.pending).(*operation)
		metrics.SchedulerQueueSize.Set(float64(s.pending.Len()))
		if op.state != StatePending {
			continue
		}
		op.state = StateRunning
		op.startedAt = s.nowFn()
		s.running++
		metrics.SchedulerRunning.Set(float64(s.running))
		return op
	}
	return nil
}

func (s *Scheduler) execute(op *operation) (any, error) {
	switch op.kind {
	case KindPredict:
		p, ok := op.payload.(PredictPayload)
		if !ok {
			return nil, fmt.Errorf("scheduler: predict payload has type %T", op.payload)
		}
		labels, probs, err := s.backend.Predict(p.Features)
		if err != nil {
			return nil, err
		}
		return PredictResult{Labels: labels, Probabilities: probs}, nil
	case KindTrain:
		p, ok := op.payload.(TrainPayload)
		if !ok {
			return nil, fmt.Errorf("scheduler: train payload has type %T", op.payload)
		}
		return s.backend.Train(p.Samples)
	case KindEvaluate:
		p, ok := op.payload.(EvaluatePayload)
		if !ok {
			return nil, fmt.Errorf("scheduler: evaluate payload has type %T", op.payload)
		}
		return s.backend.Evaluate(p.Samples)
	default:
		return nil, fmt.Errorf("scheduler: unknown operation kind %q", op.kind)
	}
}

// purgeLoop drops terminal operations older than the retention window.
func (s *Scheduler) purgeLoop(ctx context.Context) error {
	ticker := time.NewTicker(purgeInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			s.purge()
		}
	}
}

func (s *Scheduler) purge() {
	cutoff := s.nowFn().Add(-s.cfg.Retention)
	s.mu.Lock()
	removed := 0
	for id, op := range s.ops {
		if op.state.Terminal() && op.completedAt.Before(cutoff) {
			delete(s.ops, id)
			removed++
		}
	}
	s.mu.Unlock()
	if removed > 0 {
		s.logger.Debug("purged operations", "count", removed)
	}
}
