package scheduler

import (
	"container/heap"
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/PanagiotisVasilakis/thesis-sub000/internal/predictor"
)

// fakeBackend records call order and can be made arbitrarily slow.
type fakeBackend struct {
	mu         sync.Mutex
	calls      []string
	delay      time.Duration
	predictErr error
}

func (f *fakeBackend) Predict(map[string]float64) ([]string, []float64, error) {
	f.record("predict")
	if f.predictErr != nil {
		return nil, nil, f.predictErr
	}
	return []string{"cell-1"}, []float64{1.0}, nil
}

func (f *fakeBackend) Train([]predictor.Sample) (map[string]any, error) {
	f.record("train")
	return map[string]any{"accuracy": 0.97}, nil
}

func (f *fakeBackend) Evaluate([]predictor.Sample) (map[string]any, error) {
	f.record("evaluate")
	return map[string]any{"f1": 0.9}, nil
}

func (f *fakeBackend) record(name string) {
	f.mu.Lock()
	delay := f.delay
	f.calls = append(f.calls, name)
	f.mu.Unlock()
	if delay > 0 {
		time.Sleep(delay)
	}
}

func (f *fakeBackend) callCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.calls)
}

func startScheduler(t *testing.T, s *Scheduler) context.CancelFunc {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		defer close(done)
		_ = s.Run(ctx)
	}()
	t.Cleanup(func() {
		cancel()
		<-done
	})
	return cancel
}

func TestScheduler_SubmitAndAwait(t *testing.T) {
	backend := &fakeBackend{}
	s, err := New(backend, Config{Workers: 2, QueueSize: 10}, nil)
	require.NoError(t, err)
	startScheduler(t, s)

	id, err := s.Submit(KindPredict, PredictPayload{Features: map[string]float64{"x": 1}}, 0)
	require.NoError(t, err)

	result, err := s.Await(context.Background(), id, 2*time.Second)
	require.NoError(t, err)

	pr, ok := result.(PredictResult)
	require.True(t, ok)
	assert.Equal(t, []string{"cell-1"}, pr.Labels)
	assert.Equal(t, 1, backend.callCount())

	view, ok := s.Get(id)
	require.True(t, ok)
	assert.Equal(t, StateCompleted, view.State)
	assert.False(t, view.CompletedAt.IsZero())
}

func TestScheduler_QueueFull(t *testing.T) {
	// No workers running: everything stays pending.
	s, err := New(&fakeBackend{}, Config{Workers: 1, QueueSize: 3}, nil)
	require.NoError(t, err)

	for i := 0; i < 3; i++ {
		_, err := s.Submit(KindPredict, PredictPayload{}, 0)
		require.NoError(t, err)
	}

	_, err = s.Submit(KindPredict, PredictPayload{}, 0)
	assert.ErrorIs(t, err, ErrQueueFull)
}

func TestScheduler_AwaitTimeoutCancels(t *testing.T) {
	backend := &fakeBackend{delay: 500 * time.Millisecond}
	s, err := New(backend, Config{Workers: 1, QueueSize: 10}, nil)
	require.NoError(t, err)
	startScheduler(t, s)

	id, err := s.Submit(KindPredict, PredictPayload{}, 0)
	require.NoError(t, err)

	_, err = s.Await(context.Background(), id, 10*time.Millisecond)
	assert.ErrorIs(t, err, ErrTimeout)

	view, ok := s.Get(id)
	require.True(t, ok)
	assert.Equal(t, StateCancelled, view.State)

	// The worker is not interrupted; its eventual result is discarded.
	time.Sleep(600 * time.Millisecond)
	view, _ = s.Get(id)
	assert.Equal(t, StateCancelled, view.State)
	assert.Nil(t, view.Result)
}

func TestScheduler_PriorityOrdering(t *testing.T) {
	s, err := New(&fakeBackend{}, Config{Workers: 1, QueueSize: 10}, nil)
	require.NoError(t, err)

	// Fill the queue before any worker runs, then drain via next().
	lowID, err := s.Submit(KindTrain, TrainPayload{}, 10)
	require.NoError(t, err)
	highID, err := s.Submit(KindPredict, PredictPayload{}, 1)
	require.NoError(t, err)
	midID, err := s.Submit(KindEvaluate, EvaluatePayload{}, 5)
	require.NoError(t, err)

	assert.Equal(t, highID, s.next().id)
	assert.Equal(t, midID, s.next().id)
	assert.Equal(t, lowID, s.next().id)
	assert.Nil(t, s.next())
}

func TestScheduler_PriorityTieBrokenBySubmission(t *testing.T) {
	s, err := New(&fakeBackend{}, Config{Workers: 1, QueueSize: 10}, nil)
	require.NoError(t, err)

	first, _ := s.Submit(KindPredict, PredictPayload{}, 5)
	second, _ := s.Submit(KindPredict, PredictPayload{}, 5)

	assert.Equal(t, first, s.next().id)
	assert.Equal(t, second, s.next().id)
}

func TestScheduler_FailedOperation(t *testing.T) {
	backendErr := errors.New("model not loaded")
	s, err := New(&fakeBackend{predictErr: backendErr}, Config{Workers: 1, QueueSize: 10}, nil)
	require.NoError(t, err)
	startScheduler(t, s)

	id, err := s.Submit(KindPredict, PredictPayload{}, 0)
	require.NoError(t, err)

	_, err = s.Await(context.Background(), id, 2*time.Second)
	assert.ErrorIs(t, err, backendErr)

	view, _ := s.Get(id)
	assert.Equal(t, StateFailed, view.State)
}

func TestScheduler_CancelPendingIsSkipped(t *testing.T) {
	s, err := New(&fakeBackend{}, Config{Workers: 1, QueueSize: 10}, nil)
	require.NoError(t, err)

	id, err := s.Submit(KindPredict, PredictPayload{}, 0)
	require.NoError(t, err)
	require.True(t, s.Cancel(id))
	assert.False(t, s.Cancel(id), "second cancel is a no-op")

	assert.Nil(t, s.next(), "cancelled pending operation must be skipped")

	_, err = s.Await(context.Background(), id, time.Second)
	assert.ErrorIs(t, err, ErrCancelled)
}

func TestScheduler_UnknownOperation(t *testing.T) {
	s, err := New(&fakeBackend{}, Config{Workers: 1, QueueSize: 10}, nil)
	require.NoError(t, err)

	_, err = s.Await(context.Background(), "nope", time.Millisecond)
	assert.ErrorIs(t, err, ErrNotFound)
	assert.False(t, s.Cancel("nope"))
}

func TestScheduler_StatsAndPurge(t *testing.T) {
	s, err := New(&fakeBackend{}, Config{Workers: 1, QueueSize: 10, Retention: time.Hour}, nil)
	require.NoError(t, err)
	startScheduler(t, s)

	id, err := s.Submit(KindTrain, TrainPayload{}, 0)
	require.NoError(t, err)
	_, err = s.Await(context.Background(), id, 2*time.Second)
	require.NoError(t, err)

	stats := s.Stats()
	assert.Equal(t, int64(1), stats.TotalSubmitted)
	assert.Equal(t, int64(1), stats.TotalCompleted)
	assert.Equal(t, 0, stats.Pending)
	assert.Equal(t, 0, stats.Running)

	// Terminal op older than retention disappears on purge.
	s.nowFn = func() time.Time { return time.Now().Add(2 * time.Hour) }
	s.purge()
	_, ok := s.Get(id)
	assert.False(t, ok)
}

func TestOpHeap_Ordering(t *testing.T) {
	h := &opHeap{}
	heap.Init(h)
	heap.Push(h, &operation{id: "c", priority: 3, seq: 1})
	heap.Push(h, &operation{id: "a", priority: 1, seq: 2})
	heap.Push(h, &operation{id: "b", priority: 1, seq: 3})

	assert.Equal(t, "a", heap.Pop(h).(*operation).id)
	assert.Equal(t, "b", heap.Pop(h).(*operation).id)
	assert.Equal(t, "c", heap.Pop(h).(*operation).id)
}
