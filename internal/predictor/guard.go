package predictor

import (
	"errors"
	"log/slog"
	"sync"

	"github.com/PanagiotisVasilakis/thesis-sub000/internal/circuitbreaker"
)

// ErrEvaluateUnsupported is returned when the wrapped backend does not
// implement Evaluator.
var ErrEvaluateUnsupported = errors.New("predictor: backend does not support evaluation")

// Guard serializes every call into a shared Predictor behind one
// exclusive lock. Classifier backends mutate internal state during
// training and are not safe to share, so predict and train take the same
// lock: correctness over throughput. A circuit breaker short-circuits
// predict calls while the backend keeps failing.
type Guard struct {
	mu      sync.Mutex
	backend Predictor
	breaker *circuitbreaker.Breaker
	logger  *slog.Logger
}

// NewGuard wraps a backend. The breaker may be nil to disable
// short-circuiting.
func NewGuard(backend Predictor, breaker *circuitbreaker.Breaker, logger *slog.Logger) *Guard {
	if logger == nil {
		logger = slog.Default()
	}
	return &Guard{
		backend: backend,
		breaker: breaker,
		logger:  logger.With("component", "predictor_guard"),
	}
}

// Predict calls the backend under the model lock.
func (g *Guard) Predict(features map[string]float64) ([]string, []float64, error) {
	if g.breaker != nil {
		if err := g.breaker.Allow(); err != nil {
			return nil, nil, err
		}
	}

	g.mu.Lock()
	labels, probs, err := g.backend.Predict(features)
	g.mu.Unlock()

	if g.breaker != nil {
		if err != nil {
			g.breaker.RecordFailure()
		} else {
			g.breaker.RecordSuccess()
		}
	}
	if err != nil {
		return nil, nil, err
	}
	if len(labels) != len(probs) {
		return nil, nil, errors.New("predictor: label/probability length mismatch")
	}
	return labels, probs, nil
}

// Train calls the backend under the model lock. Training failures do not
// trip the breaker; only the predict path degrades decisions.
func (g *Guard) Train(samples []Sample) (map[string]any, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.backend.Train(samples)
}

// Evaluate scores samples under the model lock when the backend supports
// it.
func (g *Guard) Evaluate(samples []Sample) (map[string]any, error) {
	ev, ok := g.backend.(Evaluator)
	if !ok {
		return nil, ErrEvaluateUnsupported
	}
	g.mu.Lock()
	defer g.mu.Unlock()
	return ev.Evaluate(samples)
}
