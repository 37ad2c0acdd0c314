package scheduler

import (
	"time"

	"github.com/PanagiotisVasilakis/thesis-sub000/internal/predictor"
)

// Kind is the type of work an operation carries.
type Kind string

const (
	KindPredict  Kind = "predict"
	KindTrain    Kind = "train"
	KindEvaluate Kind = "evaluate"
)

// State is an operation's lifecycle state.
type State string

const (
	StatePending   State = "pending"
	StateRunning   State = "running"
	StateCompleted State = "completed"
	StateFailed    State = "failed"
	StateCancelled State = "cancelled"
)

// Terminal reports whether the state is final.
func (s State) Terminal() bool {
	return s == StateCompleted || s == StateFailed || s == StateCancelled
}

// PredictPayload asks for class probabilities for one feature vector.
type PredictPayload struct {
	Features map[string]float64
}

// PredictResult carries the classifier output.
type PredictResult struct {
	Labels        []string
	Probabilities []float64
}

// TrainPayload asks for a model fit over the given samples.
type TrainPayload struct {
	Samples []predictor.Sample
}

// EvaluatePayload asks for held-out scoring of the given samples.
type EvaluatePayload struct {
	Samples []predictor.Sample
}

// operation is the internal tracked unit of work. Fields are guarded by
// the scheduler mutex; done is closed exactly once on the transition to
// a terminal state.
type operation struct {
	id       string
	kind     Kind
	payload  any
	priority int
	seq      uint64

	createdAt   time.Time
	startedAt   time.Time
	completedAt time.Time

	state  State
	result any
	err    error

	done chan struct{}
}

// OperationView is a caller-visible snapshot of an operation.
type OperationView struct {
	ID          string
	Kind        Kind
	Priority    int
	State       State
	CreatedAt   time.Time
	StartedAt   time.Time
	CompletedAt time.Time
	Result      any
	Err         error
}

func (op *operation) view() OperationView {
	return OperationView{
		ID:          op.id,
		Kind:        op.kind,
		Priority:    op.priority,
		State:       op.state,
		CreatedAt:   op.createdAt,
		StartedAt:   op.startedAt,
		CompletedAt: op.completedAt,
		Result:      op.result,
		Err:         op.err,
	}
}

// opHeap orders pending operations by priority (lower first), ties
// broken by submission order.
type opHeap []*operation

func (h opHeap) Len() int { return len(h) }

func (h opHeap) Less(i, j int) bool {
	if h[i].priority != h[j].priority {
		return h[i].priority < h[j].priority
	}
	return h[i].seq < h[j].seq
}

func (h opHeap) Swap(i, j int) { h[i], h[j] = h[j], h[i] }

func (h *opHeap) Push(x any) {
	*h = append(*h, x.(*operation))
}

func (h *opHeap) Pop() any {
	old := *h
	n := len(old)
	op := old[n-1]
	old[n-1] = nil
	*h = old[:n-1]
	return op
}
