// Package predictor defines the classifier boundary. The trained model
// itself lives outside this repository; the engine only sees class
// probabilities through the Predictor interface.
package predictor

import "errors"

// ErrNotInitialized is returned by backends that have no trained model
// loaded yet.
var ErrNotInitialized = errors.New("predictor: model not initialized")

// Sample is one labeled training observation.
type Sample struct {
	Features map[string]float64 `json:"features"`
	Label    string             `json:"label"`
}

// Predictor is the classifier contract. Implementations are not assumed
// safe for concurrent use; callers go through Guard.
type Predictor interface {
	// Predict returns the candidate antenna labels and their class
	// probabilities for a feature vector. Labels and probabilities are
	// parallel slices.
	Predict(features map[string]float64) (labels []string, probabilities []float64, err error)

	// Train fits the model on the given samples and returns backend-defined
	// training metrics (accuracy, loss, sample counts).
	Train(samples []Sample) (map[string]any, error)
}

// Evaluator is an optional extension for backends that can score a
// held-out sample set without retraining.
type Evaluator interface {
	Evaluate(samples []Sample) (map[string]any, error)
}
