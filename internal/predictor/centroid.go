package predictor

import (
	"fmt"
	"math"
	"sort"
	"time"

	"gonum.org/v1/gonum/floats"
)

// NearestCentroid is a minimal in-process classifier used when no
// external model backend is configured. It memorizes one mean feature
// vector per label and scores candidates by Euclidean distance, with a
// softmax over negative distances as the probability estimate. It is
// intentionally simple: a deployment with a real trained model replaces
// it behind the same Predictor interface.
//
// Not safe for concurrent use; callers go through Guard.
type NearestCentroid struct {
	features    []string
	classes     []string
	centroids   map[string][]float64
	sampleCount int
	trainedAt   time.Time
}

// NewNearestCentroid creates an untrained classifier. Predict returns
// ErrNotInitialized until Train has been called.
func NewNearestCentroid() *NearestCentroid {
	return &NearestCentroid{}
}

// Predict scores the feature vector against every class centroid.
func (nc *NearestCentroid) Predict(features map[string]float64) ([]string, []float64, error) {
	if len(nc.classes) == 0 {
		return nil, nil, ErrNotInitialized
	}

	vec := nc.vectorize(features)
	scores := make([]float64, len(nc.classes))
	for i, class := range nc.classes {
		scores[i] = -floats.Distance(vec, nc.centroids[class], 2)
	}

	// Softmax over negative distances. Shift by the max score so the
	// exponentials stay finite.
	maxScore := floats.Max(scores)
	probs := make([]float64, len(scores))
	for i, s := range scores {
		probs[i] = math.Exp(s - maxScore)
	}
	total := floats.Sum(probs)
	for i := range probs {
		probs[i] /= total
	}

	labels := make([]string, len(nc.classes))
	copy(labels, nc.classes)
	return labels, probs, nil
}

// Train replaces the model with per-class centroids computed from the
// samples. The feature space is the union of all sample feature keys;
// missing keys are treated as zero.
func (nc *NearestCentroid) Train(samples []Sample) (map[string]any, error) {
	if len(samples) == 0 {
		return nil, fmt.Errorf("train: no samples")
	}

	featureSet := make(map[string]struct{})
	for _, s := range samples {
		if s.Label == "" {
			return nil, fmt.Errorf("train: sample with empty label")
		}
		for k := range s.Features {
			featureSet[k] = struct{}{}
		}
	}
	features := make([]string, 0, len(featureSet))
	for k := range featureSet {
		features = append(features, k)
	}
	sort.Strings(features)

	sums := make(map[string][]float64)
	counts := make(map[string]int)
	for _, s := range samples {
		vec := vectorizeWith(features, s.Features)
		if acc, ok := sums[s.Label]; ok {
			floats.Add(acc, vec)
		} else {
			sums[s.Label] = vec
		}
		counts[s.Label]++
	}

	classes := make([]string, 0, len(sums))
	centroids := make(map[string][]float64, len(sums))
	for label, sum := range sums {
		floats.Scale(1/float64(counts[label]), sum)
		centroids[label] = sum
		classes = append(classes, label)
	}
	sort.Strings(classes)

	nc.features = features
	nc.classes = classes
	nc.centroids = centroids
	nc.sampleCount = len(samples)
	nc.trainedAt = time.Now().UTC()

	accuracy := nc.accuracy(samples)
	return map[string]any{
		"samples":    len(samples),
		"classes":    len(classes),
		"features":   len(features),
		"accuracy":   accuracy,
		"trained_at": nc.trainedAt,
	}, nil
}

// Evaluate scores a held-out sample set without changing the model.
func (nc *NearestCentroid) Evaluate(samples []Sample) (map[string]any, error) {
	if len(nc.classes) == 0 {
		return nil, ErrNotInitialized
	}
	if len(samples) == 0 {
		return nil, fmt.Errorf("evaluate: no samples")
	}
	return map[string]any{
		"samples":  len(samples),
		"accuracy": nc.accuracy(samples),
	}, nil
}

func (nc *NearestCentroid) accuracy(samples []Sample) float64 {
	correct := 0
	for _, s := range samples {
		labels, probs, err := nc.Predict(s.Features)
		if err != nil {
			continue
		}
		best := 0
		for i := range probs {
			if probs[i] > probs[best] {
				best = i
			}
		}
		if labels[best] == s.Label {
			correct++
		}
	}
	return float64(correct) / float64(len(samples))
}

func (nc *NearestCentroid) vectorize(features map[string]float64) []float64 {
	return vectorizeWith(nc.features, features)
}

func vectorizeWith(order []string, features map[string]float64) []float64 {
	vec := make([]float64, len(order))
	for i, k := range order {
		vec[i] = features[k]
	}
	return vec
}
