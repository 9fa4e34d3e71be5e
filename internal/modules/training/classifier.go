package training

import (
	"math/rand"

	"github.com/skarlatos/scoreline/internal/domain"
)

// Supported algorithm identifiers.
const (
	AlgorithmRandomForest       = "random_forest"
	AlgorithmGradientBoosting   = "gradient_boosting"
	AlgorithmLogisticRegression = "logistic_regression"
)

// Outcome class labels. The order is load-bearing: probability slices index
// by these values everywhere.
const (
	ClassHome = 0
	ClassAway = 1
	ClassDraw = 2

	NumClasses = 3
)

// classifier is the common surface of the three model families. Fit must
// draw all randomness from rng so a seeded run is reproducible.
type classifier interface {
	Fit(X [][]float64, y []int, nClasses int, rng *rand.Rand)
	PredictProba(row []float64) []float64
	FeatureImportances() ([]float64, bool)
}

// newClassifier builds an untrained classifier for the algorithm, or an
// UnsupportedAlgorithmError. params may be nil for defaults.
func newClassifier(algorithm string, params *HyperParams) (classifier, error) {
	switch algorithm {
	case AlgorithmRandomForest:
		cfg := DefaultRandomForestConfig()
		if params != nil && params.RandomForest != nil {
			cfg = *params.RandomForest
		}
		return newRandomForest(cfg), nil
	case AlgorithmGradientBoosting:
		cfg := DefaultGradientBoostingConfig()
		if params != nil && params.GradientBoosting != nil {
			cfg = *params.GradientBoosting
		}
		return newGradientBoosting(cfg), nil
	case AlgorithmLogisticRegression:
		cfg := DefaultLogisticRegressionConfig()
		if params != nil && params.LogisticRegression != nil {
			cfg = *params.LogisticRegression
		}
		return newLogisticRegression(cfg), nil
	default:
		return nil, &domain.UnsupportedAlgorithmError{Algorithm: algorithm}
	}
}

// HyperParams overrides the per-algorithm defaults. Only the field matching
// the chosen algorithm is consulted.
type HyperParams struct {
	RandomForest       *RandomForestConfig       `json:"random_forest,omitempty"`
	GradientBoosting   *GradientBoostingConfig   `json:"gradient_boosting,omitempty"`
	LogisticRegression *LogisticRegressionConfig `json:"logistic_regression,omitempty"`
}

// ClassLabel maps a class index back to the winner string.
func ClassLabel(class int) string {
	switch class {
	case ClassHome:
		return domain.WinnerHome
	case ClassAway:
		return domain.WinnerAway
	default:
		return domain.WinnerDraw
	}
}

// LabelClass maps a winner string to its class index.
func LabelClass(winner string) int {
	switch winner {
	case domain.WinnerHome:
		return ClassHome
	case domain.WinnerAway:
		return ClassAway
	default:
		return ClassDraw
	}
}

func argmax(probs []float64) int {
	best := 0
	for i, p := range probs {
		if p > probs[best] {
			best = i
		}
	}
	return best
}
