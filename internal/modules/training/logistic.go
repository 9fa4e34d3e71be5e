package training

import (
	"math/rand"

	"gonum.org/v1/gonum/floats"
)

// LogisticRegressionConfig mirrors the tuning surface of the linear model.
// C is the inverse regularization strength.
type LogisticRegressionConfig struct {
	C       float64 `msgpack:"c" json:"c"`
	MaxIter int     `msgpack:"max_iter" json:"max_iter"`
}

// DefaultLogisticRegressionConfig returns the production defaults.
func DefaultLogisticRegressionConfig() LogisticRegressionConfig {
	return LogisticRegressionConfig{C: 1.0, MaxIter: 2000}
}

// LogisticRegression is a multinomial softmax classifier fit by batch
// gradient descent with L2 regularization. Inputs are expected to be
// scaled already, which keeps a fixed step size stable.
type LogisticRegression struct {
	Config    LogisticRegressionConfig `msgpack:"config"`
	Weights   [][]float64              `msgpack:"weights"` // Weights[class][feature]
	Intercept []float64                `msgpack:"intercept"`
	NClasses  int                      `msgpack:"n_classes"`
}

func newLogisticRegression(cfg LogisticRegressionConfig) *LogisticRegression {
	return &LogisticRegression{Config: cfg}
}

func (l *LogisticRegression) Fit(X [][]float64, y []int, nClasses int, rng *rand.Rand) {
	l.NClasses = nClasses
	nFeatures := len(X[0])
	n := float64(len(X))

	l.Weights = make([][]float64, nClasses)
	for c := range l.Weights {
		l.Weights[c] = make([]float64, nFeatures)
	}
	l.Intercept = make([]float64, nClasses)

	const (
		step = 0.1
		tol  = 1e-6
	)
	lambda := 1 / (l.Config.C * n)

	gradW := make([][]float64, nClasses)
	for c := range gradW {
		gradW[c] = make([]float64, nFeatures)
	}
	gradB := make([]float64, nClasses)
	scores := make([]float64, nClasses)

	for iter := 0; iter < l.Config.MaxIter; iter++ {
		for c := range gradW {
			for j := range gradW[c] {
				gradW[c][j] = 0
			}
			gradB[c] = 0
		}

		for i, row := range X {
			for c := 0; c < nClasses; c++ {
				scores[c] = floats.Dot(l.Weights[c], row) + l.Intercept[c]
			}
			probs := softmax(scores)

			for c := 0; c < nClasses; c++ {
				diff := probs[c]
				if y[i] == c {
					diff -= 1
				}
				floats.AddScaled(gradW[c], diff/n, row)
				gradB[c] += diff / n
			}
		}

		maxGrad := 0.0
		for c := 0; c < nClasses; c++ {
			floats.AddScaled(gradW[c], lambda, l.Weights[c])

			floats.AddScaled(l.Weights[c], -step, gradW[c])
			l.Intercept[c] -= step * gradB[c]

			if g := floats.Norm(gradW[c], 2); g > maxGrad {
				maxGrad = g
			}
		}

		if maxGrad < tol {
			break
		}
	}
}

func (l *LogisticRegression) PredictProba(row []float64) []float64 {
	scores := make([]float64, l.NClasses)
	for c := 0; c < l.NClasses; c++ {
		scores[c] = floats.Dot(l.Weights[c], row) + l.Intercept[c]
	}
	return softmax(scores)
}

// FeatureImportances reports none; linear coefficients are not comparable to
// tree impurity importances.
func (l *LogisticRegression) FeatureImportances() ([]float64, bool) {
	return nil, false
}
