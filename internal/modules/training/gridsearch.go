package training

import (
	"math"
	"math/rand"
)

// gridCVFolds is the fold count used during hyperparameter search. Smaller
// than the reporting CV because the grid multiplies the fit count.
const gridCVFolds = 3

// candidateGrid enumerates the hyperparameter combinations searched for an
// algorithm. The grids are fixed; arbitrary user-supplied grids are not
// accepted.
func candidateGrid(algorithm string) []*HyperParams {
	switch algorithm {
	case AlgorithmRandomForest:
		var out []*HyperParams
		for _, nEst := range []int{100, 200, 300} {
			for _, depth := range []int{10, 15, 20} {
				for _, split := range []int{2, 5, 10} {
					for _, leaf := range []int{1, 2, 4} {
						out = append(out, &HyperParams{RandomForest: &RandomForestConfig{
							NEstimators:     nEst,
							MaxDepth:        depth,
							MinSamplesSplit: split,
							MinSamplesLeaf:  leaf,
						}})
					}
				}
			}
		}
		return out
	case AlgorithmGradientBoosting:
		var out []*HyperParams
		for _, nEst := range []int{50, 100, 200} {
			for _, depth := range []int{3, 6, 9} {
				for _, lr := range []float64{0.01, 0.1, 0.2} {
					out = append(out, &HyperParams{GradientBoosting: &GradientBoostingConfig{
						NEstimators:  nEst,
						MaxDepth:     depth,
						LearningRate: lr,
					}})
				}
			}
		}
		return out
	case AlgorithmLogisticRegression:
		var out []*HyperParams
		for _, c := range []float64{0.1, 1.0, 10.0, 100.0} {
			out = append(out, &HyperParams{LogisticRegression: &LogisticRegressionConfig{
				C:       c,
				MaxIter: 2000,
			}})
		}
		return out
	default:
		return nil
	}
}

// gridSearch picks the candidate with the best mean cross-validated accuracy
// on the training split. Ties keep the earlier candidate, so the result is
// deterministic for a fixed seed.
func gridSearch(algorithm string, X [][]float64, y []int, seed int64) (*HyperParams, error) {
	candidates := candidateGrid(algorithm)
	if len(candidates) == 0 {
		return nil, nil
	}

	var best *HyperParams
	bestScore := -1.0

	for _, params := range candidates {
		mean, _, err := crossValidate(algorithm, params, X, y, gridCVFolds, seed)
		if err != nil {
			return nil, err
		}
		if mean > bestScore {
			bestScore = mean
			best = params
		}
	}

	return best, nil
}

// crossValidate runs stratified k-fold CV and returns the mean and standard
// deviation of per-fold accuracy. Each fold fits a fresh classifier from a
// seed derived from the base seed and fold number.
func crossValidate(algorithm string, params *HyperParams, X [][]float64, y []int, k int, seed int64) (mean, std float64, err error) {
	folds := kFoldIndices(y, k, rand.New(rand.NewSource(seed)))

	scores := make([]float64, 0, k)
	for f, holdout := range folds {
		inFold := make(map[int]bool, len(holdout))
		for _, i := range holdout {
			inFold[i] = true
		}

		var trainX [][]float64
		var trainY []int
		for i := range X {
			if !inFold[i] {
				trainX = append(trainX, X[i])
				trainY = append(trainY, y[i])
			}
		}
		if len(trainX) == 0 || len(holdout) == 0 {
			continue
		}

		scaler := &StandardScaler{}
		scaler.Fit(trainX)

		clf, cErr := newClassifier(algorithm, params)
		if cErr != nil {
			return 0, 0, cErr
		}
		clf.Fit(scaler.Transform(trainX), trainY, NumClasses, rand.New(rand.NewSource(seed+int64(f)+1)))

		correct := 0
		for _, i := range holdout {
			if argmax(clf.PredictProba(scaler.TransformRow(X[i]))) == y[i] {
				correct++
			}
		}
		scores = append(scores, float64(correct)/float64(len(holdout)))
	}

	if len(scores) == 0 {
		return 0, 0, nil
	}

	for _, s := range scores {
		mean += s
	}
	mean /= float64(len(scores))
	for _, s := range scores {
		std += (s - mean) * (s - mean)
	}
	std = math.Sqrt(std / float64(len(scores)))

	return mean, std, nil
}
