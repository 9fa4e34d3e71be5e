package training

import (
	"math"
	"math/rand"
)

// RandomForestConfig mirrors the tuning surface of the forest classifier.
type RandomForestConfig struct {
	NEstimators     int `msgpack:"n_estimators" json:"n_estimators"`
	MaxDepth        int `msgpack:"max_depth" json:"max_depth"`
	MinSamplesSplit int `msgpack:"min_samples_split" json:"min_samples_split"`
	MinSamplesLeaf  int `msgpack:"min_samples_leaf" json:"min_samples_leaf"`
}

// DefaultRandomForestConfig returns the production defaults.
func DefaultRandomForestConfig() RandomForestConfig {
	return RandomForestConfig{
		NEstimators:     200,
		MaxDepth:        15,
		MinSamplesSplit: 5,
		MinSamplesLeaf:  2,
	}
}

// RandomForest is a bagged ensemble of Gini decision trees, each grown on a
// bootstrap sample with sqrt(features) candidates per split. Probabilities
// are the mean of the member trees' leaf distributions.
type RandomForest struct {
	Config      RandomForestConfig `msgpack:"config"`
	Trees       []*treeNode        `msgpack:"trees"`
	NClasses    int                `msgpack:"n_classes"`
	Importances []float64          `msgpack:"importances"`
}

func newRandomForest(cfg RandomForestConfig) *RandomForest {
	return &RandomForest{Config: cfg}
}

// Fit grows the ensemble. All randomness (bootstrap draws, per-split feature
// subsets) comes from rng, so a fixed seed reproduces the forest exactly.
func (f *RandomForest) Fit(X [][]float64, y []int, nClasses int, rng *rand.Rand) {
	f.NClasses = nClasses
	nFeatures := len(X[0])
	maxFeatures := int(math.Sqrt(float64(nFeatures)))
	if maxFeatures < 1 {
		maxFeatures = 1
	}

	cfg := treeConfig{
		MaxDepth:        f.Config.MaxDepth,
		MinSamplesSplit: f.Config.MinSamplesSplit,
		MinSamplesLeaf:  f.Config.MinSamplesLeaf,
		MaxFeatures:     maxFeatures,
	}

	f.Trees = make([]*treeNode, 0, f.Config.NEstimators)
	totalImportance := make([]float64, nFeatures)

	for t := 0; t < f.Config.NEstimators; t++ {
		sample := make([]int, len(X))
		for i := range sample {
			sample[i] = rng.Intn(len(X))
		}

		builder := newTreeBuilder(cfg, nClasses, nFeatures, rng)
		f.Trees = append(f.Trees, builder.build(X, y, sample, 0))

		for j, imp := range builder.importances {
			totalImportance[j] += imp
		}
	}

	f.Importances = normalizeImportances(totalImportance)
}

// PredictProba averages the class distributions of every tree's leaf.
func (f *RandomForest) PredictProba(row []float64) []float64 {
	probs := make([]float64, f.NClasses)
	for _, tree := range f.Trees {
		leaf := tree.route(row)
		for c, p := range leaf.Probs {
			probs[c] += p
		}
	}
	for c := range probs {
		probs[c] /= float64(len(f.Trees))
	}
	return probs
}

// FeatureImportances returns normalized impurity-decrease importances.
func (f *RandomForest) FeatureImportances() ([]float64, bool) {
	return f.Importances, true
}

func normalizeImportances(imp []float64) []float64 {
	total := 0.0
	for _, v := range imp {
		total += v
	}
	if total == 0 {
		return imp
	}
	out := make([]float64, len(imp))
	for i, v := range imp {
		out[i] = v / total
	}
	return out
}
