package training

import (
	"math"
	"math/rand"
	"sort"
)

// GradientBoostingConfig mirrors the tuning surface of the boosted ensemble.
type GradientBoostingConfig struct {
	NEstimators  int     `msgpack:"n_estimators" json:"n_estimators"`
	MaxDepth     int     `msgpack:"max_depth" json:"max_depth"`
	LearningRate float64 `msgpack:"learning_rate" json:"learning_rate"`
}

// DefaultGradientBoostingConfig returns the production defaults.
func DefaultGradientBoostingConfig() GradientBoostingConfig {
	return GradientBoostingConfig{
		NEstimators:  100,
		MaxDepth:     6,
		LearningRate: 0.1,
	}
}

// GradientBoosting is a multinomial-deviance boosted ensemble: one shallow
// regression tree per class per round, fit to the softmax residuals, with
// leaf values set by the usual one-step Newton estimate.
type GradientBoosting struct {
	Config      GradientBoostingConfig `msgpack:"config"`
	Priors      []float64              `msgpack:"priors"`
	Rounds      [][]*treeNode          `msgpack:"rounds"` // Rounds[r][class]
	NClasses    int                    `msgpack:"n_classes"`
	Importances []float64              `msgpack:"importances"`
}

func newGradientBoosting(cfg GradientBoostingConfig) *GradientBoosting {
	return &GradientBoosting{Config: cfg}
}

func (g *GradientBoosting) Fit(X [][]float64, y []int, nClasses int, rng *rand.Rand) {
	g.NClasses = nClasses
	nFeatures := len(X[0])
	n := len(X)

	// Score initialization: log class priors, as a boosted model's round
	// zero should already predict the marginal distribution.
	counts := make([]float64, nClasses)
	for _, label := range y {
		counts[label]++
	}
	g.Priors = make([]float64, nClasses)
	for c := range g.Priors {
		p := counts[c] / float64(n)
		if p <= 0 {
			p = 1e-9
		}
		g.Priors[c] = math.Log(p)
	}

	scores := make([][]float64, n)
	for i := range scores {
		scores[i] = append([]float64(nil), g.Priors...)
	}

	allIdx := make([]int, n)
	for i := range allIdx {
		allIdx[i] = i
	}

	totalImportance := make([]float64, nFeatures)
	residual := make([]float64, n)

	g.Rounds = make([][]*treeNode, 0, g.Config.NEstimators)
	for round := 0; round < g.Config.NEstimators; round++ {
		classTrees := make([]*treeNode, nClasses)

		for c := 0; c < nClasses; c++ {
			for i := range X {
				p := softmaxAt(scores[i], c)
				target := 0.0
				if y[i] == c {
					target = 1.0
				}
				residual[i] = target - p
			}

			builder := &regressionBuilder{
				cfg: treeConfig{
					MaxDepth:        g.Config.MaxDepth,
					MinSamplesSplit: 2,
					MinSamplesLeaf:  1,
				},
				nClasses:    nClasses,
				importances: make([]float64, nFeatures),
			}
			classTrees[c] = builder.build(X, residual, allIdx, 0)

			for j, imp := range builder.importances {
				totalImportance[j] += imp
			}

			for i := range X {
				leaf := classTrees[c].route(X[i])
				scores[i][c] += g.Config.LearningRate * leaf.Value
			}
		}

		g.Rounds = append(g.Rounds, classTrees)
	}

	g.Importances = normalizeImportances(totalImportance)
}

func (g *GradientBoosting) PredictProba(row []float64) []float64 {
	scores := append([]float64(nil), g.Priors...)
	for _, classTrees := range g.Rounds {
		for c, tree := range classTrees {
			scores[c] += g.Config.LearningRate * tree.route(row).Value
		}
	}
	return softmax(scores)
}

// FeatureImportances returns normalized impurity-decrease importances.
func (g *GradientBoosting) FeatureImportances() ([]float64, bool) {
	return g.Importances, true
}

// regressionBuilder grows variance-reduction trees over gradient residuals.
// Leaf values use the one-step Newton estimate for multinomial deviance.
type regressionBuilder struct {
	cfg         treeConfig
	nClasses    int
	importances []float64
}

func (b *regressionBuilder) build(X [][]float64, r []float64, idx []int, depth int) *treeNode {
	leaf := func() *treeNode {
		return &treeNode{Feature: -1, Value: newtonLeafValue(r, idx, b.nClasses)}
	}

	if depth >= b.cfg.MaxDepth || len(idx) < b.cfg.MinSamplesSplit {
		return leaf()
	}

	feature, thresh, gain, ok := b.bestSplit(X, r, idx)
	if !ok || gain <= 0 {
		return leaf()
	}

	var left, right []int
	for _, i := range idx {
		if X[i][feature] <= thresh {
			left = append(left, i)
		} else {
			right = append(right, i)
		}
	}
	if len(left) < b.cfg.MinSamplesLeaf || len(right) < b.cfg.MinSamplesLeaf {
		return leaf()
	}

	b.importances[feature] += gain * float64(len(idx))

	return &treeNode{
		Feature: feature,
		Thresh:  thresh,
		Left:    b.build(X, r, left, depth+1),
		Right:   b.build(X, r, right, depth+1),
	}
}

func (b *regressionBuilder) bestSplit(X [][]float64, r []float64, idx []int) (feature int, thresh, gain float64, ok bool) {
	type pair struct {
		v, r float64
	}
	col := make([]pair, len(idx))

	var parentSum, parentSumSq float64
	for _, i := range idx {
		parentSum += r[i]
		parentSumSq += r[i] * r[i]
	}
	n := float64(len(idx))
	parentSSE := parentSumSq - parentSum*parentSum/n

	bestGain := 0.0
	for f := 0; f < len(X[0]); f++ {
		for k, i := range idx {
			col[k] = pair{v: X[i][f], r: r[i]}
		}
		sort.Slice(col, func(i, j int) bool { return col[i].v < col[j].v })

		var leftSum, leftSumSq float64
		for k := 0; k < len(col)-1; k++ {
			leftSum += col[k].r
			leftSumSq += col[k].r * col[k].r

			if col[k].v == col[k+1].v {
				continue
			}

			nLeft := float64(k + 1)
			nRight := n - nLeft
			rightSum := parentSum - leftSum
			rightSumSq := parentSumSq - leftSumSq

			sse := (leftSumSq - leftSum*leftSum/nLeft) + (rightSumSq - rightSum*rightSum/nRight)
			if g := parentSSE - sse; g > bestGain {
				bestGain = g
				feature = f
				thresh = (col[k].v + col[k+1].v) / 2
				ok = true
			}
		}
	}

	return feature, thresh, bestGain, ok
}

func newtonLeafValue(r []float64, idx []int, nClasses int) float64 {
	var num, den float64
	for _, i := range idx {
		num += r[i]
		den += math.Abs(r[i]) * (1 - math.Abs(r[i]))
	}
	if den < 1e-9 {
		return 0
	}
	k := float64(nClasses)
	return (k - 1) / k * num / den
}

func softmax(scores []float64) []float64 {
	maxScore := scores[0]
	for _, s := range scores[1:] {
		if s > maxScore {
			maxScore = s
		}
	}
	out := make([]float64, len(scores))
	total := 0.0
	for i, s := range scores {
		out[i] = math.Exp(s - maxScore)
		total += out[i]
	}
	for i := range out {
		out[i] /= total
	}
	return out
}

func softmaxAt(scores []float64, c int) float64 {
	return softmax(scores)[c]
}
