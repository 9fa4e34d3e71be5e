package training

import (
	"math/rand"
	"sort"
)

// treeNode is one node of a fitted decision tree. Leaves carry the class
// distribution (classification) or a single value (regression); internal
// nodes route rows by a feature threshold.
type treeNode struct {
	Feature int       `msgpack:"feature"`
	Thresh  float64   `msgpack:"thresh"`
	Left    *treeNode `msgpack:"left"`
	Right   *treeNode `msgpack:"right"`
	Probs   []float64 `msgpack:"probs,omitempty"`
	Value   float64   `msgpack:"value"`
}

func (n *treeNode) isLeaf() bool {
	return n.Left == nil && n.Right == nil
}

func (n *treeNode) route(row []float64) *treeNode {
	cur := n
	for !cur.isLeaf() {
		if row[cur.Feature] <= cur.Thresh {
			cur = cur.Left
		} else {
			cur = cur.Right
		}
	}
	return cur
}

// treeConfig bounds tree growth. MaxFeatures limits the features considered
// per split (0 means all), which is what de-correlates forest members.
type treeConfig struct {
	MaxDepth        int
	MinSamplesSplit int
	MinSamplesLeaf  int
	MaxFeatures     int
}

// treeBuilder grows classification trees by Gini impurity. importances
// accumulates sample-weighted impurity decrease per feature across every
// split made through this builder.
type treeBuilder struct {
	cfg         treeConfig
	nClasses    int
	rng         *rand.Rand
	importances []float64
}

func newTreeBuilder(cfg treeConfig, nClasses, nFeatures int, rng *rand.Rand) *treeBuilder {
	return &treeBuilder{
		cfg:         cfg,
		nClasses:    nClasses,
		rng:         rng,
		importances: make([]float64, nFeatures),
	}
}

func (b *treeBuilder) build(X [][]float64, y []int, idx []int, depth int) *treeNode {
	counts := make([]float64, b.nClasses)
	for _, i := range idx {
		counts[y[i]]++
	}

	leaf := func() *treeNode {
		probs := make([]float64, b.nClasses)
		for c, n := range counts {
			probs[c] = n / float64(len(idx))
		}
		return &treeNode{Feature: -1, Probs: probs}
	}

	if depth >= b.cfg.MaxDepth || len(idx) < b.cfg.MinSamplesSplit || giniOf(counts, len(idx)) == 0 {
		return leaf()
	}

	feature, thresh, gain, ok := b.bestSplit(X, y, idx, counts)
	if !ok {
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
		Left:    b.build(X, y, left, depth+1),
		Right:   b.build(X, y, right, depth+1),
	}
}

// bestSplit scans candidate features for the threshold with the largest Gini
// decrease. Candidate thresholds are midpoints between consecutive distinct
// values of the sorted column.
func (b *treeBuilder) bestSplit(X [][]float64, y []int, idx []int, parentCounts []float64) (feature int, thresh, gain float64, ok bool) {
	nFeatures := len(X[0])
	candidates := b.candidateFeatures(nFeatures)
	parentGini := giniOf(parentCounts, len(idx))

	type pair struct {
		v float64
		c int
	}
	col := make([]pair, len(idx))

	bestGain := 0.0
	for _, f := range candidates {
		for k, i := range idx {
			col[k] = pair{v: X[i][f], c: y[i]}
		}
		sort.Slice(col, func(i, j int) bool { return col[i].v < col[j].v })

		leftCounts := make([]float64, b.nClasses)
		rightCounts := append([]float64(nil), parentCounts...)

		for k := 0; k < len(col)-1; k++ {
			leftCounts[col[k].c]++
			rightCounts[col[k].c]--

			if col[k].v == col[k+1].v {
				continue
			}

			nLeft, nRight := k+1, len(col)-k-1
			if nLeft < b.cfg.MinSamplesLeaf || nRight < b.cfg.MinSamplesLeaf {
				continue
			}

			weighted := (float64(nLeft)*giniOf(leftCounts, nLeft) +
				float64(nRight)*giniOf(rightCounts, nRight)) / float64(len(col))

			if g := parentGini - weighted; g > bestGain {
				bestGain = g
				feature = f
				thresh = (col[k].v + col[k+1].v) / 2
				ok = true
			}
		}
	}

	return feature, thresh, bestGain, ok
}

func (b *treeBuilder) candidateFeatures(nFeatures int) []int {
	k := b.cfg.MaxFeatures
	if k <= 0 || k >= nFeatures {
		all := make([]int, nFeatures)
		for i := range all {
			all[i] = i
		}
		return all
	}

	perm := b.rng.Perm(nFeatures)
	return perm[:k]
}

func giniOf(counts []float64, total int) float64 {
	if total == 0 {
		return 0
	}
	g := 1.0
	for _, n := range counts {
		p := n / float64(total)
		g -= p * p
	}
	return g
}
