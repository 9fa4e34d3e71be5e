package training

import (
	"math/rand"
	"sort"
)

// stratifiedSplit partitions rows into train and test sets, preserving the
// class distribution of y in both. testFrac is the fraction held out; every
// class keeps at least one training row when it has any rows at all. The
// shuffle is driven entirely by rng, so a fixed seed reproduces the split.
func stratifiedSplit(X [][]float64, y []int, testFrac float64, rng *rand.Rand) (trainX [][]float64, trainY []int, testX [][]float64, testY []int) {
	byClass := make(map[int][]int)
	for i, label := range y {
		byClass[label] = append(byClass[label], i)
	}

	// Iterate classes in a fixed order so the rng consumption is stable.
	classes := make([]int, 0, len(byClass))
	for c := range byClass {
		classes = append(classes, c)
	}
	sort.Ints(classes)

	for _, c := range classes {
		idx := byClass[c]
		rng.Shuffle(len(idx), func(i, j int) { idx[i], idx[j] = idx[j], idx[i] })

		nTest := int(float64(len(idx)) * testFrac)
		if nTest >= len(idx) && len(idx) > 0 {
			nTest = len(idx) - 1
		}

		for k, i := range idx {
			if k < nTest {
				testX = append(testX, X[i])
				testY = append(testY, y[i])
			} else {
				trainX = append(trainX, X[i])
				trainY = append(trainY, y[i])
			}
		}
	}

	// One final shuffle so classes are interleaved rather than blocked.
	shufflePaired(trainX, trainY, rng)
	shufflePaired(testX, testY, rng)

	return trainX, trainY, testX, testY
}

// kFoldIndices returns k folds of row indices with the class balance of y
// approximately preserved in each fold.
func kFoldIndices(y []int, k int, rng *rand.Rand) [][]int {
	byClass := make(map[int][]int)
	for i, label := range y {
		byClass[label] = append(byClass[label], i)
	}

	classes := make([]int, 0, len(byClass))
	for c := range byClass {
		classes = append(classes, c)
	}
	sort.Ints(classes)

	folds := make([][]int, k)
	for _, c := range classes {
		idx := byClass[c]
		rng.Shuffle(len(idx), func(i, j int) { idx[i], idx[j] = idx[j], idx[i] })
		for k2, i := range idx {
			folds[k2%k] = append(folds[k2%k], i)
		}
	}

	return folds
}

func shufflePaired(X [][]float64, y []int, rng *rand.Rand) {
	rng.Shuffle(len(X), func(i, j int) {
		X[i], X[j] = X[j], X[i]
		y[i], y[j] = y[j], y[i]
	})
}
