package training

// Metrics summarizes a trained model's holdout and cross-validation
// performance. Precision, recall, and F1 are weighted by class support,
// matching how multi-class scores are usually reported for imbalanced
// outcome distributions.
type Metrics struct {
	Accuracy        float64            `json:"accuracy"`
	Precision       float64            `json:"precision"`
	Recall          float64            `json:"recall"`
	F1Score         float64            `json:"f1_score"`
	CVMean          float64            `json:"cv_mean"`
	CVStd           float64            `json:"cv_std"`
	TrainingSamples int                `json:"training_samples"`
	TestSamples     int                `json:"test_samples"`
	Importances     map[string]float64 `json:"feature_importance,omitempty"`
}

func accuracyScore(yTrue, yPred []int) float64 {
	if len(yTrue) == 0 {
		return 0
	}
	correct := 0
	for i := range yTrue {
		if yTrue[i] == yPred[i] {
			correct++
		}
	}
	return float64(correct) / float64(len(yTrue))
}

// weightedScores computes support-weighted precision, recall, and F1 over
// the classes present in yTrue.
func weightedScores(yTrue, yPred []int) (precision, recall, f1 float64) {
	if len(yTrue) == 0 {
		return 0, 0, 0
	}

	support := make(map[int]int)
	tp := make(map[int]int)
	fp := make(map[int]int)
	fn := make(map[int]int)

	for i := range yTrue {
		support[yTrue[i]]++
		if yPred[i] == yTrue[i] {
			tp[yTrue[i]]++
		} else {
			fp[yPred[i]]++
			fn[yTrue[i]]++
		}
	}

	total := float64(len(yTrue))
	for c, n := range support {
		weight := float64(n) / total

		var p, r float64
		if denom := tp[c] + fp[c]; denom > 0 {
			p = float64(tp[c]) / float64(denom)
		}
		if denom := tp[c] + fn[c]; denom > 0 {
			r = float64(tp[c]) / float64(denom)
		}

		var f float64
		if p+r > 0 {
			f = 2 * p * r / (p + r)
		}

		precision += weight * p
		recall += weight * r
		f1 += weight * f
	}

	return precision, recall, f1
}
