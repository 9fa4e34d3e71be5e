package training

import (
	"gonum.org/v1/gonum/stat"
)

// StandardScaler centers each column to zero mean and unit variance. Fit
// computes the statistics; Transform applies them without refitting, so the
// test split and inference rows see exactly the training distribution.
type StandardScaler struct {
	Means []float64 `msgpack:"means"`
	Stds  []float64 `msgpack:"stds"`
}

// Fit computes per-column mean and standard deviation. Constant columns get
// a standard deviation of 1 so Transform leaves them centered but unscaled.
func (s *StandardScaler) Fit(X [][]float64) {
	if len(X) == 0 {
		return
	}

	cols := len(X[0])
	s.Means = make([]float64, cols)
	s.Stds = make([]float64, cols)

	col := make([]float64, len(X))
	for j := 0; j < cols; j++ {
		for i := range X {
			col[i] = X[i][j]
		}
		s.Means[j] = stat.Mean(col, nil)
		s.Stds[j] = stat.StdDev(col, nil)
		if s.Stds[j] == 0 || len(X) < 2 {
			s.Stds[j] = 1
		}
	}
}

// Transform returns scaled copies of the rows. Rows wider than the fitted
// statistics are truncated; this cannot happen when both sides build vectors
// from the same schema.
func (s *StandardScaler) Transform(X [][]float64) [][]float64 {
	out := make([][]float64, len(X))
	for i, row := range X {
		out[i] = s.TransformRow(row)
	}
	return out
}

// TransformRow scales a single row.
func (s *StandardScaler) TransformRow(row []float64) []float64 {
	n := len(row)
	if len(s.Means) < n {
		n = len(s.Means)
	}
	out := make([]float64, n)
	for j := 0; j < n; j++ {
		out[j] = (row[j] - s.Means[j]) / s.Stds[j]
	}
	return out
}
