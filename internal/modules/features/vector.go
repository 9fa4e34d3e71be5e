// Package features computes the fixed-shape numeric feature vector for a
// match from team form, head-to-head history, and season aggregates.
package features

import "fmt"

// SchemaVersion identifies the feature-name set below. Artifacts record the
// version they were trained against; inference refuses a mismatched vector.
const SchemaVersion = 1

// Feature names, in vector order. Training and inference both build vectors
// through this list, so the two phases are structurally guaranteed to agree.
// Appending is safe; reordering or renaming requires a SchemaVersion bump.
var names = []string{
	// Season aggregate block (zero-valued when no stats row exists)
	"home_points",
	"away_points",
	"points_difference",
	"home_goals_for",
	"home_goals_against",
	"away_goals_for",
	"away_goals_against",
	"home_goal_difference",
	"away_goal_difference",
	"home_win_rate",
	"away_win_rate",
	"home_draw_rate",
	"away_draw_rate",
	"home_goals_per_match",
	"away_goals_per_match",
	"home_conceded_per_match",
	"away_conceded_per_match",
	"home_home_win_rate",
	"away_away_win_rate",

	// Form and venue-specific expected goals
	"home_form_index",
	"away_form_index",
	"form_difference",
	"home_expected_goals",
	"away_expected_goals",
	"expected_goals_difference",

	// Head-to-head block
	"h2h_home_win_pct",
	"h2h_away_win_pct",
	"h2h_draw_pct",
	"h2h_total_matches",
	"h2h_home_goals_avg",
	"h2h_away_goals_avg",
	"h2h_btts_pct",

	// Secondary targets and rating probabilities
	"btts_probability",
	"rating_home_win_prob",
	"rating_draw_prob",
	"rating_away_win_prob",

	"home_advantage",
}

var nameIndex = func() map[string]int {
	m := make(map[string]int, len(names))
	for i, n := range names {
		m[n] = i
	}
	return m
}()

// Names returns the feature names in vector order. The returned slice must
// not be mutated.
func Names() []string {
	return names
}

// Count returns the number of features in the schema.
func Count() int {
	return len(names)
}

// Vector is one ordered row of feature values for a match. The zero value of
// every feature is the documented neutral default, so NewVector() is already
// a valid "no history" vector.
type Vector struct {
	values []float64
}

// NewVector returns an all-zero vector in schema order.
func NewVector() Vector {
	return Vector{values: make([]float64, len(names))}
}

// FromValues builds a vector from raw values in schema order.
func FromValues(values []float64) (Vector, error) {
	if len(values) != len(names) {
		return Vector{}, fmt.Errorf("expected %d feature values, got %d", len(names), len(values))
	}
	v := NewVector()
	copy(v.values, values)
	return v, nil
}

// Get returns the value of a named feature. Unknown names return 0.
func (v Vector) Get(name string) float64 {
	if i, ok := nameIndex[name]; ok {
		return v.values[i]
	}
	return 0
}

// Set assigns a named feature. Unknown names panic: a typo here would
// silently corrupt training data otherwise.
func (v Vector) Set(name string, value float64) {
	i, ok := nameIndex[name]
	if !ok {
		panic(fmt.Sprintf("unknown feature name %q", name))
	}
	v.values[i] = value
}

// Values returns the feature values in schema order. The caller must not
// mutate the result.
func (v Vector) Values() []float64 {
	return v.values
}

// Map returns a name→value copy, used when logging features alongside a
// persisted prediction.
func (v Vector) Map() map[string]float64 {
	m := make(map[string]float64, len(names))
	for i, n := range names {
		m[n] = v.values[i]
	}
	return m
}
