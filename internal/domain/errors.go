package domain

import "fmt"

// InsufficientDataError indicates too few training samples were available.
// Fatal to that training attempt only.
type InsufficientDataError struct {
	Got      int
	Required int
}

func (e *InsufficientDataError) Error() string {
	return fmt.Sprintf("insufficient training data: got %d samples, need at least %d", e.Got, e.Required)
}

// UnsupportedAlgorithmError indicates a training config named an algorithm
// the trainer does not implement. Surfaced before any computation begins.
type UnsupportedAlgorithmError struct {
	Algorithm string
}

func (e *UnsupportedAlgorithmError) Error() string {
	return fmt.Sprintf("unsupported algorithm: %s", e.Algorithm)
}

// ModelNotFoundError indicates the persisted artifact for a model is absent.
// Fatal for that prediction; never aborts a batch.
type ModelNotFoundError struct {
	ModelID string
	Path    string
}

func (e *ModelNotFoundError) Error() string {
	return fmt.Sprintf("model %s not found (artifact %s)", e.ModelID, e.Path)
}

// FeatureComputationError wraps an unexpected failure while reading history
// for one match. Caught per-match in batch contexts and treated as a skip.
type FeatureComputationError struct {
	MatchID string
	Err     error
}

func (e *FeatureComputationError) Error() string {
	return fmt.Sprintf("feature computation failed for match %s: %v", e.MatchID, e.Err)
}

func (e *FeatureComputationError) Unwrap() error {
	return e.Err
}
