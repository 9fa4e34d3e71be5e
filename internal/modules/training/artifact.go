package training

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/vmihailenco/msgpack/v5"

	"github.com/skarlatos/scoreline/internal/domain"
	"github.com/skarlatos/scoreline/internal/modules/features"
)

// Artifact is the self-contained trained model: the fitted classifier, the
// scaler it was trained behind, and the training-time feature means used to
// impute missing values at inference. Exactly one of the classifier fields
// is non-nil, selected by Algorithm.
type Artifact struct {
	SchemaVersion int       `msgpack:"schema_version"`
	ModelID       string    `msgpack:"model_id"`
	Algorithm     string    `msgpack:"algorithm"`
	Seed          int64     `msgpack:"seed"`
	TrainedAt     time.Time `msgpack:"trained_at"`

	FeatureNames []string       `msgpack:"feature_names"`
	FeatureMeans []float64      `msgpack:"feature_means"`
	Scaler       StandardScaler `msgpack:"scaler"`

	Forest   *RandomForest       `msgpack:"forest,omitempty"`
	Boosting *GradientBoosting   `msgpack:"boosting,omitempty"`
	Logistic *LogisticRegression `msgpack:"logistic,omitempty"`
}

// ArtifactPath returns the canonical artifact location for a model.
func ArtifactPath(modelDir, modelID string) string {
	return filepath.Join(modelDir, fmt.Sprintf("model_%s.artifact", modelID))
}

// Classifier returns the fitted classifier embedded in the artifact.
func (a *Artifact) Classifier() (classifier, error) {
	switch a.Algorithm {
	case AlgorithmRandomForest:
		if a.Forest != nil {
			return a.Forest, nil
		}
	case AlgorithmGradientBoosting:
		if a.Boosting != nil {
			return a.Boosting, nil
		}
	case AlgorithmLogisticRegression:
		if a.Logistic != nil {
			return a.Logistic, nil
		}
	default:
		return nil, &domain.UnsupportedAlgorithmError{Algorithm: a.Algorithm}
	}
	return nil, fmt.Errorf("artifact for model %s has no %s payload", a.ModelID, a.Algorithm)
}

// PredictProba scales and classifies a raw feature row.
func (a *Artifact) PredictProba(row []float64) ([]float64, error) {
	clf, err := a.Classifier()
	if err != nil {
		return nil, err
	}
	return clf.PredictProba(a.Scaler.TransformRow(row)), nil
}

// Save writes the artifact atomically: encode to a temp file in the target
// directory, then rename over the final path.
func (a *Artifact) Save(path string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("failed to create model directory: %w", err)
	}

	data, err := msgpack.Marshal(a)
	if err != nil {
		return fmt.Errorf("failed to encode artifact: %w", err)
	}

	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return fmt.Errorf("failed to write artifact: %w", err)
	}
	if err := os.Rename(tmp, path); err != nil {
		os.Remove(tmp)
		return fmt.Errorf("failed to finalize artifact: %w", err)
	}

	return nil
}

// LoadArtifact reads an artifact from disk. A missing file maps to
// ModelNotFoundError; a schema mismatch is an error because the vector
// layout the model was trained on no longer matches the code.
func LoadArtifact(path, modelID string) (*Artifact, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, &domain.ModelNotFoundError{ModelID: modelID, Path: path}
		}
		return nil, fmt.Errorf("failed to read artifact: %w", err)
	}

	var artifact Artifact
	if err := msgpack.Unmarshal(data, &artifact); err != nil {
		return nil, fmt.Errorf("failed to decode artifact %s: %w", path, err)
	}

	if artifact.SchemaVersion != features.SchemaVersion {
		return nil, fmt.Errorf("artifact %s has feature schema %d, code expects %d",
			path, artifact.SchemaVersion, features.SchemaVersion)
	}

	return &artifact, nil
}
