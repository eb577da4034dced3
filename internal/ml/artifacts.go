package ml

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"time"

	"github.com/rs/zerolog/log"

	"sepsis-predictor/internal/common"
	"sepsis-predictor/internal/features"
)

// ErrArtifactMissing is returned when one of the required artifact files is absent.
var ErrArtifactMissing = errors.New("model artifact missing")

// ModelMetadata describes the trained model. It is optional.
type ModelMetadata struct {
	Version      string    `json:"version"`
	TrainedAt    time.Time `json:"trained_at"`
	Features     []string  `json:"features"`
	TrainingRows int       `json:"training_rows"`
}

// ModelMetrics are the evaluation figures reported by the metrics endpoint.
type ModelMetrics struct {
	Accuracy  float64 `json:"accuracy"`
	Precision float64 `json:"precision"`
	Recall    float64 `json:"recall"`
	F1        float64 `json:"f1"`
}

// DefaultModelMetrics are reported when no model_metrics.json is present.
var DefaultModelMetrics = ModelMetrics{
	Accuracy:  0.98,
	Precision: 0.64,
	Recall:    0.01,
	F1:        0.01,
}

// ArtifactSet is a complete, consistent set of trained artifacts. It is immutable
// once built and safe to share between goroutines.
type ArtifactSet struct {
	Classifier   Classifier
	Imputer      *MedianImputer
	Scaler       *StandardScaler
	FeatureNames []features.CanonicalName
	Metadata     *ModelMetadata
	// LoadedAt is the modification time of the model file, used for the age gauge.
	LoadedAt time.Time
}

// NewArtifactSet checks that the parts agree on the feature width.
func NewArtifactSet(c Classifier, imp *MedianImputer, sc *StandardScaler, names []features.CanonicalName) (*ArtifactSet, error) {
	if c == nil {
		return nil, errors.New("classifier is nil")
	}
	if len(names) == 0 {
		return nil, errors.New("feature names are empty")
	}
	seen := make(map[features.CanonicalName]struct{}, len(names))
	for _, n := range names {
		if _, dup := seen[n]; dup {
			return nil, fmt.Errorf("feature %s listed twice", n)
		}
		seen[n] = struct{}{}
	}
	width := len(names)
	if c.NumFeatures() != width {
		return nil, fmt.Errorf("model expects %d features, feature list has %d", c.NumFeatures(), width)
	}
	if imp != nil {
		if err := imp.validate(); err != nil {
			return nil, err
		}
		if len(imp.Statistics) != width {
			return nil, fmt.Errorf("imputer has %d columns, feature list has %d", len(imp.Statistics), width)
		}
	}
	if sc != nil {
		if err := sc.validate(); err != nil {
			return nil, err
		}
		if len(sc.Mean) != width {
			return nil, fmt.Errorf("scaler has %d columns, feature list has %d", len(sc.Mean), width)
		}
	}
	return &ArtifactSet{
		Classifier:   c,
		Imputer:      imp,
		Scaler:       sc,
		FeatureNames: append([]features.CanonicalName(nil), names...),
	}, nil
}

// ModelState is either Loaded or Unloaded.
type ModelState interface {
	isModelState()
}

// Loaded carries a usable artifact set.
type Loaded struct {
	Set *ArtifactSet
}

// Unloaded records why no artifact set is available.
type Unloaded struct {
	Reason error
}

func (Loaded) isModelState()   {}
func (Unloaded) isModelState() {}

// IsLoaded reports whether s carries artifacts.
func IsLoaded(s ModelState) bool {
	_, ok := s.(Loaded)
	return ok
}

// LoadArtifacts reads the artifact set from dir. Loading is all or nothing: any
// missing or inconsistent file yields Unloaded with the reason, never an error.
func LoadArtifacts(dir string) ModelState {
	set, err := loadArtifactSet(dir)
	if err != nil {
		log.Warn().Err(err).Str("model_dir", dir).Msg("Model artifacts not loaded, using heuristic fallback")
		return Unloaded{Reason: err}
	}
	ev := log.Info().
		Str("model_dir", dir).
		Int("features", len(set.FeatureNames)).
		Bool("imputer", set.Imputer != nil).
		Bool("scaler", set.Scaler != nil)
	if set.Metadata != nil {
		ev = ev.Str("version", set.Metadata.Version).Time("trained_at", set.Metadata.TrainedAt)
	}
	ev.Msg("Model artifacts loaded")
	return Loaded{Set: set}
}

func loadArtifactSet(dir string) (*ArtifactSet, error) {
	modelPath := filepath.Join(dir, common.ModelFile)

	var model GBDTClassifier
	if err := decodeJSONFile(modelPath, &model); err != nil {
		return nil, err
	}
	if err := model.validate(); err != nil {
		return nil, fmt.Errorf("%s: %w", common.ModelFile, err)
	}

	var imp MedianImputer
	if err := decodeJSONFile(filepath.Join(dir, common.ImputerFile), &imp); err != nil {
		return nil, err
	}

	var sc StandardScaler
	if err := decodeJSONFile(filepath.Join(dir, common.ScalerFile), &sc); err != nil {
		return nil, err
	}

	var raw []string
	if err := decodeJSONFile(filepath.Join(dir, common.FeatureNamesFile), &raw); err != nil {
		return nil, err
	}
	names := make([]features.CanonicalName, len(raw))
	for i, n := range raw {
		names[i] = features.CanonicalName(n)
	}

	set, err := NewArtifactSet(&model, &imp, &sc, names)
	if err != nil {
		return nil, fmt.Errorf("inconsistent artifacts: %w", err)
	}

	if info, err := os.Stat(modelPath); err == nil {
		set.LoadedAt = info.ModTime()
	}
	if md, err := loadModelMetadata(dir); err == nil {
		set.Metadata = md
		if !md.TrainedAt.IsZero() {
			set.LoadedAt = md.TrainedAt
		}
	} else {
		log.Debug().Err(err).Msg("No model metadata")
	}
	return set, nil
}

// LoadModelMetrics reads model_metrics.json from dir, falling back to
// DefaultModelMetrics.
func LoadModelMetrics(dir string) ModelMetrics {
	var m ModelMetrics
	if err := decodeJSONFile(filepath.Join(dir, common.MetricsFile), &m); err != nil {
		if !errors.Is(err, ErrArtifactMissing) {
			log.Warn().Err(err).Msg("Failed to read model metrics, using defaults")
		}
		return DefaultModelMetrics
	}
	return m
}

// loadModelMetadata prefers model_metadata.json and otherwise picks the newest
// model_metadata_<timestamp>.json.
func loadModelMetadata(dir string) (*ModelMetadata, error) {
	var md ModelMetadata
	if err := decodeJSONFile(filepath.Join(dir, common.MetadataFile), &md); err == nil {
		return &md, nil
	}

	matches, err := filepath.Glob(filepath.Join(dir, "model_metadata_*.json"))
	if err != nil || len(matches) == 0 {
		return nil, fmt.Errorf("no metadata files found: %w", ErrArtifactMissing)
	}
	sort.Strings(matches)
	if err := decodeJSONFile(matches[len(matches)-1], &md); err != nil {
		return nil, err
	}
	return &md, nil
}

func decodeJSONFile(path string, v any) error {
	file, err := os.Open(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return fmt.Errorf("%w: %s", ErrArtifactMissing, filepath.Base(path))
		}
		return err
	}
	defer file.Close()

	if err := json.NewDecoder(file).Decode(v); err != nil {
		return fmt.Errorf("decode %s: %w", filepath.Base(path), err)
	}
	return nil
}
