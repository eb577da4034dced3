package ml

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"sepsis-predictor/internal/common"
	"sepsis-predictor/internal/features"
)

// MockMetrics implements MetricsInterface for testing
type MockMetrics struct {
	mu               sync.Mutex
	predictions      map[string]int
	failures         int
	latencySum       float64
	latencyCount     int
	fallbackUse      int
	modelAge         float64
	modelLoaded      bool
	predictionScores []float64
}

func (m *MockMetrics) MLPredictionsInc(source string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.predictions == nil {
		m.predictions = make(map[string]int)
	}
	m.predictions[source]++
}

func (m *MockMetrics) MLFailuresInc() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.failures++
}

func (m *MockMetrics) MLLatencyObserve(v float64) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.latencySum += v
	m.latencyCount++
}

func (m *MockMetrics) MLModelAgeSet(v float64) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.modelAge = v
}

func (m *MockMetrics) MLModelLoadedSet(v bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.modelLoaded = v
}

func (m *MockMetrics) MLPredictionScoresObserve(v float64) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.predictionScores = append(m.predictionScores, v)
}

func (m *MockMetrics) MLFallbackUseInc() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.fallbackUse++
}

// SampleFeatureNames is the feature order of the sample artifact set.
var SampleFeatureNames = []features.CanonicalName{
	features.HR, features.O2Sat, features.Temp, features.SBP, features.Resp,
}

func leaf(v float64) TreeNode { return TreeNode{Leaf: &v} }

func stump(feature int, threshold, low, high float64) Tree {
	return Tree{Nodes: []TreeNode{
		{Feature: feature, Threshold: threshold, Left: 1, Right: 2, DefaultLeft: true},
		leaf(low),
		leaf(high),
	}}
}

// SampleArtifacts returns a small hand-built artifact set over SampleFeatureNames.
// It flags tachycardia, fever and tachypnoea the way a trained model would, and is
// used by tests and by the sample-data script.
func SampleArtifacts() (*GBDTClassifier, *MedianImputer, *StandardScaler) {
	imp := &MedianImputer{Statistics: []float64{80, 97, 37, 120, 18}}
	sc := &StandardScaler{
		Mean:  []float64{80, 97, 37, 120, 18},
		Scale: []float64{15, 2, 0.8, 20, 4},
	}
	model := &GBDTClassifier{
		Objective:  objectiveBinary,
		NumFeature: len(SampleFeatureNames),
		BaseScore:  -0.5,
		Trees: []Tree{
			stump(0, (100-80)/15.0, -1.0, 1.2), // HR > 100
			stump(2, (38-37)/0.8, -0.5, 1.0),   // Temp > 38
			stump(4, (22-18)/4.0, -0.4, 0.8),   // Resp > 22
		},
	}
	return model, imp, sc
}

// WriteSampleArtifacts writes the sample artifact set into dir.
func WriteSampleArtifacts(dir string) error {
	model, imp, sc := SampleArtifacts()
	names := make([]string, len(SampleFeatureNames))
	for i, n := range SampleFeatureNames {
		names[i] = string(n)
	}
	files := map[string]any{
		common.ModelFile:        model,
		common.ImputerFile:      imp,
		common.ScalerFile:       sc,
		common.FeatureNamesFile: names,
		common.MetadataFile: ModelMetadata{
			Version:   "sample",
			TrainedAt: time.Now().UTC().Truncate(time.Second),
			Features:  names,
		},
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return err
	}
	for name, v := range files {
		b, err := json.MarshalIndent(v, "", "  ")
		if err != nil {
			return fmt.Errorf("encode %s: %w", name, err)
		}
		if err := os.WriteFile(filepath.Join(dir, name), b, 0o644); err != nil {
			return err
		}
	}
	return nil
}
