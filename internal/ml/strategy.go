package ml

import (
	"errors"
	"fmt"
	"math"

	"sepsis-predictor/internal/features"
)

// TrainedStrategy runs the assembler, the preprocessing chain and the classifier.
type TrainedStrategy struct {
	set *ArtifactSet
}

// NewTrainedStrategy wraps a loaded artifact set.
func NewTrainedStrategy(set *ArtifactSet) (*TrainedStrategy, error) {
	if set == nil || set.Classifier == nil {
		return nil, errors.New("artifact set is incomplete")
	}
	return &TrainedStrategy{set: set}, nil
}

// Source implements Strategy.
func (s *TrainedStrategy) Source() Source { return SourceModel }

// Predict implements Strategy.
func (s *TrainedStrategy) Predict(row features.Row) (Prediction, error) {
	vec, err := features.Assemble(row, s.set.FeatureNames)
	if err != nil {
		return Prediction{}, err
	}
	x, err := Preprocess(vec, s.set.Imputer, s.set.Scaler)
	if err != nil {
		return Prediction{}, fmt.Errorf("preprocess: %w", err)
	}
	class, proba, err := s.set.Classifier.Predict(x)
	if err != nil {
		return Prediction{}, fmt.Errorf("classifier: %w", err)
	}
	if err := validateProba(proba); err != nil {
		return Prediction{}, err
	}

	label := Negative
	if class == 1 {
		label = Positive
	}
	return Prediction{
		Label:               label,
		Confidence:          percent(math.Max(proba[0], proba[1])),
		ProbabilityPositive: percent(proba[1]),
		ProbabilityNegative: percent(proba[0]),
		Source:              SourceModel,
	}, nil
}

func validateProba(proba []float64) error {
	if len(proba) != 2 {
		return fmt.Errorf("expected 2 probabilities, got %d", len(proba))
	}
	for i, p := range proba {
		if math.IsNaN(p) || p < 0 || p > 1 {
			return fmt.Errorf("invalid probability %d: %f", i, p)
		}
	}
	if math.Abs(proba[0]+proba[1]-1) > 1e-6 {
		return fmt.Errorf("probabilities sum to %f", proba[0]+proba[1])
	}
	return nil
}

// HeuristicStrategy scores the SIRS criteria. It needs no artifacts.
type HeuristicStrategy struct{}

// Source implements Strategy.
func (HeuristicStrategy) Source() Source { return SourceHeuristic }

// Predict implements Strategy. It fails only when a vital is present but not numeric.
func (HeuristicStrategy) Predict(row features.Row) (Prediction, error) {
	v, err := VitalsFromRow(row)
	if err != nil {
		return Prediction{}, err
	}
	return HeuristicPrediction(v), nil
}
