package ml

import (
	"github.com/shopspring/decimal"

	"sepsis-predictor/internal/common"
)

// Label is the binary outcome.
type Label int

const (
	Negative Label = iota
	Positive
)

func (l Label) String() string {
	if l == Positive {
		return common.LabelPositive
	}
	return common.LabelNegative
}

// Source tells which strategy produced a prediction.
type Source string

const (
	SourceModel     Source = "model"
	SourceHeuristic Source = "heuristic"
)

// Prediction is the outcome for one row. Percentages are in [0, 100] with two
// decimal places.
type Prediction struct {
	Label               Label
	Confidence          float64
	ProbabilityPositive float64
	ProbabilityNegative float64
	Source              Source
	// SIRSScore is set for heuristic predictions only.
	SIRSScore int
}

// Round2 rounds half away from zero to two decimal places.
func Round2(v float64) float64 {
	f, _ := decimal.NewFromFloat(v).Round(2).Float64()
	return f
}

// percent converts a probability in [0, 1] to a rounded percentage.
func percent(p float64) float64 {
	return Round2(p * 100)
}
