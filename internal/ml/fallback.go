package ml

import (
	"fmt"

	"sepsis-predictor/internal/common"
	"sepsis-predictor/internal/features"
)

// Vitals are the three measurements the SIRS heuristic looks at.
type Vitals struct {
	Temp float64
	HR   float64
	Resp float64
}

// VitalsFromRow extracts the heuristic's inputs. Absent or zero values take the
// clinical defaults; present non-numeric values are malformed input.
func VitalsFromRow(row features.Row) (Vitals, error) {
	temp, err := vital(row, features.Temp, common.DefaultTemp)
	if err != nil {
		return Vitals{}, err
	}
	hr, err := vital(row, features.HR, common.DefaultHR)
	if err != nil {
		return Vitals{}, err
	}
	resp, err := vital(row, features.Resp, common.DefaultResp)
	if err != nil {
		return Vitals{}, err
	}
	return Vitals{Temp: temp, HR: hr, Resp: resp}, nil
}

func vital(row features.Row, name features.CanonicalName, def float64) (float64, error) {
	f, ok, err := row[name].Float()
	if err != nil {
		return 0, fmt.Errorf("feature %s: %w", name, err)
	}
	if !ok || f == 0 {
		return def, nil
	}
	return f, nil
}

// ScoreSIRS counts the SIRS criteria met by v: abnormal temperature, tachycardia
// and tachypnoea. The result is in [0, 3].
func ScoreSIRS(v Vitals) int {
	score := 0
	if v.Temp > 38 || v.Temp < 36 {
		score++
	}
	if v.HR > 100 {
		score++
	}
	if v.Resp > 20 {
		score++
	}
	return score
}

// HeuristicPrediction turns a SIRS score into a prediction. Two or more criteria
// are read as sepsis.
func HeuristicPrediction(v Vitals) Prediction {
	score := ScoreSIRS(v)
	frac := float64(score) / 3

	label := Negative
	if score >= 2 {
		label = Positive
	}

	confidence := 0.0
	if score > 0 {
		confidence = percent(frac)
	}
	return Prediction{
		Label:               label,
		Confidence:          confidence,
		ProbabilityPositive: confidence,
		ProbabilityNegative: percent(1 - frac),
		Source:              SourceHeuristic,
		SIRSScore:           score,
	}
}
