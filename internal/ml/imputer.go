package ml

import (
	"errors"
	"fmt"
	"math"
	"sort"
)

// MedianImputer replaces missing slots with the per-column median learned at fit time.
type MedianImputer struct {
	Statistics []float64 `json:"statistics"`
}

// FitMedianImputer learns column medians from rows, ignoring NaN cells. A column with
// no observed values gets a median of 0.
func FitMedianImputer(rows [][]float64) (*MedianImputer, error) {
	if len(rows) == 0 {
		return nil, errors.New("no rows to fit imputer")
	}
	width := len(rows[0])
	stats := make([]float64, width)
	col := make([]float64, 0, len(rows))
	for j := 0; j < width; j++ {
		col = col[:0]
		for i, r := range rows {
			if len(r) != width {
				return nil, fmt.Errorf("row %d has %d columns, want %d", i, len(r), width)
			}
			if !math.IsNaN(r[j]) {
				col = append(col, r[j])
			}
		}
		stats[j] = median(col)
	}
	return &MedianImputer{Statistics: stats}, nil
}

func median(vals []float64) float64 {
	if len(vals) == 0 {
		return 0
	}
	s := append([]float64(nil), vals...)
	sort.Float64s(s)
	n := len(s)
	if n%2 == 1 {
		return s[n/2]
	}
	return (s[n/2-1] + s[n/2]) / 2
}

func (m *MedianImputer) validate() error {
	if len(m.Statistics) == 0 {
		return errors.New("imputer has no statistics")
	}
	for i, s := range m.Statistics {
		if math.IsNaN(s) || math.IsInf(s, 0) {
			return fmt.Errorf("imputer statistic %d is not finite", i)
		}
	}
	return nil
}

// Transform returns a copy of x where every flagged or NaN slot holds the column
// median. missing may be nil.
func (m *MedianImputer) Transform(x []float64, missing []bool) ([]float64, error) {
	if len(x) != len(m.Statistics) {
		return nil, fmt.Errorf("imputer expects %d features, got %d", len(m.Statistics), len(x))
	}
	if missing != nil && len(missing) != len(x) {
		return nil, fmt.Errorf("missing mask has %d entries, want %d", len(missing), len(x))
	}
	out := make([]float64, len(x))
	for i, v := range x {
		if math.IsNaN(v) || (missing != nil && missing[i]) {
			out[i] = m.Statistics[i]
			continue
		}
		out[i] = v
	}
	return out, nil
}
