package ml

import "sepsis-predictor/internal/features"

// Preprocess runs the imputer and then the scaler over vec. Either stage may be nil
// and is then skipped; without an imputer, placeholder slots keep their raw value.
func Preprocess(vec features.Vector, imputer *MedianImputer, scaler *StandardScaler) ([]float64, error) {
	x := vec.Values
	var err error
	if imputer != nil {
		if x, err = imputer.Transform(x, vec.Missing); err != nil {
			return nil, err
		}
	}
	if scaler != nil {
		if x, err = scaler.Transform(x); err != nil {
			return nil, err
		}
	}
	if imputer == nil && scaler == nil {
		x = append([]float64(nil), x...)
	}
	return x, nil
}
