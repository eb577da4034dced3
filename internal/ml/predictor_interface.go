// Package ml provides the inference side of the sepsis service: loading the trained
// artifact set, the preprocessing chain, the gradient-boosted classifier and the SIRS
// heuristic used when no model is available.
//
// The trained model is treated as an opaque capability behind Classifier. The Engine
// chooses between a trained strategy and the heuristic once, from the ModelState it is
// built with, and maps any trained-path failure back to the heuristic.
package ml

import "sepsis-predictor/internal/features"

// Classifier is a trained binary classifier over preprocessed feature vectors.
type Classifier interface {
	// Predict returns the predicted class (0 or 1) and the class probabilities,
	// indexed by class.
	Predict(x []float64) (class int, proba []float64, err error)

	// NumFeatures is the input width the classifier was trained on.
	NumFeatures() int
}

// Strategy produces a prediction for one normalized row.
type Strategy interface {
	Predict(row features.Row) (Prediction, error)
	Source() Source
}
