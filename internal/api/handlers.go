package api

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"sepsis-predictor/internal/common"
	"sepsis-predictor/internal/features"
	"sepsis-predictor/internal/ml"
)

// PredictResponse is the single-row result. RandomForest repeats the final label
// for clients that still read the older field.
type PredictResponse struct {
	RandomForest    string  `json:"RandomForest"`
	FinalPrediction string  `json:"FinalPrediction"`
	Confidence      float64 `json:"confidence"`
	Probability     float64 `json:"probability"`
}

func newPredictResponse(p ml.Prediction) PredictResponse {
	label := p.Label.String()
	return PredictResponse{
		RandomForest:    label,
		FinalPrediction: label,
		Confidence:      p.Confidence,
		Probability:     p.ProbabilityPositive,
	}
}

// HealthResponse reports whether the trained model is in use.
type HealthResponse struct {
	Status      string `json:"status"`
	ModelStatus string `json:"model_status"`
}

type errorResponse struct {
	Error string `json:"error"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.Debug().Err(err).Msg("Failed to write response")
	}
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, errorResponse{Error: msg})
}

// predictFields scores one decoded JSON object.
func (s *Server) predictFields(fields []features.Field) (ml.Prediction, error) {
	row := features.NormalizeFields(fields, s.opts.StrictSinglePredict)
	return s.opts.Engine.Predict(row)
}

func (s *Server) handlePredict(w http.ResponseWriter, r *http.Request) {
	logger := zerolog.Ctx(r.Context())

	fields, err := features.DecodeFields(http.MaxBytesReader(w, r.Body, 1<<20))
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	pred, err := s.predictFields(fields)
	if err != nil {
		if errors.Is(err, features.ErrInvalidValue) {
			writeError(w, http.StatusBadRequest, err.Error())
			return
		}
		logger.Error().Err(err).Msg("Prediction failed")
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}

	logger.Debug().
		Str("label", pred.Label.String()).
		Str("source", string(pred.Source)).
		Float64("confidence", pred.Confidence).
		Msg("Prediction served")
	writeJSON(w, http.StatusOK, newPredictResponse(pred))
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	status := "not_loaded"
	if s.opts.Engine.ModelLoaded() {
		status = "loaded"
	}
	writeJSON(w, http.StatusOK, HealthResponse{Status: "ok", ModelStatus: status})
}

func (s *Server) handleModelMetrics(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]ml.ModelMetrics{common.ModelName: s.opts.ModelMetrics})
}
