package ml

import (
	"time"

	"github.com/rs/zerolog/log"

	"sepsis-predictor/internal/features"
)

// MetricsInterface defines metrics methods needed by the engine
type MetricsInterface interface {
	MLPredictionsInc(source string)
	MLFailuresInc()
	MLLatencyObserve(float64)
	MLModelAgeSet(float64)
	MLModelLoadedSet(bool)
	MLPredictionScoresObserve(float64)
	MLFallbackUseInc()
}

// Engine is the single entry point for predictions. It is read-only after
// construction and safe for concurrent use.
type Engine struct {
	trained   Strategy // nil when no model is loaded
	heuristic Strategy
	state     ModelState
	metrics   MetricsInterface
}

// NewEngine builds an engine for state. metrics may be nil.
func NewEngine(state ModelState, metrics MetricsInterface) *Engine {
	e := &Engine{
		heuristic: HeuristicStrategy{},
		state:     state,
		metrics:   metrics,
	}

	if l, ok := state.(Loaded); ok {
		ts, err := NewTrainedStrategy(l.Set)
		if err != nil {
			log.Warn().Err(err).Msg("Loaded model state is unusable, using heuristic fallback")
			e.state = Unloaded{Reason: err}
		} else {
			e.trained = ts
		}
	}

	if e.metrics != nil {
		e.metrics.MLModelLoadedSet(e.trained != nil)
		if l, ok := e.state.(Loaded); ok && !l.Set.LoadedAt.IsZero() {
			e.metrics.MLModelAgeSet(time.Since(l.Set.LoadedAt).Seconds())
		}
	}
	return e
}

// ModelLoaded reports whether predictions use the trained model.
func (e *Engine) ModelLoaded() bool { return e.trained != nil }

// State returns the model state the engine was built with.
func (e *Engine) State() ModelState { return e.state }

// Predict classifies one row. Any failure of the trained path is logged and the row
// is scored by the heuristic instead. The only error returned is
// features.ErrInvalidValue for a malformed vital.
func (e *Engine) Predict(row features.Row) (Prediction, error) {
	start := time.Now()
	defer func() {
		if e.metrics != nil {
			e.metrics.MLLatencyObserve(time.Since(start).Seconds())
		}
	}()

	if e.trained != nil {
		p, err := e.trained.Predict(row)
		if err == nil {
			e.record(p)
			return p, nil
		}
		log.Warn().Err(err).Msg("Model prediction failed, falling back to heuristics")
		if e.metrics != nil {
			e.metrics.MLFailuresInc()
		}
	}

	p, err := e.heuristic.Predict(row)
	if err != nil {
		return Prediction{}, err
	}
	if e.metrics != nil {
		e.metrics.MLFallbackUseInc()
	}
	e.record(p)
	return p, nil
}

func (e *Engine) record(p Prediction) {
	if e.metrics == nil {
		return
	}
	e.metrics.MLPredictionsInc(string(p.Source))
	e.metrics.MLPredictionScoresObserve(p.Confidence)
}
