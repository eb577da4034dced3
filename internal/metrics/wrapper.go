package metrics

import "strconv"

// Wrapper adapts Metrics to the narrow interfaces used by the ml, batch and api
// packages, so those packages do not import Prometheus.
type Wrapper struct {
	m *Metrics
}

func NewWrapper(m *Metrics) *Wrapper {
	return &Wrapper{m: m}
}

// Inference

func (w *Wrapper) MLPredictionsInc(source string) {
	w.m.MLPredictions.WithLabelValues(source).Inc()
}

func (w *Wrapper) MLFailuresInc() {
	w.m.MLFailures.Inc()
}

func (w *Wrapper) MLLatencyObserve(v float64) {
	w.m.MLLatency.Observe(v)
}

func (w *Wrapper) MLModelAgeSet(v float64) {
	w.m.MLModelAge.Set(v)
}

func (w *Wrapper) MLModelLoadedSet(loaded bool) {
	if loaded {
		w.m.MLModelLoaded.Set(1)
		return
	}
	w.m.MLModelLoaded.Set(0)
}

func (w *Wrapper) MLPredictionScoresObserve(v float64) {
	w.m.MLPredictionScores.Observe(v)
}

func (w *Wrapper) MLFallbackUseInc() {
	w.m.MLFallbackUse.Inc()
}

// Batch

func (w *Wrapper) BatchRowsReadAdd(n int) {
	w.m.BatchRowsRead.Add(float64(n))
}

func (w *Wrapper) BatchRecordsAdd(n int) {
	w.m.BatchRecords.Add(float64(n))
}

func (w *Wrapper) BatchRowsSkippedInc() {
	w.m.BatchRowsSkipped.Inc()
}

func (w *Wrapper) BatchChunksInc() {
	w.m.BatchChunks.Inc()
}

func (w *Wrapper) BatchDurationObserve(v float64) {
	w.m.BatchDuration.Observe(v)
}

func (w *Wrapper) BatchRequestsInc(outcome string) {
	w.m.BatchRequests.WithLabelValues(outcome).Inc()
}

// HTTP

func (w *Wrapper) HTTPRequestObserve(route, method string, code int, seconds float64) {
	w.m.HTTPRequests.WithLabelValues(route, method, strconv.Itoa(code)).Inc()
	w.m.HTTPDuration.WithLabelValues(route).Observe(seconds)
	if code >= 500 {
		w.m.ErrorsTotal.Inc()
	}
}

func (w *Wrapper) StreamConnectionsAdd(delta float64) {
	w.m.StreamConnections.Add(delta)
}

func (w *Wrapper) StreamMessagesInc() {
	w.m.StreamMessages.Inc()
}
