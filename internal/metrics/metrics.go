// Package metrics provides Prometheus metrics collection for the sepsis prediction
// service. It defines the inference, batch and HTTP metrics exposed on the metrics
// endpoint for monitoring and alerting.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds all Prometheus metrics for the service.
type Metrics struct {
	// Inference metrics
	MLPredictions      *prometheus.CounterVec // Predictions made, by source (model|heuristic)
	MLFailures         prometheus.Counter     // Trained-model failures that fell back to the heuristic
	MLFallbackUse      prometheus.Counter     // Predictions served by the heuristic
	MLModelLoaded      prometheus.Gauge       // 1 when the trained model is loaded
	MLModelAge         prometheus.Gauge       // Age of the loaded model in seconds
	MLLatency          prometheus.Histogram   // Per-row inference latency in seconds
	MLPredictionScores prometheus.Histogram   // Distribution of prediction confidence (percent)

	// Batch metrics
	BatchRequests    *prometheus.CounterVec // Batch requests, by outcome
	BatchRowsRead    prometheus.Counter     // CSV data rows read
	BatchRecords     prometheus.Counter     // Prediction records produced
	BatchRowsSkipped prometheus.Counter     // Rows skipped as malformed
	BatchChunks      prometheus.Counter     // Chunks processed
	BatchDuration    prometheus.Histogram   // Wall time of a batch in seconds

	// HTTP and stream metrics
	HTTPRequests      *prometheus.CounterVec   // Requests by route, method and status code
	HTTPDuration      *prometheus.HistogramVec // Request duration by route
	StreamConnections prometheus.Gauge         // Open websocket stream connections
	StreamMessages    prometheus.Counter       // Messages received on stream connections

	ErrorsTotal prometheus.Counter // Server-side errors returned to clients
}

// New creates and registers all Prometheus metrics using the default registry.
func New() *Metrics {
	return NewWithRegistry(prometheus.DefaultRegisterer)
}

// NewWithRegistry creates metrics with a custom registry (useful for testing).
func NewWithRegistry(registerer prometheus.Registerer) *Metrics {
	factory := promauto.With(registerer)
	return &Metrics{
		MLPredictions: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "ml_predictions_total",
			Help: "Total number of predictions made",
		}, []string{"source"}),
		MLFailures: factory.NewCounter(prometheus.CounterOpts{
			Name: "ml_failures_total",
			Help: "Total number of trained model failures",
		}),
		MLFallbackUse: factory.NewCounter(prometheus.CounterOpts{
			Name: "ml_fallback_use_total",
			Help: "Total number of times the heuristic fallback was used",
		}),
		MLModelLoaded: factory.NewGauge(prometheus.GaugeOpts{
			Name: "ml_model_loaded",
			Help: "Whether the trained model is loaded (1) or not (0)",
		}),
		MLModelAge: factory.NewGauge(prometheus.GaugeOpts{
			Name: "ml_model_age_seconds",
			Help: "Age of the current model in seconds",
		}),
		MLLatency: factory.NewHistogram(prometheus.HistogramOpts{
			Name:    "ml_latency_seconds",
			Help:    "Per-row prediction latency in seconds",
			Buckets: []float64{0.00001, 0.00005, 0.0001, 0.0005, 0.001, 0.005, 0.01, 0.05, 0.1},
		}),
		MLPredictionScores: factory.NewHistogram(prometheus.HistogramOpts{
			Name:    "ml_prediction_confidence",
			Help:    "Distribution of prediction confidence in percent",
			Buckets: prometheus.LinearBuckets(0, 10, 11),
		}),
		BatchRequests: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "batch_requests_total",
			Help: "Total number of batch prediction requests",
		}, []string{"outcome"}),
		BatchRowsRead: factory.NewCounter(prometheus.CounterOpts{
			Name: "batch_rows_read_total",
			Help: "Total number of CSV data rows read",
		}),
		BatchRecords: factory.NewCounter(prometheus.CounterOpts{
			Name: "batch_records_total",
			Help: "Total number of batch prediction records produced",
		}),
		BatchRowsSkipped: factory.NewCounter(prometheus.CounterOpts{
			Name: "batch_rows_skipped_total",
			Help: "Total number of malformed rows skipped",
		}),
		BatchChunks: factory.NewCounter(prometheus.CounterOpts{
			Name: "batch_chunks_total",
			Help: "Total number of CSV chunks processed",
		}),
		BatchDuration: factory.NewHistogram(prometheus.HistogramOpts{
			Name:    "batch_duration_seconds",
			Help:    "Duration of batch processing in seconds",
			Buckets: prometheus.ExponentialBuckets(0.01, 2, 15),
		}),
		HTTPRequests: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "http_requests_total",
			Help: "Total number of HTTP requests",
		}, []string{"route", "method", "code"}),
		HTTPDuration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "http_request_duration_seconds",
			Help:    "HTTP request duration in seconds",
			Buckets: prometheus.DefBuckets,
		}, []string{"route"}),
		StreamConnections: factory.NewGauge(prometheus.GaugeOpts{
			Name: "stream_connections",
			Help: "Number of open prediction stream connections",
		}),
		StreamMessages: factory.NewCounter(prometheus.CounterOpts{
			Name: "stream_messages_total",
			Help: "Total number of messages received on prediction streams",
		}),
		ErrorsTotal: factory.NewCounter(prometheus.CounterOpts{
			Name: "errors_total",
			Help: "Total number of server errors returned",
		}),
	}
}

// FallbackRate returns the share of predictions served by the heuristic, read from
// g. It returns 0 before any prediction has been made.
func FallbackRate(g prometheus.Gatherer) float64 {
	var total, fallback float64

	metricFamilies, err := g.Gather()
	if err != nil {
		return 0
	}

	for _, mf := range metricFamilies {
		switch mf.GetName() {
		case "ml_predictions_total":
			for _, m := range mf.Metric {
				total += m.GetCounter().GetValue()
			}
		case "ml_fallback_use_total":
			for _, m := range mf.Metric {
				fallback = m.GetCounter().GetValue()
			}
		}
	}

	if total == 0 {
		return 0
	}
	return fallback / total
}
