package metrics

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestNewWrapper(t *testing.T) {
	registry := prometheus.NewRegistry()
	metrics := NewWithRegistry(registry)
	wrapper := NewWrapper(metrics)

	if wrapper == nil {
		t.Fatal("NewWrapper returned nil")
	}
	if wrapper.m != metrics {
		t.Error("Wrapper does not contain correct metrics instance")
	}
}

func TestWrapper_InferenceMetrics(t *testing.T) {
	registry := prometheus.NewRegistry()
	metrics := NewWithRegistry(registry)
	wrapper := NewWrapper(metrics)

	wrapper.MLPredictionsInc("model")
	wrapper.MLPredictionsInc("model")
	wrapper.MLPredictionsInc("heuristic")
	wrapper.MLFailuresInc()
	wrapper.MLFallbackUseInc()

	if v := testutil.ToFloat64(metrics.MLPredictions.WithLabelValues("model")); v != 2 {
		t.Errorf("Expected 2 model predictions, got %f", v)
	}
	if v := testutil.ToFloat64(metrics.MLPredictions.WithLabelValues("heuristic")); v != 1 {
		t.Errorf("Expected 1 heuristic prediction, got %f", v)
	}
	if v := testutil.ToFloat64(metrics.MLFailures); v != 1 {
		t.Errorf("Expected 1 failure, got %f", v)
	}

	wrapper.MLModelLoadedSet(true)
	if v := testutil.ToFloat64(metrics.MLModelLoaded); v != 1 {
		t.Errorf("Expected model loaded gauge 1, got %f", v)
	}
	wrapper.MLModelLoadedSet(false)
	if v := testutil.ToFloat64(metrics.MLModelLoaded); v != 0 {
		t.Errorf("Expected model loaded gauge 0, got %f", v)
	}

	wrapper.MLModelAgeSet(3600)
	if v := testutil.ToFloat64(metrics.MLModelAge); v != 3600 {
		t.Errorf("Expected model age 3600, got %f", v)
	}

	wrapper.MLLatencyObserve(0.0002)
	wrapper.MLPredictionScoresObserve(66.67)
	if n := testutil.CollectAndCount(metrics.MLLatency); n != 1 {
		t.Errorf("Expected 1 latency series, got %d", n)
	}
}

func TestWrapper_BatchMetrics(t *testing.T) {
	registry := prometheus.NewRegistry()
	metrics := NewWithRegistry(registry)
	wrapper := NewWrapper(metrics)

	wrapper.BatchRowsReadAdd(5000)
	wrapper.BatchRowsReadAdd(2000)
	wrapper.BatchRecordsAdd(6998)
	wrapper.BatchRowsSkippedInc()
	wrapper.BatchRowsSkippedInc()
	wrapper.BatchChunksInc()
	wrapper.BatchChunksInc()
	wrapper.BatchDurationObserve(1.5)
	wrapper.BatchRequestsInc("ok")

	tests := []struct {
		name string
		c    prometheus.Collector
		want float64
	}{
		{"rows read", metrics.BatchRowsRead, 7000},
		{"records", metrics.BatchRecords, 6998},
		{"skipped", metrics.BatchRowsSkipped, 2},
		{"chunks", metrics.BatchChunks, 2},
		{"requests ok", metrics.BatchRequests.WithLabelValues("ok"), 1},
	}
	for _, tt := range tests {
		if v := testutil.ToFloat64(tt.c); v != tt.want {
			t.Errorf("%s: expected %f, got %f", tt.name, tt.want, v)
		}
	}
}

func TestWrapper_HTTPMetrics(t *testing.T) {
	registry := prometheus.NewRegistry()
	metrics := NewWithRegistry(registry)
	wrapper := NewWrapper(metrics)

	wrapper.HTTPRequestObserve("/api/predict", "POST", 200, 0.01)
	wrapper.HTTPRequestObserve("/api/predict", "POST", 400, 0.01)
	wrapper.HTTPRequestObserve("/api/predict", "POST", 500, 0.01)

	if v := testutil.ToFloat64(metrics.HTTPRequests.WithLabelValues("/api/predict", "POST", "400")); v != 1 {
		t.Errorf("Expected one 400, got %f", v)
	}
	if v := testutil.ToFloat64(metrics.ErrorsTotal); v != 1 {
		t.Errorf("Expected only 5xx to count as errors, got %f", v)
	}

	wrapper.StreamConnectionsAdd(1)
	wrapper.StreamConnectionsAdd(1)
	wrapper.StreamConnectionsAdd(-1)
	wrapper.StreamMessagesInc()
	if v := testutil.ToFloat64(metrics.StreamConnections); v != 1 {
		t.Errorf("Expected 1 open stream, got %f", v)
	}
}

func TestFallbackRate(t *testing.T) {
	registry := prometheus.NewRegistry()
	metrics := NewWithRegistry(registry)
	wrapper := NewWrapper(metrics)

	if rate := FallbackRate(registry); rate != 0 {
		t.Errorf("Expected 0 before predictions, got %f", rate)
	}

	wrapper.MLPredictionsInc("model")
	wrapper.MLPredictionsInc("model")
	wrapper.MLPredictionsInc("model")
	wrapper.MLPredictionsInc("heuristic")
	wrapper.MLFallbackUseInc()

	if rate := FallbackRate(registry); rate != 0.25 {
		t.Errorf("Expected fallback rate 0.25, got %f", rate)
	}
}

func TestNewWithRegistry_Isolated(t *testing.T) {
	// Two registries must not collide on metric names.
	NewWithRegistry(prometheus.NewRegistry())
	NewWithRegistry(prometheus.NewRegistry())
}
