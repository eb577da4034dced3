package client

import (
	"context"
	"encoding/json"
	"errors"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"sepsis-predictor/internal/api"
	"sepsis-predictor/internal/ml"
	"sepsis-predictor/internal/storage"
)

func startService(t *testing.T, withStore bool) *httptest.Server {
	t.Helper()
	model, imp, sc := ml.SampleArtifacts()
	set, err := ml.NewArtifactSet(model, imp, sc, ml.SampleFeatureNames)
	require.NoError(t, err)

	opts := api.Options{Engine: ml.NewEngine(ml.Loaded{Set: set}, nil)}
	if withStore {
		store, err := storage.New(t.TempDir())
		require.NoError(t, err)
		t.Cleanup(func() { store.Close() })
		opts.Store = store
	}

	ts := httptest.NewServer(api.NewServer(opts).Handler())
	t.Cleanup(ts.Close)
	return ts
}

func writeCSV(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func TestClient_HealthAndMetrics(t *testing.T) {
	ts := startService(t, false)
	c := NewREST(ts.URL+"/", 5*time.Second)
	ctx := context.Background()

	health, err := c.Health(ctx)
	require.NoError(t, err)
	assert.Equal(t, "ok", health.Status)
	assert.Equal(t, "loaded", health.ModelStatus)

	metrics, err := c.ModelMetrics(ctx)
	require.NoError(t, err)
	assert.Equal(t, ml.DefaultModelMetrics, metrics["LightGBM"])
}

func TestClient_Predict(t *testing.T) {
	ts := startService(t, false)
	c := NewREST(ts.URL, 5*time.Second)

	resp, err := c.Predict(context.Background(), json.RawMessage(`{"HR": 120, "Temp": 39, "Resp": 25}`))
	require.NoError(t, err)
	assert.Equal(t, "Sepsis Detected", resp.FinalPrediction)
	assert.Equal(t, 92.41, resp.Probability)

	_, err = c.Predict(context.Background(), json.RawMessage(`{"Temp": "hot"}`))
	var apiErr *APIError
	require.True(t, errors.As(err, &apiErr), "got %v", err)
	assert.Equal(t, 400, apiErr.Status)
	assert.Contains(t, apiErr.Message, "invalid feature value")
}

func TestClient_BatchAndAudit(t *testing.T) {
	ts := startService(t, true)
	c := NewREST(ts.URL, 5*time.Second)
	ctx := context.Background()

	path := writeCSV(t, "vitals.csv", "heart_rate,temperature,resp\n120,39,25\n70,37,16\nx,37,16\n")
	result, err := c.BatchPredict(ctx, path)
	require.NoError(t, err)
	assert.Equal(t, 2, result.Count)
	assert.Equal(t, "Sepsis Detected", result.Predictions[0]["Prediction"])

	_, err = c.BatchPredict(ctx, writeCSV(t, "vitals.txt", "hr\n1\n"))
	var apiErr *APIError
	require.ErrorAs(t, err, &apiErr)
	assert.Equal(t, "File must be a CSV", apiErr.Message)

	report, err := c.ValidateDataset(ctx, path)
	require.NoError(t, err)
	assert.False(t, report.IsValid)
	assert.Equal(t, 2, report.RecordCount)
	assert.Equal(t, 1, report.WarningCount)

	runs, err := c.ListRuns(ctx, 10)
	require.NoError(t, err)
	require.Equal(t, 2, runs.Count)
	assert.Equal(t, "validate", runs.Runs[0].Mode)

	run, err := c.GetRun(ctx, runs.Runs[1].ID)
	require.NoError(t, err)
	assert.Equal(t, "vitals.csv", run.Filename)
	assert.Equal(t, 2, run.Records)

	_, err = c.GetRun(ctx, "missing")
	assert.True(t, IsNotFound(err))
}

func TestClient_AuditDisabled(t *testing.T) {
	ts := startService(t, false)
	_, err := NewREST(ts.URL, time.Second).ListRuns(context.Background(), 0)
	assert.True(t, IsNotFound(err))
}

func TestStream_Send(t *testing.T) {
	ts := startService(t, false)
	s, err := DialStream(context.Background(), ts.URL, 5*time.Second)
	require.NoError(t, err)
	defer s.Close()

	reply, err := s.Send(json.RawMessage(`{"hr": "120", "temp": "39", "resp": "25"}`))
	require.NoError(t, err)
	assert.Equal(t, int64(1), reply.Seq)
	require.NotNil(t, reply.PredictResponse)
	assert.Equal(t, "Sepsis Detected", reply.FinalPrediction)
	assert.Empty(t, reply.Error)

	reply, err = s.Send(json.RawMessage(`not json`))
	require.NoError(t, err)
	assert.Equal(t, int64(2), reply.Seq)
	assert.Nil(t, reply.PredictResponse)
	assert.NotEmpty(t, reply.Error)

	assert.NoError(t, s.Close())
	assert.NoError(t, s.Close())
}
