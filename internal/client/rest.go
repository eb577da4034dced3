// Package client talks to a running prediction service over REST and the
// websocket stream.
package client

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"

	"sepsis-predictor/internal/api"
	"sepsis-predictor/internal/batch"
	"sepsis-predictor/internal/ml"
	"sepsis-predictor/internal/storage"
)

// APIError is a non-2xx response from the service.
type APIError struct {
	Status  int
	Message string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("service error: status %d: %s", e.Status, e.Message)
}

type Client struct {
	base string
	rest *resty.Client
}

// NewREST creates a client for the service at base, e.g. http://localhost:5000.
func NewREST(base string, timeout time.Duration) *Client {
	r := resty.New()
	if timeout > 0 {
		r.SetTimeout(timeout)
	} else {
		r.SetTimeout(30 * time.Second)
	}
	r.SetHeader("Accept", "application/json")
	return &Client{base: strings.TrimRight(base, "/"), rest: r}
}

// BatchResult is the response of a batch prediction. Records are kept as
// decoded objects since their feature columns vary per upload.
type BatchResult struct {
	Predictions []map[string]any `json:"predictions"`
	Count       int              `json:"count"`
}

// RunList is the response of the audit listing.
type RunList struct {
	Runs  []storage.RunRecord `json:"runs"`
	Count int                 `json:"count"`
}

type errorBody struct {
	Error string `json:"error"`
}

func (c *Client) request(ctx context.Context, result any) *resty.Request {
	return c.rest.R().
		SetContext(ctx).
		SetResult(result).
		SetError(&errorBody{})
}

func check(resp *resty.Response, err error) error {
	if err != nil {
		return fmt.Errorf("request failed: %w", err)
	}
	if resp.IsError() {
		msg := resp.String()
		if e, ok := resp.Error().(*errorBody); ok && e.Error != "" {
			msg = e.Error
		}
		return &APIError{Status: resp.StatusCode(), Message: msg}
	}
	return nil
}

// Health reports the service and model status.
func (c *Client) Health(ctx context.Context) (api.HealthResponse, error) {
	var out api.HealthResponse
	err := check(c.request(ctx, &out).Get(c.base + "/api/health"))
	return out, err
}

// ModelMetrics returns the evaluation figures keyed by model name.
func (c *Client) ModelMetrics(ctx context.Context) (map[string]ml.ModelMetrics, error) {
	var out map[string]ml.ModelMetrics
	err := check(c.request(ctx, &out).Get(c.base + "/api/metrics"))
	return out, err
}

// Predict scores one row given as a JSON object.
func (c *Client) Predict(ctx context.Context, row json.RawMessage) (api.PredictResponse, error) {
	var out api.PredictResponse
	err := check(c.request(ctx, &out).
		SetHeader("Content-Type", "application/json").
		SetBody([]byte(row)).
		Post(c.base + "/api/predict"))
	return out, err
}

// BatchPredict uploads the CSV file at path.
func (c *Client) BatchPredict(ctx context.Context, path string) (BatchResult, error) {
	var out BatchResult
	err := check(c.request(ctx, &out).
		SetFile("file", path).
		Post(c.base + "/api/batch-predict"))
	return out, err
}

// ValidateDataset uploads the CSV file at path for a dry-run check.
func (c *Client) ValidateDataset(ctx context.Context, path string) (batch.ValidationReport, error) {
	var out batch.ValidationReport
	err := check(c.request(ctx, &out).
		SetFile("file", path).
		Post(c.base + "/api/validate-dataset"))
	return out, err
}

// ListRuns returns up to limit audit entries, newest first.
func (c *Client) ListRuns(ctx context.Context, limit int) (RunList, error) {
	var out RunList
	req := c.request(ctx, &out)
	if limit > 0 {
		req.SetQueryParam("limit", strconv.Itoa(limit))
	}
	err := check(req.Get(c.base + "/api/batch-runs"))
	return out, err
}

// GetRun returns one audit entry.
func (c *Client) GetRun(ctx context.Context, id string) (storage.RunRecord, error) {
	var out storage.RunRecord
	err := check(c.request(ctx, &out).
		SetPathParam("id", id).
		Get(c.base + "/api/batch-runs/{id}"))
	return out, err
}

// IsNotFound reports whether err is a 404 from the service.
func IsNotFound(err error) bool {
	e, ok := err.(*APIError)
	return ok && e.Status == http.StatusNotFound
}
