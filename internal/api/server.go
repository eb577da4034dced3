// Package api exposes the prediction engine over HTTP.
//
// Routes:
//
//	POST /api/predict            single JSON row
//	POST /api/batch-predict      multipart CSV upload, field "file"
//	POST /api/validate-dataset   multipart CSV upload, field "file"
//	GET  /api/health             model status
//	GET  /api/metrics            evaluation figures of the model
//	GET  /api/batch-runs         audit log of batch requests
//	GET  /api/batch-runs/{id}    one audit entry
//	GET  /api/stream             websocket, one JSON row per message
package api

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/mux"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"

	"sepsis-predictor/internal/batch"
	"sepsis-predictor/internal/ml"
	"sepsis-predictor/internal/storage"
)

// MetricsInterface defines metrics methods needed by the HTTP layer
type MetricsInterface interface {
	HTTPRequestObserve(route, method string, code int, seconds float64)
	BatchRequestsInc(outcome string)
	StreamConnectionsAdd(delta float64)
	StreamMessagesInc()
}

// RunStore persists batch-run summaries. *storage.Store implements it.
type RunStore interface {
	StoreRun(rec storage.RunRecord) (storage.RunRecord, error)
	GetRun(id string) (storage.RunRecord, error)
	ListRuns(limit int) ([]storage.RunRecord, error)
	RunsInRange(start, end time.Time) ([]storage.RunRecord, error)
}

// Options wires the server's collaborators. Only Engine is required.
type Options struct {
	Engine       *ml.Engine
	ModelMetrics ml.ModelMetrics
	Store        RunStore // nil disables the audit endpoints
	Metrics      MetricsInterface
	BatchMetrics batch.MetricsInterface

	ChunkSize           int
	MaxUploadBytes      int64
	StrictSinglePredict bool
	ReadTimeout         time.Duration
	WriteTimeout        time.Duration
}

// Server serves the prediction API.
type Server struct {
	opts      Options
	processor *batch.Processor
	router    *mux.Router
	server    *http.Server
	upgrader  websocket.Upgrader

	// closing is cancelled by Stop so open streams can say goodbye.
	closing context.Context
	cancel  context.CancelFunc

	mu        sync.Mutex
	isRunning bool
}

// NewServer builds the router. The server does not listen until Start.
func NewServer(opts Options) *Server {
	if opts.ChunkSize <= 0 {
		opts.ChunkSize = 5000
	}
	if opts.ModelMetrics == (ml.ModelMetrics{}) {
		opts.ModelMetrics = ml.DefaultModelMetrics
	}
	if opts.MaxUploadBytes <= 0 {
		opts.MaxUploadBytes = 256 << 20
	}

	s := &Server{
		opts:      opts,
		processor: batch.NewProcessor(opts.Engine, opts.ChunkSize, opts.BatchMetrics),
		upgrader: websocket.Upgrader{
			ReadBufferSize:  4096,
			WriteBufferSize: 4096,
			CheckOrigin:     func(r *http.Request) bool { return true },
		},
	}

	r := mux.NewRouter()
	r.Use(requestID, s.observe, recoverer)

	api := r.PathPrefix("/api").Subrouter()
	api.HandleFunc("/predict", s.handlePredict).Methods(http.MethodPost)
	api.HandleFunc("/batch-predict", s.handleBatchPredict).Methods(http.MethodPost)
	api.HandleFunc("/validate-dataset", s.handleValidateDataset).Methods(http.MethodPost)
	api.HandleFunc("/health", s.handleHealth).Methods(http.MethodGet)
	api.HandleFunc("/metrics", s.handleModelMetrics).Methods(http.MethodGet)
	api.HandleFunc("/batch-runs", s.handleListRuns).Methods(http.MethodGet)
	api.HandleFunc("/batch-runs/{id}", s.handleGetRun).Methods(http.MethodGet)
	api.HandleFunc("/stream", s.handleStream).Methods(http.MethodGet)

	r.NotFoundHandler = http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		writeError(w, http.StatusNotFound, "not found")
	})
	r.MethodNotAllowedHandler = http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
	})

	s.closing, s.cancel = context.WithCancel(context.Background())
	s.router = r
	return s
}

// Handler returns the root handler, for tests and embedding.
func (s *Server) Handler() http.Handler { return s.router }

// Start binds addr and serves in the background. Bind errors are returned.
func (s *Server) Start(addr string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.isRunning {
		return fmt.Errorf("api server is already running")
	}

	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("failed to listen on %s: %w", addr, err)
	}

	s.server = &http.Server{
		Handler:      s.router,
		ReadTimeout:  s.opts.ReadTimeout,
		WriteTimeout: s.opts.WriteTimeout,
	}

	go func() {
		log.Info().Str("address", ln.Addr().String()).Msg("Starting API server")
		if err := s.server.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Error().Err(err).Msg("API server failed")
		}
	}()

	s.isRunning = true
	return nil
}

// Stop drains in-flight requests until ctx expires.
func (s *Server) Stop(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.cancel()
	if !s.isRunning {
		return nil
	}
	if err := s.server.Shutdown(ctx); err != nil {
		log.Error().Err(err).Msg("Failed to shutdown API server")
		return err
	}
	s.isRunning = false
	log.Info().Msg("API server stopped")
	return nil
}
