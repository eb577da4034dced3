package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"sync"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"sepsis-predictor/internal/api"
	"sepsis-predictor/internal/cfg"
	"sepsis-predictor/internal/metrics"
	"sepsis-predictor/internal/ml"
	"sepsis-predictor/internal/storage"
)

func main() {
	c, err := cfg.Load()
	if err != nil {
		log.Fatal().Err(err).Msg("config load failed")
	}
	setupLogging(c)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	m := metrics.New()
	mw := metrics.NewWrapper(m)

	store := initializeStorage(c)
	if store != nil {
		defer store.Close()
	}

	state := ml.LoadArtifacts(c.ModelDir)
	engine := ml.NewEngine(state, mw)

	opts := api.Options{
		Engine:              engine,
		ModelMetrics:        ml.LoadModelMetrics(c.ModelDir),
		Metrics:             mw,
		BatchMetrics:        mw,
		ChunkSize:           c.ChunkSize,
		MaxUploadBytes:      c.MaxUploadBytes,
		StrictSinglePredict: c.StrictSinglePredict,
		ReadTimeout:         c.ReadTimeout,
		WriteTimeout:        c.WriteTimeout,
	}
	if store != nil {
		opts.Store = store
	}

	server := api.NewServer(opts)
	if err := server.Start(fmt.Sprintf(":%d", c.HTTPPort)); err != nil {
		log.Fatal().Err(err).Msg("failed to start API server")
	}

	log.Info().
		Int("port", c.HTTPPort).
		Bool("model_loaded", engine.ModelLoaded()).
		Bool("audit", store != nil).
		Bool("strict_single_predict", c.StrictSinglePredict).
		Msg("Sepsis prediction service started")

	var wg sync.WaitGroup
	startMetricsServer(ctx, &wg, c)
	startModelAgeReporter(ctx, &wg, state, mw)

	waitForShutdown(ctx, cancel, &wg)

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), c.ShutdownTimeout)
	defer shutdownCancel()
	if err := server.Stop(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("API server did not drain in time")
	}

	log.Info().
		Float64("fallback_rate", metrics.FallbackRate(prometheus.DefaultGatherer)).
		Msg("shutdown complete")
}

func setupLogging(c cfg.Settings) {
	level, err := zerolog.ParseLevel(strings.ToLower(c.LogLevel))
	if err != nil {
		level = zerolog.InfoLevel
	}
	zerolog.SetGlobalLevel(level)
	zerolog.TimeFieldFormat = time.RFC3339Nano

	if strings.EqualFold(c.LogFormat, "console") {
		log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.RFC3339})
	} else {
		log.Logger = zerolog.New(os.Stderr).With().Timestamp().Logger()
	}
}

// initializeStorage opens the audit store if DATA_PATH is configured
func initializeStorage(c cfg.Settings) *storage.Store {
	if c.DataPath == "" {
		return nil
	}
	store, err := storage.New(c.DataPath)
	if err != nil {
		log.Warn().Err(err).Msg("storage initialization failed, continuing without batch audit")
		return nil
	}
	return store
}

// startMetricsServer serves Prometheus metrics until ctx is done
func startMetricsServer(ctx context.Context, wg *sync.WaitGroup, c cfg.Settings) {
	if c.MetricsPort == 0 {
		log.Info().Msg("metrics server disabled")
		return
	}

	mux := http.NewServeMux()
	mux.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("OK"))
	})
	mux.Handle("/metrics", promhttp.Handler())

	server := &http.Server{
		Addr:              fmt.Sprintf(":%d", c.MetricsPort),
		Handler:           mux,
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       30 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	wg.Add(2)
	go func() {
		defer wg.Done()
		<-ctx.Done()
		if err := server.Shutdown(context.Background()); err != nil {
			log.Error().Err(err).Msg("failed to shutdown metrics server")
		}
	}()
	go func() {
		defer wg.Done()
		log.Info().Int("port", c.MetricsPort).Msg("metrics server listening")
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Error().Err(err).Msg("metrics server failed")
		}
	}()
}

// startModelAgeReporter keeps the model age gauge current. Age is measured from
// the training time when metadata records one, otherwise from load time.
func startModelAgeReporter(ctx context.Context, wg *sync.WaitGroup, state ml.ModelState, mw *metrics.Wrapper) {
	loaded, ok := state.(ml.Loaded)
	if !ok {
		return
	}
	since := loaded.Set.LoadedAt
	if md := loaded.Set.Metadata; md != nil && !md.TrainedAt.IsZero() {
		since = md.TrainedAt
	}

	wg.Add(1)
	go func() {
		defer wg.Done()
		ticker := time.NewTicker(time.Minute)
		defer ticker.Stop()
		for {
			mw.MLModelAgeSet(time.Since(since).Seconds())
			select {
			case <-ticker.C:
			case <-ctx.Done():
				return
			}
		}
	}()
}

func waitForShutdown(ctx context.Context, cancel context.CancelFunc, wg *sync.WaitGroup) {
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)

	select {
	case <-sigChan:
		log.Info().Msg("shutdown signal received")
	case <-ctx.Done():
		log.Info().Msg("context canceled")
	}

	log.Info().Msg("shutting down gracefully...")
	cancel()

	done := make(chan struct{})
	go func() {
		wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		log.Info().Msg("background workers stopped")
	case <-time.After(10 * time.Second):
		log.Warn().Msg("shutdown timeout, forcing exit")
	}
}
