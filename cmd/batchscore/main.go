package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"sepsis-predictor/internal/batch"
	"sepsis-predictor/internal/cfg"
	"sepsis-predictor/internal/ml"
)

func main() {
	var (
		inputPath  = flag.String("input", "", "CSV file to score")
		modelDir   = flag.String("model", "", "Model artifact directory (overrides config)")
		outputPath = flag.String("output", "", "Output directory for results")
		chunkSize  = flag.Int("chunk", 0, "Rows per chunk (overrides config)")
		logLevel   = flag.String("log-level", "info", "Log level: debug, info, warn, error")
	)
	flag.Parse()

	level, err := zerolog.ParseLevel(*logLevel)
	if err != nil {
		level = zerolog.InfoLevel
	}
	zerolog.SetGlobalLevel(level)
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr})

	if *inputPath == "" {
		log.Fatal().Msg("-input is required")
	}

	config, err := cfg.Load()
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to load config")
	}
	if *modelDir != "" {
		config.ModelDir = *modelDir
	}
	if *chunkSize > 0 {
		config.ChunkSize = *chunkSize
	}
	if *outputPath == "" {
		base := strings.TrimSuffix(filepath.Base(*inputPath), filepath.Ext(*inputPath))
		*outputPath = filepath.Join("results", base+"_"+time.Now().Format("20060102_150405"))
	}

	fmt.Println("=== Batch Scoring Configuration ===")
	fmt.Printf("Input: %s\n", *inputPath)
	fmt.Printf("Model Directory: %s\n", config.ModelDir)
	fmt.Printf("Chunk Size: %d\n", config.ChunkSize)
	fmt.Printf("Output Directory: %s\n", *outputPath)
	fmt.Println("===================================")

	engine := ml.NewEngine(ml.LoadArtifacts(config.ModelDir), nil)
	if !engine.ModelLoaded() {
		log.Warn().Msg("No trained model available, scoring with the SIRS heuristic")
	}

	f, err := os.Open(*inputPath)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to open input")
	}
	defer f.Close()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	processor := batch.NewProcessor(engine, config.ChunkSize, nil)
	records, summary, err := processor.ProcessAll(ctx, f)
	if err != nil {
		log.Fatal().Err(err).Msg("Batch scoring failed")
	}

	reporter := batch.NewReporter(*inputPath, records, summary, *outputPath)
	if err := reporter.GenerateReport(); err != nil {
		log.Error().Err(err).Msg("Failed to generate reports")
	}
	reporter.PrintSummary(os.Stdout)

	log.Info().
		Str("output", *outputPath).
		Msg("Batch scoring completed successfully")
}
