package main

import (
	"bytes"
	"context"
	"encoding/csv"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"sepsis-predictor/internal/client"
	"sepsis-predictor/internal/common"
)

const usage = `usage: sepsisctl [-url URL] <command> [flags]

commands:
  health                   service and model status
  metrics                  model evaluation figures
  predict -data '{...}'    score one JSON row
  batch -file x.csv        score a CSV file
  validate -file x.csv     check a CSV file without scoring
  stream -file x.csv       score a CSV file row by row over the websocket stream
  runs [-limit n] [-id id] list or show batch audit entries
`

func main() {
	baseURL := flag.String("url", envOr(common.EnvServiceURL, common.DefaultServiceURL), "Service base URL")
	timeout := flag.Duration("timeout", 5*time.Minute, "Request timeout")
	logLevel := flag.String("log-level", "warn", "Log level: debug, info, warn, error")
	flag.Usage = func() { fmt.Fprint(os.Stderr, usage) }
	flag.Parse()

	level, err := zerolog.ParseLevel(*logLevel)
	if err != nil {
		level = zerolog.WarnLevel
	}
	zerolog.SetGlobalLevel(level)
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr})

	if flag.NArg() == 0 {
		flag.Usage()
		os.Exit(2)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	c := client.NewREST(*baseURL, *timeout)
	cmd, args := flag.Arg(0), flag.Args()[1:]

	var out any
	switch cmd {
	case "health":
		out, err = c.Health(ctx)
	case "metrics":
		out, err = c.ModelMetrics(ctx)
	case "predict":
		fs := flag.NewFlagSet("predict", flag.ExitOnError)
		data := fs.String("data", "", "JSON object with the row to score")
		fs.Parse(args)
		if *data == "" {
			log.Fatal().Msg("predict requires -data")
		}
		out, err = c.Predict(ctx, json.RawMessage(*data))
	case "batch":
		out, err = c.BatchPredict(ctx, fileFlag("batch", args))
	case "validate":
		out, err = c.ValidateDataset(ctx, fileFlag("validate", args))
	case "stream":
		err = streamFile(ctx, *baseURL, fileFlag("stream", args))
	case "runs":
		fs := flag.NewFlagSet("runs", flag.ExitOnError)
		limit := fs.Int("limit", 20, "Maximum entries to list")
		id := fs.String("id", "", "Show a single entry")
		fs.Parse(args)
		if *id != "" {
			out, err = c.GetRun(ctx, *id)
		} else {
			out, err = c.ListRuns(ctx, *limit)
		}
	default:
		flag.Usage()
		os.Exit(2)
	}

	if err != nil {
		var apiErr *client.APIError
		if errors.As(err, &apiErr) {
			log.Fatal().Int("status", apiErr.Status).Str("error", apiErr.Message).Msg(cmd + " rejected")
		}
		log.Fatal().Err(err).Msg(cmd + " failed")
	}
	if out != nil {
		printJSON(out)
	}
}

func fileFlag(name string, args []string) string {
	fs := flag.NewFlagSet(name, flag.ExitOnError)
	file := fs.String("file", "", "CSV file")
	fs.Parse(args)
	if *file == "" {
		log.Fatal().Msgf("%s requires -file", name)
	}
	return *file
}

// streamFile sends every CSV row as a JSON object keyed by the header and prints
// one reply per line.
func streamFile(ctx context.Context, baseURL, path string) error {
	f, err := os.Open(path)
	if err != nil {
		return err
	}
	defer f.Close()

	r := csv.NewReader(f)
	r.FieldsPerRecord = -1
	header, err := r.Read()
	if err != nil {
		return fmt.Errorf("read header: %w", err)
	}

	s, err := client.DialStream(ctx, baseURL, 10*time.Second)
	if err != nil {
		return err
	}
	defer s.Close()

	enc := json.NewEncoder(os.Stdout)
	for {
		if err := ctx.Err(); err != nil {
			return err
		}
		record, err := r.Read()
		if errors.Is(err, io.EOF) {
			return nil
		}
		if err != nil {
			log.Warn().Err(err).Msg("Skipping unreadable row")
			continue
		}

		msg, err := rowObject(header, record)
		if err != nil {
			return err
		}
		reply, err := s.Send(msg)
		if err != nil {
			return err
		}
		if err := enc.Encode(reply); err != nil {
			return err
		}
	}
}

// rowObject encodes a record as a JSON object with members in header order, so
// duplicate columns resolve on the server the same way they do for CSV uploads.
func rowObject(header, record []string) (json.RawMessage, error) {
	var buf bytes.Buffer
	buf.WriteByte('{')
	for i, name := range header {
		if i >= len(record) {
			break
		}
		if i > 0 {
			buf.WriteByte(',')
		}
		k, err := json.Marshal(name)
		if err != nil {
			return nil, err
		}
		v, err := json.Marshal(record[i])
		if err != nil {
			return nil, err
		}
		buf.Write(k)
		buf.WriteByte(':')
		buf.Write(v)
	}
	buf.WriteByte('}')
	return buf.Bytes(), nil
}

func printJSON(v any) {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	if err := enc.Encode(v); err != nil {
		log.Fatal().Err(err).Msg("failed to print result")
	}
}

func envOr(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}
