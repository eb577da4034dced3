package batch

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/rs/zerolog/log"

	"sepsis-predictor/internal/features"
	"sepsis-predictor/internal/ml"
)

// ErrEmptyResult is returned when a batch produced no records.
var ErrEmptyResult = errors.New("no valid rows in CSV")

// ReadError reports that the input could not be read as CSV at all, as opposed to
// individual rows being malformed.
type ReadError struct {
	Err error
}

func (e *ReadError) Error() string { return e.Err.Error() }
func (e *ReadError) Unwrap() error { return e.Err }

// MetricsInterface defines metrics methods needed by the processor
type MetricsInterface interface {
	BatchRowsReadAdd(int)
	BatchRecordsAdd(int)
	BatchRowsSkippedInc()
	BatchChunksInc()
	BatchDurationObserve(float64)
}

// Predictor scores one normalized row. *ml.Engine implements it.
type Predictor interface {
	Predict(row features.Row) (ml.Prediction, error)
}

// Record is the output for one successfully scored row.
type Record struct {
	Row        int
	Features   features.Row
	Prediction ml.Prediction
}

// MarshalJSON flattens the record into a single object: the row index, the row's
// non-missing feature values and the prediction fields.
func (r Record) MarshalJSON() ([]byte, error) {
	var buf bytes.Buffer
	buf.WriteString(`{"row":`)
	buf.WriteString(fmt.Sprint(r.Row))

	for _, name := range features.Vocabulary {
		v, ok := r.Features[name]
		if !ok || v.IsMissing() {
			continue
		}
		b, err := json.Marshal(v.Interface())
		if err != nil {
			return nil, err
		}
		fmt.Fprintf(&buf, `,%q:`, string(name))
		buf.Write(b)
	}

	fmt.Fprintf(&buf, `,"Prediction":%q`, r.Prediction.Label.String())
	writeFloat(&buf, "Confidence", r.Prediction.Confidence)
	writeFloat(&buf, "Probability_Sepsis", r.Prediction.ProbabilityPositive)
	writeFloat(&buf, "Probability_No_Sepsis", r.Prediction.ProbabilityNegative)
	buf.WriteByte('}')
	return buf.Bytes(), nil
}

func writeFloat(buf *bytes.Buffer, key string, v float64) {
	b, _ := json.Marshal(v)
	fmt.Fprintf(buf, `,%q:`, key)
	buf.Write(b)
}

// Summary describes a finished batch.
type Summary struct {
	RowsRead  int
	Records   int
	Skipped   int
	Chunks    int
	Positives int
	Columns   []features.CanonicalName
	Duration  time.Duration
}

// Processor runs the per-row pipeline over CSV input.
type Processor struct {
	predictor Predictor
	chunkSize int
	metrics   MetricsInterface
}

// NewProcessor creates a processor. metrics may be nil.
func NewProcessor(predictor Predictor, chunkSize int, metrics MetricsInterface) *Processor {
	return &Processor{predictor: predictor, chunkSize: chunkSize, metrics: metrics}
}

// Process streams r chunk by chunk and calls emit for every scored row, in input
// order. Malformed rows are logged with their line number and skipped. The context
// is checked between chunks. The caller owns r.
func (p *Processor) Process(ctx context.Context, r io.Reader, emit func(Record) error) (summary Summary, err error) {
	start := time.Now()
	defer func() {
		summary.Duration = time.Since(start)
		if p.metrics != nil {
			p.metrics.BatchDurationObserve(summary.Duration.Seconds())
		}
	}()

	reader, err := NewChunkReader(r, p.chunkSize)
	if err != nil {
		return summary, &ReadError{Err: err}
	}

	for {
		if err = ctx.Err(); err != nil {
			return summary, err
		}

		var chunk Chunk
		chunk, err = reader.Next()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return summary, &ReadError{Err: err}
		}

		if err = p.processChunk(chunk, &summary, emit); err != nil {
			return summary, err
		}
	}

	log.Info().
		Int("rows", summary.RowsRead).
		Int("records", summary.Records).
		Int("skipped", summary.Skipped).
		Int("chunks", summary.Chunks).
		Dur("elapsed", time.Since(start)).
		Msg("Batch processed")

	if summary.Records == 0 {
		return summary, ErrEmptyResult
	}
	return summary, nil
}

func (p *Processor) processChunk(chunk Chunk, summary *Summary, emit func(Record) error) error {
	summary.Chunks++
	summary.RowsRead += len(chunk.Rows)
	if p.metrics != nil {
		p.metrics.BatchChunksInc()
		p.metrics.BatchRowsReadAdd(len(chunk.Rows))
	}

	mapping := features.NormalizeHeader(chunk.Header)
	if mapping.Empty() {
		log.Warn().Int("chunk", chunk.Index).Strs("columns", chunk.Header).Msg("No recognized columns in chunk, skipping")
		return nil
	}
	summary.Columns = mapping.Recognized()

	produced := 0
	for _, raw := range chunk.Rows {
		rec, err := p.scoreRow(mapping, raw, summary.Records)
		if err != nil {
			summary.Skipped++
			if p.metrics != nil {
				p.metrics.BatchRowsSkippedInc()
			}
			log.Warn().Err(err).Int("line", raw.Line).Msg("Skipping malformed row")
			continue
		}
		if err := emit(rec); err != nil {
			return err
		}
		summary.Records++
		produced++
		if rec.Prediction.Label == ml.Positive {
			summary.Positives++
		}
	}
	if p.metrics != nil {
		p.metrics.BatchRecordsAdd(produced)
	}
	return nil
}

func (p *Processor) scoreRow(mapping features.Mapping, raw RawRow, index int) (Record, error) {
	if raw.Err != nil {
		return Record{}, raw.Err
	}
	if len(raw.Fields) > mapping.Width() {
		return Record{}, fmt.Errorf("expected %d fields, saw %d", mapping.Width(), len(raw.Fields))
	}
	row := mapping.Row(raw.Fields)
	pred, err := p.predictor.Predict(row)
	if err != nil {
		return Record{}, err
	}
	return Record{Row: index, Features: row, Prediction: pred}, nil
}

// ProcessAll collects every record in memory.
func (p *Processor) ProcessAll(ctx context.Context, r io.Reader) ([]Record, Summary, error) {
	var records []Record
	summary, err := p.Process(ctx, r, func(rec Record) error {
		records = append(records, rec)
		return nil
	})
	if err != nil {
		return nil, summary, err
	}
	return records, summary, nil
}
