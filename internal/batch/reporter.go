package batch

import (
	"encoding/csv"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/rs/zerolog/log"

	"sepsis-predictor/internal/features"
)

// Reporter writes the results of an offline batch run.
type Reporter struct {
	source     string
	records    []Record
	summary    Summary
	outputPath string
}

// NewReporter creates a new reporter
func NewReporter(source string, records []Record, summary Summary, outputPath string) *Reporter {
	return &Reporter{
		source:     source,
		records:    records,
		summary:    summary,
		outputPath: outputPath,
	}
}

// GenerateReport generates all report formats
func (r *Reporter) GenerateReport() error {
	if err := os.MkdirAll(r.outputPath, 0755); err != nil {
		return fmt.Errorf("failed to create output directory: %w", err)
	}

	if err := r.generateSummary(); err != nil {
		return err
	}

	if err := r.generatePredictionLog(); err != nil {
		return err
	}

	if err := r.generateJSONReport(); err != nil {
		return err
	}

	return nil
}

// generateSummary generates a human-readable summary
func (r *Reporter) generateSummary() error {
	summaryPath := filepath.Join(r.outputPath, "summary.txt")
	file, err := os.Create(summaryPath)
	if err != nil {
		return fmt.Errorf("failed to create summary file: %w", err)
	}
	defer file.Close()

	s := r.summary
	fmt.Fprintf(file, "BATCH PREDICTION SUMMARY\n")
	fmt.Fprintf(file, "========================\n\n")
	fmt.Fprintf(file, "Input: %s\n", r.source)
	fmt.Fprintf(file, "Duration: %s\n\n", s.Duration.Round(time.Millisecond))

	fmt.Fprintf(file, "ROWS\n")
	fmt.Fprintf(file, "----\n")
	fmt.Fprintf(file, "Rows read: %d\n", s.RowsRead)
	fmt.Fprintf(file, "Records: %d\n", s.Records)
	fmt.Fprintf(file, "Skipped: %d\n", s.Skipped)
	fmt.Fprintf(file, "Chunks: %d\n\n", s.Chunks)

	fmt.Fprintf(file, "PREDICTIONS\n")
	fmt.Fprintf(file, "-----------\n")
	fmt.Fprintf(file, "Sepsis detected: %d\n", s.Positives)
	fmt.Fprintf(file, "No sepsis: %d\n", s.Records-s.Positives)
	if s.Records > 0 {
		fmt.Fprintf(file, "Positive rate: %.2f%%\n", float64(s.Positives)/float64(s.Records)*100)
	}

	sources := make(map[string]int)
	for _, rec := range r.records {
		sources[string(rec.Prediction.Source)]++
	}
	if len(sources) > 0 {
		fmt.Fprintf(file, "\nPREDICTIONS BY SOURCE\n")
		fmt.Fprintf(file, "---------------------\n")
		for source, n := range sources {
			fmt.Fprintf(file, "%s: %d\n", source, n)
		}
	}

	log.Info().Str("file", summaryPath).Msg("Summary report generated")
	return nil
}

// generatePredictionLog writes one CSV line per record
func (r *Reporter) generatePredictionLog() error {
	csvPath := filepath.Join(r.outputPath, "predictions.csv")
	file, err := os.Create(csvPath)
	if err != nil {
		return fmt.Errorf("failed to create prediction log: %w", err)
	}
	defer file.Close()

	writer := csv.NewWriter(file)

	columns := r.summary.Columns
	header := []string{"row"}
	for _, c := range columns {
		header = append(header, string(c))
	}
	header = append(header, "Prediction", "Confidence", "Probability_Sepsis", "Probability_No_Sepsis", "Source")
	if err := writer.Write(header); err != nil {
		return err
	}

	for _, rec := range r.records {
		record := []string{strconv.Itoa(rec.Row)}
		for _, c := range columns {
			record = append(record, rec.Features[c].String())
		}
		record = append(record,
			rec.Prediction.Label.String(),
			fmt.Sprintf("%.2f", rec.Prediction.Confidence),
			fmt.Sprintf("%.2f", rec.Prediction.ProbabilityPositive),
			fmt.Sprintf("%.2f", rec.Prediction.ProbabilityNegative),
			string(rec.Prediction.Source),
		)
		if err := writer.Write(record); err != nil {
			return err
		}
	}

	writer.Flush()
	if err := writer.Error(); err != nil {
		return fmt.Errorf("failed to write prediction log: %w", err)
	}

	log.Info().Str("file", csvPath).Msg("Prediction log generated")
	return nil
}

// generateJSONReport writes the records in the same shape as the batch endpoint
func (r *Reporter) generateJSONReport() error {
	jsonPath := filepath.Join(r.outputPath, "predictions.json")

	report := map[string]interface{}{
		"summary": map[string]interface{}{
			"input":       r.source,
			"rows_read":   r.summary.RowsRead,
			"records":     r.summary.Records,
			"skipped":     r.summary.Skipped,
			"chunks":      r.summary.Chunks,
			"positives":   r.summary.Positives,
			"columns":     columnNames(r.summary.Columns),
			"duration_ms": r.summary.Duration.Milliseconds(),
		},
		"predictions":  r.records,
		"count":        len(r.records),
		"generated_at": time.Now(),
	}

	data, err := json.MarshalIndent(report, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal JSON: %w", err)
	}

	if err := os.WriteFile(jsonPath, data, 0644); err != nil {
		return fmt.Errorf("failed to write JSON report: %w", err)
	}

	log.Info().Str("file", jsonPath).Msg("JSON report generated")
	return nil
}

func columnNames(cols []features.CanonicalName) []string {
	out := make([]string, len(cols))
	for i, c := range cols {
		out[i] = string(c)
	}
	return out
}

// PrintSummary prints a summary to w
func (r *Reporter) PrintSummary(w io.Writer) {
	s := r.summary
	fmt.Fprintln(w, "\n=== BATCH RESULTS ===")
	fmt.Fprintf(w, "Input: %s\n", r.source)
	fmt.Fprintf(w, "Rows Read: %d\n", s.RowsRead)
	fmt.Fprintf(w, "Records: %d\n", s.Records)
	fmt.Fprintf(w, "Skipped: %d\n", s.Skipped)
	fmt.Fprintf(w, "Sepsis Detected: %d\n", s.Positives)
	fmt.Fprintf(w, "Duration: %s\n", s.Duration.Round(time.Millisecond))
	fmt.Fprintln(w, "=====================")
}
