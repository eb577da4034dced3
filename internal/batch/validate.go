package batch

import (
	"errors"
	"fmt"
	"io"
	"strings"

	"sepsis-predictor/internal/features"
)

// RequiredColumns must be present for a dataset to be considered complete.
var RequiredColumns = []features.CanonicalName{
	features.HR, features.O2Sat, features.Temp, features.SBP, features.DBP,
	features.Resp, features.BUN, features.Creatinine, features.PH,
}

const maxWarnings = 5

// ValidationReport is the outcome of a dataset check.
type ValidationReport struct {
	IsValid           bool                     `json:"is_valid"`
	Errors            []string                 `json:"errors"`
	Warnings          []string                 `json:"warnings"`
	WarningCount      int                      `json:"warning_count"`
	RecordCount       int                      `json:"record_count"`
	RecognizedColumns []features.CanonicalName `json:"recognized_columns"`
	MissingColumns    []features.CanonicalName `json:"missing_columns"`
}

func (v *ValidationReport) warn(format string, args ...any) {
	v.WarningCount++
	if len(v.Warnings) < maxWarnings {
		v.Warnings = append(v.Warnings, fmt.Sprintf(format, args...))
	}
}

// ValidateDataset checks a CSV upload without scoring it. Rows with the wrong number
// of fields or non-numeric values in recognized columns are reported as warnings
// and not counted. Only failures to read the stream are returned as errors.
func ValidateDataset(r io.Reader) (ValidationReport, error) {
	report := ValidationReport{
		Errors:            []string{},
		Warnings:          []string{},
		RecognizedColumns: []features.CanonicalName{},
		MissingColumns:    []features.CanonicalName{},
	}

	reader, err := NewChunkReader(r, 1024)
	if errors.Is(err, ErrEmptyInput) {
		report.Errors = append(report.Errors, "CSV must have headers and at least one data row")
		return report, nil
	}
	if err != nil {
		return report, &ReadError{Err: err}
	}

	header := reader.Header()
	mapping := features.NormalizeHeader(header)
	report.RecognizedColumns = mapping.Recognized()

	present := make(map[features.CanonicalName]bool, len(report.RecognizedColumns))
	for _, c := range report.RecognizedColumns {
		present[c] = true
	}
	for _, c := range RequiredColumns {
		if !present[c] {
			report.MissingColumns = append(report.MissingColumns, c)
		}
	}
	if len(report.MissingColumns) > 0 {
		names := make([]string, len(report.MissingColumns))
		for i, c := range report.MissingColumns {
			names[i] = string(c)
		}
		report.Errors = append(report.Errors, "Missing required columns: "+strings.Join(names, ", "))
	}

	for {
		chunk, err := reader.Next()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return report, &ReadError{Err: err}
		}
		for _, raw := range chunk.Rows {
			if validRow(&report, mapping, raw) {
				report.RecordCount++
			}
		}
	}

	if report.RecordCount == 0 {
		report.Errors = append(report.Errors, "No valid records found in dataset")
	}
	report.IsValid = len(report.Errors) == 0
	return report, nil
}

func validRow(report *ValidationReport, mapping features.Mapping, raw RawRow) bool {
	if raw.Err != nil {
		report.warn("Row %d: %v", raw.Line, raw.Err)
		return false
	}
	if len(raw.Fields) != mapping.Width() {
		report.warn("Row %d: Column count mismatch", raw.Line)
		return false
	}
	valid := true
	row := mapping.Row(raw.Fields)
	for _, name := range mapping.Recognized() {
		if _, _, err := row[name].Float(); err != nil {
			report.warn("Row %d: Non-numeric value %q in column %s", raw.Line, row[name].String(), name)
			valid = false
		}
	}
	return valid
}
