package batch

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"sepsis-predictor/internal/features"
	"sepsis-predictor/internal/ml"
)

type mockBatchMetrics struct {
	mu        sync.Mutex
	rowsRead  int
	records   int
	skipped   int
	chunks    int
	durations int
}

func (m *mockBatchMetrics) BatchRowsReadAdd(n int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.rowsRead += n
}

func (m *mockBatchMetrics) BatchRecordsAdd(n int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.records += n
}

func (m *mockBatchMetrics) BatchRowsSkippedInc() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.skipped++
}

func (m *mockBatchMetrics) BatchChunksInc() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.chunks++
}

func (m *mockBatchMetrics) BatchDurationObserve(float64) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.durations++
}

func sampleEngine(t *testing.T) *ml.Engine {
	t.Helper()
	model, imp, sc := ml.SampleArtifacts()
	set, err := ml.NewArtifactSet(model, imp, sc, ml.SampleFeatureNames)
	require.NoError(t, err)
	return ml.NewEngine(ml.Loaded{Set: set}, nil)
}

// vitalsCSV builds n rows; every row index listed in bad gets a non-numeric heart rate.
func vitalsCSV(n int, bad map[int]bool) string {
	var b strings.Builder
	b.WriteString("Patient_ID,heart_rate,Temperature,Resp,O2Sat,notes\n")
	for i := 0; i < n; i++ {
		hr := fmt.Sprintf("%d", 60+i%70)
		if bad[i] {
			hr = "fast"
		}
		temp := fmt.Sprintf("%.1f", 35.5+float64(i%40)/10)
		resp := ""
		if i%3 != 0 {
			resp = fmt.Sprintf("%d", 12+i%15)
		}
		fmt.Fprintf(&b, "p%d,%s,%s,%s,97,note %d\n", i, hr, temp, resp, i)
	}
	return b.String()
}

func TestProcessAll_SkipsMalformedRows(t *testing.T) {
	metrics := &mockBatchMetrics{}
	p := NewProcessor(sampleEngine(t), 5000, metrics)

	bad := map[int]bool{0: true, 7: true, 42: true}
	records, summary, err := p.ProcessAll(context.Background(), strings.NewReader(vitalsCSV(100, bad)))
	require.NoError(t, err)

	require.Len(t, records, 97)
	for i, rec := range records {
		assert.Equal(t, i, rec.Row, "row indices must be sequential")
	}
	assert.Equal(t, 100, summary.RowsRead)
	assert.Equal(t, 97, summary.Records)
	assert.Equal(t, 3, summary.Skipped)
	assert.Equal(t, 1, summary.Chunks)
	assert.Equal(t, []features.CanonicalName{features.HR, features.Temp, features.Resp, features.O2Sat}, summary.Columns)

	assert.Equal(t, 100, metrics.rowsRead)
	assert.Equal(t, 97, metrics.records)
	assert.Equal(t, 3, metrics.skipped)
	assert.Equal(t, 1, metrics.durations)
}

func TestProcessAll_ChunkingIsInvisible(t *testing.T) {
	engine := sampleEngine(t)
	bad := map[int]bool{3: true, 4999: true, 5000: true, 11999: true}
	input := vitalsCSV(12000, bad)

	chunked, chunkedSummary, err := NewProcessor(engine, 5000, nil).ProcessAll(context.Background(), strings.NewReader(input))
	require.NoError(t, err)
	whole, wholeSummary, err := NewProcessor(engine, 12000, nil).ProcessAll(context.Background(), strings.NewReader(input))
	require.NoError(t, err)

	assert.Equal(t, 3, chunkedSummary.Chunks)
	assert.Equal(t, 1, wholeSummary.Chunks)
	require.Len(t, chunked, 11996)
	require.Equal(t, len(whole), len(chunked))

	a, err := json.Marshal(chunked)
	require.NoError(t, err)
	b, err := json.Marshal(whole)
	require.NoError(t, err)
	assert.JSONEq(t, string(b), string(a))
}

func TestProcessAll_EmptyResults(t *testing.T) {
	p := NewProcessor(sampleEngine(t), 10, nil)

	tests := []struct {
		name  string
		input string
	}{
		{"header only", "hr,temp,resp\n"},
		{"no recognized columns", "a,b,c\n1,2,3\n4,5,6\n"},
		{"all rows malformed", "hr,temp\nfast,37\nslow,38\n"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, _, err := p.ProcessAll(context.Background(), strings.NewReader(tt.input))
			assert.ErrorIs(t, err, ErrEmptyResult)
		})
	}
}

func TestProcessAll_EmptyInputIsReadError(t *testing.T) {
	p := NewProcessor(sampleEngine(t), 10, nil)
	_, _, err := p.ProcessAll(context.Background(), strings.NewReader(""))

	var re *ReadError
	require.ErrorAs(t, err, &re)
	assert.ErrorIs(t, err, ErrEmptyInput)
}

func TestProcessAll_RaggedRows(t *testing.T) {
	input := "hr,temp,resp\n" +
		"120,39,25\n" +
		"90,37,16,extra\n" +
		"110\n"
	records, summary, err := NewProcessor(sampleEngine(t), 10, nil).ProcessAll(context.Background(), strings.NewReader(input))
	require.NoError(t, err)

	require.Len(t, records, 2)
	assert.Equal(t, 1, summary.Skipped)
	assert.True(t, records[1].Features[features.Temp].IsMissing())
}

func TestProcessAll_NonFiniteCellSkipsRow(t *testing.T) {
	input := "hr,temp,resp\n120,39,25\n90,inf,16\n-Infinity,37,16\n100,37,18\n"
	records, summary, err := NewProcessor(sampleEngine(t), 10, nil).ProcessAll(context.Background(), strings.NewReader(input))
	require.NoError(t, err)
	require.Len(t, records, 2)
	assert.Equal(t, 2, summary.Skipped)

	_, err = json.Marshal(records)
	assert.NoError(t, err)
}

func TestProcessAll_ParseErrorSkipsRow(t *testing.T) {
	input := "hr,temp\n100,37\n1\"0,38\n95,36.5\n"
	records, summary, err := NewProcessor(sampleEngine(t), 10, nil).ProcessAll(context.Background(), strings.NewReader(input))
	require.NoError(t, err)
	assert.Len(t, records, 2)
	assert.Equal(t, 1, summary.Skipped)
}

func TestProcess_ContextCancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := NewProcessor(sampleEngine(t), 10, nil).Process(ctx, strings.NewReader(vitalsCSV(50, nil)), func(Record) error { return nil })
	assert.ErrorIs(t, err, context.Canceled)
}

func TestProcess_EmitErrorStops(t *testing.T) {
	stop := errors.New("client gone")
	seen := 0
	_, err := NewProcessor(sampleEngine(t), 10, nil).Process(context.Background(), strings.NewReader(vitalsCSV(50, nil)), func(Record) error {
		seen++
		if seen == 3 {
			return stop
		}
		return nil
	})
	assert.ErrorIs(t, err, stop)
	assert.Equal(t, 3, seen)
}

type failingReader struct{ after int }

func (f *failingReader) Read(p []byte) (int, error) {
	if f.after <= 0 {
		return 0, io.ErrUnexpectedEOF
	}
	f.after--
	return copy(p, "hr,temp\n"), nil
}

func TestProcess_ReadFailureIsSystemic(t *testing.T) {
	_, _, err := NewProcessor(sampleEngine(t), 10, nil).ProcessAll(context.Background(), &failingReader{after: 1})
	var re *ReadError
	assert.ErrorAs(t, err, &re)
}

func TestRecord_MarshalJSON(t *testing.T) {
	rec := Record{
		Row: 4,
		Features: features.Row{
			features.HR:   features.Number(120),
			features.Temp: features.Missing(),
			features.Resp: features.Number(25),
		},
		Prediction: ml.Prediction{
			Label:               ml.Positive,
			Confidence:          92.41,
			ProbabilityPositive: 92.41,
			ProbabilityNegative: 7.59,
		},
	}

	b, err := json.Marshal(rec)
	require.NoError(t, err)
	assert.JSONEq(t, `{
		"row": 4,
		"HR": 120,
		"Resp": 25,
		"Prediction": "Sepsis Detected",
		"Confidence": 92.41,
		"Probability_Sepsis": 92.41,
		"Probability_No_Sepsis": 7.59
	}`, string(b))
}
