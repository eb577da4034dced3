package api

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime"
	"mime/multipart"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gorilla/mux"
	"github.com/rs/zerolog"

	"sepsis-predictor/internal/batch"
	"sepsis-predictor/internal/storage"
)

// Batch request outcomes, used as metric labels and in the audit log.
const (
	outcomeOK         = "ok"
	outcomeEmpty      = "empty"
	outcomeReadError  = "read_error"
	outcomeBadRequest = "bad_request"
	outcomeCancelled  = "cancelled"
	outcomeFailed     = "failed"
	outcomeInvalid    = "invalid"
)

const (
	modePredict  = "predict"
	modeValidate = "validate"

	defaultRunLimit = 50
)

// uploadError is a client error found while locating the uploaded file.
type uploadError struct{ msg string }

func (e *uploadError) Error() string { return e.msg }

// openUpload streams the multipart body up to the "file" part and returns it.
// Nothing before the file is buffered beyond the multipart reader's own window.
func (s *Server) openUpload(w http.ResponseWriter, r *http.Request) (*multipart.Part, error) {
	r.Body = http.MaxBytesReader(w, r.Body, s.opts.MaxUploadBytes)
	mr, err := r.MultipartReader()
	if err != nil {
		return nil, &uploadError{"No file provided"}
	}
	for {
		part, err := mr.NextPart()
		if errors.Is(err, io.EOF) {
			return nil, &uploadError{"No file provided"}
		}
		if err != nil {
			return nil, fmt.Errorf("failed to read upload: %w", err)
		}
		if part.FormName() != "file" || !isFilePart(part) {
			part.Close()
			continue
		}
		name := part.FileName()
		if name == "" {
			return nil, &uploadError{"No file selected"}
		}
		if !strings.HasSuffix(name, ".csv") {
			return nil, &uploadError{"File must be a CSV"}
		}
		return part, nil
	}
}

// isFilePart reports whether the part's Content-Disposition carries a filename
// parameter, even an empty one. Plain form fields have none.
func isFilePart(part *multipart.Part) bool {
	_, params, err := mime.ParseMediaType(part.Header.Get("Content-Disposition"))
	if err != nil {
		return false
	}
	_, ok := params["filename"]
	return ok
}

func (s *Server) uploadFailed(w http.ResponseWriter, err error) {
	var ue *uploadError
	if errors.As(err, &ue) {
		writeError(w, http.StatusBadRequest, ue.msg)
	} else {
		writeError(w, http.StatusBadRequest, err.Error())
	}
	s.batchOutcome(outcomeBadRequest)
}

func (s *Server) batchOutcome(outcome string) {
	if s.opts.Metrics != nil {
		s.opts.Metrics.BatchRequestsInc(outcome)
	}
}

// handleBatchPredict scores every row of the uploaded CSV. Input is consumed chunk by
// chunk; encoded records are held until the batch completes so that a failure late
// in the file can still be reported as a 400.
func (s *Server) handleBatchPredict(w http.ResponseWriter, r *http.Request) {
	logger := zerolog.Ctx(r.Context())
	started := time.Now()

	part, err := s.openUpload(w, r)
	if err != nil {
		s.uploadFailed(w, err)
		return
	}
	defer part.Close()
	filename := part.FileName()

	var body bytes.Buffer
	body.WriteString(`{"predictions":[`)
	summary, err := s.processor.Process(r.Context(), part, func(rec batch.Record) error {
		b, err := json.Marshal(rec)
		if err != nil {
			return err
		}
		if body.Len() > len(`{"predictions":[`) {
			body.WriteByte(',')
		}
		body.Write(b)
		return nil
	})

	outcome := outcomeOK
	var readErr *batch.ReadError
	switch {
	case err == nil:
		fmt.Fprintf(&body, `],"count":%d}`, summary.Records)
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		if _, werr := w.Write(body.Bytes()); werr != nil {
			logger.Debug().Err(werr).Msg("Failed to write batch response")
		}
	case errors.Is(err, batch.ErrEmptyResult):
		outcome = outcomeEmpty
		writeError(w, http.StatusBadRequest, "No valid rows in CSV")
	case errors.As(err, &readErr):
		outcome = outcomeReadError
		writeError(w, http.StatusBadRequest, "Failed to read CSV: "+readErr.Err.Error())
	case r.Context().Err() != nil:
		outcome = outcomeCancelled
		logger.Info().Err(err).Msg("Batch request cancelled by client")
	default:
		outcome = outcomeFailed
		logger.Error().Err(err).Msg("Batch prediction failed")
		writeError(w, http.StatusInternalServerError, err.Error())
	}

	logger.Info().
		Str("file", filename).
		Str("outcome", outcome).
		Int("rows_read", summary.RowsRead).
		Int("records", summary.Records).
		Int("skipped", summary.Skipped).
		Int("chunks", summary.Chunks).
		Int("positives", summary.Positives).
		Dur("duration", summary.Duration).
		Msg("Batch prediction finished")

	s.batchOutcome(outcome)
	s.audit(r, storage.RunRecord{
		Filename:   filename,
		Mode:       modePredict,
		Outcome:    outcome,
		RowsRead:   summary.RowsRead,
		Records:    summary.Records,
		Skipped:    summary.Skipped,
		Chunks:     summary.Chunks,
		Positives:  summary.Positives,
		StartedAt:  started,
		DurationMS: time.Since(started).Milliseconds(),
	})
}

func (s *Server) handleValidateDataset(w http.ResponseWriter, r *http.Request) {
	started := time.Now()

	part, err := s.openUpload(w, r)
	if err != nil {
		s.uploadFailed(w, err)
		return
	}
	defer part.Close()

	report, err := batch.ValidateDataset(part)
	outcome := outcomeOK
	if err != nil {
		outcome = outcomeReadError
		var readErr *batch.ReadError
		msg := err.Error()
		if errors.As(err, &readErr) {
			msg = readErr.Err.Error()
		}
		writeError(w, http.StatusBadRequest, "Failed to read CSV: "+msg)
	} else {
		if !report.IsValid {
			outcome = outcomeInvalid
		}
		writeJSON(w, http.StatusOK, report)
	}

	s.batchOutcome(outcome)
	s.audit(r, storage.RunRecord{
		Filename:   part.FileName(),
		Mode:       modeValidate,
		Outcome:    outcome,
		Records:    report.RecordCount,
		StartedAt:  started,
		DurationMS: time.Since(started).Milliseconds(),
	})
}

// audit stores a run summary. Storage failures are logged and never fail the request.
func (s *Server) audit(r *http.Request, rec storage.RunRecord) {
	if s.opts.Store == nil {
		return
	}
	stored, err := s.opts.Store.StoreRun(rec)
	if err != nil {
		zerolog.Ctx(r.Context()).Error().Err(err).Msg("Failed to store batch run")
		return
	}
	zerolog.Ctx(r.Context()).Debug().Str("run_id", stored.ID).Msg("Batch run stored")
}

func (s *Server) handleListRuns(w http.ResponseWriter, r *http.Request) {
	if s.opts.Store == nil {
		writeError(w, http.StatusNotFound, "audit store disabled")
		return
	}

	limit := defaultRunLimit
	if v := r.URL.Query().Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 1 {
			writeError(w, http.StatusBadRequest, "limit must be a positive integer")
			return
		}
		limit = n
	}

	var (
		runs []storage.RunRecord
		err  error
	)
	if v := r.URL.Query().Get("since"); v != "" {
		since, perr := time.Parse(time.RFC3339, v)
		if perr != nil {
			writeError(w, http.StatusBadRequest, "since must be an RFC 3339 timestamp")
			return
		}
		runs, err = s.opts.Store.RunsInRange(since, time.Now())
		if err == nil && len(runs) > limit {
			runs = runs[len(runs)-limit:]
		}
	} else {
		runs, err = s.opts.Store.ListRuns(limit)
	}
	if err != nil {
		zerolog.Ctx(r.Context()).Error().Err(err).Msg("Failed to list batch runs")
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{"runs": runs, "count": len(runs)})
}

func (s *Server) handleGetRun(w http.ResponseWriter, r *http.Request) {
	if s.opts.Store == nil {
		writeError(w, http.StatusNotFound, "audit store disabled")
		return
	}

	run, err := s.opts.Store.GetRun(mux.Vars(r)["id"])
	if errors.Is(err, storage.ErrNotFound) {
		writeError(w, http.StatusNotFound, err.Error())
		return
	}
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, run)
}
