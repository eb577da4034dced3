// Package batch scores CSV uploads row by row. Input is read in bounded chunks so
// memory stays proportional to the chunk size rather than the file size.
package batch

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"strings"
)

// ErrEmptyInput is returned when the input has no header line.
var ErrEmptyInput = errors.New("no columns to parse from file")

// RawRow is one CSV record with the 1-based line it started on. Err is set when the
// record could not be parsed; Fields is then nil.
type RawRow struct {
	Line   int
	Fields []string
	Err    error
}

// Chunk is a run of at most chunkSize consecutive records sharing the file header.
type Chunk struct {
	Index  int
	Header []string
	Rows   []RawRow
}

// ChunkReader splits a CSV stream into chunks.
type ChunkReader struct {
	r      *csv.Reader
	header []string
	size   int
	index  int
	done   bool
}

// NewChunkReader reads the header line and prepares to yield chunks of chunkSize
// records. It fails with ErrEmptyInput when there is no header.
func NewChunkReader(r io.Reader, chunkSize int) (*ChunkReader, error) {
	if chunkSize <= 0 {
		return nil, fmt.Errorf("chunk size must be positive, got %d", chunkSize)
	}
	cr := csv.NewReader(r)
	cr.FieldsPerRecord = -1

	header, err := cr.Read()
	if err != nil {
		if errors.Is(err, io.EOF) {
			return nil, ErrEmptyInput
		}
		return nil, fmt.Errorf("read header: %w", err)
	}
	if len(header) > 0 {
		header[0] = strings.TrimPrefix(header[0], "\ufeff")
	}
	if len(header) == 1 && strings.TrimSpace(header[0]) == "" {
		return nil, ErrEmptyInput
	}

	return &ChunkReader{r: cr, header: header, size: chunkSize}, nil
}

// Header returns the declared column names.
func (c *ChunkReader) Header() []string { return c.header }

// Next returns the next chunk, or io.EOF once the input is exhausted. Records that
// fail to parse are returned in the chunk with Err set; other read failures are
// returned as errors.
func (c *ChunkReader) Next() (Chunk, error) {
	if c.done {
		return Chunk{}, io.EOF
	}

	chunk := Chunk{Index: c.index, Header: c.header, Rows: make([]RawRow, 0, min(c.size, 1024))}
	for len(chunk.Rows) < c.size {
		fields, err := c.r.Read()
		if err != nil {
			if errors.Is(err, io.EOF) {
				c.done = true
				break
			}
			var pe *csv.ParseError
			if errors.As(err, &pe) {
				chunk.Rows = append(chunk.Rows, RawRow{Line: pe.StartLine, Err: pe.Err})
				continue
			}
			return Chunk{}, err
		}
		line, _ := c.r.FieldPos(0)
		chunk.Rows = append(chunk.Rows, RawRow{Line: line, Fields: fields})
	}

	if len(chunk.Rows) == 0 {
		return Chunk{}, io.EOF
	}
	c.index++
	return chunk, nil
}
