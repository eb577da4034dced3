package features

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
)

// ErrNotObject is returned when a request body is not a JSON object.
var ErrNotObject = errors.New("request body must be a JSON object")

// DecodeFields reads a single JSON object and returns its members in document
// order. Go maps lose ordering, which would make duplicate-name resolution depend
// on map iteration, so the object is walked token by token instead.
func DecodeFields(r io.Reader) ([]Field, error) {
	dec := json.NewDecoder(r)
	dec.UseNumber()

	tok, err := dec.Token()
	if err != nil {
		if errors.Is(err, io.EOF) {
			return nil, fmt.Errorf("%w: empty body", ErrNotObject)
		}
		return nil, fmt.Errorf("invalid JSON: %w", err)
	}
	if d, ok := tok.(json.Delim); !ok || d != '{' {
		return nil, ErrNotObject
	}

	var fields []Field
	for dec.More() {
		keyTok, err := dec.Token()
		if err != nil {
			return nil, fmt.Errorf("invalid JSON: %w", err)
		}
		key, ok := keyTok.(string)
		if !ok {
			return nil, fmt.Errorf("invalid JSON: unexpected key %v", keyTok)
		}
		var raw any
		if err := dec.Decode(&raw); err != nil {
			return nil, fmt.Errorf("invalid JSON value for %q: %w", key, err)
		}
		fields = append(fields, Field{Name: key, Value: FromJSON(raw)})
	}
	if _, err := dec.Token(); err != nil {
		return nil, fmt.Errorf("invalid JSON: %w", err)
	}
	if _, err := dec.Token(); !errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("invalid JSON: unexpected data after object")
	}
	return fields, nil
}
