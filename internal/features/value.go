// Package features turns raw input columns into the canonical feature vocabulary
// understood by the model and assembles fixed-length vectors from it.
//
// Input arrives under many naming conventions (CSV headers, JSON keys written by
// different clients). The schema normalizer resolves them through a synonym table;
// the assembler then lays values out in the order the trained model expects.
package features

import (
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"strconv"
	"strings"
)

// ErrInvalidValue is returned when a value is present but cannot be read as a number.
var ErrInvalidValue = errors.New("invalid feature value")

type valueKind uint8

const (
	kindMissing valueKind = iota
	kindNumber
	kindText
)

// Value is a single cell of input. It is either missing, a number, or text that
// was present but could not be coerced to a number.
type Value struct {
	kind valueKind
	num  float64
	text string
}

// Missing returns the missing value.
func Missing() Value { return Value{} }

// Number wraps a float. NaN is treated as missing and ±Inf as malformed text.
func Number(f float64) Value {
	if math.IsNaN(f) {
		return Value{}
	}
	if math.IsInf(f, 0) {
		return Text(strconv.FormatFloat(f, 'g', -1, 64))
	}
	return Value{kind: kindNumber, num: f}
}

// Text wraps a string that is known not to be numeric.
func Text(s string) Value { return Value{kind: kindText, text: s} }

// missingTokens are cell contents read as "no value", matching the usual CSV conventions.
var missingTokens = map[string]struct{}{
	"":     {},
	"na":   {},
	"n/a":  {},
	"nan":  {},
	"null": {},
	"none": {},
}

// ParseCell reads a CSV cell.
func ParseCell(s string) Value {
	s = strings.TrimSpace(s)
	if _, ok := missingTokens[strings.ToLower(s)]; ok {
		return Missing()
	}
	f, err := strconv.ParseFloat(s, 64)
	if err != nil || math.IsInf(f, 0) {
		return Text(s)
	}
	return Number(f)
}

// FromJSON converts a decoded JSON value (as produced by a json.Decoder with
// UseNumber) into a Value.
func FromJSON(v any) Value {
	switch t := v.(type) {
	case nil:
		return Missing()
	case json.Number:
		f, err := t.Float64()
		if err != nil {
			return Text(t.String())
		}
		return Number(f)
	case float64:
		return Number(t)
	case string:
		return ParseCell(t)
	case bool:
		if t {
			return Number(1)
		}
		return Number(0)
	default:
		b, _ := json.Marshal(t)
		return Text(string(b))
	}
}

// IsMissing reports whether the value is absent.
func (v Value) IsMissing() bool { return v.kind == kindMissing }

// Float returns the numeric value. ok is false for missing values; err wraps
// ErrInvalidValue for text.
func (v Value) Float() (f float64, ok bool, err error) {
	switch v.kind {
	case kindNumber:
		return v.num, true, nil
	case kindText:
		return 0, false, fmt.Errorf("%w: %q is not a number", ErrInvalidValue, v.text)
	default:
		return 0, false, nil
	}
}

// Interface returns the value as a JSON-friendly Go value: float64, string or nil.
func (v Value) Interface() any {
	switch v.kind {
	case kindNumber:
		return v.num
	case kindText:
		return v.text
	default:
		return nil
	}
}

func (v Value) String() string {
	switch v.kind {
	case kindNumber:
		return strconv.FormatFloat(v.num, 'f', -1, 64)
	case kindText:
		return v.text
	default:
		return ""
	}
}
