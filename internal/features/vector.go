package features

import "fmt"

// Placeholder is written into slots that have no value. It is only meaningful
// until imputation replaces it.
const Placeholder = 0.0

// Vector is a fixed-length raw feature vector. Missing marks the slots that hold
// the placeholder rather than an observed value.
type Vector struct {
	Values  []float64
	Missing []bool
}

// Len returns the vector length.
func (v Vector) Len() int { return len(v.Values) }

// Assemble lays out row in the order given by names. The order is authoritative and
// must match the one used when the model artifacts were produced. Missing values
// become Placeholder; text that cannot be read as a number fails with
// ErrInvalidValue.
func Assemble(row Row, names []CanonicalName) (Vector, error) {
	vec := Vector{
		Values:  make([]float64, len(names)),
		Missing: make([]bool, len(names)),
	}
	for i, name := range names {
		f, ok, err := row[name].Float()
		if err != nil {
			return Vector{}, fmt.Errorf("feature %s: %w", name, err)
		}
		if !ok {
			vec.Values[i] = Placeholder
			vec.Missing[i] = true
			continue
		}
		vec.Values[i] = f
	}
	return vec, nil
}
