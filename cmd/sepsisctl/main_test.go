package main

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRowObject(t *testing.T) {
	tests := []struct {
		name   string
		header []string
		record []string
		want   string
	}{
		{"keeps header order", []string{"temp", "HR", "heart_rate"}, []string{"39", "90", "120"}, `{"temp":"39","HR":"90","heart_rate":"120"}`},
		{"short record", []string{"hr", "temp"}, []string{"80"}, `{"hr":"80"}`},
		{"escapes", []string{`odd"name`}, []string{"a\tb"}, `{"odd\"name":"a\tb"}`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := rowObject(tt.header, tt.record)
			require.NoError(t, err)
			assert.True(t, json.Valid(got))
			assert.Equal(t, tt.want, string(got))
		})
	}
}
