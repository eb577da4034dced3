package features

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestValidateSynonyms(t *testing.T) {
	require.NoError(t, ValidateSynonyms())
}

func TestResolve_AllSpellingsAgree(t *testing.T) {
	for _, canonical := range Vocabulary {
		for _, spelling := range Synonyms(canonical) {
			variants := []string{
				spelling,
				strings.ToUpper(spelling),
				strings.ToLower(spelling),
				"  " + spelling + "\t",
			}
			for _, v := range variants {
				got, ok := Resolve(v)
				require.Truef(t, ok, "spelling %q of %s not resolved", v, canonical)
				assert.Equalf(t, canonical, got, "spelling %q", v)
			}
		}
	}
}

func TestResolve_Unknown(t *testing.T) {
	for _, name := range []string{"", "  ", "Patient_ID", "SepsisLabel", "heart rate", "wbc"} {
		_, ok := Resolve(name)
		assert.Falsef(t, ok, "%q should not resolve", name)
	}
}

func TestResolveStrict(t *testing.T) {
	tests := []struct {
		name string
		want CanonicalName
		ok   bool
	}{
		{"hr", HR, true},
		{"heart_rate", HR, true},
		{"HR", "", false},
		{"Temp", "", false},
		{"temp", Temp, true},
		{"hour", Hour, true},
		{" hr", "", false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, ok := ResolveStrict(tt.name)
			assert.Equal(t, tt.ok, ok)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestNormalizeHeader(t *testing.T) {
	m := NormalizeHeader([]string{"Patient_ID", "heart_rate", "Temperature", "notes", "RESP"})

	assert.False(t, m.Empty())
	assert.Equal(t, 5, m.Width())
	assert.Equal(t, []CanonicalName{HR, Temp, Resp}, m.Recognized())

	row := m.Row([]string{"p1", "110", "39.1", "free text", ""})
	require.Len(t, row, 3)

	f, ok, err := row[HR].Float()
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, 110.0, f)

	assert.True(t, row[Resp].IsMissing())
	_, present := row["notes"]
	assert.False(t, present)
}

func TestNormalizeHeader_LastDeclaredColumnWins(t *testing.T) {
	m := NormalizeHeader([]string{"hr", "Temp", "heart_rate"})
	row := m.Row([]string{"80", "37", "120"})

	f, ok, err := row[HR].Float()
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, 120.0, f)
	assert.Equal(t, []CanonicalName{Temp, HR}, m.Recognized())
}

func TestNormalizeHeader_NothingRecognized(t *testing.T) {
	m := NormalizeHeader([]string{"a", "b", "c"})
	assert.True(t, m.Empty())
	assert.Empty(t, m.Row([]string{"1", "2", "3"}))
}

func TestMappingRow_ShortRecord(t *testing.T) {
	m := NormalizeHeader([]string{"hr", "temp", "resp"})
	row := m.Row([]string{"90"})

	assert.False(t, row[HR].IsMissing())
	assert.True(t, row[Temp].IsMissing())
	assert.True(t, row[Resp].IsMissing())
}

func TestNormalizeFields(t *testing.T) {
	fields := []Field{
		{Name: "HR", Value: Number(80)},
		{Name: "Temperature", Value: Number(38.5)},
		{Name: "heart_rate", Value: Number(105)},
		{Name: "comment", Value: Text("hello")},
	}

	row := NormalizeFields(fields, false)
	require.Len(t, row, 2)
	hr, _, _ := row[HR].Float()
	assert.Equal(t, 105.0, hr)

	strict := NormalizeFields(fields, true)
	require.Len(t, strict, 1)
	hr, _, _ = strict[HR].Float()
	assert.Equal(t, 105.0, hr)
	assert.True(t, strict[Temp].IsMissing())
}

func TestRowPresent(t *testing.T) {
	row := Row{HR: Number(90), Temp: Missing(), BUN: Text("high")}
	assert.Equal(t, map[CanonicalName]any{HR: 90.0, BUN: "high"}, row.Present())
}
