package features

import (
	"fmt"
	"strings"
)

// CanonicalName is a feature name from the closed vocabulary used by the model.
type CanonicalName string

const (
	HR           CanonicalName = "HR"
	O2Sat        CanonicalName = "O2Sat"
	Temp         CanonicalName = "Temp"
	SBP          CanonicalName = "SBP"
	MAP          CanonicalName = "MAP"
	DBP          CanonicalName = "DBP"
	Resp         CanonicalName = "Resp"
	EtCO2        CanonicalName = "EtCO2"
	BaseExcess   CanonicalName = "BaseExcess"
	HCO3         CanonicalName = "HCO3"
	FiO2         CanonicalName = "FiO2"
	PH           CanonicalName = "pH"
	PaCO2        CanonicalName = "PaCO2"
	SaO2         CanonicalName = "SaO2"
	AST          CanonicalName = "AST"
	BUN          CanonicalName = "BUN"
	Alkalinephos CanonicalName = "Alkalinephos"
	Calcium      CanonicalName = "Calcium"
	Chloride     CanonicalName = "Chloride"
	Creatinine   CanonicalName = "Creatinine"
	Hour         CanonicalName = "hour"
)

// Vocabulary lists every canonical name in declaration order.
var Vocabulary = []CanonicalName{
	Hour, HR, O2Sat, Temp, SBP, MAP, DBP, Resp, EtCO2, BaseExcess, HCO3,
	FiO2, PH, PaCO2, SaO2, AST, BUN, Alkalinephos, Calcium, Chloride, Creatinine,
}

type synonym struct {
	key       string // already lower-cased
	canonical CanonicalName
}

// synonyms is scanned in order and the first match wins, so no key may appear twice
// with different targets (see ValidateSynonyms).
var synonyms = []synonym{
	{"hour", Hour},
	{"hr", HR},
	{"heart_rate", HR},
	{"o2sat", O2Sat},
	{"oxygen_saturation", O2Sat},
	{"temp", Temp},
	{"temperature", Temp},
	{"sbp", SBP},
	{"systolic_bp", SBP},
	{"systolic_blood_pressure", SBP},
	{"map", MAP},
	{"mean_arterial_pressure", MAP},
	{"dbp", DBP},
	{"diastolic_bp", DBP},
	{"diastolic_blood_pressure", DBP},
	{"resp", Resp},
	{"respiratory_rate", Resp},
	{"etco2", EtCO2},
	{"baseexcess", BaseExcess},
	{"hco3", HCO3},
	{"fio2", FiO2},
	{"ph", PH},
	{"paco2", PaCO2},
	{"sao2", SaO2},
	{"ast", AST},
	{"bun", BUN},
	{"alkalinephos", Alkalinephos},
	{"calcium", Calcium},
	{"chloride", Chloride},
	{"creatinine", Creatinine},
}

// Resolve maps an input column name to its canonical name. Matching is
// case-insensitive and ignores surrounding whitespace.
func Resolve(name string) (CanonicalName, bool) {
	n := strings.ToLower(strings.TrimSpace(name))
	if n == "" {
		return "", false
	}
	for _, s := range synonyms {
		if s.key == n || strings.ToLower(string(s.canonical)) == n {
			return s.canonical, true
		}
	}
	return "", false
}

// ResolveStrict performs the exact, case-sensitive key lookup the single-row
// endpoint historically used. Only lower-case synonym keys match.
func ResolveStrict(name string) (CanonicalName, bool) {
	for _, s := range synonyms {
		if s.key == name {
			return s.canonical, true
		}
	}
	return "", false
}

// Synonyms returns the accepted spellings for a canonical name, canonical first.
func Synonyms(c CanonicalName) []string {
	out := []string{string(c)}
	for _, s := range synonyms {
		if s.canonical == c && s.key != strings.ToLower(string(c)) {
			out = append(out, s.key)
		}
	}
	return out
}

// ValidateSynonyms checks the table for ambiguous entries.
func ValidateSynonyms() error {
	seen := make(map[string]CanonicalName, len(synonyms))
	for _, s := range synonyms {
		if s.key != strings.ToLower(s.key) {
			return fmt.Errorf("synonym %q is not lower-case", s.key)
		}
		if prev, ok := seen[s.key]; ok && prev != s.canonical {
			return fmt.Errorf("synonym %q maps to both %s and %s", s.key, prev, s.canonical)
		}
		seen[s.key] = s.canonical
	}
	for _, c := range Vocabulary {
		lc := strings.ToLower(string(c))
		if prev, ok := seen[lc]; ok && prev != c {
			return fmt.Errorf("canonical %s collides with synonym of %s", c, prev)
		}
	}
	return nil
}

// Row is a sparse mapping from canonical name to value.
type Row map[CanonicalName]Value

// Present returns the row's non-missing values keyed by canonical name.
func (r Row) Present() map[CanonicalName]any {
	out := make(map[CanonicalName]any, len(r))
	for k, v := range r {
		if !v.IsMissing() {
			out[k] = v.Interface()
		}
	}
	return out
}

// Mapping is the result of normalizing a header: for each declared column index,
// the canonical name it feeds, if any.
type Mapping struct {
	columns []CanonicalName // "" for unrecognized columns
	width   int
	used    int
}

// NormalizeHeader resolves every declared column. When several columns resolve to
// the same canonical name, the last declared column wins; earlier ones are ignored.
func NormalizeHeader(columns []string) Mapping {
	m := Mapping{columns: make([]CanonicalName, len(columns)), width: len(columns)}
	last := make(map[CanonicalName]int, len(columns))
	for i, col := range columns {
		if c, ok := Resolve(col); ok {
			last[c] = i
		}
	}
	for c, i := range last {
		m.columns[i] = c
	}
	m.used = len(last)
	return m
}

// Empty reports whether no column was recognized.
func (m Mapping) Empty() bool { return m.used == 0 }

// Width is the number of declared columns.
func (m Mapping) Width() int { return m.width }

// Recognized returns the canonical names fed by this header, in column order.
func (m Mapping) Recognized() []CanonicalName {
	out := make([]CanonicalName, 0, m.used)
	for _, c := range m.columns {
		if c != "" {
			out = append(out, c)
		}
	}
	return out
}

// Row builds a feature row from one record. Cells beyond the record's length are
// missing.
func (m Mapping) Row(record []string) Row {
	row := make(Row, m.used)
	for i, c := range m.columns {
		if c == "" {
			continue
		}
		if i < len(record) {
			row[c] = ParseCell(record[i])
		} else {
			row[c] = Missing()
		}
	}
	return row
}

// Field is one member of a JSON object, in document order.
type Field struct {
	Name  string
	Value Value
}

// NormalizeFields builds a row from ordered object members. Later members win over
// earlier ones that resolve to the same canonical name. With strict set, only exact
// synonym keys are recognized.
func NormalizeFields(fields []Field, strict bool) Row {
	resolve := Resolve
	if strict {
		resolve = ResolveStrict
	}
	row := make(Row, len(fields))
	for _, f := range fields {
		if c, ok := resolve(f.Name); ok {
			row[c] = f.Value
		}
	}
	return row
}
