package gtfsdb

import (
	"fmt"
	"math"
	"net/url"
	"strconv"
	"strings"
	"time"
	"unicode"

	"crawshaw.io/sqlite"
	"golang.org/x/text/currency"
	"golang.org/x/text/language"
)

// Requirement is the presence level of a field or table.
type Requirement int

const (
	UnknownReq Requirement = iota
	Required
	Optional
	Editor
	Extension
	Proprietary
)

// FieldType is the closed set of column types a GTFS table can declare.
type FieldType int

const (
	StringField FieldType = iota
	IntegerField
	DoubleField
	BooleanField
	DateField
	TimeField
	ColorField
	URLField
	CurrencyField
	LanguageField
	ShortField
	StringListField
)

// Sentinels for absent numeric values. Distinct from zero so that "field
// not present" survives a round trip through the database.
const (
	IntMissing    int64   = math.MinInt32
	DoubleMissing float64 = float64(math.MinInt32)
)

// Field describes one typed column of a GTFS table. The type is fixed at
// construction; validation returns a cleaned value and a set of findings,
// never dropping information silently.
type Field struct {
	Name        string
	Type        FieldType
	Requirement Requirement

	// Refs names tables whose key field this field references. A value is
	// valid if any one of them recorded it (e.g. trips.service_id may come
	// from calendar or calendar_dates).
	Refs []string

	Conditions []Condition

	minV, maxV     float64
	hasMin, hasMax bool
	Indexed        bool
	OrderKey       bool
	Precision      int

	// synthesized from an unrecognized CSV header; never part of a
	// canonical schema and exempt from positional key conventions
	unknown bool
}

func newField(name string, typ FieldType, req Requirement) *Field {
	return &Field{Name: name, Type: typ, Requirement: req}
}

// unknownField synthesizes a permissive string field for a CSV header the
// schema does not declare, so extension columns are kept rather than dropped.
func unknownField(name string) *Field {
	return &Field{Name: name, Type: StringField, Requirement: UnknownReq, unknown: true}
}

func (f *Field) bounds(min, max float64) *Field {
	f.minV, f.maxV = min, max
	f.hasMin, f.hasMax = true, true
	return f
}

func (f *Field) atLeast(min float64) *Field {
	f.minV = min
	f.hasMin = true
	return f
}

func (f *Field) refs(tables ...string) *Field {
	f.Refs = tables
	return f
}

func (f *Field) indexed() *Field {
	f.Indexed = true
	return f
}

func (f *Field) orderKey() *Field {
	f.OrderKey = true
	return f
}

func (f *Field) precision(p int) *Field {
	f.Precision = p
	return f
}

func (f *Field) when(c ...Condition) *Field {
	f.Conditions = append(f.Conditions, c...)
	return f
}

func (f *Field) isRequired() bool {
	return f.Requirement == Required
}

func (f *Field) sqlType() string {
	switch f.Type {
	case IntegerField, BooleanField, TimeField, ShortField:
		return "INTEGER"
	case DoubleField:
		return "REAL"
	default:
		return "TEXT"
	}
}

func (f *Field) fieldError(kind ErrorKind, badValue string) *GTFSError {
	e := newGTFSError(kind, "", 0, badValue)
	return e.addInfo("field", f.Name)
}

// Convert validates raw and returns the value to store: int64, float64,
// string, or nil for an empty optional text field. On a validation failure
// the returned value is the type's missing sentinel and the findings
// describe what was wrong. Table and line context is filled in by the
// loader.
func (f *Field) Convert(raw string) (any, []*GTFSError) {
	if raw == "" {
		return f.missingValue(), nil
	}
	switch f.Type {
	case StringField, StringListField:
		return cleanString(raw), nil
	case IntegerField, ShortField:
		v, err := strconv.ParseInt(strings.TrimSpace(raw), 10, 64)
		if err != nil {
			return IntMissing, []*GTFSError{f.fieldError(ErrNumberParsing, raw)}
		}
		return v, f.checkBounds(float64(v), raw)
	case DoubleField:
		v, err := strconv.ParseFloat(strings.TrimSpace(raw), 64)
		if err != nil {
			return DoubleMissing, []*GTFSError{f.fieldError(ErrNumberParsing, raw)}
		}
		if errs := f.checkBounds(v, raw); len(errs) > 0 {
			return DoubleMissing, errs
		}
		if f.Precision > 0 {
			p := math.Pow10(f.Precision)
			v = math.Round(v*p) / p
		}
		return v, nil
	case BooleanField:
		switch raw {
		case "0":
			return int64(0), nil
		case "1":
			return int64(1), nil
		}
		return IntMissing, []*GTFSError{f.fieldError(ErrBooleanFormat, raw)}
	case DateField:
		if len(raw) != 8 {
			return nil, []*GTFSError{f.fieldError(ErrDateFormat, raw)}
		}
		if _, err := time.Parse("20060102", raw); err != nil {
			return nil, []*GTFSError{f.fieldError(ErrDateFormat, raw)}
		}
		return raw, nil
	case TimeField:
		secs, ok := parseGTFSTime(raw)
		if !ok {
			return IntMissing, []*GTFSError{f.fieldError(ErrTimeFormat, raw)}
		}
		return secs, nil
	case ColorField:
		if len(raw) != 6 {
			return nil, []*GTFSError{f.fieldError(ErrColorFormat, raw)}
		}
		if _, err := strconv.ParseUint(raw, 16, 32); err != nil {
			return nil, []*GTFSError{f.fieldError(ErrColorFormat, raw)}
		}
		return strings.ToUpper(raw), nil
	case URLField:
		u, err := url.ParseRequestURI(raw)
		if err != nil || (u.Scheme != "http" && u.Scheme != "https") {
			return nil, []*GTFSError{f.fieldError(ErrURLFormat, raw)}
		}
		return raw, nil
	case CurrencyField:
		unit, err := currency.ParseISO(raw)
		if err != nil {
			return nil, []*GTFSError{f.fieldError(ErrCurrencyFormat, raw)}
		}
		return unit.String(), nil
	case LanguageField:
		tag, err := language.Parse(raw)
		if err != nil {
			return nil, []*GTFSError{f.fieldError(ErrLanguageFormat, raw)}
		}
		return tag.String(), nil
	}
	panic(fmt.Sprintf("unhandled field type %d", f.Type))
}

// ValidateAndConvert is the bulk-text path: it returns the cleaned textual
// rendering of raw for a delimited-text load, alongside any findings.
func (f *Field) ValidateAndConvert(raw string) (string, []*GTFSError) {
	v, errs := f.Convert(raw)
	switch v := v.(type) {
	case int64:
		return strconv.FormatInt(v, 10), errs
	case float64:
		return strconv.FormatFloat(v, 'f', -1, 64), errs
	case string:
		return v, errs
	default:
		return "", errs
	}
}

// BindParameter is the prepared-statement path: it validates raw and binds
// the typed value (or the missing sentinel on failure) to the 1-based
// parameter i.
func (f *Field) BindParameter(stmt *sqlite.Stmt, i int, raw string) []*GTFSError {
	v, errs := f.Convert(raw)
	if len(errs) > 0 {
		v = f.missingValue()
	}
	bindValue(stmt, i, v)
	return errs
}

func bindValue(stmt *sqlite.Stmt, i int, v any) {
	switch v := v.(type) {
	case int64:
		stmt.BindInt64(i, v)
	case float64:
		stmt.BindFloat(i, v)
	case string:
		stmt.BindText(i, v)
	default:
		stmt.BindNull(i)
	}
}

// missingValue is what gets stored when a field is absent or unsalvageable:
// the numeric sentinel for number-like types, NULL for text.
func (f *Field) missingValue() any {
	switch f.Type {
	case IntegerField, ShortField, BooleanField, TimeField:
		return IntMissing
	case DoubleField:
		return DoubleMissing
	default:
		return nil
	}
}

func (f *Field) checkBounds(v float64, raw string) []*GTFSError {
	if f.hasMin && v < f.minV {
		return []*GTFSError{f.fieldError(ErrNumberTooSmall, raw).addInfo("min", formatBound(f.minV))}
	}
	if f.hasMax && v > f.maxV {
		return []*GTFSError{f.fieldError(ErrNumberTooLarge, raw).addInfo("max", formatBound(f.maxV))}
	}
	return nil
}

func formatBound(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64)
}

// parseGTFSTime parses H:MM:SS or HH:MM:SS into seconds since midnight.
// Hours may exceed 24 for service past midnight.
func parseGTFSTime(raw string) (int64, bool) {
	parts := strings.Split(raw, ":")
	if len(parts) != 3 || len(parts[1]) != 2 || len(parts[2]) != 2 {
		return 0, false
	}
	h, err := strconv.Atoi(parts[0])
	if err != nil || h < 0 {
		return 0, false
	}
	m, err := strconv.Atoi(parts[1])
	if err != nil || m < 0 || m > 59 {
		return 0, false
	}
	s, err := strconv.Atoi(parts[2])
	if err != nil || s < 0 || s > 59 {
		return 0, false
	}
	return int64(h)*3600 + int64(m)*60 + int64(s), true
}

// FormatGTFSTime renders seconds since midnight back to HH:MM:SS.
func FormatGTFSTime(secs int64) string {
	return fmt.Sprintf("%02d:%02d:%02d", secs/3600, (secs/60)%60, secs%60)
}

// cleanString trims surrounding whitespace and strips control characters.
// It never rejects: string columns are permissive.
func cleanString(raw string) string {
	return strings.TrimSpace(strings.Map(func(r rune) rune {
		if unicode.IsControl(r) {
			return -1
		}
		return r
	}, raw))
}

// SplitStringList splits an editor-only list-valued column on commas,
// honoring double-quoted segments so embedded commas survive. Not used on
// the primary CSV ingestion path.
func SplitStringList(raw string) []string {
	if raw == "" {
		return nil
	}
	var out []string
	var cur strings.Builder
	inQuote := false
	for _, r := range raw {
		switch {
		case r == '"':
			inQuote = !inQuote
		case r == ',' && !inQuote:
			out = append(out, cur.String())
			cur.Reset()
		default:
			cur.WriteRune(r)
		}
	}
	out = append(out, cur.String())
	return out
}
