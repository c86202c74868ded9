package gtfsdb

import (
	"fmt"
	"strings"
)

// ErrorKind identifies one class of load/validation finding. The string
// values are part of the external contract: reporting tools query the
// errors table by these exact strings.
type ErrorKind string

const (
	// Structural
	ErrMissingTable        ErrorKind = "MISSING_TABLE"
	ErrTableInSubdirectory ErrorKind = "TABLE_IN_SUBDIRECTORY"
	ErrWrongNumberOfFields ErrorKind = "WRONG_NUMBER_OF_FIELDS"
	ErrDuplicateHeader     ErrorKind = "DUPLICATE_HEADER"
	ErrTableTooLong        ErrorKind = "TABLE_TOO_LONG"

	// Field-level
	ErrMissingField   ErrorKind = "MISSING_FIELD"
	ErrNumberParsing  ErrorKind = "NUMBER_PARSING"
	ErrNumberTooSmall ErrorKind = "NUMBER_TOO_SMALL"
	ErrNumberTooLarge ErrorKind = "NUMBER_TOO_LARGE"
	ErrBooleanFormat  ErrorKind = "BOOLEAN_FORMAT"
	ErrDateFormat     ErrorKind = "DATE_FORMAT"
	ErrTimeFormat     ErrorKind = "TIME_FORMAT"
	ErrColorFormat    ErrorKind = "COLOR_FORMAT"
	ErrURLFormat      ErrorKind = "URL_FORMAT"
	ErrCurrencyFormat ErrorKind = "CURRENCY_FORMAT"
	ErrLanguageFormat ErrorKind = "LANGUAGE_FORMAT"

	// Cross-row / cross-table
	ErrDuplicateID           ErrorKind = "DUPLICATE_ID"
	ErrReferentialIntegrity  ErrorKind = "REFERENTIAL_INTEGRITY"
	ErrConditionallyRequired ErrorKind = "CONDITIONALLY_REQUIRED"
	ErrAgencyIDRequired      ErrorKind = "AGENCY_ID_REQUIRED_FOR_TABLES_WITH_MORE_THAN_ONE_RECORD"

	// Identifier safety
	ErrTableNameFormat  ErrorKind = "TABLE_NAME_FORMAT"
	ErrColumnNameUnsafe ErrorKind = "COLUMN_NAME_UNSAFE"
)

// NoSequence marks an error that does not belong to an ordered sub-row.
const NoSequence int64 = -1

// GTFSError is a single validation or load finding. It is a value, not a
// Go error: expected bad input is reported through these, while Go errors
// are reserved for plumbing failures (closed connection, bad statement).
type GTFSError struct {
	Kind     ErrorKind
	Table    string
	Line     int64 // 1-based, counting the header row
	EntityID string
	Sequence int64 // NoSequence unless the row belongs to an ordered sub-table
	BadValue string
	Info     map[string]string
}

func newGTFSError(kind ErrorKind, table string, line int64, badValue string) *GTFSError {
	return &GTFSError{
		Kind:     kind,
		Table:    table,
		Line:     line,
		Sequence: NoSequence,
		BadValue: badValue,
	}
}

// addInfo attaches one auxiliary key/value pair. Allowed only before the
// error reaches storage.
func (e *GTFSError) addInfo(key, value string) *GTFSError {
	if e.Info == nil {
		e.Info = make(map[string]string)
	}
	e.Info[key] = value
	return e
}

func (e *GTFSError) Error() string {
	var b strings.Builder
	fmt.Fprintf(&b, "%s in %s", e.Kind, e.Table)
	if e.Line > 0 {
		fmt.Fprintf(&b, " line %d", e.Line)
	}
	if e.EntityID != "" {
		fmt.Fprintf(&b, " (%s)", e.EntityID)
	}
	if e.BadValue != "" {
		fmt.Fprintf(&b, ": %q", e.BadValue)
	}
	return b.String()
}
