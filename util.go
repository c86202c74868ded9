package gtfsdb

import (
	"crypto/sha256"
	"encoding/csv"
	"encoding/hex"
	"io"
	"os"
	"regexp"
	"strings"

	"crawshaw.io/sqlite"
	"github.com/google/uuid"
	"golang.org/x/text/encoding"
	"golang.org/x/text/encoding/unicode"
	"golang.org/x/text/transform"
)

func sqlitexNoop(stmt *sqlite.Stmt) error { return nil }

var identifierPattern = regexp.MustCompile(`^[a-z][a-z0-9_]*$`)
var identifierCleaner = regexp.MustCompile(`[^a-z0-9_]`)

// sanitizeIdentifier lowercases s and strips everything that is not safe in
// an unquoted SQL identifier. Returns the cleaned name and whether cleaning
// changed anything.
func sanitizeIdentifier(s string) (string, bool) {
	clean := identifierCleaner.ReplaceAllString(strings.ToLower(strings.TrimSpace(s)), "")
	return clean, clean != s
}

// newNamespace generates the table-name prefix under which one loaded feed
// lives. SQLite has no schemas, so the namespace is part of every table
// name; the leading letters keep it a valid identifier.
func newNamespace() string {
	return "ns" + strings.ReplaceAll(uuid.New().String(), "-", "")[:12]
}

func hashFile(path string) (string, error) {
	f, err := os.Open(path)
	if err != nil {
		return "", err
	}
	defer func() { _ = f.Close() }()
	h := sha256.New()
	if _, err := io.Copy(h, f); err != nil {
		return "", err
	}
	return hex.EncodeToString(h.Sum(nil)), nil
}

// bomAwareCSVReader strips a UTF byte-order mark if the entry starts with
// one; without a BOM the bytes pass through untouched.
func bomAwareCSVReader(reader io.Reader) *csv.Reader {
	transformer := unicode.BOMOverride(encoding.Nop.NewDecoder())
	return csv.NewReader(transform.NewReader(reader, transformer))
}
