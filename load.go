package gtfsdb

import (
	"archive/zip"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"math"
	"path"
	"strconv"
	"strings"

	"crawshaw.io/sqlite"
	"crawshaw.io/sqlite/sqlitex"
)

const (
	// insertBatchSize bounds how many rows share one transaction before the
	// inserter commits and reopens.
	insertBatchSize = 500

	// indexMinRows: tables smaller than this are not worth indexing.
	indexMinRows = 500

	// maxCSVLines is the largest line number the errors table can address.
	maxCSVLines = math.MaxInt32
)

var loadPragmas = map[string]string{
	"synchronous": "OFF",
}

// TableLoadResult summarizes one table's load step. FatalError is set when
// the table's transaction was abandoned; previously committed tables are
// unaffected.
type TableLoadResult struct {
	Table      string
	RowCount   int
	ErrorCount int
	FatalError string
}

// FeedLoadResult is what a completed load always yields, even for a feed
// that was mostly malformed: a per-table summary plus a fully queryable
// error table under the feed's namespace.
type FeedLoadResult struct {
	Namespace  string
	Tables     []TableLoadResult
	ErrorCount int
}

func (r *FeedLoadResult) tableResult(name string) *TableLoadResult {
	for i := range r.Tables {
		if r.Tables[i].Table == name {
			return &r.Tables[i]
		}
	}
	return nil
}

// Load ingests the GTFS zip at inputPath into the SQLite store at dbPath
// under a fresh namespace. Malformed input is cataloged, not fatal: only
// connection-level failures propagate as an error.
func Load(inputPath string, dbPath string) (*FeedLoadResult, error) {
	if inputPath == "" {
		panic("Missing inputPath")
	}
	if dbPath == "" {
		panic("Missing dbPath")
	}

	slog.Info(fmt.Sprintf("Loading %s into %s", inputPath, dbPath))

	inputZip, err := zip.OpenReader(inputPath)
	if err != nil {
		return nil, err
	}
	defer func() { _ = inputZip.Close() }()

	hash, err := hashFile(inputPath)
	if err != nil {
		return nil, err
	}

	db, err := sqlite.OpenConn(dbPath, 0)
	if err != nil {
		return nil, err
	}
	defer func() {
		if db != nil {
			_ = db.Close()
		}
	}()

	for pragma, value := range loadPragmas {
		if err := sqlitex.Exec(db, "PRAGMA "+pragma+" = "+value, sqlitexNoop); err != nil {
			return nil, err
		}
	}

	if err := ensureRegistry(db); err != nil {
		return nil, err
	}

	namespace := newNamespace()
	errStore, err := newErrorStorage(db, namespace)
	if err != nil {
		return nil, err
	}

	ld := &feedLoader{
		db:          db,
		zip:         &inputZip.Reader,
		namespace:   namespace,
		tracker:     newReferenceTracker(),
		errors:      errStore,
		usedEntries: make(map[string]bool),
	}

	result := &FeedLoadResult{Namespace: namespace}
	for _, table := range loadOrder {
		result.Tables = append(result.Tables, ld.loadTable(table))
	}

	if err := ld.storeOtherFiles(); err != nil {
		return nil, err
	}

	if err := errStore.CommitAndClose(); err != nil {
		return nil, err
	}
	result.ErrorCount = errStore.ErrorCount()

	feedID, feedVersion := readFeedIdentity(db, namespace, result)
	if err := registerFeed(db, namespace, hash, feedID, feedVersion, ""); err != nil {
		return nil, err
	}

	err = db.Close()
	db = nil
	if err != nil {
		return nil, err
	}

	slog.Info(fmt.Sprintf("Loaded %s as %s (%d errors)", inputPath, namespace, result.ErrorCount))
	return result, nil
}

// feedLoader is the per-load context threaded through the row-processing
// call chain; no state lives outside it.
type feedLoader struct {
	db          *sqlite.Conn
	zip         *zip.Reader
	namespace   string
	tracker     *referenceTracker
	errors      *ErrorStorage
	usedEntries map[string]bool
}

// loadTable runs the whole state machine for one table and never lets an
// error escape: fatal problems abandon this table's transaction and are
// reported on the summary.
func (ld *feedLoader) loadTable(t *Table) TableLoadResult {
	res := TableLoadResult{Table: t.Name}
	before := ld.errors.ErrorCount()

	rowCount, err := ld.loadTableInner(t)
	res.RowCount = rowCount
	if err != nil {
		res.FatalError = err.Error()
		// The transaction may or may not be open at this point.
		_ = sqlitex.ExecTransient(ld.db, "ROLLBACK", sqlitexNoop)
		slog.Error("table load failed", "table", t.Name, "error", err)
	}

	// Findings are written outside the data transaction so they survive a
	// rollback.
	if flushErr := ld.errors.flush(); flushErr != nil && res.FatalError == "" {
		res.FatalError = flushErr.Error()
	}
	res.ErrorCount = ld.errors.ErrorCount() - before
	return res
}

type column struct {
	field *Field
	param int // 1-based statement parameter; 0 when the column is unmapped
}

func (ld *feedLoader) loadTableInner(t *Table) (int, error) {
	entry := ld.findEntry(t)
	if entry == nil {
		if t.isRequired() {
			ld.errors.StoreError(newGTFSError(ErrMissingTable, t.Name, 0, ""))
		}
		// The destination table still exists, empty, so downstream
		// consumers and the clip cascade see a uniform table set.
		return 0, ld.createEmptyTable(t)
	}
	ld.usedEntries[entry.Name] = true

	f, err := entry.Open()
	if err != nil {
		return 0, err
	}
	defer func() { _ = f.Close() }()

	reader := bomAwareCSVReader(f)
	reader.FieldsPerRecord = -1

	header, err := reader.Read()
	if errors.Is(err, io.EOF) {
		// The entry exists but holds nothing, not even a header. Keep the
		// table and remember the file so an export reproduces it.
		if err := ld.createEmptyTable(t); err != nil {
			return 0, err
		}
		return 0, ld.markEmptyFile(t)
	} else if err != nil {
		return 0, err
	}
	cols := ld.resolveHeader(t, header)

	if err := sqlitex.ExecTransient(ld.db, "BEGIN", sqlitexNoop); err != nil {
		return 0, err
	}
	if err := ld.createDestinationTable(t, cols); err != nil {
		return 0, err
	}

	stmt, err := ld.db.Prepare(insertSQL(ld.namespace, t.Name, cols))
	if err != nil {
		return 0, err
	}
	inserter := &statementInserter{db: ld.db, stmt: stmt}

	rowCount, err := ld.streamRows(t, reader, cols, len(header), inserter)
	if err != nil {
		return rowCount, err
	}

	if rowCount == 0 {
		if err := ld.markEmptyFile(t); err != nil {
			return 0, err
		}
	}
	if rowCount >= indexMinRows {
		if err := ld.buildIndexes(t); err != nil {
			return rowCount, err
		}
	}
	if err := sqlitex.ExecTransient(ld.db, "COMMIT", sqlitexNoop); err != nil {
		return rowCount, err
	}

	slog.Info(fmt.Sprintf("Loaded %d rows into %s_%s", rowCount, ld.namespace, t.Name))
	return rowCount, nil
}

// findEntry locates the table's CSV entry, preferring the archive root and
// falling back to a suffix scan for feeds that nest tables in a
// subdirectory (tolerated, but logged as a structural warning).
func (ld *feedLoader) findEntry(t *Table) *zip.File {
	name := t.Name + ".txt"
	for _, f := range ld.zip.File {
		if f.Name == name {
			return f
		}
	}
	for _, f := range ld.zip.File {
		if strings.HasSuffix(f.Name, "/"+name) {
			e := newGTFSError(ErrTableInSubdirectory, t.Name, 0, f.Name)
			ld.errors.StoreError(e)
			return f
		}
	}
	return nil
}

// resolveHeader matches sanitized CSV headers to schema fields. Unknown
// headers become permissive string fields; a repeated header keeps its
// first column and unmaps the rest.
func (ld *feedLoader) resolveHeader(t *Table, header []string) []column {
	cols := make([]column, len(header))
	seen := make(map[string]bool)
	param := 1 // parameter 1 is the synthetic id column
	for i, raw := range header {
		name, changed := sanitizeIdentifier(raw)
		if changed {
			e := newGTFSError(ErrColumnNameUnsafe, t.Name, 1, raw)
			e.addInfo("sanitized", name)
			ld.errors.StoreError(e)
		}
		if name == "" {
			continue
		}
		if seen[name] {
			e := newGTFSError(ErrDuplicateHeader, t.Name, 1, raw)
			ld.errors.StoreError(e)
			continue
		}
		seen[name] = true
		param++
		cols[i] = column{field: t.FieldForName(name), param: param}
	}
	return cols
}

// markEmptyFile records that the table's file was present but held no data
// rows, so a later export writes the file back as header-only instead of
// dropping it.
func (ld *feedLoader) markEmptyFile(t *Table) error {
	q := fmt.Sprintf("CREATE TABLE IF NOT EXISTS %s_empty_files (table_name TEXT)", ld.namespace)
	if err := sqlitex.ExecTransient(ld.db, q, sqlitexNoop); err != nil {
		return err
	}
	q = fmt.Sprintf("INSERT INTO %s_empty_files (table_name) VALUES (?)", ld.namespace)
	return sqlitex.Exec(ld.db, q, sqlitexNoop, t.Name)
}

func (ld *feedLoader) createEmptyTable(t *Table) error {
	fragments := []string{"id INTEGER PRIMARY KEY"}
	for _, f := range t.Fields {
		fragments = append(fragments, f.Name+" "+f.sqlType())
	}
	query := fmt.Sprintf("CREATE TABLE %s_%s (%s)",
		ld.namespace, t.Name, strings.Join(fragments, ", "))
	return sqlitex.ExecTransient(ld.db, query, sqlitexNoop)
}

func (ld *feedLoader) createDestinationTable(t *Table, cols []column) error {
	fragments := []string{"id INTEGER PRIMARY KEY"}
	for _, c := range cols {
		if c.field == nil {
			continue
		}
		fragments = append(fragments, c.field.Name+" "+c.field.sqlType())
	}
	query := fmt.Sprintf("CREATE TABLE %s_%s (%s)",
		ld.namespace, t.Name, strings.Join(fragments, ", "))
	return sqlitex.ExecTransient(ld.db, query, sqlitexNoop)
}

func insertSQL(namespace, table string, cols []column) string {
	names := []string{"id"}
	args := []string{"?1"}
	for _, c := range cols {
		if c.field == nil {
			continue
		}
		names = append(names, c.field.Name)
		args = append(args, fmt.Sprintf("?%d", c.param))
	}
	return fmt.Sprintf("INSERT INTO %s_%s (%s) VALUES (%s)",
		namespace, table, strings.Join(names, ", "), strings.Join(args, ", "))
}

func (ld *feedLoader) streamRows(t *Table, reader *csv.Reader, cols []column, headerLen int, inserter rowInserter) (int, error) {
	orderName := t.OrderFieldName()
	rowCount := 0

	for recordIndex := 0; ; recordIndex++ {
		row, err := reader.Read()
		if errors.Is(err, io.EOF) {
			break
		} else if err != nil {
			return rowCount, err
		}

		// 1-based and counting the header row, so findings point at the
		// line a user sees in the file.
		line := int64(recordIndex) + 2
		if line > maxCSVLines {
			ld.errors.StoreError(newGTFSError(ErrTableTooLong, t.Name, maxCSVLines, ""))
			break
		}

		if len(row) != headerLen {
			e := newGTFSError(ErrWrongNumberOfFields, t.Name, line, strconv.Itoa(len(row)))
			e.addInfo("expected", strconv.Itoa(headerLen))
			ld.errors.StoreError(e)
			continue
		}

		ld.tracker.countRow(t)

		// Checks see cleaned values, matching what gets stored.
		rowValues := make(map[string]string, len(cols))
		for i, c := range cols {
			if c.field != nil {
				rowValues[c.field.Name] = cleanString(row[i])
			}
		}

		key := rowKey{value: rowValues[t.KeyFieldName()], sequence: NoSequence}
		if orderName != "" {
			key.order = rowValues[orderName]
			if n, err := strconv.ParseInt(key.order, 10, 64); err == nil {
				key.sequence = n
			}
		}

		if err := inserter.beginRow(line); err != nil {
			return rowCount, err
		}
		for i, c := range cols {
			if c.field == nil {
				continue
			}
			raw := row[i]
			if c.field.unknown {
				inserter.setUnknown(c.param, raw)
				continue
			}
			value := rowValues[c.field.Name]
			if value == "" && c.field.isRequired() {
				e := newGTFSError(ErrMissingField, t.Name, line, "")
				e.addInfo("field", c.field.Name)
				ld.storeRowErrors([]*GTFSError{e}, t, line, key.value, key.sequence)
				inserter.setMissing(c.param, c.field)
				continue
			}
			checkErrs := ld.tracker.checkReferencesAndUniqueness(key, line, c.field, value, t)
			ld.storeRowErrors(checkErrs, t, line, key.value, key.sequence)

			// A bad value becomes a finding plus the missing sentinel; the
			// rest of the row still loads.
			convErrs := inserter.setField(c.param, c.field, raw)
			ld.storeRowErrors(convErrs, t, line, key.value, key.sequence)
		}

		condErrs := ld.tracker.checkConditionallyRequiredFields(t, rowValues, line)
		ld.storeRowErrors(condErrs, t, line, key.value, key.sequence)

		if err := inserter.endRow(); err != nil {
			return rowCount, err
		}
		rowCount++
	}

	return rowCount, nil
}

// storeRowErrors fills in the context a field-level finding could not know
// on its own, then hands it to storage.
func (ld *feedLoader) storeRowErrors(errs []*GTFSError, t *Table, line int64, entityID string, seq int64) {
	for _, e := range errs {
		if e.Table == "" {
			e.Table = t.Name
		}
		if e.Line == 0 {
			e.Line = line
		}
		if e.EntityID == "" {
			e.EntityID = entityID
		}
		if e.Sequence == NoSequence {
			e.Sequence = seq
		}
		ld.errors.StoreError(e)
	}
}

func (ld *feedLoader) buildIndexes(t *Table) error {
	key := t.KeyFieldName()
	columns := key
	if order := t.OrderFieldName(); order != "" {
		columns = key + ", " + order
	}
	query := fmt.Sprintf("CREATE INDEX %s_%s_key_idx ON %s_%s (%s)",
		ld.namespace, t.Name, ld.namespace, t.Name, columns)
	return sqlitex.ExecTransient(ld.db, query, sqlitexNoop)
}

// storeOtherFiles preserves archive entries that are not schema tables so
// nothing from the input is discarded and an export can reproduce them.
func (ld *feedLoader) storeOtherFiles() error {
	created := false
	for _, entry := range ld.zip.File {
		if ld.usedEntries[entry.Name] || strings.HasSuffix(entry.Name, "/") {
			continue
		}
		if strings.HasSuffix(entry.Name, ".txt") {
			base := strings.TrimSuffix(path.Base(entry.Name), ".txt")
			if clean, changed := sanitizeIdentifier(base); changed || !identifierPattern.MatchString(clean) {
				e := newGTFSError(ErrTableNameFormat, base, 0, entry.Name)
				ld.errors.StoreError(e)
			}
		}

		if !created {
			q := fmt.Sprintf("CREATE TABLE %s_other_files (name TEXT, contents BLOB)", ld.namespace)
			if err := sqlitex.Exec(ld.db, q, sqlitexNoop); err != nil {
				return err
			}
			created = true
		}

		slog.Info("Preserving other file " + entry.Name)
		f, err := entry.Open()
		if err != nil {
			return err
		}
		contents, err := io.ReadAll(f)
		_ = f.Close()
		if err != nil {
			return err
		}
		q := fmt.Sprintf("INSERT INTO %s_other_files (name, contents) VALUES (?, ?)", ld.namespace)
		if err := sqlitex.Exec(ld.db, q, sqlitexNoop, entry.Name, contents); err != nil {
			return err
		}
	}
	return nil
}

// rowInserter is the bulk-load strategy: validation and conversion are
// backend-agnostic, only the write path differs. The production
// implementation batches prepared-statement inserts; tests substitute a
// capturing implementation.
type rowInserter interface {
	beginRow(line int64) error
	setField(param int, field *Field, raw string) []*GTFSError
	setUnknown(param int, raw string)
	setMissing(param int, field *Field)
	endRow() error
}

type statementInserter struct {
	db      *sqlite.Conn
	stmt    *sqlite.Stmt
	pending int
}

func (in *statementInserter) beginRow(line int64) error {
	if err := resetStmt(in.stmt); err != nil {
		return err
	}
	in.stmt.BindInt64(1, line)
	return nil
}

func (in *statementInserter) setField(param int, field *Field, raw string) []*GTFSError {
	return field.BindParameter(in.stmt, param, raw)
}

func (in *statementInserter) setUnknown(param int, raw string) {
	if raw == "" {
		in.stmt.BindNull(param)
	} else {
		in.stmt.BindText(param, cleanString(raw))
	}
}

func (in *statementInserter) setMissing(param int, field *Field) {
	bindValue(in.stmt, param, field.missingValue())
}

func (in *statementInserter) endRow() error {
	if _, err := in.stmt.Step(); err != nil {
		return err
	}
	in.pending++
	if in.pending >= insertBatchSize {
		return in.flush()
	}
	return nil
}

// flush commits the current batch and opens the next transaction.
func (in *statementInserter) flush() error {
	if err := sqlitex.ExecTransient(in.db, "COMMIT", sqlitexNoop); err != nil {
		return err
	}
	if err := sqlitex.ExecTransient(in.db, "BEGIN", sqlitexNoop); err != nil {
		return err
	}
	in.pending = 0
	return nil
}
