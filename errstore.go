package gtfsdb

import (
	"fmt"

	"crawshaw.io/sqlite"
	"crawshaw.io/sqlite/sqlitex"
)

// ErrorStorage is the appending sink for load/validation findings. Findings
// are buffered in memory and written outside the data tables' transactions,
// so they survive even when the row or table that produced them could not
// be loaded. Every table it writes is prefixed with the feed namespace.
type ErrorStorage struct {
	conn      *sqlite.Conn
	namespace string
	queue     []*GTFSError
	stored    int
	closed    bool
}

func newErrorStorage(conn *sqlite.Conn, namespace string) (*ErrorStorage, error) {
	s := &ErrorStorage{conn: conn, namespace: namespace}
	ddl := []string{
		fmt.Sprintf(`CREATE TABLE %s_errors (
			id INTEGER PRIMARY KEY,
			error_type TEXT,
			entity_type TEXT,
			line INTEGER,
			entity_id TEXT,
			entity_sequence INTEGER,
			bad_value TEXT
		)`, namespace),
		fmt.Sprintf(`CREATE TABLE %s_error_info (
			error_id INTEGER,
			info_key TEXT,
			info_value TEXT
		)`, namespace),
	}
	for _, q := range ddl {
		if err := sqlitex.ExecTransient(conn, q, sqlitexNoop); err != nil {
			return nil, fmt.Errorf("create error tables: %w", err)
		}
	}
	return s, nil
}

// StoreError queues one finding for the next flush.
func (s *ErrorStorage) StoreError(e *GTFSError) {
	if s.closed {
		panic("ErrorStorage used after CommitAndClose")
	}
	s.queue = append(s.queue, e)
}

// ErrorCount reports every finding seen so far, flushed or not.
func (s *ErrorStorage) ErrorCount() int {
	return s.stored + len(s.queue)
}

// flush writes the queued findings in one transaction. A failed write
// rolls the transaction back so the connection is usable for the next
// table's load; the queue is kept for a later retry.
func (s *ErrorStorage) flush() error {
	if len(s.queue) == 0 {
		return nil
	}

	if err := sqlitex.ExecTransient(s.conn, "BEGIN", sqlitexNoop); err != nil {
		return err
	}
	if err := s.flushIn(); err != nil {
		_ = sqlitex.ExecTransient(s.conn, "ROLLBACK", sqlitexNoop)
		return err
	}
	if err := sqlitex.ExecTransient(s.conn, "COMMIT", sqlitexNoop); err != nil {
		return err
	}

	s.stored += len(s.queue)
	s.queue = s.queue[:0]
	return nil
}

// flushIn writes the queue inside the already-open transaction. The
// generated error id links each finding to its auxiliary info rows; info
// inserts reuse one prepared statement across the batch.
func (s *ErrorStorage) flushIn() error {
	errStmt, err := s.conn.Prepare(fmt.Sprintf(
		"INSERT INTO %s_errors (error_type, entity_type, line, entity_id, entity_sequence, bad_value) VALUES (?, ?, ?, ?, ?, ?)",
		s.namespace))
	if err != nil {
		return err
	}
	infoStmt, err := s.conn.Prepare(fmt.Sprintf(
		"INSERT INTO %s_error_info (error_id, info_key, info_value) VALUES (?, ?, ?)",
		s.namespace))
	if err != nil {
		return err
	}

	for _, e := range s.queue {
		if err := resetStmt(errStmt); err != nil {
			return err
		}
		errStmt.BindText(1, string(e.Kind))
		errStmt.BindText(2, e.Table)
		errStmt.BindInt64(3, e.Line)
		errStmt.BindText(4, e.EntityID)
		errStmt.BindInt64(5, e.Sequence)
		errStmt.BindText(6, e.BadValue)
		if _, err := errStmt.Step(); err != nil {
			return err
		}
		errorID := s.conn.LastInsertRowID()

		for key, value := range e.Info {
			if err := resetStmt(infoStmt); err != nil {
				return err
			}
			infoStmt.BindInt64(1, errorID)
			infoStmt.BindText(2, key)
			infoStmt.BindText(3, value)
			if _, err := infoStmt.Step(); err != nil {
				return err
			}
		}
	}
	return nil
}

// CommitAndClose flushes everything and permanently closes the sink. It
// must be called exactly once, at the very end of a load pipeline.
func (s *ErrorStorage) CommitAndClose() error {
	if s.closed {
		panic("ErrorStorage.CommitAndClose called twice")
	}
	if err := s.flush(); err != nil {
		return err
	}
	s.closed = true
	return nil
}

func resetStmt(stmt *sqlite.Stmt) error {
	if err := stmt.Reset(); err != nil {
		return err
	}
	return stmt.ClearBindings()
}
