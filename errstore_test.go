package gtfsdb

import (
	"testing"

	"crawshaw.io/sqlite"
	"crawshaw.io/sqlite/sqlitex"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func openErrorStorage(t *testing.T) (*ErrorStorage, *sqlite.Conn) {
	t.Helper()
	dir := testTempdir(t)
	conn, err := sqlite.OpenConn(dir+"/store.db", 0)
	require.NoError(t, err)
	t.Cleanup(func() { _ = conn.Close() })

	store, err := newErrorStorage(conn, "ns1")
	require.NoError(t, err)
	return store, conn
}

func TestErrorStorageFlush(t *testing.T) {
	store, conn := openErrorStorage(t)

	e := newGTFSError(ErrMissingField, "stops", 3, "")
	e.addInfo("field", "stop_id")
	store.StoreError(e)
	assert.Equal(t, 1, store.ErrorCount())

	require.NoError(t, store.flush())
	assert.Equal(t, 1, store.ErrorCount())

	var errs []GTFSError
	require.NoError(t, ReadErrors(conn, "ns1", func(e GTFSError) error {
		errs = append(errs, e)
		return nil
	}))
	require.Len(t, errs, 1)
	assert.Equal(t, ErrMissingField, errs[0].Kind)
	assert.Equal(t, "stops", errs[0].Table)
	assert.Equal(t, int64(3), errs[0].Line)

	infoRows := 0
	require.NoError(t, sqlitex.Exec(conn,
		"SELECT info_key, info_value FROM ns1_error_info", func(stmt *sqlite.Stmt) error {
			infoRows++
			assert.Equal(t, "field", stmt.GetText("info_key"))
			assert.Equal(t, "stop_id", stmt.GetText("info_value"))
			return nil
		}))
	assert.Equal(t, 1, infoRows)
}

// A failed flush must leave the connection out of any transaction so the
// next table's load can open its own.
func TestErrorStorageFlushFailureRollsBack(t *testing.T) {
	store, conn := openErrorStorage(t)

	require.NoError(t, sqlitex.ExecTransient(conn, "DROP TABLE ns1_errors", sqlitexNoop))
	store.StoreError(newGTFSError(ErrMissingField, "stops", 3, ""))
	require.Error(t, store.flush())

	require.NoError(t, sqlitex.ExecTransient(conn, "BEGIN", sqlitexNoop))
	require.NoError(t, sqlitex.ExecTransient(conn,
		"CREATE TABLE ns1_next_table (id INTEGER PRIMARY KEY)", sqlitexNoop))
	require.NoError(t, sqlitex.ExecTransient(conn, "COMMIT", sqlitexNoop))
}
