package gtfsdb

import (
	"fmt"
	"strings"

	"crawshaw.io/sqlite"
	"crawshaw.io/sqlite/sqlitex"
)

// Row is one stored record read back with its typed values. ID is the
// original 1-based file line the row came from.
type Row struct {
	ID     int64
	Values map[string]any // int64, float64, string, or nil
}

// ReadRows streams every row of a namespaced table in file order to fn.
// This is the cursor downstream validators and the query layer consume;
// it never materializes the table in memory.
func ReadRows(conn *sqlite.Conn, namespace string, table string, fn func(Row) error) error {
	q := fmt.Sprintf("SELECT * FROM %s_%s ORDER BY id", namespace, table)
	return sqlitex.Exec(conn, q, func(stmt *sqlite.Stmt) error {
		row := Row{Values: make(map[string]any, stmt.ColumnCount())}
		for i := 0; i < stmt.ColumnCount(); i++ {
			name := stmt.ColumnName(i)
			var v any
			switch stmt.ColumnType(i) {
			case sqlite.SQLITE_INTEGER:
				v = stmt.ColumnInt64(i)
			case sqlite.SQLITE_FLOAT:
				v = stmt.ColumnFloat(i)
			case sqlite.SQLITE_TEXT:
				v = stmt.ColumnText(i)
			default:
				v = nil
			}
			if name == "id" {
				row.ID = stmt.ColumnInt64(i)
				continue
			}
			row.Values[name] = v
		}
		return fn(row)
	})
}

// ReadErrors streams the stored findings for a namespace in line order.
func ReadErrors(conn *sqlite.Conn, namespace string, fn func(GTFSError) error) error {
	q := fmt.Sprintf("SELECT error_type, entity_type, line, entity_id, entity_sequence, bad_value FROM %s_errors ORDER BY line, id", namespace)
	return sqlitex.Exec(conn, q, func(stmt *sqlite.Stmt) error {
		return fn(GTFSError{
			Kind:     ErrorKind(stmt.GetText("error_type")),
			Table:    stmt.GetText("entity_type"),
			Line:     stmt.GetInt64("line"),
			EntityID: stmt.GetText("entity_id"),
			Sequence: stmt.GetInt64("entity_sequence"),
			BadValue: stmt.GetText("bad_value"),
		})
	})
}

// The SQL generation below is the surface the pattern-editing tools build
// on: they depend only on a table's key/order fields and these statements,
// never on the loader's tracking state.

// InsertSQL builds the parameterized insert for every declared field, with
// the synthetic id first.
func (t *Table) InsertSQL(namespace string) string {
	names := []string{"id"}
	args := []string{"?1"}
	for i, f := range t.Fields {
		names = append(names, f.Name)
		args = append(args, fmt.Sprintf("?%d", i+2))
	}
	return fmt.Sprintf("INSERT INTO %s_%s (%s) VALUES (%s)",
		namespace, t.Name, strings.Join(names, ", "), strings.Join(args, ", "))
}

// UpdateSQL builds the parameterized full-row update keyed on id.
func (t *Table) UpdateSQL(namespace string) string {
	var sets []string
	for i, f := range t.Fields {
		sets = append(sets, fmt.Sprintf("%s = ?%d", f.Name, i+1))
	}
	return fmt.Sprintf("UPDATE %s_%s SET %s WHERE id = ?%d",
		namespace, t.Name, strings.Join(sets, ", "), len(t.Fields)+1)
}

// DeleteSQL builds the parameterized delete scoped by the key field and,
// for compound-key tables, the order field.
func (t *Table) DeleteSQL(namespace string) string {
	where := t.KeyFieldName() + " = ?1"
	if order := t.OrderFieldName(); order != "" {
		where += " AND " + order + " = ?2"
	}
	return fmt.Sprintf("DELETE FROM %s_%s WHERE %s", namespace, t.Name, where)
}
