package gtfsdb

import (
	"archive/zip"
	"encoding/csv"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strconv"

	"crawshaw.io/sqlite"
	"crawshaw.io/sqlite/sqlitex"
)

// Export writes one namespace back out as a GTFS zip. Values are rendered
// from their stored typed form: times return to HH:MM:SS, missing
// sentinels and NULLs become empty cells. Preserved non-GTFS files are
// written back untouched.
func Export(dbPath string, namespace string, outputPath string) error {
	if dbPath == "" {
		panic("Missing dbPath")
	}
	if namespace == "" {
		panic("Missing namespace")
	}
	if outputPath == "" {
		panic("Missing outputPath")
	}

	slog.Info(fmt.Sprintf("Exporting %s from %s to %s", namespace, dbPath, outputPath))

	db, err := sqlite.OpenConn(dbPath, sqlite.SQLITE_OPEN_READONLY)
	if err != nil {
		return err
	}
	defer func() {
		if db != nil {
			_ = db.Close()
		}
	}()

	outputF, err := os.Create(outputPath)
	if err != nil {
		return err
	}
	outputZip := zip.NewWriter(outputF)
	defer func() {
		_ = outputZip.Close()
		_ = outputF.Close()
	}()

	stored, err := namespaceTables(db, namespace)
	if err != nil {
		return err
	}
	storedSet := make(map[string]bool, len(stored))
	for _, name := range stored {
		storedSet[name] = true
	}

	// Tables whose source file was present but empty are written back as
	// header-only files; other zero-row tables are omitted.
	emptyFiles := make(map[string]bool)
	if storedSet[namespace+"_empty_files"] {
		q := fmt.Sprintf("SELECT table_name FROM %s_empty_files", namespace)
		err = sqlitex.Exec(db, q, func(stmt *sqlite.Stmt) error {
			emptyFiles[stmt.GetText("table_name")] = true
			return nil
		})
		if err != nil {
			return err
		}
	}

	for _, table := range loadOrder {
		if !storedSet[namespace+"_"+table.Name] {
			continue
		}

		var rowCount int64
		err = sqlitex.Exec(db, fmt.Sprintf("SELECT count(*) AS count FROM %s_%s", namespace, table.Name), func(stmt *sqlite.Stmt) error {
			rowCount = stmt.GetInt64("count")
			return nil
		})
		if err != nil {
			return err
		}
		if rowCount == 0 && !emptyFiles[table.Name] {
			continue
		}

		if err := exportTableIn(db, outputZip, namespace, table); err != nil {
			return err
		}
	}

	if storedSet[namespace+"_other_files"] {
		if err := exportOtherFiles(db, outputZip, namespace); err != nil {
			return err
		}
	}

	if err := outputZip.Close(); err != nil {
		return err
	}
	if err := outputF.Close(); err != nil {
		return err
	}

	err = db.Close()
	db = nil
	if err != nil {
		return err
	}

	slog.Info(fmt.Sprintf("Wrote %s", outputPath))
	return nil
}

func exportTableIn(db *sqlite.Conn, outputZip *zip.Writer, namespace string, table *Table) error {
	outputName := table.Name + ".txt"
	outputF, err := outputZip.Create(outputName)
	if err != nil {
		return err
	}
	outputCSV := csv.NewWriter(outputF)

	var cols []string
	err = sqlitex.Exec(db, "SELECT name FROM pragma_table_info(?)", func(stmt *sqlite.Stmt) error {
		if name := stmt.GetText("name"); name != "id" {
			cols = append(cols, name)
		}
		return nil
	}, namespace+"_"+table.Name)
	if err != nil {
		return err
	}
	if err := outputCSV.Write(cols); err != nil {
		return err
	}

	rowCount := 0
	err = ReadRows(db, namespace, table.Name, func(row Row) error {
		record := make([]string, len(cols))
		for i, col := range cols {
			record[i] = renderValue(table.field(col), row.Values[col])
		}
		if err := outputCSV.Write(record); err != nil {
			return err
		}
		rowCount++
		return nil
	})
	if err != nil {
		return err
	}
	slog.Info(fmt.Sprintf("Wrote %d rows to %s", rowCount, outputName))

	outputCSV.Flush()
	return outputCSV.Error()
}

// renderValue turns a stored typed value back into its GTFS textual form.
// field is nil for columns preserved from unknown headers.
func renderValue(field *Field, v any) string {
	switch v := v.(type) {
	case nil:
		return ""
	case int64:
		if v == IntMissing {
			return ""
		}
		if field != nil && field.Type == TimeField {
			return FormatGTFSTime(v)
		}
		return strconv.FormatInt(v, 10)
	case float64:
		if v == DoubleMissing {
			return ""
		}
		return strconv.FormatFloat(v, 'f', -1, 64)
	case string:
		return v
	default:
		return fmt.Sprint(v)
	}
}

func exportOtherFiles(db *sqlite.Conn, outputZip *zip.Writer, namespace string) error {
	q := fmt.Sprintf("SELECT name, contents FROM %s_other_files", namespace)
	return sqlitex.ExecTransient(db, q, func(stmt *sqlite.Stmt) error {
		name := stmt.GetText("name")
		contents := stmt.GetReader("contents")

		outputF, err := outputZip.Create(name)
		if err != nil {
			return err
		}

		byteLen, err := io.Copy(outputF, contents)
		if err != nil {
			return err
		}
		slog.Info(fmt.Sprintf("Exported other file %s (%d bytes)", name, byteLen))
		return nil
	})
}
