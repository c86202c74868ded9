package gtfsdb

import (
	"fmt"
	"log/slog"
	"strings"
	"time"

	"crawshaw.io/sqlite"
	"crawshaw.io/sqlite/sqlitex"
)

// The feeds registry is the one shared table in a store: every loaded feed
// gets a row recording its namespace, content hash, identity, and (for
// snapshots) the namespace it was copied from.
func ensureRegistry(conn *sqlite.Conn) error {
	return sqlitex.ExecTransient(conn, `CREATE TABLE IF NOT EXISTS feeds (
		namespace TEXT PRIMARY KEY,
		zip_sha256 TEXT,
		feed_id TEXT,
		feed_version TEXT,
		loaded_at TEXT,
		snapshot_of TEXT
	)`, sqlitexNoop)
}

func registerFeed(conn *sqlite.Conn, namespace, hash, feedID, feedVersion, snapshotOf string) error {
	return sqlitex.Exec(conn,
		"INSERT INTO feeds (namespace, zip_sha256, feed_id, feed_version, loaded_at, snapshot_of) VALUES (?, ?, ?, ?, ?, ?)",
		sqlitexNoop,
		namespace, hash, feedID, feedVersion, time.Now().UTC().Format(time.RFC3339), snapshotOf)
}

// readFeedIdentity pulls the publisher name and version out of the loaded
// feed_info row, tolerating absent columns: feeds routinely omit them.
func readFeedIdentity(conn *sqlite.Conn, namespace string, result *FeedLoadResult) (feedID, feedVersion string) {
	tr := result.tableResult("feed_info")
	if tr == nil || tr.RowCount == 0 || tr.FatalError != "" {
		return "", ""
	}
	q := fmt.Sprintf("SELECT * FROM %s_feed_info LIMIT 1", namespace)
	_ = sqlitex.Exec(conn, q, func(stmt *sqlite.Stmt) error {
		for i := 0; i < stmt.ColumnCount(); i++ {
			switch stmt.ColumnName(i) {
			case "feed_publisher_name":
				feedID = stmt.ColumnText(i)
			case "feed_version":
				feedVersion = stmt.ColumnText(i)
			}
		}
		return nil
	})
	return feedID, feedVersion
}

// FeedEntry is one row of the feeds registry.
type FeedEntry struct {
	Namespace   string
	ZipSHA256   string
	FeedID      string
	FeedVersion string
	LoadedAt    string
	SnapshotOf  string
}

func ListFeeds(dbPath string) ([]FeedEntry, error) {
	conn, err := sqlite.OpenConn(dbPath, sqlite.SQLITE_OPEN_READONLY)
	if err != nil {
		return nil, err
	}
	defer func() { _ = conn.Close() }()

	var out []FeedEntry
	err = sqlitex.Exec(conn, "SELECT namespace, zip_sha256, feed_id, feed_version, loaded_at, snapshot_of FROM feeds ORDER BY loaded_at", func(stmt *sqlite.Stmt) error {
		out = append(out, FeedEntry{
			Namespace:   stmt.GetText("namespace"),
			ZipSHA256:   stmt.GetText("zip_sha256"),
			FeedID:      stmt.GetText("feed_id"),
			FeedVersion: stmt.GetText("feed_version"),
			LoadedAt:    stmt.GetText("loaded_at"),
			SnapshotOf:  stmt.GetText("snapshot_of"),
		})
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

// Snapshot copies every table of the source namespace into a fresh
// namespace and registers the copy, so editing tools can work on a derived
// version without touching the loaded original.
func Snapshot(dbPath string, source string) (string, error) {
	if dbPath == "" {
		panic("Missing dbPath")
	}

	conn, err := sqlite.OpenConn(dbPath, 0)
	if err != nil {
		return "", err
	}
	defer func() {
		if conn != nil {
			_ = conn.Close()
		}
	}()

	var sourceEntry *FeedEntry
	err = sqlitex.Exec(conn, "SELECT zip_sha256, feed_id, feed_version FROM feeds WHERE namespace = ?", func(stmt *sqlite.Stmt) error {
		sourceEntry = &FeedEntry{
			ZipSHA256:   stmt.GetText("zip_sha256"),
			FeedID:      stmt.GetText("feed_id"),
			FeedVersion: stmt.GetText("feed_version"),
		}
		return nil
	}, source)
	if err != nil {
		return "", err
	}
	if sourceEntry == nil {
		return "", fmt.Errorf("unknown namespace %s", source)
	}

	tables, err := namespaceTables(conn, source)
	if err != nil {
		return "", err
	}

	target := newNamespace()
	slog.Info(fmt.Sprintf("Snapshotting %s to %s (%d tables)", source, target, len(tables)))

	if err := sqlitex.ExecTransient(conn, "BEGIN", sqlitexNoop); err != nil {
		return "", err
	}
	for _, table := range tables {
		suffix := strings.TrimPrefix(table, source+"_")
		q := fmt.Sprintf("CREATE TABLE %s_%s AS SELECT * FROM %s", target, suffix, table)
		if err := sqlitex.ExecTransient(conn, q, sqlitexNoop); err != nil {
			_ = sqlitex.ExecTransient(conn, "ROLLBACK", sqlitexNoop)
			return "", err
		}
	}
	if err := sqlitex.ExecTransient(conn, "COMMIT", sqlitexNoop); err != nil {
		return "", err
	}

	if err := registerFeed(conn, target, sourceEntry.ZipSHA256, sourceEntry.FeedID, sourceEntry.FeedVersion, source); err != nil {
		return "", err
	}

	err = conn.Close()
	conn = nil
	if err != nil {
		return "", err
	}
	return target, nil
}

// namespaceTables lists the store tables belonging to one namespace.
func namespaceTables(conn *sqlite.Conn, namespace string) ([]string, error) {
	var out []string
	err := sqlitex.Exec(conn,
		"SELECT name FROM sqlite_master WHERE type = 'table' AND name LIKE ? ORDER BY name",
		func(stmt *sqlite.Stmt) error {
			out = append(out, stmt.GetText("name"))
			return nil
		}, namespace+"_%")
	if err != nil {
		return nil, err
	}
	return out, nil
}
