package gtfsdb

import (
	"archive/zip"
	"fmt"
	"os"
	"slices"
	"testing"

	"crawshaw.io/sqlite"
	"crawshaw.io/sqlite/sqlitex"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const (
	defaultAgencyCSV = "agency_id,agency_name,agency_url,agency_timezone\n" +
		"a1,Transit Co,https://transit.example,America/New_York\n"
	defaultCalendarCSV = "service_id,monday,tuesday,wednesday,thursday,friday,saturday,sunday,start_date,end_date\n" +
		"sv1,1,1,1,1,1,0,0,20240101,20241231\n"
	defaultStopsCSV = "stop_id,stop_name,stop_lat,stop_lon\n" +
		"s1,First St,40.1,-74.05\n" +
		"s2,Second St,40.12,-74.04\n"
	defaultRoutesCSV = "route_id,agency_id,route_short_name,route_type\n" +
		"r1,a1,10,3\n"
	defaultTripsCSV = "trip_id,route_id,service_id\n" +
		"t1,r1,sv1\n"
	defaultStopTimesCSV = "trip_id,stop_sequence,arrival_time,departure_time,stop_id\n" +
		"t1,1,08:00:00,08:00:00,s1\n" +
		"t1,2,08:10:00,08:12:00,s2\n"
)

// feedBuilder assembles a GTFS zip in memory. It starts from a minimal
// valid feed; tests overwrite or remove entries to create the shape they
// need.
type feedBuilder struct {
	entries map[string]string
}

func newFeedBuilder() *feedBuilder {
	return &feedBuilder{entries: map[string]string{
		"agency.txt":     defaultAgencyCSV,
		"calendar.txt":   defaultCalendarCSV,
		"stops.txt":      defaultStopsCSV,
		"routes.txt":     defaultRoutesCSV,
		"trips.txt":      defaultTripsCSV,
		"stop_times.txt": defaultStopTimesCSV,
	}}
}

func (b *feedBuilder) set(name, content string) *feedBuilder {
	b.entries[name] = content
	return b
}

func (b *feedBuilder) remove(name string) *feedBuilder {
	delete(b.entries, name)
	return b
}

func (b *feedBuilder) build(t *testing.T, path string) string {
	t.Helper()
	f, err := os.Create(path)
	require.NoError(t, err)
	w := zip.NewWriter(f)

	names := make([]string, 0, len(b.entries))
	for name := range b.entries {
		names = append(names, name)
	}
	slices.Sort(names)
	for _, name := range names {
		entry, err := w.Create(name)
		require.NoError(t, err)
		_, err = entry.Write([]byte(b.entries[name]))
		require.NoError(t, err)
	}

	require.NoError(t, w.Close())
	require.NoError(t, f.Close())
	return path
}

func testTempdir(t *testing.T) string {
	dir, err := os.MkdirTemp("", "")
	require.NoError(t, err)
	t.Cleanup(func() {
		if t.Failed() {
			fmt.Println("Preserving tempdir after failed test", dir)
		} else {
			_ = os.RemoveAll(dir)
		}
	})
	return dir
}

// loadFeed builds the feed, loads it into a fresh store, and hands back the
// result plus a read-only connection to the store.
func loadFeed(t *testing.T, b *feedBuilder) (*FeedLoadResult, *sqlite.Conn) {
	t.Helper()
	dir := testTempdir(t)
	zipPath := b.build(t, dir+"/feed.zip")
	dbPath := dir + "/store.db"

	result, err := Load(zipPath, dbPath)
	require.NoError(t, err)
	return result, openTestDB(t, dbPath)
}

func openTestDB(t *testing.T, path string) *sqlite.Conn {
	t.Helper()
	conn, err := sqlite.OpenConn(path, sqlite.SQLITE_OPEN_READONLY)
	require.NoError(t, err)
	t.Cleanup(func() { _ = conn.Close() })
	return conn
}

func collectRows(t *testing.T, conn *sqlite.Conn, namespace, table string) []Row {
	t.Helper()
	var rows []Row
	require.NoError(t, ReadRows(conn, namespace, table, func(r Row) error {
		rows = append(rows, r)
		return nil
	}))
	return rows
}

func collectErrors(t *testing.T, conn *sqlite.Conn, namespace string) []GTFSError {
	t.Helper()
	var errs []GTFSError
	require.NoError(t, ReadErrors(conn, namespace, func(e GTFSError) error {
		errs = append(errs, e)
		return nil
	}))
	return errs
}

func errorsOfKind(errs []GTFSError, kind ErrorKind) []GTFSError {
	var out []GTFSError
	for _, e := range errs {
		if e.Kind == kind {
			out = append(out, e)
		}
	}
	return out
}

func TestLoadMinimalFeed(t *testing.T) {
	result, conn := loadFeed(t, newFeedBuilder())

	assert.Equal(t, 0, result.ErrorCount)
	assert.Regexp(t, identifierPattern, result.Namespace)

	wantRows := map[string]int{
		"agency": 1, "calendar": 1, "stops": 2,
		"routes": 1, "trips": 1, "stop_times": 2,
	}
	for _, tr := range result.Tables {
		assert.Empty(t, tr.FatalError, tr.Table)
		assert.Equal(t, wantRows[tr.Table], tr.RowCount, tr.Table)
	}

	stops := collectRows(t, conn, result.Namespace, "stops")
	require.Len(t, stops, 2)
	assert.Equal(t, "s1", stops[0].Values["stop_id"])
	assert.Equal(t, 40.1, stops[0].Values["stop_lat"])
	assert.Equal(t, -74.05, stops[0].Values["stop_lon"])
	// ids carry the source file line
	assert.Equal(t, int64(2), stops[0].ID)
	assert.Equal(t, int64(3), stops[1].ID)

	stopTimes := collectRows(t, conn, result.Namespace, "stop_times")
	require.Len(t, stopTimes, 2)
	assert.Equal(t, int64(28800), stopTimes[0].Values["arrival_time"])
	assert.Equal(t, int64(1), stopTimes[0].Values["stop_sequence"])
	assert.Equal(t, int64(29520), stopTimes[1].Values["departure_time"])

	assert.Empty(t, collectErrors(t, conn, result.Namespace))
}

func TestLoadRegistersFeed(t *testing.T) {
	dir := testTempdir(t)
	zipPath := newFeedBuilder().set("feed_info.txt",
		"feed_publisher_name,feed_publisher_url,feed_lang,feed_version\n"+
			"Transit Co,https://transit.example,en,2024.08\n").build(t, dir+"/feed.zip")
	dbPath := dir + "/store.db"

	result, err := Load(zipPath, dbPath)
	require.NoError(t, err)

	feeds, err := ListFeeds(dbPath)
	require.NoError(t, err)
	require.Len(t, feeds, 1)
	assert.Equal(t, result.Namespace, feeds[0].Namespace)
	assert.Equal(t, "Transit Co", feeds[0].FeedID)
	assert.Equal(t, "2024.08", feeds[0].FeedVersion)
	assert.NotEmpty(t, feeds[0].ZipSHA256)
	assert.Empty(t, feeds[0].SnapshotOf)
}

func TestLoadSameFeedTwice(t *testing.T) {
	dir := testTempdir(t)
	zipPath := newFeedBuilder().build(t, dir+"/feed.zip")
	dbPath := dir + "/store.db"

	first, err := Load(zipPath, dbPath)
	require.NoError(t, err)
	second, err := Load(zipPath, dbPath)
	require.NoError(t, err)

	assert.NotEqual(t, first.Namespace, second.Namespace)
	assert.Equal(t, first.ErrorCount, second.ErrorCount)

	feeds, err := ListFeeds(dbPath)
	require.NoError(t, err)
	require.Len(t, feeds, 2)
	assert.Equal(t, feeds[0].ZipSHA256, feeds[1].ZipSHA256)

	conn := openTestDB(t, dbPath)
	assert.Equal(t,
		len(collectRows(t, conn, first.Namespace, "stops")),
		len(collectRows(t, conn, second.Namespace, "stops")))
}

func TestLoadMissingRequiredField(t *testing.T) {
	b := newFeedBuilder().set("calendar.txt",
		"service_id,monday,tuesday,wednesday,thursday,friday,saturday,sunday,start_date,end_date\n"+
			"sv1,,1,1,1,1,0,0,20240101,20241231\n")
	result, conn := loadFeed(t, b)

	errs := collectErrors(t, conn, result.Namespace)
	missing := errorsOfKind(errs, ErrMissingField)
	require.Len(t, missing, 1)
	assert.Equal(t, "calendar", missing[0].Table)
	assert.Equal(t, int64(2), missing[0].Line)
	assert.Equal(t, "sv1", missing[0].EntityID)

	// The row still loads, with the sentinel in the empty slot.
	rows := collectRows(t, conn, result.Namespace, "calendar")
	require.Len(t, rows, 1)
	assert.Equal(t, IntMissing, rows[0].Values["monday"])
	assert.Equal(t, int64(1), rows[0].Values["tuesday"])
}

func TestLoadDuplicateID(t *testing.T) {
	b := newFeedBuilder().set("stops.txt",
		"stop_id,stop_name,stop_lat,stop_lon\n"+
			"s1,First St,40.1,-74.05\n"+
			"s1,First St Again,40.1,-74.05\n"+
			"s2,Second St,40.12,-74.04\n")
	result, conn := loadFeed(t, b)

	errs := errorsOfKind(collectErrors(t, conn, result.Namespace), ErrDuplicateID)
	require.Len(t, errs, 1)
	assert.Equal(t, "stops", errs[0].Table)
	assert.Equal(t, int64(3), errs[0].Line)
	assert.Equal(t, "s1", errs[0].EntityID)

	// Both rows are kept; reporting is the tracker's job, not filtering.
	assert.Len(t, collectRows(t, conn, result.Namespace, "stops"), 3)
}

func TestLoadDuplicateSequence(t *testing.T) {
	b := newFeedBuilder().set("stop_times.txt",
		"trip_id,stop_sequence,arrival_time,departure_time,stop_id\n"+
			"t1,1,08:00:00,08:00:00,s1\n"+
			"t1,1,08:10:00,08:12:00,s2\n")
	result, conn := loadFeed(t, b)

	errs := errorsOfKind(collectErrors(t, conn, result.Namespace), ErrDuplicateID)
	require.Len(t, errs, 1)
	assert.Equal(t, "stop_times", errs[0].Table)
	assert.Equal(t, "t1", errs[0].EntityID)
	assert.Equal(t, int64(1), errs[0].Sequence)
}

func TestLoadReferentialIntegrity(t *testing.T) {
	b := newFeedBuilder().set("trips.txt",
		"trip_id,route_id,service_id\n"+
			"t1,r1,sv1\n"+
			"t2,r9,sv1\n")
	b.set("stop_times.txt", defaultStopTimesCSV+"t2,1,09:00:00,09:00:00,s1\n")
	result, conn := loadFeed(t, b)

	errs := errorsOfKind(collectErrors(t, conn, result.Namespace), ErrReferentialIntegrity)
	require.Len(t, errs, 1)
	assert.Equal(t, "trips", errs[0].Table)
	assert.Equal(t, "r9", errs[0].BadValue)
	assert.Equal(t, int64(3), errs[0].Line)
}

// Stray whitespace around a key is trimmed before storage, so references
// to the trimmed value resolve.
func TestLoadTrimsKeyWhitespace(t *testing.T) {
	result, conn := loadFeed(t, newFeedBuilder().
		set("stops.txt", "stop_id,stop_name,stop_lat,stop_lon\n"+
			" s1 ,First St,40.1,-74.05\n"+
			"s2,Second St,40.12,-74.04\n"))

	assert.Equal(t, 0, result.ErrorCount)

	rows := collectRows(t, conn, result.Namespace, "stops")
	require.Len(t, rows, 2)
	assert.Equal(t, "s1", rows[0].Values["stop_id"])
}

func TestLoadFareNetworkTables(t *testing.T) {
	b := newFeedBuilder().
		set("networks.txt", "network_id,network_name\nn1,North\n").
		set("route_networks.txt", "route_id,network_id\nr1,n1\n").
		set("fare_media.txt", "fare_media_id,fare_media_name,fare_media_type\nm1,Card,2\n").
		set("fare_products.txt", "fare_product_id,fare_media_id,amount,currency\np1,m1,2.50,USD\n").
		set("fare_leg_rules.txt", "leg_group_id,network_id,fare_product_id\nlg1,n1,p1\n").
		set("fare_transfer_rules.txt", "from_leg_group_id,to_leg_group_id,fare_transfer_type,fare_product_id\nlg1,lg1,0,p1\n").
		set("timeframe.txt", "timeframe_group_id,start_time,end_time,service_id\ntf1,08:00:00,10:00:00,sv1\n").
		set("location_groups.txt", "location_group_id,location_group_name\ng1,Downtown\n").
		set("location_group_stops.txt", "location_group_id,stop_id\ng1,s1\n")

	result, conn := loadFeed(t, b)
	assert.Equal(t, 0, result.ErrorCount)

	loaded := []string{
		"networks", "route_networks", "fare_media", "fare_products",
		"fare_leg_rules", "fare_transfer_rules", "timeframe",
		"location_groups", "location_group_stops",
	}
	for _, table := range loaded {
		assert.Len(t, collectRows(t, conn, result.Namespace, table), 1, table)
	}
}

func TestLoadFareProductUnknownMedia(t *testing.T) {
	result, conn := loadFeed(t, newFeedBuilder().
		set("fare_products.txt", "fare_product_id,fare_media_id,amount,currency\np1,m9,2.50,USD\n"))

	errs := errorsOfKind(collectErrors(t, conn, result.Namespace), ErrReferentialIntegrity)
	require.Len(t, errs, 1)
	assert.Equal(t, "fare_products", errs[0].Table)
	assert.Equal(t, "m9", errs[0].BadValue)
}

func TestLoadBadValues(t *testing.T) {
	b := newFeedBuilder().set("routes.txt",
		"route_id,agency_id,route_short_name,route_type,route_color\n"+
			"r1,a1,10,99,zzzzzz\n")
	result, conn := loadFeed(t, b)

	errs := collectErrors(t, conn, result.Namespace)
	require.Len(t, errorsOfKind(errs, ErrNumberTooLarge), 1)
	require.Len(t, errorsOfKind(errs, ErrColorFormat), 1)

	rows := collectRows(t, conn, result.Namespace, "routes")
	require.Len(t, rows, 1)
	assert.Equal(t, IntMissing, rows[0].Values["route_type"])
	assert.Nil(t, rows[0].Values["route_color"])
	assert.Equal(t, "r1", rows[0].Values["route_id"])
}

func TestLoadWrongNumberOfFields(t *testing.T) {
	b := newFeedBuilder().set("stops.txt",
		"stop_id,stop_name,stop_lat,stop_lon\n"+
			"s1,First St,40.1,-74.05\n"+
			"sX,Broken,40.0,-74.0,extra\n"+
			"s2,Second St,40.12,-74.04\n")
	result, conn := loadFeed(t, b)

	errs := errorsOfKind(collectErrors(t, conn, result.Namespace), ErrWrongNumberOfFields)
	require.Len(t, errs, 1)
	assert.Equal(t, int64(3), errs[0].Line)
	assert.Equal(t, "5", errs[0].BadValue)

	// The malformed row is skipped; rows after it still load.
	rows := collectRows(t, conn, result.Namespace, "stops")
	require.Len(t, rows, 2)
	assert.Equal(t, "s2", rows[1].Values["stop_id"])
}

func TestLoadMultiAgencyRequiresID(t *testing.T) {
	b := newFeedBuilder().set("agency.txt",
		"agency_id,agency_name,agency_url,agency_timezone\n"+
			"a1,Transit Co,https://transit.example,America/New_York\n"+
			",Ferry Co,https://ferry.example,America/New_York\n")
	result, conn := loadFeed(t, b)

	errs := errorsOfKind(collectErrors(t, conn, result.Namespace), ErrAgencyIDRequired)
	require.Len(t, errs, 1)
	assert.Equal(t, "agency", errs[0].Table)
	assert.Equal(t, int64(3), errs[0].Line)
}

func TestLoadConditionallyRequiredStopFields(t *testing.T) {
	b := newFeedBuilder().set("stops.txt",
		"stop_id,stop_name,stop_lat,stop_lon,location_type,parent_station\n"+
			"s1,,40.1,-74.05,0,\n"+
			"s2,Platform A,40.12,-74.04,4,\n")
	b.set("stop_times.txt",
		"trip_id,stop_sequence,arrival_time,departure_time,stop_id\n"+
			"t1,1,08:00:00,08:00:00,s1\n")
	result, conn := loadFeed(t, b)

	errs := errorsOfKind(collectErrors(t, conn, result.Namespace), ErrConditionallyRequired)
	require.Len(t, errs, 2)
	assert.Equal(t, "stop_name", errs[0].Info["field"])
	assert.Equal(t, int64(2), errs[0].Line)
	assert.Equal(t, "parent_station", errs[1].Info["field"])
	assert.Equal(t, int64(3), errs[1].Line)
}

func TestLoadMissingRequiredTable(t *testing.T) {
	result, conn := loadFeed(t, newFeedBuilder().remove("stop_times.txt"))

	errs := errorsOfKind(collectErrors(t, conn, result.Namespace), ErrMissingTable)
	require.Len(t, errs, 1)
	assert.Equal(t, "stop_times", errs[0].Table)

	// The destination table still exists, empty.
	assert.Empty(t, collectRows(t, conn, result.Namespace, "stop_times"))
	assert.Equal(t, 0, result.tableResult("stop_times").RowCount)
}

func TestLoadMissingOptionalTable(t *testing.T) {
	result, conn := loadFeed(t, newFeedBuilder().remove("calendar.txt").set("calendar_dates.txt",
		"service_id,date,exception_type\n"+
			"sv1,20240115,1\n"))
	assert.Equal(t, 0, result.ErrorCount)
	assert.Empty(t, collectRows(t, conn, result.Namespace, "calendar"))
	assert.Len(t, collectRows(t, conn, result.Namespace, "calendar_dates"), 1)
}

func TestLoadZeroByteTable(t *testing.T) {
	result, conn := loadFeed(t, newFeedBuilder().set("levels.txt", ""))

	levels := result.tableResult("levels")
	assert.Empty(t, levels.FatalError)
	assert.Equal(t, 0, levels.RowCount)

	// The table exists, empty, and the file is remembered so an export
	// reproduces it.
	assert.Empty(t, collectRows(t, conn, result.Namespace, "levels"))
	assert.Equal(t, []string{"levels"}, collectEmptyFiles(t, conn, result.Namespace))

	// Everything else is unaffected.
	assert.Empty(t, result.tableResult("stops").FatalError)
	assert.Len(t, collectRows(t, conn, result.Namespace, "stops"), 2)
}

func TestLoadHeaderOnlyTable(t *testing.T) {
	result, conn := loadFeed(t, newFeedBuilder().
		set("levels.txt", "level_id,level_index,level_name\n"))

	levels := result.tableResult("levels")
	assert.Empty(t, levels.FatalError)
	assert.Equal(t, 0, levels.RowCount)
	assert.Equal(t, 0, result.ErrorCount)

	assert.Empty(t, collectRows(t, conn, result.Namespace, "levels"))
	assert.Equal(t, []string{"levels"}, collectEmptyFiles(t, conn, result.Namespace))
}

func collectEmptyFiles(t *testing.T, conn *sqlite.Conn, namespace string) []string {
	t.Helper()
	var names []string
	q := fmt.Sprintf("SELECT table_name FROM %s_empty_files", namespace)
	require.NoError(t, sqlitex.Exec(conn, q, func(stmt *sqlite.Stmt) error {
		names = append(names, stmt.GetText("table_name"))
		return nil
	}))
	return names
}

func TestLoadTableInSubdirectory(t *testing.T) {
	b := newFeedBuilder().remove("agency.txt").set("gtfs/agency.txt", defaultAgencyCSV)
	result, conn := loadFeed(t, b)

	errs := errorsOfKind(collectErrors(t, conn, result.Namespace), ErrTableInSubdirectory)
	require.Len(t, errs, 1)
	assert.Equal(t, "gtfs/agency.txt", errs[0].BadValue)

	assert.Equal(t, 1, result.tableResult("agency").RowCount)
}

func TestLoadDuplicateHeader(t *testing.T) {
	b := newFeedBuilder().set("stops.txt",
		"stop_id,stop_name,stop_name,stop_lat,stop_lon\n"+
			"s1,First St,Shadowed,40.1,-74.05\n"+
			"s2,Second St,Shadowed,40.12,-74.04\n")
	result, conn := loadFeed(t, b)

	errs := errorsOfKind(collectErrors(t, conn, result.Namespace), ErrDuplicateHeader)
	require.Len(t, errs, 1)
	assert.Equal(t, int64(1), errs[0].Line)

	// The first column wins.
	rows := collectRows(t, conn, result.Namespace, "stops")
	require.Len(t, rows, 2)
	assert.Equal(t, "First St", rows[0].Values["stop_name"])
}

func TestLoadSanitizesHeaders(t *testing.T) {
	b := newFeedBuilder().set("stops.txt",
		"stop_id,Stop-Name,stop_lat,stop_lon\n"+
			"s1,First St,40.1,-74.05\n")
	b.set("stop_times.txt",
		"trip_id,stop_sequence,arrival_time,departure_time,stop_id\n"+
			"t1,1,08:00:00,08:00:00,s1\n")
	result, conn := loadFeed(t, b)

	errs := errorsOfKind(collectErrors(t, conn, result.Namespace), ErrColumnNameUnsafe)
	require.Len(t, errs, 1)
	assert.Equal(t, "Stop-Name", errs[0].BadValue)

	rows := collectRows(t, conn, result.Namespace, "stops")
	require.Len(t, rows, 1)
	assert.Equal(t, "First St", rows[0].Values["stopname"])
}

func TestLoadKeepsUnknownColumns(t *testing.T) {
	b := newFeedBuilder().set("stops.txt",
		"stop_id,stop_name,stop_lat,stop_lon,vehicle_charging\n"+
			"s1,First St,40.1,-74.05,yes\n"+
			"s2,Second St,40.12,-74.04,\n")
	result, conn := loadFeed(t, b)

	assert.Equal(t, 0, result.ErrorCount)

	rows := collectRows(t, conn, result.Namespace, "stops")
	require.Len(t, rows, 2)
	assert.Equal(t, "yes", rows[0].Values["vehicle_charging"])
	assert.Nil(t, rows[1].Values["vehicle_charging"])
}

func TestLoadBOM(t *testing.T) {
	b := newFeedBuilder().set("agency.txt", "\ufeff"+defaultAgencyCSV)
	result, conn := loadFeed(t, b)

	assert.Equal(t, 0, result.ErrorCount)
	rows := collectRows(t, conn, result.Namespace, "agency")
	require.Len(t, rows, 1)
	assert.Equal(t, "a1", rows[0].Values["agency_id"])
}

func TestLoadPreservesOtherFiles(t *testing.T) {
	b := newFeedBuilder().set("notes.md", "# Release notes\n")
	result, conn := loadFeed(t, b)

	var names []string
	var contents string
	err := sqlitex.Exec(conn,
		fmt.Sprintf("SELECT name, contents FROM %s_other_files", result.Namespace),
		func(stmt *sqlite.Stmt) error {
			names = append(names, stmt.GetText("name"))
			contents = stmt.GetText("contents")
			return nil
		})
	require.NoError(t, err)
	assert.Equal(t, []string{"notes.md"}, names)
	assert.Equal(t, "# Release notes\n", contents)
}

func TestLoadOddTableName(t *testing.T) {
	b := newFeedBuilder().set("Stops Copy (2).txt", "stop_id\nsZ\n")
	result, conn := loadFeed(t, b)

	errs := errorsOfKind(collectErrors(t, conn, result.Namespace), ErrTableNameFormat)
	require.Len(t, errs, 1)
	assert.Equal(t, "Stops Copy (2).txt", errs[0].BadValue)
}

func TestSnapshot(t *testing.T) {
	dir := testTempdir(t)
	zipPath := newFeedBuilder().build(t, dir+"/feed.zip")
	dbPath := dir + "/store.db"

	loaded, err := Load(zipPath, dbPath)
	require.NoError(t, err)

	snapNS, err := Snapshot(dbPath, loaded.Namespace)
	require.NoError(t, err)
	assert.NotEqual(t, loaded.Namespace, snapNS)

	feeds, err := ListFeeds(dbPath)
	require.NoError(t, err)
	require.Len(t, feeds, 2)
	var snap *FeedEntry
	for i := range feeds {
		if feeds[i].Namespace == snapNS {
			snap = &feeds[i]
		}
	}
	require.NotNil(t, snap)
	assert.Equal(t, loaded.Namespace, snap.SnapshotOf)

	conn := openTestDB(t, dbPath)
	assert.Equal(t,
		collectRows(t, conn, loaded.Namespace, "stops"),
		collectRows(t, conn, snapNS, "stops"))
}

func TestSnapshotUnknownNamespace(t *testing.T) {
	dir := testTempdir(t)
	zipPath := newFeedBuilder().build(t, dir+"/feed.zip")
	dbPath := dir + "/store.db"
	_, err := Load(zipPath, dbPath)
	require.NoError(t, err)

	_, err = Snapshot(dbPath, "ns000000000000")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unknown namespace")
}
