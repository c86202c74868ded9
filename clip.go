package gtfsdb

import (
	"fmt"
	"log/slog"
	"strings"

	"crawshaw.io/sqlite"
	"crawshaw.io/sqlite/sqlitex"
	"github.com/tidwall/geojson"
	"github.com/tidwall/geojson/geometry"
)

// Clip writes a copy of the store to outputPath with the given namespace
// reduced to the stops inside clipFeature and everything reachable from
// them. Other namespaces in the store are copied untouched.
func Clip(dbPath string, namespace string, clipFeature string, outputPath string) error {
	feature, err := geojson.Parse(clipFeature, &geojson.ParseOptions{RequireValid: true})
	if err != nil {
		return fmt.Errorf("parse clip feature: %w", err)
	}

	slog.Info(fmt.Sprintf("Writing a clipped copy of %s:%s to %s (clipFeature has %d points)",
		dbPath, namespace, outputPath, feature.NumPoints()))

	inputDB, err := sqlite.OpenConn(dbPath, sqlite.SQLITE_OPEN_READONLY)
	if err != nil {
		return err
	}
	defer func() {
		if inputDB != nil {
			_ = inputDB.Close()
		}
	}()

	db, err := inputDB.BackupToDB("", outputPath)
	if err != nil {
		return err
	}
	defer func() {
		if db != nil {
			_ = db.Close()
		}
	}()

	err = inputDB.Close()
	inputDB = nil
	if err != nil {
		return err
	}
	slog.Info("Copied input db")

	if err := sqlitex.ExecTransient(db, fmt.Sprintf("CREATE TABLE %s_stops_inside (stop_id TEXT)", namespace), sqlitexNoop); err != nil {
		return err
	}

	stopsInsideCount := 0
	totalStopCount := 0
	err = sqlitex.Exec(db, fmt.Sprintf("SELECT stop_id, stop_lon, stop_lat FROM %s_stops", namespace), func(stmt *sqlite.Stmt) error {
		stopID := stmt.GetText("stop_id")
		totalStopCount++

		lng := stmt.GetFloat("stop_lon")
		lat := stmt.GetFloat("stop_lat")
		if lng == DoubleMissing || lat == DoubleMissing {
			return nil
		}
		point := geojson.NewPoint(geometry.Point{X: lng, Y: lat})

		if feature.Contains(point) {
			stopsInsideCount++
			return sqlitex.Exec(db, fmt.Sprintf("INSERT INTO %s_stops_inside (stop_id) VALUES (?)", namespace), sqlitexNoop, stopID)
		}
		return nil
	})
	if err != nil {
		return err
	}
	slog.Info(fmt.Sprintf("%d of %d stops are inside", stopsInsideCount, totalStopCount))

	script := strings.ReplaceAll(`
DELETE FROM {ns}_trips
	WHERE trip_id NOT IN (SELECT DISTINCT trip_id FROM {ns}_stop_times WHERE stop_id IN {ns}_stops_inside);

DELETE FROM {ns}_stop_times WHERE trip_id NOT IN (SELECT DISTINCT trip_id FROM {ns}_trips);

DELETE FROM {ns}_stops WHERE stop_id NOT IN
	(SELECT DISTINCT stop_id FROM {ns}_stop_times
	 UNION SELECT DISTINCT parent_station FROM {ns}_stops WHERE parent_station IS NOT NULL);

DELETE FROM {ns}_stop_areas WHERE stop_id NOT IN (SELECT DISTINCT stop_id FROM {ns}_stops);
DELETE FROM {ns}_areas WHERE area_id NOT IN (SELECT DISTINCT area_id FROM {ns}_stop_areas);

DELETE FROM {ns}_routes WHERE route_id NOT IN (SELECT DISTINCT route_id FROM {ns}_trips);

DELETE FROM {ns}_agency WHERE agency_id NOT IN (SELECT DISTINCT agency_id FROM {ns}_routes);

DELETE FROM {ns}_calendar WHERE service_id NOT IN (SELECT DISTINCT service_id FROM {ns}_trips);
DELETE FROM {ns}_calendar_dates WHERE service_id NOT IN (SELECT DISTINCT service_id FROM {ns}_trips);

DELETE FROM {ns}_shapes WHERE shape_id NOT IN (SELECT DISTINCT shape_id FROM {ns}_trips WHERE shape_id IS NOT NULL);

DELETE FROM {ns}_transfers WHERE
  (from_stop_id IS NOT NULL AND from_stop_id NOT IN (SELECT DISTINCT stop_id FROM {ns}_stops)) OR
  (to_stop_id IS NOT NULL AND to_stop_id NOT IN (SELECT DISTINCT stop_id FROM {ns}_stops)) OR
  (from_route_id IS NOT NULL AND from_route_id NOT IN (SELECT DISTINCT route_id FROM {ns}_routes)) OR
  (to_route_id IS NOT NULL AND to_route_id NOT IN (SELECT DISTINCT route_id FROM {ns}_routes)) OR
  (from_trip_id IS NOT NULL AND from_trip_id NOT IN (SELECT DISTINCT trip_id FROM {ns}_trips)) OR
  (to_trip_id IS NOT NULL AND to_trip_id NOT IN (SELECT DISTINCT trip_id FROM {ns}_trips));

DELETE FROM {ns}_pathways WHERE
  (from_stop_id IS NOT NULL AND from_stop_id NOT IN (SELECT DISTINCT stop_id FROM {ns}_stops)) OR
  (to_stop_id IS NOT NULL AND to_stop_id NOT IN (SELECT DISTINCT stop_id FROM {ns}_stops));

DELETE FROM {ns}_location_group_stops WHERE stop_id NOT IN (SELECT DISTINCT stop_id FROM {ns}_stops);

DELETE FROM {ns}_frequencies WHERE trip_id NOT IN (SELECT DISTINCT trip_id FROM {ns}_trips);

DELETE FROM {ns}_attributions WHERE
  (trip_id IS NOT NULL AND trip_id NOT IN (SELECT DISTINCT trip_id FROM {ns}_trips)) OR
  (route_id IS NOT NULL AND route_id NOT IN (SELECT DISTINCT route_id FROM {ns}_routes)) OR
  (agency_id IS NOT NULL AND agency_id NOT IN (SELECT agency_id FROM {ns}_agency));

DELETE FROM {ns}_fare_rules WHERE route_id IS NOT NULL AND route_id NOT IN (SELECT DISTINCT route_id FROM {ns}_routes);
DELETE FROM {ns}_fare_attributes WHERE
  (fare_id NOT IN (SELECT DISTINCT fare_id FROM {ns}_fare_rules)) OR
  (agency_id IS NOT NULL AND agency_id NOT IN (SELECT agency_id FROM {ns}_agency));

DELETE FROM {ns}_fare_leg_rules WHERE
  (from_area_id IS NOT NULL AND from_area_id NOT IN (SELECT DISTINCT area_id FROM {ns}_areas)) OR
  (to_area_id IS NOT NULL AND to_area_id NOT IN (SELECT DISTINCT area_id FROM {ns}_areas));

DELETE FROM {ns}_route_networks WHERE route_id NOT IN (SELECT DISTINCT route_id FROM {ns}_routes);

DELETE FROM {ns}_timeframe WHERE service_id NOT IN
  (SELECT DISTINCT service_id FROM {ns}_calendar UNION SELECT DISTINCT service_id FROM {ns}_calendar_dates);

DELETE FROM {ns}_booking_rules WHERE
  prior_notice_service_id IS NOT NULL AND
  prior_notice_service_id NOT IN
    (SELECT DISTINCT service_id FROM {ns}_calendar UNION SELECT DISTINCT service_id FROM {ns}_calendar_dates);

DROP TABLE {ns}_stops_inside;
`, "{ns}", namespace)
	if err := sqlitex.ExecScript(db, script); err != nil {
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
