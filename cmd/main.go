package main

import (
	"fmt"
	"os"
	"path"
	"strings"

	"crawshaw.io/sqlite"
	"github.com/spf13/pflag"
	"github.com/transitworks/gtfsdb"
)

func usageAndDie() {
	fmt.Println("Example usage:\n" +
		"    gtfsdb --load <feed.zip> --db <store.db>\n" +
		"    gtfsdb --export <namespace> --db <store.db> --out <feed.zip>\n" +
		"    gtfsdb --snapshot <namespace> --db <store.db>\n" +
		"    gtfsdb --clip <namespace> --db <store.db> --clip-feature <feature_geojson.json>\n" +
		"    gtfsdb --feeds --db <store.db>\n" +
		"    gtfsdb --errors <namespace> --db <store.db>")
	os.Exit(1)
}

func main() {
	loadPath := pflag.StringP("load", "l", "", "Load a GTFS zip into the store")
	exportNS := pflag.StringP("export", "e", "", "Export a namespace to a GTFS zip")
	snapshotNS := pflag.StringP("snapshot", "s", "", "Snapshot a namespace into a fresh copy")
	clipNS := pflag.StringP("clip", "c", "", "Clip a namespace to a GeoJSON feature")
	listFeeds := pflag.Bool("feeds", false, "List loaded feeds")
	errorsNS := pflag.String("errors", "", "Print the error report for a namespace")

	dbPath := pflag.String("db", "", "Path to the store")
	output := pflag.StringP("out", "o", "", "Path to write output to")
	clipFeaturePath := pflag.String("clip-feature", "", "GeoJSON feature file for --clip")

	pflag.Parse()

	primaryCount := 0
	for _, set := range []bool{*loadPath != "", *exportNS != "", *snapshotNS != "", *clipNS != "", *listFeeds, *errorsNS != ""} {
		if set {
			primaryCount++
		}
	}
	if primaryCount != 1 {
		usageAndDie()
	}

	var err error
	switch {
	case *loadPath != "":
		storePath := outputPathOrDefault(*loadPath, *dbPath, ".zip", ".db")
		var result *gtfsdb.FeedLoadResult
		result, err = gtfsdb.Load(*loadPath, storePath)
		if err == nil {
			printLoadResult(result)
		}
	case *exportNS != "":
		if *dbPath == "" {
			usageAndDie()
		}
		outputPath := outputPathOrDefault(*dbPath, *output, ".db", ".zip")
		err = gtfsdb.Export(*dbPath, *exportNS, outputPath)
	case *snapshotNS != "":
		if *dbPath == "" {
			usageAndDie()
		}
		var target string
		target, err = gtfsdb.Snapshot(*dbPath, *snapshotNS)
		if err == nil {
			fmt.Println("Snapshot namespace:", target)
		}
	case *clipNS != "":
		if *dbPath == "" || *clipFeaturePath == "" {
			usageAndDie()
		}
		var feature []byte
		feature, err = os.ReadFile(*clipFeaturePath)
		if err != nil {
			break
		}
		featureName := trimFileExt(path.Base(*clipFeaturePath))
		outputPath := outputPathOrDefault(*dbPath, *output, ".db", fmt.Sprintf("_%s.db", featureName))
		err = gtfsdb.Clip(*dbPath, *clipNS, string(feature), outputPath)
	case *listFeeds:
		if *dbPath == "" {
			usageAndDie()
		}
		var feeds []gtfsdb.FeedEntry
		feeds, err = gtfsdb.ListFeeds(*dbPath)
		for _, feed := range feeds {
			line := fmt.Sprintf("%s  %s  %s", feed.Namespace, feed.LoadedAt, feed.FeedID)
			if feed.SnapshotOf != "" {
				line += "  (snapshot of " + feed.SnapshotOf + ")"
			}
			fmt.Println(line)
		}
	case *errorsNS != "":
		if *dbPath == "" {
			usageAndDie()
		}
		err = printErrors(*dbPath, *errorsNS)
	}

	if err != nil {
		fmt.Printf("Error: %s\n", err)
		os.Exit(1)
	} else {
		fmt.Println("All done")
	}
}

func printLoadResult(result *gtfsdb.FeedLoadResult) {
	fmt.Println("Namespace:", result.Namespace)
	for _, t := range result.Tables {
		if t.RowCount == 0 && t.ErrorCount == 0 && t.FatalError == "" {
			continue
		}
		line := fmt.Sprintf("  %-20s %8d rows  %6d errors", t.Table, t.RowCount, t.ErrorCount)
		if t.FatalError != "" {
			line += "  FATAL: " + t.FatalError
		}
		fmt.Println(line)
	}
	fmt.Printf("Total errors: %d\n", result.ErrorCount)
}

func printErrors(dbPath, namespace string) error {
	conn, err := sqlite.OpenConn(dbPath, sqlite.SQLITE_OPEN_READONLY)
	if err != nil {
		return err
	}
	defer func() { _ = conn.Close() }()
	return gtfsdb.ReadErrors(conn, namespace, func(e gtfsdb.GTFSError) error {
		fmt.Println(e.Error())
		return nil
	})
}

func outputPathOrDefault(inputPath string, outputPath string, suffixToTrim string, newSuffix string) string {
	if outputPath != "" {
		return outputPath
	}
	inputPath = path.Clean(inputPath)
	return strings.TrimSuffix(path.Base(inputPath), suffixToTrim) + newSuffix
}

func trimFileExt(name string) string {
	i := strings.LastIndex(name, ".")
	if i == -1 {
		return name
	} else {
		return name[:i]
	}
}
