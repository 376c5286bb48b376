// Package export converts cached route GeoJSON into download and GIS formats.
package export

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"
	"unicode"

	"github.com/paulmach/orb/geojson"
	"github.com/rs/zerolog/log"

	"github.com/transportforbandung/transitmap/internal/catalog"
	"github.com/transportforbandung/transitmap/internal/geo"
)

// Format is an ExportAll output format.
type Format string

const (
	// FormatKML writes one styled KML document per route.
	FormatKML Format = "kml"
	// FormatShapefile writes route_lines.shp and stops.shp per route directory.
	FormatShapefile Format = "shp"
	// FormatShapefileLines writes one line-only shapefile per route.
	FormatShapefileLines Format = "shp-lines"
)

// DefaultSource is stamped into exported attributes when none is configured.
const DefaultSource = "Transport for Bandung"

// Combined bundles a route's ways and, for ways_with_points routes, its stops
// into one collection. Terminal-only stops are not part of the download.
func Combined(ways, stops *geojson.FeatureCollection, t catalog.DisplayType) *geojson.FeatureCollection {
	if t != catalog.WaysWithPoints {
		stops = nil
	}

	return geo.Merge(ways, stops)
}

// DownloadName is the attachment file name of a combined route download.
func DownloadName(relationID string, t catalog.DisplayType, date time.Time) string {
	kind := "jalur"
	if t == catalog.WaysWithPoints {
		kind = "jalur-halte"
	}

	return fmt.Sprintf("relation-%s-tfb-%s-%s.geojson", relationID, kind, date.Format(time.DateOnly))
}

// SanitizeFilename keeps letters, digits, spaces, dashes and underscores and
// replaces everything else with an underscore.
func SanitizeFilename(name string) string {
	var b strings.Builder
	for _, r := range name {
		if unicode.IsLetter(r) || unicode.IsDigit(r) || r == ' ' || r == '-' || r == '_' {
			b.WriteRune(r)
			continue
		}
		b.WriteRune('_')
	}

	return strings.TrimSpace(b.String())
}

// ReadRouteDir merges every .geojson file of a cached route directory in
// file name order.
func ReadRouteDir(dir string) (*geojson.FeatureCollection, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, err
	}

	names := make([]string, 0, len(entries))
	for _, e := range entries {
		if !e.IsDir() && strings.HasSuffix(e.Name(), ".geojson") {
			names = append(names, e.Name())
		}
	}
	sort.Strings(names)

	collections := make([]*geojson.FeatureCollection, 0, len(names))
	for _, name := range names {
		fc, err := geo.ReadFile(filepath.Join(dir, name))
		if err != nil {
			return nil, err
		}
		collections = append(collections, fc)
	}

	return geo.Merge(collections...), nil
}

// Options tunes ExportAll.
type Options struct {
	Format Format
	Source string
}

// Report lists the outcome of ExportAll per relation id.
type Report struct {
	Written []string
	Skipped []string
}

// ExportAll writes every catalog route found under dataDir into outDir.
// Routes without a cache directory or without features are skipped.
func ExportAll(c *catalog.Catalog, dataDir, outDir string, opts Options) (*Report, error) {
	if opts.Source == "" {
		opts.Source = DefaultSource
	}
	if err := os.MkdirAll(outDir, 0o755); err != nil {
		return nil, err
	}

	report := &Report{}
	for _, route := range c.Unique() {
		routeDir := filepath.Join(dataDir, route.RelationID)
		if _, err := os.Stat(routeDir); err != nil {
			log.Warn().Str("relation", route.RelationID).Str("dir", routeDir).Msg("Skipping missing directory")
			report.Skipped = append(report.Skipped, route.RelationID)
			continue
		}

		fc, err := ReadRouteDir(routeDir)
		if err != nil {
			return report, fmt.Errorf("relation %s: %w", route.RelationID, err)
		}
		if len(fc.Features) == 0 {
			log.Warn().Str("relation", route.RelationID).Str("route", route.Name).Msg("No features for route")
			report.Skipped = append(report.Skipped, route.RelationID)
			continue
		}

		path, err := exportRoute(route, fc, outDir, opts)
		if err != nil {
			return report, fmt.Errorf("relation %s: %w", route.RelationID, err)
		}

		log.Info().Str("relation", route.RelationID).Str("path", path).Msg("Saved export")
		report.Written = append(report.Written, route.RelationID)
	}

	return report, nil
}

func exportRoute(route catalog.Route, fc *geojson.FeatureCollection, outDir string, opts Options) (string, error) {
	attrs := Attributes{RouteName: route.Name, Color: route.Color, Source: opts.Source}

	switch opts.Format {
	case FormatKML:
		path := filepath.Join(outDir, SanitizeFilename(route.Name)+".kml")
		return path, WriteKMLFile(path, route, fc)

	case FormatShapefile:
		dir := filepath.Join(outDir, SanitizeFilename(route.Name))
		return dir, WriteShapefiles(dir, fc, attrs)

	case FormatShapefileLines:
		name := SanitizeFilename(strings.ReplaceAll(route.Name, ":", " -"))
		path := filepath.Join(outDir, name+".shp")
		_, err := WriteLines(path, fc, attrs)
		return path, err
	}

	return "", fmt.Errorf("unknown export format %q", opts.Format)
}
