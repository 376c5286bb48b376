package export

import (
	"bytes"
	"io"
	"os"
	"path/filepath"

	"github.com/paulmach/orb"
	"github.com/paulmach/orb/geojson"
	"github.com/twpayne/go-kml/v3"

	"github.com/transportforbandung/transitmap/internal/catalog"
)

const (
	stopIcon  = "http://maps.google.com/mapfiles/kml/pushpin/ylw-pushpin.png"
	lineWidth = 4
)

// WriteKML renders a route's features as a KML document. Lines carry the
// route color and a fixed width, stops a yellow pushpin.
func WriteKML(w io.Writer, route catalog.Route, fc *geojson.FeatureCollection) error {
	lineColor := catalog.RGBA(route.Color)
	lineStyle := func() kml.Element {
		return kml.Style(kml.LineStyle(kml.Color(lineColor), kml.Width(lineWidth)))
	}

	children := []kml.Element{kml.Name(route.Name)}
	for _, f := range fc.Features {
		switch g := f.Geometry.(type) {
		case orb.LineString:
			children = append(children, kml.Placemark(
				kml.Name(featureName(f, "Route Segment")),
				lineStyle(),
				lineString(g),
			))

		case orb.MultiLineString:
			lines := make([]kml.Element, 0, len(g))
			for _, ls := range g {
				lines = append(lines, lineString(ls))
			}
			children = append(children, kml.Placemark(
				kml.Name(featureName(f, "Route Segment")),
				lineStyle(),
				kml.MultiGeometry(lines...),
			))

		case orb.Point:
			children = append(children, kml.Placemark(
				kml.Name(featureName(f, "Stop")),
				kml.Style(kml.IconStyle(kml.Icon(kml.Href(stopIcon)))),
				kml.Point(kml.Coordinates(coordinate(g))),
			))
		}
	}

	return kml.KML(kml.Document(children...)).WriteIndent(w, "", "  ")
}

// WriteKMLFile writes the KML document to path, creating parent directories.
func WriteKMLFile(path string, route catalog.Route, fc *geojson.FeatureCollection) error {
	var buf bytes.Buffer
	if err := WriteKML(&buf, route, fc); err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}

	return os.WriteFile(path, buf.Bytes(), 0o644)
}

func featureName(f *geojson.Feature, fallback string) string {
	if name, ok := f.Properties["name"].(string); ok && name != "" {
		return name
	}
	return fallback
}

func lineString(ls orb.LineString) kml.Element {
	coords := make([]kml.Coordinate, len(ls))
	for i, p := range ls {
		coords[i] = coordinate(p)
	}
	return kml.LineString(kml.Coordinates(coords...))
}

func coordinate(p orb.Point) kml.Coordinate {
	return kml.Coordinate{Lon: p.Lon(), Lat: p.Lat()}
}
