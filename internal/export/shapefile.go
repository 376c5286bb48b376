package export

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/jonas-p/go-shp"
	"github.com/paulmach/orb"
	"github.com/paulmach/orb/geojson"
)

// wgs84 is the EPSG:4326 definition written next to every shapefile.
const wgs84 = `GEOGCS["GCS_WGS_1984",DATUM["D_WGS_1984",SPHEROID["WGS_1984",6378137.0,298.257223563]],PRIMEM["Greenwich",0.0],UNIT["Degree",0.0174532925199433]]`

// Attributes are stamped on every exported shape.
type Attributes struct {
	RouteName string
	Color     string
	Source    string
}

// tagFields are OSM tags copied from feature properties. DBF caps field
// names at ten characters.
var tagFields = []string{
	"ref",
	"highway",
	"public_tra",
	"bus",
	"shelter",
	"bench",
	"network",
	"operator",
}

// tagKeys maps truncated field names back to their OSM keys.
var tagKeys = map[string]string{
	"public_tra": "public_transport",
}

var attributeFields = append([]shp.Field{
	shp.StringField("route_name", 128),
	shp.StringField("color", 16),
	shp.StringField("source", 64),
	shp.StringField("name", 128),
	shp.StringField("osm_id", 24),
}, tagShpFields()...)

func tagShpFields() []shp.Field {
	fields := make([]shp.Field, len(tagFields))
	for i, name := range tagFields {
		fields[i] = shp.StringField(name, 64)
	}
	return fields
}

// WriteShapefiles writes route_lines.shp and stops.shp into dir. A file is
// only created when the route has shapes of that kind.
func WriteShapefiles(dir string, fc *geojson.FeatureCollection, attrs Attributes) error {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return err
	}

	if _, err := WriteLines(filepath.Join(dir, "route_lines.shp"), fc, attrs); err != nil {
		return err
	}
	_, err := WritePoints(filepath.Join(dir, "stops.shp"), fc, attrs)

	return err
}

// WriteLines writes LineString and MultiLineString features as a POLYLINE
// shapefile and returns how many were written.
func WriteLines(path string, fc *geojson.FeatureCollection, attrs Attributes) (int, error) {
	var features []*geojson.Feature
	var shapes []shp.Shape
	for _, f := range fc.Features {
		var parts [][]shp.Point
		switch g := f.Geometry.(type) {
		case orb.LineString:
			parts = [][]shp.Point{shpPoints(g)}
		case orb.MultiLineString:
			for _, ls := range g {
				parts = append(parts, shpPoints(ls))
			}
		default:
			continue
		}
		features = append(features, f)
		shapes = append(shapes, shp.NewPolyLine(parts))
	}

	return writeShapes(path, shp.POLYLINE, shapes, features, attrs)
}

// WritePoints writes Point features as a POINT shapefile and returns how many
// were written.
func WritePoints(path string, fc *geojson.FeatureCollection, attrs Attributes) (int, error) {
	var features []*geojson.Feature
	var shapes []shp.Shape
	for _, f := range fc.Features {
		p, ok := f.Geometry.(orb.Point)
		if !ok {
			continue
		}
		features = append(features, f)
		shapes = append(shapes, &shp.Point{X: p.Lon(), Y: p.Lat()})
	}

	return writeShapes(path, shp.POINT, shapes, features, attrs)
}

func writeShapes(path string, kind shp.ShapeType, shapes []shp.Shape, features []*geojson.Feature, attrs Attributes) (int, error) {
	if len(shapes) == 0 {
		return 0, nil
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return 0, err
	}

	w, err := shp.Create(path, kind)
	if err != nil {
		return 0, fmt.Errorf("create %s: %w", path, err)
	}
	defer w.Close()

	w.SetFields(attributeFields)

	for i, s := range shapes {
		row := int(w.Write(s))
		values := []string{
			attrs.RouteName,
			attrs.Color,
			attrs.Source,
			featureName(features[i], ""),
			featureID(features[i]),
		}
		for _, field := range tagFields {
			values = append(values, featureTag(features[i], field))
		}
		for field, v := range values {
			if err := w.WriteAttribute(row, field, v); err != nil {
				return i, fmt.Errorf("write attribute: %w", err)
			}
		}
	}

	prj := strings.TrimSuffix(path, filepath.Ext(path)) + ".prj"
	if err := os.WriteFile(prj, []byte(wgs84), 0o644); err != nil {
		return len(shapes), err
	}

	return len(shapes), nil
}

func shpPoints(ls orb.LineString) []shp.Point {
	out := make([]shp.Point, len(ls))
	for i, p := range ls {
		out[i] = shp.Point{X: p.Lon(), Y: p.Lat()}
	}
	return out
}

func featureID(f *geojson.Feature) string {
	switch v := f.Properties["id"].(type) {
	case float64:
		return strconv.FormatInt(int64(v), 10)
	case int64:
		return strconv.FormatInt(v, 10)
	case int:
		return strconv.Itoa(v)
	case string:
		return v
	}
	return ""
}

func featureTag(f *geojson.Feature, field string) string {
	key := field
	if k, ok := tagKeys[field]; ok {
		key = k
	}
	if v, ok := f.Properties[key].(string); ok {
		return v
	}
	return ""
}
