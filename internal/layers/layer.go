// Package layers loads route layers, the server-side counterpart of a map
// layer group: one route's line and stops bundled with its style.
package layers

import (
	"time"

	"github.com/paulmach/orb/geojson"

	"github.com/transportforbandung/transitmap/internal/catalog"
)

// Style applied to layers when the catalog has no color for a route.
const (
	DefaultColor  = "#3388ff"
	LineWeight    = 4
	UnnamedStop   = "Unnamed Stop"
	sourceUnknown = "unknown"
)

// Layer is the drawable data of one route.
type Layer struct {
	LoadedAt   time.Time                  `json:"loadedAt"`
	Ways       *geojson.FeatureCollection `json:"-"`
	Stops      *geojson.FeatureCollection `json:"-"`
	RelationID string                     `json:"relationId"`
	Name       string                     `json:"name"`
	Color      string                     `json:"color"`
	Source     string                     `json:"source"`
	Type       catalog.DisplayType        `json:"type"`
}

func newLayer(route catalog.Route, ways, stops *geojson.FeatureCollection, source string) *Layer {
	if ways == nil {
		ways = geojson.NewFeatureCollection()
	}
	if stops == nil {
		stops = geojson.NewFeatureCollection()
	}
	if source == "" {
		source = sourceUnknown
	}

	return &Layer{
		LoadedAt:   time.Now(),
		Ways:       ways,
		Stops:      stops,
		RelationID: route.RelationID,
		Name:       route.Name,
		Color:      route.Color,
		Source:     source,
		Type:       route.Type,
	}
}

// FeatureCollection merges ways then stops into a styled collection ready
// for a map client. The layer itself is not modified.
func (l *Layer) FeatureCollection() *geojson.FeatureCollection {
	color := l.Color
	if color == "" {
		color = DefaultColor
	}
	name := l.Name
	if name == "" {
		name = l.RelationID
	}

	out := geojson.NewFeatureCollection()
	out.ExtraMembers = geojson.Properties{
		"relationId":  l.RelationID,
		"name":        name,
		"color":       color,
		"displayType": string(l.Type),
		"source":      l.Source,
	}

	for _, f := range l.Ways.Features {
		if f.Geometry == nil {
			continue
		}
		switch f.Geometry.GeoJSONType() {
		case "LineString", "MultiLineString":
		default:
			continue
		}

		c := copyFeature(f)
		c.Properties["route_name"] = name
		c.Properties["stroke"] = color
		c.Properties["stroke-width"] = LineWeight
		out.Append(c)
	}

	for _, f := range l.Stops.Features {
		if f.Geometry == nil || f.Geometry.GeoJSONType() != "Point" {
			continue
		}

		c := copyFeature(f)
		if s, _ := c.Properties["name"].(string); s == "" {
			c.Properties["name"] = UnnamedStop
		}
		c.Properties["marker-color"] = color
		out.Append(c)
	}

	return out
}

func copyFeature(f *geojson.Feature) *geojson.Feature {
	c := geojson.NewFeature(f.Geometry)
	c.ID = f.ID
	for k, v := range f.Properties {
		c.Properties[k] = v
	}

	return c
}
