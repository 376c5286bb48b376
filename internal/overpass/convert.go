package overpass

import (
	"github.com/paulmach/orb"
	"github.com/paulmach/orb/geojson"
)

// Ways converts way elements with geometry into LineString features.
// Other element types and ways without geometry are dropped.
func Ways(elements []Element) *geojson.FeatureCollection {
	fc := geojson.NewFeatureCollection()
	for _, el := range elements {
		if el.Type != TypeWay || len(el.Geometry) == 0 {
			continue
		}

		line := make(orb.LineString, 0, len(el.Geometry))
		for _, p := range el.Geometry {
			line = append(line, orb.Point{p.Lon, p.Lat})
		}

		fc.Append(feature(line, el))
	}

	return fc
}

// Nodes converts node elements into Point features.
func Nodes(elements []Element) *geojson.FeatureCollection {
	fc := geojson.NewFeatureCollection()
	for _, el := range elements {
		if el.Type != TypeNode {
			continue
		}
		fc.Append(feature(orb.Point{el.Lon, el.Lat}, el))
	}

	return fc
}

// feature sets the OSM id first so a literal "id" tag wins, like a spread.
func feature(g orb.Geometry, el Element) *geojson.Feature {
	f := geojson.NewFeature(g)
	f.Properties["id"] = el.ID
	for k, v := range el.Tags {
		f.Properties[k] = v
	}

	return f
}

// RelationIDs returns the ids of relation elements in order.
func RelationIDs(elements []Element) []int64 {
	ids := make([]int64, 0, len(elements))
	for _, el := range elements {
		if el.Type == TypeRelation {
			ids = append(ids, el.ID)
		}
	}

	return ids
}
