package stops

import (
	"fmt"
	"strings"

	"github.com/paulmach/orb"
	"github.com/paulmach/orb/geojson"
	"github.com/rs/zerolog/log"

	"github.com/transportforbandung/transitmap/internal/geo"
	"github.com/transportforbandung/transitmap/internal/layers"
)

// Stop is one bus stop from the census.
type Stop struct {
	Name     string  `json:"name,omitempty"`
	Shelter  string  `json:"shelter,omitempty"`
	Pole     string  `json:"pole,omitempty"`
	Category string  `json:"category"`
	Routes   []int64 `json:"routes"`
	ID       int64   `json:"id"`
	Lon      float64 `json:"lon"`
	Lat      float64 `json:"lat"`
}

// HasShelter reports whether the census category marks a shelter.
func (s Stop) HasShelter() bool {
	return strings.Contains(s.Category, "shelter_yes")
}

// Feature renders the stop as a GeoJSON point.
func (s Stop) Feature() *geojson.Feature {
	f := geojson.NewFeature(orb.Point{s.Lon, s.Lat})
	f.Properties["id"] = s.ID
	f.Properties["name"] = nilIfEmpty(s.Name)
	f.Properties["shelter"] = nilIfEmpty(s.Shelter)
	f.Properties["pole"] = nilIfEmpty(s.Pole)
	f.Properties["routes"] = s.Routes
	if s.Category != "" {
		f.Properties["category"] = s.Category
	}

	return f
}

func nilIfEmpty(s string) interface{} {
	if s == "" {
		return nil
	}
	return s
}

// Index holds the census in memory.
type Index struct {
	byID    map[int64]int
	stops   []Stop
	minZoom int
}

// NewIndex builds an index. Stops are hidden below minZoom.
func NewIndex(stops []Stop, minZoom int) *Index {
	idx := &Index{byID: make(map[int64]int, len(stops)), stops: stops, minZoom: minZoom}
	for i, s := range stops {
		idx.byID[s.ID] = i
	}

	return idx
}

// LoadIndex reads the merged census file.
func LoadIndex(path string, minZoom int) (*Index, error) {
	fc, err := geo.ReadFile(path)
	if err != nil {
		return nil, err
	}

	stops := make([]Stop, 0, len(fc.Features))
	for i, f := range fc.Features {
		s, err := FromFeature(f)
		if err != nil {
			log.Warn().Err(err).Int("feature", i).Str("path", path).Msg("Skipping malformed bus stop")
			continue
		}
		stops = append(stops, s)
	}

	return NewIndex(stops, minZoom), nil
}

// FromFeature decodes a census feature.
func FromFeature(f *geojson.Feature) (Stop, error) {
	p, ok := f.Geometry.(orb.Point)
	if !ok {
		return Stop{}, fmt.Errorf("geometry is %T, want point", f.Geometry)
	}

	id, ok := toInt64(f.Properties["id"])
	if !ok {
		return Stop{}, fmt.Errorf("missing numeric id")
	}

	s := Stop{
		ID:       id,
		Lon:      p.Lon(),
		Lat:      p.Lat(),
		Name:     f.Properties.MustString("name", ""),
		Shelter:  f.Properties.MustString("shelter", ""),
		Pole:     f.Properties.MustString("pole", ""),
		Category: f.Properties.MustString("category", DefaultCategory),
	}

	if raw, ok := f.Properties["routes"].([]interface{}); ok {
		for _, r := range raw {
			if rid, ok := toInt64(r); ok {
				s.Routes = append(s.Routes, rid)
			}
		}
	}

	return s, nil
}

func toInt64(v interface{}) (int64, bool) {
	switch n := v.(type) {
	case float64:
		return int64(n), true
	case int64:
		return n, true
	case int:
		return int64(n), true
	}
	return 0, false
}

// Len is the number of indexed stops.
func (idx *Index) Len() int { return len(idx.stops) }

// MinZoom is the zoom level from which stops are returned.
func (idx *Index) MinZoom() int { return idx.minZoom }

// Get finds a stop by node id.
func (idx *Index) Get(id int64) (Stop, bool) {
	i, ok := idx.byID[id]
	if !ok {
		return Stop{}, false
	}
	return idx.stops[i], true
}

// Within returns the stops inside b, or none when zoom is below the
// index's minimum zoom.
func (idx *Index) Within(b geo.BBox, zoom int) []Stop {
	out := []Stop{}
	if !layers.StopsVisible(zoom, idx.minZoom) {
		return out
	}

	for _, s := range idx.stops {
		if b.Contains(s.Lon, s.Lat) {
			out = append(out, s)
		}
	}

	return out
}

// FeatureCollection renders stops as GeoJSON.
func FeatureCollection(stops []Stop) *geojson.FeatureCollection {
	fc := geojson.NewFeatureCollection()
	for _, s := range stops {
		fc.Append(s.Feature())
	}

	return fc
}
