// Package catalog loads the route catalog (routes.json) that drives the map
// sidebar, the scrapers and the exporters.
package catalog

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"

	"github.com/go-playground/validator/v10"
)

// DisplayType selects which stops of a route are drawn.
type DisplayType string

const (
	// WaysWithPoints draws the line and every stop.
	WaysWithPoints DisplayType = "ways_with_points"
	// Ways draws the line and its terminal (entry-only / exit-only) stops.
	Ways DisplayType = "ways"
)

// ErrUnknownRoute is returned by lookups of relations missing from the catalog.
var ErrUnknownRoute = errors.New("unknown route")

// Route is one selectable bus route backed by an OSM relation.
type Route struct {
	Name       string      `json:"name" yaml:"name"`
	RelationID string      `json:"relationId" yaml:"relationId" validate:"required,numeric"`
	Color      string      `json:"color,omitempty" yaml:"color,omitempty" validate:"omitempty,hexcolor"`
	Type       DisplayType `json:"type" yaml:"type" validate:"required,oneof=ways_with_points ways"`
}

// Category groups routes under one sidebar heading.
type Category struct {
	Name   string  `json:"name" yaml:"name"`
	Routes []Route `json:"routes" yaml:"routes" validate:"dive"`
}

// Catalog is the root of routes.json.
type Catalog struct {
	Categories []Category `json:"categories" yaml:"categories" validate:"dive"`
}

// Entry is a route with its position in the catalog.
type Entry struct {
	Route
	CategoryName  string `json:"category"`
	CategoryOrder int    `json:"categoryOrder"`
	RouteOrder    int    `json:"routeOrder"`
}

// Load reads and validates a catalog file.
func Load(path string) (*Catalog, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	c, err := Parse(data)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}

	return c, nil
}

// Parse decodes and validates a catalog document.
// Relation ids may be given as JSON strings or numbers.
func Parse(data []byte) (*Catalog, error) {
	var c Catalog
	if err := json.Unmarshal(data, &c); err != nil {
		return nil, err
	}
	if err := c.Validate(); err != nil {
		return nil, err
	}

	return &c, nil
}

// Validate checks every route.
func (c *Catalog) Validate() error {
	if err := validator.New().Struct(c); err != nil {
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) && len(verrs) > 0 {
			return fmt.Errorf("invalid catalog: %s failed %q", verrs[0].Namespace(), verrs[0].Tag())
		}
		return fmt.Errorf("invalid catalog: %w", err)
	}

	return nil
}

// UnmarshalJSON accepts numeric relation ids as written by older tooling.
func (r *Route) UnmarshalJSON(data []byte) error {
	type plain Route
	var raw struct {
		plain
		RelationID json.RawMessage `json:"relationId"`
	}
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}

	*r = Route(raw.plain)
	if len(raw.RelationID) == 0 || string(raw.RelationID) == "null" {
		r.RelationID = ""
		return nil
	}
	if raw.RelationID[0] == '"' {
		return json.Unmarshal(raw.RelationID, &r.RelationID)
	}

	var n json.Number
	if err := json.Unmarshal(raw.RelationID, &n); err != nil {
		return fmt.Errorf("relationId: %w", err)
	}
	r.RelationID = n.String()
	return nil
}

// Routes returns every route in file order, duplicates included.
func (c *Catalog) Routes() []Route {
	var out []Route
	for _, cat := range c.Categories {
		out = append(out, cat.Routes...)
	}

	return out
}

// Unique returns one route per relation id. A relation listed more than once
// keeps the position of its first occurrence and the data of its last.
func (c *Catalog) Unique() []Route {
	all := c.Routes()

	index := make(map[string]int, len(all))
	out := make([]Route, 0, len(all))
	for _, r := range all {
		if i, ok := index[r.RelationID]; ok {
			out[i] = r
			continue
		}
		index[r.RelationID] = len(out)
		out = append(out, r)
	}

	return out
}

// Lookup finds the catalog entry for a relation id. A relation listed more
// than once resolves to its last occurrence, matching the data kept by Unique.
func (c *Catalog) Lookup(relationID string) (Entry, bool) {
	for ci := len(c.Categories) - 1; ci >= 0; ci-- {
		cat := c.Categories[ci]
		for ri := len(cat.Routes) - 1; ri >= 0; ri-- {
			if r := cat.Routes[ri]; r.RelationID == relationID {
				return Entry{Route: r, CategoryName: cat.Name, CategoryOrder: ci, RouteOrder: ri}, true
			}
		}
	}

	return Entry{}, false
}

// Filter keeps routes whose relation id is in ids. Empty categories are dropped.
// Ids not present in the catalog are returned separately.
func (c *Catalog) Filter(ids []string) (*Catalog, []string) {
	want := make(map[string]bool, len(ids))
	for _, id := range ids {
		want[id] = false
	}

	out := &Catalog{}
	for _, cat := range c.Categories {
		kept := Category{Name: cat.Name}
		for _, r := range cat.Routes {
			if _, ok := want[r.RelationID]; ok {
				want[r.RelationID] = true
				kept.Routes = append(kept.Routes, r)
			}
		}
		if len(kept.Routes) > 0 {
			out.Categories = append(out.Categories, kept)
		}
	}

	var missing []string
	for _, id := range ids {
		if !want[id] {
			missing = append(missing, id)
			want[id] = true
		}
	}

	return out, missing
}

// StopFile is the cached GeoJSON file name holding the stops drawn for t.
func StopFile(t DisplayType) string {
	if t == WaysWithPoints {
		return "stops.geojson"
	}
	return "endstops.geojson"
}

// WaysFile is the cached GeoJSON file name holding route geometry.
const WaysFile = "ways.geojson"
