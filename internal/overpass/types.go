// Package overpass queries the Overpass API and converts its elements to GeoJSON.
package overpass

import (
	"fmt"
	"strconv"
)

// Element types as reported by Overpass.
const (
	TypeNode     = "node"
	TypeWay      = "way"
	TypeRelation = "relation"
)

// LatLon is one vertex of a way returned with "out geom".
type LatLon struct {
	Lat float64 `json:"lat"`
	Lon float64 `json:"lon"`
}

// Member is a relation member.
type Member struct {
	Type string `json:"type"`
	Role string `json:"role"`
	Ref  int64  `json:"ref"`
}

// Element is a node, way or relation from an Overpass JSON response.
type Element struct {
	Tags     map[string]string `json:"tags,omitempty"`
	Type     string            `json:"type"`
	Geometry []LatLon          `json:"geometry,omitempty"`
	Members  []Member          `json:"members,omitempty"`
	ID       int64             `json:"id"`
	Lat      float64           `json:"lat,omitempty"`
	Lon      float64           `json:"lon,omitempty"`
}

// Response holds the parts of an Overpass JSON document used here.
type Response struct {
	Generator string    `json:"generator"`
	Remark    string    `json:"remark,omitempty"`
	Elements  []Element `json:"elements"`
}

// StatusError is returned for non-200 responses.
type StatusError struct {
	Body string
	Code int
}

func (e *StatusError) Error() string {
	if e.Body == "" {
		return "overpass: status " + strconv.Itoa(e.Code)
	}
	return fmt.Sprintf("overpass: status %d: %s", e.Code, e.Body)
}

// Temporary reports whether retrying the same query may succeed.
func (e *StatusError) Temporary() bool {
	return e.Code == 429 || e.Code >= 500
}
