package geo

import (
	"fmt"
	"strconv"
	"strings"
)

// BBox is a geographic bounding box in degrees.
type BBox struct {
	South, West, North, East float64
}

// ParseBBox parses "south,west,north,east", the order Overpass QL expects.
func ParseBBox(s string) (BBox, error) {
	parts := strings.Split(s, ",")
	if len(parts) != 4 {
		return BBox{}, fmt.Errorf("bbox %q: want 4 comma separated values, got %d", s, len(parts))
	}

	var v [4]float64
	for i, p := range parts {
		f, err := strconv.ParseFloat(strings.TrimSpace(p), 64)
		if err != nil {
			return BBox{}, fmt.Errorf("bbox %q: %w", s, err)
		}
		v[i] = f
	}

	b := BBox{South: v[0], West: v[1], North: v[2], East: v[3]}
	if err := b.Validate(); err != nil {
		return BBox{}, err
	}

	return b, nil
}

// Validate checks coordinate ranges and ordering.
func (b BBox) Validate() error {
	switch {
	case b.South < -90 || b.North > 90:
		return fmt.Errorf("bbox latitude out of range: %s", b)
	case b.West < -180 || b.East > 180:
		return fmt.Errorf("bbox longitude out of range: %s", b)
	case b.South > b.North || b.West > b.East:
		return fmt.Errorf("bbox corners out of order: %s", b)
	}

	return nil
}

// Contains reports whether the point lies inside the box, edges included.
func (b BBox) Contains(lon, lat float64) bool {
	return lat >= b.South && lat <= b.North && lon >= b.West && lon <= b.East
}

// String formats the box back into Overpass order.
func (b BBox) String() string {
	return strings.Join([]string{
		strconv.FormatFloat(b.South, 'f', -1, 64),
		strconv.FormatFloat(b.West, 'f', -1, 64),
		strconv.FormatFloat(b.North, 'f', -1, 64),
		strconv.FormatFloat(b.East, 'f', -1, 64),
	}, ",")
}
