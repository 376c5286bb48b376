package geo

import "math"

// MaxLat is the latitude limit of the Web Mercator projection.
const MaxLat = 85.05112878

// Tile is a slippy map tile address.
type Tile struct {
	Z, X, Y int
}

// LonLatToTile returns the tile containing the point at zoom z.
//
// Latitudes beyond MaxLat are clamped so the result always lies inside
// the 2^z by 2^z grid.
func LonLatToTile(lon, lat float64, z int) (x, y int) {
	n := float64(int(1) << z)

	if lat > MaxLat {
		lat = MaxLat
	} else if lat < -MaxLat {
		lat = -MaxLat
	}

	latRad := lat * math.Pi / 180.0
	fx := (lon + 180.0) / 360.0 * n
	fy := (1.0 - math.Log(math.Tan(latRad)+1.0/math.Cos(latRad))/math.Pi) / 2.0 * n

	return clamp(int(math.Floor(fx)), 0, int(n)-1), clamp(int(math.Floor(fy)), 0, int(n)-1)
}

// TilesInBBox lists every tile at zoom z that intersects the box, row by row.
func TilesInBBox(b BBox, z int) []Tile {
	minX, minY := LonLatToTile(b.West, b.North, z)
	maxX, maxY := LonLatToTile(b.East, b.South, z)

	tiles := make([]Tile, 0, (maxX-minX+1)*(maxY-minY+1))
	for y := minY; y <= maxY; y++ {
		for x := minX; x <= maxX; x++ {
			tiles = append(tiles, Tile{Z: z, X: x, Y: y})
		}
	}

	return tiles
}

func clamp(v, lo, hi int) int {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
