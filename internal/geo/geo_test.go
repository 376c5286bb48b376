package geo

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/paulmach/orb"
	"github.com/paulmach/orb/geojson"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseBBox(t *testing.T) {
	b, err := ParseBBox("-7.1, 107.29,-6.71,108.0")
	require.NoError(t, err)
	assert.Equal(t, BBox{South: -7.1, West: 107.29, North: -6.71, East: 108.0}, b)
	assert.Equal(t, "-7.1,107.29,-6.71,108", b.String())

	assert.True(t, b.Contains(107.6183, -6.9104))
	assert.True(t, b.Contains(107.29, -7.1), "edges are inside")
	assert.False(t, b.Contains(106.8, -6.2))
}

func TestParseBBoxErrors(t *testing.T) {
	for _, s := range []string{
		"",
		"1,2,3",
		"a,b,c,d",
		"-6.7,107.2,-7.1,108.0",
		"-95,0,10,10",
		"0,-190,10,10",
	} {
		_, err := ParseBBox(s)
		assert.Error(t, err, s)
	}
}

func TestLonLatToTile(t *testing.T) {
	tests := []struct {
		name     string
		lon, lat float64
		z        int
		x, y     int
	}{
		{name: "zoom zero", lon: 107.6, lat: -6.9, z: 0, x: 0, y: 0},
		{name: "origin", lon: 0, lat: 0, z: 1, x: 1, y: 1},
		{name: "bandung", lon: 107.6183, lat: -6.9104, z: 12, x: 3272, y: 2126},
		{name: "clamped north", lon: -180, lat: 89.9, z: 3, x: 0, y: 0},
		{name: "clamped east", lon: 180, lat: -89.9, z: 3, x: 7, y: 7},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			x, y := LonLatToTile(tt.lon, tt.lat, tt.z)
			assert.Equal(t, tt.x, x)
			assert.Equal(t, tt.y, y)
		})
	}
}

func TestTilesInBBox(t *testing.T) {
	b := BBox{South: -6.95, West: 107.5, North: -6.85, East: 107.7}

	assert.Equal(t, []Tile{{Z: 10, X: 817, Y: 531}, {Z: 10, X: 818, Y: 531}}, TilesInBBox(b, 10))

	tiles := TilesInBBox(b, 12)
	require.Len(t, tiles, 6)
	assert.Equal(t, Tile{Z: 12, X: 3271, Y: 2126}, tiles[0])
	assert.Equal(t, Tile{Z: 12, X: 3273, Y: 2127}, tiles[5])
}

func TestWriteAndReadFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "ways.geojson")

	fc := geojson.NewFeatureCollection()
	f := geojson.NewFeature(orb.LineString{{107.6, -6.9}, {107.61, -6.91}})
	f.Properties["id"] = 42
	fc.Append(f)

	require.NoError(t, WriteFile(path, fc, true))

	_, err := os.Stat(path + ".tmp")
	assert.True(t, os.IsNotExist(err), "temporary file is renamed away")

	got, err := ReadFile(path)
	require.NoError(t, err)
	require.Len(t, got.Features, 1)
	assert.Equal(t, "LineString", got.Features[0].Geometry.GeoJSONType())
	assert.InDelta(t, 42, got.Features[0].Properties["id"], 0)
}

func TestWriteFileNilCollection(t *testing.T) {
	path := filepath.Join(t.TempDir(), "empty.geojson")
	require.NoError(t, WriteFile(path, nil, false))

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.JSONEq(t, `{"type":"FeatureCollection","features":[]}`, string(data))
}

func TestReadFileErrors(t *testing.T) {
	dir := t.TempDir()

	_, err := ReadFile(filepath.Join(dir, "missing.geojson"))
	assert.True(t, os.IsNotExist(err))

	bad := filepath.Join(dir, "bad.geojson")
	require.NoError(t, os.WriteFile(bad, []byte("{"), 0o644))
	_, err = ReadFile(bad)
	assert.Error(t, err)
}

func TestMerge(t *testing.T) {
	a := geojson.NewFeatureCollection().Append(geojson.NewFeature(orb.Point{1, 1}))
	b := geojson.NewFeatureCollection().
		Append(geojson.NewFeature(orb.Point{2, 2})).
		Append(geojson.NewFeature(orb.Point{3, 3}))

	merged := Merge(a, nil, b)
	require.Len(t, merged.Features, 3)
	assert.Equal(t, orb.Point{1, 1}, merged.Features[0].Geometry)
	assert.Equal(t, orb.Point{3, 3}, merged.Features[2].Geometry)
	assert.Len(t, a.Features, 1, "inputs untouched")
}
