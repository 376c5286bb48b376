package processor

import (
	"context"
	"errors"
	"image"
	"image/color"
	"image/png"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/transportforbandung/transitmap/internal/catalog"
	"github.com/transportforbandung/transitmap/internal/geo"
	"github.com/transportforbandung/transitmap/internal/overpass"
	"github.com/transportforbandung/transitmap/internal/stops"
)

type fakeQuerier struct {
	answer func(query string) ([]overpass.Element, error)

	mu    sync.Mutex
	calls []string
}

func (f *fakeQuerier) Query(_ context.Context, query string) ([]overpass.Element, error) {
	f.mu.Lock()
	f.calls = append(f.calls, query)
	f.mu.Unlock()

	return f.answer(query)
}

func (f *fakeQuerier) count(substr string) int {
	f.mu.Lock()
	defer f.mu.Unlock()

	n := 0
	for _, q := range f.calls {
		if strings.Contains(q, substr) {
			n++
		}
	}
	return n
}

func routeAnswer(query string) ([]overpass.Element, error) {
	if strings.Contains(query, "way(r)") {
		return []overpass.Element{{
			Type:     overpass.TypeWay,
			ID:       1,
			Geometry: []overpass.LatLon{{Lat: -6.9, Lon: 107.6}, {Lat: -6.91, Lon: 107.61}},
		}}, nil
	}
	return []overpass.Element{{Type: overpass.TypeNode, ID: 2, Lat: -6.9, Lon: 107.6}}, nil
}

func TestProcessRoutesWritesFiles(t *testing.T) {
	dir := t.TempDir()
	q := &fakeQuerier{answer: routeAnswer}

	routes := []catalog.Route{
		{Name: "A", RelationID: "100", Type: catalog.WaysWithPoints},
		{Name: "B", RelationID: "200", Type: catalog.Ways},
		{Name: "A again", RelationID: "100", Type: catalog.WaysWithPoints},
	}

	report, err := ProcessRoutes(context.Background(), q, routes, RouteOptions{Dir: dir, Mode: ModeAll})
	require.NoError(t, err)
	assert.True(t, report.OK())
	assert.ElementsMatch(t, []string{"100", "200"}, report.Processed)

	assert.FileExists(t, filepath.Join(dir, "100", "ways.geojson"))
	assert.FileExists(t, filepath.Join(dir, "100", "stops.geojson"))
	assert.FileExists(t, filepath.Join(dir, "200", "ways.geojson"))
	assert.FileExists(t, filepath.Join(dir, "200", "endstops.geojson"))
	assert.NoFileExists(t, filepath.Join(dir, "200", "stops.geojson"))

	ways, err := geo.ReadFile(filepath.Join(dir, "100", "ways.geojson"))
	require.NoError(t, err)
	require.Len(t, ways.Features, 1)
	assert.Equal(t, "LineString", ways.Features[0].Geometry.GeoJSONType())

	assert.Equal(t, 2, q.count("way(r)"))
}

func TestProcessRoutesModeNewSkipsCached(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.MkdirAll(filepath.Join(dir, "200"), 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "200", "endstops.geojson"), []byte(`{"type":"FeatureCollection","features":[]}`), 0o644))

	q := &fakeQuerier{answer: routeAnswer}
	routes := []catalog.Route{
		{RelationID: "100", Type: catalog.WaysWithPoints},
		{RelationID: "200", Type: catalog.Ways},
	}

	report, err := ProcessRoutes(context.Background(), q, routes, RouteOptions{Dir: dir, Mode: ModeNew})
	require.NoError(t, err)
	assert.Equal(t, []string{"100"}, report.Processed)
	assert.Equal(t, []string{"200"}, report.Skipped)
	assert.Zero(t, q.count("relation(200)"))
}

func TestProcessRoutesReportsFailures(t *testing.T) {
	dir := t.TempDir()
	q := &fakeQuerier{answer: func(query string) ([]overpass.Element, error) {
		if strings.Contains(query, "relation(300)") {
			return nil, errors.New("boom")
		}
		return routeAnswer(query)
	}}

	routes := []catalog.Route{
		{RelationID: "300", Type: catalog.Ways},
		{RelationID: "100", Type: catalog.WaysWithPoints},
	}

	report, err := ProcessRoutes(context.Background(), q, routes, RouteOptions{Dir: dir, Concurrency: 2})
	require.NoError(t, err)
	assert.False(t, report.OK())
	assert.Equal(t, []string{"100"}, report.Processed)
	require.Contains(t, report.Failed, "300")
	assert.ErrorContains(t, report.Failed["300"], "boom")
	assert.Equal(t, 3, q.count("relation(300)"))
	assert.False(t, HasCachedFiles(dir, "300"))
}

func TestProcessRoutesStopsOnCancel(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	q := &fakeQuerier{answer: func(string) ([]overpass.Element, error) {
		cancel()
		return nil, context.Canceled
	}}

	_, err := ProcessRoutes(ctx, q, []catalog.Route{{RelationID: "1", Type: catalog.Ways}}, RouteOptions{
		Dir:        t.TempDir(),
		RetryDelay: time.Hour,
	})
	require.ErrorIs(t, err, context.Canceled)
}

func TestProcessStops(t *testing.T) {
	dir := t.TempDir()
	q := &fakeQuerier{answer: func(query string) ([]overpass.Element, error) {
		switch {
		case strings.Contains(query, "node(10)"):
			return []overpass.Element{{Type: overpass.TypeRelation, ID: 900}, {Type: overpass.TypeRelation, ID: 901}}, nil
		case strings.Contains(query, "node(11)"):
			return nil, errors.New("lookup failed")
		case strings.Contains(query, "FILTER_A"):
			return []overpass.Element{
				{Type: overpass.TypeNode, ID: 10, Lat: -6.9, Lon: 107.6, Tags: map[string]string{"name": "Halte A", "shelter": "yes"}},
				{Type: overpass.TypeWay, ID: 99},
			}, nil
		case strings.Contains(query, "FILTER_B"):
			return []overpass.Element{{Type: overpass.TypeNode, ID: 11, Lat: -6.8, Lon: 107.7}}, nil
		}
		return nil, nil
	}}

	bbox, err := geo.ParseBBox("-7,107,-6,108")
	require.NoError(t, err)

	n, err := ProcessStops(context.Background(), q, StopOptions{
		Dir:     dir,
		BBox:    bbox,
		Filters: map[string]string{"1_a": "FILTER_A", "2_b": "FILTER_B"},
	})
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	a, err := geo.ReadFile(filepath.Join(dir, "1_a.geojson"))
	require.NoError(t, err)
	require.Len(t, a.Features, 1)
	assert.Nil(t, a.Features[0].Properties["category"])

	idx, err := stops.LoadIndex(filepath.Join(dir, stops.AllStopsFile), 16)
	require.NoError(t, err)
	require.Equal(t, 2, idx.Len())

	s, ok := idx.Get(10)
	require.True(t, ok)
	assert.Equal(t, "1_a", s.Category)
	assert.Equal(t, "Halte A", s.Name)
	assert.Equal(t, []int64{900, 901}, s.Routes)

	s, ok = idx.Get(11)
	require.True(t, ok)
	assert.Equal(t, "2_b", s.Category)
	assert.Empty(t, s.Routes)
}

func pngTile(size int) []byte {
	img := image.NewRGBA(image.Rect(0, 0, size, size))
	for x := 0; x < size; x++ {
		img.Set(x, x, color.RGBA{R: 200, A: 255})
	}
	var buf strings.Builder
	_ = png.Encode(&buf, img)
	return []byte(buf.String())
}

func TestProcessTiles(t *testing.T) {
	full, pixel := pngTile(16), pngTile(1)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch {
		case strings.Contains(r.URL.Path, "/3273/"):
			http.NotFound(w, r)
		case strings.Contains(r.URL.Path, "/3271/2127"):
			_, _ = w.Write(pixel)
		default:
			_, _ = w.Write(full)
		}
	}))
	defer srv.Close()

	bbox, err := geo.ParseBBox("-6.95,107.5,-6.85,107.7")
	require.NoError(t, err)

	dir := t.TempDir()
	opts := TileOptions{
		URLTemplate: srv.URL + "/{z}/{x}/{y}.png",
		Dir:         dir,
		BBox:        bbox,
		MinZoom:     12,
		MaxZoom:     12,
		Concurrency: 3,
	}

	report, err := ProcessTiles(context.Background(), srv.Client(), opts)
	require.NoError(t, err)
	assert.Equal(t, TileReport{Saved: 3, Invalid: 3}, report)
	assert.FileExists(t, TilePath(dir, geo.Tile{Z: 12, X: 3272, Y: 2126}))
	assert.NoFileExists(t, TilePath(dir, geo.Tile{Z: 12, X: 3271, Y: 2127}))

	report, err = ProcessTiles(context.Background(), srv.Client(), opts)
	require.NoError(t, err)
	assert.Equal(t, TileReport{Existed: 3, Invalid: 3}, report)

	opts.Force = true
	report, err = ProcessTiles(context.Background(), srv.Client(), opts)
	require.NoError(t, err)
	assert.Equal(t, 3, report.Saved)
}

func TestProcessTilesRejectsBadOptions(t *testing.T) {
	_, err := ProcessTiles(context.Background(), http.DefaultClient, TileOptions{})
	require.Error(t, err)

	_, err = ProcessTiles(context.Background(), http.DefaultClient, TileOptions{URLTemplate: "x", MinZoom: 5, MaxZoom: 4})
	require.Error(t, err)
}

func TestBuildTileURL(t *testing.T) {
	tile := geo.Tile{Z: 2, X: 1, Y: 0}

	assert.Equal(t, "https://t/2/1/0.png", BuildTileURL("https://t/{z}/{x}/{y}.png", tile))
	assert.Equal(t, "https://t/2/1/3.png", BuildTileURL("https://t/{z}/{x}/{tms_y}.png", tile))
	assert.Equal(t, "https://b.t/2/1/0.png", BuildTileURL("https://{s}.t/{z}/{x}/{y}.png", tile))
}
