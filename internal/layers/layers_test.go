package layers

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"path/filepath"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/paulmach/orb"
	"github.com/paulmach/orb/geojson"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"github.com/transportforbandung/transitmap/internal/catalog"
	"github.com/transportforbandung/transitmap/internal/geo"
	"github.com/transportforbandung/transitmap/internal/overpass"
)

var koridor1 = catalog.Route{
	Name:       "Koridor 1",
	RelationID: "100",
	Color:      "#1e88e5",
	Type:       catalog.WaysWithPoints,
}

type fakeSource struct {
	err   error
	name  string
	delay time.Duration
	calls atomic.Int32
}

func (s *fakeSource) Name() string { return s.name }

func (s *fakeSource) Fetch(ctx context.Context, route catalog.Route) (*Layer, error) {
	s.calls.Add(1)
	if s.delay > 0 {
		select {
		case <-time.After(s.delay):
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	if s.err != nil {
		return nil, s.err
	}

	ways := geojson.NewFeatureCollection().Append(geojson.NewFeature(orb.LineString{{1, 1}, {2, 2}}))
	return newLayer(route, ways, nil, s.name), nil
}

type fakeQuerier struct {
	query    string
	elements []overpass.Element
	err      error
}

func (q *fakeQuerier) Query(_ context.Context, query string) ([]overpass.Element, error) {
	q.query = query
	return q.elements, q.err
}

func writeRoute(t *testing.T, dir string, route catalog.Route, withStops bool) {
	t.Helper()

	ways := geojson.NewFeatureCollection().Append(geojson.NewFeature(orb.LineString{{107.6, -6.9}, {107.7, -6.95}}))
	require.NoError(t, geo.WriteFile(filepath.Join(dir, route.RelationID, catalog.WaysFile), ways, false))

	if withStops {
		stop := geojson.NewFeature(orb.Point{107.6, -6.9})
		stop.Properties["name"] = "Halte Dago"
		stops := geojson.NewFeatureCollection().Append(stop).Append(geojson.NewFeature(orb.Point{107.7, -6.95}))
		require.NoError(t, geo.WriteFile(filepath.Join(dir, route.RelationID, catalog.StopFile(route.Type)), stops, false))
	}
}

func TestLocalSource(t *testing.T) {
	dir := t.TempDir()
	writeRoute(t, dir, koridor1, true)

	layer, err := LocalSource{Dir: dir}.Fetch(context.Background(), koridor1)
	require.NoError(t, err)
	assert.Equal(t, "local", layer.Source)
	assert.Len(t, layer.Ways.Features, 1)
	assert.Len(t, layer.Stops.Features, 2)
}

func TestLocalSourceMissingFiles(t *testing.T) {
	dir := t.TempDir()

	_, err := LocalSource{Dir: dir}.Fetch(context.Background(), koridor1)
	assert.ErrorIs(t, err, ErrNotCached)

	writeRoute(t, dir, koridor1, false)
	_, err = LocalSource{Dir: dir}.Fetch(context.Background(), koridor1)
	assert.ErrorIs(t, err, ErrNotCached, "stop file is required too")
}

func TestOverpassSource(t *testing.T) {
	q := &fakeQuerier{elements: []overpass.Element{
		{Type: "way", ID: 1, Geometry: []overpass.LatLon{{Lat: -6.9, Lon: 107.6}, {Lat: -6.91, Lon: 107.61}}},
		{Type: "node", ID: 2, Lat: -6.9, Lon: 107.6, Tags: map[string]string{"name": "Halte"}},
	}}

	layer, err := OverpassSource{Client: q}.Fetch(context.Background(), koridor1)
	require.NoError(t, err)
	assert.Equal(t, overpass.RouteQuery("100", catalog.WaysWithPoints), q.query)
	assert.Equal(t, "overpass", layer.Source)
	assert.Len(t, layer.Ways.Features, 1)
	assert.Len(t, layer.Stops.Features, 1)

	_, err = OverpassSource{Client: &fakeQuerier{}}.Fetch(context.Background(), koridor1)
	assert.Error(t, err, "a relation without ways is a failure")
}

func TestLoaderCachesLayers(t *testing.T) {
	src := &fakeSource{name: "local"}
	l := NewLoader(10, 0, src)

	first, err := l.Load(context.Background(), koridor1)
	require.NoError(t, err)
	second, err := l.Load(context.Background(), koridor1)
	require.NoError(t, err)

	assert.Same(t, first, second)
	assert.EqualValues(t, 1, src.calls.Load())
	assert.True(t, l.Cached("100"))

	assert.True(t, l.Evict("100"))
	assert.False(t, l.Cached("100"))

	_, err = l.Load(context.Background(), koridor1)
	require.NoError(t, err)
	assert.EqualValues(t, 2, src.calls.Load())

	l.Purge()
	assert.False(t, l.Cached("100"))
}

func TestLoaderFallsBackToNextSource(t *testing.T) {
	local := &fakeSource{name: "local", err: ErrNotCached}
	live := &fakeSource{name: "overpass"}
	l := NewLoader(10, 0, local, live)

	layer, err := l.Load(context.Background(), koridor1)
	require.NoError(t, err)
	assert.Equal(t, "overpass", layer.Source)
	assert.EqualValues(t, 1, local.calls.Load())
	assert.EqualValues(t, 1, live.calls.Load())
}

func TestLoaderWarnsOnLocalMiss(t *testing.T) {
	var buf bytes.Buffer
	prev := log.Logger
	log.Logger = zerolog.New(&buf)
	t.Cleanup(func() { log.Logger = prev })

	local := &fakeSource{name: "local", err: ErrNotCached}
	l := NewLoader(10, 0, local, &fakeSource{name: "overpass"})

	_, err := l.Load(context.Background(), koridor1)
	require.NoError(t, err)

	var entry struct {
		Level  string `json:"level"`
		Source string `json:"source"`
	}
	require.NoError(t, json.Unmarshal(bytes.SplitN(buf.Bytes(), []byte("\n"), 2)[0], &entry), buf.String())
	assert.Equal(t, zerolog.WarnLevel.String(), entry.Level)
	assert.Equal(t, "local", entry.Source)
}

func TestLoaderAllSourcesFail(t *testing.T) {
	boom := errors.New("gateway timeout")
	l := NewLoader(10, 0,
		&fakeSource{name: "local", err: ErrNotCached},
		&fakeSource{name: "overpass", err: boom})

	_, err := l.Load(context.Background(), koridor1)
	require.Error(t, err)

	var loadErr *LoadError
	require.ErrorAs(t, err, &loadErr)
	assert.Equal(t, "100", loadErr.RelationID)
	assert.ErrorIs(t, err, ErrNotCached)
	assert.ErrorIs(t, err, boom)
	assert.False(t, l.Cached("100"), "failures are not cached")
}

func TestLoaderNoSources(t *testing.T) {
	_, err := NewLoader(1, 0).Load(context.Background(), koridor1)
	assert.Error(t, err)
}

func TestLoaderCoalescesConcurrentLoads(t *testing.T) {
	defer goleak.VerifyNone(t)

	src := &fakeSource{name: "overpass", delay: 50 * time.Millisecond}
	l := NewLoader(10, 0, src)

	var wg sync.WaitGroup
	results := make([]*Layer, 8)
	for i := range results {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			layer, err := l.Load(context.Background(), koridor1)
			assert.NoError(t, err)
			results[i] = layer
		}(i)
	}
	wg.Wait()

	assert.EqualValues(t, 1, src.calls.Load())
	for _, r := range results {
		assert.Same(t, results[0], r)
	}
}

func TestLoaderSharedLoadSurvivesCallerCancel(t *testing.T) {
	defer goleak.VerifyNone(t)

	src := &fakeSource{name: "overpass", delay: 100 * time.Millisecond}
	l := NewLoader(10, 0, src)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	firstErr := make(chan error, 1)
	go func() {
		_, err := l.Load(ctx, koridor1)
		firstErr <- err
	}()
	time.Sleep(10 * time.Millisecond)

	second := make(chan error, 1)
	go func() {
		_, err := l.Load(context.Background(), koridor1)
		second <- err
	}()
	time.Sleep(10 * time.Millisecond)
	cancel()

	require.ErrorIs(t, <-firstErr, context.Canceled)
	require.NoError(t, <-second)
	assert.EqualValues(t, 1, src.calls.Load())
	assert.True(t, l.Cached(koridor1.RelationID))
}

func TestLoaderExpiration(t *testing.T) {
	src := &fakeSource{name: "overpass"}
	l := NewLoader(10, 20*time.Millisecond, src)

	_, err := l.Load(context.Background(), koridor1)
	require.NoError(t, err)
	time.Sleep(40 * time.Millisecond)
	_, err = l.Load(context.Background(), koridor1)
	require.NoError(t, err)

	assert.EqualValues(t, 2, src.calls.Load())
}

func TestLoaderEvictsLeastRecentlyUsed(t *testing.T) {
	src := &fakeSource{name: "local"}
	l := NewLoader(2, 0, src)

	for _, id := range []string{"1", "2", "1", "3"} {
		_, err := l.Load(context.Background(), catalog.Route{RelationID: id, Type: catalog.Ways})
		require.NoError(t, err)
	}

	assert.True(t, l.Cached("1"))
	assert.False(t, l.Cached("2"))
	assert.True(t, l.Cached("3"))
}

func TestLayerFeatureCollection(t *testing.T) {
	dir := t.TempDir()
	writeRoute(t, dir, koridor1, true)
	layer, err := LocalSource{Dir: dir}.Fetch(context.Background(), koridor1)
	require.NoError(t, err)

	fc := layer.FeatureCollection()
	require.Len(t, fc.Features, 3)

	line := fc.Features[0]
	assert.Equal(t, "Koridor 1", line.Properties["route_name"])
	assert.Equal(t, "#1e88e5", line.Properties["stroke"])
	assert.Equal(t, LineWeight, line.Properties["stroke-width"])

	assert.Equal(t, "Halte Dago", fc.Features[1].Properties["name"])
	assert.Equal(t, UnnamedStop, fc.Features[2].Properties["name"])
	assert.Equal(t, "#1e88e5", fc.Features[2].Properties["marker-color"])
	assert.Equal(t, "100", fc.ExtraMembers["relationId"])

	_, touched := layer.Ways.Features[0].Properties["stroke"]
	assert.False(t, touched, "source features are not modified")
}

func TestLayerDefaults(t *testing.T) {
	layer := newLayer(catalog.Route{RelationID: "7"}, nil, nil, "")
	fc := layer.FeatureCollection()

	assert.Empty(t, fc.Features)
	assert.Equal(t, DefaultColor, fc.ExtraMembers["color"])
	assert.Equal(t, "7", fc.ExtraMembers["name"])
	assert.Equal(t, "unknown", layer.Source)
}

func TestStopsVisible(t *testing.T) {
	assert.False(t, StopsVisible(15, 16))
	assert.True(t, StopsVisible(16, 16))
	assert.True(t, StopsVisible(18, 16))
}
