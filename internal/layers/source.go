package layers

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/transportforbandung/transitmap/internal/catalog"
	"github.com/transportforbandung/transitmap/internal/geo"
	"github.com/transportforbandung/transitmap/internal/overpass"
)

// ErrNotCached means the local cache holds no data for a route.
var ErrNotCached = errors.New("route not cached locally")

// Source produces a layer for a route.
type Source interface {
	Name() string
	Fetch(ctx context.Context, route catalog.Route) (*Layer, error)
}

// LocalSource reads layers pre-fetched into <Dir>/<relation>/.
type LocalSource struct {
	Dir string
}

// Name implements Source.
func (LocalSource) Name() string { return "local" }

// Fetch implements Source.
func (s LocalSource) Fetch(_ context.Context, route catalog.Route) (*Layer, error) {
	dir := filepath.Join(s.Dir, route.RelationID)

	ways, err := geo.ReadFile(filepath.Join(dir, catalog.WaysFile))
	if err != nil {
		return nil, notCached(route, err)
	}

	stops, err := geo.ReadFile(filepath.Join(dir, catalog.StopFile(route.Type)))
	if err != nil {
		return nil, notCached(route, err)
	}

	return newLayer(route, ways, stops, s.Name()), nil
}

func notCached(route catalog.Route, err error) error {
	if os.IsNotExist(err) {
		return fmt.Errorf("%w: relation %s", ErrNotCached, route.RelationID)
	}
	return err
}

// Querier is the part of the Overpass client used by OverpassSource.
type Querier interface {
	Query(ctx context.Context, query string) ([]overpass.Element, error)
}

// OverpassSource queries the route live.
type OverpassSource struct {
	Client Querier
}

// Name implements Source.
func (OverpassSource) Name() string { return "overpass" }

// Fetch implements Source.
func (s OverpassSource) Fetch(ctx context.Context, route catalog.Route) (*Layer, error) {
	elements, err := s.Client.Query(ctx, overpass.RouteQuery(route.RelationID, route.Type))
	if err != nil {
		return nil, err
	}

	ways := overpass.Ways(elements)
	if len(ways.Features) == 0 {
		return nil, fmt.Errorf("relation %s: no ways returned", route.RelationID)
	}

	return newLayer(route, ways, overpass.Nodes(elements), s.Name()), nil
}
