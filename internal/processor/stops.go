package processor

import (
	"context"
	"fmt"
	"path/filepath"

	"github.com/paulmach/orb/geojson"
	"github.com/rs/zerolog/log"

	"github.com/transportforbandung/transitmap/internal/geo"
	"github.com/transportforbandung/transitmap/internal/overpass"
	"github.com/transportforbandung/transitmap/internal/stops"
)

// StopOptions tunes ProcessStops.
type StopOptions struct {
	Filters map[string]string
	Dir     string
	BBox    geo.BBox
	Indent  bool
}

// ProcessStops runs the bus stop census: one query per filter, then one
// relation lookup per stop. Each filter's stops are written to
// <Dir>/<filter>.geojson and all of them, tagged with their filter name as
// category, to <Dir>/all_bus_stops.geojson.
func ProcessStops(ctx context.Context, client Querier, opts StopOptions) (int, error) {
	filters := opts.Filters
	if len(filters) == 0 {
		filters = stops.DefaultFilters
	}

	all := geojson.NewFeatureCollection()
	for _, name := range stops.Names(filters) {
		log.Info().Str("filter", name).Msg("Fetching bus stops")

		elements, err := client.Query(ctx, overpass.StopCensusQuery(filters[name], opts.BBox))
		if err != nil {
			return len(all.Features), fmt.Errorf("filter %s: %w", name, err)
		}

		fc := geojson.NewFeatureCollection()
		for _, el := range elements {
			if el.Type != overpass.TypeNode {
				continue
			}

			s := stops.Stop{
				ID:      el.ID,
				Lon:     el.Lon,
				Lat:     el.Lat,
				Name:    el.Tags["name"],
				Shelter: el.Tags["shelter"],
				Pole:    el.Tags["pole"],
				Routes:  relationsForNode(ctx, client, el.ID),
			}
			if ctx.Err() != nil {
				return len(all.Features), ctx.Err()
			}
			fc.Append(s.Feature())

			s.Category = name
			all.Append(s.Feature())
		}

		path := filepath.Join(opts.Dir, name+stops.FileSuffix)
		if err := geo.WriteFile(path, fc, opts.Indent); err != nil {
			return len(all.Features), err
		}

		log.Info().Int("stops", len(fc.Features)).Str("path", path).Msg("Saved bus stops")
	}

	if err := geo.WriteFile(filepath.Join(opts.Dir, stops.AllStopsFile), all, opts.Indent); err != nil {
		return len(all.Features), err
	}

	return len(all.Features), nil
}

// relationsForNode never fails: a stop whose routes cannot be looked up is
// kept with an empty route list.
func relationsForNode(ctx context.Context, client Querier, nodeID int64) []int64 {
	elements, err := client.Query(ctx, overpass.RelationsForNodeQuery(nodeID))
	if err != nil {
		log.Warn().Err(err).Int64("node", nodeID).Msg("Failed to fetch relations for node")
		return []int64{}
	}

	return overpass.RelationIDs(elements)
}
