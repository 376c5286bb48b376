// Package processor handles the downloading and processing of map data:
// route geometry, the bus stop census and basemap tiles.
package processor

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/rs/zerolog/log"
	"golang.org/x/sync/errgroup"

	"github.com/transportforbandung/transitmap/internal/catalog"
	"github.com/transportforbandung/transitmap/internal/geo"
	"github.com/transportforbandung/transitmap/internal/overpass"
)

// Mode selects which routes are fetched.
type Mode string

const (
	// ModeAll fetches every route and overwrites existing files.
	ModeAll Mode = "all"
	// ModeNew only fetches routes with no cached files yet.
	ModeNew Mode = "new"
)

// Querier runs Overpass queries.
type Querier interface {
	Query(ctx context.Context, query string) ([]overpass.Element, error)
}

// RouteOptions tunes ProcessRoutes.
type RouteOptions struct {
	Dir         string
	Mode        Mode
	Attempts    int
	Concurrency int
	RetryDelay  time.Duration
	Indent      bool
}

// Report summarises a batch run.
type Report struct {
	Failed    map[string]error
	Processed []string
	Skipped   []string
}

// OK reports whether nothing failed.
func (r *Report) OK() bool { return len(r.Failed) == 0 }

// ProcessRoutes fetches ways and stops of every unique route into
// <Dir>/<relation>/. A failing route is retried up to Attempts times and then
// reported; it never aborts the batch. Only context cancellation does.
func ProcessRoutes(ctx context.Context, client Querier, routes []catalog.Route, opts RouteOptions) (*Report, error) {
	if opts.Attempts <= 0 {
		opts.Attempts = 3
	}
	if opts.Concurrency <= 0 {
		opts.Concurrency = 1
	}
	if opts.Mode == "" {
		opts.Mode = ModeAll
	}

	unique := (&catalog.Catalog{Categories: []catalog.Category{{Routes: routes}}}).Unique()

	log.Info().
		Int("routes", len(unique)).
		Str("mode", string(opts.Mode)).
		Int("concurrency", opts.Concurrency).
		Msg("Processing routes")

	report := &Report{Failed: map[string]error{}}
	var mu sync.Mutex

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(opts.Concurrency)

	for _, route := range unique {
		if gctx.Err() != nil {
			break
		}

		if opts.Mode == ModeNew && HasCachedFiles(opts.Dir, route.RelationID) {
			log.Info().Str("relation", route.RelationID).Msg("Skipping relation: data already exists")
			report.Skipped = append(report.Skipped, route.RelationID)
			continue
		}

		g.Go(func() error {
			err := processRouteWithRetry(gctx, client, route, opts)

			mu.Lock()
			defer mu.Unlock()
			if err != nil {
				if gctx.Err() != nil {
					return gctx.Err()
				}
				report.Failed[route.RelationID] = err
				return nil
			}
			report.Processed = append(report.Processed, route.RelationID)
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return report, err
	}
	if err := ctx.Err(); err != nil {
		return report, err
	}

	log.Info().
		Int("processed", len(report.Processed)).
		Int("skipped", len(report.Skipped)).
		Int("failed", len(report.Failed)).
		Msg("All routes processed")

	return report, nil
}

func processRouteWithRetry(ctx context.Context, client Querier, route catalog.Route, opts RouteOptions) error {
	var err error
	for attempt := 1; attempt <= opts.Attempts; attempt++ {
		log.Info().
			Str("relation", route.RelationID).
			Str("type", string(route.Type)).
			Int("attempt", attempt).
			Msg("Processing relation")

		if err = ProcessRoute(ctx, client, route, opts.Dir, opts.Indent); err == nil {
			log.Info().Str("relation", route.RelationID).Msg("Successfully processed relation")
			return nil
		}
		if ctx.Err() != nil {
			return ctx.Err()
		}

		remaining := opts.Attempts - attempt
		if remaining == 0 {
			break
		}
		log.Warn().
			Err(err).
			Str("relation", route.RelationID).
			Int("remaining", remaining).
			Msg("Retrying relation")

		if opts.RetryDelay > 0 {
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(opts.RetryDelay):
			}
		}
	}

	log.Error().
		Err(err).
		Str("relation", route.RelationID).
		Int("attempts", opts.Attempts).
		Msg("Giving up on relation")

	return fmt.Errorf("relation %s: %w", route.RelationID, err)
}

// ProcessRoute fetches one route and writes its ways file then its stop file.
func ProcessRoute(ctx context.Context, client Querier, route catalog.Route, dir string, indent bool) error {
	routeDir := filepath.Join(dir, route.RelationID)

	ways, err := client.Query(ctx, overpass.WaysQuery(route.RelationID))
	if err != nil {
		return fmt.Errorf("ways: %w", err)
	}
	if err := geo.WriteFile(filepath.Join(routeDir, catalog.WaysFile), overpass.Ways(ways), indent); err != nil {
		return err
	}

	nodes, err := client.Query(ctx, overpass.StopsQuery(route.RelationID, route.Type))
	if err != nil {
		return fmt.Errorf("stops: %w", err)
	}

	return geo.WriteFile(filepath.Join(routeDir, catalog.StopFile(route.Type)), overpass.Nodes(nodes), indent)
}

// cachedFiles are the files whose presence marks a relation as fetched.
var cachedFiles = []string{catalog.WaysFile, "stops.geojson", "endstops.geojson"}

// HasCachedFiles reports whether any cached file exists for the relation.
func HasCachedFiles(dir, relationID string) bool {
	for _, name := range cachedFiles {
		if _, err := os.Stat(filepath.Join(dir, relationID, name)); err == nil {
			return true
		}
	}

	return false
}
