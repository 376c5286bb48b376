package layers

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/bluele/gcache"
	"github.com/rs/zerolog/log"
	"golang.org/x/sync/singleflight"

	"github.com/transportforbandung/transitmap/internal/catalog"
)

// Loader caches layers by relation id and fills misses from its sources in
// order, typically the local GeoJSON cache first and Overpass second.
type Loader struct {
	cache   gcache.Cache
	group   singleflight.Group
	sources []Source
}

// NewLoader builds a loader holding at most size layers. A positive ttl
// expires layers so live Overpass results are eventually refreshed.
func NewLoader(size int, ttl time.Duration, sources ...Source) *Loader {
	if size <= 0 {
		size = 256
	}

	b := gcache.New(size).LRU()
	if ttl > 0 {
		b = b.Expiration(ttl)
	}

	return &Loader{cache: b.Build(), sources: sources}
}

// Load returns the layer for route, from cache when possible.
// Concurrent loads of the same relation share one fetch.
func (l *Loader) Load(ctx context.Context, route catalog.Route) (*Layer, error) {
	if v, err := l.cache.Get(route.RelationID); err == nil {
		return v.(*Layer), nil
	}

	// the fetch outlives the caller that started it so coalesced callers are
	// not failed by someone else's cancellation
	fetchCtx := context.WithoutCancel(ctx)
	ch := l.group.DoChan(route.RelationID, func() (interface{}, error) {
		// a concurrent caller may have filled the cache since the miss above
		if v, err := l.cache.Get(route.RelationID); err == nil {
			return v, nil
		}

		layer, err := l.fetch(fetchCtx, route)
		if err != nil {
			return nil, err
		}

		if err := l.cache.Set(route.RelationID, layer); err != nil {
			log.Warn().Err(err).Str("relation", route.RelationID).Msg("Failed to cache layer")
		}
		return layer, nil
	})

	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case res := <-ch:
		if res.Err != nil {
			return nil, res.Err
		}
		if res.Shared {
			log.Trace().Str("relation", route.RelationID).Msg("Layer load shared with concurrent request")
		}
		return res.Val.(*Layer), nil
	}
}

func (l *Loader) fetch(ctx context.Context, route catalog.Route) (*Layer, error) {
	if len(l.sources) == 0 {
		return nil, fmt.Errorf("relation %s: no layer sources configured", route.RelationID)
	}

	errs := make([]error, 0, len(l.sources))
	for _, src := range l.sources {
		start := time.Now()
		layer, err := src.Fetch(ctx, route)
		if err == nil {
			log.Debug().
				Str("relation", route.RelationID).
				Str("source", src.Name()).
				Int("ways", len(layer.Ways.Features)).
				Int("stops", len(layer.Stops.Features)).
				Dur("duration", time.Since(start)).
				Msg("Layer loaded")
			return layer, nil
		}

		errs = append(errs, fmt.Errorf("%s: %w", src.Name(), err))

		if ctx.Err() != nil {
			break
		}

		log.Warn().
			Err(err).
			Str("relation", route.RelationID).
			Str("source", src.Name()).
			Msg("Layer source failed, trying next")
	}

	return nil, &LoadError{RelationID: route.RelationID, Err: errors.Join(errs...)}
}

// Evict drops one relation from the cache.
func (l *Loader) Evict(relationID string) bool {
	return l.cache.Remove(relationID)
}

// Purge empties the cache.
func (l *Loader) Purge() {
	l.cache.Purge()
}

// Cached reports whether a layer for the relation is cached.
func (l *Loader) Cached(relationID string) bool {
	_, err := l.cache.GetIFPresent(relationID)
	return err == nil
}

// LoadError reports that every source failed for a relation.
type LoadError struct {
	Err        error
	RelationID string
}

func (e *LoadError) Error() string {
	return fmt.Sprintf("relation %s: all layer sources failed: %v", e.RelationID, e.Err)
}

func (e *LoadError) Unwrap() error { return e.Err }
