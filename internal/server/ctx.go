package server

import (
	"bytes"
	"fmt"
	"image"
	"sync/atomic"
	"time"

	"github.com/chai2010/webp"
	"github.com/rs/zerolog/log"

	"github.com/transportforbandung/transitmap/internal/catalog"
	"github.com/transportforbandung/transitmap/internal/config"
	"github.com/transportforbandung/transitmap/internal/layers"
	"github.com/transportforbandung/transitmap/internal/site"
	"github.com/transportforbandung/transitmap/internal/stops"
)

// ServerContext holds dependencies for request handlers.
// The catalog and stop index are swapped atomically on reload.
type ServerContext struct {
	Config          *config.Config
	Loader          *layers.Loader
	Now             func() time.Time
	catalog         atomic.Pointer[catalog.Catalog]
	stops           atomic.Pointer[stops.Index]
	IndexHTML       []byte
	Favicon         []byte
	TransparentTile []byte
}

// NewServerContext wires the handlers to the loaded catalog, the layer loader
// and the rendered site. idx may be nil when no stop census exists yet.
func NewServerContext(cfg *config.Config, cat *catalog.Catalog, loader *layers.Loader, idx *stops.Index, bundle *site.Bundle) (*ServerContext, error) {
	tile, err := transparentTile(256)
	if err != nil {
		return nil, fmt.Errorf("encode transparent tile: %w", err)
	}

	s := &ServerContext{
		Config:          cfg,
		Loader:          loader,
		Now:             time.Now,
		IndexHTML:       bundle.Index,
		Favicon:         bundle.Favicon,
		TransparentTile: tile,
	}
	s.catalog.Store(cat)
	if idx != nil {
		s.stops.Store(idx)
	}

	stopCount := 0
	if idx != nil {
		stopCount = idx.Len()
	}
	log.Info().
		Int("routes", len(cat.Unique())).
		Int("stops", stopCount).
		Msg("Server context initialized successfully")

	return s, nil
}

// Catalog returns the current route catalog.
func (s *ServerContext) Catalog() *catalog.Catalog {
	return s.catalog.Load()
}

// SetCatalog replaces the catalog and drops every cached layer, since cached
// layers carry the style of the old catalog.
func (s *ServerContext) SetCatalog(c *catalog.Catalog) {
	s.catalog.Store(c)
	s.Loader.Purge()

	log.Info().Int("routes", len(c.Unique())).Msg("Route catalog reloaded")
}

// Stops returns the stop index or nil.
func (s *ServerContext) Stops() *stops.Index {
	return s.stops.Load()
}

// SetStops replaces the stop index.
func (s *ServerContext) SetStops(idx *stops.Index) {
	s.stops.Store(idx)
}

func transparentTile(size int) ([]byte, error) {
	var buf bytes.Buffer
	img := image.NewNRGBA(image.Rect(0, 0, size, size))
	if err := webp.Encode(&buf, img, &webp.Options{Lossless: true}); err != nil {
		return nil, err
	}

	return buf.Bytes(), nil
}
