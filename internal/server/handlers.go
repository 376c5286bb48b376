// Package server handles HTTP requests and middleware.
package server

import (
	"encoding/json"
	"fmt"
	"net/http"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/rs/zerolog/log"

	"github.com/transportforbandung/transitmap/internal/catalog"
	"github.com/transportforbandung/transitmap/internal/export"
	"github.com/transportforbandung/transitmap/internal/geo"
	"github.com/transportforbandung/transitmap/internal/layers"
	"github.com/transportforbandung/transitmap/internal/stops"
)

const (
	etagCap        = 64
	contentGeoJSON = "application/geo+json"
)

// Handler returns the routed application with its middleware.
func (s *ServerContext) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /api/routes", s.HandleRoutesList)
	mux.HandleFunc("GET /api/routes/{id}", s.HandleRoute)
	mux.HandleFunc("GET /api/routes/{id}/download", s.HandleRouteDownload)
	mux.HandleFunc("GET /api/stops", s.HandleStops)
	mux.HandleFunc("GET /api/stops/{id}", s.HandleStop)
	mux.HandleFunc("GET /data/{path...}", s.HandleData)
	mux.HandleFunc("GET /tiles/{z}/{x}/{y}", s.HandleTile)
	mux.HandleFunc("GET /healthz", s.HandleHealth)
	mux.HandleFunc("GET /favicon.svg", s.HandleFavicon)
	mux.HandleFunc("GET /{$}", s.HandleIndex)

	return RequestID(RequestLogger(CORS(mux)))
}

// HandleRoutesList serves the route catalog.
func (s *ServerContext) HandleRoutesList(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, s.Catalog())
}

// HandleRoute serves the styled layer of one route.
func (s *ServerContext) HandleRoute(w http.ResponseWriter, r *http.Request) {
	layer, ok := s.loadLayer(w, r)
	if !ok {
		return
	}

	w.Header().Set("X-Layer-Source", layer.Source)
	writeGeoJSON(w, layer.FeatureCollection())
}

// HandleRouteDownload serves a route as an attachment, GeoJSON by default or
// KML with ?format=kml.
func (s *ServerContext) HandleRouteDownload(w http.ResponseWriter, r *http.Request) {
	format := r.URL.Query().Get("format")
	if format != "" && format != "geojson" && format != "kml" {
		writeError(w, http.StatusBadRequest, fmt.Sprintf("unsupported format %q", format))
		return
	}

	layer, ok := s.loadLayer(w, r)
	if !ok {
		return
	}
	route := catalog.Route{Name: layer.Name, RelationID: layer.RelationID, Color: layer.Color, Type: layer.Type}

	if format == "kml" {
		fc := export.Combined(layer.Ways, layer.Stops, layer.Type)
		name := export.SanitizeFilename(route.Name)
		if name == "" {
			name = "relation-" + route.RelationID
		}

		w.Header().Set("Content-Type", "application/vnd.google-earth.kml+xml")
		w.Header().Set("Content-Disposition", fmt.Sprintf(`attachment; filename="%s.kml"`, name))
		if err := export.WriteKML(w, route, fc); err != nil {
			log.Error().Err(err).Str("relation", route.RelationID).Msg("Failed to write KML")
		}
		return
	}

	name := export.DownloadName(route.RelationID, route.Type, s.Now())
	w.Header().Set("Content-Disposition", fmt.Sprintf(`attachment; filename="%s"`, name))
	writeGeoJSON(w, export.Combined(layer.Ways, layer.Stops, layer.Type))
}

func (s *ServerContext) loadLayer(w http.ResponseWriter, r *http.Request) (*layers.Layer, bool) {
	id := r.PathValue("id")

	entry, ok := s.Catalog().Lookup(id)
	if !ok {
		writeError(w, http.StatusNotFound, fmt.Sprintf("%v: %s", catalog.ErrUnknownRoute, id))
		return nil, false
	}

	layer, err := s.Loader.Load(r.Context(), entry.Route)
	if err != nil {
		log.Error().Err(err).Str("relation", id).Msg("Failed to load route")
		writeError(w, http.StatusBadGateway, err.Error())
		return nil, false
	}

	return layer, true
}

// HandleStops serves the stops inside ?bbox=south,west,north,east. Nothing is
// returned below the stop display zoom.
func (s *ServerContext) HandleStops(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()

	b, err := geo.ParseBBox(q.Get("bbox"))
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	zoom, err := strconv.Atoi(q.Get("zoom"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "zoom must be an integer")
		return
	}

	var found []stops.Stop
	if idx := s.Stops(); idx != nil {
		found = idx.Within(b, zoom)
	}

	writeGeoJSON(w, stops.FeatureCollection(found))
}

// HandleStop serves a stop with the routes serving it grouped by category.
func (s *ServerContext) HandleStop(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.ParseInt(r.PathValue("id"), 10, 64)
	if err != nil {
		writeError(w, http.StatusBadRequest, "stop id must be an integer")
		return
	}

	idx := s.Stops()
	if idx == nil {
		writeError(w, http.StatusNotFound, "no stop data loaded")
		return
	}
	stop, ok := idx.Get(id)
	if !ok {
		writeError(w, http.StatusNotFound, fmt.Sprintf("unknown stop %d", id))
		return
	}

	writeJSON(w, http.StatusOK, stops.Summarize(stop, s.Catalog()))
}

// HandleData serves cached GeoJSON files below the data directory.
func (s *ServerContext) HandleData(w http.ResponseWriter, r *http.Request) {
	rel := r.PathValue("path")
	if !strings.HasSuffix(rel, ".geojson") || !filepath.IsLocal(rel) {
		http.NotFound(w, r)
		return
	}

	if !s.serveFile(w, r, filepath.Join(s.Config.DataDir, filepath.FromSlash(rel)), contentGeoJSON) {
		http.NotFound(w, r)
	}
}

// HandleTile serves a prefetched basemap tile or a transparent placeholder.
func (s *ServerContext) HandleTile(w http.ResponseWriter, r *http.Request) {
	z, errZ := strconv.Atoi(r.PathValue("z"))
	x, errX := strconv.Atoi(r.PathValue("x"))
	yName, hasExt := strings.CutSuffix(r.PathValue("y"), ".webp")
	y, errY := strconv.Atoi(yName)
	if errZ != nil || errX != nil || errY != nil || !hasExt || z < 0 || x < 0 || y < 0 {
		http.NotFound(w, r)
		return
	}

	path := filepath.Join(s.Config.TilesDir(), strconv.Itoa(z), strconv.Itoa(x), strconv.Itoa(y)+".webp")
	if s.serveFile(w, r, path, "image/webp") {
		return
	}

	w.Header().Set("Content-Type", "image/webp")
	w.Header().Set("Cache-Control", "public, max-age=3600")
	_, _ = w.Write(s.TransparentTile)
}

// HandleHealth reports liveness with a few counters.
func (s *ServerContext) HandleHealth(w http.ResponseWriter, _ *http.Request) {
	stopCount := 0
	if idx := s.Stops(); idx != nil {
		stopCount = idx.Len()
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"status": "ok",
		"routes": len(s.Catalog().Unique()),
		"stops":  stopCount,
	})
}

// HandleFavicon serves the site favicon.
func (s *ServerContext) HandleFavicon(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "image/svg+xml")
	w.Header().Set("Cache-Control", "public, max-age=86400")
	_, _ = w.Write(s.Favicon)
}

// HandleIndex serves the main HTML application.
func (s *ServerContext) HandleIndex(w http.ResponseWriter, r *http.Request) {
	etag := fmt.Sprintf(`"%x"`, len(s.IndexHTML))

	if match := r.Header.Get("If-None-Match"); match == etag {
		w.WriteHeader(http.StatusNotModified)
		return
	}

	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.Header().Set("ETag", etag)
	w.Header().Set("Cache-Control", "public, no-cache")
	_, _ = w.Write(s.IndexHTML)
}

// serveFile tries to serve a file from disk with ETag generation.
// It returns true if the file was found and served (or 304).
func (s *ServerContext) serveFile(w http.ResponseWriter, r *http.Request, path string, contentType string) bool {
	info, err := os.Stat(path)
	if err != nil {
		return false
	}
	if info.IsDir() {
		return false
	}

	buf := make([]byte, 0, etagCap)
	buf = append(buf, '"')
	buf = strconv.AppendInt(buf, info.Size(), 16)
	buf = append(buf, '-')
	buf = strconv.AppendInt(buf, info.ModTime().UnixNano(), 16)
	buf = append(buf, '"')
	etag := string(buf)

	if match := r.Header.Get("If-None-Match"); match == etag {
		w.WriteHeader(http.StatusNotModified)
		return true
	}

	w.Header().Set("ETag", etag)
	w.Header().Set("Cache-Control", "public, no-cache")

	if contentType != "" {
		w.Header().Set("Content-Type", contentType)
	}

	http.ServeFile(w, r, path)
	return true
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	// Ignoring error as we cannot handle client disconnects
	_ = json.NewEncoder(w).Encode(v)
}

func writeGeoJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", contentGeoJSON)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}
