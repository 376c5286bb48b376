// Package config handles configuration loading and shared data structures.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"
)

// Defaults applied to zero values after validation.
const (
	DefaultOverpassEndpoint = "https://overpass-api.de/api/interpreter"
	DefaultUserAgent        = "transitmap/1.0 (+https://github.com/transportforbandung/transitmap)"
	DefaultAttribution      = "Transport for Bandung"
	DefaultTitle            = "Peta Transportasi Umum Bandung"
	DefaultBasemapURL       = "https://tile.openstreetmap.org/{z}/{x}/{y}.png"
	DefaultStopsBBox        = "-7.119970883040842,107.29935103886602,-6.7164372353137045,108.00522056337834"
	DefaultStopsMinZoom     = 16
	DefaultCacheSize        = 256
)

// Config represents the root configuration file structure.
type Config struct {
	Filters     map[string]string `yaml:"stop_filters,omitempty" json:"-"`
	Title       string            `yaml:"title,omitempty" json:"title,omitempty"`
	Attribution string            `yaml:"attribution,omitempty" json:"attribution,omitempty"`
	DataDir     string            `yaml:"data_dir,omitempty" json:"-"`
	CatalogFile string            `yaml:"catalog,omitempty" json:"-"`
	Overpass    Overpass          `yaml:"overpass" json:"-"`
	Basemap     Basemap           `yaml:"basemap" json:"basemap"`
	View        View              `yaml:"view" json:"view"`
	Stops       Stops             `yaml:"stops" json:"stops"`
	Cache       Cache             `yaml:"cache" json:"-"`
}

// Overpass configures the Overpass API client.
type Overpass struct {
	Endpoint   string        `yaml:"endpoint,omitempty" validate:"omitempty,url"`
	UserAgent  string        `yaml:"user_agent,omitempty"`
	Timeout    time.Duration `yaml:"timeout,omitempty" validate:"gte=0"`
	RetryDelay time.Duration `yaml:"retry_delay,omitempty" validate:"gte=0"`
	Interval   time.Duration `yaml:"interval,omitempty" validate:"gte=0"`
	Retries    int           `yaml:"retries,omitempty" validate:"gte=0,lte=10"`
}

// Basemap describes the raster tile source shown under the routes.
type Basemap struct {
	URL         string `yaml:"url,omitempty" json:"-"`
	Attribution string `yaml:"attribution,omitempty" json:"attribution,omitempty"`
	MinZoom     int    `yaml:"min_zoom,omitempty" json:"min_zoom" validate:"gte=0,lte=22"`
	MaxZoom     int    `yaml:"max_zoom,omitempty" json:"max_zoom" validate:"gte=0,lte=22"`
	// Prefetch switches the page to tiles served from the local cache.
	Prefetch bool `yaml:"prefetch,omitempty" json:"prefetch"`
}

// View is the initial map position.
type View struct {
	Lat  float64 `yaml:"lat" json:"lat" validate:"gte=-90,lte=90"`
	Lon  float64 `yaml:"lon" json:"lon" validate:"gte=-180,lte=180"`
	Zoom int     `yaml:"zoom" json:"zoom" validate:"gte=0,lte=22"`
}

// Stops configures the bus stop census and display.
type Stops struct {
	BBox    string `yaml:"bbox,omitempty" json:"-"`
	MinZoom int    `yaml:"min_zoom,omitempty" json:"min_zoom" validate:"gte=0,lte=22"`
}

// Cache configures the in-memory route layer cache.
type Cache struct {
	Size int           `yaml:"size,omitempty" validate:"gte=0"`
	TTL  time.Duration `yaml:"ttl,omitempty" validate:"gte=0"`
}

// Load reads and parses the YAML configuration file from the specified path.
// A missing file yields the defaults.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return Parse(nil)
		}
		return nil, err
	}

	return Parse(data)
}

// Parse decodes, validates and fills defaults for a YAML document.
func Parse(data []byte) (*Config, error) {
	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, err
	}

	if err := validator.New().Struct(cfg); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	if cfg.Basemap.MaxZoom > 0 && cfg.Basemap.MinZoom > cfg.Basemap.MaxZoom {
		return nil, fmt.Errorf("invalid configuration: basemap min_zoom %d above max_zoom %d", cfg.Basemap.MinZoom, cfg.Basemap.MaxZoom)
	}

	cfg.applyDefaults()
	return &cfg, nil
}

func (c *Config) applyDefaults() {
	if c.Title == "" {
		c.Title = DefaultTitle
	}
	if c.Attribution == "" {
		c.Attribution = DefaultAttribution
	}
	if c.DataDir == "" {
		c.DataDir = "route-data"
	}
	if c.CatalogFile == "" {
		c.CatalogFile = filepath.Join(c.DataDir, "routes.json")
	}

	if c.Overpass.Endpoint == "" {
		c.Overpass.Endpoint = DefaultOverpassEndpoint
	}
	if c.Overpass.UserAgent == "" {
		c.Overpass.UserAgent = DefaultUserAgent
	}
	if c.Overpass.Timeout == 0 {
		c.Overpass.Timeout = 15 * time.Second
	}
	if c.Overpass.RetryDelay == 0 {
		c.Overpass.RetryDelay = 2 * time.Second
	}
	if c.Overpass.Interval == 0 {
		c.Overpass.Interval = time.Second
	}
	if c.Overpass.Retries == 0 {
		c.Overpass.Retries = 3
	}

	if c.Basemap.URL == "" {
		c.Basemap.URL = DefaultBasemapURL
	}
	if c.Basemap.Attribution == "" {
		c.Basemap.Attribution = `&copy; <a href="https://www.openstreetmap.org/copyright">OpenStreetMap</a> contributors`
	}
	if c.Basemap.MaxZoom == 0 {
		c.Basemap.MinZoom, c.Basemap.MaxZoom = 10, 14
	}

	if c.View.Lat == 0 && c.View.Lon == 0 {
		c.View.Lat, c.View.Lon = -6.9104, 107.6183
	}
	if c.View.Zoom == 0 {
		c.View.Zoom = 12
	}

	if c.Stops.BBox == "" {
		c.Stops.BBox = DefaultStopsBBox
	}
	if c.Stops.MinZoom == 0 {
		c.Stops.MinZoom = DefaultStopsMinZoom
	}

	if c.Cache.Size == 0 {
		c.Cache.Size = DefaultCacheSize
	}
}

// GeoJSONDir is the directory holding one sub-directory per relation.
func (c *Config) GeoJSONDir() string { return filepath.Join(c.DataDir, "geojson") }

// StopsDir is the directory holding the bus stop census files.
func (c *Config) StopsDir() string { return filepath.Join(c.DataDir, "bus-stop") }

// TilesDir is the directory holding prefetched basemap tiles.
func (c *Config) TilesDir() string { return filepath.Join(c.DataDir, "tiles") }
