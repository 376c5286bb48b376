package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/jessevdk/go-flags"
	"github.com/rs/zerolog/log"

	"github.com/transportforbandung/transitmap/internal/catalog"
	"github.com/transportforbandung/transitmap/internal/config"
	"github.com/transportforbandung/transitmap/internal/geo"
	"github.com/transportforbandung/transitmap/internal/logger"
	"github.com/transportforbandung/transitmap/internal/overpass"
	"github.com/transportforbandung/transitmap/internal/processor"
)

type Options struct {
	Logger logger.Logger `group:"Logger options"`

	ConfigFile  string   `short:"c" long:"config"      env:"CONFIG_FILE"  description:"Path to configuration file" default:"config.yaml"`
	Target      string   `short:"t" long:"target"      env:"TARGET"       description:"What to fetch" choice:"routes" choice:"stops" choice:"tiles" default:"routes"`
	Mode        string   `short:"m" long:"mode"        env:"MODE"         description:"Fetch every route or only routes without cached data" choice:"all" choice:"new" default:"all"`
	Limit       []string `short:"l" long:"limit"       env:"LIMIT_IDS"    description:"Limit processing to specific relation ids"`
	Concurrency int      `short:"p" long:"concurrency" env:"CONCURRENCY"  description:"Concurrent routes or tile downloads" default:"1"`
	Pretty      bool     `long:"pretty"                env:"PRETTY"       description:"Indent written GeoJSON"`
	Force       bool     `short:"f" long:"force"       description:"Force overwrite of existing tiles"`
}

func main() {
	var opts Options
	parser := flags.NewParser(&opts, flags.Default)
	if _, err := parser.Parse(); err != nil {
		if flagsErr, ok := err.(*flags.Error); ok && flagsErr.Type == flags.ErrHelp {
			os.Exit(0)
		}
		os.Exit(1)
	}

	opts.Logger.Setup()

	cfg, err := config.Load(opts.ConfigFile)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to load configuration")
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	httpClient := &http.Client{Timeout: cfg.Overpass.Timeout}
	client := overpass.New(overpass.Options{
		HTTPClient: httpClient,
		Endpoint:   cfg.Overpass.Endpoint,
		UserAgent:  cfg.Overpass.UserAgent,
		Interval:   cfg.Overpass.Interval,
		RetryDelay: cfg.Overpass.RetryDelay,
		Retries:    cfg.Overpass.Retries,
	})

	log.Info().
		Str("target", opts.Target).
		Str("endpoint", cfg.Overpass.Endpoint).
		Msg("Starting loader")

	switch opts.Target {
	case "routes":
		loadRoutes(ctx, client, cfg, opts)
	case "stops":
		loadStops(ctx, client, cfg, opts)
	case "tiles":
		loadTiles(ctx, cfg, opts)
	}

	log.Info().Msg("Loader finished successfully")
}

func loadRoutes(ctx context.Context, client *overpass.Client, cfg *config.Config, opts Options) {
	cat, err := catalog.Load(cfg.CatalogFile)
	if err != nil {
		log.Fatal().Err(err).Str("path", cfg.CatalogFile).Msg("Failed to load route catalog")
	}

	if len(opts.Limit) > 0 {
		var missing []string
		cat, missing = cat.Filter(opts.Limit)
		for _, id := range missing {
			log.Error().Str("relation", id).Msg("Relation specified in --limit not found in catalog")
		}
	}

	report, err := processor.ProcessRoutes(ctx, client, cat.Routes(), processor.RouteOptions{
		Dir:         cfg.GeoJSONDir(),
		Mode:        processor.Mode(opts.Mode),
		Concurrency: opts.Concurrency,
		RetryDelay:  cfg.Overpass.RetryDelay,
		Indent:      opts.Pretty,
	})
	if err != nil {
		log.Fatal().Err(err).Msg("Route processing interrupted")
	}

	for id, ferr := range report.Failed {
		log.Error().Err(ferr).Str("relation", id).Msg("Failed to process relation")
	}
	if !report.OK() {
		log.Warn().Int("failed", len(report.Failed)).Msg("Some relations could not be fetched")
	}
}

func loadStops(ctx context.Context, client *overpass.Client, cfg *config.Config, opts Options) {
	bbox, err := geo.ParseBBox(cfg.Stops.BBox)
	if err != nil {
		log.Fatal().Err(err).Msg("Invalid stop census bounding box")
	}

	n, err := processor.ProcessStops(ctx, client, processor.StopOptions{
		Filters: cfg.Filters,
		Dir:     cfg.StopsDir(),
		BBox:    bbox,
		Indent:  opts.Pretty,
	})
	if err != nil {
		log.Fatal().Err(err).Int("stops", n).Msg("Bus stop census failed")
	}

	log.Info().Int("stops", n).Str("dir", cfg.StopsDir()).Msg("Bus stop census saved")
}

func loadTiles(ctx context.Context, cfg *config.Config, opts Options) {
	bbox, err := geo.ParseBBox(cfg.Stops.BBox)
	if err != nil {
		log.Fatal().Err(err).Msg("Invalid tile bounding box")
	}

	concurrency := opts.Concurrency
	if concurrency <= 1 {
		concurrency = 8
	}

	client := &http.Client{
		Transport: &http.Transport{
			MaxIdleConns:        100,
			MaxIdleConnsPerHost: concurrency,
		},
		Timeout: 15 * time.Second,
	}

	_, err = processor.ProcessTiles(ctx, client, processor.TileOptions{
		URLTemplate: cfg.Basemap.URL,
		UserAgent:   cfg.Overpass.UserAgent,
		Dir:         cfg.TilesDir(),
		BBox:        bbox,
		MinZoom:     cfg.Basemap.MinZoom,
		MaxZoom:     cfg.Basemap.MaxZoom,
		Concurrency: concurrency,
		Force:       opts.Force,
	})
	if err != nil {
		log.Fatal().Err(err).Msg("Tile download interrupted")
	}
}
