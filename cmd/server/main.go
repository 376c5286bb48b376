package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/jessevdk/go-flags"
	"github.com/rs/zerolog/log"

	"github.com/transportforbandung/transitmap/internal/catalog"
	"github.com/transportforbandung/transitmap/internal/config"
	"github.com/transportforbandung/transitmap/internal/layers"
	"github.com/transportforbandung/transitmap/internal/logger"
	"github.com/transportforbandung/transitmap/internal/overpass"
	"github.com/transportforbandung/transitmap/internal/server"
	"github.com/transportforbandung/transitmap/internal/site"
	"github.com/transportforbandung/transitmap/internal/stops"
)

type Options struct {
	Logger logger.Logger `group:"Logger options"`

	ConfigFile string `short:"c" long:"config"  env:"CONFIG_FILE"    description:"Path to configuration file" default:"config.yaml"`
	Addr       string `short:"a" long:"addr"    env:"LISTEN_ADDRESS" description:"Address to listen on"       default:"0.0.0.0"`
	Port       int    `short:"p" long:"port"    env:"LISTEN_PORT"    description:"Port to listen on"          default:"8080"`
	NoLive     bool   `long:"no-live"           env:"NO_LIVE"        description:"Serve cached routes only, never query Overpass"`
	NoWatch    bool   `long:"no-watch"          env:"NO_WATCH"       description:"Do not reload the route catalog on change"`
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

	// Setup Logging
	opts.Logger.Setup()

	// Load Config
	cfg, err := config.Load(opts.ConfigFile)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to load configuration")
	}

	cat, err := catalog.Load(cfg.CatalogFile)
	if err != nil {
		log.Fatal().Err(err).Str("path", cfg.CatalogFile).Msg("Failed to load route catalog")
	}

	idx, err := stops.LoadIndex(filepath.Join(cfg.StopsDir(), stops.AllStopsFile), cfg.Stops.MinZoom)
	if err != nil {
		log.Warn().Err(err).Msg("Bus stop census not loaded, stops disabled")
	}

	sources := []layers.Source{layers.LocalSource{Dir: cfg.GeoJSONDir()}}
	if !opts.NoLive {
		sources = append(sources, layers.OverpassSource{Client: overpass.New(overpass.Options{
			HTTPClient: &http.Client{Timeout: cfg.Overpass.Timeout},
			Endpoint:   cfg.Overpass.Endpoint,
			UserAgent:  cfg.Overpass.UserAgent,
			Interval:   cfg.Overpass.Interval,
			RetryDelay: cfg.Overpass.RetryDelay,
			Retries:    cfg.Overpass.Retries,
		})})
	}
	loader := layers.NewLoader(cfg.Cache.Size, cfg.Cache.TTL, sources...)

	bundle, err := site.Build(cfg)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to build site")
	}

	srvCtx, err := server.NewServerContext(cfg, cat, loader, idx, bundle)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to initialize server")
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if !opts.NoWatch {
		watcher, err := catalog.NewWatcher(cfg.CatalogFile, 500*time.Millisecond, srvCtx.SetCatalog)
		if err != nil {
			log.Fatal().Err(err).Msg("Failed to watch route catalog")
		}
		watcher.Start(ctx)
		defer watcher.Stop()
	}

	listenAddr := fmt.Sprintf("%s:%d", opts.Addr, opts.Port)
	httpServer := &http.Server{
		Addr:              listenAddr,
		Handler:           srvCtx.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		_ = httpServer.Shutdown(shutdownCtx)
	}()

	log.Info().
		Str("addr", listenAddr).
		Int("routes", len(cat.Unique())).
		Bool("live", !opts.NoLive).
		Msg("Web server started")

	if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		log.Fatal().Err(err).Msg("Server failed")
	}

	log.Info().Msg("Web server stopped")
}
