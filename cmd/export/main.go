package main

import (
	"os"
	"path/filepath"

	"github.com/jessevdk/go-flags"
	"github.com/rs/zerolog/log"

	"github.com/transportforbandung/transitmap/internal/catalog"
	"github.com/transportforbandung/transitmap/internal/config"
	"github.com/transportforbandung/transitmap/internal/export"
	"github.com/transportforbandung/transitmap/internal/logger"
)

type Options struct {
	Logger logger.Logger `group:"Logger options"`

	ConfigFile string `short:"c" long:"config" env:"CONFIG_FILE" description:"Path to configuration file" default:"config.yaml"`
	Format     string `short:"f" long:"format" env:"FORMAT"      description:"Export format" choice:"kml" choice:"shp" choice:"shp-lines" default:"kml"`
	Output     string `short:"o" long:"out"    env:"OUTPUT_DIR"  description:"Output directory (default <data_dir>/<format>-named)"`
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

	cat, err := catalog.Load(cfg.CatalogFile)
	if err != nil {
		log.Fatal().Err(err).Str("path", cfg.CatalogFile).Msg("Failed to load route catalog")
	}

	out := opts.Output
	if out == "" {
		out = filepath.Join(cfg.DataDir, defaultDir(opts.Format))
	}

	report, err := export.ExportAll(cat, cfg.GeoJSONDir(), out, export.Options{
		Format: export.Format(opts.Format),
		Source: cfg.Attribution,
	})
	if err != nil {
		log.Fatal().Err(err).Msg("Export failed")
	}

	log.Info().
		Int("written", len(report.Written)).
		Int("skipped", len(report.Skipped)).
		Str("dir", out).
		Msg("Export finished")
}

func defaultDir(format string) string {
	switch format {
	case "shp":
		return "shp-named"
	case "shp-lines":
		return "shp-named-ungrouped"
	}
	return "kml-named"
}
