package main

import (
	"os"
	"path/filepath"

	"github.com/jessevdk/go-flags"
	"github.com/rs/zerolog/log"

	"github.com/transportforbandung/transitmap/internal/config"
	"github.com/transportforbandung/transitmap/internal/logger"
	"github.com/transportforbandung/transitmap/internal/site"
)

type Options struct {
	Logger logger.Logger `group:"Logger options"`

	ConfigFile string `short:"c" long:"config" env:"CONFIG_FILE" description:"Path to configuration file" default:"config.yaml"`
	Output     string `short:"o" long:"out"    env:"OUTPUT_DIR"  description:"Directory receiving index.html and favicon.svg" default:"public"`
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

	bundle, err := site.Build(cfg)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to build site")
	}

	if err := os.MkdirAll(opts.Output, 0o755); err != nil {
		log.Fatal().Err(err).Msg("Failed to create output directory")
	}
	for name, data := range map[string][]byte{"index.html": bundle.Index, "favicon.svg": bundle.Favicon} {
		if err := os.WriteFile(filepath.Join(opts.Output, name), data, 0o644); err != nil {
			log.Fatal().Err(err).Str("file", name).Msg("Failed to write site file")
		}
	}

	log.Info().Int("bytes", len(bundle.Index)).Str("dir", opts.Output).Msg("Minify done")
}
