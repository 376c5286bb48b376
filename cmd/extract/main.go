package main

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/jessevdk/go-flags"
	"gopkg.in/yaml.v3"

	"github.com/transportforbandung/transitmap/internal/catalog"
)

type Options struct {
	Input  string `short:"i" long:"in"     description:"Input HTML page with the route menu. Reads from stdin if empty"`
	Output string `short:"o" long:"out"    description:"Output file path. Writes to stdout if empty"`
	Format string `short:"f" long:"format" description:"Output format" choice:"json" choice:"yaml" default:"json"`
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

	var in io.Reader = os.Stdin
	if opts.Input != "" {
		f, err := os.Open(opts.Input)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error reading input file: %v\n", err)
			os.Exit(1)
		}
		defer func() { _ = f.Close() }()
		in = f
	}

	cat, err := catalog.ExtractHTML(in)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error parsing HTML: %v\n", err)
		os.Exit(1)
	}
	if err := cat.Validate(); err != nil {
		fmt.Fprintf(os.Stderr, "Warning: extracted catalog is not valid: %v\n", err)
	}

	var outputData []byte
	if opts.Format == "yaml" {
		outputData, err = yaml.Marshal(cat)
	} else {
		outputData, err = json.MarshalIndent(cat, "", "  ")
	}
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error marshaling data: %v\n", err)
		os.Exit(1)
	}

	routes := len(cat.Routes())
	if opts.Output != "" {
		if err := os.WriteFile(opts.Output, outputData, 0o644); err != nil {
			fmt.Fprintf(os.Stderr, "Error writing output file: %v\n", err)
			os.Exit(1)
		}
		fmt.Fprintf(os.Stderr, "Successfully extracted %d routes in %d categories to %s (format: %s)\n",
			routes, len(cat.Categories), opts.Output, opts.Format)
	} else {
		fmt.Println(strings.TrimRight(string(outputData), "\n"))
	}
}
