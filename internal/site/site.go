// Package site renders the single page map application from the embedded assets.
package site

import (
	"bytes"
	"encoding/json"
	"fmt"
	"text/template"

	"github.com/tdewolff/minify/v2"
	"github.com/tdewolff/minify/v2/css"
	"github.com/tdewolff/minify/v2/html"
	"github.com/tdewolff/minify/v2/js"
	"github.com/tdewolff/minify/v2/svg"

	"github.com/transportforbandung/transitmap/assets"
	"github.com/transportforbandung/transitmap/internal/config"
)

// LocalTilesURL is the tile template served from prefetched tiles.
const LocalTilesURL = "/tiles/{z}/{x}/{y}.webp"

// Page is the data handed to index.html.tpl.
type Page struct {
	Title  string
	CSS    string
	JS     string
	SVG    string
	Config string
}

// Bundle is the rendered site.
type Bundle struct {
	Index   []byte
	Favicon []byte
}

// clientConfig is injected into the page as window.TRANSITMAP.
type clientConfig struct {
	Attribution string         `json:"attribution"`
	Tiles       string         `json:"tiles"`
	Basemap     config.Basemap `json:"basemap"`
	View        config.View    `json:"view"`
	Stops       config.Stops   `json:"stops"`
}

// NewMinifier returns a minifier for every asset type of the page.
func NewMinifier() *minify.M {
	m := minify.New()
	m.AddFunc("text/css", css.Minify)
	m.AddFunc("text/html", html.Minify)
	m.AddFunc("text/javascript", js.Minify)
	m.AddFunc("image/svg+xml", svg.Minify)

	return m
}

// Build minifies the embedded assets, renders the page template with the map
// settings from cfg and minifies the result.
func Build(cfg *config.Config) (*Bundle, error) {
	m := NewMinifier()

	cssMin, err := m.String("text/css", assets.Style)
	if err != nil {
		return nil, fmt.Errorf("minify css: %w", err)
	}
	jsMin, err := m.String("text/javascript", assets.Script)
	if err != nil {
		return nil, fmt.Errorf("minify js: %w", err)
	}
	svgMin, err := m.String("image/svg+xml", assets.Favicon)
	if err != nil {
		return nil, fmt.Errorf("minify svg: %w", err)
	}

	client := clientConfig{
		Attribution: cfg.Attribution,
		Tiles:       cfg.Basemap.URL,
		Basemap:     cfg.Basemap,
		View:        cfg.View,
		Stops:       cfg.Stops,
	}
	if cfg.Basemap.Prefetch {
		client.Tiles = LocalTilesURL
	}
	clientJSON, err := json.Marshal(client)
	if err != nil {
		return nil, err
	}

	tmpl, err := template.New("index").Parse(assets.IndexTemplate)
	if err != nil {
		return nil, fmt.Errorf("parse template: %w", err)
	}

	var buf bytes.Buffer
	err = tmpl.Execute(&buf, Page{
		Title:  cfg.Title,
		CSS:    cssMin,
		JS:     jsMin,
		SVG:    svgMin,
		Config: string(clientJSON),
	})
	if err != nil {
		return nil, fmt.Errorf("render template: %w", err)
	}

	index, err := m.Bytes("text/html", buf.Bytes())
	if err != nil {
		return nil, fmt.Errorf("minify html: %w", err)
	}

	return &Bundle{Index: index, Favicon: []byte(svgMin)}, nil
}
