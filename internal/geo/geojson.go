// Package geo handles GeoJSON files, bounding boxes and tile coordinates.
package geo

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"github.com/paulmach/orb/geojson"
)

// ReadFile loads a FeatureCollection from disk.
func ReadFile(path string) (*geojson.FeatureCollection, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	fc, err := geojson.UnmarshalFeatureCollection(data)
	if err != nil {
		return nil, fmt.Errorf("decode %s: %w", path, err)
	}

	return fc, nil
}

// WriteFile marshals the feature collection and writes it to disk,
// creating parent directories as needed.
func WriteFile(path string, fc *geojson.FeatureCollection, indent bool) error {
	if fc == nil {
		fc = geojson.NewFeatureCollection()
	}

	var (
		data []byte
		err  error
	)
	if indent {
		data, err = json.MarshalIndent(fc, "", "  ")
	} else {
		data, err = json.Marshal(fc)
	}
	if err != nil {
		return err
	}

	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return err
	}

	// write to a sibling file first so readers never observe a partial collection
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, data, 0644); err != nil {
		return err
	}

	return os.Rename(tmp, path)
}

// Merge concatenates the features of every collection in order.
// Nil collections are skipped.
func Merge(collections ...*geojson.FeatureCollection) *geojson.FeatureCollection {
	out := geojson.NewFeatureCollection()
	for _, fc := range collections {
		if fc == nil {
			continue
		}
		out.Features = append(out.Features, fc.Features...)
	}

	return out
}
