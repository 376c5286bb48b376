package site

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/transportforbandung/transitmap/internal/config"
)

func TestBuild(t *testing.T) {
	cfg, err := config.Parse([]byte("title: Peta Uji\nattribution: Uji Transit\n"))
	require.NoError(t, err)

	b, err := Build(cfg)
	require.NoError(t, err)

	page := string(b.Index)
	assert.Contains(t, page, "Peta Uji")
	assert.Contains(t, page, "Uji Transit")
	assert.Contains(t, page, "tile.openstreetmap.org/{z}/{x}/{y}.png")
	assert.Contains(t, page, "window.TRANSITMAP")
	assert.NotContains(t, page, "{{")
	assert.Contains(t, string(b.Favicon), "<svg")
}

func TestBuildPrefetchedTiles(t *testing.T) {
	cfg, err := config.Parse([]byte("basemap:\n  prefetch: true\n"))
	require.NoError(t, err)

	b, err := Build(cfg)
	require.NoError(t, err)
	assert.Contains(t, string(b.Index), LocalTilesURL)
}
