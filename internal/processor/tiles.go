package processor

import (
	"bytes"
	"context"
	"fmt"
	"image"
	_ "image/jpeg"
	_ "image/png"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"sync"

	"github.com/chai2010/webp"
	"github.com/rs/zerolog/log"
	_ "golang.org/x/image/bmp"
	_ "golang.org/x/image/tiff"
	_ "golang.org/x/image/webp"

	"github.com/transportforbandung/transitmap/internal/geo"
)

// TileOptions tunes ProcessTiles.
type TileOptions struct {
	URLTemplate string
	UserAgent   string
	Dir         string
	BBox        geo.BBox
	MinZoom     int
	MaxZoom     int
	Concurrency int
	Force       bool
}

// TileReport counts tile outcomes.
type TileReport struct {
	Saved   int
	Existed int
	Invalid int
	Failed  int
}

type tileJob struct {
	Coord geo.Tile
	Path  string
}

type tileResult struct {
	Err   error
	State tileState
}

type tileState int

const (
	tileSaved tileState = iota
	tileExisted
	tileInvalid
	tileFailed
)

// ProcessTiles prefetches basemap tiles covering the bounding box for every
// zoom level in range and stores them as <Dir>/{z}/{x}/{y}.webp.
func ProcessTiles(ctx context.Context, client *http.Client, opts TileOptions) (TileReport, error) {
	var report TileReport

	if opts.URLTemplate == "" {
		return report, fmt.Errorf("tile url template is empty")
	}
	if opts.Concurrency <= 0 {
		opts.Concurrency = 4
	}
	if opts.MaxZoom < opts.MinZoom {
		return report, fmt.Errorf("zoom range %d-%d is empty", opts.MinZoom, opts.MaxZoom)
	}

	log.Info().
		Str("bbox", opts.BBox.String()).
		Int("min_zoom", opts.MinZoom).
		Int("max_zoom", opts.MaxZoom).
		Msg("Starting tile download")

	for z := opts.MinZoom; z <= opts.MaxZoom; z++ {
		if err := ctx.Err(); err != nil {
			return report, err
		}

		tiles := geo.TilesInBBox(opts.BBox, z)
		log.Debug().Int("zoom", z).Int("count", len(tiles)).Msg("Processing zoom level")

		level := processTileBatch(ctx, client, tiles, opts)
		report.Saved += level.Saved
		report.Existed += level.Existed
		report.Invalid += level.Invalid
		report.Failed += level.Failed
	}

	log.Info().
		Int("saved", report.Saved).
		Int("existed", report.Existed).
		Int("invalid", report.Invalid).
		Int("failed", report.Failed).
		Msg("Tile download finished")

	return report, ctx.Err()
}

func processTileBatch(ctx context.Context, client *http.Client, tiles []geo.Tile, opts TileOptions) TileReport {
	jobs := make(chan tileJob, len(tiles))
	results := make(chan tileResult, len(tiles))

	for _, t := range tiles {
		jobs <- tileJob{Coord: t, Path: TilePath(opts.Dir, t)}
	}
	close(jobs)

	var wg sync.WaitGroup
	for i := 0; i < opts.Concurrency; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := range jobs {
				if ctx.Err() != nil {
					results <- tileResult{State: tileFailed, Err: ctx.Err()}
					continue
				}

				state, err := downloadAndConvert(ctx, client, opts, j)
				if err != nil {
					log.Debug().
						Err(err).
						Str("url", BuildTileURL(opts.URLTemplate, j.Coord)).
						Msg("Failed to download tile")
				}
				results <- tileResult{State: state, Err: err}
			}
		}()
	}
	wg.Wait()
	close(results)

	var report TileReport
	for res := range results {
		switch res.State {
		case tileSaved:
			report.Saved++
		case tileExisted:
			report.Existed++
		case tileInvalid:
			report.Invalid++
		default:
			report.Failed++
		}
	}

	return report
}

func downloadAndConvert(ctx context.Context, client *http.Client, opts TileOptions, j tileJob) (tileState, error) {
	if !opts.Force {
		if info, err := os.Stat(j.Path); err == nil && info.Size() > 0 {
			return tileExisted, nil
		}
	}

	url := BuildTileURL(opts.URLTemplate, j.Coord)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return tileFailed, err
	}
	if opts.UserAgent != "" {
		req.Header.Set("User-Agent", opts.UserAgent)
	}

	resp, err := client.Do(req)
	if err != nil {
		return tileFailed, err
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode == http.StatusNotFound {
		log.Trace().Str("url", url).Msg("Tile not found (404)")
		return tileInvalid, nil
	}
	if resp.StatusCode != http.StatusOK {
		return tileFailed, fmt.Errorf("status code %d", resp.StatusCode)
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return tileFailed, err
	}

	img, _, err := image.Decode(bytes.NewReader(body))
	if err != nil {
		log.Trace().Err(err).Str("url", url).Msg("Failed to decode image")
		return tileInvalid, nil
	}

	// map servers answer out of range tiles with 1px placeholders
	if img.Bounds().Dx() <= 1 {
		log.Trace().Str("url", url).Msg("Filtered empty tile")
		return tileInvalid, nil
	}

	if err := os.MkdirAll(filepath.Dir(j.Path), 0o755); err != nil {
		return tileFailed, err
	}

	var buf bytes.Buffer
	if err := webp.Encode(&buf, img, &webp.Options{Lossless: false, Quality: 80}); err != nil {
		return tileFailed, err
	}
	if err := os.WriteFile(j.Path, buf.Bytes(), 0o644); err != nil {
		return tileFailed, err
	}

	return tileSaved, nil
}

// TilePath is the on-disk location of a tile under dir.
func TilePath(dir string, t geo.Tile) string {
	return filepath.Join(dir, strconv.Itoa(t.Z), strconv.Itoa(t.X), strconv.Itoa(t.Y)+".webp")
}

// BuildTileURL expands {z}, {x}, {y}, {tms_y} and {s} in a tile URL template.
func BuildTileURL(tpl string, t geo.Tile) string {
	s := strings.ReplaceAll(tpl, "{z}", strconv.Itoa(t.Z))
	s = strings.ReplaceAll(s, "{x}", strconv.Itoa(t.X))
	s = strings.ReplaceAll(s, "{y}", strconv.Itoa(t.Y))

	if strings.Contains(s, "{tms_y}") {
		maxCoord := (1 << t.Z) - 1
		s = strings.ReplaceAll(s, "{tms_y}", strconv.Itoa(maxCoord-t.Y))
	}
	if strings.Contains(s, "{s}") {
		s = strings.ReplaceAll(s, "{s}", string(rune('a'+(t.X+t.Y)%3)))
	}

	return s
}
