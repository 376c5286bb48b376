package catalog

import (
	"context"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/rs/zerolog/log"
)

// Watcher reloads a catalog file when it changes on disk.
//
// The parent directory is watched rather than the file itself so editors
// that replace the file by rename keep triggering reloads.
type Watcher struct {
	watcher  *fsnotify.Watcher
	onChange func(*Catalog)
	path     string
	debounce time.Duration

	stopOnce sync.Once
	stopCh   chan struct{}
	doneCh   chan struct{}
}

// NewWatcher prepares a watcher for path. onChange receives every
// successfully parsed version; invalid versions are logged and skipped.
func NewWatcher(path string, debounce time.Duration, onChange func(*Catalog)) (*Watcher, error) {
	fw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}

	abs, err := filepath.Abs(path)
	if err != nil {
		_ = fw.Close()
		return nil, err
	}

	if err := fw.Add(filepath.Dir(abs)); err != nil {
		_ = fw.Close()
		return nil, err
	}

	return &Watcher{
		watcher:  fw,
		onChange: onChange,
		path:     abs,
		debounce: debounce,
		stopCh:   make(chan struct{}),
		doneCh:   make(chan struct{}),
	}, nil
}

// Start runs the event loop in a goroutine until ctx ends or Stop is called.
func (w *Watcher) Start(ctx context.Context) {
	go w.run(ctx)
}

// Stop ends the event loop and releases the fsnotify handle.
func (w *Watcher) Stop() {
	w.stopOnce.Do(func() { close(w.stopCh) })
	<-w.doneCh
}

func (w *Watcher) run(ctx context.Context) {
	defer close(w.doneCh)
	defer func() { _ = w.watcher.Close() }()

	var (
		timer   *time.Timer
		timerCh <-chan time.Time
	)
	defer func() {
		if timer != nil {
			timer.Stop()
		}
	}()

	for {
		select {
		case <-ctx.Done():
			return

		case <-w.stopCh:
			return

		case event, ok := <-w.watcher.Events:
			if !ok {
				return
			}
			if filepath.Clean(event.Name) != w.path {
				continue
			}
			if event.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Rename) == 0 {
				continue
			}

			log.Debug().Str("path", event.Name).Str("op", event.Op.String()).Msg("Catalog change detected")

			if timer == nil {
				timer = time.NewTimer(w.debounce)
			} else {
				timer.Reset(w.debounce)
			}
			timerCh = timer.C

		case err, ok := <-w.watcher.Errors:
			if !ok {
				return
			}
			log.Error().Err(err).Str("path", w.path).Msg("Catalog watcher error")

		case <-timerCh:
			timerCh = nil
			w.reload()
		}
	}
}

func (w *Watcher) reload() {
	c, err := Load(w.path)
	if err != nil {
		log.Error().Err(err).Str("path", w.path).Msg("Catalog reload failed, keeping previous version")
		return
	}

	log.Info().
		Str("path", w.path).
		Int("categories", len(c.Categories)).
		Int("routes", len(c.Unique())).
		Msg("Catalog reloaded")

	w.onChange(c)
}
