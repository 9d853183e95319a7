package config

import (
	"context"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/rs/zerolog"

	"github.com/foxglove-dns/relay/internal/override"
	"github.com/foxglove-dns/relay/internal/upstream"
)

// debounceDelay absorbs the multiple Write events an editor's save
// often produces for a single logical change, grounded on
// erfianugrah-gloryhole/pkg/config/watcher.go's debounce timer.
const debounceDelay = 100 * time.Millisecond

// Watcher reloads the override table and upstream pool in place
// whenever their backing files change on disk.
type Watcher struct {
	overridePath string
	upstreamPath string
	overrides    *override.Table
	upstreams    *upstream.Pool
	fsw          *fsnotify.Watcher
	log          zerolog.Logger
}

// NewWatcher builds a Watcher over whichever of overridePath/upstreamPath
// is non-empty. Both may be set; either may be omitted.
func NewWatcher(overridePath, upstreamPath string, overrides *override.Table, upstreams *upstream.Pool, log zerolog.Logger) (*Watcher, error) {
	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}

	if overridePath != "" {
		if err := fsw.Add(overridePath); err != nil {
			fsw.Close()
			return nil, err
		}
	}
	if upstreamPath != "" {
		if err := fsw.Add(upstreamPath); err != nil {
			fsw.Close()
			return nil, err
		}
	}

	return &Watcher{
		overridePath: overridePath,
		upstreamPath: upstreamPath,
		overrides:    overrides,
		upstreams:    upstreams,
		fsw:          fsw,
		log:          log,
	}, nil
}

// Run watches until ctx is canceled, reloading the affected table on
// every debounced Write or Create event. It always returns nil on a
// clean ctx cancellation.
func (w *Watcher) Run(ctx context.Context) error {
	pending := make(map[string]struct{})
	timer := time.NewTimer(0)
	timer.Stop()

	for {
		select {
		case <-ctx.Done():
			return w.fsw.Close()

		case event, ok := <-w.fsw.Events:
			if !ok {
				return nil
			}
			if event.Op&(fsnotify.Write|fsnotify.Create) == 0 {
				continue
			}
			pending[event.Name] = struct{}{}
			timer.Reset(debounceDelay)

		case err, ok := <-w.fsw.Errors:
			if !ok {
				return nil
			}
			w.log.Error().Err(err).Msg("config watcher error")

		case <-timer.C:
			for path := range pending {
				w.reload(path)
			}
			pending = make(map[string]struct{})
		}
	}
}

func (w *Watcher) reload(path string) {
	switch path {
	case w.overridePath:
		w.overrides.Reset()
		if err := override.Load(w.overrides, path, w.log); err != nil {
			w.log.Error().Err(err).Str("path", path).Msg("failed to reload override table")
			return
		}
		w.log.Info().Str("path", path).Msg("override table reloaded")
	case w.upstreamPath:
		w.upstreams.Reset()
		if _, err := upstream.Load(w.upstreams, path, w.log); err != nil {
			w.log.Error().Err(err).Str("path", path).Msg("failed to reload upstream pool")
			return
		}
		w.log.Info().Str("path", path).Msg("upstream pool reloaded")
	}
}

// Close releases the underlying fsnotify watcher without waiting for
// ctx cancellation.
func (w *Watcher) Close() error {
	return w.fsw.Close()
}
