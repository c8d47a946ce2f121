package config

import (
	"context"
	"path/filepath"
	"time"

	"github.com/fsnotify/fsnotify"
	log "github.com/sirupsen/logrus"
)

// Watch monitors the configuration file for changes and invokes onReload
// with each successfully re-parsed configuration. It watches the parent
// directory so editors that replace the file atomically are still observed.
// Watch blocks until the context is cancelled.
func Watch(ctx context.Context, path string, onReload func(*Config)) error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	defer func() { _ = watcher.Close() }()

	dir := filepath.Dir(path)
	if err = watcher.Add(dir); err != nil {
		return err
	}
	target := filepath.Clean(path)

	// Editors emit bursts of events for one save; debounce them.
	var pending <-chan time.Time

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case event, ok := <-watcher.Events:
			if !ok {
				return nil
			}
			if filepath.Clean(event.Name) != target {
				continue
			}
			if event.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Rename) == 0 {
				continue
			}
			pending = time.After(250 * time.Millisecond)
		case err, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
			log.WithError(err).Warn("config watcher error")
		case <-pending:
			pending = nil
			cfg, errLoad := LoadConfig(path)
			if errLoad != nil {
				log.WithError(errLoad).Warn("config reload failed, keeping previous configuration")
				continue
			}
			log.Info("configuration reloaded")
			onReload(cfg)
		}
	}
}
