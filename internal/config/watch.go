package config

import (
	"context"
	"fmt"
	"log"
	"path/filepath"
	"time"

	"github.com/fsnotify/fsnotify"
)

// settle absorbs the burst of events editors produce for a single save
// (truncate, write, rename).
const settle = 100 * time.Millisecond

// Watch reloads path whenever it changes and calls onChange with each config
// that loads and validates. Invalid edits are logged and skipped, leaving the
// previous config in effect. Watch returns once the watcher is set up; it
// stops when ctx is cancelled.
func Watch(ctx context.Context, path string, onChange func(*Config)) error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("config watcher: %w", err)
	}

	// Watch the directory: editors and config management often replace the
	// file rather than write it in place.
	if err := watcher.Add(filepath.Dir(path)); err != nil {
		watcher.Close()
		return fmt.Errorf("watch %s: %w", path, err)
	}

	go watchLoop(ctx, watcher, filepath.Clean(path), onChange)
	return nil
}

func watchLoop(ctx context.Context, watcher *fsnotify.Watcher, path string, onChange func(*Config)) {
	defer watcher.Close()

	var pending <-chan time.Time
	for {
		select {
		case <-ctx.Done():
			return

		case evt, ok := <-watcher.Events:
			if !ok {
				return
			}
			if filepath.Clean(evt.Name) != path {
				continue
			}
			if !evt.Has(fsnotify.Write) && !evt.Has(fsnotify.Create) && !evt.Has(fsnotify.Rename) {
				continue
			}
			pending = time.After(settle)

		case err, ok := <-watcher.Errors:
			if !ok {
				return
			}
			log.Printf("config: watcher error: %v", err)

		case <-pending:
			pending = nil
			cfg, err := Load(path)
			if err != nil {
				log.Printf("config: reload %s failed, keeping previous: %v", path, err)
				continue
			}
			log.Printf("config: reloaded %s", path)
			onChange(cfg)
		}
	}
}
