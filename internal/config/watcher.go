// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package config

import (
	"log"
	"path/filepath"
	"time"

	"github.com/fsnotify/fsnotify"
)

// =============================================================================
// CONFIG WATCHER
// =============================================================================

// watchDebounce coalesces editor write bursts into one reload.
const watchDebounce = 500 * time.Millisecond

// Watcher reloads the configuration when the file changes on disk and
// hands each freshly loaded Config to the callback.
type Watcher struct {
	fsWatcher *fsnotify.Watcher
	path      string
	onChange  func(*Config)
	done      chan struct{}
}

// Watch starts watching the default config file. The callback runs on the
// watcher's goroutine after each successful reload. Close stops it.
func Watch(onChange func(*Config)) (*Watcher, error) {
	path, err := Path()
	if err != nil {
		return nil, err
	}
	return WatchPath(path, onChange)
}

// WatchPath watches a specific config file path.
func WatchPath(path string, onChange func(*Config)) (*Watcher, error) {
	fsWatcher, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}

	// Watch the directory, not the file: editors replace the file on
	// save, which would drop a file-level watch.
	if err := fsWatcher.Add(filepath.Dir(path)); err != nil {
		fsWatcher.Close()
		return nil, err
	}

	w := &Watcher{
		fsWatcher: fsWatcher,
		path:      path,
		onChange:  onChange,
		done:      make(chan struct{}),
	}
	go w.loop()
	return w, nil
}

func (w *Watcher) loop() {
	var (
		timer   *time.Timer
		timerCh <-chan time.Time
	)

	for {
		select {
		case <-w.done:
			return

		case event, ok := <-w.fsWatcher.Events:
			if !ok {
				return
			}
			if filepath.Clean(event.Name) != filepath.Clean(w.path) {
				continue
			}
			if event.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Rename) == 0 {
				continue
			}
			if timer == nil {
				timer = time.NewTimer(watchDebounce)
			} else {
				timer.Reset(watchDebounce)
			}
			timerCh = timer.C

		case <-timerCh:
			timerCh = nil
			cfg, err := LoadFromPath(w.path)
			if err != nil {
				log.Printf("config: reload failed: %v", err)
				continue
			}
			SetGlobal(cfg)
			if w.onChange != nil {
				w.onChange(cfg)
			}

		case err, ok := <-w.fsWatcher.Errors:
			if !ok {
				return
			}
			log.Printf("config: watch error: %v", err)
		}
	}
}

// Close stops the watcher.
func (w *Watcher) Close() error {
	close(w.done)
	return w.fsWatcher.Close()
}
