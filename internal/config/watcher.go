// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package config

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
)

// =============================================================================
// CONFIG FILE WATCHER
// =============================================================================

// DefaultDebounce is the settle time between the last observed write to the
// config file and the reload.
const DefaultDebounce = 500 * time.Millisecond

// Watcher reloads the config file when it changes on disk.
//
// Editors and Save both replace the file via rename, so the watcher observes
// the config file's directory and filters events down to the one path.
type Watcher struct {
	path     string
	onChange func(*Config)
	watcher  *fsnotify.Watcher
	debounce time.Duration
	mu       sync.Mutex
	pending  time.Time // Last change time, zero when nothing is pending
	ctx      context.Context
	cancel   context.CancelFunc
}

// NewWatcher creates a watcher for the given config file path.
// The onChange callback receives the freshly loaded config after each change.
func NewWatcher(path string, debounce time.Duration, onChange func(*Config)) (*Watcher, error) {
	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}

	if debounce <= 0 {
		debounce = DefaultDebounce
	}

	ctx, cancel := context.WithCancel(context.Background())

	w := &Watcher{
		path:     filepath.Clean(path),
		onChange: onChange,
		watcher:  fsw,
		debounce: debounce,
		ctx:      ctx,
		cancel:   cancel,
	}

	return w, nil
}

// Watch starts watching for config file changes.
func (w *Watcher) Watch() error {
	// Watch the directory, not the file: a rename-replace save would detach
	// a watch on the file itself.
	if err := w.watcher.Add(filepath.Dir(w.path)); err != nil {
		return err
	}

	// Start event processing goroutine
	go w.processEvents()

	// Start debounce timer goroutine
	go w.processPending()

	return nil
}

// processEvents filters file system events down to the config file.
func (w *Watcher) processEvents() {
	// Add panic recovery to prevent crashes
	defer func() {
		if r := recover(); r != nil {
			// Log panic (non-fatal, goroutine exits)
			_ = r
		}
	}()

	for {
		select {
		case <-w.ctx.Done():
			return

		case event, ok := <-w.watcher.Events:
			if !ok {
				return
			}

			if filepath.Clean(event.Name) != w.path {
				continue
			}

			// Write, Create, and Rename all count as changes
			if event.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Rename) != 0 {
				w.mu.Lock()
				w.pending = time.Now()
				w.mu.Unlock()
			}

		case err, ok := <-w.watcher.Errors:
			if !ok {
				return
			}
			// Log error (non-fatal)
			_ = err
		}
	}
}

// processPending reloads the config once changes settle past the debounce.
func (w *Watcher) processPending() {
	ticker := time.NewTicker(100 * time.Millisecond)
	defer ticker.Stop()

	for {
		select {
		case <-w.ctx.Done():
			return

		case <-ticker.C:
			w.mu.Lock()
			ready := !w.pending.IsZero() && time.Since(w.pending) >= w.debounce
			if ready {
				w.pending = time.Time{}
			}
			w.mu.Unlock()

			if ready {
				w.reload()
			}
		}
	}
}

// reload re-reads the config file and hands it to the callback.
func (w *Watcher) reload() {
	cfg, err := LoadFromPath(w.path)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Warning: config reload failed: %v\n", err)
		return
	}
	if w.onChange != nil {
		w.onChange(cfg)
	}
}

// Close stops watching and releases resources.
func (w *Watcher) Close() error {
	w.cancel()
	if w.watcher != nil {
		return w.watcher.Close()
	}
	return nil
}
