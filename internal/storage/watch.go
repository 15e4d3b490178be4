// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package storage

import (
	"context"
	"errors"
	"log"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
)

// =============================================================================
// FSNOTIFY WATCHER
// =============================================================================

// Watcher calls a function whenever the watched state file changes on disk.
//
// The parent directory is watched rather than the file itself because
// atomic writes replace the file by rename, which ends a per-file watch.
// Sibling files sharing the base name (the SQLite -wal and -shm files) count
// as changes too. Bursts of events are coalesced by the debounce interval.
type Watcher struct {
	watcher  *fsnotify.Watcher
	base     string
	debounce time.Duration
	onChange func()

	mu      sync.Mutex
	pending bool
	last    time.Time

	ctx    context.Context
	cancel context.CancelFunc
	done   chan struct{}
}

// Watch starts watching path. onChange runs on the watcher's goroutine.
func Watch(path string, debounce time.Duration, onChange func()) (*Watcher, error) {
	if path == "" {
		return nil, errors.New("storage: nothing to watch for a backend without a file")
	}
	if onChange == nil {
		return nil, errors.New("storage: watch requires a callback")
	}

	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}
	if err := fsw.Add(filepath.Dir(path)); err != nil {
		fsw.Close()
		return nil, err
	}

	ctx, cancel := context.WithCancel(context.Background())
	w := &Watcher{
		watcher:  fsw,
		base:     filepath.Base(path),
		debounce: debounce,
		onChange: onChange,
		ctx:      ctx,
		cancel:   cancel,
		done:     make(chan struct{}),
	}
	go w.processEvents()
	return w, nil
}

// Close stops the watcher and waits for its goroutine to exit.
func (w *Watcher) Close() error {
	w.cancel()
	err := w.watcher.Close()
	<-w.done
	return err
}

func (w *Watcher) processEvents() {
	defer close(w.done)

	ticker := time.NewTicker(w.tick())
	defer ticker.Stop()

	for {
		select {
		case <-w.ctx.Done():
			return

		case event, ok := <-w.watcher.Events:
			if !ok {
				return
			}
			if !w.matches(event.Name) {
				continue
			}
			if event.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Remove|fsnotify.Rename) == 0 {
				continue
			}
			w.mu.Lock()
			w.pending = true
			w.last = time.Now()
			w.mu.Unlock()

		case <-ticker.C:
			w.mu.Lock()
			fire := w.pending && time.Since(w.last) >= w.debounce
			if fire {
				w.pending = false
			}
			w.mu.Unlock()
			if fire {
				w.onChange()
			}

		case err, ok := <-w.watcher.Errors:
			if !ok {
				return
			}
			log.Printf("STORAGE_WATCH_ERROR | file=%s err=%v", w.base, err)
		}
	}
}

func (w *Watcher) matches(name string) bool {
	base := filepath.Base(name)
	if strings.HasPrefix(base, ".tmp-") {
		return false
	}
	return base == w.base || strings.HasPrefix(base, w.base+"-")
}

func (w *Watcher) tick() time.Duration {
	d := w.debounce / 2
	if d < time.Millisecond || d > 50*time.Millisecond {
		d = 50 * time.Millisecond
	}
	return d
}
