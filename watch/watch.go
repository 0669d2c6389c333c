/*
Copyright © 2026 Benny Powers <web@bennypowers.com>

This program is free software: you can redistribute it and/or modify
it under the terms of the GNU General Public License as published by
the Free Software Foundation, either version 3 of the License, or
(at your option) any later version.

This program is distributed in the hope that it will be useful,
but WITHOUT ANY WARRANTY; without even the implied warranty of
MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE.  See the
GNU General Public License for more details.

You should have received a copy of the GNU General Public License
along with this program. If not, see <http://www.gnu.org/licenses/>.
*/

// Package watch reports changes to a set of files, debounced into batches.
package watch

import (
	"context"
	"errors"
	"path/filepath"
	"sort"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"go.uber.org/zap"
)

// DefaultDelay is how long a batch stays open after its latest event.
const DefaultDelay = 50 * time.Millisecond

// Watcher watches a set of files through their parent directories, so
// editors that save by renaming are seen too.
type Watcher struct {
	fsw   *fsnotify.Watcher
	delay time.Duration
	log   *zap.Logger

	mu    sync.Mutex
	files map[string]bool
	dirs  map[string]bool
}

// New creates a Watcher. A delay of zero means DefaultDelay.
func New(delay time.Duration, log *zap.Logger) (*Watcher, error) {
	if delay <= 0 {
		delay = DefaultDelay
	}
	if log == nil {
		log = zap.NewNop()
	}
	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}
	return &Watcher{
		fsw:   fsw,
		delay: delay,
		log:   log.Named("watch"),
		files: make(map[string]bool),
		dirs:  make(map[string]bool),
	}, nil
}

// Set replaces the watched files. Directories no longer needed are
// released. Files whose directory cannot be watched are reported and
// skipped.
func (w *Watcher) Set(files []string) error {
	w.mu.Lock()
	defer w.mu.Unlock()

	nextFiles := make(map[string]bool, len(files))
	nextDirs := make(map[string]bool)
	for _, f := range files {
		f = filepath.Clean(f)
		nextFiles[f] = true
		nextDirs[filepath.Dir(f)] = true
	}

	var errs []error
	for dir := range nextDirs {
		if w.dirs[dir] {
			continue
		}
		if err := w.fsw.Add(dir); err != nil {
			errs = append(errs, err)
			delete(nextDirs, dir)
		}
	}
	for dir := range w.dirs {
		if !nextDirs[dir] {
			_ = w.fsw.Remove(dir)
		}
	}

	w.files = nextFiles
	w.dirs = nextDirs
	return errors.Join(errs...)
}

// Files returns the watched files, sorted.
func (w *Watcher) Files() []string {
	w.mu.Lock()
	defer w.mu.Unlock()
	files := make([]string, 0, len(w.files))
	for f := range w.files {
		files = append(files, f)
	}
	sort.Strings(files)
	return files
}

func (w *Watcher) watched(path string) bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.files[filepath.Clean(path)]
}

// Run calls onChange with each batch of changed files, sorted, until ctx
// is done or the watcher is closed. onChange runs on Run's goroutine; events
// arriving meanwhile start the next batch.
func (w *Watcher) Run(ctx context.Context, onChange func(paths []string)) error {
	var (
		timer   *time.Timer
		timerC  <-chan time.Time
		pending = make(map[string]bool)
	)
	defer func() {
		if timer != nil {
			timer.Stop()
		}
	}()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()

		case event, ok := <-w.fsw.Events:
			if !ok {
				return nil
			}
			if !event.Has(fsnotify.Write|fsnotify.Create|fsnotify.Remove|fsnotify.Rename) || !w.watched(event.Name) {
				continue
			}
			w.log.Debug("event", zap.String("path", event.Name), zap.Stringer("op", event.Op))
			pending[filepath.Clean(event.Name)] = true
			if timer == nil {
				timer = time.NewTimer(w.delay)
			} else {
				timer.Reset(w.delay)
			}
			timerC = timer.C

		case err, ok := <-w.fsw.Errors:
			if !ok {
				return nil
			}
			w.log.Warn("watch error", zap.Error(err))

		case <-timerC:
			timerC = nil
			paths := make([]string, 0, len(pending))
			for p := range pending {
				paths = append(paths, p)
			}
			clear(pending)
			sort.Strings(paths)
			onChange(paths)
		}
	}
}

// Close stops watching. A running Run returns.
func (w *Watcher) Close() error {
	return w.fsw.Close()
}
