// Package watcher notices video files that land under the root while a
// review session is running. Arrivals are reported to a callback and
// surfaced as a count; the session queue itself is fixed at start.
package watcher

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/fsnotify/fsnotify"
)

// Matcher decides which created files count as videos.
type Matcher interface {
	IsVideoFile(name string) bool
}

type Watcher struct {
	matcher     Matcher
	reservedDir string
	logger      *slog.Logger
	onArrival   func(path string)
}

func New(matcher Matcher, reservedDir string, logger *slog.Logger) *Watcher {
	return &Watcher{matcher: matcher, reservedDir: reservedDir, logger: logger}
}

// OnArrival registers the callback invoked for each new video file. Set it
// before calling Watch.
func (w *Watcher) OnArrival(fn func(path string)) {
	w.onArrival = fn
}

// Watch blocks until ctx is cancelled, reporting video files created under
// root or any of its subdirectories. Directories created mid-watch are
// added to the watch set; the reserved clip directory and dot-directories
// are not, so clip extraction does not report its own output.
func (w *Watcher) Watch(ctx context.Context, root string) error {
	fw, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("creating watcher: %w", err)
	}
	defer fw.Close()

	if err := w.addTree(fw, root); err != nil {
		return err
	}
	w.logger.Info("watching for new videos", "root", root)

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case event, ok := <-fw.Events:
			if !ok {
				return nil
			}
			if !event.Has(fsnotify.Create) {
				continue
			}
			w.handleCreate(fw, event.Name)
		case err, ok := <-fw.Errors:
			if !ok {
				return nil
			}
			w.logger.Warn("watch error", "error", err)
		}
	}
}

func (w *Watcher) handleCreate(fw *fsnotify.Watcher, path string) {
	info, err := os.Stat(path)
	if err != nil {
		return
	}
	if info.IsDir() {
		if w.skipDir(filepath.Base(path)) {
			return
		}
		if err := w.addTree(fw, path); err != nil {
			w.logger.Warn("failed to watch new directory", "path", path, "error", err)
		}
		return
	}
	if !w.matcher.IsVideoFile(filepath.Base(path)) {
		return
	}
	if w.onArrival != nil {
		w.onArrival(path)
	}
}

// addTree registers root and its eligible subdirectories.
func (w *Watcher) addTree(fw *fsnotify.Watcher, root string) error {
	return filepath.WalkDir(root, func(path string, d os.DirEntry, err error) error {
		if err != nil {
			if path == root {
				return err
			}
			return nil
		}
		if !d.IsDir() {
			return nil
		}
		if path != root && w.skipDir(d.Name()) {
			return filepath.SkipDir
		}
		if err := fw.Add(path); err != nil {
			w.logger.Warn("failed to watch directory", "path", path, "error", err)
		}
		return nil
	})
}

func (w *Watcher) skipDir(name string) bool {
	return name == w.reservedDir || strings.HasPrefix(name, ".")
}
