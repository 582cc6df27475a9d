// ABOUTME: Recursive fsnotify watcher that reports every change under a root directory or file.
// ABOUTME: New directories are watched as they appear; bursts per path can be debounced.

package watcher

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/2389/netsync/internal/dedupe"
)

// debounceKeys bounds how many distinct paths the debounce window remembers.
const debounceKeys = 4096

// ChangeFunc is called once per accepted event.
type ChangeFunc func(ctx context.Context, path string)

// Watcher watches a directory tree or a single file.
type Watcher struct {
	root     string
	fsw      *fsnotify.Watcher
	window   *dedupe.Window
	onChange ChangeFunc
	logger   *slog.Logger
}

// New validates root and starts watching it: recursively when it is a
// directory, directly when it is a file. A zero debounce reports every event.
func New(root string, debounce time.Duration, onChange ChangeFunc, logger *slog.Logger) (*Watcher, error) {
	if logger == nil {
		logger = slog.Default()
	}

	info, err := os.Stat(root)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("watch path %q does not exist", root)
		}
		return nil, fmt.Errorf("checking watch path: %w", err)
	}

	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("creating fsnotify watcher: %w", err)
	}

	w := &Watcher{
		root:     root,
		fsw:      fsw,
		onChange: onChange,
		logger:   logger.With("component", "watcher"),
	}
	if debounce > 0 {
		w.window = dedupe.NewWindow(debounce, debounceKeys)
	}

	if info.IsDir() {
		err = w.addTree(root)
	} else if err = fsw.Add(root); err != nil {
		err = fmt.Errorf("watching %s: %w", root, err)
	}
	if err != nil {
		_ = w.Close()
		return nil, err
	}
	w.logger.Info("watching for changes", "path", root, "watches", len(fsw.WatchList()), "debounce", debounce)
	return w, nil
}

// addTree watches dir and every directory below it.
func (w *Watcher) addTree(dir string) error {
	return filepath.WalkDir(dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			// A directory vanishing mid-walk is not fatal for subtrees.
			if path != dir && errors.Is(err, fs.ErrNotExist) {
				return nil
			}
			return fmt.Errorf("walking %s: %w", path, err)
		}
		if !d.IsDir() {
			return nil
		}
		if err := w.fsw.Add(path); err != nil {
			return fmt.Errorf("watching %s: %w", path, err)
		}
		return nil
	})
}

// Run delivers events until ctx is canceled or the watcher is closed.
func (w *Watcher) Run(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			return nil
		case ev, ok := <-w.fsw.Events:
			if !ok {
				return nil
			}
			w.handle(ctx, ev)
		case err, ok := <-w.fsw.Errors:
			if !ok {
				return nil
			}
			w.logger.Error("watch error", "error", err)
		}
	}
}

func (w *Watcher) handle(ctx context.Context, ev fsnotify.Event) {
	if ev.Has(fsnotify.Create) {
		if info, err := os.Stat(ev.Name); err == nil && info.IsDir() {
			if err := w.addTree(ev.Name); err != nil {
				w.logger.Warn("could not watch new directory", "path", ev.Name, "error", err)
			}
		}
	}

	if w.window != nil && (ev.Has(fsnotify.Remove) || ev.Has(fsnotify.Rename)) {
		// A path recreated right after removal is reported again at once.
		defer w.window.Forget(ev.Name)
	}

	if w.window != nil && !w.window.Allow(ev.Name) {
		w.logger.Debug("debounced event", "path", ev.Name, "op", ev.Op.String())
		return
	}

	w.logger.Info("change detected", "path", ev.Name, "op", ev.Op.String())
	if w.onChange != nil {
		w.onChange(ctx, ev.Name)
	}
}

// Close stops watching.
func (w *Watcher) Close() error {
	if w.window != nil {
		w.window.Close()
	}
	return w.fsw.Close()
}
