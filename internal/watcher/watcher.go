// Package watcher turns file system events under a corpus root into
// debounced batches of changed paths, and applies them to the index cache.
package watcher

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/fsnotify/fsnotify"
)

// Config configures a Watcher.
type Config struct {
	// Root is the directory watched recursively.
	Root string
	// Debounce is how long the watcher waits for further events before
	// emitting a batch.
	Debounce time.Duration
	// Skip reports corpus-relative paths to ignore. Hidden directories are
	// always ignored.
	Skip   func(rel string) bool
	Logger *slog.Logger
}

// Batch is a set of changed paths, relative to the root and sorted.
type Batch struct {
	Paths []string
}

// Watcher monitors a corpus root.
type Watcher struct {
	cfg     Config
	fsw     *fsnotify.Watcher
	logger  *slog.Logger
	batches chan Batch
	done    chan struct{}
}

// New creates a watcher. Nothing is watched until Start.
func New(cfg Config) (*Watcher, error) {
	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("creating fsnotify watcher: %w", err)
	}
	if cfg.Debounce <= 0 {
		cfg.Debounce = 200 * time.Millisecond
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Watcher{
		cfg:     cfg,
		fsw:     fsw,
		logger:  logger,
		batches: make(chan Batch, 1),
		done:    make(chan struct{}),
	}, nil
}

// Start adds watches for every directory under the root and returns the
// channel batches are delivered on. The channel is closed when ctx ends or
// Stop is called.
func (w *Watcher) Start(ctx context.Context) (<-chan Batch, error) {
	if err := w.addRecursive(w.cfg.Root); err != nil {
		return nil, err
	}
	go w.loop(ctx)
	w.logger.Info("watching corpus", "root", w.cfg.Root, "debounce", w.cfg.Debounce)
	return w.batches, nil
}

// Stop terminates the watcher.
func (w *Watcher) Stop() error {
	select {
	case <-w.done:
	default:
		close(w.done)
	}
	return w.fsw.Close()
}

func (w *Watcher) loop(ctx context.Context) {
	defer close(w.batches)

	pending := make(map[string]bool)
	var timer *time.Timer
	var fire <-chan time.Time

	for {
		select {
		case <-ctx.Done():
			return
		case <-w.done:
			return

		case event, ok := <-w.fsw.Events:
			if !ok {
				return
			}
			rel, ok := w.relevant(event)
			if !ok {
				continue
			}
			pending[rel] = true
			if timer == nil {
				timer = time.NewTimer(w.cfg.Debounce)
			} else {
				if !timer.Stop() {
					select {
					case <-timer.C:
					default:
					}
				}
				timer.Reset(w.cfg.Debounce)
			}
			fire = timer.C

		case <-fire:
			fire = nil
			b := Batch{Paths: make([]string, 0, len(pending))}
			for p := range pending {
				b.Paths = append(b.Paths, p)
			}
			sort.Strings(b.Paths)
			pending = make(map[string]bool)
			select {
			case w.batches <- b:
			case <-ctx.Done():
				return
			case <-w.done:
				return
			}

		case err, ok := <-w.fsw.Errors:
			if !ok {
				return
			}
			w.logger.Warn("watcher error", "error", err)
		}
	}
}

// relevant filters an event and returns its corpus-relative path. New
// directories are added to the watch set.
func (w *Watcher) relevant(event fsnotify.Event) (string, bool) {
	if event.Op == fsnotify.Chmod {
		return "", false
	}
	rel, err := filepath.Rel(w.cfg.Root, event.Name)
	if err != nil {
		return "", false
	}
	rel = filepath.ToSlash(rel)
	if w.skipped(rel) {
		return "", false
	}
	if event.Has(fsnotify.Create) {
		if info, err := os.Stat(event.Name); err == nil && info.IsDir() {
			if err := w.addRecursive(event.Name); err != nil {
				w.logger.Warn("failed to watch new directory", "path", rel, "error", err)
			}
		}
	}
	w.logger.Debug("change detected", "path", rel, "op", event.Op.String())
	return rel, true
}

func (w *Watcher) skipped(rel string) bool {
	if rel == "." || rel == ".." || strings.HasPrefix(rel, "../") {
		return true
	}
	for _, seg := range strings.Split(rel, "/") {
		if strings.HasPrefix(seg, ".") {
			return true
		}
	}
	return w.cfg.Skip != nil && w.cfg.Skip(rel)
}

func (w *Watcher) addRecursive(root string) error {
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
		if path != w.cfg.Root {
			if rel, err := filepath.Rel(w.cfg.Root, path); err == nil && w.skipped(filepath.ToSlash(rel)) {
				return filepath.SkipDir
			}
		}
		if err := w.fsw.Add(path); err != nil {
			w.logger.Warn("failed to watch directory", "path", path, "error", err)
		}
		return nil
	})
}
