// Package watchlist turns filesystem activity on watched paths into
// resolved notifications for the window surfaces.
package watchlist

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/fsnotify/fsnotify"
	"pkt.systems/pslog"
	"pkt.systems/shellsync/schema"
)

// Watcher reports a resolved notification whenever a watched file is
// created or written.
type Watcher struct {
	fs     *fsnotify.Watcher
	paths  []string
	log    pslog.Logger
	events chan schema.Notification
	errors chan error

	// files holds single-file watches; their parent directory is watched
	// and everything else in it is ignored.
	files map[string]struct{}
	dirs  map[string]struct{}

	done     chan struct{}
	wg       sync.WaitGroup
	stopOnce sync.Once
}

// New creates a watcher for paths. Nothing is watched until Start.
func New(paths []string, logger pslog.Logger) (*Watcher, error) {
	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("watchlist: %w", err)
	}
	if logger == nil {
		logger = pslog.Ctx(context.Background())
	}
	return &Watcher{
		fs:     fsw,
		paths:  append([]string(nil), paths...),
		log:    logger,
		events: make(chan schema.Notification, 64),
		errors: make(chan error, 8),
		files:  make(map[string]struct{}),
		dirs:   make(map[string]struct{}),
		done:   make(chan struct{}),
	}, nil
}

// Events returns the notification feed. It is closed by Stop.
func (w *Watcher) Events() <-chan schema.Notification {
	return w.events
}

// Errors returns watcher errors. Errors are dropped when nobody reads them.
func (w *Watcher) Errors() <-chan error {
	return w.errors
}

// WatchedPaths returns the configured paths.
func (w *Watcher) WatchedPaths() []string {
	return append([]string(nil), w.paths...)
}

// Start registers every configured path and starts the event loop.
func (w *Watcher) Start() error {
	for _, path := range w.paths {
		abs, err := filepath.Abs(path)
		if err != nil {
			return fmt.Errorf("watchlist: %w", err)
		}
		info, err := os.Stat(abs)
		if err != nil {
			return fmt.Errorf("watchlist: %w", err)
		}
		dir := abs
		if info.IsDir() {
			w.dirs[abs] = struct{}{}
		} else {
			dir = filepath.Dir(abs)
			w.files[abs] = struct{}{}
		}
		if err := w.fs.Add(dir); err != nil {
			return fmt.Errorf("watchlist: watch %s: %w", dir, err)
		}
		w.log.Debug("watchlist path added", "path", abs, "dir", info.IsDir())
	}
	w.wg.Add(1)
	go w.loop()
	return nil
}

// Stop ends the event loop and closes the feed. Safe to call more than once.
func (w *Watcher) Stop() error {
	var err error
	w.stopOnce.Do(func() {
		close(w.done)
		err = w.fs.Close()
		w.wg.Wait()
		close(w.events)
		close(w.errors)
	})
	return err
}

func (w *Watcher) loop() {
	defer w.wg.Done()
	for {
		select {
		case <-w.done:
			return
		case event, ok := <-w.fs.Events:
			if !ok {
				return
			}
			if event.Op&(fsnotify.Write|fsnotify.Create) == 0 || !w.matches(event.Name) {
				continue
			}
			if info, err := os.Stat(event.Name); err != nil || info.IsDir() {
				continue
			}
			n := schema.Notification{Kind: schema.NotificationResolved, Path: event.Name}
			select {
			case w.events <- n:
				w.log.Trace("watchlist resolved", "path", event.Name, "op", event.Op.String())
			case <-w.done:
				return
			}
		case err, ok := <-w.fs.Errors:
			if !ok {
				return
			}
			w.log.Warn("watchlist error", "err", err)
			select {
			case w.errors <- err:
			default:
			}
		}
	}
}

func (w *Watcher) matches(name string) bool {
	if _, ok := w.files[name]; ok {
		return true
	}
	_, ok := w.dirs[filepath.Dir(name)]
	return ok
}
