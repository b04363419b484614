// Package watch notifies viewers when a displayed file changes on disk
// outside the application, so stale content can be reloaded.
package watch

import (
	"errors"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
)

// Watcher errors.
var (
	ErrWatcherClosed   = errors.New("watcher closed")
	ErrAlreadyWatching = errors.New("path already watched")
	ErrNotWatching     = errors.New("path not watched")
)

// ChangeKind classifies an external change to a watched file.
type ChangeKind int

const (
	// ChangeModified means the file content was written.
	ChangeModified ChangeKind = iota
	// ChangeRemoved means the file was deleted.
	ChangeRemoved
	// ChangeRenamed means the file was moved away.
	ChangeRenamed
)

// String returns the change kind name.
func (k ChangeKind) String() string {
	switch k {
	case ChangeModified:
		return "modified"
	case ChangeRemoved:
		return "removed"
	case ChangeRenamed:
		return "renamed"
	default:
		return "unknown"
	}
}

// Event reports an external change to a watched file.
type Event struct {
	Path string
	Kind ChangeKind
	Time time.Time
}

// Watcher watches individual files for external changes.
// It is safe for concurrent use.
type Watcher struct {
	mu      sync.Mutex
	watcher *fsnotify.Watcher
	paths   map[string]bool
	events  chan Event
	errs    chan error
	closed  bool
	done    chan struct{}
	wg      sync.WaitGroup
}

// defaultBufferSize is the event channel capacity; slow consumers drop
// events rather than block the notify loop.
const defaultBufferSize = 64

// New creates a Watcher.
func New() (*Watcher, error) {
	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}

	w := &Watcher{
		watcher: fsw,
		paths:   make(map[string]bool),
		events:  make(chan Event, defaultBufferSize),
		errs:    make(chan error, defaultBufferSize),
		done:    make(chan struct{}),
	}

	w.wg.Add(1)
	go w.loop()

	return w, nil
}

// Events returns the change event channel.
func (w *Watcher) Events() <-chan Event { return w.events }

// Errors returns the watch error channel.
func (w *Watcher) Errors() <-chan error { return w.errs }

// Watch starts watching a file.
func (w *Watcher) Watch(path string) error {
	abs, err := filepath.Abs(path)
	if err != nil {
		return err
	}

	w.mu.Lock()
	defer w.mu.Unlock()

	if w.closed {
		return ErrWatcherClosed
	}
	if w.paths[abs] {
		return ErrAlreadyWatching
	}
	if err := w.watcher.Add(abs); err != nil {
		return err
	}
	w.paths[abs] = true
	return nil
}

// Unwatch stops watching a file.
func (w *Watcher) Unwatch(path string) error {
	abs, err := filepath.Abs(path)
	if err != nil {
		return err
	}

	w.mu.Lock()
	defer w.mu.Unlock()

	if w.closed {
		return ErrWatcherClosed
	}
	if !w.paths[abs] {
		return ErrNotWatching
	}
	delete(w.paths, abs)
	return w.watcher.Remove(abs)
}

// Close stops the watcher and closes its channels.
func (w *Watcher) Close() error {
	w.mu.Lock()
	if w.closed {
		w.mu.Unlock()
		return nil
	}
	w.closed = true
	w.mu.Unlock()

	close(w.done)
	err := w.watcher.Close()
	w.wg.Wait()
	close(w.events)
	close(w.errs)
	return err
}

// loop translates fsnotify events into change events.
func (w *Watcher) loop() {
	defer w.wg.Done()

	for {
		select {
		case <-w.done:
			return
		case ev, ok := <-w.watcher.Events:
			if !ok {
				return
			}
			kind, relevant := mapOp(ev.Op)
			if !relevant {
				continue
			}
			// Drop rather than block when the consumer lags.
			select {
			case w.events <- Event{Path: ev.Name, Kind: kind, Time: time.Now()}:
			default:
			}
		case err, ok := <-w.watcher.Errors:
			if !ok {
				return
			}
			select {
			case w.errs <- err:
			default:
			}
		}
	}
}

// mapOp maps fsnotify ops onto change kinds.
func mapOp(op fsnotify.Op) (ChangeKind, bool) {
	switch {
	case op.Has(fsnotify.Write), op.Has(fsnotify.Create):
		return ChangeModified, true
	case op.Has(fsnotify.Remove):
		return ChangeRemoved, true
	case op.Has(fsnotify.Rename):
		return ChangeRenamed, true
	default:
		return 0, false
	}
}
