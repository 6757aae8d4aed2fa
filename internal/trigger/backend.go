// internal/trigger/backend.go
package trigger

import (
	"fmt"

	"github.com/fsnotify/fsnotify"
)

// nativeWatch is a single OS-level subscription on one directory.
type nativeWatch interface {
	Events() <-chan fsnotify.Event
	Errors() <-chan error
	Close() error
}

// backend opens native watches.
type backend interface {
	Open(dir string) (nativeWatch, error)
}

// backendFor returns the watch backend registered under name.
// An empty name selects fsnotify.
func backendFor(name string) (backend, error) {
	switch name {
	case "", "fsnotify":
		return fsnotifyBackend{}, nil
	case "fsevents":
		return newFSEventsBackend()
	default:
		return nil, fmt.Errorf("%w: unknown watch backend %q", ErrConfiguration, name)
	}
}

type fsnotifyBackend struct{}

func (fsnotifyBackend) Open(dir string) (nativeWatch, error) {
	w, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("create watcher: %w", err)
	}
	if err := w.Add(dir); err != nil {
		w.Close()
		return nil, fmt.Errorf("%w: add watch path %s: %v", ErrDirectoryInaccessible, dir, err)
	}
	return fsnotifyWatch{w}, nil
}

type fsnotifyWatch struct {
	w *fsnotify.Watcher
}

func (f fsnotifyWatch) Events() <-chan fsnotify.Event { return f.w.Events }
func (f fsnotifyWatch) Errors() <-chan error          { return f.w.Errors }
func (f fsnotifyWatch) Close() error                  { return f.w.Close() }
