//go:build darwin

package trigger

import (
	"fmt"
	"path/filepath"
	"sync"

	"github.com/fsnotify/fsevents"
	"github.com/fsnotify/fsnotify"
)

type fseventsBackend struct{}

func newFSEventsBackend() (backend, error) {
	return fseventsBackend{}, nil
}

// Open starts an FSEvents stream rooted at dir. FSEvents is always
// recursive, so events below direct children are filtered out here.
func (fseventsBackend) Open(dir string) (nativeWatch, error) {
	resolved := dir
	if r, err := filepath.EvalSymlinks(dir); err == nil {
		resolved = r
	}
	if !isDir(resolved) {
		return nil, fmt.Errorf("%w: %s", ErrDirectoryInaccessible, dir)
	}

	stream := &fsevents.EventStream{
		Paths:   []string{resolved},
		Latency: 0,
		Flags:   fsevents.FileEvents | fsevents.WatchRoot | fsevents.NoDefer,
	}
	w := &fseventsWatch{
		dir:    filepath.Clean(resolved),
		stream: stream,
		events: make(chan fsnotify.Event, 64),
		errors: make(chan error, 1),
		done:   make(chan struct{}),
	}
	stream.Start()
	go w.loop()
	return w, nil
}

type fseventsWatch struct {
	dir       string
	stream    *fsevents.EventStream
	events    chan fsnotify.Event
	errors    chan error
	done      chan struct{}
	closeOnce sync.Once
}

func (w *fseventsWatch) Events() <-chan fsnotify.Event { return w.events }
func (w *fseventsWatch) Errors() <-chan error          { return w.errors }

func (w *fseventsWatch) Close() error {
	w.closeOnce.Do(func() {
		close(w.done)
		w.stream.Stop()
	})
	return nil
}

func (w *fseventsWatch) loop() {
	for {
		select {
		case <-w.done:
			return
		case batch, ok := <-w.stream.Events:
			if !ok {
				return
			}
			for _, ev := range batch {
				w.translate(ev)
			}
		}
	}
}

func (w *fseventsWatch) translate(ev fsevents.Event) {
	// Dropped events need a rescan; report them like an fsnotify queue overflow.
	if ev.Flags&fsevents.MustScanSubDirs != 0 ||
		ev.Flags&fsevents.KernelDropped != 0 ||
		ev.Flags&fsevents.UserDropped != 0 {
		w.sendError(ErrBufferOverflow)
		return
	}
	if ev.Flags&fsevents.RootChanged != 0 || ev.Flags&fsevents.Unmount != 0 {
		w.sendError(fmt.Errorf("%w: %s", ErrDirectoryInaccessible, w.dir))
		return
	}
	if filepath.Clean(filepath.Dir(ev.Path)) != w.dir {
		return
	}

	var op fsnotify.Op
	switch {
	case ev.Flags&fsevents.ItemRemoved != 0:
		op = fsnotify.Remove
	case ev.Flags&fsevents.ItemCreated != 0:
		op = fsnotify.Create
	case ev.Flags&fsevents.ItemModified != 0:
		op = fsnotify.Write
	default:
		return
	}

	select {
	case w.events <- fsnotify.Event{Name: ev.Path, Op: op}:
	case <-w.done:
	}
}

func (w *fseventsWatch) sendError(err error) {
	select {
	case w.errors <- err:
	default:
	}
}
