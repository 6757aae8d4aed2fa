// internal/trigger/fake_test.go
package trigger

import (
	"fmt"
	"io"
	"log/slog"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/fsnotify/fsnotify"
)

// fakeBackend hands out in-memory watches so tests can inject
// notifications and errors without touching the OS.
type fakeBackend struct {
	mu      sync.Mutex
	opens   int
	closes  int
	watches map[string]*fakeWatch
	failing map[string]bool
}

func newFakeBackend() *fakeBackend {
	return &fakeBackend{
		watches: make(map[string]*fakeWatch),
		failing: make(map[string]bool),
	}
}

func (b *fakeBackend) Open(dir string) (nativeWatch, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.failing[dir] {
		return nil, fmt.Errorf("%w: %s", ErrDirectoryInaccessible, dir)
	}
	w := &fakeWatch{
		backend: b,
		dir:     dir,
		events:  make(chan fsnotify.Event, 16),
		errors:  make(chan error, 4),
	}
	b.opens++
	b.watches[dir] = w
	return w, nil
}

func (b *fakeBackend) setFailing(dir string, failing bool) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.failing[dir] = failing
}

// latest returns the most recently opened watch for dir.
func (b *fakeBackend) latest(dir string) *fakeWatch {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.watches[dir]
}

// active is the number of watches opened and not yet closed.
func (b *fakeBackend) active() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.opens - b.closes
}

type fakeWatch struct {
	backend *fakeBackend
	dir     string
	events  chan fsnotify.Event
	errors  chan error
	once    sync.Once
}

func (w *fakeWatch) Events() <-chan fsnotify.Event { return w.events }
func (w *fakeWatch) Errors() <-chan error          { return w.errors }

func (w *fakeWatch) Close() error {
	w.once.Do(func() {
		w.backend.mu.Lock()
		w.backend.closes++
		w.backend.mu.Unlock()
	})
	return nil
}

func (w *fakeWatch) write(name string) {
	w.events <- fsnotify.Event{Name: filepath.Join(w.dir, name), Op: fsnotify.Write}
}

func (w *fakeWatch) fail(err error) {
	w.errors <- err
}

// recorder collects callback events.
type recorder struct {
	mu     sync.Mutex
	events []Event
	ch     chan Event
}

func newRecorder() *recorder {
	return &recorder{ch: make(chan Event, 100)}
}

func (r *recorder) callback(ev Event) {
	r.mu.Lock()
	r.events = append(r.events, ev)
	r.mu.Unlock()
	r.ch <- ev
}

func (r *recorder) count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.events)
}

func (r *recorder) wait(t *testing.T, timeout time.Duration) Event {
	t.Helper()
	select {
	case ev := <-r.ch:
		return ev
	case <-time.After(timeout):
		t.Fatal("timeout waiting for callback")
		return Event{}
	}
}

func (r *recorder) expectNone(t *testing.T, within time.Duration) {
	t.Helper()
	select {
	case ev := <-r.ch:
		t.Errorf("unexpected callback: %+v", ev)
	case <-time.After(within):
	}
}

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, &slog.HandlerOptions{Level: slog.LevelDebug}))
}

// waitFor polls cond until it holds or the deadline passes.
func waitFor(t *testing.T, timeout time.Duration, what string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("timeout waiting for %s", what)
}
