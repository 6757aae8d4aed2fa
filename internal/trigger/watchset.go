// internal/trigger/watchset.go
package trigger

import (
	"context"
	"fmt"
	"log/slog"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
)

type signalKind int

const (
	sigChange signalKind = iota
	sigTick
	sigInitial
	sigError
)

// signal is a message pushed onto the coordinator inbox by a watch or the timer.
type signal struct {
	kind     signalKind
	dir      string
	fileName string
	// gen is the watch-set generation for change and error signals and the
	// timer generation for ticks.
	gen uint64
	err error
	at  time.Time
}

func send(ctx context.Context, inbox chan<- signal, s signal) {
	select {
	case inbox <- s:
	case <-ctx.Done():
	}
}

// offer delivers s only if the inbox has room. A dropped tick is followed
// by the next one an interval later.
func offer(inbox chan<- signal, s signal) bool {
	select {
	case inbox <- s:
		return true
	default:
		return false
	}
}

// watchHandle owns the native watch on one directory and the cancel func
// that unsubscribes it from the coordinator.
type watchHandle struct {
	dir      string
	fileName string
	native   nativeWatch
	cancel   context.CancelFunc
	done     chan struct{}
}

// watchTarget is the descriptive part of a handle, safe to hand out.
type watchTarget struct {
	dir      string
	fileName string
}

func (t watchTarget) path() string {
	return filepath.Join(t.dir, t.fileName)
}

// watchSet holds one handle per watched directory. Structural changes go
// through mu; readers only ever see copies.
type watchSet struct {
	mu      sync.RWMutex
	gen     uint64
	order   []string
	handles map[string]*watchHandle
}

func newWatchSet() *watchSet {
	return &watchSet{handles: make(map[string]*watchHandle)}
}

// build opens a fresh handle for every directory. On failure the handles
// opened so far are released and the set is left empty.
func (ws *watchSet) build(ctx context.Context, dirs []string, fileName string, be backend, inbox chan<- signal, log *slog.Logger) error {
	ws.mu.Lock()
	defer ws.mu.Unlock()

	if err := ctx.Err(); err != nil {
		return err
	}
	if len(ws.handles) > 0 {
		return fmt.Errorf("watch set already holds %d watches", len(ws.handles))
	}

	ws.gen++
	gen := ws.gen
	for _, dir := range dirs {
		native, err := be.Open(dir)
		if err != nil {
			for _, h := range ws.handles {
				h.cancel()
				h.native.Close()
				<-h.done
			}
			ws.handles = make(map[string]*watchHandle)
			ws.order = nil
			return err
		}
		hctx, cancel := context.WithCancel(ctx)
		h := &watchHandle{
			dir:      dir,
			fileName: fileName,
			native:   native,
			cancel:   cancel,
			done:     make(chan struct{}),
		}
		ws.handles[dir] = h
		ws.order = append(ws.order, dir)
		go h.pump(hctx, gen, inbox, log)
	}
	return nil
}

// teardown cancels every handle, waits pause for in-flight deliveries to
// settle, then closes the native watches.
func (ws *watchSet) teardown(ctx context.Context, pause time.Duration) {
	ws.mu.Lock()
	handles := make([]*watchHandle, 0, len(ws.order))
	for _, dir := range ws.order {
		handles = append(handles, ws.handles[dir])
	}
	ws.handles = make(map[string]*watchHandle)
	ws.order = nil
	ws.mu.Unlock()

	for _, h := range handles {
		h.cancel()
	}
	if pause > 0 && len(handles) > 0 {
		t := time.NewTimer(pause)
		select {
		case <-t.C:
		case <-ctx.Done():
			t.Stop()
		}
	}
	for _, h := range handles {
		h.native.Close()
		<-h.done
	}
}

func (ws *watchSet) snapshot() []watchTarget {
	ws.mu.RLock()
	defer ws.mu.RUnlock()
	out := make([]watchTarget, 0, len(ws.order))
	for _, dir := range ws.order {
		h := ws.handles[dir]
		out = append(out, watchTarget{dir: h.dir, fileName: h.fileName})
	}
	return out
}

func (ws *watchSet) first() (watchTarget, bool) {
	ws.mu.RLock()
	defer ws.mu.RUnlock()
	if len(ws.order) == 0 {
		return watchTarget{}, false
	}
	h := ws.handles[ws.order[0]]
	return watchTarget{dir: h.dir, fileName: h.fileName}, true
}

func (ws *watchSet) generation() uint64 {
	ws.mu.RLock()
	defer ws.mu.RUnlock()
	return ws.gen
}

func (ws *watchSet) len() int {
	ws.mu.RLock()
	defer ws.mu.RUnlock()
	return len(ws.handles)
}

// pump forwards the native watch's notifications to the coordinator until
// the handle is cancelled.
func (h *watchHandle) pump(ctx context.Context, gen uint64, inbox chan<- signal, log *slog.Logger) {
	defer close(h.done)
	for {
		select {
		case <-ctx.Done():
			log.Debug("watch cancelled", "dir", h.dir)
			return
		case ev, ok := <-h.native.Events():
			if !ok {
				return
			}
			if sig, ok := h.interpret(ev, gen); ok {
				send(ctx, inbox, sig)
			}
		case err, ok := <-h.native.Errors():
			if !ok {
				return
			}
			if err == nil {
				continue
			}
			send(ctx, inbox, signal{kind: sigError, dir: h.dir, gen: gen, err: err, at: time.Now()})
		}
	}
}

func (h *watchHandle) interpret(ev fsnotify.Event, gen uint64) (signal, bool) {
	if ev.Op&(fsnotify.Remove|fsnotify.Rename) != 0 && filepath.Clean(ev.Name) == filepath.Clean(h.dir) {
		return signal{
			kind: sigError,
			dir:  h.dir,
			gen:  gen,
			err:  fmt.Errorf("%w: %s was removed", ErrDirectoryInaccessible, h.dir),
			at:   time.Now(),
		}, true
	}
	if filepath.Base(ev.Name) != h.fileName {
		return signal{}, false
	}
	if ev.Op&(fsnotify.Write|fsnotify.Create) == 0 {
		return signal{}, false
	}
	return signal{kind: sigChange, dir: h.dir, fileName: h.fileName, gen: gen, at: time.Now()}, true
}
