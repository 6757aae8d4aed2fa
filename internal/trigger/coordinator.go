// internal/trigger/coordinator.go
package trigger

import (
	"context"
	"fmt"
	"log/slog"
	"sync/atomic"
	"time"
)

// session is one Start..Stop activation of a FileWatcher. Its inbox is
// drained by a single coordinator goroutine, which is the only place
// fires and rebuilds happen.
type session struct {
	id          int64
	controller  string
	ctx         context.Context
	cancel      context.CancelFunc
	cfg         Config
	dirs        []string
	backend     backend
	callback    Callback
	log         *slog.Logger
	settle      time.Duration
	cancelPause time.Duration

	inbox   chan signal
	watches *watchSet
	timer   *intervalTimer

	seq      atomic.Uint64
	lastFire atomic.Int64
	rebuilds atomic.Int64

	// quiet holds, per directory, the end of the last fire sourced from it.
	// Change signals received before that instant are coalesced into it.
	quiet         map[string]time.Time
	replayInitial bool
	done          chan struct{}
}

func (s *session) run() {
	defer close(s.done)
	for {
		select {
		case <-s.ctx.Done():
			return
		case sig := <-s.inbox:
			s.dispatch(sig)
			for s.replayInitial && s.ctx.Err() == nil {
				s.replayInitial = false
				s.dispatch(signal{kind: sigInitial, at: time.Now()})
			}
		}
	}
}

func (s *session) dispatch(sig signal) {
	switch sig.kind {
	case sigError:
		if sig.gen != s.watches.generation() {
			s.log.Debug("ignoring error from retired watch", "dir", sig.dir, "error", sig.err)
			return
		}
		s.rebuild(sig.dir, sig.err)

	case sigChange:
		if sig.gen != s.watches.generation() {
			s.log.Debug("ignoring change from retired watch", "dir", sig.dir)
			return
		}
		if q, ok := s.quiet[sig.dir]; ok && sig.at.Before(q) {
			s.log.Debug("change coalesced", "dir", sig.dir)
			return
		}
		s.fire(EventFileChanged, watchTarget{dir: sig.dir, fileName: sig.fileName})

	case sigTick:
		if s.timer == nil || !s.timer.current(sig.gen) {
			return
		}
		if t, ok := s.watches.first(); ok {
			s.fire(EventTimer, t)
		}

	case sigInitial:
		if t, ok := s.watches.first(); ok {
			s.fire(EventInitial, t)
		}
	}
}

// fire runs the full fire pipeline: stop the timer, settle, call back once,
// then re-arm the timer for a full interval from now.
func (s *session) fire(eventType string, src watchTarget) {
	s.log.Debug("trigger fired", "type", eventType, "dir", src.dir)
	if s.timer != nil {
		s.timer.pause()
	}

	err := s.invoke(eventType, src)
	s.quiet[src.dir] = time.Now()
	if err != nil {
		s.log.Error("fire failed", "error", err, "dir", src.dir)
		s.rebuild(src.dir, err)
	}

	if s.timer != nil {
		s.timer.resume()
	}
}

func (s *session) invoke(eventType string, src watchTarget) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("%w: %v", ErrCallbackFailure, r)
		}
	}()

	s.wait(s.settle)
	if s.ctx.Err() != nil {
		return nil
	}

	now := time.Now()
	s.lastFire.Store(now.UnixNano())
	s.callback(Event{
		TriggerID:  s.id,
		Controller: s.controller,
		Type:       eventType,
		Sequence:   s.seq.Add(1),
		Timestamp:  now,
		Data: map[string]any{
			"file_path":  src.path(),
			"file_name":  src.fileName,
			"directory":  src.dir,
			"event_type": eventType,
		},
	})
	return nil
}
