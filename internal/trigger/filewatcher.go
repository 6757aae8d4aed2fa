// internal/trigger/filewatcher.go
package trigger

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"
)

const (
	// DefaultSettleDelay is how long a fire waits for writes to finish and
	// for duplicate notifications to pile up before calling back.
	DefaultSettleDelay = 300 * time.Millisecond
	// DefaultCancelPause is the pause between cancelling watches and
	// closing them during recovery.
	DefaultCancelPause = 100 * time.Millisecond

	inboxSize = 64
)

var instanceIDs atomic.Int64

// FileWatcher fires a callback when a file changes in one of several
// candidate directories, on an optional fixed interval, and optionally once
// at startup. Watch failures are recovered by rebuilding all watches.
type FileWatcher struct {
	id          int64
	logger      *slog.Logger
	settle      time.Duration
	cancelPause time.Duration
	backendName string
	backend     backend

	mu      sync.Mutex
	session *session
	// retired is closed when the coordinator of the last stopped session exits.
	retired <-chan struct{}
}

var _ Trigger = (*FileWatcher)(nil)

// Option configures a FileWatcher.
type Option func(*FileWatcher)

// WithLogger sets the sink for status and error lines.
func WithLogger(l *slog.Logger) Option {
	return func(f *FileWatcher) {
		if l != nil {
			f.logger = l
		}
	}
}

// WithSettleDelay overrides DefaultSettleDelay.
func WithSettleDelay(d time.Duration) Option {
	return func(f *FileWatcher) {
		if d >= 0 {
			f.settle = d
		}
	}
}

// WithCancelPause overrides DefaultCancelPause.
func WithCancelPause(d time.Duration) Option {
	return func(f *FileWatcher) {
		if d >= 0 {
			f.cancelPause = d
		}
	}
}

// WithBackend selects the native watch backend: "fsnotify" (default) or
// "fsevents" (macOS only).
func WithBackend(name string) Option {
	return func(f *FileWatcher) {
		f.backendName = name
	}
}

func withNativeBackend(b backend) Option {
	return func(f *FileWatcher) {
		f.backend = b
	}
}

// New creates a stopped FileWatcher.
func New(opts ...Option) *FileWatcher {
	f := &FileWatcher{
		id:          instanceIDs.Add(1),
		logger:      slog.Default(),
		settle:      DefaultSettleDelay,
		cancelPause: DefaultCancelPause,
	}
	for _, opt := range opts {
		opt(f)
	}
	return f
}

// ID returns the process-wide instance number used in log lines.
func (f *FileWatcher) ID() int64 {
	return f.id
}

// Start parses parameters, resolves the directories to watch and sets up
// one watch per directory plus the optional timer. It returns false without
// error when the trigger is already running. Configuration and resolution
// errors are returned to the caller. After a Stop, Start waits for the
// previous callback to return, so it must not be called from that callback.
func (f *FileWatcher) Start(controller any, parameters string, callback Callback) (bool, error) {
	if callback == nil {
		return false, fmt.Errorf("%w: nil callback", ErrConfiguration)
	}

	f.mu.Lock()
	retired := f.retired
	f.mu.Unlock()
	if retired != nil {
		<-retired
	}

	f.mu.Lock()
	defer f.mu.Unlock()

	if f.session != nil {
		return false, nil
	}

	ctrl := controllerInfo(controller)
	log := f.logger.With("trigger_id", f.id, "controller", ctrl)

	cfg, err := ParseParameters(parameters)
	if err != nil {
		return false, err
	}
	targets, err := Resolve(cfg)
	if err != nil {
		return false, err
	}
	be := f.backend
	if be == nil {
		if be, err = backendFor(f.backendName); err != nil {
			return false, err
		}
	}

	ctx, cancel := context.WithCancel(context.Background())
	s := &session{
		id:          f.id,
		controller:  ctrl,
		ctx:         ctx,
		cancel:      cancel,
		cfg:         cfg,
		dirs:        targets.Directories,
		backend:     be,
		callback:    callback,
		log:         log,
		settle:      f.settle,
		cancelPause: f.cancelPause,
		inbox:       make(chan signal, inboxSize),
		watches:     newWatchSet(),
		quiet:       make(map[string]time.Time),
		done:        make(chan struct{}),
	}

	if err := s.watches.build(ctx, s.dirs, cfg.FileName, be, s.inbox, log); err != nil {
		cancel()
		return false, err
	}
	if cfg.Interval > 0 {
		s.timer = newIntervalTimer(cfg.Interval, func(gen uint64) {
			if ctx.Err() == nil && !offer(s.inbox, signal{kind: sigTick, gen: gen, at: time.Now()}) {
				log.Debug("timer tick dropped, coordinator busy")
			}
		})
		s.timer.resume()
	}
	if cfg.FireOnStartup {
		s.inbox <- signal{kind: sigInitial, at: time.Now()}
	}

	f.session = s
	go s.run()

	log.Info("watches started",
		"file", cfg.FileName,
		"dirs", targets.Directories,
		"file_found", targets.Found,
		"interval", cfg.Interval,
		"initial", cfg.FireOnStartup)
	return true, nil
}

// Stop cancels every watch and the timer and releases native resources.
// It does not wait for a callback that is already running; the next Start
// does.
func (f *FileWatcher) Stop(controller any) {
	f.mu.Lock()
	s := f.session
	f.session = nil
	if s != nil {
		f.retired = s.done
	}
	f.mu.Unlock()

	if s == nil {
		return
	}

	s.cancel()
	if s.timer != nil {
		s.timer.stop()
	}
	s.watches.teardown(s.ctx, 0)

	f.logger.Info("watches stopped", "trigger_id", f.id, "controller", controllerInfo(controller))
}

// current returns the running session, or nil.
func (f *FileWatcher) current() *session {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.session
}
