// internal/trigger/timer.go
package trigger

import (
	"sync"
	"time"

	"github.com/robfig/cron/v3"
)

// every is a cron.Schedule that fires a fixed interval after the previous run.
type every time.Duration

func (e every) Next(t time.Time) time.Time {
	return t.Add(time.Duration(e))
}

// intervalTimer fires onTick every interval. Each resume re-arms it from
// the current time, so the interval is always measured from the last fire.
type intervalTimer struct {
	mu       sync.Mutex
	cron     *cron.Cron
	interval time.Duration
	onTick   func(gen uint64)
	entry    cron.EntryID
	gen      uint64
	next     time.Time
	running  bool
	stopped  bool
}

func newIntervalTimer(interval time.Duration, onTick func(gen uint64)) *intervalTimer {
	c := cron.New()
	c.Start()
	return &intervalTimer{
		cron:     c,
		interval: interval,
		onTick:   onTick,
	}
}

// pause removes the pending entry. Ticks already in flight carry a stale
// generation and are dropped by the coordinator.
func (t *intervalTimer) pause() {
	t.mu.Lock()
	defer t.mu.Unlock()
	if !t.running {
		return
	}
	t.cron.Remove(t.entry)
	t.running = false
	t.gen++
}

// resume schedules the next tick one full interval from now.
func (t *intervalTimer) resume() {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.stopped || t.running {
		return
	}
	t.gen++
	gen := t.gen
	t.next = time.Now().Add(t.interval)
	t.entry = t.cron.Schedule(every(t.interval), cron.FuncJob(func() { t.tick(gen) }))
	t.running = true
}

func (t *intervalTimer) tick(gen uint64) {
	t.mu.Lock()
	if gen != t.gen || !t.running {
		t.mu.Unlock()
		return
	}
	t.next = time.Now().Add(t.interval)
	t.mu.Unlock()
	t.onTick(gen)
}

// current reports whether a tick of generation gen is still valid.
func (t *intervalTimer) current(gen uint64) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.running && gen == t.gen
}

// nextRun returns the next scheduled fire time, if the timer is armed.
func (t *intervalTimer) nextRun() (time.Time, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.next, t.running
}

func (t *intervalTimer) stop() {
	t.mu.Lock()
	t.stopped = true
	t.running = false
	t.gen++
	t.mu.Unlock()
	<-t.cron.Stop().Done()
}
