// internal/trigger/info.go
package trigger

import (
	"strings"
	"time"
)

// Info describes what the trigger is watching and when the timer fires
// next. It reads snapshots only and may be called from any goroutine.
func (f *FileWatcher) Info() Info {
	s := f.current()
	if s == nil {
		return Info{NextRunInfo: "not watching"}
	}

	var b strings.Builder
	b.WriteString("watching ")
	for i, t := range s.watches.snapshot() {
		if i > 0 {
			b.WriteString(" or ")
		}
		b.WriteString(t.path())
	}

	info := Info{}
	if s.timer != nil {
		if next, ok := s.timer.nextRun(); ok {
			b.WriteString(" or: ")
			b.WriteString(next.Format(time.DateTime))
			info.NextRun = next
		}
	}
	info.NextRunInfo = b.String()
	return info
}

// LastFire returns the time of the most recent callback, or zero.
func (f *FileWatcher) LastFire() time.Time {
	s := f.current()
	if s == nil {
		return time.Time{}
	}
	ns := s.lastFire.Load()
	if ns == 0 {
		return time.Time{}
	}
	return time.Unix(0, ns)
}

// Watching returns the number of active watches.
func (f *FileWatcher) Watching() int {
	s := f.current()
	if s == nil {
		return 0
	}
	return s.watches.len()
}
