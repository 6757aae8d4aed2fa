// internal/trigger/supervisor.go
package trigger

import "time"

// rebuild tears down every watch and sets them up again from the directory
// list resolved at Start. Resolution is not repeated, so a directory that
// is still missing fails again and the cycle repeats until Stop.
// The timer stays paused while the watches are down.
func (s *session) rebuild(dir string, cause error) {
	if s.timer != nil {
		s.timer.pause()
	}
	for s.ctx.Err() == nil {
		s.log.Warn(classify(cause), "error", cause, "dir", dir, "at", time.Now().Format(time.DateTime))
		s.log.Info("stopping watches")
		s.watches.teardown(s.ctx, s.cancelPause)

		s.log.Info("restarting watches")
		err := s.watches.build(s.ctx, s.dirs, s.cfg.FileName, s.backend, s.inbox, s.log)
		if err == nil {
			s.rebuilds.Add(1)
			s.replayInitial = s.cfg.FireOnStartup
			s.log.Info("watches started", "dirs", s.dirs, "rebuilds", s.rebuilds.Load())
			if s.timer != nil {
				s.timer.resume()
			}
			return
		}
		cause = err
		// Nothing is left to cancel after a failed build; keep the retry
		// rate at one attempt per cancel pause.
		s.wait(s.cancelPause)
	}
}

func (s *session) wait(d time.Duration) {
	if d <= 0 {
		return
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-t.C:
	case <-s.ctx.Done():
	}
}
