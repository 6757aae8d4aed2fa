// internal/trigger/errors.go
package trigger

import (
	"errors"

	"github.com/fsnotify/fsnotify"
)

var (
	// ErrConfiguration is returned by ParseParameters for malformed parameter strings.
	ErrConfiguration = errors.New("invalid trigger configuration")
	// ErrDirectoryNotFound is returned when none of the candidate directories exist.
	ErrDirectoryNotFound = errors.New("no valid directory found")
	// ErrBufferOverflow reports that a native watch dropped events.
	ErrBufferOverflow = fsnotify.ErrEventOverflow
	// ErrDirectoryInaccessible reports that a watched directory vanished or can no longer be read.
	ErrDirectoryInaccessible = errors.New("watched directory not accessible")
	// ErrCallbackFailure reports a failure inside the fire pipeline.
	ErrCallbackFailure = errors.New("fire pipeline failed")
)

// classify returns a short log message for a runtime watch error.
func classify(err error) string {
	switch {
	case errors.Is(err, ErrBufferOverflow):
		return "file system watcher internal buffer overflow"
	case errors.Is(err, ErrCallbackFailure):
		return "fire pipeline failed"
	default:
		return "watched directory not accessible"
	}
}
