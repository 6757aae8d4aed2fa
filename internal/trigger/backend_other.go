//go:build !darwin

package trigger

import (
	"fmt"
	"runtime"
)

func newFSEventsBackend() (backend, error) {
	return nil, fmt.Errorf("%w: fsevents backend requires macOS; running on %s", ErrConfiguration, runtime.GOOS)
}
