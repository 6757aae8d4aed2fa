// internal/trigger/resolve.go
package trigger

import (
	"fmt"
	"os"
	"os/user"
	"path/filepath"
	"strings"
)

// Targets is the outcome of directory resolution.
type Targets struct {
	// Directories to watch, in priority order. Never empty.
	Directories []string
	// Found is true when the file already exists in Directories[0] and
	// resolution short-circuited to that single directory.
	Found bool
}

// Resolve picks the directories to watch. The first candidate that already
// contains the file wins and is watched alone. Otherwise every existing
// candidate is kept as a fallback, anticipating the file's creation in any
// of them.
func Resolve(cfg Config) (Targets, error) {
	var fallback []string
	for _, candidate := range cfg.Directories {
		dir := expandHome(candidate)
		if isFile(filepath.Join(dir, cfg.FileName)) {
			return Targets{Directories: []string{dir}, Found: true}, nil
		}
		if isDir(dir) {
			fallback = append(fallback, dir)
		}
	}
	if len(fallback) == 0 {
		return Targets{}, fmt.Errorf("%w (%s)", ErrDirectoryNotFound, cfg)
	}
	return Targets{Directories: fallback}, nil
}

func isFile(path string) bool {
	info, err := os.Stat(path)
	return err == nil && !info.IsDir()
}

func isDir(path string) bool {
	info, err := os.Stat(path)
	return err == nil && info.IsDir()
}

// expandHome resolves ~ or ~/... to the current user's home directory.
func expandHome(path string) string {
	if path == "~" {
		path = "~/"
	}
	if !strings.HasPrefix(path, "~/") {
		return path
	}
	home, err := os.UserHomeDir()
	if err != nil {
		if u, uerr := user.Current(); uerr == nil {
			home = u.HomeDir
		} else {
			return path
		}
	}
	return filepath.Join(home, path[2:])
}
