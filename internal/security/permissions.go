// internal/security/permissions.go
package security

import (
	"fmt"
	"os"
)

// ValidateDirectoryPermissions rejects a directory that users other than
// its owner and group could write into, since anyone who can replace the
// config file there controls the commands the daemon runs.
func ValidateDirectoryPermissions(path string) error {
	info, err := os.Stat(path)
	if err != nil {
		return fmt.Errorf("checking directory permissions: %w", err)
	}

	if !info.IsDir() {
		return fmt.Errorf("%s is not a directory", path)
	}

	mode := info.Mode()
	// World-writable is tolerated only with the sticky bit (like /tmp).
	if mode.Perm()&0002 != 0 && mode&os.ModeSticky == 0 {
		return fmt.Errorf("directory %s is world-writable (mode %04o)", path, mode.Perm())
	}
	return nil
}

// ValidateFilePermissions checks that a file is not group- or world-writable.
func ValidateFilePermissions(path string) error {
	info, err := os.Stat(path)
	if err != nil {
		return fmt.Errorf("checking file permissions: %w", err)
	}

	if info.IsDir() {
		return fmt.Errorf("%s is a directory", path)
	}

	mode := info.Mode().Perm()
	if mode&0002 != 0 {
		return fmt.Errorf("file %s is world-writable (mode %04o)", path, mode)
	}
	if mode&0020 != 0 {
		return fmt.Errorf("file %s is group-writable (mode %04o)", path, mode)
	}
	return nil
}
