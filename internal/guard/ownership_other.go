//go:build !windows

package guard

import (
	"fmt"
	"os"

	"golang.org/x/sys/unix"
)

// TakeOwnership makes the file writable by the current user. The ACL and
// take-ownership machinery is Windows-only; off-Windows a chmod covers the
// same contract.
func TakeOwnership(path string) error {
	if err := unix.Access(path, unix.W_OK); err == nil {
		return nil
	}

	info, err := os.Stat(path)
	if err != nil {
		return fmt.Errorf("stat %s: %w", path, err)
	}
	if err := os.Chmod(path, info.Mode()|0o600); err != nil {
		return fmt.Errorf("make %s writable: %w", path, err)
	}
	return nil
}
