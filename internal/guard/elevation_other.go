//go:build !windows

package guard

import "os"

// processElevated approximates the elevation check off-Windows: root is
// the only principal allowed to rewrite system-adjacent binaries.
func processElevated() bool {
	return os.Geteuid() == 0
}

func protectedDirs() []string {
	return nil
}
