// Package guard gates the patch pipeline: it confirms the process runs
// with administrative rights, refuses targets under the active system
// directory, and acquires write permission on files owned by another
// principal.
package guard

import (
	"errors"
	"fmt"
	"path/filepath"
	"strings"
)

var (
	// ErrNotElevated means the process lacks administrative rights.
	ErrNotElevated = errors.New("this command must be run from an elevated prompt")

	// ErrProtectedPath means the target sits under the protected system
	// directory tree. Patching active system files is prohibited.
	ErrProtectedPath = errors.New("patching of active system files is prohibited")
)

// Check confirms the target may be touched at all. It is a pure guard:
// no mutation, fails closed with a distinct error per cause.
func Check(path string) error {
	if !processElevated() {
		return ErrNotElevated
	}

	resolved := resolvePath(path)
	for _, dir := range protectedDirs() {
		if underDir(resolved, dir) {
			return fmt.Errorf("%w: %s", ErrProtectedPath, path)
		}
	}
	return nil
}

// resolvePath normalizes the target so prefix checks cannot be dodged with
// relative segments or symlinks.
func resolvePath(path string) string {
	abs, err := filepath.Abs(path)
	if err != nil {
		return path
	}
	if eval, err := filepath.EvalSymlinks(abs); err == nil {
		return eval
	}
	return abs
}

// underDir reports whether path lies at or below dir, comparing
// case-insensitively the way the filesystem does.
func underDir(path, dir string) bool {
	if dir == "" {
		return false
	}
	path = strings.ToLower(filepath.Clean(path))
	dir = strings.ToLower(filepath.Clean(dir))
	if path == dir {
		return true
	}
	return strings.HasPrefix(path, dir+string(filepath.Separator))
}
