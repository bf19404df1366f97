// Package backup preserves a pristine copy of the target before any
// mutation.
package backup

import (
	"fmt"
	"io"
	"os"
)

// Suffix is appended to the target path to derive the backup path.
const Suffix = ".bak"

// Ensure guarantees a byte-for-byte snapshot of the target exists at
// <path>.bak. An existing backup is the authoritative pristine copy and is
// never overwritten, so repeated runs keep pointing at the original state.
// created reports whether this call produced the snapshot.
func Ensure(path string) (backupPath string, created bool, err error) {
	backupPath = path + Suffix

	srcInfo, err := os.Stat(path)
	if err != nil {
		return backupPath, false, fmt.Errorf("stat target: %w", err)
	}

	if _, err := os.Stat(backupPath); err == nil {
		return backupPath, false, nil
	}

	src, err := os.Open(path)
	if err != nil {
		return backupPath, false, fmt.Errorf("open target for backup: %w", err)
	}
	defer func() { _ = src.Close() }()

	dst, err := os.OpenFile(backupPath, os.O_WRONLY|os.O_CREATE|os.O_EXCL, srcInfo.Mode())
	if err != nil {
		return backupPath, false, fmt.Errorf("create backup: %w", err)
	}

	if _, err = io.Copy(dst, src); err == nil {
		err = dst.Sync()
	}
	if cerr := dst.Close(); err == nil {
		err = cerr
	}
	if err != nil {
		// Never leave a partial snapshot behind to be mistaken for a
		// pristine copy on the next run.
		_ = os.Remove(backupPath)
		return backupPath, false, fmt.Errorf("write backup: %w", err)
	}

	return backupPath, true, nil
}
