//go:build !windows

package pe

import (
	"fmt"
	"os"

	"golang.org/x/sys/unix"
)

// fileMapping is a read-write view of a whole file, scoped to a single
// header repair. The view must be unmapped before the handle closes.
type fileMapping struct {
	data []byte
	file *os.File
}

func mapFileRW(filepath string) (*fileMapping, error) {
	file, err := os.OpenFile(filepath, os.O_RDWR, 0666)
	if err != nil {
		return nil, err
	}

	stat, err := file.Stat()
	if err != nil {
		_ = file.Close()
		return nil, err
	}
	size := stat.Size()
	if size == 0 {
		_ = file.Close()
		return nil, fmt.Errorf("cannot map empty file")
	}

	data, err := unix.Mmap(int(file.Fd()), 0, int(size), unix.PROT_READ|unix.PROT_WRITE, unix.MAP_SHARED)
	if err != nil {
		_ = file.Close()
		return nil, fmt.Errorf("mmap: %w", err)
	}

	return &fileMapping{data: data, file: file}, nil
}

func (m *fileMapping) Flush() error {
	return unix.Msync(m.data, unix.MS_SYNC)
}

// Close unmaps the view and releases the handle. Safe to call twice.
func (m *fileMapping) Close() error {
	if m.data == nil {
		return nil
	}
	data := m.data
	m.data = nil

	err := unix.Munmap(data)
	if cerr := m.file.Close(); err == nil {
		err = cerr
	}
	return err
}
