//go:build windows

package pe

import (
	"fmt"
	"os"
	"unsafe"

	"golang.org/x/sys/windows"
)

// fileMapping is a read-write view of a whole file, scoped to a single
// header repair. The view must be unmapped before the handles close.
type fileMapping struct {
	data    []byte
	addr    uintptr
	mapping windows.Handle
	file    *os.File
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

	mapping, err := windows.CreateFileMapping(windows.Handle(file.Fd()), nil, windows.PAGE_READWRITE, 0, 0, nil)
	if err != nil {
		_ = file.Close()
		return nil, fmt.Errorf("CreateFileMapping: %w", err)
	}

	addr, err := windows.MapViewOfFile(mapping, windows.FILE_MAP_WRITE, 0, 0, 0)
	if err != nil {
		_ = windows.CloseHandle(mapping)
		_ = file.Close()
		return nil, fmt.Errorf("MapViewOfFile: %w", err)
	}

	return &fileMapping{
		data:    unsafe.Slice((*byte)(unsafe.Pointer(addr)), size),
		addr:    addr,
		mapping: mapping,
		file:    file,
	}, nil
}

func (m *fileMapping) Flush() error {
	return windows.FlushViewOfFile(m.addr, 0)
}

// Close unmaps the view and releases the handles. Safe to call twice.
func (m *fileMapping) Close() error {
	if m.data == nil {
		return nil
	}
	m.data = nil

	err := windows.UnmapViewOfFile(m.addr)
	if cerr := windows.CloseHandle(m.mapping); err == nil {
		err = cerr
	}
	if cerr := m.file.Close(); err == nil {
		err = cerr
	}
	return err
}
