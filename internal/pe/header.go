// Package pe implements the on-disk primitives behind the patch pipeline:
// aligned qword patching, PE checksum computation and repair, and embedded
// signature handling.
package pe

import (
	"bytes"
	"debug/pe"
	"encoding/binary"
	"fmt"
	"io"
)

const (
	// e_lfanew lives at offset 0x3C of the DOS header.
	peOffsetLocation = 0x3C
	dosHeaderSize    = 64

	// PE signature (4) + IMAGE_FILE_HEADER (20).
	fileHeaderSize = 20

	pe32Magic     = 0x10b
	pe32PlusMagic = 0x20b

	// IMAGE_DIRECTORY_ENTRY_SECURITY.
	certificateTableIndex = 4
)

// HeaderLayout pins down where the optional-header fields of interest sit
// for one of the two PE shapes. The variant is keyed on the machine type,
// the same rule the loader applies, and cross-checked against the
// optional-header magic.
type HeaderLayout struct {
	PE64           bool
	Machine        uint16
	PEOffset       int64 // e_lfanew
	OptionalOffset int64 // start of the optional header
	OptionalSize   uint16
	NumDataDirs    uint32
}

// is64Machine reports whether the machine type selects the PE32+ header
// shape: IA64, ALPHA64, AMD64 and ARM64.
func is64Machine(machine uint16) bool {
	switch machine {
	case pe.IMAGE_FILE_MACHINE_IA64,
		0x284, // IMAGE_FILE_MACHINE_ALPHA64
		pe.IMAGE_FILE_MACHINE_AMD64,
		pe.IMAGE_FILE_MACHINE_ARM64:
		return true
	}
	return false
}

// ChecksumOffset returns the file offset of the optional header CheckSum
// field.
func (l HeaderLayout) ChecksumOffset() int64 {
	// CheckSum sits 64 bytes into the optional header for both shapes.
	return l.OptionalOffset + 64
}

// SecurityDirOffset returns the file offset of the certificate table data
// directory entry.
func (l HeaderLayout) SecurityDirOffset() int64 {
	if l.PE64 {
		return l.OptionalOffset + 112 + 8*certificateTableIndex
	}
	return l.OptionalOffset + 96 + 8*certificateTableIndex
}

// ReadHeaderLayout locates and validates the DOS and NT headers and returns
// the layout for the image's variant.
func ReadHeaderLayout(r io.ReaderAt) (HeaderLayout, error) {
	var layout HeaderLayout

	dosHeader := make([]byte, dosHeaderSize)
	if _, err := r.ReadAt(dosHeader, 0); err != nil {
		return layout, fmt.Errorf("read DOS header: %w", err)
	}
	if dosHeader[0] != 'M' || dosHeader[1] != 'Z' {
		return layout, fmt.Errorf("%w: DOS header not found", ErrNotPE)
	}

	peOffset := int64(binary.LittleEndian.Uint32(dosHeader[peOffsetLocation:]))
	if peOffset < dosHeaderSize {
		return layout, fmt.Errorf("%w: bad e_lfanew 0x%X", ErrNotPE, peOffset)
	}

	// PE signature followed by the COFF file header.
	hdr := make([]byte, 4+fileHeaderSize)
	if _, err := r.ReadAt(hdr, peOffset); err != nil {
		return layout, fmt.Errorf("read NT header: %w", err)
	}
	if !bytes.Equal(hdr[:4], []byte{'P', 'E', 0, 0}) {
		return layout, fmt.Errorf("%w: NT header not found", ErrNotPE)
	}

	layout.PEOffset = peOffset
	layout.Machine = binary.LittleEndian.Uint16(hdr[4:])
	layout.OptionalSize = binary.LittleEndian.Uint16(hdr[20:])
	layout.OptionalOffset = peOffset + 4 + fileHeaderSize
	layout.PE64 = is64Machine(layout.Machine)

	if layout.OptionalSize < 2 {
		return layout, fmt.Errorf("%w: missing optional header", ErrNotPE)
	}

	magic := make([]byte, 2)
	if _, err := r.ReadAt(magic, layout.OptionalOffset); err != nil {
		return layout, fmt.Errorf("read optional header magic: %w", err)
	}

	// The magic must agree with the machine-selected variant, otherwise the
	// field offsets below would land on the wrong dwords.
	want := uint16(pe32Magic)
	if layout.PE64 {
		want = pe32PlusMagic
	}
	if got := binary.LittleEndian.Uint16(magic); got != want {
		return layout, fmt.Errorf("%w: optional header magic 0x%X does not match machine 0x%X",
			ErrNotPE, got, layout.Machine)
	}

	numDirsOff := layout.OptionalOffset + 92
	if layout.PE64 {
		numDirsOff = layout.OptionalOffset + 108
	}
	numDirs := make([]byte, 4)
	if _, err := r.ReadAt(numDirs, numDirsOff); err != nil {
		return layout, fmt.Errorf("read data directory count: %w", err)
	}
	layout.NumDataDirs = binary.LittleEndian.Uint32(numDirs)

	return layout, nil
}

// HasSecurityDir reports whether the image carries enough data directory
// entries for a certificate table.
func (l HeaderLayout) HasSecurityDir() bool {
	return l.NumDataDirs > certificateTableIndex
}
