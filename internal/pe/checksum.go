package pe

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"io"
	"os"
)

// CheckSum computes the PE checksum over the current file content and
// returns it alongside the value stored in the optional header. The two
// are equal for an image whose header is already current.
func CheckSum(filepath string) (stored, computed uint32, err error) {
	file, err := os.Open(filepath)
	if err != nil {
		return 0, 0, fmt.Errorf("open file for checksum: %w", err)
	}
	defer func() { _ = file.Close() }()

	stat, err := file.Stat()
	if err != nil {
		return 0, 0, fmt.Errorf("stat file for checksum: %w", err)
	}

	layout, err := ReadHeaderLayout(file)
	if err != nil {
		return 0, 0, err
	}

	field := make([]byte, 4)
	if _, err := file.ReadAt(field, layout.ChecksumOffset()); err != nil {
		return 0, 0, fmt.Errorf("read checksum field: %w", err)
	}
	stored = binary.LittleEndian.Uint32(field)

	computed, err = computeCheckSum(file, stat.Size(), layout.ChecksumOffset())
	if err != nil {
		return 0, 0, err
	}
	return stored, computed, nil
}

// computeCheckSum implements the imagehlp checksum: sum the file as
// little-endian dwords with carry folding, skipping the CheckSum field
// itself, fold the sum to 16 bits and add the file size. skipOffset < 0
// disables the skip.
func computeCheckSum(r io.ReaderAt, filesize, skipOffset int64) (uint32, error) {
	var sum uint64
	buf := make([]byte, 4)

	for offset := int64(0); offset < filesize; offset += 4 {
		if skipOffset >= 0 && offset == skipOffset {
			continue
		}

		n, err := r.ReadAt(buf, offset)
		if err != nil && err != io.EOF {
			return 0, fmt.Errorf("read at 0x%X: %w", offset, err)
		}
		// Zero-pad a partial trailing dword.
		for i := n; i < 4; i++ {
			buf[i] = 0
		}

		sum += uint64(binary.LittleEndian.Uint32(buf))
		if sum > 0xFFFFFFFF {
			sum = (sum & 0xFFFFFFFF) + (sum >> 32)
		}
	}

	sum = (sum & 0xFFFF) + (sum >> 16)
	sum += sum >> 16
	sum &= 0xFFFF

	return uint32(sum + uint64(filesize)), nil
}

// checkSumBytes computes the checksum of an in-memory image.
func checkSumBytes(image []byte, skipOffset int64) uint32 {
	// The reader never fails over a bytes.Reader.
	sum, _ := computeCheckSum(bytes.NewReader(image), int64(len(image)), skipOffset)
	return sum
}

// RepairChecksum rewrites the optional header CheckSum field through a
// read-write mapped view of the file. The field's current content must
// equal oldSum, the value the caller computed against, otherwise nothing
// is written and ErrChecksumMismatch is returned. The mapping is released
// on every path.
func RepairChecksum(filepath string, oldSum, newSum uint32) error {
	m, err := mapFileRW(filepath)
	if err != nil {
		return fmt.Errorf("map file for checksum update: %w", err)
	}
	defer func() { _ = m.Close() }()

	layout, err := ReadHeaderLayout(bytes.NewReader(m.data))
	if err != nil {
		return err
	}

	off := layout.ChecksumOffset()
	if off+4 > int64(len(m.data)) {
		return fmt.Errorf("%w: checksum field outside file", ErrNotPE)
	}

	current := binary.LittleEndian.Uint32(m.data[off:])
	if current != oldSum {
		kind := "32-bit"
		if layout.PE64 {
			kind = "64-bit"
		}
		return fmt.Errorf("%w: header holds 0x%08X, expected 0x%08X (is this really a %s executable?)",
			ErrChecksumMismatch, current, oldSum, kind)
	}

	binary.LittleEndian.PutUint32(m.data[off:], newSum)
	if err := m.Flush(); err != nil {
		return fmt.Errorf("flush mapped view: %w", err)
	}
	return m.Close()
}
