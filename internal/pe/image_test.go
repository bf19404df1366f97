package pe

import (
	"encoding/binary"
	"os"
	"path/filepath"
	"testing"
)

// testPEOffset is the e_lfanew used by synthetic test images.
const testPEOffset = 0x80

// buildTestImage assembles a minimal headers-only PE image (no sections)
// followed by the given payload words.
func buildTestImage(t *testing.T, pe64 bool, words []uint64) []byte {
	t.Helper()

	optSize := 224
	machine := uint16(0x014c) // i386
	magic := uint16(pe32Magic)
	numDirsOff := 92
	if pe64 {
		optSize = 240
		machine = 0x8664 // AMD64
		magic = pe32PlusMagic
		numDirsOff = 108
	}

	img := make([]byte, testPEOffset+4+fileHeaderSize+optSize)
	img[0], img[1] = 'M', 'Z'
	binary.LittleEndian.PutUint32(img[peOffsetLocation:], testPEOffset)
	copy(img[testPEOffset:], []byte{'P', 'E', 0, 0})

	coff := testPEOffset + 4
	binary.LittleEndian.PutUint16(img[coff:], machine)
	binary.LittleEndian.PutUint16(img[coff+16:], uint16(optSize))
	binary.LittleEndian.PutUint16(img[coff+18:], 0x0002) // executable image

	opt := coff + fileHeaderSize
	binary.LittleEndian.PutUint16(img[opt:], magic)
	binary.LittleEndian.PutUint32(img[opt+numDirsOff:], 16)

	for _, w := range words {
		var b [8]byte
		binary.LittleEndian.PutUint64(b[:], w)
		img = append(img, b[:]...)
	}
	return img
}

func writeTestImage(t *testing.T, img []byte) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "target.exe")
	if err := os.WriteFile(path, img, 0o644); err != nil {
		t.Fatal(err)
	}
	return path
}

func readFile(t *testing.T, path string) []byte {
	t.Helper()
	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatal(err)
	}
	return data
}
