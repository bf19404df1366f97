package pipeline

import (
	"encoding/binary"
	"io"
	"os"
	"path/filepath"
	"testing"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ZacharyZcR/QWordPatch/internal/backup"
	"github.com/ZacharyZcR/QWordPatch/internal/pe"
)

func TestMain(m *testing.M) {
	logrus.SetOutput(io.Discard)
	os.Exit(m.Run())
}

// buildPE64 assembles a minimal headers-only PE32+ image followed by the
// given payload words.
func buildPE64(t *testing.T, words []uint64) []byte {
	t.Helper()

	const (
		peOffset = 0x80
		optSize  = 240
	)

	img := make([]byte, peOffset+4+20+optSize)
	img[0], img[1] = 'M', 'Z'
	binary.LittleEndian.PutUint32(img[0x3C:], peOffset)
	copy(img[peOffset:], []byte{'P', 'E', 0, 0})

	coff := peOffset + 4
	binary.LittleEndian.PutUint16(img[coff:], 0x8664) // AMD64
	binary.LittleEndian.PutUint16(img[coff+16:], optSize)
	binary.LittleEndian.PutUint16(img[coff+18:], 0x0002)

	opt := coff + 20
	binary.LittleEndian.PutUint16(img[opt:], 0x20b) // PE32+
	binary.LittleEndian.PutUint32(img[opt+108:], 16)

	for _, w := range words {
		var b [8]byte
		binary.LittleEndian.PutUint64(b[:], w)
		img = append(img, b[:]...)
	}
	return img
}

func writeImage(t *testing.T, img []byte) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "target.exe")
	require.NoError(t, os.WriteFile(path, img, 0o644))
	return path
}

func requireElevated(t *testing.T) {
	t.Helper()
	if os.Geteuid() != 0 {
		t.Skip("pipeline runs require elevation")
	}
}

func TestRunRejectsEmptyPath(t *testing.T) {
	_, err := Run(Config{Pairs: []pe.PatchPair{{Original: 1, Replacement: 2}}})
	assert.ErrorIs(t, err, ErrNoPath)
}

func TestRunRejectsEmptyPairs(t *testing.T) {
	_, err := Run(Config{Path: "target.exe"})
	assert.ErrorIs(t, err, ErrNoValues)
}

func TestRunNoMatchSoftStop(t *testing.T) {
	requireElevated(t)

	img := buildPE64(t, []uint64{0x1111, 0x2222})
	path := writeImage(t, img)

	res, err := Run(Config{
		Path:  path,
		Pairs: []pe.PatchPair{{Original: 0xDEAD, Replacement: 0xBEEF}},
	})
	require.NoError(t, err)
	assert.True(t, res.Halted)
	assert.Zero(t, res.Substitutions)

	// A halted run leaves the target byte-identical.
	got, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, img, got)

	// The backup is still taken before the scan.
	assert.True(t, res.BackupCreated)
	bak, err := os.ReadFile(path + backup.Suffix)
	require.NoError(t, err)
	assert.Equal(t, img, bak)
}

func TestRunFullPipeline(t *testing.T) {
	requireElevated(t)

	img := buildPE64(t, []uint64{0x1111, 0xDEAD, 0x3333, 0xDEAD})
	path := writeImage(t, img)

	var offsets []int64
	res, err := Run(Config{
		Path:  path,
		Pairs: []pe.PatchPair{{Original: 0xDEAD, Replacement: 0xBEEF}},
		Progress: func(offset int64, original, replacement uint64, err error) {
			require.NoError(t, err)
			offsets = append(offsets, offset)
		},
	})
	require.NoError(t, err)

	assert.Equal(t, 2, res.Substitutions)
	assert.Zero(t, res.WriteFailures)
	assert.False(t, res.Halted)
	assert.Len(t, offsets, 2)

	// Backup holds the pristine input.
	bak, err := os.ReadFile(path + backup.Suffix)
	require.NoError(t, err)
	assert.Equal(t, img, bak)

	// Patched words are in place.
	got, err := os.ReadFile(path)
	require.NoError(t, err)
	payload := len(img) - 32
	assert.Equal(t, uint64(0xBEEF), binary.LittleEndian.Uint64(got[payload+8:]))
	assert.Equal(t, uint64(0xBEEF), binary.LittleEndian.Uint64(got[payload+24:]))
	assert.Equal(t, uint64(0x1111), binary.LittleEndian.Uint64(got[payload:]))

	// Reconciliation re-signed the file and left a current checksum.
	assert.True(t, res.Signed)
	info, err := pe.ReadSignature(path)
	require.NoError(t, err)
	assert.Equal(t, 1, info.Entries)

	stored, computed, err := pe.CheckSum(path)
	require.NoError(t, err)
	assert.Equal(t, computed, stored)
}

func TestRunKeepsExistingBackup(t *testing.T) {
	requireElevated(t)

	img := buildPE64(t, []uint64{0xDEAD})
	path := writeImage(t, img)

	pristine := []byte("pristine copy from an earlier run")
	require.NoError(t, os.WriteFile(path+backup.Suffix, pristine, 0o644))

	res, err := Run(Config{
		Path:  path,
		Pairs: []pe.PatchPair{{Original: 0xDEAD, Replacement: 0xBEEF}},
	})
	require.NoError(t, err)
	assert.False(t, res.BackupCreated)

	bak, err := os.ReadFile(path + backup.Suffix)
	require.NoError(t, err)
	assert.Equal(t, pristine, bak)
}

func TestRunMissingTarget(t *testing.T) {
	requireElevated(t)

	path := filepath.Join(t.TempDir(), "absent.exe")
	_, err := Run(Config{
		Path:  path,
		Pairs: []pe.PatchPair{{Original: 1, Replacement: 2}},
	})
	require.Error(t, err)

	var se *StageError
	require.ErrorAs(t, err, &se)
}
