package pipeline

import (
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ZacharyZcR/QWordPatch/internal/pe"
)

func TestParsePairs(t *testing.T) {
	pairs, err := ParsePairs([]string{"0x1122334455667788", "AABBCCDDEEFF0011", "0Xdead", "beef"})
	require.NoError(t, err)
	assert.Equal(t, []pe.PatchPair{
		{Original: 0x1122334455667788, Replacement: 0xAABBCCDDEEFF0011},
		{Original: 0xDEAD, Replacement: 0xBEEF},
	}, pairs)
}

func TestParsePairsOddCount(t *testing.T) {
	_, err := ParsePairs([]string{"11", "22", "33"})
	assert.ErrorIs(t, err, ErrOddValueCount)
}

func TestParsePairsInvalidHex(t *testing.T) {
	_, err := ParsePairs([]string{"11", "notahexvalue"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "notahexvalue")
}

func TestParsePairsOverflow(t *testing.T) {
	_, err := ParsePairs([]string{"112233445566778899", "00"})
	assert.Error(t, err)
}

func TestParsePairsEmpty(t *testing.T) {
	pairs, err := ParsePairs(nil)
	require.NoError(t, err)
	assert.Empty(t, pairs)
}

func TestLoadManifest(t *testing.T) {
	path := filepath.Join(t.TempDir(), "patches.yaml")
	manifest := `patches:
  - original: "0x1122334455667788"
    replacement: "8877665544332211"
  - original: "DEAD"
    replacement: "BEEF"
`
	require.NoError(t, os.WriteFile(path, []byte(manifest), 0o644))

	pairs, err := LoadManifest(path)
	require.NoError(t, err)
	assert.Equal(t, []pe.PatchPair{
		{Original: 0x1122334455667788, Replacement: 0x8877665544332211},
		{Original: 0xDEAD, Replacement: 0xBEEF},
	}, pairs)
}

func TestLoadManifestInvalidEntry(t *testing.T) {
	path := filepath.Join(t.TempDir(), "patches.yaml")
	manifest := `patches:
  - original: "nope"
    replacement: "00"
`
	require.NoError(t, os.WriteFile(path, []byte(manifest), 0o644))

	_, err := LoadManifest(path)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "patch 1")
}

func TestLoadManifestMissingFile(t *testing.T) {
	_, err := LoadManifest(filepath.Join(t.TempDir(), "absent.yaml"))
	assert.Error(t, err)
}

func TestExitCode(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want int
	}{
		{"no path", ErrNoPath, ExitNoPath},
		{"odd values", ErrOddValueCount, ExitOddValueCount},
		{"no values", ErrNoValues, ExitNoValues},
		{"guard stage", stageErr(StageGuard, errors.New("denied")), ExitAuthorization},
		{"ownership stage", stageErr(StageOwnership, errors.New("denied")), ExitOwnership},
		{"backup stage", stageErr(StageBackup, errors.New("disk full")), ExitBackup},
		{"patch stage", stageErr(StagePatch, errors.New("io")), ExitReconcile},
		{"reconcile stage", stageErr(StageReconcile, errors.New("io")), ExitReconcile},
		{"bare error", errors.New("anything else"), ExitReconcile},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, ExitCode(tt.err))
		})
	}
}

func TestStageErrorUnwraps(t *testing.T) {
	inner := errors.New("root cause")
	err := stageErr(StagePatch, inner)

	assert.ErrorIs(t, err, inner)
	assert.Contains(t, err.Error(), "patch")
}
