package pe

import (
	"encoding/binary"
	"fmt"
	"os"
)

// PatchPair maps an original aligned qword to its replacement value.
// Values are compared and written in the image's little-endian byte order.
type PatchPair struct {
	Original    uint64
	Replacement uint64
}

// PatchResult reports the outcome of one scan pass.
type PatchResult struct {
	// Substitutions counts the words actually overwritten on disk.
	Substitutions int
	// WriteFailures counts matched words whose write-back failed. The scan
	// keeps going past these; the caller only sees a lower count.
	WriteFailures int
}

// Patcher scans a file as a sequence of 8-byte aligned words and rewrites
// matches in place.
type Patcher struct {
	filepath string
	file     *os.File

	// Progress, when set, is invoked once per matched word with the write
	// outcome (err is nil on success).
	Progress func(offset int64, original, replacement uint64, err error)
}

// NewPatcher opens the target for read-modify-write access.
func NewPatcher(filepath string) (*Patcher, error) {
	file, err := os.OpenFile(filepath, os.O_RDWR, 0666)
	if err != nil {
		return nil, fmt.Errorf("open file for patching: %w", err)
	}
	return &Patcher{filepath: filepath, file: file}, nil
}

// Close releases the underlying file handle.
func (p *Patcher) Close() error {
	if p.file != nil {
		return p.file.Close()
	}
	return nil
}

// Apply scans the whole file from offset 0 in 8-byte steps and replaces
// every word equal to a pair's original value. Pairs are tried in list
// order and the first match wins; the replacement is written before the
// scan advances, so it is never itself matched against later pairs on the
// same pass. A trailing partial word is ignored. Each successful write is
// flushed immediately so earlier substitutions survive a failure partway
// through.
func (p *Patcher) Apply(pairs []PatchPair) (PatchResult, error) {
	var res PatchResult

	buf := make([]byte, 8)
	out := make([]byte, 8)

	for offset := int64(0); ; offset += 8 {
		n, err := p.file.ReadAt(buf, offset)
		if n < 8 {
			// End of file, possibly with a partial word left over.
			break
		}

		word := binary.LittleEndian.Uint64(buf)
		for _, pair := range pairs {
			if word != pair.Original {
				continue
			}
			binary.LittleEndian.PutUint64(out, pair.Replacement)
			_, werr := p.file.WriteAt(out, offset)
			if werr == nil {
				werr = p.file.Sync()
			}
			if p.Progress != nil {
				p.Progress(offset, word, pair.Replacement, werr)
			}
			if werr != nil {
				res.WriteFailures++
			} else {
				res.Substitutions++
			}
			break
		}

		if err != nil {
			break
		}
	}

	return res, nil
}
