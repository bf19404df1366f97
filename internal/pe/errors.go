package pe

import "errors"

var (
	// ErrNotPE marks files without a valid DOS/NT header chain.
	ErrNotPE = errors.New("invalid PE image")

	// ErrTooManySignatures is returned when the certificate table holds
	// more than one entry. The single-signature file layout assumption no
	// longer holds, so nothing is modified.
	ErrTooManySignatures = errors.New("unexpected number of signatures")

	// ErrChecksumMismatch is returned when the checksum currently stored in
	// the header differs from the value it was computed against. Either the
	// file changed underneath us or the header variant was misdetected;
	// overwriting would corrupt the field.
	ErrChecksumMismatch = errors.New("stored checksum does not match")
)
