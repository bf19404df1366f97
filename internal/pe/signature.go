package pe

import (
	"crypto/x509"
	"crypto/x509/pkix"
	"encoding/asn1"
	"encoding/binary"
	"fmt"
	"os"
)

// WIN_CERTIFICATE constants (Windows SDK naming convention).
//
//nolint:revive // ALL_CAPS matches Windows SDK naming
const (
	WIN_CERT_REVISION_2_0          = 0x0200
	WIN_CERT_TYPE_PKCS_SIGNED_DATA = 0x0002
)

// winCertHeaderSize is the fixed prefix of a WIN_CERTIFICATE entry:
// Length (4) + Revision (2) + CertificateType (2).
const winCertHeaderSize = 8

// certificateEntry describes one WIN_CERTIFICATE entry in the table.
type certificateEntry struct {
	Offset   int64
	Length   uint32
	Revision uint16
	CertType uint16
}

// readSecurityDir returns the certificate table location recorded in the
// data directory. The directory stores a plain file offset, not an RVA.
func readSecurityDir(file *os.File, layout HeaderLayout) (offset int64, size uint32, err error) {
	if !layout.HasSecurityDir() {
		return 0, 0, nil
	}
	entry := make([]byte, 8)
	if _, err := file.ReadAt(entry, layout.SecurityDirOffset()); err != nil {
		return 0, 0, fmt.Errorf("read security directory: %w", err)
	}
	return int64(binary.LittleEndian.Uint32(entry)), binary.LittleEndian.Uint32(entry[4:]), nil
}

// enumerateCertificates walks the certificate table and returns its
// entries. Entries are 8-byte aligned, length-prefixed records.
func enumerateCertificates(file *os.File, tableOffset int64, tableSize uint32) ([]certificateEntry, error) {
	var entries []certificateEntry

	hdr := make([]byte, winCertHeaderSize)
	end := tableOffset + int64(tableSize)

	for offset := tableOffset; offset+winCertHeaderSize <= end; {
		if _, err := file.ReadAt(hdr, offset); err != nil {
			return nil, fmt.Errorf("read certificate entry at 0x%X: %w", offset, err)
		}
		entry := certificateEntry{
			Offset:   offset,
			Length:   binary.LittleEndian.Uint32(hdr),
			Revision: binary.LittleEndian.Uint16(hdr[4:]),
			CertType: binary.LittleEndian.Uint16(hdr[6:]),
		}
		if entry.Length < winCertHeaderSize {
			return nil, fmt.Errorf("%w: certificate entry at 0x%X has length %d", ErrNotPE, offset, entry.Length)
		}
		entries = append(entries, entry)

		// Advance to the next 8-byte aligned entry.
		offset += (int64(entry.Length) + 7) &^ 7
	}

	return entries, nil
}

// StripSignature removes the embedded digital signature from the image.
// Zero entries is a benign no-op (removed = false). Exactly one entry is
// removed by clearing the security directory and truncating the trailing
// certificate data. More than one entry violates the single-signature file
// layout assumption and returns ErrTooManySignatures without mutation.
func StripSignature(filepath string) (removed bool, err error) {
	file, err := os.OpenFile(filepath, os.O_RDWR, 0666)
	if err != nil {
		return false, fmt.Errorf("open file to remove signature: %w", err)
	}
	defer func() { _ = file.Close() }()

	layout, err := ReadHeaderLayout(file)
	if err != nil {
		return false, err
	}

	certOffset, certSize, err := readSecurityDir(file, layout)
	if err != nil {
		return false, err
	}
	if certOffset == 0 || certSize == 0 {
		return false, nil
	}

	entries, err := enumerateCertificates(file, certOffset, certSize)
	if err != nil {
		return false, err
	}
	if len(entries) > 1 {
		return false, fmt.Errorf("%w: found %d", ErrTooManySignatures, len(entries))
	}
	if len(entries) == 0 {
		return false, nil
	}

	// Clear the directory entry first, then drop the certificate data when
	// it runs to end-of-file.
	empty := make([]byte, 8)
	if _, err := file.WriteAt(empty, layout.SecurityDirOffset()); err != nil {
		return false, fmt.Errorf("clear security directory: %w", err)
	}

	stat, err := file.Stat()
	if err != nil {
		return false, fmt.Errorf("stat file after directory clear: %w", err)
	}
	if certOffset+int64(certSize) >= stat.Size() && certOffset < stat.Size() {
		if err := file.Truncate(certOffset); err != nil {
			return false, fmt.Errorf("truncate certificate data: %w", err)
		}
	}

	return true, nil
}

// SignatureInfo summarizes the embedded certificate table.
type SignatureInfo struct {
	Entries  int
	Subjects []string
}

// ReadSignature inspects the certificate table without modifying the file
// and reports the entry count plus any certificate subjects it can parse
// out of the PKCS#7 blobs.
func ReadSignature(filepath string) (*SignatureInfo, error) {
	file, err := os.Open(filepath)
	if err != nil {
		return nil, fmt.Errorf("open file to read signature: %w", err)
	}
	defer func() { _ = file.Close() }()

	layout, err := ReadHeaderLayout(file)
	if err != nil {
		return nil, err
	}

	certOffset, certSize, err := readSecurityDir(file, layout)
	if err != nil {
		return nil, err
	}

	info := &SignatureInfo{}
	if certOffset == 0 || certSize == 0 {
		return info, nil
	}

	entries, err := enumerateCertificates(file, certOffset, certSize)
	if err != nil {
		return nil, err
	}
	info.Entries = len(entries)

	for _, entry := range entries {
		if entry.CertType != WIN_CERT_TYPE_PKCS_SIGNED_DATA {
			continue
		}
		blob := make([]byte, entry.Length-winCertHeaderSize)
		if _, err := file.ReadAt(blob, entry.Offset+winCertHeaderSize); err != nil {
			return nil, fmt.Errorf("read certificate data: %w", err)
		}
		info.Subjects = append(info.Subjects, pkcs7Subjects(blob)...)
	}

	return info, nil
}

// PKCS#7 ContentInfo structure.
type contentInfo struct {
	ContentType asn1.ObjectIdentifier
	Content     asn1.RawValue `asn1:"explicit,optional,tag:0"`
}

// PKCS#7 SignedData structure, parsed loosely: only the certificate set is
// of interest here.
type parsedSignedData struct {
	Version          int
	DigestAlgorithms []pkix.AlgorithmIdentifier `asn1:"set"`
	ContentInfo      contentInfo
	Certificates     asn1.RawValue `asn1:"optional,tag:0"`
	SignerInfos      asn1.RawValue `asn1:"set"`
}

// pkcs7Subjects extracts certificate subject names from a DER SignedData
// blob. Parse failures yield an empty list; inspection is best-effort.
func pkcs7Subjects(der []byte) []string {
	var content contentInfo
	if _, err := asn1.Unmarshal(der, &content); err != nil {
		return nil
	}

	var signed parsedSignedData
	if _, err := asn1.Unmarshal(content.Content.Bytes, &signed); err != nil {
		return nil
	}
	if signed.Certificates.Bytes == nil {
		return nil
	}

	certs, err := x509.ParseCertificates(signed.Certificates.Bytes)
	if err != nil {
		return nil
	}

	var subjects []string
	for _, cert := range certs {
		subjects = append(subjects, cert.Subject.String())
	}
	return subjects
}
