package pe

import (
	"bytes"
	"crypto"
	"crypto/rand"
	"crypto/rsa"
	"crypto/sha256"
	"crypto/x509"
	"crypto/x509/pkix"
	"encoding/asn1"
	"encoding/binary"
	"fmt"
	"math/big"
	"os"
	"time"
)

// DefaultSubject is the common name of the self-issued signing identity
// used when the caller does not supply one.
const DefaultSubject = "QWordPatch Test Signing Certificate"

// rsaKeyBits is the modulus size of the throwaway signing key.
const rsaKeyBits = 2048

var (
	oidSignedData      = asn1.ObjectIdentifier{1, 2, 840, 113549, 1, 7, 2}
	oidSpcIndirectData = asn1.ObjectIdentifier{1, 3, 6, 1, 4, 1, 311, 2, 1, 4}
	oidSpcPEImageData  = asn1.ObjectIdentifier{1, 3, 6, 1, 4, 1, 311, 2, 1, 15}
	oidSHA256          = asn1.ObjectIdentifier{2, 16, 840, 1, 101, 3, 4, 2, 1}
	oidRSAEncryption   = asn1.ObjectIdentifier{1, 2, 840, 113549, 1, 1, 1}
)

// SpcIndirectDataContent ties the digest of the image to the signature.
type spcAttributeTypeAndValue struct {
	Type  asn1.ObjectIdentifier
	Value asn1.RawValue
}

type digestInfo struct {
	Algorithm pkix.AlgorithmIdentifier
	Digest    []byte
}

type spcIndirectDataContent struct {
	Data          spcAttributeTypeAndValue
	MessageDigest digestInfo
}

type issuerAndSerial struct {
	Issuer       asn1.RawValue
	SerialNumber *big.Int
}

type signerInfo struct {
	Version             int
	IssuerAndSerial     issuerAndSerial
	DigestAlgorithm     pkix.AlgorithmIdentifier
	EncryptionAlgorithm pkix.AlgorithmIdentifier
	EncryptedDigest     []byte
}

type signedData struct {
	Version          int
	DigestAlgorithms []pkix.AlgorithmIdentifier `asn1:"set"`
	ContentInfo      contentInfo
	Certificates     []asn1.RawValue `asn1:"optional,tag:0"`
	SignerInfos      []signerInfo    `asn1:"set"`
}

// authenticodeDigest hashes the image the way signature verification does:
// everything except the CheckSum field and the security data directory
// entry. The caller guarantees no certificate table is present.
func authenticodeDigest(image []byte, layout HeaderLayout) []byte {
	h := sha256.New()

	ckStart := layout.ChecksumOffset()
	sdStart := layout.SecurityDirOffset()

	h.Write(image[:ckStart])
	h.Write(image[ckStart+4 : sdStart])
	h.Write(image[sdStart+8:])

	return h.Sum(nil)
}

// SelfSign issues a fresh self-signed identity with the given subject
// common name, builds a PKCS#7 SignedData over the image digest and embeds
// it as the certificate table. The header checksum is recomputed over the
// final bytes so the signed image still carries a current checksum. The
// signature asserts nothing to third parties; it exists so the file loads
// as a signed image again.
func SelfSign(filepath, subject string) error {
	if subject == "" {
		subject = DefaultSubject
	}

	stat, err := os.Stat(filepath)
	if err != nil {
		return fmt.Errorf("stat file for signing: %w", err)
	}

	image, err := os.ReadFile(filepath)
	if err != nil {
		return fmt.Errorf("read file for signing: %w", err)
	}

	layout, err := ReadHeaderLayout(bytes.NewReader(image))
	if err != nil {
		return err
	}
	if !layout.HasSecurityDir() {
		return fmt.Errorf("%w: no security data directory", ErrNotPE)
	}

	sdOff := layout.SecurityDirOffset()
	if binary.LittleEndian.Uint32(image[sdOff:]) != 0 {
		return fmt.Errorf("file already carries a certificate table")
	}

	// Certificate tables start 8-byte aligned.
	for len(image)%8 != 0 {
		image = append(image, 0)
	}

	digest := authenticodeDigest(image, layout)

	der, err := buildSignedData(digest, subject)
	if err != nil {
		return err
	}

	table := make([]byte, winCertHeaderSize, winCertHeaderSize+len(der))
	binary.LittleEndian.PutUint32(table, uint32(winCertHeaderSize+len(der)))
	binary.LittleEndian.PutUint16(table[4:], WIN_CERT_REVISION_2_0)
	binary.LittleEndian.PutUint16(table[6:], WIN_CERT_TYPE_PKCS_SIGNED_DATA)
	table = append(table, der...)
	for len(table)%8 != 0 {
		table = append(table, 0)
	}

	binary.LittleEndian.PutUint32(image[sdOff:], uint32(len(image)))
	binary.LittleEndian.PutUint32(image[sdOff+4:], uint32(len(table)))
	image = append(image, table...)

	// Appending the table staled the checksum; fix it over the final bytes.
	sum := checkSumBytes(image, layout.ChecksumOffset())
	binary.LittleEndian.PutUint32(image[layout.ChecksumOffset():], sum)

	if err := os.WriteFile(filepath, image, stat.Mode()); err != nil {
		return fmt.Errorf("write signed file: %w", err)
	}
	return nil
}

// buildSignedData creates the DER ContentInfo/SignedData blob: a
// throwaway RSA key, a self-issued certificate naming the subject, the
// SpcIndirectDataContent holding the image digest, and one SignerInfo.
func buildSignedData(imageDigest []byte, subject string) ([]byte, error) {
	key, err := rsa.GenerateKey(rand.Reader, rsaKeyBits)
	if err != nil {
		return nil, fmt.Errorf("generate signing key: %w", err)
	}

	serial, err := rand.Int(rand.Reader, new(big.Int).Lsh(big.NewInt(1), 64))
	if err != nil {
		return nil, fmt.Errorf("generate serial: %w", err)
	}

	now := time.Now()
	template := x509.Certificate{
		SerialNumber:          serial,
		Subject:               pkix.Name{CommonName: subject},
		NotBefore:             now.Add(-time.Hour),
		NotAfter:              now.AddDate(10, 0, 0),
		KeyUsage:              x509.KeyUsageDigitalSignature,
		ExtKeyUsage:           []x509.ExtKeyUsage{x509.ExtKeyUsageCodeSigning},
		SignatureAlgorithm:    x509.SHA256WithRSA,
		BasicConstraintsValid: true,
	}

	certDER, err := x509.CreateCertificate(rand.Reader, &template, &template, &key.PublicKey, key)
	if err != nil {
		return nil, fmt.Errorf("create certificate: %w", err)
	}
	cert, err := x509.ParseCertificate(certDER)
	if err != nil {
		return nil, fmt.Errorf("parse created certificate: %w", err)
	}

	sha256Alg := pkix.AlgorithmIdentifier{Algorithm: oidSHA256, Parameters: asn1.NullRawValue}
	rsaAlg := pkix.AlgorithmIdentifier{Algorithm: oidRSAEncryption, Parameters: asn1.NullRawValue}

	content := spcIndirectDataContent{
		Data: spcAttributeTypeAndValue{
			Type: oidSpcPEImageData,
			// Minimal SpcPeImageData: empty flags bit string.
			Value: asn1.RawValue{FullBytes: []byte{0x30, 0x03, 0x03, 0x01, 0x00}},
		},
		MessageDigest: digestInfo{
			Algorithm: sha256Alg,
			Digest:    imageDigest,
		},
	}
	contentDER, err := asn1.Marshal(content)
	if err != nil {
		return nil, fmt.Errorf("marshal indirect data content: %w", err)
	}

	contentDigest := sha256.Sum256(contentDER)
	signature, err := rsa.SignPKCS1v15(rand.Reader, key, crypto.SHA256, contentDigest[:])
	if err != nil {
		return nil, fmt.Errorf("sign digest: %w", err)
	}

	signed := signedData{
		Version:          1,
		DigestAlgorithms: []pkix.AlgorithmIdentifier{sha256Alg},
		ContentInfo: contentInfo{
			ContentType: oidSpcIndirectData,
			Content:     asn1.RawValue{FullBytes: contentDER},
		},
		Certificates: []asn1.RawValue{{FullBytes: certDER}},
		SignerInfos: []signerInfo{{
			Version: 1,
			IssuerAndSerial: issuerAndSerial{
				Issuer:       asn1.RawValue{FullBytes: cert.RawIssuer},
				SerialNumber: cert.SerialNumber,
			},
			DigestAlgorithm:     sha256Alg,
			EncryptionAlgorithm: rsaAlg,
			EncryptedDigest:     signature,
		}},
	}
	signedDER, err := asn1.Marshal(signed)
	if err != nil {
		return nil, fmt.Errorf("marshal SignedData: %w", err)
	}

	outer := contentInfo{
		ContentType: oidSignedData,
		Content:     asn1.RawValue{FullBytes: signedDER},
	}
	return asn1.Marshal(outer)
}
