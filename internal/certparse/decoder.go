// Package certparse はPEM形式のX.509証明書を構造的に解析し、表示用フィールドを抽出する。
// 署名検証・チェーン検証・失効確認は行わない。
package certparse

import (
	"crypto/sha256"
	encoding_asn1 "encoding/asn1"
	"encoding/pem"
	"fmt"
	"math/big"
	"strings"
	"time"

	"golang.org/x/crypto/cryptobyte"
	"golang.org/x/crypto/cryptobyte/asn1"

	"euicc-profile-service/internal/domain"
)

const pemTypeCertificate = "CERTIFICATE"

var (
	oidSubjectKeyID    = encoding_asn1.ObjectIdentifier{2, 5, 29, 14}
	oidAuthorityKeyID  = encoding_asn1.ObjectIdentifier{2, 5, 29, 35}
	oidCRLDistribution = encoding_asn1.ObjectIdentifier{2, 5, 29, 31}
)

var signatureAlgorithms = map[string]string{
	"1.2.840.113549.1.1.4":  "MD5-RSA",
	"1.2.840.113549.1.1.5":  "SHA1-RSA",
	"1.2.840.113549.1.1.10": "RSASSA-PSS",
	"1.2.840.113549.1.1.11": "SHA256-RSA",
	"1.2.840.113549.1.1.12": "SHA384-RSA",
	"1.2.840.113549.1.1.13": "SHA512-RSA",
	"1.2.840.10045.4.1":     "ECDSA-SHA1",
	"1.2.840.10045.4.3.2":   "ECDSA-SHA256",
	"1.2.840.10045.4.3.3":   "ECDSA-SHA384",
	"1.2.840.10045.4.3.4":   "ECDSA-SHA512",
	"1.3.101.112":           "Ed25519",
}

var publicKeyAlgorithms = map[string]string{
	"1.2.840.113549.1.1.1": "RSA",
	"1.2.840.10040.4.1":    "DSA",
	"1.2.840.10045.2.1":    "ECDSA",
	"1.3.101.110":          "X25519",
	"1.3.101.112":          "Ed25519",
}

// Decode はPEMテキストの最初のブロックを証明書として解析する。
// アーマーがない・base64が壊れている・CERTIFICATE以外のブロックの場合はErrInvalidPemを返す。
func Decode(pemData string) (*domain.CertificateInfo, error) {
	block, _ := pem.Decode([]byte(strings.TrimSpace(pemData)))
	if block == nil {
		return nil, fmt.Errorf("%w: no PEM block found", domain.ErrInvalidPem)
	}
	if block.Type != pemTypeCertificate {
		return nil, fmt.Errorf("%w: unexpected PEM block type %q", domain.ErrInvalidPem, block.Type)
	}
	if len(block.Bytes) == 0 {
		return nil, fmt.Errorf("%w: empty PEM block", domain.ErrInvalidPem)
	}
	return DecodeDER(block.Bytes)
}

// DecodeDER はDERエンコードされた証明書を解析する。途中で失敗した場合は部分的な結果を返さない。
func DecodeDER(der []byte) (*domain.CertificateInfo, error) {
	info, err := decodeDER(der)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", domain.ErrMalformedCertificate, err)
	}
	return info, nil
}

func decodeDER(der []byte) (*domain.CertificateInfo, error) {
	input := cryptobyte.String(der)
	var cert cryptobyte.String
	if !input.ReadASN1(&cert, asn1.SEQUENCE) {
		return nil, fmt.Errorf("certificate is not a SEQUENCE")
	}
	if !input.Empty() {
		return nil, fmt.Errorf("trailing data after certificate")
	}

	var tbs cryptobyte.String
	if !cert.ReadASN1(&tbs, asn1.SEQUENCE) {
		return nil, fmt.Errorf("malformed tbsCertificate")
	}
	info, err := decodeTBS(tbs)
	if err != nil {
		return nil, err
	}

	var outerAlg cryptobyte.String
	if !cert.ReadASN1(&outerAlg, asn1.SEQUENCE) {
		return nil, fmt.Errorf("malformed signatureAlgorithm")
	}
	var sig encoding_asn1.BitString
	if !cert.ReadASN1BitString(&sig) {
		return nil, fmt.Errorf("malformed signatureValue")
	}
	if !cert.Empty() {
		return nil, fmt.Errorf("unexpected data after signatureValue")
	}

	sum := sha256.Sum256(der)
	info.FingerprintSHA256 = colonHex(sum[:])
	return info, nil
}

func decodeTBS(tbs cryptobyte.String) (*domain.CertificateInfo, error) {
	info := &domain.CertificateInfo{}

	var version int
	if !tbs.ReadOptionalASN1Integer(&version, asn1.Tag(0).Constructed().ContextSpecific(), 0) {
		return nil, fmt.Errorf("malformed version")
	}
	if version < 0 || version > 2 {
		return nil, fmt.Errorf("unsupported version %d", version)
	}
	info.Version = version + 1

	serial := new(big.Int)
	if !tbs.ReadASN1Integer(serial) {
		return nil, fmt.Errorf("malformed serial number")
	}
	info.SerialNumber = serial.Text(16)

	oid, err := readAlgorithmOID(&tbs)
	if err != nil {
		return nil, fmt.Errorf("signature: %w", err)
	}
	info.SignatureAlgorithm = algorithmName(signatureAlgorithms, oid)

	if info.Issuer, err = readName(&tbs); err != nil {
		return nil, fmt.Errorf("issuer: %w", err)
	}

	var validity cryptobyte.String
	if !tbs.ReadASN1(&validity, asn1.SEQUENCE) {
		return nil, fmt.Errorf("malformed validity")
	}
	if info.NotBefore, err = readTime(&validity); err != nil {
		return nil, fmt.Errorf("notBefore: %w", err)
	}
	if info.NotAfter, err = readTime(&validity); err != nil {
		return nil, fmt.Errorf("notAfter: %w", err)
	}
	if !validity.Empty() {
		return nil, fmt.Errorf("unexpected data in validity")
	}

	if info.Subject, err = readName(&tbs); err != nil {
		return nil, fmt.Errorf("subject: %w", err)
	}

	var spki cryptobyte.String
	if !tbs.ReadASN1(&spki, asn1.SEQUENCE) {
		return nil, fmt.Errorf("malformed subjectPublicKeyInfo")
	}
	if oid, err = readAlgorithmOID(&spki); err != nil {
		return nil, fmt.Errorf("subjectPublicKeyInfo: %w", err)
	}
	info.PublicKeyAlgorithm = algorithmName(publicKeyAlgorithms, oid)
	var pub encoding_asn1.BitString
	if !spki.ReadASN1BitString(&pub) || !spki.Empty() {
		return nil, fmt.Errorf("malformed subjectPublicKey")
	}

	if !tbs.SkipOptionalASN1(asn1.Tag(1).ContextSpecific()) {
		return nil, fmt.Errorf("malformed issuerUniqueID")
	}
	if !tbs.SkipOptionalASN1(asn1.Tag(2).ContextSpecific()) {
		return nil, fmt.Errorf("malformed subjectUniqueID")
	}

	var extensions cryptobyte.String
	var hasExtensions bool
	if !tbs.ReadOptionalASN1(&extensions, &hasExtensions, asn1.Tag(3).Constructed().ContextSpecific()) {
		return nil, fmt.Errorf("malformed extensions")
	}
	if hasExtensions {
		if err := readExtensions(extensions, info); err != nil {
			return nil, err
		}
	}
	if !tbs.Empty() {
		return nil, fmt.Errorf("unexpected data in tbsCertificate")
	}
	return info, nil
}

func readAlgorithmOID(s *cryptobyte.String) (encoding_asn1.ObjectIdentifier, error) {
	var alg cryptobyte.String
	if !s.ReadASN1(&alg, asn1.SEQUENCE) {
		return nil, fmt.Errorf("malformed AlgorithmIdentifier")
	}
	var oid encoding_asn1.ObjectIdentifier
	if !alg.ReadASN1ObjectIdentifier(&oid) {
		return nil, fmt.Errorf("malformed algorithm OID")
	}
	return oid, nil
}

func algorithmName(names map[string]string, oid encoding_asn1.ObjectIdentifier) string {
	if name, ok := names[oid.String()]; ok {
		return name
	}
	return oid.String()
}

func readTime(s *cryptobyte.String) (time.Time, error) {
	var t time.Time
	switch {
	case s.PeekASN1Tag(asn1.UTCTime):
		if !s.ReadASN1UTCTime(&t) {
			return time.Time{}, fmt.Errorf("malformed UTCTime")
		}
	case s.PeekASN1Tag(asn1.GeneralizedTime):
		if !s.ReadASN1GeneralizedTime(&t) {
			return time.Time{}, fmt.Errorf("malformed GeneralizedTime")
		}
	default:
		return time.Time{}, fmt.Errorf("expected UTCTime or GeneralizedTime")
	}
	return t.UTC(), nil
}

func readExtensions(der cryptobyte.String, info *domain.CertificateInfo) error {
	var exts cryptobyte.String
	if !der.ReadASN1(&exts, asn1.SEQUENCE) || !der.Empty() {
		return fmt.Errorf("malformed extensions")
	}
	for !exts.Empty() {
		var ext cryptobyte.String
		if !exts.ReadASN1(&ext, asn1.SEQUENCE) {
			return fmt.Errorf("malformed extension")
		}
		var oid encoding_asn1.ObjectIdentifier
		if !ext.ReadASN1ObjectIdentifier(&oid) {
			return fmt.Errorf("malformed extension OID")
		}
		if ext.PeekASN1Tag(asn1.BOOLEAN) {
			var critical bool
			if !ext.ReadASN1Boolean(&critical) {
				return fmt.Errorf("malformed extension critical flag")
			}
		}
		var value cryptobyte.String
		if !ext.ReadASN1(&value, asn1.OCTET_STRING) || !ext.Empty() {
			return fmt.Errorf("malformed extension value")
		}

		var err error
		switch {
		case oid.Equal(oidSubjectKeyID):
			info.KeyID, err = parseSubjectKeyID(value)
		case oid.Equal(oidAuthorityKeyID):
			info.AuthorityKeyID, err = parseAuthorityKeyID(value)
		case oid.Equal(oidCRLDistribution):
			info.CRLURL, err = parseCRLDistributionPoints(value)
		}
		if err != nil {
			return fmt.Errorf("extension %s: %w", oid, err)
		}
	}
	return nil
}

func parseSubjectKeyID(value cryptobyte.String) (string, error) {
	var id cryptobyte.String
	if !value.ReadASN1(&id, asn1.OCTET_STRING) || !value.Empty() {
		return "", fmt.Errorf("malformed subject key identifier")
	}
	return colonHex(id), nil
}

func parseAuthorityKeyID(value cryptobyte.String) (string, error) {
	var aki cryptobyte.String
	if !value.ReadASN1(&aki, asn1.SEQUENCE) {
		return "", fmt.Errorf("malformed authority key identifier")
	}
	var id cryptobyte.String
	var present bool
	if !aki.ReadOptionalASN1(&id, &present, asn1.Tag(0).ContextSpecific()) {
		return "", fmt.Errorf("malformed keyIdentifier")
	}
	if !present {
		return "", nil
	}
	return colonHex(id), nil
}

// parseCRLDistributionPoints は最初に見つかったURI形式の配布点を返す。
func parseCRLDistributionPoints(value cryptobyte.String) (string, error) {
	var points cryptobyte.String
	if !value.ReadASN1(&points, asn1.SEQUENCE) {
		return "", fmt.Errorf("malformed CRL distribution points")
	}
	for !points.Empty() {
		var dp cryptobyte.String
		if !points.ReadASN1(&dp, asn1.SEQUENCE) {
			return "", fmt.Errorf("malformed distribution point")
		}
		var dpName cryptobyte.String
		var present bool
		if !dp.ReadOptionalASN1(&dpName, &present, asn1.Tag(0).Constructed().ContextSpecific()) {
			return "", fmt.Errorf("malformed distribution point name")
		}
		if !present || !dpName.PeekASN1Tag(asn1.Tag(0).Constructed().ContextSpecific()) {
			continue
		}
		var fullName cryptobyte.String
		if !dpName.ReadASN1(&fullName, asn1.Tag(0).Constructed().ContextSpecific()) {
			return "", fmt.Errorf("malformed fullName")
		}
		for !fullName.Empty() {
			var gn cryptobyte.String
			var tag asn1.Tag
			if !fullName.ReadAnyASN1(&gn, &tag) {
				return "", fmt.Errorf("malformed GeneralName")
			}
			if tag == asn1.Tag(6).ContextSpecific() {
				return string(gn), nil
			}
		}
	}
	return "", nil
}

func colonHex(b []byte) string {
	const digits = "0123456789ABCDEF"
	if len(b) == 0 {
		return ""
	}
	out := make([]byte, 0, len(b)*3-1)
	for i, c := range b {
		if i > 0 {
			out = append(out, ':')
		}
		out = append(out, digits[c>>4], digits[c&0x0f])
	}
	return string(out)
}
