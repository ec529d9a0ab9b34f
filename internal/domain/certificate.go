package domain

import "time"

// CertificateInfo はPEM証明書から抽出した表示用フィールドを表す。
// オペレーターの確認前にのみ存在し、確認後の値がCertificateとして保存される。
type CertificateInfo struct {
	Issuer             string    `json:"issuer"`
	Subject            string    `json:"subject"`
	SerialNumber       string    `json:"serial_number"`
	NotBefore          time.Time `json:"not_before"`
	NotAfter           time.Time `json:"not_after"`
	KeyID              string    `json:"key_id,omitempty"`
	AuthorityKeyID     string    `json:"authority_key_id,omitempty"`
	CRLURL             string    `json:"crl_url,omitempty"`
	Version            int       `json:"version"`
	SignatureAlgorithm string    `json:"signature_algorithm"`
	PublicKeyAlgorithm string    `json:"public_key_algorithm"`
	FingerprintSHA256  string    `json:"fingerprint_sha256"`
}

// Certificate は保存された証明書発行者（CI）の証明書を表す。
type Certificate struct {
	ID           string    `json:"id"`
	Name         string    `json:"name"`
	Issuer       string    `json:"issuer"`
	Subject      string    `json:"subject"`
	SerialNumber string    `json:"serial_number"`
	NotBefore    time.Time `json:"not_before"`
	NotAfter     time.Time `json:"not_after"`
	KeyID        string    `json:"key_id,omitempty"`
	CRLURL       string    `json:"crl_url,omitempty"`
	Standard     string    `json:"standard,omitempty"`
	PEMData      string    `json:"pem_data"`
	CreatedAt    time.Time `json:"created_at"`
}

// 証明書登録時の検証エラーで使用するフィールド名。
const (
	FieldPEMData Field = "pem_data"
)
