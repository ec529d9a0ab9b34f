package usecase

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"euicc-profile-service/internal/certparse"
	"euicc-profile-service/internal/domain"
	"euicc-profile-service/internal/metrics"
)

// CertificateRepository は証明書のデータアクセスのインターフェース。
// 見つからない場合、FindByIDはnil, nilを返す。
type CertificateRepository interface {
	List(ctx context.Context) ([]*domain.Certificate, error)
	FindByID(ctx context.Context, id string) (*domain.Certificate, error)
	Create(ctx context.Context, cert *domain.Certificate) error
	Delete(ctx context.Context, id string) error
	Count(ctx context.Context) (int64, error)
}

// CertificateService は証明書に関するビジネスロジックを提供する。
type CertificateService struct {
	repo    CertificateRepository
	metrics *metrics.Metrics
}

// NewCertificateService は新しいCertificateServiceを生成する。
func NewCertificateService(repo CertificateRepository, m *metrics.Metrics) *CertificateService {
	return &CertificateService{repo: repo, metrics: m}
}

// Parse はPEMテキストを解析する。保存は行わない。
func (s *CertificateService) Parse(ctx context.Context, pemData string) (*domain.CertificateInfo, error) {
	start := time.Now()
	info, err := certparse.Decode(pemData)
	s.metrics.ObserveCertificateParseLatency(time.Since(start))

	switch {
	case err == nil:
		s.metrics.IncrementCertificateParse("ok")
	case errors.Is(err, domain.ErrInvalidPem):
		s.metrics.IncrementCertificateParse("invalid_pem")
	default:
		s.metrics.IncrementCertificateParse("malformed")
	}
	if err != nil {
		slog.WarnContext(ctx, "certificate parse rejected",
			"operation", "parse_certificate",
			"error", err,
		)
		return nil, err
	}
	return info, nil
}

// Create はオペレーターが確認した証明書を保存する。
// 名前とPEMは必須で、PEMは解析可能でなければならない。未入力の表示用フィールドは解析結果で補う。
func (s *CertificateService) Create(ctx context.Context, cert domain.Certificate) (*domain.Certificate, error) {
	var verrs domain.ValidationErrors
	cert.Name = strings.TrimSpace(cert.Name)
	if cert.Name == "" {
		verrs = append(verrs, domain.NewValidationError(domain.FieldName,
			fmt.Errorf("%w: name is required", domain.ErrInvalidFormat)))
	}
	if strings.TrimSpace(cert.PEMData) == "" {
		verrs = append(verrs, domain.NewValidationError(domain.FieldPEMData,
			fmt.Errorf("%w: pem_data is required", domain.ErrInvalidFormat)))
	}
	if v, err := domain.ValidateStandard(cert.Standard); err != nil {
		verrs = append(verrs, domain.NewValidationError(domain.FieldStandard, err))
	} else {
		cert.Standard = v
	}
	if len(verrs) > 0 {
		return nil, verrs
	}

	info, err := s.Parse(ctx, cert.PEMData)
	if err != nil {
		return nil, err
	}
	fillFromInfo(&cert, info)

	if err := s.repo.Create(ctx, &cert); err != nil {
		return nil, fmt.Errorf("%w: creating certificate: %v", domain.ErrPersist, err)
	}
	return &cert, nil
}

func fillFromInfo(cert *domain.Certificate, info *domain.CertificateInfo) {
	if cert.Issuer == "" {
		cert.Issuer = info.Issuer
	}
	if cert.Subject == "" {
		cert.Subject = info.Subject
	}
	if cert.SerialNumber == "" {
		cert.SerialNumber = info.SerialNumber
	}
	if cert.NotBefore.IsZero() {
		cert.NotBefore = info.NotBefore
	}
	if cert.NotAfter.IsZero() {
		cert.NotAfter = info.NotAfter
	}
	if cert.KeyID == "" {
		cert.KeyID = info.KeyID
	}
	if cert.CRLURL == "" {
		cert.CRLURL = info.CRLURL
	}
}

// List は全証明書を取得する。
func (s *CertificateService) List(ctx context.Context) ([]*domain.Certificate, error) {
	certs, err := s.repo.List(ctx)
	if err != nil {
		return nil, fmt.Errorf("listing certificates: %w", err)
	}
	return certs, nil
}

// Get は指定されたIDの証明書を取得する。
func (s *CertificateService) Get(ctx context.Context, id string) (*domain.Certificate, error) {
	cert, err := s.repo.FindByID(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("finding certificate: %w", err)
	}
	if cert == nil {
		return nil, domain.ErrCertificateNotFound
	}
	return cert, nil
}

// Delete は指定されたIDの証明書を削除する。
func (s *CertificateService) Delete(ctx context.Context, id string) error {
	if _, err := s.Get(ctx, id); err != nil {
		return err
	}
	if err := s.repo.Delete(ctx, id); err != nil {
		return fmt.Errorf("deleting certificate: %w", err)
	}
	return nil
}
