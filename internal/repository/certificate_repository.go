package repository

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"euicc-profile-service/internal/domain"
)

// CertificateModel はgorm用のモデル定義。
type CertificateModel struct {
	ID           string    `gorm:"column:id;primaryKey"`
	Name         string    `gorm:"column:name;not null"`
	Issuer       string    `gorm:"column:issuer;not null"`
	Subject      string    `gorm:"column:subject;not null"`
	SerialNumber string    `gorm:"column:serial_number;not null"`
	NotBefore    time.Time `gorm:"column:not_before;not null"`
	NotAfter     time.Time `gorm:"column:not_after;not null"`
	KeyID        *string   `gorm:"column:key_id;index:idx_certificates_key_id"`
	CRLURL       *string   `gorm:"column:crl_url"`
	Standard     *string   `gorm:"column:standard"`
	PEMData      string    `gorm:"column:pem_data;not null"`
	CreatedAt    time.Time `gorm:"column:created_at;not null;autoCreateTime"`
}

// TableName はテーブル名を返す。
func (CertificateModel) TableName() string {
	return "certificates"
}

// BeforeCreate はレコード作成前にUUIDを生成する。
func (c *CertificateModel) BeforeCreate(tx *gorm.DB) error {
	if c.ID == "" {
		c.ID = uuid.New().String()
	}
	return nil
}

func (c *CertificateModel) toDomain() *domain.Certificate {
	return &domain.Certificate{
		ID:           c.ID,
		Name:         c.Name,
		Issuer:       c.Issuer,
		Subject:      c.Subject,
		SerialNumber: c.SerialNumber,
		NotBefore:    c.NotBefore.UTC(),
		NotAfter:     c.NotAfter.UTC(),
		KeyID:        deref(c.KeyID),
		CRLURL:       deref(c.CRLURL),
		Standard:     deref(c.Standard),
		PEMData:      c.PEMData,
		CreatedAt:    c.CreatedAt,
	}
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}

func nullable(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}

// CertificateRepository は証明書のデータアクセスを提供する。
type CertificateRepository struct {
	db *gorm.DB
}

// NewCertificateRepository は新しいCertificateRepositoryを生成する。
func NewCertificateRepository(db *gorm.DB) *CertificateRepository {
	return &CertificateRepository{db: db}
}

// List は全証明書を作成日時の新しい順に取得する。
func (r *CertificateRepository) List(ctx context.Context) ([]*domain.Certificate, error) {
	var models []CertificateModel
	if err := r.db.WithContext(ctx).Order("created_at DESC, id ASC").Find(&models).Error; err != nil {
		slog.ErrorContext(ctx, "failed to list certificates",
			"operation", "list_certificates",
			"error", err,
		)
		return nil, err
	}

	certs := make([]*domain.Certificate, len(models))
	for i := range models {
		certs[i] = models[i].toDomain()
	}
	return certs, nil
}

// FindByID は指定されたIDの証明書を取得する。存在しない場合はnil, nilを返す。
func (r *CertificateRepository) FindByID(ctx context.Context, id string) (*domain.Certificate, error) {
	var model CertificateModel
	err := r.db.WithContext(ctx).Where("id = ?", id).First(&model).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		slog.ErrorContext(ctx, "failed to find certificate",
			"operation", "find_certificate_by_id",
			"id", id,
			"error", err,
		)
		return nil, err
	}
	return model.toDomain(), nil
}

// Create は新しい証明書を保存する。
func (r *CertificateRepository) Create(ctx context.Context, cert *domain.Certificate) error {
	model := &CertificateModel{
		ID:           cert.ID,
		Name:         cert.Name,
		Issuer:       cert.Issuer,
		Subject:      cert.Subject,
		SerialNumber: cert.SerialNumber,
		NotBefore:    cert.NotBefore,
		NotAfter:     cert.NotAfter,
		KeyID:        nullable(cert.KeyID),
		CRLURL:       nullable(cert.CRLURL),
		Standard:     nullable(cert.Standard),
		PEMData:      cert.PEMData,
	}
	if err := r.db.WithContext(ctx).Create(model).Error; err != nil {
		slog.ErrorContext(ctx, "failed to create certificate",
			"operation", "create_certificate",
			"serial_number", cert.SerialNumber,
			"error", err,
		)
		return err
	}
	cert.ID = model.ID
	cert.CreatedAt = model.CreatedAt
	return nil
}

// Delete は指定されたIDの証明書を削除する。
func (r *CertificateRepository) Delete(ctx context.Context, id string) error {
	if err := r.db.WithContext(ctx).Delete(&CertificateModel{}, "id = ?", id).Error; err != nil {
		slog.ErrorContext(ctx, "failed to delete certificate",
			"operation", "delete_certificate",
			"id", id,
			"error", err,
		)
		return err
	}
	return nil
}

// Count は証明書の件数を返す。
func (r *CertificateRepository) Count(ctx context.Context) (int64, error) {
	var count int64
	if err := r.db.WithContext(ctx).Model(&CertificateModel{}).Count(&count).Error; err != nil {
		slog.ErrorContext(ctx, "failed to count certificates",
			"operation", "count_certificates",
			"error", err,
		)
		return 0, err
	}
	return count, nil
}
