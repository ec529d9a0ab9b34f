// Package repository はデータアクセス層の実装を提供する。
package repository

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"euicc-profile-service/internal/domain"
)

// ProfileModel はgorm用のモデル定義。Ki/OPCは暗号文のみ保存する。
type ProfileModel struct {
	ID           string    `gorm:"column:id;primaryKey"`
	Name         string    `gorm:"column:name;not null"`
	ICCID        string    `gorm:"column:iccid;not null;uniqueIndex:uk_profiles_iccid"`
	IMSI         *string   `gorm:"column:imsi"`
	EncryptedKi  []byte    `gorm:"column:encrypted_ki"`
	EncryptedOPC []byte    `gorm:"column:encrypted_opc"`
	Status       string    `gorm:"column:status;not null;default:'disabled';index:idx_profiles_status"`
	Standard     string    `gorm:"column:standard;not null;default:'SGP.22'"`
	CreatedAt    time.Time `gorm:"column:created_at;not null;autoCreateTime"`
	UpdatedAt    time.Time `gorm:"column:updated_at;not null;autoUpdateTime"`
}

// TableName はテーブル名を返す。
func (ProfileModel) TableName() string {
	return "profiles"
}

// BeforeCreate はレコード作成前にUUIDを生成する。
func (p *ProfileModel) BeforeCreate(tx *gorm.DB) error {
	if p.ID == "" {
		p.ID = uuid.New().String()
	}
	return nil
}

func (p *ProfileModel) toDomain() *domain.Profile {
	profile := &domain.Profile{
		ID:           p.ID,
		Name:         p.Name,
		ICCID:        p.ICCID,
		EncryptedKi:  p.EncryptedKi,
		EncryptedOPC: p.EncryptedOPC,
		Status:       domain.ProfileStatus(p.Status),
		Standard:     p.Standard,
		CreatedAt:    p.CreatedAt,
		UpdatedAt:    p.UpdatedAt,
	}
	if p.IMSI != nil {
		profile.IMSI = *p.IMSI
	}
	return profile
}

func profileModelFrom(p *domain.Profile) *ProfileModel {
	m := &ProfileModel{
		ID:           p.ID,
		Name:         p.Name,
		ICCID:        p.ICCID,
		EncryptedKi:  p.EncryptedKi,
		EncryptedOPC: p.EncryptedOPC,
		Status:       string(p.Status),
		Standard:     p.Standard,
		CreatedAt:    p.CreatedAt,
	}
	if p.IMSI != "" {
		imsi := p.IMSI
		m.IMSI = &imsi
	}
	return m
}

// ProfileRepository はプロファイルのデータアクセスを提供する。
type ProfileRepository struct {
	db *gorm.DB
}

// NewProfileRepository は新しいProfileRepositoryを生成する。
func NewProfileRepository(db *gorm.DB) *ProfileRepository {
	return &ProfileRepository{db: db}
}

// List は全プロファイルを作成日時の新しい順に取得する。
func (r *ProfileRepository) List(ctx context.Context) ([]*domain.Profile, error) {
	var models []ProfileModel
	if err := r.db.WithContext(ctx).Order("created_at DESC, id ASC").Find(&models).Error; err != nil {
		slog.ErrorContext(ctx, "failed to list profiles",
			"operation", "list_profiles",
			"error", err,
		)
		return nil, err
	}

	profiles := make([]*domain.Profile, len(models))
	for i := range models {
		profiles[i] = models[i].toDomain()
	}
	return profiles, nil
}

// FindByID は指定されたIDのプロファイルを取得する。存在しない場合はnil, nilを返す。
func (r *ProfileRepository) FindByID(ctx context.Context, id string) (*domain.Profile, error) {
	return r.findOne(ctx, "find_profile_by_id", "id = ?", id)
}

// FindByICCID は指定されたICCIDのプロファイルを取得する。存在しない場合はnil, nilを返す。
func (r *ProfileRepository) FindByICCID(ctx context.Context, iccid string) (*domain.Profile, error) {
	return r.findOne(ctx, "find_profile_by_iccid", "iccid = ?", iccid)
}

func (r *ProfileRepository) findOne(ctx context.Context, operation, query string, arg string) (*domain.Profile, error) {
	var model ProfileModel
	err := r.db.WithContext(ctx).Where(query, arg).First(&model).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		slog.ErrorContext(ctx, "failed to find profile",
			"operation", operation,
			"key", arg,
			"error", err,
		)
		return nil, err
	}
	return model.toDomain(), nil
}

// ListICCIDs は保存済みの全ICCIDを取得する。取り込み時の重複判定スナップショットに使用する。
func (r *ProfileRepository) ListICCIDs(ctx context.Context) ([]string, error) {
	var iccids []string
	if err := r.db.WithContext(ctx).Model(&ProfileModel{}).Pluck("iccid", &iccids).Error; err != nil {
		slog.ErrorContext(ctx, "failed to list iccids",
			"operation", "list_iccids",
			"error", err,
		)
		return nil, err
	}
	return iccids, nil
}

// Create は新しいプロファイルを保存する。ICCIDの一意制約違反はdomain.ErrProfileAlreadyExistsを返す。
func (r *ProfileRepository) Create(ctx context.Context, profile *domain.Profile) error {
	model := profileModelFrom(profile)
	if err := r.db.WithContext(ctx).Create(model).Error; err != nil {
		if isDuplicateKey(err) {
			return domain.ErrProfileAlreadyExists
		}
		slog.ErrorContext(ctx, "failed to create profile",
			"operation", "create_profile",
			"iccid", profile.ICCID,
			"error", err,
		)
		return err
	}
	// gormで設定された値をドメインエンティティに反映
	profile.ID = model.ID
	profile.CreatedAt = model.CreatedAt
	profile.UpdatedAt = model.UpdatedAt
	return nil
}

// Update はプロファイルの全フィールドを保存する。
func (r *ProfileRepository) Update(ctx context.Context, profile *domain.Profile) error {
	model := profileModelFrom(profile)
	model.UpdatedAt = time.Now()
	err := r.db.WithContext(ctx).
		Model(&ProfileModel{ID: profile.ID}).
		Select("name", "iccid", "imsi", "encrypted_ki", "encrypted_opc", "status", "standard", "updated_at").
		Updates(model).Error
	if err != nil {
		if isDuplicateKey(err) {
			return domain.ErrProfileAlreadyExists
		}
		slog.ErrorContext(ctx, "failed to update profile",
			"operation", "update_profile",
			"id", profile.ID,
			"error", err,
		)
		return err
	}
	profile.UpdatedAt = model.UpdatedAt
	return nil
}

// Delete は指定されたIDのプロファイルを削除する。
func (r *ProfileRepository) Delete(ctx context.Context, id string) error {
	if err := r.db.WithContext(ctx).Delete(&ProfileModel{}, "id = ?", id).Error; err != nil {
		slog.ErrorContext(ctx, "failed to delete profile",
			"operation", "delete_profile",
			"id", id,
			"error", err,
		)
		return err
	}
	return nil
}

// CountByStatus はステータスごとのプロファイル件数を返す。
func (r *ProfileRepository) CountByStatus(ctx context.Context) (map[domain.ProfileStatus]int64, error) {
	var rows []struct {
		Status string
		Count  int64
	}
	err := r.db.WithContext(ctx).
		Model(&ProfileModel{}).
		Select("status, COUNT(*) AS count").
		Group("status").
		Scan(&rows).Error
	if err != nil {
		slog.ErrorContext(ctx, "failed to count profiles by status",
			"operation", "count_profiles_by_status",
			"error", err,
		)
		return nil, err
	}

	counts := make(map[domain.ProfileStatus]int64, len(rows))
	for _, row := range rows {
		counts[domain.ProfileStatus(row.Status)] = row.Count
	}
	return counts, nil
}

// isDuplicateKey は一意制約違反かどうかを判定する。
// TranslateErrorが無効な接続でも判定できるよう、ドライバのエラーメッセージも確認する。
func isDuplicateKey(err error) bool {
	if errors.Is(err, gorm.ErrDuplicatedKey) {
		return true
	}
	msg := err.Error()
	return strings.Contains(msg, "UNIQUE constraint failed") ||
		strings.Contains(msg, "Duplicate entry") ||
		strings.Contains(msg, "duplicate key value")
}
