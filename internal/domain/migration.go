package domain

import "time"

// MigrationStatus はマイグレーションの適用状態を表す
type MigrationStatus string

const (
	MigrationStatusPending MigrationStatus = "pending"
	MigrationStatusApplied MigrationStatus = "applied"
)

// Migration はスキーママイグレーション1件を表す
type Migration struct {
	Version   string          `json:"version" yaml:"version"`
	Name      string          `json:"name" yaml:"name"`
	AppliedAt *time.Time      `json:"applied_at,omitempty" yaml:"applied_at,omitempty"` // 未適用の場合はnil
	FilePath  string          `json:"-" yaml:"-"`                                       // 埋め込みFS内のファイル名
	Status    MigrationStatus `json:"status" yaml:"status"`
}
