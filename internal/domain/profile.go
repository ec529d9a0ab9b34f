// Package domain はドメインモデルとビジネスルールを定義する。
package domain

import (
	"errors"
	"strings"
	"time"
)

// ProfileStatus はプロファイルの有効状態を表す。
type ProfileStatus string

const (
	// ProfileStatusEnabled は有効化されたプロファイルを表す。
	ProfileStatusEnabled ProfileStatus = "enabled"
	// ProfileStatusDisabled は無効なプロファイルを表す（作成時のデフォルト）。
	ProfileStatusDisabled ProfileStatus = "disabled"
)

// DefaultStandard は規格タグが省略された場合に使用する値。
const DefaultStandard = "SGP.22"

// Field はプロファイルのフィールド名を表す。
type Field string

const (
	FieldName     Field = "name"
	FieldICCID    Field = "iccid"
	FieldIMSI     Field = "imsi"
	FieldKi       Field = "ki"
	FieldOPC      Field = "opc"
	FieldStandard Field = "standard"
	FieldStatus   Field = "status"
)

// ValidationError はフィールド単位の検証エラーを表す。
type ValidationError struct {
	Field   Field  `json:"field"`
	Code    string `json:"code"`
	Message string `json:"message"`
}

// 検証エラーコード。
const (
	CodeInvalidFormat   = "INVALID_FORMAT"
	CodeUnknownStandard = "UNKNOWN_STANDARD"
)

// NewValidationError はバリデータのエラーをValidationErrorに変換する。
func NewValidationError(field Field, err error) ValidationError {
	code := CodeInvalidFormat
	if errors.Is(err, ErrUnknownStandard) {
		code = CodeUnknownStandard
	}
	return ValidationError{Field: field, Code: code, Message: err.Error()}
}

// ValidationErrors は単一プロファイルの作成・更新で見つかった検証エラーの集合。
type ValidationErrors []ValidationError

func (v ValidationErrors) Error() string {
	msgs := make([]string, len(v))
	for i, e := range v {
		msgs[i] = e.Message
	}
	return "validation failed: " + strings.Join(msgs, "; ")
}

// Unwrap はエラーコードに対応するセンチネルエラーを返す。
func (v ValidationErrors) Unwrap() []error {
	errs := make([]error, 0, len(v))
	for _, e := range v {
		if e.Code == CodeUnknownStandard {
			errs = append(errs, ErrUnknownStandard)
		} else {
			errs = append(errs, ErrInvalidFormat)
		}
	}
	return errs
}

// ProfileDraft は取り込み前のプロファイル候補を表す。
// 検証に失敗したフィールドは、オペレーターが修正できるよう元の値のまま保持する。
type ProfileDraft struct {
	Name             string            `json:"name,omitempty"`
	ICCID            string            `json:"iccid"`
	IMSI             string            `json:"imsi,omitempty"`
	Ki               string            `json:"ki,omitempty"`
	OPC              string            `json:"opc,omitempty"`
	Standard         string            `json:"standard,omitempty"`
	Status           string            `json:"status,omitempty"`
	ValidationErrors []ValidationError `json:"validation_errors,omitempty"`
}

// Valid は検証エラーがないかどうかを返す。
func (d *ProfileDraft) Valid() bool {
	return len(d.ValidationErrors) == 0
}

// AddError は検証エラーを追加する。
func (d *ProfileDraft) AddError(field Field, err error) {
	d.ValidationErrors = append(d.ValidationErrors, NewValidationError(field, err))
}

// Profile は永続化されたプロファイルエンティティを表す。
type Profile struct {
	ID           string        `json:"id"`
	Name         string        `json:"name"`
	ICCID        string        `json:"iccid"`
	IMSI         string        `json:"imsi,omitempty"`
	Ki           string        `json:"ki,omitempty"`
	OPC          string        `json:"opc,omitempty"`
	EncryptedKi  []byte        `json:"-"`
	EncryptedOPC []byte        `json:"-"`
	Status       ProfileStatus `json:"status"`
	Standard     string        `json:"standard"`
	CreatedAt    time.Time     `json:"created_at"`
	UpdatedAt    time.Time     `json:"updated_at"`
}

// DefaultProfileName はICCIDから表示名を生成する。
func DefaultProfileName(iccid string) string {
	if len(iccid) > 10 {
		iccid = iccid[:10]
	}
	return "Profile " + iccid
}

// ProfileUpdate はプロファイルの部分更新を表す。nilのフィールドは変更しない。
type ProfileUpdate struct {
	Name     *string `json:"name,omitempty"`
	ICCID    *string `json:"iccid,omitempty"`
	IMSI     *string `json:"imsi,omitempty"`
	Ki       *string `json:"ki,omitempty"`
	OPC      *string `json:"opc,omitempty"`
	Status   *string `json:"status,omitempty"`
	Standard *string `json:"standard,omitempty"`
}

// SkipReason はインポート時にスキップされた理由を表す。
type SkipReason string

const (
	SkipReasonDuplicate SkipReason = "duplicate"
	SkipReasonInvalid   SkipReason = "invalid"
)

// SkippedProfile はスキップされたドラフトを表す。
type SkippedProfile struct {
	ICCID  string            `json:"iccid"`
	Reason SkipReason        `json:"reason"`
	Errors []ValidationError `json:"errors,omitempty"`
}

// FailedProfile は保存に失敗したドラフトを表す。
type FailedProfile struct {
	ICCID string `json:"iccid"`
	Error string `json:"error"`
}

// ImportResult は1回のインポート呼び出しの結果を表す。
type ImportResult struct {
	ImportedCount int              `json:"imported_count"`
	SkippedCount  int              `json:"skipped_count"`
	FailedCount   int              `json:"failed_count"`
	ImportedIDs   []string         `json:"imported_ids"`
	Skipped       []SkippedProfile `json:"skipped"`
	Failed        []FailedProfile  `json:"failed,omitempty"`
}

// Stats はダッシュボード用の集計値を表す。
type Stats struct {
	TotalProfiles     int64 `json:"total_profiles"`
	EnabledProfiles   int64 `json:"enabled_profiles"`
	DisabledProfiles  int64 `json:"disabled_profiles"`
	TotalCertificates int64 `json:"total_certificates"`
}
