package domain

import "errors"

var (
	// ErrInvalidFormat は単一フィールドの形式が不正な場合のエラー。
	ErrInvalidFormat = errors.New("invalid format")

	// ErrUnknownStandard は未知の規格タグが指定された場合のエラー。
	ErrUnknownStandard = errors.New("unknown standard")

	// ErrMalformedPayload は入力全体の構造が不正な場合のエラー（JSON・CSV）。
	ErrMalformedPayload = errors.New("malformed payload")

	// ErrInvalidPem はPEMアーマーが存在しない、またはbase64として復号できない場合のエラー。
	ErrInvalidPem = errors.New("invalid PEM")

	// ErrMalformedCertificate はDER構造がX.509証明書として不正な場合のエラー。
	ErrMalformedCertificate = errors.New("malformed certificate")

	// ErrPersist はストレージへの保存に失敗した場合のエラー。
	ErrPersist = errors.New("persist failed")

	// ErrProfileNotFound は指定されたプロファイルが存在しない場合のエラー。
	ErrProfileNotFound = errors.New("profile not found")

	// ErrProfileAlreadyExists は同じICCIDのプロファイルが既に存在する場合のエラー。
	ErrProfileAlreadyExists = errors.New("profile already exists")

	// ErrCertificateNotFound は指定された証明書が存在しない場合のエラー。
	ErrCertificateNotFound = errors.New("certificate not found")

	// ErrMigrationFailed はマイグレーション実行時のエラー。
	ErrMigrationFailed = errors.New("migration failed")

	// ErrInvalidMigrationFile はマイグレーションファイルのフォーマットが不正な場合のエラー。
	ErrInvalidMigrationFile = errors.New("invalid migration file")
)
