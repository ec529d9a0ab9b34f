// Package usecase はアプリケーションのユースケースを実装する。
package usecase

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"time"

	"euicc-profile-service/internal/domain"
	"euicc-profile-service/internal/ingest"
	"euicc-profile-service/internal/metrics"
)

// 取り込み元。メトリクスと監査ログのラベルに使用する。
const (
	SourceText = "text"
	SourceJSON = "json"
	SourceCSV  = "csv"
)

// ProfileRepository はプロファイルのデータアクセスのインターフェース。
// 見つからない場合、FindByIDとFindByICCIDはnil, nilを返す。
type ProfileRepository interface {
	List(ctx context.Context) ([]*domain.Profile, error)
	FindByID(ctx context.Context, id string) (*domain.Profile, error)
	FindByICCID(ctx context.Context, iccid string) (*domain.Profile, error)
	ListICCIDs(ctx context.Context) ([]string, error)
	Create(ctx context.Context, profile *domain.Profile) error
	Update(ctx context.Context, profile *domain.Profile) error
	Delete(ctx context.Context, id string) error
	CountByStatus(ctx context.Context) (map[domain.ProfileStatus]int64, error)
}

// CertificateCounter は証明書の件数を返すインターフェース。
type CertificateCounter interface {
	Count(ctx context.Context) (int64, error)
}

// SecretCipher はKi/OPCの暗号化/復号のインターフェース。
type SecretCipher interface {
	Encrypt(ctx context.Context, plaintext []byte) ([]byte, error)
	Decrypt(ctx context.Context, ciphertext []byte) ([]byte, error)
}

// ProfileService はプロファイルに関するビジネスロジックを提供する。
type ProfileService struct {
	repo    ProfileRepository
	certs   CertificateCounter
	cipher  SecretCipher
	metrics *metrics.Metrics
}

// NewProfileService は新しいProfileServiceを生成する。metricsはnilでもよい。
func NewProfileService(repo ProfileRepository, certs CertificateCounter, cipher SecretCipher, m *metrics.Metrics) *ProfileService {
	return &ProfileService{
		repo:    repo,
		certs:   certs,
		cipher:  cipher,
		metrics: m,
	}
}

// List は全プロファイルを取得する。
func (s *ProfileService) List(ctx context.Context) ([]*domain.Profile, error) {
	profiles, err := s.repo.List(ctx)
	if err != nil {
		return nil, fmt.Errorf("listing profiles: %w", err)
	}
	for _, p := range profiles {
		if err := s.open(ctx, p); err != nil {
			return nil, err
		}
	}
	return profiles, nil
}

// Get は指定されたIDのプロファイルを取得する。
func (s *ProfileService) Get(ctx context.Context, id string) (*domain.Profile, error) {
	p, err := s.find(ctx, id)
	if err != nil {
		return nil, err
	}
	if err := s.open(ctx, p); err != nil {
		return nil, err
	}
	return p, nil
}

// Create は単一のプロファイルを作成する。フィールドの問題はdomain.ValidationErrorsで返す。
func (s *ProfileService) Create(ctx context.Context, draft domain.ProfileDraft) (*domain.Profile, error) {
	draft.ValidationErrors = nil
	domain.ValidateDraft(&draft)
	if !draft.Valid() {
		return nil, domain.ValidationErrors(draft.ValidationErrors)
	}

	existing, err := s.repo.FindByICCID(ctx, draft.ICCID)
	if err != nil {
		return nil, fmt.Errorf("finding profile by iccid: %w", err)
	}
	if existing != nil {
		return nil, domain.ErrProfileAlreadyExists
	}

	p := ingest.ProfileFromDraft(draft)
	if err := s.persist(ctx, p); err != nil {
		return nil, err
	}
	return p, nil
}

// Update はプロファイルを部分更新する。nilのフィールドは変更しない。
func (s *ProfileService) Update(ctx context.Context, id string, upd domain.ProfileUpdate) (*domain.Profile, error) {
	p, err := s.find(ctx, id)
	if err != nil {
		return nil, err
	}
	if err := s.open(ctx, p); err != nil {
		return nil, err
	}

	var verrs domain.ValidationErrors
	fail := func(field domain.Field, err error) {
		verrs = append(verrs, domain.NewValidationError(field, err))
	}

	if upd.Name != nil {
		if name := strings.TrimSpace(*upd.Name); name == "" {
			fail(domain.FieldName, fmt.Errorf("%w: name must not be empty", domain.ErrInvalidFormat))
		} else {
			p.Name = name
		}
	}
	if upd.ICCID != nil {
		if v, err := domain.ValidateICCID(*upd.ICCID); err != nil {
			fail(domain.FieldICCID, err)
		} else {
			p.ICCID = v
		}
	}
	if upd.IMSI != nil {
		if v, err := domain.ValidateIMSI(*upd.IMSI); err != nil {
			fail(domain.FieldIMSI, err)
		} else {
			p.IMSI = v
		}
	}
	if upd.Ki != nil {
		if v, err := updateKey(*upd.Ki); err != nil {
			fail(domain.FieldKi, fmt.Errorf("KI: %w", err))
		} else {
			p.Ki = v
		}
	}
	if upd.OPC != nil {
		if v, err := updateKey(*upd.OPC); err != nil {
			fail(domain.FieldOPC, fmt.Errorf("OPC: %w", err))
		} else {
			p.OPC = v
		}
	}
	if upd.Standard != nil {
		if v, err := domain.ValidateStandard(*upd.Standard); err != nil {
			fail(domain.FieldStandard, err)
		} else if v != "" {
			p.Standard = v
		}
	}
	if upd.Status != nil {
		if v, err := domain.ValidateStatus(*upd.Status); err != nil {
			fail(domain.FieldStatus, err)
		} else if v != "" {
			p.Status = v
		}
	}
	if len(verrs) > 0 {
		return nil, verrs
	}

	if upd.ICCID != nil {
		other, err := s.repo.FindByICCID(ctx, p.ICCID)
		if err != nil {
			return nil, fmt.Errorf("finding profile by iccid: %w", err)
		}
		if other != nil && other.ID != p.ID {
			return nil, domain.ErrProfileAlreadyExists
		}
	}

	if err := s.save(ctx, p); err != nil {
		return nil, err
	}
	return p, nil
}

// updateKey は空文字列を鍵の削除として扱い、それ以外は128ビットの16進数として検証する。
func updateKey(v string) (string, error) {
	if strings.TrimSpace(v) == "" {
		return "", nil
	}
	return domain.ValidateHexKey(v, 128)
}

// Delete は指定されたIDのプロファイルを削除する。
func (s *ProfileService) Delete(ctx context.Context, id string) error {
	if _, err := s.find(ctx, id); err != nil {
		return err
	}
	if err := s.repo.Delete(ctx, id); err != nil {
		return fmt.Errorf("deleting profile: %w", err)
	}
	return nil
}

// Enable はプロファイルを有効化する。
func (s *ProfileService) Enable(ctx context.Context, id string) (*domain.Profile, error) {
	return s.setStatus(ctx, id, domain.ProfileStatusEnabled)
}

// Disable はプロファイルを無効化する。
func (s *ProfileService) Disable(ctx context.Context, id string) (*domain.Profile, error) {
	return s.setStatus(ctx, id, domain.ProfileStatusDisabled)
}

func (s *ProfileService) setStatus(ctx context.Context, id string, status domain.ProfileStatus) (*domain.Profile, error) {
	p, err := s.find(ctx, id)
	if err != nil {
		return nil, err
	}
	if err := s.open(ctx, p); err != nil {
		return nil, err
	}
	p.Status = status
	if err := s.save(ctx, p); err != nil {
		return nil, err
	}
	return p, nil
}

// Scan は貼り付けられたテキストからドラフトを抽出する。保存は行わない。
func (s *ProfileService) Scan(ctx context.Context, text string) []domain.ProfileDraft {
	drafts := ingest.ScanText(text)
	slog.InfoContext(ctx, "profile text scanned",
		"operation", "scan",
		"profiles_found", len(drafts),
	)
	return drafts
}

// ImportDrafts は `{"profiles": [...]}` 形式のペイロードを取り込む。
// テキスト取り込み（スキャン結果の確定）とJSON取り込みの両方で使用する。
func (s *ProfileService) ImportDrafts(ctx context.Context, source string, payload []byte) (*domain.ImportResult, error) {
	start := time.Now()
	drafts, err := ingest.ParseJSON(payload)
	if err != nil {
		return nil, err
	}
	return s.importDrafts(ctx, source, drafts, start)
}

// ImportCSV はヘッダー付きCSVを取り込む。
func (s *ProfileService) ImportCSV(ctx context.Context, r io.Reader) (*domain.ImportResult, error) {
	start := time.Now()
	drafts, err := ingest.ParseCSV(r)
	if err != nil {
		return nil, err
	}
	return s.importDrafts(ctx, SourceCSV, drafts, start)
}

// importDrafts は保存済みICCIDのスナップショットに対して重複解決を行い、
// 受け入れたドラフトを1件ずつ保存する。保存失敗はロールバックせず結果に記録する。
func (s *ProfileService) importDrafts(ctx context.Context, source string, drafts []domain.ProfileDraft, start time.Time) (*domain.ImportResult, error) {
	iccids, err := s.repo.ListICCIDs(ctx)
	if err != nil {
		return nil, fmt.Errorf("listing existing iccids: %w", err)
	}
	res := ingest.Resolve(drafts, ingest.NewICCIDSet(iccids))

	result := &domain.ImportResult{
		ImportedIDs: []string{},
		Skipped:     res.Skipped,
	}
	for _, p := range res.Accepted {
		err := s.persist(ctx, p)
		switch {
		case err == nil:
			result.ImportedIDs = append(result.ImportedIDs, p.ID)
		case errors.Is(err, domain.ErrProfileAlreadyExists):
			// スナップショット取得後に他の書き込みで同じICCIDが保存された
			result.Skipped = append(result.Skipped, domain.SkippedProfile{
				ICCID:  p.ICCID,
				Reason: domain.SkipReasonDuplicate,
			})
		default:
			result.Failed = append(result.Failed, domain.FailedProfile{
				ICCID: p.ICCID,
				Error: err.Error(),
			})
		}
	}
	result.ImportedCount = len(result.ImportedIDs)
	result.SkippedCount = len(result.Skipped)
	result.FailedCount = len(result.Failed)

	s.recordImport(ctx, source, result, time.Since(start))
	return result, nil
}

func (s *ProfileService) recordImport(ctx context.Context, source string, result *domain.ImportResult, elapsed time.Duration) {
	var duplicates, invalid int
	for _, sk := range result.Skipped {
		if sk.Reason == domain.SkipReasonDuplicate {
			duplicates++
		} else {
			invalid++
		}
	}
	s.metrics.AddImportOutcome(source, "imported", result.ImportedCount)
	s.metrics.AddImportOutcome(source, "duplicate", duplicates)
	s.metrics.AddImportOutcome(source, "invalid", invalid)
	s.metrics.AddImportOutcome(source, "failed", result.FailedCount)
	s.metrics.ObserveImportLatency(source, elapsed)

	slog.InfoContext(ctx, "profiles imported",
		"operation", "import",
		"source", source,
		"imported", result.ImportedCount,
		"skipped", result.SkippedCount,
		"failed", result.FailedCount,
		"duration_ms", elapsed.Milliseconds(),
	)
}

// Stats はダッシュボード用の集計値を返す。
func (s *ProfileService) Stats(ctx context.Context) (*domain.Stats, error) {
	counts, err := s.repo.CountByStatus(ctx)
	if err != nil {
		return nil, fmt.Errorf("counting profiles: %w", err)
	}
	certs, err := s.certs.Count(ctx)
	if err != nil {
		return nil, fmt.Errorf("counting certificates: %w", err)
	}

	stats := &domain.Stats{
		EnabledProfiles:   counts[domain.ProfileStatusEnabled],
		DisabledProfiles:  counts[domain.ProfileStatusDisabled],
		TotalCertificates: certs,
	}
	for _, n := range counts {
		stats.TotalProfiles += n
	}
	return stats, nil
}

func (s *ProfileService) find(ctx context.Context, id string) (*domain.Profile, error) {
	p, err := s.repo.FindByID(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("finding profile: %w", err)
	}
	if p == nil {
		return nil, domain.ErrProfileNotFound
	}
	return p, nil
}

// persist はKi/OPCを暗号化してから新規保存する。
// ICCIDの一意制約違反はdomain.ErrProfileAlreadyExists、それ以外はdomain.ErrPersistでラップして返す。
func (s *ProfileService) persist(ctx context.Context, p *domain.Profile) error {
	if err := s.seal(ctx, p); err != nil {
		return err
	}
	if err := s.repo.Create(ctx, p); err != nil {
		if errors.Is(err, domain.ErrProfileAlreadyExists) {
			return err
		}
		return fmt.Errorf("%w: creating profile %s: %v", domain.ErrPersist, p.ICCID, err)
	}
	return nil
}

func (s *ProfileService) save(ctx context.Context, p *domain.Profile) error {
	if err := s.seal(ctx, p); err != nil {
		return err
	}
	if err := s.repo.Update(ctx, p); err != nil {
		if errors.Is(err, domain.ErrProfileAlreadyExists) {
			return err
		}
		return fmt.Errorf("%w: updating profile %s: %v", domain.ErrPersist, p.ID, err)
	}
	return nil
}

// seal はKi/OPCの平文を暗号化してEncrypted*に設定する。空の鍵は保存しない。
func (s *ProfileService) seal(ctx context.Context, p *domain.Profile) error {
	var err error
	if p.EncryptedKi, err = s.encrypt(ctx, p.Ki); err != nil {
		return fmt.Errorf("%w: encrypting ki: %v", domain.ErrPersist, err)
	}
	if p.EncryptedOPC, err = s.encrypt(ctx, p.OPC); err != nil {
		return fmt.Errorf("%w: encrypting opc: %v", domain.ErrPersist, err)
	}
	return nil
}

func (s *ProfileService) encrypt(ctx context.Context, v string) ([]byte, error) {
	if v == "" {
		return nil, nil
	}
	return s.cipher.Encrypt(ctx, []byte(v))
}

// open は保存済みの暗号文を復号してKi/OPCに設定する。
func (s *ProfileService) open(ctx context.Context, p *domain.Profile) error {
	if len(p.EncryptedKi) > 0 {
		plain, err := s.cipher.Decrypt(ctx, p.EncryptedKi)
		if err != nil {
			return fmt.Errorf("decrypting ki: %w", err)
		}
		p.Ki = string(plain)
	}
	if len(p.EncryptedOPC) > 0 {
		plain, err := s.cipher.Decrypt(ctx, p.EncryptedOPC)
		if err != nil {
			return fmt.Errorf("decrypting opc: %w", err)
		}
		p.OPC = string(plain)
	}
	return nil
}
