// Package handler はHTTPハンドラを提供する。
package handler

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	"euicc-profile-service/internal/domain"
	"euicc-profile-service/internal/middleware"
	"euicc-profile-service/internal/usecase"
	"euicc-profile-service/pkg/httputil"
)

// DefaultMaxUploadBytes はCSVアップロードの既定の上限。
const DefaultMaxUploadBytes = 10 << 20

// ProfileHandler はプロファイル関連のHTTPハンドラを提供する。
type ProfileHandler struct {
	service        *usecase.ProfileService
	maxUploadBytes int64
}

// NewProfileHandler は新しいProfileHandlerを生成する。
func NewProfileHandler(service *usecase.ProfileService, maxUploadBytes int64) *ProfileHandler {
	if maxUploadBytes <= 0 {
		maxUploadBytes = DefaultMaxUploadBytes
	}
	return &ProfileHandler{service: service, maxUploadBytes: maxUploadBytes}
}

// ScanRequest はテキストスキャンのリクエスト形式。
type ScanRequest struct {
	Text string `json:"text"`
}

// ScanResponse はテキストスキャンのレスポンス形式。
type ScanResponse struct {
	ProfilesFound int                   `json:"profiles_found"`
	Profiles      []domain.ProfileDraft `json:"profiles"`
}

// MessageResponse は削除などの結果メッセージ。
type MessageResponse struct {
	Message string `json:"message"`
}

// ListProfiles はプロファイル一覧を返す。
func (h *ProfileHandler) ListProfiles(w http.ResponseWriter, r *http.Request) {
	profiles, err := h.service.List(r.Context())
	if err != nil {
		respondError(w, r, "list_profiles", err)
		return
	}
	if profiles == nil {
		profiles = []*domain.Profile{}
	}
	httputil.JSON(w, http.StatusOK, profiles)
}

// CreateProfile はプロファイルを1件作成する。
func (h *ProfileHandler) CreateProfile(w http.ResponseWriter, r *http.Request) {
	var draft domain.ProfileDraft
	if err := httputil.DecodeJSON(r, &draft); err != nil {
		respondError(w, r, "create_profile", malformed(err))
		return
	}

	profile, err := h.service.Create(r.Context(), draft)
	if err != nil {
		middleware.WriteAuditLog(r.Context(), "CREATE_PROFILE", draft.ICCID, middleware.ResultFailed)
		respondError(w, r, "create_profile", err)
		return
	}

	middleware.WriteAuditLog(r.Context(), "CREATE_PROFILE", profile.ICCID, middleware.ResultSuccess, "profile_id", profile.ID)
	httputil.JSON(w, http.StatusCreated, profile)
}

// GetProfile は指定されたプロファイルを返す。
func (h *ProfileHandler) GetProfile(w http.ResponseWriter, r *http.Request) {
	profile, err := h.service.Get(r.Context(), chi.URLParam(r, "profile_id"))
	if err != nil {
		respondError(w, r, "get_profile", err)
		return
	}
	httputil.JSON(w, http.StatusOK, profile)
}

// UpdateProfile はプロファイルを部分更新する。
func (h *ProfileHandler) UpdateProfile(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "profile_id")

	var upd domain.ProfileUpdate
	if err := httputil.DecodeJSON(r, &upd); err != nil {
		respondError(w, r, "update_profile", malformed(err))
		return
	}

	profile, err := h.service.Update(r.Context(), id, upd)
	if err != nil {
		middleware.WriteAuditLog(r.Context(), "UPDATE_PROFILE", id, middleware.ResultFailed)
		respondError(w, r, "update_profile", err)
		return
	}

	middleware.WriteAuditLog(r.Context(), "UPDATE_PROFILE", id, middleware.ResultSuccess)
	httputil.JSON(w, http.StatusOK, profile)
}

// DeleteProfile はプロファイルを削除する。
func (h *ProfileHandler) DeleteProfile(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "profile_id")

	if err := h.service.Delete(r.Context(), id); err != nil {
		middleware.WriteAuditLog(r.Context(), "DELETE_PROFILE", id, middleware.ResultFailed)
		respondError(w, r, "delete_profile", err)
		return
	}

	middleware.WriteAuditLog(r.Context(), "DELETE_PROFILE", id, middleware.ResultSuccess)
	httputil.JSON(w, http.StatusOK, MessageResponse{Message: "Profile deleted successfully"})
}

// EnableProfile はプロファイルを有効化する。
func (h *ProfileHandler) EnableProfile(w http.ResponseWriter, r *http.Request) {
	h.changeStatus(w, r, "ENABLE_PROFILE", h.service.Enable)
}

// DisableProfile はプロファイルを無効化する。
func (h *ProfileHandler) DisableProfile(w http.ResponseWriter, r *http.Request) {
	h.changeStatus(w, r, "DISABLE_PROFILE", h.service.Disable)
}

func (h *ProfileHandler) changeStatus(w http.ResponseWriter, r *http.Request, operation string,
	apply func(ctx context.Context, id string) (*domain.Profile, error)) {
	id := chi.URLParam(r, "profile_id")

	profile, err := apply(r.Context(), id)
	if err != nil {
		middleware.WriteAuditLog(r.Context(), operation, id, middleware.ResultFailed)
		respondError(w, r, operation, err)
		return
	}

	middleware.WriteAuditLog(r.Context(), operation, id, middleware.ResultSuccess)
	httputil.JSON(w, http.StatusOK, profile)
}

// ScanProfiles は貼り付けテキストからドラフトを抽出して返す。保存は行わない。
func (h *ProfileHandler) ScanProfiles(w http.ResponseWriter, r *http.Request) {
	var req ScanRequest
	if err := httputil.DecodeJSON(r, &req); err != nil {
		respondError(w, r, "scan_profiles", malformed(err))
		return
	}

	drafts := h.service.Scan(r.Context(), req.Text)
	if drafts == nil {
		drafts = []domain.ProfileDraft{}
	}
	httputil.JSON(w, http.StatusOK, ScanResponse{
		ProfilesFound: len(drafts),
		Profiles:      drafts,
	})
}

// ImportText はスキャン結果（オペレーター確認済み）を取り込む。
func (h *ProfileHandler) ImportText(w http.ResponseWriter, r *http.Request) {
	h.importDrafts(w, r, usecase.SourceText)
}

// ImportJSON は `{"profiles": [...]}` 形式のJSONを取り込む。
func (h *ProfileHandler) ImportJSON(w http.ResponseWriter, r *http.Request) {
	h.importDrafts(w, r, usecase.SourceJSON)
}

func (h *ProfileHandler) importDrafts(w http.ResponseWriter, r *http.Request, source string) {
	operation := "IMPORT_" + strings.ToUpper(source)
	body, err := io.ReadAll(r.Body)
	if err != nil {
		respondError(w, r, operation, malformed(err))
		return
	}

	result, err := h.service.ImportDrafts(r.Context(), source, body)
	if err != nil {
		middleware.WriteAuditLog(r.Context(), operation, source, middleware.ResultFailed)
		respondError(w, r, operation, err)
		return
	}
	h.writeImportResult(w, r, operation, source, result)
}

// ImportCSV はmultipartの `file` フィールドで受け取ったCSVを取り込む。
func (h *ProfileHandler) ImportCSV(w http.ResponseWriter, r *http.Request) {
	const operation = "IMPORT_CSV"

	r.Body = http.MaxBytesReader(w, r.Body, h.maxUploadBytes)
	if err := r.ParseMultipartForm(h.maxUploadBytes); err != nil {
		respondError(w, r, operation, malformed(err))
		return
	}
	file, header, err := r.FormFile("file")
	if err != nil {
		if errors.Is(err, http.ErrMissingFile) {
			err = fmt.Errorf("multipart field %q is required", "file")
		}
		respondError(w, r, operation, malformed(err))
		return
	}
	defer file.Close()

	result, err := h.service.ImportCSV(r.Context(), file)
	if err != nil {
		middleware.WriteAuditLog(r.Context(), operation, header.Filename, middleware.ResultFailed)
		respondError(w, r, operation, err)
		return
	}
	h.writeImportResult(w, r, operation, header.Filename, result)
}

func (h *ProfileHandler) writeImportResult(w http.ResponseWriter, r *http.Request, operation, target string, result *domain.ImportResult) {
	middleware.WriteAuditLog(r.Context(), operation, target, middleware.ResultSuccess,
		"imported", result.ImportedCount,
		"skipped", result.SkippedCount,
		"failed", result.FailedCount,
	)
	httputil.JSON(w, http.StatusOK, result)
}

// GetStats はダッシュボード用の集計値を返す。
func (h *ProfileHandler) GetStats(w http.ResponseWriter, r *http.Request) {
	stats, err := h.service.Stats(r.Context())
	if err != nil {
		respondError(w, r, "get_stats", err)
		return
	}
	httputil.JSON(w, http.StatusOK, stats)
}
