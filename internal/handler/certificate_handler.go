package handler

import (
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"

	"euicc-profile-service/internal/domain"
	"euicc-profile-service/internal/middleware"
	"euicc-profile-service/internal/usecase"
	"euicc-profile-service/pkg/httputil"
)

// CertificateHandler は証明書関連のHTTPハンドラを提供する。
type CertificateHandler struct {
	service *usecase.CertificateService
}

// NewCertificateHandler は新しいCertificateHandlerを生成する。
func NewCertificateHandler(service *usecase.CertificateService) *CertificateHandler {
	return &CertificateHandler{service: service}
}

// ParseCertificateRequest は証明書解析のリクエスト形式。
type ParseCertificateRequest struct {
	PEMData string `json:"pem_data"`
}

// CreateCertificateRequest は証明書登録のリクエスト形式。
// 日時はRFC3339で、空の場合はPEMの解析結果が使われる。
type CreateCertificateRequest struct {
	Name         string `json:"name"`
	Issuer       string `json:"issuer"`
	Subject      string `json:"subject"`
	SerialNumber string `json:"serial_number"`
	NotBefore    string `json:"not_before"`
	NotAfter     string `json:"not_after"`
	KeyID        string `json:"key_id"`
	CRLURL       string `json:"crl_url"`
	Standard     string `json:"standard"`
	PEMData      string `json:"pem_data"`
}

func (req *CreateCertificateRequest) toDomain() (domain.Certificate, error) {
	notBefore, err := parseOptionalTime("not_before", req.NotBefore)
	if err != nil {
		return domain.Certificate{}, err
	}
	notAfter, err := parseOptionalTime("not_after", req.NotAfter)
	if err != nil {
		return domain.Certificate{}, err
	}
	return domain.Certificate{
		Name:         req.Name,
		Issuer:       strings.TrimSpace(req.Issuer),
		Subject:      strings.TrimSpace(req.Subject),
		SerialNumber: strings.TrimSpace(req.SerialNumber),
		NotBefore:    notBefore,
		NotAfter:     notAfter,
		KeyID:        strings.TrimSpace(req.KeyID),
		CRLURL:       strings.TrimSpace(req.CRLURL),
		Standard:     req.Standard,
		PEMData:      req.PEMData,
	}, nil
}

func parseOptionalTime(field, v string) (time.Time, error) {
	v = strings.TrimSpace(v)
	if v == "" {
		return time.Time{}, nil
	}
	t, err := time.Parse(time.RFC3339, v)
	if err != nil {
		return time.Time{}, fmt.Errorf("%s must be RFC3339: %w", field, err)
	}
	return t.UTC(), nil
}

// ParseCertificate はPEM証明書を解析して表示用フィールドを返す。保存は行わない。
func (h *CertificateHandler) ParseCertificate(w http.ResponseWriter, r *http.Request) {
	var req ParseCertificateRequest
	if err := httputil.DecodeJSON(r, &req); err != nil {
		respondError(w, r, "parse_certificate", malformed(err))
		return
	}
	if strings.TrimSpace(req.PEMData) == "" {
		httputil.Error(w, http.StatusBadRequest, CodeInvalidPem, "PEM data is required")
		return
	}

	info, err := h.service.Parse(r.Context(), req.PEMData)
	if err != nil {
		respondError(w, r, "parse_certificate", err)
		return
	}
	httputil.JSON(w, http.StatusOK, info)
}

// ListCertificates は証明書一覧を返す。
func (h *CertificateHandler) ListCertificates(w http.ResponseWriter, r *http.Request) {
	certs, err := h.service.List(r.Context())
	if err != nil {
		respondError(w, r, "list_certificates", err)
		return
	}
	if certs == nil {
		certs = []*domain.Certificate{}
	}
	httputil.JSON(w, http.StatusOK, certs)
}

// CreateCertificate はオペレーターが確認した証明書を登録する。
func (h *CertificateHandler) CreateCertificate(w http.ResponseWriter, r *http.Request) {
	var req CreateCertificateRequest
	if err := httputil.DecodeJSON(r, &req); err != nil {
		respondError(w, r, "create_certificate", malformed(err))
		return
	}
	cert, err := req.toDomain()
	if err != nil {
		respondError(w, r, "create_certificate", malformed(err))
		return
	}

	created, err := h.service.Create(r.Context(), cert)
	if err != nil {
		middleware.WriteAuditLog(r.Context(), "CREATE_CERTIFICATE", cert.Name, middleware.ResultFailed)
		respondError(w, r, "create_certificate", err)
		return
	}

	middleware.WriteAuditLog(r.Context(), "CREATE_CERTIFICATE", created.ID, middleware.ResultSuccess,
		"serial_number", created.SerialNumber,
	)
	httputil.JSON(w, http.StatusCreated, created)
}

// GetCertificate は指定された証明書を返す。
func (h *CertificateHandler) GetCertificate(w http.ResponseWriter, r *http.Request) {
	cert, err := h.service.Get(r.Context(), chi.URLParam(r, "cert_id"))
	if err != nil {
		respondError(w, r, "get_certificate", err)
		return
	}
	httputil.JSON(w, http.StatusOK, cert)
}

// DeleteCertificate は証明書を削除する。
func (h *CertificateHandler) DeleteCertificate(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "cert_id")

	if err := h.service.Delete(r.Context(), id); err != nil {
		middleware.WriteAuditLog(r.Context(), "DELETE_CERTIFICATE", id, middleware.ResultFailed)
		respondError(w, r, "delete_certificate", err)
		return
	}

	middleware.WriteAuditLog(r.Context(), "DELETE_CERTIFICATE", id, middleware.ResultSuccess)
	httputil.JSON(w, http.StatusOK, MessageResponse{Message: "Certificate deleted successfully"})
}
