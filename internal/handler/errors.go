package handler

import (
	"errors"
	"fmt"
	"log/slog"
	"net/http"

	"euicc-profile-service/internal/domain"
	"euicc-profile-service/pkg/httputil"
)

// エラーコード。
const (
	CodeValidationFailed     = "VALIDATION_FAILED"
	CodeInvalidFormat        = "INVALID_FORMAT"
	CodeMalformedPayload     = "MALFORMED_PAYLOAD"
	CodePayloadTooLarge      = "PAYLOAD_TOO_LARGE"
	CodeInvalidPem           = "INVALID_PEM"
	CodeMalformedCertificate = "MALFORMED_CERTIFICATE"
	CodeProfileNotFound      = "PROFILE_NOT_FOUND"
	CodeCertificateNotFound  = "CERTIFICATE_NOT_FOUND"
	CodeProfileAlreadyExists = "PROFILE_ALREADY_EXISTS"
	CodeInternalError        = "INTERNAL_ERROR"
)

// respondError はドメインエラーをHTTPステータスとエラーコードに変換して返す。
func respondError(w http.ResponseWriter, r *http.Request, operation string, err error) {
	var verrs domain.ValidationErrors
	var tooLarge *http.MaxBytesError

	switch {
	case errors.As(err, &verrs):
		httputil.ErrorWithDetails(w, http.StatusBadRequest, CodeValidationFailed, "validation failed", []domain.ValidationError(verrs))
	case errors.As(err, &tooLarge):
		httputil.Error(w, http.StatusRequestEntityTooLarge, CodePayloadTooLarge, "request body too large")
	case errors.Is(err, domain.ErrMalformedPayload):
		httputil.Error(w, http.StatusBadRequest, CodeMalformedPayload, err.Error())
	case errors.Is(err, domain.ErrInvalidPem):
		httputil.Error(w, http.StatusBadRequest, CodeInvalidPem, err.Error())
	case errors.Is(err, domain.ErrMalformedCertificate):
		httputil.Error(w, http.StatusBadRequest, CodeMalformedCertificate, err.Error())
	case errors.Is(err, domain.ErrInvalidFormat), errors.Is(err, domain.ErrUnknownStandard):
		httputil.Error(w, http.StatusBadRequest, CodeInvalidFormat, err.Error())
	case errors.Is(err, domain.ErrProfileNotFound):
		httputil.Error(w, http.StatusNotFound, CodeProfileNotFound, "profile not found")
	case errors.Is(err, domain.ErrCertificateNotFound):
		httputil.Error(w, http.StatusNotFound, CodeCertificateNotFound, "certificate not found")
	case errors.Is(err, domain.ErrProfileAlreadyExists):
		httputil.Error(w, http.StatusConflict, CodeProfileAlreadyExists, "profile with this ICCID already exists")
	default:
		slog.ErrorContext(r.Context(), "request failed",
			"operation", operation,
			"error", err,
		)
		httputil.Error(w, http.StatusInternalServerError, CodeInternalError, "internal server error")
	}
}

// malformed はリクエストボディの読み取り・デコード失敗をErrMalformedPayloadとして扱う。
func malformed(err error) error {
	return fmt.Errorf("%w: %w", domain.ErrMalformedPayload, err)
}
