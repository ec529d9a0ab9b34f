package handler

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"euicc-profile-service/internal/middleware"
	"euicc-profile-service/pkg/httputil"
)

// APIVersion はGET /apiで返すバージョン。
const APIVersion = "1.0.0"

// RouterConfig はルーターの設定。
type RouterConfig struct {
	AllowedOrigins []string
	// MaxBodyBytes はJSONボディの上限。0以下の場合はDefaultMaxUploadBytes。
	MaxBodyBytes int64
	// MetricsHandler はnilの場合promhttp.Handler()を使う。
	MetricsHandler http.Handler
}

// NewRouter はルーターを生成する。
func NewRouter(ph *ProfileHandler, ch *CertificateHandler, cfg RouterConfig) http.Handler {
	r := chi.NewRouter()

	// ミドルウェア
	r.Use(chimiddleware.RequestID)
	r.Use(middleware.RequestLogger)
	r.Use(chimiddleware.Recoverer)

	origins := cfg.AllowedOrigins
	if len(origins) == 0 {
		origins = []string{"*"}
	}
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: origins,
		AllowedMethods: []string{http.MethodGet, http.MethodPost, http.MethodPut, http.MethodDelete, http.MethodOptions},
		AllowedHeaders: []string{"Accept", "Content-Type", "X-Request-Id"},
		ExposedHeaders: []string{"X-Request-Id"},
		MaxAge:         300,
	}))

	metricsHandler := cfg.MetricsHandler
	if metricsHandler == nil {
		metricsHandler = promhttp.Handler()
	}
	r.Get("/healthz", Healthz)
	r.Method(http.MethodGet, "/metrics", metricsHandler)

	maxBody := cfg.MaxBodyBytes
	if maxBody <= 0 {
		maxBody = DefaultMaxUploadBytes
	}

	// ルート定義
	r.Route("/api", func(r chi.Router) {
		r.Use(limitBody(maxBody))

		r.Get("/", Root)
		r.Get("/stats", ph.GetStats)

		r.Route("/profiles", func(r chi.Router) {
			r.Get("/", ph.ListProfiles)
			r.Post("/", ph.CreateProfile)
			r.Post("/scan", ph.ScanProfiles)
			r.Post("/import/text", ph.ImportText)
			r.Post("/import/json", ph.ImportJSON)
			r.Post("/import/csv", ph.ImportCSV)
			r.Get("/{profile_id}", ph.GetProfile)
			r.Put("/{profile_id}", ph.UpdateProfile)
			r.Delete("/{profile_id}", ph.DeleteProfile)
			r.Post("/{profile_id}/enable", ph.EnableProfile)
			r.Post("/{profile_id}/disable", ph.DisableProfile)
		})

		r.Route("/certificates", func(r chi.Router) {
			r.Get("/", ch.ListCertificates)
			r.Post("/", ch.CreateCertificate)
			r.Post("/parse", ch.ParseCertificate)
			r.Get("/{cert_id}", ch.GetCertificate)
			r.Delete("/{cert_id}", ch.DeleteCertificate)
		})
	})

	return r
}

// limitBody はリクエストボディのサイズを制限する。
func limitBody(n int64) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			r.Body = http.MaxBytesReader(w, r.Body, n)
			next.ServeHTTP(w, r)
		})
	}
}

// Root はAPIの識別情報を返す。
func Root(w http.ResponseWriter, r *http.Request) {
	httputil.JSON(w, http.StatusOK, map[string]string{
		"message": "eUICC Profile Manager API",
		"version": APIVersion,
	})
}

// Healthz は死活監視用のエンドポイント。
func Healthz(w http.ResponseWriter, r *http.Request) {
	httputil.JSON(w, http.StatusOK, map[string]string{"status": "ok"})
}
