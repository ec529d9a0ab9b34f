// Package main はAPIサーバーのエントリポイント。
package main

import (
	"context"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"euicc-profile-service/config"
	"euicc-profile-service/internal/handler"
	"euicc-profile-service/internal/infra"
	"euicc-profile-service/internal/metrics"
	"euicc-profile-service/internal/repository"
	"euicc-profile-service/internal/usecase"
	"euicc-profile-service/migrations"
)

// closableCipher はKMSクライアントまたは平文の暗号化。
type closableCipher interface {
	usecase.SecretCipher
	Close() error
}

func main() {
	ctx := context.Background()

	// .envファイルを読み込む（存在しない場合は無視）
	// 既存の環境変数は上書きしない
	_ = godotenv.Load()

	cfg := config.Load()

	// トレーサー初期化（ロガー設定の前に実行）
	tp, err := infra.InitTracer(ctx, cfg)
	if err != nil {
		slog.Error("failed to init tracer", "error", err)
		os.Exit(1)
	}
	defer func() {
		if err := infra.ShutdownTracer(context.Background(), tp); err != nil {
			slog.Error("failed to shutdown tracer", "error", err)
		}
	}()

	infra.SetupLogger(cfg)

	// DB初期化
	if cfg.DatabaseURL == "" {
		slog.Error("DATABASE_URL is not set")
		os.Exit(1)
	}
	db, err := infra.NewDB(cfg)
	if err != nil {
		slog.Error("failed to init database", "driver", cfg.DatabaseDriver, "error", err)
		os.Exit(1)
	}

	if cfg.MigrationsAutoApply {
		fsys, err := migrations.ForDriver(cfg.DatabaseDriver)
		if err != nil {
			slog.Error("failed to load migrations", "error", err)
			os.Exit(1)
		}
		count, err := usecase.NewMigrationService(repository.NewMigrationRepository(db), db, fsys).ApplyMigrations(ctx)
		if err != nil {
			slog.Error("failed to apply migrations", "applied", count, "error", err)
			os.Exit(1)
		}
		slog.Info("migrations applied", "count", count)
	}

	// Ki/OPCの暗号化
	var cipher closableCipher = infra.PlaintextCipher{}
	if cfg.KMSKeyName != "" {
		kmsClient, err := infra.NewKMSClient(ctx, cfg.KMSKeyName)
		if err != nil {
			slog.Error("failed to init KMS client", "error", err)
			os.Exit(1)
		}
		cipher = kmsClient
	} else {
		slog.Warn("KMS_KEY_NAME is not set, secrets are stored without encryption")
	}
	defer func() {
		if closeErr := cipher.Close(); closeErr != nil {
			slog.Error("failed to close cipher", "error", closeErr)
		}
	}()

	// DI
	m := metrics.New()
	profileRepo := repository.NewProfileRepository(db)
	certRepo := repository.NewCertificateRepository(db)
	profileService := usecase.NewProfileService(profileRepo, certRepo, cipher, m)
	certService := usecase.NewCertificateService(certRepo, m)
	router := handler.NewRouter(
		handler.NewProfileHandler(profileService, cfg.MaxUploadBytes),
		handler.NewCertificateHandler(certService),
		handler.RouterConfig{
			AllowedOrigins: cfg.CORSAllowedOrigins,
			MaxBodyBytes:   cfg.MaxUploadBytes,
		},
	)

	var h http.Handler = router
	if cfg.OtelEnabled {
		h = otelhttp.NewHandler(router, "euicc-profile-service")
	}

	// サーバー起動
	server := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           h,
		ReadHeaderTimeout: 10 * time.Second,
	}

	// Graceful shutdown
	go func() {
		sigCh := make(chan os.Signal, 1)
		signal.Notify(sigCh, syscall.SIGTERM, syscall.SIGINT)
		<-sigCh

		slog.Info("shutting down server...")
		shutdownCtx, cancel := context.WithTimeout(ctx, 30*time.Second)
		defer cancel()
		if err := server.Shutdown(shutdownCtx); err != nil {
			slog.Error("server shutdown error", "error", err)
		}
	}()

	slog.Info("starting server", "port", cfg.Port, "driver", cfg.DatabaseDriver)
	if err := server.ListenAndServe(); err != http.ErrServerClosed {
		slog.Error("server error", "error", err)
		os.Exit(1)
	}
	slog.Info("server stopped")
}
