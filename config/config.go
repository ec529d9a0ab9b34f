// Package config はアプリケーション設定の読み込みを提供する。
package config

import (
	"os"
	"strconv"
	"strings"
	"time"
)

// Config はアプリケーション設定を表す。
type Config struct {
	Port               string
	DatabaseDriver     string
	DatabaseURL        string
	KMSKeyName         string
	GoogleCloudProject string
	LogLevel           string

	// OpenTelemetry
	OtelEnabled       bool
	OtelEndpoint      string
	OtelServiceName   string
	OtelSamplingRate  float64
	OtelInsecure      bool
	OtelHeaders       map[string]string
	OtelExportTimeout time.Duration

	CORSAllowedOrigins  []string
	MaxUploadBytes      int64
	MigrationsAutoApply bool
}

// Load は環境変数から設定を読み込む。
func Load() *Config {
	return &Config{
		Port:               getEnv("PORT", "8080"),
		DatabaseDriver:     strings.ToLower(getEnv("DATABASE_DRIVER", "mysql")),
		DatabaseURL:        os.Getenv("DATABASE_URL"),
		KMSKeyName:         os.Getenv("KMS_KEY_NAME"),
		GoogleCloudProject: os.Getenv("GOOGLE_CLOUD_PROJECT"),
		LogLevel:           getEnv("LOG_LEVEL", "INFO"),

		OtelEnabled:       getEnvBool("OTEL_ENABLED", false),
		OtelEndpoint:      getEnv("OTEL_ENDPOINT", "localhost:4317"),
		OtelServiceName:   getEnv("OTEL_SERVICE_NAME", "euicc-profile-service"),
		OtelSamplingRate:  getEnvFloat("OTEL_SAMPLING_RATE", 1.0),
		OtelInsecure:      getEnvBool("OTEL_INSECURE", false),
		OtelHeaders:       getEnvMap("OTEL_HEADERS"),
		OtelExportTimeout: getEnvDuration("OTEL_EXPORT_TIMEOUT", 10*time.Second),

		CORSAllowedOrigins:  getEnvList("CORS_ALLOWED_ORIGINS", []string{"*"}),
		MaxUploadBytes:      getEnvInt64("MAX_UPLOAD_BYTES", 10<<20),
		MigrationsAutoApply: getEnvBool("MIGRATIONS_AUTO_APPLY", false),
	}
}

func getEnv(key, defaultVal string) string {
	if val := os.Getenv(key); val != "" {
		return val
	}
	return defaultVal
}

func getEnvBool(key string, defaultVal bool) bool {
	v, err := strconv.ParseBool(os.Getenv(key))
	if err != nil {
		return defaultVal
	}
	return v
}

func getEnvFloat(key string, defaultVal float64) float64 {
	v, err := strconv.ParseFloat(os.Getenv(key), 64)
	if err != nil {
		return defaultVal
	}
	return v
}

func getEnvInt64(key string, defaultVal int64) int64 {
	v, err := strconv.ParseInt(os.Getenv(key), 10, 64)
	if err != nil || v <= 0 {
		return defaultVal
	}
	return v
}

// getEnvList はカンマ区切りの値を分割する。空要素は無視する。
func getEnvList(key string, defaultVal []string) []string {
	raw := os.Getenv(key)
	if raw == "" {
		return defaultVal
	}
	var out []string
	for _, v := range strings.Split(raw, ",") {
		if v = strings.TrimSpace(v); v != "" {
			out = append(out, v)
		}
	}
	if len(out) == 0 {
		return defaultVal
	}
	return out
}

func getEnvDuration(key string, defaultVal time.Duration) time.Duration {
	v, err := time.ParseDuration(os.Getenv(key))
	if err != nil || v <= 0 {
		return defaultVal
	}
	return v
}

// getEnvMap は `k1=v1,k2=v2` 形式の値を読み込む。`=` を含まない要素は無視する。
func getEnvMap(key string) map[string]string {
	out := map[string]string{}
	for _, pair := range getEnvList(key, nil) {
		k, v, ok := strings.Cut(pair, "=")
		if k = strings.TrimSpace(k); ok && k != "" {
			out[k] = strings.TrimSpace(v)
		}
	}
	return out
}
