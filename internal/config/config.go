// Package config は環境変数からアプリケーション設定を読み込む。
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// ReorderMode は並び替えバッチの適用方式を表す。
type ReorderMode string

const (
	// ReorderModeAtomic は全件を単一トランザクションで更新する。
	ReorderModeAtomic ReorderMode = "atomic"
	// ReorderModeFanout は行ごとに独立した更新を並列に発行する。
	ReorderModeFanout ReorderMode = "fanout"
)

// Config はアプリケーション全体の設定を保持する。
// 環境変数から起動時に1回読み込み、イミュータブルとして扱う。
type Config struct {
	// Database
	DatabaseURL string

	// Session
	SessionSecret string
	SessionMaxAge int
	// SessionCleanupInterval は期限切れセッション削除ジョブの実行間隔
	SessionCleanupInterval time.Duration

	// Preview
	PreviewTimeout  time.Duration
	PreviewMaxSize  int64
	SummaryEndpoint string
	PreviewCacheTTL time.Duration

	// Redis（空の場合はプレビューキャッシュを無効化）
	RedisURL string

	// Reorder
	ReorderMode          ReorderMode
	ReorderMaxConcurrent int

	// Rate Limit（req/min）
	RateLimitGeneral int
	RateLimitPreview int
	RateLimitAuth    int // ログイン・登録（接続元IPごと）

	// Logging
	LogLevel string

	// Server
	ServerPort string
	BaseURL    string

	// Cookie
	CookieSecure bool
	CookieDomain string

	// CORS
	CORSAllowedOrigin string
}

// LoadDotEnv は指定パスの.envファイルを環境変数に読み込む。
// 既に設定済みの環境変数は上書きしない。ファイルが存在しない場合は何もしない。
func LoadDotEnv(path string) error {
	if path == "" {
		path = ".env"
	}
	if err := godotenv.Load(path); err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil
		}
		return fmt.Errorf("failed to load %s: %w", path, err)
	}
	return nil
}

// Load は環境変数からConfigを読み込む。
// 必須環境変数が未設定の場合はエラーを返す。
func Load() (*Config, error) {
	cfg := &Config{}

	var missing []string

	cfg.DatabaseURL = os.Getenv("DATABASE_URL")
	if cfg.DatabaseURL == "" {
		missing = append(missing, "DATABASE_URL")
	}

	cfg.SessionSecret = os.Getenv("SESSION_SECRET")
	if cfg.SessionSecret == "" {
		missing = append(missing, "SESSION_SECRET")
	}

	cfg.BaseURL = os.Getenv("BASE_URL")
	if cfg.BaseURL == "" {
		missing = append(missing, "BASE_URL")
	}

	if len(missing) > 0 {
		return nil, fmt.Errorf("required environment variables are not set: %v", missing)
	}

	cfg.SessionMaxAge = getEnvInt("SESSION_MAX_AGE", 604800)
	cfg.SessionCleanupInterval = getEnvDuration("SESSION_CLEANUP_INTERVAL", time.Hour)
	cfg.PreviewTimeout = getEnvDuration("PREVIEW_TIMEOUT", 10*time.Second)
	cfg.PreviewMaxSize = getEnvInt64("PREVIEW_MAX_SIZE", 5242880)
	cfg.SummaryEndpoint = getEnvString("SUMMARY_ENDPOINT", "https://r.jina.ai/")
	cfg.PreviewCacheTTL = getEnvDuration("PREVIEW_CACHE_TTL", 24*time.Hour)
	cfg.RedisURL = getEnvString("REDIS_URL", "")
	cfg.ReorderMode = parseReorderMode(os.Getenv("REORDER_MODE"))
	cfg.ReorderMaxConcurrent = getEnvInt("REORDER_MAX_CONCURRENT", 8)
	cfg.RateLimitGeneral = getEnvInt("RATE_LIMIT_GENERAL", 120)
	cfg.RateLimitPreview = getEnvInt("RATE_LIMIT_PREVIEW", 10)
	cfg.RateLimitAuth = getEnvInt("RATE_LIMIT_AUTH", 10)
	cfg.LogLevel = getEnvString("LOG_LEVEL", "info")
	cfg.ServerPort = getEnvString("SERVER_PORT", "8080")
	cfg.CookieSecure = strings.HasPrefix(cfg.BaseURL, "https://")
	cfg.CookieDomain = getEnvString("COOKIE_DOMAIN", "")
	cfg.CORSAllowedOrigin = getEnvString("CORS_ALLOWED_ORIGIN", "http://localhost:3000")

	return cfg, nil
}

// parseReorderMode は未知の値をatomicとして扱う。
func parseReorderMode(v string) ReorderMode {
	switch ReorderMode(strings.ToLower(strings.TrimSpace(v))) {
	case ReorderModeFanout:
		return ReorderModeFanout
	default:
		return ReorderModeAtomic
	}
}

func getEnvString(key, defaultVal string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return defaultVal
}

// getEnvInt は0以下の値を不正値として既定値を返す。getEnvInt64、getEnvDurationも同様。
func getEnvInt(key string, defaultVal int) int {
	v := os.Getenv(key)
	if v == "" {
		return defaultVal
	}
	i, err := strconv.Atoi(v)
	if err != nil || i <= 0 {
		return defaultVal
	}
	return i
}

func getEnvInt64(key string, defaultVal int64) int64 {
	v := os.Getenv(key)
	if v == "" {
		return defaultVal
	}
	i, err := strconv.ParseInt(v, 10, 64)
	if err != nil || i <= 0 {
		return defaultVal
	}
	return i
}

func getEnvDuration(key string, defaultVal time.Duration) time.Duration {
	v := os.Getenv(key)
	if v == "" {
		return defaultVal
	}
	d, err := time.ParseDuration(v)
	if err != nil || d <= 0 {
		return defaultVal
	}
	return d
}
