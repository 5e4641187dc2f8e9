package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

// Config はアプリケーション全体の設定を保持する。
// 環境変数から起動時に1回読み込み、イミュータブルとして扱う。
type Config struct {
	// Database
	DatabaseURL string

	// Cache（REDIS_URLが空の場合はキャッシュなし）
	RedisURL string
	CacheTTL time.Duration

	// OAuth（クライアントIDとシークレットの両方がある場合のみ有効）
	GitHubClientID      string
	GitHubClientSecret  string
	DiscordClientID     string
	DiscordClientSecret string
	OAuthCallbackURL    string

	// Session
	SessionMaxAge int

	// Shortener
	AliasLength int
	InviteLimit int

	// Rate Limit（req/min）
	RateLimitGeneral int
	RateLimitShorten int

	// Worker
	CleanupInterval      time.Duration
	PreviewInterval      time.Duration
	PreviewTimeout       time.Duration
	PreviewMaxSize       int64
	PreviewMaxConcurrent int

	// Logging
	LogLevel string

	// Server
	AppEnv     string
	ServerPort string
	BaseURL    string

	// Cookie
	CookieSecure bool
	CookieDomain string

	// CORS
	CORSAllowedOrigin string
}

// Load は環境変数からConfigを読み込む。
// 必須環境変数が未設定の場合はエラーを返す。
func Load() (*Config, error) {
	cfg := &Config{}

	// Required fields
	var missing []string

	cfg.DatabaseURL = os.Getenv("DATABASE_URL")
	if cfg.DatabaseURL == "" {
		missing = append(missing, "DATABASE_URL")
	}

	cfg.BaseURL = strings.TrimRight(os.Getenv("BASE_URL"), "/")
	if cfg.BaseURL == "" {
		missing = append(missing, "BASE_URL")
	}

	if len(missing) > 0 {
		return nil, fmt.Errorf("required environment variables are not set: %v", missing)
	}

	// Optional fields with defaults
	cfg.RedisURL = getEnvString("REDIS_URL", "")
	cfg.CacheTTL = getEnvDuration("CACHE_TTL", time.Hour)
	cfg.GitHubClientID = getEnvString("GITHUB_CLIENT_ID", "")
	cfg.GitHubClientSecret = getEnvString("GITHUB_CLIENT_SECRET", "")
	cfg.DiscordClientID = getEnvString("DISCORD_CLIENT_ID", "")
	cfg.DiscordClientSecret = getEnvString("DISCORD_CLIENT_SECRET", "")
	cfg.OAuthCallbackURL = strings.TrimRight(getEnvString("OAUTH_CALLBACK_URL", cfg.BaseURL), "/")
	cfg.SessionMaxAge = getEnvInt("SESSION_MAX_AGE", 86400)
	cfg.AliasLength = getEnvInt("ALIAS_LENGTH", 7)
	cfg.InviteLimit = getEnvInt("INVITE_LIMIT", 5)
	cfg.RateLimitGeneral = getEnvInt("RATE_LIMIT_GENERAL", 120)
	cfg.RateLimitShorten = getEnvInt("RATE_LIMIT_SHORTEN", 30)
	cfg.CleanupInterval = getEnvDuration("CLEANUP_INTERVAL", time.Hour)
	cfg.PreviewInterval = getEnvDuration("PREVIEW_INTERVAL", 5*time.Minute)
	cfg.PreviewTimeout = getEnvDuration("PREVIEW_TIMEOUT", 10*time.Second)
	cfg.PreviewMaxSize = getEnvInt64("PREVIEW_MAX_SIZE", 1<<20)
	cfg.PreviewMaxConcurrent = getEnvInt("PREVIEW_MAX_CONCURRENT", 5)
	cfg.LogLevel = getEnvString("LOG_LEVEL", "info")
	cfg.AppEnv = getEnvString("APP_ENV", "production")
	cfg.ServerPort = getEnvString("SERVER_PORT", "8080")
	cfg.CookieSecure = strings.HasPrefix(cfg.BaseURL, "https://")
	cfg.CookieDomain = getEnvString("COOKIE_DOMAIN", "")
	cfg.CORSAllowedOrigin = getEnvString("CORS_ALLOWED_ORIGIN", cfg.BaseURL)

	return cfg, nil
}

// IsDevelopment は開発環境で起動しているかを返す。
func (c *Config) IsDevelopment() bool {
	return c.AppEnv == "development"
}

// OAuthRedirectURL はプロバイダーのコールバックURLを返す。
func (c *Config) OAuthRedirectURL(provider string) string {
	return c.OAuthCallbackURL + "/auth/" + provider + "/callback"
}

// GitHubEnabled はGitHubログインが設定されているかを返す。
func (c *Config) GitHubEnabled() bool {
	return c.GitHubClientID != "" && c.GitHubClientSecret != ""
}

// DiscordEnabled はDiscordログインが設定されているかを返す。
func (c *Config) DiscordEnabled() bool {
	return c.DiscordClientID != "" && c.DiscordClientSecret != ""
}

func getEnvString(key, defaultVal string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return defaultVal
}

func getEnvInt(key string, defaultVal int) int {
	v := os.Getenv(key)
	if v == "" {
		return defaultVal
	}
	i, err := strconv.Atoi(v)
	if err != nil {
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
	if err != nil {
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
	if err != nil {
		return defaultVal
	}
	return d
}
