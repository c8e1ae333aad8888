package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/caarlos0/env/v11"
)

// Config はアプリケーション全体の設定を保持する。
// 環境変数から起動時に1回読み込み、イミュータブルとして扱う。
type Config struct {
	// Database
	DatabaseURL string `env:"DATABASE_URL,required,notEmpty"`

	// Data store: postgres | memory
	DataStore string `env:"DATA_STORE" envDefault:"postgres"`

	// Auth provider: local | gotrue
	AuthProvider     string        `env:"AUTH_PROVIDER" envDefault:"local"`
	GoTrueURL        string        `env:"GOTRUE_URL"`
	GoTrueAPIKey     string        `env:"GOTRUE_API_KEY"`
	GoTrueServiceKey string        `env:"GOTRUE_SERVICE_KEY"`
	AuthTimeout      time.Duration `env:"AUTH_TIMEOUT" envDefault:"10s"`
	AccessTokenTTL   time.Duration `env:"ACCESS_TOKEN_TTL" envDefault:"1h"`
	RefreshTokenTTL  time.Duration `env:"REFRESH_TOKEN_TTL" envDefault:"720h"`

	// Session
	SessionSecret string `env:"SESSION_SECRET,required,notEmpty"`

	// Worker
	SessionCleanupInterval time.Duration `env:"SESSION_CLEANUP_INTERVAL" envDefault:"1h"`

	// Rate Limit
	RateLimitGeneral int `env:"RATE_LIMIT_GENERAL" envDefault:"120"`
	RateLimitAuth    int `env:"RATE_LIMIT_AUTH" envDefault:"10"`

	// Trends
	TrendFeedURL  string        `env:"TREND_FEED_URL"`
	TrendCacheTTL time.Duration `env:"TREND_CACHE_TTL" envDefault:"1h"`
	FetchTimeout  time.Duration `env:"FETCH_TIMEOUT" envDefault:"10s"`

	// Logging
	LogFormat string `env:"LOG_FORMAT" envDefault:"json"`
	LogLevel  string `env:"LOG_LEVEL" envDefault:"info"`

	// Server
	ServerPort string `env:"SERVER_PORT" envDefault:"8080"`
	BaseURL    string `env:"BASE_URL,required,notEmpty"`

	// Cookie
	CookieSecure bool
	CookieDomain string `env:"COOKIE_DOMAIN"`

	// CORS
	CORSAllowedOrigin string `env:"CORS_ALLOWED_ORIGIN" envDefault:"http://localhost:8080"`
}

// Load は環境変数からConfigを読み込む。
// 必須環境変数が未設定の場合はエラーを返す。
func Load() (*Config, error) {
	cfg := &Config{}
	if err := env.Parse(cfg); err != nil {
		return nil, fmt.Errorf("failed to parse environment: %w", err)
	}

	switch cfg.DataStore {
	case "postgres", "memory":
	default:
		return nil, fmt.Errorf("invalid DATA_STORE: %q (want postgres or memory)", cfg.DataStore)
	}

	switch cfg.AuthProvider {
	case "local":
	case "gotrue":
		if cfg.GoTrueURL == "" {
			return nil, fmt.Errorf("GOTRUE_URL is required when AUTH_PROVIDER=gotrue")
		}
	default:
		return nil, fmt.Errorf("invalid AUTH_PROVIDER: %q (want local or gotrue)", cfg.AuthProvider)
	}

	if len(cfg.SessionSecret) < 32 {
		return nil, fmt.Errorf("SESSION_SECRET must be at least 32 bytes")
	}

	cfg.CookieSecure = strings.HasPrefix(cfg.BaseURL, "https://")
	return cfg, nil
}
