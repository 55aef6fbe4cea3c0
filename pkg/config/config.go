package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"slices"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"
)

// Config holds every runtime setting. Sources are applied in order:
// defaults, optional TOML file (CHAT_CONFIG_FILE), .env (non-production only),
// then the process environment.
type Config struct {
	AppEnv string `toml:"app_env" env:"APP_ENV"`
	Port   string `toml:"port" env:"PORT"`

	GeminiAPIKey        string `toml:"gemini_api_key" env:"GEMINI_API_KEY"`
	GeminiModel         string `toml:"gemini_model" env:"GEMINI_MODEL"`
	GeminiFallbackModel string `toml:"gemini_fallback_model" env:"GEMINI_FALLBACK_MODEL"`
	GeminiBaseURL       string `toml:"gemini_base_url" env:"GEMINI_BASE_URL"`
	GeminiEnabled       bool   `toml:"gemini_enabled" env:"IS_GEMINI_ENABLED"`

	JWTSecret string `toml:"jwt_secret" env:"JWT_SECRET_KEY"`

	// StorageDriver is one of sqlite, mysql, bolt or memory.
	StorageDriver string `toml:"storage_driver" env:"STORAGE_DRIVER"`
	StorageDSN    string `toml:"storage_dsn" env:"STORAGE_DSN"`

	DefaultTheme string `toml:"default_theme" env:"DEFAULT_THEME"`

	RateLimitWindowSeconds int `toml:"rate_limit_window_seconds" env:"RATE_LIMIT_WINDOW_SECONDS"`
	RateLimitCapacity      int `toml:"rate_limit_capacity" env:"RATE_LIMIT_CAPACITY"`

	TranscriptCacheTTLSeconds int `toml:"transcript_cache_ttl_seconds" env:"TRANSCRIPT_CACHE_TTL_SECONDS"`
	TranscriptCacheMaxItems   int `toml:"transcript_cache_max_items" env:"TRANSCRIPT_CACHE_MAX_ITEMS"`

	CORSOrigins []string `toml:"cors_origins" env:"CORS_ORIGINS" envSeparator:","`

	LogLevel  string `toml:"log_level" env:"LOG_LEVEL"`
	LogFormat string `toml:"log_format" env:"LOG_FORMAT"`
}

const (
	EnvStaging    = "staging"
	EnvProduction = "production"
)

var validDrivers = []string{"sqlite", "mysql", "bolt", "memory"}

func Defaults() *Config {
	return &Config{
		AppEnv:                    EnvStaging,
		Port:                      "5000",
		GeminiModel:               "gemini-2.5-flash",
		GeminiFallbackModel:       "gemini-2.0-flash",
		GeminiBaseURL:             "https://generativelanguage.googleapis.com/v1beta",
		StorageDriver:             "sqlite",
		StorageDSN:                "chat.db",
		DefaultTheme:              "light",
		RateLimitWindowSeconds:    10,
		RateLimitCapacity:         5,
		TranscriptCacheTTLSeconds: 600,
		TranscriptCacheMaxItems:   200,
		CORSOrigins:               []string{"http://localhost:3000", "http://127.0.0.1:3000", "http://localhost:5173", "http://127.0.0.1:5173"},
		LogLevel:                  "info",
		LogFormat:                 "text",
	}
}

// Load builds the configuration from all sources and validates it.
func Load() (*Config, error) {
	cfg := Defaults()

	if path := os.Getenv("CHAT_CONFIG_FILE"); path != "" {
		if _, err := toml.DecodeFile(path, cfg); err != nil {
			return nil, fmt.Errorf("decode config file %s: %w", path, err)
		}
	}

	// .env is a development convenience; production reads the host environment only
	if os.Getenv("APP_ENV") != EnvProduction {
		if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("load .env: %w", err)
		}
	}

	if err := env.Parse(cfg); err != nil {
		return nil, fmt.Errorf("parse env: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) Validate() error {
	if !slices.Contains([]string{EnvStaging, EnvProduction}, c.AppEnv) {
		return fmt.Errorf("APP_ENV must be 'staging' or 'production', got %q", c.AppEnv)
	}
	if c.IsProduction() && strings.TrimSpace(c.JWTSecret) == "" {
		return errors.New("JWT_SECRET_KEY must be set in production")
	}
	if !slices.Contains(validDrivers, c.StorageDriver) {
		return fmt.Errorf("STORAGE_DRIVER must be one of %s, got %q", strings.Join(validDrivers, ", "), c.StorageDriver)
	}
	if c.DefaultTheme != "light" && c.DefaultTheme != "dark" {
		return fmt.Errorf("DEFAULT_THEME must be 'light' or 'dark', got %q", c.DefaultTheme)
	}
	if c.RateLimitWindowSeconds <= 0 || c.RateLimitCapacity <= 0 {
		return errors.New("rate limit window and capacity must be positive")
	}
	return nil
}

func (c *Config) IsProduction() bool { return c.AppEnv == EnvProduction }
func (c *Config) IsStaging() bool    { return c.AppEnv == EnvStaging }

func (c *Config) RateLimitWindow() time.Duration {
	return time.Duration(c.RateLimitWindowSeconds) * time.Second
}

func (c *Config) TranscriptCacheTTL() time.Duration {
	return time.Duration(c.TranscriptCacheTTLSeconds) * time.Second
}

// SigningKey returns the JWT secret, falling back to a fixed staging key.
func (c *Config) SigningKey() []byte {
	if c.JWTSecret == "" {
		return []byte("staging-insecure-secret")
	}
	return []byte(c.JWTSecret)
}
