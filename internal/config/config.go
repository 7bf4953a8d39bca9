// Package config loads application configuration from environment variables
// and an optional .env file.
package config

import (
	"encoding/hex"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/spf13/viper"
)

const minJWTSecretLength = 32

// Config holds the application configuration.
type Config struct {
	ListenAddr      string        `mapstructure:"DEVPULSE_LISTEN_ADDR"`
	DBPath          string        `mapstructure:"DEVPULSE_DB_PATH"`
	KVPath          string        `mapstructure:"DEVPULSE_KV_PATH"`
	LogLevel        string        `mapstructure:"DEVPULSE_LOG_LEVEL"`
	LogFormat       string        `mapstructure:"DEVPULSE_LOG_FORMAT"`
	JWTSecret       string        `mapstructure:"DEVPULSE_JWT_SECRET"`
	JWTAccessTTL    time.Duration `mapstructure:"DEVPULSE_JWT_ACCESS_TTL"`
	JWTRefreshTTL   time.Duration `mapstructure:"DEVPULSE_JWT_REFRESH_TTL"`
	EncryptionKey   string        `mapstructure:"DEVPULSE_ENCRYPTION_KEY"`
	CORSOriginsRaw  string        `mapstructure:"DEVPULSE_CORS_ORIGINS"`
	RateLimit       int           `mapstructure:"DEVPULSE_RATE_LIMIT"`
	AuthRateLimit   int           `mapstructure:"DEVPULSE_AUTH_RATE_LIMIT"`
	AzureAPIURL     string        `mapstructure:"DEVPULSE_AZURE_API_URL"`
	GraphAPIURL     string        `mapstructure:"DEVPULSE_GRAPH_API_URL"`
	GitHubAPIURL    string        `mapstructure:"DEVPULSE_GITHUB_API_URL"`
	KPICacheTTL     time.Duration `mapstructure:"DEVPULSE_KPI_CACHE_TTL"`
	SyncLockTTL     time.Duration `mapstructure:"DEVPULSE_SYNC_LOCK_TTL"`
	SyncInterval    time.Duration `mapstructure:"DEVPULSE_SYNC_INTERVAL"`
	CORSOrigins     []string      `mapstructure:"-"`
	SlogLevel       slog.Level    `mapstructure:"-"`
	EncryptionBytes []byte        `mapstructure:"-"`
}

var defaults = map[string]any{
	"DEVPULSE_LISTEN_ADDR":     "127.0.0.1:8080",
	"DEVPULSE_DB_PATH":         "devpulse.db",
	"DEVPULSE_KV_PATH":         "",
	"DEVPULSE_LOG_LEVEL":       "info",
	"DEVPULSE_LOG_FORMAT":      "json",
	"DEVPULSE_JWT_SECRET":      "",
	"DEVPULSE_JWT_ACCESS_TTL":  "15m",
	"DEVPULSE_JWT_REFRESH_TTL": "168h",
	"DEVPULSE_ENCRYPTION_KEY":  "",
	"DEVPULSE_CORS_ORIGINS":    "",
	"DEVPULSE_RATE_LIMIT":      300,
	"DEVPULSE_AUTH_RATE_LIMIT": 10,
	"DEVPULSE_AZURE_API_URL":   "https://dev.azure.com",
	"DEVPULSE_GRAPH_API_URL":   "https://graph.microsoft.com/v1.0",
	"DEVPULSE_GITHUB_API_URL":  "",
	"DEVPULSE_KPI_CACHE_TTL":   "5m",
	"DEVPULSE_SYNC_LOCK_TTL":   "1h",
	"DEVPULSE_SYNC_INTERVAL":   "0s",
}

// Load reads configuration from the environment and from a .env file in dir
// if one exists, then validates it. Environment variables win over the file.
// DEVPULSE_JWT_SECRET (at least 32 characters) and DEVPULSE_ENCRYPTION_KEY
// (64 hex characters) are required.
func Load(dir string) (*Config, error) {
	v := viper.New()
	for key, value := range defaults {
		v.SetDefault(key, value)
	}

	v.SetConfigName(".env")
	v.SetConfigType("env")
	v.AddConfigPath(dir)
	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, fmt.Errorf("read .env: %w", err)
		}
	}

	v.AutomaticEnv()

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("decode config: %w", err)
	}

	if err := cfg.finish(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// finish derives parsed fields and validates the result.
func (c *Config) finish() error {
	if len(c.JWTSecret) < minJWTSecretLength {
		return fmt.Errorf("DEVPULSE_JWT_SECRET must be at least %d characters", minJWTSecretLength)
	}

	key, err := hex.DecodeString(c.EncryptionKey)
	if err != nil || len(key) != 32 {
		return errors.New("DEVPULSE_ENCRYPTION_KEY must be 64 hex characters")
	}
	c.EncryptionBytes = key

	if err := c.SlogLevel.UnmarshalText([]byte(c.LogLevel)); err != nil {
		return fmt.Errorf("DEVPULSE_LOG_LEVEL has invalid value %q", c.LogLevel)
	}

	c.LogFormat = strings.ToLower(c.LogFormat)
	if c.LogFormat != "json" && c.LogFormat != "text" {
		return fmt.Errorf("DEVPULSE_LOG_FORMAT must be json or text, got %q", c.LogFormat)
	}

	if c.JWTAccessTTL <= 0 || c.JWTRefreshTTL <= c.JWTAccessTTL {
		return errors.New("DEVPULSE_JWT_REFRESH_TTL must be longer than a positive DEVPULSE_JWT_ACCESS_TTL")
	}
	if c.RateLimit <= 0 {
		return fmt.Errorf("DEVPULSE_RATE_LIMIT must be positive, got %d", c.RateLimit)
	}
	if c.AuthRateLimit <= 0 {
		return fmt.Errorf("DEVPULSE_AUTH_RATE_LIMIT must be positive, got %d", c.AuthRateLimit)
	}
	if c.SyncInterval < 0 {
		return fmt.Errorf("DEVPULSE_SYNC_INTERVAL must not be negative, got %s", c.SyncInterval)
	}

	c.CORSOrigins = []string{}
	for _, origin := range strings.Split(c.CORSOriginsRaw, ",") {
		if origin = strings.TrimSpace(origin); origin != "" {
			c.CORSOrigins = append(c.CORSOrigins, origin)
		}
	}
	return nil
}

// InMemoryKV reports whether the KV store should run without a directory.
func (c *Config) InMemoryKV() bool {
	return c.KVPath == ""
}
