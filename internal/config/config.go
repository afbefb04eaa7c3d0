// Package config defines the TOML-backed configuration for the settlement
// engine and its validation rules.
package config

import (
	"fmt"
	"strings"
	"time"
)

// Config is the root configuration structure, loaded from a TOML file with
// SETTLD_* environment variable overrides applied on top.
type Config struct {
	Server   ServerConfig   `toml:"server"`
	Postgres PostgresConfig `toml:"postgres"`
	Redis    RedisConfig    `toml:"redis"`
	S3       S3Config       `toml:"s3"`
	Oracle   OracleConfig   `toml:"oracle"`
	Engine   EngineConfig   `toml:"engine"`
	Notify   NotifyConfig   `toml:"notify"`

	// Storage selects the persistence backend: "memory" or "postgres".
	Storage string `toml:"storage"`
	// LogLevel: "debug", "info", "warn", "error".
	LogLevel string `toml:"log_level"`
}

// ServerConfig holds HTTP server parameters.
type ServerConfig struct {
	Port        int      `toml:"port"`
	CORSOrigins []string `toml:"cors_origins"`
	// APIKey protects the write endpoints. Empty disables authentication.
	APIKey string `toml:"api_key"`
	// RateLimit caps requests per client IP per RateWindow. Zero disables
	// rate limiting. Requires Redis.
	RateLimit  int      `toml:"rate_limit"`
	RateWindow duration `toml:"rate_window"`
}

// PostgresConfig holds the persistent store connection parameters. DSN, when
// set, takes precedence over the individual fields.
type PostgresConfig struct {
	DSN           string `toml:"dsn"`
	Host          string `toml:"host"`
	Port          int    `toml:"port"`
	Database      string `toml:"database"`
	User          string `toml:"user"`
	Password      string `toml:"password"`
	SSLMode       string `toml:"ssl_mode"`
	PoolMaxConns  int    `toml:"pool_max_conns"`
	PoolMinConns  int    `toml:"pool_min_conns"`
	RunMigrations bool   `toml:"run_migrations"`
}

// RedisConfig holds connection parameters for the pending-resolution registry
// and rate limiter. When disabled, an in-process pending store is used and
// rate limiting is unavailable.
type RedisConfig struct {
	Enabled    bool   `toml:"enabled"`
	Addr       string `toml:"addr"`
	Password   string `toml:"password"`
	DB         int    `toml:"db"`
	PoolSize   int    `toml:"pool_size"`
	MaxRetries int    `toml:"max_retries"`
	TLSEnabled bool   `toml:"tls_enabled"`
}

// S3Config holds parameters for the resolution transcript archive. When
// disabled, transcripts are not archived.
type S3Config struct {
	Enabled        bool   `toml:"enabled"`
	Endpoint       string `toml:"endpoint"`
	Region         string `toml:"region"`
	Bucket         string `toml:"bucket"`
	AccessKey      string `toml:"access_key"`
	SecretKey      string `toml:"secret_key"`
	UseSSL         bool   `toml:"use_ssl"`
	ForcePathStyle bool   `toml:"force_path_style"`
}

// OracleConfig holds the two resolution paths' external dependencies: the
// delegated-compute service and the attestation registry.
type OracleConfig struct {
	// ComputeURL is the delegated-compute service base URL. Empty disables
	// the compute resolution path.
	ComputeURL    string `toml:"compute_url"`
	ComputeAPIKey string `toml:"compute_api_key"`
	// AttestURL is the attestation registry base URL. Empty disables the
	// attestation resolution path.
	AttestURL string `toml:"attest_url"`

	// CodeRepo, CodeCommit and CodeBuildTarget pin the fetch program the
	// compute service runs.
	CodeRepo        string `toml:"code_repo"`
	CodeCommit      string `toml:"code_commit"`
	CodeBuildTarget string `toml:"code_build_target"`

	// DataSourceHost is the canonical hostname attested transcripts must
	// have been fetched from.
	DataSourceHost string `toml:"data_source_host"`
	// CallbackBaseURL is this engine's externally reachable base URL; the
	// compute callback route is appended to it.
	CallbackBaseURL string `toml:"callback_base_url"`
	// AttestorAddr, when set, is the only address accepted as a transcript
	// signer.
	AttestorAddr string   `toml:"attestor_addr"`
	PendingTTL   duration `toml:"pending_ttl"`
}

// EngineConfig holds settlement tunables.
type EngineConfig struct {
	// VoidBelowConfidence voids markets whose verdict confidence falls
	// below this threshold.
	VoidBelowConfidence float64 `toml:"void_below_confidence"`
	// MinTokenLen is the minimum token length the fuzzy outcome matcher
	// considers significant.
	MinTokenLen int `toml:"min_token_len"`
}

// NotifyConfig holds notification channel credentials.
type NotifyConfig struct {
	TelegramToken     string   `toml:"telegram_token"`
	TelegramChatID    string   `toml:"telegram_chat_id"`
	DiscordWebhookURL string   `toml:"discord_webhook_url"`
	Events            []string `toml:"events"`
}

// duration is a wrapper around time.Duration that supports TOML string
// decoding (e.g. "5m", "30s").
type duration struct {
	time.Duration
}

// UnmarshalText implements encoding.TextUnmarshaler so the TOML decoder can
// parse duration strings like "5m" or "30s".
func (d *duration) UnmarshalText(text []byte) error {
	var err error
	d.Duration, err = time.ParseDuration(string(text))
	return err
}

// MarshalText implements encoding.TextMarshaler for round-trip encoding.
func (d duration) MarshalText() ([]byte, error) {
	return []byte(d.Duration.String()), nil
}

// Defaults returns a Config populated with reasonable default values.
// These match the values in config.example.toml.
func Defaults() Config {
	return Config{
		Server: ServerConfig{
			Port:        8000,
			CORSOrigins: []string{"http://localhost:3000", "http://localhost:5173"},
			RateLimit:   0,
			RateWindow:  duration{time.Minute},
		},
		Postgres: PostgresConfig{
			Host:          "localhost",
			Port:          5432,
			Database:      "settld",
			User:          "postgres",
			SSLMode:       "disable",
			PoolMaxConns:  10,
			PoolMinConns:  2,
			RunMigrations: true,
		},
		Redis: RedisConfig{
			Enabled:    false,
			Addr:       "localhost:6379",
			DB:         0,
			PoolSize:   20,
			MaxRetries: 3,
			TLSEnabled: false,
		},
		S3: S3Config{
			Enabled:        false,
			Endpoint:       "http://localhost:9000",
			Region:         "us-east-1",
			Bucket:         "settld-transcripts",
			UseSSL:         false,
			ForcePathStyle: true,
		},
		Oracle: OracleConfig{
			CodeRepo:        "github.com/settld/scorefetch",
			CodeBuildTarget: "wasm32-wasip1",
			DataSourceHost:  "site.api.espn.com",
			CallbackBaseURL: "http://localhost:8000",
			PendingTTL:      duration{10 * time.Minute},
		},
		Engine: EngineConfig{
			VoidBelowConfidence: 0.3,
			MinTokenLen:         4,
		},
		Notify: NotifyConfig{
			Events: []string{"market_resolved", "market_voided", "error"},
		},
		Storage:  "memory",
		LogLevel: "info",
	}
}

// validStorages enumerates the accepted values for Config.Storage.
var validStorages = map[string]bool{
	"memory":   true,
	"postgres": true,
}

// validLogLevels enumerates the accepted values for Config.LogLevel.
var validLogLevels = map[string]bool{
	"debug": true,
	"info":  true,
	"warn":  true,
	"error": true,
}

// Validate checks Config for obviously invalid or missing values and returns
// a combined error describing every problem found.
func (c *Config) Validate() error {
	var errs []string

	// Storage
	if !validStorages[strings.ToLower(c.Storage)] {
		errs = append(errs, fmt.Sprintf("unknown storage %q (valid: memory, postgres)", c.Storage))
	}

	// LogLevel
	if !validLogLevels[strings.ToLower(c.LogLevel)] {
		errs = append(errs, fmt.Sprintf("unknown log_level %q (valid: debug, info, warn, error)", c.LogLevel))
	}

	// Server
	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		errs = append(errs, fmt.Sprintf("server: port must be 1-65535, got %d", c.Server.Port))
	}
	if c.Server.RateLimit < 0 {
		errs = append(errs, "server: rate_limit must be >= 0")
	}
	if c.Server.RateLimit > 0 {
		if !c.Redis.Enabled {
			errs = append(errs, "server: rate_limit requires redis to be enabled")
		}
		if c.Server.RateWindow.Duration <= 0 {
			errs = append(errs, "server: rate_window must be > 0 when rate_limit is set")
		}
	}

	// Postgres — only matters when selected as the storage backend.
	if strings.ToLower(c.Storage) == "postgres" {
		if strings.TrimSpace(c.Postgres.DSN) == "" {
			if c.Postgres.Host == "" {
				errs = append(errs, "postgres: host must not be empty (or set postgres.dsn)")
			}
			if c.Postgres.Port <= 0 || c.Postgres.Port > 65535 {
				errs = append(errs, fmt.Sprintf("postgres: port must be 1-65535, got %d", c.Postgres.Port))
			}
			if c.Postgres.Database == "" {
				errs = append(errs, "postgres: database must not be empty")
			}
		}
		if c.Postgres.PoolMaxConns < 1 {
			errs = append(errs, "postgres: pool_max_conns must be >= 1")
		}
		if c.Postgres.PoolMinConns < 0 {
			errs = append(errs, "postgres: pool_min_conns must be >= 0")
		}
		if c.Postgres.PoolMinConns > c.Postgres.PoolMaxConns {
			errs = append(errs, "postgres: pool_min_conns must not exceed pool_max_conns")
		}
	}

	// Redis
	if c.Redis.Enabled {
		if c.Redis.Addr == "" {
			errs = append(errs, "redis: addr must not be empty")
		}
		if c.Redis.PoolSize < 1 {
			errs = append(errs, "redis: pool_size must be >= 1")
		}
	}

	// S3
	if c.S3.Enabled {
		if c.S3.Endpoint == "" {
			errs = append(errs, "s3: endpoint must not be empty")
		}
		if c.S3.Bucket == "" {
			errs = append(errs, "s3: bucket must not be empty")
		}
	}

	// Oracle — the compute path needs a pinned program and a reachable
	// callback URL.
	if c.Oracle.ComputeURL != "" {
		if c.Oracle.CodeRepo == "" {
			errs = append(errs, "oracle: code_repo is required when compute_url is set")
		}
		if c.Oracle.CodeCommit == "" {
			errs = append(errs, "oracle: code_commit is required when compute_url is set")
		}
		if c.Oracle.CallbackBaseURL == "" {
			errs = append(errs, "oracle: callback_base_url is required when compute_url is set")
		}
	}
	if c.Oracle.AttestURL != "" && c.Oracle.DataSourceHost == "" {
		errs = append(errs, "oracle: data_source_host is required when attest_url is set")
	}
	if c.Oracle.PendingTTL.Duration < 0 {
		errs = append(errs, "oracle: pending_ttl must be >= 0")
	}

	// Engine
	if c.Engine.VoidBelowConfidence < 0 || c.Engine.VoidBelowConfidence >= 1 {
		errs = append(errs, fmt.Sprintf("engine: void_below_confidence must be in [0, 1), got %g", c.Engine.VoidBelowConfidence))
	}
	if c.Engine.MinTokenLen < 0 {
		errs = append(errs, "engine: min_token_len must be >= 0")
	}

	if len(errs) > 0 {
		return fmt.Errorf("config validation failed:\n  - %s", strings.Join(errs, "\n  - "))
	}
	return nil
}
