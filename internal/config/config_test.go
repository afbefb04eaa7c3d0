package config

import (
	"strings"
	"testing"
)

func TestDefaultsValidate(t *testing.T) {
	cfg := Defaults()
	if err := cfg.Validate(); err != nil {
		t.Fatalf("Defaults() should validate, got: %v", err)
	}
}

func TestValidateRejects(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Config)
		wantMsg string
	}{
		{
			name:    "unknown storage",
			mutate:  func(c *Config) { c.Storage = "sqlite" },
			wantMsg: "unknown storage",
		},
		{
			name:    "unknown log level",
			mutate:  func(c *Config) { c.LogLevel = "verbose" },
			wantMsg: "unknown log_level",
		},
		{
			name:    "bad server port",
			mutate:  func(c *Config) { c.Server.Port = 70000 },
			wantMsg: "server: port",
		},
		{
			name:    "rate limit without redis",
			mutate:  func(c *Config) { c.Server.RateLimit = 100 },
			wantMsg: "rate_limit requires redis",
		},
		{
			name: "postgres storage without database",
			mutate: func(c *Config) {
				c.Storage = "postgres"
				c.Postgres.Database = ""
			},
			wantMsg: "postgres: database",
		},
		{
			name: "compute path without pinned commit",
			mutate: func(c *Config) {
				c.Oracle.ComputeURL = "https://compute.example"
				c.Oracle.CodeCommit = ""
			},
			wantMsg: "code_commit is required",
		},
		{
			name:    "void threshold out of range",
			mutate:  func(c *Config) { c.Engine.VoidBelowConfidence = 1.5 },
			wantMsg: "void_below_confidence",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Defaults()
			tt.mutate(&cfg)
			err := cfg.Validate()
			if err == nil {
				t.Fatal("expected validation error, got nil")
			}
			if !strings.Contains(err.Error(), tt.wantMsg) {
				t.Fatalf("error %q does not mention %q", err, tt.wantMsg)
			}
		})
	}
}

func TestEnvOverrides(t *testing.T) {
	t.Setenv("SETTLD_STORAGE", "postgres")
	t.Setenv("SETTLD_POSTGRES_PASSWORD", "hunter2")
	t.Setenv("SETTLD_SERVER_PORT", "9000")
	t.Setenv("SETTLD_ORACLE_PENDING_TTL", "5m")
	t.Setenv("SETTLD_SERVER_CORS_ORIGINS", "https://a.example, https://b.example")
	t.Setenv("SETTLD_REDIS_ENABLED", "true")

	cfg := Defaults()
	applyEnvOverrides(&cfg)

	if cfg.Storage != "postgres" {
		t.Errorf("Storage = %q, want postgres", cfg.Storage)
	}
	if cfg.Postgres.Password != "hunter2" {
		t.Errorf("Postgres.Password = %q, want hunter2", cfg.Postgres.Password)
	}
	if cfg.Server.Port != 9000 {
		t.Errorf("Server.Port = %d, want 9000", cfg.Server.Port)
	}
	if got := cfg.Oracle.PendingTTL.Duration.Minutes(); got != 5 {
		t.Errorf("Oracle.PendingTTL = %v minutes, want 5", got)
	}
	if len(cfg.Server.CORSOrigins) != 2 || cfg.Server.CORSOrigins[1] != "https://b.example" {
		t.Errorf("Server.CORSOrigins = %v, want two trimmed origins", cfg.Server.CORSOrigins)
	}
	if !cfg.Redis.Enabled {
		t.Error("Redis.Enabled should be true")
	}
}

func TestRedactedConfig(t *testing.T) {
	cfg := Defaults()
	cfg.Server.APIKey = "secret-key"
	cfg.Postgres.Password = "hunter2"
	cfg.S3.SecretKey = "aws-secret"
	cfg.Notify.TelegramToken = "bot-token"

	red := RedactedConfig(&cfg)

	for name, got := range map[string]string{
		"server api key":    red.Server.APIKey,
		"postgres password": red.Postgres.Password,
		"s3 secret key":     red.S3.SecretKey,
		"telegram token":    red.Notify.TelegramToken,
	} {
		if got != "***" {
			t.Errorf("%s not redacted: %q", name, got)
		}
	}

	// The original must be untouched.
	if cfg.Postgres.Password != "hunter2" {
		t.Errorf("original mutated: %q", cfg.Postgres.Password)
	}
	red.Server.CORSOrigins[0] = "mutated"
	if cfg.Server.CORSOrigins[0] == "mutated" {
		t.Error("redacted copy aliases the original CORS origins slice")
	}
}
