package config

import (
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/joho/godotenv"
)

// Load reads a TOML configuration file at path, merges it on top of the
// built-in defaults, applies SETTLD_* environment variable overrides, and
// returns the final Config. The returned Config has NOT been validated; the
// caller should invoke Config.Validate() after Load.
func Load(path string) (*Config, error) {
	cfg := Defaults()

	if _, err := toml.DecodeFile(path, &cfg); err != nil {
		return nil, err
	}

	// Load .env file if present (silently ignore if missing).
	_ = godotenv.Load()

	applyEnvOverrides(&cfg)

	return &cfg, nil
}

// applyEnvOverrides reads well-known SETTLD_* environment variables and
// overwrites the corresponding Config fields when a variable is set (i.e. not
// empty). This lets operators inject secrets at deploy time without touching
// the TOML file.
func applyEnvOverrides(cfg *Config) {
	// ── Server ──
	setInt(&cfg.Server.Port, "SETTLD_SERVER_PORT")
	setStringSlice(&cfg.Server.CORSOrigins, "SETTLD_SERVER_CORS_ORIGINS")
	setStr(&cfg.Server.APIKey, "SETTLD_SERVER_API_KEY")
	setInt(&cfg.Server.RateLimit, "SETTLD_SERVER_RATE_LIMIT")
	setDuration(&cfg.Server.RateWindow, "SETTLD_SERVER_RATE_WINDOW")

	// ── Postgres ──
	setStr(&cfg.Postgres.DSN, "SETTLD_POSTGRES_DSN")
	setStr(&cfg.Postgres.DSN, "SETTLD_POSTGRES_URL") // compatibility alias
	setStr(&cfg.Postgres.Host, "SETTLD_POSTGRES_HOST")
	setInt(&cfg.Postgres.Port, "SETTLD_POSTGRES_PORT")
	setStr(&cfg.Postgres.Database, "SETTLD_POSTGRES_DATABASE")
	setStr(&cfg.Postgres.User, "SETTLD_POSTGRES_USER")
	setStr(&cfg.Postgres.Password, "SETTLD_POSTGRES_PASSWORD")
	setStr(&cfg.Postgres.SSLMode, "SETTLD_POSTGRES_SSLMODE")
	setInt(&cfg.Postgres.PoolMaxConns, "SETTLD_POSTGRES_POOL_MAX_CONNS")
	setInt(&cfg.Postgres.PoolMinConns, "SETTLD_POSTGRES_POOL_MIN_CONNS")
	setBool(&cfg.Postgres.RunMigrations, "SETTLD_POSTGRES_RUN_MIGRATIONS")

	// ── Redis ──
	setBool(&cfg.Redis.Enabled, "SETTLD_REDIS_ENABLED")
	setStr(&cfg.Redis.Addr, "SETTLD_REDIS_ADDR")
	setStr(&cfg.Redis.Password, "SETTLD_REDIS_PASSWORD")
	setInt(&cfg.Redis.DB, "SETTLD_REDIS_DB")
	setInt(&cfg.Redis.PoolSize, "SETTLD_REDIS_POOL_SIZE")
	setInt(&cfg.Redis.MaxRetries, "SETTLD_REDIS_MAX_RETRIES")
	setBool(&cfg.Redis.TLSEnabled, "SETTLD_REDIS_TLS_ENABLED")

	// ── S3 ──
	setBool(&cfg.S3.Enabled, "SETTLD_S3_ENABLED")
	setStr(&cfg.S3.Endpoint, "SETTLD_S3_ENDPOINT")
	setStr(&cfg.S3.Region, "SETTLD_S3_REGION")
	setStr(&cfg.S3.Bucket, "SETTLD_S3_BUCKET")
	setStr(&cfg.S3.AccessKey, "SETTLD_S3_ACCESS_KEY")
	setStr(&cfg.S3.SecretKey, "SETTLD_S3_SECRET_KEY")
	setBool(&cfg.S3.UseSSL, "SETTLD_S3_USE_SSL")
	setBool(&cfg.S3.ForcePathStyle, "SETTLD_S3_FORCE_PATH_STYLE")

	// ── Oracle ──
	setStr(&cfg.Oracle.ComputeURL, "SETTLD_ORACLE_COMPUTE_URL")
	setStr(&cfg.Oracle.ComputeAPIKey, "SETTLD_ORACLE_COMPUTE_API_KEY")
	setStr(&cfg.Oracle.AttestURL, "SETTLD_ORACLE_ATTEST_URL")
	setStr(&cfg.Oracle.CodeRepo, "SETTLD_ORACLE_CODE_REPO")
	setStr(&cfg.Oracle.CodeCommit, "SETTLD_ORACLE_CODE_COMMIT")
	setStr(&cfg.Oracle.CodeBuildTarget, "SETTLD_ORACLE_CODE_BUILD_TARGET")
	setStr(&cfg.Oracle.DataSourceHost, "SETTLD_ORACLE_DATA_SOURCE_HOST")
	setStr(&cfg.Oracle.CallbackBaseURL, "SETTLD_ORACLE_CALLBACK_BASE_URL")
	setStr(&cfg.Oracle.AttestorAddr, "SETTLD_ORACLE_ATTESTOR_ADDR")
	setDuration(&cfg.Oracle.PendingTTL, "SETTLD_ORACLE_PENDING_TTL")

	// ── Engine ──
	setFloat64(&cfg.Engine.VoidBelowConfidence, "SETTLD_ENGINE_VOID_BELOW_CONFIDENCE")
	setInt(&cfg.Engine.MinTokenLen, "SETTLD_ENGINE_MIN_TOKEN_LEN")

	// ── Notify ──
	setStr(&cfg.Notify.TelegramToken, "SETTLD_NOTIFY_TELEGRAM_TOKEN")
	setStr(&cfg.Notify.TelegramChatID, "SETTLD_NOTIFY_TELEGRAM_CHAT_ID")
	setStr(&cfg.Notify.DiscordWebhookURL, "SETTLD_NOTIFY_DISCORD_WEBHOOK_URL")
	setStringSlice(&cfg.Notify.Events, "SETTLD_NOTIFY_EVENTS")

	// ── Top-level ──
	setStr(&cfg.Storage, "SETTLD_STORAGE")
	setStr(&cfg.LogLevel, "SETTLD_LOG_LEVEL")
}

// ---------------------------------------------------------------------------
// Typed env-var helpers. Each only mutates the target when the environment
// variable is present and non-empty.
// ---------------------------------------------------------------------------

func setStr(dst *string, key string) {
	if v := os.Getenv(key); v != "" {
		*dst = v
	}
}

func setInt(dst *int, key string) {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			*dst = n
		}
	}
}

func setFloat64(dst *float64, key string) {
	if v := os.Getenv(key); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			*dst = f
		}
	}
}

func setBool(dst *bool, key string) {
	if v := os.Getenv(key); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			*dst = b
		}
	}
}

func setDuration(dst *duration, key string) {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			dst.Duration = d
		}
	}
}

func setStringSlice(dst *[]string, key string) {
	if v := os.Getenv(key); v != "" {
		parts := strings.Split(v, ",")
		cleaned := make([]string, 0, len(parts))
		for _, p := range parts {
			p = strings.TrimSpace(p)
			if p != "" {
				cleaned = append(cleaned, p)
			}
		}
		if len(cleaned) > 0 {
			*dst = cleaned
		}
	}
}
