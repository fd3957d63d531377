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
// built-in defaults, applies COINLEDGER_* environment variable overrides, and
// returns the final Config. The returned Config has NOT been validated; the
// caller should invoke Config.Validate() after Load.
func Load(path string) (*Config, error) {
	cfg := Defaults()

	if path != "" {
		if _, err := toml.DecodeFile(path, &cfg); err != nil {
			return nil, err
		}
	}

	// Load .env file if present (silently ignore if missing).
	_ = godotenv.Load()

	applyEnvOverrides(&cfg)

	return &cfg, nil
}

// applyEnvOverrides reads well-known COINLEDGER_* environment variables and
// overwrites the corresponding Config fields when a variable is set (i.e. not
// empty). This lets operators inject secrets at deploy time without touching
// the TOML file.
func applyEnvOverrides(cfg *Config) {
	// ── Database ──
	setStr(&cfg.Database.DSN, "COINLEDGER_DATABASE_DSN")
	setStr(&cfg.Database.Host, "COINLEDGER_DATABASE_HOST")
	setInt(&cfg.Database.Port, "COINLEDGER_DATABASE_PORT")
	setStr(&cfg.Database.Database, "COINLEDGER_DATABASE_NAME")
	setStr(&cfg.Database.User, "COINLEDGER_DATABASE_USER")
	setStr(&cfg.Database.Password, "COINLEDGER_DATABASE_PASSWORD")
	setStr(&cfg.Database.SSLMode, "COINLEDGER_DATABASE_SSLMODE")
	setInt(&cfg.Database.PoolMaxConns, "COINLEDGER_DATABASE_POOL_MAX_CONNS")
	setInt(&cfg.Database.PoolMinConns, "COINLEDGER_DATABASE_POOL_MIN_CONNS")
	setBool(&cfg.Database.RunMigrations, "COINLEDGER_DATABASE_RUN_MIGRATIONS")

	// ── Redis ──
	setStr(&cfg.Redis.Addr, "COINLEDGER_REDIS_ADDR")
	setStr(&cfg.Redis.Password, "COINLEDGER_REDIS_PASSWORD")
	setInt(&cfg.Redis.DB, "COINLEDGER_REDIS_DB")
	setInt(&cfg.Redis.PoolSize, "COINLEDGER_REDIS_POOL_SIZE")
	setInt(&cfg.Redis.MaxRetries, "COINLEDGER_REDIS_MAX_RETRIES")
	setBool(&cfg.Redis.TLSEnabled, "COINLEDGER_REDIS_TLS_ENABLED")

	// ── Oracle ──
	setStr(&cfg.Oracle.BaseURL, "COINLEDGER_ORACLE_BASE_URL")
	setStr(&cfg.Oracle.FiatCurrency, "COINLEDGER_ORACLE_FIAT_CURRENCY")
	setDuration(&cfg.Oracle.Timeout, "COINLEDGER_ORACLE_TIMEOUT")
	setDuration(&cfg.Oracle.CacheTTL, "COINLEDGER_ORACLE_CACHE_TTL")

	// ── Staking ──
	setStringSlice(&cfg.Staking.Assets, "COINLEDGER_STAKING_ASSETS")
	setFloat64(&cfg.Staking.DefaultAPY, "COINLEDGER_STAKING_DEFAULT_APY")

	// ── Friends ──
	setDuration(&cfg.Friends.RequestTTL, "COINLEDGER_FRIENDS_REQUEST_TTL")
	setDuration(&cfg.Friends.SweepInterval, "COINLEDGER_FRIENDS_SWEEP_INTERVAL")

	// ── Archive ──
	setBool(&cfg.Archive.Enabled, "COINLEDGER_ARCHIVE_ENABLED")
	setStr(&cfg.Archive.Endpoint, "COINLEDGER_ARCHIVE_ENDPOINT")
	setStr(&cfg.Archive.Region, "COINLEDGER_ARCHIVE_REGION")
	setStr(&cfg.Archive.Bucket, "COINLEDGER_ARCHIVE_BUCKET")
	setStr(&cfg.Archive.AccessKey, "COINLEDGER_ARCHIVE_ACCESS_KEY")
	setStr(&cfg.Archive.SecretKey, "COINLEDGER_ARCHIVE_SECRET_KEY")
	setBool(&cfg.Archive.ForcePathStyle, "COINLEDGER_ARCHIVE_FORCE_PATH_STYLE")
	setInt(&cfg.Archive.RetentionDays, "COINLEDGER_ARCHIVE_RETENTION_DAYS")
	setDuration(&cfg.Archive.Interval, "COINLEDGER_ARCHIVE_INTERVAL")
	setInt(&cfg.Archive.BatchSize, "COINLEDGER_ARCHIVE_BATCH_SIZE")

	// ── Server ──
	setInt(&cfg.Server.Port, "COINLEDGER_SERVER_PORT")
	setStringSlice(&cfg.Server.CORSOrigins, "COINLEDGER_SERVER_CORS_ORIGINS")
	setStr(&cfg.Server.APIKey, "COINLEDGER_SERVER_API_KEY")

	// ── Top-level ──
	setStr(&cfg.Mode, "COINLEDGER_MODE")
	setStr(&cfg.LogLevel, "COINLEDGER_LOG_LEVEL")
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
