// Package config defines the top-level configuration for the coinledger
// daemon and provides validation helpers.
package config

import (
	"fmt"
	"strings"
	"time"
)

// Config is the root configuration structure. Fields are populated from a TOML
// file and then optionally overridden by COINLEDGER_* environment variables.
type Config struct {
	Database Postgres      `toml:"database"`
	Redis    RedisConfig   `toml:"redis"`
	Oracle   OracleConfig  `toml:"oracle"`
	Staking  StakingConfig `toml:"staking"`
	Friends  FriendsConfig `toml:"friends"`
	Archive  ArchiveConfig `toml:"archive"`
	Server   ServerConfig  `toml:"server"`
	Mode     string        `toml:"mode"`
	LogLevel string        `toml:"log_level"`
}

// Postgres holds PostgreSQL connection parameters.
type Postgres struct {
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

// RedisConfig holds Redis connection parameters.
type RedisConfig struct {
	Addr       string `toml:"addr"`
	Password   string `toml:"password"`
	DB         int    `toml:"db"`
	PoolSize   int    `toml:"pool_size"`
	MaxRetries int    `toml:"max_retries"`
	TLSEnabled bool   `toml:"tls_enabled"`
}

// OracleConfig holds the price oracle endpoint and caching parameters.
type OracleConfig struct {
	BaseURL      string   `toml:"base_url"`
	FiatCurrency string   `toml:"fiat_currency"`
	Timeout      duration `toml:"timeout"`
	CacheTTL     duration `toml:"cache_ttl"`
}

// StakingConfig holds the staking allow-list and default rate.
type StakingConfig struct {
	// Assets is the allow-list of stakeable assets.
	Assets []string `toml:"assets"`
	// DefaultAPY applies when a stake request does not specify a rate.
	DefaultAPY float64 `toml:"default_apy"`
}

// FriendsConfig holds the friend-request expiry parameters.
type FriendsConfig struct {
	// RequestTTL is how long a pending request stays open before the sweep
	// declines it.
	RequestTTL duration `toml:"request_ttl"`
	// SweepInterval is how often the expiry sweep runs.
	SweepInterval duration `toml:"sweep_interval"`
}

// ArchiveConfig holds transaction-log archival parameters. Archival is off
// unless Enabled is set and a bucket is configured.
type ArchiveConfig struct {
	Enabled        bool     `toml:"enabled"`
	Endpoint       string   `toml:"endpoint"`
	Region         string   `toml:"region"`
	Bucket         string   `toml:"bucket"`
	AccessKey      string   `toml:"access_key"`
	SecretKey      string   `toml:"secret_key"`
	ForcePathStyle bool     `toml:"force_path_style"`
	RetentionDays  int      `toml:"retention_days"`
	Interval       duration `toml:"interval"`
	BatchSize      int      `toml:"batch_size"`
}

// ServerConfig holds HTTP server parameters.
type ServerConfig struct {
	Port        int      `toml:"port"`
	CORSOrigins []string `toml:"cors_origins"`
	APIKey      string   `toml:"api_key"`
}

// duration is a wrapper around time.Duration that supports TOML string decoding
// (e.g. "5m", "30s").
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

// Defaults returns the built-in configuration that a TOML file is merged on
// top of.
func Defaults() Config {
	return Config{
		Database: Postgres{
			Host:          "localhost",
			Port:          5432,
			Database:      "coinledger",
			User:          "postgres",
			SSLMode:       "disable",
			PoolMaxConns:  10,
			PoolMinConns:  2,
			RunMigrations: true,
		},
		Redis: RedisConfig{
			Addr:       "localhost:6379",
			DB:         0,
			PoolSize:   20,
			MaxRetries: 3,
		},
		Oracle: OracleConfig{
			BaseURL:      "https://api.nekosunevr.co.uk/v5/cryptoapi/nekogeko/prices",
			FiatCurrency: "usd",
			Timeout:      duration{10 * time.Second},
			CacheTTL:     duration{1 * time.Minute},
		},
		Staking: StakingConfig{
			Assets: []string{
				"solana",
				"zenzo",
				"pivx",
				"stakecube",
				"ethereum",
				"flits",
				"polygon-ecosystem-token",
			},
			DefaultAPY: 0.01,
		},
		Friends: FriendsConfig{
			RequestTTL:    duration{1 * time.Hour},
			SweepInterval: duration{5 * time.Minute},
		},
		Archive: ArchiveConfig{
			Endpoint:       "http://localhost:9000",
			Region:         "us-east-1",
			Bucket:         "coinledger-archive",
			ForcePathStyle: true,
			RetentionDays:  90,
			Interval:       duration{24 * time.Hour},
			BatchSize:      5000,
		},
		Server: ServerConfig{
			Port: 8080,
		},
		Mode:     "serve",
		LogLevel: "info",
	}
}

var validModes = map[string]bool{
	"serve": true,
	"demo":  true,
}

var validLogLevels = map[string]bool{
	"debug": true,
	"info":  true,
	"warn":  true,
	"error": true,
}

// Validate checks the configuration for inconsistencies and returns a single
// error listing everything that is wrong.
func (c *Config) Validate() error {
	var errs []string

	if !validModes[strings.ToLower(c.Mode)] {
		errs = append(errs, fmt.Sprintf("unknown mode %q (valid: serve, demo)", c.Mode))
	}
	if !validLogLevels[strings.ToLower(c.LogLevel)] {
		errs = append(errs, fmt.Sprintf("unknown log_level %q (valid: debug, info, warn, error)", c.LogLevel))
	}

	if c.Database.DSN == "" && c.Database.Host == "" {
		errs = append(errs, "database: either dsn or host must be set")
	}
	if c.Redis.Addr == "" {
		errs = append(errs, "redis: addr must not be empty")
	}

	if c.Oracle.BaseURL == "" {
		errs = append(errs, "oracle: base_url must not be empty")
	}
	if c.Oracle.FiatCurrency == "" {
		errs = append(errs, "oracle: fiat_currency must not be empty")
	}

	if len(c.Staking.Assets) == 0 {
		errs = append(errs, "staking: at least one stakeable asset must be listed")
	}
	if c.Staking.DefaultAPY < 0 {
		errs = append(errs, "staking: default_apy must not be negative")
	}

	if c.Friends.RequestTTL.Duration <= 0 {
		errs = append(errs, "friends: request_ttl must be positive")
	}
	if c.Friends.SweepInterval.Duration <= 0 {
		errs = append(errs, "friends: sweep_interval must be positive")
	}

	if c.Archive.Enabled {
		if c.Archive.Bucket == "" {
			errs = append(errs, "archive: bucket must be set when archival is enabled")
		}
		if c.Archive.RetentionDays <= 0 {
			errs = append(errs, "archive: retention_days must be positive")
		}
		if c.Archive.BatchSize <= 0 {
			errs = append(errs, "archive: batch_size must be positive")
		}
	}

	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		errs = append(errs, fmt.Sprintf("server: port %d out of range", c.Server.Port))
	}

	if len(errs) > 0 {
		return fmt.Errorf("config: %s", strings.Join(errs, "; "))
	}
	return nil
}

// StakeableAssets returns the allow-list as a set for membership checks.
func (c *Config) StakeableAssets() map[string]bool {
	set := make(map[string]bool, len(c.Staking.Assets))
	for _, a := range c.Staking.Assets {
		set[strings.ToLower(strings.TrimSpace(a))] = true
	}
	return set
}
