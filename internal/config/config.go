// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Groupomania Contributors

// Package config loads service configuration. Sources are layered, later
// ones winning: built-in defaults, an optional YAML file, environment
// variables (after an optional .env file) and explicitly set command-line
// flags.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"time"

	"github.com/joho/godotenv"
	"github.com/knadh/koanf/maps"
	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/providers/posflag"
	"github.com/knadh/koanf/v2"
	"github.com/samber/oops"
	"github.com/spf13/pflag"
)

// Session store backends.
const (
	SessionStorePostgres = "postgres"
	SessionStoreRedis    = "redis"
)

// Config is the complete service configuration.
type Config struct {
	HTTP     HTTPConfig     `koanf:"http"`
	Metrics  MetricsConfig  `koanf:"metrics"`
	Log      LogConfig      `koanf:"log"`
	Database DatabaseConfig `koanf:"database"`
	Redis    RedisConfig    `koanf:"redis"`
	Sessions SessionsConfig `koanf:"sessions"`
	Tokens   TokensConfig   `koanf:"tokens"`
	Admin    AdminConfig    `koanf:"admin"`
	Hash     HashConfig     `koanf:"hash"`
}

// HTTPConfig configures the public API listener.
type HTTPConfig struct {
	Addr            string        `koanf:"addr"`
	BodyLimit       int           `koanf:"body_limit"`
	ShutdownTimeout time.Duration `koanf:"shutdown_timeout"`
}

// MetricsConfig configures the observability listener. An empty address
// disables it.
type MetricsConfig struct {
	Addr string `koanf:"addr"`
}

// LogConfig configures the logger.
type LogConfig struct {
	Format string `koanf:"format"`
	Level  string `koanf:"level"`
}

// DatabaseConfig configures PostgreSQL.
type DatabaseConfig struct {
	URL             string        `koanf:"url"`
	AutoMigrate     bool          `koanf:"auto_migrate"`
	ConnectAttempts uint64        `koanf:"connect_attempts"`
	ConnectBackoff  time.Duration `koanf:"connect_backoff"`
}

// RedisConfig configures the Redis session backend.
type RedisConfig struct {
	Addr     string `koanf:"addr"`
	Password string `koanf:"password"`
	DB       int    `koanf:"db"`
	Prefix   string `koanf:"prefix"`
}

// SessionsConfig selects the session store.
type SessionsConfig struct {
	Store string `koanf:"store"`
}

// TokensConfig holds the signing secrets. Token lifetimes are fixed by the
// auth package.
type TokensConfig struct {
	AccessSecret  string `koanf:"access_secret"`
	RefreshSecret string `koanf:"refresh_secret"`
}

// AdminConfig is the credential pair that grants the admin role at signup.
type AdminConfig struct {
	Email    string `koanf:"email"`
	Password string `koanf:"password"`
}

// HashConfig tunes password hashing. The bcrypt work factor is fixed; only
// the number of concurrent hashes is tunable.
type HashConfig struct {
	Concurrency int `koanf:"concurrency"`
}

// defaults are flattened koanf keys.
var defaults = map[string]any{
	"http.addr":                 ":3000",
	"http.body_limit":           1 << 20,
	"http.shutdown_timeout":     "10s",
	"metrics.addr":              "127.0.0.1:9100",
	"log.format":                "json",
	"log.level":                 "info",
	"database.auto_migrate":     false,
	"database.connect_attempts": 5,
	"database.connect_backoff":  "200ms",
	"redis.addr":                "",
	"redis.db":                  0,
	"redis.prefix":              "groupomania",
	"sessions.store":            SessionStorePostgres,
	"hash.concurrency":          0,
}

// envKeys maps environment variables to koanf keys. Unlisted variables are
// ignored.
var envKeys = map[string]string{
	"DATABASE_URL":                 "database.url",
	"ACCESS_TOKEN_SECRET":          "tokens.access_secret",
	"REFRESH_TOKEN_SECRET":         "tokens.refresh_secret",
	"ADMIN_EMAIL":                  "admin.email",
	"ADMIN_PASSWORD":               "admin.password",
	"REDIS_ADDR":                   "redis.addr",
	"REDIS_PASSWORD":               "redis.password",
	"REDIS_DB":                     "redis.db",
	"GROUPOMANIA_HTTP_ADDR":        "http.addr",
	"GROUPOMANIA_METRICS_ADDR":     "metrics.addr",
	"GROUPOMANIA_LOG_FORMAT":       "log.format",
	"GROUPOMANIA_LOG_LEVEL":        "log.level",
	"GROUPOMANIA_SESSION_STORE":    "sessions.store",
	"GROUPOMANIA_HASH_CONCURRENCY": "hash.concurrency",
	"GROUPOMANIA_AUTO_MIGRATE":     "database.auto_migrate",
}

// FlagKeys maps command-line flag names to koanf keys. Commands register
// the flags they expose; Load only applies flags the user set.
var FlagKeys = map[string]string{
	"http-addr":        "http.addr",
	"metrics-addr":     "metrics.addr",
	"log-format":       "log.format",
	"log-level":        "log.level",
	"database-url":     "database.url",
	"session-store":    "sessions.store",
	"auto-migrate":     "database.auto_migrate",
	"hash-concurrency": "hash.concurrency",
}

// LoadOptions selects the optional sources.
type LoadOptions struct {
	// File is a YAML config path. Empty skips the file layer.
	File string
	// EnvFile is loaded into the process environment without overriding
	// variables already set. A missing file is not an error.
	EnvFile string
	// Flags is the command's flag set. Nil skips the flag layer.
	Flags *pflag.FlagSet
}

// defaultsProvider feeds the defaults map to koanf.
type defaultsProvider map[string]any

func (p defaultsProvider) ReadBytes() ([]byte, error) {
	return nil, errors.New("defaults provider does not support ReadBytes")
}

func (p defaultsProvider) Read() (map[string]any, error) {
	return maps.Unflatten(p, "."), nil
}

// Load builds a Config from the layered sources. The result is not
// validated; call Validate before use.
func Load(opts LoadOptions) (*Config, error) {
	k := koanf.New(".")

	if err := k.Load(defaultsProvider(defaults), nil); err != nil {
		return nil, oops.Code("CONFIG_LOAD_FAILED").With("source", "defaults").Wrap(err)
	}

	if opts.File != "" {
		if err := k.Load(file.Provider(opts.File), yaml.Parser()); err != nil {
			return nil, oops.Code("CONFIG_LOAD_FAILED").
				With("source", "file").
				With("path", opts.File).
				Wrap(err)
		}
	}

	if opts.EnvFile != "" {
		if err := godotenv.Load(opts.EnvFile); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return nil, oops.Code("CONFIG_LOAD_FAILED").
				With("source", "dotenv").
				With("path", opts.EnvFile).
				Wrap(err)
		}
	}

	envProvider := env.ProviderWithValue("", ".", func(name, value string) (string, any) {
		key, ok := envKeys[name]
		if !ok || value == "" {
			return "", nil
		}
		return key, value
	})
	if err := k.Load(envProvider, nil); err != nil {
		return nil, oops.Code("CONFIG_LOAD_FAILED").With("source", "env").Wrap(err)
	}

	if opts.Flags != nil {
		flagProvider := posflag.ProviderWithFlag(opts.Flags, ".", k, func(f *pflag.Flag) (string, any) {
			key, ok := FlagKeys[f.Name]
			if !ok || !f.Changed {
				return "", nil
			}
			return key, posflag.FlagVal(opts.Flags, f)
		})
		if err := k.Load(flagProvider, nil); err != nil {
			return nil, oops.Code("CONFIG_LOAD_FAILED").With("source", "flags").Wrap(err)
		}
	}

	var cfg Config
	if err := k.UnmarshalWithConf("", &cfg, koanf.UnmarshalConf{Tag: "koanf"}); err != nil {
		return nil, oops.Code("CONFIG_INVALID").With("operation", "unmarshal config").Wrap(err)
	}
	return &cfg, nil
}

// Validate reports the first problem that would prevent the service from
// starting.
func (c *Config) Validate() error {
	invalid := func(field, format string, args ...any) error {
		return oops.Code("CONFIG_INVALID").With("field", field).Errorf(format, args...)
	}

	switch {
	case c.Database.URL == "":
		return invalid("database.url", "DATABASE_URL is required")
	case c.Tokens.AccessSecret == "":
		return invalid("tokens.access_secret", "ACCESS_TOKEN_SECRET is required")
	case c.Tokens.RefreshSecret == "":
		return invalid("tokens.refresh_secret", "REFRESH_TOKEN_SECRET is required")
	case c.Tokens.AccessSecret == c.Tokens.RefreshSecret:
		return invalid("tokens.refresh_secret", "access and refresh secrets must differ")
	case c.Admin.Email == "" || c.Admin.Password == "":
		return invalid("admin", "ADMIN_EMAIL and ADMIN_PASSWORD are required")
	case c.Log.Format != "json" && c.Log.Format != "text":
		return invalid("log.format", "log format must be 'json' or 'text', got %q", c.Log.Format)
	case c.HTTP.Addr == "":
		return invalid("http.addr", "http address is required")
	case c.Hash.Concurrency < 0:
		return invalid("hash.concurrency", "hash concurrency cannot be negative")
	}

	switch c.Sessions.Store {
	case SessionStorePostgres:
	case SessionStoreRedis:
		if c.Redis.Addr == "" {
			return invalid("redis.addr", "REDIS_ADDR is required when the session store is redis")
		}
	default:
		return invalid("sessions.store", "session store must be %q or %q, got %q",
			SessionStorePostgres, SessionStoreRedis, c.Sessions.Store)
	}
	return nil
}

// LogValue renders the config for logs with secrets masked.
func (c *Config) LogValue() slog.Value {
	return slog.GroupValue(
		slog.String("http_addr", c.HTTP.Addr),
		slog.String("metrics_addr", c.Metrics.Addr),
		slog.String("log_format", c.Log.Format),
		slog.String("session_store", c.Sessions.Store),
		slog.Bool("auto_migrate", c.Database.AutoMigrate),
		slog.Int("hash_concurrency", c.Hash.Concurrency),
		slog.String("admin_email", mask(c.Admin.Email)),
		slog.String("redis_addr", c.Redis.Addr),
	)
}

func mask(s string) string {
	if s == "" {
		return ""
	}
	return fmt.Sprintf("<%d chars>", len(s))
}
