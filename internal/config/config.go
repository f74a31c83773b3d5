// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Bagbot Contributors

// Package config loads authd configuration from an optional YAML file and
// command-line flags. Flags that were set win over the file; flags that
// were not set only fill keys the file leaves empty.
package config

import (
	"fmt"
	"os"
	"slices"
	"strings"
	"time"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/providers/posflag"
	"github.com/knadh/koanf/v2"
	"github.com/samber/oops"
	"github.com/spf13/pflag"
)

// Storage backends.
const (
	BackendMemory   = "memory"
	BackendPostgres = "postgres"
)

// Token modes.
const (
	TokensOpaque = "opaque"
	TokensSigned = "signed"
)

// Config is the full authd configuration.
type Config struct {
	HTTP    HTTPConfig    `koanf:"http"`
	Metrics MetricsConfig `koanf:"metrics"`
	Log     LogConfig     `koanf:"log"`
	Storage StorageConfig `koanf:"storage"`
	Redis   RedisConfig   `koanf:"redis"`
	Tokens  TokensConfig  `koanf:"tokens"`
	Hasher  HasherConfig  `koanf:"hasher"`
	Sweeper SweeperConfig `koanf:"sweeper"`
	Seed    SeedConfig    `koanf:"seed"`
}

// HTTPConfig configures the API listener.
type HTTPConfig struct {
	Addr           string        `koanf:"addr"`
	RequestTimeout time.Duration `koanf:"request_timeout"`
}

// MetricsConfig configures the observability listener. Empty Addr disables it.
type MetricsConfig struct {
	Addr string `koanf:"addr"`
}

// LogConfig selects the log format.
type LogConfig struct {
	Format string `koanf:"format"`
}

// StorageConfig selects where accounts live.
type StorageConfig struct {
	Backend      string `koanf:"backend"`
	DatabaseURL  string `koanf:"database_url"`
	SnapshotPath string `koanf:"snapshot_path"`
	// SnapshotInterval is how often a changed memory backend is saved to
	// SnapshotPath while serving. It is also saved on shutdown.
	SnapshotInterval time.Duration `koanf:"snapshot_interval"`
}

// RedisConfig addresses Redis. When Addr is set, reset tokens and sessions
// are kept in Redis instead of the account backend.
type RedisConfig struct {
	Addr     string `koanf:"addr"`
	Password string `koanf:"password"`
	DB       int    `koanf:"db"`
}

// TokensConfig configures session and reset tokens.
type TokensConfig struct {
	Mode       string        `koanf:"mode"`
	SigningKey string        `koanf:"signing_key"`
	AccessTTL  time.Duration `koanf:"access_ttl"`
	RefreshTTL time.Duration `koanf:"refresh_ttl"`
	ResetTTL   time.Duration `koanf:"reset_ttl"`
}

// HasherConfig holds the argon2id cost parameters.
type HasherConfig struct {
	MemoryKiB   uint32 `koanf:"memory_kib"`
	Iterations  uint32 `koanf:"iterations"`
	Parallelism uint8  `koanf:"parallelism"`
}

// SweeperConfig configures expired-entry cleanup.
type SweeperConfig struct {
	Interval time.Duration `koanf:"interval"`
}

// SeedConfig lists accounts created on `authd seed` and, with the memory
// backend, at startup.
type SeedConfig struct {
	Accounts []SeedAccount `koanf:"accounts"`
}

// SeedAccount is one seeded account.
type SeedAccount struct {
	Email    string `koanf:"email"`
	Name     string `koanf:"name"`
	Password string `koanf:"password"`
	Role     string `koanf:"role"`
}

// Defaults.
const (
	DefaultHTTPAddr         = "127.0.0.1:8000"
	DefaultMetricsAddr      = "127.0.0.1:9100"
	DefaultLogFormat        = "json"
	DefaultRequestTimeout   = 10 * time.Second
	DefaultAccessTTL        = time.Hour
	DefaultRefreshTTL       = 720 * time.Hour
	DefaultResetTTL         = time.Hour
	DefaultSweepInterval    = 5 * time.Minute
	DefaultSnapshotInterval = time.Minute
)

// flagKeys maps flag names to config keys.
var flagKeys = map[string]string{
	"http-addr":         "http.addr",
	"request-timeout":   "http.request_timeout",
	"metrics-addr":      "metrics.addr",
	"log-format":        "log.format",
	"storage":           "storage.backend",
	"database-url":      "storage.database_url",
	"snapshot-path":     "storage.snapshot_path",
	"snapshot-interval": "storage.snapshot_interval",
	"redis-addr":        "redis.addr",
	"redis-password":    "redis.password",
	"redis-db":          "redis.db",
	"token-mode":        "tokens.mode",
	"signing-key":       "tokens.signing_key",
	"access-ttl":        "tokens.access_ttl",
	"refresh-ttl":       "tokens.refresh_ttl",
	"reset-ttl":         "tokens.reset_ttl",
	"hash-memory-kib":   "hasher.memory_kib",
	"hash-iterations":   "hasher.iterations",
	"hash-parallelism":  "hasher.parallelism",
	"sweep-interval":    "sweeper.interval",
}

// RegisterFlags adds every configuration flag, with its default, to fs.
func RegisterFlags(fs *pflag.FlagSet) {
	fs.String("http-addr", DefaultHTTPAddr, "HTTP API listen address")
	fs.Duration("request-timeout", DefaultRequestTimeout, "per-request timeout")
	fs.String("metrics-addr", DefaultMetricsAddr, "metrics/health HTTP address (empty = disabled)")
	fs.String("log-format", DefaultLogFormat, "log format (json or text)")
	fs.String("storage", BackendMemory, "account storage backend (memory or postgres)")
	fs.String("database-url", "", "PostgreSQL URL (default: $DATABASE_URL)")
	fs.String("snapshot-path", "", "YAML file persisting memory-backend accounts (empty = none)")
	fs.Duration("snapshot-interval", DefaultSnapshotInterval, "how often changed memory-backend accounts are saved")
	fs.String("redis-addr", "", "Redis address for reset tokens and sessions (empty = use storage backend)")
	fs.String("redis-password", "", "Redis password")
	fs.Int("redis-db", 0, "Redis database number")
	fs.String("token-mode", TokensOpaque, "session token mode (opaque or signed)")
	fs.String("signing-key", "", "HMAC key for signed tokens (at least 32 bytes)")
	fs.Duration("access-ttl", DefaultAccessTTL, "access token lifetime")
	fs.Duration("refresh-ttl", DefaultRefreshTTL, "refresh token lifetime")
	fs.Duration("reset-ttl", DefaultResetTTL, "password reset token lifetime")
	fs.Uint32("hash-memory-kib", 64*1024, "argon2id memory cost in KiB")
	fs.Uint32("hash-iterations", 1, "argon2id iterations")
	fs.Uint8("hash-parallelism", 4, "argon2id parallelism")
	fs.Duration("sweep-interval", DefaultSweepInterval, "expired token sweep interval")
}

// Load reads path (if non-empty) and then fs. DATABASE_URL fills
// storage.database_url when neither source sets it.
func Load(path string, fs *pflag.FlagSet) (*Config, error) {
	k := koanf.New(".")

	if path != "" {
		if err := k.Load(file.Provider(path), yaml.Parser()); err != nil {
			return nil, oops.Code("CONFIG_LOAD_FAILED").With("path", path).Wrap(err)
		}
	}

	if fs != nil {
		provider := posflag.ProviderWithFlag(fs, ".", k, func(f *pflag.Flag) (string, any) {
			key, ok := flagKeys[f.Name]
			if !ok {
				return "", nil
			}
			return key, posflag.FlagVal(fs, f)
		})
		if err := k.Load(provider, nil); err != nil {
			return nil, oops.Code("CONFIG_LOAD_FAILED").With("source", "flags").Wrap(err)
		}
	}

	var cfg Config
	if err := k.UnmarshalWithConf("", &cfg, koanf.UnmarshalConf{Tag: "koanf"}); err != nil {
		return nil, oops.Code("CONFIG_LOAD_FAILED").With("operation", "unmarshal").Wrap(err)
	}

	if cfg.Storage.DatabaseURL == "" {
		cfg.Storage.DatabaseURL = os.Getenv("DATABASE_URL")
	}
	cfg.applyDefaults()
	return &cfg, nil
}

// applyDefaults fills zero values left when no flag set was supplied.
func (c *Config) applyDefaults() {
	if c.HTTP.Addr == "" {
		c.HTTP.Addr = DefaultHTTPAddr
	}
	if c.HTTP.RequestTimeout == 0 {
		c.HTTP.RequestTimeout = DefaultRequestTimeout
	}
	if c.Log.Format == "" {
		c.Log.Format = DefaultLogFormat
	}
	if c.Storage.Backend == "" {
		c.Storage.Backend = BackendMemory
	}
	if c.Tokens.Mode == "" {
		c.Tokens.Mode = TokensOpaque
	}
	if c.Tokens.AccessTTL == 0 {
		c.Tokens.AccessTTL = DefaultAccessTTL
	}
	if c.Tokens.RefreshTTL == 0 {
		c.Tokens.RefreshTTL = DefaultRefreshTTL
	}
	if c.Tokens.ResetTTL == 0 {
		c.Tokens.ResetTTL = DefaultResetTTL
	}
	if c.Sweeper.Interval == 0 {
		c.Sweeper.Interval = DefaultSweepInterval
	}
	if c.Storage.SnapshotInterval == 0 {
		c.Storage.SnapshotInterval = DefaultSnapshotInterval
	}
}

// Validate checks that the configuration is usable.
func (c *Config) Validate() error {
	var problems []string

	if c.HTTP.Addr == "" {
		problems = append(problems, "http.addr is required")
	}
	if c.Log.Format != "json" && c.Log.Format != "text" {
		problems = append(problems, fmt.Sprintf("log.format must be 'json' or 'text', got %q", c.Log.Format))
	}
	switch c.Storage.Backend {
	case BackendMemory:
	case BackendPostgres:
		if c.Storage.DatabaseURL == "" {
			problems = append(problems, "storage.database_url (or DATABASE_URL) is required for the postgres backend")
		}
	default:
		problems = append(problems, fmt.Sprintf("storage.backend must be 'memory' or 'postgres', got %q", c.Storage.Backend))
	}
	switch c.Tokens.Mode {
	case TokensOpaque:
	case TokensSigned:
		if len(c.Tokens.SigningKey) < 32 {
			problems = append(problems, "tokens.signing_key must be at least 32 bytes in signed mode")
		}
	default:
		problems = append(problems, fmt.Sprintf("tokens.mode must be 'opaque' or 'signed', got %q", c.Tokens.Mode))
	}
	for name, ttl := range map[string]time.Duration{
		"tokens.access_ttl":         c.Tokens.AccessTTL,
		"tokens.refresh_ttl":        c.Tokens.RefreshTTL,
		"tokens.reset_ttl":          c.Tokens.ResetTTL,
		"http.request_timeout":      c.HTTP.RequestTimeout,
		"sweeper.interval":          c.Sweeper.Interval,
		"storage.snapshot_interval": c.Storage.SnapshotInterval,
	} {
		if ttl <= 0 {
			problems = append(problems, fmt.Sprintf("%s must be positive", name))
		}
	}
	for i, a := range c.Seed.Accounts {
		if a.Email == "" || a.Password == "" {
			problems = append(problems, fmt.Sprintf("seed.accounts[%d] needs email and password", i))
		}
	}

	if len(problems) > 0 {
		// Map iteration order varies; keep the message stable.
		slices.Sort(problems)
		return oops.Code("CONFIG_INVALID").
			With("problems", problems).
			Errorf("invalid configuration: %s", strings.Join(problems, "; "))
	}
	return nil
}
