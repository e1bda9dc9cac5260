package gamed

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/caarlos0/env/v11"
	"gopkg.in/yaml.v3"

	"savingsgame/observability/otel"
)

// EnvPrefix namespaces environment overrides.
const EnvPrefix = "GAMED_"

// Duration wraps time.Duration to support YAML and environment decoding.
type Duration struct {
	time.Duration
}

// UnmarshalYAML parses human readable duration strings.
func (d *Duration) UnmarshalYAML(value *yaml.Node) error {
	if value == nil {
		return nil
	}
	if value.Kind != yaml.ScalarNode {
		return fmt.Errorf("duration must be string")
	}
	return d.UnmarshalText([]byte(value.Value))
}

// UnmarshalText parses durations supplied through the environment.
func (d *Duration) UnmarshalText(text []byte) error {
	raw := strings.TrimSpace(string(text))
	if raw == "" {
		d.Duration = 0
		return nil
	}
	parsed, err := time.ParseDuration(raw)
	if err != nil {
		return fmt.Errorf("parse duration %q: %w", raw, err)
	}
	d.Duration = parsed
	return nil
}

// Config captures the runtime configuration for gamed.
type Config struct {
	ListenAddress string `yaml:"listen" env:"LISTEN"`
	Environment   string `yaml:"environment" env:"ENVIRONMENT"`
	// GameConfig points at the TOML game definition.
	GameConfig string `yaml:"game_config" env:"GAME_CONFIG"`
	// Persist stores the ledger under the game's DataDir instead of memory.
	Persist bool `yaml:"persist" env:"PERSIST"`
	// StorageBackend selects the persistent store: leveldb (a directory) or
	// bolt (a single file inside DataDir).
	StorageBackend  string          `yaml:"storage_backend" env:"STORAGE_BACKEND"`
	EventBuffer     int             `yaml:"event_buffer" env:"EVENT_BUFFER"`
	ShutdownTimeout Duration        `yaml:"shutdown_timeout" env:"SHUTDOWN_TIMEOUT"`
	Log             LogConfig       `yaml:"log" envPrefix:"LOG_"`
	Auth            AuthConfig      `yaml:"auth" envPrefix:"AUTH_"`
	RateLimit       RateLimitConfig `yaml:"rate_limit" envPrefix:"RATE_LIMIT_"`
	Dev             DevConfig       `yaml:"dev" envPrefix:"DEV_"`
	Archive         ArchiveConfig   `yaml:"archive" envPrefix:"ARCHIVE_"`
	Operator        OperatorConfig  `yaml:"operator" envPrefix:"OPERATOR_"`
	Telemetry       otel.Config     `yaml:"telemetry" envPrefix:"OTEL_"`
}

// LogConfig controls the structured logger.
type LogConfig struct {
	Level      string `yaml:"level" env:"LEVEL"`
	File       string `yaml:"file" env:"FILE"`
	MaxSizeMB  int    `yaml:"max_size_mb" env:"MAX_SIZE_MB"`
	MaxBackups int    `yaml:"max_backups" env:"MAX_BACKUPS"`
	MaxAgeDays int    `yaml:"max_age_days" env:"MAX_AGE_DAYS"`
}

// AuthConfig captures bearer token validation settings.
type AuthConfig struct {
	HMACSecret     string   `yaml:"hmac_secret" env:"HMAC_SECRET"`
	HMACSecretFile string   `yaml:"hmac_secret_file" env:"HMAC_SECRET_FILE"`
	Issuer         string   `yaml:"issuer" env:"ISSUER"`
	Audience       string   `yaml:"audience" env:"AUDIENCE"`
	ScopeClaim     string   `yaml:"scope_claim" env:"SCOPE_CLAIM"`
	AdminScope     string   `yaml:"admin_scope" env:"ADMIN_SCOPE"`
	ClockSkew      Duration `yaml:"clock_skew" env:"CLOCK_SKEW"`
}

// RateLimitConfig bounds request rates per caller.
type RateLimitConfig struct {
	RequestsPerMinute float64 `yaml:"requests_per_minute" env:"REQUESTS_PER_MINUTE"`
	Burst             int     `yaml:"burst" env:"BURST"`
}

// DevConfig enables conveniences for local play.
type DevConfig struct {
	Mint bool `yaml:"mint" env:"MINT"`
	// MintCap bounds a single faucet request in base units.
	MintCap string `yaml:"mint_cap" env:"MINT_CAP"`
}

// ArchiveConfig enables the SQL event archive. DSN is a SQLite path or a
// postgres:// URL; empty disables archiving.
type ArchiveConfig struct {
	DSN string `yaml:"dsn" env:"DSN"`
	// ExportDir receives periodic Parquet snapshots when ExportEvery is set.
	ExportDir   string   `yaml:"export_dir" env:"EXPORT_DIR"`
	ExportEvery Duration `yaml:"export_every" env:"EXPORT_EVERY"`
}

// OperatorConfig locates the passphrase for the game owner's keystore.
type OperatorConfig struct {
	PassphraseEnv  string `yaml:"passphrase_env" env:"PASSPHRASE_ENV"`
	PassphraseFile string `yaml:"passphrase_file" env:"PASSPHRASE_FILE"`
	// VerifyOnStart decrypts the keystore at boot and refuses to serve when
	// it does not control game.owner.
	VerifyOnStart bool `yaml:"verify_on_start" env:"VERIFY_ON_START"`
}

// Storage backends accepted by StorageBackend.
const (
	BackendLevelDB = "leveldb"
	BackendBolt    = "bolt"
)

// LoadConfig reads configuration from the supplied path and applies
// GAMED_-prefixed environment overrides. An empty path uses the environment
// and defaults only.
func LoadConfig(path string) (Config, error) {
	cfg := Config{}
	if strings.TrimSpace(path) != "" {
		file, err := os.Open(path)
		if err != nil {
			return cfg, fmt.Errorf("open config: %w", err)
		}
		defer file.Close()
		dec := yaml.NewDecoder(file)
		dec.KnownFields(true)
		if err := dec.Decode(&cfg); err != nil {
			return cfg, fmt.Errorf("decode config: %w", err)
		}
	}
	if err := env.ParseWithOptions(&cfg, env.Options{Prefix: EnvPrefix}); err != nil {
		return cfg, fmt.Errorf("parse env: %w", err)
	}
	applyDefaults(&cfg)
	if err := cfg.Auth.normalise(); err != nil {
		return cfg, fmt.Errorf("auth: %w", err)
	}
	if err := validateConfig(cfg); err != nil {
		return cfg, err
	}
	return cfg, nil
}

func applyDefaults(cfg *Config) {
	if cfg.ListenAddress == "" {
		cfg.ListenAddress = ":7090"
	}
	if cfg.GameConfig == "" {
		cfg.GameConfig = "savings.toml"
	}
	cfg.StorageBackend = strings.ToLower(strings.TrimSpace(cfg.StorageBackend))
	if cfg.StorageBackend == "" {
		cfg.StorageBackend = BackendLevelDB
	}
	if cfg.EventBuffer <= 0 {
		cfg.EventBuffer = 1024
	}
	if cfg.ShutdownTimeout.Duration <= 0 {
		cfg.ShutdownTimeout.Duration = 10 * time.Second
	}
	if cfg.Log.Level == "" {
		cfg.Log.Level = "info"
	}
	if cfg.Auth.ScopeClaim == "" {
		cfg.Auth.ScopeClaim = "scope"
	}
	if cfg.Auth.AdminScope == "" {
		cfg.Auth.AdminScope = "admin"
	}
	if strings.TrimSpace(cfg.Operator.PassphraseEnv) == "" {
		cfg.Operator.PassphraseEnv = "GAMED_OPERATOR_PASS"
	}
	if cfg.Telemetry.ServiceName == "" {
		cfg.Telemetry.ServiceName = "gamed"
	}
	if cfg.Telemetry.Environment == "" {
		cfg.Telemetry.Environment = cfg.Environment
	}
}

func (a *AuthConfig) normalise() error {
	if strings.TrimSpace(a.HMACSecret) != "" || strings.TrimSpace(a.HMACSecretFile) == "" {
		return nil
	}
	data, err := os.ReadFile(a.HMACSecretFile)
	if err != nil {
		return fmt.Errorf("read secret file: %w", err)
	}
	a.HMACSecret = strings.TrimSpace(string(data))
	return nil
}

func validateConfig(cfg Config) error {
	if strings.TrimSpace(cfg.Auth.HMACSecret) == "" {
		return errors.New("auth: hmac_secret or hmac_secret_file required")
	}
	if cfg.StorageBackend != BackendLevelDB && cfg.StorageBackend != BackendBolt {
		return fmt.Errorf("storage_backend %q must be %s or %s", cfg.StorageBackend, BackendLevelDB, BackendBolt)
	}
	if cfg.RateLimit.RequestsPerMinute < 0 || cfg.RateLimit.Burst < 0 {
		return errors.New("rate_limit: values must not be negative")
	}
	if cfg.Archive.ExportEvery.Duration < 0 {
		return errors.New("archive: export_every must not be negative")
	}
	if cfg.Archive.ExportEvery.Duration > 0 {
		if strings.TrimSpace(cfg.Archive.DSN) == "" {
			return errors.New("archive: export_every requires dsn")
		}
		if strings.TrimSpace(cfg.Archive.ExportDir) == "" {
			return errors.New("archive: export_every requires export_dir")
		}
	}
	if cfg.Dev.MintCap != "" && !cfg.Dev.Mint {
		return errors.New("dev: mint_cap set while mint is disabled")
	}
	return nil
}
