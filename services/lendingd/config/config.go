package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

const (
	defaultListen       = ":8083"
	defaultStream       = "LENDING_EVENTS"
	defaultKeeperSpec   = "0 */5 * * * *"
	defaultJournalLimit = 100
)

// Config captures the runtime settings for the lending daemon.
type Config struct {
	ListenAddress string        `yaml:"listen"`
	MarketsPath   string        `yaml:"markets"`
	Storage       StorageConfig `yaml:"storage"`
	Journal       JournalConfig `yaml:"journal"`
	NATS          NATSConfig    `yaml:"nats"`
	Keeper        KeeperConfig  `yaml:"keeper"`
	Auth          AuthConfig    `yaml:"auth"`
	RateLimit     RateLimit     `yaml:"rate_limit"`
	Oracle        OracleConfig  `yaml:"oracle"`
}

// StorageConfig selects the pool's key-value backend. An empty path keeps
// state in memory.
type StorageConfig struct {
	Path string `yaml:"path"`
}

// JournalConfig configures the SQL action journal.
type JournalConfig struct {
	Driver string `yaml:"driver"`
	DSN    string `yaml:"dsn"`
	// RecentLimit caps rows returned by the journal endpoint.
	RecentLimit int `yaml:"recent_limit"`
}

// NATSConfig configures the JetStream event publisher. An empty URL disables
// publishing.
type NATSConfig struct {
	URL    string        `yaml:"url"`
	Stream string        `yaml:"stream"`
	MaxAge time.Duration `yaml:"max_age"`
}

// KeeperConfig schedules the index sync job. Spec uses six cron fields.
type KeeperConfig struct {
	Spec     string `yaml:"spec"`
	Disabled bool   `yaml:"disabled"`
	Caller   string `yaml:"caller"`
}

// AuthConfig configures bearer-token validation for mutating routes.
type AuthConfig struct {
	HMACSecret       string        `yaml:"hmac_secret"`
	Issuer           string        `yaml:"issuer"`
	Audience         []string      `yaml:"audience"`
	AllowedClockSkew time.Duration `yaml:"allowed_clock_skew"`
	// Disabled turns off authentication and is only accepted in dev.
	Disabled bool `yaml:"disabled"`
}

// RateLimit configures the per-client token bucket.
type RateLimit struct {
	RatePerSecond float64 `yaml:"rate_per_second"`
	Burst         int     `yaml:"burst"`
}

// OracleConfig bounds quote freshness and the sentinel grace period.
type OracleConfig struct {
	MaxAge      time.Duration `yaml:"max_age"`
	GracePeriod time.Duration `yaml:"grace_period"`
}

// Load reads the YAML configuration from disk, applies environment
// overrides and validates the result.
func Load(path string) (Config, error) {
	cfg := Config{ListenAddress: defaultListen}
	if path == "" {
		return cfg, fmt.Errorf("config path required")
	}
	file, err := os.Open(path)
	if err != nil {
		return cfg, fmt.Errorf("open config: %w", err)
	}
	defer file.Close()

	decoder := yaml.NewDecoder(file)
	decoder.KnownFields(true)
	if err := decoder.Decode(&cfg); err != nil {
		return Config{}, fmt.Errorf("decode config: %w", err)
	}

	cfg.applyEnv()
	cfg.normalize()
	if err := cfg.validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func (cfg *Config) applyEnv() {
	cfg.ListenAddress = stringFromEnv("LENDINGD_LISTEN", cfg.ListenAddress)
	cfg.MarketsPath = stringFromEnv("LENDINGD_MARKETS", cfg.MarketsPath)
	cfg.Storage.Path = stringFromEnv("LENDINGD_STORAGE_PATH", cfg.Storage.Path)
	cfg.Journal.DSN = stringFromEnv("LENDINGD_JOURNAL_DSN", cfg.Journal.DSN)
	cfg.NATS.URL = stringFromEnv("LENDINGD_NATS_URL", cfg.NATS.URL)
	cfg.Auth.HMACSecret = stringFromEnv("LENDINGD_JWT_SECRET", cfg.Auth.HMACSecret)
	cfg.Auth.Disabled = boolFromEnv("LENDINGD_AUTH_DISABLED", cfg.Auth.Disabled)
	cfg.Keeper.Disabled = boolFromEnv("LENDINGD_KEEPER_DISABLED", cfg.Keeper.Disabled)
}

func (cfg *Config) normalize() {
	if cfg == nil {
		return
	}
	cfg.ListenAddress = strings.TrimSpace(cfg.ListenAddress)
	if cfg.ListenAddress == "" {
		cfg.ListenAddress = defaultListen
	}
	cfg.MarketsPath = strings.TrimSpace(cfg.MarketsPath)
	cfg.Storage.Path = strings.TrimSpace(cfg.Storage.Path)

	cfg.Journal.Driver = strings.ToLower(strings.TrimSpace(cfg.Journal.Driver))
	if cfg.Journal.Driver == "" {
		cfg.Journal.Driver = "sqlite"
	}
	cfg.Journal.DSN = strings.TrimSpace(cfg.Journal.DSN)
	if cfg.Journal.RecentLimit <= 0 {
		cfg.Journal.RecentLimit = defaultJournalLimit
	}

	cfg.NATS.URL = strings.TrimSpace(cfg.NATS.URL)
	cfg.NATS.Stream = strings.TrimSpace(cfg.NATS.Stream)
	if cfg.NATS.Stream == "" {
		cfg.NATS.Stream = defaultStream
	}
	if cfg.NATS.MaxAge <= 0 {
		cfg.NATS.MaxAge = 72 * time.Hour
	}

	cfg.Keeper.Spec = strings.TrimSpace(cfg.Keeper.Spec)
	if cfg.Keeper.Spec == "" {
		cfg.Keeper.Spec = defaultKeeperSpec
	}
	cfg.Keeper.Caller = strings.TrimSpace(cfg.Keeper.Caller)

	cfg.Auth.HMACSecret = strings.TrimSpace(cfg.Auth.HMACSecret)
	cfg.Auth.Issuer = strings.TrimSpace(cfg.Auth.Issuer)
	audience := make([]string, 0, len(cfg.Auth.Audience))
	for _, aud := range cfg.Auth.Audience {
		if trimmed := strings.TrimSpace(aud); trimmed != "" {
			audience = append(audience, trimmed)
		}
	}
	cfg.Auth.Audience = audience

	if cfg.RateLimit.RatePerSecond <= 0 {
		cfg.RateLimit.RatePerSecond = 20
	}
	if cfg.RateLimit.Burst <= 0 {
		cfg.RateLimit.Burst = 40
	}
	if cfg.Oracle.GracePeriod < 0 {
		cfg.Oracle.GracePeriod = 0
	}
}

func (cfg *Config) validate() error {
	if cfg == nil {
		return fmt.Errorf("configuration is missing")
	}
	if cfg.MarketsPath == "" {
		return fmt.Errorf("markets path required")
	}
	switch cfg.Journal.Driver {
	case "sqlite":
		if cfg.Journal.DSN == "" {
			return fmt.Errorf("journal: sqlite dsn required")
		}
	case "postgres":
		if cfg.Journal.DSN == "" {
			return fmt.Errorf("journal: postgres dsn required")
		}
	default:
		return fmt.Errorf("journal: unsupported driver %q", cfg.Journal.Driver)
	}
	if err := cfg.Auth.validate(); err != nil {
		return fmt.Errorf("auth: %w", err)
	}
	if cfg.Oracle.MaxAge < 0 {
		return fmt.Errorf("oracle: max_age must not be negative")
	}
	return nil
}

func (cfg AuthConfig) validate() error {
	if cfg.Disabled {
		return nil
	}
	if len(cfg.HMACSecret) < 32 {
		return fmt.Errorf("hmac_secret must be at least 32 bytes")
	}
	if cfg.AllowedClockSkew < 0 {
		return fmt.Errorf("allowed_clock_skew must not be negative")
	}
	return nil
}

func stringFromEnv(key, fallback string) string {
	if value, ok := os.LookupEnv(key); ok {
		if trimmed := strings.TrimSpace(value); trimmed != "" {
			return trimmed
		}
	}
	return fallback
}

func boolFromEnv(key string, fallback bool) bool {
	value, ok := os.LookupEnv(key)
	if !ok {
		return fallback
	}
	parsed, err := strconv.ParseBool(strings.TrimSpace(value))
	if err != nil {
		return fallback
	}
	return parsed
}
