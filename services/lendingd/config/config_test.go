package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

const testSecret = "0123456789abcdef0123456789abcdef"

func writeConfig(t *testing.T, contents string) string {
	t.Helper()
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	if err := os.WriteFile(path, []byte(contents), 0o600); err != nil {
		t.Fatalf("write config: %v", err)
	}
	return path
}

func TestLoadConfigDefaults(t *testing.T) {
	path := writeConfig(t, `
listen: " :6000 "
markets: " markets.toml "
journal:
  dsn: "file:journal.db"
auth:
  hmac_secret: "`+testSecret+`"
  audience:
    - " lendcore "
    - " "
`)
	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("load config: %v", err)
	}
	if cfg.ListenAddress != ":6000" {
		t.Fatalf("unexpected listen address: %q", cfg.ListenAddress)
	}
	if cfg.MarketsPath != "markets.toml" {
		t.Fatalf("unexpected markets path: %q", cfg.MarketsPath)
	}
	if cfg.Journal.Driver != "sqlite" || cfg.Journal.RecentLimit != defaultJournalLimit {
		t.Fatalf("unexpected journal defaults: %+v", cfg.Journal)
	}
	if cfg.NATS.Stream != defaultStream || cfg.NATS.MaxAge != 72*time.Hour {
		t.Fatalf("unexpected nats defaults: %+v", cfg.NATS)
	}
	if cfg.Keeper.Spec != defaultKeeperSpec {
		t.Fatalf("unexpected keeper spec: %q", cfg.Keeper.Spec)
	}
	if len(cfg.Auth.Audience) != 1 || cfg.Auth.Audience[0] != "lendcore" {
		t.Fatalf("expected trimmed audience, got %v", cfg.Auth.Audience)
	}
	if cfg.RateLimit.RatePerSecond <= 0 || cfg.RateLimit.Burst <= 0 {
		t.Fatalf("expected rate limit defaults, got %+v", cfg.RateLimit)
	}
}

func TestLoadConfigParsesDurations(t *testing.T) {
	path := writeConfig(t, `
markets: markets.toml
journal:
  driver: postgres
  dsn: "postgres://lend@localhost/lend"
nats:
  url: nats://127.0.0.1:4222
  max_age: 24h
oracle:
  max_age: 90s
  grace_period: 1h
auth:
  hmac_secret: "`+testSecret+`"
  allowed_clock_skew: 30s
`)
	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("load config: %v", err)
	}
	if cfg.NATS.MaxAge != 24*time.Hour {
		t.Fatalf("unexpected stream max age %s", cfg.NATS.MaxAge)
	}
	if cfg.Oracle.MaxAge != 90*time.Second || cfg.Oracle.GracePeriod != time.Hour {
		t.Fatalf("unexpected oracle config %+v", cfg.Oracle)
	}
	if cfg.Auth.AllowedClockSkew != 30*time.Second {
		t.Fatalf("unexpected clock skew %s", cfg.Auth.AllowedClockSkew)
	}
}

func TestLoadConfigRequiresMarkets(t *testing.T) {
	path := writeConfig(t, `
journal:
  dsn: "file:journal.db"
auth:
  disabled: true
`)
	if _, err := Load(path); err == nil {
		t.Fatal("expected error when markets path is missing")
	}
}

func TestLoadConfigValidatesJournal(t *testing.T) {
	path := writeConfig(t, `
markets: markets.toml
journal:
  driver: mysql
  dsn: "root@/lend"
auth:
  disabled: true
`)
	if _, err := Load(path); err == nil {
		t.Fatal("expected error for unsupported journal driver")
	}
}

func TestLoadConfigRequiresStrongSecret(t *testing.T) {
	path := writeConfig(t, `
markets: markets.toml
journal:
  dsn: "file:journal.db"
auth:
  hmac_secret: short
`)
	if _, err := Load(path); err == nil {
		t.Fatal("expected error for a short hmac secret")
	}
}

func TestLoadConfigRejectsUnknownFields(t *testing.T) {
	path := writeConfig(t, `
markets: markets.toml
journal:
  dsn: "file:journal.db"
auth:
  disabled: true
tls:
  allow_insecure: true
`)
	if _, err := Load(path); err == nil {
		t.Fatal("expected error for unknown fields")
	}
}

func TestLoadConfigEnvOverrides(t *testing.T) {
	path := writeConfig(t, `
markets: markets.toml
journal:
  dsn: "file:journal.db"
auth:
  hmac_secret: short
`)
	t.Setenv("LENDINGD_AUTH_DISABLED", "true")
	t.Setenv("LENDINGD_LISTEN", " :9000 ")
	t.Setenv("LENDINGD_KEEPER_DISABLED", "not-a-bool")
	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("load config: %v", err)
	}
	if !cfg.Auth.Disabled {
		t.Fatalf("expected auth to be disabled from env")
	}
	if cfg.ListenAddress != ":9000" {
		t.Fatalf("unexpected listen address %q", cfg.ListenAddress)
	}
	if cfg.Keeper.Disabled {
		t.Fatalf("unparseable bool should keep the file value")
	}
}
