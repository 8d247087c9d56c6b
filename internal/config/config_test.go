package config

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatalf("write config: %v", err)
	}
	return path
}

func TestResolveConfigPath(t *testing.T) {
	if got := ResolveConfigPath("  "); !filepath.IsAbs(got) || filepath.Base(got) != "config.yaml" {
		t.Fatalf("blank path must default to ./config.yaml, got %q", got)
	}
	if got := ResolveConfigPath("/etc/modelcore/config.yaml"); got != "/etc/modelcore/config.yaml" {
		t.Fatalf("absolute paths pass through, got %q", got)
	}
}

func TestLoadDatabaseDSN(t *testing.T) {
	path := writeConfig(t, "database-dsn: \"file:test.db\"\n")
	dsn, err := LoadDatabaseDSN(path)
	if err != nil || dsn != "file:test.db" {
		t.Fatalf("flat key: dsn=%q err=%v", dsn, err)
	}

	nested := writeConfig(t, "database:\n  dsn: \"host=db user=app\"\n")
	dsn, err = LoadDatabaseDSN(nested)
	if err != nil || dsn != "host=db user=app" {
		t.Fatalf("nested key: dsn=%q err=%v", dsn, err)
	}

	empty := writeConfig(t, "server: {}\n")
	if _, err = LoadDatabaseDSN(empty); !errors.Is(err, ErrMissingDatabaseDSN) {
		t.Fatalf("expected ErrMissingDatabaseDSN, got %v", err)
	}
}

func TestLoadDatabaseDSN_EnvWins(t *testing.T) {
	t.Setenv(EnvDBConnection, "host=env-db")
	path := writeConfig(t, "database-dsn: \"file:test.db\"\n")
	dsn, err := LoadDatabaseDSN(path)
	if err != nil || dsn != "host=env-db" {
		t.Fatalf("env must win over file: dsn=%q err=%v", dsn, err)
	}
}

func TestLoadServerConfig_Defaults(t *testing.T) {
	cfg, err := LoadServerConfig(filepath.Join(t.TempDir(), "missing.yaml"))
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.Environment != EnvironmentProduction {
		t.Fatalf("default environment must be production, got %q", cfg.Environment)
	}
	if cfg.ProbeTimeout != 10*time.Second || cfg.CallTimeout != 30*time.Second || cfg.SyncStaleAfter != 30*time.Minute {
		t.Fatalf("unexpected defaults: %+v", cfg)
	}
}

func TestLoadServerConfig_FileAndEnv(t *testing.T) {
	path := writeConfig(t, `
server:
  environment: development
  redis-addr: "localhost:6379"
  probe-timeout: 5s
  sync-stale-after: 1h
`)
	cfg, err := LoadServerConfig(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.Environment != EnvironmentDevelopment || cfg.RedisAddr != "localhost:6379" {
		t.Fatalf("file values not applied: %+v", cfg)
	}
	if cfg.ProbeTimeout != 5*time.Second || cfg.SyncStaleAfter != time.Hour {
		t.Fatalf("durations not applied: %+v", cfg)
	}
	if cfg.CallTimeout != 30*time.Second {
		t.Fatalf("omitted fields keep defaults: %+v", cfg)
	}

	t.Setenv(EnvEnvironment, "production")
	t.Setenv(EnvRedisAddr, "redis.internal:6379")
	cfg, _ = LoadServerConfig(path)
	if cfg.Environment != "production" || cfg.RedisAddr != "redis.internal:6379" {
		t.Fatalf("env overrides must win: %+v", cfg)
	}
}

func TestLoadEncryptionKey(t *testing.T) {
	path := writeConfig(t, "encryption-key: \"abc123\"\n")
	key, err := LoadEncryptionKey(path, EnvironmentProduction)
	if err != nil || key != "abc123" {
		t.Fatalf("file key: key=%q err=%v", key, err)
	}

	t.Setenv(EnvEncryptionKey, "def456")
	key, err = LoadEncryptionKey(path, EnvironmentProduction)
	if err != nil || key != "def456" {
		t.Fatalf("env key must win: key=%q err=%v", key, err)
	}
}

func TestLoadEncryptionKey_MissingKey(t *testing.T) {
	missing := filepath.Join(t.TempDir(), "missing.yaml")

	if _, err := LoadEncryptionKey(missing, EnvironmentProduction); !errors.Is(err, ErrMissingEncryptionKey) {
		t.Fatalf("production without a key must fail, got %v", err)
	}
	key, err := LoadEncryptionKey(missing, EnvironmentDevelopment)
	if err != nil || key != "" {
		t.Fatalf("development tolerates a missing key: key=%q err=%v", key, err)
	}
}
