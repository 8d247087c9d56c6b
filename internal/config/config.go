package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

const (
	EnvConfigPath    = "CONFIG_PATH"
	EnvDBConnection  = "DB_CONNECTION"
	EnvEncryptionKey = "MODELCORE_ENCRYPTION_KEY"
	EnvRedisAddr     = "REDIS_ADDR"
	EnvEnvironment   = "MODELCORE_ENV"
)

// Environments recognized by the server.
const (
	EnvironmentProduction  = "production"
	EnvironmentDevelopment = "development"
)

// AppConfig holds resolved application configuration values.
type AppConfig struct {
	ConfigPath string
}

// LoadFromEnv loads app config from environment variables.
func LoadFromEnv() (AppConfig, error) {
	return AppConfig{ConfigPath: ResolveConfigPath(os.Getenv(EnvConfigPath))}, nil
}

// ResolveConfigPath normalizes the config path and applies defaults.
func ResolveConfigPath(p string) string {
	trimmed := strings.TrimSpace(p)
	if trimmed == "" {
		trimmed = "./config.yaml"
	}
	if abs, err := filepath.Abs(trimmed); err == nil {
		return abs
	}
	return trimmed
}

// ErrMissingDatabaseDSN indicates no database DSN is present in the config file.
var ErrMissingDatabaseDSN = errors.New("missing database dsn (set `database-dsn` or `database.dsn` in config file)")

// ErrMissingEncryptionKey indicates no credential encryption key is configured
// in a production environment.
var ErrMissingEncryptionKey = errors.New("missing credential encryption key (set MODELCORE_ENCRYPTION_KEY)")

// LoadDatabaseDSN reads the database DSN from the YAML config file.
func LoadDatabaseDSN(configPath string) (string, error) {
	if dsn := strings.TrimSpace(os.Getenv(EnvDBConnection)); dsn != "" {
		return dsn, nil
	}

	// fileConfig maps the YAML fields needed for DSN resolution.
	type fileConfig struct {
		DatabaseDSN string `yaml:"database-dsn"`
		Database    struct {
			DSN string `yaml:"dsn"`
		} `yaml:"database"`
	}

	data, err := os.ReadFile(configPath)
	if err != nil {
		return "", fmt.Errorf("read config file: %w", err)
	}

	var cfg fileConfig
	if errUnmarshal := yaml.Unmarshal(data, &cfg); errUnmarshal != nil {
		return "", fmt.Errorf("parse config file: %w", errUnmarshal)
	}

	if dsn := strings.TrimSpace(cfg.DatabaseDSN); dsn != "" {
		return dsn, nil
	}
	if dsn := strings.TrimSpace(cfg.Database.DSN); dsn != "" {
		return dsn, nil
	}
	return "", ErrMissingDatabaseDSN
}

// ServerConfig holds runtime settings for the API server.
type ServerConfig struct {
	Environment    string        `yaml:"environment"`      // production or development.
	RedisAddr      string        `yaml:"redis-addr"`       // Optional registry cache backend.
	ProbeTimeout   time.Duration `yaml:"probe-timeout"`    // Credential probe timeout.
	CallTimeout    time.Duration `yaml:"call-timeout"`     // Provider call timeout.
	SyncStaleAfter time.Duration `yaml:"sync-stale-after"` // Staleness threshold for auto sync.
}

// Defaults applied when the config omits or invalidates server settings.
const (
	defaultProbeTimeout   = 10 * time.Second
	defaultCallTimeout    = 30 * time.Second
	defaultSyncStaleAfter = 30 * time.Minute
)

// LoadServerConfig loads server settings from the YAML config file with env overrides.
func LoadServerConfig(configPath string) (ServerConfig, error) {
	// fileConfig maps the YAML fields needed for server settings.
	type fileConfig struct {
		Server ServerConfig `yaml:"server"`
	}

	result := ServerConfig{
		Environment:    EnvironmentProduction,
		ProbeTimeout:   defaultProbeTimeout,
		CallTimeout:    defaultCallTimeout,
		SyncStaleAfter: defaultSyncStaleAfter,
	}

	data, errRead := os.ReadFile(configPath)
	if errRead == nil {
		var cfg fileConfig
		if errUnmarshal := yaml.Unmarshal(data, &cfg); errUnmarshal == nil {
			if env := strings.TrimSpace(cfg.Server.Environment); env != "" {
				result.Environment = env
			}
			if addr := strings.TrimSpace(cfg.Server.RedisAddr); addr != "" {
				result.RedisAddr = addr
			}
			if cfg.Server.ProbeTimeout > 0 {
				result.ProbeTimeout = cfg.Server.ProbeTimeout
			}
			if cfg.Server.CallTimeout > 0 {
				result.CallTimeout = cfg.Server.CallTimeout
			}
			if cfg.Server.SyncStaleAfter > 0 {
				result.SyncStaleAfter = cfg.Server.SyncStaleAfter
			}
		}
	}

	if env := strings.TrimSpace(os.Getenv(EnvEnvironment)); env != "" {
		result.Environment = env
	}
	if addr := strings.TrimSpace(os.Getenv(EnvRedisAddr)); addr != "" {
		result.RedisAddr = addr
	}
	return result, nil
}

// LoadEncryptionKey returns the hex-encoded credential encryption key.
//
// A missing key is a hard error in production: rows encrypted under an
// ephemeral key become permanently undecryptable after a restart.
// Development environments may return an empty key and let the secrets
// layer generate one.
func LoadEncryptionKey(configPath, environment string) (string, error) {
	if key := strings.TrimSpace(os.Getenv(EnvEncryptionKey)); key != "" {
		return key, nil
	}

	// fileConfig maps the YAML field holding the key.
	type fileConfig struct {
		EncryptionKey string `yaml:"encryption-key"`
	}

	data, errRead := os.ReadFile(configPath)
	if errRead == nil {
		var cfg fileConfig
		if errUnmarshal := yaml.Unmarshal(data, &cfg); errUnmarshal == nil {
			if key := strings.TrimSpace(cfg.EncryptionKey); key != "" {
				return key, nil
			}
		}
	}

	if strings.EqualFold(strings.TrimSpace(environment), EnvironmentDevelopment) {
		return "", nil
	}
	return "", ErrMissingEncryptionKey
}
