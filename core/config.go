package core

import (
	"fmt"
	"strings"
	"time"
)

const (
	DedupBackendMemory = "memory"
	DedupBackendRedis  = "redis"
	DedupBackendSQL    = "sql"

	StoreDriverMemory   = "memory"
	StoreDriverSQLite   = "sqlite"
	StoreDriverPostgres = "postgres"
)

const (
	DefaultClockSkewTolerance = 5 * time.Minute
	DefaultDedupRetention     = 24 * time.Hour
	DefaultDedupMaxEntries    = 65536
	DefaultOperationTimeout   = 5 * time.Second
	DefaultMaxAttempts        = 3
	DefaultMaxBodyBytes       = 1 << 20
)

type WebhookConfig struct {
	Provider     string        `koanf:"provider" mapstructure:"provider"`
	Secret       string        `koanf:"secret" mapstructure:"secret"`
	Tolerance    time.Duration `koanf:"tolerance" mapstructure:"tolerance"`
	MaxBodyBytes int64         `koanf:"max_body_bytes" mapstructure:"max_body_bytes"`
	PathPrefix   string        `koanf:"path_prefix" mapstructure:"path_prefix"`
}

type DedupConfig struct {
	Backend    string        `koanf:"backend" mapstructure:"backend"`
	Retention  time.Duration `koanf:"retention" mapstructure:"retention"`
	MaxEntries int           `koanf:"max_entries" mapstructure:"max_entries"`
}

type StoreConfig struct {
	Driver           string        `koanf:"driver" mapstructure:"driver"`
	DSN              string        `koanf:"dsn" mapstructure:"dsn"`
	OperationTimeout time.Duration `koanf:"operation_timeout" mapstructure:"operation_timeout"`
	MaxAttempts      int           `koanf:"max_attempts" mapstructure:"max_attempts"`
	CacheTTL         time.Duration `koanf:"cache_ttl" mapstructure:"cache_ttl"`
}

type RedisConfig struct {
	Addr      string `koanf:"addr" mapstructure:"addr"`
	Password  string `koanf:"password" mapstructure:"password"`
	DB        int    `koanf:"db" mapstructure:"db"`
	KeyPrefix string `koanf:"key_prefix" mapstructure:"key_prefix"`
}

type HTTPConfig struct {
	Addr string `koanf:"addr" mapstructure:"addr"`
}

type MetricsConfig struct {
	Enabled   bool   `koanf:"enabled" mapstructure:"enabled"`
	Path      string `koanf:"path" mapstructure:"path"`
	Namespace string `koanf:"namespace" mapstructure:"namespace"`
}

type Config struct {
	ServiceName string        `koanf:"service_name" mapstructure:"service_name"`
	Webhook     WebhookConfig `koanf:"webhook" mapstructure:"webhook"`
	Dedup       DedupConfig   `koanf:"dedup" mapstructure:"dedup"`
	Store       StoreConfig   `koanf:"store" mapstructure:"store"`
	Redis       RedisConfig   `koanf:"redis" mapstructure:"redis"`
	HTTP        HTTPConfig    `koanf:"http" mapstructure:"http"`
	Metrics     MetricsConfig `koanf:"metrics" mapstructure:"metrics"`
}

// DefaultConfig carries every documented fallback. The webhook secret has none.
func DefaultConfig() Config {
	return Config{
		ServiceName: "identity-sync",
		Webhook: WebhookConfig{
			Provider:     "clerk",
			Tolerance:    DefaultClockSkewTolerance,
			MaxBodyBytes: DefaultMaxBodyBytes,
			PathPrefix:   "/webhooks",
		},
		Dedup: DedupConfig{
			Backend:    DedupBackendMemory,
			Retention:  DefaultDedupRetention,
			MaxEntries: DefaultDedupMaxEntries,
		},
		Store: StoreConfig{
			Driver:           StoreDriverMemory,
			OperationTimeout: DefaultOperationTimeout,
			MaxAttempts:      DefaultMaxAttempts,
		},
		Redis: RedisConfig{
			Addr:      "localhost:6379",
			KeyPrefix: "identity-sync:dedup:",
		},
		HTTP: HTTPConfig{
			Addr: ":8080",
		},
		Metrics: MetricsConfig{
			Enabled:   true,
			Path:      "/metrics",
			Namespace: "identity_sync",
		},
	}
}

func (c Config) Validate() error {
	if strings.TrimSpace(c.ServiceName) == "" {
		return fmt.Errorf("core: service_name is required")
	}
	if strings.TrimSpace(c.Webhook.Provider) == "" {
		return fmt.Errorf("core: webhook.provider is required")
	}
	if strings.TrimSpace(c.Webhook.Secret) == "" {
		return fmt.Errorf("core: webhook.secret is required")
	}
	if c.Webhook.Tolerance <= 0 {
		return fmt.Errorf("core: webhook.tolerance must be positive")
	}
	if c.Webhook.MaxBodyBytes <= 0 {
		return fmt.Errorf("core: webhook.max_body_bytes must be positive")
	}
	if c.Dedup.Retention <= 0 {
		return fmt.Errorf("core: dedup.retention must be positive")
	}
	if c.Dedup.MaxEntries < 0 {
		return fmt.Errorf("core: dedup.max_entries must not be negative")
	}
	switch strings.ToLower(strings.TrimSpace(c.Dedup.Backend)) {
	case DedupBackendMemory, DedupBackendSQL:
	case DedupBackendRedis:
		if strings.TrimSpace(c.Redis.Addr) == "" {
			return fmt.Errorf("core: redis.addr is required for the redis dedup backend")
		}
	default:
		return fmt.Errorf("core: unsupported dedup.backend %q", c.Dedup.Backend)
	}
	switch strings.ToLower(strings.TrimSpace(c.Store.Driver)) {
	case StoreDriverMemory:
		if strings.EqualFold(strings.TrimSpace(c.Dedup.Backend), DedupBackendSQL) {
			return fmt.Errorf("core: dedup.backend sql requires a sql store driver")
		}
	case StoreDriverSQLite, StoreDriverPostgres:
		if strings.TrimSpace(c.Store.DSN) == "" {
			return fmt.Errorf("core: store.dsn is required for driver %q", c.Store.Driver)
		}
	default:
		return fmt.Errorf("core: unsupported store.driver %q", c.Store.Driver)
	}
	if c.Store.OperationTimeout <= 0 {
		return fmt.Errorf("core: store.operation_timeout must be positive")
	}
	if c.Store.MaxAttempts <= 0 {
		return fmt.Errorf("core: store.max_attempts must be positive")
	}
	if c.Store.CacheTTL < 0 {
		return fmt.Errorf("core: store.cache_ttl must not be negative")
	}
	return nil
}
