package core

import (
	"context"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/goliatone/go-config/cfgx"
	opts "github.com/goliatone/go-options"
	"gopkg.in/yaml.v3"
)

type ConfigProvider interface {
	Load(ctx context.Context, defaults Config) (Config, error)
}

type RawConfigLoader interface {
	LoadRaw(ctx context.Context) (map[string]any, error)
}

type OptionsResolver interface {
	Resolve(defaults Config, loaded Config, runtime Config) (Config, error)
}

type StaticRawConfigLoader struct {
	Values map[string]any
}

func (l StaticRawConfigLoader) LoadRaw(context.Context) (map[string]any, error) {
	if len(l.Values) == 0 {
		return map[string]any{}, nil
	}
	out := make(map[string]any, len(l.Values))
	for key, value := range l.Values {
		out[key] = value
	}
	return out, nil
}

// YAMLConfigLoader reads a YAML document into the raw map cfgx consumes.
// A missing file yields an empty map when Optional is set.
type YAMLConfigLoader struct {
	Path     string
	Optional bool
}

func (l YAMLConfigLoader) LoadRaw(context.Context) (map[string]any, error) {
	path := strings.TrimSpace(l.Path)
	if path == "" {
		return map[string]any{}, nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		if l.Optional && os.IsNotExist(err) {
			return map[string]any{}, nil
		}
		return nil, fmt.Errorf("core: read config %s: %w", path, err)
	}
	raw := map[string]any{}
	if err := yaml.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("core: parse config %s: %w", path, err)
	}
	if err := normalizeDurations(raw); err != nil {
		return nil, err
	}
	return raw, nil
}

type CfgxConfigProvider struct {
	Loader RawConfigLoader
}

func NewCfgxConfigProvider(loader RawConfigLoader) *CfgxConfigProvider {
	return &CfgxConfigProvider{Loader: loader}
}

// Load builds a Config from the loader output without validating it, so the
// runtime layer still gets a chance to fill required values such as secrets.
func (p *CfgxConfigProvider) Load(ctx context.Context, defaults Config) (Config, error) {
	if p == nil {
		return defaults, nil
	}
	loader := p.Loader
	if loader == nil {
		loader = StaticRawConfigLoader{}
	}
	raw, err := loader.LoadRaw(ctx)
	if err != nil {
		return Config{}, err
	}
	if err := normalizeDurations(raw); err != nil {
		return Config{}, err
	}
	cfg, err := cfgx.Build[Config](raw, cfgx.WithDefaults(defaults))
	if err != nil {
		return Config{}, err
	}
	return cfg, nil
}

type GoOptionsResolver struct{}

func (GoOptionsResolver) Resolve(defaults Config, loaded Config, runtime Config) (Config, error) {
	defaultLayer := configToLayerMap(defaults, true)
	loadedLayer := configToLayerMap(loaded, false)
	runtimeLayer := configToLayerMap(runtime, false)

	stack, err := opts.NewStack(
		opts.NewLayer(
			opts.NewScope("defaults", 0),
			defaultLayer,
			opts.WithSnapshotID[map[string]any]("defaults"),
		),
		opts.NewLayer(
			opts.NewScope("config", 10),
			loadedLayer,
			opts.WithSnapshotID[map[string]any]("config"),
		),
		opts.NewLayer(
			opts.NewScope("runtime", 20),
			runtimeLayer,
			opts.WithSnapshotID[map[string]any]("runtime"),
		),
	)
	if err != nil {
		return Config{}, fmt.Errorf("core: options stack build failed: %w", err)
	}
	merged, err := stack.Merge()
	if err != nil {
		return Config{}, fmt.Errorf("core: options merge failed: %w", err)
	}
	resolved, err := cfgx.Build[Config](merged.Value,
		cfgx.WithDefaults(defaults),
		cfgx.WithValidator[Config]((*Config).Validate),
	)
	if err != nil {
		return Config{}, err
	}
	if err := resolved.Validate(); err != nil {
		return Config{}, err
	}
	return resolved, nil
}

// LoadConfig resolves defaults < provider output < runtime overrides.
func LoadConfig(ctx context.Context, provider ConfigProvider, resolver OptionsResolver, runtime Config) (Config, error) {
	defaults := DefaultConfig()
	if provider == nil {
		provider = NewCfgxConfigProvider(nil)
	}
	if resolver == nil {
		resolver = GoOptionsResolver{}
	}
	loaded, err := provider.Load(ctx, defaults)
	if err != nil {
		return Config{}, err
	}
	return resolver.Resolve(defaults, loaded, runtime)
}

// RuntimeConfigFromEnv collects the environment overrides the binary honours.
func RuntimeConfigFromEnv(lookup func(string) string) Config {
	if lookup == nil {
		lookup = os.Getenv
	}
	first := func(keys ...string) string {
		for _, key := range keys {
			if value := strings.TrimSpace(lookup(key)); value != "" {
				return value
			}
		}
		return ""
	}
	return Config{
		Webhook: WebhookConfig{
			Secret: first("IDENTITY_SYNC_WEBHOOK_SECRET", "CLERK_WEBHOOK_SECRET"),
		},
		Store: StoreConfig{
			DSN: first("IDENTITY_SYNC_STORE_DSN", "DATABASE_URL"),
		},
		HTTP: HTTPConfig{
			Addr: first("IDENTITY_SYNC_HTTP_ADDR"),
		},
	}
}

func configToLayerMap(cfg Config, includeZero bool) map[string]any {
	layer := map[string]any{}
	putString := func(section map[string]any, key, value string) {
		if includeZero || strings.TrimSpace(value) != "" {
			section[key] = value
		}
	}
	putDuration := func(section map[string]any, key string, value time.Duration) {
		if includeZero || value != 0 {
			section[key] = value
		}
	}
	putInt := func(section map[string]any, key string, value int64) {
		if includeZero || value != 0 {
			section[key] = value
		}
	}
	nest := func(key string, section map[string]any) {
		if len(section) > 0 {
			layer[key] = section
		}
	}

	putString(layer, "service_name", cfg.ServiceName)

	webhook := map[string]any{}
	putString(webhook, "provider", cfg.Webhook.Provider)
	putString(webhook, "secret", cfg.Webhook.Secret)
	putDuration(webhook, "tolerance", cfg.Webhook.Tolerance)
	putInt(webhook, "max_body_bytes", cfg.Webhook.MaxBodyBytes)
	putString(webhook, "path_prefix", cfg.Webhook.PathPrefix)
	nest("webhook", webhook)

	dedup := map[string]any{}
	putString(dedup, "backend", cfg.Dedup.Backend)
	putDuration(dedup, "retention", cfg.Dedup.Retention)
	putInt(dedup, "max_entries", int64(cfg.Dedup.MaxEntries))
	nest("dedup", dedup)

	store := map[string]any{}
	putString(store, "driver", cfg.Store.Driver)
	putString(store, "dsn", cfg.Store.DSN)
	putDuration(store, "operation_timeout", cfg.Store.OperationTimeout)
	putInt(store, "max_attempts", int64(cfg.Store.MaxAttempts))
	putDuration(store, "cache_ttl", cfg.Store.CacheTTL)
	nest("store", store)

	redis := map[string]any{}
	putString(redis, "addr", cfg.Redis.Addr)
	putString(redis, "password", cfg.Redis.Password)
	putInt(redis, "db", int64(cfg.Redis.DB))
	putString(redis, "key_prefix", cfg.Redis.KeyPrefix)
	nest("redis", redis)

	httpSection := map[string]any{}
	putString(httpSection, "addr", cfg.HTTP.Addr)
	nest("http", httpSection)

	metrics := map[string]any{}
	if includeZero || cfg.Metrics.Enabled {
		metrics["enabled"] = cfg.Metrics.Enabled
	}
	putString(metrics, "path", cfg.Metrics.Path)
	putString(metrics, "namespace", cfg.Metrics.Namespace)
	nest("metrics", metrics)

	return layer
}

var durationKeys = map[string][]string{
	"webhook": {"tolerance"},
	"dedup":   {"retention"},
	"store":   {"operation_timeout", "cache_ttl"},
}

// normalizeDurations turns "5m" style strings under known keys into
// time.Duration values before decoding.
func normalizeDurations(raw map[string]any) error {
	for section, keys := range durationKeys {
		values, ok := raw[section].(map[string]any)
		if !ok {
			continue
		}
		for _, key := range keys {
			text, ok := values[key].(string)
			if !ok {
				continue
			}
			parsed, err := time.ParseDuration(strings.TrimSpace(text))
			if err != nil {
				return fmt.Errorf("core: parse %s.%s: %w", section, key, err)
			}
			values[key] = parsed
		}
	}
	return nil
}
