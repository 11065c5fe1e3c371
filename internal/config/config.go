// Package config loads decisioncore's runtime configuration: a YAML
// file merged with DECISIONCORE_* environment overrides via viper,
// with optional hot reload on file change.
package config

import (
	"fmt"
	"reflect"
	"strings"

	"github.com/fsnotify/fsnotify"
	"github.com/spf13/viper"
)

// envPrefix is the environment variable prefix for all settings.
const envPrefix = "DECISIONCORE"

// Config is the root configuration shape. mapstructure tags double as
// the dotted key used for both the YAML file and DECISIONCORE_* env
// binding (bindEnvs below joins them with "."; the env key replacer
// maps "." to "_").
type Config struct {
	Environment       string        `mapstructure:"environment"` // "production" disables evaluation validation
	HashCacheCapacity int           `mapstructure:"hash_cache_capacity"`
	Version           VersionConfig `mapstructure:"version"`
	ABTest            ABTestConfig  `mapstructure:"abtest"`
	Metrics           MetricsConfig `mapstructure:"metrics"`
	Logging           LoggingConfig `mapstructure:"logging"`
}

// VersionConfig selects and configures the rule version store adapter.
type VersionConfig struct {
	Backend   string `mapstructure:"backend"` // "memory" | "file" | "redis"
	FileRoot  string `mapstructure:"file_root"`
	RedisAddr string `mapstructure:"redis_addr"`
	KeyPrefix string `mapstructure:"key_prefix"`
}

// ABTestConfig selects and configures the assignment store adapter.
type ABTestConfig struct {
	Backend   string `mapstructure:"backend"` // "memory" | "redis"
	RedisAddr string `mapstructure:"redis_addr"`
	KeyPrefix string `mapstructure:"key_prefix"`
}

// MetricsConfig controls the Prometheus exposition endpoint.
type MetricsConfig struct {
	Enabled bool   `mapstructure:"enabled"`
	Addr    string `mapstructure:"addr"`
}

// LoggingConfig controls the zerolog sink.
type LoggingConfig struct {
	Level  string `mapstructure:"level"`
	Pretty bool   `mapstructure:"pretty"`
}

// IsProduction reports whether evaluation validation should be
// disabled: the single environment flag that switches it off when set
// to "production".
func (c *Config) IsProduction() bool {
	return strings.EqualFold(c.Environment, "production")
}

// ApplyDefaults fills in zero-valued fields with the platform defaults.
func ApplyDefaults(c *Config) {
	if c.Environment == "" {
		c.Environment = "development"
	}
	if c.HashCacheCapacity == 0 {
		c.HashCacheCapacity = 1000
	}
	if c.Version.Backend == "" {
		c.Version.Backend = "memory"
	}
	if c.Version.FileRoot == "" {
		c.Version.FileRoot = "./data/versions"
	}
	if c.Version.KeyPrefix == "" {
		c.Version.KeyPrefix = "decisioncore:version"
	}
	if c.ABTest.Backend == "" {
		c.ABTest.Backend = "memory"
	}
	if c.ABTest.KeyPrefix == "" {
		c.ABTest.KeyPrefix = "decisioncore:abtest"
	}
	if c.Metrics.Addr == "" {
		c.Metrics.Addr = ":9090"
	}
	if c.Logging.Level == "" {
		c.Logging.Level = "info"
	}
}

// Validate rejects configuration shapes the rest of the program can't
// make sense of.
func (c *Config) Validate() error {
	switch c.Version.Backend {
	case "memory", "file", "redis":
	default:
		return fmt.Errorf("config: version.backend must be one of memory|file|redis, got %q", c.Version.Backend)
	}
	switch c.ABTest.Backend {
	case "memory", "redis":
	default:
		return fmt.Errorf("config: abtest.backend must be one of memory|redis, got %q", c.ABTest.Backend)
	}
	if c.Version.Backend == "redis" && c.Version.RedisAddr == "" {
		return fmt.Errorf("config: version.redis_addr is required when version.backend=redis")
	}
	if c.ABTest.Backend == "redis" && c.ABTest.RedisAddr == "" {
		return fmt.Errorf("config: abtest.redis_addr is required when abtest.backend=redis")
	}
	return nil
}

// newViper builds a pre-configured Viper instance: YAML file type,
// DECISIONCORE_ env prefix, automatic env binding, and a key replacer
// mapping "." -> "_" so nested keys like "version.backend" resolve to
// DECISIONCORE_VERSION_BACKEND.
func newViper() *viper.Viper {
	v := viper.New()
	v.SetConfigType("yaml")
	v.SetEnvPrefix(envPrefix)
	v.AutomaticEnv()
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	bindEnvs(v, Config{})
	return v
}

// bindEnvs recursively binds every mapstructure-tagged field so nested
// env vars are picked up even when absent from the config file.
func bindEnvs(v *viper.Viper, iface any, parts ...string) {
	ift := reflect.TypeOf(iface)
	if ift.Kind() == reflect.Ptr {
		ift = ift.Elem()
	}
	for i := 0; i < ift.NumField(); i++ {
		field := ift.Field(i)
		tag := field.Tag.Get("mapstructure")
		if tag == "" || tag == "-" {
			continue
		}
		newParts := append(append([]string{}, parts...), tag)
		if field.Type.Kind() == reflect.Struct {
			bindEnvs(v, reflect.New(field.Type).Elem().Interface(), newParts...)
			continue
		}
		_ = v.BindEnv(strings.Join(newParts, "."))
	}
}

// Load reads the YAML file at configPath (if non-empty and present),
// merges DECISIONCORE_* overrides, applies defaults, and validates.
func Load(configPath string) (*Config, error) {
	v := newViper()
	if configPath != "" {
		v.SetConfigFile(configPath)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("config: failed to read %q: %w", configPath, err)
		}
	}
	return unmarshalAndFinalize(v)
}

func unmarshalAndFinalize(v *viper.Viper) (*Config, error) {
	cfg := &Config{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("config: failed to unmarshal: %w", err)
	}
	ApplyDefaults(cfg)
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Watch monitors configPath and invokes onChange with the newly parsed
// Config whenever the file changes on disk. Invalid reloads are
// skipped silently, matching viper's own OnConfigChange contract.
func Watch(configPath string, onChange func(*Config)) {
	v := newViper()
	v.SetConfigFile(configPath)
	_ = v.ReadInConfig()
	v.WatchConfig()
	v.OnConfigChange(func(_ fsnotify.Event) {
		cfg, err := unmarshalAndFinalize(v)
		if err != nil {
			return
		}
		onChange(cfg)
	})
}
