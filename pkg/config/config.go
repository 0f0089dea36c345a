// Package config loads image proxy settings from defaults, an optional config
// file and IMAGE_PROXY_* environment variables, in increasing precedence.
package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// EnvPrefix is prepended to every environment variable; "." in keys becomes "_",
// so cache.redis_url is read from IMAGE_PROXY_CACHE_REDIS_URL.
const EnvPrefix = "IMAGE_PROXY"

// Cache backends.
const (
	BackendRedis  = "redis"
	BackendMemory = "memory"
	BackendNone   = "none"
)

// Config is the complete proxy configuration.
type Config struct {
	Server   ServerConfig   `mapstructure:"server"`
	Log      LogConfig      `mapstructure:"log"`
	Cache    CacheConfig    `mapstructure:"cache"`
	Store    StoreConfig    `mapstructure:"store"`
	Fetch    FetchConfig    `mapstructure:"fetch"`
	Pipeline PipelineConfig `mapstructure:"pipeline"`
	Warm     WarmConfig     `mapstructure:"warm"`
}

type ServerConfig struct {
	Port int `mapstructure:"port"`
}

type LogConfig struct {
	Level  string `mapstructure:"level"`
	Pretty bool   `mapstructure:"pretty"`
}

type CacheConfig struct {
	Backend        string        `mapstructure:"backend"`
	RedisURL       string        `mapstructure:"redis_url"`
	ConnectTimeout time.Duration `mapstructure:"connect_timeout"`
	TTL            time.Duration `mapstructure:"ttl"`
	MemoryEntries  int           `mapstructure:"memory_entries"`
}

// StoreConfig configures the S3-compatible object store; an empty Bucket
// leaves store keys unresolvable.
type StoreConfig struct {
	Bucket          string `mapstructure:"bucket"`
	Region          string `mapstructure:"region"`
	Endpoint        string `mapstructure:"endpoint"`
	AccessKeyID     string `mapstructure:"access_key_id"`
	SecretAccessKey string `mapstructure:"secret_access_key"`
}

type FetchConfig struct {
	Timeout   time.Duration `mapstructure:"timeout"`
	MaxBytes  int64         `mapstructure:"max_bytes"`
	UserAgent string        `mapstructure:"user_agent"`
}

type PipelineConfig struct {
	SingleFlight    bool          `mapstructure:"single_flight"`
	SharedTimeout   time.Duration `mapstructure:"shared_timeout"`
	FallbackCaching string        `mapstructure:"fallback_caching"`
}

type WarmConfig struct {
	MaxConcurrency int           `mapstructure:"max_concurrency"`
	Timeout        time.Duration `mapstructure:"timeout"`
}

// Addr returns the listen address for the HTTP server.
func (c *Config) Addr() string {
	return fmt.Sprintf(":%d", c.Server.Port)
}

// StoreEnabled reports whether an object store is configured.
func (c *Config) StoreEnabled() bool {
	return c.Store.Bucket != ""
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.port", 8080)

	v.SetDefault("log.level", "info")
	v.SetDefault("log.pretty", false)

	v.SetDefault("cache.backend", BackendRedis)
	v.SetDefault("cache.redis_url", "localhost:6379")
	v.SetDefault("cache.connect_timeout", time.Second)
	v.SetDefault("cache.ttl", 7*24*time.Hour)
	v.SetDefault("cache.memory_entries", 1024)

	v.SetDefault("store.bucket", "")
	v.SetDefault("store.region", "us-east-1")
	v.SetDefault("store.endpoint", "")
	v.SetDefault("store.access_key_id", "")
	v.SetDefault("store.secret_access_key", "")

	v.SetDefault("fetch.timeout", 30*time.Second)
	v.SetDefault("fetch.max_bytes", int64(32<<20))
	v.SetDefault("fetch.user_agent", "image-optimizer/1.0")

	v.SetDefault("pipeline.single_flight", false)
	v.SetDefault("pipeline.shared_timeout", 60*time.Second)
	v.SetDefault("pipeline.fallback_caching", "transformed")

	v.SetDefault("warm.max_concurrency", 4)
	v.SetDefault("warm.timeout", 30*time.Second)
}

// Load reads the configuration. path may be empty, in which case only
// defaults and environment variables apply. The file format follows its
// extension (toml, yaml, json).
func Load(path string) (*Config, error) {
	v := viper.New()
	setDefaults(v)

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("failed to read config file %s: %w", path, err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to decode config: %w", err)
	}

	cfg.Cache.Backend = strings.ToLower(strings.TrimSpace(cfg.Cache.Backend))
	cfg.Pipeline.FallbackCaching = strings.ToLower(strings.TrimSpace(cfg.Pipeline.FallbackCaching))

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate checks enum values and limits.
func (c *Config) Validate() error {
	var errs []error

	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		errs = append(errs, fmt.Errorf("server.port must be in 1..65535, got %d", c.Server.Port))
	}

	switch c.Cache.Backend {
	case BackendRedis:
		if c.Cache.RedisURL == "" {
			errs = append(errs, errors.New("cache.redis_url is required for the redis backend"))
		}
		if c.Cache.ConnectTimeout <= 0 {
			errs = append(errs, errors.New("cache.connect_timeout must be positive"))
		}
	case BackendMemory:
		if c.Cache.MemoryEntries <= 0 {
			errs = append(errs, errors.New("cache.memory_entries must be positive"))
		}
	case BackendNone:
	default:
		errs = append(errs, fmt.Errorf("cache.backend must be redis, memory or none, got %q", c.Cache.Backend))
	}
	if c.Cache.TTL <= 0 {
		errs = append(errs, errors.New("cache.ttl must be positive"))
	}

	if c.Fetch.Timeout <= 0 {
		errs = append(errs, errors.New("fetch.timeout must be positive"))
	}
	if c.Fetch.MaxBytes <= 0 {
		errs = append(errs, errors.New("fetch.max_bytes must be positive"))
	}

	if c.Pipeline.SharedTimeout <= 0 {
		errs = append(errs, errors.New("pipeline.shared_timeout must be positive"))
	}

	switch c.Pipeline.FallbackCaching {
	case "transformed", "served":
	default:
		errs = append(errs, fmt.Errorf("pipeline.fallback_caching must be transformed or served, got %q", c.Pipeline.FallbackCaching))
	}

	if c.Warm.MaxConcurrency <= 0 {
		errs = append(errs, errors.New("warm.max_concurrency must be positive"))
	}
	if c.Warm.Timeout <= 0 {
		errs = append(errs, errors.New("warm.timeout must be positive"))
	}

	if err := errors.Join(errs...); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}
	return nil
}
