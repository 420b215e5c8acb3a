// Package config loads channeld settings from TOML.
package config

import (
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/BurntSushi/toml"
)

// Config represents the top-level channeld configuration.
type Config struct {
	Server   ServerConfig   `toml:"server"`
	Registry RegistryConfig `toml:"registry"`
	Limits   LimitsConfig   `toml:"limits"`
	Platform PlatformConfig `toml:"platform"`
	Client   ClientConfig   `toml:"client"`
	Log      LogConfig      `toml:"log"`
}

// ServerConfig holds the engine host listener settings.
type ServerConfig struct {
	Listen          string   `toml:"listen"`
	Advertise       string   `toml:"advertise"`
	ShutdownTimeout Duration `toml:"shutdown_timeout"`
}

// RegistryConfig selects channel discovery. No endpoints means no registration.
type RegistryConfig struct {
	Endpoints []string `toml:"endpoints"`
	Prefix    string   `toml:"prefix"`
	TTL       int64    `toml:"ttl"`
	Weight    int      `toml:"weight"`
}

// LimitsConfig bounds each call on the host. Zero disables a limit.
type LimitsConfig struct {
	Timeout   Duration `toml:"timeout"`
	RateLimit float64  `toml:"rate_limit"`
	Burst     int      `toml:"burst"`
}

// PlatformConfig overrides the detected platform; both fields must be set to take effect.
type PlatformConfig struct {
	Name    string `toml:"name"`
	Release string `toml:"release"`
}

// ClientConfig holds settings for `channeld call`.
type ClientConfig struct {
	Codec      string   `toml:"codec"`
	Balancer   string   `toml:"balancer"`
	PoolSize   int      `toml:"pool_size"`
	Retries    int      `toml:"retries"`
	RetryDelay Duration `toml:"retry_delay"`
	Timeout    Duration `toml:"timeout"`
}

// LogConfig configures the zap logger.
type LogConfig struct {
	Level       string `toml:"level"`
	Development bool   `toml:"development"`
}

// Duration is a time.Duration written as "5s" in TOML.
type Duration struct {
	time.Duration
}

func (d *Duration) UnmarshalText(text []byte) error {
	v, err := time.ParseDuration(string(text))
	if err != nil {
		return err
	}
	d.Duration = v
	return nil
}

func (d Duration) MarshalText() ([]byte, error) {
	return []byte(d.String()), nil
}

// Default returns a Config populated with default values.
func Default() *Config {
	return &Config{
		Server: ServerConfig{
			Listen:          "127.0.0.1:7420",
			ShutdownTimeout: Duration{5 * time.Second},
		},
		Registry: RegistryConfig{
			TTL:    10,
			Weight: 1,
		},
		Limits: LimitsConfig{
			Timeout: Duration{2 * time.Second},
		},
		Client: ClientConfig{
			Codec:      "json",
			Balancer:   "round_robin",
			PoolSize:   4,
			Retries:    2,
			RetryDelay: Duration{100 * time.Millisecond},
			Timeout:    Duration{5 * time.Second},
		},
		Log: LogConfig{
			Level: "info",
		},
	}
}

// Load reads the TOML file at path over the defaults. A missing file yields the defaults.
func Load(path string) (*Config, error) {
	cfg := Default()
	if path == "" {
		return cfg, nil
	}
	if _, err := toml.DecodeFile(path, cfg); err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return cfg, nil
		}
		return nil, fmt.Errorf("load config %s: %w", path, err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config %s: %w", path, err)
	}
	return cfg, nil
}

// Validate rejects settings that cannot work.
func (c *Config) Validate() error {
	if c.Server.Listen == "" {
		return errors.New("server.listen is required")
	}
	if c.Registry.TTL <= 0 {
		return errors.New("registry.ttl must be positive")
	}
	if c.Limits.RateLimit < 0 || c.Limits.Burst < 0 {
		return errors.New("limits must not be negative")
	}
	if c.Limits.RateLimit > 0 && c.Limits.Burst == 0 {
		return errors.New("limits.burst is required with limits.rate_limit")
	}
	if (c.Platform.Name == "") != (c.Platform.Release == "") {
		return errors.New("platform.name and platform.release must be set together")
	}
	return nil
}

// AdvertiseAddr is the address put in the registry; it defaults to the listen address.
func (c *Config) AdvertiseAddr() string {
	if c.Server.Advertise != "" {
		return c.Server.Advertise
	}
	return c.Server.Listen
}
