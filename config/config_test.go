package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefault(t *testing.T) {
	cfg := Default()
	assert.Equal(t, "127.0.0.1:7420", cfg.Server.Listen)
	assert.Equal(t, 5*time.Second, cfg.Server.ShutdownTimeout.Duration)
	assert.Equal(t, int64(10), cfg.Registry.TTL)
	assert.Equal(t, 2*time.Second, cfg.Limits.Timeout.Duration)
	assert.Equal(t, "json", cfg.Client.Codec)
	assert.Equal(t, "info", cfg.Log.Level)
	assert.NoError(t, cfg.Validate())
	assert.Equal(t, "127.0.0.1:7420", cfg.AdvertiseAddr())
}

func TestLoadFromFile(t *testing.T) {
	tomlContent := `
[server]
listen = ":7500"
advertise = "10.0.0.5:7500"
shutdown_timeout = "1s"

[registry]
endpoints = ["127.0.0.1:2379", "127.0.0.1:22379"]
prefix = "/channels"
ttl = 30

[limits]
timeout = "250ms"
rate_limit = 100
burst = 10

[platform]
name = "Android"
release = "14"

[client]
codec = "binary"
balancer = "consistent_hash"

[log]
level = "debug"
development = true
`
	path := filepath.Join(t.TempDir(), "channeld.toml")
	require.NoError(t, os.WriteFile(path, []byte(tomlContent), 0644))

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, ":7500", cfg.Server.Listen)
	assert.Equal(t, "10.0.0.5:7500", cfg.AdvertiseAddr())
	assert.Equal(t, time.Second, cfg.Server.ShutdownTimeout.Duration)
	assert.Equal(t, []string{"127.0.0.1:2379", "127.0.0.1:22379"}, cfg.Registry.Endpoints)
	assert.Equal(t, "/channels", cfg.Registry.Prefix)
	assert.Equal(t, int64(30), cfg.Registry.TTL)
	assert.Equal(t, 1, cfg.Registry.Weight) // default kept
	assert.Equal(t, 250*time.Millisecond, cfg.Limits.Timeout.Duration)
	assert.Equal(t, 100.0, cfg.Limits.RateLimit)
	assert.Equal(t, 10, cfg.Limits.Burst)
	assert.Equal(t, PlatformConfig{Name: "Android", Release: "14"}, cfg.Platform)
	assert.Equal(t, "binary", cfg.Client.Codec)
	assert.Equal(t, "consistent_hash", cfg.Client.Balancer)
	assert.Equal(t, 4, cfg.Client.PoolSize)
	assert.Equal(t, "debug", cfg.Log.Level)
	assert.True(t, cfg.Log.Development)
}

func TestLoadMissingFileUsesDefaults(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "nope.toml"))
	require.NoError(t, err)
	assert.Equal(t, Default(), cfg)

	cfg, err = Load("")
	require.NoError(t, err)
	assert.Equal(t, Default(), cfg)
}

func TestLoadInvalidTOML(t *testing.T) {
	path := filepath.Join(t.TempDir(), "bad.toml")
	require.NoError(t, os.WriteFile(path, []byte("[invalid toml..."), 0644))
	_, err := Load(path)
	assert.Error(t, err)
}

func TestLoadInvalidDuration(t *testing.T) {
	path := filepath.Join(t.TempDir(), "bad.toml")
	require.NoError(t, os.WriteFile(path, []byte("[limits]\ntimeout = \"soon\"\n"), 0644))
	_, err := Load(path)
	assert.Error(t, err)
}

func TestValidate(t *testing.T) {
	cases := map[string]func(*Config){
		"empty listen":       func(c *Config) { c.Server.Listen = "" },
		"zero ttl":           func(c *Config) { c.Registry.TTL = 0 },
		"rate without burst": func(c *Config) { c.Limits.RateLimit = 5 },
		"negative burst":     func(c *Config) { c.Limits.Burst = -1 },
		"half platform":      func(c *Config) { c.Platform.Name = "Android" },
	}
	for name, mutate := range cases {
		t.Run(name, func(t *testing.T) {
			cfg := Default()
			mutate(cfg)
			assert.Error(t, cfg.Validate())
		})
	}
}
