package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// EnvPrefix prefixes every environment override, e.g. PATIENTDESK_API_BASE_URL.
const EnvPrefix = "PATIENTDESK"

// Config is the persistent application configuration
type Config struct {
	API       APIConfig       `json:"api" mapstructure:"api"`
	Search    SearchConfig    `json:"search" mapstructure:"search"`
	DevServer DevServerConfig `json:"devserver" mapstructure:"devserver"`
	Log       LogConfig       `json:"log" mapstructure:"log"`
}

// APIConfig points the client at the patient and auth services
type APIConfig struct {
	BaseURL       string  `json:"base_url" mapstructure:"base_url"`
	TimeoutMs     int     `json:"timeout_ms" mapstructure:"timeout_ms"`
	RatePerSecond float64 `json:"rate_per_second" mapstructure:"rate_per_second"` // 0 disables limiting
	Burst         int     `json:"burst" mapstructure:"burst"`
}

// SearchConfig tunes the search view
type SearchConfig struct {
	DebounceMs int `json:"debounce_ms" mapstructure:"debounce_ms"` // name field quiet interval
}

// DevServerConfig holds the local dev server settings
type DevServerConfig struct {
	Addr        string `json:"addr" mapstructure:"addr"`
	Secret      string `json:"secret" mapstructure:"secret"`
	RequireAuth bool   `json:"require_auth" mapstructure:"require_auth"`
	LatencyMs   int    `json:"latency_ms" mapstructure:"latency_ms"`
	JitterMs    int    `json:"jitter_ms" mapstructure:"jitter_ms"`
	DBPath      string `json:"db_path" mapstructure:"db_path"` // empty means in-memory
}

// LogConfig holds logging preferences
type LogConfig struct {
	Level string `json:"level" mapstructure:"level"` // debug, info, warn, error
}

// DefaultConfig returns sensible defaults
func DefaultConfig() *Config {
	return &Config{
		API: APIConfig{
			BaseURL:       "http://localhost:4004",
			TimeoutMs:     10000,
			RatePerSecond: 20,
			Burst:         5,
		},
		Search: SearchConfig{
			DebounceMs: 300,
		},
		DevServer: DevServerConfig{
			Addr:        ":4004",
			Secret:      "patientdesk-dev-secret",
			RequireAuth: true,
		},
		Log: LogConfig{
			Level: "info",
		},
	}
}

// DataDir is where config, token, logs and events live. PATIENTDESK_HOME
// overrides the default ~/.patientdesk.
func DataDir() string {
	if dir := os.Getenv(EnvPrefix + "_HOME"); dir != "" {
		return dir
	}
	home, _ := os.UserHomeDir()
	return filepath.Join(home, ".patientdesk")
}

// ConfigPath returns the path to the config file
func ConfigPath() string {
	return filepath.Join(DataDir(), "config.json")
}

// Load reads the config file at path (a missing file is fine) and applies
// PATIENTDESK_* environment overrides on top of the defaults.
func Load(path string) (*Config, error) {
	v := viper.New()
	v.SetConfigFile(path)
	v.SetConfigType("json")
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	setDefaults(v, DefaultConfig())

	if err := v.ReadInConfig(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("read config %s: %w", path, err)
	}

	cfg := &Config{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}
	return cfg, nil
}

// setDefaults registers every key so that env overrides reach Unmarshal.
func setDefaults(v *viper.Viper, d *Config) {
	v.SetDefault("api.base_url", d.API.BaseURL)
	v.SetDefault("api.timeout_ms", d.API.TimeoutMs)
	v.SetDefault("api.rate_per_second", d.API.RatePerSecond)
	v.SetDefault("api.burst", d.API.Burst)
	v.SetDefault("search.debounce_ms", d.Search.DebounceMs)
	v.SetDefault("devserver.addr", d.DevServer.Addr)
	v.SetDefault("devserver.secret", d.DevServer.Secret)
	v.SetDefault("devserver.require_auth", d.DevServer.RequireAuth)
	v.SetDefault("devserver.latency_ms", d.DevServer.LatencyMs)
	v.SetDefault("devserver.jitter_ms", d.DevServer.JitterMs)
	v.SetDefault("devserver.db_path", d.DevServer.DBPath)
	v.SetDefault("log.level", d.Log.Level)
}

// Save writes config to path
func (c *Config) Save(path string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0700); err != nil {
		return err
	}

	data, err := json.MarshalIndent(c, "", "  ")
	if err != nil {
		return err
	}

	return os.WriteFile(path, data, 0600) // holds the dev server secret
}

// Timeout is the per-request transport timeout.
func (c *Config) Timeout() time.Duration {
	return time.Duration(c.API.TimeoutMs) * time.Millisecond
}

// Debounce is the name field's quiet interval.
func (c *Config) Debounce() time.Duration {
	return time.Duration(c.Search.DebounceMs) * time.Millisecond
}

// Latency and Jitter are the dev server's artificial delays.
func (c *Config) Latency() time.Duration {
	return time.Duration(c.DevServer.LatencyMs) * time.Millisecond
}

func (c *Config) Jitter() time.Duration {
	return time.Duration(c.DevServer.JitterMs) * time.Millisecond
}
