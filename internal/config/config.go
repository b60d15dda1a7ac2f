package config

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/BurntSushi/toml"
)

// Provider kinds.
const (
	ProviderRemote   = "remote"
	ProviderWhatsApp = "whatsapp"
)

// Config represents the global ~/.leadchat/config.toml.
type Config struct {
	DefaultSession string         `toml:"default_session"`
	OwnerID        string         `toml:"owner_id"`
	MetricsAddr    string         `toml:"metrics_addr"`
	Provider       ProviderConfig `toml:"provider"`
	History        HistoryConfig  `toml:"history"`
	Dispatch       DispatchConfig `toml:"dispatch"`
	Records        RecordsConfig  `toml:"records"`
}

// ProviderConfig selects and configures the messaging provider.
type ProviderConfig struct {
	Kind    string   `toml:"kind"`
	BaseURL string   `toml:"base_url"`
	PushURL string   `toml:"push_url"`
	Token   string   `toml:"token"`
	Timeout Duration `toml:"timeout"`
}

// HistoryConfig tunes the history pager.
type HistoryConfig struct {
	PageSize            int `toml:"page_size"`
	NearBottomThreshold int `toml:"near_bottom_threshold"`
}

// DispatchConfig holds default batch timing, in user-facing seconds.
type DispatchConfig struct {
	Interval                 string `toml:"interval"`
	BigInterval              string `toml:"big_interval"`
	MessagesUntilBigInterval int    `toml:"messages_until_big_interval"`
}

// RecordsConfig controls how linked-record dates are interpreted.
type RecordsConfig struct {
	DateLocation string `toml:"date_location"`
}

// Duration is a time.Duration that decodes from TOML strings like "30s".
type Duration struct {
	time.Duration
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (d *Duration) UnmarshalText(text []byte) error {
	v, err := time.ParseDuration(string(text))
	if err != nil {
		return fmt.Errorf("parse duration %q: %w", text, err)
	}
	d.Duration = v
	return nil
}

// MarshalText implements encoding.TextMarshaler.
func (d Duration) MarshalText() ([]byte, error) {
	return []byte(d.Duration.String()), nil
}

// Defaults returns a config with every tunable set.
func Defaults() *Config {
	cfg := &Config{}
	cfg.applyDefaults()
	return cfg
}

func (c *Config) applyDefaults() {
	if c.DefaultSession == "" {
		c.DefaultSession = "main"
	}
	if c.Provider.Kind == "" {
		c.Provider.Kind = ProviderWhatsApp
	}
	if c.Provider.Timeout.Duration <= 0 {
		c.Provider.Timeout.Duration = 30 * time.Second
	}
	if c.History.PageSize <= 0 {
		c.History.PageSize = 50
	}
	if c.History.NearBottomThreshold <= 0 {
		c.History.NearBottomThreshold = 120
	}
	if c.Records.DateLocation == "" {
		c.Records.DateLocation = "Local"
	}
}

// Validate reports configuration combinations the daemon cannot run with.
func (c *Config) Validate() error {
	switch c.Provider.Kind {
	case ProviderWhatsApp:
	case ProviderRemote:
		if c.Provider.BaseURL == "" {
			return fmt.Errorf("provider.base_url is required for the remote provider")
		}
		if c.OwnerID == "" {
			return fmt.Errorf("owner_id is required for the remote provider")
		}
	default:
		return fmt.Errorf("unknown provider kind %q", c.Provider.Kind)
	}
	return nil
}

// Location resolves the configured date location.
func (c *Config) Location() *time.Location {
	loc, err := time.LoadLocation(c.Records.DateLocation)
	if err != nil {
		return time.Local
	}
	return loc
}

// Load reads config from the given path and fills defaults. Returns error if file missing.
func Load(path string) (*Config, error) {
	var cfg Config
	_, err := toml.DecodeFile(path, &cfg)
	if err != nil {
		return nil, err
	}
	cfg.applyDefaults()
	return &cfg, nil
}

// LoadOrDefault behaves like Load but falls back to Defaults when the file does not exist.
func LoadOrDefault(path string) (*Config, error) {
	cfg, err := Load(path)
	if os.IsNotExist(err) {
		return Defaults(), nil
	}
	return cfg, err
}

// Save writes config to the given path, creating parent dirs as needed.
func Save(path string, cfg *Config) error {
	if err := os.MkdirAll(filepath.Dir(path), 0700); err != nil {
		return err
	}
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0600)
	if err != nil {
		return err
	}
	encErr := toml.NewEncoder(f).Encode(cfg)
	if closeErr := f.Close(); closeErr != nil && encErr == nil {
		return closeErr
	}
	return encErr
}
