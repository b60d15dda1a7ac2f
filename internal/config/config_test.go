package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestSaveAndLoad(t *testing.T) {
	tmpDir := t.TempDir()
	path := filepath.Join(tmpDir, "config.toml")

	cfg := Defaults()
	cfg.DefaultSession = "work"
	cfg.OwnerID = "U1"
	cfg.Provider.Kind = ProviderRemote
	cfg.Provider.BaseURL = "http://crm.local/api"
	cfg.Provider.Timeout = Duration{5 * time.Second}
	cfg.Dispatch.Interval = "1.2"
	if err := Save(path, cfg); err != nil {
		t.Fatalf("Save() error = %v", err)
	}

	loaded, err := Load(path)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if loaded.DefaultSession != "work" {
		t.Errorf("DefaultSession = %q, want %q", loaded.DefaultSession, "work")
	}
	if loaded.Provider.Timeout.Duration != 5*time.Second {
		t.Errorf("Provider.Timeout = %v, want 5s", loaded.Provider.Timeout.Duration)
	}
	if loaded.Dispatch.Interval != "1.2" {
		t.Errorf("Dispatch.Interval = %q, want 1.2", loaded.Dispatch.Interval)
	}
	if err := loaded.Validate(); err != nil {
		t.Errorf("Validate() error = %v", err)
	}
}

func TestLoadFillsDefaults(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.toml")
	if err := os.WriteFile(path, []byte("owner_id = \"U9\"\n"), 0600); err != nil {
		t.Fatal(err)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatal(err)
	}
	if cfg.History.PageSize != 50 {
		t.Errorf("PageSize = %d, want 50", cfg.History.PageSize)
	}
	if cfg.History.NearBottomThreshold != 120 {
		t.Errorf("NearBottomThreshold = %d, want 120", cfg.History.NearBottomThreshold)
	}
	if cfg.Provider.Kind != ProviderWhatsApp {
		t.Errorf("Provider.Kind = %q, want %q", cfg.Provider.Kind, ProviderWhatsApp)
	}
	if cfg.DefaultSession != "main" {
		t.Errorf("DefaultSession = %q, want main", cfg.DefaultSession)
	}
}

func TestLoadMissing(t *testing.T) {
	_, err := Load("/nonexistent/config.toml")
	if err == nil {
		t.Error("Load() expected error for missing file")
	}

	cfg, err := LoadOrDefault("/nonexistent/config.toml")
	if err != nil {
		t.Fatalf("LoadOrDefault() error = %v", err)
	}
	if cfg.DefaultSession != "main" {
		t.Errorf("DefaultSession = %q, want main", cfg.DefaultSession)
	}
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(c *Config)
		wantErr bool
	}{
		{"whatsapp default", func(c *Config) {}, false},
		{"remote without url", func(c *Config) { c.Provider.Kind = ProviderRemote; c.OwnerID = "U1" }, true},
		{"remote without owner", func(c *Config) { c.Provider.Kind = ProviderRemote; c.Provider.BaseURL = "http://x" }, true},
		{"remote complete", func(c *Config) {
			c.Provider.Kind = ProviderRemote
			c.Provider.BaseURL = "http://x"
			c.OwnerID = "U1"
		}, false},
		{"unknown kind", func(c *Config) { c.Provider.Kind = "carrier-pigeon" }, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Defaults()
			tt.mutate(cfg)
			err := cfg.Validate()
			if (err != nil) != tt.wantErr {
				t.Errorf("Validate() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestSavePermissions(t *testing.T) {
	tmpDir := t.TempDir()
	path := filepath.Join(tmpDir, "config.toml")

	if err := Save(path, &Config{DefaultSession: "main"}); err != nil {
		t.Fatal(err)
	}

	info, err := os.Stat(path)
	if err != nil {
		t.Fatal(err)
	}
	perm := info.Mode().Perm()
	if perm != 0600 {
		t.Errorf("file permission = %o, want 0600", perm)
	}
}
