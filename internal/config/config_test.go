package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func TestDefaultConfig(t *testing.T) {
	cfg := defaultConfig()

	if cfg.API.BaseURL != "https://story-api.dicoding.dev/v1" {
		t.Errorf("API.BaseURL = %s, want the public story service", cfg.API.BaseURL)
	}
	if cfg.API.HTTPTimeout != 30*time.Second {
		t.Errorf("API.HTTPTimeout = %v, want 30s", cfg.API.HTTPTimeout)
	}

	if cfg.Database.Path == "" || cfg.Database.CachePath == "" {
		t.Error("database paths should have defaults")
	}
	if cfg.Database.Path == cfg.Database.CachePath {
		t.Error("favorites and cache must not share a database file path")
	}
	if !strings.HasSuffix(cfg.Database.SearchIndex, "index.bleve") {
		t.Errorf("Database.SearchIndex = %s, want an index.bleve path", cfg.Database.SearchIndex)
	}

	if cfg.Gateway.Addr != "127.0.0.1:8730" {
		t.Errorf("Gateway.Addr = %s, want a loopback default", cfg.Gateway.Addr)
	}
	if cfg.Sync.ProbeInterval != 30*time.Second {
		t.Errorf("Sync.ProbeInterval = %v, want 30s", cfg.Sync.ProbeInterval)
	}
	if cfg.Log.Level != "info" {
		t.Errorf("Log.Level = %s, want info", cfg.Log.Level)
	}
}

func TestLoad_DefaultConfig(t *testing.T) {
	cfg, err := Load("")
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg == nil {
		t.Fatal("Load() returned nil config")
	}
	if cfg.API.BaseURL == "" {
		t.Error("expected a default API base URL")
	}
	if cfg.Sync.ProbeInterval <= 0 {
		t.Errorf("Sync.ProbeInterval = %v, want a positive default", cfg.Sync.ProbeInterval)
	}
}

func TestLoad_FromFile(t *testing.T) {
	tmpDir, err := os.MkdirTemp("", "config-test-*")
	if err != nil {
		t.Fatal(err)
	}
	defer os.RemoveAll(tmpDir)

	configPath := filepath.Join(tmpDir, "test-config.toml")
	configContent := `
[api]
base_url = "http://127.0.0.1:8730/v1"
http_timeout = "10s"

[database]
path = "/tmp/fav.db"
cache_path = "/tmp/cache.db"

[gateway]
addr = "127.0.0.1:9000"
offline_notice = "No network."

[sync]
probe_interval = "5s"

[log]
level = "debug"
`
	if writeErr := os.WriteFile(configPath, []byte(configContent), 0o644); writeErr != nil {
		t.Fatal(writeErr)
	}

	cfg, err := Load(configPath)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	if cfg.API.BaseURL != "http://127.0.0.1:8730/v1" {
		t.Errorf("API.BaseURL = %s", cfg.API.BaseURL)
	}
	if cfg.API.HTTPTimeout != 10*time.Second {
		t.Errorf("API.HTTPTimeout = %v, want 10s", cfg.API.HTTPTimeout)
	}
	if cfg.Database.Path != "/tmp/fav.db" {
		t.Errorf("Database.Path = %s", cfg.Database.Path)
	}
	if cfg.Gateway.Addr != "127.0.0.1:9000" {
		t.Errorf("Gateway.Addr = %s", cfg.Gateway.Addr)
	}
	if cfg.Gateway.OfflineNotice != "No network." {
		t.Errorf("Gateway.OfflineNotice = %s", cfg.Gateway.OfflineNotice)
	}
	if cfg.Sync.ProbeInterval != 5*time.Second {
		t.Errorf("Sync.ProbeInterval = %v, want 5s", cfg.Sync.ProbeInterval)
	}
	if cfg.Log.Level != "debug" {
		t.Errorf("Log.Level = %s, want debug", cfg.Log.Level)
	}

	// Unset sections keep their defaults.
	if cfg.Database.SearchIndex == "" {
		t.Error("expected default search index path to survive a partial file")
	}
}

func TestLoad_ExpandsHomePaths(t *testing.T) {
	tmpDir, err := os.MkdirTemp("", "config-test-*")
	if err != nil {
		t.Fatal(err)
	}
	defer os.RemoveAll(tmpDir)

	configPath := filepath.Join(tmpDir, "config.toml")
	configContent := `
[database]
path = "~/stories/fav.db"
`
	if writeErr := os.WriteFile(configPath, []byte(configContent), 0o644); writeErr != nil {
		t.Fatal(writeErr)
	}

	cfg, err := Load(configPath)
	if err != nil {
		t.Fatal(err)
	}
	if strings.HasPrefix(cfg.Database.Path, "~") {
		t.Errorf("Database.Path not expanded: %s", cfg.Database.Path)
	}
	if !filepath.IsAbs(cfg.Database.Path) {
		t.Errorf("Database.Path not absolute: %s", cfg.Database.Path)
	}
}

func TestLoad_InvalidTOML(t *testing.T) {
	tmpDir, err := os.MkdirTemp("", "config-test-*")
	if err != nil {
		t.Fatal(err)
	}
	defer os.RemoveAll(tmpDir)

	configPath := filepath.Join(tmpDir, "bad.toml")
	if writeErr := os.WriteFile(configPath, []byte("[api\nbase_url="), 0o644); writeErr != nil {
		t.Fatal(writeErr)
	}

	if _, err := Load(configPath); err == nil {
		t.Error("expected an error for malformed TOML")
	}
}

func TestGenerateDefaultConfig_RoundTrip(t *testing.T) {
	tmpDir, err := os.MkdirTemp("", "config-test-*")
	if err != nil {
		t.Fatal(err)
	}
	defer os.RemoveAll(tmpDir)

	configPath := filepath.Join(tmpDir, "nested", "config.toml")
	if err := GenerateDefaultConfig(configPath); err != nil {
		t.Fatalf("GenerateDefaultConfig() error = %v", err)
	}
	if _, err := os.Stat(configPath); err != nil {
		t.Fatalf("config file not written: %v", err)
	}

	cfg, err := Load(configPath)
	if err != nil {
		t.Fatalf("reloading generated config: %v", err)
	}
	defaults := defaultConfig()
	if cfg.API.BaseURL != defaults.API.BaseURL {
		t.Errorf("API.BaseURL = %s, want %s", cfg.API.BaseURL, defaults.API.BaseURL)
	}
	if cfg.API.HTTPTimeout != defaults.API.HTTPTimeout {
		t.Errorf("API.HTTPTimeout = %v, want %v", cfg.API.HTTPTimeout, defaults.API.HTTPTimeout)
	}
	if cfg.Sync.ProbeInterval != defaults.Sync.ProbeInterval {
		t.Errorf("Sync.ProbeInterval = %v, want %v", cfg.Sync.ProbeInterval, defaults.Sync.ProbeInterval)
	}
}
