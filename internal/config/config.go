package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/spf13/viper"
)

type Config struct {
	API      APIConfig      `mapstructure:"api"`
	Database DatabaseConfig `mapstructure:"database"`
	Gateway  GatewayConfig  `mapstructure:"gateway"`
	Sync     SyncConfig     `mapstructure:"sync"`
	Log      LogConfig      `mapstructure:"log"`
}

type APIConfig struct {
	BaseURL     string        `mapstructure:"base_url"`
	HTTPTimeout time.Duration `mapstructure:"http_timeout"`
}

type DatabaseConfig struct {
	Path        string `mapstructure:"path"`
	CachePath   string `mapstructure:"cache_path"`
	SearchIndex string `mapstructure:"search_index"`
}

type GatewayConfig struct {
	Addr          string `mapstructure:"addr"`
	ShellBaseURL  string `mapstructure:"shell_base_url"`
	OfflineNotice string `mapstructure:"offline_notice"`
}

type SyncConfig struct {
	ProbeInterval time.Duration `mapstructure:"probe_interval"`
}

type LogConfig struct {
	Level string `mapstructure:"level"`
	File  string `mapstructure:"file"`
}

func defaultConfig() *Config {
	homeDir, _ := os.UserHomeDir()
	dataDir := filepath.Join(homeDir, ".storyhive")

	return &Config{
		API: APIConfig{
			BaseURL:     "https://story-api.dicoding.dev/v1",
			HTTPTimeout: 30 * time.Second,
		},
		Database: DatabaseConfig{
			Path:        filepath.Join(dataDir, "favorites.db"),
			CachePath:   filepath.Join(dataDir, "netcache.db"),
			SearchIndex: filepath.Join(dataDir, "index.bleve"),
		},
		Gateway: GatewayConfig{
			Addr:         "127.0.0.1:8730",
			ShellBaseURL: "",
		},
		Sync: SyncConfig{
			ProbeInterval: 30 * time.Second,
		},
		Log: LogConfig{
			Level: "info",
		},
	}
}

// Load reads configuration from configPath, or from the default location
// (~/.config/storyhive/config.toml) when empty. A missing file yields the
// defaults.
func Load(configPath string) (*Config, error) {
	v := viper.New()
	v.SetConfigType("toml")

	if configPath != "" {
		v.SetConfigFile(expandPath(configPath))
	} else {
		home, _ := os.UserHomeDir()
		v.AddConfigPath(filepath.Join(home, ".config", "storyhive"))
		v.AddConfigPath(".")
		v.SetConfigName("config")
	}

	defaults := defaultConfig()
	v.SetDefault("api.base_url", defaults.API.BaseURL)
	v.SetDefault("api.http_timeout", defaults.API.HTTPTimeout)
	v.SetDefault("database.path", defaults.Database.Path)
	v.SetDefault("database.cache_path", defaults.Database.CachePath)
	v.SetDefault("database.search_index", defaults.Database.SearchIndex)
	v.SetDefault("gateway.addr", defaults.Gateway.Addr)
	v.SetDefault("gateway.shell_base_url", defaults.Gateway.ShellBaseURL)
	v.SetDefault("gateway.offline_notice", defaults.Gateway.OfflineNotice)
	v.SetDefault("sync.probe_interval", defaults.Sync.ProbeInterval)
	v.SetDefault("log.level", defaults.Log.Level)
	v.SetDefault("log.file", defaults.Log.File)

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) && !os.IsNotExist(err) {
			return nil, fmt.Errorf("reading config: %w", err)
		}
	}

	var config Config
	if err := v.Unmarshal(&config); err != nil {
		return nil, fmt.Errorf("unmarshaling config: %w", err)
	}

	expandPaths(&config)
	return &config, nil
}

// expandPath expands ~ and converts to an absolute path.
func expandPath(path string) string {
	if path == "" {
		return path
	}
	if len(path) >= 2 && path[:2] == "~/" {
		home, _ := os.UserHomeDir()
		path = filepath.Join(home, path[2:])
	}
	if !filepath.IsAbs(path) {
		if abs, err := filepath.Abs(path); err == nil {
			path = abs
		}
	}
	return path
}

func expandPaths(cfg *Config) {
	cfg.Database.Path = expandPath(cfg.Database.Path)
	cfg.Database.CachePath = expandPath(cfg.Database.CachePath)
	cfg.Database.SearchIndex = expandPath(cfg.Database.SearchIndex)
	cfg.Log.File = expandPath(cfg.Log.File)
}

func Save(config *Config, path string) error {
	v := viper.New()
	v.SetConfigType("toml")

	apiCfg := map[string]interface{}{
		"base_url":     config.API.BaseURL,
		"http_timeout": config.API.HTTPTimeout.String(),
	}
	syncCfg := map[string]interface{}{
		"probe_interval": config.Sync.ProbeInterval.String(),
	}

	v.Set("api", apiCfg)
	v.Set("database", config.Database)
	v.Set("gateway", config.Gateway)
	v.Set("sync", syncCfg)
	v.Set("log", config.Log)

	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("creating config directory: %w", err)
	}

	return v.WriteConfigAs(path)
}

func GenerateDefaultConfig(path string) error {
	return Save(defaultConfig(), path)
}
