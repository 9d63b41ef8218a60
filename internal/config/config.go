// Package config provides configuration loading and structs for the Bukken server.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"
)

// Config holds all configuration for the application.
type Config struct {
	Debug   bool          `yaml:"debug"`
	Server  ServerConfig  `yaml:"server"`
	Storage StorageConfig `yaml:"storage"`
	Upload  UploadConfig  `yaml:"upload"`
	Search  SearchConfig  `yaml:"search"`
	Watch   WatchConfig   `yaml:"watch"`
}

// ServerConfig holds HTTP server settings.
type ServerConfig struct {
	Host string `yaml:"host"`
	Port int    `yaml:"port"`
}

// StorageConfig holds the row store, search index, and file bucket locations.
// Driver is "sqlite3" for a local file database or "postgres" for a managed
// Postgres-compatible service; DSN is the file path or connection URL.
type StorageConfig struct {
	Driver         string `yaml:"driver"`
	DSN            string `yaml:"dsn"`
	BleveIndexPath string `yaml:"bleve_index_path"`
	BucketDir      string `yaml:"bucket_dir"`
}

// UploadConfig holds ingest policy settings.
type UploadConfig struct {
	MaxUploadBytes int64  `yaml:"max_upload_bytes"`
	KeyField       string `yaml:"key_field"`
	// HeaderPolicy is "exclude" (drop blank/placeholder headers) or
	// "autoname" (keep blank headers under synthesized names). Both
	// behaviors shipped historically; the choice is per deployment.
	HeaderPolicy string `yaml:"header_policy"`
}

// SearchConfig holds search limits.
type SearchConfig struct {
	DefaultLimit int `yaml:"default_limit"`
	MaxLimit     int `yaml:"max_limit"`
}

// WatchConfig holds drop-directory settings for automatic ingestion.
type WatchConfig struct {
	Directories []string `yaml:"directories"`
	Extensions  []string `yaml:"extensions"`
}

// Load reads and parses the config file at path, applies defaults and
// environment overrides, and expands relative paths. Returns an error if the
// file cannot be read or parsed.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config: %w", err)
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}

	ApplyDefaults(&cfg)
	applyEnvOverrides(&cfg)

	configDir := filepath.Dir(path)
	if cfg.Storage.Driver == "sqlite3" {
		cfg.Storage.DSN = expandPath(cfg.Storage.DSN, configDir)
	}
	cfg.Storage.BleveIndexPath = expandPath(cfg.Storage.BleveIndexPath, configDir)
	cfg.Storage.BucketDir = expandPath(cfg.Storage.BucketDir, configDir)
	for i := range cfg.Watch.Directories {
		cfg.Watch.Directories[i] = expandPath(cfg.Watch.Directories[i], configDir)
	}

	return &cfg, nil
}

// Save writes the config to path. Used for persisting watch directory changes.
func Save(path string, cfg *Config) error {
	data, err := yaml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}
	if err := os.WriteFile(path, data, 0600); err != nil {
		return fmt.Errorf("failed to write config: %w", err)
	}
	return nil
}

// applyEnvOverrides lets the deployment point the row store at a managed
// Postgres endpoint without editing the config file. The variable is
// typically loaded from .env by the entry point.
func applyEnvOverrides(cfg *Config) {
	if dsn := os.Getenv("BUKKEN_DATABASE_URL"); dsn != "" {
		cfg.Storage.Driver = "postgres"
		cfg.Storage.DSN = dsn
	}
}

// expandPath converts a path to absolute. Paths starting with "./" are
// relative to configDir; other relative paths are relative to the home
// directory.
func expandPath(path string, configDir string) string {
	if path == "" || filepath.IsAbs(path) {
		return path
	}
	if strings.HasPrefix(path, "./") || path == "." {
		return filepath.Join(configDir, path)
	}
	if home, err := os.UserHomeDir(); err == nil {
		return filepath.Join(home, path)
	}
	return path
}
