package margin

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// Config is the top-level daemon configuration.
type Config struct {
	// DB is the SQLite path for the local annotation store.
	DB string `yaml:"db"`
	// Listen is the HTTP API address. Empty disables the API.
	Listen string `yaml:"listen"`
	// Page is the document to attach to at startup.
	Page PageConfig `yaml:"page"`
	// Remote configures the remote annotation store.
	Remote RemoteConfig `yaml:"remote"`
	// Watch tunes the document watcher.
	Watch WatchConfig `yaml:"watch"`
	// Sync tunes the periodic delivery trigger.
	Sync SyncConfig `yaml:"sync"`
	// Selection tunes selection capture.
	Selection SelectionConfig `yaml:"selection"`
	// Color is the highlight color for new annotations.
	Color string `yaml:"color"`
}

// PageConfig identifies the host document.
type PageConfig struct {
	URL string `yaml:"url"`
	// Browser connects to a running Chrome instance instead of launching
	// one. Empty launches locally.
	Browser string `yaml:"browser"`
}

// RemoteConfig points at the remote annotation store.
type RemoteConfig struct {
	URL   string `yaml:"url"`
	Token string `yaml:"token"`
}

// WatchConfig tunes debounce and settle windows.
type WatchConfig struct {
	Debounce time.Duration `yaml:"debounce"`
	Settle   time.Duration `yaml:"settle"`
}

// SyncConfig tunes the periodic sync pass.
type SyncConfig struct {
	Interval time.Duration `yaml:"interval"`
}

// SelectionConfig tunes selection validation.
type SelectionConfig struct {
	MaxLength int `yaml:"max_length"`
}

func (c *Config) defaults() {
	if c.DB == "" {
		c.DB = "margin.db"
	}
	if c.Sync.Interval <= 0 {
		c.Sync.Interval = 30 * time.Second
	}
}

// LoadConfigFile reads a YAML configuration file.
func LoadConfigFile(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("margin: read config: %w", err)
	}
	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("margin: parse config: %w", err)
	}
	cfg.defaults()
	return &cfg, nil
}
