// Package config loads application settings from the tasknest home
// directory, environment variables, and built-in defaults.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/spf13/viper"
)

// Config holds every tunable the application reads at startup.
type Config struct {
	// DBPath is the local SQLite database file.
	DBPath string `mapstructure:"db_path" toml:"db_path"`

	// RemoteURL is the cloud database URL (libsql://... or file:...).
	RemoteURL string `mapstructure:"remote_url" toml:"remote_url"`

	// AuthURL is the base URL of the account service.
	AuthURL string `mapstructure:"auth_url" toml:"auth_url"`

	// FeedURL is the websocket endpoint for change notifications.
	// Empty disables the feed.
	FeedURL string `mapstructure:"feed_url" toml:"feed_url"`

	// ProbeAddr is the host:port dialed to test connectivity.
	ProbeAddr string `mapstructure:"probe_addr" toml:"probe_addr"`

	// ProbeInterval is how often the network monitor polls.
	ProbeInterval time.Duration `mapstructure:"probe_interval" toml:"probe_interval"`

	// SyncInterval is the cadence of the daemon's periodic sync.
	SyncInterval time.Duration `mapstructure:"sync_interval" toml:"sync_interval"`

	// DebounceInterval batches rapid local changes before a sync.
	DebounceInterval time.Duration `mapstructure:"debounce_interval" toml:"debounce_interval"`

	// LogPath is the daemon log file. Empty logs to stderr.
	LogPath string `mapstructure:"log_path" toml:"log_path"`
}

// Default returns the built-in configuration rooted at dir.
func Default(dir string) *Config {
	return &Config{
		DBPath:           filepath.Join(dir, "tasknest.db"),
		RemoteURL:        "",
		AuthURL:          "",
		FeedURL:          "",
		ProbeAddr:        "1.1.1.1:443",
		ProbeInterval:    15 * time.Second,
		SyncInterval:     5 * time.Minute,
		DebounceInterval: 2 * time.Second,
		LogPath:          filepath.Join(dir, "daemon.log"),
	}
}

// Dir returns the tasknest home directory, honoring TASKNEST_HOME.
func Dir() (string, error) {
	if dir := os.Getenv("TASKNEST_HOME"); dir != "" {
		return dir, nil
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("failed to resolve home directory: %w", err)
	}
	return filepath.Join(home, ".tasknest"), nil
}

// SessionPath returns the saved session file under dir.
func SessionPath(dir string) string {
	return filepath.Join(dir, "session.json")
}

// CrashPath returns the crash marker file under dir.
func CrashPath(dir string) string {
	return filepath.Join(dir, "crash.json")
}

// Load reads config.toml from dir, layered under TASKNEST_* environment
// variables, on top of the defaults. A missing file is not an error.
func Load(dir string) (*Config, error) {
	v := viper.New()
	v.SetConfigName("config")
	v.SetConfigType("toml")
	v.AddConfigPath(dir)
	v.SetEnvPrefix("tasknest")
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	v.AutomaticEnv()

	def := Default(dir)
	v.SetDefault("db_path", def.DBPath)
	v.SetDefault("remote_url", def.RemoteURL)
	v.SetDefault("auth_url", def.AuthURL)
	v.SetDefault("feed_url", def.FeedURL)
	v.SetDefault("probe_addr", def.ProbeAddr)
	v.SetDefault("probe_interval", def.ProbeInterval)
	v.SetDefault("sync_interval", def.SyncInterval)
	v.SetDefault("debounce_interval", def.DebounceInterval)
	v.SetDefault("log_path", def.LogPath)

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, fmt.Errorf("failed to read config: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}
	return &cfg, nil
}

// WriteDefault creates dir and writes the default config.toml if one
// does not already exist. Returns the file path.
func WriteDefault(dir string) (string, error) {
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return "", fmt.Errorf("failed to create config directory: %w", err)
	}

	path := filepath.Join(dir, "config.toml")
	if _, err := os.Stat(path); err == nil {
		return path, nil
	}

	f, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0o600)
	if err != nil {
		return "", fmt.Errorf("failed to create config file: %w", err)
	}
	defer f.Close()

	if err := toml.NewEncoder(f).Encode(Default(dir)); err != nil {
		return "", fmt.Errorf("failed to write default config: %w", err)
	}
	return path, nil
}
