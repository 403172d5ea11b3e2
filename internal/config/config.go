package config

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/ghfetch/ghfetch/internal/mirror"
)

// Config is the top-level configuration
type Config struct {
	Mirrors  []MirrorConfig `yaml:"mirrors"`
	Download DownloadConfig `yaml:"download"`
	Update   UpdateConfig   `yaml:"update"`
	History  HistoryConfig  `yaml:"history"`
}

// MirrorConfig describes one proxy entry of the rewrite registry
type MirrorConfig struct {
	Mode    string `yaml:"mode"`
	BaseURL string `yaml:"base_url"`
}

// DownloadConfig holds supervisor and transfer-tool settings
type DownloadConfig struct {
	MaxRetries           int      `yaml:"max_retries"`
	MinSpeedKB           int      `yaml:"min_speed_kb"`
	CheckIntervalSeconds int      `yaml:"check_interval_seconds"`
	Connections          int      `yaml:"connections"`
	Aria2cBinary         string   `yaml:"aria2c_binary"`
	AllowHosts           []string `yaml:"allow_hosts"`
}

// UpdateConfig holds self-update settings
type UpdateConfig struct {
	SourceURL             string `yaml:"source_url"`
	StateFile             string `yaml:"state_file"`
	CooldownHours         int    `yaml:"cooldown_hours"`
	InstallPath           string `yaml:"install_path"`
	ConnectTimeoutSeconds int    `yaml:"connect_timeout_seconds"`
}

// HistoryConfig holds the download-history store settings
type HistoryConfig struct {
	DBPath string `yaml:"db_path"`
}

// DefaultConfig returns a config with sensible defaults
func DefaultConfig() *Config {
	stateFile := "/var/tmp/ghfetch-last-check"
	dbPath := ""
	if home, err := os.UserHomeDir(); err == nil {
		stateFile = filepath.Join(home, ".cache", "ghfetch", "last-check")
		dbPath = filepath.Join(home, ".local", "share", "ghfetch", "history.db")
	}

	return &Config{
		Mirrors: []MirrorConfig{
			{Mode: "prefix", BaseURL: "https://mirror.ghproxy.com/"},
			{Mode: "prefix", BaseURL: "https://ghps.cc/"},
			{Mode: "prefix", BaseURL: "https://gh.ddlc.top/"},
		},
		Download: DownloadConfig{
			MaxRetries:           3,
			MinSpeedKB:           64,
			CheckIntervalSeconds: 10,
			Connections:          16,
			Aria2cBinary:         "aria2c",
			AllowHosts: []string{
				"github.com",
				"raw.githubusercontent.com",
				"objects.githubusercontent.com",
				"codeload.github.com",
				"gist.githubusercontent.com",
			},
		},
		Update: UpdateConfig{
			SourceURL:             "https://raw.githubusercontent.com/ghfetch/ghfetch/main/release/ghfetch",
			StateFile:             stateFile,
			CooldownHours:         24,
			ConnectTimeoutSeconds: 5,
		},
		History: HistoryConfig{
			DBPath: dbPath,
		},
	}
}

// Load reads a config file from the given path
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config file: %w", err)
	}

	cfg := DefaultConfig()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parsing config file: %w", err)
	}

	return cfg, nil
}

// FindConfigFile searches for a config file in standard locations
func FindConfigFile() (string, error) {
	searchPaths := []string{
		"ghfetch.yaml",
		"/etc/ghfetch/ghfetch.yaml",
	}

	// Add user config path
	if home, err := os.UserHomeDir(); err == nil {
		searchPaths = append(searchPaths,
			filepath.Join(home, ".config", "ghfetch", "ghfetch.yaml"),
		)
	}

	for _, path := range searchPaths {
		if _, err := os.Stat(path); err == nil {
			return path, nil
		}
	}

	return "", fmt.Errorf("no config file found (searched: %v)", searchPaths)
}

// Registry builds the mirror registry from the configured entries and host
// allowlist.
func (c *Config) Registry() (*mirror.Registry, error) {
	entries := make([]mirror.Entry, 0, len(c.Mirrors))
	for _, m := range c.Mirrors {
		entries = append(entries, mirror.Entry{
			Mode:    mirror.Mode(m.Mode),
			BaseURL: m.BaseURL,
		})
	}
	return mirror.New(entries, c.Download.AllowHosts)
}

// CheckInterval returns the throughput-sampling interval as a duration.
func (c *Config) CheckInterval() time.Duration {
	return time.Duration(c.Download.CheckIntervalSeconds) * time.Second
}

// UpdateCooldown returns the self-update check cooldown as a duration.
func (c *Config) UpdateCooldown() time.Duration {
	return time.Duration(c.Update.CooldownHours) * time.Hour
}

// ConnectTimeout returns the self-update fetch timeout as a duration.
func (c *Config) ConnectTimeout() time.Duration {
	return time.Duration(c.Update.ConnectTimeoutSeconds) * time.Second
}
