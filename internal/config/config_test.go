package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

// TestDefaultConfig verifies that DefaultConfig returns sensible defaults
func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()

	if got := cfg.Download.MaxRetries; got != 3 {
		t.Errorf("Download.MaxRetries = %d, want 3", got)
	}
	if got := cfg.Download.MinSpeedKB; got != 64 {
		t.Errorf("Download.MinSpeedKB = %d, want 64", got)
	}
	if got := cfg.Download.CheckIntervalSeconds; got != 10 {
		t.Errorf("Download.CheckIntervalSeconds = %d, want 10", got)
	}
	if got := cfg.Download.Connections; got != 16 {
		t.Errorf("Download.Connections = %d, want 16", got)
	}
	if got := cfg.Download.Aria2cBinary; got != "aria2c" {
		t.Errorf("Download.Aria2cBinary = %q, want aria2c", got)
	}
	if got := cfg.Update.CooldownHours; got != 24 {
		t.Errorf("Update.CooldownHours = %d, want 24", got)
	}

	if len(cfg.Mirrors) == 0 {
		t.Error("Mirrors is empty, want at least one default entry")
	}
	for _, m := range cfg.Mirrors {
		if m.Mode != "prefix" && m.Mode != "replace" {
			t.Errorf("mirror mode %q is not prefix or replace", m.Mode)
		}
	}

	// github.com must always be in the allowlist or nothing gets mirrored
	var foundGithub bool
	for _, h := range cfg.Download.AllowHosts {
		if h == "github.com" {
			foundGithub = true
		}
	}
	if !foundGithub {
		t.Error("Download.AllowHosts does not include github.com")
	}
}

// TestLoad tests loading a valid config file over the defaults
func TestLoad(t *testing.T) {
	tempDir := t.TempDir()
	configFile := filepath.Join(tempDir, "ghfetch.yaml")

	configContent := `
mirrors:
  - mode: "replace"
    base_url: "https://proxy.internal/gh/"
download:
  max_retries: 5
  min_speed_kb: 128
  connections: 8
update:
  source_url: "https://internal.example.com/ghfetch"
  cooldown_hours: 6
`

	if err := os.WriteFile(configFile, []byte(configContent), 0644); err != nil {
		t.Fatalf("failed to write config file: %v", err)
	}

	cfg, err := Load(configFile)
	if err != nil {
		t.Fatalf("Load() failed: %v", err)
	}

	if len(cfg.Mirrors) != 1 {
		t.Fatalf("Mirrors length = %d, want 1", len(cfg.Mirrors))
	}
	if cfg.Mirrors[0].Mode != "replace" {
		t.Errorf("Mirrors[0].Mode = %q, want replace", cfg.Mirrors[0].Mode)
	}
	if cfg.Mirrors[0].BaseURL != "https://proxy.internal/gh/" {
		t.Errorf("Mirrors[0].BaseURL = %q", cfg.Mirrors[0].BaseURL)
	}

	if cfg.Download.MaxRetries != 5 {
		t.Errorf("Download.MaxRetries = %d, want 5", cfg.Download.MaxRetries)
	}
	if cfg.Download.MinSpeedKB != 128 {
		t.Errorf("Download.MinSpeedKB = %d, want 128", cfg.Download.MinSpeedKB)
	}
	if cfg.Download.Connections != 8 {
		t.Errorf("Download.Connections = %d, want 8", cfg.Download.Connections)
	}

	// Fields absent from the file keep their defaults
	if cfg.Download.CheckIntervalSeconds != 10 {
		t.Errorf("Download.CheckIntervalSeconds = %d, want default 10", cfg.Download.CheckIntervalSeconds)
	}
	if cfg.Download.Aria2cBinary != "aria2c" {
		t.Errorf("Download.Aria2cBinary = %q, want default aria2c", cfg.Download.Aria2cBinary)
	}

	if cfg.Update.SourceURL != "https://internal.example.com/ghfetch" {
		t.Errorf("Update.SourceURL = %q", cfg.Update.SourceURL)
	}
	if cfg.Update.CooldownHours != 6 {
		t.Errorf("Update.CooldownHours = %d, want 6", cfg.Update.CooldownHours)
	}
}

// TestLoadInvalidYAML tests that Load returns an error for invalid YAML
func TestLoadInvalidYAML(t *testing.T) {
	tempDir := t.TempDir()
	configFile := filepath.Join(tempDir, "invalid.yaml")

	invalidContent := `
download:
  max_retries: 3
  invalid: [unclosed bracket
`

	if err := os.WriteFile(configFile, []byte(invalidContent), 0644); err != nil {
		t.Fatalf("failed to write config file: %v", err)
	}

	_, err := Load(configFile)
	if err == nil {
		t.Error("Load() succeeded, want error for invalid YAML")
	}
}

// TestLoadNonexistentFile tests that Load returns an error for missing files
func TestLoadNonexistentFile(t *testing.T) {
	_, err := Load("/nonexistent/path/to/config.yaml")
	if err == nil {
		t.Error("Load() succeeded, want error for nonexistent file")
	}
}

// TestFindConfigFileFound tests that FindConfigFile returns the found config
func TestFindConfigFileFound(t *testing.T) {
	originalWd, err := os.Getwd()
	if err != nil {
		t.Fatalf("failed to get working directory: %v", err)
	}

	tempDir := t.TempDir()
	if err := os.Chdir(tempDir); err != nil {
		t.Fatalf("failed to change directory: %v", err)
	}
	t.Cleanup(func() {
		if err := os.Chdir(originalWd); err != nil {
			t.Fatalf("failed to restore working directory: %v", err)
		}
	})

	configFile := filepath.Join(tempDir, "ghfetch.yaml")
	if err := os.WriteFile(configFile, []byte("download:\n  max_retries: 2"), 0644); err != nil {
		t.Fatalf("failed to write config file: %v", err)
	}

	found, err := FindConfigFile()
	if err != nil {
		t.Fatalf("FindConfigFile() failed: %v", err)
	}
	if found != "ghfetch.yaml" {
		t.Errorf("FindConfigFile() = %q, want ghfetch.yaml", found)
	}
}

// TestRegistry tests building the mirror registry from config entries
func TestRegistry(t *testing.T) {
	cfg := DefaultConfig()
	reg, err := cfg.Registry()
	if err != nil {
		t.Fatalf("Registry() failed: %v", err)
	}
	if reg == nil {
		t.Fatal("Registry() returned nil")
	}

	res := reg.Rewrite("https://github.com/owner/repo/archive/main.zip", -1)
	if !res.Mirrored {
		t.Error("expected default config to mirror a github.com URL")
	}
}

// TestRegistryRejectsBadMode tests that malformed entries are rejected
func TestRegistryRejectsBadMode(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Mirrors = []MirrorConfig{{Mode: "rewrite", BaseURL: "https://x.example.com/"}}

	_, err := cfg.Registry()
	if err == nil {
		t.Error("Registry() succeeded, want error for unknown mirror mode")
	}
}

// TestDurationHelpers tests the duration conversion helpers
func TestDurationHelpers(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Download.CheckIntervalSeconds = 7
	cfg.Update.CooldownHours = 12
	cfg.Update.ConnectTimeoutSeconds = 3

	if got := cfg.CheckInterval(); got != 7*time.Second {
		t.Errorf("CheckInterval() = %v, want 7s", got)
	}
	if got := cfg.UpdateCooldown(); got != 12*time.Hour {
		t.Errorf("UpdateCooldown() = %v, want 12h", got)
	}
	if got := cfg.ConnectTimeout(); got != 3*time.Second {
		t.Errorf("ConnectTimeout() = %v, want 3s", got)
	}
}
