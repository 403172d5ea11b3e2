package main

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/ghfetch/ghfetch/internal/config"
)

func newConfigCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "config",
		Short: "Manage configuration",
		Long: `Manage ghfetch configuration. Subcommands allow viewing the effective
configuration and writing a starter config file.`,
		Example: `  ghfetch config show
  ghfetch config init`,
	}

	cmd.AddCommand(
		newConfigShowCmd(),
		newConfigInitCmd(),
	)

	return cmd
}

func newConfigShowCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "show",
		Short: "Display the effective configuration",
		Long: `Display the effective configuration in YAML format: the loaded config
file merged over the built-in defaults.`,
		Example: `  ghfetch config show
  ghfetch config show --config /etc/ghfetch/ghfetch.yaml`,
		RunE: configShowRun,
	}
}

func configShowRun(cmd *cobra.Command, args []string) error {
	if globalCfg == nil {
		return fmt.Errorf("config not loaded")
	}

	data, err := yaml.Marshal(globalCfg)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}

	fmt.Print(string(data))
	return nil
}

var configInitPath string

func newConfigInitCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "init",
		Short: "Write a starter config file with the built-in defaults",
		Example: `  ghfetch config init
  ghfetch config init --path /etc/ghfetch/ghfetch.yaml`,
		RunE: configInitRun,
	}

	defaultPath := "ghfetch.yaml"
	if home, err := os.UserHomeDir(); err == nil {
		defaultPath = filepath.Join(home, ".config", "ghfetch", "ghfetch.yaml")
	}
	cmd.Flags().StringVar(&configInitPath, "path", defaultPath, "where to write the config file")

	return cmd
}

func configInitRun(cmd *cobra.Command, args []string) error {
	if _, err := os.Stat(configInitPath); err == nil {
		return fmt.Errorf("refusing to overwrite existing config: %s", configInitPath)
	}

	data, err := yaml.Marshal(config.DefaultConfig())
	if err != nil {
		return fmt.Errorf("failed to marshal default config: %w", err)
	}
	header := "# ghfetch configuration. Every key is optional; omitted keys keep\n# the built-in defaults shown here.\n"
	data = append([]byte(header), data...)

	if dir := filepath.Dir(configInitPath); dir != "" && dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("failed to create config directory: %w", err)
		}
	}
	if err := os.WriteFile(configInitPath, data, 0o644); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}

	fmt.Printf("wrote %s\n", configInitPath)
	return nil
}
