package cli

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/fatih/color"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"

	"github.com/ppiankov/schemetrust/internal/model"
)

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Manage SchemeTrust configuration",
	Long: `Manage SchemeTrust configuration files and settings.

Configuration hierarchy (highest to lowest priority):
1. CLI flags
2. Environment variables (SCHEMETRUST_*, e.g. SCHEMETRUST_SERVER_ADMIN_API_KEY)
3. Config file (~/.schemetrust/config.yaml)
4. Defaults`,
}

var configShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Show the effective configuration",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		redact(&cfg)

		if f := viper.ConfigFileUsed(); f != "" {
			fmt.Fprintf(os.Stderr, "Configuration file: %s\n\n", f)
		} else {
			fmt.Fprintf(os.Stderr, "No configuration file found (using defaults and environment)\n\n")
		}

		data, err := yaml.Marshal(cfg)
		if err != nil {
			return fmt.Errorf("marshal config: %w", err)
		}
		_, err = cmd.OutOrStdout().Write(data)
		return err
	},
}

// redact hides secrets from displayed configuration
func redact(cfg *model.Config) {
	for _, s := range []*string{&cfg.Server.AdminAPIKey, &cfg.Sources.DataGovIn.APIKey, &cfg.Cache.RedisPassword} {
		if *s != "" {
			*s = "********"
		}
	}
}

var configInitCmd = &cobra.Command{
	Use:   "init",
	Short: "Write a default configuration file",
	Long:  `Create a default configuration file at ~/.schemetrust/config.yaml, or at --config when given.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		path := cfgFile
		if path == "" {
			home, err := os.UserHomeDir()
			if err != nil {
				return fmt.Errorf("find home directory: %w", err)
			}
			path = filepath.Join(home, ".schemetrust", "config.yaml")
		}

		if err := writeDefaultConfig(path); err != nil {
			return err
		}

		color.Green("✓ Created default configuration: %s", path)
		fmt.Fprintf(cmd.OutOrStdout(), "\nSecrets are best kept in the environment:\n")
		fmt.Fprintf(cmd.OutOrStdout(), "  export SCHEMETRUST_SERVER_ADMIN_API_KEY=...\n")
		fmt.Fprintf(cmd.OutOrStdout(), "  export SCHEMETRUST_SOURCES_DATA_GOV_IN_API_KEY=...\n")
		return nil
	},
}

func writeDefaultConfig(path string) (err error) {
	if _, statErr := os.Stat(path); statErr == nil {
		return fmt.Errorf("config file already exists: %s", path)
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("create config directory: %w", err)
	}

	data, err := yaml.Marshal(model.DefaultConfig())
	if err != nil {
		return fmt.Errorf("marshal config: %w", err)
	}

	f, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0o600)
	if err != nil {
		return fmt.Errorf("create config file: %w", err)
	}
	defer func() {
		if closeErr := f.Close(); closeErr != nil && err == nil {
			err = fmt.Errorf("close config file: %w", closeErr)
		}
	}()

	header := "# SchemeTrust configuration\n" +
		"# Durations are Go duration strings (\"30s\", \"168h0m0s\").\n" +
		"# Environment variables SCHEMETRUST_<SECTION>_<KEY> override this file.\n\n"
	if _, err = f.WriteString(header); err != nil {
		return fmt.Errorf("write config: %w", err)
	}
	if _, err = f.Write(data); err != nil {
		return fmt.Errorf("write config: %w", err)
	}
	return nil
}

func init() {
	rootCmd.AddCommand(configCmd)
	configCmd.AddCommand(configShowCmd)
	configCmd.AddCommand(configInitCmd)
}
