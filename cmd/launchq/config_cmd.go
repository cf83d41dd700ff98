package main

import (
	"fmt"
	"io"
	"path/filepath"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/igusev/launchq/internal/config"
)

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Show or initialize the configuration",
	Long: `Show the effective configuration, merged from ~/.config/launchq/config.yaml,
LAUNCHQ_* environment variables and the built-in defaults.`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := config.Load()
		if err != nil {
			return fmt.Errorf("configuration error: %w", err)
		}
		return showConfig(cmd.OutOrStdout(), cfg)
	},
}

var configInitCmd = &cobra.Command{
	Use:   "init",
	Short: "Write an annotated example configuration",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		out := cmd.OutOrStdout()
		path, err := config.CreateExampleConfig()
		if err != nil {
			return err
		}
		printLogo(out, version)
		printSuccess(out, "Example configuration written to")
		printPath(out, path)
		fmt.Fprintln(out)
		printMuted(out, fmt.Sprintf("Copy it to %s and edit as needed.", configPath()))
		return nil
	},
}

var configPathCmd = &cobra.Command{
	Use:   "path",
	Short: "Print the configuration file path",
	Args:  cobra.NoArgs,
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Fprintln(cmd.OutOrStdout(), configPath())
	},
}

func init() {
	configCmd.AddCommand(configInitCmd, configPathCmd)
	rootCmd.AddCommand(configCmd)
}

func configPath() string {
	return filepath.Join(config.Dir(), "config.yaml")
}

// showConfig prints cfg as YAML
func showConfig(w io.Writer, cfg *config.Config) error {
	data, err := yaml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}
	_, err = w.Write(data)
	return err
}
