package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/clubworks/reqsync/internal/config"
)

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Inspect or scaffold configuration",
}

var configInitCmd = &cobra.Command{
	Use:   "init",
	Short: "Write a starter config file with defaults",
	RunE: func(cmd *cobra.Command, args []string) error {
		out, _ := cmd.Flags().GetString("output")

		data, err := yaml.Marshal(config.Defaults())
		if err != nil {
			return fmt.Errorf("rendering defaults: %w", err)
		}

		if out == "-" {
			fmt.Print(string(data))
			return nil
		}
		if _, err := os.Stat(out); err == nil {
			return fmt.Errorf("%s already exists, not overwriting", out)
		}
		if err := os.WriteFile(out, data, 0o644); err != nil {
			return err
		}
		fmt.Printf("Wrote %s\n", out)
		return nil
	},
}

var configShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Print the effective configuration",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := config.Load(configPath)
		if err != nil {
			return err
		}
		// Don't leak credentials into terminals or logs.
		if cfg.GitHub.Token != "" {
			cfg.GitHub.Token = "(set)"
		}
		if cfg.GitHub.WebhookSecret != "" {
			cfg.GitHub.WebhookSecret = "(set)"
		}
		data, err := yaml.Marshal(cfg)
		if err != nil {
			return err
		}
		fmt.Print(string(data))
		return nil
	},
}

func init() {
	configInitCmd.Flags().String("output", config.DefaultConfigFile, "file to write ('-' for stdout)")
	configCmd.AddCommand(configInitCmd)
	configCmd.AddCommand(configShowCmd)
	rootCmd.AddCommand(configCmd)
}
