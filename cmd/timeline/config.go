package main

import (
	"fmt"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"
)

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Inspect configuration",
}

var configShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Show merged configuration",
	RunE:  runConfigShow,
}

func init() {
	configCmd.AddCommand(configShowCmd)
}

func runConfigShow(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	data, err := yaml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}

	if configPath != "" {
		fmt.Fprintf(cmd.OutOrStdout(), "# Merged configuration (defaults + %s + environment)\n", configPath)
	} else {
		fmt.Fprintln(cmd.OutOrStdout(), "# Merged configuration (defaults + environment)")
	}
	fmt.Fprint(cmd.OutOrStdout(), string(data))
	return nil
}
