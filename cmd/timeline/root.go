package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"github.com/warp/timeline-engine/config"
)

var (
	configPath string
	rootCmd    *cobra.Command
)

func init() {
	rootCmd = &cobra.Command{
		Use:   "timeline",
		Short: "Timeline engine - conflict-free time tracking",
		Long: `timeline keeps a day's time slices free of overlaps.

Edits that collide with existing slices are resolved by splitting,
truncating or pushing neighbours instead of failing.`,
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "", "Path to YAML config file")
}

// Execute runs the root command.
func Execute(version string) error {
	rootCmd.AddCommand(serveCmd)
	rootCmd.AddCommand(configCmd)
	rootCmd.AddCommand(dayCmd)

	rootCmd.Version = version
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		return err
	}
	return nil
}

func loadConfig() (*config.Config, error) {
	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}
	return cfg, nil
}
