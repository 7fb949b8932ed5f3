package main

import (
	"os"

	"github.com/koustreak/dac/internal/config"
	"github.com/koustreak/dac/internal/logger"
	"github.com/spf13/cobra"
)

var (
	cfgFile  string
	logLevel string
	version  = "dev"
)

var rootCmd = &cobra.Command{
	Use:   "dac",
	Short: "DAC dashboard gateway",
	Long: `dac fronts the DAC backend API for the dashboard. It relays statistics
and listings, and reports database status, falling back to querying the
database catalog directly when the backend cannot answer.`,
	SilenceUsage: true,
}

// Execute runs the root command.
func Execute() {
	rootCmd.Version = version
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (YAML)")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "", "log level override (debug, info, warn, error)")
}

// loadConfig resolves the configuration and builds the process logger.
func loadConfig() (*config.Config, *logger.Logger, error) {
	cfg, err := config.Load(cfgFile)
	if err != nil {
		return nil, nil, err
	}
	if logLevel != "" {
		cfg.Log.Level = logLevel
	}
	return cfg, logger.New(cfg.Log.LoggerConfig()), nil
}
