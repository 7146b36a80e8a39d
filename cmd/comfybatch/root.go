package main

import (
	"os"
	"path/filepath"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/arlewin/comfybatch/config"
)

var (
	flagHost     string
	flagPort     int
	flagLogLevel string
	flagLogFile  string

	settings config.Settings
	logger   *zap.Logger
)

// configDir is where settings and the workflow cache live.
func configDir() string {
	if dir, err := os.UserConfigDir(); err == nil {
		return filepath.Join(dir, "comfybatch")
	}
	return ".comfybatch"
}

func settingsPath() string { return filepath.Join(configDir(), "settings.json") }
func cachePath() string    { return filepath.Join(configDir(), "workflow-cache.json") }

var rootCmd = &cobra.Command{
	Use:           "comfybatch",
	Short:         "Batch image generation against a ComfyUI backend",
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		logger = newLogger(flagLogLevel, flagLogFile)

		var err error
		settings, err = config.Load(settingsPath())
		if err != nil {
			logger.Warn("settings unreadable, using defaults", zap.Error(err))
			settings = config.DefaultSettings()
		}
		if cmd.Flags().Changed("host") || settings.Host == "" {
			settings.Host = flagHost
		}
		if cmd.Flags().Changed("port") || settings.Port == 0 {
			settings.Port = flagPort
		}
		return settings.Validate()
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		if logger != nil {
			_ = logger.Sync()
		}
	},
}

func init() {
	rootCmd.PersistentFlags().StringVar(&flagHost, "host", config.DefaultHost, "backend host (localhost or IPv4)")
	rootCmd.PersistentFlags().IntVar(&flagPort, "port", config.DefaultPort, "backend port")
	rootCmd.PersistentFlags().StringVar(&flagLogLevel, "log-level", "info", "log level (debug, info, warn, error)")
	rootCmd.PersistentFlags().StringVar(&flagLogFile, "log-file", "", "also log JSON to this file, with rotation")

	rootCmd.AddCommand(generateCmd)
	rootCmd.AddCommand(inspectCmd)
	rootCmd.AddCommand(workflowsCmd)
}
