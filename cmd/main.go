package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"shiftscale/internal/config"
)

const (
	colorRed   = "\033[31m"
	colorGreen = "\033[32m"
	colorReset = "\033[0m"
)

var (
	// Global flags
	logLevel string
	envFile  string
)

var rootCmd = &cobra.Command{
	Use:   "shiftscale",
	Short: "Move and scale batches of point features about a control point",
	Long: `shiftscale selects point features inside a rectangle, takes a control
point and moves every selected feature so the control point lands on a target,
optionally scaling the batch about the control point. Each edit is one
undoable unit.

Examples:
  shiftscale run --layer data/valves.shp             # Edit a shapefile layer
  shiftscale run --table VALVES --table HYDRANTS     # Edit database point tables
  shiftscale project 1.3521 103.8198                 # WGS-84 to SVY21`,
	SilenceUsage: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		if envFile != "" {
			if err := config.LoadEnvFile(envFile); err != nil && !os.IsNotExist(err) {
				return fmt.Errorf("read %s: %w", envFile, err)
			}
		}
		level := logLevel
		if level == "" {
			level = config.LogLevel()
		}
		return config.ConfigureLogging(level)
	},
}

func init() {
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "", "log level (debug, info, warn, error); defaults to $LOG_LEVEL")
	rootCmd.PersistentFlags().StringVar(&envFile, "env", ".env", "environment file to load before reading configuration")
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "%s%v%s\n", colorRed, err, colorReset)
		os.Exit(1)
	}
}
