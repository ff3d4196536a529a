package main

import (
	"fmt"
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"parcelcli/internal/config"
	"parcelcli/internal/infrastructure"
)

var (
	cfgFile string
	verbose bool
)

var rootCmd = &cobra.Command{
	Use:   "parcelctl",
	Short: "Batch tools for FedEx and UPS invoice charge reports",
	Long: `parcelctl is the batch companion to the Parcel Pulse web service.
It runs the carrier pipelines against invoice files on disk, reshaping
FedEx wide invoices and aggregating UPS long invoices into per-shipment
charge reports and category summaries.`,
	SilenceUsage:  true,
	SilenceErrors: true,
	Run: func(cmd *cobra.Command, args []string) {
		cmd.Help()
	},
}

// Execute runs the root command, printing any failure to stderr with a
// non-zero exit.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default is config.yaml next to the executable)")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "enable debug logging")
}

// runLogger builds the structured logger for one command run. An explicit
// --config file must load; the implicit search path falls back to defaults
// so the tool stays usable outside an install tree.
func runLogger() (*slog.Logger, error) {
	var (
		cfg *config.Config
		err error
	)

	if cfgFile != "" {
		cfg, err = config.LoadFromPath(cfgFile)
		if err != nil {
			return nil, err
		}
	} else {
		cfg, err = config.Load()
		if err != nil {
			slog.Warn("Failed to load config, using defaults", "error", err)
			cfg = &config.Config{
				Logging: config.LoggingConfig{
					Level:    "info",
					Format:   "json",
					Output:   "file",
					FilePath: defaultLogPath(),
				},
			}
		}
	}

	if verbose {
		cfg.Logging.Level = "debug"
	}

	logger, err := infrastructure.InitializeLogger(cfg.Logging)
	if err != nil {
		slog.Warn("Failed to initialize logger, using default", "error", err)
		return slog.Default(), nil
	}
	return logger, nil
}

// defaultLogPath places the fallback log next to the executable's other
// logs rather than in whatever directory the tool was invoked from.
func defaultLogPath() string {
	paths, err := config.GetPaths()
	if err != nil {
		return "parcelctl.log"
	}
	return paths.GetLogPath("parcelctl.log")
}
