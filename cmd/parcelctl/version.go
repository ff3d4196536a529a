package main

import (
	"fmt"
	"runtime"

	"github.com/spf13/cobra"
)

// Version metadata, overridden at release build time via
// -ldflags "-X main.Version=... -X main.BuildDate=...".
var (
	Version   = "v1.2.0"
	BuildDate = "unknown"
)

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print parcelctl version information",
	Run: func(cmd *cobra.Command, args []string) {
		out := cmd.OutOrStdout()
		fmt.Fprintf(out, "parcelctl %s\n", Version)
		fmt.Fprintf(out, "  build date: %s\n", BuildDate)
		fmt.Fprintf(out, "  go version: %s\n", runtime.Version())
	},
}

func init() {
	rootCmd.AddCommand(versionCmd)
}
