package main

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// resetCommandState clears flag values and parse state left behind by a
// previous Execute so each run sees the commands fresh.
func resetCommandState() {
	processCarrier = ""
	processOut = ""
	processCategories = nil
	processAll = false
	cfgFile = ""
	verbose = false

	for _, name := range []string{"carrier", "out", "categories", "all"} {
		if f := processCmd.Flags().Lookup(name); f != nil {
			f.Changed = false
		}
	}
	for _, name := range []string{"config", "verbose"} {
		if f := rootCmd.PersistentFlags().Lookup(name); f != nil {
			f.Changed = false
		}
	}
}

// executeCommand runs the CLI with the given arguments and returns its
// combined output.
func executeCommand(t *testing.T, args ...string) (string, error) {
	t.Helper()
	resetCommandState()

	var buf bytes.Buffer
	rootCmd.SetOut(&buf)
	rootCmd.SetErr(&buf)
	rootCmd.SetArgs(args)

	err := rootCmd.Execute()
	return buf.String(), err
}

// setupCLIEnvironment keeps command runs from writing log files into the
// source tree. The logger is a process-wide singleton, so the first
// initialization in the test binary wins for all later runs.
func setupCLIEnvironment(t *testing.T) {
	t.Helper()
	t.Setenv("PARCEL_LOGGING_OUTPUT", "console")
	t.Setenv("PARCEL_LOGGING_LEVEL", "error")
}

func TestRootCommand_ShowsHelp(t *testing.T) {
	output, err := executeCommand(t)
	require.NoError(t, err)

	assert.Contains(t, output, "Batch tools for FedEx and UPS invoice charge reports")
	assert.Contains(t, output, "process")
	assert.Contains(t, output, "version")
}

func TestRunLogger(t *testing.T) {
	setupCLIEnvironment(t)

	t.Run("explicit config file", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "config.yaml")
		require.NoError(t, os.WriteFile(path, []byte("logging:\n  level: debug\n"), 0644))

		cfgFile = path
		defer func() { cfgFile = "" }()

		logger, err := runLogger()
		require.NoError(t, err)
		assert.NotNil(t, logger)
	})

	t.Run("explicit config file must exist", func(t *testing.T) {
		cfgFile = filepath.Join(t.TempDir(), "missing.yaml")
		defer func() { cfgFile = "" }()

		_, err := runLogger()
		require.Error(t, err)
		assert.Contains(t, err.Error(), "missing.yaml")
	})

	t.Run("bad environment falls back to defaults", func(t *testing.T) {
		t.Setenv("PARCEL_SERVER_PORT", "not-a-number")
		cfgFile = ""

		logger, err := runLogger()
		require.NoError(t, err)
		assert.NotNil(t, logger)
	})
}
