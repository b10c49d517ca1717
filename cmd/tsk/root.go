// SPDX-License-Identifier: MPL-2.0

// Package cmd contains all CLI commands for tsk.
package cmd

import (
	"context"
	"errors"
	"fmt"
	"os"

	"github.com/charmbracelet/fang"
	"github.com/charmbracelet/log"
	"github.com/spf13/cobra"

	"github.com/tuskcfg/tusk/internal/config"
	"github.com/tuskcfg/tusk/internal/issue"
	"github.com/tuskcfg/tusk/internal/manager"
)

var (
	// Version is the semantic version (set via -ldflags).
	Version = "dev"
	// Commit is the git commit hash (set via -ldflags).
	Commit = "unknown"
	// BuildDate is the build timestamp (set via -ldflags).
	BuildDate = "unknown"

	// verbose enables verbose output
	verbose bool
	// settingsFile allows specifying a custom settings file
	settingsFile string
	// environment selects which overlay files apply
	environment string

	// rootCmd represents the base command when called without any subcommands
	rootCmd = &cobra.Command{
		Use:   "tsk",
		Short: "A configuration engine for .tsk files",
		Long: TitleStyle.Render("tsk") + SubtitleStyle.Render(" - A configuration engine for .tsk files") + `

tsk parses .tsk configuration files with includes, cross-references,
environment overlays, and embedded expression snippets, and compiles
them into compact binary .pnt artifacts.

` + SubtitleStyle.Render("Examples:") + `
  tsk validate app.tsk            Check a file and its references
  tsk get app.tsk server.host     Look up a single value
  tsk compile app.tsk             Produce app.pnt
  tsk export app.tsk -f yaml      Render the resolved tree as YAML
  tsk watch app.tsk               Reload and diff on changes
  tsk config show                 Show engine settings`,
	}
)

func init() {
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "enable verbose output")
	rootCmd.PersistentFlags().StringVar(&settingsFile, "settings", "", "settings file (default is the platform config dir)")
	rootCmd.PersistentFlags().StringVarP(&environment, "env", "e", "", "environment whose overlay files apply")

	rootCmd.AddCommand(parseCmd)
	rootCmd.AddCommand(validateCmd)
	rootCmd.AddCommand(compileCmd)
	rootCmd.AddCommand(inspectCmd)
	rootCmd.AddCommand(getCmd)
	rootCmd.AddCommand(exportCmd)
	rootCmd.AddCommand(watchCmd)
	rootCmd.AddCommand(configCmd)
	rootCmd.AddCommand(docsCmd)
}

// getVersionString returns a formatted version string for display.
func getVersionString() string {
	if Version == "dev" {
		return "dev (built from source)"
	}
	return fmt.Sprintf("%s (commit: %s, built: %s)", Version, Commit, BuildDate)
}

// Execute adds all child commands to the root command and sets flags appropriately.
// This is called by main.main(). It only needs to happen once to the rootCmd.
func Execute() {
	if err := fang.Execute(
		context.Background(),
		rootCmd,
		fang.WithVersion(getVersionString()),
		fang.WithNotifySignal(os.Interrupt),
	); err != nil {
		var exitErr *ExitError
		if errors.As(err, &exitErr) {
			os.Exit(exitErr.Code)
		}
		os.Exit(1)
	}
}

// loadSettings loads engine settings, honoring the --settings flag.
// A load failure is surfaced as a warning and defaults are used, so a
// broken settings file never blocks unrelated commands.
func loadSettings(ctx context.Context) *config.Settings {
	settings, err := config.NewProvider().Load(ctx, config.LoadOptions{
		SettingsFilePath: settingsFile,
	})
	if err != nil {
		fmt.Fprintln(os.Stderr, WarningStyle.Render("Warning: ")+formatErrorForDisplay(err, verbose))
		return config.DefaultSettings()
	}
	return settings
}

// resolveEnv returns the environment to load, preferring the --env
// flag over the settings file.
func resolveEnv(settings *config.Settings) string {
	if environment != "" {
		return environment
	}
	return settings.Environment.String()
}

// newLogger builds the CLI logger, honoring --verbose.
func newLogger() *log.Logger {
	logger := log.NewWithOptions(os.Stderr, log.Options{ReportTimestamp: false})
	if verbose {
		logger.SetLevel(log.DebugLevel)
	}
	return logger
}

// newManager builds a Manager from the loaded settings.
func newManager(settings *config.Settings, opts ...manager.Option) *manager.Manager {
	base := []manager.Option{
		manager.WithSettings(settings),
		manager.WithLogger(newLogger()),
		manager.WithProducerVersion("tusk/" + Version),
	}
	return manager.New(append(base, opts...)...)
}

// formatErrorForDisplay formats an error for user display.
// If the error is an ActionableError, it uses the Format method.
// In verbose mode, shows the full error chain.
func formatErrorForDisplay(err error, verboseMode bool) string {
	var ae *issue.ActionableError
	if errors.As(err, &ae) {
		return ae.Format(verboseMode)
	}
	return err.Error()
}
