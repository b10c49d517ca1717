// SPDX-License-Identifier: MPL-2.0

package cmd

import (
	"context"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/tuskcfg/tusk/internal/config"
)

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Manage tsk settings",
	Long: `Manage tsk settings.

Settings are stored in:
  - Linux: ~/.config/tusk/settings.cue
  - macOS: ~/Library/Application Support/tusk/settings.cue
  - Windows: %APPDATA%\tusk\settings.cue`,
	RunE: func(cmd *cobra.Command, args []string) error {
		return cmd.Help()
	},
}

func init() {
	configCmd.AddCommand(&cobra.Command{
		Use:   "show",
		Short: "Show current settings",
		RunE: func(cmd *cobra.Command, args []string) error {
			return showSettings(cmd.Context())
		},
	})

	configCmd.AddCommand(&cobra.Command{
		Use:   "path",
		Short: "Show the settings file path",
		RunE: func(cmd *cobra.Command, args []string) error {
			path, err := config.SettingsPath()
			if err != nil {
				return err
			}
			fmt.Println(path)
			if _, err := os.Stat(path); os.IsNotExist(err) {
				fmt.Fprintln(os.Stderr, SubtitleStyle.Render("(not created yet; run 'tsk config init')"))
			}
			return nil
		},
	})

	configCmd.AddCommand(&cobra.Command{
		Use:   "init",
		Short: "Create a default settings file",
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := config.CreateDefaultSettings(); err != nil {
				return err
			}
			path, err := config.SettingsPath()
			if err != nil {
				return err
			}
			fmt.Println(SuccessStyle.Render("✓ ") + path)
			return nil
		},
	})

	configCmd.AddCommand(&cobra.Command{
		Use:   "dump",
		Short: "Output effective settings as CUE",
		RunE: func(cmd *cobra.Command, args []string) error {
			settings := loadSettings(cmd.Context())
			fmt.Print(config.GenerateCUE(settings))
			return nil
		},
	})
}

// showSettings prints the effective settings, one per line.
func showSettings(ctx context.Context) error {
	settings, err := config.NewProvider().Load(ctx, config.LoadOptions{SettingsFilePath: settingsFile})
	if err != nil {
		return err
	}

	row := func(key string, value any) {
		fmt.Printf("%s %v\n", KeyStyle.Render(fmt.Sprintf("%-22s", key+":")), value)
	}
	row("environment", orUnset(settings.Environment.String()))
	row("max_include_depth", settings.MaxIncludeDepth)
	row("include_parallelism", settings.IncludeParallelism)
	row("strict_references", settings.StrictReferences)
	row("eval_fujsen", settings.EvalFujsen)
	row("default_compression", settings.DefaultCompression)
	row("cache.enabled", settings.Cache.Enabled)
	row("cache.ttl", settings.Cache.TTL)
	row("watch.enabled", settings.Watch.Enabled)
	row("watch.debounce", settings.Watch.Debounce)
	row("load_timeout", settings.LoadTimeout)
	row("ui.color_scheme", settings.UI.ColorScheme)
	row("ui.verbose", settings.UI.Verbose)
	return nil
}

func orUnset(s string) string {
	if s == "" {
		return SubtitleStyle.Render("(unset)")
	}
	return s
}
