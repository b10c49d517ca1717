// SPDX-License-Identifier: MPL-2.0

package config

import (
	"context"
	_ "embed"
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"strings"

	"cuelang.org/go/cue"
	"cuelang.org/go/cue/cuecontext"
	"github.com/spf13/viper"

	"github.com/tuskcfg/tusk/internal/issue"
	"github.com/tuskcfg/tusk/internal/platform"
	"github.com/tuskcfg/tusk/pkg/cueutil"
)

const (
	// AppName is the application name.
	AppName = "tusk"
	// SettingsFileName is the name of the settings file (without extension).
	SettingsFileName = "settings"
	// SettingsFileExt is the settings file extension.
	SettingsFileExt = "cue"
)

//go:embed config_schema.cue
var settingsSchema string

// ConfigDir returns the tusk configuration directory using
// platform-specific conventions: Windows uses %APPDATA%, macOS uses
// ~/Library/Application Support, and Linux/others use $XDG_CONFIG_HOME
// (defaulting to ~/.config).
//
//nolint:revive // ConfigDir is more descriptive than Dir for external callers
func ConfigDir() (string, error) {
	// Allow tests to override the config directory
	if configDirOverride != "" {
		return configDirOverride, nil
	}

	var configDir string

	switch runtime.GOOS {
	case platform.Windows:
		configDir = os.Getenv("APPDATA")
		if configDir == "" {
			configDir = filepath.Join(os.Getenv("USERPROFILE"), "AppData", "Roaming")
		}
	case "darwin":
		home, err := os.UserHomeDir()
		if err != nil {
			return "", fmt.Errorf("failed to get home directory: %w", err)
		}
		configDir = filepath.Join(home, "Library", "Application Support")
	default: // Linux and others
		configDir = os.Getenv("XDG_CONFIG_HOME")
		if configDir == "" {
			home, err := os.UserHomeDir()
			if err != nil {
				return "", fmt.Errorf("failed to get home directory: %w", err)
			}
			configDir = filepath.Join(home, ".config")
		}
	}

	return filepath.Join(configDir, AppName), nil
}

// loadWithOptions performs option-driven settings loading without
// mutating package-level state. Callers that want caching can wrap this
// function.
func loadWithOptions(ctx context.Context, opts LoadOptions) (*Settings, string, error) {
	select {
	case <-ctx.Done():
		return nil, "", fmt.Errorf("load settings canceled: %w", ctx.Err())
	default:
	}

	v := viper.New()

	// Set defaults
	defaults := DefaultSettings()
	v.SetDefault("environment", defaults.Environment)
	v.SetDefault("max_include_depth", defaults.MaxIncludeDepth)
	v.SetDefault("include_parallelism", defaults.IncludeParallelism)
	v.SetDefault("strict_references", defaults.StrictReferences)
	v.SetDefault("eval_fujsen", defaults.EvalFujsen)
	v.SetDefault("default_compression", defaults.DefaultCompression)
	v.SetDefault("cache.enabled", defaults.Cache.Enabled)
	v.SetDefault("cache.ttl", defaults.Cache.TTL)
	v.SetDefault("watch.enabled", defaults.Watch.Enabled)
	v.SetDefault("watch.debounce", defaults.Watch.Debounce)
	v.SetDefault("load_timeout", defaults.LoadTimeout)
	v.SetDefault("ui.color_scheme", defaults.UI.ColorScheme)
	v.SetDefault("ui.verbose", defaults.UI.Verbose)

	resolvedPath := ""

	// If a custom settings file path is given, use it exclusively.
	if opts.SettingsFilePath != "" {
		if !fileExists(opts.SettingsFilePath) {
			return nil, "", issue.NewErrorContext().
				WithOperation("load settings").
				WithResource(opts.SettingsFilePath).
				WithSuggestion("Verify the file path is correct").
				WithSuggestion("Check that the file exists and is readable").
				WithSuggestion("Use 'tsk config show' to see default settings").
				Wrap(fmt.Errorf("settings file not found: %s", opts.SettingsFilePath)).
				BuildError()
		}
		if err := loadCUEIntoViper(v, opts.SettingsFilePath); err != nil {
			return nil, "", issue.NewErrorContext().
				WithOperation("load settings").
				WithResource(opts.SettingsFilePath).
				WithSuggestion("Check that the file contains valid CUE syntax").
				WithSuggestion("Verify the settings values match the expected schema").
				WithSuggestion("See 'tsk config --help' for settings options").
				Wrap(err).
				BuildError()
		}
		resolvedPath = opts.SettingsFilePath
	} else {
		cfgDir, err := configDirWithOverride(opts.SettingsDirPath)
		if err != nil {
			return nil, "", err
		}

		cuePath := filepath.Join(cfgDir, SettingsFileName+"."+SettingsFileExt)
		if fileExists(cuePath) {
			if err := loadCUEIntoViper(v, cuePath); err != nil {
				return nil, "", issue.NewErrorContext().
					WithOperation("load settings").
					WithResource(cuePath).
					WithSuggestion("Check that the file contains valid CUE syntax").
					WithSuggestion("Verify the settings values match the expected schema").
					WithSuggestion("See 'tsk config --help' for settings options").
					Wrap(err).
					BuildError()
			}
			resolvedPath = cuePath
		} else {
			// Also check current directory
			localCuePath := SettingsFileName + "." + SettingsFileExt
			if fileExists(localCuePath) {
				if err := loadCUEIntoViper(v, localCuePath); err != nil {
					return nil, "", issue.NewErrorContext().
						WithOperation("load settings").
						WithResource(localCuePath).
						WithSuggestion("Check that the file contains valid CUE syntax").
						WithSuggestion("Verify the settings values match the expected schema").
						WithSuggestion("See 'tsk config --help' for settings options").
						Wrap(err).
						BuildError()
				}
				resolvedPath = localCuePath
			}
			// If no settings file found, use defaults (no error)
		}
	}

	var s Settings
	if err := v.Unmarshal(&s); err != nil {
		return nil, "", fmt.Errorf("failed to parse settings: %w", err)
	}

	// Validate bounds and typed fields that CUE cannot check against
	// decoded Go values (durations arrive as strings in CUE).
	if valid, errs := s.IsValid(); !valid {
		return nil, "", issue.NewErrorContext().
			WithOperation("validate settings").
			WithSuggestion("Check numeric fields are positive and durations are not negative").
			WithSuggestion("See 'tsk config --help' for settings options").
			Wrap(errs[0]).
			BuildError()
	}

	return &s, resolvedPath, nil
}

// configDirWithOverride resolves the settings directory, honoring
// explicit provider options before platform defaults.
func configDirWithOverride(settingsDirPath string) (string, error) {
	if settingsDirPath != "" {
		return settingsDirPath, nil
	}

	return ConfigDir()
}

// loadCUEIntoViper parses a CUE file, validates it against the
// #Settings schema, and merges its contents into Viper.
//
// Note: this uses manual CUE parsing instead of cueutil.ParseAndDecode
// because:
// 1. Settings decode to map[string]any (not a struct) for Viper integration
// 2. Uses Concrete(false) because settings fields are optional
// 3. Needs to merge into Viper's config map, not return a struct
func loadCUEIntoViper(v *viper.Viper, path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("failed to read settings file: %w", err)
	}

	if err := cueutil.CheckFileSize(data, cueutil.DefaultMaxFileSize, path); err != nil {
		return err
	}

	ctx := cuecontext.New()

	schemaValue := ctx.CompileString(settingsSchema)
	if schemaValue.Err() != nil {
		return fmt.Errorf("internal error: failed to compile settings schema: %w", schemaValue.Err())
	}

	userValue := ctx.CompileBytes(data, cue.Filename(path))
	if userValue.Err() != nil {
		return cueutil.FormatError(userValue.Err(), path)
	}

	// Unify with schema to validate against the #Settings definition
	schema := schemaValue.LookupPath(cue.ParsePath("#Settings"))
	unified := schema.Unify(userValue)
	if err := unified.Validate(cue.Concrete(false)); err != nil {
		return cueutil.FormatError(err, path)
	}

	var settingsMap map[string]any
	if err := unified.Decode(&settingsMap); err != nil {
		return cueutil.FormatError(err, path)
	}

	// Merge into Viper (preserves defaults, allows later overrides)
	if err := v.MergeConfigMap(settingsMap); err != nil {
		return fmt.Errorf("failed to merge settings: %w", err)
	}

	return nil
}

// fileExists checks if a file exists and is not a directory
func fileExists(path string) bool {
	info, err := os.Stat(path)
	if os.IsNotExist(err) {
		return false
	}
	return err == nil && !info.IsDir()
}

// SettingsPath returns the path where the settings file is looked up
// by default, whether or not it exists.
func SettingsPath() (string, error) {
	cfgDir, err := ConfigDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(cfgDir, SettingsFileName+"."+SettingsFileExt), nil
}

// EnsureConfigDir creates the settings directory if it doesn't exist
func EnsureConfigDir() error {
	cfgDir, err := ConfigDir()
	if err != nil {
		return err
	}
	return os.MkdirAll(cfgDir, 0o755)
}

// CreateDefaultSettings creates a default settings file if it doesn't
// exist
func CreateDefaultSettings() error {
	cfgDir, err := ConfigDir()
	if err != nil {
		return err
	}

	if err := os.MkdirAll(cfgDir, 0o755); err != nil {
		return fmt.Errorf("failed to create settings directory: %w", err)
	}

	cfgPath := filepath.Join(cfgDir, SettingsFileName+"."+SettingsFileExt)

	// Check if file already exists
	if _, err := os.Stat(cfgPath); err == nil {
		return nil // File exists
	}

	return os.WriteFile(cfgPath, []byte(GenerateCUE(DefaultSettings())), 0o644)
}

// Save writes the given settings to the settings file
func Save(s *Settings) error {
	cfgDir, err := ConfigDir()
	if err != nil {
		return err
	}

	if err := os.MkdirAll(cfgDir, 0o755); err != nil {
		return fmt.Errorf("failed to create settings directory: %w", err)
	}

	cfgPath := filepath.Join(cfgDir, SettingsFileName+"."+SettingsFileExt)

	if err := os.WriteFile(cfgPath, []byte(GenerateCUE(s)), 0o644); err != nil {
		return fmt.Errorf("failed to write settings file: %w", err)
	}

	return nil
}

// GenerateCUE generates a CUE representation of the settings
func GenerateCUE(s *Settings) string {
	var sb strings.Builder

	sb.WriteString("// tusk engine settings.\n")
	sb.WriteString("// See https://github.com/tuskcfg/tusk for documentation.\n\n")

	if s.Environment != "" {
		sb.WriteString(fmt.Sprintf("environment: %q\n", s.Environment))
	}
	sb.WriteString(fmt.Sprintf("max_include_depth: %d\n", s.MaxIncludeDepth))
	sb.WriteString(fmt.Sprintf("include_parallelism: %d\n", s.IncludeParallelism))
	sb.WriteString(fmt.Sprintf("strict_references: %v\n", s.StrictReferences))
	sb.WriteString(fmt.Sprintf("eval_fujsen: %v\n", s.EvalFujsen))
	sb.WriteString(fmt.Sprintf("default_compression: %q\n", s.DefaultCompression))

	sb.WriteString("\ncache: {\n")
	sb.WriteString(fmt.Sprintf("\tenabled: %v\n", s.Cache.Enabled))
	sb.WriteString(fmt.Sprintf("\tttl: %q\n", s.Cache.TTL))
	sb.WriteString("}\n")

	sb.WriteString("\nwatch: {\n")
	sb.WriteString(fmt.Sprintf("\tenabled: %v\n", s.Watch.Enabled))
	sb.WriteString(fmt.Sprintf("\tdebounce: %q\n", s.Watch.Debounce))
	sb.WriteString("}\n")

	sb.WriteString(fmt.Sprintf("\nload_timeout: %q\n", s.LoadTimeout))

	sb.WriteString("\nui: {\n")
	sb.WriteString(fmt.Sprintf("\tcolor_scheme: %q\n", s.UI.ColorScheme))
	sb.WriteString(fmt.Sprintf("\tverbose: %v\n", s.UI.Verbose))
	sb.WriteString("}\n")

	return sb.String()
}
