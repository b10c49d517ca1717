// SPDX-License-Identifier: MPL-2.0

package config

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

const (
	// CompressionNone stores artifact bodies verbatim.
	CompressionNone CompressionName = "none"
	// CompressionGzip compresses artifact bodies with gzip.
	CompressionGzip CompressionName = "gzip"
	// CompressionBrotli compresses artifact bodies with brotli.
	CompressionBrotli CompressionName = "brotli"

	// ColorSchemeAuto detects the terminal color scheme automatically.
	ColorSchemeAuto ColorScheme = "auto"
	// ColorSchemeDark forces dark color scheme.
	ColorSchemeDark ColorScheme = "dark"
	// ColorSchemeLight forces light color scheme.
	ColorSchemeLight ColorScheme = "light"
)

var (
	// ErrInvalidCompressionName is returned when a CompressionName value is not recognized.
	ErrInvalidCompressionName = errors.New("invalid compression name")
	// ErrInvalidColorScheme is returned when a ColorScheme value is not recognized.
	ErrInvalidColorScheme = errors.New("invalid color scheme")
	// ErrInvalidEnvironmentName is returned when an environment name contains path separators.
	ErrInvalidEnvironmentName = errors.New("invalid environment name")
	// ErrInvalidSettings is the sentinel error wrapped by InvalidSettingsError.
	ErrInvalidSettings = errors.New("invalid settings")
)

type (
	// CompressionName selects the codec used when compiling artifacts.
	CompressionName string

	// InvalidCompressionNameError is returned when a CompressionName value is
	// not recognized. It wraps ErrInvalidCompressionName for errors.Is() compatibility.
	InvalidCompressionNameError struct {
		Value CompressionName
	}

	// ColorScheme specifies the terminal color scheme preference.
	ColorScheme string

	// InvalidColorSchemeError is returned when a ColorScheme value is not recognized.
	// It wraps ErrInvalidColorScheme for errors.Is() compatibility.
	InvalidColorSchemeError struct {
		Value ColorScheme
	}

	// EnvironmentName names a deployment environment used for overlay
	// lookup. The zero value ("") disables environment overlays. Non-zero
	// values must not contain path separators, since they are spliced
	// into overlay file names.
	EnvironmentName string

	// InvalidEnvironmentNameError is returned when an EnvironmentName
	// contains path separators or is whitespace-only.
	InvalidEnvironmentNameError struct {
		Value EnvironmentName
	}

	// InvalidSettingsError is returned when Settings has invalid fields.
	// It wraps ErrInvalidSettings for errors.Is() compatibility and collects
	// field-level validation errors from all sub-components.
	InvalidSettingsError struct {
		FieldErrors []error
	}

	// Settings holds the engine configuration.
	Settings struct {
		// Environment selects which overlay files apply when loading.
		Environment EnvironmentName `json:"environment" mapstructure:"environment"`
		// MaxIncludeDepth bounds how deep include chains may nest.
		MaxIncludeDepth int `json:"max_include_depth" mapstructure:"max_include_depth"`
		// IncludeParallelism bounds how many sibling includes expand at once.
		IncludeParallelism int `json:"include_parallelism" mapstructure:"include_parallelism"`
		// StrictReferences escalates unresolved references from warnings to errors.
		StrictReferences bool `json:"strict_references" mapstructure:"strict_references"`
		// EvalFujsen enables evaluation of embedded function blocks.
		EvalFujsen bool `json:"eval_fujsen" mapstructure:"eval_fujsen"`
		// DefaultCompression is the codec used when compiling artifacts.
		DefaultCompression CompressionName `json:"default_compression" mapstructure:"default_compression"`
		// Cache configures the loaded-configuration cache.
		Cache CacheSettings `json:"cache" mapstructure:"cache"`
		// Watch configures hot reload.
		Watch WatchSettings `json:"watch" mapstructure:"watch"`
		// LoadTimeout bounds a single load operation end to end.
		LoadTimeout time.Duration `json:"load_timeout" mapstructure:"load_timeout"`
		// UI configures terminal output.
		UI UISettings `json:"ui" mapstructure:"ui"`
	}

	// CacheSettings configures the loaded-configuration cache.
	CacheSettings struct {
		// Enabled turns the cache on.
		Enabled bool `json:"enabled" mapstructure:"enabled"`
		// TTL is how long a cached configuration stays fresh. Entries are
		// also invalidated early when the source file's mtime changes.
		TTL time.Duration `json:"ttl" mapstructure:"ttl"`
	}

	// WatchSettings configures hot reload.
	WatchSettings struct {
		// Enabled turns file watching on.
		Enabled bool `json:"enabled" mapstructure:"enabled"`
		// Debounce is the quiet period before a reload fires.
		Debounce time.Duration `json:"debounce" mapstructure:"debounce"`
	}

	// UISettings configures terminal output.
	UISettings struct {
		// ColorScheme sets the color scheme.
		ColorScheme ColorScheme `json:"color_scheme" mapstructure:"color_scheme"`
		// Verbose enables verbose output.
		Verbose bool `json:"verbose" mapstructure:"verbose"`
	}
)

// String returns the string representation of the CompressionName.
func (n CompressionName) String() string { return string(n) }

// IsValid returns whether the CompressionName is one of the defined
// codecs, and a list of validation errors if it is not.
func (n CompressionName) IsValid() (bool, []error) {
	switch n {
	case CompressionNone, CompressionGzip, CompressionBrotli:
		return true, nil
	default:
		return false, []error{&InvalidCompressionNameError{Value: n}}
	}
}

// Error implements the error interface for InvalidCompressionNameError.
func (e *InvalidCompressionNameError) Error() string {
	return fmt.Sprintf("invalid compression name %q (valid: none, gzip, brotli)", e.Value)
}

// Unwrap returns the sentinel error for errors.Is() compatibility.
func (e *InvalidCompressionNameError) Unwrap() error { return ErrInvalidCompressionName }

// String returns the string representation of the ColorScheme.
func (cs ColorScheme) String() string { return string(cs) }

// IsValid returns whether the ColorScheme is one of the defined color
// schemes, and a list of validation errors if it is not.
func (cs ColorScheme) IsValid() (bool, []error) {
	switch cs {
	case ColorSchemeAuto, ColorSchemeDark, ColorSchemeLight:
		return true, nil
	default:
		return false, []error{&InvalidColorSchemeError{Value: cs}}
	}
}

// Error implements the error interface for InvalidColorSchemeError.
func (e *InvalidColorSchemeError) Error() string {
	return fmt.Sprintf("invalid color scheme %q (valid: auto, dark, light)", e.Value)
}

// Unwrap returns the sentinel error for errors.Is() compatibility.
func (e *InvalidColorSchemeError) Unwrap() error { return ErrInvalidColorScheme }

// String returns the string representation of the EnvironmentName.
func (n EnvironmentName) String() string { return string(n) }

// IsValid returns whether the EnvironmentName is valid. The zero value
// is valid; non-zero values must not be whitespace-only and must not
// contain path separators.
func (n EnvironmentName) IsValid() (bool, []error) {
	if n == "" {
		return true, nil
	}
	if strings.TrimSpace(string(n)) == "" || strings.ContainsAny(string(n), `/\`) {
		return false, []error{&InvalidEnvironmentNameError{Value: n}}
	}
	return true, nil
}

// Error implements the error interface for InvalidEnvironmentNameError.
func (e *InvalidEnvironmentNameError) Error() string {
	return fmt.Sprintf("invalid environment name %q: must be non-empty and contain no path separators", e.Value)
}

// Unwrap returns ErrInvalidEnvironmentName for errors.Is() compatibility.
func (e *InvalidEnvironmentNameError) Unwrap() error { return ErrInvalidEnvironmentName }

// IsValid returns whether the Settings has valid fields. It delegates
// to the typed-string fields and checks the numeric bounds that CUE
// cannot express against decoded Go values.
func (s Settings) IsValid() (bool, []error) {
	var errs []error
	if valid, fieldErrs := s.Environment.IsValid(); !valid {
		errs = append(errs, fieldErrs...)
	}
	if valid, fieldErrs := s.DefaultCompression.IsValid(); !valid {
		errs = append(errs, fieldErrs...)
	}
	if valid, fieldErrs := s.UI.ColorScheme.IsValid(); !valid {
		errs = append(errs, fieldErrs...)
	}
	if s.MaxIncludeDepth < 1 {
		errs = append(errs, fmt.Errorf("max_include_depth must be at least 1, got %d", s.MaxIncludeDepth))
	}
	if s.IncludeParallelism < 1 {
		errs = append(errs, fmt.Errorf("include_parallelism must be at least 1, got %d", s.IncludeParallelism))
	}
	if s.Cache.TTL < 0 {
		errs = append(errs, fmt.Errorf("cache.ttl must not be negative, got %s", s.Cache.TTL))
	}
	if s.Watch.Debounce < 0 {
		errs = append(errs, fmt.Errorf("watch.debounce must not be negative, got %s", s.Watch.Debounce))
	}
	if s.LoadTimeout < 0 {
		errs = append(errs, fmt.Errorf("load_timeout must not be negative, got %s", s.LoadTimeout))
	}
	if len(errs) > 0 {
		return false, []error{&InvalidSettingsError{FieldErrors: errs}}
	}
	return true, nil
}

// Error implements the error interface for InvalidSettingsError.
func (e *InvalidSettingsError) Error() string {
	return fmt.Sprintf("invalid settings: %d field error(s)", len(e.FieldErrors))
}

// Unwrap returns ErrInvalidSettings for errors.Is() compatibility.
func (e *InvalidSettingsError) Unwrap() error { return ErrInvalidSettings }

// DefaultSettings returns the default engine configuration.
func DefaultSettings() *Settings {
	return &Settings{
		Environment:        "",
		MaxIncludeDepth:    32,
		IncludeParallelism: 4,
		StrictReferences:   false,
		EvalFujsen:         false,
		DefaultCompression: CompressionGzip,
		Cache: CacheSettings{
			Enabled: true,
			TTL:     5 * time.Minute,
		},
		Watch: WatchSettings{
			Enabled:  false,
			Debounce: 300 * time.Millisecond,
		},
		LoadTimeout: 30 * time.Second,
		UI: UISettings{
			ColorScheme: ColorSchemeAuto,
			Verbose:     false,
		},
	}
}
