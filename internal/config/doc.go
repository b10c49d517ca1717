// SPDX-License-Identifier: MPL-2.0

// Package config handles engine settings using Viper with CUE as the file format.
//
// Settings are loaded from ~/.config/tusk/settings.cue (or XDG equivalent on Linux,
// ~/Library/Application Support/tusk/settings.cue on macOS, %APPDATA%\tusk\settings.cue
// on Windows), falling back to ./settings.cue and then built-in defaults. The package
// provides type-safe settings access covering include expansion limits, reference
// strictness, artifact compression, caching, and hot reload.
//
// Settings validation is performed against a CUE schema (config_schema.cue) to ensure
// type safety and provide clear error messages for invalid files.
package config
