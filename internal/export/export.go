// SPDX-License-Identifier: MPL-2.0

// Package export renders resolved configuration trees as JSON, YAML,
// or TOML for consumption by other tools.
package export

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"

	"github.com/goccy/go-yaml"
	"github.com/pelletier/go-toml/v2"
)

// Format names an export encoding.
type Format string

const (
	// FormatJSON renders indented JSON.
	FormatJSON Format = "json"
	// FormatYAML renders YAML.
	FormatYAML Format = "yaml"
	// FormatTOML renders TOML.
	FormatTOML Format = "toml"
)

// ErrInvalidFormat is returned when a Format value is not recognized.
var ErrInvalidFormat = errors.New("invalid export format")

// InvalidFormatError is returned when a Format value is not recognized.
// It wraps ErrInvalidFormat for errors.Is() compatibility.
type InvalidFormatError struct {
	Value Format
}

// Error implements the error interface for InvalidFormatError.
func (e *InvalidFormatError) Error() string {
	return fmt.Sprintf("invalid export format %q: use 'json', 'yaml', or 'toml'", e.Value)
}

// Unwrap returns ErrInvalidFormat for errors.Is() compatibility.
func (e *InvalidFormatError) Unwrap() error { return ErrInvalidFormat }

// String returns the string representation of the Format.
func (f Format) String() string { return string(f) }

// IsValid returns whether the Format is one of the supported encodings,
// and a list of validation errors if it is not.
func (f Format) IsValid() (bool, []error) {
	switch f {
	case FormatJSON, FormatYAML, FormatTOML:
		return true, nil
	default:
		return false, []error{&InvalidFormatError{Value: f}}
	}
}

// Marshal renders the configuration tree in the requested format.
func Marshal(tree map[string]any, format Format) ([]byte, error) {
	var buf bytes.Buffer
	if err := Write(&buf, tree, format); err != nil {
		return nil, err
	}

	return buf.Bytes(), nil
}

// Write renders the configuration tree in the requested format to w.
func Write(w io.Writer, tree map[string]any, format Format) error {
	switch format {
	case FormatJSON:
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		if err := enc.Encode(tree); err != nil {
			return fmt.Errorf("failed to encode JSON: %w", err)
		}
	case FormatYAML:
		enc := yaml.NewEncoder(w, yaml.Indent(2))
		if err := enc.Encode(tree); err != nil {
			return fmt.Errorf("failed to encode YAML: %w", err)
		}
		if err := enc.Close(); err != nil {
			return fmt.Errorf("failed to finish YAML stream: %w", err)
		}
	case FormatTOML:
		if err := toml.NewEncoder(w).Encode(tree); err != nil {
			return fmt.Errorf("failed to encode TOML: %w", err)
		}
	default:
		return &InvalidFormatError{Value: format}
	}

	return nil
}
