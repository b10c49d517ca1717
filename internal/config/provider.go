// SPDX-License-Identifier: MPL-2.0

package config

import "context"

// LoadOptions defines explicit settings loading inputs.
type LoadOptions struct {
	// SettingsFilePath forces loading from a specific settings file when set.
	SettingsFilePath string
	// SettingsDirPath overrides the settings directory lookup when set.
	SettingsDirPath string
}

// Provider loads settings from explicit options.
type Provider interface {
	Load(ctx context.Context, opts LoadOptions) (*Settings, error)
}

type fileProvider struct{}

// NewProvider creates a settings provider.
func NewProvider() Provider {
	return &fileProvider{}
}

// Load reads settings from the requested source.
func (p *fileProvider) Load(ctx context.Context, opts LoadOptions) (*Settings, error) {
	s, _, err := loadWithOptions(ctx, opts)
	if err != nil {
		return nil, err
	}

	return s, nil
}
