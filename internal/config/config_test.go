// SPDX-License-Identifier: MPL-2.0

package config

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func writeSettings(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "settings.cue")
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("write settings: %v", err)
	}
	return path
}

func TestLoadDefaultsWhenNoFile(t *testing.T) {
	SetConfigDirOverride(t.TempDir())
	t.Cleanup(Reset)

	s, path, err := loadWithOptions(context.Background(), LoadOptions{})
	if err != nil {
		t.Fatalf("loadWithOptions: %v", err)
	}
	if path != "" {
		t.Errorf("resolved path = %q, want empty for defaults", path)
	}

	defaults := DefaultSettings()
	if s.MaxIncludeDepth != defaults.MaxIncludeDepth {
		t.Errorf("MaxIncludeDepth = %d, want %d", s.MaxIncludeDepth, defaults.MaxIncludeDepth)
	}
	if s.DefaultCompression != defaults.DefaultCompression {
		t.Errorf("DefaultCompression = %q, want %q", s.DefaultCompression, defaults.DefaultCompression)
	}
	if s.Cache.TTL != defaults.Cache.TTL {
		t.Errorf("Cache.TTL = %s, want %s", s.Cache.TTL, defaults.Cache.TTL)
	}
}

func TestLoadExplicitFile(t *testing.T) {
	t.Parallel()

	path := writeSettings(t, `
environment: "production"
max_include_depth: 8
strict_references: true
default_compression: "brotli"
cache: {
	enabled: false
	ttl: "90s"
}
watch: {
	enabled: true
	debounce: "150ms"
}
`)

	s, resolved, err := loadWithOptions(context.Background(), LoadOptions{SettingsFilePath: path})
	if err != nil {
		t.Fatalf("loadWithOptions: %v", err)
	}
	if resolved != path {
		t.Errorf("resolved path = %q, want %q", resolved, path)
	}
	if s.Environment != "production" {
		t.Errorf("Environment = %q", s.Environment)
	}
	if s.MaxIncludeDepth != 8 {
		t.Errorf("MaxIncludeDepth = %d, want 8", s.MaxIncludeDepth)
	}
	if !s.StrictReferences {
		t.Error("StrictReferences should be true")
	}
	if s.DefaultCompression != CompressionBrotli {
		t.Errorf("DefaultCompression = %q, want brotli", s.DefaultCompression)
	}
	if s.Cache.Enabled {
		t.Error("Cache.Enabled should be false")
	}
	if s.Cache.TTL != 90*time.Second {
		t.Errorf("Cache.TTL = %s, want 90s", s.Cache.TTL)
	}
	if s.Watch.Debounce != 150*time.Millisecond {
		t.Errorf("Watch.Debounce = %s, want 150ms", s.Watch.Debounce)
	}

	// Unset fields keep their defaults.
	if s.IncludeParallelism != DefaultSettings().IncludeParallelism {
		t.Errorf("IncludeParallelism = %d, want default", s.IncludeParallelism)
	}
}

func TestLoadFromConfigDir(t *testing.T) {
	dir := t.TempDir()
	SetConfigDirOverride(dir)
	t.Cleanup(Reset)

	content := "max_include_depth: 3\n"
	if err := os.WriteFile(filepath.Join(dir, "settings.cue"), []byte(content), 0o644); err != nil {
		t.Fatalf("write settings: %v", err)
	}

	s, resolved, err := loadWithOptions(context.Background(), LoadOptions{})
	if err != nil {
		t.Fatalf("loadWithOptions: %v", err)
	}
	if resolved == "" {
		t.Error("expected a resolved path for the settings file in the config dir")
	}
	if s.MaxIncludeDepth != 3 {
		t.Errorf("MaxIncludeDepth = %d, want 3", s.MaxIncludeDepth)
	}
}

func TestLoadMissingExplicitFile(t *testing.T) {
	t.Parallel()

	_, _, err := loadWithOptions(context.Background(), LoadOptions{
		SettingsFilePath: filepath.Join(t.TempDir(), "nope.cue"),
	})
	if err == nil {
		t.Fatal("expected an error for a missing explicit settings file")
	}
	if !strings.Contains(err.Error(), "not found") {
		t.Errorf("err = %v, want a not-found message", err)
	}
}

func TestLoadInvalidCUESyntax(t *testing.T) {
	t.Parallel()

	path := writeSettings(t, "max_include_depth: : :\n")
	_, _, err := loadWithOptions(context.Background(), LoadOptions{SettingsFilePath: path})
	if err == nil {
		t.Fatal("expected an error for invalid CUE syntax")
	}
}

func TestLoadSchemaViolation(t *testing.T) {
	t.Parallel()

	// A string where the schema requires an int.
	path := writeSettings(t, `max_include_depth: "deep"`+"\n")
	_, _, err := loadWithOptions(context.Background(), LoadOptions{SettingsFilePath: path})
	if err == nil {
		t.Fatal("expected an error for a schema violation")
	}
}

func TestLoadRejectsOutOfRangeValues(t *testing.T) {
	t.Parallel()

	path := writeSettings(t, "load_timeout: \"-5s\"\n")
	_, _, err := loadWithOptions(context.Background(), LoadOptions{SettingsFilePath: path})
	if err == nil {
		t.Fatal("expected an error for a negative load timeout")
	}
}

func TestLoadCanceledContext(t *testing.T) {
	t.Parallel()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, _, err := loadWithOptions(ctx, LoadOptions{})
	if err == nil {
		t.Fatal("expected an error for a canceled context")
	}
}

func TestGenerateCUERoundTrip(t *testing.T) {
	t.Parallel()

	defaults := DefaultSettings()
	path := writeSettings(t, GenerateCUE(defaults))

	s, _, err := loadWithOptions(context.Background(), LoadOptions{SettingsFilePath: path})
	if err != nil {
		t.Fatalf("loadWithOptions: %v", err)
	}
	if *s != *defaults {
		t.Errorf("round trip changed settings:\n got %+v\nwant %+v", s, defaults)
	}
}
