// SPDX-License-Identifier: MPL-2.0

package config

import (
	"context"
	"os"
	"path/filepath"
	"sync"
	"testing"
)

func TestProviderLoad(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	path := filepath.Join(dir, "settings.cue")
	if err := os.WriteFile(path, []byte("strict_references: true\n"), 0o644); err != nil {
		t.Fatalf("write settings: %v", err)
	}

	s, err := NewProvider().Load(context.Background(), LoadOptions{SettingsFilePath: path})
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if !s.StrictReferences {
		t.Error("StrictReferences should be true")
	}
}

func TestProviderLoadCanceled(t *testing.T) {
	t.Parallel()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	if _, err := NewProvider().Load(ctx, LoadOptions{}); err == nil {
		t.Fatal("expected an error for a canceled context")
	}
}

func TestProviderLoadConcurrent(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	path := filepath.Join(dir, "settings.cue")
	if err := os.WriteFile(path, []byte("max_include_depth: 7\n"), 0o644); err != nil {
		t.Fatalf("write settings: %v", err)
	}

	p := NewProvider()
	var wg sync.WaitGroup
	for range 8 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			s, err := p.Load(context.Background(), LoadOptions{SettingsFilePath: path})
			if err != nil {
				t.Errorf("Load: %v", err)
				return
			}
			if s.MaxIncludeDepth != 7 {
				t.Errorf("MaxIncludeDepth = %d, want 7", s.MaxIncludeDepth)
			}
		}()
	}
	wg.Wait()
}
