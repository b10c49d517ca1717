// SPDX-License-Identifier: MPL-2.0

package watch

import (
	"bytes"
	"context"
	"io"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/bmatcuk/doublestar/v4"
	"github.com/charmbracelet/log"
)

func quietLogger() *log.Logger {
	return log.New(io.Discard)
}

// isIgnoredByDefaults reports whether rel matches any of the default
// ignore patterns. Test-only helper that avoids needing a full Watcher
// instance.
func isIgnoredByDefaults(rel string) bool {
	normalized := filepath.ToSlash(rel)
	for _, pat := range defaultIgnores {
		if matched, matchErr := doublestar.Match(pat, normalized); matchErr == nil && matched {
			return true
		}
	}
	return false
}

// TestWatcherDebounce verifies that multiple rapid filesystem events are
// coalesced into a single callback invocation containing all changed
// paths.
func TestWatcherDebounce(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()

	var (
		mu        sync.Mutex
		calls     int
		collected []string
	)

	done := make(chan struct{})

	w, err := New(Config{
		BaseDir:  dir,
		Debounce: 100 * time.Millisecond,
		Logger:   quietLogger(),
		Stdout:   &bytes.Buffer{},
		OnChange: func(_ context.Context, changed []string) error {
			mu.Lock()
			defer mu.Unlock()
			calls++
			collected = append(collected, changed...)
			close(done)
			return nil
		},
	})
	if err != nil {
		t.Fatalf("New() error: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	errCh := make(chan error, 1)
	go func() { errCh <- w.Run(ctx) }()

	// Write three files in rapid succession, well within the debounce
	// window.
	for _, name := range []string{"a.tsk", "b.tsk", "c.tsk"} {
		if err := os.WriteFile(filepath.Join(dir, name), []byte("k = 1\n"), 0o644); err != nil {
			t.Fatalf("write %s: %v", name, err)
		}
		// Small pause so events arrive as separate fsnotify events
		// rather than being batched by the OS. Still well within the
		// debounce window.
		time.Sleep(10 * time.Millisecond)
	}

	// Wait for the debounced callback to fire.
	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("timed out waiting for callback")
	}

	// Allow a brief settle for any additional spurious callbacks.
	time.Sleep(200 * time.Millisecond)

	cancel()
	if err := <-errCh; err != nil {
		t.Fatalf("Run() error: %v", err)
	}

	mu.Lock()
	defer mu.Unlock()

	if calls != 1 {
		t.Errorf("expected 1 debounced callback, got %d", calls)
	}

	// All three files must appear in the collected set.
	slices.Sort(collected)
	for _, want := range []string{"a.tsk", "b.tsk", "c.tsk"} {
		if !slices.Contains(collected, want) {
			t.Errorf("expected %q in changed files, got %v", want, collected)
		}
	}
}

// TestWatcherPathMode verifies that watching explicit files reports
// only events for those files, by absolute path, even when siblings in
// the same directory change.
func TestWatcherPathMode(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	watched := filepath.Join(dir, "config.tsk")
	if err := os.WriteFile(watched, []byte("k = 1\n"), 0o644); err != nil {
		t.Fatalf("write config.tsk: %v", err)
	}

	callbackFired := make(chan []string, 10)

	w, err := New(Config{
		Paths:    []string{watched},
		Debounce: 50 * time.Millisecond,
		Logger:   quietLogger(),
		OnChange: func(_ context.Context, changed []string) error {
			callbackFired <- changed
			return nil
		},
	})
	if err != nil {
		t.Fatalf("New() error: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	errCh := make(chan error, 1)
	go func() { errCh <- w.Run(ctx) }()

	// A sibling file in the watched directory must not fire.
	if err := os.WriteFile(filepath.Join(dir, "other.tsk"), []byte("x = 1\n"), 0o644); err != nil {
		t.Fatalf("write other.tsk: %v", err)
	}
	time.Sleep(200 * time.Millisecond)

	// The watched file itself must fire, reported by absolute path.
	if err := os.WriteFile(watched, []byte("k = 2\n"), 0o644); err != nil {
		t.Fatalf("rewrite config.tsk: %v", err)
	}

	select {
	case changed := <-callbackFired:
		if !slices.Contains(changed, watched) {
			t.Errorf("expected %q in changed set, got %v", watched, changed)
		}
		for _, c := range changed {
			if strings.HasSuffix(c, "other.tsk") {
				t.Errorf("unwatched sibling appeared in changed set: %v", changed)
			}
		}
	case <-time.After(5 * time.Second):
		t.Fatal("timed out waiting for callback on watched file")
	}

	cancel()
	if err := <-errCh; err != nil {
		t.Fatalf("Run() error: %v", err)
	}
}

// TestWatcherIgnorePatterns confirms that files matching user-supplied
// ignore patterns do not trigger the OnChange callback.
func TestWatcherIgnorePatterns(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()

	callbackFired := make(chan []string, 10)

	w, err := New(Config{
		BaseDir:  dir,
		Ignore:   []string{"**/scratch.tsk"},
		Debounce: 50 * time.Millisecond,
		Logger:   quietLogger(),
		OnChange: func(_ context.Context, changed []string) error {
			callbackFired <- changed
			return nil
		},
	})
	if err != nil {
		t.Fatalf("New() error: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	errCh := make(chan error, 1)
	go func() { errCh <- w.Run(ctx) }()

	// Write an ignored file, which should NOT trigger the callback.
	if err := os.WriteFile(filepath.Join(dir, "scratch.tsk"), []byte("x = 1\n"), 0o644); err != nil {
		t.Fatalf("write scratch.tsk: %v", err)
	}

	// Wait long enough for a debounce cycle to complete.
	time.Sleep(200 * time.Millisecond)

	// Write a non-ignored file, which SHOULD trigger the callback.
	if err := os.WriteFile(filepath.Join(dir, "app.tsk"), []byte("k = 1\n"), 0o644); err != nil {
		t.Fatalf("write app.tsk: %v", err)
	}

	select {
	case changed := <-callbackFired:
		if slices.Contains(changed, "scratch.tsk") {
			t.Error("ignored file scratch.tsk appeared in changed set")
		}
		if !slices.Contains(changed, "app.tsk") {
			t.Errorf("expected app.tsk in changed set, got %v", changed)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("timed out waiting for callback on non-ignored file")
	}

	cancel()
	if err := <-errCh; err != nil {
		t.Fatalf("Run() error: %v", err)
	}
}

// TestWatcherContextCancel verifies that Run returns cleanly when its
// context is cancelled and does not leak goroutines or file
// descriptors.
func TestWatcherContextCancel(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()

	w, err := New(Config{
		BaseDir:  dir,
		Debounce: 50 * time.Millisecond,
		Logger:   quietLogger(),
	})
	if err != nil {
		t.Fatalf("New() error: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	errCh := make(chan error, 1)
	go func() { errCh <- w.Run(ctx) }()

	// Give the event loop time to start.
	time.Sleep(50 * time.Millisecond)

	cancel()

	select {
	case err := <-errCh:
		if err != nil {
			t.Fatalf("Run() returned error on cancel: %v", err)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("Run() did not return after context cancellation")
	}
}

// TestDefaultIgnores ensures that the built-in default ignore patterns
// cover the expected high-noise paths.
func TestDefaultIgnores(t *testing.T) {
	t.Parallel()

	tests := []struct {
		path    string
		ignored bool
	}{
		{".git/config", true},
		{".git/objects/ab/cd1234", true},
		{"node_modules/express/index.js", true},
		{"app.tsk.swp", true},
		{"app.tsk.swo", true},
		{"backup~", true},
		{".DS_Store", true},
		{"sub/.DS_Store", true},
		// These should NOT be ignored.
		{"app.tsk", false},
		{"conf/app.pnt", false},
		{"README.md", false},
		{".gitignore", false},
	}

	for _, tt := range tests {
		t.Run(tt.path, func(t *testing.T) {
			t.Parallel()
			got := isIgnoredByDefaults(tt.path)
			if got != tt.ignored {
				t.Errorf("isIgnoredByDefaults(%q) = %v, want %v", tt.path, got, tt.ignored)
			}
		})
	}
}

// TestWatcherSkipIfBusy verifies that concurrent callback invocations
// are prevented by the atomic skip-if-busy guard. When the callback
// takes longer than the debounce period, subsequent timer fires are
// skipped and retried.
func TestWatcherSkipIfBusy(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()

	var (
		mu    sync.Mutex
		calls int
	)

	// Callback blocks for 300ms, debounce is 50ms. The second write
	// lands while the first callback is still running.
	firstCallDone := make(chan struct{})

	w, err := New(Config{
		BaseDir:  dir,
		Debounce: 50 * time.Millisecond,
		Logger:   quietLogger(),
		OnChange: func(_ context.Context, _ []string) error {
			mu.Lock()
			calls++
			callNum := calls
			mu.Unlock()

			if callNum == 1 {
				time.Sleep(300 * time.Millisecond)
				close(firstCallDone)
			}
			return nil
		},
	})
	if err != nil {
		t.Fatalf("New() error: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	errCh := make(chan error, 1)
	go func() { errCh <- w.Run(ctx) }()

	if err := os.WriteFile(filepath.Join(dir, "first.tsk"), []byte("a = 1\n"), 0o644); err != nil {
		t.Fatalf("write first.tsk: %v", err)
	}

	// Wait for the debounce to fire and the callback to start.
	time.Sleep(100 * time.Millisecond)

	if err := os.WriteFile(filepath.Join(dir, "second.tsk"), []byte("b = 2\n"), 0o644); err != nil {
		t.Fatalf("write second.tsk: %v", err)
	}

	select {
	case <-firstCallDone:
	case <-time.After(5 * time.Second):
		t.Fatal("timed out waiting for first callback")
	}

	// Allow time for the second debounce cycle to complete or be
	// skipped and retried.
	time.Sleep(300 * time.Millisecond)

	cancel()
	if err := <-errCh; err != nil {
		t.Fatalf("Run() error: %v", err)
	}

	mu.Lock()
	defer mu.Unlock()

	// We accept 1 call (strict skip) or 2 calls (if timing allows the
	// retried debounce to fire after the first callback completes), but
	// never concurrent invocations.
	if calls > 2 {
		t.Errorf("expected at most 2 callback invocations, got %d", calls)
	}
}

// TestWatcherClearScreen verifies that ClearScreen: true writes the
// ANSI clear escape sequence before invoking the callback.
func TestWatcherClearScreen(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()

	done := make(chan struct{})
	stdoutBuf := &bytes.Buffer{}

	w, err := New(Config{
		BaseDir:     dir,
		Debounce:    50 * time.Millisecond,
		ClearScreen: true,
		Logger:      quietLogger(),
		Stdout:      stdoutBuf,
		OnChange: func(_ context.Context, _ []string) error {
			close(done)
			return nil
		},
	})
	if err != nil {
		t.Fatalf("New() error: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	errCh := make(chan error, 1)
	go func() { errCh <- w.Run(ctx) }()

	if err := os.WriteFile(filepath.Join(dir, "file.tsk"), []byte("x = 1\n"), 0o644); err != nil {
		t.Fatalf("write file.tsk: %v", err)
	}

	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("timed out waiting for callback")
	}

	cancel()
	if err := <-errCh; err != nil {
		t.Fatalf("Run() error: %v", err)
	}

	out := stdoutBuf.String()
	if !strings.Contains(out, "\033[2J\033[H") {
		t.Errorf("expected ANSI clear sequence in stdout, got %q", out)
	}
}

// TestWatcherInvalidPattern verifies that New returns an error when
// given an invalid glob pattern, failing fast at construction time.
func TestWatcherInvalidPattern(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()

	_, err := New(Config{
		BaseDir:  dir,
		Patterns: []string{"[invalid"},
		Debounce: 50 * time.Millisecond,
		Logger:   quietLogger(),
	})
	if err == nil {
		t.Fatal("New() should return an error for an invalid glob pattern")
	}

	if !strings.Contains(err.Error(), "invalid watch pattern") {
		t.Errorf("error message should mention invalid watch pattern, got: %v", err)
	}
}

// TestWatcherDoubleRunError verifies that calling Run a second time
// returns an error immediately rather than starting a second event
// loop.
func TestWatcherDoubleRunError(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()

	w, err := New(Config{
		BaseDir:  dir,
		Debounce: 50 * time.Millisecond,
		Logger:   quietLogger(),
	})
	if err != nil {
		t.Fatalf("New() error: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	errCh := make(chan error, 1)
	go func() { errCh <- w.Run(ctx) }()

	// Give the event loop time to start.
	time.Sleep(50 * time.Millisecond)

	err = w.Run(ctx)
	if err == nil {
		t.Fatal("second Run() call should return an error")
	}

	if !strings.Contains(err.Error(), "Run called more than once") {
		t.Errorf("error message should mention double-run, got: %v", err)
	}

	cancel()
	if firstErr := <-errCh; firstErr != nil {
		t.Fatalf("first Run() returned error: %v", firstErr)
	}
}

// TestWatcherPatternFiltering verifies that only events matching the
// configured glob patterns trigger the callback. The default patterns
// select configuration sources, so unrelated files never fire.
func TestWatcherPatternFiltering(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()

	callbackFired := make(chan []string, 10)

	w, err := New(Config{
		BaseDir:  dir,
		Debounce: 50 * time.Millisecond,
		Logger:   quietLogger(),
		OnChange: func(_ context.Context, changed []string) error {
			callbackFired <- changed
			return nil
		},
	})
	if err != nil {
		t.Fatalf("New() error: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	errCh := make(chan error, 1)
	go func() { errCh <- w.Run(ctx) }()

	// Write a non-matching file first.
	if err := os.WriteFile(filepath.Join(dir, "notes.txt"), []byte("text"), 0o644); err != nil {
		t.Fatalf("write notes.txt: %v", err)
	}

	// Wait for a debounce cycle to ensure the .txt write does not fire.
	time.Sleep(200 * time.Millisecond)

	// Write a matching configuration file.
	if err := os.WriteFile(filepath.Join(dir, "app.tsk"), []byte("k = 1\n"), 0o644); err != nil {
		t.Fatalf("write app.tsk: %v", err)
	}

	select {
	case changed := <-callbackFired:
		if slices.Contains(changed, "notes.txt") {
			t.Error("non-matching file notes.txt appeared in changed set")
		}
		if !slices.Contains(changed, "app.tsk") {
			t.Errorf("expected app.tsk in changed set, got %v", changed)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("timed out waiting for callback on .tsk file")
	}

	cancel()
	if err := <-errCh; err != nil {
		t.Fatalf("Run() error: %v", err)
	}
}
