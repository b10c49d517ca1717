// SPDX-License-Identifier: MPL-2.0

// Package watch provides file-watching with debounced change
// notification for configuration reloads.
//
// A watcher can monitor an explicit set of configuration files (the
// hot-reload case, where editors replace files by rename and the
// parent directory must be watched instead of the file itself) or a
// directory tree filtered by glob patterns. Events within the debounce
// window are coalesced so the callback fires once with the full set of
// changed paths.
package watch

import (
	"context"
	"fmt"
	"io"
	"maps"
	"os"
	"path/filepath"
	"slices"
	"sync"
	"sync/atomic"
	"time"

	"github.com/bmatcuk/doublestar/v4"
	"github.com/charmbracelet/log"
	"github.com/fsnotify/fsnotify"
)

// defaultDebounce is the delay before firing the onChange callback after
// the last filesystem event. Rapid successive events (an editor writing
// then renaming a temp file, a git checkout touching many files)
// coalesce into a single callback.
const defaultDebounce = 300 * time.Millisecond

// defaultPatterns selects configuration sources when no explicit
// patterns are configured in directory mode.
var defaultPatterns = []string{"**/*.tsk", "**/*.pnt"}

// defaultIgnores lists path patterns that are always excluded from
// watching, regardless of user-supplied ignore patterns. These cover
// VCS metadata, editor swap files, and OS metadata files that generate
// high-frequency noise.
var defaultIgnores = []string{
	"**/.git/**",
	"**/node_modules/**",
	"**/*.swp",
	"**/*.swo",
	"**/*~",
	"**/.DS_Store",
}

type (
	// Config holds the parameters for a Watcher.
	Config struct {
		// Paths are specific files to watch. When set, the watcher
		// monitors their parent directories and reports events only for
		// these files, so editors that replace a file by rename still
		// trigger a callback. Patterns and Ignore are not consulted in
		// this mode.
		Paths []string

		// BaseDir is the root directory to watch when Paths is empty.
		// All patterns are resolved relative to this path. An empty
		// value defaults to the current working directory.
		BaseDir string

		// Patterns are doublestar-compatible glob patterns (e.g.,
		// "conf/**/*.tsk") that select which files trigger callbacks in
		// directory mode. An empty slice falls back to the default
		// configuration-source patterns.
		Patterns []string

		// Ignore are additional doublestar-compatible glob patterns for
		// paths that should never trigger callbacks. These are merged
		// with the built-in default ignores.
		Ignore []string

		// Debounce is the quiet period after the last event before the
		// callback fires. Zero or negative values fall back to
		// defaultDebounce.
		Debounce time.Duration

		// ClearScreen controls whether the terminal is cleared before
		// each callback invocation by writing ANSI escape sequences to
		// Stdout. No terminal detection is performed.
		ClearScreen bool

		// OnChange is called after the debounce window closes with the
		// deduplicated list of changed file paths. In path mode the
		// paths are absolute; in directory mode they are relative to
		// BaseDir. A nil callback is a no-op.
		OnChange func(ctx context.Context, changed []string) error

		// Logger receives informational and error messages. nil
		// defaults to the package-default logger.
		Logger *log.Logger

		// Stdout is where the ClearScreen escape sequence is written.
		// nil defaults to os.Stdout.
		Stdout io.Writer
	}

	// Watcher monitors filesystem paths and fires a debounced callback
	// when matching files change. Run must be called exactly once;
	// calling it a second time returns an error.
	Watcher struct {
		cfg      Config
		fsw      *fsnotify.Watcher
		paths    map[string]struct{}
		patterns []string
		ignores  []string
		logger   *log.Logger
		stdout   io.Writer
		debounce time.Duration
		baseDir  string
		started  atomic.Bool
	}
)

// New creates a Watcher from the given Config. In path mode it
// registers the parent directory of every watched file; in directory
// mode it resolves BaseDir and registers all non-ignored directories
// under it.
func New(cfg Config) (*Watcher, error) {
	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("watch: create fsnotify watcher: %w", err)
	}

	debounce := cfg.Debounce
	if debounce <= 0 {
		debounce = defaultDebounce
	}
	logger := cfg.Logger
	if logger == nil {
		logger = log.Default()
	}
	stdout := cfg.Stdout
	if stdout == nil {
		stdout = os.Stdout
	}

	// Validate patterns eagerly so invalid globs fail at construction
	// time rather than silently failing to match at runtime.
	if err := validatePatterns(cfg.Patterns, "watch"); err != nil {
		fsw.Close() //nolint:errcheck // best-effort cleanup
		return nil, err
	}
	if err := validatePatterns(cfg.Ignore, "ignore"); err != nil {
		fsw.Close() //nolint:errcheck // best-effort cleanup
		return nil, err
	}

	patterns := cfg.Patterns
	if len(patterns) == 0 {
		patterns = defaultPatterns
	}
	ignores := make([]string, 0, len(defaultIgnores)+len(cfg.Ignore))
	ignores = append(ignores, defaultIgnores...)
	ignores = append(ignores, cfg.Ignore...)

	w := &Watcher{
		cfg:      cfg,
		fsw:      fsw,
		patterns: patterns,
		ignores:  ignores,
		logger:   logger,
		stdout:   stdout,
		debounce: debounce,
	}

	if len(cfg.Paths) > 0 {
		err = w.addPaths(cfg.Paths)
	} else {
		err = w.addTree(cfg.BaseDir)
	}
	if err != nil {
		if closeErr := fsw.Close(); closeErr != nil {
			logger.Error("close after init failure", "err", closeErr)
		}
		return nil, err
	}
	return w, nil
}

// addPaths resolves the watched files and registers each distinct
// parent directory.
func (w *Watcher) addPaths(paths []string) error {
	w.paths = make(map[string]struct{}, len(paths))
	dirs := make(map[string]struct{})
	for _, p := range paths {
		abs, err := filepath.Abs(p)
		if err != nil {
			return fmt.Errorf("watch: resolve path %q: %w", p, err)
		}
		w.paths[abs] = struct{}{}
		dirs[filepath.Dir(abs)] = struct{}{}
	}
	for dir := range dirs {
		if err := w.fsw.Add(dir); err != nil {
			return fmt.Errorf("watch: add directory %q: %w", dir, err)
		}
	}
	return nil
}

// addTree walks baseDir and adds every non-ignored directory to the
// fsnotify watcher. All directories are registered regardless of watch
// patterns; pattern filtering is applied when events arrive.
func (w *Watcher) addTree(baseDir string) error {
	if baseDir == "" {
		wd, err := os.Getwd()
		if err != nil {
			return fmt.Errorf("watch: determine working directory: %w", err)
		}
		baseDir = wd
	}
	absBase, err := filepath.Abs(baseDir)
	if err != nil {
		return fmt.Errorf("watch: resolve base directory: %w", err)
	}
	w.baseDir = absBase

	walkErr := filepath.WalkDir(absBase, func(path string, d os.DirEntry, walkDirErr error) error {
		if walkDirErr != nil {
			// Best-effort: skip directories we cannot access rather than
			// aborting the entire walk.
			w.logger.Warn("skipping inaccessible path", "path", path, "err", walkDirErr)
			return nil //nolint:nilerr // intentional skip of inaccessible paths
		}
		if !d.IsDir() {
			return nil
		}

		rel, relErr := filepath.Rel(absBase, path)
		if relErr != nil {
			return nil //nolint:nilerr // skip paths that cannot be made relative
		}

		// Skip ignored directories entirely to avoid descending into them.
		if w.isIgnored(rel) || w.isIgnored(rel+"/") {
			return filepath.SkipDir
		}

		if addErr := w.fsw.Add(path); addErr != nil {
			return fmt.Errorf("watch: add directory %q: %w", path, addErr)
		}
		return nil
	})
	if walkErr != nil {
		return fmt.Errorf("watch: walk directory tree: %w", walkErr)
	}
	return nil
}

// Run blocks until ctx is cancelled, processing filesystem events and
// dispatching debounced callbacks. It returns nil on clean context
// cancellation and propagates any fatal watcher errors. Run must be
// called exactly once; a second call returns an error immediately.
func (w *Watcher) Run(ctx context.Context) error {
	if !w.started.CompareAndSwap(false, true) {
		return fmt.Errorf("watch: Run called more than once")
	}

	var (
		mu      sync.Mutex
		pending = make(map[string]struct{})
		timer   *time.Timer
		running atomic.Bool
	)

	// fire drains the pending set and invokes the OnChange callback.
	// It may be scheduled by time.AfterFunc after the context is
	// cancelled, so check ctx.Err() as a best-effort guard. Uses an
	// atomic skip-if-busy guard to prevent concurrent callback
	// invocations when a reload takes longer than the debounce period.
	fire := func() {
		if ctx.Err() != nil {
			return
		}
		if !running.CompareAndSwap(false, true) {
			w.logger.Debug("skipping reload, previous run still in progress")
			// Schedule a retry so pending events are not permanently
			// lost when no further filesystem events arrive.
			mu.Lock()
			if timer != nil {
				timer.Reset(w.debounce)
			}
			mu.Unlock()
			return
		}
		defer running.Store(false)

		mu.Lock()
		if len(pending) == 0 {
			mu.Unlock()
			return
		}
		changed := slices.Collect(maps.Keys(pending))
		clear(pending)
		mu.Unlock()

		if w.cfg.ClearScreen {
			// ANSI escape: clear screen and move cursor to top-left.
			fmt.Fprint(w.stdout, "\033[2J\033[H")
		}

		if w.cfg.OnChange != nil {
			if err := w.cfg.OnChange(ctx, changed); err != nil {
				w.logger.Error("change callback failed", "err", err)
			}
		}
	}

	// Ensure the timer channel is drained on exit. The timer is
	// accessed under mu because it is written by the event loop under
	// the same lock.
	defer func() {
		mu.Lock()
		localTimer := timer
		mu.Unlock()
		if localTimer != nil && !localTimer.Stop() {
			select {
			case <-localTimer.C:
			default:
			}
		}
		if closeErr := w.fsw.Close(); closeErr != nil {
			w.logger.Error("close fsnotify", "err", closeErr)
		}
	}()

	for {
		select {
		case <-ctx.Done():
			return nil

		case evt, ok := <-w.fsw.Events:
			if !ok {
				return fmt.Errorf("watch: fsnotify event channel closed unexpectedly")
			}

			name, ok := w.filter(evt)
			if !ok {
				continue
			}

			mu.Lock()
			pending[name] = struct{}{}
			if timer == nil {
				timer = time.AfterFunc(w.debounce, fire)
			} else {
				timer.Reset(w.debounce)
			}
			mu.Unlock()

		case err, ok := <-w.fsw.Errors:
			if !ok {
				return fmt.Errorf("watch: fsnotify error channel closed unexpectedly")
			}
			// Resource exhaustion (inotify limit, file descriptor
			// limits) means the watcher is fundamentally broken.
			// isFatalFsnotifyError is platform-specific (see
			// watcher_fatal_*.go).
			if isFatalFsnotifyError(err) {
				return fmt.Errorf("watch: fatal fsnotify error: %w", err)
			}
			w.logger.Warn("fsnotify error", "err", err)
		}
	}
}

// filter decides whether an event should be reported and returns the
// path to record for it.
func (w *Watcher) filter(evt fsnotify.Event) (string, bool) {
	if w.paths != nil {
		abs, err := filepath.Abs(evt.Name)
		if err != nil {
			return "", false
		}
		_, ok := w.paths[abs]
		return abs, ok
	}

	rel, err := filepath.Rel(w.baseDir, evt.Name)
	if err != nil {
		rel = evt.Name
	}
	if w.isIgnored(rel) {
		return "", false
	}

	// Auto-add newly created directories so recursive watches extend to
	// directories created after startup.
	if evt.Has(fsnotify.Create) {
		w.maybeAddDir(evt.Name)
	}

	if !w.matchesPatterns(rel) {
		return "", false
	}
	return rel, true
}

// maybeAddDir adds path to the fsnotify watcher if it is a directory
// and is not ignored.
func (w *Watcher) maybeAddDir(path string) {
	info, err := os.Stat(path)
	if err != nil || !info.IsDir() {
		return
	}

	rel, err := filepath.Rel(w.baseDir, path)
	if err != nil {
		return
	}

	if w.isIgnored(rel) || w.isIgnored(rel+"/") {
		return
	}

	if addErr := w.fsw.Add(path); addErr != nil {
		w.logger.Warn("add new directory", "path", path, "err", addErr)
	}
}

// isIgnored returns true if the given path (relative to BaseDir)
// matches any ignore pattern.
func (w *Watcher) isIgnored(rel string) bool {
	// Normalise to forward slashes for consistent glob matching.
	normalized := filepath.ToSlash(rel)
	for _, pat := range w.ignores {
		if matched, matchErr := doublestar.Match(pat, normalized); matchErr == nil && matched {
			return true
		}
	}
	return false
}

// matchesPatterns returns true if the given path (relative to BaseDir)
// matches at least one of the configured watch patterns.
func (w *Watcher) matchesPatterns(rel string) bool {
	normalized := filepath.ToSlash(rel)
	for _, pat := range w.patterns {
		if matched, matchErr := doublestar.Match(pat, normalized); matchErr == nil && matched {
			return true
		}
	}
	return false
}

// DefaultIgnores returns a copy of the built-in ignore patterns.
func DefaultIgnores() []string {
	out := make([]string, len(defaultIgnores))
	copy(out, defaultIgnores)
	return out
}

// validatePatterns checks that every pattern in the slice is a valid
// doublestar glob. The label ("watch" or "ignore") is used in error
// messages.
func validatePatterns(patterns []string, label string) error {
	for _, pat := range patterns {
		if _, err := doublestar.Match(pat, ""); err != nil {
			return fmt.Errorf("watch: invalid %s pattern %q: %w", label, pat, err)
		}
	}
	return nil
}
