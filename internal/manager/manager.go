// SPDX-License-Identifier: MPL-2.0

// Package manager loads, caches, and watches configuration sources.
// It drives the full pipeline: parse, include expansion, reference
// resolution, environment overlays, and optional snippet evaluation.
package manager

import (
	"sync"
	"sync/atomic"
	"time"

	"github.com/charmbracelet/log"
	"github.com/spf13/afero"

	"github.com/tuskcfg/tusk/internal/config"
	"github.com/tuskcfg/tusk/internal/document"
	"github.com/tuskcfg/tusk/internal/fujsen"
	"github.com/tuskcfg/tusk/internal/runctx"
	"github.com/tuskcfg/tusk/internal/testutil"
)

type (
	// Configuration is one fully loaded and resolved configuration.
	Configuration struct {
		// Path is the absolute path of the root source file.
		Path string
		// Env is the environment the overlays were applied for, or ""
		// when no overlays were requested.
		Env string
		// Doc is the resolved document, after includes, overlays, and
		// reference resolution.
		Doc *document.Document
		// Tree is the resolved configuration as a nested plain map.
		Tree map[string]any
		// Warnings collects non-fatal parser and resolver diagnostics.
		Warnings []string
		// Counters snapshots the pipeline counters for this load.
		Counters runctx.Counters
		// LoadedAt is when the load completed.
		LoadedAt time.Time
	}

	// CacheStats reports cache effectiveness since the manager was
	// created or the counters were last observed.
	CacheStats struct {
		Hits   int64
		Misses int64
	}

	// LoadedHandler observes every successful load.
	LoadedHandler func(cfg *Configuration)

	// ChangedHandler observes reloads whose resolved tree differs from
	// the previously cached one.
	ChangedHandler func(cfg *Configuration, changes []document.Change)

	// ErrorHandler observes load failures, including background reload
	// failures where no caller is waiting on the error.
	ErrorHandler func(path, env string, err error)

	// Manager coordinates configuration loading with a TTL cache,
	// environment overlays, and optional hot reload.
	Manager struct {
		fs        afero.Fs
		logger    *log.Logger
		clock     testutil.Clock
		settings  *config.Settings
		evaluator fujsen.Evaluator

		autoCompile     bool
		producerVersion string

		cache *shardedCache
		hits  atomic.Int64
		miss  atomic.Int64

		// sources tracks every (path, env) pair ever loaded, so the
		// watcher knows which cache entries a file change invalidates.
		sourcesMu sync.Mutex
		sources   map[string]map[string]struct{}

		handlersMu sync.RWMutex
		onLoaded   []LoadedHandler
		onChanged  []ChangedHandler
		onError    []ErrorHandler
	}

	// Option configures a Manager.
	Option func(*Manager)
)

// WithFs sets the filesystem configuration sources are read from.
func WithFs(fs afero.Fs) Option {
	return func(m *Manager) { m.fs = fs }
}

// WithLogger sets the logger.
func WithLogger(logger *log.Logger) Option {
	return func(m *Manager) { m.logger = logger }
}

// WithClock sets the clock used for cache TTL decisions.
func WithClock(clock testutil.Clock) Option {
	return func(m *Manager) { m.clock = clock }
}

// WithSettings sets the engine settings.
func WithSettings(s *config.Settings) Option {
	return func(m *Manager) { m.settings = s }
}

// WithEvaluator sets the snippet evaluator used when EvalFujsen is
// enabled.
func WithEvaluator(ev fujsen.Evaluator) Option {
	return func(m *Manager) { m.evaluator = ev }
}

// WithAutoCompile enables writing a fresh binary artifact beside each
// source file whenever the artifact is missing or older than the
// source.
func WithAutoCompile(enabled bool) Option {
	return func(m *Manager) { m.autoCompile = enabled }
}

// WithProducerVersion sets the producer version recorded in
// auto-compiled artifact metadata.
func WithProducerVersion(v string) Option {
	return func(m *Manager) { m.producerVersion = v }
}

// New creates a Manager. Unset options fall back to the OS filesystem,
// the default logger, the system clock, default settings, and the
// expression evaluator.
func New(opts ...Option) *Manager {
	m := &Manager{
		cache:   newShardedCache(),
		sources: make(map[string]map[string]struct{}),
	}
	for _, opt := range opts {
		opt(m)
	}
	if m.fs == nil {
		m.fs = afero.NewOsFs()
	}
	if m.logger == nil {
		m.logger = log.Default()
	}
	if m.clock == nil {
		m.clock = testutil.RealClock{}
	}
	if m.settings == nil {
		m.settings = config.DefaultSettings()
	}
	if m.evaluator == nil {
		m.evaluator = fujsen.NewExprEvaluator()
	}
	if m.producerVersion == "" {
		m.producerVersion = "tusk/dev"
	}
	return m
}

// OnLoaded registers a handler for successful loads.
func (m *Manager) OnLoaded(h LoadedHandler) {
	m.handlersMu.Lock()
	defer m.handlersMu.Unlock()
	m.onLoaded = append(m.onLoaded, h)
}

// OnChanged registers a handler for reloads that changed the resolved
// tree.
func (m *Manager) OnChanged(h ChangedHandler) {
	m.handlersMu.Lock()
	defer m.handlersMu.Unlock()
	m.onChanged = append(m.onChanged, h)
}

// OnError registers a handler for load failures.
func (m *Manager) OnError(h ErrorHandler) {
	m.handlersMu.Lock()
	defer m.handlersMu.Unlock()
	m.onError = append(m.onError, h)
}

// Stats returns the cache hit and miss counts.
func (m *Manager) Stats() CacheStats {
	return CacheStats{Hits: m.hits.Load(), Misses: m.miss.Load()}
}

// ClearCache drops every cached configuration. The next Load for any
// key goes through the full pipeline.
func (m *Manager) ClearCache() {
	m.cache.clear()
}

// fireLoaded invokes every loaded handler. A panicking handler is
// logged and does not affect the others or the caller.
func (m *Manager) fireLoaded(cfg *Configuration) {
	m.handlersMu.RLock()
	handlers := make([]LoadedHandler, len(m.onLoaded))
	copy(handlers, m.onLoaded)
	m.handlersMu.RUnlock()

	for _, h := range handlers {
		m.safely("loaded", func() { h(cfg) })
	}
}

func (m *Manager) fireChanged(cfg *Configuration, changes []document.Change) {
	m.handlersMu.RLock()
	handlers := make([]ChangedHandler, len(m.onChanged))
	copy(handlers, m.onChanged)
	m.handlersMu.RUnlock()

	for _, h := range handlers {
		m.safely("changed", func() { h(cfg, changes) })
	}
}

func (m *Manager) fireError(path, env string, err error) {
	m.handlersMu.RLock()
	handlers := make([]ErrorHandler, len(m.onError))
	copy(handlers, m.onError)
	m.handlersMu.RUnlock()

	for _, h := range handlers {
		m.safely("error", func() { h(path, env, err) })
	}
}

func (m *Manager) safely(kind string, fn func()) {
	defer func() {
		if r := recover(); r != nil {
			m.logger.Error("event handler panicked", "event", kind, "panic", r)
		}
	}()
	fn()
}

// trackSource remembers that path was loaded for env, so a later file
// change can invalidate and reload every affected environment.
func (m *Manager) trackSource(path, env string) {
	m.sourcesMu.Lock()
	defer m.sourcesMu.Unlock()
	envs, ok := m.sources[path]
	if !ok {
		envs = make(map[string]struct{})
		m.sources[path] = envs
	}
	envs[env] = struct{}{}
}

// trackedSources returns every watched source path and the
// environments it was loaded for.
func (m *Manager) trackedSources() map[string][]string {
	m.sourcesMu.Lock()
	defer m.sourcesMu.Unlock()
	out := make(map[string][]string, len(m.sources))
	for path, envs := range m.sources {
		for env := range envs {
			out[path] = append(out[path], env)
		}
	}
	return out
}
