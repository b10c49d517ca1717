// SPDX-License-Identifier: MPL-2.0

package manager

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"strings"

	"github.com/spf13/afero"

	"github.com/tuskcfg/tusk/internal/compress"
	"github.com/tuskcfg/tusk/internal/document"
	"github.com/tuskcfg/tusk/internal/fujsen"
	"github.com/tuskcfg/tusk/internal/include"
	"github.com/tuskcfg/tusk/internal/parser"
	"github.com/tuskcfg/tusk/internal/pnt"
	"github.com/tuskcfg/tusk/internal/refs"
	"github.com/tuskcfg/tusk/internal/runctx"
)

// overlayCandidates returns the environment overlay files applied on
// top of a source file, in merge order (later candidates win).
func overlayCandidates(dir, env string) []string {
	return []string{
		filepath.Join(dir, "config."+env+".tsk"),
		filepath.Join(dir, "peanu."+env+".tsk"),
		filepath.Join(dir, "environments", env+".tsk"),
	}
}

// Load returns the configuration at path with env overlays applied.
// A cached entry is returned as long as its TTL has not elapsed and
// the source file's mtime is unchanged; otherwise the full pipeline
// runs and the result replaces the cache entry.
func (m *Manager) Load(ctx context.Context, path, env string) (*Configuration, error) {
	abs, err := filepath.Abs(path)
	if err != nil {
		return nil, &ConfigurationError{Path: path, Env: env, Cause: err}
	}

	if m.settings.Cache.Enabled {
		if cfg, ok := m.cached(abs, env); ok {
			m.hits.Add(1)
			return cfg, nil
		}
	}
	m.miss.Add(1)

	return m.load(ctx, abs, env)
}

// Reload runs the full pipeline regardless of cache freshness, updates
// the cache, and fires change events when the resolved tree differs
// from the previously cached one.
func (m *Manager) Reload(ctx context.Context, path, env string) (*Configuration, error) {
	abs, err := filepath.Abs(path)
	if err != nil {
		return nil, &ConfigurationError{Path: path, Env: env, Cause: err}
	}

	return m.load(ctx, abs, env)
}

// LoadMerged loads every path with env overlays and deep-merges the
// resolved trees in input order (later paths win). When
// stopOnFirstError is false, failing paths are skipped and reported
// through the error handlers; an error is returned only when every
// path fails.
func (m *Manager) LoadMerged(ctx context.Context, paths []string, env string, stopOnFirstError bool) (map[string]any, error) {
	var (
		trees []map[string]any
		errs  []error
	)
	for _, path := range paths {
		cfg, err := m.Load(ctx, path, env)
		if err != nil {
			if stopOnFirstError {
				return nil, err
			}
			m.logger.Warn("skipping configuration source", "path", path, "err", err)
			errs = append(errs, err)
			continue
		}
		trees = append(trees, cfg.Tree)
	}

	if len(trees) == 0 {
		if len(errs) > 0 {
			return nil, errors.Join(errs...)
		}
		return map[string]any{}, nil
	}

	merged, err := document.MergeAll(trees...)
	if err != nil {
		return nil, fmt.Errorf("merge configuration layers: %w", err)
	}

	return merged, nil
}

// cached returns the cache entry for (path, env) if it is still fresh.
func (m *Manager) cached(abs, env string) (*Configuration, bool) {
	entry, ok := m.cache.get(cacheKey{path: abs, env: env})
	if !ok {
		return nil, false
	}
	if ttl := m.settings.Cache.TTL; ttl > 0 && m.clock.Since(entry.loadedAt) > ttl {
		return nil, false
	}
	info, err := m.fs.Stat(abs)
	if err != nil || !info.ModTime().Equal(entry.mtime) {
		return nil, false
	}
	return entry.cfg, true
}

// load runs the pipeline for (abs, env), updates the cache on success,
// and fires events. A failing load keeps any previous cache entry so
// consumers retain the last good configuration.
func (m *Manager) load(ctx context.Context, abs, env string) (*Configuration, error) {
	if m.settings.LoadTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, m.settings.LoadTimeout)
		defer cancel()
	}

	cfg, err := m.pipeline(ctx, abs, env)
	if err != nil {
		if m.settings.LoadTimeout > 0 && errors.Is(err, context.DeadlineExceeded) {
			err = &TimeoutError{Path: abs, Timeout: m.settings.LoadTimeout}
		}
		cause := &ConfigurationError{Path: abs, Env: env, Cause: err}
		m.fireError(abs, env, cause)
		return nil, cause
	}

	key := cacheKey{path: abs, env: env}
	var oldTree map[string]any
	if entry, ok := m.cache.get(key); ok {
		oldTree = entry.cfg.Tree
	}

	entry := &cacheEntry{cfg: cfg, loadedAt: m.clock.Now()}
	if info, statErr := m.fs.Stat(abs); statErr == nil {
		entry.mtime = info.ModTime()
	}
	m.cache.put(key, entry)
	m.trackSource(abs, env)

	if m.autoCompile {
		m.compileArtifact(ctx, abs, cfg)
	}

	m.fireLoaded(cfg)
	if oldTree != nil {
		if changes := document.Diff(oldTree, cfg.Tree); len(changes) > 0 {
			m.fireChanged(cfg, changes)
		}
	}

	return cfg, nil
}

// pipeline parses abs, expands includes, applies env overlays,
// resolves references, and optionally evaluates snippets.
//
// Overlays merge before reference resolution on purpose: resolution
// runs against the final key space, so an overlay can both override a
// reference target and itself reference base-document keys.
func (m *Manager) pipeline(ctx context.Context, abs, env string) (*Configuration, error) {
	rctx := runctx.New(m.settings.MaxIncludeDepth)
	resolver := include.NewResolver(m.fs, parser.Parse, m.settings.IncludeParallelism)

	var warnings []string

	doc, parseWarnings, err := m.loadRoot(ctx, abs, rctx, resolver)
	if err != nil {
		return nil, err
	}
	for _, w := range parseWarnings {
		warnings = append(warnings, w.String())
	}

	if env != "" {
		for _, overlay := range overlayCandidates(filepath.Dir(abs), env) {
			exists, err := afero.Exists(m.fs, overlay)
			if err != nil || !exists {
				continue
			}
			overlayDoc, overlayWarnings, err := resolver.Expand(ctx, overlay, rctx)
			if err != nil {
				return nil, fmt.Errorf("overlay %s: %w", overlay, err)
			}
			for _, w := range overlayWarnings {
				warnings = append(warnings, w.String())
			}
			doc.MergeFrom(overlayDoc)
		}
	}

	refWarnings, err := refs.Resolve(doc, rctx, refs.Options{Strict: m.settings.StrictReferences})
	if err != nil {
		return nil, err
	}
	for _, w := range refWarnings {
		warnings = append(warnings, w.String())
	}

	if m.settings.EvalFujsen {
		if err := fujsen.EvaluateDocument(ctx, doc, m.evaluator); err != nil {
			if m.settings.StrictReferences {
				return nil, err
			}
			m.logger.Warn("snippet evaluation failed", "source", abs, "err", err)
			warnings = append(warnings, err.Error())
		}
	}

	return &Configuration{
		Path:     abs,
		Env:      env,
		Doc:      doc,
		Tree:     doc.ToMap(),
		Warnings: warnings,
		Counters: rctx.Counters(),
		LoadedAt: m.clock.Now(),
	}, nil
}

// loadRoot loads the root source file. Binary artifacts are decoded
// directly; text sources go through the include resolver.
func (m *Manager) loadRoot(ctx context.Context, abs string, rctx *runctx.Context, resolver *include.Resolver) (*document.Document, []parser.Warning, error) {
	if filepath.Ext(abs) != ".pnt" {
		return resolver.Expand(ctx, abs, rctx)
	}

	data, err := afero.ReadFile(m.fs, abs)
	if err != nil {
		return nil, nil, err
	}
	artifact, err := pnt.Load(ctx, data)
	if err != nil {
		return nil, nil, err
	}
	return artifact.Doc, nil, nil
}

// compileArtifact writes a fresh binary artifact beside a text source
// when the artifact is missing or older than the source. Failures are
// logged and never fail the load.
func (m *Manager) compileArtifact(ctx context.Context, abs string, cfg *Configuration) {
	if !strings.HasSuffix(abs, ".tsk") {
		return
	}
	artifactPath := strings.TrimSuffix(abs, ".tsk") + ".pnt"

	srcInfo, err := m.fs.Stat(abs)
	if err != nil {
		return
	}
	if artInfo, err := m.fs.Stat(artifactPath); err == nil && !artInfo.ModTime().Before(srcInfo.ModTime()) {
		return
	}

	codec, err := compress.ByName(m.settings.DefaultCompression.String())
	if err != nil {
		m.logger.Warn("auto-compile skipped", "path", artifactPath, "err", err)
		return
	}

	data, err := pnt.Compile(ctx, cfg.Doc, pnt.Options{
		Codec:    codec,
		Checksum: true,
		Optimize: true,
		Metadata: &pnt.Metadata{
			SourcePath:      abs,
			ProducerVersion: m.producerVersion,
			CompiledAt:      m.clock.Now(),
		},
	})
	if err != nil {
		m.logger.Warn("auto-compile failed", "path", artifactPath, "err", err)
		return
	}

	if err := afero.WriteFile(m.fs, artifactPath, data, 0o644); err != nil {
		m.logger.Warn("auto-compile write failed", "path", artifactPath, "err", err)
		return
	}
	m.logger.Debug("compiled artifact", "path", artifactPath, "bytes", len(data))
}
