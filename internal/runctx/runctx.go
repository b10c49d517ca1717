// SPDX-License-Identifier: MPL-2.0

// Package runctx holds the mutable per-request state shared by the
// parser, include resolver, and reference resolver: the section and
// include stacks, the processed-file set, three variable registries,
// and atomic counters. A Context lives for exactly one top-level
// processing request and is discarded afterwards.
package runctx

import (
	"fmt"
	"strings"
	"sync"
	"sync/atomic"
)

type (
	// CircularIncludeError reports an include cycle. Chain lists the
	// active include stack plus the repeated path at the end.
	CircularIncludeError struct {
		Chain []string
	}

	// IncludeDepthExceededError reports an include chain deeper than
	// the configured maximum.
	IncludeDepthExceededError struct {
		Depth int
		Max   int
	}

	// Counters aggregates the atomic counters of a Context. Safe to
	// read while other goroutines update them.
	Counters struct {
		CacheHits        int64
		CacheMisses      int64
		VariableAccesses int64
		Includes         int64
	}

	// Registry is one independently addressable variable namespace.
	Registry struct {
		mu   sync.RWMutex
		vars map[string]any
	}

	// Context is the per-request state. Stack mutations come from a
	// single logical writer per branch; counters and the processed set
	// are shared across branches under their own synchronization.
	Context struct {
		maxIncludeDepth int

		// includeStack is the active stack for cycle detection. The
		// zero value is the root branch; concurrent subtree branches
		// get their own copy via Branch.
		includeStack []string

		// processed records every file ever pushed, for dedup and
		// diagnostics. Distinct from the active stack: a file may be
		// included twice along non-overlapping paths without being a
		// cycle.
		processed *processedSet

		sectionStack []string

		// Global, per-section, and raw-assignment variables are three
		// independent registries per the source format's semantics.
		Globals  *Registry
		Sections *Registry
		Raw      *Registry

		cacheHits        *atomic.Int64
		cacheMisses      *atomic.Int64
		variableAccesses *atomic.Int64
		includeCount     *atomic.Int64
	}

	processedSet struct {
		mu    sync.Mutex
		paths map[string]struct{}
	}
)

func (e *CircularIncludeError) Error() string {
	return fmt.Sprintf("circular include: %s", strings.Join(e.Chain, " -> "))
}

func (e *IncludeDepthExceededError) Error() string {
	return fmt.Sprintf("include depth %d exceeds maximum %d", e.Depth, e.Max)
}

// New creates a Context for one top-level processing request.
func New(maxIncludeDepth int) *Context {
	return &Context{
		maxIncludeDepth:  maxIncludeDepth,
		processed:        &processedSet{paths: make(map[string]struct{})},
		Globals:          newRegistry(),
		Sections:         newRegistry(),
		Raw:              newRegistry(),
		cacheHits:        &atomic.Int64{},
		cacheMisses:      &atomic.Int64{},
		variableAccesses: &atomic.Int64{},
		includeCount:     &atomic.Int64{},
	}
}

// Branch clones the active include-stack view for a concurrent include
// subtree. The processed set, registries, and counters stay shared;
// the returned Context must only be mutated by its own branch.
func (c *Context) Branch() *Context {
	clone := *c
	clone.includeStack = append([]string(nil), c.includeStack...)
	clone.sectionStack = append([]string(nil), c.sectionStack...)
	return &clone
}

// --- include stack ---

// PushInclude records path on the active stack. It fails with
// CircularIncludeError when path is already on the stack (the chain
// includes the repeated node) and with IncludeDepthExceededError when
// the push would exceed the configured maximum depth.
func (c *Context) PushInclude(path string) error {
	for _, active := range c.includeStack {
		if active == path {
			chain := append(append([]string(nil), c.includeStack...), path)
			return &CircularIncludeError{Chain: chain}
		}
	}
	if len(c.includeStack)+1 > c.maxIncludeDepth {
		return &IncludeDepthExceededError{Depth: len(c.includeStack) + 1, Max: c.maxIncludeDepth}
	}

	c.includeStack = append(c.includeStack, path)
	c.processed.add(path)
	c.includeCount.Add(1)
	return nil
}

// PopInclude removes the top of the active stack. Popping an empty
// stack is a no-op, matching the tolerant stack semantics used for
// sections.
func (c *Context) PopInclude() {
	if len(c.includeStack) == 0 {
		return
	}
	c.includeStack = c.includeStack[:len(c.includeStack)-1]
}

// IncludeChain returns a snapshot of the active stack.
func (c *Context) IncludeChain() []string {
	return append([]string(nil), c.includeStack...)
}

// IncludeDepth returns the current active-stack depth.
func (c *Context) IncludeDepth() int { return len(c.includeStack) }

// Processed reports whether path was ever pushed on any branch.
func (c *Context) Processed(path string) bool { return c.processed.has(path) }

// ProcessedFiles returns the processed-file set for diagnostics.
func (c *Context) ProcessedFiles() []string { return c.processed.all() }

// --- section stack ---

// EnterSection pushes a section name.
func (c *Context) EnterSection(name string) {
	c.sectionStack = append(c.sectionStack, name)
}

// ExitSection pops the current section. Exiting with an empty stack is
// a no-op: malformed documents degrade gracefully instead of crashing
// the context.
func (c *Context) ExitSection() {
	if len(c.sectionStack) == 0 {
		return
	}
	c.sectionStack = c.sectionStack[:len(c.sectionStack)-1]
}

// CurrentSection returns the innermost section name, or "" at root.
func (c *Context) CurrentSection() string {
	if len(c.sectionStack) == 0 {
		return ""
	}
	return c.sectionStack[len(c.sectionStack)-1]
}

// --- counters ---

func (c *Context) AddCacheHit() { c.cacheHits.Add(1) }
func (c *Context) AddCacheMiss() { c.cacheMisses.Add(1) }
func (c *Context) AddVariableAccess() { c.variableAccesses.Add(1) }

// Counters returns a consistent-enough snapshot of all counters.
func (c *Context) Counters() Counters {
	return Counters{
		CacheHits:        c.cacheHits.Load(),
		CacheMisses:      c.cacheMisses.Load(),
		VariableAccesses: c.variableAccesses.Load(),
		Includes:         c.includeCount.Load(),
	}
}

// --- registries ---

func newRegistry() *Registry {
	return &Registry{vars: make(map[string]any)}
}

// Set stores a variable.
func (r *Registry) Set(key string, value any) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.vars[key] = value
}

// Get loads a variable.
func (r *Registry) Get(key string) (any, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	v, ok := r.vars[key]
	return v, ok
}

// Len returns the number of variables stored.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.vars)
}

// --- processed set ---

func (s *processedSet) add(path string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.paths[path] = struct{}{}
}

func (s *processedSet) has(path string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.paths[path]
	return ok
}

func (s *processedSet) all() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]string, 0, len(s.paths))
	for p := range s.paths {
		out = append(out, p)
	}
	return out
}
