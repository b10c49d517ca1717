// SPDX-License-Identifier: MPL-2.0

// Package refs resolves ${path} and @{path} references against the
// flat key space of a fully parsed document. Resolution runs only
// after the whole key space is known, so forward references work.
// Reference-to-reference chains are ordered topologically; cycles are
// reported with their full chain.
package refs

import (
	"errors"
	"fmt"
	"regexp"
	"sort"
	"strconv"
	"strings"

	"github.com/tuskcfg/tusk/internal/dag"
	"github.com/tuskcfg/tusk/internal/document"
	"github.com/tuskcfg/tusk/internal/runctx"
)

type (
	// UnresolvedReferenceError is the strict-mode failure for a
	// reference naming a key that does not exist.
	UnresolvedReferenceError struct {
		Key      string // the missing path
		Referrer string // the flat key holding the reference
	}

	// ReferenceCycleError reports a reference chain that loops back on
	// itself, with the full chain including the repeated node.
	ReferenceCycleError struct {
		Chain []string
	}

	// Warning is a non-fatal resolution diagnostic (the default for
	// unresolved references). At most one warning is emitted per
	// (Key, Referrer) pair.
	Warning struct {
		Key      string
		Referrer string
		Message  string
	}

	// Options controls resolution behavior.
	Options struct {
		// Strict escalates unresolved references from warnings to
		// errors.
		Strict bool
	}
)

func (e *UnresolvedReferenceError) Error() string {
	return fmt.Sprintf("unresolved reference %q (referenced by %s)", e.Key, e.Referrer)
}

func (e *ReferenceCycleError) Error() string {
	return fmt.Sprintf("reference cycle: %s", strings.Join(e.Chain, " -> "))
}

func (w Warning) String() string {
	return fmt.Sprintf("%s: %s", w.Referrer, w.Message)
}

// tokenRe matches ${path} and @{path} inside string values.
var tokenRe = regexp.MustCompile(`[$@]\{([^{}]+)\}`)

// Resolve rewrites every reference value and interpolated string in
// doc using the document's own flat key space. rctx may be nil; when
// set, resolved values are recorded in its registries and each lookup
// bumps the variable-access counter.
func Resolve(doc *document.Document, rctx *runctx.Context, opts Options) ([]Warning, error) {
	r := &resolver{
		flat:   doc.Flatten(),
		rctx:   rctx,
		opts:   opts,
		warned: make(map[string]struct{}),
	}

	order, err := r.order()
	if err != nil {
		return nil, err
	}

	for _, key := range order {
		v, ok := r.flat[key]
		if !ok {
			// A graph node with no backing key: a missing target. The
			// referrer reports it when resolved.
			continue
		}
		nv, err := r.resolveValue(key, v)
		if err != nil {
			return nil, err
		}
		r.flat[key] = nv
		setInTree(doc, key, nv)
	}

	r.populateRegistries()
	return r.warnings, nil
}

type resolver struct {
	flat     map[string]document.Value
	rctx     *runctx.Context
	opts     Options
	warnings []Warning
	warned   map[string]struct{}
}

// order topologically sorts the keys that participate in references so
// every reference target is resolved before its referrers.
func (r *resolver) order() ([]string, error) {
	keys := make([]string, 0, len(r.flat))
	for k := range r.flat {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	g := dag.New()
	for _, k := range keys {
		targets := targetsOf(r.flat[k])
		if len(targets) == 0 {
			continue
		}
		g.AddNode(k)
		for _, target := range targets {
			g.AddEdge(target, k)
		}
	}

	order, err := g.TopologicalSort()
	if err != nil {
		var cycle *dag.CycleError
		if errors.As(err, &cycle) {
			return nil, &ReferenceCycleError{Chain: cycle.Chain}
		}
		return nil, err
	}
	return order, nil
}

// targetsOf collects every reference path a value depends on,
// including tokens embedded in strings and references nested in lists
// and maps.
func targetsOf(v document.Value) []string {
	var out []string
	var walk func(document.Value)
	walk = func(v document.Value) {
		switch v.Kind {
		case document.KindReference:
			out = append(out, v.Ref.Path)
		case document.KindString:
			for _, m := range tokenRe.FindAllStringSubmatch(v.Str, -1) {
				out = append(out, strings.TrimSpace(m[1]))
			}
		case document.KindList:
			for _, item := range v.List {
				walk(item)
			}
		case document.KindMap:
			for _, k := range v.Map.Keys() {
				item, _ := v.Map.Get(k)
				walk(item)
			}
		}
	}
	walk(v)
	return out
}

func (r *resolver) resolveValue(key string, v document.Value) (document.Value, error) {
	switch v.Kind {
	case document.KindReference:
		target, ok := r.lookup(v.Ref.Path)
		if !ok {
			if err := r.unresolved(v.Ref.Path, key); err != nil {
				return document.Value{}, err
			}
			return v, nil
		}
		return target, nil

	case document.KindString:
		if !strings.ContainsAny(v.Str, "$@") {
			return v, nil
		}
		out, err := r.interpolate(key, v.Str)
		if err != nil {
			return document.Value{}, err
		}
		v.Str = out
		return v, nil

	case document.KindList:
		for i, item := range v.List {
			nv, err := r.resolveValue(key, item)
			if err != nil {
				return document.Value{}, err
			}
			v.List[i] = nv
		}
		return v, nil

	case document.KindMap:
		for _, k := range v.Map.Keys() {
			item, _ := v.Map.Get(k)
			nv, err := r.resolveValue(key+"."+k, item)
			if err != nil {
				return document.Value{}, err
			}
			v.Map.Set(k, nv)
		}
		return v, nil
	}
	return v, nil
}

// interpolate replaces embedded reference tokens in a string. An
// unresolved token stays in place (warning) unless strict mode turns
// it into an error.
func (r *resolver) interpolate(key, s string) (string, error) {
	var firstErr error
	out := tokenRe.ReplaceAllStringFunc(s, func(token string) string {
		if firstErr != nil {
			return token
		}
		path := strings.TrimSpace(token[2 : len(token)-1])
		target, ok := r.lookup(path)
		if !ok {
			if err := r.unresolved(path, key); err != nil {
				firstErr = err
			}
			return token
		}
		return stringify(target)
	})
	if firstErr != nil {
		return "", firstErr
	}
	return out, nil
}

func (r *resolver) lookup(path string) (document.Value, bool) {
	v, ok := r.flat[path]
	if ok && v.Kind == document.KindReference {
		// Target itself is an unresolved reference (its own target was
		// missing); treat the lookup as unresolved rather than leaking
		// a token.
		return document.Value{}, false
	}
	if ok && r.rctx != nil {
		r.rctx.AddVariableAccess()
	}
	return v, ok
}

func (r *resolver) unresolved(path, referrer string) error {
	if r.opts.Strict {
		return &UnresolvedReferenceError{Key: path, Referrer: referrer}
	}
	// Values nested in maps are visited both through their own flat key
	// and through the enclosing map; report each missing target once.
	sig := path + "\x00" + referrer
	if _, ok := r.warned[sig]; ok {
		return nil
	}
	r.warned[sig] = struct{}{}
	r.warnings = append(r.warnings, Warning{
		Key:      path,
		Referrer: referrer,
		Message:  fmt.Sprintf("unresolved reference %q", path),
	})
	return nil
}

// stringify renders a resolved value for string interpolation.
func stringify(v document.Value) string {
	switch v.Kind {
	case document.KindString, document.KindFujsen:
		return v.Str
	case document.KindInt:
		return strconv.FormatInt(v.Int, 10)
	case document.KindFloat:
		return strconv.FormatFloat(v.Float, 'g', -1, 64)
	case document.KindBool:
		return strconv.FormatBool(v.Bool)
	case document.KindNull:
		return ""
	case document.KindReference:
		return v.Ref.Token()
	}
	return fmt.Sprintf("%v", v.Interface())
}

// setInTree writes a resolved value back into the document structure
// at the given flat key.
func setInTree(doc *document.Document, key string, v document.Value) bool {
	for _, s := range doc.Sections {
		prefix := ""
		if s.Name != "" {
			prefix = s.Name + "."
		}
		if !strings.HasPrefix(key, prefix) {
			continue
		}
		if setInMap(s.Props, key[len(prefix):], v) {
			return true
		}
	}
	return false
}

func setInMap(m *document.Map, path string, v document.Value) bool {
	if m.Has(path) {
		m.Set(path, v)
		return true
	}
	for i := 0; i < len(path); i++ {
		if path[i] != '.' {
			continue
		}
		head, tail := path[:i], path[i+1:]
		if child, ok := m.Get(head); ok && child.Kind == document.KindMap {
			if setInMap(child.Map, tail, v) {
				return true
			}
		}
	}
	return false
}

// populateRegistries records the final flat key space in the run
// context registries: root keys in the global registry, section keys
// in the per-section registry, and every assignment in the raw
// registry.
func (r *resolver) populateRegistries() {
	if r.rctx == nil {
		return
	}
	for k, v := range r.flat {
		iface := v.Interface()
		r.rctx.Raw.Set(k, iface)
		if strings.Contains(k, ".") {
			r.rctx.Sections.Set(k, iface)
		} else {
			r.rctx.Globals.Set(k, iface)
		}
	}
}
