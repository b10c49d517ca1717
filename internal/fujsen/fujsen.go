// SPDX-License-Identifier: MPL-2.0

// Package fujsen evaluates embedded function blocks. Blocks are
// parsed as opaque source text; this package gives them meaning as
// expressions evaluated against the resolved configuration.
package fujsen

import (
	"context"
	"fmt"
	"sync"

	"github.com/expr-lang/expr"
	"github.com/expr-lang/expr/vm"

	"github.com/tuskcfg/tusk/internal/document"
)

// Evaluator runs a function block's source against an environment of
// resolved configuration values.
type Evaluator interface {
	Evaluate(ctx context.Context, src string, env map[string]any) (any, error)
}

// ExprEvaluator evaluates blocks as expressions. Compiled programs are
// cached per source text, so re-evaluating the same block against a
// fresh environment skips compilation.
type ExprEvaluator struct {
	mu       sync.Mutex
	programs map[string]*vm.Program
}

// NewExprEvaluator returns an ExprEvaluator with an empty program
// cache.
func NewExprEvaluator() *ExprEvaluator {
	return &ExprEvaluator{programs: make(map[string]*vm.Program)}
}

// Evaluate compiles src if needed and runs it against env.
func (e *ExprEvaluator) Evaluate(ctx context.Context, src string, env map[string]any) (any, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	e.mu.Lock()
	program, ok := e.programs[src]
	e.mu.Unlock()
	if !ok {
		var err error
		program, err = expr.Compile(src, expr.AllowUndefinedVariables())
		if err != nil {
			return nil, fmt.Errorf("compile function block: %w", err)
		}
		e.mu.Lock()
		e.programs[src] = program
		e.mu.Unlock()
	}

	out, err := expr.Run(program, env)
	if err != nil {
		return nil, fmt.Errorf("evaluate function block: %w", err)
	}
	return out, nil
}

// EvaluateDocument replaces every function block value in doc with its
// evaluation result. The environment is the document's own resolved
// content, so blocks can compute over sibling keys. Evaluation order
// follows document order; a failing block aborts with the flat key
// that failed.
func EvaluateDocument(ctx context.Context, doc *document.Document, ev Evaluator) error {
	env := doc.ToMap()

	for _, s := range doc.Sections {
		prefix := ""
		if s.Name != "" {
			prefix = s.Name + "."
		}
		if err := evaluateMap(ctx, s.Props, prefix, env, ev); err != nil {
			return err
		}
	}
	return nil
}

func evaluateMap(ctx context.Context, m *document.Map, prefix string, env map[string]any, ev Evaluator) error {
	for _, k := range m.Keys() {
		v, _ := m.Get(k)
		switch v.Kind {
		case document.KindFujsen:
			out, err := ev.Evaluate(ctx, v.Str, env)
			if err != nil {
				return fmt.Errorf("%s%s: %w", prefix, k, err)
			}
			m.Set(k, document.FromInterface(out))
		case document.KindMap:
			if err := evaluateMap(ctx, v.Map, prefix+k+".", env, ev); err != nil {
				return err
			}
		}
	}
	return nil
}
