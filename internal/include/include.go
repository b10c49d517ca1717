// SPDX-License-Identifier: MPL-2.0

// Package include expands include directives into a single merged
// document. Expansion is depth-first in directive order; sibling
// includes of one file expand concurrently, each on its own branch of
// the run context so cycle detection follows the actual include chain.
package include

import (
	"context"
	"fmt"
	"path/filepath"

	"github.com/spf13/afero"
	"golang.org/x/sync/errgroup"

	"github.com/tuskcfg/tusk/internal/document"
	"github.com/tuskcfg/tusk/internal/parser"
	"github.com/tuskcfg/tusk/internal/runctx"
)

// DefaultParallelism bounds how many sibling includes expand at once
// when no explicit limit is configured.
const DefaultParallelism = 4

// ParseFunc turns raw source bytes into a document. It matches
// parser.Parse.
type ParseFunc func(text []byte, sourceName string) (*document.Document, []parser.Warning, error)

// Resolver loads and expands documents from a filesystem.
type Resolver struct {
	fs    afero.Fs
	parse ParseFunc
	limit int
}

// NewResolver returns a Resolver reading through fs and parsing with
// parse. parallelism <= 0 selects DefaultParallelism.
func NewResolver(fs afero.Fs, parse ParseFunc, parallelism int) *Resolver {
	if parallelism <= 0 {
		parallelism = DefaultParallelism
	}
	return &Resolver{fs: fs, parse: parse, limit: parallelism}
}

// Expand loads path, parses it, and recursively expands its include
// directives. Included content is merged in directive order, with the
// including file's own keys taking precedence over everything it
// includes. The returned document carries no include directives.
func (r *Resolver) Expand(ctx context.Context, path string, rctx *runctx.Context) (*document.Document, []parser.Warning, error) {
	abs, err := filepath.Abs(path)
	if err != nil {
		return nil, nil, fmt.Errorf("resolve path %q: %w", path, err)
	}
	return r.expand(ctx, abs, rctx)
}

func (r *Resolver) expand(ctx context.Context, abs string, rctx *runctx.Context) (*document.Document, []parser.Warning, error) {
	if err := ctx.Err(); err != nil {
		return nil, nil, err
	}
	if err := rctx.PushInclude(abs); err != nil {
		return nil, nil, err
	}
	defer rctx.PopInclude()

	data, err := afero.ReadFile(r.fs, abs)
	if err != nil {
		return nil, nil, fmt.Errorf("read %q: %w", abs, err)
	}
	doc, warns, err := r.parse(data, abs)
	if err != nil {
		return nil, nil, err
	}
	if len(doc.Includes) == 0 {
		return doc, warns, nil
	}

	base := filepath.Dir(abs)
	subdocs := make([]*document.Document, len(doc.Includes))
	subwarns := make([][]parser.Warning, len(doc.Includes))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(r.limit)
	for i, inc := range doc.Includes {
		branch := rctx.Branch()
		g.Go(func() error {
			target := inc.Path
			if !filepath.IsAbs(target) {
				target = filepath.Join(base, target)
			}
			sub, w, err := r.expand(gctx, target, branch)
			if err != nil {
				return fmt.Errorf("%s:%d:%d: %w", abs, inc.Line, inc.Col, err)
			}
			subdocs[i] = sub
			subwarns[i] = w
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, nil, err
	}

	merged := document.New(doc.Source)
	var all []parser.Warning
	for i := range subdocs {
		merged.MergeFrom(subdocs[i])
		all = append(all, subwarns[i]...)
	}
	merged.MergeFrom(doc)
	all = append(all, warns...)
	return merged, all, nil
}
