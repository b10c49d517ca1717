// SPDX-License-Identifier: MPL-2.0

package document

import (
	"fmt"

	"dario.cat/mergo"
)

// MaxMergeDepth bounds the nesting depth accepted by Merge. The depth
// check runs with an explicit work stack so adversarially nested input
// cannot exhaust the native call stack.
const MaxMergeDepth = 64

// Merge deep-merges src onto dst: nested maps merge key-by-key
// recursively, scalar and non-map values are overwritten by src. dst
// is mutated; src is not.
func Merge(dst map[string]any, src map[string]any) error {
	if err := checkDepth(dst); err != nil {
		return err
	}
	if err := checkDepth(src); err != nil {
		return err
	}
	if err := mergo.Merge(&dst, src, mergo.WithOverride); err != nil {
		return fmt.Errorf("merge configuration: %w", err)
	}
	return nil
}

// MergeAll deep-merges each layer onto a fresh map in input order and
// returns the result. Later layers take precedence.
func MergeAll(layers ...map[string]any) (map[string]any, error) {
	out := make(map[string]any)
	for _, layer := range layers {
		if layer == nil {
			continue
		}
		if err := Merge(out, layer); err != nil {
			return nil, err
		}
	}
	return out, nil
}

// MergeFrom merges src's sections into d. Keys from src override
// existing keys; map values merge recursively instead of replacing.
// Include directives are not carried over.
func (d *Document) MergeFrom(src *Document) {
	for _, s := range src.Sections {
		mergeMaps(d.EnsureSection(s.Name).Props, s.Props)
	}
}

func mergeMaps(dst, src *Map) {
	for _, k := range src.Keys() {
		sv, _ := src.Get(k)
		if dv, ok := dst.Get(k); ok && dv.Kind == KindMap && sv.Kind == KindMap {
			mergeMaps(dv.Map, sv.Map)
			continue
		}
		dst.Set(k, sv)
	}
}

// checkDepth walks m iteratively and fails when nesting exceeds
// MaxMergeDepth.
func checkDepth(m map[string]any) error {
	type frame struct {
		m     map[string]any
		depth int
	}
	stack := []frame{{m: m, depth: 1}}
	for len(stack) > 0 {
		f := stack[len(stack)-1]
		stack = stack[:len(stack)-1]
		if f.depth > MaxMergeDepth {
			return fmt.Errorf("merge configuration: nesting exceeds %d levels", MaxMergeDepth)
		}
		for _, v := range f.m {
			if sub, ok := v.(map[string]any); ok {
				stack = append(stack, frame{m: sub, depth: f.depth + 1})
			}
		}
	}
	return nil
}
