// SPDX-License-Identifier: MPL-2.0

package document

import (
	"fmt"
	"reflect"
	"sort"
)

// ChangeKind classifies a single entry of a configuration diff.
type ChangeKind uint8

const (
	ChangeAdded ChangeKind = iota
	ChangeRemoved
	ChangeUpdated
)

func (k ChangeKind) String() string {
	switch k {
	case ChangeAdded:
		return "added"
	case ChangeRemoved:
		return "removed"
	case ChangeUpdated:
		return "updated"
	}
	return fmt.Sprintf("change(%d)", uint8(k))
}

// Change describes one dotted key that differs between two
// configurations.
type Change struct {
	Key  string
	Kind ChangeKind
	Old  any
	New  any
}

// Diff compares two nested configuration maps and returns the changed
// dotted keys in sorted order. Nested maps are walked with an explicit
// work stack; a key whose value changes between map and non-map is
// reported as updated at that key.
func Diff(old, updated map[string]any) []Change {
	var changes []Change

	type frame struct {
		prefix string
		old    map[string]any
		new    map[string]any
	}
	stack := []frame{{old: old, new: updated}}

	for len(stack) > 0 {
		f := stack[len(stack)-1]
		stack = stack[:len(stack)-1]

		for k, ov := range f.old {
			key := f.prefix + k
			nv, ok := f.new[k]
			if !ok {
				changes = append(changes, Change{Key: key, Kind: ChangeRemoved, Old: ov})
				continue
			}
			om, oIsMap := ov.(map[string]any)
			nm, nIsMap := nv.(map[string]any)
			if oIsMap && nIsMap {
				stack = append(stack, frame{prefix: key + ".", old: om, new: nm})
				continue
			}
			if !reflect.DeepEqual(ov, nv) {
				changes = append(changes, Change{Key: key, Kind: ChangeUpdated, Old: ov, New: nv})
			}
		}
		for k, nv := range f.new {
			if _, ok := f.old[k]; !ok {
				changes = append(changes, Change{Key: f.prefix + k, Kind: ChangeAdded, New: nv})
			}
		}
	}

	sort.Slice(changes, func(i, j int) bool { return changes[i].Key < changes[j].Key })
	return changes
}
