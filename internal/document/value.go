// SPDX-License-Identifier: MPL-2.0

// Package document defines the in-memory model for parsed .tsk
// configuration: a Document of ordered Sections, each holding an
// insertion-ordered mapping of keys to tagged Values. Insertion order
// is significant for round-trip and display, never for semantics.
package document

import (
	"fmt"
	"sort"
	"strings"
)

// Kind discriminates the variants of a Value.
type Kind uint8

const (
	KindNull Kind = iota
	KindString
	KindInt
	KindFloat
	KindBool
	KindList
	KindMap
	KindReference
	KindFujsen
)

// String returns the lowercase name of the kind.
func (k Kind) String() string {
	switch k {
	case KindNull:
		return "null"
	case KindString:
		return "string"
	case KindInt:
		return "int"
	case KindFloat:
		return "float"
	case KindBool:
		return "bool"
	case KindList:
		return "list"
	case KindMap:
		return "map"
	case KindReference:
		return "reference"
	case KindFujsen:
		return "fujsen"
	}
	return fmt.Sprintf("kind(%d)", uint8(k))
}

// Reference names a `section.key` path in the flat key space, written
// in source as ${path} or @{path}. Both sigils resolve against the
// same namespace; the sigil is preserved for round-trip display.
type Reference struct {
	Sigil byte // '$' or '@'
	Path  string
}

// Token renders the reference back to its source form.
func (r Reference) Token() string {
	return string(r.Sigil) + "{" + r.Path + "}"
}

// Value is a tagged variant: exactly the field selected by Kind is
// meaningful. Line and Col record the source position of the value's
// first byte (zero when the value was not produced by the parser).
type Value struct {
	Kind  Kind
	Str   string // KindString, KindFujsen (opaque snippet source)
	Int   int64
	Float float64
	Bool  bool
	List  []Value
	Map   *Map
	Ref   Reference

	Line int
	Col  int
}

// Constructors for each variant. Positions are filled in by the parser
// after construction.

func Null() Value                 { return Value{Kind: KindNull} }
func String(s string) Value       { return Value{Kind: KindString, Str: s} }
func Int(i int64) Value           { return Value{Kind: KindInt, Int: i} }
func Float(f float64) Value       { return Value{Kind: KindFloat, Float: f} }
func Bool(b bool) Value           { return Value{Kind: KindBool, Bool: b} }
func List(items []Value) Value    { return Value{Kind: KindList, List: items} }
func MapValue(m *Map) Value       { return Value{Kind: KindMap, Map: m} }
func Ref(sigil byte, path string) Value {
	return Value{Kind: KindReference, Ref: Reference{Sigil: sigil, Path: path}}
}
func Fujsen(src string) Value { return Value{Kind: KindFujsen, Str: src} }

// Interface converts the value to its plain Go representation. Maps
// lose insertion order (they become map[string]any); unresolved
// references render as their source token and fujsen snippets as their
// opaque source string.
func (v Value) Interface() any {
	switch v.Kind {
	case KindNull:
		return nil
	case KindString:
		return v.Str
	case KindInt:
		return v.Int
	case KindFloat:
		return v.Float
	case KindBool:
		return v.Bool
	case KindList:
		out := make([]any, len(v.List))
		for i, item := range v.List {
			out[i] = item.Interface()
		}
		return out
	case KindMap:
		out := make(map[string]any, v.Map.Len())
		for _, k := range v.Map.Keys() {
			item, _ := v.Map.Get(k)
			out[k] = item.Interface()
		}
		return out
	case KindReference:
		return v.Ref.Token()
	case KindFujsen:
		return v.Str
	}
	return nil
}

// FromInterface converts a plain Go value back into a tagged Value.
// Map keys are ordered deterministically (sorted) because plain maps
// carry no insertion order. Strings that look like reference tokens
// are restored as references so compile/load round-trips preserve
// variant kinds.
func FromInterface(in any) Value {
	switch t := in.(type) {
	case nil:
		return Null()
	case string:
		if sigil, path, ok := splitRefToken(t); ok {
			return Ref(sigil, path)
		}
		return String(t)
	case bool:
		return Bool(t)
	case int:
		return Int(int64(t))
	case int64:
		return Int(t)
	case float64:
		return Float(t)
	case []any:
		items := make([]Value, len(t))
		for i, item := range t {
			items[i] = FromInterface(item)
		}
		return List(items)
	case map[string]any:
		keys := make([]string, 0, len(t))
		for k := range t {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		m := NewMap()
		for _, k := range keys {
			m.Set(k, FromInterface(t[k]))
		}
		return MapValue(m)
	}
	return String(fmt.Sprintf("%v", in))
}

// splitRefToken reports whether s is exactly a ${path} or @{path}
// token and returns its parts.
func splitRefToken(s string) (sigil byte, path string, ok bool) {
	if len(s) < 3 || !strings.HasSuffix(s, "}") {
		return 0, "", false
	}
	if s[0] != '$' && s[0] != '@' {
		return 0, "", false
	}
	if s[1] != '{' {
		return 0, "", false
	}
	inner := s[2 : len(s)-1]
	if inner == "" || strings.ContainsAny(inner, "{}") {
		return 0, "", false
	}
	return s[0], inner, true
}

// Equal reports deep semantic equality, ignoring source positions.
func (v Value) Equal(other Value) bool {
	if v.Kind != other.Kind {
		return false
	}
	switch v.Kind {
	case KindNull:
		return true
	case KindString, KindFujsen:
		return v.Str == other.Str
	case KindInt:
		return v.Int == other.Int
	case KindFloat:
		return v.Float == other.Float
	case KindBool:
		return v.Bool == other.Bool
	case KindReference:
		return v.Ref == other.Ref
	case KindList:
		if len(v.List) != len(other.List) {
			return false
		}
		for i := range v.List {
			if !v.List[i].Equal(other.List[i]) {
				return false
			}
		}
		return true
	case KindMap:
		if v.Map.Len() != other.Map.Len() {
			return false
		}
		for _, k := range v.Map.Keys() {
			a, _ := v.Map.Get(k)
			b, ok := other.Map.Get(k)
			if !ok || !a.Equal(b) {
				return false
			}
		}
		return true
	}
	return false
}

// Map is a string-keyed mapping that preserves insertion order.
type Map struct {
	keys  []string
	items map[string]Value
}

// NewMap creates an empty ordered map.
func NewMap() *Map {
	return &Map{items: make(map[string]Value)}
}

// Set inserts or replaces the value for key. Replacing an existing key
// keeps its original position.
func (m *Map) Set(key string, v Value) {
	if _, exists := m.items[key]; !exists {
		m.keys = append(m.keys, key)
	}
	m.items[key] = v
}

// Get returns the value for key.
func (m *Map) Get(key string) (Value, bool) {
	v, ok := m.items[key]
	return v, ok
}

// Has reports whether key is present.
func (m *Map) Has(key string) bool {
	_, ok := m.items[key]
	return ok
}

// Keys returns the keys in insertion order. The slice is shared; do
// not mutate it.
func (m *Map) Keys() []string { return m.keys }

// Len returns the number of entries.
func (m *Map) Len() int { return len(m.keys) }
