// SPDX-License-Identifier: MPL-2.0

package document

import (
	"sort"
)

type (
	// Include is an include directive encountered while parsing, in
	// document order. Paths are as written in source; the include
	// resolver makes them absolute.
	Include struct {
		Path string
		Line int
		Col  int
	}

	// Section is a named group of key/value properties. The name is
	// unique within its enclosing document.
	Section struct {
		Name  string
		Props *Map
		Line  int
		Col   int
	}

	// Document is the root of a single parse: an ordered sequence of
	// sections plus the include directives found in the source. The
	// unnamed root section (Name == "") holds keys assigned before any
	// section header.
	Document struct {
		Source   string
		Sections []*Section
		Includes []Include

		index map[string]*Section
	}
)

// New creates an empty Document for the given source name.
func New(source string) *Document {
	return &Document{Source: source, index: make(map[string]*Section)}
}

// Section returns the named section, or nil if absent.
func (d *Document) Section(name string) *Section {
	if d.index == nil {
		d.rebuildIndex()
	}
	return d.index[name]
}

// EnsureSection returns the named section, creating and appending it
// if absent.
func (d *Document) EnsureSection(name string) *Section {
	if s := d.Section(name); s != nil {
		return s
	}
	s := &Section{Name: name, Props: NewMap()}
	d.Sections = append(d.Sections, s)
	d.index[name] = s
	return s
}

func (d *Document) rebuildIndex() {
	d.index = make(map[string]*Section, len(d.Sections))
	for _, s := range d.Sections {
		d.index[s.Name] = s
	}
}

// Flatten builds the flat key space used by reference resolution:
// `section.key` for section properties, bare `key` for root
// properties, and nested map entries at dotted depth below their
// property. Later definitions win, matching last-wins assignment
// semantics.
func (d *Document) Flatten() map[string]Value {
	flat := make(map[string]Value)
	for _, s := range d.Sections {
		prefix := ""
		if s.Name != "" {
			prefix = s.Name + "."
		}
		for _, k := range s.Props.Keys() {
			v, _ := s.Props.Get(k)
			flattenValue(flat, prefix+k, v)
		}
	}
	return flat
}

func flattenValue(flat map[string]Value, key string, v Value) {
	flat[key] = v
	if v.Kind != KindMap {
		return
	}
	for _, k := range v.Map.Keys() {
		child, _ := v.Map.Get(k)
		flattenValue(flat, key+"."+k, child)
	}
}

// ToMap converts the document to a plain nested map: one entry per
// section keyed by section name, root properties at the top level.
func (d *Document) ToMap() map[string]any {
	out := make(map[string]any, len(d.Sections))
	for _, s := range d.Sections {
		if s.Name == "" {
			for _, k := range s.Props.Keys() {
				v, _ := s.Props.Get(k)
				out[k] = v.Interface()
			}
			continue
		}
		sec := make(map[string]any, s.Props.Len())
		for _, k := range s.Props.Keys() {
			v, _ := s.Props.Get(k)
			sec[k] = v.Interface()
		}
		out[s.Name] = sec
	}
	return out
}

// FromMap rebuilds a Document from a plain nested map. Top-level map
// values become sections; top-level scalars land in the root section.
// Keys are ordered deterministically (sorted) because plain maps carry
// no insertion order.
func FromMap(source string, m map[string]any) *Document {
	d := New(source)

	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	for _, k := range keys {
		if sub, ok := m[k].(map[string]any); ok {
			s := d.EnsureSection(k)
			subKeys := make([]string, 0, len(sub))
			for sk := range sub {
				subKeys = append(subKeys, sk)
			}
			sort.Strings(subKeys)
			for _, sk := range subKeys {
				s.Props.Set(sk, FromInterface(sub[sk]))
			}
			continue
		}
		d.EnsureSection("").Props.Set(k, FromInterface(m[k]))
	}
	return d
}
