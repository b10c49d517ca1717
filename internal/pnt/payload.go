// SPDX-License-Identifier: MPL-2.0

package pnt

import (
	"fmt"

	"github.com/tuskcfg/tusk/internal/document"
)

// Value tags as stored on the wire. Values are append-only.
const (
	tagNull   byte = 0
	tagString byte = 1
	tagInt    byte = 2
	tagFloat  byte = 3
	tagBool   byte = 4
	tagList   byte = 5
	tagMap    byte = 6
	tagRef    byte = 7
	tagFujsen byte = 8
)

// payloadEnc encodes a document body. In optimized form every string
// is written once into a front-loaded pool and referenced by index;
// otherwise strings are inlined where they occur.
type payloadEnc struct {
	w      *writer
	pooled bool
	index  map[string]uint32
}

func encodePayload(doc *document.Document, optimize bool) []byte {
	enc := &payloadEnc{w: &writer{}, pooled: optimize}

	if optimize {
		pool := collectStrings(doc)
		enc.index = make(map[string]uint32, len(pool))
		enc.w.u32(uint32(len(pool)))
		for i, s := range pool {
			enc.index[s] = uint32(i)
			enc.w.str(s)
		}
	}

	enc.str(doc.Source)
	enc.w.u32(uint32(len(doc.Sections)))
	for _, s := range doc.Sections {
		enc.str(s.Name)
		enc.w.u32(uint32(s.Line))
		enc.w.u32(uint32(s.Col))
		enc.encodeMap(s.Props)
	}
	return enc.w.bytes()
}

func (e *payloadEnc) str(s string) {
	if e.pooled {
		e.w.u32(e.index[s])
		return
	}
	e.w.str(s)
}

func (e *payloadEnc) encodeMap(m *document.Map) {
	e.w.u32(uint32(m.Len()))
	for _, k := range m.Keys() {
		v, _ := m.Get(k)
		e.str(k)
		e.encodeValue(v)
	}
}

func (e *payloadEnc) encodeValue(v document.Value) {
	switch v.Kind {
	case document.KindNull:
		e.w.u8(tagNull)
	case document.KindString:
		e.w.u8(tagString)
		e.str(v.Str)
	case document.KindInt:
		e.w.u8(tagInt)
		e.w.i64(v.Int)
	case document.KindFloat:
		e.w.u8(tagFloat)
		e.w.f64(v.Float)
	case document.KindBool:
		e.w.u8(tagBool)
		if v.Bool {
			e.w.u8(1)
		} else {
			e.w.u8(0)
		}
	case document.KindList:
		e.w.u8(tagList)
		e.w.u32(uint32(len(v.List)))
		for _, item := range v.List {
			e.encodeValue(item)
		}
	case document.KindMap:
		e.w.u8(tagMap)
		e.encodeMap(v.Map)
	case document.KindReference:
		e.w.u8(tagRef)
		e.w.u8(v.Ref.Sigil)
		e.str(v.Ref.Path)
	case document.KindFujsen:
		e.w.u8(tagFujsen)
		e.str(v.Str)
	default:
		e.w.u8(tagNull)
	}
}

// collectStrings gathers every string in the document in first-seen
// order, deduplicated.
func collectStrings(doc *document.Document) []string {
	var pool []string
	seen := make(map[string]struct{})
	add := func(s string) {
		if _, ok := seen[s]; ok {
			return
		}
		seen[s] = struct{}{}
		pool = append(pool, s)
	}

	var (
		walkValue func(v document.Value)
		walkMap   func(m *document.Map)
	)
	walkMap = func(m *document.Map) {
		for _, k := range m.Keys() {
			add(k)
			v, _ := m.Get(k)
			walkValue(v)
		}
	}
	walkValue = func(v document.Value) {
		switch v.Kind {
		case document.KindString, document.KindFujsen:
			add(v.Str)
		case document.KindReference:
			add(v.Ref.Path)
		case document.KindList:
			for _, item := range v.List {
				walkValue(item)
			}
		case document.KindMap:
			walkMap(v.Map)
		}
	}

	add(doc.Source)
	for _, s := range doc.Sections {
		add(s.Name)
		walkMap(s.Props)
	}
	return pool
}

// payloadDec decodes a document body written by payloadEnc.
type payloadDec struct {
	r      *reader
	pooled bool
	pool   []string
}

func decodePayload(data []byte, optimized bool) (*document.Document, error) {
	dec := &payloadDec{r: &reader{data: data}, pooled: optimized}

	if optimized {
		n, err := dec.r.u32("string pool size")
		if err != nil {
			return nil, err
		}
		if uint64(n) > uint64(len(data)) {
			return nil, &CorruptArtifactError{Reason: fmt.Sprintf("string pool declares %d entries in a %d byte payload", n, len(data))}
		}
		dec.pool = make([]string, n)
		for i := range dec.pool {
			s, err := dec.r.str("pooled string")
			if err != nil {
				return nil, err
			}
			dec.pool[i] = s
		}
	}

	source, err := dec.str("document source")
	if err != nil {
		return nil, err
	}
	doc := document.New(source)

	sections, err := dec.r.u32("section count")
	if err != nil {
		return nil, err
	}
	for i := uint32(0); i < sections; i++ {
		name, err := dec.str("section name")
		if err != nil {
			return nil, err
		}
		line, err := dec.r.u32("section line")
		if err != nil {
			return nil, err
		}
		col, err := dec.r.u32("section column")
		if err != nil {
			return nil, err
		}
		s := doc.EnsureSection(name)
		s.Line, s.Col = int(line), int(col)
		if err := dec.decodeMap(s.Props); err != nil {
			return nil, err
		}
	}
	if dec.r.remaining() != 0 {
		return nil, &CorruptArtifactError{Reason: fmt.Sprintf("%d trailing bytes after document body", dec.r.remaining())}
	}
	return doc, nil
}

func (d *payloadDec) str(field string) (string, error) {
	if !d.pooled {
		return d.r.str(field)
	}
	idx, err := d.r.u32(field)
	if err != nil {
		return "", err
	}
	if int(idx) >= len(d.pool) {
		return "", &CorruptArtifactError{Reason: fmt.Sprintf("%s: string pool index %d out of range (%d entries)", field, idx, len(d.pool))}
	}
	return d.pool[idx], nil
}

func (d *payloadDec) decodeMap(m *document.Map) error {
	n, err := d.r.u32("map size")
	if err != nil {
		return err
	}
	for i := uint32(0); i < n; i++ {
		k, err := d.str("map key")
		if err != nil {
			return err
		}
		v, err := d.decodeValue()
		if err != nil {
			return err
		}
		m.Set(k, v)
	}
	return nil
}

func (d *payloadDec) decodeValue() (document.Value, error) {
	tag, err := d.r.u8("value tag")
	if err != nil {
		return document.Value{}, err
	}
	switch tag {
	case tagNull:
		return document.Null(), nil
	case tagString:
		s, err := d.str("string value")
		if err != nil {
			return document.Value{}, err
		}
		return document.String(s), nil
	case tagInt:
		n, err := d.r.i64("int value")
		if err != nil {
			return document.Value{}, err
		}
		return document.Int(n), nil
	case tagFloat:
		f, err := d.r.f64("float value")
		if err != nil {
			return document.Value{}, err
		}
		return document.Float(f), nil
	case tagBool:
		b, err := d.r.u8("bool value")
		if err != nil {
			return document.Value{}, err
		}
		return document.Bool(b != 0), nil
	case tagList:
		n, err := d.r.u32("list size")
		if err != nil {
			return document.Value{}, err
		}
		items := make([]document.Value, 0, min(int(n), 1024))
		for i := uint32(0); i < n; i++ {
			item, err := d.decodeValue()
			if err != nil {
				return document.Value{}, err
			}
			items = append(items, item)
		}
		return document.List(items), nil
	case tagMap:
		m := document.NewMap()
		if err := d.decodeMap(m); err != nil {
			return document.Value{}, err
		}
		return document.MapValue(m), nil
	case tagRef:
		sigil, err := d.r.u8("reference sigil")
		if err != nil {
			return document.Value{}, err
		}
		path, err := d.str("reference path")
		if err != nil {
			return document.Value{}, err
		}
		return document.Ref(sigil, path), nil
	case tagFujsen:
		body, err := d.str("fujsen body")
		if err != nil {
			return document.Value{}, err
		}
		return document.Fujsen(body), nil
	}
	return document.Value{}, &CorruptArtifactError{Reason: fmt.Sprintf("unknown value tag %d", tag)}
}
