// SPDX-License-Identifier: MPL-2.0

// Package parser turns .tsk text into a document.Document. The grammar
// is line-oriented: `[section]` headers, `key = value` (or `key:
// value`) assignments, `#` comments, inline lists and nested maps,
// ${path}/@{path} reference tokens, `include "path"` directives, and
// brace-delimited fujsen blocks stored as opaque strings.
package parser

import (
	"bytes"
	"fmt"
	"strconv"
	"strings"

	"github.com/tuskcfg/tusk/internal/document"
)

// maxLineLen is the threshold above which a line triggers a non-fatal
// warning. Lines this long are usually generated or pasted content and
// tend to hide syntax mistakes.
const maxLineLen = 4096

var utf8BOM = []byte{0xEF, 0xBB, 0xBF}

type (
	// SyntaxError is a fatal parse failure at a source position.
	SyntaxError struct {
		Source string
		Line   int
		Col    int
		Reason string
	}

	// Warning is a non-fatal diagnostic collected during parsing.
	Warning struct {
		Source  string
		Line    int
		Col     int
		Message string
	}

	parser struct {
		src      string
		input    []byte
		pos      int
		line     int
		col      int
		doc      *document.Document
		section  *document.Section
		warnings []Warning
	}
)

func (e *SyntaxError) Error() string {
	return fmt.Sprintf("%s:%d:%d: %s", e.Source, e.Line, e.Col, e.Reason)
}

func (w Warning) String() string {
	return fmt.Sprintf("%s:%d:%d: %s", w.Source, w.Line, w.Col, w.Message)
}

// Parse parses text into a Document. Warnings are returned alongside a
// successful parse; a non-nil error is always a *SyntaxError and means
// the document was abandoned.
func Parse(text []byte, sourceName string) (*document.Document, []Warning, error) {
	p := &parser{
		src:   sourceName,
		input: text,
		line:  1,
		col:   1,
		doc:   document.New(sourceName),
	}

	if bytes.HasPrefix(p.input, utf8BOM) {
		p.input = p.input[len(utf8BOM):]
		p.warnf(1, 1, "leading UTF-8 byte order mark stripped")
	}

	// NUL bytes mean binary or corrupt input; refuse up front rather
	// than producing a garbage document.
	if idx := bytes.IndexByte(p.input, 0); idx >= 0 {
		line, col := positionOf(p.input, idx)
		return nil, nil, &SyntaxError{Source: sourceName, Line: line, Col: col, Reason: "embedded NUL byte"}
	}

	p.checkLineLengths()
	p.section = p.doc.EnsureSection("")

	if err := p.parseTop(); err != nil {
		return nil, nil, err
	}
	return p.doc, p.warnings, nil
}

// positionOf computes the 1-based line/column of a byte offset.
func positionOf(input []byte, offset int) (line, col int) {
	line, col = 1, 1
	for i := 0; i < offset && i < len(input); i++ {
		if input[i] == '\n' {
			line++
			col = 1
		} else {
			col++
		}
	}
	return line, col
}

func (p *parser) checkLineLengths() {
	start := 0
	lineNo := 1
	for i := 0; i <= len(p.input); i++ {
		if i == len(p.input) || p.input[i] == '\n' {
			if i-start > maxLineLen {
				p.warnf(lineNo, 1, "line exceeds %d bytes", maxLineLen)
			}
			start = i + 1
			lineNo++
		}
	}
}

func (p *parser) parseTop() error {
	for {
		p.skipBlank()
		if p.eof() {
			return nil
		}

		switch p.peek() {
		case '[':
			if err := p.parseSectionHeader(); err != nil {
				return err
			}
		default:
			if err := p.parseAssignmentOrDirective(); err != nil {
				return err
			}
		}
	}
}

func (p *parser) parseSectionHeader() error {
	line, col := p.line, p.col
	p.advance() // consume '['

	start := p.pos
	for !p.eof() && p.peek() != ']' && p.peek() != '\n' {
		p.advance()
	}
	if p.eof() || p.peek() != ']' {
		return p.errf(line, col, "unclosed section header")
	}
	name := strings.TrimSpace(string(p.input[start:p.pos]))
	p.advance() // consume ']'

	if name == "" {
		return p.errf(line, col, "empty section name")
	}
	if !isIdent(name) {
		return p.errf(line, col, "invalid section name %q", name)
	}
	if s := p.doc.Section(name); s != nil {
		return p.errf(line, col, "duplicate section %q (first defined at line %d)", name, s.Line)
	}

	s := p.doc.EnsureSection(name)
	s.Line, s.Col = line, col
	p.section = s
	return p.expectLineEnd()
}

func (p *parser) parseAssignmentOrDirective() error {
	line, col := p.line, p.col

	key, err := p.scanKey()
	if err != nil {
		return err
	}

	// `include "path"` has no separator; the path follows directly.
	if key == "include" {
		p.skipSpaces()
		if !p.eof() && (p.peek() == '"' || p.peek() == '\'') {
			v, strErr := p.parseQuoted()
			if strErr != nil {
				return strErr
			}
			p.doc.Includes = append(p.doc.Includes, document.Include{Path: v.Str, Line: line, Col: col})
			return p.expectLineEnd()
		}
		return p.errf(line, col, "include directive requires a quoted path")
	}

	p.skipSpaces()
	if p.eof() || (p.peek() != '=' && p.peek() != ':') {
		return p.errf(line, col, "expected '=' or ':' after key %q", key)
	}
	p.advance()
	p.skipSpaces()

	val, err := p.parseValue()
	if err != nil {
		return err
	}

	if p.section.Props.Has(key) {
		// Last wins, per the original format semantics. Surface the
		// shadowed key so the author can notice.
		p.warnf(line, col, "duplicate key %q: previous value overwritten", key)
	}
	p.section.Props.Set(key, val)
	return p.expectLineEnd()
}

func (p *parser) scanKey() (string, error) {
	line, col := p.line, p.col
	start := p.pos
	for !p.eof() && isIdentByte(p.peek()) {
		p.advance()
	}
	if p.pos == start {
		return "", p.errf(line, col, "expected key, found %q", string(p.peek()))
	}
	return string(p.input[start:p.pos]), nil
}

// parseValue dispatches on the first byte of a value.
func (p *parser) parseValue() (document.Value, error) {
	line, col := p.line, p.col
	if p.eof() || p.peek() == '\n' {
		return document.Value{}, p.errf(line, col, "missing value")
	}

	var (
		v   document.Value
		err error
	)
	switch c := p.peek(); {
	case c == '"' || c == '\'':
		v, err = p.parseQuoted()
	case c == '$' || c == '@':
		v, err = p.parseReference()
	case c == '[':
		v, err = p.parseList()
	case c == '{':
		v, err = p.parseMap()
	default:
		v, err = p.parseBare()
	}
	if err != nil {
		return document.Value{}, err
	}
	v.Line, v.Col = line, col
	return v, nil
}

func (p *parser) parseQuoted() (document.Value, error) {
	line, col := p.line, p.col
	quote := p.peek()
	p.advance()

	var sb strings.Builder
	for {
		if p.eof() || p.peek() == '\n' {
			return document.Value{}, p.errf(line, col, "unmatched quote")
		}
		c := p.peek()
		if c == quote {
			p.advance()
			return document.String(sb.String()), nil
		}
		if c == '\\' {
			p.advance()
			if p.eof() {
				return document.Value{}, p.errf(line, col, "unmatched quote")
			}
			switch e := p.peek(); e {
			case 'n':
				sb.WriteByte('\n')
			case 't':
				sb.WriteByte('\t')
			case 'r':
				sb.WriteByte('\r')
			case '\\', '"', '\'':
				sb.WriteByte(e)
			default:
				sb.WriteByte('\\')
				sb.WriteByte(e)
			}
			p.advance()
			continue
		}
		sb.WriteByte(c)
		p.advance()
	}
}

func (p *parser) parseReference() (document.Value, error) {
	line, col := p.line, p.col
	sigil := p.peek()
	p.advance()
	if p.eof() || p.peek() != '{' {
		// A bare `$word` is not a reference token; fall back to a bare
		// scalar starting at the sigil.
		p.retreatTo(line, col, 1)
		return p.parseBare()
	}
	p.advance() // consume '{'

	start := p.pos
	for !p.eof() && p.peek() != '}' && p.peek() != '\n' {
		p.advance()
	}
	if p.eof() || p.peek() != '}' {
		return document.Value{}, p.errf(line, col, "unclosed reference token")
	}
	path := strings.TrimSpace(string(p.input[start:p.pos]))
	p.advance() // consume '}'

	if path == "" {
		return document.Value{}, p.errf(line, col, "empty reference path")
	}
	return document.Ref(sigil, path), nil
}

func (p *parser) parseList() (document.Value, error) {
	line, col := p.line, p.col
	p.advance() // consume '['

	var items []document.Value
	for {
		p.skipBlank()
		if p.eof() {
			return document.Value{}, p.errf(line, col, "unclosed list")
		}
		if p.peek() == ']' {
			p.advance()
			return document.List(items), nil
		}
		item, err := p.parseValue()
		if err != nil {
			return document.Value{}, err
		}
		items = append(items, item)

		p.skipBlank()
		if !p.eof() && p.peek() == ',' {
			p.advance()
		}
	}
}

// parseMap parses a nested map `{ k = v, ... }`. Entries may be
// separated by commas or newlines. A map value whose body starts with
// the `fujsen` marker is not possible here; fujsen blocks are handled
// by parseBare before braces are seen.
func (p *parser) parseMap() (document.Value, error) {
	line, col := p.line, p.col
	p.advance() // consume '{'

	m := document.NewMap()
	for {
		p.skipBlank()
		if p.eof() {
			return document.Value{}, p.errf(line, col, "unclosed map")
		}
		if p.peek() == '}' {
			p.advance()
			return document.MapValue(m), nil
		}

		keyLine, keyCol := p.line, p.col
		key, err := p.scanKey()
		if err != nil {
			return document.Value{}, err
		}
		p.skipSpaces()
		if p.eof() || (p.peek() != '=' && p.peek() != ':') {
			return document.Value{}, p.errf(keyLine, keyCol, "expected '=' or ':' after key %q", key)
		}
		p.advance()
		p.skipSpaces()

		val, err := p.parseValue()
		if err != nil {
			return document.Value{}, err
		}
		if m.Has(key) {
			p.warnf(keyLine, keyCol, "duplicate key %q: previous value overwritten", key)
		}
		m.Set(key, val)

		p.skipSpaces()
		if !p.eof() && p.peek() == ',' {
			p.advance()
		}
	}
}

// parseBare handles unquoted scalars and the fujsen marker. The scalar
// runs to end of line or to a comment and is classified as bool, null,
// int, float, or string.
func (p *parser) parseBare() (document.Value, error) {
	start := p.pos
	for !p.eof() && p.peek() != '\n' && p.peek() != '#' && p.peek() != ',' &&
		p.peek() != '[' && p.peek() != ']' && p.peek() != '{' && p.peek() != '}' {
		p.advance()
	}
	raw := strings.TrimSpace(string(p.input[start:p.pos]))

	if raw == "fujsen" {
		return p.parseFujsen()
	}

	switch raw {
	case "":
		return document.Value{}, p.errf(p.line, p.col, "missing value")
	case "true":
		return document.Bool(true), nil
	case "false":
		return document.Bool(false), nil
	case "null":
		return document.Null(), nil
	}
	if i, err := strconv.ParseInt(raw, 10, 64); err == nil {
		return document.Int(i), nil
	}
	if f, err := strconv.ParseFloat(raw, 64); err == nil {
		return document.Float(f), nil
	}
	return document.String(raw), nil
}

// parseFujsen scans a brace-delimited block after the `fujsen` marker
// and stores its body as an opaque string. Brace balancing is
// quote-aware so string literals inside the snippet cannot unbalance
// the scan.
func (p *parser) parseFujsen() (document.Value, error) {
	p.skipBlank()
	line, col := p.line, p.col
	if p.eof() || p.peek() != '{' {
		return document.Value{}, p.errf(line, col, "fujsen marker requires a brace block")
	}
	p.advance() // consume '{'

	start := p.pos
	depth := 1
	for !p.eof() {
		c := p.peek()
		switch c {
		case '"', '\'':
			if err := p.skipQuotedRaw(c); err != nil {
				return document.Value{}, p.errf(line, col, "unmatched quote in fujsen block")
			}
			continue
		case '{':
			depth++
		case '}':
			depth--
			if depth == 0 {
				body := string(p.input[start:p.pos])
				p.advance() // consume closing '}'
				return document.Fujsen(strings.TrimSpace(body)), nil
			}
		}
		p.advance()
	}
	return document.Value{}, p.errf(line, col, "unclosed fujsen block")
}

// skipQuotedRaw consumes a quoted literal inside a fujsen block
// without interpreting escapes beyond backslash-skip.
func (p *parser) skipQuotedRaw(quote byte) error {
	p.advance() // opening quote
	for !p.eof() {
		c := p.peek()
		if c == '\\' {
			p.advance()
			if !p.eof() {
				p.advance()
			}
			continue
		}
		p.advance()
		if c == quote {
			return nil
		}
	}
	return fmt.Errorf("unterminated quote")
}

// expectLineEnd consumes trailing spaces and an optional comment, then
// requires a newline or EOF.
func (p *parser) expectLineEnd() error {
	p.skipSpaces()
	if p.eof() {
		return nil
	}
	if p.peek() == '#' {
		p.skipToNewline()
		return nil
	}
	if p.peek() == '\n' {
		p.advance()
		return nil
	}
	return p.errf(p.line, p.col, "unexpected trailing content %q", string(p.peek()))
}

// --- low-level cursor helpers ---

func (p *parser) eof() bool  { return p.pos >= len(p.input) }
func (p *parser) peek() byte { return p.input[p.pos] }

func (p *parser) advance() {
	if p.eof() {
		return
	}
	if p.input[p.pos] == '\n' {
		p.line++
		p.col = 1
	} else {
		p.col++
	}
	p.pos++
}

// retreatTo rewinds the cursor n bytes to a known position. Only used
// for single-byte lookahead backtracking within one line.
func (p *parser) retreatTo(line, col, n int) {
	p.pos -= n
	p.line = line
	p.col = col
}

func (p *parser) skipSpaces() {
	for !p.eof() && (p.peek() == ' ' || p.peek() == '\t' || p.peek() == '\r') {
		p.advance()
	}
}

// skipBlank consumes whitespace, newlines, and comments.
func (p *parser) skipBlank() {
	for !p.eof() {
		switch p.peek() {
		case ' ', '\t', '\r', '\n':
			p.advance()
		case '#':
			p.skipToNewline()
		default:
			return
		}
	}
}

func (p *parser) skipToNewline() {
	for !p.eof() && p.peek() != '\n' {
		p.advance()
	}
}

func (p *parser) warnf(line, col int, format string, args ...any) {
	p.warnings = append(p.warnings, Warning{
		Source:  p.src,
		Line:    line,
		Col:     col,
		Message: fmt.Sprintf(format, args...),
	})
}

func (p *parser) errf(line, col int, format string, args ...any) *SyntaxError {
	return &SyntaxError{
		Source: p.src,
		Line:   line,
		Col:    col,
		Reason: fmt.Sprintf(format, args...),
	}
}

func isIdentByte(c byte) bool {
	switch {
	case c >= 'a' && c <= 'z', c >= 'A' && c <= 'Z', c >= '0' && c <= '9':
		return true
	case c == '_' || c == '-' || c == '.':
		return true
	}
	return false
}

func isIdent(s string) bool {
	if s == "" {
		return false
	}
	for i := 0; i < len(s); i++ {
		if !isIdentByte(s[i]) {
			return false
		}
	}
	return true
}
