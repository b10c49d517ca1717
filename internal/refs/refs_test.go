// SPDX-License-Identifier: MPL-2.0

package refs

import (
	"errors"
	"testing"

	"github.com/tuskcfg/tusk/internal/document"
	"github.com/tuskcfg/tusk/internal/parser"
	"github.com/tuskcfg/tusk/internal/runctx"
)

func mustParse(t *testing.T, text string) *document.Document {
	t.Helper()
	doc, _, err := parser.Parse([]byte(text), "test.tsk")
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	return doc
}

func flatLookup(t *testing.T, doc *document.Document, key string) any {
	t.Helper()
	v, ok := doc.Flatten()[key]
	if !ok {
		t.Fatalf("key %q not found after resolution", key)
	}
	return v.Interface()
}

func TestResolveForwardReference(t *testing.T) {
	t.Parallel()

	doc := mustParse(t, `
greeting = ${server.host}

[server]
host = "localhost"
port = 8080
`)
	warns, err := Resolve(doc, nil, Options{})
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	if len(warns) != 0 {
		t.Fatalf("expected no warnings, got %v", warns)
	}
	if got := flatLookup(t, doc, "greeting"); got != "localhost" {
		t.Errorf("greeting = %v, want localhost", got)
	}
}

func TestResolveChain(t *testing.T) {
	t.Parallel()

	doc := mustParse(t, `
a = ${b}
b = @{c}
c = 42
`)
	if _, err := Resolve(doc, nil, Options{}); err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	if got := flatLookup(t, doc, "a"); got != int64(42) {
		t.Errorf("a = %v (%T), want 42", got, got)
	}
	if got := flatLookup(t, doc, "b"); got != int64(42) {
		t.Errorf("b = %v (%T), want 42", got, got)
	}
}

func TestResolveInterpolation(t *testing.T) {
	t.Parallel()

	doc := mustParse(t, `
[server]
host = "localhost"
port = 8080
url = "http://${server.host}:${server.port}/api"
`)
	if _, err := Resolve(doc, nil, Options{}); err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	want := "http://localhost:8080/api"
	if got := flatLookup(t, doc, "server.url"); got != want {
		t.Errorf("server.url = %v, want %s", got, want)
	}
}

func TestResolveListElements(t *testing.T) {
	t.Parallel()

	doc := mustParse(t, `
primary = "db-1"
replicas = [${primary}, "db-2"]
`)
	if _, err := Resolve(doc, nil, Options{}); err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	got, ok := flatLookup(t, doc, "replicas").([]any)
	if !ok || len(got) != 2 {
		t.Fatalf("replicas = %v, want two elements", got)
	}
	if got[0] != "db-1" || got[1] != "db-2" {
		t.Errorf("replicas = %v, want [db-1 db-2]", got)
	}
}

func TestResolveUnresolvedWarns(t *testing.T) {
	t.Parallel()

	doc := mustParse(t, `
host = ${missing.key}
banner = "welcome to ${missing.other}"
`)
	warns, err := Resolve(doc, nil, Options{})
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	if len(warns) != 2 {
		t.Fatalf("expected 2 warnings, got %d: %v", len(warns), warns)
	}

	// Unresolved values keep their token form.
	if got := flatLookup(t, doc, "host"); got != "${missing.key}" {
		t.Errorf("host = %v, want the original token", got)
	}
	if got := flatLookup(t, doc, "banner"); got != "welcome to ${missing.other}" {
		t.Errorf("banner = %v, want the token left in place", got)
	}
}

func TestResolveUnresolvedInNestedMapWarnsOnce(t *testing.T) {
	t.Parallel()

	doc := mustParse(t, `
[database]
primary = { host = "${missing.host}", port = 5432 }
`)
	warns, err := Resolve(doc, nil, Options{})
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	// The nested value is visited via its own flat key and via the
	// enclosing map; the missing target must be reported once.
	if len(warns) != 1 {
		t.Fatalf("expected 1 warning, got %d: %v", len(warns), warns)
	}
	if warns[0].Key != "missing.host" {
		t.Errorf("warning key = %q, want missing.host", warns[0].Key)
	}
	if warns[0].Referrer != "database.primary.host" {
		t.Errorf("warning referrer = %q, want database.primary.host", warns[0].Referrer)
	}
	if got := flatLookup(t, doc, "database.primary.host"); got != "${missing.host}" {
		t.Errorf("database.primary.host = %v, want the token left in place", got)
	}
}

func TestResolveUnresolvedStrict(t *testing.T) {
	t.Parallel()

	doc := mustParse(t, `host = ${missing.key}`)
	_, err := Resolve(doc, nil, Options{Strict: true})

	var unresolved *UnresolvedReferenceError
	if !errors.As(err, &unresolved) {
		t.Fatalf("expected UnresolvedReferenceError, got %v", err)
	}
	if unresolved.Key != "missing.key" {
		t.Errorf("Key = %q, want missing.key", unresolved.Key)
	}
	if unresolved.Referrer != "host" {
		t.Errorf("Referrer = %q, want host", unresolved.Referrer)
	}
}

func TestResolveCycle(t *testing.T) {
	t.Parallel()

	doc := mustParse(t, `
a = ${b}
b = ${a}
`)
	_, err := Resolve(doc, nil, Options{})

	var cycle *ReferenceCycleError
	if !errors.As(err, &cycle) {
		t.Fatalf("expected ReferenceCycleError, got %v", err)
	}
	if len(cycle.Chain) < 3 {
		t.Fatalf("Chain = %v, want a closed chain", cycle.Chain)
	}
	if cycle.Chain[0] != cycle.Chain[len(cycle.Chain)-1] {
		t.Errorf("Chain = %v, want first element repeated at the end", cycle.Chain)
	}
}

func TestResolveSelfReference(t *testing.T) {
	t.Parallel()

	doc := mustParse(t, `a = ${a}`)
	_, err := Resolve(doc, nil, Options{})

	var cycle *ReferenceCycleError
	if !errors.As(err, &cycle) {
		t.Fatalf("expected ReferenceCycleError, got %v", err)
	}
}

func TestResolvePopulatesRegistries(t *testing.T) {
	t.Parallel()

	doc := mustParse(t, `
name = "demo"

[server]
host = "localhost"
url = "http://${server.host}/"
`)
	rctx := runctx.New(8)
	if _, err := Resolve(doc, rctx, Options{}); err != nil {
		t.Fatalf("Resolve: %v", err)
	}

	if v, ok := rctx.Globals.Get("name"); !ok || v != "demo" {
		t.Errorf("Globals[name] = %v (%v), want demo", v, ok)
	}
	if v, ok := rctx.Sections.Get("server.host"); !ok || v != "localhost" {
		t.Errorf("Sections[server.host] = %v (%v), want localhost", v, ok)
	}
	if _, ok := rctx.Raw.Get("server.url"); !ok {
		t.Error("Raw registry missing server.url")
	}
	if got := rctx.Counters().VariableAccesses; got != 1 {
		t.Errorf("VariableAccesses = %d, want 1", got)
	}
}
