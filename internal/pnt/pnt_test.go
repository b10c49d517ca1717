// SPDX-License-Identifier: MPL-2.0

package pnt

import (
	"context"
	"encoding/binary"
	"errors"
	"reflect"
	"testing"
	"time"

	"github.com/tuskcfg/tusk/internal/compress"
	"github.com/tuskcfg/tusk/internal/document"
	"github.com/tuskcfg/tusk/internal/parser"
)

const sampleSource = `
name = "demo"
debug = true

[server]
host = "localhost"
port = 8080
ratio = 0.75
tags = ["web", "api"]
upstream = ${server.host}
limits = { burst = 10, sustained = 5 }
empty = null
`

func sampleDoc(t *testing.T) *document.Document {
	t.Helper()
	doc, _, err := parser.Parse([]byte(sampleSource), "sample.tsk")
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	return doc
}

func mustCodec(t *testing.T, id byte) compress.Codec {
	t.Helper()
	c, err := compress.ByID(id)
	if err != nil {
		t.Fatalf("ByID(%d): %v", id, err)
	}
	return c
}

func TestCompileLoadRoundTrip(t *testing.T) {
	t.Parallel()

	doc := sampleDoc(t)
	ctx := context.Background()

	tests := []struct {
		name string
		opts Options
	}{
		{name: "plain", opts: Options{}},
		{name: "optimized", opts: Options{Optimize: true}},
		{name: "gzip", opts: Options{Codec: mustCodec(t, compress.IDGzip)}},
		{name: "brotli", opts: Options{Codec: mustCodec(t, compress.IDBrotli)}},
		{name: "checksummed", opts: Options{Checksum: true}},
		{name: "everything", opts: Options{
			Codec:    mustCodec(t, compress.IDBrotli),
			Checksum: true,
			Optimize: true,
			Debug:    true,
			Metadata: &Metadata{
				SourcePath:      "sample.tsk",
				ProducerVersion: "0.3.0",
				CompiledAt:      time.Unix(1700000000, 0).UTC(),
			},
		}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			data, err := Compile(ctx, doc, tt.opts)
			if err != nil {
				t.Fatalf("Compile: %v", err)
			}
			art, err := Load(ctx, data)
			if err != nil {
				t.Fatalf("Load: %v", err)
			}
			if !reflect.DeepEqual(art.Doc.ToMap(), doc.ToMap()) {
				t.Errorf("round trip changed the document:\n got %v\nwant %v", art.Doc.ToMap(), doc.ToMap())
			}
		})
	}
}

func TestLoadMetadata(t *testing.T) {
	t.Parallel()

	compiledAt := time.Unix(1700000000, 0).UTC()
	data, err := Compile(context.Background(), sampleDoc(t), Options{
		Metadata: &Metadata{
			SourcePath:      "/etc/app/sample.tsk",
			ProducerVersion: "0.3.0",
			CompiledAt:      compiledAt,
		},
	})
	if err != nil {
		t.Fatalf("Compile: %v", err)
	}
	art, err := Load(context.Background(), data)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if art.Metadata == nil {
		t.Fatal("expected a metadata block")
	}
	if art.Metadata.SourcePath != "/etc/app/sample.tsk" {
		t.Errorf("SourcePath = %q", art.Metadata.SourcePath)
	}
	if art.Metadata.ProducerVersion != "0.3.0" {
		t.Errorf("ProducerVersion = %q", art.Metadata.ProducerVersion)
	}
	if !art.Metadata.CompiledAt.Equal(compiledAt) {
		t.Errorf("CompiledAt = %v, want %v", art.Metadata.CompiledAt, compiledAt)
	}
}

func TestLoadDebugPositions(t *testing.T) {
	t.Parallel()

	data, err := Compile(context.Background(), sampleDoc(t), Options{Debug: true})
	if err != nil {
		t.Fatalf("Compile: %v", err)
	}
	art, err := Load(context.Background(), data)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	pos, ok := art.Debug["server.host"]
	if !ok {
		t.Fatalf("no debug entry for server.host: %v", art.Debug)
	}
	if pos.Line != 6 {
		t.Errorf("server.host line = %d, want 6", pos.Line)
	}
}

func TestLoadDetectsBitFlip(t *testing.T) {
	t.Parallel()

	data, err := Compile(context.Background(), sampleDoc(t), Options{Checksum: true})
	if err != nil {
		t.Fatalf("Compile: %v", err)
	}

	// Flip one bit in the stored body, past the header.
	headerLen := len(Magic) + 4 + 1 + 1 + 8 + 8 + 8
	data[headerLen+10] ^= 0x01

	_, err = Load(context.Background(), data)
	var corrupt *CorruptArtifactError
	if !errors.As(err, &corrupt) {
		t.Fatalf("expected CorruptArtifactError, got %v", err)
	}
	if corrupt.Expected == corrupt.Actual {
		t.Error("checksum mismatch should report differing values")
	}
}

func TestLoadRejectsBadMagic(t *testing.T) {
	t.Parallel()

	data, err := Compile(context.Background(), sampleDoc(t), Options{})
	if err != nil {
		t.Fatalf("Compile: %v", err)
	}
	data[0] = 'X'

	_, err = Load(context.Background(), data)
	var corrupt *CorruptArtifactError
	if !errors.As(err, &corrupt) {
		t.Fatalf("expected CorruptArtifactError, got %v", err)
	}
}

func TestLoadRejectsNewerVersion(t *testing.T) {
	t.Parallel()

	data, err := Compile(context.Background(), sampleDoc(t), Options{})
	if err != nil {
		t.Fatalf("Compile: %v", err)
	}
	binary.LittleEndian.PutUint32(data[4:], FormatVersion+1)

	_, err = Load(context.Background(), data)
	var unsupported *UnsupportedVersionError
	if !errors.As(err, &unsupported) {
		t.Fatalf("expected UnsupportedVersionError, got %v", err)
	}
	if unsupported.Version != FormatVersion+1 || unsupported.Max != FormatVersion {
		t.Errorf("got %+v", unsupported)
	}
}

func TestLoadRejectsTruncation(t *testing.T) {
	t.Parallel()

	data, err := Compile(context.Background(), sampleDoc(t), Options{})
	if err != nil {
		t.Fatalf("Compile: %v", err)
	}
	for _, n := range []int{3, len(Magic) + 2, len(data) / 2, len(data) - 1} {
		if _, err := Load(context.Background(), data[:n]); err == nil {
			t.Errorf("Load of %d/%d bytes should fail", n, len(data))
		}
	}
}

func TestLoadRejectsTrailingBytes(t *testing.T) {
	t.Parallel()

	data, err := Compile(context.Background(), sampleDoc(t), Options{})
	if err != nil {
		t.Fatalf("Compile: %v", err)
	}
	data = append(data, 0xAA)

	_, err = Load(context.Background(), data)
	var corrupt *CorruptArtifactError
	if !errors.As(err, &corrupt) {
		t.Fatalf("expected CorruptArtifactError, got %v", err)
	}
}

func TestOptimizeDeduplicatesStrings(t *testing.T) {
	t.Parallel()

	doc, _, err := parser.Parse([]byte(`
a = "repeated-value-repeated-value"
b = "repeated-value-repeated-value"
c = "repeated-value-repeated-value"
d = "repeated-value-repeated-value"
`), "dup.tsk")
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}

	plain, err := Compile(context.Background(), doc, Options{})
	if err != nil {
		t.Fatalf("Compile plain: %v", err)
	}
	optimized, err := Compile(context.Background(), doc, Options{Optimize: true})
	if err != nil {
		t.Fatalf("Compile optimized: %v", err)
	}
	if len(optimized) >= len(plain) {
		t.Errorf("optimized artifact is %d bytes, plain is %d; pooling should shrink it", len(optimized), len(plain))
	}
}

func TestCompileCanceledContext(t *testing.T) {
	t.Parallel()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	if _, err := Compile(ctx, sampleDoc(t), Options{}); !errors.Is(err, context.Canceled) {
		t.Errorf("Compile err = %v, want context.Canceled", err)
	}
	if _, err := Load(ctx, []byte(Magic)); !errors.Is(err, context.Canceled) {
		t.Errorf("Load err = %v, want context.Canceled", err)
	}
}
