// SPDX-License-Identifier: MPL-2.0

// Package pnt compiles parsed documents into the binary artifact
// format and loads them back. An artifact is a fixed header followed
// by the encoded document body and optional metadata and debug
// blocks; the header flags say which optional pieces are present so
// old readers can reject artifacts they cannot understand instead of
// misreading them.
package pnt

import (
	"bytes"
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/zeebo/xxh3"

	"github.com/tuskcfg/tusk/internal/compress"
	"github.com/tuskcfg/tusk/internal/document"
)

// Magic identifies an artifact file.
const Magic = "PNUT"

// FormatVersion is the artifact format this build writes. Readers
// accept any version up to their own.
const FormatVersion uint32 = 1

// Header flags.
const (
	// FlagOptimized marks a body encoded with a deduplicated string
	// pool.
	FlagOptimized byte = 1 << 0
	// FlagCompressed marks a compressed body. The codec identifier
	// follows the flags byte.
	FlagCompressed byte = 1 << 1
	// FlagChecksummed marks a header carrying a checksum of the stored
	// body bytes.
	FlagChecksummed byte = 1 << 2
	// FlagMetadata marks a trailing metadata block.
	FlagMetadata byte = 1 << 3
	// FlagDebug marks a trailing debug block mapping flat keys to
	// source positions.
	FlagDebug byte = 1 << 4
)

type (
	// Options controls what Compile writes.
	Options struct {
		// Codec compresses the body. nil or the "none" codec stores it
		// verbatim.
		Codec compress.Codec
		// Checksum records an integrity checksum of the stored body.
		Checksum bool
		// Optimize deduplicates strings into a shared pool.
		Optimize bool
		// Metadata, when non-nil, is recorded in a trailing block.
		Metadata *Metadata
		// Debug records source positions for every flat key.
		Debug bool
	}

	// Metadata describes how an artifact was produced.
	Metadata struct {
		SourcePath      string
		ProducerVersion string
		CompiledAt      time.Time
	}

	// Position is a source location from an artifact debug block.
	Position struct {
		Line int
		Col  int
	}

	// Artifact is a fully loaded binary artifact.
	Artifact struct {
		Doc      *document.Document
		Metadata *Metadata
		Debug    map[string]Position
	}

	// CorruptArtifactError reports an artifact that fails structural or
	// integrity validation. Expected and Actual are set for checksum
	// mismatches.
	CorruptArtifactError struct {
		Reason   string
		Expected uint64
		Actual   uint64
	}

	// UnsupportedVersionError reports an artifact written by a newer
	// format than this reader understands.
	UnsupportedVersionError struct {
		Version uint32
		Max     uint32
	}
)

func (e *CorruptArtifactError) Error() string {
	if e.Expected != 0 || e.Actual != 0 {
		return fmt.Sprintf("corrupt artifact: %s (expected %016x, got %016x)", e.Reason, e.Expected, e.Actual)
	}
	return "corrupt artifact: " + e.Reason
}

func (e *UnsupportedVersionError) Error() string {
	return fmt.Sprintf("unsupported artifact version %d (newest supported is %d)", e.Version, e.Max)
}

// Compile encodes doc into artifact bytes.
func Compile(ctx context.Context, doc *document.Document, opts Options) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	body := encodePayload(doc, opts.Optimize)
	uncompressedLen := uint64(len(body))

	codec := opts.Codec
	if codec == nil {
		codec, _ = compress.ByID(compress.IDNone)
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	stored, err := codec.Compress(body)
	if err != nil {
		return nil, fmt.Errorf("compress artifact body: %w", err)
	}

	var flags byte
	if opts.Optimize {
		flags |= FlagOptimized
	}
	if codec.ID() != compress.IDNone {
		flags |= FlagCompressed
	}
	if opts.Checksum {
		flags |= FlagChecksummed
	}
	if opts.Metadata != nil {
		flags |= FlagMetadata
	}
	if opts.Debug {
		flags |= FlagDebug
	}

	w := &writer{}
	w.raw([]byte(Magic))
	w.u32(FormatVersion)
	w.u8(flags)
	w.u8(codec.ID())
	w.u64(uncompressedLen)
	if opts.Checksum {
		w.u64(xxh3.Hash(stored))
	}
	w.u64(uint64(len(stored)))
	w.raw(stored)

	if opts.Metadata != nil {
		w.str(opts.Metadata.SourcePath)
		w.str(opts.Metadata.ProducerVersion)
		w.i64(opts.Metadata.CompiledAt.Unix())
	}
	if opts.Debug {
		writeDebug(w, doc)
	}
	return w.bytes(), nil
}

// Load decodes artifact bytes. The checksum, when present, is
// verified against the stored body bytes before any decompression or
// decoding happens.
func Load(ctx context.Context, data []byte) (*Artifact, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	r := &reader{data: data}
	magic, err := r.take(len(Magic), "magic")
	if err != nil {
		return nil, err
	}
	if !bytes.Equal(magic, []byte(Magic)) {
		return nil, &CorruptArtifactError{Reason: fmt.Sprintf("bad magic %q", magic)}
	}
	version, err := r.u32("format version")
	if err != nil {
		return nil, err
	}
	if version > FormatVersion {
		return nil, &UnsupportedVersionError{Version: version, Max: FormatVersion}
	}
	flags, err := r.u8("flags")
	if err != nil {
		return nil, err
	}
	codecID, err := r.u8("compression codec")
	if err != nil {
		return nil, err
	}
	uncompressedLen, err := r.u64("uncompressed length")
	if err != nil {
		return nil, err
	}
	var sum uint64
	if flags&FlagChecksummed != 0 {
		if sum, err = r.u64("checksum"); err != nil {
			return nil, err
		}
	}
	storedLen, err := r.u64("stored length")
	if err != nil {
		return nil, err
	}
	stored, err := r.take(int(storedLen), "artifact body")
	if err != nil {
		return nil, err
	}

	if flags&FlagChecksummed != 0 {
		if actual := xxh3.Hash(stored); actual != sum {
			return nil, &CorruptArtifactError{Reason: "checksum mismatch", Expected: sum, Actual: actual}
		}
	}

	if err := ctx.Err(); err != nil {
		return nil, err
	}
	codec, err := compress.ByID(codecID)
	if err != nil {
		return nil, &CorruptArtifactError{Reason: err.Error()}
	}
	body, err := codec.Decompress(stored, uncompressedLen)
	if err != nil {
		return nil, &CorruptArtifactError{Reason: err.Error()}
	}

	art := &Artifact{}
	if flags&FlagMetadata != 0 {
		meta := &Metadata{}
		if meta.SourcePath, err = r.str("metadata source path"); err != nil {
			return nil, err
		}
		if meta.ProducerVersion, err = r.str("metadata producer version"); err != nil {
			return nil, err
		}
		unix, err := r.i64("metadata compile time")
		if err != nil {
			return nil, err
		}
		meta.CompiledAt = time.Unix(unix, 0).UTC()
		art.Metadata = meta
	}
	if flags&FlagDebug != 0 {
		if art.Debug, err = readDebug(r); err != nil {
			return nil, err
		}
	}
	if r.remaining() != 0 {
		return nil, &CorruptArtifactError{Reason: fmt.Sprintf("%d trailing bytes after artifact", r.remaining())}
	}

	if err := ctx.Err(); err != nil {
		return nil, err
	}
	art.Doc, err = decodePayload(body, flags&FlagOptimized != 0)
	if err != nil {
		return nil, err
	}
	return art, nil
}

// writeDebug records the source position of every flat key that has
// one, in sorted key order.
func writeDebug(w *writer, doc *document.Document) {
	flat := doc.Flatten()
	keys := make([]string, 0, len(flat))
	for k, v := range flat {
		if v.Line > 0 {
			keys = append(keys, k)
		}
	}
	sort.Strings(keys)

	w.u32(uint32(len(keys)))
	for _, k := range keys {
		v := flat[k]
		w.str(k)
		w.u32(uint32(v.Line))
		w.u32(uint32(v.Col))
	}
}

func readDebug(r *reader) (map[string]Position, error) {
	n, err := r.u32("debug entry count")
	if err != nil {
		return nil, err
	}
	out := make(map[string]Position, n)
	for i := uint32(0); i < n; i++ {
		k, err := r.str("debug key")
		if err != nil {
			return nil, err
		}
		line, err := r.u32("debug line")
		if err != nil {
			return nil, err
		}
		col, err := r.u32("debug column")
		if err != nil {
			return nil, err
		}
		out[k] = Position{Line: int(line), Col: int(col)}
	}
	return out, nil
}
