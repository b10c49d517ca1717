// SPDX-License-Identifier: MPL-2.0

// Package compress provides the payload codecs used by compiled
// configuration artifacts. Codecs are addressed by a stable one-byte
// identifier stored in the artifact header.
package compress

import (
	"bytes"
	"fmt"
	"io"

	"github.com/andybalholm/brotli"
	"github.com/klauspost/compress/gzip"
)

// Codec identifiers as stored on the wire. Values are append-only.
const (
	IDNone   byte = 0
	IDGzip   byte = 1
	IDBrotli byte = 2
)

// Codec compresses and decompresses artifact payloads.
type Codec interface {
	// ID is the codec's wire identifier.
	ID() byte
	// Name is the codec's human-readable name.
	Name() string
	// Compress returns the encoded form of data.
	Compress(data []byte) ([]byte, error)
	// Decompress decodes data. uncompressedLen is the expected decoded
	// size from the artifact header, used to pre-size buffers and to
	// reject payloads that inflate past it.
	Decompress(data []byte, uncompressedLen uint64) ([]byte, error)
}

var codecs = map[byte]Codec{
	IDNone:   noneCodec{},
	IDGzip:   gzipCodec{},
	IDBrotli: brotliCodec{},
}

// ByID returns the codec for a wire identifier.
func ByID(id byte) (Codec, error) {
	c, ok := codecs[id]
	if !ok {
		return nil, fmt.Errorf("unknown compression codec %d", id)
	}
	return c, nil
}

// ByName returns the codec with the given name ("none", "gzip",
// "brotli").
func ByName(name string) (Codec, error) {
	for _, c := range codecs {
		if c.Name() == name {
			return c, nil
		}
	}
	return nil, fmt.Errorf("unknown compression codec %q", name)
}

// --- none ---

type noneCodec struct{}

func (noneCodec) ID() byte     { return IDNone }
func (noneCodec) Name() string { return "none" }

func (noneCodec) Compress(data []byte) ([]byte, error) { return data, nil }

func (noneCodec) Decompress(data []byte, uncompressedLen uint64) ([]byte, error) {
	if uint64(len(data)) != uncompressedLen {
		return nil, fmt.Errorf("payload length %d does not match declared %d", len(data), uncompressedLen)
	}
	return data, nil
}

// --- gzip ---

type gzipCodec struct{}

func (gzipCodec) ID() byte     { return IDGzip }
func (gzipCodec) Name() string { return "gzip" }

func (gzipCodec) Compress(data []byte) ([]byte, error) {
	var buf bytes.Buffer
	w, err := gzip.NewWriterLevel(&buf, gzip.BestCompression)
	if err != nil {
		return nil, err
	}
	if _, err := w.Write(data); err != nil {
		return nil, err
	}
	if err := w.Close(); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func (gzipCodec) Decompress(data []byte, uncompressedLen uint64) ([]byte, error) {
	r, err := gzip.NewReader(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("gzip: %w", err)
	}
	defer r.Close()
	return readAll(r, uncompressedLen)
}

// --- brotli ---

type brotliCodec struct{}

func (brotliCodec) ID() byte     { return IDBrotli }
func (brotliCodec) Name() string { return "brotli" }

func (brotliCodec) Compress(data []byte) ([]byte, error) {
	var buf bytes.Buffer
	w := brotli.NewWriterLevel(&buf, brotli.BestCompression)
	if _, err := w.Write(data); err != nil {
		return nil, err
	}
	if err := w.Close(); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func (brotliCodec) Decompress(data []byte, uncompressedLen uint64) ([]byte, error) {
	return readAll(brotli.NewReader(bytes.NewReader(data)), uncompressedLen)
}

// readAll decodes at most uncompressedLen+1 bytes so an artifact whose
// payload inflates past its declared size is rejected instead of
// ballooning in memory.
func readAll(r io.Reader, uncompressedLen uint64) ([]byte, error) {
	out, err := io.ReadAll(io.LimitReader(r, int64(uncompressedLen)+1))
	if err != nil {
		return nil, err
	}
	if uint64(len(out)) != uncompressedLen {
		return nil, fmt.Errorf("decoded length %d does not match declared %d", len(out), uncompressedLen)
	}
	return out, nil
}
