// SPDX-License-Identifier: MPL-2.0

package pnt

import (
	"bytes"
	"fmt"
	"time"

	"github.com/tuskcfg/tusk/internal/compress"
)

// Info summarizes an artifact header without decoding its payload.
type Info struct {
	Version         uint32
	Optimized       bool
	Compressed      bool
	Checksummed     bool
	HasMetadata     bool
	HasDebug        bool
	Codec           string
	UncompressedLen uint64
	StoredLen       uint64
	Metadata        *Metadata
}

// Stat reads the artifact header and trailing metadata block. The
// payload is neither verified nor decoded, so Stat works on artifacts
// whose body is corrupt.
func Stat(data []byte) (*Info, error) {
	r := &reader{data: data}
	magic, err := r.take(len(Magic), "magic")
	if err != nil {
		return nil, err
	}
	if !bytes.Equal(magic, []byte(Magic)) {
		return nil, &CorruptArtifactError{Reason: fmt.Sprintf("bad magic %q", magic)}
	}

	info := &Info{}
	if info.Version, err = r.u32("format version"); err != nil {
		return nil, err
	}
	if info.Version > FormatVersion {
		return nil, &UnsupportedVersionError{Version: info.Version, Max: FormatVersion}
	}
	flags, err := r.u8("flags")
	if err != nil {
		return nil, err
	}
	info.Optimized = flags&FlagOptimized != 0
	info.Compressed = flags&FlagCompressed != 0
	info.Checksummed = flags&FlagChecksummed != 0
	info.HasMetadata = flags&FlagMetadata != 0
	info.HasDebug = flags&FlagDebug != 0

	codecID, err := r.u8("compression codec")
	if err != nil {
		return nil, err
	}
	if codec, err := compress.ByID(codecID); err == nil {
		info.Codec = codec.Name()
	} else {
		info.Codec = fmt.Sprintf("unknown(%d)", codecID)
	}

	if info.UncompressedLen, err = r.u64("uncompressed length"); err != nil {
		return nil, err
	}
	if info.Checksummed {
		if _, err = r.u64("checksum"); err != nil {
			return nil, err
		}
	}
	if info.StoredLen, err = r.u64("stored length"); err != nil {
		return nil, err
	}
	if _, err = r.take(int(info.StoredLen), "artifact body"); err != nil {
		return nil, err
	}

	if info.HasMetadata {
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
		info.Metadata = meta
	}

	return info, nil
}
