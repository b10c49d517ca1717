// SPDX-License-Identifier: MPL-2.0

package pnt

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"math"
)

// writer accumulates the little-endian wire form of an artifact.
type writer struct {
	buf bytes.Buffer
}

func (w *writer) bytes() []byte { return w.buf.Bytes() }

func (w *writer) u8(v byte) { w.buf.WriteByte(v) }

func (w *writer) u32(v uint32) {
	var b [4]byte
	binary.LittleEndian.PutUint32(b[:], v)
	w.buf.Write(b[:])
}

func (w *writer) u64(v uint64) {
	var b [8]byte
	binary.LittleEndian.PutUint64(b[:], v)
	w.buf.Write(b[:])
}

func (w *writer) i64(v int64) { w.u64(uint64(v)) }

func (w *writer) f64(v float64) { w.u64(math.Float64bits(v)) }

func (w *writer) str(s string) {
	w.u32(uint32(len(s)))
	w.buf.WriteString(s)
}

func (w *writer) raw(b []byte) { w.buf.Write(b) }

// reader walks the wire form with explicit bounds checks. Every
// truncation surfaces as a CorruptArtifactError naming the field being
// read.
type reader struct {
	data []byte
	off  int
}

func (r *reader) remaining() int { return len(r.data) - r.off }

func (r *reader) take(n int, field string) ([]byte, error) {
	if n < 0 || r.remaining() < n {
		return nil, &CorruptArtifactError{
			Reason: fmt.Sprintf("truncated %s: need %d bytes, have %d", field, n, r.remaining()),
		}
	}
	b := r.data[r.off : r.off+n]
	r.off += n
	return b, nil
}

func (r *reader) u8(field string) (byte, error) {
	b, err := r.take(1, field)
	if err != nil {
		return 0, err
	}
	return b[0], nil
}

func (r *reader) u32(field string) (uint32, error) {
	b, err := r.take(4, field)
	if err != nil {
		return 0, err
	}
	return binary.LittleEndian.Uint32(b), nil
}

func (r *reader) u64(field string) (uint64, error) {
	b, err := r.take(8, field)
	if err != nil {
		return 0, err
	}
	return binary.LittleEndian.Uint64(b), nil
}

func (r *reader) i64(field string) (int64, error) {
	v, err := r.u64(field)
	return int64(v), err
}

func (r *reader) f64(field string) (float64, error) {
	v, err := r.u64(field)
	return math.Float64frombits(v), err
}

func (r *reader) str(field string) (string, error) {
	n, err := r.u32(field + " length")
	if err != nil {
		return "", err
	}
	b, err := r.take(int(n), field)
	if err != nil {
		return "", err
	}
	return string(b), nil
}
