// Package rwio provides the big-endian primitive codecs used by the statistics
// wire format. Every writer returns the exact number of bytes it produced so
// callers can keep offset bookkeeping exact; every reader exists in two forms,
// one over an io.Reader and one over a fixed Buffer, which decode the same bytes.
package rwio

import (
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"math"
)

// Fixed encoded sizes.
const (
	BoolSize    = 1
	Int32Size   = 4
	Int64Size   = 8
	Float32Size = 4
	Float64Size = 8
)

// ErrTruncated is returned when fewer bytes are available than a value needs.
var ErrTruncated = fmt.Errorf("rwio: truncated input: %w", io.ErrUnexpectedEOF)

// ErrNegativeLength is returned when a length prefix decodes to a negative value.
var ErrNegativeLength = errors.New("rwio: negative length prefix")

// WriteBool writes a bool as a single byte (1 or 0).
func WriteBool(w io.Writer, v bool) (int, error) {
	b := [1]byte{0}
	if v {
		b[0] = 1
	}
	return w.Write(b[:])
}

// WriteInt32 writes a big-endian int32.
func WriteInt32(w io.Writer, v int32) (int, error) {
	var b [Int32Size]byte
	binary.BigEndian.PutUint32(b[:], uint32(v))
	return w.Write(b[:])
}

// WriteInt64 writes a big-endian int64.
func WriteInt64(w io.Writer, v int64) (int, error) {
	var b [Int64Size]byte
	binary.BigEndian.PutUint64(b[:], uint64(v))
	return w.Write(b[:])
}

// WriteFloat32 writes the IEEE-754 bits of v big-endian.
func WriteFloat32(w io.Writer, v float32) (int, error) {
	var b [Float32Size]byte
	binary.BigEndian.PutUint32(b[:], math.Float32bits(v))
	return w.Write(b[:])
}

// WriteFloat64 writes the IEEE-754 bits of v big-endian.
func WriteFloat64(w io.Writer, v float64) (int, error) {
	var b [Float64Size]byte
	binary.BigEndian.PutUint64(b[:], math.Float64bits(v))
	return w.Write(b[:])
}

// WriteBinary writes a 4-byte big-endian length followed by the bytes.
func WriteBinary(w io.Writer, v []byte) (int, error) {
	n, err := WriteInt32(w, int32(len(v)))
	if err != nil {
		return n, err
	}
	m, err := w.Write(v)
	return n + m, err
}

// WriteUvarint writes v as an unsigned LEB128 varint.
func WriteUvarint(w io.Writer, v uint64) (int, error) {
	var b [binary.MaxVarintLen64]byte
	n := binary.PutUvarint(b[:], v)
	return w.Write(b[:n])
}

// BinarySize returns the encoded size of a length-prefixed byte slice.
func BinarySize(v []byte) int {
	return Int32Size + len(v)
}

// readFull reads exactly len(buf) bytes, mapping short reads to ErrTruncated.
func readFull(r io.Reader, buf []byte) error {
	if _, err := io.ReadFull(r, buf); err != nil {
		if errors.Is(err, io.EOF) || errors.Is(err, io.ErrUnexpectedEOF) {
			return ErrTruncated
		}
		return err
	}
	return nil
}

// ReadBool reads a single-byte bool. Only the byte value 1 decodes as true.
func ReadBool(r io.Reader) (bool, error) {
	var b [BoolSize]byte
	if err := readFull(r, b[:]); err != nil {
		return false, err
	}
	return b[0] == 1, nil
}

// ReadInt32 reads a big-endian int32.
func ReadInt32(r io.Reader) (int32, error) {
	var b [Int32Size]byte
	if err := readFull(r, b[:]); err != nil {
		return 0, err
	}
	return int32(binary.BigEndian.Uint32(b[:])), nil
}

// ReadInt64 reads a big-endian int64.
func ReadInt64(r io.Reader) (int64, error) {
	var b [Int64Size]byte
	if err := readFull(r, b[:]); err != nil {
		return 0, err
	}
	return int64(binary.BigEndian.Uint64(b[:])), nil
}

// ReadFloat32 reads a big-endian IEEE-754 float32.
func ReadFloat32(r io.Reader) (float32, error) {
	var b [Float32Size]byte
	if err := readFull(r, b[:]); err != nil {
		return 0, err
	}
	return math.Float32frombits(binary.BigEndian.Uint32(b[:])), nil
}

// ReadFloat64 reads a big-endian IEEE-754 float64.
func ReadFloat64(r io.Reader) (float64, error) {
	var b [Float64Size]byte
	if err := readFull(r, b[:]); err != nil {
		return 0, err
	}
	return math.Float64frombits(binary.BigEndian.Uint64(b[:])), nil
}

// ReadBinary reads a length-prefixed byte slice.
func ReadBinary(r io.Reader) ([]byte, error) {
	n, err := ReadInt32(r)
	if err != nil {
		return nil, err
	}
	if n < 0 {
		return nil, ErrNegativeLength
	}
	return ReadFull(r, int(n))
}

// eagerAllocLimit is the largest read allocated up front. Longer reads grow
// with the data actually received, so a corrupt length prefix cannot force a
// huge allocation.
const eagerAllocLimit = 64 * 1024

// ReadFull reads exactly n bytes from r.
func ReadFull(r io.Reader, n int) ([]byte, error) {
	if n < 0 {
		return nil, ErrNegativeLength
	}
	if n <= eagerAllocLimit {
		buf := make([]byte, n)
		if err := readFull(r, buf); err != nil {
			return nil, err
		}
		return buf, nil
	}

	var out bytes.Buffer
	out.Grow(eagerAllocLimit)
	copied, err := io.CopyN(&out, r, int64(n))
	if copied < int64(n) {
		if err == nil || errors.Is(err, io.EOF) || errors.Is(err, io.ErrUnexpectedEOF) {
			return nil, ErrTruncated
		}
		return nil, err
	}
	return out.Bytes(), nil
}

// ReadUvarint reads an unsigned varint one byte at a time so that no bytes past
// the varint are consumed from r.
func ReadUvarint(r io.Reader) (uint64, error) {
	var x uint64
	var s uint
	var b [1]byte
	for i := 0; i < binary.MaxVarintLen64; i++ {
		if err := readFull(r, b[:]); err != nil {
			return 0, err
		}
		if b[0] < 0x80 {
			if i == binary.MaxVarintLen64-1 && b[0] > 1 {
				return 0, errors.New("rwio: varint overflows uint64")
			}
			return x | uint64(b[0])<<s, nil
		}
		x |= uint64(b[0]&0x7f) << s
		s += 7
	}
	return 0, errors.New("rwio: varint overflows uint64")
}
