package rwio

import (
	"encoding/binary"
	"errors"
	"io"
	"math"
)

// Buffer is a fixed byte source with a read position. Reads never go past the
// end of the underlying slice; a read that would returns ErrTruncated and leaves
// the position unchanged.
type Buffer struct {
	data []byte
	pos  int
}

// NewBuffer wraps data for sequential reading.
func NewBuffer(data []byte) *Buffer {
	return &Buffer{data: data}
}

// Remaining returns the number of unread bytes.
func (b *Buffer) Remaining() int {
	return len(b.data) - b.pos
}

// Position returns the number of bytes consumed so far.
func (b *Buffer) Position() int {
	return b.pos
}

// Rewind moves the read position back to pos, a value returned by Position.
func (b *Buffer) Rewind(pos int) {
	if pos >= 0 && pos <= b.pos {
		b.pos = pos
	}
}

// Next returns the next n bytes and advances past them. The returned slice
// aliases the buffer.
func (b *Buffer) Next(n int) ([]byte, error) {
	if n < 0 {
		return nil, ErrNegativeLength
	}
	if b.Remaining() < n {
		return nil, ErrTruncated
	}
	out := b.data[b.pos : b.pos+n]
	b.pos += n
	return out, nil
}

// Read implements io.Reader so a Buffer can feed stream decoders.
func (b *Buffer) Read(p []byte) (int, error) {
	if len(p) == 0 {
		return 0, nil
	}
	if b.Remaining() == 0 {
		return 0, io.EOF
	}
	n := copy(p, b.data[b.pos:])
	b.pos += n
	return n, nil
}

// ReadBool reads a single-byte bool.
func (b *Buffer) ReadBool() (bool, error) {
	p, err := b.Next(BoolSize)
	if err != nil {
		return false, err
	}
	return p[0] == 1, nil
}

// ReadInt32 reads a big-endian int32.
func (b *Buffer) ReadInt32() (int32, error) {
	p, err := b.Next(Int32Size)
	if err != nil {
		return 0, err
	}
	return int32(binary.BigEndian.Uint32(p)), nil
}

// ReadInt64 reads a big-endian int64.
func (b *Buffer) ReadInt64() (int64, error) {
	p, err := b.Next(Int64Size)
	if err != nil {
		return 0, err
	}
	return int64(binary.BigEndian.Uint64(p)), nil
}

// ReadFloat32 reads a big-endian float32.
func (b *Buffer) ReadFloat32() (float32, error) {
	p, err := b.Next(Float32Size)
	if err != nil {
		return 0, err
	}
	return math.Float32frombits(binary.BigEndian.Uint32(p)), nil
}

// ReadFloat64 reads a big-endian float64.
func (b *Buffer) ReadFloat64() (float64, error) {
	p, err := b.Next(Float64Size)
	if err != nil {
		return 0, err
	}
	return math.Float64frombits(binary.BigEndian.Uint64(p)), nil
}

// ReadBinary reads a length-prefixed byte slice into a fresh copy.
// On truncation the position is restored to before the length prefix.
func (b *Buffer) ReadBinary() ([]byte, error) {
	start := b.pos
	n, err := b.ReadInt32()
	if err != nil {
		return nil, err
	}
	if n < 0 {
		b.pos = start
		return nil, ErrNegativeLength
	}
	p, err := b.Next(int(n))
	if err != nil {
		b.pos = start
		return nil, err
	}
	return append([]byte(nil), p...), nil
}

// ReadUvarint reads an unsigned varint.
func (b *Buffer) ReadUvarint() (uint64, error) {
	v, n := binary.Uvarint(b.data[b.pos:])
	if n == 0 {
		return 0, ErrTruncated
	}
	if n < 0 {
		return 0, errors.New("rwio: varint overflows uint64")
	}
	b.pos += n
	return v, nil
}
