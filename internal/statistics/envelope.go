package statistics

import (
	"io"
	"math"

	"github.com/arkilian/chunkstats/internal/rwio"
	"github.com/arkilian/chunkstats/pkg/types"
)

// HeaderSize is the fixed part of the envelope: start and end time.
const HeaderSize = 2 * rwio.Int64Size

// Serialize writes the full envelope: startTime, endTime (big-endian int64),
// count (unsigned varint), then the type payload. The type tag is not written;
// the enclosing structure owns it. Returns the exact byte count.
func Serialize(w io.Writer, s Statistics) (int, error) {
	h := s.base()
	total := 0

	n, err := rwio.WriteInt64(w, h.startTime)
	total += n
	if err != nil {
		return total, err
	}
	n, err = rwio.WriteInt64(w, h.endTime)
	total += n
	if err != nil {
		return total, err
	}
	n, err = rwio.WriteUvarint(w, uint64(h.count))
	total += n
	if err != nil {
		return total, err
	}
	n, err = s.SerializeStats(w)
	total += n
	return total, err
}

// Read decodes an envelope written by Serialize for a column of type dt.
// A zero count decodes as empty statistics.
func Read(r io.Reader, dt types.DataType) (Statistics, error) {
	start, err := rwio.ReadInt64(r)
	if err != nil {
		return nil, readError(dt, err)
	}
	end, err := rwio.ReadInt64(r)
	if err != nil {
		return nil, readError(dt, err)
	}
	count, err := rwio.ReadUvarint(r)
	if err != nil {
		return nil, readError(dt, err)
	}
	s, err := Deserialize(r, dt)
	if err != nil {
		return nil, err
	}
	restoreHeader(s, start, end, count)
	return s, nil
}

// ReadBuffer is Read over a fixed buffer.
func ReadBuffer(buf *rwio.Buffer, dt types.DataType) (Statistics, error) {
	start, err := buf.ReadInt64()
	if err != nil {
		return nil, readError(dt, err)
	}
	end, err := buf.ReadInt64()
	if err != nil {
		return nil, readError(dt, err)
	}
	count, err := buf.ReadUvarint()
	if err != nil {
		return nil, readError(dt, err)
	}
	s, err := DeserializeBuffer(buf, dt)
	if err != nil {
		return nil, err
	}
	restoreHeader(s, start, end, count)
	return s, nil
}

func restoreHeader(s Statistics, start, end int64, count uint64) {
	h := s.base()
	if count == 0 || count > math.MaxInt64 {
		*h = newHeader(h.dataType)
		return
	}
	h.startTime, h.endTime, h.count = start, end, int64(count)
	h.empty = false
}

// SerializedSize returns the number of bytes Serialize will write for s.
func SerializedSize(s Statistics) int {
	return HeaderSize + uvarintSize(uint64(s.Count())) + s.StatsSize()
}

func uvarintSize(v uint64) int {
	n := 1
	for v >= 0x80 {
		v >>= 7
		n++
	}
	return n
}
