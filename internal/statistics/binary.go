package statistics

import (
	"fmt"
	"io"

	"github.com/arkilian/chunkstats/internal/rwio"
	"github.com/arkilian/chunkstats/pkg/types"
)

// BinaryStatistics summarizes a TEXT column. Only first and last are tracked:
// min, max and sums are unsupported. Its payload is variable length,
// first and last each written with a 4-byte length prefix.
type BinaryStatistics struct {
	header
	first []byte
	last  []byte
}

// NewBinaryStatistics returns empty TEXT statistics.
func NewBinaryStatistics() *BinaryStatistics {
	return &BinaryStatistics{header: newHeader(types.Text)}
}

// Update records v at time t. The bytes are copied.
func (s *BinaryStatistics) Update(t int64, v []byte) {
	if s.empty {
		s.first = clone(v)
		s.empty = false
	}
	s.last = clone(v)
	s.observe(t)
}

// UpdateBatch records the first batchSize values at their timestamps, in order.
func (s *BinaryStatistics) UpdateBatch(times []int64, values [][]byte, batchSize int) error {
	if err := checkBatch(len(times), len(values), batchSize); err != nil {
		return err
	}
	for i := 0; i < batchSize; i++ {
		s.Update(times[i], values[i])
	}
	return nil
}

// UpdateValue accepts []byte or string.
func (s *BinaryStatistics) UpdateValue(t int64, v interface{}) error {
	switch x := v.(type) {
	case []byte:
		s.Update(t, x)
	case string:
		s.Update(t, []byte(x))
	default:
		return valueMismatch(s.dataType, v)
	}
	return nil
}

// FirstValue returns a copy of the first value as []byte.
func (s *BinaryStatistics) FirstValue() (interface{}, error) {
	if err := s.checkReadable(); err != nil {
		return nil, err
	}
	return clone(s.first), nil
}

// LastValue returns a copy of the last value as []byte.
func (s *BinaryStatistics) LastValue() (interface{}, error) {
	if err := s.checkReadable(); err != nil {
		return nil, err
	}
	return clone(s.last), nil
}

func (s *BinaryStatistics) MinValue() (interface{}, error) {
	return nil, s.unsupported(OpMin)
}
func (s *BinaryStatistics) MaxValue() (interface{}, error) {
	return nil, s.unsupported(OpMax)
}
func (s *BinaryStatistics) BottomTimestamp() (int64, error) {
	return 0, s.unsupported(OpBottomTimestamp)
}
func (s *BinaryStatistics) TopTimestamp() (int64, error) {
	return 0, s.unsupported(OpTopTimestamp)
}
func (s *BinaryStatistics) SumLong() (int64, error) {
	return 0, s.unsupported(OpLongSum)
}
func (s *BinaryStatistics) SumDouble() (float64, error) {
	return 0, s.unsupported(OpDoubleSum)
}

func (s *BinaryStatistics) Merge(other Statistics) error {
	return merge(s, other)
}

func (s *BinaryStatistics) mergeValues(other Statistics, wasEmpty bool) {
	o := other.(*BinaryStatistics)
	if wasEmpty {
		s.first, s.last = clone(o.first), clone(o.last)
		return
	}
	if o.startTime <= s.startTime {
		s.first = clone(o.first)
	}
	if o.endTime >= s.endTime {
		s.last = clone(o.last)
	}
}

func (s *BinaryStatistics) SerializeStats(w io.Writer) (int, error) {
	n, err := rwio.WriteBinary(w, s.first)
	if err != nil {
		return n, err
	}
	m, err := rwio.WriteBinary(w, s.last)
	return n + m, err
}

func (s *BinaryStatistics) Deserialize(r io.Reader) error {
	first, err := rwio.ReadBinary(r)
	if err != nil {
		return readError(s.dataType, err)
	}
	last, err := rwio.ReadBinary(r)
	if err != nil {
		return readError(s.dataType, err)
	}
	s.first, s.last = clone(first), clone(last)
	s.empty = false
	return nil
}

// DeserializeBuffer reads first and last. On error buf is left where it was.
func (s *BinaryStatistics) DeserializeBuffer(buf *rwio.Buffer) error {
	start := buf.Position()
	first, err := buf.ReadBinary()
	if err != nil {
		return readError(s.dataType, err)
	}
	last, err := buf.ReadBinary()
	if err != nil {
		buf.Rewind(start)
		return readError(s.dataType, err)
	}
	s.first, s.last = first, last
	s.empty = false
	return nil
}

func (s *BinaryStatistics) StatsSize() int {
	return rwio.BinarySize(s.first) + rwio.BinarySize(s.last)
}

func (s *BinaryStatistics) RAMSize() int64 { return binaryRAMSize }

func (s *BinaryStatistics) String() string {
	if s.empty {
		return s.header.String()
	}
	return fmt.Sprintf("%s, first=%q, last=%q}", s.header.String(), s.first, s.last)
}

// clone copies b, normalizing empty input to nil.
func clone(b []byte) []byte {
	if len(b) == 0 {
		return nil
	}
	return append([]byte(nil), b...)
}
