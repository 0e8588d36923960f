package statistics

import (
	"fmt"
	"io"

	"github.com/arkilian/chunkstats/internal/rwio"
	"github.com/arkilian/chunkstats/pkg/types"
)

// booleanStatsSize is first(1) + last(1) + sum(8).
const booleanStatsSize = 2*rwio.BoolSize + rwio.Int64Size

// BooleanStatistics summarizes a BOOLEAN column. Booleans have no ordering, so
// min, max and their timestamps are unsupported; the sum counts true values.
type BooleanStatistics struct {
	header
	first bool
	last  bool
	sum   int64
}

// NewBooleanStatistics returns empty BOOLEAN statistics.
func NewBooleanStatistics() *BooleanStatistics {
	return &BooleanStatistics{header: newHeader(types.Boolean)}
}

// Update records v at time t.
func (s *BooleanStatistics) Update(t int64, v bool) {
	var inc int64
	if v {
		inc = 1
	}
	if s.empty {
		s.first, s.last, s.sum = v, v, inc
		s.empty = false
	} else {
		s.last = v
		s.sum += inc
	}
	s.observe(t)
}

// UpdateBatch records the first batchSize values at their timestamps, in order.
func (s *BooleanStatistics) UpdateBatch(times []int64, values []bool, batchSize int) error {
	if err := checkBatch(len(times), len(values), batchSize); err != nil {
		return err
	}
	for i := 0; i < batchSize; i++ {
		s.Update(times[i], values[i])
	}
	return nil
}

func (s *BooleanStatistics) UpdateValue(t int64, v interface{}) error {
	b, ok := v.(bool)
	if !ok {
		return valueMismatch(s.dataType, v)
	}
	s.Update(t, b)
	return nil
}

func (s *BooleanStatistics) FirstValue() (interface{}, error) {
	if err := s.checkReadable(); err != nil {
		return nil, err
	}
	return s.first, nil
}

func (s *BooleanStatistics) LastValue() (interface{}, error) {
	if err := s.checkReadable(); err != nil {
		return nil, err
	}
	return s.last, nil
}

func (s *BooleanStatistics) MinValue() (interface{}, error) {
	return nil, s.unsupported(OpMin)
}
func (s *BooleanStatistics) MaxValue() (interface{}, error) {
	return nil, s.unsupported(OpMax)
}
func (s *BooleanStatistics) BottomTimestamp() (int64, error) {
	return 0, s.unsupported(OpBottomTimestamp)
}
func (s *BooleanStatistics) TopTimestamp() (int64, error) {
	return 0, s.unsupported(OpTopTimestamp)
}
func (s *BooleanStatistics) SumDouble() (float64, error) {
	return 0, s.unsupported(OpDoubleSum)
}

// SumLong returns the number of true values.
func (s *BooleanStatistics) SumLong() (int64, error) {
	if err := s.checkReadable(); err != nil {
		return 0, err
	}
	return s.sum, nil
}

func (s *BooleanStatistics) Merge(other Statistics) error {
	return merge(s, other)
}

func (s *BooleanStatistics) mergeValues(other Statistics, wasEmpty bool) {
	o := other.(*BooleanStatistics)
	if wasEmpty {
		s.first, s.last, s.sum = o.first, o.last, o.sum
		return
	}
	if o.startTime <= s.startTime {
		s.first = o.first
	}
	if o.endTime >= s.endTime {
		s.last = o.last
	}
	s.sum += o.sum
}

func (s *BooleanStatistics) SerializeStats(w io.Writer) (int, error) {
	n, err := rwio.WriteBool(w, s.first)
	if err != nil {
		return n, err
	}
	m, err := rwio.WriteBool(w, s.last)
	n += m
	if err != nil {
		return n, err
	}
	m, err = rwio.WriteInt64(w, s.sum)
	return n + m, err
}

func (s *BooleanStatistics) Deserialize(r io.Reader) error {
	p, err := rwio.ReadFull(r, booleanStatsSize)
	if err != nil {
		return readError(s.dataType, err)
	}
	return s.DeserializeBuffer(rwio.NewBuffer(p))
}

func (s *BooleanStatistics) DeserializeBuffer(buf *rwio.Buffer) error {
	p, err := buf.Next(booleanStatsSize)
	if err != nil {
		return readError(s.dataType, err)
	}
	b := rwio.NewBuffer(p)
	first, _ := b.ReadBool()
	last, _ := b.ReadBool()
	sum, _ := b.ReadInt64()

	s.first, s.last, s.sum = first, last, sum
	s.empty = false
	return nil
}

func (s *BooleanStatistics) StatsSize() int { return booleanStatsSize }
func (s *BooleanStatistics) RAMSize() int64 { return booleanRAMSize }

func (s *BooleanStatistics) String() string {
	if s.empty {
		return s.header.String()
	}
	return fmt.Sprintf("%s, first=%t, last=%t, sum=%d}", s.header.String(), s.first, s.last, s.sum)
}
