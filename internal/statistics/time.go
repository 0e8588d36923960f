package statistics

import (
	"io"

	"github.com/arkilian/chunkstats/internal/rwio"
	"github.com/arkilian/chunkstats/pkg/types"
)

// TimeStatistics summarizes the time column of an aligned series. It tracks
// only the time range and count and has an empty payload; every value accessor
// is unsupported.
type TimeStatistics struct {
	header
}

// NewTimeStatistics returns empty VECTOR statistics.
func NewTimeStatistics() *TimeStatistics {
	return &TimeStatistics{header: newHeader(types.Vector)}
}

// Update records one timestamp.
func (s *TimeStatistics) Update(t int64) {
	s.empty = false
	s.observe(t)
}

// UpdateBatch records the first batchSize timestamps.
func (s *TimeStatistics) UpdateBatch(times []int64, batchSize int) error {
	if err := checkBatch(len(times), len(times), batchSize); err != nil {
		return err
	}
	for i := 0; i < batchSize; i++ {
		s.Update(times[i])
	}
	return nil
}

// UpdateValue ignores v; a time column carries no values.
func (s *TimeStatistics) UpdateValue(t int64, _ interface{}) error {
	s.Update(t)
	return nil
}

func (s *TimeStatistics) FirstValue() (interface{}, error) { return nil, s.unsupported(OpFirst) }
func (s *TimeStatistics) LastValue() (interface{}, error)  { return nil, s.unsupported(OpLast) }
func (s *TimeStatistics) MinValue() (interface{}, error)   { return nil, s.unsupported(OpMin) }
func (s *TimeStatistics) MaxValue() (interface{}, error)   { return nil, s.unsupported(OpMax) }
func (s *TimeStatistics) BottomTimestamp() (int64, error)  { return 0, s.unsupported(OpBottomTimestamp) }
func (s *TimeStatistics) TopTimestamp() (int64, error)     { return 0, s.unsupported(OpTopTimestamp) }
func (s *TimeStatistics) SumLong() (int64, error)          { return 0, s.unsupported(OpLongSum) }
func (s *TimeStatistics) SumDouble() (float64, error)      { return 0, s.unsupported(OpDoubleSum) }
func (s *TimeStatistics) Merge(other Statistics) error     { return merge(s, other) }

func (s *TimeStatistics) mergeValues(Statistics, bool) {}

// SerializeStats writes nothing: the time range travels in the envelope header.
func (s *TimeStatistics) SerializeStats(io.Writer) (int, error) {
	return 0, nil
}

func (s *TimeStatistics) Deserialize(io.Reader) error {
	s.empty = false
	return nil
}

func (s *TimeStatistics) DeserializeBuffer(*rwio.Buffer) error {
	s.empty = false
	return nil
}

func (s *TimeStatistics) StatsSize() int { return 0 }
func (s *TimeStatistics) RAMSize() int64 { return timeRAMSize }

func (s *TimeStatistics) String() string {
	if s.empty {
		return s.header.String()
	}
	return s.header.String() + "}"
}
