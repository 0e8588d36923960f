package statistics

import (
	"fmt"
	"io"

	"golang.org/x/exp/constraints"

	"github.com/arkilian/chunkstats/internal/rwio"
	"github.com/arkilian/chunkstats/pkg/types"
)

// number is the set of value types with ordering and arithmetic.
type number interface {
	constraints.Signed | constraints.Float
}

// accumulator is the wide type a sum is kept in.
type accumulator interface {
	int64 | float64
}

// minMaxInfo pairs an extreme value with the timestamp it was observed at.
type minMaxInfo[T number] struct {
	value     T
	timestamp int64
}

// NumericStatistics is the shared implementation of the ordered numeric variants.
// T is the column value type and S the sum accumulator. Payload layout:
// min, bottom timestamp, max, top timestamp, first, last, sum.
type NumericStatistics[T number, S accumulator] struct {
	header
	min   minMaxInfo[T]
	max   minMaxInfo[T]
	first T
	last  T
	sum   S
}

// The numeric variants.
type (
	IntegerStatistics = NumericStatistics[int32, int64]
	LongStatistics    = NumericStatistics[int64, int64]
	FloatStatistics   = NumericStatistics[float32, float64]
	DoubleStatistics  = NumericStatistics[float64, float64]
)

// NewIntegerStatistics returns empty INT32 statistics.
func NewIntegerStatistics() *IntegerStatistics {
	return &IntegerStatistics{header: newHeader(types.Int32)}
}

// NewLongStatistics returns empty INT64 statistics.
func NewLongStatistics() *LongStatistics {
	return &LongStatistics{header: newHeader(types.Int64)}
}

// NewFloatStatistics returns empty FLOAT statistics.
func NewFloatStatistics() *FloatStatistics {
	return &FloatStatistics{header: newHeader(types.Float)}
}

// NewDoubleStatistics returns empty DOUBLE statistics.
func NewDoubleStatistics() *DoubleStatistics {
	return &DoubleStatistics{header: newHeader(types.Double)}
}

// Update records v at time t.
func (s *NumericStatistics[T, S]) Update(t int64, v T) {
	if s.empty {
		s.min = minMaxInfo[T]{value: v, timestamp: t}
		s.max = minMaxInfo[T]{value: v, timestamp: t}
		s.first, s.last = v, v
		s.sum = S(v)
		s.empty = false
	} else {
		s.updateMin(v, t)
		s.updateMax(v, t)
		s.last = v
		s.sum += S(v)
	}
	s.observe(t)
}

// UpdateBatch records the first batchSize values at their timestamps, in order.
func (s *NumericStatistics[T, S]) UpdateBatch(times []int64, values []T, batchSize int) error {
	if err := checkBatch(len(times), len(values), batchSize); err != nil {
		return err
	}
	for i := 0; i < batchSize; i++ {
		s.Update(times[i], values[i])
	}
	return nil
}

func (s *NumericStatistics[T, S]) UpdateValue(t int64, v interface{}) error {
	x, ok := v.(T)
	if !ok {
		return valueMismatch(s.dataType, v)
	}
	s.Update(t, x)
	return nil
}

// updateMin and updateMax keep the earlier timestamp on equal values so that
// merging is commutative for the timestamps too.
func (s *NumericStatistics[T, S]) updateMin(v T, t int64) {
	if lessThan(v, s.min.value) || (v == s.min.value && t < s.min.timestamp) {
		s.min = minMaxInfo[T]{value: v, timestamp: t}
	}
}

func (s *NumericStatistics[T, S]) updateMax(v T, t int64) {
	if greaterThan(v, s.max.value) || (v == s.max.value && t < s.max.timestamp) {
		s.max = minMaxInfo[T]{value: v, timestamp: t}
	}
}

// lessThan and greaterThan treat NaN as losing every comparison against a
// number, so NaN only survives as min or max when nothing else was seen.
func lessThan[T number](a, b T) bool {
	switch {
	case isNaN(a):
		return false
	case isNaN(b):
		return true
	default:
		return a < b
	}
}

func greaterThan[T number](a, b T) bool {
	switch {
	case isNaN(a):
		return false
	case isNaN(b):
		return true
	default:
		return a > b
	}
}

func isNaN[T number](v T) bool {
	return v != v
}

func (s *NumericStatistics[T, S]) FirstValue() (interface{}, error) {
	if err := s.checkReadable(); err != nil {
		return nil, err
	}
	return s.first, nil
}

func (s *NumericStatistics[T, S]) LastValue() (interface{}, error) {
	if err := s.checkReadable(); err != nil {
		return nil, err
	}
	return s.last, nil
}

func (s *NumericStatistics[T, S]) MinValue() (interface{}, error) {
	if err := s.checkReadable(); err != nil {
		return nil, err
	}
	return s.min.value, nil
}

func (s *NumericStatistics[T, S]) MaxValue() (interface{}, error) {
	if err := s.checkReadable(); err != nil {
		return nil, err
	}
	return s.max.value, nil
}

func (s *NumericStatistics[T, S]) BottomTimestamp() (int64, error) {
	if err := s.checkReadable(); err != nil {
		return 0, err
	}
	return s.min.timestamp, nil
}

func (s *NumericStatistics[T, S]) TopTimestamp() (int64, error) {
	if err := s.checkReadable(); err != nil {
		return 0, err
	}
	return s.max.timestamp, nil
}

// SumLong is supported by the integer variants only.
func (s *NumericStatistics[T, S]) SumLong() (int64, error) {
	sum, ok := any(s.sum).(int64)
	if !ok {
		return 0, s.unsupported(OpLongSum)
	}
	if err := s.checkReadable(); err != nil {
		return 0, err
	}
	return sum, nil
}

// SumDouble is supported by the floating point variants only.
func (s *NumericStatistics[T, S]) SumDouble() (float64, error) {
	sum, ok := any(s.sum).(float64)
	if !ok {
		return 0, s.unsupported(OpDoubleSum)
	}
	if err := s.checkReadable(); err != nil {
		return 0, err
	}
	return sum, nil
}

func (s *NumericStatistics[T, S]) Merge(other Statistics) error {
	return merge(s, other)
}

func (s *NumericStatistics[T, S]) mergeValues(other Statistics, wasEmpty bool) {
	o := other.(*NumericStatistics[T, S])
	if wasEmpty {
		s.min, s.max = o.min, o.max
		s.first, s.last = o.first, o.last
		s.sum = o.sum
		return
	}
	s.updateMin(o.min.value, o.min.timestamp)
	s.updateMax(o.max.value, o.max.timestamp)
	if o.startTime <= s.startTime {
		s.first = o.first
	}
	if o.endTime >= s.endTime {
		s.last = o.last
	}
	s.sum += o.sum
}

func (s *NumericStatistics[T, S]) SerializeStats(w io.Writer) (int, error) {
	var total int
	steps := []func() (int, error){
		func() (int, error) { return writeNumber(w, s.min.value) },
		func() (int, error) { return rwio.WriteInt64(w, s.min.timestamp) },
		func() (int, error) { return writeNumber(w, s.max.value) },
		func() (int, error) { return rwio.WriteInt64(w, s.max.timestamp) },
		func() (int, error) { return writeNumber(w, s.first) },
		func() (int, error) { return writeNumber(w, s.last) },
		func() (int, error) { return writeNumber(w, s.sum) },
	}
	for _, step := range steps {
		n, err := step()
		total += n
		if err != nil {
			return total, err
		}
	}
	return total, nil
}

func (s *NumericStatistics[T, S]) Deserialize(r io.Reader) error {
	p, err := rwio.ReadFull(r, s.StatsSize())
	if err != nil {
		return readError(s.dataType, err)
	}
	return s.DeserializeBuffer(rwio.NewBuffer(p))
}

func (s *NumericStatistics[T, S]) DeserializeBuffer(buf *rwio.Buffer) error {
	p, err := buf.Next(s.StatsSize())
	if err != nil {
		return readError(s.dataType, err)
	}
	b := rwio.NewBuffer(p)

	// The slice is exactly StatsSize bytes, so none of these reads can fail.
	var lo, hi minMaxInfo[T]
	lo.value, _ = readNumber[T](b)
	lo.timestamp, _ = b.ReadInt64()
	hi.value, _ = readNumber[T](b)
	hi.timestamp, _ = b.ReadInt64()
	first, _ := readNumber[T](b)
	last, _ := readNumber[T](b)
	sum, _ := readNumber[S](b)

	s.min, s.max = lo, hi
	s.first, s.last = first, last
	s.sum = sum
	s.empty = false
	return nil
}

// StatsSize is 4 values of T, 2 timestamps and one S.
func (s *NumericStatistics[T, S]) StatsSize() int {
	return 4*numberSize[T]() + 2*rwio.Int64Size + numberSize[S]()
}

func (s *NumericStatistics[T, S]) RAMSize() int64 {
	return ramSizes[s.dataType]
}

func (s *NumericStatistics[T, S]) String() string {
	if s.empty {
		return s.header.String()
	}
	return fmt.Sprintf("%s, min=%v@%d, max=%v@%d, first=%v, last=%v, sum=%v}",
		s.header.String(), s.min.value, s.min.timestamp, s.max.value, s.max.timestamp,
		s.first, s.last, s.sum)
}

func numberSize[T number]() int {
	var zero T
	switch any(zero).(type) {
	case int32:
		return rwio.Int32Size
	case float32:
		return rwio.Float32Size
	case int64:
		return rwio.Int64Size
	case float64:
		return rwio.Float64Size
	default:
		panic(fmt.Sprintf("statistics: no wire encoding for %T", zero))
	}
}

func writeNumber[T number](w io.Writer, v T) (int, error) {
	switch x := any(v).(type) {
	case int32:
		return rwio.WriteInt32(w, x)
	case int64:
		return rwio.WriteInt64(w, x)
	case float32:
		return rwio.WriteFloat32(w, x)
	case float64:
		return rwio.WriteFloat64(w, x)
	default:
		return 0, fmt.Errorf("statistics: no wire encoding for %T", v)
	}
}

func readNumber[T number](b *rwio.Buffer) (T, error) {
	var zero T
	switch any(zero).(type) {
	case int32:
		v, err := b.ReadInt32()
		return T(v), err
	case int64:
		v, err := b.ReadInt64()
		return T(v), err
	case float32:
		v, err := b.ReadFloat32()
		return T(v), err
	case float64:
		v, err := b.ReadFloat64()
		return T(v), err
	default:
		return zero, fmt.Errorf("statistics: no wire encoding for %T", zero)
	}
}
