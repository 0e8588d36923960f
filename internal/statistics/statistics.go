// Package statistics implements the per-column summaries stored with every page,
// chunk and series aggregate: time range, count, first/last value, min/max with
// the timestamps they occurred at, and a running sum.
//
// Each value type has its own variant with a fixed payload layout and a fixed set
// of supported accessors. Calling an accessor a variant does not support fails
// with a *CapabilityError; it never returns a zero value.
//
// Statistics are not safe for concurrent mutation. A single writer owns an
// instance while it accumulates values; once serialized it must not be mutated
// and may be shared freely.
package statistics

import (
	"fmt"
	"io"
	"math"

	"github.com/arkilian/chunkstats/internal/rwio"
	"github.com/arkilian/chunkstats/pkg/types"
)

// Statistics is the contract shared by all type variants.
type Statistics interface {
	// Type returns the column type this instance summarizes.
	Type() types.DataType

	// IsEmpty reports whether no value has been recorded or merged yet.
	IsEmpty() bool

	// StartTime and EndTime bound the inclusive time range covered.
	// On an empty instance they hold math.MaxInt64 and math.MinInt64.
	StartTime() int64
	EndTime() int64

	// Count is the number of values summarized.
	Count() int64

	FirstValue() (interface{}, error)
	LastValue() (interface{}, error)
	MinValue() (interface{}, error)
	MaxValue() (interface{}, error)
	BottomTimestamp() (int64, error)
	TopTimestamp() (int64, error)
	SumLong() (int64, error)
	SumDouble() (float64, error)

	// UpdateValue records v at time t. v must have the Go type matching Type().
	UpdateValue(t int64, v interface{}) error

	// Merge folds other into the receiver. See merge for the tie-break rules.
	Merge(other Statistics) error

	// SerializeStats writes the type payload only and returns the exact byte count.
	SerializeStats(w io.Writer) (int, error)

	// Deserialize and DeserializeBuffer read a payload written by SerializeStats.
	// On a short source the receiver is left unchanged.
	Deserialize(r io.Reader) error
	DeserializeBuffer(buf *rwio.Buffer) error

	// StatsSize is the payload size SerializeStats will produce.
	StatsSize() int

	// RAMSize is the fixed in-memory estimate used for flush accounting.
	RAMSize() int64

	String() string

	base() *header
	mergeValues(other Statistics, wasEmpty bool)
}

// header holds the type-independent state of every variant.
type header struct {
	dataType  types.DataType
	startTime int64
	endTime   int64
	count     int64
	empty     bool
}

func newHeader(dt types.DataType) header {
	return header{
		dataType:  dt,
		startTime: math.MaxInt64,
		endTime:   math.MinInt64,
		empty:     true,
	}
}

func (h *header) base() *header { return h }

func (h *header) Type() types.DataType { return h.dataType }
func (h *header) IsEmpty() bool        { return h.empty }
func (h *header) StartTime() int64     { return h.startTime }
func (h *header) EndTime() int64       { return h.endTime }
func (h *header) Count() int64         { return h.count }

// observe widens the time range to include t and counts one value.
func (h *header) observe(t int64) {
	if t < h.startTime {
		h.startTime = t
	}
	if t > h.endTime {
		h.endTime = t
	}
	h.count++
}

func (h *header) widen(start, end int64) {
	if start < h.startTime {
		h.startTime = start
	}
	if end > h.endTime {
		h.endTime = end
	}
}

// unsupported builds the capability error for this variant.
func (h *header) unsupported(op Operation) error {
	return &CapabilityError{Type: h.dataType, Operation: op}
}

// checkReadable guards value accessors on empty instances.
func (h *header) checkReadable() error {
	if h.empty {
		return ErrEmptyStatistics
	}
	return nil
}

func (h *header) String() string {
	if h.empty {
		return fmt.Sprintf("%s{empty}", h.dataType)
	}
	return fmt.Sprintf("%s{start=%d, end=%d, count=%d", h.dataType, h.startTime, h.endTime, h.count)
}

// merge implements Merge for every variant.
//
// The time range is widened and the count added first. An empty receiver then
// adopts other's values wholesale. Otherwise other's first value is taken when
// other.StartTime() <= the merged start, and its last value when
// other.EndTime() >= the merged end, so on equal bounds the operand merged later
// wins. Min and max compare by value regardless of time order and sums add.
func merge(dst, src Statistics) error {
	if src == nil {
		return nil
	}
	if dst.Type() != src.Type() {
		return &TypeMismatchError{Type: dst.Type(), Got: src.Type().String()}
	}
	if src.IsEmpty() {
		return nil
	}

	h, o := dst.base(), src.base()
	wasEmpty := h.empty
	h.widen(o.startTime, o.endTime)
	h.count += o.count
	dst.mergeValues(src, wasEmpty)
	h.empty = false
	return nil
}

// checkBatch validates UpdateBatch arguments.
func checkBatch(times, values int, batchSize int) error {
	if batchSize < 0 || batchSize > times || batchSize > values {
		return fmt.Errorf("statistics: batch size %d exceeds %d timestamps / %d values", batchSize, times, values)
	}
	return nil
}
