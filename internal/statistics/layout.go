package statistics

import (
	"unsafe"

	"github.com/arkilian/chunkstats/pkg/types"
)

// In-memory size estimates, one constant per variant, derived from the struct
// layouts at compile time. Variable-length TEXT values are not counted.
const (
	booleanRAMSize = int64(unsafe.Sizeof(BooleanStatistics{}))
	integerRAMSize = int64(unsafe.Sizeof(IntegerStatistics{}))
	longRAMSize    = int64(unsafe.Sizeof(LongStatistics{}))
	floatRAMSize   = int64(unsafe.Sizeof(FloatStatistics{}))
	doubleRAMSize  = int64(unsafe.Sizeof(DoubleStatistics{}))
	binaryRAMSize  = int64(unsafe.Sizeof(BinaryStatistics{}))
	timeRAMSize    = int64(unsafe.Sizeof(TimeStatistics{}))
)

var ramSizes = map[types.DataType]int64{
	types.Boolean: booleanRAMSize,
	types.Int32:   integerRAMSize,
	types.Int64:   longRAMSize,
	types.Float:   floatRAMSize,
	types.Double:  doubleRAMSize,
	types.Text:    binaryRAMSize,
	types.Vector:  timeRAMSize,
}

// RAMSize returns the in-memory estimate for statistics of type dt, or 0 for an
// unknown type.
func RAMSize(dt types.DataType) int64 {
	return ramSizes[dt]
}
