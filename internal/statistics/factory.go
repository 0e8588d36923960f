package statistics

import (
	"io"

	"github.com/arkilian/chunkstats/internal/rwio"
	"github.com/arkilian/chunkstats/pkg/types"
)

// constructors maps every supported type tag to its empty variant.
var constructors = map[types.DataType]func() Statistics{
	types.Boolean: func() Statistics { return NewBooleanStatistics() },
	types.Int32:   func() Statistics { return NewIntegerStatistics() },
	types.Int64:   func() Statistics { return NewLongStatistics() },
	types.Float:   func() Statistics { return NewFloatStatistics() },
	types.Double:  func() Statistics { return NewDoubleStatistics() },
	types.Text:    func() Statistics { return NewBinaryStatistics() },
	types.Vector:  func() Statistics { return NewTimeStatistics() },
}

// New returns empty statistics for dt. An unknown tag fails with an
// unsupported-type error.
func New(dt types.DataType) (Statistics, error) {
	ctor, ok := constructors[dt]
	if !ok {
		return nil, unsupportedType(dt)
	}
	return ctor(), nil
}

// Deserialize constructs the variant for dt and reads its payload from r.
// The type always comes from the caller; it is never inferred from the bytes.
func Deserialize(r io.Reader, dt types.DataType) (Statistics, error) {
	s, err := New(dt)
	if err != nil {
		return nil, err
	}
	if err := s.Deserialize(r); err != nil {
		return nil, err
	}
	return s, nil
}

// DeserializeBuffer is Deserialize over a fixed buffer.
func DeserializeBuffer(buf *rwio.Buffer, dt types.DataType) (Statistics, error) {
	s, err := New(dt)
	if err != nil {
		return nil, err
	}
	if err := s.DeserializeBuffer(buf); err != nil {
		return nil, err
	}
	return s, nil
}
