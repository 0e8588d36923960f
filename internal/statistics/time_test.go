package statistics

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/arkilian/chunkstats/pkg/types"
)

func TestTimeStatistics(t *testing.T) {
	s := NewTimeStatistics()
	require.NoError(t, s.UpdateBatch([]int64{40, 10, 30}, 3))

	assert.Equal(t, types.Vector, s.Type())
	assert.Equal(t, int64(10), s.StartTime())
	assert.Equal(t, int64(40), s.EndTime())
	assert.Equal(t, int64(3), s.Count())
	assert.Equal(t, 0, s.StatsSize())

	var buf bytes.Buffer
	n, err := s.SerializeStats(&buf)
	require.NoError(t, err)
	assert.Equal(t, 0, n)

	for _, err := range []error{
		func() error { _, err := s.FirstValue(); return err }(),
		func() error { _, err := s.LastValue(); return err }(),
		func() error { _, err := s.MinValue(); return err }(),
		func() error { _, err := s.SumLong(); return err }(),
	} {
		assert.True(t, IsCapabilityError(err))
	}
}

func TestTimeStatistics_EnvelopeRoundTrip(t *testing.T) {
	s := NewTimeStatistics()
	s.Update(5)
	s.Update(9)

	var buf bytes.Buffer
	n, err := Serialize(&buf, s)
	require.NoError(t, err)
	assert.Equal(t, 17, n)

	got, err := Read(bytes.NewReader(buf.Bytes()), types.Vector)
	require.NoError(t, err)
	assert.False(t, got.IsEmpty())
	assert.Equal(t, int64(5), got.StartTime())
	assert.Equal(t, int64(9), got.EndTime())
	assert.Equal(t, int64(2), got.Count())
}
