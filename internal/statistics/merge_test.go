package statistics

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/arkilian/chunkstats/pkg/types"
)

func TestMerge_OverlappingRanges(t *testing.T) {
	a := NewLongStatistics()
	a.Update(0, 10)
	a.Update(30, 2)
	a.Update(60, 50)
	a.Update(100, 20)

	b := NewLongStatistics()
	b.Update(50, 5)
	b.Update(80, 1)
	b.Update(120, 80)
	b.Update(150, 7)

	require.NoError(t, a.Merge(b))

	assert.Equal(t, int64(0), a.StartTime())
	assert.Equal(t, int64(150), a.EndTime())
	assert.Equal(t, int64(8), a.Count())

	lo, _ := a.MinValue()
	hi, _ := a.MaxValue()
	bottom, _ := a.BottomTimestamp()
	top, _ := a.TopTimestamp()
	first, _ := a.FirstValue()
	last, _ := a.LastValue()
	sum, _ := a.SumLong()

	assert.Equal(t, int64(1), lo)
	assert.Equal(t, int64(80), bottom)
	assert.Equal(t, int64(80), hi)
	assert.Equal(t, int64(120), top)
	assert.Equal(t, int64(10), first)
	assert.Equal(t, int64(7), last)
	assert.Equal(t, int64(175), sum)
}

func TestMerge_EqualBoundsTakeOther(t *testing.T) {
	a := NewIntegerStatistics()
	a.Update(10, 1)
	a.Update(20, 2)

	b := NewIntegerStatistics()
	b.Update(10, 3)
	b.Update(20, 4)

	require.NoError(t, a.Merge(b))
	first, _ := a.FirstValue()
	last, _ := a.LastValue()
	assert.Equal(t, int32(3), first)
	assert.Equal(t, int32(4), last)
}

func TestMerge_OtherInsideRangeKeepsFirstLast(t *testing.T) {
	a := NewBinaryStatistics()
	a.Update(0, []byte("a0"))
	a.Update(100, []byte("a100"))

	b := NewBinaryStatistics()
	b.Update(40, []byte("b40"))
	b.Update(60, []byte("b60"))

	require.NoError(t, a.Merge(b))
	first, _ := a.FirstValue()
	last, _ := a.LastValue()
	assert.Equal(t, []byte("a0"), first)
	assert.Equal(t, []byte("a100"), last)
	assert.Equal(t, int64(4), a.Count())
}

func TestMerge_EmptyReceiverAdopts(t *testing.T) {
	src := NewBooleanStatistics()
	src.Update(5, false)
	src.Update(6, true)

	dst := NewBooleanStatistics()
	require.NoError(t, dst.Merge(src))

	assert.False(t, dst.IsEmpty())
	assert.Equal(t, src.StartTime(), dst.StartTime())
	assert.Equal(t, src.EndTime(), dst.EndTime())
	assert.Equal(t, src.Count(), dst.Count())
	assertSameValues(t, src, dst)
}

func TestMerge_EmptyOtherIsNoop(t *testing.T) {
	s := NewDoubleStatistics()
	s.Update(1, 4.0)
	before := s.String()

	require.NoError(t, s.Merge(NewDoubleStatistics()))
	require.NoError(t, s.Merge(nil))
	assert.Equal(t, before, s.String())
}

func TestMerge_TypeMismatch(t *testing.T) {
	s := NewLongStatistics()
	s.Update(1, 1)
	other := NewDoubleStatistics()
	other.Update(2, 2)

	err := s.Merge(other)
	var tm *TypeMismatchError
	require.True(t, errors.As(err, &tm))
	assert.Equal(t, types.Int64, tm.Type)
	assert.Equal(t, "DOUBLE", tm.Got)
	assert.ErrorIs(t, err, ErrTypeMismatch)
	assert.Equal(t, int64(1), s.Count())
}

func TestMergeAll(t *testing.T) {
	pages := make([]Statistics, 0, 3)
	for p := 0; p < 3; p++ {
		s := NewFloatStatistics()
		for i := 0; i < 4; i++ {
			s.Update(int64(p*10+i), float32(p*10+i))
		}
		pages = append(pages, s)
	}

	out, err := MergeAll(types.Float, pages...)
	require.NoError(t, err)
	assert.Equal(t, int64(12), out.Count())
	assert.Equal(t, int64(0), out.StartTime())
	assert.Equal(t, int64(23), out.EndTime())

	sum, err := out.SumDouble()
	require.NoError(t, err)
	assert.Equal(t, float64(138), sum)

	_, err = MergeAll(types.Float, NewLongStatistics())
	assert.ErrorIs(t, err, ErrTypeMismatch)

	empty, err := MergeAll(types.Text)
	require.NoError(t, err)
	assert.True(t, empty.IsEmpty())
}

func TestClone(t *testing.T) {
	s := NewBinaryStatistics()
	s.Update(1, []byte("v"))

	c, err := Clone(s)
	require.NoError(t, err)
	s.Update(2, []byte("w"))

	assert.Equal(t, int64(1), c.Count())
	last, _ := c.LastValue()
	assert.Equal(t, []byte("v"), last)
}
