package statistics

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	apperrors "github.com/arkilian/chunkstats/internal/errors"
	"github.com/arkilian/chunkstats/internal/rwio"
	"github.com/arkilian/chunkstats/pkg/types"
)

func TestEnvelope_BooleanLayout(t *testing.T) {
	s := NewBooleanStatistics()
	require.NoError(t, s.UpdateBatch([]int64{1, 2, 3}, []bool{true, false, true}, 3))

	var buf bytes.Buffer
	n, err := Serialize(&buf, s)
	require.NoError(t, err)
	assert.Equal(t, 27, n)
	assert.Equal(t, 27, SerializedSize(s))

	want := []byte{
		0, 0, 0, 0, 0, 0, 0, 1, // start
		0, 0, 0, 0, 0, 0, 0, 3, // end
		3,    // count
		1, 1, // first, last
		0, 0, 0, 0, 0, 0, 0, 2, // sum
	}
	assert.Equal(t, want, buf.Bytes())
}

func TestEnvelope_RoundTripAllTypes(t *testing.T) {
	for _, dt := range types.AllDataTypes() {
		t.Run(dt.String(), func(t *testing.T) {
			s, err := New(dt)
			require.NoError(t, err)
			for i := 0; i < 200; i++ {
				require.NoError(t, s.UpdateValue(int64(i*3), sampleValue(dt, i)))
			}

			var buf bytes.Buffer
			n, err := Serialize(&buf, s)
			require.NoError(t, err)
			assert.Equal(t, SerializedSize(s), n)

			fromStream, err := Read(bytes.NewReader(buf.Bytes()), dt)
			require.NoError(t, err)
			b := rwio.NewBuffer(buf.Bytes())
			fromBuffer, err := ReadBuffer(b, dt)
			require.NoError(t, err)
			assert.Equal(t, 0, b.Remaining())

			for _, got := range []Statistics{fromStream, fromBuffer} {
				assert.Equal(t, s.StartTime(), got.StartTime())
				assert.Equal(t, s.EndTime(), got.EndTime())
				assert.Equal(t, s.Count(), got.Count())
				assert.False(t, got.IsEmpty())
				assertSameValues(t, s, got)
			}
		})
	}
}

func TestEnvelope_EmptyStatistics(t *testing.T) {
	s := NewLongStatistics()

	var buf bytes.Buffer
	_, err := Serialize(&buf, s)
	require.NoError(t, err)

	got, err := Read(bytes.NewReader(buf.Bytes()), types.Int64)
	require.NoError(t, err)
	assert.True(t, got.IsEmpty())
	assert.Equal(t, int64(0), got.Count())

	_, err = got.MinValue()
	assert.ErrorIs(t, err, ErrEmptyStatistics)
}

func TestEnvelope_Truncated(t *testing.T) {
	s := NewDoubleStatistics()
	s.Update(1, 1.5)

	var buf bytes.Buffer
	_, err := Serialize(&buf, s)
	require.NoError(t, err)

	for _, cut := range []int{0, 7, 16, 17, buf.Len() - 1} {
		_, err := Read(bytes.NewReader(buf.Bytes()[:cut]), types.Double)
		assert.ErrorIs(t, err, ErrTruncatedInput, "cut at %d", cut)

		_, err = ReadBuffer(rwio.NewBuffer(buf.Bytes()[:cut]), types.Double)
		assert.ErrorIs(t, err, ErrTruncatedInput, "buffer cut at %d", cut)
	}
}

func TestFactory_UnknownTag(t *testing.T) {
	_, err := New(types.DataType(42))
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrUnsupportedType)
	assert.Equal(t, apperrors.ErrCategoryStatistics, apperrors.GetCategory(err))

	_, err = Deserialize(bytes.NewReader(nil), types.DataType(7))
	assert.ErrorIs(t, err, ErrUnsupportedType)
}

func TestFactory_VariantTypes(t *testing.T) {
	for _, dt := range types.AllDataTypes() {
		s, err := New(dt)
		require.NoError(t, err)
		assert.Equal(t, dt, s.Type())
		assert.True(t, s.IsEmpty())
		assert.Equal(t, RAMSize(dt), s.RAMSize())
		assert.Positive(t, s.RAMSize())
	}
}

func TestTakeSnapshot(t *testing.T) {
	s := NewBinaryStatistics()
	s.Update(5, []byte("b"))
	s.Update(9, []byte("a"))

	snap := TakeSnapshot(s)
	if snap.Type != "TEXT" || snap.Count != 2 || snap.StartTime != 5 || snap.EndTime != 9 {
		t.Fatalf("unexpected header: %+v", snap)
	}
	if snap.First != "b" || snap.Last != "a" {
		t.Errorf("expected first/last rendered as strings, got %v/%v", snap.First, snap.Last)
	}
	if snap.Min != nil || snap.Max != nil || snap.Sum != nil {
		t.Errorf("expected unsupported fields to be nil, got %+v", snap)
	}

	d := NewDoubleStatistics()
	d.Update(1, 2.5)
	d.Update(2, -1.0)
	m := TakeSnapshot(d).Map()
	if m["sum"] != 1.5 || m["min"] != -1.0 || m["top_timestamp"] != int64(1) {
		t.Errorf("unexpected map: %v", m)
	}

	empty := TakeSnapshot(NewLongStatistics()).Map()
	if _, ok := empty["min"]; ok {
		t.Errorf("expected no min on empty statistics, got %v", empty)
	}
}
