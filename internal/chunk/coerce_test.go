package chunk

import (
	"encoding/json"
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/arkilian/chunkstats/pkg/types"
)

func TestCoerce(t *testing.T) {
	tests := []struct {
		dt   types.DataType
		in   interface{}
		want interface{}
	}{
		{types.Boolean, true, true},
		{types.Boolean, "false", false},
		{types.Int32, float64(42), int32(42)},
		{types.Int32, json.Number("-5"), int32(-5)},
		{types.Int64, float64(1 << 40), int64(1 << 40)},
		{types.Int64, "9", int64(9)},
		{types.Float, 1.5, float32(1.5)},
		{types.Double, json.Number("2.25"), 2.25},
		{types.Double, int64(3), float64(3)},
		{types.Text, "abc", []byte("abc")},
		{types.Vector, 123, nil},
	}

	for _, tt := range tests {
		got, err := Coerce(tt.dt, tt.in)
		require.NoError(t, err, "%s <- %v", tt.dt, tt.in)
		assert.Equal(t, tt.want, got, "%s <- %v", tt.dt, tt.in)
	}
}

func TestCoerce_Rejects(t *testing.T) {
	tests := []struct {
		dt types.DataType
		in interface{}
	}{
		{types.Boolean, 1},
		{types.Int32, float64(math.MaxInt32) + 1},
		{types.Int32, 2.5},
		{types.Int64, true},
		{types.Double, []byte("x")},
		{types.Text, 7},
		{types.DataType(42), 1},
	}

	for _, tt := range tests {
		_, err := Coerce(tt.dt, tt.in)
		assert.Error(t, err, "%s <- %v", tt.dt, tt.in)
	}
}

func TestValidate_CollectsAllErrors(t *testing.T) {
	points := []types.Point{
		{Timestamp: 1, Value: "x"},
		{Timestamp: 2, Value: float64(1)},
		{Timestamp: 3, Value: nil},
	}
	err := Validate(points, types.Int64)
	require.Error(t, err)

	var verrs ValidationErrors
	require.ErrorAs(t, err, &verrs)
	assert.Len(t, verrs, 2)
	assert.Equal(t, 0, verrs[0].Index)
	assert.Equal(t, 2, verrs[1].Index)
	assert.Equal(t, int64(1), points[1].Value)
}

func TestExactInt64(t *testing.T) {
	n, err := ExactInt64(MaxExactInt)
	require.NoError(t, err)
	assert.Equal(t, int64(1<<53), n)

	n, err = ExactInt64(-42)
	require.NoError(t, err)
	assert.Equal(t, int64(-42), n)

	for _, x := range []float64{0.5, MaxExactInt * 2, -MaxExactInt * 2, math.NaN(), math.Inf(-1)} {
		_, err := ExactInt64(x)
		assert.Error(t, err, "%v", x)
	}

	// Large INT64 values are exact when sent as strings.
	v, err := Coerce(types.Int64, "1735689600123456789")
	require.NoError(t, err)
	assert.Equal(t, int64(1735689600123456789), v)
	_, err = Coerce(types.Int64, 1735689600123456789.0)
	assert.Error(t, err)
}
