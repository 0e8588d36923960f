package chunk

import (
	"encoding/json"
	"fmt"
	"math"
	"strconv"
	"strings"

	"github.com/arkilian/chunkstats/pkg/types"
)

// ValidationError describes one point that cannot be stored in a column.
type ValidationError struct {
	Index   int
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("point %d, field %q: %s", e.Index, e.Field, e.Message)
}

// ValidationErrors is a collection of validation errors.
type ValidationErrors []*ValidationError

func (e ValidationErrors) Error() string {
	if len(e) == 0 {
		return "no validation errors"
	}
	if len(e) == 1 {
		return e[0].Error()
	}
	var sb strings.Builder
	sb.WriteString(fmt.Sprintf("%d validation errors:\n", len(e)))
	for i, err := range e {
		if i > 0 {
			sb.WriteString("\n")
		}
		sb.WriteString("  - ")
		sb.WriteString(err.Error())
	}
	return sb.String()
}

// Validate coerces every point value to the Go type of dt in place and reports
// all points that could not be converted.
func Validate(points []types.Point, dt types.DataType) error {
	var errs ValidationErrors
	for i := range points {
		v, err := Coerce(dt, points[i].Value)
		if err != nil {
			errs = append(errs, &ValidationError{Index: i, Field: "v", Message: err.Error()})
			continue
		}
		points[i].Value = v
	}
	if len(errs) > 0 {
		return errs
	}
	return nil
}

// Coerce converts a decoded value (JSON numbers arrive as float64 or
// json.Number) to the Go type the statistics of dt accept: bool, int32, int64,
// float32, float64 or []byte. VECTOR columns carry no value and yield nil.
func Coerce(dt types.DataType, v interface{}) (interface{}, error) {
	switch dt {
	case types.Boolean:
		return toBool(v)
	case types.Int32:
		n, err := toInt64(v)
		if err != nil {
			return nil, err
		}
		if n < math.MinInt32 || n > math.MaxInt32 {
			return nil, fmt.Errorf("value %d overflows INT32", n)
		}
		return int32(n), nil
	case types.Int64:
		return toInt64(v)
	case types.Float:
		f, err := toFloat64(v)
		if err != nil {
			return nil, err
		}
		return float32(f), nil
	case types.Double:
		return toFloat64(v)
	case types.Text:
		switch x := v.(type) {
		case string:
			return []byte(x), nil
		case []byte:
			return x, nil
		}
		return nil, fmt.Errorf("expected string, got %T", v)
	case types.Vector:
		return nil, nil
	default:
		return nil, fmt.Errorf("unsupported data type %s", dt)
	}
}

func toBool(v interface{}) (bool, error) {
	switch x := v.(type) {
	case bool:
		return x, nil
	case string:
		return strconv.ParseBool(x)
	}
	return false, fmt.Errorf("expected boolean, got %T", v)
}

func toInt64(v interface{}) (int64, error) {
	switch x := v.(type) {
	case int:
		return int64(x), nil
	case int32:
		return int64(x), nil
	case int64:
		return x, nil
	case float64:
		return ExactInt64(x)
	case json.Number:
		return x.Int64()
	case string:
		return strconv.ParseInt(x, 10, 64)
	}
	return 0, fmt.Errorf("expected integer, got %T", v)
}

// MaxExactInt is the largest magnitude a float64 holds without rounding
// integers. Larger integers must be sent as decimal strings.
const MaxExactInt = 1 << 53

// ExactInt64 converts an integral float64 in [-2^53, 2^53] to int64.
func ExactInt64(x float64) (int64, error) {
	if math.IsNaN(x) || math.IsInf(x, 0) || x != math.Trunc(x) {
		return 0, fmt.Errorf("value %v is not an integer", x)
	}
	if math.Abs(x) > MaxExactInt {
		return 0, fmt.Errorf("value %v exceeds 2^53; send it as a decimal string", x)
	}
	return int64(x), nil
}

func toFloat64(v interface{}) (float64, error) {
	switch x := v.(type) {
	case float64:
		return x, nil
	case float32:
		return float64(x), nil
	case int:
		return float64(x), nil
	case int32:
		return float64(x), nil
	case int64:
		return float64(x), nil
	case json.Number:
		return x.Float64()
	case string:
		return strconv.ParseFloat(x, 64)
	}
	return 0, fmt.Errorf("expected number, got %T", v)
}
