package query

import (
	"fmt"
	"math"
	"strings"

	"github.com/arkilian/chunkstats/internal/chunk"
	apperrors "github.com/arkilian/chunkstats/internal/errors"
	"github.com/arkilian/chunkstats/internal/statistics"
	"github.com/arkilian/chunkstats/pkg/types"
)

// Predicate is a value condition evaluated against chunk statistics.
type Predicate struct {
	Operator string        // "=", "<", "<=", ">", ">=", "BETWEEN"
	Value    interface{}   // operand for comparison operators
	Values   []interface{} // [low, high] for BETWEEN
}

var validOperators = map[string]bool{
	"=": true, "<": true, "<=": true, ">": true, ">=": true, "BETWEEN": true,
}

// Validate checks the operator and operand count.
func (p *Predicate) Validate() error {
	op := strings.ToUpper(p.Operator)
	if !validOperators[op] {
		return apperrors.NewValidationError(apperrors.CodeInvalidValue,
			fmt.Sprintf("unsupported predicate operator %q", p.Operator))
	}
	if op == "BETWEEN" && len(p.Values) != 2 {
		return apperrors.NewValidationError(apperrors.CodeInvalidValue,
			fmt.Sprintf("BETWEEN needs 2 values, got %d", len(p.Values)))
	}
	p.Operator = op
	return nil
}

// MayMatch reports whether a chunk summarized by s may hold a value
// satisfying pred. It only answers false when the statistics prove that no
// value matches; a type without min/max support is never pruned by range.
func MayMatch(s statistics.Statistics, pred Predicate) (bool, error) {
	if s.IsEmpty() {
		return false, nil
	}
	if s.Type() == types.Boolean {
		return booleanMayMatch(s, pred)
	}

	lo, err := s.MinValue()
	if statistics.IsCapabilityError(err) {
		return true, nil
	}
	if err != nil {
		return false, err
	}
	hi, err := s.MaxValue()
	if err != nil {
		return false, err
	}

	operand := func(v interface{}) (interface{}, error) {
		x, err := chunk.Coerce(s.Type(), v)
		if err != nil {
			return nil, apperrors.NewValidationError(apperrors.CodeInvalidValue,
				fmt.Sprintf("predicate value %v: %v", v, err))
		}
		return x, nil
	}

	switch pred.Operator {
	case "BETWEEN":
		a, err := operand(pred.Values[0])
		if err != nil {
			return false, err
		}
		b, err := operand(pred.Values[1])
		if err != nil {
			return false, err
		}
		return holds(hi, a, ge) && holds(lo, b, le), nil
	}

	v, err := operand(pred.Value)
	if err != nil {
		return false, err
	}
	switch pred.Operator {
	case "=":
		return holds(lo, v, le) && holds(hi, v, ge), nil
	case "<":
		return holds(lo, v, lt), nil
	case "<=":
		return holds(lo, v, le), nil
	case ">":
		return holds(hi, v, gt), nil
	case ">=":
		return holds(hi, v, ge), nil
	}
	return true, nil
}

// booleanMayMatch uses the true count: a chunk of only false values cannot
// match "= true" and a chunk of only true values cannot match "= false".
func booleanMayMatch(s statistics.Statistics, pred Predicate) (bool, error) {
	if pred.Operator != "=" {
		return true, nil
	}
	v, err := chunk.Coerce(types.Boolean, pred.Value)
	if err != nil {
		return false, apperrors.NewValidationError(apperrors.CodeInvalidValue,
			fmt.Sprintf("predicate value %v: %v", pred.Value, err))
	}
	trues, err := s.SumLong()
	if err != nil {
		return false, err
	}
	if v.(bool) {
		return trues > 0, nil
	}
	return trues < s.Count(), nil
}

func lt(c int) bool { return c < 0 }
func le(c int) bool { return c <= 0 }
func gt(c int) bool { return c > 0 }
func ge(c int) bool { return c >= 0 }

// holds applies test to the ordering of a and b. Unordered values (NaN) never
// satisfy a test.
func holds(a, b interface{}, test func(int) bool) bool {
	c, ok := compare(a, b)
	return ok && test(c)
}

// compare orders two values of the same numeric column type.
func compare(a, b interface{}) (int, bool) {
	switch x := a.(type) {
	case int32:
		return compareInt(int64(x), int64(b.(int32))), true
	case int64:
		return compareInt(x, b.(int64)), true
	case float32:
		return compareFloat(float64(x), float64(b.(float32)))
	case float64:
		return compareFloat(x, b.(float64))
	}
	return 0, false
}

func compareInt(a, b int64) int {
	switch {
	case a < b:
		return -1
	case a > b:
		return 1
	}
	return 0
}

func compareFloat(a, b float64) (int, bool) {
	switch {
	case math.IsNaN(a) || math.IsNaN(b):
		return 0, false
	case a < b:
		return -1, true
	case a > b:
		return 1, true
	}
	return 0, true
}
