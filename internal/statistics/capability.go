package statistics

import (
	"errors"
	"fmt"

	apperrors "github.com/arkilian/chunkstats/internal/errors"
	"github.com/arkilian/chunkstats/internal/rwio"
	"github.com/arkilian/chunkstats/pkg/types"
)

// Operation names an accessor or mutation a variant may not support.
type Operation string

const (
	OpFirst           Operation = "first"
	OpLast            Operation = "last"
	OpMin             Operation = "min"
	OpMax             Operation = "max"
	OpBottomTimestamp Operation = "bottom timestamp"
	OpTopTimestamp    Operation = "top timestamp"
	OpLongSum         Operation = "long sum"
	OpDoubleSum       Operation = "double sum"
)

// Sentinels for errors.Is. Each matches any error of the same category and code.
var (
	ErrUnsupportedOperation = apperrors.New(apperrors.ErrCategoryStatistics, apperrors.CodeUnsupportedOperation, "operation not supported")
	ErrTypeMismatch         = apperrors.New(apperrors.ErrCategoryStatistics, apperrors.CodeTypeMismatch, "statistics type mismatch")
	ErrUnsupportedType      = apperrors.New(apperrors.ErrCategoryStatistics, apperrors.CodeUnsupportedType, "unsupported data type")
	ErrTruncatedInput       = apperrors.New(apperrors.ErrCategoryStatistics, apperrors.CodeTruncatedInput, "truncated statistics input")
	ErrEmptyStatistics      = apperrors.New(apperrors.ErrCategoryStatistics, apperrors.CodeEmptyStatistics, "statistics are empty")
)

// CapabilityError reports an accessor the receiver's type does not support,
// e.g. min on BOOLEAN. It is a planning error and never recoverable.
type CapabilityError struct {
	Type      types.DataType
	Operation Operation
}

func (e *CapabilityError) Error() string {
	return fmt.Sprintf("%s statistics does not support %s", e.Type, e.Operation)
}

func (e *CapabilityError) Unwrap() error {
	return ErrUnsupportedOperation
}

// TypeMismatchError reports a merge between different column types or an update
// with a value of the wrong Go type. Got is the offending type's name.
type TypeMismatchError struct {
	Type types.DataType
	Got  string
}

func (e *TypeMismatchError) Error() string {
	return fmt.Sprintf("%s statistics cannot accept %s", e.Type, e.Got)
}

func (e *TypeMismatchError) Unwrap() error {
	return ErrTypeMismatch
}

// IsCapabilityError reports whether err is (or wraps) a *CapabilityError.
func IsCapabilityError(err error) bool {
	var ce *CapabilityError
	return errors.As(err, &ce)
}

func valueMismatch(dt types.DataType, v interface{}) error {
	return &TypeMismatchError{Type: dt, Got: fmt.Sprintf("%T", v)}
}

func unsupportedType(dt types.DataType) error {
	return apperrors.New(apperrors.ErrCategoryStatistics, apperrors.CodeUnsupportedType,
		fmt.Sprintf("unsupported data type tag %d", uint8(dt))).
		WithDetails(map[string]interface{}{"tag": uint8(dt)})
}

// readError maps codec failures to the statistics error taxonomy.
func readError(dt types.DataType, err error) error {
	if errors.Is(err, rwio.ErrTruncated) {
		return apperrors.NewStatisticsError(apperrors.CodeTruncatedInput,
			fmt.Sprintf("%s statistics payload", dt), err)
	}
	return fmt.Errorf("statistics: failed to read %s payload: %w", dt, err)
}
