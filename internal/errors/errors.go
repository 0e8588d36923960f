// Package errors defines the categorized error type shared by the statistics
// codec, the manifest, object storage and the query surfaces. Transports map
// the category to a status code; callers branch on the code.
package errors

import (
	"errors"
	"fmt"
)

// ErrorCategory classifies errors by system component.
type ErrorCategory string

const (
	ErrCategoryValidation ErrorCategory = "VALIDATION"
	ErrCategoryStatistics ErrorCategory = "STATISTICS"
	ErrCategoryStorage    ErrorCategory = "STORAGE"
	ErrCategoryManifest   ErrorCategory = "MANIFEST"
	ErrCategoryQuery      ErrorCategory = "QUERY"
)

// Error codes for each category.
const (
	// Validation codes
	CodeInvalidSeries = "INVALID_SERIES"
	CodeEmptyBatch    = "EMPTY_BATCH"
	CodeInvalidValue  = "INVALID_VALUE"
	CodeOutOfOrder    = "OUT_OF_ORDER"

	// Statistics codes
	CodeUnsupportedOperation = "UNSUPPORTED_OPERATION"
	CodeTypeMismatch         = "TYPE_MISMATCH"
	CodeUnsupportedType      = "UNSUPPORTED_TYPE"
	CodeTruncatedInput       = "TRUNCATED_INPUT"
	CodeEmptyStatistics      = "EMPTY_STATISTICS"
	CodeChecksumMismatch     = "CHECKSUM_MISMATCH"

	// Storage codes
	CodeUploadFailed   = "UPLOAD_FAILED"
	CodeDownloadFailed = "DOWNLOAD_FAILED"
	CodeObjectNotFound = "OBJECT_NOT_FOUND"
	CodeDeleteFailed   = "DELETE_FAILED"

	// Manifest codes
	CodeCorruptionDetected = "CORRUPTION_DETECTED"
	CodeChunkNotFound      = "CHUNK_NOT_FOUND"
	CodeSeriesNotFound     = "SERIES_NOT_FOUND"

	// Query codes
	CodeUnsupportedAggregate = "UNSUPPORTED_AGGREGATE"
	CodeInvalidTimeRange     = "INVALID_TIME_RANGE"
)

// retryableCodes lists the transient object store failures. Statistics errors
// never retry: a corrupt or mismatched block aborts the read of its region.
var retryableCodes = map[string]bool{
	CodeUploadFailed:   true,
	CodeDownloadFailed: true,
}

// Error is the structured error type used throughout the system.
type Error struct {
	Category  ErrorCategory
	Code      string
	Message   string
	Details   map[string]interface{}
	Cause     error
	Retryable bool
}

// Error returns a formatted error string.
func (e *Error) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("[%s:%s] %s: %v", e.Category, e.Code, e.Message, e.Cause)
	}
	return fmt.Sprintf("[%s:%s] %s", e.Category, e.Code, e.Message)
}

// Unwrap returns the underlying cause for errors.Is/As compatibility.
func (e *Error) Unwrap() error {
	return e.Cause
}

// Is reports whether the target matches this error's category and code.
func (e *Error) Is(target error) bool {
	var t *Error
	if errors.As(target, &t) {
		return e.Category == t.Category && e.Code == t.Code
	}
	return false
}

// New creates an Error without a cause. Sentinels built with New match any
// error of the same category and code under errors.Is.
func New(category ErrorCategory, code, message string) *Error {
	return wrap(category, code, message, nil)
}

func wrap(category ErrorCategory, code, message string, cause error) *Error {
	return &Error{
		Category:  category,
		Code:      code,
		Message:   message,
		Cause:     cause,
		Retryable: category == ErrCategoryStorage && retryableCodes[code],
	}
}

// WithDetails returns a copy of the error with additional details.
func (e *Error) WithDetails(details map[string]interface{}) *Error {
	cp := *e
	cp.Details = details
	return &cp
}

// IsRetryable checks whether an error (or its chain) is retryable.
func IsRetryable(err error) bool {
	var ae *Error
	if errors.As(err, &ae) {
		return ae.Retryable
	}
	return false
}

// GetCategory extracts the error category from an error chain.
// Returns empty string if the error is not an *Error.
func GetCategory(err error) ErrorCategory {
	var ae *Error
	if errors.As(err, &ae) {
		return ae.Category
	}
	return ""
}

// GetCode extracts the error code from an error chain.
// Returns empty string if the error is not an *Error.
func GetCode(err error) string {
	var ae *Error
	if errors.As(err, &ae) {
		return ae.Code
	}
	return ""
}

// NewValidationError reports bad caller input. It is never retryable.
func NewValidationError(code, message string) *Error {
	return New(ErrCategoryValidation, code, message)
}

func NewStatisticsError(code, message string, cause error) *Error {
	return wrap(ErrCategoryStatistics, code, message, cause)
}

func NewStorageError(code, message string, cause error) *Error {
	return wrap(ErrCategoryStorage, code, message, cause)
}

func NewManifestError(code, message string, cause error) *Error {
	return wrap(ErrCategoryManifest, code, message, cause)
}

func NewQueryError(code, message string) *Error {
	return New(ErrCategoryQuery, code, message)
}
