// Package http exposes chunk ingest, aggregate pushdown and series summaries over HTTP/JSON.
package http

import (
	"context"
	"encoding/json"
	"log"
	"net/http"
	"time"

	"github.com/google/uuid"

	apperrors "github.com/arkilian/chunkstats/internal/errors"
)

const (
	headerRequestID     = "X-Request-ID"
	headerCorrelationID = "X-Correlation-ID"
)

type ctxKey int

const idsKey ctxKey = iota

// requestIDs travel in the request context.
type requestIDs struct {
	request     string
	correlation string
}

// ErrorResponse is the body of every non-2xx answer.
type ErrorResponse struct {
	Error     string `json:"error"`
	Code      string `json:"code,omitempty"`
	RequestID string `json:"request_id,omitempty"`
}

// RequestIDMiddleware assigns the request and correlation IDs. Client
// supplied headers win; the correlation ID defaults to the request ID.
// Both are echoed in the response headers.
func RequestIDMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ids := requestIDs{
			request:     r.Header.Get(headerRequestID),
			correlation: r.Header.Get(headerCorrelationID),
		}
		if ids.request == "" {
			ids.request = uuid.NewString()
		}
		if ids.correlation == "" {
			ids.correlation = ids.request
		}
		w.Header().Set(headerRequestID, ids.request)
		w.Header().Set(headerCorrelationID, ids.correlation)

		next.ServeHTTP(w, r.WithContext(context.WithValue(r.Context(), idsKey, ids)))
	})
}

// RecoveryMiddleware turns a handler panic into a 500 response.
func RecoveryMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		defer func() {
			if p := recover(); p != nil {
				// Runs outside RequestIDMiddleware; the ID is only on the response.
				requestID := w.Header().Get(headerRequestID)
				log.Printf("http: panic serving %s %s (request_id=%s): %v", r.Method, r.URL.Path, requestID, p)
				writeError(w, http.StatusInternalServerError, "internal server error", requestID)
			}
		}()
		next.ServeHTTP(w, r)
	})
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (s *statusRecorder) WriteHeader(code int) {
	s.status = code
	s.ResponseWriter.WriteHeader(code)
}

// AccessLogMiddleware logs one line per request with its status and latency.
func AccessLogMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(rec, r)
		log.Printf("http: %s %s %d %s request_id=%s",
			r.Method, r.URL.Path, rec.status, time.Since(start).Round(time.Microsecond), GetRequestID(r.Context()))
	})
}

// ChainMiddleware composes middleware; the first argument runs outermost.
func ChainMiddleware(middlewares ...func(http.Handler) http.Handler) func(http.Handler) http.Handler {
	return func(h http.Handler) http.Handler {
		for i := len(middlewares) - 1; i >= 0; i-- {
			h = middlewares[i](h)
		}
		return h
	}
}

// DefaultMiddleware returns the middleware chain used when none is given.
func DefaultMiddleware() func(http.Handler) http.Handler {
	return ChainMiddleware(RecoveryMiddleware, RequestIDMiddleware)
}

// GetRequestID returns the request ID set by RequestIDMiddleware.
func GetRequestID(ctx context.Context) string {
	ids, _ := ctx.Value(idsKey).(requestIDs)
	return ids.request
}

// GetCorrelationID returns the correlation ID set by RequestIDMiddleware.
func GetCorrelationID(ctx context.Context) string {
	ids, _ := ctx.Value(idsKey).(requestIDs)
	return ids.correlation
}

func writeJSON(w http.ResponseWriter, statusCode int, body interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	if err := json.NewEncoder(w).Encode(body); err != nil {
		log.Printf("http: failed to encode response: %v", err)
	}
}

func writeError(w http.ResponseWriter, statusCode int, message, requestID string) {
	writeJSON(w, statusCode, ErrorResponse{Error: message, RequestID: requestID})
}

// writeAppError maps an error from the service layer to a status code and writes it.
func writeAppError(w http.ResponseWriter, err error, requestID string) {
	status := statusFor(err)
	if status >= http.StatusInternalServerError {
		log.Printf("http: request %s failed: %v", requestID, err)
	}
	writeJSON(w, status, ErrorResponse{
		Error:     err.Error(),
		Code:      apperrors.GetCode(err),
		RequestID: requestID,
	})
}

func statusFor(err error) int {
	code := apperrors.GetCode(err)
	switch apperrors.GetCategory(err) {
	case apperrors.ErrCategoryValidation, apperrors.ErrCategoryQuery:
		return http.StatusBadRequest
	case apperrors.ErrCategoryStatistics:
		switch code {
		case apperrors.CodeTypeMismatch:
			return http.StatusConflict
		case apperrors.CodeUnsupportedOperation, apperrors.CodeUnsupportedType:
			return http.StatusBadRequest
		}
	case apperrors.ErrCategoryManifest, apperrors.ErrCategoryStorage:
		switch code {
		case apperrors.CodeChunkNotFound, apperrors.CodeSeriesNotFound, apperrors.CodeObjectNotFound:
			return http.StatusNotFound
		}
		if apperrors.IsRetryable(err) {
			return http.StatusServiceUnavailable
		}
	}
	return http.StatusInternalServerError
}
