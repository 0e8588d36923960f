package http

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/arkilian/chunkstats/internal/chunk"
	"github.com/arkilian/chunkstats/internal/ingest"
	"github.com/arkilian/chunkstats/internal/statistics"
	"github.com/arkilian/chunkstats/pkg/types"
)

// ChunkService is the part of the ingest service the chunk endpoints use.
type ChunkService interface {
	Ingest(ctx context.Context, req ingest.Request) (*ingest.Result, error)
	Load(ctx context.Context, chunkID string) (*chunk.Metadata, error)
	Delete(ctx context.Context, chunkID string) error
}

// ChunkRequest is the body of POST /v1/chunks.
type ChunkRequest struct {
	Series         string        `json:"series"`
	DataType       string        `json:"data_type"`
	Points         []types.Point `json:"points"`
	IdempotencyKey string        `json:"idempotency_key,omitempty"`
}

// ChunkResponse describes a stored chunk.
type ChunkResponse struct {
	ChunkID    string `json:"chunk_id"`
	Series     string `json:"series"`
	ObjectPath string `json:"object_path"`
	PointCount int64  `json:"point_count"`
	PageCount  int    `json:"page_count"`
	SizeBytes  int64  `json:"size_bytes"`
	StartTime  int64  `json:"start_time"`
	EndTime    int64  `json:"end_time"`
	Duplicate  bool   `json:"duplicate,omitempty"`
	RequestID  string `json:"request_id"`
}

// ChunkDetail is the body of GET /v1/chunks/{id}.
type ChunkDetail struct {
	ChunkID    string                `json:"chunk_id"`
	Series     string                `json:"series"`
	DataType   string                `json:"data_type"`
	CreatedAt  time.Time             `json:"created_at"`
	Statistics statistics.Snapshot   `json:"statistics"`
	Pages      []statistics.Snapshot `json:"pages"`
	RequestID  string                `json:"request_id"`
}

// ChunkHandler serves the /v1/chunks endpoints.
type ChunkHandler struct {
	svc ChunkService
}

// NewChunkHandler creates a new chunk handler.
func NewChunkHandler(svc ChunkService) *ChunkHandler {
	return &ChunkHandler{svc: svc}
}

// ServeHTTP handles POST /v1/chunks.
func (h *ChunkHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	requestID := GetRequestID(r.Context())

	if r.Method != http.MethodPost {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed", requestID)
		return
	}

	var req ChunkRequest
	dec := json.NewDecoder(r.Body)
	dec.UseNumber()
	if err := dec.Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, fmt.Sprintf("invalid request body: %v", err), requestID)
		return
	}

	if req.Series == "" {
		writeError(w, http.StatusBadRequest, "series is required", requestID)
		return
	}
	if len(req.Points) == 0 {
		writeError(w, http.StatusBadRequest, "points must not be empty", requestID)
		return
	}
	dt, err := types.ParseDataType(req.DataType)
	if err != nil {
		writeError(w, http.StatusBadRequest, fmt.Sprintf("invalid data_type: %v", err), requestID)
		return
	}

	res, err := h.svc.Ingest(r.Context(), ingest.Request{
		Series:         req.Series,
		DataType:       dt,
		Points:         req.Points,
		IdempotencyKey: req.IdempotencyKey,
	})
	if err != nil {
		writeAppError(w, err, requestID)
		return
	}

	status := http.StatusCreated
	if res.Duplicate {
		status = http.StatusOK
	}
	writeJSON(w, status, ChunkResponse{
		ChunkID:    res.ChunkID,
		Series:     res.Series,
		ObjectPath: res.ObjectPath,
		PointCount: res.PointCount,
		PageCount:  res.PageCount,
		SizeBytes:  res.SizeBytes,
		StartTime:  res.StartTime,
		EndTime:    res.EndTime,
		Duplicate:  res.Duplicate,
		RequestID:  requestID,
	})
}

// Get handles GET /v1/chunks/{id}.
func (h *ChunkHandler) Get(w http.ResponseWriter, r *http.Request) {
	requestID := GetRequestID(r.Context())

	meta, err := h.svc.Load(r.Context(), r.PathValue("id"))
	if err != nil {
		writeAppError(w, err, requestID)
		return
	}

	pages := make([]statistics.Snapshot, len(meta.Pages))
	for i, p := range meta.Pages {
		pages[i] = statistics.TakeSnapshot(p)
	}
	writeJSON(w, http.StatusOK, ChunkDetail{
		ChunkID:    meta.ID,
		Series:     meta.Series,
		DataType:   meta.DataType.String(),
		CreatedAt:  meta.CreatedAt,
		Statistics: statistics.TakeSnapshot(meta.Statistics),
		Pages:      pages,
		RequestID:  requestID,
	})
}

// Delete handles DELETE /v1/chunks/{id}.
func (h *ChunkHandler) Delete(w http.ResponseWriter, r *http.Request) {
	requestID := GetRequestID(r.Context())

	if err := h.svc.Delete(r.Context(), r.PathValue("id")); err != nil {
		writeAppError(w, err, requestID)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
