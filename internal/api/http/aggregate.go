package http

import (
	"encoding/json"
	"fmt"
	"math"
	"net/http"

	"github.com/arkilian/chunkstats/internal/query"
)

// TimeRange bounds a request. Missing bounds are open.
type TimeRange struct {
	Start *int64 `json:"start,omitempty"`
	End   *int64 `json:"end,omitempty"`
}

func (tr TimeRange) bounds() (int64, int64) {
	start, end := int64(math.MinInt64), int64(math.MaxInt64)
	if tr.Start != nil {
		start = *tr.Start
	}
	if tr.End != nil {
		end = *tr.End
	}
	return start, end
}

// AggregateRequest is the body of POST /v1/aggregate.
type AggregateRequest struct {
	Series string `json:"series"`
	TimeRange
	Aggregates []string `json:"aggregates"`
}

// AggregateResponse is the result of an aggregate pushdown.
type AggregateResponse struct {
	Series       string                 `json:"series"`
	Start        int64                  `json:"start"`
	End          int64                  `json:"end"`
	Values       map[string]interface{} `json:"values"`
	ChunksUsed   int                    `json:"chunks_used"`
	FromSummary  bool                   `json:"from_summary"`
	ScanRequired []string               `json:"scan_required"`
	Partial      bool                   `json:"partial"`
	RequestID    string                 `json:"request_id"`
}

// AggregateHandler handles POST /v1/aggregate.
type AggregateHandler struct {
	pushdown *query.Pushdown
}

// NewAggregateHandler creates a new aggregate handler.
func NewAggregateHandler(pushdown *query.Pushdown) *AggregateHandler {
	return &AggregateHandler{pushdown: pushdown}
}

// ServeHTTP handles the aggregate HTTP request.
func (h *AggregateHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	requestID := GetRequestID(r.Context())

	if r.Method != http.MethodPost {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed", requestID)
		return
	}

	var req AggregateRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, fmt.Sprintf("invalid request body: %v", err), requestID)
		return
	}
	if req.Series == "" {
		writeError(w, http.StatusBadRequest, "series is required", requestID)
		return
	}

	aggs := make([]query.AggregateType, 0, len(req.Aggregates))
	for _, name := range req.Aggregates {
		agg, err := query.ParseAggregateType(name)
		if err != nil {
			writeAppError(w, err, requestID)
			return
		}
		aggs = append(aggs, agg)
	}

	start, end := req.bounds()
	res, err := h.pushdown.Aggregate(r.Context(), query.AggregateRequest{
		Series:     req.Series,
		Start:      start,
		End:        end,
		Aggregates: aggs,
	})
	if err != nil {
		writeAppError(w, err, requestID)
		return
	}

	resp := AggregateResponse{
		Series:       res.Series,
		Start:        res.Start,
		End:          res.End,
		Values:       make(map[string]interface{}, len(res.Values)),
		ChunksUsed:   res.ChunksUsed,
		FromSummary:  res.FromSummary,
		ScanRequired: res.ScanRequired,
		Partial:      res.Partial,
		RequestID:    requestID,
	}
	for k, v := range res.Values {
		resp.Values[k] = jsonValue(v)
	}
	if resp.ScanRequired == nil {
		resp.ScanRequired = []string{}
	}
	writeJSON(w, http.StatusOK, resp)
}

// PredicateBody is the JSON form of a value predicate.
type PredicateBody struct {
	Operator string        `json:"operator"`
	Value    interface{}   `json:"value,omitempty"`
	Values   []interface{} `json:"values,omitempty"`
}

// PruneRequest is the body of POST /v1/prune.
type PruneRequest struct {
	Series string `json:"series"`
	TimeRange
	Predicate *PredicateBody `json:"predicate,omitempty"`
}

// PrunedChunk is a chunk that survived pruning.
type PrunedChunk struct {
	ChunkID    string `json:"chunk_id"`
	ObjectPath string `json:"object_path"`
	StartTime  int64  `json:"start_time"`
	EndTime    int64  `json:"end_time"`
	PointCount int64  `json:"point_count"`
}

// PruneResponse lists the chunks a scan of the predicate must read.
type PruneResponse struct {
	Series        string        `json:"series"`
	ChunksScanned int           `json:"chunks_scanned"`
	ChunksPruned  int           `json:"chunks_pruned"`
	PruningRatio  float64       `json:"pruning_ratio"`
	Chunks        []PrunedChunk `json:"chunks"`
	RequestID     string        `json:"request_id"`
}

// PruneHandler handles POST /v1/prune.
type PruneHandler struct {
	pruner *query.Pruner
}

// NewPruneHandler creates a new prune handler.
func NewPruneHandler(pruner *query.Pruner) *PruneHandler {
	return &PruneHandler{pruner: pruner}
}

// ServeHTTP handles the prune HTTP request.
func (h *PruneHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	requestID := GetRequestID(r.Context())

	if r.Method != http.MethodPost {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed", requestID)
		return
	}

	var req PruneRequest
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

	var pred *query.Predicate
	if req.Predicate != nil {
		pred = &query.Predicate{
			Operator: req.Predicate.Operator,
			Value:    req.Predicate.Value,
			Values:   req.Predicate.Values,
		}
	}

	start, end := req.bounds()
	res, err := h.pruner.Prune(r.Context(), req.Series, start, end, pred)
	if err != nil {
		writeAppError(w, err, requestID)
		return
	}

	kept := res.Kept()
	resp := PruneResponse{
		Series:        req.Series,
		ChunksScanned: len(res.Chunks),
		ChunksPruned:  len(res.Chunks) - len(kept),
		PruningRatio:  res.PruningRatio,
		Chunks:        make([]PrunedChunk, len(kept)),
		RequestID:     requestID,
	}
	for i, c := range kept {
		resp.Chunks[i] = PrunedChunk{
			ChunkID:    c.ChunkID,
			ObjectPath: c.ObjectPath,
			StartTime:  c.StartTime,
			EndTime:    c.EndTime,
			PointCount: c.PointCount,
		}
	}
	writeJSON(w, http.StatusOK, resp)
}

// jsonValue renders binary values as strings.
func jsonValue(v interface{}) interface{} {
	if b, ok := v.([]byte); ok {
		return string(b)
	}
	return v
}
