package http

import (
	"context"
	"net/http"
	"strconv"
	"time"

	"github.com/arkilian/chunkstats/internal/manifest"
	"github.com/arkilian/chunkstats/internal/observability"
	"github.com/arkilian/chunkstats/internal/statistics"
)

// SummaryReader is the part of the manifest the summary endpoint reads.
type SummaryReader interface {
	SeriesSummary(ctx context.Context, series string) (*manifest.SeriesSummary, error)
	SeriesSummaries(ctx context.Context, series []string) (map[string]*manifest.SeriesSummary, error)
	ListSeries(ctx context.Context) ([]*manifest.SeriesSummary, error)
}

// SeriesSummaryView is the JSON form of a series summary.
type SeriesSummaryView struct {
	Series     string              `json:"series"`
	DataType   string              `json:"data_type"`
	ChunkCount int64               `json:"chunk_count"`
	Statistics statistics.Snapshot `json:"statistics"`
	UpdatedAt  time.Time           `json:"updated_at"`
}

// SummaryResponse is the body of GET /v1/summary.
type SummaryResponse struct {
	Series    []SeriesSummaryView `json:"series"`
	Missing   []string            `json:"missing,omitempty"`
	RequestID string              `json:"request_id"`
}

// SummaryHandler handles GET /v1/summary. Repeated series parameters select
// series; without any, every series is listed.
type SummaryHandler struct {
	reader SummaryReader
}

// NewSummaryHandler creates a new summary handler.
func NewSummaryHandler(reader SummaryReader) *SummaryHandler {
	return &SummaryHandler{reader: reader}
}

// ServeHTTP handles the summary HTTP request.
func (h *SummaryHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	requestID := GetRequestID(r.Context())

	if r.Method != http.MethodGet {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed", requestID)
		return
	}

	resp := SummaryResponse{Series: []SeriesSummaryView{}, RequestID: requestID}
	names := r.URL.Query()["series"]

	if len(names) == 0 {
		all, err := h.reader.ListSeries(r.Context())
		if err != nil {
			writeAppError(w, err, requestID)
			return
		}
		for _, s := range all {
			resp.Series = append(resp.Series, summaryView(s))
		}
		writeJSON(w, http.StatusOK, resp)
		return
	}

	if len(names) == 1 {
		s, err := h.reader.SeriesSummary(r.Context(), names[0])
		if err != nil {
			writeAppError(w, err, requestID)
			return
		}
		resp.Series = append(resp.Series, summaryView(s))
		writeJSON(w, http.StatusOK, resp)
		return
	}

	found, err := h.reader.SeriesSummaries(r.Context(), names)
	if err != nil {
		writeAppError(w, err, requestID)
		return
	}
	for _, name := range names {
		if s, ok := found[name]; ok {
			resp.Series = append(resp.Series, summaryView(s))
		} else {
			resp.Missing = append(resp.Missing, name)
		}
	}
	writeJSON(w, http.StatusOK, resp)
}

func summaryView(s *manifest.SeriesSummary) SeriesSummaryView {
	return SeriesSummaryView{
		Series:     s.Series,
		DataType:   s.DataType.String(),
		ChunkCount: s.ChunkCount,
		Statistics: statistics.TakeSnapshot(s.Statistics),
		UpdatedAt:  s.UpdatedAt,
	}
}

// StatsHandler handles GET /v1/stats, reporting the most queried series.
type StatsHandler struct {
	stats *observability.QueryStats
}

// NewStatsHandler creates a new query statistics handler.
func NewStatsHandler(stats *observability.QueryStats) *StatsHandler {
	return &StatsHandler{stats: stats}
}

// ServeHTTP handles the stats HTTP request.
func (h *StatsHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	requestID := GetRequestID(r.Context())

	limit := 10
	if v := r.URL.Query().Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n <= 0 {
			writeError(w, http.StatusBadRequest, "limit must be a positive integer", requestID)
			return
		}
		limit = n
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"series":     h.stats.GetTopSeries(limit),
		"request_id": requestID,
	})
}
