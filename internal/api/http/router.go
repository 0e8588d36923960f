package http

import (
	"fmt"
	"net/http"

	"github.com/arkilian/chunkstats/internal/observability"
	"github.com/arkilian/chunkstats/internal/query"
)

// Handlers groups the dependencies of the HTTP API.
type Handlers struct {
	Chunks     ChunkService
	Summaries  SummaryReader
	Pushdown   *query.Pushdown
	Pruner     *query.Pruner
	QueryStats *observability.QueryStats
}

// NewRouter registers the endpoints whose dependencies are set: chunk routes
// need Chunks; aggregate and prune need Pushdown and Pruner; summary needs
// Summaries. middleware wraps each API handler; /health is left unwrapped.
func NewRouter(h Handlers, middleware func(http.Handler) http.Handler) *http.ServeMux {
	if middleware == nil {
		middleware = DefaultMiddleware()
	}

	mux := http.NewServeMux()
	if h.Chunks != nil {
		chunks := NewChunkHandler(h.Chunks)
		mux.Handle("/v1/chunks", middleware(chunks))
		mux.Handle("GET /v1/chunks/{id}", middleware(http.HandlerFunc(chunks.Get)))
		mux.Handle("DELETE /v1/chunks/{id}", middleware(http.HandlerFunc(chunks.Delete)))
	}
	if h.Pushdown != nil {
		mux.Handle("/v1/aggregate", middleware(NewAggregateHandler(h.Pushdown)))
	}
	if h.Pruner != nil {
		mux.Handle("/v1/prune", middleware(NewPruneHandler(h.Pruner)))
	}
	if h.Summaries != nil {
		mux.Handle("/v1/summary", middleware(NewSummaryHandler(h.Summaries)))
	}
	if h.QueryStats != nil {
		mux.Handle("GET /v1/stats", middleware(NewStatsHandler(h.QueryStats)))
	}
	mux.HandleFunc("/health", HealthHandler("chunkstats"))
	return mux
}

// HealthHandler returns a health check handler for the given service.
func HealthHandler(service string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		fmt.Fprintf(w, `{"status":"healthy","service":"%s"}`, service)
	}
}
