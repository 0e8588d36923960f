// Package query answers time-range questions about series from chunk
// statistics: pruning chunks that cannot match a predicate and computing
// aggregates without reading point data.
package query

import (
	"context"

	"github.com/arkilian/chunkstats/internal/manifest"
)

// Metadata is the read-only catalog view used by the pruner and pushdown.
// *manifest.SQLiteCatalog implements it.
type Metadata interface {
	// FindChunks returns the chunks of series overlapping [start, end],
	// ordered by start time then chunk ID.
	FindChunks(ctx context.Context, series string, start, end int64) ([]*manifest.ChunkRecord, error)

	// SeriesSummary returns the merged statistics of the whole series.
	SeriesSummary(ctx context.Context, series string) (*manifest.SeriesSummary, error)
}
