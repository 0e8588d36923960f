package query

import (
	"context"
	"fmt"

	"github.com/weaviate/sroar"

	"github.com/arkilian/chunkstats/internal/manifest"
	"github.com/arkilian/chunkstats/internal/observability"
)

// PruneResult contains the chunks of a series considered by a pruning pass
// and which of them survived.
type PruneResult struct {
	// Chunks are all chunks overlapping the time range, in manifest order.
	Chunks []*manifest.ChunkRecord

	// Survivors holds the ordinals (indexes into Chunks) that may match.
	Survivors *sroar.Bitmap

	// PruningRatio is the ratio of pruned chunks (0.0 to 1.0).
	PruningRatio float64
}

// Kept returns the surviving chunks in manifest order.
func (r *PruneResult) Kept() []*manifest.ChunkRecord {
	kept := make([]*manifest.ChunkRecord, 0, r.Survivors.GetCardinality())
	for _, ord := range r.Survivors.ToArray() {
		kept = append(kept, r.Chunks[ord])
	}
	return kept
}

// Pruner removes chunks whose statistics prove they cannot match a predicate.
type Pruner struct {
	meta  Metadata
	stats *observability.QueryStats
}

// NewPruner creates a new pruner. stats may be nil.
func NewPruner(meta Metadata, stats *observability.QueryStats) *Pruner {
	return &Pruner{meta: meta, stats: stats}
}

// Prune returns the chunks of series overlapping [start, end] and the subset
// that may contain a value satisfying pred. A nil pred keeps every chunk.
func (p *Pruner) Prune(ctx context.Context, series string, start, end int64, pred *Predicate) (*PruneResult, error) {
	if pred != nil {
		if err := pred.Validate(); err != nil {
			return nil, err
		}
	}

	chunks, err := p.meta.FindChunks(ctx, series, start, end)
	if err != nil {
		return nil, fmt.Errorf("query: failed to find chunks: %w", err)
	}

	survivors := sroar.NewBitmap()
	for i, c := range chunks {
		keep := true
		if pred != nil {
			keep, err = MayMatch(c.Statistics, *pred)
			if err != nil {
				return nil, fmt.Errorf("query: chunk %s: %w", c.ChunkID, err)
			}
		}
		if keep {
			survivors.Set(uint64(i))
		}
	}

	result := &PruneResult{Chunks: chunks, Survivors: survivors}
	if len(chunks) > 0 {
		result.PruningRatio = float64(len(chunks)-survivors.GetCardinality()) / float64(len(chunks))
	}

	if p.stats != nil {
		op := ""
		if pred != nil {
			op = pred.Operator
		}
		p.stats.RecordPrune(series, op, len(chunks), survivors.GetCardinality())
	}
	return result, nil
}
