package manifest

import (
	"context"
	"errors"
	"path/filepath"
	"testing"

	"github.com/arkilian/chunkstats/internal/chunk"
	apperrors "github.com/arkilian/chunkstats/internal/errors"
	"github.com/arkilian/chunkstats/internal/statistics"
	"github.com/arkilian/chunkstats/pkg/types"
)

func newTestCatalog(t *testing.T) *SQLiteCatalog {
	t.Helper()
	catalog, err := NewCatalog(filepath.Join(t.TempDir(), "manifest.db"))
	if err != nil {
		t.Fatalf("failed to create catalog: %v", err)
	}
	t.Cleanup(func() { catalog.Close() })
	return catalog
}

// buildChunk creates a sealed INT64 chunk with value v at every timestamp in [start, end] stepping by step.
func buildChunk(t *testing.T, series string, start, end, step, v int64) *chunk.Metadata {
	t.Helper()
	var points []types.Point
	for ts := start; ts <= end; ts += step {
		points = append(points, types.Point{Timestamp: ts, Value: v})
	}
	meta, err := chunk.Build(series, types.Int64, 4, points)
	if err != nil {
		t.Fatalf("failed to build chunk: %v", err)
	}
	return meta
}

func TestCatalog_RegisterAndGetChunk(t *testing.T) {
	catalog := newTestCatalog(t)
	ctx := context.Background()

	meta := buildChunk(t, "d1.s1", 100, 190, 10, 5)
	if err := catalog.RegisterChunk(ctx, meta, "chunks/d1.s1/x.csix", 321); err != nil {
		t.Fatalf("failed to register chunk: %v", err)
	}

	record, err := catalog.GetChunk(ctx, meta.ID)
	if err != nil {
		t.Fatalf("failed to get chunk: %v", err)
	}
	if record.Series != "d1.s1" || record.DataType != types.Int64 {
		t.Errorf("unexpected record: %+v", record)
	}
	if record.StartTime != 100 || record.EndTime != 190 || record.PointCount != 10 {
		t.Errorf("unexpected range: [%d, %d] count %d", record.StartTime, record.EndTime, record.PointCount)
	}
	if record.PageCount != 3 || record.SizeBytes != 321 {
		t.Errorf("unexpected pages/size: %d %d", record.PageCount, record.SizeBytes)
	}
	if record.Statistics.String() != meta.Statistics.String() {
		t.Errorf("statistics mismatch: got %s, want %s", record.Statistics, meta.Statistics)
	}

	_, err = catalog.GetChunk(ctx, "missing")
	if apperrors.GetCode(err) != apperrors.CodeChunkNotFound {
		t.Errorf("expected CHUNK_NOT_FOUND, got %v", err)
	}
}

func TestCatalog_SummaryMergesChunks(t *testing.T) {
	catalog := newTestCatalog(t)
	ctx := context.Background()

	a := buildChunk(t, "d1.s1", 0, 90, 10, 2)
	b := buildChunk(t, "d1.s1", 100, 190, 10, 7)
	for _, m := range []*chunk.Metadata{a, b} {
		if err := catalog.RegisterChunk(ctx, m, "p", 1); err != nil {
			t.Fatalf("failed to register chunk: %v", err)
		}
	}

	summary, err := catalog.SeriesSummary(ctx, "d1.s1")
	if err != nil {
		t.Fatalf("failed to get summary: %v", err)
	}
	if summary.ChunkCount != 2 {
		t.Errorf("expected 2 chunks, got %d", summary.ChunkCount)
	}
	s := summary.Statistics
	if s.Count() != 20 || s.StartTime() != 0 || s.EndTime() != 190 {
		t.Errorf("unexpected summary header: %s", s)
	}
	sum, _ := s.SumLong()
	first, _ := s.FirstValue()
	last, _ := s.LastValue()
	if sum != 90 || first != int64(2) || last != int64(7) {
		t.Errorf("unexpected summary values: sum=%d first=%v last=%v", sum, first, last)
	}

	_, err = catalog.SeriesSummary(ctx, "nope")
	if !IsNotFound(err) {
		t.Errorf("expected not found, got %v", err)
	}
}

func TestCatalog_TypeChangeRejected(t *testing.T) {
	catalog := newTestCatalog(t)
	ctx := context.Background()

	if err := catalog.RegisterChunk(ctx, buildChunk(t, "d1.s1", 0, 10, 1, 1), "p", 1); err != nil {
		t.Fatalf("failed to register chunk: %v", err)
	}

	doubles, err := chunk.Build("d1.s1", types.Double, 4, []types.Point{{Timestamp: 20, Value: 1.5}})
	if err != nil {
		t.Fatalf("failed to build chunk: %v", err)
	}
	err = catalog.RegisterChunk(ctx, doubles, "p", 1)
	if !errors.Is(err, statistics.ErrTypeMismatch) {
		t.Fatalf("expected type mismatch, got %v", err)
	}

	if _, err := catalog.GetChunk(ctx, doubles.ID); err == nil {
		t.Error("rejected chunk must not be stored")
	}
}

func TestCatalog_FindChunks(t *testing.T) {
	catalog := newTestCatalog(t)
	ctx := context.Background()

	ranges := [][2]int64{{0, 99}, {100, 199}, {200, 299}, {50, 150}}
	ids := make([]string, len(ranges))
	for i, r := range ranges {
		m := buildChunk(t, "d1.s1", r[0], r[1], 1, int64(i))
		ids[i] = m.ID
		if err := catalog.RegisterChunk(ctx, m, "p", 1); err != nil {
			t.Fatalf("failed to register chunk: %v", err)
		}
	}
	if err := catalog.RegisterChunk(ctx, buildChunk(t, "d2.s1", 0, 500, 50, 1), "p", 1); err != nil {
		t.Fatalf("failed to register chunk: %v", err)
	}

	tests := []struct {
		name       string
		start, end int64
		want       []string
	}{
		{"all", 0, 1000, []string{ids[0], ids[3], ids[1], ids[2]}},
		{"boundary inclusive", 99, 100, []string{ids[0], ids[3], ids[1]}},
		{"single chunk", 250, 260, []string{ids[2]}},
		{"none", 400, 500, nil},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			records, err := catalog.FindChunks(ctx, "d1.s1", tt.start, tt.end)
			if err != nil {
				t.Fatalf("FindChunks failed: %v", err)
			}
			if len(records) != len(tt.want) {
				t.Fatalf("expected %d chunks, got %d", len(tt.want), len(records))
			}
			for i, r := range records {
				if r.ChunkID != tt.want[i] {
					t.Errorf("position %d: got %s, want %s", i, r.ChunkID, tt.want[i])
				}
			}
		})
	}

	_, err := catalog.FindChunks(ctx, "d1.s1", 10, 5)
	if apperrors.GetCode(err) != apperrors.CodeInvalidTimeRange {
		t.Errorf("expected INVALID_TIME_RANGE, got %v", err)
	}
}

func TestCatalog_DeleteChunkRebuildsSummary(t *testing.T) {
	catalog := newTestCatalog(t)
	ctx := context.Background()

	a := buildChunk(t, "d1.s1", 0, 9, 1, 1)
	b := buildChunk(t, "d1.s1", 10, 19, 1, 100)
	for _, m := range []*chunk.Metadata{a, b} {
		if err := catalog.RegisterChunk(ctx, m, "p", 1); err != nil {
			t.Fatalf("failed to register chunk: %v", err)
		}
	}

	if err := catalog.DeleteChunk(ctx, b.ID); err != nil {
		t.Fatalf("DeleteChunk failed: %v", err)
	}
	summary, err := catalog.SeriesSummary(ctx, "d1.s1")
	if err != nil {
		t.Fatalf("failed to get summary: %v", err)
	}
	hi, _ := summary.Statistics.MaxValue()
	if summary.ChunkCount != 1 || summary.Statistics.EndTime() != 9 || hi != int64(1) {
		t.Errorf("summary not rebuilt: %d chunks, %s", summary.ChunkCount, summary.Statistics)
	}

	if err := catalog.DeleteChunk(ctx, a.ID); err != nil {
		t.Fatalf("DeleteChunk failed: %v", err)
	}
	if _, err := catalog.SeriesSummary(ctx, "d1.s1"); !IsNotFound(err) {
		t.Errorf("expected summary removed, got %v", err)
	}

	if err := catalog.DeleteChunk(ctx, a.ID); apperrors.GetCode(err) != apperrors.CodeChunkNotFound {
		t.Errorf("expected CHUNK_NOT_FOUND, got %v", err)
	}
}

func TestCatalog_RebuildMatchesRegistrationOrder(t *testing.T) {
	ctx := context.Background()

	// Both chunks end at 20; the one registered last supplies the last value.
	late := buildChunk(t, "d1.s1", 10, 20, 5, 2)
	early := buildChunk(t, "d1.s1", 0, 20, 10, 1)
	other := buildChunk(t, "d1.s1", 30, 40, 10, 5)

	catalog := newTestCatalog(t)
	for _, m := range []*chunk.Metadata{late, early, other} {
		if err := catalog.RegisterChunk(ctx, m, "p", 1); err != nil {
			t.Fatalf("failed to register chunk: %v", err)
		}
	}
	if err := catalog.DeleteChunk(ctx, other.ID); err != nil {
		t.Fatalf("DeleteChunk failed: %v", err)
	}
	rebuilt, err := catalog.SeriesSummary(ctx, "d1.s1")
	if err != nil {
		t.Fatalf("failed to get summary: %v", err)
	}

	fresh := newTestCatalog(t)
	for _, m := range []*chunk.Metadata{late, early} {
		if err := fresh.RegisterChunk(ctx, m, "p", 1); err != nil {
			t.Fatalf("failed to register chunk: %v", err)
		}
	}
	incremental, err := fresh.SeriesSummary(ctx, "d1.s1")
	if err != nil {
		t.Fatalf("failed to get summary: %v", err)
	}

	last, _ := rebuilt.Statistics.LastValue()
	if last != int64(1) {
		t.Errorf("expected last value 1, got %v", last)
	}
	if rebuilt.Statistics.String() != incremental.Statistics.String() {
		t.Errorf("rebuild diverged: got %s, want %s", rebuilt.Statistics, incremental.Statistics)
	}
}

func TestCatalog_IdempotencyKey(t *testing.T) {
	catalog := newTestCatalog(t)
	ctx := context.Background()

	first := buildChunk(t, "d1.s1", 0, 9, 1, 1)
	id, err := catalog.RegisterChunkWithIdempotencyKey(ctx, first, "p", 1, "req-1")
	if err != nil {
		t.Fatalf("register failed: %v", err)
	}
	if id != first.ID {
		t.Errorf("expected %s, got %s", first.ID, id)
	}

	retry := buildChunk(t, "d1.s1", 0, 9, 1, 1)
	id, err = catalog.RegisterChunkWithIdempotencyKey(ctx, retry, "p", 1, "req-1")
	if err != nil {
		t.Fatalf("retry failed: %v", err)
	}
	if id != first.ID {
		t.Errorf("retry should return original chunk %s, got %s", first.ID, id)
	}

	summary, err := catalog.SeriesSummary(ctx, "d1.s1")
	if err != nil {
		t.Fatalf("failed to get summary: %v", err)
	}
	if summary.Statistics.Count() != 10 {
		t.Errorf("retry must not double count: %d", summary.Statistics.Count())
	}
}

func TestCatalog_ListSeriesAndBatchLookup(t *testing.T) {
	catalog := newTestCatalog(t)
	ctx := context.Background()

	for _, name := range []string{"b", "a", "c"} {
		if err := catalog.RegisterChunk(ctx, buildChunk(t, name, 0, 3, 1, 1), "p", 1); err != nil {
			t.Fatalf("failed to register chunk: %v", err)
		}
	}

	list, err := catalog.ListSeries(ctx)
	if err != nil {
		t.Fatalf("ListSeries failed: %v", err)
	}
	if len(list) != 3 || list[0].Series != "a" || list[2].Series != "c" {
		t.Errorf("unexpected series list: %v", list)
	}

	found, err := catalog.SeriesSummaries(ctx, []string{"a", "c", "zzz"})
	if err != nil {
		t.Fatalf("SeriesSummaries failed: %v", err)
	}
	if len(found) != 2 || found["a"] == nil || found["c"] == nil {
		t.Errorf("unexpected batch result: %v", found)
	}

	count, err := catalog.GetChunkCount(ctx)
	if err != nil || count != 3 {
		t.Errorf("expected 3 chunks, got %d (%v)", count, err)
	}
}

func TestOpenReader(t *testing.T) {
	path := filepath.Join(t.TempDir(), "manifest.db")
	catalog, err := NewCatalog(path)
	if err != nil {
		t.Fatalf("failed to create catalog: %v", err)
	}
	ctx := context.Background()
	meta := buildChunk(t, "cpu", 0, 9, 1, 2)
	if err := catalog.RegisterChunk(ctx, meta, "chunks/cpu/a.csix", 10); err != nil {
		t.Fatalf("failed to register chunk: %v", err)
	}
	defer catalog.Close()

	reader, err := OpenReader(path)
	if err != nil {
		t.Fatalf("failed to open reader: %v", err)
	}
	defer reader.Close()

	summary, err := reader.SeriesSummary(ctx, "cpu")
	if err != nil {
		t.Fatalf("SeriesSummary failed: %v", err)
	}
	if summary.ChunkCount != 1 || summary.Statistics.Count() != 10 {
		t.Errorf("unexpected summary: chunks=%d count=%d", summary.ChunkCount, summary.Statistics.Count())
	}
	count, err := reader.GetChunkCount(ctx)
	if err != nil || count != 1 {
		t.Errorf("GetChunkCount = %d, %v", count, err)
	}

	if _, err := OpenReader(filepath.Join(t.TempDir(), "missing.db")); err == nil {
		t.Error("expected error opening missing manifest")
	}
}
