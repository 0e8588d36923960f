// Package manifest provides the catalog of sealed chunks and the per-series
// statistics summaries derived from them.
package manifest

// The manifest is a SQLite database (manifest.db). It is the source of truth
// for which chunks exist, where their index files live and what their
// statistics are.

// CreateChunksTableSQL creates the chunks table. The statistics column holds
// the serialized statistics envelope of the whole chunk; the time range and
// point count are copied out of it so range lookups can use an index.
const CreateChunksTableSQL = `
CREATE TABLE IF NOT EXISTS chunks (
    chunk_id TEXT PRIMARY KEY,
    series TEXT NOT NULL,
    data_type INTEGER NOT NULL,
    object_path TEXT NOT NULL,
    start_time INTEGER NOT NULL,
    end_time INTEGER NOT NULL,
    point_count INTEGER NOT NULL,
    page_count INTEGER NOT NULL,
    size_bytes INTEGER NOT NULL,
    statistics BLOB NOT NULL,
    created_at INTEGER NOT NULL
)`

// CreateChunksIndexesSQL creates indexes for range lookups per series.
var CreateChunksIndexesSQL = []string{
	// Index for time range lookups within a series
	`CREATE INDEX IF NOT EXISTS idx_chunks_series_time ON chunks(series, start_time, end_time)`,

	// Index for listing recent chunks
	`CREATE INDEX IF NOT EXISTS idx_chunks_created ON chunks(created_at)`,
}

// CreateSeriesSummariesTableSQL creates the series summaries table.
// Each row holds the merge of the statistics of every chunk of the series.
const CreateSeriesSummariesTableSQL = `
CREATE TABLE IF NOT EXISTS series_summaries (
    series TEXT PRIMARY KEY,
    data_type INTEGER NOT NULL,
    chunk_count INTEGER NOT NULL,
    statistics BLOB NOT NULL,
    updated_at INTEGER NOT NULL
)`

// CreateIdempotencyKeysTableSQL creates the idempotency keys table.
// This table tracks idempotency keys to support client retry with deduplication.
const CreateIdempotencyKeysTableSQL = `
CREATE TABLE IF NOT EXISTS idempotency_keys (
    key TEXT PRIMARY KEY,
    chunk_id TEXT NOT NULL,
    created_at INTEGER NOT NULL
)`

// CreateIdempotencyKeysIndexSQL creates an index for TTL-based cleanup of idempotency keys.
const CreateIdempotencyKeysIndexSQL = `
CREATE INDEX IF NOT EXISTS idx_idempotency_created ON idempotency_keys(created_at)`

// AnalyzeSQL runs ANALYZE to keep the SQLite query planner informed about index statistics.
const AnalyzeSQL = `ANALYZE`

// AllSchemaSQL returns all SQL statements needed to initialize the manifest.
func AllSchemaSQL() []string {
	statements := []string{
		CreateChunksTableSQL,
		CreateSeriesSummariesTableSQL,
		CreateIdempotencyKeysTableSQL,
		CreateIdempotencyKeysIndexSQL,
	}
	statements = append(statements, CreateChunksIndexesSQL...)
	return statements
}
