package manifest

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"time"
)

// CatalogReader is the read-only view of the manifest used by tools that
// must not take the single writer connection.
// SQLiteCatalog implements this interface.
type CatalogReader interface {
	// GetChunk retrieves a single chunk by ID.
	GetChunk(ctx context.Context, chunkID string) (*ChunkRecord, error)

	// FindChunks returns the chunks of series overlapping [start, end].
	FindChunks(ctx context.Context, series string, start, end int64) ([]*ChunkRecord, error)

	// SeriesSummary returns the summary of one series.
	SeriesSummary(ctx context.Context, series string) (*SeriesSummary, error)

	// SeriesSummaries returns the summaries of the named series. Missing series are omitted.
	SeriesSummaries(ctx context.Context, series []string) (map[string]*SeriesSummary, error)

	// ListSeries returns every series summary ordered by name.
	ListSeries(ctx context.Context) ([]*SeriesSummary, error)

	// GetChunkCount returns the number of registered chunks.
	GetChunkCount(ctx context.Context) (int64, error)

	Close() error
}

var _ CatalogReader = (*SQLiteCatalog)(nil)

// OpenReader opens an existing manifest database read-only. Unlike
// NewCatalog it never creates the file or the schema, so it can run next
// to a live server.
func OpenReader(dbPath string) (CatalogReader, error) {
	if _, err := os.Stat(dbPath); err != nil {
		return nil, fmt.Errorf("manifest: failed to open database: %w", err)
	}

	readDB, err := sql.Open("sqlite3", dbPath+"?_journal_mode=WAL&_busy_timeout=5000&mode=ro")
	if err != nil {
		return nil, fmt.Errorf("manifest: failed to open read database: %w", err)
	}
	readDB.SetMaxOpenConns(2)
	readDB.SetConnMaxLifetime(5 * time.Minute)

	if err := readDB.Ping(); err != nil {
		readDB.Close()
		return nil, fmt.Errorf("manifest: failed to open read database: %w", err)
	}

	return &SQLiteCatalog{readDB: readDB, dbPath: dbPath}, nil
}
