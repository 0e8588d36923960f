package manifest

import (
	"bytes"
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log"
	"sync"
	"time"

	_ "github.com/mattn/go-sqlite3"

	"github.com/arkilian/chunkstats/internal/chunk"
	apperrors "github.com/arkilian/chunkstats/internal/errors"
	"github.com/arkilian/chunkstats/internal/rwio"
	"github.com/arkilian/chunkstats/internal/statistics"
	"github.com/arkilian/chunkstats/pkg/types"
)

// Catalog manages chunk metadata and series summaries in manifest.db.
type Catalog interface {
	// RegisterChunk records a sealed chunk and merges its statistics into the
	// series summary, atomically.
	RegisterChunk(ctx context.Context, meta *chunk.Metadata, objectPath string, sizeBytes int64) error

	// RegisterChunkWithIdempotencyKey is RegisterChunk with client retry support.
	// If the idempotency key already exists, returns the existing chunk ID without error.
	RegisterChunkWithIdempotencyKey(ctx context.Context, meta *chunk.Metadata, objectPath string, sizeBytes int64, idempotencyKey string) (string, error)

	// GetChunk retrieves a single chunk by ID.
	GetChunk(ctx context.Context, chunkID string) (*ChunkRecord, error)

	// FindChunks returns the chunks of series overlapping [start, end], ordered
	// by start time then chunk ID.
	FindChunks(ctx context.Context, series string, start, end int64) ([]*ChunkRecord, error)

	// SeriesSummary returns the merged statistics of every chunk of series.
	SeriesSummary(ctx context.Context, series string) (*SeriesSummary, error)

	// ListSeries returns every series summary ordered by name.
	ListSeries(ctx context.Context) ([]*SeriesSummary, error)

	// DeleteChunk removes a chunk and rebuilds its series summary.
	DeleteChunk(ctx context.Context, chunkID string) error

	// RebuildSummary recomputes a series summary from its remaining chunks.
	RebuildSummary(ctx context.Context, series string) error

	// Close closes the catalog database connection.
	Close() error
}

// ChunkRecord represents a chunk in the manifest.
type ChunkRecord struct {
	ChunkID    string
	Series     string
	DataType   types.DataType
	ObjectPath string
	StartTime  int64
	EndTime    int64
	PointCount int64
	PageCount  int
	SizeBytes  int64
	Statistics statistics.Statistics
	CreatedAt  time.Time
}

// SeriesSummary is the series-level aggregate of chunk statistics.
type SeriesSummary struct {
	Series     string
	DataType   types.DataType
	ChunkCount int64
	Statistics statistics.Statistics
	UpdatedAt  time.Time
}

// Thresholds at which a warning about catalog size is logged.
var chunkCountThresholds = []int64{10_000_000, 5_000_000, 1_000_000}

// SQLiteCatalog implements Catalog using SQLite.
type SQLiteCatalog struct {
	db     *sql.DB // Write connection (single writer)
	readDB *sql.DB // Read connection pool (concurrent readers)
	dbPath string
	mu     sync.Mutex // Write-only lock (reads don't need this)

	insertChunkStmt *sql.Stmt
}

// NewCatalog creates a new SQLite-based catalog.
func NewCatalog(dbPath string) (*SQLiteCatalog, error) {
	// Write connection: single writer with WAL mode
	db, err := sql.Open("sqlite3", dbPath+"?_journal_mode=WAL&_busy_timeout=5000")
	if err != nil {
		return nil, fmt.Errorf("manifest: failed to open database: %w", err)
	}
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	// Read connection pool: concurrent readers
	readDB, err := sql.Open("sqlite3", dbPath+"?_journal_mode=WAL&_busy_timeout=5000&mode=ro")
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("manifest: failed to open read database: %w", err)
	}
	readDB.SetMaxOpenConns(4)
	readDB.SetMaxIdleConns(4)
	readDB.SetConnMaxLifetime(5 * time.Minute)

	catalog := &SQLiteCatalog{
		db:     db,
		readDB: readDB,
		dbPath: dbPath,
	}

	if err := catalog.initSchema(); err != nil {
		readDB.Close()
		db.Close()
		return nil, fmt.Errorf("manifest: failed to initialize schema: %w", err)
	}

	insertStmt, err := db.Prepare(`
		INSERT INTO chunks (
			chunk_id, series, data_type, object_path,
			start_time, end_time, point_count, page_count,
			size_bytes, statistics, created_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`)
	if err != nil {
		readDB.Close()
		db.Close()
		return nil, fmt.Errorf("manifest: failed to prepare insert statement: %w", err)
	}
	catalog.insertChunkStmt = insertStmt

	return catalog, nil
}

// initSchema creates all required tables and indexes.
func (c *SQLiteCatalog) initSchema() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	for _, stmt := range AllSchemaSQL() {
		if _, err := c.db.Exec(stmt); err != nil {
			return fmt.Errorf("failed to execute schema statement: %w", err)
		}
	}
	return nil
}

// RegisterChunk records a sealed chunk and merges its statistics into the series summary.
func (c *SQLiteCatalog) RegisterChunk(ctx context.Context, meta *chunk.Metadata, objectPath string, sizeBytes int64) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	tx, err := c.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("manifest: failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	if err := c.registerChunkTx(ctx, tx, meta, objectPath, sizeBytes); err != nil {
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("manifest: failed to commit transaction: %w", err)
	}

	c.logChunkCountThreshold(ctx)
	return nil
}

// RegisterChunkWithIdempotencyKey records a chunk unless the key was seen before.
func (c *SQLiteCatalog) RegisterChunkWithIdempotencyKey(ctx context.Context, meta *chunk.Metadata, objectPath string, sizeBytes int64, idempotencyKey string) (string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	// Check if idempotency key already exists
	var existingChunkID string
	err := c.db.QueryRowContext(ctx,
		"SELECT chunk_id FROM idempotency_keys WHERE key = ?",
		idempotencyKey,
	).Scan(&existingChunkID)
	if err == nil {
		return existingChunkID, nil
	}
	if !errors.Is(err, sql.ErrNoRows) {
		return "", fmt.Errorf("manifest: failed to check idempotency key: %w", err)
	}

	tx, err := c.db.BeginTx(ctx, nil)
	if err != nil {
		return "", fmt.Errorf("manifest: failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	if err := c.registerChunkTx(ctx, tx, meta, objectPath, sizeBytes); err != nil {
		return "", err
	}

	_, err = tx.ExecContext(ctx,
		"INSERT INTO idempotency_keys (key, chunk_id, created_at) VALUES (?, ?, ?)",
		idempotencyKey, meta.ID, time.Now().Unix(),
	)
	if err != nil {
		return "", fmt.Errorf("manifest: failed to insert idempotency key: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return "", fmt.Errorf("manifest: failed to commit transaction: %w", err)
	}
	c.logChunkCountThreshold(ctx)
	return meta.ID, nil
}

// registerChunkTx inserts the chunk row and folds its statistics into the
// series summary (must be called with lock held).
func (c *SQLiteCatalog) registerChunkTx(ctx context.Context, tx *sql.Tx, meta *chunk.Metadata, objectPath string, sizeBytes int64) error {
	if meta == nil || meta.Statistics == nil {
		return apperrors.NewValidationError(apperrors.CodeEmptyBatch, "chunk metadata has no statistics")
	}
	if meta.Statistics.IsEmpty() {
		return apperrors.NewValidationError(apperrors.CodeEmptyBatch,
			fmt.Sprintf("chunk %s has empty statistics", meta.ID))
	}

	summary, err := c.loadSummary(ctx, tx, meta.Series)
	if err != nil && !IsNotFound(err) {
		return err
	}
	if summary != nil && summary.DataType != meta.DataType {
		return &statistics.TypeMismatchError{Type: summary.DataType, Got: meta.DataType.String()}
	}

	blob, err := encodeStatistics(meta.Statistics)
	if err != nil {
		return err
	}
	s := meta.Statistics
	_, err = tx.StmtContext(ctx, c.insertChunkStmt).ExecContext(ctx,
		meta.ID, meta.Series, int(meta.DataType), objectPath,
		s.StartTime(), s.EndTime(), s.Count(), len(meta.Pages),
		sizeBytes, blob, meta.CreatedAt.UnixNano(),
	)
	if err != nil {
		return fmt.Errorf("manifest: failed to insert chunk: %w", err)
	}

	if summary == nil {
		summary = &SeriesSummary{Series: meta.Series, DataType: meta.DataType}
		if summary.Statistics, err = statistics.New(meta.DataType); err != nil {
			return err
		}
	}
	if err := summary.Statistics.Merge(meta.Statistics); err != nil {
		return fmt.Errorf("manifest: failed to merge chunk into series summary: %w", err)
	}
	summary.ChunkCount++
	return c.storeSummary(ctx, tx, summary)
}

// GetChunk retrieves a single chunk by ID.
func (c *SQLiteCatalog) GetChunk(ctx context.Context, chunkID string) (*ChunkRecord, error) {
	row := c.readDB.QueryRowContext(ctx, `SELECT `+chunkColumns+` FROM chunks WHERE chunk_id = ?`, chunkID)
	record, err := scanChunk(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, apperrors.NewManifestError(apperrors.CodeChunkNotFound,
			fmt.Sprintf("chunk %s not found", chunkID), nil)
	}
	return record, err
}

// FindChunks returns the chunks of series whose time range overlaps [start, end].
func (c *SQLiteCatalog) FindChunks(ctx context.Context, series string, start, end int64) ([]*ChunkRecord, error) {
	if start > end {
		return nil, apperrors.NewQueryError(apperrors.CodeInvalidTimeRange,
			fmt.Sprintf("start %d is after end %d", start, end))
	}

	rows, err := c.readDB.QueryContext(ctx,
		`SELECT `+chunkColumns+` FROM chunks
		 WHERE series = ? AND start_time <= ? AND end_time >= ?
		 ORDER BY start_time, chunk_id`,
		series, end, start,
	)
	if err != nil {
		return nil, fmt.Errorf("manifest: failed to query chunks: %w", err)
	}
	defer rows.Close()

	var records []*ChunkRecord
	for rows.Next() {
		record, err := scanChunk(rows)
		if err != nil {
			return nil, err
		}
		records = append(records, record)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("manifest: failed to iterate chunks: %w", err)
	}
	return records, nil
}

// DeleteChunk removes a chunk and rebuilds the summary of its series in the
// same transaction.
func (c *SQLiteCatalog) DeleteChunk(ctx context.Context, chunkID string) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	tx, err := c.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("manifest: failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	var series string
	err = tx.QueryRowContext(ctx, "SELECT series FROM chunks WHERE chunk_id = ?", chunkID).Scan(&series)
	if errors.Is(err, sql.ErrNoRows) {
		return apperrors.NewManifestError(apperrors.CodeChunkNotFound,
			fmt.Sprintf("chunk %s not found", chunkID), nil)
	}
	if err != nil {
		return fmt.Errorf("manifest: failed to look up chunk: %w", err)
	}

	if _, err := tx.ExecContext(ctx, "DELETE FROM chunks WHERE chunk_id = ?", chunkID); err != nil {
		return fmt.Errorf("manifest: failed to delete chunk: %w", err)
	}
	if _, err := tx.ExecContext(ctx, "DELETE FROM idempotency_keys WHERE chunk_id = ?", chunkID); err != nil {
		return fmt.Errorf("manifest: failed to delete idempotency keys: %w", err)
	}
	if err := c.rebuildSummaryTx(ctx, tx, series); err != nil {
		return err
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("manifest: failed to commit transaction: %w", err)
	}
	log.Printf("manifest: deleted chunk %s from series %s", chunkID, series)
	return nil
}

// GetChunkCount returns the total number of registered chunks.
func (c *SQLiteCatalog) GetChunkCount(ctx context.Context) (int64, error) {
	var count int64
	if err := c.readDB.QueryRowContext(ctx, "SELECT COUNT(*) FROM chunks").Scan(&count); err != nil {
		return 0, fmt.Errorf("manifest: failed to count chunks: %w", err)
	}
	return count, nil
}

// RunAnalyze updates SQLite's query planner statistics.
func (c *SQLiteCatalog) RunAnalyze(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if _, err := c.db.ExecContext(ctx, AnalyzeSQL); err != nil {
		return fmt.Errorf("manifest: failed to run ANALYZE: %w", err)
	}
	return nil
}

// DeleteExpiredIdempotencyKeys removes idempotency keys older than ttl.
func (c *SQLiteCatalog) DeleteExpiredIdempotencyKeys(ctx context.Context, ttl time.Duration) (int64, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	cutoff := time.Now().Add(-ttl).Unix()
	res, err := c.db.ExecContext(ctx, "DELETE FROM idempotency_keys WHERE created_at < ?", cutoff)
	if err != nil {
		return 0, fmt.Errorf("manifest: failed to delete expired idempotency keys: %w", err)
	}
	return res.RowsAffected()
}

// Close closes the catalog database connection.
func (c *SQLiteCatalog) Close() error {
	if c.insertChunkStmt != nil {
		c.insertChunkStmt.Close()
	}
	// Close read connection first, then write connection
	if err := c.readDB.Close(); err != nil {
		if c.db != nil {
			c.db.Close()
		}
		return err
	}
	if c.db == nil {
		return nil
	}
	return c.db.Close()
}

// logChunkCountThreshold logs a warning when the chunk count crosses a threshold.
func (c *SQLiteCatalog) logChunkCountThreshold(ctx context.Context) {
	var count int64
	if err := c.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM chunks").Scan(&count); err != nil {
		return // best-effort; don't fail the write path
	}
	for _, threshold := range chunkCountThresholds {
		if count == threshold {
			log.Printf("[WARN] manifest: chunk count has reached %d", count)
			return
		}
	}
}

const chunkColumns = `chunk_id, series, data_type, object_path, start_time, end_time,
	point_count, page_count, size_bytes, statistics, created_at`

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanChunk(row rowScanner) (*ChunkRecord, error) {
	var r ChunkRecord
	var dataType int
	var blob []byte
	var createdAt int64

	err := row.Scan(&r.ChunkID, &r.Series, &dataType, &r.ObjectPath, &r.StartTime, &r.EndTime,
		&r.PointCount, &r.PageCount, &r.SizeBytes, &blob, &createdAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, err
		}
		return nil, fmt.Errorf("manifest: failed to scan chunk: %w", err)
	}

	r.DataType = types.DataType(dataType)
	r.CreatedAt = time.Unix(0, createdAt).UTC()
	if r.Statistics, err = decodeStatistics(blob, r.DataType); err != nil {
		return nil, fmt.Errorf("manifest: chunk %s: %w", r.ChunkID, err)
	}
	return &r, nil
}

func encodeStatistics(s statistics.Statistics) ([]byte, error) {
	var buf bytes.Buffer
	if _, err := statistics.Serialize(&buf, s); err != nil {
		return nil, fmt.Errorf("manifest: failed to serialize statistics: %w", err)
	}
	return buf.Bytes(), nil
}

func decodeStatistics(blob []byte, dt types.DataType) (statistics.Statistics, error) {
	s, err := statistics.ReadBuffer(rwio.NewBuffer(blob), dt)
	if err != nil {
		return nil, apperrors.NewManifestError(apperrors.CodeCorruptionDetected, "stored statistics do not decode", err)
	}
	return s, nil
}
