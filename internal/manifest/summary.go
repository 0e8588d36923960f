package manifest

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	apperrors "github.com/arkilian/chunkstats/internal/errors"
	"github.com/arkilian/chunkstats/internal/statistics"
	"github.com/arkilian/chunkstats/pkg/types"
)

// queryer is satisfied by *sql.DB and *sql.Tx.
type queryer interface {
	QueryRowContext(ctx context.Context, query string, args ...interface{}) *sql.Row
	QueryContext(ctx context.Context, query string, args ...interface{}) (*sql.Rows, error)
}

// SeriesSummary returns the merged statistics of every chunk of series.
func (c *SQLiteCatalog) SeriesSummary(ctx context.Context, series string) (*SeriesSummary, error) {
	return c.loadSummary(ctx, c.readDB, series)
}

// ListSeries returns every series summary ordered by name.
func (c *SQLiteCatalog) ListSeries(ctx context.Context) ([]*SeriesSummary, error) {
	rows, err := c.readDB.QueryContext(ctx,
		`SELECT series, data_type, chunk_count, statistics, updated_at
		 FROM series_summaries ORDER BY series`)
	if err != nil {
		return nil, fmt.Errorf("manifest: failed to query series summaries: %w", err)
	}
	defer rows.Close()

	var out []*SeriesSummary
	for rows.Next() {
		s, err := scanSummary(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, s)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("manifest: failed to iterate series summaries: %w", err)
	}
	return out, nil
}

// SeriesSummaries retrieves the summaries of several series at once.
// Returns a map of series -> summary. Unknown series are omitted.
func (c *SQLiteCatalog) SeriesSummaries(ctx context.Context, series []string) (map[string]*SeriesSummary, error) {
	if len(series) == 0 {
		return nil, nil
	}

	result := make(map[string]*SeriesSummary, len(series))

	// Query in batches to avoid SQLite variable limit
	const batchSize = 500
	for i := 0; i < len(series); i += batchSize {
		end := i + batchSize
		if end > len(series) {
			end = len(series)
		}
		batch := series[i:end]

		args := make([]interface{}, len(batch))
		for j, name := range batch {
			args[j] = name
		}
		placeholders := strings.TrimSuffix(strings.Repeat("?,", len(batch)), ",")

		query := fmt.Sprintf(
			`SELECT series, data_type, chunk_count, statistics, updated_at
			 FROM series_summaries WHERE series IN (%s)`, placeholders)

		rows, err := c.readDB.QueryContext(ctx, query, args...)
		if err != nil {
			return nil, fmt.Errorf("manifest: failed to query series summaries: %w", err)
		}
		for rows.Next() {
			s, err := scanSummary(rows)
			if err != nil {
				rows.Close()
				return nil, err
			}
			result[s.Series] = s
		}
		err = rows.Err()
		rows.Close()
		if err != nil {
			return nil, fmt.Errorf("manifest: failed to iterate series summaries: %w", err)
		}
	}
	return result, nil
}

// RebuildSummary recomputes the summary of series by merging its remaining
// chunks in registration order, the same order RegisterChunk folds them in.
// A series with no chunks loses its summary.
func (c *SQLiteCatalog) RebuildSummary(ctx context.Context, series string) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	tx, err := c.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("manifest: failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	if err := c.rebuildSummaryTx(ctx, tx, series); err != nil {
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("manifest: failed to commit transaction: %w", err)
	}
	return nil
}

func (c *SQLiteCatalog) rebuildSummaryTx(ctx context.Context, tx *sql.Tx, series string) error {
	rows, err := tx.QueryContext(ctx,
		`SELECT data_type, statistics FROM chunks WHERE series = ? ORDER BY rowid`,
		series)
	if err != nil {
		return fmt.Errorf("manifest: failed to query chunks for rebuild: %w", err)
	}

	var (
		dt    types.DataType
		parts []statistics.Statistics
	)
	for rows.Next() {
		var tag int
		var blob []byte
		if err := rows.Scan(&tag, &blob); err != nil {
			rows.Close()
			return fmt.Errorf("manifest: failed to scan chunk statistics: %w", err)
		}
		dt = types.DataType(tag)
		s, err := decodeStatistics(blob, dt)
		if err != nil {
			rows.Close()
			return err
		}
		parts = append(parts, s)
	}
	err = rows.Err()
	rows.Close()
	if err != nil {
		return fmt.Errorf("manifest: failed to iterate chunks for rebuild: %w", err)
	}

	if len(parts) == 0 {
		if _, err := tx.ExecContext(ctx, "DELETE FROM series_summaries WHERE series = ?", series); err != nil {
			return fmt.Errorf("manifest: failed to delete series summary: %w", err)
		}
		return nil
	}

	merged, err := statistics.MergeAll(dt, parts...)
	if err != nil {
		return fmt.Errorf("manifest: failed to merge chunks of %s: %w", series, err)
	}
	return c.storeSummary(ctx, tx, &SeriesSummary{
		Series:     series,
		DataType:   dt,
		ChunkCount: int64(len(parts)),
		Statistics: merged,
	})
}

func (c *SQLiteCatalog) loadSummary(ctx context.Context, q queryer, series string) (*SeriesSummary, error) {
	row := q.QueryRowContext(ctx,
		`SELECT series, data_type, chunk_count, statistics, updated_at
		 FROM series_summaries WHERE series = ?`, series)
	s, err := scanSummary(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, apperrors.NewManifestError(apperrors.CodeSeriesNotFound,
			fmt.Sprintf("series %s not found", series), nil)
	}
	return s, err
}

func (c *SQLiteCatalog) storeSummary(ctx context.Context, tx *sql.Tx, s *SeriesSummary) error {
	blob, err := encodeStatistics(s.Statistics)
	if err != nil {
		return err
	}
	s.UpdatedAt = time.Now().UTC()
	_, err = tx.ExecContext(ctx,
		`INSERT OR REPLACE INTO series_summaries (series, data_type, chunk_count, statistics, updated_at)
		 VALUES (?, ?, ?, ?, ?)`,
		s.Series, int(s.DataType), s.ChunkCount, blob, s.UpdatedAt.UnixNano(),
	)
	if err != nil {
		return fmt.Errorf("manifest: failed to store series summary: %w", err)
	}
	return nil
}

func scanSummary(row rowScanner) (*SeriesSummary, error) {
	var s SeriesSummary
	var dataType int
	var blob []byte
	var updatedAt int64

	if err := row.Scan(&s.Series, &dataType, &s.ChunkCount, &blob, &updatedAt); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, err
		}
		return nil, fmt.Errorf("manifest: failed to scan series summary: %w", err)
	}

	s.DataType = types.DataType(dataType)
	s.UpdatedAt = time.Unix(0, updatedAt).UTC()
	stats, err := decodeStatistics(blob, s.DataType)
	if err != nil {
		return nil, fmt.Errorf("manifest: series %s: %w", s.Series, err)
	}
	s.Statistics = stats
	return &s, nil
}

// IsNotFound reports whether err is a manifest not-found error.
func IsNotFound(err error) bool {
	switch apperrors.GetCode(err) {
	case apperrors.CodeChunkNotFound, apperrors.CodeSeriesNotFound:
		return true
	}
	return false
}
