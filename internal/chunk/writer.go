// Package chunk builds chunks for a single series column. Points are grouped
// into fixed-size pages; every page carries its own statistics, and the chunk
// statistics are the merge of its pages.
package chunk

import (
	"bytes"
	"fmt"
	"sort"
	"time"

	"github.com/google/uuid"

	apperrors "github.com/arkilian/chunkstats/internal/errors"
	"github.com/arkilian/chunkstats/internal/statistics"
	"github.com/arkilian/chunkstats/pkg/types"
)

// DefaultPointsPerPage is the page size used when none is configured.
const DefaultPointsPerPage = 1024

// Metadata describes a sealed chunk.
type Metadata struct {
	ID         string
	Series     string
	DataType   types.DataType
	Statistics statistics.Statistics
	Pages      []statistics.Statistics
	CreatedAt  time.Time
}

// Writer accumulates the points of one series column into pages.
// A Writer is not safe for concurrent use.
type Writer struct {
	series        string
	dataType      types.DataType
	pointsPerPage int

	page     statistics.Statistics
	pages    []statistics.Statistics
	lastTime int64
	written  bool
	sealed   bool
}

// NewWriter creates a writer for series with values of type dt.
func NewWriter(series string, dt types.DataType, pointsPerPage int) (*Writer, error) {
	if series == "" {
		return nil, apperrors.NewValidationError(apperrors.CodeInvalidSeries, "series name is required")
	}
	if pointsPerPage <= 0 {
		pointsPerPage = DefaultPointsPerPage
	}
	page, err := statistics.New(dt)
	if err != nil {
		return nil, err
	}
	return &Writer{
		series:        series,
		dataType:      dt,
		pointsPerPage: pointsPerPage,
		page:          page,
	}, nil
}

// Write appends one point. v must already have the Go type of the column;
// see Coerce. Timestamps must not decrease.
func (w *Writer) Write(t int64, v interface{}) error {
	if w.sealed {
		return fmt.Errorf("chunk: write to sealed chunk %q", w.series)
	}
	if w.written && t < w.lastTime {
		return apperrors.NewValidationError(apperrors.CodeOutOfOrder,
			fmt.Sprintf("timestamp %d written after %d in series %q", t, w.lastTime, w.series))
	}
	if err := w.page.UpdateValue(t, v); err != nil {
		return fmt.Errorf("chunk: failed to record point at %d: %w", t, err)
	}
	w.lastTime, w.written = t, true
	if w.page.Count() >= int64(w.pointsPerPage) {
		return w.sealPage()
	}
	return nil
}

// WritePoints appends points in order. They must already be sorted by timestamp.
func (w *Writer) WritePoints(points []types.Point) error {
	for _, p := range points {
		if err := w.Write(p.Timestamp, p.Value); err != nil {
			return err
		}
	}
	return nil
}

// PageCount returns the number of sealed pages.
func (w *Writer) PageCount() int {
	return len(w.pages)
}

// sealPage freezes the open page. The frozen copy is decoded from the page's
// serialized form, so later writes can never reach it.
func (w *Writer) sealPage() error {
	if w.page.IsEmpty() {
		return nil
	}

	var buf bytes.Buffer
	if _, err := statistics.Serialize(&buf, w.page); err != nil {
		return fmt.Errorf("chunk: failed to serialize page statistics: %w", err)
	}
	frozen, err := statistics.Read(&buf, w.dataType)
	if err != nil {
		return fmt.Errorf("chunk: failed to freeze page statistics: %w", err)
	}
	w.pages = append(w.pages, frozen)

	next, err := statistics.New(w.dataType)
	if err != nil {
		return err
	}
	w.page = next
	return nil
}

// Seal closes the open page and returns the chunk metadata. The writer accepts
// no further points.
func (w *Writer) Seal() (*Metadata, error) {
	if w.sealed {
		return nil, fmt.Errorf("chunk: chunk %q already sealed", w.series)
	}
	if err := w.sealPage(); err != nil {
		return nil, err
	}
	if len(w.pages) == 0 {
		return nil, apperrors.NewValidationError(apperrors.CodeEmptyBatch,
			fmt.Sprintf("no points written to series %q", w.series))
	}

	merged, err := statistics.MergeAll(w.dataType, w.pages...)
	if err != nil {
		return nil, fmt.Errorf("chunk: failed to merge page statistics: %w", err)
	}

	id, err := uuid.NewV7()
	if err != nil {
		return nil, fmt.Errorf("chunk: failed to generate chunk ID: %w", err)
	}

	w.sealed = true
	return &Metadata{
		ID:         id.String(),
		Series:     w.series,
		DataType:   w.dataType,
		Statistics: merged,
		Pages:      w.pages,
		CreatedAt:  time.Now().UTC(),
	}, nil
}

// Build is a convenience that validates points, writes them and seals the chunk.
// Points may arrive in any order; they are sorted by timestamp, and points
// sharing a timestamp keep their input order.
func Build(series string, dt types.DataType, pointsPerPage int, points []types.Point) (*Metadata, error) {
	if len(points) == 0 {
		return nil, apperrors.NewValidationError(apperrors.CodeEmptyBatch, "cannot build chunk with no points")
	}
	points = append([]types.Point(nil), points...)
	if err := Validate(points, dt); err != nil {
		return nil, apperrors.NewValidationError(apperrors.CodeInvalidValue, err.Error())
	}
	sort.SliceStable(points, func(i, j int) bool { return points[i].Timestamp < points[j].Timestamp })

	w, err := NewWriter(series, dt, pointsPerPage)
	if err != nil {
		return nil, err
	}
	if err := w.WritePoints(points); err != nil {
		return nil, err
	}
	return w.Seal()
}
