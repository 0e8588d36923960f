package chunk

import (
	"errors"
	"testing"

	"github.com/google/uuid"

	apperrors "github.com/arkilian/chunkstats/internal/errors"
	"github.com/arkilian/chunkstats/internal/statistics"
	"github.com/arkilian/chunkstats/pkg/types"
)

func TestWriter_PagesAndMergedStatistics(t *testing.T) {
	w, err := NewWriter("root.sg.d1.s1", types.Int64, 4)
	if err != nil {
		t.Fatalf("NewWriter failed: %v", err)
	}

	for i := int64(0); i < 10; i++ {
		if err := w.Write(i*10, i*i); err != nil {
			t.Fatalf("Write failed: %v", err)
		}
	}
	if w.PageCount() != 2 {
		t.Errorf("expected 2 sealed pages before Seal, got %d", w.PageCount())
	}

	meta, err := w.Seal()
	if err != nil {
		t.Fatalf("Seal failed: %v", err)
	}
	if len(meta.Pages) != 3 {
		t.Fatalf("expected 3 pages, got %d", len(meta.Pages))
	}
	if _, err := uuid.Parse(meta.ID); err != nil {
		t.Errorf("chunk ID is not a UUID: %v", err)
	}
	if meta.Series != "root.sg.d1.s1" || meta.DataType != types.Int64 {
		t.Errorf("unexpected metadata %+v", meta)
	}

	s := meta.Statistics
	if s.Count() != 10 || s.StartTime() != 0 || s.EndTime() != 90 {
		t.Errorf("unexpected chunk header: %s", s)
	}
	sum, err := s.SumLong()
	if err != nil || sum != 285 {
		t.Errorf("expected sum 285, got %d (%v)", sum, err)
	}
	first, _ := s.FirstValue()
	last, _ := s.LastValue()
	if first != int64(0) || last != int64(81) {
		t.Errorf("expected first=0 last=81, got %v %v", first, last)
	}

	if meta.Pages[2].Count() != 2 || meta.Pages[2].StartTime() != 80 {
		t.Errorf("unexpected tail page: %s", meta.Pages[2])
	}
}

func TestWriter_SealedPagesAreFrozen(t *testing.T) {
	w, err := NewWriter("s", types.Double, 2)
	if err != nil {
		t.Fatalf("NewWriter failed: %v", err)
	}
	_ = w.Write(1, 1.0)
	_ = w.Write(2, 2.0)
	_ = w.Write(3, 3.0)

	meta, err := w.Seal()
	if err != nil {
		t.Fatalf("Seal failed: %v", err)
	}

	// Mutating the merged statistics must not reach the pages.
	if err := meta.Statistics.UpdateValue(4, 100.0); err != nil {
		t.Fatalf("UpdateValue failed: %v", err)
	}
	if meta.Pages[0].Count() != 2 {
		t.Errorf("page 0 changed: %s", meta.Pages[0])
	}
}

func TestWriter_SealErrors(t *testing.T) {
	w, err := NewWriter("s", types.Boolean, 8)
	if err != nil {
		t.Fatalf("NewWriter failed: %v", err)
	}
	_, err = w.Seal()
	if apperrors.GetCode(err) != apperrors.CodeEmptyBatch {
		t.Errorf("expected EMPTY_BATCH, got %v", err)
	}

	_ = w.Write(1, true)
	if _, err := w.Seal(); err != nil {
		t.Fatalf("Seal failed: %v", err)
	}
	if _, err := w.Seal(); err == nil {
		t.Error("expected error sealing twice")
	}
	if err := w.Write(2, false); err == nil {
		t.Error("expected error writing after seal")
	}
}

func TestWriter_TypeMismatch(t *testing.T) {
	w, err := NewWriter("s", types.Int32, 8)
	if err != nil {
		t.Fatalf("NewWriter failed: %v", err)
	}
	err = w.Write(1, "nope")
	if !errors.Is(err, statistics.ErrTypeMismatch) {
		t.Errorf("expected type mismatch, got %v", err)
	}
}

func TestNewWriter_Validation(t *testing.T) {
	if _, err := NewWriter("", types.Int64, 1); apperrors.GetCode(err) != apperrors.CodeInvalidSeries {
		t.Errorf("expected INVALID_SERIES, got %v", err)
	}
	if _, err := NewWriter("s", types.DataType(99), 1); !errors.Is(err, statistics.ErrUnsupportedType) {
		t.Errorf("expected unsupported type, got %v", err)
	}
	w, err := NewWriter("s", types.Int64, 0)
	if err != nil {
		t.Fatalf("NewWriter failed: %v", err)
	}
	if w.pointsPerPage != DefaultPointsPerPage {
		t.Errorf("expected default page size, got %d", w.pointsPerPage)
	}
}

func TestBuild_CoercesJSONValues(t *testing.T) {
	points := []types.Point{
		{Timestamp: 1, Value: float64(3)},
		{Timestamp: 2, Value: float64(-7)},
		{Timestamp: 3, Value: "12"},
	}
	meta, err := Build("s", types.Int32, 2, points)
	if err != nil {
		t.Fatalf("Build failed: %v", err)
	}
	lo, _ := meta.Statistics.MinValue()
	hi, _ := meta.Statistics.MaxValue()
	if lo != int32(-7) || hi != int32(12) {
		t.Errorf("expected min -7 max 12, got %v %v", lo, hi)
	}
	if _, ok := points[0].Value.(float64); !ok {
		t.Error("Build must not modify the caller's points")
	}

	_, err = Build("s", types.Int32, 2, []types.Point{{Timestamp: 1, Value: 1.5}})
	if apperrors.GetCode(err) != apperrors.CodeInvalidValue {
		t.Errorf("expected INVALID_VALUE, got %v", err)
	}
	_, err = Build("s", types.Int32, 2, nil)
	if apperrors.GetCode(err) != apperrors.CodeEmptyBatch {
		t.Errorf("expected EMPTY_BATCH, got %v", err)
	}
}

func TestBuild_SortsUnorderedPoints(t *testing.T) {
	points := []types.Point{
		{Timestamp: 5, Value: int64(50)},
		{Timestamp: 1, Value: int64(10)},
		{Timestamp: 9, Value: int64(90)},
		{Timestamp: 3, Value: int64(30)},
	}
	meta, err := Build("s", types.Int64, 2, points)
	if err != nil {
		t.Fatalf("Build failed: %v", err)
	}

	s := meta.Statistics
	first, _ := s.FirstValue()
	last, _ := s.LastValue()
	if s.StartTime() != 1 || s.EndTime() != 9 || first != int64(10) || last != int64(90) {
		t.Errorf("expected start=1 end=9 first=10 last=90, got %s", s)
	}
	if meta.Pages[0].EndTime() != 3 || meta.Pages[1].StartTime() != 5 {
		t.Errorf("pages not split in time order: %s / %s", meta.Pages[0], meta.Pages[1])
	}
	if points[0].Timestamp != 5 {
		t.Error("Build reordered the caller's slice")
	}
}

func TestBuild_EqualTimestampsKeepInputOrder(t *testing.T) {
	meta, err := Build("s", types.Int64, 8, []types.Point{
		{Timestamp: 2, Value: int64(1)},
		{Timestamp: 2, Value: int64(2)},
		{Timestamp: 1, Value: int64(0)},
	})
	if err != nil {
		t.Fatalf("Build failed: %v", err)
	}
	last, _ := meta.Statistics.LastValue()
	if last != int64(2) {
		t.Errorf("expected last=2, got %v", last)
	}
}

func TestWriter_RejectsDecreasingTimestamp(t *testing.T) {
	w, err := NewWriter("s", types.Int64, 4)
	if err != nil {
		t.Fatalf("NewWriter failed: %v", err)
	}
	if err := w.Write(10, int64(1)); err != nil {
		t.Fatalf("Write failed: %v", err)
	}
	if err := w.Write(10, int64(2)); err != nil {
		t.Fatalf("equal timestamp rejected: %v", err)
	}
	err = w.Write(9, int64(3))
	if apperrors.GetCode(err) != apperrors.CodeOutOfOrder {
		t.Fatalf("expected OUT_OF_ORDER, got %v", err)
	}

	meta, err := w.Seal()
	if err != nil {
		t.Fatalf("Seal failed: %v", err)
	}
	if meta.Statistics.Count() != 2 {
		t.Errorf("rejected point was recorded: %s", meta.Statistics)
	}
}
