package query

import (
	"context"
	"errors"
	"fmt"
	"strings"

	apperrors "github.com/arkilian/chunkstats/internal/errors"
	"github.com/arkilian/chunkstats/internal/manifest"
	"github.com/arkilian/chunkstats/internal/observability"
	"github.com/arkilian/chunkstats/internal/statistics"
)

// AggregateType represents the type of aggregate function.
type AggregateType int

const (
	AggCount AggregateType = iota
	AggSum
	AggMin
	AggMax
	AggFirst
	AggLast
	AggAvg
)

var aggregateNames = []string{"COUNT", "SUM", "MIN", "MAX", "FIRST", "LAST", "AVG"}

func (a AggregateType) String() string {
	if int(a) < len(aggregateNames) {
		return aggregateNames[a]
	}
	return fmt.Sprintf("AGG(%d)", int(a))
}

// ParseAggregateType converts a function name string to AggregateType.
func ParseAggregateType(name string) (AggregateType, error) {
	upper := strings.ToUpper(strings.TrimSpace(name))
	for i, n := range aggregateNames {
		if n == upper {
			return AggregateType(i), nil
		}
	}
	return 0, apperrors.NewQueryError(apperrors.CodeUnsupportedAggregate,
		fmt.Sprintf("unknown aggregate function: %s", name))
}

// AggregateRequest asks for aggregates of one series over [Start, End].
type AggregateRequest struct {
	Series     string
	Start      int64
	End        int64
	Aggregates []AggregateType
}

// AggregateResult holds aggregates computed from statistics alone.
type AggregateResult struct {
	Series string
	Start  int64
	End    int64

	// Values maps aggregate name to value. An aggregate over no data is nil,
	// except COUNT which is 0.
	Values map[string]interface{}

	// ChunksUsed is the number of chunks whose statistics were merged.
	ChunksUsed int

	// FromSummary is set when the series summary answered the request.
	FromSummary bool

	// ScanRequired lists chunks that only partially overlap the range.
	// Their points are not reflected in Values.
	ScanRequired []string

	// Partial is set when ScanRequired is not empty.
	Partial bool
}

// Pushdown answers aggregate queries from chunk statistics.
type Pushdown struct {
	meta  Metadata
	stats *observability.QueryStats
}

// NewPushdown creates a new pushdown evaluator. stats may be nil.
func NewPushdown(meta Metadata, stats *observability.QueryStats) *Pushdown {
	return &Pushdown{meta: meta, stats: stats}
}

// Aggregate computes req. Chunks fully inside the range are merged in start
// time order and answered from their statistics; chunks straddling a range
// boundary are reported in ScanRequired.
func (p *Pushdown) Aggregate(ctx context.Context, req AggregateRequest) (*AggregateResult, error) {
	if req.Start > req.End {
		return nil, apperrors.NewQueryError(apperrors.CodeInvalidTimeRange,
			fmt.Sprintf("start %d is after end %d", req.Start, req.End))
	}
	if len(req.Aggregates) == 0 {
		return nil, apperrors.NewQueryError(apperrors.CodeUnsupportedAggregate, "no aggregates requested")
	}

	summary, err := p.meta.SeriesSummary(ctx, req.Series)
	if err != nil {
		return nil, err
	}

	result := &AggregateResult{
		Series: req.Series,
		Start:  req.Start,
		End:    req.End,
		Values: make(map[string]interface{}, len(req.Aggregates)),
	}

	var merged statistics.Statistics
	s := summary.Statistics
	if !s.IsEmpty() && s.StartTime() >= req.Start && s.EndTime() <= req.End {
		merged = s
		result.FromSummary = true
		result.ChunksUsed = int(summary.ChunkCount)
	} else {
		chunks, err := p.meta.FindChunks(ctx, req.Series, req.Start, req.End)
		if err != nil {
			return nil, fmt.Errorf("query: failed to find chunks: %w", err)
		}
		inside := make([]statistics.Statistics, 0, len(chunks))
		for _, c := range chunks {
			if c.StartTime >= req.Start && c.EndTime <= req.End {
				inside = append(inside, c.Statistics)
			} else {
				result.ScanRequired = append(result.ScanRequired, c.ChunkID)
			}
		}
		merged, err = statistics.MergeAll(summary.DataType, inside...)
		if err != nil {
			return nil, fmt.Errorf("query: failed to merge chunk statistics: %w", err)
		}
		result.ChunksUsed = len(inside)
		result.Partial = len(result.ScanRequired) > 0
	}

	for _, agg := range req.Aggregates {
		v, err := Answer(merged, agg)
		if err != nil {
			return nil, err
		}
		result.Values[agg.String()] = v
	}

	if p.stats != nil {
		names := make([]string, len(req.Aggregates))
		for i, agg := range req.Aggregates {
			names[i] = agg.String()
		}
		p.stats.RecordAggregate(req.Series, strings.Join(names, ","), result.ChunksUsed, len(result.ScanRequired))
	}
	return result, nil
}

// Answer computes one aggregate from statistics. A type that cannot answer
// the aggregate fails with UNSUPPORTED_AGGREGATE even when s is empty; an
// empty s otherwise yields nil (COUNT yields 0).
func Answer(s statistics.Statistics, agg AggregateType) (interface{}, error) {
	var (
		v   interface{}
		err error
	)
	switch agg {
	case AggCount:
		return s.Count(), nil
	case AggSum:
		v, err = sum(s)
	case AggMin:
		v, err = s.MinValue()
	case AggMax:
		v, err = s.MaxValue()
	case AggFirst:
		v, err = s.FirstValue()
	case AggLast:
		v, err = s.LastValue()
	case AggAvg:
		var total float64
		total, err = sumAsFloat(s)
		if err == nil {
			v = total / float64(s.Count())
		}
	default:
		return nil, apperrors.NewQueryError(apperrors.CodeUnsupportedAggregate,
			fmt.Sprintf("unknown aggregate %s", agg))
	}

	switch {
	case err == nil:
		return v, nil
	case statistics.IsCapabilityError(err):
		return nil, apperrors.NewQueryError(apperrors.CodeUnsupportedAggregate,
			fmt.Sprintf("%s is not available for %s series: %v", agg, s.Type(), err))
	case errors.Is(err, statistics.ErrEmptyStatistics):
		return nil, nil
	default:
		return nil, err
	}
}

// sum prefers the integer sum and falls back to the floating point one.
func sum(s statistics.Statistics) (interface{}, error) {
	l, err := s.SumLong()
	if err == nil {
		return l, nil
	}
	if !statistics.IsCapabilityError(err) {
		return nil, err
	}
	return s.SumDouble()
}

func sumAsFloat(s statistics.Statistics) (float64, error) {
	v, err := sum(s)
	if err != nil {
		return 0, err
	}
	switch x := v.(type) {
	case int64:
		return float64(x), nil
	case float64:
		return x, nil
	}
	return 0, fmt.Errorf("query: unexpected sum type %T", v)
}

// IsSeriesNotFound reports whether err means the series has no chunks.
func IsSeriesNotFound(err error) bool {
	return manifest.IsNotFound(err)
}
