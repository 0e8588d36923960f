// Package observability tracks how queries use chunk statistics: how many
// chunks pruning removed, how many aggregates were answered from statistics
// alone and how often a scan was still required.
package observability

import (
	"sort"
	"sync"
	"time"
)

// QueryStats tracks per-series query counters.
type QueryStats struct {
	mu     sync.RWMutex
	series map[string]*SeriesStats
	window time.Duration
}

// SeriesStats holds the counters of one series.
type SeriesStats struct {
	Series         string
	Frequency      int64
	ChunksScanned  int64
	ChunksPruned   int64
	PushedDown     int64
	ScanFallbacks  int64
	LastSeen       time.Time
	Operators      map[string]int // predicate operator → count (e.g., ">" → 5)
	AggregateKinds map[string]int // aggregate → count (e.g., "MAX" → 2)
}

// NewQueryStats creates a new query statistics tracker.
// window: time duration for pruning old entries (e.g., 1 hour)
func NewQueryStats(window time.Duration) *QueryStats {
	return &QueryStats{
		series: make(map[string]*SeriesStats),
		window: window,
	}
}

// entry returns the counters for series (must be called with lock held).
func (q *QueryStats) entry(series string) *SeriesStats {
	stats, exists := q.series[series]
	if !exists {
		stats = &SeriesStats{
			Series:         series,
			Operators:      make(map[string]int),
			AggregateKinds: make(map[string]int),
		}
		q.series[series] = stats
	}
	stats.LastSeen = time.Now()
	return stats
}

// RecordPrune records one pruning pass: scanned chunks were evaluated against
// operator and kept of them survived.
func (q *QueryStats) RecordPrune(series, operator string, scanned, kept int) {
	q.mu.Lock()
	defer q.mu.Unlock()

	stats := q.entry(series)
	stats.Frequency++
	stats.ChunksScanned += int64(scanned)
	stats.ChunksPruned += int64(scanned - kept)
	if operator != "" {
		stats.Operators[operator]++
	}
}

// RecordAggregate records one aggregate query. pushedDown counts chunks
// answered from statistics, scanFallbacks those that still need a data scan.
func (q *QueryStats) RecordAggregate(series, aggregate string, pushedDown, scanFallbacks int) {
	q.mu.Lock()
	defer q.mu.Unlock()

	stats := q.entry(series)
	stats.Frequency++
	stats.PushedDown += int64(pushedDown)
	stats.ScanFallbacks += int64(scanFallbacks)
	stats.AggregateKinds[aggregate]++
}

// GetTopSeries returns the top N series by query frequency.
// Returns a copy of the stats sorted by frequency (descending).
func (q *QueryStats) GetTopSeries(n int) []SeriesStats {
	q.mu.RLock()
	defer q.mu.RUnlock()

	if n <= 0 || len(q.series) == 0 {
		return []SeriesStats{}
	}

	stats := make([]SeriesStats, 0, len(q.series))
	for _, s := range q.series {
		stats = append(stats, s.copy())
	}

	sort.Slice(stats, func(i, j int) bool {
		if stats[i].Frequency != stats[j].Frequency {
			return stats[i].Frequency > stats[j].Frequency
		}
		return stats[i].Series < stats[j].Series
	})

	if n > len(stats) {
		n = len(stats)
	}
	return stats[:n]
}

// Get returns a copy of the counters for series.
func (q *QueryStats) Get(series string) (SeriesStats, bool) {
	q.mu.RLock()
	defer q.mu.RUnlock()

	s, ok := q.series[series]
	if !ok {
		return SeriesStats{}, false
	}
	return s.copy(), true
}

// Prune removes entries where time.Since(LastSeen) > window.
// This should be called periodically (e.g., every 5 minutes).
func (q *QueryStats) Prune() {
	q.mu.Lock()
	defer q.mu.Unlock()

	threshold := time.Now().Add(-q.window)
	for name, stats := range q.series {
		if stats.LastSeen.Before(threshold) {
			delete(q.series, name)
		}
	}
}

func (s *SeriesStats) copy() SeriesStats {
	c := *s
	c.Operators = make(map[string]int, len(s.Operators))
	for op, count := range s.Operators {
		c.Operators[op] = count
	}
	c.AggregateKinds = make(map[string]int, len(s.AggregateKinds))
	for agg, count := range s.AggregateKinds {
		c.AggregateKinds[agg] = count
	}
	return c
}
