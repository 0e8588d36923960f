package statistics

import (
	"fmt"

	"github.com/arkilian/chunkstats/pkg/types"
)

// MergeAll folds stats, left to right, into fresh statistics of type dt.
// It is how page statistics become chunk statistics and chunk statistics become
// series summaries. Min, max, sum and count do not depend on the input order;
// first and last do when two inputs share a start or end time, in which case the
// input later in the slice wins.
func MergeAll(dt types.DataType, stats ...Statistics) (Statistics, error) {
	out, err := New(dt)
	if err != nil {
		return nil, err
	}
	for i, s := range stats {
		if err := out.Merge(s); err != nil {
			return nil, fmt.Errorf("statistics: merge input %d: %w", i, err)
		}
	}
	return out, nil
}

// Clone returns an independent copy of s.
func Clone(s Statistics) (Statistics, error) {
	return MergeAll(s.Type(), s)
}
