package statistics

// Snapshot is a flat, JSON-friendly view of a Statistics value. Fields the type does not
// support, or that are undefined because the statistics are empty, are nil.
type Snapshot struct {
	Type            string      `json:"type"`
	Count           int64       `json:"count"`
	StartTime       int64       `json:"start_time"`
	EndTime         int64       `json:"end_time"`
	First           interface{} `json:"first,omitempty"`
	Last            interface{} `json:"last,omitempty"`
	Min             interface{} `json:"min,omitempty"`
	Max             interface{} `json:"max,omitempty"`
	Sum             interface{} `json:"sum,omitempty"`
	BottomTimestamp *int64      `json:"bottom_timestamp,omitempty"`
	TopTimestamp    *int64      `json:"top_timestamp,omitempty"`
}

// TakeSnapshot reads every supported accessor of s. Binary values are rendered as strings.
func TakeSnapshot(s Statistics) Snapshot {
	snap := Snapshot{
		Type:      s.Type().String(),
		Count:     s.Count(),
		StartTime: s.StartTime(),
		EndTime:   s.EndTime(),
	}
	if s.IsEmpty() {
		return snap
	}

	snap.First = readable(s.FirstValue())
	snap.Last = readable(s.LastValue())
	snap.Min = readable(s.MinValue())
	snap.Max = readable(s.MaxValue())
	if v, err := s.SumLong(); err == nil {
		snap.Sum = v
	} else if f, err := s.SumDouble(); err == nil {
		snap.Sum = f
	}
	if ts, err := s.BottomTimestamp(); err == nil {
		snap.BottomTimestamp = &ts
	}
	if ts, err := s.TopTimestamp(); err == nil {
		snap.TopTimestamp = &ts
	}
	return snap
}

// Map renders the snapshot as a generic map, omitting nil fields.
func (s Snapshot) Map() map[string]interface{} {
	m := map[string]interface{}{
		"type":       s.Type,
		"count":      s.Count,
		"start_time": s.StartTime,
		"end_time":   s.EndTime,
	}
	for k, v := range map[string]interface{}{"first": s.First, "last": s.Last, "min": s.Min, "max": s.Max, "sum": s.Sum} {
		if v != nil {
			m[k] = v
		}
	}
	if s.BottomTimestamp != nil {
		m["bottom_timestamp"] = *s.BottomTimestamp
	}
	if s.TopTimestamp != nil {
		m["top_timestamp"] = *s.TopTimestamp
	}
	return m
}

func readable(v interface{}, err error) interface{} {
	if err != nil {
		return nil
	}
	if b, ok := v.([]byte); ok {
		return string(b)
	}
	return v
}
