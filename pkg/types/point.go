package types

// Point is a single timestamped value of one series.
type Point struct {
	// Timestamp is the point time in the series' native unit (typically milliseconds)
	Timestamp int64 `json:"t"`

	// Value holds a Go value matching the column DataType:
	// bool, int32, int64, float32, float64, []byte or string. Nil for Vector columns.
	Value interface{} `json:"v"`
}
