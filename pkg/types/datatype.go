// Package types provides core data types for chunkstats.
package types

import (
	"fmt"
	"strings"
)

// DataType is the one-byte tag identifying the value type of a column.
// The numeric values are part of the on-disk format and must never change.
type DataType uint8

const (
	Boolean DataType = 0
	Int32   DataType = 1
	Int64   DataType = 2
	Float   DataType = 3
	Double  DataType = 4
	Text    DataType = 5
	// Vector is the time column of an aligned series. It carries timestamps only.
	Vector DataType = 6
)

var dataTypeNames = map[DataType]string{
	Boolean: "BOOLEAN",
	Int32:   "INT32",
	Int64:   "INT64",
	Float:   "FLOAT",
	Double:  "DOUBLE",
	Text:    "TEXT",
	Vector:  "VECTOR",
}

// String returns the canonical upper-case name of the type.
func (t DataType) String() string {
	if name, ok := dataTypeNames[t]; ok {
		return name
	}
	return fmt.Sprintf("UNKNOWN(%d)", uint8(t))
}

// AllDataTypes returns every known type in tag order.
func AllDataTypes() []DataType {
	return []DataType{Boolean, Int32, Int64, Float, Double, Text, Vector}
}

// Valid reports whether t is one of the known type tags.
func (t DataType) Valid() bool {
	_, ok := dataTypeNames[t]
	return ok
}

// ParseDataType converts a type name (case-insensitive) to a DataType.
func ParseDataType(s string) (DataType, error) {
	switch strings.ToUpper(strings.TrimSpace(s)) {
	case "BOOLEAN", "BOOL":
		return Boolean, nil
	case "INT32", "INT":
		return Int32, nil
	case "INT64", "LONG":
		return Int64, nil
	case "FLOAT":
		return Float, nil
	case "DOUBLE":
		return Double, nil
	case "TEXT", "STRING", "BINARY":
		return Text, nil
	case "VECTOR", "TIME":
		return Vector, nil
	default:
		return 0, fmt.Errorf("unknown data type: %q", s)
	}
}

// MarshalText implements encoding.TextMarshaler so types appear by name in JSON and YAML.
func (t DataType) MarshalText() ([]byte, error) {
	return []byte(t.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (t *DataType) UnmarshalText(b []byte) error {
	parsed, err := ParseDataType(string(b))
	if err != nil {
		return err
	}
	*t = parsed
	return nil
}
