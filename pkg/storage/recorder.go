package storage

import (
	"time"
)

// ColumnType classifies one recorded field.
type ColumnType string

const (
	ColumnTimestamp ColumnType = "timestamp"
	ColumnFloat     ColumnType = "float"
	ColumnText      ColumnType = "text"
)

// Row is one device's reading at one acquisition tick. Time and Device
// together form the primary key.
type Row struct {
	Time   time.Time
	Device string
	Values map[string]interface{}
}

// Recorder is the persistence boundary for acquisition output. Columns are
// declared up front from the first snapshot and may grow when a later row
// carries a field the schema has not seen.
type Recorder interface {
	EnsureSchema(columns map[string]ColumnType) error
	WriteRows(rows []Row) error
	Close() error
}

// InferColumnType types a field from its first observed value. The two
// latency instants arrive as time.Time, numeric readings as float64,
// everything else is recorded as text.
func InferColumnType(value interface{}) ColumnType {
	switch value.(type) {
	case time.Time:
		return ColumnTimestamp
	case float64, float32:
		return ColumnFloat
	default:
		return ColumnText
	}
}

// InferSchema derives the column set from one snapshot of all devices.
func InferSchema(snapshot map[string]map[string]interface{}) map[string]ColumnType {
	columns := make(map[string]ColumnType)
	for _, reading := range snapshot {
		for name, value := range reading {
			if _, seen := columns[name]; !seen {
				columns[name] = InferColumnType(value)
			}
		}
	}
	return columns
}
