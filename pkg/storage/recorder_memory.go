package storage

import (
	"sync"
)

// MemoryRecorder keeps rows in memory. Used by tests and as the sink when
// no recording path is configured.
type MemoryRecorder struct {
	mu      sync.Mutex
	columns map[string]ColumnType
	rows    []Row
}

var _ Recorder = (*MemoryRecorder)(nil)

func NewMemoryRecorder() *MemoryRecorder {
	return &MemoryRecorder{columns: make(map[string]ColumnType)}
}

func (r *MemoryRecorder) EnsureSchema(columns map[string]ColumnType) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for name, ct := range columns {
		if _, seen := r.columns[name]; !seen {
			r.columns[name] = ct
		}
	}
	return nil
}

func (r *MemoryRecorder) WriteRows(rows []Row) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, row := range rows {
		for name, value := range row.Values {
			if _, seen := r.columns[name]; !seen {
				r.columns[name] = InferColumnType(value)
			}
		}
	}
	r.rows = append(r.rows, rows...)
	return nil
}

func (r *MemoryRecorder) Close() error {
	return nil
}

func (r *MemoryRecorder) Rows() []Row {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append(make([]Row, 0, len(r.rows)), r.rows...)
}

func (r *MemoryRecorder) Columns() map[string]ColumnType {
	r.mu.Lock()
	defer r.mu.Unlock()
	columns := make(map[string]ColumnType, len(r.columns))
	for name, ct := range r.columns {
		columns[name] = ct
	}
	return columns
}
