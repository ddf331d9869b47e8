package storage

import (
	"encoding/csv"
	"fmt"
	"os"
	"sort"
	"strconv"
	"sync"
	"time"

	"github.com/pkg/errors"
	"k8s.io/klog/v2"
)

// CsvRecorder appends acquisition rows to one CSV file. The header is
// rewritten inline whenever the column set grows, so a reader always finds
// the widest header above the rows it covers.
type CsvRecorder struct {
	mu      sync.Mutex
	file    *os.File
	writer  *csv.Writer
	columns []string
	types   map[string]ColumnType
}

var _ Recorder = (*CsvRecorder)(nil)

func NewCsvRecorder(path string) (*CsvRecorder, error) {
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0640)
	if err != nil {
		return nil, errors.Wrapf(err, "open %s", path)
	}
	return &CsvRecorder{
		file:   f,
		writer: csv.NewWriter(f),
		types:  make(map[string]ColumnType),
	}, nil
}

func (r *CsvRecorder) EnsureSchema(columns map[string]ColumnType) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	grown := false
	for name, ct := range columns {
		if _, seen := r.types[name]; !seen {
			r.types[name] = ct
			r.columns = append(r.columns, name)
			grown = true
		}
	}
	if !grown {
		return nil
	}
	sort.Strings(r.columns)
	return r.writeHeader()
}

func (r *CsvRecorder) writeHeader() error {
	header := append([]string{"Time", "Device"}, r.columns...)
	if err := r.writer.Write(header); err != nil {
		return errors.Wrap(err, "write header")
	}
	r.writer.Flush()
	return r.writer.Error()
}

func (r *CsvRecorder) WriteRows(rows []Row) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	for _, row := range rows {
		if err := r.ensureRowColumns(row); err != nil {
			return err
		}
	}

	for _, row := range rows {
		record := make([]string, 0, len(r.columns)+2)
		record = append(record, row.Time.UTC().Format(time.RFC3339Nano), row.Device)
		for _, name := range r.columns {
			record = append(record, formatCell(row.Values[name]))
		}
		if err := r.writer.Write(record); err != nil {
			return errors.Wrap(err, "write row")
		}
	}
	r.writer.Flush()
	return r.writer.Error()
}

// ensureRowColumns grows the schema for fields the first snapshot never
// carried, keeping the one-header-per-widening contract.
func (r *CsvRecorder) ensureRowColumns(row Row) error {
	grown := false
	for name, value := range row.Values {
		if _, seen := r.types[name]; !seen {
			klog.V(2).InfoS("Adding column", "column", name)
			r.types[name] = InferColumnType(value)
			r.columns = append(r.columns, name)
			grown = true
		}
	}
	if !grown {
		return nil
	}
	sort.Strings(r.columns)
	return r.writeHeader()
}

func (r *CsvRecorder) Close() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.writer.Flush()
	if err := r.writer.Error(); err != nil {
		_ = r.file.Close()
		return err
	}
	return r.file.Close()
}

func formatCell(value interface{}) string {
	switch v := value.(type) {
	case nil:
		return ""
	case time.Time:
		return v.UTC().Format(time.RFC3339Nano)
	case float64:
		return strconv.FormatFloat(v, 'f', -1, 64)
	case float32:
		return strconv.FormatFloat(float64(v), 'f', -1, 32)
	case string:
		return v
	default:
		return fmt.Sprintf("%v", v)
	}
}
