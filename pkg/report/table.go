package report

import (
	"encoding/csv"
	"io"
	"sync"

	"github.com/formflow/formflow/internal/model"
	"github.com/formflow/formflow/pkg/errors"
)

// TableVisitor receives completed report rows and performs the output side
// effect. The same traversal serves CSV export, in-memory aggregation, XLSX
// workbooks, and event emission by swapping the table.
type TableVisitor interface {
	VisitRow(row model.Row) error
}

// MemoryTable accumulates rows in order. Useful for aggregation across
// files before a final write, and in tests.
type MemoryTable struct {
	rows []model.Row
}

// NewMemoryTable creates an empty in-memory table.
func NewMemoryTable() *MemoryTable {
	return &MemoryTable{}
}

// VisitRow appends the row.
func (t *MemoryTable) VisitRow(row model.Row) error {
	t.rows = append(t.rows, row)
	return nil
}

// Rows returns the accumulated rows in arrival order.
func (t *MemoryTable) Rows() []model.Row {
	return t.rows
}

// Len returns the number of accumulated rows.
func (t *MemoryTable) Len() int {
	return len(t.rows)
}

// CSVTable streams rows to a CSV writer, emitting the header row once
// before the first record.
type CSVTable struct {
	w           *csv.Writer
	wroteHeader bool
}

// NewCSVTable creates a CSV table writing to w.
func NewCSVTable(w io.Writer) *CSVTable {
	return &CSVTable{w: csv.NewWriter(w)}
}

// VisitRow writes one record, preceded by the header on first call.
func (t *CSVTable) VisitRow(row model.Row) error {
	if !t.wroteHeader {
		if err := t.w.Write(row.Header()); err != nil {
			return errors.Wrap(err, errors.CodeWriteFailed, "failed to write CSV header")
		}
		t.wroteHeader = true
	}

	if err := t.w.Write(row.Record()); err != nil {
		return errors.Wrap(err, errors.CodeWriteFailed, "failed to write CSV record")
	}
	return nil
}

// Flush writes buffered records through to the underlying writer.
func (t *CSVTable) Flush() error {
	t.w.Flush()
	if err := t.w.Error(); err != nil {
		return errors.Wrap(err, errors.CodeWriteFailed, "failed to flush CSV output")
	}
	return nil
}

// SyncTable serializes access to a shared table so independent per-project
// visitors can merge into one output at the table boundary.
type SyncTable struct {
	mu    sync.Mutex
	inner TableVisitor
}

// NewSyncTable wraps inner with a mutex.
func NewSyncTable(inner TableVisitor) *SyncTable {
	return &SyncTable{inner: inner}
}

// VisitRow forwards to the inner table under the lock.
func (t *SyncTable) VisitRow(row model.Row) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.inner.VisitRow(row)
}
