package report

import (
	"github.com/xuri/excelize/v2"

	"github.com/formflow/formflow/internal/model"
	"github.com/formflow/formflow/pkg/errors"
)

// XLSXTable writes rows into a worksheet of an Excel workbook, for centers
// that consume reports as spreadsheets rather than CSV.
type XLSXTable struct {
	file        *excelize.File
	sheet       string
	next        int
	wroteHeader bool
}

// NewXLSXTable creates a workbook with a single named sheet.
func NewXLSXTable(sheet string) (*XLSXTable, error) {
	f := excelize.NewFile()
	defaultSheet := f.GetSheetName(0)
	if err := f.SetSheetName(defaultSheet, sheet); err != nil {
		return nil, errors.Wrap(err, errors.CodeWriteFailed, "failed to name worksheet")
	}

	return &XLSXTable{file: f, sheet: sheet, next: 1}, nil
}

// VisitRow appends one worksheet row, preceded by the header on first call.
func (t *XLSXTable) VisitRow(row model.Row) error {
	if !t.wroteHeader {
		if err := t.writeStrings(row.Header()); err != nil {
			return err
		}
		t.wroteHeader = true
	}
	return t.writeStrings(row.Record())
}

func (t *XLSXTable) writeStrings(values []string) error {
	cell, err := excelize.CoordinatesToCellName(1, t.next)
	if err != nil {
		return errors.Wrap(err, errors.CodeWriteFailed, "failed to compute cell name")
	}

	cells := make([]interface{}, len(values))
	for i, v := range values {
		cells[i] = v
	}
	if err := t.file.SetSheetRow(t.sheet, cell, &cells); err != nil {
		return errors.Wrap(err, errors.CodeWriteFailed, "failed to write worksheet row")
	}

	t.next++
	return nil
}

// SaveAs writes the workbook to path.
func (t *XLSXTable) SaveAs(path string) error {
	if err := t.file.SaveAs(path); err != nil {
		return errors.Wrap(err, errors.CodeWriteFailed, "failed to save workbook").
			WithContext("path", path)
	}
	return nil
}

// Close releases the workbook resources.
func (t *XLSXTable) Close() error {
	return t.file.Close()
}
