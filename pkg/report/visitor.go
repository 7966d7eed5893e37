package report

import (
	"github.com/formflow/formflow/internal/model"
)

// FileVisitor walks one file's QC metadata and forwards rows to a table.
type FileVisitor interface {
	Visit(visit model.VisitKeys, qc *model.FileQC) error
}

// StatusVisitor emits one row per gear entry, carrying the gear's
// pass/fail status.
type StatusVisitor struct {
	transform StatusTransformer
	table     TableVisitor
}

// NewStatusVisitor creates a status visitor writing rows to table.
func NewStatusVisitor(transform StatusTransformer, table TableVisitor) *StatusVisitor {
	return &StatusVisitor{transform: transform, table: table}
}

// Visit walks the gear entries in stored order and emits one status row
// per gear. The first transformer or table error aborts the file.
func (v *StatusVisitor) Visit(visit model.VisitKeys, qc *model.FileQC) error {
	for _, entry := range qc.Entries {
		row, err := v.transform(entry.Gear, visit, entry.Validation.Status)
		if err != nil {
			return err
		}
		if err := v.table.VisitRow(row); err != nil {
			return err
		}
	}
	return nil
}

// ErrorVisitor emits one row per structured error recorded by a failing
// gear. Passing gears contribute no rows.
type ErrorVisitor struct {
	transform ErrorTransformer
	table     TableVisitor

	// firstOnly stops after the first non-passing gear's first error.
	firstOnly bool
}

// NewErrorVisitor creates an error visitor writing every error row to table.
func NewErrorVisitor(transform ErrorTransformer, table TableVisitor) *ErrorVisitor {
	return &ErrorVisitor{transform: transform, table: table}
}

// NewFirstErrorVisitor creates an error visitor that short-circuits after
// the first non-passing gear's first error. Used on the event path, where
// only the earliest failure detail matters.
func NewFirstErrorVisitor(transform ErrorTransformer, table TableVisitor) *ErrorVisitor {
	return &ErrorVisitor{transform: transform, table: table, firstOnly: true}
}

// Visit walks the gear entries in stored order, emitting a row for each
// error of each non-passing gear.
func (v *ErrorVisitor) Visit(visit model.VisitKeys, qc *model.FileQC) error {
	for _, entry := range qc.Entries {
		if entry.Validation.Passed() {
			continue
		}

		for _, qcErr := range entry.Validation.Errors {
			row, err := v.transform(entry.Gear, visit, qcErr)
			if err != nil {
				return err
			}
			if err := v.table.VisitRow(row); err != nil {
				return err
			}
			if v.firstOnly {
				return nil
			}
		}
	}
	return nil
}
