// Package report implements the QC report aggregation engine: a project
// driver walks a project's QC artifacts, a file-level visitor walks each
// file's per-gear validation results, and pluggable transformer functions
// project (gear, visit, result) tuples into flat report rows that a table
// visitor writes out.
package report

import (
	"github.com/formflow/formflow/internal/model"
	"github.com/formflow/formflow/pkg/errors"
)

// StatusTransformer projects one gear's status into a report row.
// Implementations return a data-integrity error to veto the row.
type StatusTransformer func(gear string, visit model.VisitKeys, status model.QCStatus) (model.Row, error)

// ErrorTransformer projects one structured QC error into a report row.
type ErrorTransformer func(gear string, visit model.VisitKeys, qcErr model.QCError) (model.Row, error)

// checkIdentity is the integrity gate every default transformer applies
// before a row is emitted: all required identity fields present and the
// module recognized.
func checkIdentity(visit model.VisitKeys) error {
	switch {
	case visit.ADCID == 0:
		return errors.MissingIdentity("adcid")
	case visit.PTID == "":
		return errors.MissingIdentity("ptid")
	case visit.Module == "":
		return errors.MissingIdentity("module")
	case visit.Date == "":
		return errors.MissingIdentity("visitdate")
	}

	if !model.KnownModule(visit.Module) {
		return errors.UnknownModule(visit.Module)
	}
	return nil
}

// StatusRowTransformer is the default status transformer: gates on visit
// identity, then emits a StatusRow.
func StatusRowTransformer(gear string, visit model.VisitKeys, status model.QCStatus) (model.Row, error) {
	if err := checkIdentity(visit); err != nil {
		return nil, err
	}

	return model.StatusRow{
		Visit:  visit,
		Gear:   gear,
		Status: status,
	}, nil
}

// ErrorRowTransformer is the default error transformer: gates on visit
// identity, then emits an ErrorRow with the error's location variant
// flattened into the row.
func ErrorRowTransformer(gear string, visit model.VisitKeys, qcErr model.QCError) (model.Row, error) {
	if err := checkIdentity(visit); err != nil {
		return nil, err
	}

	row := model.ErrorRow{
		Visit:   visit,
		Gear:    gear,
		Code:    qcErr.Code,
		Message: qcErr.Message,
		Field:   qcErr.Field,
		Value:   qcErr.Value,
	}
	row.FlattenLocation(qcErr)
	return row, nil
}
