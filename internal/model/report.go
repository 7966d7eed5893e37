package model

import "strconv"

// Row is a single flat report record. Header returns the ordered field
// names shared by every row of the same report type; Record returns the
// values in the same order.
type Row interface {
	Header() []string
	Record() []string
}

// StatusRow combines visit identity with one gear's pass/fail outcome.
type StatusRow struct {
	Visit  VisitKeys
	Gear   string
	Status QCStatus
}

var statusHeader = []string{
	"adcid", "ptid", "module", "visitdate", "visitnum", "gear", "status",
}

// Header returns the status report field names.
func (r StatusRow) Header() []string { return statusHeader }

// Record returns the row values in header order.
func (r StatusRow) Record() []string {
	return []string{
		strconv.Itoa(r.Visit.ADCID),
		r.Visit.PTID,
		r.Visit.Module,
		r.Visit.Date,
		r.Visit.VisitNum,
		r.Gear,
		string(r.Status),
	}
}

// ErrorRow combines visit identity with one structured QC error.
// The union-typed error location is flattened into the row: CSV errors fill
// Line/Column, JSON errors fill KeyPath, and the fields of the absent
// variant stay empty.
type ErrorRow struct {
	Visit   VisitKeys
	Gear    string
	Code    string
	Message string
	Field   string
	Value   string

	// Flattened location (at most one variant populated)
	Line    string
	Column  string
	KeyPath string
}

var errorHeader = []string{
	"adcid", "ptid", "module", "visitdate", "visitnum", "gear",
	"code", "message", "field", "value", "line", "column", "key_path",
}

// Header returns the error report field names.
func (r ErrorRow) Header() []string { return errorHeader }

// Record returns the row values in header order.
func (r ErrorRow) Record() []string {
	return []string{
		strconv.Itoa(r.Visit.ADCID),
		r.Visit.PTID,
		r.Visit.Module,
		r.Visit.Date,
		r.Visit.VisitNum,
		r.Gear,
		r.Code,
		r.Message,
		r.Field,
		r.Value,
		r.Line,
		r.Column,
		r.KeyPath,
	}
}

// FlattenLocation merges whichever location variant is present on err into
// the row's flat location fields.
func (r *ErrorRow) FlattenLocation(err QCError) {
	switch {
	case err.CSV != nil:
		r.Line = strconv.Itoa(err.CSV.Line)
		r.Column = err.CSV.Column
	case err.JSON != nil:
		r.KeyPath = err.JSON.KeyPath
	}
}
