package model

import "sort"

// QCStatus is the outcome of one validation gear for one file.
type QCStatus string

const (
	StatusPass    QCStatus = "PASS"
	StatusFail    QCStatus = "FAIL"
	StatusUnknown QCStatus = "UNKNOWN"
)

// CSVLocation points at a cell in a tabular submission.
type CSVLocation struct {
	Line   int    `json:"line"`
	Column string `json:"column,omitempty"`
}

// JSONLocation points at a key path in a JSON submission.
type JSONLocation struct {
	KeyPath string `json:"key_path"`
}

// QCError is one structured error recorded by a validation gear.
// Exactly one of CSV or JSON is set when the error carries a location;
// both may be nil for file-level errors.
type QCError struct {
	Code    string        `json:"code,omitempty"`
	Message string        `json:"message"`
	Field   string        `json:"field,omitempty"`
	Value   string        `json:"value,omitempty"`
	CSV     *CSVLocation  `json:"csv_location,omitempty"`
	JSON    *JSONLocation `json:"json_location,omitempty"`
}

// Validation is the result of one gear run: a status plus an ordered
// sequence of structured errors (empty on PASS).
type Validation struct {
	Status QCStatus  `json:"status"`
	Errors []QCError `json:"errors,omitempty"`
}

// Passed reports whether the gear recorded a passing status.
func (v Validation) Passed() bool {
	return v.Status == StatusPass
}

// GearEntry pairs a gear name with its validation result.
type GearEntry struct {
	Gear       string     `json:"gear"`
	Validation Validation `json:"validation"`
}

// FileQC is the per-file QC metadata: one validation result per gear, in the
// order the platform delivered them. Treated as immutable for the duration
// of a report pass.
type FileQC struct {
	Entries []GearEntry
}

// Get returns the validation result for a gear name.
func (q *FileQC) Get(gear string) (Validation, bool) {
	for _, e := range q.Entries {
		if e.Gear == gear {
			return e.Validation, true
		}
	}
	return Validation{}, false
}

// FileQCFromMap builds a FileQC from an unordered gear->validation mapping.
// Entries are sorted by gear name so that map-sourced QC data (JSON sidecars,
// test fixtures) iterates deterministically.
func FileQCFromMap(m map[string]Validation) *FileQC {
	gears := make([]string, 0, len(m))
	for g := range m {
		gears = append(gears, g)
	}
	sort.Strings(gears)

	qc := &FileQC{Entries: make([]GearEntry, 0, len(m))}
	for _, g := range gears {
		qc.Entries = append(qc.Entries, GearEntry{Gear: g, Validation: m[g]})
	}
	return qc
}
