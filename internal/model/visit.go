// Package model defines core data structures for FormFlow.
package model

import "strings"

// Known form modules. Rows referencing any other module are rejected by the
// report transformers before they are emitted.
const (
	ModuleUDS       = "UDS"
	ModuleFTLD      = "FTLD"
	ModuleLBD       = "LBD"
	ModuleNP        = "NP"
	ModuleMilestone = "MLST"
	ModuleEnroll    = "ENROLL"
)

var knownModules = map[string]bool{
	ModuleUDS:       true,
	ModuleFTLD:      true,
	ModuleLBD:       true,
	ModuleNP:        true,
	ModuleMilestone: true,
	ModuleEnroll:    true,
}

// KnownModule reports whether name is a recognized form module.
// Matching is case-insensitive; module names are canonically uppercase.
func KnownModule(name string) bool {
	return knownModules[CanonicalModule(name)]
}

// CanonicalModule returns the canonical (uppercase) form of a module name.
func CanonicalModule(name string) string {
	return strings.ToUpper(name)
}

// VisitKeys identifies a single submitted visit record.
// (ADCID, PTID, Module, Date) is the composite identity used to group QC and
// event data about the same visit. VisitNum is optional.
type VisitKeys struct {
	// ADCID is the numeric ID of the contributing center. Zero means unset.
	ADCID int `json:"adcid"`

	// PTID is the participant ID, unique within a center.
	PTID string `json:"ptid"`

	// Module is the form type (e.g., UDS), uppercase.
	Module string `json:"module"`

	// Date is the visit date in YYYY-MM-DD form.
	Date string `json:"visitdate"`

	// VisitNum is the optional visit/sequence number.
	VisitNum string `json:"visitnum,omitempty"`
}

// Complete reports whether all required identity fields are set.
func (v VisitKeys) Complete() bool {
	return v.ADCID != 0 && v.PTID != "" && v.Module != "" && v.Date != ""
}

// Same reports whether two key sets identify the same visit.
// VisitNum does not participate in visit identity.
func (v VisitKeys) Same(other VisitKeys) bool {
	return v.ADCID == other.ADCID &&
		v.PTID == other.PTID &&
		strings.EqualFold(v.Module, other.Module) &&
		v.Date == other.Date
}
