package model

import (
	"strings"
	"time"

	"github.com/formflow/formflow/pkg/errors"
)

// Action is a visit lifecycle transition.
type Action string

const (
	ActionSubmit    Action = "submit"
	ActionDelete    Action = "delete"
	ActionPassQC    Action = "pass-qc"
	ActionNotPassQC Action = "not-pass-qc"
)

var validActions = map[Action]bool{
	ActionSubmit:    true,
	ActionDelete:    true,
	ActionPassQC:    true,
	ActionNotPassQC: true,
}

// Valid reports whether the action is a recognized lifecycle transition.
func (a Action) Valid() bool { return validActions[a] }

// DatatypeForm marks form submissions; only form events carry a module.
const DatatypeForm = "form"

// VisitEvent is an immutable record of a lifecycle transition for a visit.
// Events are write-once: the audit log is the union of all written events,
// never updated or deleted.
type VisitEvent struct {
	Action   Action `json:"action"`
	Datatype string `json:"datatype"`

	// Denormalized visit identity
	ADCID    int    `json:"adcid"`
	PTID     string `json:"ptid"`
	Module   string `json:"module,omitempty"`
	Date     string `json:"visitdate"`
	VisitNum string `json:"visitnum,omitempty"`

	// Provenance labels
	Pipeline string `json:"pipeline,omitempty"`
	Project  string `json:"project"`
	Center   string `json:"center,omitempty"`
	Gear     string `json:"gear,omitempty"`

	Timestamp time.Time `json:"timestamp"`
}

// NewVisitEvent validates and constructs a VisitEvent.
// Module is required iff datatype is "form", and is normalized to uppercase
// so key matching stays consistent across producers.
func NewVisitEvent(ev VisitEvent) (VisitEvent, error) {
	if !validActions[ev.Action] {
		return VisitEvent{}, errors.New(errors.CodeInvalidEvent, "unrecognized event action").
			WithContext("action", string(ev.Action))
	}

	if ev.Datatype == DatatypeForm {
		if ev.Module == "" {
			return VisitEvent{}, errors.New(errors.CodeInvalidEvent, "form events require a module")
		}
		ev.Module = strings.ToUpper(ev.Module)
	} else if ev.Module != "" {
		return VisitEvent{}, errors.New(errors.CodeInvalidEvent, "module is only valid for form events").
			WithContext("datatype", ev.Datatype).
			WithContext("module", ev.Module)
	}

	if ev.Timestamp.IsZero() {
		ev.Timestamp = time.Now().UTC()
	}

	return ev, nil
}

// Keys returns the visit identity carried by the event.
func (e VisitEvent) Keys() VisitKeys {
	return VisitKeys{
		ADCID:    e.ADCID,
		PTID:     e.PTID,
		Module:   e.Module,
		Date:     e.Date,
		VisitNum: e.VisitNum,
	}
}
