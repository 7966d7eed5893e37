package eventlog

import (
	"context"
	"time"

	"github.com/formflow/formflow/internal/model"
)

// Capture is a stateless adapter that stamps visit events with the static
// labels of the running gear (pipeline, project, center) and hands them to
// a Logger. One Capture is built per gear run.
type Capture struct {
	logger   *Logger
	pipeline string
	project  string
	center   string
	gear     string
	datatype string
}

// CaptureConfig holds the static labels for a gear run.
type CaptureConfig struct {
	Pipeline string
	Project  string
	Center   string
	Gear     string

	// Datatype defaults to "form".
	Datatype string
}

// NewCapture creates a capture for one gear run.
func NewCapture(logger *Logger, cfg CaptureConfig) *Capture {
	datatype := cfg.Datatype
	if datatype == "" {
		datatype = model.DatatypeForm
	}

	return &Capture{
		logger:   logger,
		pipeline: cfg.Pipeline,
		project:  cfg.Project,
		center:   cfg.Center,
		gear:     cfg.Gear,
		datatype: datatype,
	}
}

// Submit records a submit event for a visit.
func (c *Capture) Submit(ctx context.Context, keys model.VisitKeys) error {
	return c.log(ctx, model.ActionSubmit, keys)
}

// Delete records a delete event for a visit.
func (c *Capture) Delete(ctx context.Context, keys model.VisitKeys) error {
	return c.log(ctx, model.ActionDelete, keys)
}

// PassQC records a pass-qc event for a visit.
func (c *Capture) PassQC(ctx context.Context, keys model.VisitKeys) error {
	return c.log(ctx, model.ActionPassQC, keys)
}

// NotPassQC records a not-pass-qc event for a visit.
func (c *Capture) NotPassQC(ctx context.Context, keys model.VisitKeys) error {
	return c.log(ctx, model.ActionNotPassQC, keys)
}

func (c *Capture) log(ctx context.Context, action model.Action, keys model.VisitKeys) error {
	return c.logger.Log(ctx, model.VisitEvent{
		Action:    action,
		Datatype:  c.datatype,
		ADCID:     keys.ADCID,
		PTID:      keys.PTID,
		Module:    keys.Module,
		Date:      keys.Date,
		VisitNum:  keys.VisitNum,
		Pipeline:  c.pipeline,
		Project:   c.project,
		Center:    c.center,
		Gear:      c.gear,
		Timestamp: time.Now().UTC(),
	})
}
