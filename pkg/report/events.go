package report

import (
	"context"

	"github.com/formflow/formflow/internal/model"
	"github.com/formflow/formflow/pkg/errors"
	"github.com/formflow/formflow/pkg/eventlog"
)

// EventTable turns status rows into visit lifecycle events: a PASS status
// emits pass-qc, anything else emits not-pass-qc. Plugged in as the table
// visitor, it lets the same traversal that builds a report also feed the
// audit log.
type EventTable struct {
	ctx     context.Context
	capture *eventlog.Capture
}

// NewEventTable creates a table that emits events through capture.
// The context bounds every event write issued during the traversal.
func NewEventTable(ctx context.Context, capture *eventlog.Capture) *EventTable {
	return &EventTable{ctx: ctx, capture: capture}
}

// VisitRow emits a pass-qc or not-pass-qc event for a status row.
// Non-status rows are rejected; wire this table to a status visitor.
func (t *EventTable) VisitRow(row model.Row) error {
	status, ok := row.(model.StatusRow)
	if !ok {
		return errors.New(errors.CodeInvalidEvent, "event table requires status rows")
	}

	if status.Status == model.StatusPass {
		return t.capture.PassQC(t.ctx, status.Visit)
	}
	return t.capture.NotPassQC(t.ctx, status.Visit)
}
