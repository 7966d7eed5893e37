package report

import (
	"bytes"
	"context"
	"strings"
	"testing"
	"time"

	"github.com/formflow/formflow/internal/model"
	"github.com/formflow/formflow/pkg/errors"
	"github.com/formflow/formflow/pkg/eventlog"
	"github.com/formflow/formflow/pkg/platform"
)

func passFailQC() *model.FileQC {
	return model.FileQCFromMap(map[string]model.Validation{
		"gearA": {Status: model.StatusPass},
		"gearB": {
			Status: model.StatusFail,
			Errors: []model.QCError{{Message: "missing field X", Field: "X"}},
		},
	})
}

func testProject() *platform.MemoryProject {
	project := platform.NewMemoryProject("ingest-form")
	project.AddFile(platform.FileInfo{
		Name:     "110001-2025-04-01-UDS.json",
		Tags:     []string{"UDS"},
		Modified: time.Date(2025, 4, 2, 0, 0, 0, 0, time.UTC),
	}, passFailQC())
	project.AddFile(platform.FileInfo{
		Name:     "110001-2025-04-01-FTLD.json",
		Tags:     []string{"FTLD"},
		Modified: time.Date(2025, 4, 3, 0, 0, 0, 0, time.UTC),
	}, passFailQC())
	return project
}

func TestProjectReportVisitor_StatusScenario(t *testing.T) {
	table := NewMemoryTable()
	driver := NewProjectReportVisitor(42, func(platform.FileInfo, int) FileVisitor {
		return NewStatusVisitor(StatusRowTransformer, table)
	}).WithModules("UDS", "FTLD")

	if err := driver.Run(context.Background(), testProject()); err != nil {
		t.Fatalf("Run returned error: %v", err)
	}

	want := []struct {
		module string
		gear   string
		status model.QCStatus
	}{
		{"UDS", "gearA", model.StatusPass},
		{"UDS", "gearB", model.StatusFail},
		{"FTLD", "gearA", model.StatusPass},
		{"FTLD", "gearB", model.StatusFail},
	}

	rows := table.Rows()
	if len(rows) != len(want) {
		t.Fatalf("got %d rows, want %d", len(rows), len(want))
	}
	for i, w := range want {
		row := rows[i].(model.StatusRow)
		if row.Visit.Module != w.module || row.Gear != w.gear || row.Status != w.status {
			t.Errorf("row %d = (%s,%s,%s), want (%s,%s,%s)",
				i, row.Visit.Module, row.Gear, row.Status, w.module, w.gear, w.status)
		}
		if row.Visit.ADCID != 42 || row.Visit.PTID != "110001" || row.Visit.Date != "2025-04-01" {
			t.Errorf("row %d visit identity = %+v", i, row.Visit)
		}
	}
}

func TestProjectReportVisitor_ModuleFilter(t *testing.T) {
	table := NewMemoryTable()
	driver := NewProjectReportVisitor(42, func(platform.FileInfo, int) FileVisitor {
		return NewStatusVisitor(StatusRowTransformer, table)
	}).WithModules("uds")

	if err := driver.Run(context.Background(), testProject()); err != nil {
		t.Fatalf("Run returned error: %v", err)
	}

	if table.Len() != 2 {
		t.Fatalf("got %d rows, want 2", table.Len())
	}
	for _, row := range table.Rows() {
		if row.(model.StatusRow).Visit.Module != "UDS" {
			t.Errorf("FTLD rows leaked through the module filter: %+v", row)
		}
	}
}

func TestProjectReportVisitor_PTIDAndModifiedFilters(t *testing.T) {
	project := testProject()
	project.AddFile(platform.FileInfo{
		Name:     "220002-2025-04-01-UDS.json",
		Modified: time.Date(2025, 4, 2, 0, 0, 0, 0, time.UTC),
	}, passFailQC())

	table := NewMemoryTable()
	cutoff := time.Date(2025, 4, 2, 12, 0, 0, 0, time.UTC)
	driver := NewProjectReportVisitor(42, func(platform.FileInfo, int) FileVisitor {
		return NewStatusVisitor(StatusRowTransformer, table)
	}).
		WithPTIDs("110001").
		WithModifiedFilter(func(f platform.FileInfo) bool { return f.Modified.After(cutoff) })

	if err := driver.Run(context.Background(), project); err != nil {
		t.Fatalf("Run returned error: %v", err)
	}

	// Only the FTLD file for 110001 is both owned by the ptid and recent.
	if table.Len() != 2 {
		t.Fatalf("got %d rows, want 2", table.Len())
	}
	if table.Rows()[0].(model.StatusRow).Visit.Module != "FTLD" {
		t.Errorf("wrong file survived the filters: %+v", table.Rows()[0])
	}
}

func TestProjectReportVisitor_SkipsIntegrityFailures(t *testing.T) {
	project := platform.NewMemoryProject("ingest-form")
	// Legacy short name carries no visit date, so the identity gate fires.
	project.AddFile(platform.FileInfo{Name: "110001-UDS.csv"}, passFailQC())
	project.AddFile(platform.FileInfo{Name: "110001-2025-04-01-UDS.json"}, passFailQC())

	table := NewMemoryTable()
	driver := NewProjectReportVisitor(42, func(platform.FileInfo, int) FileVisitor {
		return NewStatusVisitor(StatusRowTransformer, table)
	})

	if err := driver.Run(context.Background(), project); err != nil {
		t.Fatalf("integrity failures must not abort the pass: %v", err)
	}
	if driver.Skipped() != 1 || driver.Visited() != 1 {
		t.Errorf("skipped=%d visited=%d, want 1 and 1", driver.Skipped(), driver.Visited())
	}
	if table.Len() != 2 {
		t.Errorf("got %d rows from the well-formed file, want 2", table.Len())
	}
}

func TestStatusRowTransformer_IdentityGate(t *testing.T) {
	complete := model.VisitKeys{ADCID: 42, PTID: "110001", Module: "UDS", Date: "2025-04-01"}

	tests := []struct {
		name     string
		mutate   func(*model.VisitKeys)
		wantCode errors.Code
	}{
		{"missing adcid", func(v *model.VisitKeys) { v.ADCID = 0 }, errors.CodeMissingIdentity},
		{"missing ptid", func(v *model.VisitKeys) { v.PTID = "" }, errors.CodeMissingIdentity},
		{"missing module", func(v *model.VisitKeys) { v.Module = "" }, errors.CodeMissingIdentity},
		{"missing date", func(v *model.VisitKeys) { v.Date = "" }, errors.CodeMissingIdentity},
		{"unknown module", func(v *model.VisitKeys) { v.Module = "CSF" }, errors.CodeUnknownModule},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			visit := complete
			tt.mutate(&visit)
			_, err := StatusRowTransformer("gearA", visit, model.StatusPass)
			if !errors.IsCode(err, tt.wantCode) {
				t.Errorf("got %v, want code %s", err, tt.wantCode)
			}
		})
	}

	if _, err := StatusRowTransformer("gearA", complete, model.StatusPass); err != nil {
		t.Errorf("complete identity rejected: %v", err)
	}
}

func TestErrorRowTransformer_FlattensLocations(t *testing.T) {
	visit := model.VisitKeys{ADCID: 42, PTID: "110001", Module: "UDS", Date: "2025-04-01"}

	row, err := ErrorRowTransformer("gearB", visit, model.QCError{
		Code:    "birthyr-range",
		Message: "value out of range",
		Field:   "BIRTHYR",
		Value:   "1802",
		CSV:     &model.CSVLocation{Line: 7, Column: "BIRTHYR"},
	})
	if err != nil {
		t.Fatalf("transformer returned error: %v", err)
	}

	er := row.(model.ErrorRow)
	if er.Line != "7" || er.Column != "BIRTHYR" || er.KeyPath != "" {
		t.Errorf("CSV location not flattened: %+v", er)
	}

	if _, err := ErrorRowTransformer("gearB", model.VisitKeys{PTID: "x"}, model.QCError{}); !errors.IsCode(err, errors.CodeMissingIdentity) {
		t.Errorf("identity gate did not fire: %v", err)
	}
}

func TestErrorVisitor_EmitsOnlyFailures(t *testing.T) {
	table := NewMemoryTable()
	visitor := NewErrorVisitor(ErrorRowTransformer, table)
	visit := model.VisitKeys{ADCID: 42, PTID: "110001", Module: "UDS", Date: "2025-04-01"}

	qc := model.FileQCFromMap(map[string]model.Validation{
		"gearA": {Status: model.StatusPass},
		"gearB": {Status: model.StatusFail, Errors: []model.QCError{
			{Message: "first"},
			{Message: "second"},
		}},
		"gearC": {Status: model.StatusFail, Errors: []model.QCError{
			{Message: "third"},
		}},
	})

	if err := visitor.Visit(visit, qc); err != nil {
		t.Fatalf("Visit returned error: %v", err)
	}

	want := []string{"first", "second", "third"}
	if table.Len() != len(want) {
		t.Fatalf("got %d rows, want %d", table.Len(), len(want))
	}
	for i, msg := range want {
		if got := table.Rows()[i].(model.ErrorRow).Message; got != msg {
			t.Errorf("row %d message = %q, want %q", i, got, msg)
		}
	}
}

func TestFirstErrorVisitor_ShortCircuits(t *testing.T) {
	table := NewMemoryTable()
	visitor := NewFirstErrorVisitor(ErrorRowTransformer, table)
	visit := model.VisitKeys{ADCID: 42, PTID: "110001", Module: "UDS", Date: "2025-04-01"}

	qc := model.FileQCFromMap(map[string]model.Validation{
		"gearA": {Status: model.StatusPass},
		"gearB": {Status: model.StatusFail, Errors: []model.QCError{
			{Message: "first"},
			{Message: "second"},
		}},
		"gearC": {Status: model.StatusFail, Errors: []model.QCError{
			{Message: "third"},
		}},
	})

	if err := visitor.Visit(visit, qc); err != nil {
		t.Fatalf("Visit returned error: %v", err)
	}
	if table.Len() != 1 {
		t.Fatalf("got %d rows, want 1", table.Len())
	}
	if got := table.Rows()[0].(model.ErrorRow).Message; got != "first" {
		t.Errorf("row message = %q, want first non-PASS gear's first error", got)
	}
}

func TestCSVTable_HeaderOnce(t *testing.T) {
	var buf bytes.Buffer
	table := NewCSVTable(&buf)
	visit := model.VisitKeys{ADCID: 42, PTID: "110001", Module: "UDS", Date: "2025-04-01", VisitNum: "1"}

	rows := []model.Row{
		model.StatusRow{Visit: visit, Gear: "gearA", Status: model.StatusPass},
		model.StatusRow{Visit: visit, Gear: "gearB", Status: model.StatusFail},
	}
	for _, row := range rows {
		if err := table.VisitRow(row); err != nil {
			t.Fatalf("VisitRow returned error: %v", err)
		}
	}
	if err := table.Flush(); err != nil {
		t.Fatalf("Flush returned error: %v", err)
	}

	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	if len(lines) != 3 {
		t.Fatalf("got %d lines, want header plus 2 records:\n%s", len(lines), buf.String())
	}
	if lines[0] != "adcid,ptid,module,visitdate,visitnum,gear,status" {
		t.Errorf("header = %q", lines[0])
	}
	if lines[1] != "42,110001,UDS,2025-04-01,1,gearA,PASS" {
		t.Errorf("record = %q", lines[1])
	}
}

func TestEventTable_EmitsQCEvents(t *testing.T) {
	store := eventlog.NewMemoryStore()
	capture := eventlog.NewCapture(eventlog.NewLogger(store, "prod"), eventlog.CaptureConfig{
		Project: "ingest-form",
		Gear:    "form-qc-checker",
	})
	table := NewEventTable(context.Background(), capture)
	visit := model.VisitKeys{ADCID: 42, PTID: "110001", Module: "UDS", Date: "2025-04-01"}

	if err := table.VisitRow(model.StatusRow{Visit: visit, Gear: "gearA", Status: model.StatusPass}); err != nil {
		t.Fatalf("VisitRow returned error: %v", err)
	}
	if err := table.VisitRow(model.StatusRow{Visit: visit, Gear: "gearB", Status: model.StatusFail}); err != nil {
		t.Fatalf("VisitRow returned error: %v", err)
	}

	keys := store.Keys()
	if len(keys) != 2 {
		t.Fatalf("store has %d events, want 2", len(keys))
	}

	var pass, notPass int
	for _, k := range keys {
		switch {
		case strings.Contains(k, "log-pass-qc-"):
			pass++
		case strings.Contains(k, "log-not-pass-qc-"):
			notPass++
		}
	}
	if pass != 1 || notPass != 1 {
		t.Errorf("pass=%d notPass=%d, want 1 and 1", pass, notPass)
	}

	if err := table.VisitRow(model.ErrorRow{Visit: visit}); !errors.IsCode(err, errors.CodeInvalidEvent) {
		t.Errorf("non-status rows should be rejected, got %v", err)
	}
}

func TestRunProjects_MergesAtTableBoundary(t *testing.T) {
	shared := NewSyncTable(NewMemoryTable())

	var jobs []Job
	for _, adcid := range []int{42, 43, 44} {
		jobs = append(jobs, Job{
			Project: testProject(),
			Visitor: NewProjectReportVisitor(adcid, func(platform.FileInfo, int) FileVisitor {
				return NewStatusVisitor(StatusRowTransformer, shared)
			}),
		})
	}

	if err := RunProjects(context.Background(), jobs, 2); err != nil {
		t.Fatalf("RunProjects returned error: %v", err)
	}

	// 3 projects, 2 files each, 2 gears per file.
	if got := shared.inner.(*MemoryTable).Len(); got != 12 {
		t.Errorf("merged table has %d rows, want 12", got)
	}
}

func TestRunProjects_PropagatesFailure(t *testing.T) {
	project := platform.NewMemoryProject("broken")
	// Artifact listed but no QC metadata registered: the pass must fail.
	project.AddFile(platform.FileInfo{Name: "110001-2025-04-01-UDS.json"}, nil)

	jobs := []Job{{
		Project: project,
		Visitor: NewProjectReportVisitor(42, func(platform.FileInfo, int) FileVisitor {
			return NewStatusVisitor(StatusRowTransformer, NewMemoryTable())
		}),
	}}

	if err := RunProjects(context.Background(), jobs, 1); !errors.IsCode(err, errors.CodeReadFailed) {
		t.Errorf("expected read failure, got %v", err)
	}
}
