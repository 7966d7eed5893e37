package report

import (
	"context"
	"log"

	"github.com/formflow/formflow/internal/model"
	"github.com/formflow/formflow/pkg/errors"
	"github.com/formflow/formflow/pkg/eventlog"
	"github.com/formflow/formflow/pkg/platform"
)

// VisitorFactory builds the file-level visitor applied to one QC artifact.
// A fresh visitor per file lets implementations keep per-file state.
type VisitorFactory func(file platform.FileInfo, adcid int) FileVisitor

// FileFilter is a predicate over project files.
type FileFilter func(file platform.FileInfo) bool

// ProjectReportVisitor drives one report pass over a project: it iterates
// the project's files, keeps the QC artifacts that pass the module, ptid,
// and modification-time filters, recovers each artifact's visit identity,
// and applies a file-level visitor built by the factory.
//
// State is private to one pass; visitors are not safe for concurrent use.
// To parallelize across projects, give each project its own visitor and
// merge at the table boundary.
type ProjectReportVisitor struct {
	adcid   int
	factory VisitorFactory

	modules  map[string]bool
	ptids    map[string]bool
	modified FileFilter
	artifact FileFilter

	visited int
	skipped int
}

// NewProjectReportVisitor creates a driver for one center's project.
// By default every file whose name or metadata yields a visit identity is
// treated as a QC artifact; use the With* builders to narrow the pass.
func NewProjectReportVisitor(adcid int, factory VisitorFactory) *ProjectReportVisitor {
	return &ProjectReportVisitor{
		adcid:    adcid,
		factory:  factory,
		artifact: defaultArtifactFilter,
	}
}

// WithModules restricts the pass to the given module names
// (case-insensitive).
func (v *ProjectReportVisitor) WithModules(modules ...string) *ProjectReportVisitor {
	v.modules = make(map[string]bool, len(modules))
	for _, m := range modules {
		v.modules[model.CanonicalModule(m)] = true
	}
	return v
}

// WithPTIDs restricts the pass to the given participant IDs.
func (v *ProjectReportVisitor) WithPTIDs(ptids ...string) *ProjectReportVisitor {
	v.ptids = make(map[string]bool, len(ptids))
	for _, p := range ptids {
		v.ptids[p] = true
	}
	return v
}

// WithModifiedFilter restricts the pass to files matching the predicate,
// typically a modification-time cutoff for incremental reports.
func (v *ProjectReportVisitor) WithModifiedFilter(f FileFilter) *ProjectReportVisitor {
	v.modified = f
	return v
}

// WithArtifactFilter overrides the convention that decides which files are
// QC artifacts.
func (v *ProjectReportVisitor) WithArtifactFilter(f FileFilter) *ProjectReportVisitor {
	v.artifact = f
	return v
}

// defaultArtifactFilter keeps files whose structured metadata or filename
// yields at least a participant and module.
func defaultArtifactFilter(file platform.FileInfo) bool {
	key := eventlog.MatchKeyFromFile(file)
	return key.PTID != "" && key.Module != ""
}

// Run executes one pass over the project. Files that fail the transformer
// integrity gate are logged and skipped so one malformed artifact does not
// abort the report; all other errors abort the pass.
func (v *ProjectReportVisitor) Run(ctx context.Context, project platform.ProjectSource) error {
	files, err := project.Files(ctx)
	if err != nil {
		return errors.Wrap(err, errors.CodeReadFailed, "failed to list project files").
			WithContext("project", project.Label())
	}

	for _, file := range files {
		if err := ctx.Err(); err != nil {
			return errors.ContextCanceled("report pass")
		}

		if !v.artifact(file) {
			continue
		}
		if v.modified != nil && !v.modified(file) {
			continue
		}

		key := eventlog.MatchKeyFromFile(file)
		if v.modules != nil && !v.modules[key.Module] {
			continue
		}
		if v.ptids != nil && !v.ptids[key.PTID] {
			continue
		}

		qc, err := project.QC(ctx, file.Name)
		if err != nil {
			return errors.Wrap(err, errors.CodeReadFailed, "failed to read QC metadata").
				WithContext("file", file.Name)
		}

		visit := model.VisitKeys{
			ADCID:  v.adcid,
			PTID:   key.PTID,
			Module: key.Module,
			Date:   key.Date,
		}

		visitor := v.factory(file, v.adcid)
		if err := visitor.Visit(visit, qc); err != nil {
			if errors.IsIntegrity(err) {
				log.Printf("skipping file %q in project %q: %v", file.Name, project.Label(), err)
				v.skipped++
				continue
			}
			return err
		}
		v.visited++
	}

	return nil
}

// Visited returns the number of artifacts a visitor was applied to during
// the last run.
func (v *ProjectReportVisitor) Visited() int { return v.visited }

// Skipped returns the number of artifacts dropped by the integrity gate
// during the last run.
func (v *ProjectReportVisitor) Skipped() int { return v.skipped }
