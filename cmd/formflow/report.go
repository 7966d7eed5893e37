package main

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/schollz/progressbar/v3"
	"github.com/spf13/cobra"

	"github.com/formflow/formflow/internal/model"
	"github.com/formflow/formflow/pkg/config"
	"github.com/formflow/formflow/pkg/platform"
	"github.com/formflow/formflow/pkg/report"
	"github.com/formflow/formflow/pkg/telemetry"
	"github.com/formflow/formflow/pkg/tui"
)

// Report flags
var (
	projectDirs  []string
	reportADCID  int
	moduleFilter []string
	ptidFilter   []string
	sinceFlag    string
	errorReport  bool
	firstError   bool
	formatFlag   string
	outputPath   string
	emitEvents   bool
)

var reportCmd = &cobra.Command{
	Use:   "report",
	Short: "Aggregate per-file QC metadata into a status or error report",
	Long: `Walk one or more project directories and project their QC metadata
into a flat report. Status reports carry one row per (visit, gear) with the
gear's pass/fail outcome; error reports carry one row per structured error.

Examples:
  formflow report --project ./dispatched --adcid 42 -o status.csv
  formflow report --project ./dispatched --adcid 42 --modules UDS,FTLD -o status.csv
  formflow report --project ./dispatched --adcid 42 --errors -o errors.csv
  formflow report --project ./dispatched --adcid 42 --format xlsx -o status.xlsx
  formflow report --project ./dispatched --adcid 42 --emit-events`,
	RunE: runReport,
}

func init() {
	reportCmd.Flags().StringArrayVar(&projectDirs, "project", nil, "Project directory, repeatable (required)")
	reportCmd.Flags().IntVar(&reportADCID, "adcid", 0, "Center ID (overrides config)")
	reportCmd.Flags().StringSliceVar(&moduleFilter, "modules", nil, "Restrict to modules (e.g., UDS,FTLD)")
	reportCmd.Flags().StringSliceVar(&ptidFilter, "ptids", nil, "Restrict to participant IDs")
	reportCmd.Flags().StringVar(&sinceFlag, "since", "", "Only files modified after this date (YYYY-MM-DD)")
	reportCmd.Flags().BoolVar(&errorReport, "errors", false, "Produce an error report instead of a status report")
	reportCmd.Flags().BoolVar(&firstError, "first-error", false, "With --errors, keep only the first error per file")
	reportCmd.Flags().StringVarP(&formatFlag, "format", "f", "", "Output format: csv | xlsx (default from config)")
	reportCmd.Flags().StringVarP(&outputPath, "output", "o", "", "Output file path (csv defaults to stdout)")
	reportCmd.Flags().BoolVar(&emitEvents, "emit-events", false, "Also emit pass-qc/not-pass-qc events to the event log")
	reportCmd.MarkFlagRequired("project")
}

func runReport(cmd *cobra.Command, args []string) error {
	cfg := config.Global().Get()
	if verbose {
		tui.PrintHeader(version)
	}

	adcid := cfg.Center.ADCID
	if reportADCID != 0 {
		adcid = reportADCID
	}
	if adcid == 0 {
		return fmt.Errorf("no center ID: set --adcid or center.adcid in config")
	}

	format := formatFlag
	if format == "" {
		format = cfg.Report.Format
	}

	ctx, cancel := signalContext()
	defer cancel()

	shutdown := initTelemetry(cfg, "formflow-report")
	defer shutdown(context.Background())

	ctx, span := telemetry.StartSpan(ctx, "report-pass")
	defer span.End()

	// Output table
	memory := report.NewMemoryTable()
	tables := []report.TableVisitor{memory}

	var csvFile *os.File
	var csvTable *report.CSVTable
	var xlsxTable *report.XLSXTable
	switch format {
	case "csv":
		if outputPath == "" {
			// No output file: the report goes to stdout.
			csvTable = report.NewCSVTable(os.Stdout)
		} else {
			var err error
			csvFile, err = os.Create(outputPath)
			if err != nil {
				return fmt.Errorf("failed to create output file: %w", err)
			}
			defer csvFile.Close()
			csvTable = report.NewCSVTable(csvFile)
		}
		tables = append(tables, csvTable)
	case "xlsx":
		if outputPath == "" {
			return fmt.Errorf("--output is required for xlsx reports")
		}
		var err error
		xlsxTable, err = report.NewXLSXTable("QC Report")
		if err != nil {
			return err
		}
		defer xlsxTable.Close()
		tables = append(tables, xlsxTable)
	default:
		return fmt.Errorf("unknown report format: %s", format)
	}

	if emitEvents {
		if errorReport {
			return fmt.Errorf("--emit-events requires a status report")
		}
		capture, err := buildCapture(ctx, cfg, "submission", "form-qc-report")
		if err != nil {
			return err
		}
		if capture == nil {
			return fmt.Errorf("--emit-events requires eventlog.bucket in config")
		}
		tables = append(tables, report.NewEventTable(ctx, capture))
	}

	shared := report.NewSyncTable(fanOut(tables))

	factory := func(file platform.FileInfo, adcid int) report.FileVisitor {
		if !errorReport {
			return report.NewStatusVisitor(report.StatusRowTransformer, shared)
		}
		if firstError {
			return report.NewFirstErrorVisitor(report.ErrorRowTransformer, shared)
		}
		return report.NewErrorVisitor(report.ErrorRowTransformer, shared)
	}

	var bar *progressbar.ProgressBar
	if len(projectDirs) > 1 && !verbose && outputPath != "" {
		// The bar shares stdout with a stdout CSV report, so it only runs
		// when the report goes to a file.
		bar = tui.ShowProgress(int64(len(projectDirs)), "Aggregating projects")
	}

	// One job per project, independent visitor state, merged at the table.
	var jobs []report.Job
	for _, dir := range projectDirs {
		visitor := report.NewProjectReportVisitor(adcid, factory)
		if len(moduleFilter) > 0 {
			visitor = visitor.WithModules(moduleFilter...)
		} else if len(cfg.Report.Modules) > 0 {
			visitor = visitor.WithModules(cfg.Report.Modules...)
		}
		if len(ptidFilter) > 0 {
			visitor = visitor.WithPTIDs(ptidFilter...)
		}
		if sinceFlag != "" {
			cutoff, err := time.Parse("2006-01-02", sinceFlag)
			if err != nil {
				return fmt.Errorf("invalid --since date: %w", err)
			}
			visitor = visitor.WithModifiedFilter(func(f platform.FileInfo) bool {
				return f.Modified.After(cutoff)
			})
		}

		job := report.Job{
			Project: platform.NewLocalProject(filepath.Base(dir), dir),
			Visitor: visitor,
		}
		if bar != nil {
			job.Done = func() { bar.Add(1) }
		}
		jobs = append(jobs, job)
	}

	start := time.Now()
	if err := report.RunProjects(ctx, jobs, cfg.Report.Workers); err != nil {
		telemetry.RecordError(ctx, err)
		return err
	}
	if bar != nil {
		bar.Finish()
	}

	if csvTable != nil {
		if err := csvTable.Flush(); err != nil {
			return err
		}
	}
	if xlsxTable != nil {
		if err := xlsxTable.SaveAs(outputPath); err != nil {
			return err
		}
	}

	if format == "csv" && outputPath == "" {
		// The rows on stdout are the deliverable; keep them pipeable.
		return nil
	}

	visited, skipped := 0, 0
	for _, job := range jobs {
		visited += job.Visitor.Visited()
		skipped += job.Visitor.Skipped()
	}

	tui.PrintReportSummary(tui.ReportSummary{
		Projects: len(jobs),
		Rows:     memory.Len(),
		Visited:  visited,
		Skipped:  skipped,
		Output:   outputPath,
		Duration: time.Since(start),
	})
	return nil
}

// fanOutTable forwards each row to every table in order.
type fanOutTable struct {
	tables []report.TableVisitor
}

func fanOut(tables []report.TableVisitor) report.TableVisitor {
	if len(tables) == 1 {
		return tables[0]
	}
	return &fanOutTable{tables: tables}
}

func (t *fanOutTable) VisitRow(row model.Row) error {
	for _, table := range t.tables {
		if err := table.VisitRow(row); err != nil {
			return err
		}
	}
	return nil
}
