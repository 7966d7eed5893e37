package main

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/spf13/cobra"

	"github.com/formflow/formflow/pkg/config"
	"github.com/formflow/formflow/pkg/platform"
	"github.com/formflow/formflow/pkg/scheduler"
	"github.com/formflow/formflow/pkg/telemetry"
	"github.com/formflow/formflow/pkg/tui"
	"github.com/formflow/formflow/pkg/watch"
)

// Schedule flags
var (
	inboxDir      string
	outboxDir     string
	scheduleADCID int
	projectLabel  string
	noCheckpoint  bool
)

var scheduleCmd = &cobra.Command{
	Use:   "schedule",
	Short: "Run one scheduling pass over an inbox directory",
	Long: `Collect form submissions from the inbox into per-module queues and
drain them round-robin, moving each dispatched file into the outbox under
its module directory.

Examples:
  formflow schedule --inbox ./inbox --outbox ./dispatched --adcid 42
  formflow schedule --inbox ./inbox --outbox ./dispatched --no-checkpoint`,
	RunE: runSchedule,
}

var watchCmd = &cobra.Command{
	Use:   "watch",
	Short: "Watch the inbox and schedule new submissions as they arrive",
	Long: `Run scheduling passes continuously: every debounced burst of inbox
changes triggers one pass.

Example:
  formflow watch --inbox ./inbox --outbox ./dispatched --adcid 42`,
	RunE: runWatch,
}

func init() {
	for _, cmd := range []*cobra.Command{scheduleCmd, watchCmd} {
		cmd.Flags().StringVar(&inboxDir, "inbox", "", "Inbox directory with submitted files (required)")
		cmd.Flags().StringVar(&outboxDir, "outbox", "", "Directory dispatched files are moved to (required)")
		cmd.Flags().IntVar(&scheduleADCID, "adcid", 0, "Center ID (overrides config)")
		cmd.Flags().StringVar(&projectLabel, "project", "", "Project label (overrides config)")
		cmd.Flags().BoolVar(&noCheckpoint, "no-checkpoint", false, "Disable pass checkpointing")
		cmd.MarkFlagRequired("inbox")
		cmd.MarkFlagRequired("outbox")
	}
}

// buildDispatcher assembles the scheduling gear from config and flags.
func buildDispatcher(ctx context.Context, cfg *config.Config) (*scheduler.Dispatcher, error) {
	adcid := cfg.Center.ADCID
	if scheduleADCID != 0 {
		adcid = scheduleADCID
	}
	if adcid == 0 {
		return nil, fmt.Errorf("no center ID: set --adcid or center.adcid in config")
	}

	handler := func(ctx context.Context, module string, file scheduler.QueuedFile) error {
		destDir := filepath.Join(outboxDir, module)
		if err := os.MkdirAll(destDir, 0755); err != nil {
			return err
		}
		if err := os.Rename(filepath.Join(inboxDir, file.Name), filepath.Join(destDir, file.Name)); err != nil {
			return err
		}
		// Carry the QC sidecar along when present.
		sidecar := file.Name + ".qc.json"
		if _, err := os.Stat(filepath.Join(inboxDir, sidecar)); err == nil {
			os.Rename(filepath.Join(inboxDir, sidecar), filepath.Join(destDir, sidecar))
		}
		if verbose {
			fmt.Printf("  dispatched %s -> %s\n", file.Name, destDir)
		}
		return nil
	}

	d := scheduler.NewDispatcher(adcid, cfg.Scheduler.ModuleOrder, handler).
		WithQueueTags(cfg.Scheduler.QueueTags...).
		WithExtensions(cfg.Scheduler.Extensions...)

	capture, err := buildCapture(ctx, cfg, "submission", "form-scheduler")
	if err != nil {
		return nil, err
	}
	if capture != nil {
		d = d.WithCapture(capture)
	}

	if !noCheckpoint {
		passes, err := buildCheckpoints(ctx, cfg)
		if err != nil {
			return nil, err
		}
		d = d.WithCheckpoints(passes)
	}

	return d, nil
}

func schedulingPass(ctx context.Context, cfg *config.Config, d *scheduler.Dispatcher, label string) error {
	project := platform.NewLocalProject(label, inboxDir)
	project.DefaultTags = cfg.Scheduler.QueueTags

	ctx, span := telemetry.StartSpan(ctx, "scheduling-pass")
	defer span.End()

	start := time.Now()
	stats, err := d.Run(ctx, project)
	if err != nil {
		telemetry.RecordError(ctx, err)
		return err
	}

	tui.PrintPassSummary(tui.PassSummary{
		PassID:     stats.PassID,
		Project:    label,
		Queued:     stats.Queued,
		Dispatched: stats.Dispatched,
		Skipped:    stats.Skipped,
		Resumed:    stats.Resumed,
		Duration:   time.Since(start),
	})
	return nil
}

func runSchedule(cmd *cobra.Command, args []string) error {
	cfg := config.Global().Get()
	if verbose {
		tui.PrintHeader(version)
	}
	label := projectLabel
	if label == "" {
		label = cfg.Center.Project
	}
	if label == "" {
		label = filepath.Base(inboxDir)
	}

	ctx, cancel := signalContext()
	defer cancel()

	shutdown := initTelemetry(cfg, "formflow-scheduler")
	defer shutdown(context.Background())

	d, err := buildDispatcher(ctx, cfg)
	if err != nil {
		return err
	}

	return schedulingPass(ctx, cfg, d, label)
}

func runWatch(cmd *cobra.Command, args []string) error {
	cfg := config.Global().Get()
	label := projectLabel
	if label == "" {
		label = cfg.Center.Project
	}
	if label == "" {
		label = filepath.Base(inboxDir)
	}

	ctx, cancel := signalContext()
	defer cancel()

	shutdown := initTelemetry(cfg, "formflow-scheduler")
	defer shutdown(context.Background())

	d, err := buildDispatcher(ctx, cfg)
	if err != nil {
		return err
	}

	watcher, err := watch.NewInboxWatcher(inboxDir, cfg.Scheduler.Extensions)
	if err != nil {
		return err
	}
	defer watcher.Close()

	watcher.OnBatch = func(ctx context.Context) error {
		return schedulingPass(ctx, cfg, d, label)
	}
	watcher.OnError = func(err error) {
		fmt.Fprintf(os.Stderr, "watch error: %v\n", err)
	}

	// Drain whatever is already sitting in the inbox before watching.
	if err := schedulingPass(ctx, cfg, d, label); err != nil {
		return err
	}

	fmt.Printf("Watching %s (Ctrl-C to stop)\n", inboxDir)
	if err := watcher.Run(ctx); err != nil && err != context.Canceled {
		return err
	}
	return nil
}
