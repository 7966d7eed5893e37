// FormFlow - form submission scheduling and QC report aggregation.
// Runs the scheduling and report "gears" against a local project directory
// or a hosted project container.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/formflow/formflow/pkg/checkpoint"
	"github.com/formflow/formflow/pkg/config"
	"github.com/formflow/formflow/pkg/eventlog"
	"github.com/formflow/formflow/pkg/telemetry"
)

var (
	version = "0.1.0"
	commit  = "dev"
)

// Global flags
var verbose bool

var rootCmd = &cobra.Command{
	Use:   "formflow",
	Short: "FormFlow - schedule form submissions and aggregate QC reports",
	Long: `FormFlow runs the form-submission pipeline gears: a scheduler that
drains newly submitted files per module in round-robin order, and a report
aggregator that walks per-file QC metadata into status and error tables.`,
	Version: fmt.Sprintf("%s (%s)", version, commit),
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "Enable verbose output")

	rootCmd.AddCommand(scheduleCmd)
	rootCmd.AddCommand(watchCmd)
	rootCmd.AddCommand(reportCmd)
	rootCmd.AddCommand(eventsCmd)
	rootCmd.AddCommand(passesCmd)
	rootCmd.AddCommand(configCmd)
}

// signalContext returns a context cancelled on SIGINT/SIGTERM.
func signalContext() (context.Context, context.CancelFunc) {
	ctx, cancel := context.WithCancel(context.Background())

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sigChan
		fmt.Println("\nInterrupted, cleaning up...")
		cancel()
	}()

	return ctx, cancel
}

// initTelemetry starts the OTLP exporter when enabled. The returned
// shutdown is a no-op when telemetry is off.
func initTelemetry(cfg *config.Config, service string) func(context.Context) error {
	if !cfg.Telemetry.Enabled {
		return func(context.Context) error { return nil }
	}

	otlpCfg := telemetry.DefaultOTLPConfig(service)
	if cfg.Telemetry.Endpoint != "" {
		otlpCfg.Endpoint = cfg.Telemetry.Endpoint
	}
	otlpCfg.ServiceVersion = version
	otlpCfg.Environment = cfg.EventLog.Env

	shutdown, err := telemetry.InitOTLP(otlpCfg)
	if err != nil {
		fmt.Fprintf(os.Stderr, "warning: telemetry disabled: %v\n", err)
		return func(context.Context) error { return nil }
	}
	return shutdown
}

// buildCapture wires the S3 event log when enabled. Returns nil when the
// event log is off so callers can skip event emission.
func buildCapture(ctx context.Context, cfg *config.Config, pipeline, gear string) (*eventlog.Capture, error) {
	if !cfg.EventLog.Enabled || cfg.EventLog.Bucket == "" {
		return nil, nil
	}

	s3cfg := eventlog.DefaultS3Config(cfg.EventLog.Bucket)
	s3cfg.Region = cfg.EventLog.Region
	s3cfg.Endpoint = cfg.EventLog.Endpoint

	store, err := eventlog.NewS3Store(ctx, s3cfg)
	if err != nil {
		return nil, fmt.Errorf("failed to open event log store: %w", err)
	}

	return eventlog.NewCapture(eventlog.NewLogger(store, cfg.EventLog.Env), eventlog.CaptureConfig{
		Pipeline: pipeline,
		Project:  cfg.Center.Project,
		Center:   cfg.Center.Name,
		Gear:     gear,
	}), nil
}

// backendFor builds one checkpoint backend from config. Composite values
// like "local+s3" mirror every save to a secondary backend.
func backendFor(ctx context.Context, cfg *config.Config) (checkpoint.Backend, error) {
	names := strings.SplitN(cfg.Checkpoint.Backend, "+", 2)

	backends := make([]checkpoint.Backend, 0, len(names))
	for _, name := range names {
		var backend checkpoint.Backend
		var err error

		switch strings.TrimSpace(name) {
		case "", "local":
			backend, err = checkpoint.NewLocalBackend(cfg.Checkpoint.Dir)
		case "s3":
			backend, err = checkpoint.NewS3Backend(ctx, checkpoint.DefaultS3Config(cfg.Checkpoint.Bucket))
		case "redis":
			backend, err = checkpoint.NewRedisBackend(checkpoint.DefaultRedisConfig(cfg.Checkpoint.RedisAddress))
		default:
			return nil, fmt.Errorf("unknown checkpoint backend: %s", name)
		}
		if err != nil {
			return nil, fmt.Errorf("failed to open checkpoint backend %q: %w", name, err)
		}
		backends = append(backends, backend)
	}

	if len(backends) == 2 {
		return checkpoint.NewMultiBackend(backends[0], backends[1]), nil
	}
	return backends[0], nil
}

// buildCheckpoints wires the configured checkpoint backend.
func buildCheckpoints(ctx context.Context, cfg *config.Config) (*checkpoint.PassManager, error) {
	backend, err := backendFor(ctx, cfg)
	if err != nil {
		return nil, err
	}
	return checkpoint.NewPassManager(backend), nil
}
