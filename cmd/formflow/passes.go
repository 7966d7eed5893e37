package main

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/formflow/formflow/pkg/checkpoint"
	"github.com/formflow/formflow/pkg/config"
	"github.com/formflow/formflow/pkg/tui"
)

var cleanupMaxAge time.Duration

var passesCmd = &cobra.Command{
	Use:   "passes",
	Short: "Inspect and clean up scheduling pass checkpoints",
}

var passesListCmd = &cobra.Command{
	Use:   "list",
	Short: "List incomplete scheduling passes",
	RunE:  runPassesList,
}

var cleanupYes bool

var passesCleanupCmd = &cobra.Command{
	Use:   "cleanup",
	Short: "Remove completed pass checkpoints older than --max-age",
	RunE:  runPassesCleanup,
}

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Show the effective configuration",
	RunE:  runConfigShow,
}

func init() {
	passesCleanupCmd.Flags().DurationVar(&cleanupMaxAge, "max-age", 7*24*time.Hour, "Age threshold for removing completed passes")
	passesCleanupCmd.Flags().BoolVarP(&cleanupYes, "yes", "y", false, "Skip the confirmation prompt")

	passesCmd.AddCommand(passesListCmd)
	passesCmd.AddCommand(passesCleanupCmd)
}

func runPassesList(cmd *cobra.Command, args []string) error {
	cfg := config.Global().Get()

	ctx, cancel := signalContext()
	defer cancel()

	backend, err := backendFor(ctx, cfg)
	if err != nil {
		return err
	}

	incomplete, err := backend.ListIncomplete(ctx)
	if err != nil {
		return err
	}

	if len(incomplete) == 0 {
		fmt.Println("No incomplete passes.")
		return nil
	}

	for _, cp := range incomplete {
		fmt.Printf("%s  project=%s  phase=%s  dispatched=%d/%d  started=%s\n",
			cp.ID, cp.Project, cp.Phase, cp.DispatchedCount(), cp.QueuedTotal,
			cp.StartedAt.Format(time.RFC3339))
	}
	return nil
}

func runPassesCleanup(cmd *cobra.Command, args []string) error {
	cfg := config.Global().Get()

	ctx, cancel := signalContext()
	defer cancel()

	backend, err := backendFor(ctx, cfg)
	if err != nil {
		return err
	}

	if !cleanupYes {
		ok, err := tui.Confirm(fmt.Sprintf("Remove completed passes older than %s?", cleanupMaxAge))
		if err != nil {
			return err
		}
		if !ok {
			fmt.Println("Aborted.")
			return nil
		}
	}

	removed, err := checkpoint.NewPassManager(backend).Cleanup(ctx, cleanupMaxAge)
	if err != nil {
		return err
	}

	fmt.Printf("Removed %d completed passes.\n", removed)
	return nil
}


func runConfigShow(cmd *cobra.Command, args []string) error {
	mgr := config.Global()

	data, err := yaml.Marshal(mgr.Get())
	if err != nil {
		return err
	}

	fmt.Print(string(data))

	if verbose {
		fmt.Println("\nLoaded from:")
		for _, path := range mgr.GetPaths() {
			fmt.Printf("  %s\n", path)
		}
	}
	return nil
}
