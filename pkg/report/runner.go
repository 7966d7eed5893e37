package report

import (
	"context"

	"golang.org/x/sync/errgroup"

	"github.com/formflow/formflow/pkg/platform"
)

// Job pairs one project with the visitor that will walk it. Each job owns
// its visitor exclusively; shared output must go through a SyncTable.
type Job struct {
	Project platform.ProjectSource
	Visitor *ProjectReportVisitor

	// Done, when set, is called after the job's pass succeeds. It may be
	// called from any worker goroutine.
	Done func()
}

// RunProjects executes report passes over several projects concurrently,
// bounded by limit workers (0 means unbounded). The first failing pass
// cancels the rest.
func RunProjects(ctx context.Context, jobs []Job, limit int) error {
	g, ctx := errgroup.WithContext(ctx)
	if limit > 0 {
		g.SetLimit(limit)
	}

	for _, job := range jobs {
		job := job
		g.Go(func() error {
			if err := job.Visitor.Run(ctx, job.Project); err != nil {
				return err
			}
			if job.Done != nil {
				job.Done()
			}
			return nil
		})
	}

	return g.Wait()
}
