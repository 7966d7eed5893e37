package scheduler

import (
	"context"
	"log"
	"time"

	"github.com/google/uuid"

	"github.com/formflow/formflow/internal/model"
	"github.com/formflow/formflow/pkg/checkpoint"
	"github.com/formflow/formflow/pkg/errors"
	"github.com/formflow/formflow/pkg/eventlog"
	"github.com/formflow/formflow/pkg/platform"
	"github.com/formflow/formflow/pkg/retry"
)

// Handler hands one queued file to downstream processing.
type Handler func(ctx context.Context, module string, file QueuedFile) error

// passLockTTL bounds how long a crashed scheduler can hold a project lock.
const passLockTTL = 5 * time.Minute

// autoSaveInterval is how often dispatch progress is checkpointed during
// the drain loop, in addition to the final save.
const autoSaveInterval = 5 * time.Second

// Dispatcher runs one scheduling pass: it collects a project's newly tagged
// files into a PipelineQueue, then drains the queue round-robin, invoking
// the handler once per file. Dispatch progress is checkpointed so an
// interrupted pass resumes without re-triggering files already handed off.
type Dispatcher struct {
	adcid   int
	handler Handler

	moduleOrder []string
	queueTags   []string
	extensions  []string

	capture *eventlog.Capture
	passes  *checkpoint.PassManager
	retry   retry.Policy
}

// NewDispatcher creates a dispatcher for one center. Unrecognized module
// names in order are dropped.
func NewDispatcher(adcid int, order []string, handler Handler) *Dispatcher {
	return &Dispatcher{
		adcid:       adcid,
		handler:     handler,
		moduleOrder: knownModuleOrder(order),
		retry:       retry.DefaultPolicy(),
	}
}

// WithQueueTags requires files to carry every given tag to be queued.
func (d *Dispatcher) WithQueueTags(tags ...string) *Dispatcher {
	d.queueTags = tags
	return d
}

// WithExtensions restricts queued files to the given extensions
// (e.g., ".csv", ".json").
func (d *Dispatcher) WithExtensions(exts ...string) *Dispatcher {
	d.extensions = exts
	return d
}

// WithCapture emits a submit event for every dispatched file.
func (d *Dispatcher) WithCapture(c *eventlog.Capture) *Dispatcher {
	d.capture = c
	return d
}

// WithCheckpoints enables pass resume through the given manager.
func (d *Dispatcher) WithCheckpoints(m *checkpoint.PassManager) *Dispatcher {
	d.passes = m
	return d
}

// WithRetry overrides the per-file dispatch retry policy.
func (d *Dispatcher) WithRetry(p retry.Policy) *Dispatcher {
	d.retry = p
	return d
}

// PassStats summarizes one completed scheduling pass.
type PassStats struct {
	PassID     string
	Queued     int
	Dispatched int
	Skipped    int
	Resumed    bool
}

// Run executes one scheduling pass over the project.
func (d *Dispatcher) Run(ctx context.Context, project platform.ProjectSource) (PassStats, error) {
	stats := PassStats{PassID: uuid.NewString()}

	files, err := project.Files(ctx)
	if err != nil {
		return stats, errors.Wrap(err, errors.CodeReadFailed, "failed to list project files").
			WithContext("project", project.Label())
	}

	queue := NewPipelineQueue(d.moduleOrder, d.queueTags)
	stats.Queued = queue.AddFiles(files, d.extensions)
	stats.Skipped = queue.Skipped()

	var cp *checkpoint.Checkpoint
	if d.passes != nil {
		lock, err := d.passes.LockProject(ctx, project.Label(), passLockTTL)
		if err != nil {
			return stats, errors.Wrap(err, errors.CodeTransient, "project is being scheduled by another instance").
				WithContext("project", project.Label())
		}
		defer lock.Release(ctx)

		cp, stats.Resumed, err = d.passes.FindOrCreate(ctx, stats.PassID, project.Label(), queue.Modules())
		if err != nil {
			return stats, errors.Wrap(err, errors.CodeWriteFailed, "failed to open pass checkpoint")
		}
		if stats.Resumed {
			stats.PassID = cp.ID
			log.Printf("scheduler: resuming pass %s for project %s (%d files already dispatched)",
				cp.ID, project.Label(), cp.DispatchedCount())
		}
		cp.SetQueueShape(queue.Len(), queue.Skipped())
		cp.SetPhase(checkpoint.PhaseDispatching)
		if err := d.passes.Save(ctx, cp); err != nil {
			return stats, errors.Wrap(err, errors.CodeWriteFailed, "failed to save pass checkpoint")
		}

		// A killed pass resumes from the last tick, not from zero.
		stopAutoSave := d.passes.StartAutoSave(ctx, cp, autoSaveInterval)
		defer stopAutoSave()
	}

	for !queue.Empty() {
		if err := ctx.Err(); err != nil {
			return stats, errors.ContextCanceled("scheduling pass")
		}

		module, bucket := queue.NextQueue()
		if len(bucket) == 0 {
			continue
		}

		for _, file := range bucket {
			if cp != nil && cp.WasDispatched(module, file.Name) {
				continue
			}

			err := d.retry.Do(ctx, "dispatch "+file.Name, func(ctx context.Context) error {
				return d.handler(ctx, module, file)
			})
			if err != nil {
				if cp != nil {
					if saveErr := d.passes.Save(ctx, cp); saveErr != nil {
						log.Printf("scheduler: failed to save checkpoint after dispatch failure: %v", saveErr)
					}
				}
				return stats, errors.Wrap(err, errors.CodeWriteFailed, "failed to dispatch file").
					WithContext("file", file.Name).
					WithContext("module", module)
			}

			stats.Dispatched++
			if cp != nil {
				cp.MarkDispatched(module, file.Name)
			}
			if d.capture != nil {
				d.emitSubmit(ctx, module, file)
			}
		}

		queue.Clear(module)
	}

	if cp != nil {
		if err := d.passes.Complete(ctx, cp); err != nil {
			return stats, errors.Wrap(err, errors.CodeWriteFailed, "failed to complete pass checkpoint")
		}
	}

	return stats, nil
}

// emitSubmit records a submit event for a dispatched file. Event failures
// are logged, not fatal: the dispatch already happened and the audit log is
// best-effort at this boundary.
func (d *Dispatcher) emitSubmit(ctx context.Context, module string, file QueuedFile) {
	key := eventlog.MatchKeyFromFile(platform.FileInfo{Name: file.Name, Info: file.Info})
	keys := model.VisitKeys{
		ADCID:  d.adcid,
		PTID:   key.PTID,
		Module: module,
		Date:   key.Date,
	}
	if err := d.capture.Submit(ctx, keys); err != nil {
		log.Printf("scheduler: failed to record submit event for %s: %v", file.Name, err)
	}
}
