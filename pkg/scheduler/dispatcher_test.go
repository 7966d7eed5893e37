package scheduler

import (
	"bytes"
	"context"
	"log"
	"os"
	"strings"
	"testing"
	"time"

	"github.com/formflow/formflow/pkg/checkpoint"
	"github.com/formflow/formflow/pkg/errors"
	"github.com/formflow/formflow/pkg/eventlog"
	"github.com/formflow/formflow/pkg/platform"
)

func dispatchProject() *platform.MemoryProject {
	project := platform.NewMemoryProject("ingest-form")
	base := time.Date(2025, 4, 1, 0, 0, 0, 0, time.UTC)

	project.AddFile(platform.FileInfo{
		Name: "110001-UDS.csv", Tags: []string{"queue"}, Modified: base.Add(2 * time.Hour),
	}, nil)
	project.AddFile(platform.FileInfo{
		Name: "220002-UDS.csv", Tags: []string{"queue"}, Modified: base.Add(1 * time.Hour),
	}, nil)
	project.AddFile(platform.FileInfo{
		Name: "110001-FTLD.csv", Tags: []string{"queue"}, Modified: base,
	}, nil)
	return project
}

func TestDispatcher_RoundRobinDrain(t *testing.T) {
	var order []string
	handler := func(ctx context.Context, module string, file QueuedFile) error {
		order = append(order, module+"/"+file.Name)
		return nil
	}

	d := NewDispatcher(42, []string{"UDS", "FTLD"}, handler).WithQueueTags("queue")

	stats, err := d.Run(context.Background(), dispatchProject())
	if err != nil {
		t.Fatalf("Run returned error: %v", err)
	}
	if stats.Queued != 3 || stats.Dispatched != 3 {
		t.Errorf("stats = %+v, want 3 queued and dispatched", stats)
	}

	// UDS bucket drains first (oldest mtime first), then FTLD.
	want := []string{
		"UDS/220002-UDS.csv",
		"UDS/110001-UDS.csv",
		"FTLD/110001-FTLD.csv",
	}
	if len(order) != len(want) {
		t.Fatalf("dispatched %v, want %v", order, want)
	}
	for i := range want {
		if order[i] != want[i] {
			t.Errorf("dispatch %d = %q, want %q", i, order[i], want[i])
		}
	}
}

func TestDispatcher_DropsUnknownModules(t *testing.T) {
	d := NewDispatcher(42, []string{"UDS", "BOGUS"}, func(context.Context, string, QueuedFile) error {
		return nil
	})
	if len(d.moduleOrder) != 1 || d.moduleOrder[0] != "UDS" {
		t.Errorf("module order = %v, want [UDS]", d.moduleOrder)
	}
}

func TestDispatcher_EmitsSubmitEvents(t *testing.T) {
	store := eventlog.NewMemoryStore()
	capture := eventlog.NewCapture(eventlog.NewLogger(store, "test"), eventlog.CaptureConfig{
		Pipeline: "submission",
		Project:  "ingest-form",
	})

	d := NewDispatcher(42, []string{"UDS", "FTLD"}, func(context.Context, string, QueuedFile) error {
		return nil
	}).WithQueueTags("queue").WithCapture(capture)

	if _, err := d.Run(context.Background(), dispatchProject()); err != nil {
		t.Fatalf("Run returned error: %v", err)
	}

	keys := store.Keys()
	if len(keys) != 3 {
		t.Fatalf("store has %d events, want 3", len(keys))
	}
	for _, k := range keys {
		if !strings.Contains(k, "log-submit-") {
			t.Errorf("unexpected event key %q", k)
		}
	}
}

// brittleBackend stores checkpoints in memory and starts failing saves
// after a set number of successes.
type brittleBackend struct {
	cps       map[string]*checkpoint.Checkpoint
	saves     int
	saveLimit int
}

func newBrittleBackend(saveLimit int) *brittleBackend {
	return &brittleBackend{cps: make(map[string]*checkpoint.Checkpoint), saveLimit: saveLimit}
}

func (b *brittleBackend) Save(ctx context.Context, cp *checkpoint.Checkpoint) error {
	b.saves++
	if b.saves > b.saveLimit {
		return errors.New(errors.CodeWriteFailed, "checkpoint store unavailable")
	}
	b.cps[cp.ID] = cp
	return nil
}

func (b *brittleBackend) Load(ctx context.Context, id string) (*checkpoint.Checkpoint, error) {
	cp, ok := b.cps[id]
	if !ok {
		return nil, os.ErrNotExist
	}
	return cp, nil
}

func (b *brittleBackend) Delete(ctx context.Context, id string) error {
	delete(b.cps, id)
	return nil
}

func (b *brittleBackend) List(ctx context.Context, prefix string) ([]*checkpoint.Checkpoint, error) {
	var out []*checkpoint.Checkpoint
	for _, cp := range b.cps {
		out = append(out, cp)
	}
	return out, nil
}

func (b *brittleBackend) ListIncomplete(ctx context.Context) ([]*checkpoint.Checkpoint, error) {
	var out []*checkpoint.Checkpoint
	for _, cp := range b.cps {
		if cp.Phase != checkpoint.PhaseComplete {
			out = append(out, cp)
		}
	}
	return out, nil
}

func (b *brittleBackend) FindByProject(ctx context.Context, project string) (*checkpoint.Checkpoint, error) {
	for _, cp := range b.cps {
		if cp.Project == project && cp.Phase != checkpoint.PhaseComplete {
			return cp, nil
		}
	}
	return nil, os.ErrNotExist
}

func (b *brittleBackend) Name() string { return "brittle" }

func TestDispatcher_DispatchFailureSurfacesCheckpointSaveError(t *testing.T) {
	// Two saves succeed (pass creation, phase change); the save on the
	// dispatch-failure path fails and must be logged, not swallowed.
	passes := checkpoint.NewPassManager(newBrittleBackend(2))

	d := NewDispatcher(42, []string{"UDS"}, func(context.Context, string, QueuedFile) error {
		return errors.New(errors.CodeWriteFailed, "downstream unavailable")
	}).WithQueueTags("queue").WithCheckpoints(passes)

	var buf bytes.Buffer
	log.SetOutput(&buf)
	defer log.SetOutput(os.Stderr)

	_, err := d.Run(context.Background(), dispatchProject())
	if !errors.IsCode(err, errors.CodeWriteFailed) {
		t.Fatalf("Run should return the dispatch failure, got %v", err)
	}
	if !strings.Contains(buf.String(), "failed to save checkpoint after dispatch failure") {
		t.Errorf("checkpoint save failure not logged:\n%s", buf.String())
	}
}

func TestDispatcher_ResumesFromCheckpoint(t *testing.T) {
	backend, err := checkpoint.NewLocalBackend(t.TempDir())
	if err != nil {
		t.Fatalf("failed to create backend: %v", err)
	}
	passes := checkpoint.NewPassManager(backend)

	// First run: fail after the first file is dispatched.
	var dispatched []string
	failing := func(ctx context.Context, module string, file QueuedFile) error {
		if len(dispatched) == 1 {
			return errors.New(errors.CodeWriteFailed, "downstream unavailable")
		}
		dispatched = append(dispatched, file.Name)
		return nil
	}

	d := NewDispatcher(42, []string{"UDS", "FTLD"}, failing).
		WithQueueTags("queue").
		WithCheckpoints(passes)

	if _, err := d.Run(context.Background(), dispatchProject()); err == nil {
		t.Fatal("first run should fail")
	}
	if len(dispatched) != 1 {
		t.Fatalf("first run dispatched %v, want 1 file", dispatched)
	}

	// Second run resumes and skips the file already dispatched.
	var second []string
	d2 := NewDispatcher(42, []string{"UDS", "FTLD"}, func(ctx context.Context, module string, file QueuedFile) error {
		second = append(second, file.Name)
		return nil
	}).WithQueueTags("queue").WithCheckpoints(passes)

	stats, err := d2.Run(context.Background(), dispatchProject())
	if err != nil {
		t.Fatalf("resume run returned error: %v", err)
	}
	if !stats.Resumed {
		t.Error("second run should resume the incomplete pass")
	}
	if len(second) != 2 {
		t.Errorf("resume dispatched %v, want the 2 remaining files", second)
	}
	for _, name := range second {
		if name == dispatched[0] {
			t.Errorf("file %q re-dispatched after resume", name)
		}
	}

	// A third run starts fresh: the pass is complete.
	cp, findErr := backend.FindByProject(context.Background(), "ingest-form")
	if findErr == nil && cp.Phase != checkpoint.PhaseComplete {
		t.Errorf("pass left incomplete: %+v", cp)
	}
}
