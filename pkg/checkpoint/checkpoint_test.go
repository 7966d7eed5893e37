package checkpoint

import (
	"context"
	"encoding/json"
	"os"
	"sync"
	"testing"
	"time"
)

// memoryBackend is an in-process Backend for tests. Save stores a decoded
// snapshot so later mutations of the live checkpoint are not visible until
// the next save, like a real store.
type memoryBackend struct {
	mu    sync.Mutex
	cps   map[string]*Checkpoint
	saves int
}

func newMemoryBackend() *memoryBackend {
	return &memoryBackend{cps: make(map[string]*Checkpoint)}
}

func (b *memoryBackend) Save(ctx context.Context, cp *Checkpoint) error {
	data, err := cp.Snapshot()
	if err != nil {
		return err
	}
	var stored Checkpoint
	if err := json.Unmarshal(data, &stored); err != nil {
		return err
	}
	if stored.Dispatched == nil {
		stored.Dispatched = make(map[string][]string)
	}

	b.mu.Lock()
	defer b.mu.Unlock()
	b.cps[cp.ID] = &stored
	b.saves++
	return nil
}

func (b *memoryBackend) Load(ctx context.Context, id string) (*Checkpoint, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	cp, ok := b.cps[id]
	if !ok {
		return nil, os.ErrNotExist
	}
	return cp, nil
}

func (b *memoryBackend) Delete(ctx context.Context, id string) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if _, ok := b.cps[id]; !ok {
		return os.ErrNotExist
	}
	delete(b.cps, id)
	return nil
}

func (b *memoryBackend) List(ctx context.Context, prefix string) ([]*Checkpoint, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	var out []*Checkpoint
	for _, cp := range b.cps {
		out = append(out, cp)
	}
	return out, nil
}

func (b *memoryBackend) ListIncomplete(ctx context.Context) ([]*Checkpoint, error) {
	all, _ := b.List(ctx, "")
	var out []*Checkpoint
	for _, cp := range all {
		if cp.Phase != PhaseComplete {
			out = append(out, cp)
		}
	}
	return out, nil
}

func (b *memoryBackend) FindByProject(ctx context.Context, project string) (*Checkpoint, error) {
	incomplete, _ := b.ListIncomplete(ctx)
	for _, cp := range incomplete {
		if cp.Project == project {
			return cp, nil
		}
	}
	return nil, os.ErrNotExist
}

func (b *memoryBackend) Name() string { return "memory" }

func (b *memoryBackend) saveCount() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.saves
}

func TestManager_CreateLoadRoundTrip(t *testing.T) {
	mgr, err := NewManager(t.TempDir())
	if err != nil {
		t.Fatalf("NewManager returned error: %v", err)
	}

	cp := mgr.Create("pass-1", "ingest-form", []string{"UDS", "FTLD"})
	cp.MarkDispatched("UDS", "110001-UDS.csv")
	cp.SetQueueShape(3, 1)
	if err := cp.Save(); err != nil {
		t.Fatalf("Save returned error: %v", err)
	}

	loaded, err := mgr.Load("pass-1")
	if err != nil {
		t.Fatalf("Load returned error: %v", err)
	}
	if loaded.Project != "ingest-form" || loaded.QueuedTotal != 3 || loaded.Skipped != 1 {
		t.Errorf("loaded = %+v", loaded)
	}
	if !loaded.WasDispatched("UDS", "110001-UDS.csv") {
		t.Error("dispatched file lost on round trip")
	}
	if loaded.WasDispatched("UDS", "220002-UDS.csv") {
		t.Error("undispatched file reported dispatched")
	}
}

func TestManager_FindByProjectSkipsComplete(t *testing.T) {
	mgr, err := NewManager(t.TempDir())
	if err != nil {
		t.Fatalf("NewManager returned error: %v", err)
	}

	done := mgr.Create("pass-done", "ingest-form", []string{"UDS"})
	done.SetPhase(PhaseComplete)
	done.Save()

	if _, err := mgr.FindByProject("ingest-form"); err == nil {
		t.Error("completed passes must not be resumable")
	}

	open := mgr.Create("pass-open", "ingest-form", []string{"UDS"})
	open.SetPhase(PhaseDispatching)
	open.Save()

	found, err := mgr.FindByProject("ingest-form")
	if err != nil {
		t.Fatalf("FindByProject returned error: %v", err)
	}
	if found.ID != "pass-open" {
		t.Errorf("found %q, want pass-open", found.ID)
	}
}

func TestPassManager_FindOrCreate(t *testing.T) {
	backend, err := NewLocalBackend(t.TempDir())
	if err != nil {
		t.Fatalf("NewLocalBackend returned error: %v", err)
	}
	pm := NewPassManager(backend)
	ctx := context.Background()

	cp, resumed, err := pm.FindOrCreate(ctx, "pass-1", "ingest-form", []string{"UDS"})
	if err != nil {
		t.Fatalf("FindOrCreate returned error: %v", err)
	}
	if resumed {
		t.Error("fresh pass reported as resumed")
	}

	// No dispatch progress: a second call starts a new pass.
	_, resumed, err = pm.FindOrCreate(ctx, "pass-2", "ingest-form", []string{"UDS"})
	if err != nil {
		t.Fatalf("FindOrCreate returned error: %v", err)
	}
	if resumed {
		t.Error("pass with no progress should not resume")
	}

	// With progress, the incomplete pass is resumed.
	cp.MarkDispatched("UDS", "110001-UDS.csv")
	if err := pm.Save(ctx, cp); err != nil {
		t.Fatalf("Save returned error: %v", err)
	}

	got, resumed, err := pm.FindOrCreate(ctx, "pass-3", "ingest-form", []string{"UDS"})
	if err != nil {
		t.Fatalf("FindOrCreate returned error: %v", err)
	}
	if !resumed || got.ID != "pass-1" {
		t.Errorf("got id=%q resumed=%v, want pass-1 resumed", got.ID, resumed)
	}

	if err := pm.Complete(ctx, got); err != nil {
		t.Fatalf("Complete returned error: %v", err)
	}
	if got.Phase != PhaseComplete || got.CompletedAt == nil {
		t.Errorf("pass not completed: %+v", got)
	}
}

func TestManager_ListIncludesCompleted(t *testing.T) {
	mgr, err := NewManager(t.TempDir())
	if err != nil {
		t.Fatalf("NewManager returned error: %v", err)
	}

	done := mgr.Create("pass-done", "ingest-form", []string{"UDS"})
	done.SetPhase(PhaseComplete)
	done.Save()
	mgr.Create("pass-open", "ingest-form", []string{"UDS"})

	all, err := mgr.List()
	if err != nil {
		t.Fatalf("List returned error: %v", err)
	}
	if len(all) != 2 {
		t.Errorf("List found %d passes, want 2", len(all))
	}

	incomplete, err := mgr.ListIncomplete()
	if err != nil {
		t.Fatalf("ListIncomplete returned error: %v", err)
	}
	if len(incomplete) != 1 || incomplete[0].ID != "pass-open" {
		t.Errorf("ListIncomplete = %+v, want only pass-open", incomplete)
	}
}

func TestPassManager_CleanupRemovesOldCompleted(t *testing.T) {
	backend, err := NewLocalBackend(t.TempDir())
	if err != nil {
		t.Fatalf("NewLocalBackend returned error: %v", err)
	}
	pm := NewPassManager(backend)
	ctx := context.Background()

	save := func(id, phase string, age time.Duration) {
		cp := &Checkpoint{
			ID:         id,
			Project:    "ingest-form",
			Phase:      phase,
			StartedAt:  time.Now().Add(-age),
			UpdatedAt:  time.Now().Add(-age),
			Dispatched: make(map[string][]string),
		}
		if err := backend.Save(ctx, cp); err != nil {
			t.Fatalf("Save(%s) returned error: %v", id, err)
		}
	}

	save("pass-stale", PhaseComplete, 30*24*time.Hour)
	save("pass-fresh", PhaseComplete, time.Hour)
	save("pass-open", PhaseDispatching, 30*24*time.Hour)

	removed, err := pm.Cleanup(ctx, 7*24*time.Hour)
	if err != nil {
		t.Fatalf("Cleanup returned error: %v", err)
	}
	if removed != 1 {
		t.Fatalf("Cleanup removed %d passes, want 1", removed)
	}

	if _, err := backend.Load(ctx, "pass-stale"); err == nil {
		t.Error("stale completed pass should be gone")
	}
	if _, err := backend.Load(ctx, "pass-fresh"); err != nil {
		t.Error("recent completed pass must survive cleanup")
	}
	if _, err := backend.Load(ctx, "pass-open"); err != nil {
		t.Error("incomplete pass must survive cleanup regardless of age")
	}
}

func TestMultiBackend_MirrorsAndFallsBack(t *testing.T) {
	primary := newMemoryBackend()
	secondary := newMemoryBackend()
	multi := NewMultiBackend(primary, secondary)
	ctx := context.Background()

	cp := &Checkpoint{
		ID:         "pass-1",
		Project:    "ingest-form",
		Phase:      PhaseDispatching,
		Dispatched: make(map[string][]string),
	}
	if err := multi.Save(ctx, cp); err != nil {
		t.Fatalf("Save returned error: %v", err)
	}

	if _, err := primary.Load(ctx, "pass-1"); err != nil {
		t.Error("save did not reach the primary backend")
	}
	if _, err := secondary.Load(ctx, "pass-1"); err != nil {
		t.Error("save did not reach the secondary backend")
	}

	// Primary loses the checkpoint: Load falls back to the mirror.
	if err := primary.Delete(ctx, "pass-1"); err != nil {
		t.Fatalf("Delete returned error: %v", err)
	}
	got, err := multi.Load(ctx, "pass-1")
	if err != nil {
		t.Fatalf("Load should fall back to the secondary: %v", err)
	}
	if got.Project != "ingest-form" {
		t.Errorf("fallback loaded %+v", got)
	}

	if err := multi.Delete(ctx, "pass-1"); err == nil {
		if _, err := secondary.Load(ctx, "pass-1"); err == nil {
			t.Error("Delete left the checkpoint in the secondary backend")
		}
	}
}

func TestPassManager_LockProjectWithoutLocker(t *testing.T) {
	pm := NewPassManager(newMemoryBackend())
	ctx := context.Background()

	lock, err := pm.LockProject(ctx, "ingest-form", time.Minute)
	if err != nil {
		t.Fatalf("LockProject returned error: %v", err)
	}
	if err := lock.Extend(ctx); err != nil {
		t.Errorf("Extend on a no-op lock returned error: %v", err)
	}
	if err := lock.Release(ctx); err != nil {
		t.Errorf("Release on a no-op lock returned error: %v", err)
	}
}

func TestPassManager_AutoSavePersistsOnStop(t *testing.T) {
	backend := newMemoryBackend()
	pm := NewPassManager(backend)
	ctx := context.Background()

	cp, _, err := pm.FindOrCreate(ctx, "pass-1", "ingest-form", []string{"UDS"})
	if err != nil {
		t.Fatalf("FindOrCreate returned error: %v", err)
	}
	before := backend.saveCount()

	// Long interval: only the stop-time save should fire.
	stop := pm.StartAutoSave(ctx, cp, time.Hour)
	cp.MarkDispatched("UDS", "110001-UDS.csv")
	stop()
	stop() // idempotent

	if got := backend.saveCount(); got != before+1 {
		t.Errorf("saves = %d, want %d (one final save on stop)", got, before+1)
	}

	persisted, err := backend.Load(ctx, "pass-1")
	if err != nil {
		t.Fatalf("Load returned error: %v", err)
	}
	if !persisted.WasDispatched("UDS", "110001-UDS.csv") {
		t.Error("dispatch progress marked between ticks was lost")
	}
}

func TestCheckpoint_Progress(t *testing.T) {
	cp := &Checkpoint{
		Dispatched: make(map[string][]string),
		StartedAt:  time.Now(),
	}
	if cp.Progress() != 0 {
		t.Error("empty pass should report zero progress")
	}

	cp.QueuedTotal = 4
	cp.MarkDispatched("UDS", "a.csv")
	cp.MarkDispatched("FTLD", "b.csv")
	if got := cp.Progress(); got != 50 {
		t.Errorf("Progress = %v, want 50", got)
	}
}
