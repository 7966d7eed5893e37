// Package checkpoint provides backend interfaces for checkpoint persistence.
package checkpoint

import (
	"context"
	"time"
)

// Backend defines the interface for checkpoint storage backends.
// Implementations can store pass checkpoints in various locations
// (local, S3, Redis).
type Backend interface {
	// Save persists a checkpoint to the backend.
	Save(ctx context.Context, cp *Checkpoint) error

	// Load retrieves a checkpoint by pass ID.
	Load(ctx context.Context, id string) (*Checkpoint, error)

	// Delete removes a checkpoint.
	Delete(ctx context.Context, id string) error

	// List returns all checkpoints matching the prefix.
	List(ctx context.Context, prefix string) ([]*Checkpoint, error)

	// ListIncomplete returns all passes that haven't completed.
	ListIncomplete(ctx context.Context) ([]*Checkpoint, error)

	// FindByProject finds an incomplete pass for the given project.
	FindByProject(ctx context.Context, project string) (*Checkpoint, error)

	// Name returns the backend name for logging/debugging.
	Name() string
}

// ProjectLock serializes scheduling passes on one project across scheduler
// instances. Held for the duration of the dispatch loop.
type ProjectLock interface {
	// Release frees the lock.
	Release(ctx context.Context) error

	// Extend renews the lock's TTL mid-pass.
	Extend(ctx context.Context) error
}

// projectLocker is implemented by backends with distributed locking.
type projectLocker interface {
	AcquireLock(ctx context.Context, project string, ttl time.Duration) (*Lock, error)
}

// noopLock is returned for backends without distributed locking:
// single-host backends serialize passes by construction.
type noopLock struct{}

func (noopLock) Release(context.Context) error { return nil }
func (noopLock) Extend(context.Context) error  { return nil }

// MultiBackend wraps multiple backends for redundancy.
type MultiBackend struct {
	primary   Backend
	secondary Backend
}

// NewMultiBackend creates a backend that writes to both primary and secondary.
func NewMultiBackend(primary, secondary Backend) *MultiBackend {
	return &MultiBackend{
		primary:   primary,
		secondary: secondary,
	}
}

// Save writes to both backends (primary first).
func (m *MultiBackend) Save(ctx context.Context, cp *Checkpoint) error {
	if err := m.primary.Save(ctx, cp); err != nil {
		return err
	}
	// Secondary is best-effort
	_ = m.secondary.Save(ctx, cp)
	return nil
}

// Load reads from primary, falls back to secondary.
func (m *MultiBackend) Load(ctx context.Context, id string) (*Checkpoint, error) {
	cp, err := m.primary.Load(ctx, id)
	if err == nil {
		return cp, nil
	}
	return m.secondary.Load(ctx, id)
}

// Delete removes from both backends.
func (m *MultiBackend) Delete(ctx context.Context, id string) error {
	err1 := m.primary.Delete(ctx, id)
	err2 := m.secondary.Delete(ctx, id)
	if err1 != nil {
		return err1
	}
	return err2
}

// List returns results from the primary backend.
func (m *MultiBackend) List(ctx context.Context, prefix string) ([]*Checkpoint, error) {
	return m.primary.List(ctx, prefix)
}

// ListIncomplete returns incomplete passes from the primary backend.
func (m *MultiBackend) ListIncomplete(ctx context.Context) ([]*Checkpoint, error) {
	return m.primary.ListIncomplete(ctx)
}

// FindByProject finds a pass from primary, falls back to secondary.
func (m *MultiBackend) FindByProject(ctx context.Context, project string) (*Checkpoint, error) {
	cp, err := m.primary.FindByProject(ctx, project)
	if err == nil {
		return cp, nil
	}
	return m.secondary.FindByProject(ctx, project)
}

// Name returns the combined backend names.
func (m *MultiBackend) Name() string {
	return m.primary.Name() + "+" + m.secondary.Name()
}

// LocalBackend wraps the file-based Manager as a Backend.
type LocalBackend struct {
	mgr *Manager
}

// NewLocalBackend creates a backend using the local filesystem.
func NewLocalBackend(dir string) (*LocalBackend, error) {
	mgr, err := NewManager(dir)
	if err != nil {
		return nil, err
	}
	return &LocalBackend{mgr: mgr}, nil
}

// Save persists a checkpoint to the local filesystem.
func (b *LocalBackend) Save(ctx context.Context, cp *Checkpoint) error {
	return b.mgr.Save(cp)
}

// Load retrieves a checkpoint from the local filesystem.
func (b *LocalBackend) Load(ctx context.Context, id string) (*Checkpoint, error) {
	return b.mgr.Load(id)
}

// Delete removes a checkpoint from the local filesystem.
func (b *LocalBackend) Delete(ctx context.Context, id string) error {
	return b.mgr.Delete(id)
}

// List returns every pass checkpoint, complete or not.
func (b *LocalBackend) List(ctx context.Context, prefix string) ([]*Checkpoint, error) {
	return b.mgr.List()
}

// ListIncomplete returns all incomplete pass checkpoints.
func (b *LocalBackend) ListIncomplete(ctx context.Context) ([]*Checkpoint, error) {
	return b.mgr.ListIncomplete()
}

// FindByProject finds an incomplete pass for the project.
func (b *LocalBackend) FindByProject(ctx context.Context, project string) (*Checkpoint, error) {
	return b.mgr.FindByProject(project)
}

// Name returns "local".
func (b *LocalBackend) Name() string {
	return "local"
}

// Manager returns the underlying file manager.
func (b *LocalBackend) Manager() *Manager {
	return b.mgr
}
