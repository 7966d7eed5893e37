// Package checkpoint provides resume capability for interrupted scheduling
// passes. Gears run under a host orchestrator that may kill them mid-batch;
// a checkpoint records which files have already been dispatched so a
// restarted pass does not re-trigger downstream processing for them.
package checkpoint

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"
)

// Pass phases.
const (
	PhaseCollecting  = "collecting"
	PhaseDispatching = "dispatching"
	PhaseComplete    = "complete"
)

// Checkpoint tracks one scheduling pass over a project.
type Checkpoint struct {
	// Identification
	ID      string `json:"id"`
	Project string `json:"project"`

	// Queue shape at collection time
	Modules     []string `json:"modules"`
	QueuedTotal int      `json:"queued_total"`
	Skipped     int      `json:"skipped"`

	// Dispatched maps module -> file names already handed downstream.
	Dispatched map[string][]string `json:"dispatched,omitempty"`

	// State
	Phase       string     `json:"phase"`
	StartedAt   time.Time  `json:"started_at"`
	UpdatedAt   time.Time  `json:"updated_at"`
	CompletedAt *time.Time `json:"completed_at,omitempty"`

	Metadata map[string]interface{} `json:"metadata,omitempty"`

	// Internal
	path string
	mu   sync.Mutex
}

// Manager handles checkpoint persistence on the local filesystem.
type Manager struct {
	dir    string
	mu     sync.RWMutex
	active map[string]*Checkpoint
}

// NewManager creates a new checkpoint manager.
func NewManager(checkpointDir string) (*Manager, error) {
	if err := os.MkdirAll(checkpointDir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create checkpoint directory: %w", err)
	}

	return &Manager{
		dir:    checkpointDir,
		active: make(map[string]*Checkpoint),
	}, nil
}

// Create creates a new checkpoint for a scheduling pass.
func (m *Manager) Create(id, project string, modules []string) *Checkpoint {
	cp := &Checkpoint{
		ID:         id,
		Project:    project,
		Modules:    append([]string(nil), modules...),
		Phase:      PhaseCollecting,
		StartedAt:  time.Now(),
		UpdatedAt:  time.Now(),
		Dispatched: make(map[string][]string),
		Metadata:   make(map[string]interface{}),
		path:       filepath.Join(m.dir, id+".checkpoint"),
	}

	m.mu.Lock()
	m.active[id] = cp
	m.mu.Unlock()

	cp.Save()
	return cp
}

// Save persists a checkpoint, adopting it into this manager's directory if
// it was created elsewhere (e.g., by a PassManager over this backend).
func (m *Manager) Save(cp *Checkpoint) error {
	cp.mu.Lock()
	if cp.path == "" {
		cp.path = filepath.Join(m.dir, cp.ID+".checkpoint")
	}
	cp.mu.Unlock()

	m.mu.Lock()
	m.active[cp.ID] = cp
	m.mu.Unlock()

	return cp.Save()
}

// Load loads a checkpoint from disk.
func (m *Manager) Load(id string) (*Checkpoint, error) {
	path := filepath.Join(m.dir, id+".checkpoint")
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	var cp Checkpoint
	if err := json.Unmarshal(data, &cp); err != nil {
		return nil, err
	}
	cp.path = path
	if cp.Dispatched == nil {
		cp.Dispatched = make(map[string][]string)
	}

	m.mu.Lock()
	m.active[id] = &cp
	m.mu.Unlock()

	return &cp, nil
}

// FindByProject finds an incomplete pass checkpoint for a project.
func (m *Manager) FindByProject(project string) (*Checkpoint, error) {
	entries, err := os.ReadDir(m.dir)
	if err != nil {
		return nil, err
	}

	for _, entry := range entries {
		if filepath.Ext(entry.Name()) != ".checkpoint" {
			continue
		}

		path := filepath.Join(m.dir, entry.Name())
		data, err := os.ReadFile(path)
		if err != nil {
			continue
		}

		var cp Checkpoint
		if err := json.Unmarshal(data, &cp); err != nil {
			continue
		}

		if cp.Project == project && cp.Phase != PhaseComplete {
			cp.path = path
			if cp.Dispatched == nil {
				cp.Dispatched = make(map[string][]string)
			}
			return &cp, nil
		}
	}

	return nil, os.ErrNotExist
}

// Delete removes a checkpoint.
func (m *Manager) Delete(id string) error {
	m.mu.Lock()
	delete(m.active, id)
	m.mu.Unlock()

	path := filepath.Join(m.dir, id+".checkpoint")
	return os.Remove(path)
}

// List returns every pass checkpoint on disk, complete or not.
func (m *Manager) List() ([]*Checkpoint, error) {
	entries, err := os.ReadDir(m.dir)
	if err != nil {
		return nil, err
	}

	var checkpoints []*Checkpoint
	for _, entry := range entries {
		if filepath.Ext(entry.Name()) != ".checkpoint" {
			continue
		}

		data, err := os.ReadFile(filepath.Join(m.dir, entry.Name()))
		if err != nil {
			continue
		}

		var cp Checkpoint
		if err := json.Unmarshal(data, &cp); err != nil {
			continue
		}

		cp.path = filepath.Join(m.dir, entry.Name())
		if cp.Dispatched == nil {
			cp.Dispatched = make(map[string][]string)
		}
		checkpoints = append(checkpoints, &cp)
	}

	return checkpoints, nil
}

// ListIncomplete returns all incomplete pass checkpoints.
func (m *Manager) ListIncomplete() ([]*Checkpoint, error) {
	all, err := m.List()
	if err != nil {
		return nil, err
	}

	var checkpoints []*Checkpoint
	for _, cp := range all {
		if cp.Phase != PhaseComplete {
			checkpoints = append(checkpoints, cp)
		}
	}

	return checkpoints, nil
}

// Cleanup removes checkpoint files older than maxAge.
func (m *Manager) Cleanup(maxAge time.Duration) (int, error) {
	entries, err := os.ReadDir(m.dir)
	if err != nil {
		return 0, err
	}

	cutoff := time.Now().Add(-maxAge)
	removed := 0

	for _, entry := range entries {
		if filepath.Ext(entry.Name()) != ".checkpoint" {
			continue
		}

		path := filepath.Join(m.dir, entry.Name())
		info, err := entry.Info()
		if err != nil {
			continue
		}

		if info.ModTime().Before(cutoff) {
			if err := os.Remove(path); err == nil {
				removed++
			}
		}
	}

	return removed, nil
}

// --- Checkpoint Methods ---

// MarkDispatched records that a file was handed downstream.
func (c *Checkpoint) MarkDispatched(module, name string) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.Dispatched[module] = append(c.Dispatched[module], name)
	c.UpdatedAt = time.Now()
}

// WasDispatched reports whether a file was already handed downstream in
// this pass.
func (c *Checkpoint) WasDispatched(module, name string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	for _, n := range c.Dispatched[module] {
		if n == name {
			return true
		}
	}
	return false
}

// DispatchedCount returns the total number of dispatched files.
func (c *Checkpoint) DispatchedCount() int {
	c.mu.Lock()
	defer c.mu.Unlock()

	n := 0
	for _, files := range c.Dispatched {
		n += len(files)
	}
	return n
}

// SetQueueShape records the queue totals after collection.
func (c *Checkpoint) SetQueueShape(queued, skipped int) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.QueuedTotal = queued
	c.Skipped = skipped
	c.UpdatedAt = time.Now()
}

// SetPhase updates the phase.
func (c *Checkpoint) SetPhase(phase string) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.Phase = phase
	c.UpdatedAt = time.Now()

	if phase == PhaseComplete {
		now := time.Now()
		c.CompletedAt = &now
	}
}

// SetMetadata sets a metadata value.
func (c *Checkpoint) SetMetadata(key string, value interface{}) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.Metadata[key] = value
}

// touch bumps the update timestamp.
func (c *Checkpoint) touch() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.UpdatedAt = time.Now()
}

// Snapshot serializes the checkpoint under its lock, for backends that
// persist it off the local filesystem. A concurrent auto-saver must never
// marshal mid-MarkDispatched.
func (c *Checkpoint) Snapshot() ([]byte, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return json.Marshal(c)
}

// Save persists the checkpoint to disk.
func (c *Checkpoint) Save() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.path == "" {
		return nil
	}

	data, err := json.MarshalIndent(c, "", "  ")
	if err != nil {
		return err
	}

	// Write to temp file first, then rename (atomic)
	tempPath := c.path + ".tmp"
	if err := os.WriteFile(tempPath, data, 0644); err != nil {
		return err
	}

	return os.Rename(tempPath, c.path)
}

// ShouldResume returns true if this pass can be resumed.
func (c *Checkpoint) ShouldResume() bool {
	return c.Phase != PhaseComplete && c.DispatchedCount() > 0
}

// Progress returns dispatch progress as a percentage (0-100).
func (c *Checkpoint) Progress() float64 {
	if c.QueuedTotal == 0 {
		return 0
	}
	return float64(c.DispatchedCount()) * 100 / float64(c.QueuedTotal)
}

// Duration returns how long the pass has been running.
func (c *Checkpoint) Duration() time.Duration {
	if c.CompletedAt != nil {
		return c.CompletedAt.Sub(c.StartedAt)
	}
	return time.Since(c.StartedAt)
}
