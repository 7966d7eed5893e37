package platform

import (
	"context"
	"sync"

	"github.com/formflow/formflow/internal/model"
	"github.com/formflow/formflow/pkg/errors"
)

// MemoryProject provides a project container from memory (for testing and
// local dry runs).
type MemoryProject struct {
	mu    sync.RWMutex
	label string
	files []FileInfo
	qc    map[string]*model.FileQC
}

// NewMemoryProject creates an empty in-memory project.
func NewMemoryProject(label string) *MemoryProject {
	return &MemoryProject{
		label: label,
		qc:    make(map[string]*model.FileQC),
	}
}

// AddFile registers a file listing entry, optionally with QC metadata.
func (p *MemoryProject) AddFile(info FileInfo, qc *model.FileQC) {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.files = append(p.files, info)
	if qc != nil {
		p.qc[info.Name] = qc
	}
}

// Label returns the project label.
func (p *MemoryProject) Label() string { return p.label }

// Files returns the registered files in insertion order.
func (p *MemoryProject) Files(ctx context.Context) ([]FileInfo, error) {
	p.mu.RLock()
	defer p.mu.RUnlock()

	out := make([]FileInfo, len(p.files))
	copy(out, p.files)
	return out, nil
}

// QC returns the QC metadata registered for a file.
func (p *MemoryProject) QC(ctx context.Context, name string) (*model.FileQC, error) {
	p.mu.RLock()
	defer p.mu.RUnlock()

	qc, ok := p.qc[name]
	if !ok {
		return nil, errors.New(errors.CodeReadFailed, "no QC metadata for file").
			WithContext("file", name).
			WithContext("project", p.label)
	}
	return qc, nil
}
