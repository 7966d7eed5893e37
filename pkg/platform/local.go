package platform

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"

	"github.com/formflow/formflow/internal/model"
	"github.com/formflow/formflow/pkg/errors"
)

// LocalProject reads a project from a local drop-folder. Each form file
// (e.g., "110001-UDS.csv") may have a "<name>.qc.json" sidecar holding its
// gear-name -> validation mapping. Intended for local gear runs and the
// watch-mode inbox; the hosted platform replaces this in production.
type LocalProject struct {
	label string
	dir   string

	// DefaultTags are attached to every listed file, since a plain
	// directory has no tag store.
	DefaultTags []string
}

// NewLocalProject creates a project over a local directory.
func NewLocalProject(label, dir string) *LocalProject {
	return &LocalProject{label: label, dir: dir}
}

// Label returns the project label.
func (p *LocalProject) Label() string { return p.label }

// Files lists the directory's form files. QC sidecars are not listed as
// files themselves.
func (p *LocalProject) Files(ctx context.Context) ([]FileInfo, error) {
	entries, err := os.ReadDir(p.dir)
	if err != nil {
		return nil, errors.Wrap(err, errors.CodeReadFailed, "failed to list project directory").
			WithContext("dir", p.dir)
	}

	var files []FileInfo
	for _, entry := range entries {
		if entry.IsDir() || strings.HasSuffix(entry.Name(), ".qc.json") {
			continue
		}

		info, err := entry.Info()
		if err != nil {
			continue
		}

		files = append(files, FileInfo{
			Name:     entry.Name(),
			Tags:     append([]string(nil), p.DefaultTags...),
			Modified: info.ModTime(),
		})
	}
	return files, nil
}

// QC reads and decodes the file's QC sidecar. Entries are ordered by gear
// name, since JSON objects carry no order of their own.
func (p *LocalProject) QC(ctx context.Context, name string) (*model.FileQC, error) {
	path := filepath.Join(p.dir, name+".qc.json")
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.Wrap(err, errors.CodeReadFailed, "failed to read QC sidecar").
			WithContext("file", name)
	}

	var byGear map[string]model.Validation
	if err := json.Unmarshal(data, &byGear); err != nil {
		return nil, errors.Wrap(err, errors.CodeReadFailed, "failed to decode QC sidecar").
			WithContext("file", name)
	}

	return model.FileQCFromMap(byGear), nil
}
