// Package platform abstracts the hosted container hierarchy that gears read
// from and write back to. The core only needs file listings with tags and
// timestamps, plus per-file QC metadata; everything else about the hosting
// platform stays behind these interfaces.
package platform

import (
	"context"
	"time"

	"github.com/formflow/formflow/internal/model"
)

// FileInfo describes one file in a project container.
type FileInfo struct {
	// Name is the file name within the container (e.g., "110001-UDS.csv").
	Name string

	// Tags are the platform tags attached to the file.
	Tags []string

	// Modified is the last-modified timestamp.
	Modified time.Time

	// Info holds the file's custom metadata (nested, JSON-like).
	Info map[string]interface{}
}

// HasTags reports whether the file carries every tag in want.
func (f FileInfo) HasTags(want []string) bool {
	if len(want) == 0 {
		return true
	}
	have := make(map[string]bool, len(f.Tags))
	for _, t := range f.Tags {
		have[t] = true
	}
	for _, t := range want {
		if !have[t] {
			return false
		}
	}
	return true
}

// ProjectSource lists files in a project container and resolves per-file
// QC metadata.
type ProjectSource interface {
	// Label returns the project label for provenance and event keys.
	Label() string

	// Files returns the project's file listing. Ordering is as-delivered
	// by the platform; the core does not impose additional sorting.
	Files(ctx context.Context) ([]FileInfo, error)

	// QC returns the QC-validation-by-gear metadata for a file.
	QC(ctx context.Context, name string) (*model.FileQC, error)
}
