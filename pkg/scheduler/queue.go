// Package scheduler implements the form-submission scheduling gear: newly
// tagged files are bucketed into per-module queues and drained in
// round-robin order to trigger downstream processing.
package scheduler

import (
	"log"
	"path/filepath"
	"strings"
	"time"

	"github.com/formflow/formflow/internal/model"
	"github.com/formflow/formflow/pkg/minheap"
	"github.com/formflow/formflow/pkg/platform"
)

// QueuedFile is one file accepted into a module bucket.
type QueuedFile struct {
	Name     string
	Module   string
	Modified time.Time
	Info     map[string]interface{}
}

// PipelineQueue holds one FIFO-by-modification-time sub-queue per accepted
// module and drains them round-robin so no module is starved. Built once
// per scheduling pass and discarded after the batch is drained. Owned by a
// single gear process; not safe for concurrent mutation.
type PipelineQueue struct {
	moduleOrder []string
	queueTags   []string
	cursor      int
	buckets     map[string][]QueuedFile
	skipped     int
}

// NewPipelineQueue creates a queue accepting the given modules, drained in
// the given order. Files must carry every tag in queueTags to be accepted.
func NewPipelineQueue(moduleOrder []string, queueTags []string) *PipelineQueue {
	order := make([]string, len(moduleOrder))
	buckets := make(map[string][]QueuedFile, len(moduleOrder))
	for i, m := range moduleOrder {
		order[i] = strings.ToUpper(m)
		buckets[order[i]] = nil
	}

	return &PipelineQueue{
		moduleOrder: order,
		queueTags:   append([]string(nil), queueTags...),
		buckets:     buckets,
	}
}

// ParseModuleName extracts the module from a "*-<module>.<ext>" file name.
// Returns "" when the name does not match the convention.
func ParseModuleName(name string) string {
	base := strings.TrimSuffix(name, filepath.Ext(name))
	idx := strings.LastIndex(base, "-")
	if idx < 0 || idx == len(base)-1 {
		return ""
	}
	return strings.ToUpper(base[idx+1:])
}

// queuedEntry carries the listing position so equal modification times
// drain in arrival order.
type queuedEntry struct {
	file QueuedFile
	seq  int
}

func entryBefore(a, b queuedEntry) bool {
	if a.file.Modified.Equal(b.file.Modified) {
		return a.seq < b.seq
	}
	return a.file.Modified.Before(b.file.Modified)
}

// AddFiles filters and buckets a project file listing. A file is enqueued
// when its tag set covers the queue tags, its name matches the
// "*-<module>.<ext>" convention for an accepted module, and its extension
// is in extensions (empty extensions accepts all). Files that fail the name
// convention are skipped with a log line: they were mis-tagged upstream and
// are not this queue's concern. Each module bucket drains ascending by
// modification time, oldest first. Returns the number of files enqueued.
func (q *PipelineQueue) AddFiles(files []platform.FileInfo, extensions []string) int {
	extSet := make(map[string]bool, len(extensions))
	for _, e := range extensions {
		extSet[strings.ToLower(e)] = true
	}

	heaps := make(map[string]*minheap.Heap[queuedEntry], len(q.buckets))

	added := 0
	for i, f := range files {
		if !f.HasTags(q.queueTags) {
			continue
		}

		if len(extSet) > 0 && !extSet[strings.ToLower(filepath.Ext(f.Name))] {
			continue
		}

		module := ParseModuleName(f.Name)
		if module == "" {
			q.skipped++
			log.Printf("scheduler: skipping file with unrecognized name pattern: %s", f.Name)
			continue
		}
		if _, ok := q.buckets[module]; !ok {
			q.skipped++
			log.Printf("scheduler: skipping file for unqueued module %s: %s", module, f.Name)
			continue
		}

		h, ok := heaps[module]
		if !ok {
			h = minheap.New(entryBefore)
			heaps[module] = h
		}
		h.Push(queuedEntry{
			file: QueuedFile{
				Name:     f.Name,
				Module:   module,
				Modified: f.Modified,
				Info:     f.Info,
			},
			seq: i,
		})
		added++
	}

	for module, h := range heaps {
		bucket := q.buckets[module]
		for {
			entry, ok := h.Pop()
			if !ok {
				break
			}
			bucket = append(bucket, entry.file)
		}
		q.buckets[module] = bucket
	}

	return added
}

// NextQueue advances the round-robin cursor and returns the next module and
// its current file list. This is a dispatch unit, not a pop: callers drain
// the returned files and then call Clear.
func (q *PipelineQueue) NextQueue() (string, []QueuedFile) {
	if len(q.moduleOrder) == 0 {
		return "", nil
	}

	module := q.moduleOrder[q.cursor]
	q.cursor = (q.cursor + 1) % len(q.moduleOrder)
	return module, q.buckets[module]
}

// Clear empties a module's bucket after the caller has dispatched it.
func (q *PipelineQueue) Clear(module string) {
	module = strings.ToUpper(module)
	if _, ok := q.buckets[module]; ok {
		q.buckets[module] = nil
	}
}

// Empty returns true iff every module bucket is empty.
func (q *PipelineQueue) Empty() bool {
	for _, bucket := range q.buckets {
		if len(bucket) > 0 {
			return false
		}
	}
	return true
}

// Len returns the total number of queued files across all modules.
func (q *PipelineQueue) Len() int {
	n := 0
	for _, bucket := range q.buckets {
		n += len(bucket)
	}
	return n
}

// Skipped returns the number of files dropped for failing the name
// convention during AddFiles.
func (q *PipelineQueue) Skipped() int {
	return q.skipped
}

// Modules returns the configured module order.
func (q *PipelineQueue) Modules() []string {
	return append([]string(nil), q.moduleOrder...)
}

// knownModuleOrder filters order down to recognized modules, preserving
// position. Unknown names are dropped with a log line.
func knownModuleOrder(order []string) []string {
	var out []string
	for _, m := range order {
		if model.KnownModule(m) {
			out = append(out, strings.ToUpper(m))
		} else {
			log.Printf("scheduler: ignoring unknown module in order: %s", m)
		}
	}
	return out
}
