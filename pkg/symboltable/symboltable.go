// Package symboltable provides a dotted-path accessor over nested maps.
// Curation steps use it to store and merge per-visit attribute metadata
// before the result is serialized back to the platform.
package symboltable

import (
	"strings"

	"github.com/formflow/formflow/pkg/errors"
)

// Table maps dotted string paths to arbitrary values, backed by nested
// map[string]interface{} levels. Not safe for concurrent mutation; each
// curation pass owns its table exclusively.
type Table struct {
	root map[string]interface{}
}

// New creates an empty table.
func New() *Table {
	return &Table{root: make(map[string]interface{})}
}

// FromMap creates a table over an existing nested mapping.
// The mapping is adopted, not copied: mutations through the table are
// visible to holders of the original map.
func FromMap(m map[string]interface{}) *Table {
	if m == nil {
		m = make(map[string]interface{})
	}
	return &Table{root: m}
}

// Set splits path on "." and walks or creates intermediate maps, placing
// value at the leaf. If any intermediate key holds a non-map value the
// operation fails with a key-conflict error and the table is unchanged.
func (t *Table) Set(path string, value interface{}) error {
	keys := strings.Split(path, ".")
	node := t.root

	for _, key := range keys[:len(keys)-1] {
		child, ok := node[key]
		if !ok {
			next := make(map[string]interface{})
			node[key] = next
			node = next
			continue
		}

		childMap, ok := child.(map[string]interface{})
		if !ok {
			return errors.KeyConflict(path, key)
		}
		node = childMap
	}

	node[keys[len(keys)-1]] = value
	return nil
}

// Get walks path and returns the value at the leaf. A missing leaf or
// missing intermediate key returns (nil, false, nil). An intermediate key
// that holds a non-map value returns a path-conflict error, distinct from
// "not found": the path cannot be resolved under an atomic value.
func (t *Table) Get(path string) (interface{}, bool, error) {
	keys := strings.Split(path, ".")
	node := t.root

	for _, key := range keys[:len(keys)-1] {
		child, ok := node[key]
		if !ok {
			return nil, false, nil
		}

		childMap, ok := child.(map[string]interface{})
		if !ok {
			return nil, false, errors.PathConflict(path, key)
		}
		node = childMap
	}

	value, ok := node[keys[len(keys)-1]]
	if !ok {
		return nil, false, nil
	}
	return value, true, nil
}

// Delete removes the leaf at path. Deleting a missing path is a no-op;
// deleting through an atomic intermediate returns a path-conflict error.
func (t *Table) Delete(path string) error {
	keys := strings.Split(path, ".")
	node := t.root

	for _, key := range keys[:len(keys)-1] {
		child, ok := node[key]
		if !ok {
			return nil
		}

		childMap, ok := child.(map[string]interface{})
		if !ok {
			return errors.PathConflict(path, key)
		}
		node = childMap
	}

	delete(node, keys[len(keys)-1])
	return nil
}

// Keys returns the top-level keys of the table.
func (t *Table) Keys() []string {
	keys := make([]string, 0, len(t.root))
	for k := range t.root {
		keys = append(keys, k)
	}
	return keys
}

// Len returns the number of top-level keys.
func (t *Table) Len() int {
	return len(t.root)
}

// Map returns the backing nested mapping for external serialization.
func (t *Table) Map() map[string]interface{} {
	return t.root
}
