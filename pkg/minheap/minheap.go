// Package minheap provides a generic binary min-heap.
// Schedulers use it for priority dispatch where per-module FIFO ordering
// is not enough (e.g., earliest-timestamp-first draining).
package minheap

// Heap is a binary min-heap over T ordered by the less function supplied at
// construction. Not safe for concurrent use; each scheduler pass owns its
// heap exclusively.
type Heap[T any] struct {
	items []T
	less  func(a, b T) bool
}

// New creates an empty heap ordered by less.
func New[T any](less func(a, b T) bool) *Heap[T] {
	return &Heap[T]{less: less}
}

// Push inserts an element in O(log n).
func (h *Heap[T]) Push(item T) {
	h.items = append(h.items, item)
	h.up(len(h.items) - 1)
}

// Pop removes and returns the minimum element. The second return value is
// false when the heap is empty.
func (h *Heap[T]) Pop() (T, bool) {
	var zero T
	if len(h.items) == 0 {
		return zero, false
	}

	min := h.items[0]
	last := len(h.items) - 1
	h.items[0] = h.items[last]
	h.items[last] = zero // release reference
	h.items = h.items[:last]
	if len(h.items) > 0 {
		h.down(0)
	}
	return min, true
}

// Peek returns the minimum element without removing it.
func (h *Heap[T]) Peek() (T, bool) {
	var zero T
	if len(h.items) == 0 {
		return zero, false
	}
	return h.items[0], true
}

// Len returns the number of elements.
func (h *Heap[T]) Len() int {
	return len(h.items)
}

// Empty returns true if the heap has no elements.
func (h *Heap[T]) Empty() bool {
	return len(h.items) == 0
}

func (h *Heap[T]) up(i int) {
	for i > 0 {
		parent := (i - 1) / 2
		if !h.less(h.items[i], h.items[parent]) {
			break
		}
		h.items[i], h.items[parent] = h.items[parent], h.items[i]
		i = parent
	}
}

func (h *Heap[T]) down(i int) {
	n := len(h.items)
	for {
		left := 2*i + 1
		if left >= n {
			break
		}

		smallest := left
		if right := left + 1; right < n && h.less(h.items[right], h.items[left]) {
			smallest = right
		}

		if !h.less(h.items[smallest], h.items[i]) {
			break
		}
		h.items[i], h.items[smallest] = h.items[smallest], h.items[i]
		i = smallest
	}
}
