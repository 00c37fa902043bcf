// Package ring provides a fixed-capacity circular buffer that evicts its
// oldest element once full.
package ring

import "codeberg.org/mutker/sensorsim/internal/errors"

// Buffer is a fixed-capacity FIFO backed by a circular slice. It is not safe
// for concurrent use; owners synchronize access.
type Buffer[T any] struct {
	items []T
	head  int // index of the oldest element
	count int
}

// New creates an empty buffer holding at most capacity elements.
func New[T any](capacity int) (*Buffer[T], error) {
	if capacity <= 0 {
		return nil, errors.New().WithData(errors.ErrInvalidCapacity, capacity)
	}

	return &Buffer[T]{items: make([]T, capacity)}, nil
}

// Add appends item, evicting the oldest element when the buffer is full.
func (b *Buffer[T]) Add(item T) {
	size := len(b.items)
	if b.count < size {
		b.items[(b.head+b.count)%size] = item
		b.count++
		return
	}

	b.items[b.head] = item
	b.head = (b.head + 1) % size
}

// Snapshot returns a copy of the contents, oldest first.
func (b *Buffer[T]) Snapshot() []T {
	out := make([]T, b.count)
	n := copy(out, b.items[b.head:min(b.head+b.count, len(b.items))])
	copy(out[n:], b.items[:b.count-n])

	return out
}

// Len returns the number of elements currently held.
func (b *Buffer[T]) Len() int {
	return b.count
}

// Cap returns the fixed capacity.
func (b *Buffer[T]) Cap() int {
	return len(b.items)
}
