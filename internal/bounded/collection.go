// Package bounded provides a fixed-capacity, insertion-ordered collection
// that evicts its oldest items first.
//
// The registry uses it to cap how many archives stay loaded during a long
// session without asking the user to unload anything explicitly.
package bounded

import "fmt"

// Collection is a generic FIFO-evicting collection. Adding an item beyond
// the capacity removes the oldest items until the size equals the capacity.
//
// Collection is not safe for concurrent use; owners guard it with their
// own lock (see registry.Registry).
type Collection[T any] struct {
	capacity int
	items    []T
}

// New creates an empty collection holding at most capacity items.
// A capacity below one is rejected because such a collection could never
// retain anything.
func New[T any](capacity int) (*Collection[T], error) {
	if capacity <= 0 {
		return nil, fmt.Errorf("bounded collection capacity must be greater than 0, got %d", capacity)
	}
	return &Collection[T]{
		capacity: capacity,
		items:    make([]T, 0, capacity),
	}, nil
}

// Add appends item. If the collection then exceeds its capacity, the
// oldest items are evicted and returned in the order they were inserted.
// The returned slice is nil when nothing was evicted.
func (c *Collection[T]) Add(item T) []T {
	c.items = append(c.items, item)
	overflow := len(c.items) - c.capacity
	if overflow <= 0 {
		return nil
	}

	evicted := make([]T, overflow)
	copy(evicted, c.items[:overflow])

	// Shift the survivors down instead of reslicing so the backing array
	// does not grow without bound across many evictions.
	n := copy(c.items, c.items[overflow:])
	var zero T
	for i := n; i < len(c.items); i++ {
		c.items[i] = zero
	}
	c.items = c.items[:n]
	return evicted
}

// Items returns a copy of the current items in insertion order.
func (c *Collection[T]) Items() []T {
	out := make([]T, len(c.items))
	copy(out, c.items)
	return out
}

// Len returns the number of items currently held.
func (c *Collection[T]) Len() int {
	return len(c.items)
}

// Cap returns the configured capacity.
func (c *Collection[T]) Cap() int {
	return c.capacity
}

// Clear removes every item. The capacity is unchanged.
func (c *Collection[T]) Clear() {
	var zero T
	for i := range c.items {
		c.items[i] = zero
	}
	c.items = c.items[:0]
}
