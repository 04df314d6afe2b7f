package cache

import "sync"

// Collection is an ordered, id-addressable in-memory view of one entity
// type. Mutations are synchronous and independent per collection; there is
// no cross-collection transaction. Reads return copies of the backing
// slice so callers never observe a mid-mutation state.
type Collection[T any] struct {
	mu    sync.RWMutex
	items []T
	id    func(T) int64
}

// NewCollection creates an empty collection. id extracts the entity id
// used for lookups and merges.
func NewCollection[T any](id func(T) int64) *Collection[T] {
	return &Collection[T]{id: id}
}

// Replace swaps the whole collection for a freshly fetched page.
func (c *Collection[T]) Replace(items []T) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.items = append([]T(nil), items...)
}

// Prepend inserts an item at the head, keeping newest-first order.
func (c *Collection[T]) Prepend(item T) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.items = append([]T{item}, c.items...)
}

// Upsert replaces the item with the same id in place, preserving order,
// or prepends it when absent.
func (c *Collection[T]) Upsert(item T) {
	c.mu.Lock()
	defer c.mu.Unlock()

	id := c.id(item)
	for i := range c.items {
		if c.id(c.items[i]) == id {
			c.items[i] = item
			return
		}
	}
	c.items = append([]T{item}, c.items...)
}

// Remove deletes the item with the given id. Returns the removed item and
// whether it was present.
func (c *Collection[T]) Remove(id int64) (T, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	for i := range c.items {
		if c.id(c.items[i]) == id {
			removed := c.items[i]
			c.items = append(c.items[:i], c.items[i+1:]...)
			return removed, true
		}
	}
	var zero T
	return zero, false
}

// Get returns the item with the given id.
func (c *Collection[T]) Get(id int64) (T, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	for i := range c.items {
		if c.id(c.items[i]) == id {
			return c.items[i], true
		}
	}
	var zero T
	return zero, false
}

// Update applies fn to the item with the given id, in place.
func (c *Collection[T]) Update(id int64, fn func(*T)) (T, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	for i := range c.items {
		if c.id(c.items[i]) == id {
			fn(&c.items[i])
			return c.items[i], true
		}
	}
	var zero T
	return zero, false
}

// Snapshot returns a copy of the collection in its current order.
func (c *Collection[T]) Snapshot() []T {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return append([]T(nil), c.items...)
}

// Filter returns a copy of the items matching keep, in order.
func (c *Collection[T]) Filter(keep func(T) bool) []T {
	c.mu.RLock()
	defer c.mu.RUnlock()

	var out []T
	for _, item := range c.items {
		if keep(item) {
			out = append(out, item)
		}
	}
	return out
}

// Len returns the number of cached items.
func (c *Collection[T]) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.items)
}
