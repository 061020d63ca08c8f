// Package chat implements the conversation engine: conversation discovery,
// message history, optimistic sending and live updates over the realtime
// stream.
package chat

import "sync"

// Cell is an observable value. Subscribers are invoked synchronously on
// every change, outside the cell's lock, in registration order. It is the
// engine's unit of reactive state: message lists, flags and session state
// are all published through cells.
type Cell[T any] struct {
	mu    sync.Mutex
	value T
	subs  map[int]func(T)
	next  int
}

// NewCell creates a cell holding the initial value.
func NewCell[T any](initial T) *Cell[T] {
	return &Cell[T]{value: initial, subs: make(map[int]func(T))}
}

// Get returns the current value.
func (c *Cell[T]) Get() T {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.value
}

// Set stores a new value and notifies subscribers.
func (c *Cell[T]) Set(v T) {
	c.mu.Lock()
	c.value = v
	subs := c.snapshotSubs()
	c.mu.Unlock()

	for _, fn := range subs {
		fn(v)
	}
}

// Update applies fn to the current value and notifies subscribers with
// the result. fn runs under the cell's lock and must not call back in.
func (c *Cell[T]) Update(fn func(T) T) T {
	c.mu.Lock()
	c.value = fn(c.value)
	v := c.value
	subs := c.snapshotSubs()
	c.mu.Unlock()

	for _, s := range subs {
		s(v)
	}
	return v
}

// Subscribe registers fn for future changes and returns an unsubscribe
// function. The current value is not replayed.
func (c *Cell[T]) Subscribe(fn func(T)) func() {
	c.mu.Lock()
	id := c.next
	c.next++
	c.subs[id] = fn
	c.mu.Unlock()

	return func() {
		c.mu.Lock()
		delete(c.subs, id)
		c.mu.Unlock()
	}
}

func (c *Cell[T]) snapshotSubs() []func(T) {
	out := make([]func(T), 0, len(c.subs))
	for id := 0; id < c.next; id++ {
		if fn, ok := c.subs[id]; ok {
			out = append(out, fn)
		}
	}
	return out
}
