package subscription

import "sync"

// listener is one registration. Identity is the pointer, never the func value,
// so duplicate funcs stay independent.
type listener[T any] struct {
	fn func(T)
}

// Listeners is an ordered, concurrency-safe set of handlers.
type Listeners[T any] struct {
	mu      sync.RWMutex
	entries []*listener[T]
}

// Add registers fn and returns a disposer that removes this registration.
// Calling the disposer more than once is a no-op.
func (l *Listeners[T]) Add(fn func(T)) (dispose func()) {
	entry := &listener[T]{fn: fn}

	l.mu.Lock()
	l.entries = append(l.entries, entry)
	l.mu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() {
			l.mu.Lock()
			l.entries = removeEntry(l.entries, entry)
			l.mu.Unlock()
		})
	}
}

// Len returns the number of live registrations.
func (l *Listeners[T]) Len() int {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return len(l.entries)
}

// Notify calls every registered handler with v in registration order.
// Handlers run outside the lock and may add or dispose registrations.
func (l *Listeners[T]) Notify(v T) int {
	l.mu.RLock()
	entries := make([]*listener[T], len(l.entries))
	copy(entries, l.entries)
	l.mu.RUnlock()

	for _, e := range entries {
		e.fn(v)
	}
	return len(entries)
}

// removeEntry deletes entry from entries, preserving order.
func removeEntry[T any](entries []*listener[T], entry *listener[T]) []*listener[T] {
	for i, e := range entries {
		if e == entry {
			copy(entries[i:], entries[i+1:])
			entries[len(entries)-1] = nil
			return entries[:len(entries)-1]
		}
	}
	return entries
}
