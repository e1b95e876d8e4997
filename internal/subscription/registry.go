package subscription

import (
	"sort"
	"sync"
)

// Registry maps item IDs to the handlers interested in them.
type Registry[T any] struct {
	mu    sync.RWMutex
	items map[string][]*listener[T]
}

// NewRegistry creates an empty Registry.
func NewRegistry[T any]() *Registry[T] {
	return &Registry[T]{
		items: make(map[string][]*listener[T]),
	}
}

// Register adds fn as a handler for itemID. first is true when itemID had no
// handlers before this call. The returned unregister removes exactly this
// registration and reports whether itemID has no handlers left; repeated calls
// are no-ops that report false.
func (r *Registry[T]) Register(itemID string, fn func(T)) (first bool, unregister func() (emptied bool)) {
	entry := &listener[T]{fn: fn}

	r.mu.Lock()
	first = len(r.items[itemID]) == 0
	r.items[itemID] = append(r.items[itemID], entry)
	r.mu.Unlock()

	var once sync.Once
	unregister = func() bool {
		var emptied bool
		once.Do(func() {
			r.mu.Lock()
			defer r.mu.Unlock()

			entries, ok := r.items[itemID]
			if !ok {
				return
			}
			entries = removeEntry(entries, entry)
			if len(entries) == 0 {
				delete(r.items, itemID)
				emptied = true
				return
			}
			r.items[itemID] = entries
		})
		return emptied
	}
	return first, unregister
}

// Dispatch calls every handler registered for itemID and returns how many ran.
// Handlers run outside the lock.
func (r *Registry[T]) Dispatch(itemID string, v T) int {
	r.mu.RLock()
	src := r.items[itemID]
	entries := make([]*listener[T], len(src))
	copy(entries, src)
	r.mu.RUnlock()

	for _, e := range entries {
		e.fn(v)
	}
	return len(entries)
}

// Has reports whether itemID has at least one handler.
func (r *Registry[T]) Has(itemID string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.items[itemID]) > 0
}

// ItemIDs returns the item IDs with at least one handler, sorted.
func (r *Registry[T]) ItemIDs() []string {
	r.mu.RLock()
	ids := make([]string, 0, len(r.items))
	for id := range r.items {
		ids = append(ids, id)
	}
	r.mu.RUnlock()

	sort.Strings(ids)
	return ids
}

// Len returns the number of item IDs with at least one handler.
func (r *Registry[T]) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.items)
}

// Handlers returns the number of handlers registered for itemID.
func (r *Registry[T]) Handlers(itemID string) int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.items[itemID])
}
