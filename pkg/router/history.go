package router

import "sync"

// History abstracts the host environment's address and history stack.
//
// Push and Replace change the current entry without notifying listeners,
// matching pushState semantics where programmatic changes do not fire
// popstate. Back and Forward move through existing entries and do notify,
// matching popstate.
type History interface {
	// Location returns the current entry's URL.
	Location() string

	// Push appends a new entry and makes it current, discarding any
	// forward entries. Listeners are not notified.
	Push(url string)

	// Replace overwrites the current entry. Listeners are not notified.
	Replace(url string)

	// Back moves to the previous entry, if any, and notifies listeners.
	Back()

	// Forward moves to the next entry, if any, and notifies listeners.
	Forward()

	// Listen registers a listener for Back/Forward movement. The returned
	// function removes the listener and is safe to call more than once.
	Listen(fn func(url string)) (remove func())
}

// MemoryHistory is an in-process History. It backs sessions whose host has
// no real address bar and doubles as the test double for hosts that do.
type MemoryHistory struct {
	mu        sync.Mutex
	stack     []string
	index     int
	listeners map[int]func(string)
	nextID    int
}

// NewMemoryHistory creates a history with a single initial entry.
func NewMemoryHistory(initial string) *MemoryHistory {
	return &MemoryHistory{
		stack:     []string{initial},
		listeners: make(map[int]func(string)),
	}
}

// Location returns the current entry's URL.
func (h *MemoryHistory) Location() string {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.stack[h.index]
}

// Push appends a new entry, discarding forward entries.
func (h *MemoryHistory) Push(url string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.stack = append(h.stack[:h.index+1], url)
	h.index = len(h.stack) - 1
}

// Replace overwrites the current entry.
func (h *MemoryHistory) Replace(url string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.stack[h.index] = url
}

// Back moves one entry back and notifies listeners. At the oldest entry it
// does nothing.
func (h *MemoryHistory) Back() {
	h.mu.Lock()
	if h.index == 0 {
		h.mu.Unlock()
		return
	}
	h.index--
	url, fns := h.stack[h.index], h.snapshotListeners()
	h.mu.Unlock()

	for _, fn := range fns {
		fn(url)
	}
}

// Forward moves one entry forward and notifies listeners. At the newest
// entry it does nothing.
func (h *MemoryHistory) Forward() {
	h.mu.Lock()
	if h.index >= len(h.stack)-1 {
		h.mu.Unlock()
		return
	}
	h.index++
	url, fns := h.stack[h.index], h.snapshotListeners()
	h.mu.Unlock()

	for _, fn := range fns {
		fn(url)
	}
}

// Listen registers fn for Back/Forward movement.
func (h *MemoryHistory) Listen(fn func(url string)) (remove func()) {
	h.mu.Lock()
	id := h.nextID
	h.nextID++
	h.listeners[id] = fn
	h.mu.Unlock()

	return func() {
		h.mu.Lock()
		delete(h.listeners, id)
		h.mu.Unlock()
	}
}

// Len reports the number of entries. Useful in tests asserting that a
// navigation pushed exactly once.
func (h *MemoryHistory) Len() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.stack)
}

// snapshotListeners copies the listener set so callbacks run outside the
// lock. Callers must hold h.mu.
func (h *MemoryHistory) snapshotListeners() []func(string) {
	fns := make([]func(string), 0, len(h.listeners))
	for _, fn := range h.listeners {
		fns = append(fns, fn)
	}
	return fns
}
