package ui

import (
	"sort"
	"sync"
)

// Widget materializes one registered element type. It receives resolved
// props and already-rendered children and returns the node to display.
type Widget interface {
	Render(props Props, children []*Node) (*Node, error)
}

// WidgetFunc adapts a function to the Widget interface.
type WidgetFunc func(props Props, children []*Node) (*Node, error)

// Render implements Widget.
func (f WidgetFunc) Render(props Props, children []*Node) (*Node, error) {
	return f(props, children)
}

// Registry maps element type names to widgets. Each client owns its own
// registry; there is no process-global table. A lookup miss is a data
// condition the renderer answers with a placeholder, never an error.
type Registry struct {
	mu    sync.RWMutex
	types map[string]Widget
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{types: make(map[string]Widget)}
}

// Register binds a type name to a widget. Registering a name twice
// replaces the earlier widget.
func (r *Registry) Register(name string, w Widget) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.types[name] = w
}

// Lookup returns the widget registered under name.
func (r *Registry) Lookup(name string) (Widget, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	w, ok := r.types[name]
	return w, ok
}

// Types returns the registered type names, sorted.
func (r *Registry) Types() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := make([]string, 0, len(r.types))
	for name := range r.types {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
