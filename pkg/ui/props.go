package ui

// Props holds a node's resolved prop values.
type Props map[string]any

// Get returns the named prop.
func (p Props) Get(name string) (any, bool) {
	v, ok := p[name]
	return v, ok
}

// String returns the named prop as a string, or def when absent or not a
// string.
func (p Props) String(name, def string) string {
	if s, ok := p[name].(string); ok {
		return s
	}
	return def
}

// Bool returns the named prop as a bool, or def.
func (p Props) Bool(name string, def bool) bool {
	if b, ok := p[name].(bool); ok {
		return b
	}
	return def
}

// Int returns the named prop as an int, or def. JSON decoding yields
// float64 numbers and msgpack yields sized integers, so all of them
// convert.
func (p Props) Int(name string, def int) int {
	switch n := p[name].(type) {
	case int:
		return n
	case int8:
		return int(n)
	case int16:
		return int(n)
	case int32:
		return int(n)
	case int64:
		return int(n)
	case uint8:
		return int(n)
	case uint16:
		return int(n)
	case uint32:
		return int(n)
	case uint64:
		return int(n)
	case float64:
		return int(n)
	case float32:
		return int(n)
	}
	return def
}

// Float64 returns the named prop as a float64, or def.
func (p Props) Float64(name string, def float64) float64 {
	switch n := p[name].(type) {
	case float64:
		return n
	case float32:
		return float64(n)
	case int:
		return float64(n)
	case int64:
		return float64(n)
	case uint64:
		return float64(n)
	}
	return def
}

// Callback returns the named prop as a Callback, or nil.
func (p Props) Callback(name string) Callback {
	if cb, ok := p[name].(Callback); ok {
		return cb
	}
	return nil
}

// Binding returns the named prop as a *Binding, or nil.
func (p Props) Binding(name string) *Binding {
	if b, ok := p[name].(*Binding); ok {
		return b
	}
	return nil
}

// Node returns the named prop as a nested *Node, or nil.
func (p Props) Node(name string) *Node {
	if n, ok := p[name].(*Node); ok {
		return n
	}
	return nil
}
