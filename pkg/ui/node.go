package ui

// NodeKind is the node type discriminator.
type NodeKind uint8

const (
	KindElement     NodeKind = iota // intrinsic element or widget output
	KindText                        // plain text content
	KindPlaceholder                 // stand-in for an unknown element type
)

// String returns the string representation of the NodeKind.
func (k NodeKind) String() string {
	switch k {
	case KindElement:
		return "Element"
	case KindText:
		return "Text"
	case KindPlaceholder:
		return "Placeholder"
	default:
		return "Unknown"
	}
}

// Node is one node of the live UI tree. Props hold resolved values only:
// primitives, Callback, *Binding and nested *Node. Key is the identity hint
// used to correlate nodes across consecutive renders; when the app supplied
// none it falls back to the child's position.
type Node struct {
	Kind     NodeKind
	Tag      string // element type ("row", "button", original type for placeholders)
	Text     string // for KindText and KindPlaceholder
	Props    Props
	Children []*Node
	Key      string
}

// Walk visits n and its descendants depth-first. If fn returns false the
// walk stops.
func (n *Node) Walk(fn func(*Node) bool) bool {
	if n == nil {
		return true
	}
	if !fn(n) {
		return false
	}
	for _, c := range n.Children {
		if !c.Walk(fn) {
			return false
		}
	}
	return true
}

// Find returns the first node in depth-first order satisfying fn.
func (n *Node) Find(fn func(*Node) bool) *Node {
	var found *Node
	n.Walk(func(node *Node) bool {
		if fn(node) {
			found = node
			return false
		}
		return true
	})
	return found
}

// FindByTag returns the first node with the given tag.
func (n *Node) FindByTag(tag string) *Node {
	return n.Find(func(node *Node) bool { return node.Tag == tag })
}

// Callback is a resolved callback reference. Invoking it sends exactly one
// event message carrying the arguments in order; it never runs application
// logic locally.
type Callback func(args ...any)

// Binding is a resolved two-way binding: the last value the application
// rendered plus a setter that reports changes back as an event. Whether a
// widget echoes the new value locally before the next render is the
// widget's choice.
type Binding struct {
	Value any
	set   func(value any)
}

// NewBinding creates a binding around a setter.
func NewBinding(value any, set func(value any)) *Binding {
	return &Binding{Value: value, set: set}
}

// Set reports a new value to the application process.
func (b *Binding) Set(value any) {
	if b.set != nil {
		b.set(value)
	}
}
