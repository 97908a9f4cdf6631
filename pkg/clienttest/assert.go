package clienttest

import (
	"reflect"
	"strings"
	"testing"

	"github.com/emmapowers/trellis-sub001/pkg/ui"
)

// Text returns the visible text of a rendered tree: the content of every
// text node in depth-first order, newline-joined.
func Text(node *ui.Node) string {
	if node == nil {
		return ""
	}
	var parts []string
	node.Walk(func(n *ui.Node) bool {
		if n.Kind == ui.KindText && n.Text != "" {
			parts = append(parts, n.Text)
		}
		return true
	})
	return strings.Join(parts, "\n")
}

// ExpectText asserts that the rendered tree's visible text contains
// expected.
//
// Example:
//
//	clienttest.ExpectText(t, s.MustRender(t), "Count: 3")
func ExpectText(tb testing.TB, node *ui.Node, expected string) {
	tb.Helper()
	text := Text(node)
	if !strings.Contains(text, expected) {
		tb.Errorf("expected rendered text to contain %q, got:\n%s", expected, truncate(text, 500))
	}
}

// ExpectNoText asserts that the rendered tree's visible text does not
// contain unexpected.
func ExpectNoText(tb testing.TB, node *ui.Node, unexpected string) {
	tb.Helper()
	text := Text(node)
	if strings.Contains(text, unexpected) {
		tb.Errorf("expected rendered text to NOT contain %q, got:\n%s", unexpected, truncate(text, 500))
	}
}

// ExpectTag asserts that the tree contains a node with the given tag and
// returns that node for further assertions.
//
// Example:
//
//	btn := clienttest.ExpectTag(t, root, "button")
func ExpectTag(tb testing.TB, node *ui.Node, tag string) *ui.Node {
	tb.Helper()
	found := node.FindByTag(tag)
	if found == nil {
		tb.Fatalf("expected tree to contain a %q node", tag)
	}
	return found
}

// ExpectProp asserts that the first node with the given tag carries prop
// with the wanted value.
//
// Example:
//
//	clienttest.ExpectProp(t, root, "button", "variant", "primary")
func ExpectProp(tb testing.TB, node *ui.Node, tag, prop string, want any) {
	tb.Helper()
	target := ExpectTag(tb, node, tag)
	got, ok := target.Props.Get(prop)
	if !ok {
		tb.Fatalf("expected %q node to carry prop %q", tag, prop)
	}
	if !reflect.DeepEqual(got, want) {
		tb.Errorf("prop %s.%s = %v, want %v", tag, prop, got, want)
	}
}

// Invoke finds the first node with the given tag and invokes its resolved
// callback prop, the way a user interaction would. The app double receives
// one event message.
//
// Example:
//
//	clienttest.Invoke(t, root, "button", "onClick")
//	evt := s.App.AwaitEvent(t)
func Invoke(tb testing.TB, node *ui.Node, tag, prop string, args ...any) {
	tb.Helper()
	target := ExpectTag(tb, node, tag)
	cb := target.Props.Callback(prop)
	if cb == nil {
		tb.Fatalf("expected %q node to carry callback prop %q", tag, prop)
	}
	cb(args...)
}

// SetBinding finds the first node with the given tag and writes through its
// two-way binding prop. The app double receives one event message carrying
// the new value.
//
// Example:
//
//	clienttest.SetBinding(t, root, "input", "value", "hello")
func SetBinding(tb testing.TB, node *ui.Node, tag, prop string, value any) {
	tb.Helper()
	target := ExpectTag(tb, node, tag)
	b := target.Props.Binding(prop)
	if b == nil {
		tb.Fatalf("expected %q node to carry binding prop %q", tag, prop)
	}
	b.Set(value)
}

// truncate shortens a string to max length with ellipsis.
func truncate(s string, max int) string {
	if len(s) <= max {
		return s
	}
	return s[:max] + "..."
}
