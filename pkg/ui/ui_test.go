package ui

import (
	"reflect"
	"testing"
)

func TestNodeWalkAndFind(t *testing.T) {
	tree := &Node{Kind: KindElement, Tag: "column", Children: []*Node{
		{Kind: KindText, Text: "hello"},
		{Kind: KindElement, Tag: "row", Children: []*Node{
			{Kind: KindElement, Tag: "button", Key: "b1"},
		}},
	}}

	var tags []string
	tree.Walk(func(n *Node) bool {
		tags = append(tags, n.Tag)
		return true
	})
	if want := []string{"column", "", "row", "button"}; !reflect.DeepEqual(tags, want) {
		t.Errorf("Walk tags = %v, want %v", tags, want)
	}

	if n := tree.FindByTag("button"); n == nil || n.Key != "b1" {
		t.Errorf("FindByTag(button) = %+v, want key b1", n)
	}
	if n := tree.FindByTag("table"); n != nil {
		t.Errorf("FindByTag(table) = %+v, want nil", n)
	}
}

func TestBinding(t *testing.T) {
	var got any
	b := NewBinding("initial", func(v any) { got = v })

	if b.Value != "initial" {
		t.Errorf("Value = %v, want initial", b.Value)
	}
	b.Set("changed")
	if got != "changed" {
		t.Errorf("setter received %v, want changed", got)
	}

	// A binding without a setter tolerates Set.
	(&Binding{Value: 1}).Set(2)
}

func TestPropsAccessors(t *testing.T) {
	cb := Callback(func(args ...any) {})
	bind := NewBinding(5, nil)
	nested := &Node{Kind: KindElement, Tag: "icon"}
	p := Props{
		"label":   "Save",
		"primary": true,
		"count":   float64(3),
		"ratio":   0.5,
		"big":     int64(9),
		"onClick": cb,
		"value":   bind,
		"icon":    nested,
	}

	if got := p.String("label", ""); got != "Save" {
		t.Errorf("String(label) = %q", got)
	}
	if got := p.String("missing", "d"); got != "d" {
		t.Errorf("String(missing) = %q, want d", got)
	}
	if !p.Bool("primary", false) {
		t.Error("Bool(primary) = false")
	}
	if got := p.Int("count", 0); got != 3 {
		t.Errorf("Int(count) = %d, want 3", got)
	}
	if got := p.Int("big", 0); got != 9 {
		t.Errorf("Int(big) = %d, want 9", got)
	}
	if got := p.Int("label", 7); got != 7 {
		t.Errorf("Int(label) = %d, want default 7", got)
	}
	if got := p.Float64("ratio", 0); got != 0.5 {
		t.Errorf("Float64(ratio) = %v, want 0.5", got)
	}
	if p.Callback("onClick") == nil {
		t.Error("Callback(onClick) = nil")
	}
	if p.Callback("label") != nil {
		t.Error("Callback(label) != nil")
	}
	if p.Binding("value") != bind {
		t.Error("Binding(value) mismatch")
	}
	if p.Node("icon") != nested {
		t.Error("Node(icon) mismatch")
	}
}

func TestRegistry(t *testing.T) {
	reg := NewRegistry()

	if _, ok := reg.Lookup("badge"); ok {
		t.Error("Lookup on empty registry returned ok")
	}

	first := WidgetFunc(func(props Props, children []*Node) (*Node, error) {
		return &Node{Kind: KindElement, Tag: "span"}, nil
	})
	second := WidgetFunc(func(props Props, children []*Node) (*Node, error) {
		return &Node{Kind: KindElement, Tag: "div"}, nil
	})

	reg.Register("badge", first)
	reg.Register("card", second)

	w, ok := reg.Lookup("badge")
	if !ok {
		t.Fatal("Lookup(badge) missing after Register")
	}
	n, err := w.Render(nil, nil)
	if err != nil || n.Tag != "span" {
		t.Errorf("badge render = %+v, %v", n, err)
	}

	// Re-registering replaces.
	reg.Register("badge", second)
	w, _ = reg.Lookup("badge")
	n, _ = w.Render(nil, nil)
	if n.Tag != "div" {
		t.Errorf("replaced badge render tag = %q, want div", n.Tag)
	}

	if got := reg.Types(); !reflect.DeepEqual(got, []string{"badge", "card"}) {
		t.Errorf("Types() = %v, want [badge card]", got)
	}
}

func TestNodeKindString(t *testing.T) {
	tests := []struct {
		kind NodeKind
		want string
	}{
		{KindElement, "Element"},
		{KindText, "Text"},
		{KindPlaceholder, "Placeholder"},
		{NodeKind(99), "Unknown"},
	}
	for _, tc := range tests {
		if got := tc.kind.String(); got != tc.want {
			t.Errorf("NodeKind(%d).String() = %q, want %q", tc.kind, got, tc.want)
		}
	}
}
