package render

import (
	"errors"
	"reflect"
	"strings"
	"testing"

	"github.com/emmapowers/trellis-sub001/pkg/protocol"
	"github.com/emmapowers/trellis-sub001/pkg/ui"
)

type recordedEvent struct {
	callbackID string
	args       []any
}

// eventRecorder captures outbound events for assertions.
type eventRecorder struct {
	events []recordedEvent
}

func (r *eventRecorder) SendEvent(callbackID string, args []any) {
	r.events = append(r.events, recordedEvent{callbackID: callbackID, args: args})
}

func TestRenderIntrinsicTree(t *testing.T) {
	rec := &eventRecorder{}
	r := New(ui.NewRegistry(), rec)

	tree := protocol.NewElement("column", map[string]any{"gap": float64(8)},
		protocol.NewElement("text", map[string]any{protocol.TextProp: "Hello"}),
		protocol.NewElement("button", map[string]any{protocol.TextProp: "Go", "disabled": false}),
	)

	node := r.Render(tree)
	if node == nil {
		t.Fatal("Render() = nil")
	}
	if node.Kind != ui.KindElement || node.Tag != "column" {
		t.Fatalf("root = %v %q, want Element column", node.Kind, node.Tag)
	}
	if got := node.Props.Int("gap", 0); got != 8 {
		t.Errorf("gap = %d, want 8", got)
	}
	if len(node.Children) != 2 {
		t.Fatalf("root children = %d, want 2", len(node.Children))
	}

	text := node.Children[0]
	if len(text.Children) != 1 || text.Children[0].Kind != ui.KindText || text.Children[0].Text != "Hello" {
		t.Errorf("text prop not lifted to leading text child: %+v", text.Children)
	}
	if _, ok := text.Props[protocol.TextProp]; ok {
		t.Error("reserved text prop leaked into resolved props")
	}
}

func TestRenderNilTree(t *testing.T) {
	r := New(ui.NewRegistry(), &eventRecorder{})
	if node := r.Render(nil); node != nil {
		t.Errorf("Render(nil) = %+v, want nil", node)
	}
}

func TestNavigatePropNotRendered(t *testing.T) {
	r := New(ui.NewRegistry(), &eventRecorder{})

	tree := protocol.NewElement("column", map[string]any{
		protocol.NavigateProp: "/next",
		"gap":                 float64(4),
	})
	node := r.Render(tree)

	if _, ok := node.Props[protocol.NavigateProp]; ok {
		t.Error("reserved navigation prop leaked into resolved props")
	}
	if got := node.Props.Int("gap", 0); got != 4 {
		t.Errorf("gap = %d, want ordinary props kept", got)
	}
	// The message itself stays untouched.
	if tree.Props[protocol.NavigateProp] != "/next" {
		t.Error("stripping must not mutate the protocol tree")
	}
}

func TestCallbackSendsExactlyOneEvent(t *testing.T) {
	rec := &eventRecorder{}
	r := New(ui.NewRegistry(), rec)

	tree := protocol.NewElement("button", map[string]any{
		"onClick": protocol.CallbackRef{ID: "cb-1"},
	})
	node := r.Render(tree)

	cb := node.Props.Callback("onClick")
	if cb == nil {
		t.Fatal("onClick did not resolve to a Callback")
	}
	if len(rec.events) != 0 {
		t.Fatalf("resolution alone sent %d events", len(rec.events))
	}

	cb(1, "a")
	if len(rec.events) != 1 {
		t.Fatalf("invocation sent %d events, want exactly 1", len(rec.events))
	}
	got := rec.events[0]
	if got.callbackID != "cb-1" || !reflect.DeepEqual(got.args, []any{1, "a"}) {
		t.Errorf("event = %+v, want cb-1 [1 a]", got)
	}

	cb()
	if len(rec.events) != 2 || len(rec.events[1].args) != 0 {
		t.Errorf("zero-arg invocation = %+v, want empty args", rec.events[1:])
	}
}

func TestCallbackFromDecodedMap(t *testing.T) {
	// Markers arrive as generic maps when a codec decoded the tree.
	rec := &eventRecorder{}
	r := New(ui.NewRegistry(), rec)

	tree := protocol.NewElement("button", map[string]any{
		"onClick": map[string]any{"__callback__": "cb-9"},
	})
	cb := r.Render(tree).Props.Callback("onClick")
	if cb == nil {
		t.Fatal("map-shaped marker did not resolve")
	}
	cb("x")
	if len(rec.events) != 1 || rec.events[0].callbackID != "cb-9" {
		t.Errorf("events = %+v, want one for cb-9", rec.events)
	}
}

func TestMutableBinding(t *testing.T) {
	rec := &eventRecorder{}
	r := New(ui.NewRegistry(), rec)

	tree := protocol.NewElement("input", map[string]any{
		"value": protocol.Mutable{ID: "mu-3", Value: "draft"},
	})
	node := r.Render(tree)

	b := node.Props.Binding("value")
	if b == nil {
		t.Fatal("value did not resolve to a Binding")
	}
	if b.Value != "draft" {
		t.Errorf("binding value = %v, want draft", b.Value)
	}

	b.Set("final")
	if len(rec.events) != 1 {
		t.Fatalf("Set sent %d events, want 1", len(rec.events))
	}
	got := rec.events[0]
	if got.callbackID != "mu-3" || !reflect.DeepEqual(got.args, []any{"final"}) {
		t.Errorf("event = %+v, want mu-3 [final]", got)
	}
}

func TestUnknownTypeRendersPlaceholder(t *testing.T) {
	r := New(ui.NewRegistry(), &eventRecorder{})

	tree := protocol.NewElement("totally-unknown-widget", map[string]any{"x": 1},
		protocol.NewElement("text", map[string]any{protocol.TextProp: "inner"}),
	)
	node := r.Render(tree)

	if node.Kind != ui.KindPlaceholder {
		t.Fatalf("kind = %v, want Placeholder", node.Kind)
	}
	if node.Tag != "totally-unknown-widget" {
		t.Errorf("tag = %q, want original type", node.Tag)
	}
	if !strings.Contains(node.Text, "totally-unknown-widget") {
		t.Errorf("placeholder text %q does not name the type", node.Text)
	}
	// Children are kept, not dropped.
	if len(node.Children) != 1 || node.Children[0].Tag != "text" {
		t.Errorf("placeholder children = %+v, want rendered text child", node.Children)
	}
}

func TestRegisteredWidget(t *testing.T) {
	reg := ui.NewRegistry()
	reg.Register("badge", ui.WidgetFunc(func(props ui.Props, children []*ui.Node) (*ui.Node, error) {
		return &ui.Node{
			Kind:     ui.KindElement,
			Tag:      "box",
			Props:    ui.Props{"label": props.String("label", "")},
			Children: children,
		}, nil
	}))
	r := New(reg, &eventRecorder{})

	tree := protocol.NewElement("badge", map[string]any{"label": "NEW"})
	tree.Key = "b-1"
	node := r.Render(tree)

	if node.Kind != ui.KindElement || node.Tag != "box" {
		t.Fatalf("widget output = %v %q", node.Kind, node.Tag)
	}
	if node.Props.String("label", "") != "NEW" {
		t.Errorf("label = %q, want NEW", node.Props.String("label", ""))
	}
	if node.Key != "b-1" {
		t.Errorf("key = %q, want supplied key propagated", node.Key)
	}
}

func TestWidgetErrorRendersPlaceholder(t *testing.T) {
	reg := ui.NewRegistry()
	reg.Register("broken", ui.WidgetFunc(func(props ui.Props, children []*ui.Node) (*ui.Node, error) {
		return nil, errors.New("boom")
	}))
	r := New(reg, &eventRecorder{})

	node := r.Render(protocol.NewElement("broken", nil))
	if node.Kind != ui.KindPlaceholder {
		t.Fatalf("kind = %v, want Placeholder", node.Kind)
	}
	if !strings.Contains(node.Text, "boom") {
		t.Errorf("placeholder text %q does not carry the failure", node.Text)
	}
}

func TestKeyFallsBackToPosition(t *testing.T) {
	r := New(ui.NewRegistry(), &eventRecorder{})

	keyed := protocol.NewElement("item", nil)
	keyed.Key = "stable"
	tree := protocol.NewElement("list", nil,
		protocol.NewElement("item", nil),
		keyed,
		protocol.NewElement("item", nil),
	)

	node := r.Render(tree)
	keys := []string{node.Children[0].Key, node.Children[1].Key, node.Children[2].Key}
	if want := []string{"0", "stable", "2"}; !reflect.DeepEqual(keys, want) {
		t.Errorf("keys = %v, want %v", keys, want)
	}
}

func TestNestedElementProp(t *testing.T) {
	r := New(ui.NewRegistry(), &eventRecorder{})

	tree := protocol.NewElement("link", map[string]any{
		"icon": protocol.NewElement("image", map[string]any{"src": "/i.png"}),
	})
	node := r.Render(tree)

	icon := node.Props.Node("icon")
	if icon == nil || icon.Tag != "image" {
		t.Fatalf("icon prop = %+v, want rendered image node", node.Props["icon"])
	}
	if icon.Props.String("src", "") != "/i.png" {
		t.Errorf("icon src = %q", icon.Props.String("src", ""))
	}
}

func TestListPropResolvesItems(t *testing.T) {
	rec := &eventRecorder{}
	r := New(ui.NewRegistry(), rec)

	tree := protocol.NewElement("table", map[string]any{
		"actions": []any{
			map[string]any{"__callback__": "cb-a"},
			map[string]any{"__callback__": "cb-b"},
		},
	})
	node := r.Render(tree)

	actions, ok := node.Props["actions"].([]any)
	if !ok || len(actions) != 2 {
		t.Fatalf("actions = %+v, want 2 resolved items", node.Props["actions"])
	}
	for i, want := range []string{"cb-a", "cb-b"} {
		cb, ok := actions[i].(ui.Callback)
		if !ok {
			t.Fatalf("actions[%d] = %T, want ui.Callback", i, actions[i])
		}
		cb()
		if rec.events[len(rec.events)-1].callbackID != want {
			t.Errorf("actions[%d] sent %q, want %q", i, rec.events[len(rec.events)-1].callbackID, want)
		}
	}
}
