// Package el builds protocol element trees with a compact constructor
// vocabulary. It is the host-side counterpart of the renderer's intrinsic
// set: applications compose Column/Row/Button calls instead of assembling
// Element literals by hand.
package el

import (
	"fmt"

	"github.com/emmapowers/trellis-sub001/pkg/protocol"
)

const keyAttr = "key"

// Attr sets one prop on the element under construction.
type Attr struct {
	Key   string
	Value any
}

func attr(key string, value any) Attr { return Attr{Key: key, Value: value} }

// Prop sets an arbitrary prop.
func Prop(name string, value any) Attr { return attr(name, value) }

// Key sets the element's reconciliation key.
func Key(key string) Attr { return attr(keyAttr, key) }

// Label sets the reserved text prop, which the renderer lifts into leading
// text content. Controls carry their caption here.
func Label(text string) Attr { return attr(protocol.TextProp, text) }

// Placeholder sets the hint text of an empty input.
func Placeholder(text string) Attr { return attr("placeholder", text) }

// Src sets an image source.
func Src(url string) Attr { return attr("src", url) }

// Disabled marks a control inert.
func Disabled(v bool) Attr { return attr("disabled", v) }

// On attaches a callback reference under the given prop name. Invoking the
// resolved callback on the client sends an event carrying callbackID.
func On(prop, callbackID string) Attr {
	return attr(prop, protocol.CallbackRef{ID: callbackID})
}

// OnClick attaches a click callback.
func OnClick(callbackID string) Attr { return On("onClick", callbackID) }

// OnChange attaches a change callback.
func OnChange(callbackID string) Attr { return On("onChange", callbackID) }

// OnSubmit attaches a submit callback.
func OnSubmit(callbackID string) Attr { return On("onSubmit", callbackID) }

// Bind exposes a two-way binding under the value prop. value is the current
// application-side value; client writes arrive as events carrying id.
func Bind(id string, value any) Attr {
	return BindProp("value", id, value)
}

// BindProp is Bind for an arbitrary prop.
func BindProp(prop, id string, value any) Attr {
	return attr(prop, protocol.Mutable{ID: id, Value: value})
}

// New builds an element of an arbitrary type. Args are classified by their
// type: Attr and []Attr set props, *protocol.Element and []*protocol.Element
// append children, and plain strings become text children. Nils are skipped,
// which lets conditional helpers return nothing. Anything else is ignored.
func New(typ string, args ...any) *protocol.Element {
	el := &protocol.Element{Type: typ}
	for _, arg := range args {
		switch v := arg.(type) {
		case nil:
		case Attr:
			apply(el, v)
		case []Attr:
			for _, a := range v {
				apply(el, a)
			}
		case *protocol.Element:
			if v != nil {
				el.Children = append(el.Children, v)
			}
		case []*protocol.Element:
			for _, child := range v {
				if child != nil {
					el.Children = append(el.Children, child)
				}
			}
		case string:
			el.Children = append(el.Children, Text(v))
		}
	}
	return el
}

func apply(el *protocol.Element, a Attr) {
	if a.Key == "" {
		return
	}
	if a.Key == keyAttr {
		if s, ok := a.Value.(string); ok {
			el.Key = s
		}
		return
	}
	if el.Props == nil {
		el.Props = make(map[string]any)
	}
	el.Props[a.Key] = a.Value
}

// Text builds a text element.
func Text(s string) *protocol.Element {
	return &protocol.Element{
		Type:  "text",
		Props: map[string]any{protocol.TextProp: s},
	}
}

// Textf builds a text element from a format string.
func Textf(format string, args ...any) *protocol.Element {
	return Text(fmt.Sprintf(format, args...))
}

// If returns node when the condition holds and nil otherwise. New skips nil
// children, so conditional branches compose inline.
func If(condition bool, node *protocol.Element) *protocol.Element {
	if condition {
		return node
	}
	return nil
}

// Range maps items to child elements.
func Range[T any](items []T, fn func(item T, index int) *protocol.Element) []*protocol.Element {
	out := make([]*protocol.Element, 0, len(items))
	for i, item := range items {
		out = append(out, fn(item, i))
	}
	return out
}

// Layout elements.

func Box(args ...any) *protocol.Element     { return New("box", args...) }
func Column(args ...any) *protocol.Element  { return New("column", args...) }
func Row(args ...any) *protocol.Element     { return New("row", args...) }
func Spacer(args ...any) *protocol.Element  { return New("spacer", args...) }
func Divider(args ...any) *protocol.Element { return New("divider", args...) }

// Content elements.

func Image(args ...any) *protocol.Element    { return New("image", args...) }
func Link(args ...any) *protocol.Element     { return New("link", args...) }
func List(args ...any) *protocol.Element     { return New("list", args...) }
func Item(args ...any) *protocol.Element     { return New("item", args...) }
func Table(args ...any) *protocol.Element    { return New("table", args...) }
func Progress(args ...any) *protocol.Element { return New("progress", args...) }

// Form elements.

func Form(args ...any) *protocol.Element     { return New("form", args...) }
func Button(args ...any) *protocol.Element   { return New("button", args...) }
func Input(args ...any) *protocol.Element    { return New("input", args...) }
func Textarea(args ...any) *protocol.Element { return New("textarea", args...) }
func Checkbox(args ...any) *protocol.Element { return New("checkbox", args...) }
func Select(args ...any) *protocol.Element   { return New("select", args...) }
func Option(args ...any) *protocol.Element   { return New("option", args...) }
