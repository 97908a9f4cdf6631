package render

import (
	"fmt"
	"io"
	"log/slog"
	"strconv"

	"github.com/emmapowers/trellis-sub001/pkg/protocol"
	"github.com/emmapowers/trellis-sub001/pkg/ui"
)

// EventSender receives the outbound side of resolved callbacks. The client
// session implements it; tests substitute a recorder.
type EventSender interface {
	SendEvent(callbackID string, args []any)
}

// defaultIntrinsics are the element types rendered directly as native
// nodes. Everything else resolves through the widget registry.
var defaultIntrinsics = []string{
	"box", "button", "checkbox", "column", "divider", "form", "image",
	"input", "item", "link", "list", "option", "progress", "row",
	"select", "spacer", "table", "text", "textarea",
}

// Option configures a Renderer.
type Option func(*Renderer)

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(r *Renderer) { r.logger = l }
}

// WithIntrinsics adds element types to the intrinsic set.
func WithIntrinsics(types ...string) Option {
	return func(r *Renderer) {
		for _, t := range types {
			r.intrinsics[t] = true
		}
	}
}

// Renderer turns protocol.Element trees into ui.Node trees.
type Renderer struct {
	registry   *ui.Registry
	sender     EventSender
	intrinsics map[string]bool
	logger     *slog.Logger
}

// New creates a renderer over a widget registry and an event sender.
func New(registry *ui.Registry, sender EventSender, opts ...Option) *Renderer {
	r := &Renderer{
		registry:   registry,
		sender:     sender,
		intrinsics: make(map[string]bool, len(defaultIntrinsics)),
		logger:     slog.New(slog.NewTextHandler(io.Discard, nil)),
	}
	for _, t := range defaultIntrinsics {
		r.intrinsics[t] = true
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Render materializes a full tree. It never fails: unknown types and widget
// errors render as visible placeholders.
func (r *Renderer) Render(tree *protocol.Element) *ui.Node {
	if tree == nil {
		return nil
	}
	return r.renderElement(tree, 0)
}

// renderElement renders one element. index is the element's position among
// its siblings, used as the identity fallback when no key was supplied.
func (r *Renderer) renderElement(el *protocol.Element, index int) *ui.Node {
	props := r.resolveProps(el.Props)
	// The reserved navigation prop is a routing signal, not UI.
	delete(props, protocol.NavigateProp)
	children := make([]*ui.Node, 0, len(el.Children))
	for i, child := range el.Children {
		if child == nil {
			continue
		}
		children = append(children, r.renderElement(child, i))
	}

	key := el.Key
	if key == "" {
		key = strconv.Itoa(index)
	}

	if r.intrinsics[el.Type] {
		return r.renderIntrinsic(el.Type, key, props, children)
	}

	if widget, ok := r.registry.Lookup(el.Type); ok {
		node, err := widget.Render(props, children)
		if err != nil {
			r.logger.Warn("widget render failed", "type", el.Type, "error", err)
			return r.placeholder(el.Type, key, props, children,
				fmt.Sprintf("widget %q failed: %v", el.Type, err))
		}
		if node == nil {
			return r.placeholder(el.Type, key, props, children,
				fmt.Sprintf("widget %q rendered nothing", el.Type))
		}
		if node.Key == "" {
			node.Key = key
		}
		return node
	}

	r.logger.Warn("unknown element type", "type", el.Type)
	return r.placeholder(el.Type, key, props, children,
		fmt.Sprintf("unknown element type %q", el.Type))
}

// renderIntrinsic builds a native node, lifting the reserved text prop into
// leading text content.
func (r *Renderer) renderIntrinsic(tag, key string, props ui.Props, children []*ui.Node) *ui.Node {
	if raw, ok := props[protocol.TextProp]; ok {
		delete(props, protocol.TextProp)
		text := &ui.Node{Kind: ui.KindText, Text: stringify(raw)}
		children = append([]*ui.Node{text}, children...)
	}
	return &ui.Node{
		Kind:     ui.KindElement,
		Tag:      tag,
		Key:      key,
		Props:    props,
		Children: children,
	}
}

// placeholder builds the visible stand-in for a node that could not render.
// The original children stay attached so content is not silently dropped.
func (r *Renderer) placeholder(tag, key string, props ui.Props, children []*ui.Node, text string) *ui.Node {
	return &ui.Node{
		Kind:     ui.KindPlaceholder,
		Tag:      tag,
		Key:      key,
		Text:     text,
		Props:    props,
		Children: children,
	}
}

// resolveProps replaces markers with live adapters. All other values pass
// through unchanged.
func (r *Renderer) resolveProps(props map[string]any) ui.Props {
	if len(props) == 0 {
		return ui.Props{}
	}
	resolved := make(ui.Props, len(props))
	for name, value := range props {
		resolved[name] = r.resolveValue(value)
	}
	return resolved
}

// resolveValue resolves one prop value: callback markers become Callback
// functions, mutable markers become bindings, nested elements render, and
// lists resolve item by item.
func (r *Renderer) resolveValue(value any) any {
	if id, ok := protocol.AsCallbackRef(value); ok {
		return r.callback(id)
	}
	if id, current, ok := protocol.AsMutable(value); ok {
		return ui.NewBinding(current, func(v any) {
			r.sender.SendEvent(id, []any{v})
		})
	}
	if el, ok := protocol.AsElement(value); ok {
		return r.renderElement(el, 0)
	}
	if list, ok := value.([]any); ok {
		out := make([]any, len(list))
		for i, item := range list {
			out[i] = r.resolveValue(item)
		}
		return out
	}
	return value
}

// callback adapts a callback id into the function widgets invoke. Each
// invocation sends exactly one event message.
func (r *Renderer) callback(id string) ui.Callback {
	return func(args ...any) {
		if args == nil {
			args = []any{}
		}
		r.sender.SendEvent(id, args)
	}
}

// stringify renders a text prop value. Strings pass through; anything else
// formats with fmt.
func stringify(v any) string {
	if s, ok := v.(string); ok {
		return s
	}
	return fmt.Sprint(v)
}
