package protocol

import (
	"encoding/json"

	"github.com/vmihailenco/msgpack/v5"
)

// Marker keys recognized inside element props.
const (
	callbackKey = "__callback__"
	mutableKey  = "__mutable__"
	mutableVal  = "value"
)

// TextProp is the reserved prop carrying an element's text content.
// The renderer turns it into leading text; widgets must not repurpose it.
const TextProp = "text"

// NavigateProp is the reserved root prop carrying a server-driven path
// change alongside a render. The dispatcher forwards it to the router with
// echo suppression; it is never rendered.
const NavigateProp = "trellis:navigate"

// Element is one node of a serialized UI description. Type names either an
// intrinsic (lowercase) element or a registered widget. Props hold JSON-ish
// values: primitives, nested elements, callback references and mutable
// bindings. Name is a debug label and carries no behavior.
type Element struct {
	Type     string         `json:"type"`
	Key      string         `json:"key,omitempty"`
	Name     string         `json:"name,omitempty"`
	Props    map[string]any `json:"props,omitempty"`
	Children []*Element     `json:"children,omitempty"`
}

// NewElement creates an element with the given type, props and children.
func NewElement(typ string, props map[string]any, children ...*Element) *Element {
	return &Element{Type: typ, Props: props, Children: children}
}

// Prop returns the named prop value.
func (e *Element) Prop(name string) (any, bool) {
	if e.Props == nil {
		return nil, false
	}
	v, ok := e.Props[name]
	return v, ok
}

// Walk visits e and its descendants depth-first. If fn returns false the
// walk stops.
func (e *Element) Walk(fn func(*Element) bool) bool {
	if e == nil {
		return true
	}
	if !fn(e) {
		return false
	}
	for _, c := range e.Children {
		if !c.Walk(fn) {
			return false
		}
	}
	return true
}

// CallbackRef is an opaque handle to a function living in the application
// process. The client never executes it locally; invoking the resolved
// callback sends an event message carrying the id.
type CallbackRef struct {
	ID string
}

// MarshalJSON emits the {"__callback__": id} marker shape.
func (c CallbackRef) MarshalJSON() ([]byte, error) {
	return json.Marshal(map[string]string{callbackKey: c.ID})
}

// UnmarshalJSON reads the {"__callback__": id} marker shape.
func (c *CallbackRef) UnmarshalJSON(data []byte) error {
	var m map[string]string
	if err := json.Unmarshal(data, &m); err != nil {
		return err
	}
	c.ID = m[callbackKey]
	return nil
}

// EncodeMsgpack emits the same marker shape as MarshalJSON.
func (c CallbackRef) EncodeMsgpack(enc *msgpack.Encoder) error {
	if err := enc.EncodeMapLen(1); err != nil {
		return err
	}
	if err := enc.EncodeString(callbackKey); err != nil {
		return err
	}
	return enc.EncodeString(c.ID)
}

// DecodeMsgpack reads the marker shape emitted by EncodeMsgpack.
func (c *CallbackRef) DecodeMsgpack(dec *msgpack.Decoder) error {
	n, err := dec.DecodeMapLen()
	if err != nil {
		return err
	}
	for i := 0; i < n; i++ {
		key, err := dec.DecodeString()
		if err != nil {
			return err
		}
		val, err := dec.DecodeString()
		if err != nil {
			return err
		}
		if key == callbackKey {
			c.ID = val
		}
	}
	return nil
}

// Mutable is a two-way binding marker: the current value plus an opaque
// setter id. Writing through the resolved binding sends an event carrying
// the id and the new value.
type Mutable struct {
	ID    string
	Value any
}

// MarshalJSON emits the {"__mutable__": id, "value": v} marker shape.
func (m Mutable) MarshalJSON() ([]byte, error) {
	return json.Marshal(map[string]any{mutableKey: m.ID, mutableVal: m.Value})
}

// UnmarshalJSON reads the {"__mutable__": id, "value": v} marker shape.
func (m *Mutable) UnmarshalJSON(data []byte) error {
	var raw map[string]any
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	if id, ok := raw[mutableKey].(string); ok {
		m.ID = id
	}
	m.Value = raw[mutableVal]
	return nil
}

// EncodeMsgpack emits the same marker shape as MarshalJSON.
func (m Mutable) EncodeMsgpack(enc *msgpack.Encoder) error {
	if err := enc.EncodeMapLen(2); err != nil {
		return err
	}
	if err := enc.EncodeString(mutableKey); err != nil {
		return err
	}
	if err := enc.EncodeString(m.ID); err != nil {
		return err
	}
	if err := enc.EncodeString(mutableVal); err != nil {
		return err
	}
	return enc.Encode(m.Value)
}

// DecodeMsgpack reads the marker shape emitted by EncodeMsgpack.
func (m *Mutable) DecodeMsgpack(dec *msgpack.Decoder) error {
	n, err := dec.DecodeMapLen()
	if err != nil {
		return err
	}
	for i := 0; i < n; i++ {
		key, err := dec.DecodeString()
		if err != nil {
			return err
		}
		switch key {
		case mutableKey:
			id, err := dec.DecodeString()
			if err != nil {
				return err
			}
			m.ID = id
		default:
			val, err := dec.DecodeInterface()
			if err != nil {
				return err
			}
			if key == mutableVal {
				m.Value = val
			}
		}
	}
	return nil
}

// AsCallbackRef recognizes a callback reference in a prop value, whether it
// arrived as a typed CallbackRef or as the generic map shape a codec
// produces.
func AsCallbackRef(v any) (string, bool) {
	switch ref := v.(type) {
	case CallbackRef:
		return ref.ID, true
	case *CallbackRef:
		return ref.ID, true
	case map[string]any:
		if id, ok := ref[callbackKey].(string); ok {
			return id, true
		}
	}
	return "", false
}

// AsMutable recognizes a mutable binding in a prop value.
func AsMutable(v any) (id string, value any, ok bool) {
	switch m := v.(type) {
	case Mutable:
		return m.ID, m.Value, true
	case *Mutable:
		return m.ID, m.Value, true
	case map[string]any:
		if id, ok := m[mutableKey].(string); ok {
			return id, m[mutableVal], true
		}
	}
	return "", nil, false
}

// elementKeys is the complete set of keys an element object may carry.
// A generic map qualifies as an element only when every key belongs to
// this set, so plain data maps with a "type" field are not misread.
var elementKeys = map[string]bool{
	"type":     true,
	"key":      true,
	"name":     true,
	"props":    true,
	"children": true,
}

// AsElement recognizes a nested element in a prop value, converting the
// generic map shape a codec produces back into *Element.
func AsElement(v any) (*Element, bool) {
	switch el := v.(type) {
	case *Element:
		return el, true
	case Element:
		return &el, true
	case map[string]any:
		return elementFromMap(el)
	}
	return nil, false
}

func elementFromMap(m map[string]any) (*Element, bool) {
	typ, ok := m["type"].(string)
	if !ok || typ == "" {
		return nil, false
	}
	for k := range m {
		if !elementKeys[k] {
			return nil, false
		}
	}
	e := &Element{Type: typ}
	if key, ok := m["key"].(string); ok {
		e.Key = key
	}
	if name, ok := m["name"].(string); ok {
		e.Name = name
	}
	if props, ok := m["props"].(map[string]any); ok {
		e.Props = props
	}
	if kids, ok := m["children"].([]any); ok {
		for _, kid := range kids {
			child, ok := AsElement(kid)
			if !ok {
				return nil, false
			}
			e.Children = append(e.Children, child)
		}
	}
	return e, true
}
