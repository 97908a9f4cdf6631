package protocol

import (
	"encoding/json"
	"fmt"
	"strconv"
)

// Codec translates session messages to and from their wire form. A session
// uses exactly one codec for its whole life.
type Codec interface {
	// Name identifies the codec ("json", "msgpack").
	Name() string
	// Encode serializes a message, always emitting the kind tag.
	Encode(Message) ([]byte, error)
	// Decode deserializes a message. Unknown kinds return
	// *UnknownKindError so callers can surface them as protocol errors
	// instead of dropping them.
	Decode([]byte) (Message, error)
}

// UnknownKindError reports a message whose kind tag names no known kind.
type UnknownKindError struct {
	Kind Kind
}

func (e *UnknownKindError) Error() string {
	return "protocol: unknown message kind " + strconv.Quote(string(e.Kind))
}

// kindProbe reads just the kind tag of an incoming message.
type kindProbe struct {
	Type Kind `json:"type"`
}

// tagged returns msg with its kind tag filled in, copying when the caller
// built the struct without a constructor. The original is never mutated.
func tagged(msg Message) Message {
	switch m := msg.(type) {
	case *Hello:
		if m.Type == "" {
			c := *m
			c.Type = KindHello
			return &c
		}
	case *HelloResponse:
		if m.Type == "" {
			c := *m
			c.Type = KindHelloResponse
			return &c
		}
	case *Render:
		if m.Type == "" {
			c := *m
			c.Type = KindRender
			return &c
		}
	case *ErrorMessage:
		if m.Type == "" {
			c := *m
			c.Type = KindError
			return &c
		}
	case *Event:
		if m.Type == "" {
			c := *m
			c.Type = KindEvent
			return &c
		}
	case *URLChanged:
		if m.Type == "" {
			c := *m
			c.Type = KindURLChanged
			return &c
		}
	}
	return msg
}

// newMessage allocates the concrete type for a kind.
func newMessage(kind Kind) Message {
	switch kind {
	case KindHello:
		return &Hello{}
	case KindHelloResponse:
		return &HelloResponse{}
	case KindRender:
		return &Render{}
	case KindError:
		return &ErrorMessage{}
	case KindEvent:
		return &Event{}
	case KindURLChanged:
		return &URLChanged{}
	}
	return nil
}

// JSONCodec is the default codec: one UTF-8 JSON object per message. It is
// the format browser clients speak, so it is also the interoperability
// baseline.
type JSONCodec struct{}

// Name returns "json".
func (JSONCodec) Name() string { return "json" }

// Encode serializes msg as a JSON object.
func (JSONCodec) Encode(msg Message) ([]byte, error) {
	data, err := json.Marshal(tagged(msg))
	if err != nil {
		return nil, fmt.Errorf("protocol: encode %s: %w", msg.MessageKind(), err)
	}
	return data, nil
}

// Decode deserializes a JSON object into its concrete message type.
func (JSONCodec) Decode(data []byte) (Message, error) {
	var probe kindProbe
	if err := json.Unmarshal(data, &probe); err != nil {
		return nil, fmt.Errorf("protocol: decode message: %w", err)
	}
	msg := newMessage(probe.Type)
	if msg == nil {
		return nil, &UnknownKindError{Kind: probe.Type}
	}
	if err := json.Unmarshal(data, msg); err != nil {
		return nil, fmt.Errorf("protocol: decode %s: %w", probe.Type, err)
	}
	return msg, nil
}
