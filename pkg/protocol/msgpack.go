package protocol

import (
	"bytes"
	"fmt"

	"github.com/vmihailenco/msgpack/v5"
)

// MsgpackCodec encodes messages as MessagePack maps with the same field
// names as JSONCodec, so the two formats stay interchangeable object for
// object. Sockets speaking it use binary frames.
type MsgpackCodec struct{}

// Name returns "msgpack".
func (MsgpackCodec) Name() string { return "msgpack" }

// Encode serializes msg as a MessagePack map.
func (MsgpackCodec) Encode(msg Message) ([]byte, error) {
	var buf bytes.Buffer
	enc := msgpack.NewEncoder(&buf)
	enc.SetCustomStructTag("json")
	if err := enc.Encode(tagged(msg)); err != nil {
		return nil, fmt.Errorf("protocol: encode %s: %w", msg.MessageKind(), err)
	}
	return buf.Bytes(), nil
}

// Decode deserializes a MessagePack map into its concrete message type.
func (MsgpackCodec) Decode(data []byte) (Message, error) {
	probeDec := msgpack.NewDecoder(bytes.NewReader(data))
	probeDec.SetCustomStructTag("json")
	var probe kindProbe
	if err := probeDec.Decode(&probe); err != nil {
		return nil, fmt.Errorf("protocol: decode message: %w", err)
	}
	msg := newMessage(probe.Type)
	if msg == nil {
		return nil, &UnknownKindError{Kind: probe.Type}
	}
	dec := msgpack.NewDecoder(bytes.NewReader(data))
	dec.SetCustomStructTag("json")
	if err := dec.Decode(msg); err != nil {
		return nil, fmt.Errorf("protocol: decode %s: %w", probe.Type, err)
	}
	return msg, nil
}

// CodecByName returns the codec registered under name, defaulting to JSON
// for an empty name.
func CodecByName(name string) (Codec, error) {
	switch name {
	case "", "json":
		return JSONCodec{}, nil
	case "msgpack":
		return MsgpackCodec{}, nil
	}
	return nil, fmt.Errorf("protocol: unknown codec %q", name)
}
