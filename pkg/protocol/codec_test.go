package protocol

import (
	"errors"
	"reflect"
	"strings"
	"testing"
)

func TestJSONCodecRoundTrip(t *testing.T) {
	tests := []struct {
		name string
		msg  Message
	}{
		{
			name: "hello",
			msg:  NewHello("cl-7f3a", ThemeDark, "/dashboard"),
		},
		{
			name: "hello_with_theme_mode",
			msg: &Hello{
				Type:        KindHello,
				ClientID:    "cl-9912",
				SystemTheme: ThemeLight,
				ThemeMode:   ThemeModeSystem,
				Path:        "/",
			},
		},
		{
			name: "helloResponse",
			msg:  NewHelloResponse("sess-01", "0.4.2"),
		},
		{
			name: "render",
			msg: NewRender(NewElement("column", map[string]any{"gap": float64(8)},
				NewElement("text", map[string]any{TextProp: "Hello"}),
				NewElement("button", map[string]any{TextProp: "Go"}),
			)),
		},
		{
			name: "error",
			msg:  NewErrorMessage("handler raised ValueError"),
		},
		{
			name: "event",
			msg:  NewEvent("cb-12", []any{float64(1), "a", true}),
		},
		{
			name: "event_no_args",
			msg:  NewEvent("cb-3", nil),
		},
		{
			name: "urlChanged",
			msg:  NewURLChanged("/users/42"),
		},
	}

	codec := JSONCodec{}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			data, err := codec.Encode(tc.msg)
			if err != nil {
				t.Fatalf("Encode() error = %v", err)
			}
			decoded, err := codec.Decode(data)
			if err != nil {
				t.Fatalf("Decode() error = %v", err)
			}
			if decoded.MessageKind() != tc.msg.MessageKind() {
				t.Errorf("MessageKind() = %v, want %v", decoded.MessageKind(), tc.msg.MessageKind())
			}
			if !reflect.DeepEqual(decoded, tc.msg) {
				t.Errorf("Decode() = %+v, want %+v", decoded, tc.msg)
			}
		})
	}
}

func TestJSONCodecWireSamples(t *testing.T) {
	// Wire forms produced by other client implementations must decode
	// unchanged; these literals pin the field names and kind tags.
	tests := []struct {
		name string
		wire string
		want Message
	}{
		{
			name: "hello",
			wire: `{"type":"hello","clientId":"cl-1","systemTheme":"dark","path":"/home"}`,
			want: NewHello("cl-1", ThemeDark, "/home"),
		},
		{
			name: "helloResponse",
			wire: `{"type":"helloResponse","sessionId":"s-9","serverVersion":"1.2.0"}`,
			want: NewHelloResponse("s-9", "1.2.0"),
		},
		{
			name: "event",
			wire: `{"type":"event","callbackId":"cb-1","args":[1,"a"]}`,
			want: NewEvent("cb-1", []any{float64(1), "a"}),
		},
		{
			name: "urlChanged",
			wire: `{"type":"urlChanged","path":"/users"}`,
			want: NewURLChanged("/users"),
		},
		{
			name: "error",
			wire: `{"type":"error","message":"boom"}`,
			want: NewErrorMessage("boom"),
		},
	}

	codec := JSONCodec{}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			got, err := codec.Decode([]byte(tc.wire))
			if err != nil {
				t.Fatalf("Decode() error = %v", err)
			}
			if !reflect.DeepEqual(got, tc.want) {
				t.Errorf("Decode() = %+v, want %+v", got, tc.want)
			}
		})
	}
}

func TestJSONCodecRenderMarkers(t *testing.T) {
	wire := `{"type":"render","tree":{"type":"row","props":{"onClick":{"__callback__":"cb-4"},"value":{"__mutable__":"mu-2","value":"hi"}}}}`

	msg, err := JSONCodec{}.Decode([]byte(wire))
	if err != nil {
		t.Fatalf("Decode() error = %v", err)
	}
	render, ok := msg.(*Render)
	if !ok {
		t.Fatalf("Decode() = %T, want *Render", msg)
	}

	onClick, _ := render.Tree.Prop("onClick")
	id, ok := AsCallbackRef(onClick)
	if !ok || id != "cb-4" {
		t.Errorf("AsCallbackRef(onClick) = %q, %v; want \"cb-4\", true", id, ok)
	}

	value, _ := render.Tree.Prop("value")
	mid, mval, ok := AsMutable(value)
	if !ok || mid != "mu-2" || mval != "hi" {
		t.Errorf("AsMutable(value) = %q, %v, %v; want \"mu-2\", \"hi\", true", mid, mval, ok)
	}
}

func TestJSONCodecUnknownKind(t *testing.T) {
	tests := []struct {
		name string
		wire string
		want Kind
	}{
		{name: "unrecognized", wire: `{"type":"patch","ops":[]}`, want: "patch"},
		{name: "missing_tag", wire: `{"callbackId":"cb-1"}`, want: ""},
	}

	codec := JSONCodec{}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			_, err := codec.Decode([]byte(tc.wire))
			var unknown *UnknownKindError
			if !errors.As(err, &unknown) {
				t.Fatalf("Decode() error = %v, want *UnknownKindError", err)
			}
			if unknown.Kind != tc.want {
				t.Errorf("Kind = %q, want %q", unknown.Kind, tc.want)
			}
		})
	}
}

func TestJSONCodecInvalidData(t *testing.T) {
	if _, err := (JSONCodec{}).Decode([]byte("not json at all")); err == nil {
		t.Fatal("Decode() expected error for malformed input")
	}
}

func TestEncodeFillsKindTag(t *testing.T) {
	// Messages built without constructors still encode with their tag,
	// and the caller's value is never mutated.
	msg := &Event{CallbackID: "cb-8", Args: []any{"x"}}

	data, err := (JSONCodec{}).Encode(msg)
	if err != nil {
		t.Fatalf("Encode() error = %v", err)
	}
	if msg.Type != "" {
		t.Errorf("Encode() mutated caller's message: Type = %q", msg.Type)
	}
	if !strings.Contains(string(data), `"type":"event"`) {
		t.Errorf("Encode() = %s, want kind tag present", data)
	}

	decoded, err := (JSONCodec{}).Decode(data)
	if err != nil {
		t.Fatalf("Decode() error = %v", err)
	}
	if decoded.MessageKind() != KindEvent {
		t.Errorf("MessageKind() = %v, want %v", decoded.MessageKind(), KindEvent)
	}
}

func TestKindValid(t *testing.T) {
	for _, k := range []Kind{KindHello, KindHelloResponse, KindRender, KindError, KindEvent, KindURLChanged} {
		if !k.Valid() {
			t.Errorf("Kind(%q).Valid() = false, want true", k)
		}
	}
	for _, k := range []Kind{"", "patch", "Hello"} {
		if k.Valid() {
			t.Errorf("Kind(%q).Valid() = true, want false", k)
		}
	}
}

func TestCodecByName(t *testing.T) {
	tests := []struct {
		name    string
		want    string
		wantErr bool
	}{
		{name: "", want: "json"},
		{name: "json", want: "json"},
		{name: "msgpack", want: "msgpack"},
		{name: "protobuf", wantErr: true},
	}

	for _, tc := range tests {
		codec, err := CodecByName(tc.name)
		if tc.wantErr {
			if err == nil {
				t.Errorf("CodecByName(%q) expected error", tc.name)
			}
			continue
		}
		if err != nil {
			t.Errorf("CodecByName(%q) error = %v", tc.name, err)
			continue
		}
		if codec.Name() != tc.want {
			t.Errorf("CodecByName(%q).Name() = %q, want %q", tc.name, codec.Name(), tc.want)
		}
	}
}
