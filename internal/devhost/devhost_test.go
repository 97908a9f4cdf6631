package devhost

import (
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"github.com/emmapowers/trellis-sub001/pkg/protocol"
)

func newTestHost(t *testing.T, opts ...Option) (*Host, *httptest.Server) {
	t.Helper()

	nop := slog.New(slog.NewTextHandler(io.Discard, nil))
	h := New(NewCounterApp(), append([]Option{WithLogger(nop)}, opts...)...)

	srv := httptest.NewServer(h.Router())
	t.Cleanup(func() {
		h.Close()
		srv.Close()
	})
	return h, srv
}

func wsEndpoint(srv *httptest.Server) string {
	return "ws" + strings.TrimPrefix(srv.URL, "http") + "/ws"
}

func dial(t *testing.T, srv *httptest.Server) *websocket.Conn {
	t.Helper()
	conn, _, err := websocket.DefaultDialer.Dial(wsEndpoint(srv), nil)
	if err != nil {
		t.Fatalf("Dial() error = %v", err)
	}
	t.Cleanup(func() { conn.Close() })
	return conn
}

func send(t *testing.T, conn *websocket.Conn, codec protocol.Codec, frameType int, msg protocol.Message) {
	t.Helper()
	data, err := codec.Encode(msg)
	if err != nil {
		t.Fatalf("Encode() error = %v", err)
	}
	if err := conn.WriteMessage(frameType, data); err != nil {
		t.Fatalf("WriteMessage() error = %v", err)
	}
}

func recv(t *testing.T, conn *websocket.Conn, codec protocol.Codec) protocol.Message {
	t.Helper()
	conn.SetReadDeadline(time.Now().Add(5 * time.Second))
	_, data, err := conn.ReadMessage()
	if err != nil {
		t.Fatalf("ReadMessage() error = %v", err)
	}
	msg, err := codec.Decode(data)
	if err != nil {
		t.Fatalf("Decode() error = %v", err)
	}
	return msg
}

func recvRender(t *testing.T, conn *websocket.Conn, codec protocol.Codec) *protocol.Element {
	t.Helper()
	msg := recv(t, conn, codec)
	render, ok := msg.(*protocol.Render)
	if !ok {
		t.Fatalf("expected render, got %q", msg.MessageKind())
	}
	return render.Tree
}

// handshake sends a hello and drains the helloResponse and initial render.
func handshake(t *testing.T, conn *websocket.Conn, codec protocol.Codec, frameType int, path string) (*protocol.HelloResponse, *protocol.Element) {
	t.Helper()
	send(t, conn, codec, frameType, protocol.NewHello("client-test", protocol.ThemeLight, path))

	msg := recv(t, conn, codec)
	hr, ok := msg.(*protocol.HelloResponse)
	if !ok {
		t.Fatalf("expected helloResponse, got %q", msg.MessageKind())
	}
	return hr, recvRender(t, conn, codec)
}

// findCallback locates the callback id on the element labeled with text.
func findCallback(t *testing.T, tree *protocol.Element, label string) string {
	t.Helper()
	var id string
	tree.Walk(func(e *protocol.Element) bool {
		if text, _ := e.Prop(protocol.TextProp); text != label {
			return true
		}
		if v, ok := e.Prop("onClick"); ok {
			if ref, ok := protocol.AsCallbackRef(v); ok {
				id = ref
				return false
			}
		}
		return true
	})
	if id == "" {
		t.Fatalf("no %q callback in tree", label)
	}
	return id
}

// treeText gathers every text prop in the tree.
func treeText(tree *protocol.Element) string {
	var parts []string
	tree.Walk(func(e *protocol.Element) bool {
		if v, ok := e.Prop(protocol.TextProp); ok {
			if s, ok := v.(string); ok {
				parts = append(parts, s)
			}
		}
		return true
	})
	return strings.Join(parts, "\n")
}

func waitFor(t *testing.T, what string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatalf("timed out waiting for %s", what)
}

func TestHealthz(t *testing.T) {
	_, srv := newTestHost(t)

	resp, err := http.Get(srv.URL + "/healthz")
	if err != nil {
		t.Fatalf("Get() error = %v", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		t.Errorf("status = %d, want %d", resp.StatusCode, http.StatusOK)
	}
	body, _ := io.ReadAll(resp.Body)
	if string(body) != "OK" {
		t.Errorf("body = %q, want %q", body, "OK")
	}
}

func TestIndexPage(t *testing.T) {
	_, srv := newTestHost(t, WithServerVersion("9.9.9"))

	resp, err := http.Get(srv.URL + "/")
	if err != nil {
		t.Fatalf("Get() error = %v", err)
	}
	defer resp.Body.Close()

	body, _ := io.ReadAll(resp.Body)
	if !strings.Contains(string(body), "Trellis demo host 9.9.9") {
		t.Errorf("index page missing banner: %q", body)
	}
	if !strings.Contains(string(body), "/ws") {
		t.Errorf("index page missing endpoint hint: %q", body)
	}
}

func TestHandshakeAndCounter(t *testing.T) {
	_, srv := newTestHost(t)
	conn := dial(t, srv)
	codec := protocol.JSONCodec{}

	hr, tree := handshake(t, conn, codec, websocket.TextMessage, "/")
	if hr.SessionID == "" {
		t.Error("handshake returned empty session id")
	}
	if hr.ServerVersion != DefaultServerVersion {
		t.Errorf("ServerVersion = %q, want %q", hr.ServerVersion, DefaultServerVersion)
	}
	if !strings.Contains(treeText(tree), "Count: 0") {
		t.Fatalf("initial render missing count:\n%s", treeText(tree))
	}

	inc := findCallback(t, tree, "Increment")
	send(t, conn, codec, websocket.TextMessage, protocol.NewEvent(inc, nil))
	tree = recvRender(t, conn, codec)
	if !strings.Contains(treeText(tree), "Count: 1") {
		t.Errorf("after increment:\n%s", treeText(tree))
	}

	send(t, conn, codec, websocket.TextMessage, protocol.NewEvent(inc, nil))
	tree = recvRender(t, conn, codec)
	if !strings.Contains(treeText(tree), "Count: 2") {
		t.Errorf("after second increment:\n%s", treeText(tree))
	}

	reset := findCallback(t, tree, "Reset")
	send(t, conn, codec, websocket.TextMessage, protocol.NewEvent(reset, nil))
	tree = recvRender(t, conn, codec)
	if !strings.Contains(treeText(tree), "Count: 0") {
		t.Errorf("after reset:\n%s", treeText(tree))
	}
}

func TestNoteBinding(t *testing.T) {
	_, srv := newTestHost(t)
	conn := dial(t, srv)
	codec := protocol.JSONCodec{}

	_, tree := handshake(t, conn, codec, websocket.TextMessage, "/")

	// The input carries a mutable binding; writing through it is an event
	// with the binding id and the new value.
	var bindingID string
	tree.Walk(func(e *protocol.Element) bool {
		if v, ok := e.Prop("value"); ok {
			if id, _, ok := protocol.AsMutable(v); ok {
				bindingID = id
				return false
			}
		}
		return true
	})
	if bindingID == "" {
		t.Fatal("no mutable binding in home tree")
	}

	send(t, conn, codec, websocket.TextMessage, protocol.NewEvent(bindingID, []any{"hello there"}))
	tree = recvRender(t, conn, codec)
	if !strings.Contains(treeText(tree), "Note: hello there") {
		t.Errorf("after binding write:\n%s", treeText(tree))
	}
}

func TestNavigation(t *testing.T) {
	_, srv := newTestHost(t)
	conn := dial(t, srv)
	codec := protocol.JSONCodec{}

	_, _ = handshake(t, conn, codec, websocket.TextMessage, "/")

	// Client-initiated navigation: the host re-renders for the new path
	// without echoing a navigation target back.
	send(t, conn, codec, websocket.TextMessage, protocol.NewURLChanged("/about"))
	tree := recvRender(t, conn, codec)
	if !strings.Contains(treeText(tree), "Trellis demo host") {
		t.Fatalf("about page not rendered:\n%s", treeText(tree))
	}
	if _, ok := tree.Prop(protocol.NavigateProp); ok {
		t.Error("render for client navigation should not carry a navigation target")
	}

	// Server-initiated navigation: the Back button's render moves the
	// client home.
	back := findCallback(t, tree, "Back")
	send(t, conn, codec, websocket.TextMessage, protocol.NewEvent(back, nil))
	tree = recvRender(t, conn, codec)
	if target, _ := tree.Prop(protocol.NavigateProp); target != "/" {
		t.Errorf("navigation target = %v, want %q", target, "/")
	}
	if !strings.Contains(treeText(tree), "Count:") {
		t.Errorf("home page not rendered:\n%s", treeText(tree))
	}
}

func TestMountAtPath(t *testing.T) {
	_, srv := newTestHost(t, WithServerVersion("1.2.3"))
	conn := dial(t, srv)
	codec := protocol.JSONCodec{}

	_, tree := handshake(t, conn, codec, websocket.TextMessage, "/about")
	text := treeText(tree)
	if !strings.Contains(text, "server version 1.2.3") {
		t.Errorf("handshake path ignored, got:\n%s", text)
	}
}

func TestEventBeforeHandshakeIgnored(t *testing.T) {
	_, srv := newTestHost(t)
	conn := dial(t, srv)
	codec := protocol.JSONCodec{}

	send(t, conn, codec, websocket.TextMessage, protocol.NewEvent("inc", nil))

	// The premature event is dropped, so the next reply is the handshake's.
	send(t, conn, codec, websocket.TextMessage, protocol.NewHello("client-test", protocol.ThemeLight, "/"))
	msg := recv(t, conn, codec)
	if _, ok := msg.(*protocol.HelloResponse); !ok {
		t.Fatalf("expected helloResponse, got %q", msg.MessageKind())
	}
}

func TestDuplicateHelloIgnored(t *testing.T) {
	_, srv := newTestHost(t)
	conn := dial(t, srv)
	codec := protocol.JSONCodec{}

	_, tree := handshake(t, conn, codec, websocket.TextMessage, "/")

	send(t, conn, codec, websocket.TextMessage, protocol.NewHello("client-test", protocol.ThemeLight, "/"))

	inc := findCallback(t, tree, "Increment")
	send(t, conn, codec, websocket.TextMessage, protocol.NewEvent(inc, nil))

	msg := recv(t, conn, codec)
	if _, ok := msg.(*protocol.Render); !ok {
		t.Fatalf("expected render after duplicate hello, got %q", msg.MessageKind())
	}
}

func TestMalformedFrame(t *testing.T) {
	_, srv := newTestHost(t)
	conn := dial(t, srv)
	codec := protocol.JSONCodec{}

	if err := conn.WriteMessage(websocket.TextMessage, []byte("not a message")); err != nil {
		t.Fatalf("WriteMessage() error = %v", err)
	}

	msg := recv(t, conn, codec)
	em, ok := msg.(*protocol.ErrorMessage)
	if !ok {
		t.Fatalf("expected error message, got %q", msg.MessageKind())
	}
	if em.Message != "invalid message format" {
		t.Errorf("Message = %q", em.Message)
	}

	// The session survives a malformed frame.
	hr, _ := handshake(t, conn, codec, websocket.TextMessage, "/")
	if hr.SessionID == "" {
		t.Error("handshake failed after malformed frame")
	}
}

func TestMsgpackSession(t *testing.T) {
	_, srv := newTestHost(t)
	conn := dial(t, srv)
	codec := protocol.MsgpackCodec{}

	send(t, conn, codec, websocket.BinaryMessage, protocol.NewHello("client-test", protocol.ThemeDark, "/"))

	// Replies mirror the client's framing.
	conn.SetReadDeadline(time.Now().Add(5 * time.Second))
	frameType, data, err := conn.ReadMessage()
	if err != nil {
		t.Fatalf("ReadMessage() error = %v", err)
	}
	if frameType != websocket.BinaryMessage {
		t.Errorf("reply frame type = %d, want %d", frameType, websocket.BinaryMessage)
	}
	msg, err := codec.Decode(data)
	if err != nil {
		t.Fatalf("Decode() error = %v", err)
	}
	if _, ok := msg.(*protocol.HelloResponse); !ok {
		t.Fatalf("expected helloResponse, got %q", msg.MessageKind())
	}

	tree := recvRender(t, conn, codec)
	if !strings.Contains(treeText(tree), "Count: 0") {
		t.Fatalf("initial render missing count:\n%s", treeText(tree))
	}

	inc := findCallback(t, tree, "Increment")
	send(t, conn, codec, websocket.BinaryMessage, protocol.NewEvent(inc, nil))
	tree = recvRender(t, conn, codec)
	if !strings.Contains(treeText(tree), "Count: 1") {
		t.Errorf("after increment:\n%s", treeText(tree))
	}
}

func TestHostClose(t *testing.T) {
	h, srv := newTestHost(t)
	conn := dial(t, srv)
	codec := protocol.JSONCodec{}

	_, _ = handshake(t, conn, codec, websocket.TextMessage, "/")
	waitFor(t, "session registration", func() bool { return h.SessionCount() == 1 })

	h.Close()
	waitFor(t, "session teardown", func() bool { return h.SessionCount() == 0 })

	// The severed client sees the connection end.
	conn.SetReadDeadline(time.Now().Add(5 * time.Second))
	for {
		if _, _, err := conn.ReadMessage(); err != nil {
			break
		}
	}

	// New sessions are refused.
	_, resp, err := websocket.DefaultDialer.Dial(wsEndpoint(srv), nil)
	if err == nil {
		t.Fatal("Dial() succeeded on closed host")
	}
	if resp == nil || resp.StatusCode != http.StatusServiceUnavailable {
		t.Errorf("dial on closed host: response = %+v", resp)
	}
}

func TestCounterApp(t *testing.T) {
	app := NewCounterApp()
	s := &Session{id: "s1", host: &Host{version: "1.2.3"}, path: "/"}

	tree := app.Mount(s)
	if !strings.Contains(treeText(tree), "Count: 0") {
		t.Fatalf("Mount():\n%s", treeText(tree))
	}

	tree = app.HandleEvent(s, protocol.NewEvent("inc", nil))
	if !strings.Contains(treeText(tree), "Count: 1") {
		t.Errorf("inc:\n%s", treeText(tree))
	}

	tree = app.HandleEvent(s, protocol.NewEvent("note", []any{"hi"}))
	if !strings.Contains(treeText(tree), "Note: hi") {
		t.Errorf("note:\n%s", treeText(tree))
	}

	// A non-string binding value is ignored.
	tree = app.HandleEvent(s, protocol.NewEvent("note", []any{42}))
	if !strings.Contains(treeText(tree), "Note: hi") {
		t.Errorf("note after bad value:\n%s", treeText(tree))
	}

	tree = app.HandleEvent(s, protocol.NewEvent("nav-about", nil))
	if target, _ := tree.Prop(protocol.NavigateProp); target != "/about" {
		t.Errorf("nav-about target = %v", target)
	}
	if !strings.Contains(treeText(tree), "server version 1.2.3") {
		t.Errorf("about page:\n%s", treeText(tree))
	}

	if tree := app.HandleEvent(s, protocol.NewEvent("bogus", nil)); tree != nil {
		t.Errorf("unknown callback rendered:\n%s", treeText(tree))
	}

	// State survives navigation but not unmount.
	tree = app.HandleNavigate(s, "/")
	if !strings.Contains(treeText(tree), "Count: 1") {
		t.Errorf("state lost across navigation:\n%s", treeText(tree))
	}
	if _, ok := tree.Prop(protocol.NavigateProp); ok {
		t.Error("HandleNavigate should not set a navigation target")
	}

	app.Unmount(s)
	tree = app.Mount(s)
	if !strings.Contains(treeText(tree), "Count: 0") {
		t.Errorf("state survived unmount:\n%s", treeText(tree))
	}
}

func TestEffectiveTheme(t *testing.T) {
	tests := []struct {
		name   string
		mode   protocol.ThemeMode
		system protocol.Theme
		want   protocol.Theme
	}{
		{"system follows light", protocol.ThemeModeSystem, protocol.ThemeLight, protocol.ThemeLight},
		{"system follows dark", protocol.ThemeModeSystem, protocol.ThemeDark, protocol.ThemeDark},
		{"forced light", protocol.ThemeModeLight, protocol.ThemeDark, protocol.ThemeLight},
		{"forced dark", protocol.ThemeModeDark, protocol.ThemeLight, protocol.ThemeDark},
		{"unset follows system", "", protocol.ThemeDark, protocol.ThemeDark},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			hello := protocol.NewHello("c", tt.system, "/")
			hello.ThemeMode = tt.mode
			if got := effectiveTheme(hello); got != tt.want {
				t.Errorf("effectiveTheme() = %q, want %q", got, tt.want)
			}
		})
	}
}
