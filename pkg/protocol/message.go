package protocol

// Kind identifies a session message on the wire.
type Kind string

const (
	KindHello         Kind = "hello"
	KindHelloResponse Kind = "helloResponse"
	KindRender        Kind = "render"
	KindError         Kind = "error"
	KindEvent         Kind = "event"
	KindURLChanged    Kind = "urlChanged"
)

// Valid reports whether k is one of the six session kinds.
func (k Kind) Valid() bool {
	switch k {
	case KindHello, KindHelloResponse, KindRender, KindError, KindEvent, KindURLChanged:
		return true
	}
	return false
}

// Message is implemented by every session protocol message.
// Messages are immutable values: once handed to a transport they are
// never modified.
type Message interface {
	// MessageKind returns the wire kind independent of the tag field,
	// so an incompletely constructed value still identifies itself.
	MessageKind() Kind
}

// Theme is a resolved visual theme.
type Theme string

const (
	ThemeLight Theme = "light"
	ThemeDark  Theme = "dark"
)

// ThemeMode is the user's theme preference, which may defer to the system.
type ThemeMode string

const (
	ThemeModeSystem ThemeMode = "system"
	ThemeModeLight  ThemeMode = "light"
	ThemeModeDark   ThemeMode = "dark"
)

// Hello opens a session. It is the first message on every connection and
// is sent exactly once, immediately after the transport reports readiness.
type Hello struct {
	Type        Kind      `json:"type"`
	ClientID    string    `json:"clientId"`
	SystemTheme Theme     `json:"systemTheme"`
	ThemeMode   ThemeMode `json:"themeMode,omitempty"`
	Path        string    `json:"path"`
}

func (*Hello) MessageKind() Kind { return KindHello }

// NewHello creates a Hello with the kind tag set.
func NewHello(clientID string, systemTheme Theme, path string) *Hello {
	return &Hello{
		Type:        KindHello,
		ClientID:    clientID,
		SystemTheme: systemTheme,
		Path:        path,
	}
}

// HelloResponse completes the handshake. The session id it carries is
// immutable for the life of the session.
type HelloResponse struct {
	Type          Kind   `json:"type"`
	SessionID     string `json:"sessionId"`
	ServerVersion string `json:"serverVersion"`
}

func (*HelloResponse) MessageKind() Kind { return KindHelloResponse }

// NewHelloResponse creates a HelloResponse with the kind tag set.
func NewHelloResponse(sessionID, serverVersion string) *HelloResponse {
	return &HelloResponse{
		Type:          KindHelloResponse,
		SessionID:     sessionID,
		ServerVersion: serverVersion,
	}
}

// Render carries a complete UI description. Each render replaces the
// previous tree wholesale; there is no incremental patching.
type Render struct {
	Type Kind     `json:"type"`
	Tree *Element `json:"tree"`
}

func (*Render) MessageKind() Kind { return KindRender }

// NewRender creates a Render with the kind tag set.
func NewRender(tree *Element) *Render {
	return &Render{Type: KindRender, Tree: tree}
}

// ErrorMessage reports a session-fatal failure from the application
// process. No further render should be expected after it.
type ErrorMessage struct {
	Type    Kind   `json:"type"`
	Message string `json:"message"`
}

func (*ErrorMessage) MessageKind() Kind { return KindError }

// Error implements the error interface.
func (em *ErrorMessage) Error() string {
	return "session error: " + em.Message
}

// NewErrorMessage creates an ErrorMessage with the kind tag set.
func NewErrorMessage(message string) *ErrorMessage {
	return &ErrorMessage{Type: KindError, Message: message}
}

// Event reports a callback invocation. Args preserve the caller's order
// and must hold only JSON-serializable values. Delivery is fire-and-forget;
// the app responds, if at all, with a later render.
type Event struct {
	Type       Kind   `json:"type"`
	CallbackID string `json:"callbackId"`
	Args       []any  `json:"args"`
}

func (*Event) MessageKind() Kind { return KindEvent }

// NewEvent creates an Event with the kind tag set.
func NewEvent(callbackID string, args []any) *Event {
	return &Event{Type: KindEvent, CallbackID: callbackID, Args: args}
}

// URLChanged reports a client-side address change (user navigation or
// host back/forward). Like Event, it is fire-and-forget.
type URLChanged struct {
	Type Kind   `json:"type"`
	Path string `json:"path"`
}

func (*URLChanged) MessageKind() Kind { return KindURLChanged }

// NewURLChanged creates a URLChanged with the kind tag set.
func NewURLChanged(path string) *URLChanged {
	return &URLChanged{Type: KindURLChanged, Path: path}
}
