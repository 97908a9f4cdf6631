package devhost

import (
	"sync"

	"github.com/emmapowers/trellis-sub001/pkg/el"
	"github.com/emmapowers/trellis-sub001/pkg/protocol"
)

// Counter callback identifiers.
const (
	cbIncrement = "inc"
	cbReset     = "reset"
	cbNote      = "note"
	cbGoAbout   = "nav-about"
	cbGoHome    = "nav-home"
)

// counterState is one session's demo state.
type counterState struct {
	count int
	note  string
}

// CounterApp is the demo application: a per-session counter with a bound
// note field and an about page. It exercises events, bindings and
// navigation in both directions.
type CounterApp struct {
	mu     sync.Mutex
	states map[string]*counterState
}

// NewCounterApp creates the demo application.
func NewCounterApp() *CounterApp {
	return &CounterApp{states: make(map[string]*counterState)}
}

func (a *CounterApp) state(id string) *counterState {
	a.mu.Lock()
	defer a.mu.Unlock()
	st, ok := a.states[id]
	if !ok {
		st = &counterState{}
		a.states[id] = st
	}
	return st
}

// Mount renders the page for the client's handshake path.
func (a *CounterApp) Mount(s *Session) *protocol.Element {
	return a.page(s, s.Path())
}

// HandleEvent updates session state and re-renders. Navigation events
// return a tree annotated with the target path so the client moves too.
func (a *CounterApp) HandleEvent(s *Session, ev *protocol.Event) *protocol.Element {
	st := a.state(s.ID())

	switch ev.CallbackID {
	case cbIncrement:
		a.mu.Lock()
		st.count++
		a.mu.Unlock()
		return a.homePage(st)

	case cbReset:
		a.mu.Lock()
		st.count = 0
		a.mu.Unlock()
		return a.homePage(st)

	case cbNote:
		if len(ev.Args) > 0 {
			if v, ok := ev.Args[0].(string); ok {
				a.mu.Lock()
				st.note = v
				a.mu.Unlock()
			}
		}
		return a.homePage(st)

	case cbGoAbout:
		return navigateTo(a.aboutPage(s), "/about")

	case cbGoHome:
		return navigateTo(a.homePage(st), "/")

	default:
		return nil
	}
}

// HandleNavigate renders the page the client moved to. No navigation
// annotation here: the client already moved on its own.
func (a *CounterApp) HandleNavigate(s *Session, path string) *protocol.Element {
	return a.page(s, path)
}

// Unmount drops the session's state.
func (a *CounterApp) Unmount(s *Session) {
	a.mu.Lock()
	delete(a.states, s.ID())
	a.mu.Unlock()
}

func (a *CounterApp) page(s *Session, path string) *protocol.Element {
	if path == "/about" {
		return a.aboutPage(s)
	}
	return a.homePage(a.state(s.ID()))
}

func (a *CounterApp) homePage(st *counterState) *protocol.Element {
	a.mu.Lock()
	count, note := st.count, st.note
	a.mu.Unlock()

	return el.Column(el.Key("home"),
		el.Textf("Count: %d", count),
		el.Row(
			el.Button(el.Label("Increment"), el.OnClick(cbIncrement)),
			el.Button(el.Label("Reset"), el.OnClick(cbReset)),
		),
		el.Input(el.Placeholder("leave a note"), el.Bind(cbNote, note)),
		el.Text("Note: "+note),
		el.Link(el.Label("About"), el.OnClick(cbGoAbout)),
	)
}

func (a *CounterApp) aboutPage(s *Session) *protocol.Element {
	return el.Column(el.Key("about"),
		el.Text("Trellis demo host"),
		el.Text("server version "+s.ServerVersion()),
		el.Button(el.Label("Back"), el.OnClick(cbGoHome)),
	)
}

// navigateTo annotates tree so the client's router moves with the render.
func navigateTo(tree *protocol.Element, path string) *protocol.Element {
	if tree.Props == nil {
		tree.Props = map[string]any{}
	}
	tree.Props[protocol.NavigateProp] = path
	return tree
}
