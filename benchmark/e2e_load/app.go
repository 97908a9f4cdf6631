package main

import (
	"fmt"
	"sync"

	"github.com/emmapowers/trellis-sub001/internal/devhost"
	"github.com/emmapowers/trellis-sub001/pkg/el"
	"github.com/emmapowers/trellis-sub001/pkg/protocol"
)

// benchEcho is the only callback the bench app exposes: echo the token
// payload back in the next render.
const benchEcho = "bench:echo"

type benchState struct {
	lastToken string
	events    uint64
}

// benchApp renders a list-heavy page whose content depends on the last
// echoed token, so every event forces a full fresh tree.
type benchApp struct {
	listSize int

	mu       sync.Mutex
	sessions map[string]*benchState
}

func newBenchApp(listSize int) *benchApp {
	return &benchApp{
		listSize: listSize,
		sessions: make(map[string]*benchState),
	}
}

func (a *benchApp) state(s *devhost.Session) *benchState {
	a.mu.Lock()
	defer a.mu.Unlock()
	st, ok := a.sessions[s.ID()]
	if !ok {
		st = &benchState{}
		a.sessions[s.ID()] = st
	}
	return st
}

func (a *benchApp) Mount(s *devhost.Session) *protocol.Element {
	return a.page(a.state(s))
}

func (a *benchApp) HandleEvent(s *devhost.Session, ev *protocol.Event) *protocol.Element {
	st := a.state(s)
	if ev.CallbackID == benchEcho {
		a.mu.Lock()
		if len(ev.Args) > 0 {
			if token, ok := ev.Args[0].(string); ok {
				st.lastToken = token
			}
		}
		st.events++
		a.mu.Unlock()
	}
	return a.page(st)
}

func (a *benchApp) HandleNavigate(s *devhost.Session, path string) *protocol.Element {
	return a.page(a.state(s))
}

func (a *benchApp) Unmount(s *devhost.Session) {
	a.mu.Lock()
	delete(a.sessions, s.ID())
	a.mu.Unlock()
}

func (a *benchApp) page(st *benchState) *protocol.Element {
	a.mu.Lock()
	token := st.lastToken
	events := st.events
	a.mu.Unlock()

	rows := make([]*protocol.Element, 0, a.listSize)
	for i := 0; i < a.listSize; i++ {
		rows = append(rows,
			el.Item(el.Key(fmt.Sprintf("row-%d", i)), el.Textf("row %d · %s", i, token)))
	}

	return el.Column(el.Key("bench"),
		el.Textf("events: %d", events),
		el.Text("last: "+token),
		el.Button(el.Label("Echo"), el.OnClick(benchEcho)),
		el.List(el.Key("rows"), rows),
	)
}
