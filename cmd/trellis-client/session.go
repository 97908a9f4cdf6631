package main

import (
	"context"
	stderrors "errors"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"os"
	"os/signal"
	"sort"
	"strings"
	"sync"
	"syscall"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/emmapowers/trellis-sub001/internal/config"
	"github.com/emmapowers/trellis-sub001/internal/errors"
	"github.com/emmapowers/trellis-sub001/pkg/client"
	"github.com/emmapowers/trellis-sub001/pkg/middleware"
	"github.com/emmapowers/trellis-sub001/pkg/protocol"
	"github.com/emmapowers/trellis-sub001/pkg/router"
	"github.com/emmapowers/trellis-sub001/pkg/ui"
)

// loadConfig loads trellis.json from the working directory or its parents.
// When optional, running outside a project falls back to defaults.
func loadConfig(optional bool) (*config.Config, error) {
	cfg, err := config.LoadFromWorkingDir()
	if err == nil {
		return cfg, nil
	}
	var te *errors.TrellisError
	if optional && stderrors.As(err, &te) && te.Code == "T402" {
		warn("no %s found, using defaults", config.ConfigFileName)
		return config.New(), nil
	}
	return nil, err
}

// newLogger builds the CLI logger; verbose switches on debug output.
func newLogger(verbose bool) *slog.Logger {
	level := slog.LevelInfo
	if verbose {
		level = slog.LevelDebug
	}
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level}))
}

// signalContext returns a context canceled on SIGINT or SIGTERM.
func signalContext(parent context.Context) (context.Context, context.CancelFunc) {
	ctx, cancel := context.WithCancel(parent)

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		select {
		case <-sigCh:
			fmt.Println("\n  Shutting down...")
			cancel()
		case <-ctx.Done():
		}
		signal.Stop(sigCh)
	}()

	return ctx, cancel
}

// socketURL normalizes a configured server URL to a WebSocket one.
func socketURL(raw string) (string, error) {
	u, err := url.Parse(raw)
	if err != nil {
		return "", errors.New("T404").WithDetail(err.Error()).Wrap(err)
	}
	switch u.Scheme {
	case "ws", "wss":
	case "http":
		u.Scheme = "ws"
	case "https":
		u.Scheme = "wss"
	default:
		return "", errors.New("T404").
			WithDetail(fmt.Sprintf("unsupported scheme %q in %q", u.Scheme, raw)).
			WithSuggestion("Use a ws://, wss://, http:// or https:// URL")
	}
	return u.String(), nil
}

// sessionCodec maps a configured codec name onto a wire codec.
func sessionCodec(name string) (protocol.Codec, error) {
	switch name {
	case "", "json":
		return protocol.JSONCodec{}, nil
	case "msgpack":
		return protocol.MsgpackCodec{}, nil
	default:
		return nil, errors.New("T408").
			WithDetail(fmt.Sprintf("unknown codec %q", name)).
			WithSuggestion("Valid codecs: json, msgpack")
	}
}

// routingMode maps a configured routing mode name onto a router mode.
func routingMode(name string) (router.Mode, error) {
	switch name {
	case "", "hash":
		return router.ModeHashURL, nil
	case "standard":
		return router.ModeStandard, nil
	case "embedded":
		return router.ModeEmbedded, nil
	default:
		return 0, errors.New("T405").
			WithDetail(fmt.Sprintf("unknown routing mode %q", name)).
			WithSuggestion("Valid modes: hash, standard, embedded")
	}
}

// themeOptions maps a configured theme mode onto handshake options.
func themeOptions(mode string) ([]client.Option, error) {
	switch mode {
	case "", "system":
		return []client.Option{client.WithThemeMode(protocol.ThemeModeSystem)}, nil
	case "light":
		return []client.Option{
			client.WithThemeMode(protocol.ThemeModeLight),
			client.WithTheme(protocol.ThemeLight),
		}, nil
	case "dark":
		return []client.Option{
			client.WithThemeMode(protocol.ThemeModeDark),
			client.WithTheme(protocol.ThemeDark),
		}, nil
	default:
		return nil, errors.New("T406").
			WithDetail(fmt.Sprintf("unknown theme mode %q", mode)).
			WithSuggestion("Valid modes: system, light, dark")
	}
}

// clientOptions assembles session options from configuration plus command
// overrides.
func clientOptions(cfg *config.Config, path string, verbose bool) ([]client.Option, error) {
	mode, err := routingMode(cfg.RoutingMode())
	if err != nil {
		return nil, err
	}
	opts := []client.Option{client.WithRoutingMode(mode)}

	themeOpts, err := themeOptions(cfg.ThemeMode())
	if err != nil {
		return nil, err
	}
	opts = append(opts, themeOpts...)

	if path == "" {
		path = cfg.Routing.InitialPath
	}
	if path != "" {
		opts = append(opts, client.WithPath(path))
	}

	if verbose {
		opts = append(opts, client.WithLogger(newLogger(true)))
	}
	return opts, nil
}

// parseHeaders parses repeated "Name: value" flags.
func parseHeaders(pairs []string) (http.Header, error) {
	if len(pairs) == 0 {
		return nil, nil
	}
	h := make(http.Header, len(pairs))
	for _, pair := range pairs {
		name, value, ok := strings.Cut(pair, ":")
		if !ok || strings.TrimSpace(name) == "" {
			return nil, errors.Newf(errors.CategoryCLI,
				"malformed header %q, want 'Name: value'", pair)
		}
		h.Add(strings.TrimSpace(name), strings.TrimSpace(value))
	}
	return h, nil
}

// startMetrics wires the observability middleware and serves /metrics when
// the configuration enables it. It returns options to pass to the client.
func startMetrics(ctx context.Context, cfg *config.Config) []client.Option {
	if !cfg.Metrics.Enabled {
		return nil
	}
	go serveMetrics(ctx, cfg.MetricsListen())
	return []client.Option{client.WithMiddleware(
		middleware.Prometheus(),
		middleware.OpenTelemetry(),
	)}
}

// serveMetrics exposes the prometheus registry until ctx ends.
func serveMetrics(ctx context.Context, addr string) {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	srv := &http.Server{Addr: addr, Handler: mux}

	go func() {
		<-ctx.Done()
		srv.Close()
	}()

	info("Metrics at http://%s/metrics", addr)
	if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		warn("metrics server: %v", err)
	}
}

// renderPrinter prints each distinct render exactly once.
type renderPrinter struct {
	c *client.Client

	mu    sync.Mutex
	last  *protocol.Element
	count int
}

func (p *renderPrinter) maybePrint(tree *protocol.Element) {
	if tree == nil {
		return
	}
	p.mu.Lock()
	if tree == p.last {
		p.mu.Unlock()
		return
	}
	p.last = tree
	p.count++
	n := p.count
	p.mu.Unlock()

	var b strings.Builder
	fmt.Fprintf(&b, "\n── render %d @ %s ──\n", n, p.c.Router().Path())
	writeNode(&b, p.c.Render(), 1)
	fmt.Print(b.String())
}

// writeNode renders one live node as an indented outline.
func writeNode(b *strings.Builder, n *ui.Node, depth int) {
	if n == nil {
		return
	}
	indent := strings.Repeat("  ", depth)
	switch n.Kind {
	case ui.KindText:
		fmt.Fprintf(b, "%s%q\n", indent, n.Text)
	case ui.KindPlaceholder:
		fmt.Fprintf(b, "%s<%s!> %s\n", indent, n.Tag, n.Text)
	default:
		fmt.Fprintf(b, "%s<%s>%s\n", indent, n.Tag, propSummary(n.Props))
	}
	for _, child := range n.Children {
		writeNode(b, child, depth+1)
	}
}

// propSummary names the interactive props so the outline shows what is
// wired: callbacks as name(), bindings as name=.
func propSummary(props ui.Props) string {
	if len(props) == 0 {
		return ""
	}
	names := make([]string, 0, len(props))
	for name, value := range props {
		switch value.(type) {
		case ui.Callback:
			names = append(names, name+"()")
		case *ui.Binding:
			names = append(names, name+"=")
		}
	}
	if len(names) == 0 {
		return ""
	}
	sort.Strings(names)
	return " [" + strings.Join(names, " ") + "]"
}

// observeSession prints the session's renders until the user interrupts or
// the session ends. A session failure becomes an error; an interrupt does
// not.
func observeSession(ctx context.Context, c *client.Client) error {
	printer := &renderPrinter{c: c}
	ended := make(chan client.ConnState, 1)

	removeTree := c.Store().Subscribe(func(snap client.Snapshot) {
		printer.maybePrint(snap.Tree)
	})
	defer removeTree()

	removeState := c.Store().SubscribeState(func(_, next client.ConnState) {
		switch next {
		case client.StateError, client.StateDisconnected:
			select {
			case ended <- next:
			default:
			}
		}
	})
	defer removeState()

	// The handshake's first render may predate the subscription.
	printer.maybePrint(c.Store().Tree())

	select {
	case <-ctx.Done():
		return nil
	case state := <-ended:
		if state == client.StateError {
			return errors.New("T504").WithDetail(c.Store().Snapshot().Err)
		}
		return nil
	}
}
