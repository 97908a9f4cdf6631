package main

import (
	"context"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/emmapowers/trellis-sub001/internal/devhost"
	"github.com/emmapowers/trellis-sub001/internal/errors"
)

func demoCmd() *cobra.Command {
	var (
		port    int
		host    string
		verbose bool
	)

	cmd := &cobra.Command{
		Use:   "demo",
		Short: "Serve the built-in demo application",
		Long: `Serve the built-in demo application on a local WebSocket endpoint.

The demo host speaks the full session protocol with either codec, so
any client can attach:

  trellis-client demo
  trellis-client connect --url=ws://localhost:3000/ws

Examples:
  trellis-client demo
  trellis-client demo --port=8080
  trellis-client demo --host=0.0.0.0`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runDemo(port, host, verbose)
		},
	}

	cmd.Flags().IntVarP(&port, "port", "p", 0, "Port to listen on (default from trellis.json)")
	cmd.Flags().StringVarP(&host, "host", "H", "", "Host to bind to (default from trellis.json)")
	cmd.Flags().BoolVarP(&verbose, "verbose", "v", false, "Log host internals to stderr")

	return cmd
}

func runDemo(port int, host string, verbose bool) error {
	cfg, err := loadConfig(true)
	if err != nil {
		return err
	}
	if port > 0 {
		cfg.Dev.Port = port
	}
	if host != "" {
		cfg.Dev.Host = host
	}
	if err := cfg.Validate(); err != nil {
		return err
	}

	printBanner()
	fmt.Println("  demo")
	fmt.Println()

	h := devhost.New(devhost.NewCounterApp(),
		devhost.WithLogger(newLogger(verbose)),
		devhost.WithServerVersion(version),
	)

	addr := cfg.DevAddress()
	success("Demo host listening on %s", addr)
	info("WebSocket endpoint: ws://%s/ws", addr)
	info("Attach with: trellis-client connect --url=ws://%s/ws", addr)
	fmt.Println()

	ctx, cancel := signalContext(context.Background())
	defer cancel()

	err = h.ListenAndServe(ctx, addr)
	if err != nil && strings.Contains(err.Error(), "address already in use") {
		return errors.New("T503").
			WithDetail(fmt.Sprintf("%q is taken by another process", addr)).
			WithSuggestion("Pass --port to pick a different port").
			Wrap(err)
	}
	return err
}
