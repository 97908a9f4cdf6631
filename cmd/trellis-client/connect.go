package main

import (
	"context"
	stderrors "errors"
	"fmt"
	"net/http"
	"time"

	"github.com/spf13/cobra"

	"github.com/emmapowers/trellis-sub001/internal/errors"
	"github.com/emmapowers/trellis-sub001/pkg/client"
	"github.com/emmapowers/trellis-sub001/pkg/transport"
)

func connectCmd() *cobra.Command {
	var (
		url     string
		codec   string
		path    string
		theme   string
		headers []string
		timeout time.Duration
		verbose bool
	)

	cmd := &cobra.Command{
		Use:   "connect",
		Short: "Attach to a running application server",
		Long: `Attach to a running Trellis application server over WebSocket.

The server address, codec and headers come from trellis.json when
present; flags override. The command prints every render the
application pushes until interrupted.

Examples:
  trellis-client connect
  trellis-client connect --url=wss://app.example.com/ws
  trellis-client connect --codec=msgpack --path=/dashboard
  trellis-client connect -H 'Authorization: Bearer TOKEN'`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runConnect(url, codec, path, theme, headers, timeout, verbose)
		},
	}

	cmd.Flags().StringVarP(&url, "url", "u", "", "Server URL (default from trellis.json)")
	cmd.Flags().StringVar(&codec, "codec", "", "Wire codec: json or msgpack (default from trellis.json)")
	cmd.Flags().StringVar(&path, "path", "", "Initial route path")
	cmd.Flags().StringVar(&theme, "theme", "", "Theme mode: system, light or dark")
	cmd.Flags().StringArrayVarP(&headers, "header", "H", nil, "Extra handshake header ('Name: value', repeatable)")
	cmd.Flags().DurationVar(&timeout, "timeout", 30*time.Second, "Handshake timeout")
	cmd.Flags().BoolVarP(&verbose, "verbose", "v", false, "Log session internals to stderr")

	return cmd
}

func runConnect(urlFlag, codecFlag, path, themeFlag string, headerFlags []string, timeout time.Duration, verbose bool) error {
	// A project is optional when the target comes from the command line.
	cfg, err := loadConfig(urlFlag != "")
	if err != nil {
		return err
	}
	if urlFlag != "" {
		cfg.Server.URL = urlFlag
	}
	if codecFlag != "" {
		cfg.Server.Codec = codecFlag
	}
	if themeFlag != "" {
		cfg.Theme.Mode = themeFlag
	}

	target, err := socketURL(cfg.ResolvedServerURL())
	if err != nil {
		return err
	}
	codec, err := sessionCodec(cfg.CodecName())
	if err != nil {
		return err
	}

	sockOpts := []transport.SocketOption{transport.WithCodec(codec)}
	if verbose {
		sockOpts = append(sockOpts, transport.WithLogger(newLogger(true)))
	}

	header, err := parseHeaders(headerFlags)
	if err != nil {
		return err
	}
	if len(cfg.Server.Headers) > 0 {
		if header == nil {
			header = make(http.Header, len(cfg.Server.Headers))
		}
		for name, value := range cfg.Server.Headers {
			if header.Get(name) == "" {
				header.Set(name, value)
			}
		}
	}
	if header != nil {
		sockOpts = append(sockOpts, transport.WithHeader(header))
	}

	if d, err := cfg.PingInterval(); err != nil {
		return err
	} else if d > 0 {
		sockOpts = append(sockOpts, transport.WithPingInterval(d))
	}
	if d, err := cfg.ReadTimeout(); err != nil {
		return err
	} else if d > 0 {
		sockOpts = append(sockOpts, transport.WithReadTimeout(d))
	}
	if d, err := cfg.WriteTimeout(); err != nil {
		return err
	} else if d > 0 {
		sockOpts = append(sockOpts, transport.WithWriteTimeout(d))
	}

	ctx, cancel := signalContext(context.Background())
	defer cancel()

	opts, err := clientOptions(cfg, path, verbose)
	if err != nil {
		return err
	}
	opts = append(opts, startMetrics(ctx, cfg)...)

	c := client.NewClient(transport.NewSocket(target, sockOpts...), opts...)
	defer c.Disconnect()

	info("Connecting to %s (%s)...", target, codec.Name())

	connectCtx, connectCancel := context.WithTimeout(ctx, timeout)
	defer connectCancel()
	if err := c.Connect(connectCtx); err != nil {
		if stderrors.Is(err, context.DeadlineExceeded) {
			return errors.New("T204").
				WithDetail(fmt.Sprintf("no handshake response within %s", timeout)).
				Wrap(err)
		}
		return errors.FromError(err, "T201")
	}

	snap := c.Store().Snapshot()
	success("Session %s established (server %s)", snap.SessionID, snap.ServerVersion)

	return observeSession(ctx, c)
}
