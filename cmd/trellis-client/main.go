package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/emmapowers/trellis-sub001/internal/errors"
)

// Version information set at build time.
var (
	version = "dev"
	commit  = "none"
	date    = "unknown"
)

const banner = `
  ╔╦╗┬─┐┌─┐┬  ┬  ┬┌─┐
   ║ ├┬┘├┤ │  │  │└─┐
   ╩ ┴└─└─┘┴─┘┴─┘┴└─┘
`

func main() {
	rootCmd := &cobra.Command{
		Use:   "trellis-client",
		Short: "The client runtime for Trellis applications",
		Long: `trellis-client runs and attaches to Trellis applications.

The client owns the session: it dials a running application server or
boots one inside a sandboxed interpreter, performs the handshake, and
keeps the rendered tree in sync over the wire.

Commands:
  run      boot an application in a sandboxed worker and attach
  connect  attach to a running application server
  demo     serve the built-in demo application
  init     write a default trellis.json`,
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	rootCmd.AddCommand(
		runCmd(),
		connectCmd(),
		demoCmd(),
		initCmd(),
		versionCmd(),
	)

	if err := rootCmd.Execute(); err != nil {
		errors.PrintError(err)
		os.Exit(1)
	}
}

// printBanner prints the Trellis ASCII art banner.
func printBanner() {
	fmt.Print(banner)
}

// success prints a success message.
func success(format string, args ...any) {
	fmt.Printf("\033[32m✓\033[0m %s\n", fmt.Sprintf(format, args...))
}

// info prints an info message.
func info(format string, args ...any) {
	fmt.Printf("  %s\n", fmt.Sprintf(format, args...))
}

// warn prints a warning message.
func warn(format string, args ...any) {
	fmt.Printf("\033[33m⚠\033[0m %s\n", fmt.Sprintf(format, args...))
}
