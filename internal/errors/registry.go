package errors

// ErrorTemplate defines a registered error type.
type ErrorTemplate struct {
	Category Category
	Message  string
	Detail   string
	DocURL   string
}

// registry maps error codes to their templates.
var registry = map[string]ErrorTemplate{
	// ============================================
	// Protocol Errors (T100-T199)
	// ============================================

	"T101": {
		Category: CategoryProtocol,
		Message:  "Handshake rejected",
		Detail:   "The server refused the session during the handshake. The client sent its hello but received an error instead of a session.",
		DocURL:   "https://trellis.dev/docs/errors/T101",
	},
	"T102": {
		Category: CategoryProtocol,
		Message:  "Malformed message",
		Detail:   "A frame received from the server could not be decoded. The client and server may disagree on the codec (JSON vs MessagePack).",
		DocURL:   "https://trellis.dev/docs/errors/T102",
	},
	"T103": {
		Category: CategoryProtocol,
		Message:  "Unknown message kind",
		Detail:   "The message type field is not one the client recognizes. The server may be newer than this client.",
		DocURL:   "https://trellis.dev/docs/errors/T103",
	},
	"T104": {
		Category: CategoryProtocol,
		Message:  "Unexpected message",
		Detail:   "A known message kind arrived at a point in the session where it is not valid, such as a render before the handshake completed.",
		DocURL:   "https://trellis.dev/docs/errors/T104",
	},
	"T105": {
		Category: CategoryProtocol,
		Message:  "Session terminated by server",
		Detail:   "The server ended an established session with an error message.",
		DocURL:   "https://trellis.dev/docs/errors/T105",
	},
	"T106": {
		Category: CategoryProtocol,
		Message:  "Server version incompatible",
		Detail:   "The server reported a version this client cannot speak to.",
		DocURL:   "https://trellis.dev/docs/errors/T106",
	},

	// ============================================
	// Transport Errors (T200-T299)
	// ============================================

	"T201": {
		Category: CategoryTransport,
		Message:  "WebSocket connection failed",
		Detail:   "Unable to establish a WebSocket connection to the server. Check that the server is running and the URL is correct.",
		DocURL:   "https://trellis.dev/docs/errors/T201",
	},
	"T202": {
		Category: CategoryTransport,
		Message:  "Transport closed",
		Detail:   "The connection to the server was lost. The session cannot continue on a closed transport.",
		DocURL:   "https://trellis.dev/docs/errors/T202",
	},
	"T203": {
		Category: CategoryTransport,
		Message:  "Send on unconnected transport",
		Detail:   "A message was sent before the transport connected or after it closed.",
		DocURL:   "https://trellis.dev/docs/errors/T203",
	},
	"T204": {
		Category: CategoryTransport,
		Message:  "Server unresponsive",
		Detail:   "The server stopped answering keepalive pings and the connection was dropped.",
		DocURL:   "https://trellis.dev/docs/errors/T204",
	},
	"T205": {
		Category: CategoryTransport,
		Message:  "Transport severed by peer",
		Detail:   "The other end of the connection closed it. For a worker transport this usually means the interpreter process exited.",
		DocURL:   "https://trellis.dev/docs/errors/T205",
	},

	// ============================================
	// Bootstrap Errors (T300-T399)
	// ============================================

	"T301": {
		Category: CategoryBootstrap,
		Message:  "Interpreter not found",
		Detail:   "The sandboxed interpreter executable could not be spawned. It may not be installed or not on PATH.",
		DocURL:   "https://trellis.dev/docs/errors/T301",
	},
	"T302": {
		Category: CategoryBootstrap,
		Message:  "Runtime initialization failed",
		Detail:   "The interpreter started but its runtime failed to come up before the application could load.",
		DocURL:   "https://trellis.dev/docs/errors/T302",
	},
	"T303": {
		Category: CategoryBootstrap,
		Message:  "Package installation failed",
		Detail:   "One or more application packages could not be installed into the sandbox.",
		DocURL:   "https://trellis.dev/docs/errors/T303",
	},
	"T304": {
		Category: CategoryBootstrap,
		Message:  "Package index unreachable",
		Detail:   "The package index could not be reached. Check network access and the configured index URL.",
		DocURL:   "https://trellis.dev/docs/errors/T304",
	},
	"T305": {
		Category: CategoryBootstrap,
		Message:  "Package blocked by sandbox policy",
		Detail:   "The sandbox refused to install a package, usually because it needs native extensions the sandbox does not allow.",
		DocURL:   "https://trellis.dev/docs/errors/T305",
	},
	"T306": {
		Category: CategoryBootstrap,
		Message:  "Package not found",
		Detail:   "A requested package does not exist in the configured index.",
		DocURL:   "https://trellis.dev/docs/errors/T306",
	},
	"T307": {
		Category: CategoryBootstrap,
		Message:  "Bootstrap timed out",
		Detail:   "The worker did not become ready within the init timeout. Slow package installs are the usual cause.",
		DocURL:   "https://trellis.dev/docs/errors/T307",
	},
	"T308": {
		Category: CategoryBootstrap,
		Message:  "Application failed to start",
		Detail:   "The application source was loaded but raised an error before serving its first render.",
		DocURL:   "https://trellis.dev/docs/errors/T308",
	},
	"T309": {
		Category: CategoryBootstrap,
		Message:  "Worker terminated unexpectedly",
		Detail:   "The interpreter process exited while the session was still using it.",
		DocURL:   "https://trellis.dev/docs/errors/T309",
	},

	// ============================================
	// Configuration Errors (T400-T499)
	// ============================================

	"T401": {
		Category: CategoryConfig,
		Message:  "Invalid trellis.json",
		Detail:   "The trellis.json configuration file is malformed.",
		DocURL:   "https://trellis.dev/docs/errors/T401",
	},
	"T402": {
		Category: CategoryConfig,
		Message:  "Not a Trellis project",
		Detail:   "The current directory is not a Trellis project. Run this command from a directory with trellis.json.",
		DocURL:   "https://trellis.dev/docs/errors/T402",
	},
	"T403": {
		Category: CategoryConfig,
		Message:  "Missing required configuration",
		Detail:   "A required configuration value is not set.",
		DocURL:   "https://trellis.dev/docs/errors/T403",
	},
	"T404": {
		Category: CategoryConfig,
		Message:  "Invalid server URL",
		Detail:   "The configured server URL is not a valid ws://, wss://, http:// or https:// URL.",
		DocURL:   "https://trellis.dev/docs/errors/T404",
	},
	"T405": {
		Category: CategoryConfig,
		Message:  "Invalid routing mode",
		Detail:   "The routing mode must be one of: hash, standard, embedded.",
		DocURL:   "https://trellis.dev/docs/errors/T405",
	},
	"T406": {
		Category: CategoryConfig,
		Message:  "Invalid theme",
		Detail:   "The theme mode must be one of: system, light, dark.",
		DocURL:   "https://trellis.dev/docs/errors/T406",
	},
	"T407": {
		Category: CategoryConfig,
		Message:  "Invalid timeout",
		Detail:   "Timeouts must be positive durations such as \"30s\" or \"2m\".",
		DocURL:   "https://trellis.dev/docs/errors/T407",
	},
	"T408": {
		Category: CategoryConfig,
		Message:  "Invalid codec",
		Detail:   "The wire codec must be either \"json\" or \"msgpack\".",
		DocURL:   "https://trellis.dev/docs/errors/T408",
	},
	"T409": {
		Category: CategoryConfig,
		Message:  "Invalid port number",
		Detail:   "The configured port number must be between 0 and 65535.",
		DocURL:   "https://trellis.dev/docs/errors/T409",
	},

	// ============================================
	// CLI Errors (T500-T599)
	// ============================================

	"T501": {
		Category: CategoryCLI,
		Message:  "Application source not found",
		Detail:   "The application source file does not exist.",
		DocURL:   "https://trellis.dev/docs/errors/T501",
	},
	"T502": {
		Category: CategoryCLI,
		Message:  "Interpreter not installed",
		Detail:   "The configured interpreter is not installed or not in PATH.",
		DocURL:   "https://trellis.dev/docs/errors/T502",
	},
	"T503": {
		Category: CategoryCLI,
		Message:  "Address already in use",
		Detail:   "The listen address is taken by another process.",
		DocURL:   "https://trellis.dev/docs/errors/T503",
	},
	"T504": {
		Category: CategoryCLI,
		Message:  "Connection interrupted",
		Detail:   "The session ended before the command finished.",
		DocURL:   "https://trellis.dev/docs/errors/T504",
	},
	"T505": {
		Category: CategoryCLI,
		Message:  "Configuration already exists",
		Detail:   "A trellis.json already exists at the target location.",
		DocURL:   "https://trellis.dev/docs/errors/T505",
	},
	"T506": {
		Category: CategoryCLI,
		Message:  "Unknown project template",
		Detail:   "The requested project template is not registered.",
		DocURL:   "https://trellis.dev/docs/errors/T506",
	},
}

// GetAllCodes returns all registered error codes.
func GetAllCodes() []string {
	codes := make([]string, 0, len(registry))
	for code := range registry {
		codes = append(codes, code)
	}
	return codes
}

// GetTemplate returns the template for an error code.
func GetTemplate(code string) (ErrorTemplate, bool) {
	t, ok := registry[code]
	return t, ok
}

// Register adds a new error template to the registry.
func Register(code string, template ErrorTemplate) {
	registry[code] = template
}
