package config

import (
	"encoding/json"
	"net/url"
	"os"
	"path/filepath"
	"time"

	"github.com/emmapowers/trellis-sub001/internal/errors"
)

const (
	// ConfigFileName is the name of the configuration file.
	ConfigFileName = "trellis.json"

	// DefaultServerURL is the default server endpoint, matching the
	// address the demo host listens on.
	DefaultServerURL = "ws://localhost:3000/ws"

	// DefaultCodec is the default wire codec.
	DefaultCodec = "json"

	// DefaultRoutingMode is the default routing mode.
	DefaultRoutingMode = "hash"

	// DefaultThemeMode is the default theme mode.
	DefaultThemeMode = "system"

	// DefaultPort is the default demo host port.
	DefaultPort = 3000

	// DefaultHost is the default demo host.
	DefaultHost = "localhost"

	// DefaultMetricsListen is the default metrics listen address.
	DefaultMetricsListen = "localhost:9464"
)

// Config represents the complete trellis.json configuration.
type Config struct {
	// Name is the project name.
	Name string `json:"name,omitempty"`

	// Version is the project version.
	Version string `json:"version,omitempty"`

	// Server contains connection settings for a remote session.
	Server ServerConfig `json:"server,omitempty"`

	// Routing contains URL routing settings.
	Routing RoutingConfig `json:"routing,omitempty"`

	// Theme contains theme settings.
	Theme ThemeConfig `json:"theme,omitempty"`

	// Worker contains sandboxed worker settings for local sessions.
	Worker WorkerConfig `json:"worker,omitempty"`

	// Dev contains demo host settings.
	Dev DevConfig `json:"dev,omitempty"`

	// Metrics contains Prometheus exposition settings.
	Metrics MetricsConfig `json:"metrics,omitempty"`

	// ServerURL is the server endpoint (legacy, use Server.URL).
	ServerURL string `json:"serverUrl,omitempty"`

	// configPath stores the path where the config was loaded from.
	configPath string
}

// ServerConfig contains connection settings for a remote session.
type ServerConfig struct {
	// URL is the WebSocket endpoint of the server.
	URL string `json:"url,omitempty"`

	// Codec selects the wire codec: "json" or "msgpack".
	Codec string `json:"codec,omitempty"`

	// Headers are extra HTTP headers sent with the WebSocket handshake.
	Headers map[string]string `json:"headers,omitempty"`

	// PingInterval is the keepalive interval (e.g., "30s").
	// Empty uses the transport default.
	PingInterval string `json:"pingInterval,omitempty"`

	// ReadTimeout is the read deadline (e.g., "60s").
	// Empty uses the transport default.
	ReadTimeout string `json:"readTimeout,omitempty"`

	// WriteTimeout is the write deadline (e.g., "10s").
	// Empty uses the transport default.
	WriteTimeout string `json:"writeTimeout,omitempty"`
}

// RoutingConfig contains URL routing settings.
type RoutingConfig struct {
	// Mode selects how URLs are managed: "hash", "standard" or "embedded".
	Mode string `json:"mode,omitempty"`

	// InitialPath is the path reported in the handshake. Defaults to "/".
	InitialPath string `json:"initialPath,omitempty"`
}

// ThemeConfig contains theme settings.
type ThemeConfig struct {
	// Mode selects the theme: "system", "light" or "dark".
	Mode string `json:"mode,omitempty"`
}

// WorkerConfig contains sandboxed worker settings for local sessions.
type WorkerConfig struct {
	// Interpreter is the argv used to spawn the interpreter.
	// Empty uses the runtime default.
	Interpreter []string `json:"interpreter,omitempty"`

	// Dir is the working directory for the worker process.
	Dir string `json:"dir,omitempty"`

	// Env is extra environment variables for the worker process.
	Env map[string]string `json:"env,omitempty"`

	// Packages are packages installed into the sandbox before the
	// application loads.
	Packages []string `json:"packages,omitempty"`

	// IndexURL overrides the package index.
	IndexURL string `json:"indexUrl,omitempty"`

	// InitTimeout bounds worker bootstrap (e.g., "90s").
	// Empty uses the runtime default.
	InitTimeout string `json:"initTimeout,omitempty"`
}

// DevConfig contains demo host settings.
type DevConfig struct {
	// Port is the port to run the demo host on.
	Port int `json:"port,omitempty"`

	// Host is the host to bind to.
	Host string `json:"host,omitempty"`
}

// MetricsConfig contains Prometheus exposition settings.
type MetricsConfig struct {
	// Enabled controls whether the metrics endpoint is served.
	Enabled bool `json:"enabled,omitempty"`

	// Listen is the metrics listen address.
	Listen string `json:"listen,omitempty"`
}

// New creates a new Config with default values.
func New() *Config {
	return &Config{
		Version: "0.1.0",
		Server: ServerConfig{
			URL:   DefaultServerURL,
			Codec: DefaultCodec,
		},
		Routing: RoutingConfig{
			Mode:        DefaultRoutingMode,
			InitialPath: "/",
		},
		Theme: ThemeConfig{
			Mode: DefaultThemeMode,
		},
		Dev: DevConfig{
			Port: DefaultPort,
			Host: DefaultHost,
		},
		Metrics: MetricsConfig{
			Listen: DefaultMetricsListen,
		},
	}
}

// Load reads configuration from the specified directory.
// It looks for trellis.json in the directory.
func Load(dir string) (*Config, error) {
	configPath := filepath.Join(dir, ConfigFileName)
	return LoadFile(configPath)
}

// LoadFile reads configuration from the specified file path.
func LoadFile(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, errors.New("T402").
				WithDetail("No trellis.json found in " + filepath.Dir(path)).
				WithSuggestion("Run 'trellis-client init' to create one")
		}
		return nil, errors.New("T401").Wrap(err)
	}

	// Unmarshal into a zero value so absent fields are detectable;
	// applyDefaults fills them afterwards. Seeding from New() first would
	// mask absent fields and break the legacy fallbacks.
	cfg := &Config{}
	if err := json.Unmarshal(data, cfg); err != nil {
		return nil, errors.New("T401").
			WithDetail("Failed to parse trellis.json: " + err.Error()).
			WithSuggestion("Check that trellis.json is valid JSON")
	}

	cfg.configPath = path
	cfg.applyDefaults()

	return cfg, nil
}

// Save writes the configuration to the file it was loaded from.
func (c *Config) Save() error {
	if c.configPath == "" {
		return errors.Newf(errors.CategoryConfig, "no config path set")
	}
	return c.SaveTo(c.configPath)
}

// SaveTo writes the configuration to the specified path.
func (c *Config) SaveTo(path string) error {
	data, err := json.MarshalIndent(c, "", "  ")
	if err != nil {
		return errors.New("T401").Wrap(err)
	}

	// Add newline at end of file
	data = append(data, '\n')

	if err := os.WriteFile(path, data, 0644); err != nil {
		return errors.New("T401").Wrap(err)
	}

	c.configPath = path
	return nil
}

// Path returns the path where the config was loaded from.
func (c *Config) Path() string {
	return c.configPath
}

// Dir returns the directory containing the config file.
func (c *Config) Dir() string {
	if c.configPath == "" {
		return ""
	}
	return filepath.Dir(c.configPath)
}

// applyDefaults fills in default values for empty fields.
func (c *Config) applyDefaults() {
	// Server - prefer new Server config, fall back to legacy field
	if c.Server.URL == "" {
		if c.ServerURL != "" {
			c.Server.URL = c.ServerURL
		} else {
			c.Server.URL = DefaultServerURL
		}
	}
	if c.Server.Codec == "" {
		c.Server.Codec = DefaultCodec
	}

	// Routing
	if c.Routing.Mode == "" {
		c.Routing.Mode = DefaultRoutingMode
	}
	if c.Routing.InitialPath == "" {
		c.Routing.InitialPath = "/"
	}

	// Theme
	if c.Theme.Mode == "" {
		c.Theme.Mode = DefaultThemeMode
	}

	// Dev
	if c.Dev.Port == 0 {
		c.Dev.Port = DefaultPort
	}
	if c.Dev.Host == "" {
		c.Dev.Host = DefaultHost
	}

	// Metrics
	if c.Metrics.Listen == "" {
		c.Metrics.Listen = DefaultMetricsListen
	}

	// Legacy field - keep in sync for backwards compatibility
	if c.ServerURL == "" {
		c.ServerURL = c.Server.URL
	}
}

// Validate checks if the configuration is valid.
func (c *Config) Validate() error {
	if c.Server.URL != "" {
		u, err := url.Parse(c.Server.URL)
		if err != nil {
			return errors.New("T404").Wrap(err)
		}
		switch u.Scheme {
		case "ws", "wss", "http", "https":
		default:
			return errors.New("T404").
				WithDetail("Unsupported scheme " + u.Scheme + " in " + c.Server.URL)
		}
	}

	switch c.Server.Codec {
	case "", "json", "msgpack":
	default:
		return errors.New("T408").
			WithDetail("Unknown codec " + c.Server.Codec)
	}

	switch c.Routing.Mode {
	case "", "hash", "standard", "embedded":
	default:
		return errors.New("T405").
			WithDetail("Unknown routing mode " + c.Routing.Mode)
	}

	switch c.Theme.Mode {
	case "", "system", "light", "dark":
	default:
		return errors.New("T406").
			WithDetail("Unknown theme mode " + c.Theme.Mode)
	}

	for _, field := range []struct {
		name  string
		value string
	}{
		{"worker.initTimeout", c.Worker.InitTimeout},
		{"server.pingInterval", c.Server.PingInterval},
		{"server.readTimeout", c.Server.ReadTimeout},
		{"server.writeTimeout", c.Server.WriteTimeout},
	} {
		if field.value == "" {
			continue
		}
		d, err := time.ParseDuration(field.value)
		if err != nil {
			return errors.New("T407").
				WithDetail("Cannot parse " + field.name + ": " + err.Error())
		}
		if d <= 0 {
			return errors.New("T407").
				WithDetail(field.name + " must be positive")
		}
	}

	if c.Dev.Port < 0 || c.Dev.Port > 65535 {
		return errors.New("T409").
			WithDetail("Port must be between 0 and 65535")
	}

	return nil
}

// ResolvedServerURL returns the server endpoint, preferring the new field
// over the legacy one.
func (c *Config) ResolvedServerURL() string {
	if c.Server.URL != "" {
		return c.Server.URL
	}
	if c.ServerURL != "" {
		return c.ServerURL
	}
	return DefaultServerURL
}

// CodecName returns the configured wire codec name.
func (c *Config) CodecName() string {
	if c.Server.Codec == "" {
		return DefaultCodec
	}
	return c.Server.Codec
}

// RoutingMode returns the configured routing mode.
func (c *Config) RoutingMode() string {
	if c.Routing.Mode == "" {
		return DefaultRoutingMode
	}
	return c.Routing.Mode
}

// ThemeMode returns the configured theme mode.
func (c *Config) ThemeMode() string {
	if c.Theme.Mode == "" {
		return DefaultThemeMode
	}
	return c.Theme.Mode
}

// InitTimeout returns the worker bootstrap timeout.
// Zero means the runtime default.
func (c *Config) InitTimeout() (time.Duration, error) {
	return c.duration(c.Worker.InitTimeout)
}

// PingInterval returns the keepalive interval.
// Zero means the transport default.
func (c *Config) PingInterval() (time.Duration, error) {
	return c.duration(c.Server.PingInterval)
}

// ReadTimeout returns the read deadline.
// Zero means the transport default.
func (c *Config) ReadTimeout() (time.Duration, error) {
	return c.duration(c.Server.ReadTimeout)
}

// WriteTimeout returns the write deadline.
// Zero means the transport default.
func (c *Config) WriteTimeout() (time.Duration, error) {
	return c.duration(c.Server.WriteTimeout)
}

func (c *Config) duration(value string) (time.Duration, error) {
	if value == "" {
		return 0, nil
	}
	d, err := time.ParseDuration(value)
	if err != nil {
		return 0, errors.New("T407").Wrap(err)
	}
	return d, nil
}

// WorkerArgv returns a copy of the configured interpreter argv.
// Empty means the runtime default.
func (c *Config) WorkerArgv() []string {
	if len(c.Worker.Interpreter) == 0 {
		return nil
	}
	argv := make([]string, len(c.Worker.Interpreter))
	copy(argv, c.Worker.Interpreter)
	return argv
}

// DevAddress returns the address string for the demo host.
func (c *Config) DevAddress() string {
	return c.Dev.Host + ":" + itoa(c.Dev.Port)
}

// DevURL returns the full URL for the demo host.
func (c *Config) DevURL() string {
	return "http://" + c.DevAddress()
}

// DevSocketURL returns the WebSocket endpoint of the demo host.
func (c *Config) DevSocketURL() string {
	return "ws://" + c.DevAddress() + "/ws"
}

// MetricsListen returns the metrics listen address.
func (c *Config) MetricsListen() string {
	if c.Metrics.Listen == "" {
		return DefaultMetricsListen
	}
	return c.Metrics.Listen
}

// Exists checks if a config file exists in the given directory.
func Exists(dir string) bool {
	path := filepath.Join(dir, ConfigFileName)
	_, err := os.Stat(path)
	return err == nil
}

// FindProjectRoot walks up directories to find the project root.
// Returns the directory containing trellis.json, or an error if not found.
func FindProjectRoot(startDir string) (string, error) {
	dir, err := filepath.Abs(startDir)
	if err != nil {
		return "", err
	}

	for {
		if Exists(dir) {
			return dir, nil
		}

		parent := filepath.Dir(dir)
		if parent == dir {
			return "", errors.New("T402").
				WithDetail("No trellis.json found in " + startDir + " or any parent directory").
				WithSuggestion("Run 'trellis-client init' to create one")
		}
		dir = parent
	}
}

// LoadFromWorkingDir loads configuration from the current working directory.
func LoadFromWorkingDir() (*Config, error) {
	wd, err := os.Getwd()
	if err != nil {
		return nil, err
	}

	root, err := FindProjectRoot(wd)
	if err != nil {
		return nil, err
	}

	return Load(root)
}

// itoa converts int to string without importing strconv.
func itoa(n int) string {
	if n == 0 {
		return "0"
	}
	if n < 0 {
		return "-" + itoa(-n)
	}
	digits := make([]byte, 0, 10)
	for n > 0 {
		digits = append(digits, byte('0'+n%10))
		n /= 10
	}
	// Reverse
	for i, j := 0, len(digits)-1; i < j; i, j = i+1, j-1 {
		digits[i], digits[j] = digits[j], digits[i]
	}
	return string(digits)
}
