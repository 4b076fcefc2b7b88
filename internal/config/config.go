package config

import (
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/tidwall/jsonc"
	"github.com/vango-dev/collabcode/internal/errors"
)

const (
	// ConfigFileName is the name of the configuration file.
	ConfigFileName = "collabcode.json"

	// EnvPrefix prefixes every environment override.
	EnvPrefix = "COLLABCODE_"

	// DefaultAddress is the default relay listen address.
	DefaultAddress = ":8080"

	// DefaultURL is the default relay endpoint for clients.
	DefaultURL = "ws://localhost:8080/ws"
)

// Config represents the complete collabcode.json configuration.
type Config struct {
	Server  ServerConfig  `json:"server"`
	Client  ClientConfig  `json:"client"`
	Log     LogConfig     `json:"log"`
	Metrics MetricsConfig `json:"metrics"`

	// configPath stores the path where the config was loaded from.
	configPath string
}

// ServerConfig contains relay settings.
type ServerConfig struct {
	// Address is the listen address.
	Address string `json:"address,omitempty"`

	// Path is the WebSocket endpoint.
	Path string `json:"path,omitempty"`

	// HeartbeatInterval is the time between liveness probes.
	HeartbeatInterval Duration `json:"heartbeatInterval,omitempty"`

	// HeartbeatTimeout is how long a silent connection is kept.
	HeartbeatTimeout Duration `json:"heartbeatTimeout,omitempty"`

	// WriteTimeout bounds each frame write.
	WriteTimeout Duration `json:"writeTimeout,omitempty"`

	// SendQueue is the per-connection outbound queue length.
	SendQueue int `json:"sendQueue,omitempty"`

	// MaxMessageSize is the largest accepted inbound frame in bytes.
	MaxMessageSize int64 `json:"maxMessageSize,omitempty"`

	// CheckOrigin is "any" or "same".
	CheckOrigin string `json:"checkOrigin,omitempty"`
}

// ClientConfig contains settings for `collabcode join`.
type ClientConfig struct {
	// URL is the relay endpoint.
	URL string `json:"url,omitempty"`

	// Username is the display name. Empty picks one from the client ID.
	Username string `json:"username,omitempty"`

	// ConnectTimeout bounds a connection attempt.
	ConnectTimeout Duration `json:"connectTimeout,omitempty"`
}

// LogConfig selects the slog handler.
type LogConfig struct {
	// Level is debug, info, warn or error.
	Level string `json:"level,omitempty"`

	// Format is text or json.
	Format string `json:"format,omitempty"`
}

// MetricsConfig controls the Prometheus endpoint.
type MetricsConfig struct {
	Enabled   bool   `json:"enabled"`
	Path      string `json:"path,omitempty"`
	Namespace string `json:"namespace,omitempty"`
}

// New creates a new Config with default values.
func New() *Config {
	return &Config{
		Server: ServerConfig{
			Address:           DefaultAddress,
			Path:              "/ws",
			HeartbeatInterval: Duration(30 * time.Second),
			HeartbeatTimeout:  Duration(30 * time.Second),
			WriteTimeout:      Duration(10 * time.Second),
			SendQueue:         256,
			MaxMessageSize:    64 * 1024,
			CheckOrigin:       "any",
		},
		Client: ClientConfig{
			URL:            DefaultURL,
			ConnectTimeout: Duration(15 * time.Second),
		},
		Log: LogConfig{
			Level:  "info",
			Format: "text",
		},
		Metrics: MetricsConfig{
			Enabled:   true,
			Path:      "/metrics",
			Namespace: "collabcode",
		},
	}
}

// Load reads configuration from path. An empty path looks for
// collabcode.json in the working directory and falls back to the
// defaults when it is absent; an explicit path must exist.
func Load(path string) (*Config, error) {
	if path == "" {
		if !Exists(".") {
			return New(), nil
		}
		path = ConfigFileName
	}
	return LoadFile(path)
}

// LoadFile reads configuration from the specified file path.
func LoadFile(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, errors.New("C100").
				WithDetail("No " + filepath.Base(path) + " found in " + filepath.Dir(path)).
				Wrap(err)
		}
		return nil, errors.New("C101").Wrap(err)
	}

	cfg, err := Parse(data)
	if err != nil {
		return nil, err
	}
	cfg.configPath = path
	return cfg, nil
}

// Parse decodes a JSONC document over the defaults.
func Parse(data []byte) (*Config, error) {
	cfg := New()
	if err := json.Unmarshal(jsonc.ToJSON(data), cfg); err != nil {
		return nil, errors.New("C101").
			WithDetail("Failed to parse " + ConfigFileName + ": " + err.Error()).
			Wrap(err)
	}
	return cfg, nil
}

// SaveTo writes the configuration to the specified path.
func (c *Config) SaveTo(path string) error {
	data, err := json.MarshalIndent(c, "", "  ")
	if err != nil {
		return errors.New("C101").Wrap(err)
	}
	data = append(data, '\n')

	if err := os.WriteFile(path, data, 0644); err != nil {
		return errors.Newf(errors.CategoryConfig, "write %s", path).Wrap(err)
	}
	c.configPath = path
	return nil
}

// Path returns the path where the config was loaded from.
func (c *Config) Path() string {
	return c.configPath
}

// envVar binds one environment variable to a field.
type envVar struct {
	name  string
	apply func(c *Config, value string) error
}

var envVars = []envVar{
	{"SERVER_ADDRESS", func(c *Config, v string) error { c.Server.Address = v; return nil }},
	{"SERVER_PATH", func(c *Config, v string) error { c.Server.Path = v; return nil }},
	{"HEARTBEAT_INTERVAL", durationVar(func(c *Config) *Duration { return &c.Server.HeartbeatInterval })},
	{"HEARTBEAT_TIMEOUT", durationVar(func(c *Config) *Duration { return &c.Server.HeartbeatTimeout })},
	{"WRITE_TIMEOUT", durationVar(func(c *Config) *Duration { return &c.Server.WriteTimeout })},
	{"SEND_QUEUE", func(c *Config, v string) error {
		n, err := strconv.Atoi(v)
		c.Server.SendQueue = n
		return err
	}},
	{"MAX_MESSAGE_SIZE", func(c *Config, v string) error {
		n, err := strconv.ParseInt(v, 10, 64)
		c.Server.MaxMessageSize = n
		return err
	}},
	{"CHECK_ORIGIN", func(c *Config, v string) error { c.Server.CheckOrigin = v; return nil }},
	{"URL", func(c *Config, v string) error { c.Client.URL = v; return nil }},
	{"USERNAME", func(c *Config, v string) error { c.Client.Username = v; return nil }},
	{"CONNECT_TIMEOUT", durationVar(func(c *Config) *Duration { return &c.Client.ConnectTimeout })},
	{"LOG_LEVEL", func(c *Config, v string) error { c.Log.Level = v; return nil }},
	{"LOG_FORMAT", func(c *Config, v string) error { c.Log.Format = v; return nil }},
	{"METRICS_ENABLED", func(c *Config, v string) error {
		b, err := strconv.ParseBool(v)
		c.Metrics.Enabled = b
		return err
	}},
	{"METRICS_PATH", func(c *Config, v string) error { c.Metrics.Path = v; return nil }},
	{"METRICS_NAMESPACE", func(c *Config, v string) error { c.Metrics.Namespace = v; return nil }},
}

func durationVar(field func(*Config) *Duration) func(*Config, string) error {
	return func(c *Config, v string) error {
		d, err := time.ParseDuration(v)
		if err != nil {
			return err
		}
		*field(c) = Duration(d)
		return nil
	}
}

// ApplyEnv overrides fields from COLLABCODE_* variables found by lookup.
// Pass os.LookupEnv in production.
func (c *Config) ApplyEnv(lookup func(string) (string, bool)) error {
	for _, ev := range envVars {
		name := EnvPrefix + ev.name
		value, ok := lookup(name)
		if !ok || value == "" {
			continue
		}
		if err := ev.apply(c, value); err != nil {
			return errors.New("C103").
				WithDetail(fmt.Sprintf("%s=%q: %v", name, value, err)).
				Wrap(err)
		}
	}
	return nil
}

// Validate checks if the configuration is valid.
func (c *Config) Validate() error {
	invalid := func(format string, args ...any) error {
		return errors.New("C102").WithDetail(fmt.Sprintf(format, args...))
	}

	if c.Server.Address == "" {
		return invalid("server.address is required")
	}
	if !strings.HasPrefix(c.Server.Path, "/") {
		return invalid("server.path must start with '/', got %q", c.Server.Path)
	}
	if c.Server.HeartbeatInterval <= 0 || c.Server.HeartbeatTimeout <= 0 {
		return invalid("server heartbeat interval and timeout must be positive")
	}
	if c.Server.WriteTimeout <= 0 {
		return invalid("server.writeTimeout must be positive")
	}
	if c.Server.SendQueue <= 0 {
		return invalid("server.sendQueue must be positive, got %d", c.Server.SendQueue)
	}
	if c.Server.MaxMessageSize <= 0 {
		return invalid("server.maxMessageSize must be positive, got %d", c.Server.MaxMessageSize)
	}
	switch c.Server.CheckOrigin {
	case "any", "same":
	default:
		return invalid("server.checkOrigin must be \"any\" or \"same\", got %q", c.Server.CheckOrigin)
	}
	if c.Client.ConnectTimeout <= 0 {
		return invalid("client.connectTimeout must be positive")
	}
	if _, err := parseLevel(c.Log.Level); err != nil {
		return invalid("log.level: %v", err)
	}
	switch c.Log.Format {
	case "text", "json":
	default:
		return invalid("log.format must be \"text\" or \"json\", got %q", c.Log.Format)
	}
	if c.Metrics.Enabled && !strings.HasPrefix(c.Metrics.Path, "/") {
		return invalid("metrics.path must start with '/', got %q", c.Metrics.Path)
	}
	return nil
}

// NewLogger builds the slog logger described by the log section.
func (c LogConfig) NewLogger(w io.Writer) (*slog.Logger, error) {
	level, err := parseLevel(c.Level)
	if err != nil {
		return nil, err
	}
	opts := &slog.HandlerOptions{Level: level}
	if c.Format == "json" {
		return slog.New(slog.NewJSONHandler(w, opts)), nil
	}
	return slog.New(slog.NewTextHandler(w, opts)), nil
}

func parseLevel(s string) (slog.Level, error) {
	var level slog.Level
	if s == "" {
		return slog.LevelInfo, nil
	}
	err := level.UnmarshalText([]byte(s))
	return level, err
}

// Exists checks if a config file exists in the given directory.
func Exists(dir string) bool {
	_, err := os.Stat(filepath.Join(dir, ConfigFileName))
	return err == nil
}
