// ABOUTME: Configuration loading and parsing for netsync-master
// ABOUTME: Supports YAML files with environment variable expansion, duration parsing, and env overrides

package config

import (
	"errors"
	"fmt"
	"io/fs"
	"net"
	"os"
	"regexp"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Defaults applied before the config file is read.
const (
	DefaultPort              = 9000
	DefaultListenHost        = "0.0.0.0"
	DefaultHeartbeatInterval = 5 * time.Second
	DefaultHeartbeatTimeout  = 10 * time.Second
	DefaultReadTimeout       = 10 * time.Second
	DefaultWriteTimeout      = 2 * time.Second
	DefaultDatabasePath      = "netsync.db"
	DefaultLogFile           = "netsync.log"
	DefaultTailscaleHostname = "netsync-master"
)

// Config represents the complete netsync-master configuration
type Config struct {
	Server    ServerConfig    `yaml:"server"`
	Watch     WatchConfig     `yaml:"watch"`
	Agents    AgentsConfig    `yaml:"agents"`
	Database  DatabaseConfig  `yaml:"database"`
	Logging   LoggingConfig   `yaml:"logging"`
	Tailscale TailscaleConfig `yaml:"tailscale"`
}

// ServerConfig holds listener configuration
type ServerConfig struct {
	Port       int    `yaml:"port"`
	ListenHost string `yaml:"listen_host"`

	// HealthAddr enables the HTTP status endpoints when set (e.g. ":8080").
	HealthAddr string `yaml:"health_addr"`

	// GRPCHealthAddr enables the gRPC health service when set.
	GRPCHealthAddr string `yaml:"grpc_health_addr"`
}

// ListenAddr returns the host:port agents connect to.
func (s ServerConfig) ListenAddr() string {
	return net.JoinHostPort(s.ListenHost, strconv.Itoa(s.Port))
}

// WatchConfig holds filesystem watcher configuration
type WatchConfig struct {
	Path string `yaml:"path"`

	Debounce    time.Duration `yaml:"-"`
	DebounceRaw string        `yaml:"debounce"`
}

// AgentsConfig holds agent liveness and I/O timing
type AgentsConfig struct {
	HeartbeatInterval time.Duration `yaml:"-"`
	HeartbeatTimeout  time.Duration `yaml:"-"`
	ReadTimeout       time.Duration `yaml:"-"`
	WriteTimeout      time.Duration `yaml:"-"`

	// Raw string values for YAML unmarshaling
	HeartbeatIntervalRaw string `yaml:"heartbeat_interval"`
	HeartbeatTimeoutRaw  string `yaml:"heartbeat_timeout"`
	ReadTimeoutRaw       string `yaml:"read_timeout"`
	WriteTimeoutRaw      string `yaml:"write_timeout"`
}

// DatabaseConfig holds the fleet event ledger location. An empty path
// disables the ledger.
type DatabaseConfig struct {
	Path string `yaml:"path"`
}

// LoggingConfig holds logging configuration
type LoggingConfig struct {
	Level  string `yaml:"level" toml:"level"`
	Format string `yaml:"format" toml:"format"`
	File   string `yaml:"file" toml:"file"`
}

// TailscaleConfig holds Tailscale tsnet configuration
type TailscaleConfig struct {
	Enabled   bool   `yaml:"enabled"`
	Hostname  string `yaml:"hostname"`
	AuthKey   string `yaml:"auth_key"`
	StateDir  string `yaml:"state_dir"`
	Ephemeral bool   `yaml:"ephemeral"`
}

// Default returns the configuration used when no file is present.
func Default() *Config {
	return &Config{
		Server: ServerConfig{
			Port:       DefaultPort,
			ListenHost: DefaultListenHost,
		},
		Agents: AgentsConfig{
			HeartbeatInterval: DefaultHeartbeatInterval,
			HeartbeatTimeout:  DefaultHeartbeatTimeout,
			ReadTimeout:       DefaultReadTimeout,
			WriteTimeout:      DefaultWriteTimeout,
		},
		Database: DatabaseConfig{Path: DefaultDatabasePath},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "text",
			File:   DefaultLogFile,
		},
		Tailscale: TailscaleConfig{Hostname: DefaultTailscaleHostname},
	}
}

// Load reads a configuration file from the given path on top of Default().
// Environment variables in the format ${VAR_NAME} are expanded.
// Duration strings are parsed into time.Duration values.
// Load does not validate: callers apply overrides first, then call Validate.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config file: %w", err)
	}
	return Parse(data)
}

// LoadOptional is Load, except a missing file yields Default().
func LoadOptional(path string) (*Config, error) {
	cfg, err := Load(path)
	if errors.Is(err, fs.ErrNotExist) {
		return Default(), nil
	}
	return cfg, err
}

// Parse decodes YAML config content on top of Default().
func Parse(data []byte) (*Config, error) {
	// Expand environment variables in the raw YAML content
	expandedData := expandEnvVars(string(data))

	cfg := Default()
	if err := yaml.Unmarshal([]byte(expandedData), cfg); err != nil {
		return nil, fmt.Errorf("parsing config file: %w", err)
	}

	if err := parseDurations(cfg); err != nil {
		return nil, fmt.Errorf("parsing durations: %w", err)
	}

	return cfg, nil
}

var envVarPattern = regexp.MustCompile(`\$\{([^}]+)\}`)

// expandEnvVars replaces ${VAR_NAME} patterns with the corresponding environment variable values.
// If the environment variable is not set, it is replaced with an empty string.
func expandEnvVars(s string) string {
	return envVarPattern.ReplaceAllStringFunc(s, func(match string) string {
		varName := envVarPattern.FindStringSubmatch(match)[1]
		return os.Getenv(varName)
	})
}

// ApplyEnv applies the WATCH_PATH and WATCH_PORT overrides using getenv.
func (c *Config) ApplyEnv(getenv func(string) string) error {
	if p := strings.TrimSpace(getenv("WATCH_PATH")); p != "" {
		c.Watch.Path = p
	}
	if raw := strings.TrimSpace(getenv("WATCH_PORT")); raw != "" {
		port, err := strconv.Atoi(raw)
		if err != nil {
			return fmt.Errorf("WATCH_PORT %q is not a number", raw)
		}
		c.Server.Port = port
	}
	return nil
}

// Validate checks that all required configuration fields are present and valid.
// Returns an error describing the first validation failure encountered.
func (c *Config) Validate() error {
	if c.Server.Port < 1 || c.Server.Port > 65535 {
		return fmt.Errorf("server.port %d out of range 1-65535", c.Server.Port)
	}

	if c.Watch.Path == "" {
		return fmt.Errorf("watch.path is required (or set WATCH_PATH / --repo-path)")
	}
	if c.Watch.Debounce < 0 {
		return fmt.Errorf("watch.debounce must not be negative")
	}

	timings := []struct {
		name string
		d    time.Duration
	}{
		{"agents.heartbeat_interval", c.Agents.HeartbeatInterval},
		{"agents.heartbeat_timeout", c.Agents.HeartbeatTimeout},
		{"agents.read_timeout", c.Agents.ReadTimeout},
		{"agents.write_timeout", c.Agents.WriteTimeout},
	}
	for _, tm := range timings {
		if tm.d <= 0 {
			return fmt.Errorf("%s must be positive", tm.name)
		}
	}
	if c.Agents.HeartbeatTimeout < c.Agents.HeartbeatInterval {
		return fmt.Errorf("agents.heartbeat_timeout (%s) must be at least agents.heartbeat_interval (%s)",
			c.Agents.HeartbeatTimeout, c.Agents.HeartbeatInterval)
	}

	switch c.Logging.Level {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("logging.level %q must be one of debug, info, warn, error", c.Logging.Level)
	}

	// Tailscale requires a hostname
	if c.Tailscale.Enabled && c.Tailscale.Hostname == "" {
		return fmt.Errorf("tailscale.hostname is required when tailscale is enabled")
	}

	return nil
}

// parseDurations converts the raw duration strings into time.Duration values
func parseDurations(cfg *Config) error {
	fields := []struct {
		name string
		raw  string
		dst  *time.Duration
	}{
		{"watch.debounce", cfg.Watch.DebounceRaw, &cfg.Watch.Debounce},
		{"heartbeat_interval", cfg.Agents.HeartbeatIntervalRaw, &cfg.Agents.HeartbeatInterval},
		{"heartbeat_timeout", cfg.Agents.HeartbeatTimeoutRaw, &cfg.Agents.HeartbeatTimeout},
		{"read_timeout", cfg.Agents.ReadTimeoutRaw, &cfg.Agents.ReadTimeout},
		{"write_timeout", cfg.Agents.WriteTimeoutRaw, &cfg.Agents.WriteTimeout},
	}

	for _, f := range fields {
		if f.raw == "" {
			continue
		}
		d, err := time.ParseDuration(f.raw)
		if err != nil {
			return fmt.Errorf("parsing %s %q: %w", f.name, f.raw, err)
		}
		*f.dst = d
	}
	return nil
}
