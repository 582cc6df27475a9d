// ABOUTME: Configuration loading for netsync-agent
// ABOUTME: Optional TOML file plus MASTER_ADDR / CLIENT_HOSTNAME environment overrides

package config

import (
	"fmt"
	"net"
	"os"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
)

// Agent defaults.
const (
	DefaultMasterAddr     = "127.0.0.1:9000"
	DefaultReconnectDelay = 5 * time.Second
	DefaultHookTimeout    = time.Minute
	unknownHostname       = "unknown"
)

// AgentConfig represents the netsync-agent configuration
type AgentConfig struct {
	MasterAddr string `toml:"master_addr"`
	Hostname   string `toml:"hostname"`

	// OnUpdate is a shell command run for every Update.
	OnUpdate string `toml:"on_update"`
	// OnCustom is a shell command run for every Custom, payload appended.
	OnCustom string `toml:"on_custom"`

	ReconnectDelay time.Duration `toml:"-"`
	ReadTimeout    time.Duration `toml:"-"`
	HookTimeout    time.Duration `toml:"-"`

	ReconnectDelayRaw string `toml:"reconnect_delay"`
	ReadTimeoutRaw    string `toml:"read_timeout"`
	HookTimeoutRaw    string `toml:"hook_timeout"`

	Logging LoggingConfig `toml:"logging"`
}

// DefaultAgent returns the agent configuration used without a file.
func DefaultAgent() *AgentConfig {
	return &AgentConfig{
		MasterAddr:     DefaultMasterAddr,
		ReconnectDelay: DefaultReconnectDelay,
		ReadTimeout:    DefaultReadTimeout,
		HookTimeout:    DefaultHookTimeout,
		Logging: LoggingConfig{
			Level:  "info",
			Format: "text",
		},
	}
}

// LoadAgent reads the TOML file at path on top of DefaultAgent(). An empty
// path returns the defaults.
func LoadAgent(path string) (*AgentConfig, error) {
	cfg := DefaultAgent()
	if path == "" {
		return cfg, nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config file: %w", err)
	}

	// Expand environment variables (${VAR} syntax)
	expanded := expandEnvVars(string(data))

	if _, err := toml.Decode(expanded, cfg); err != nil {
		return nil, fmt.Errorf("parsing config: %w", err)
	}

	if err := cfg.parseDurations(); err != nil {
		return nil, fmt.Errorf("parsing durations: %w", err)
	}
	return cfg, nil
}

func (c *AgentConfig) parseDurations() error {
	fields := []struct {
		name string
		raw  string
		dst  *time.Duration
	}{
		{"reconnect_delay", c.ReconnectDelayRaw, &c.ReconnectDelay},
		{"read_timeout", c.ReadTimeoutRaw, &c.ReadTimeout},
		{"hook_timeout", c.HookTimeoutRaw, &c.HookTimeout},
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

// ApplyEnv applies MASTER_ADDR and CLIENT_HOSTNAME using getenv.
func (c *AgentConfig) ApplyEnv(getenv func(string) string) {
	if v := strings.TrimSpace(getenv("MASTER_ADDR")); v != "" {
		c.MasterAddr = v
	}
	if v := strings.TrimSpace(getenv("CLIENT_HOSTNAME")); v != "" {
		c.Hostname = v
	}
}

// ResolveHostname fills an empty Hostname from the OS, falling back to
// "unknown".
func (c *AgentConfig) ResolveHostname(osHostname func() (string, error)) {
	if c.Hostname != "" {
		return
	}
	name, err := osHostname()
	if err != nil || name == "" {
		c.Hostname = unknownHostname
		return
	}
	c.Hostname = name
}

// Validate checks the agent configuration.
func (c *AgentConfig) Validate() error {
	if c.MasterAddr == "" {
		return fmt.Errorf("master_addr is required")
	}
	if _, _, err := net.SplitHostPort(c.MasterAddr); err != nil {
		return fmt.Errorf("master_addr %q must be host:port: %w", c.MasterAddr, err)
	}
	if c.ReconnectDelay <= 0 {
		return fmt.Errorf("reconnect_delay must be positive")
	}
	if c.ReadTimeout <= 0 {
		return fmt.Errorf("read_timeout must be positive")
	}
	if c.HookTimeout <= 0 {
		return fmt.Errorf("hook_timeout must be positive")
	}
	return nil
}
