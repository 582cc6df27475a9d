// ABOUTME: Tests for agent configuration loading
// ABOUTME: Covers TOML parsing, defaults, env overrides, and hostname resolution

package config

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestLoadAgent_EmptyPathUsesDefaults(t *testing.T) {
	cfg, err := LoadAgent("")
	if err != nil {
		t.Fatalf("LoadAgent() error = %v", err)
	}
	if cfg.MasterAddr != DefaultMasterAddr {
		t.Errorf("MasterAddr = %q, want %q", cfg.MasterAddr, DefaultMasterAddr)
	}
	if cfg.ReconnectDelay != 5*time.Second {
		t.Errorf("ReconnectDelay = %v, want 5s", cfg.ReconnectDelay)
	}
	if cfg.ReadTimeout != 10*time.Second {
		t.Errorf("ReadTimeout = %v, want 10s", cfg.ReadTimeout)
	}
	if err := cfg.Validate(); err != nil {
		t.Errorf("Validate() error = %v", err)
	}
}

func TestLoadAgent_TOML(t *testing.T) {
	t.Setenv("NETSYNC_TEST_MASTER", "10.1.2.3:9000")
	path := filepath.Join(t.TempDir(), "agent.toml")
	content := `
master_addr = "${NETSYNC_TEST_MASTER}"
hostname = "web-01"
reconnect_delay = "2s"
read_timeout = "15s"
hook_timeout = "30s"
on_update = "git -C /srv/app pull"
on_custom = "/usr/local/bin/handle"

[logging]
level = "debug"
`
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatalf("failed to write test config: %v", err)
	}

	cfg, err := LoadAgent(path)
	if err != nil {
		t.Fatalf("LoadAgent() error = %v", err)
	}

	if cfg.MasterAddr != "10.1.2.3:9000" {
		t.Errorf("MasterAddr = %q, want %q", cfg.MasterAddr, "10.1.2.3:9000")
	}
	if cfg.Hostname != "web-01" {
		t.Errorf("Hostname = %q, want %q", cfg.Hostname, "web-01")
	}
	if cfg.ReconnectDelay != 2*time.Second {
		t.Errorf("ReconnectDelay = %v, want 2s", cfg.ReconnectDelay)
	}
	if cfg.ReadTimeout != 15*time.Second {
		t.Errorf("ReadTimeout = %v, want 15s", cfg.ReadTimeout)
	}
	if cfg.HookTimeout != 30*time.Second {
		t.Errorf("HookTimeout = %v, want 30s", cfg.HookTimeout)
	}
	if cfg.OnUpdate != "git -C /srv/app pull" {
		t.Errorf("OnUpdate = %q", cfg.OnUpdate)
	}
	if cfg.OnCustom != "/usr/local/bin/handle" {
		t.Errorf("OnCustom = %q", cfg.OnCustom)
	}
	if cfg.Logging.Level != "debug" {
		t.Errorf("Logging.Level = %q, want debug", cfg.Logging.Level)
	}
	if cfg.Logging.Format != "text" {
		t.Errorf("Logging.Format = %q, want default text", cfg.Logging.Format)
	}
}

func TestLoadAgent_Errors(t *testing.T) {
	dir := t.TempDir()

	if _, err := LoadAgent(filepath.Join(dir, "missing.toml")); err == nil {
		t.Error("LoadAgent() expected error for missing file")
	}

	bad := filepath.Join(dir, "bad.toml")
	if err := os.WriteFile(bad, []byte("master_addr = \n"), 0644); err != nil {
		t.Fatal(err)
	}
	if _, err := LoadAgent(bad); err == nil {
		t.Error("LoadAgent() expected error for invalid TOML")
	}

	dur := filepath.Join(dir, "dur.toml")
	if err := os.WriteFile(dur, []byte("reconnect_delay = \"later\"\n"), 0644); err != nil {
		t.Fatal(err)
	}
	if _, err := LoadAgent(dur); err == nil {
		t.Error("LoadAgent() expected error for invalid duration")
	}
}

func TestAgentApplyEnv(t *testing.T) {
	cfg := DefaultAgent()
	env := map[string]string{"MASTER_ADDR": "192.168.1.100:9000", "CLIENT_HOSTNAME": "edge-3"}
	cfg.ApplyEnv(func(k string) string { return env[k] })

	if cfg.MasterAddr != "192.168.1.100:9000" {
		t.Errorf("MasterAddr = %q", cfg.MasterAddr)
	}
	if cfg.Hostname != "edge-3" {
		t.Errorf("Hostname = %q", cfg.Hostname)
	}

	// Empty values leave the current settings alone.
	cfg.ApplyEnv(func(string) string { return "" })
	if cfg.Hostname != "edge-3" {
		t.Errorf("Hostname = %q after empty env, want unchanged", cfg.Hostname)
	}
}

func TestResolveHostname(t *testing.T) {
	tests := []struct {
		name       string
		configured string
		osName     string
		osErr      error
		want       string
	}{
		{"configured wins", "web-01", "box", nil, "web-01"},
		{"falls back to os", "", "box", nil, "box"},
		{"os error", "", "", errors.New("no hostname"), "unknown"},
		{"os empty", "", "", nil, "unknown"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := DefaultAgent()
			cfg.Hostname = tt.configured
			cfg.ResolveHostname(func() (string, error) { return tt.osName, tt.osErr })
			if cfg.Hostname != tt.want {
				t.Errorf("Hostname = %q, want %q", cfg.Hostname, tt.want)
			}
		})
	}
}

func TestAgentValidate(t *testing.T) {
	cfg := DefaultAgent()
	cfg.MasterAddr = "no-port"
	if err := cfg.Validate(); err == nil {
		t.Error("Validate() expected error for address without port")
	}

	cfg = DefaultAgent()
	cfg.ReconnectDelay = 0
	if err := cfg.Validate(); err == nil {
		t.Error("Validate() expected error for zero reconnect delay")
	}
}
