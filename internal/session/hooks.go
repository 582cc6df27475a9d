// ABOUTME: ExecHandler runs configured shell hooks when the master pushes Update or Custom.
// ABOUTME: Without hooks it only logs, which is the plain agent behavior.

package session

import (
	"context"
	"fmt"
	"log/slog"
	"os/exec"
	"strings"
	"time"
)

// DefaultHookTimeout bounds a single hook run.
const DefaultHookTimeout = time.Minute

// ExecHandler runs shell commands via /bin/sh -c.
type ExecHandler struct {
	// UpdateCmd runs on every Update. Empty means log only.
	UpdateCmd string

	// CustomCmd runs on every Custom, with the payload passed as the last
	// argument ("$1"). Empty means log only.
	CustomCmd string

	Timeout time.Duration
	Logger  *slog.Logger
}

var _ Handler = (*ExecHandler)(nil)

// OnUpdate runs UpdateCmd.
func (h *ExecHandler) OnUpdate(ctx context.Context) error {
	if h.UpdateCmd == "" {
		h.logger().Info("update received (no on_update hook configured)")
		return nil
	}
	return h.run(ctx, "on_update", h.UpdateCmd)
}

// OnCustom runs CustomCmd with data appended as its final argument.
func (h *ExecHandler) OnCustom(ctx context.Context, data string) error {
	if h.CustomCmd == "" {
		h.logger().Info("custom command received (no on_custom hook configured)", "data", data)
		return nil
	}
	return h.run(ctx, "on_custom", h.CustomCmd+` "$1"`, data)
}

func (h *ExecHandler) run(ctx context.Context, name, script string, args ...string) error {
	timeout := h.Timeout
	if timeout <= 0 {
		timeout = DefaultHookTimeout
	}
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	// $0 is the hook name, so positional args start at $1.
	argv := append([]string{"-c", script, name}, args...)
	cmd := exec.CommandContext(ctx, "/bin/sh", argv...)
	// Children that inherit the output pipe must not outlive the timeout.
	cmd.WaitDelay = time.Second

	start := time.Now()
	out, err := cmd.CombinedOutput()
	output := strings.TrimSpace(string(out))
	if err != nil {
		return fmt.Errorf("%s hook: %w (output: %q)", name, err, output)
	}

	h.logger().Info("hook finished", "hook", name, "duration", time.Since(start).Round(time.Millisecond), "output", output)
	return nil
}

func (h *ExecHandler) logger() *slog.Logger {
	if h.Logger == nil {
		return slog.Default()
	}
	return h.Logger
}
