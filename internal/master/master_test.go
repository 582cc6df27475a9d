// ABOUTME: Tests for master assembly: file changes reach connected agents end to end.
// ABOUTME: Runs on loopback listeners with a temp watch directory and in-memory ledger.

package master

import (
	"context"
	"io"
	"log/slog"
	"net"
	"net/http"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/2389/netsync/internal/command"
	"github.com/2389/netsync/internal/config"
	"github.com/2389/netsync/internal/store"
)

func testConfig(t *testing.T) *config.Config {
	t.Helper()
	cfg := config.Default()
	cfg.Watch.Path = t.TempDir()
	cfg.Watch.Debounce = 50 * time.Millisecond
	cfg.Database.Path = filepath.Join(t.TempDir(), "events.db")
	cfg.Logging.File = ""
	return cfg
}

func freeAddr(t *testing.T) string {
	t.Helper()
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	addr := ln.Addr().String()
	require.NoError(t, ln.Close())
	return addr
}

type running struct {
	master *Master
	addr   string
	cancel context.CancelFunc
	done   chan error
}

func start(t *testing.T, cfg *config.Config) *running {
	t.Helper()
	m, err := New(cfg, slog.New(slog.DiscardHandler))
	require.NoError(t, err)

	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	r := &running{master: m, addr: ln.Addr().String(), cancel: cancel, done: make(chan error, 1)}
	go func() { r.done <- m.RunWithListener(ctx, ln) }()
	t.Cleanup(func() {
		cancel()
		select {
		case <-r.done:
		case <-time.After(5 * time.Second):
			t.Error("master did not stop")
		}
	})
	return r
}

// readUntil reads frames until one of the wanted kind arrives.
func readUntil(t *testing.T, conn net.Conn, kind command.Kind) command.Command {
	t.Helper()
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(5*time.Second)))
	for {
		body, err := command.ReadFrame(conn)
		require.NoError(t, err)
		cmd, err := command.Decode(body)
		require.NoError(t, err)
		if cmd.Kind() == kind {
			return cmd
		}
	}
}

func TestNew_MissingWatchPath(t *testing.T) {
	cfg := testConfig(t)
	cfg.Watch.Path = filepath.Join(t.TempDir(), "nope")

	_, err := New(cfg, nil)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "does not exist")
}

func TestNew_LedgerDisabled(t *testing.T) {
	cfg := testConfig(t)
	cfg.Database.Path = ""

	m, err := New(cfg, nil)
	require.NoError(t, err)
	defer m.Shutdown(context.Background())

	assert.Nil(t, m.History())
}

func TestFileChangeReachesAgent(t *testing.T) {
	cfg := testConfig(t)
	r := start(t, cfg)

	conn, err := net.Dial("tcp", r.addr)
	require.NoError(t, err)
	defer conn.Close()
	require.NoError(t, command.WriteCommand(conn, command.Identify("web-1")))

	require.Eventually(t, func() bool {
		_, ok := r.master.Hub().Registry().FindByHostname("web-1")
		return ok
	}, 2*time.Second, 10*time.Millisecond)

	require.NoError(t, os.WriteFile(filepath.Join(cfg.Watch.Path, "app.conf"), []byte("v2"), 0o644))

	cmd := readUntil(t, conn, command.KindUpdate)
	assert.Equal(t, command.KindUpdate, cmd.Kind())

	require.Eventually(t, func() bool {
		events, err := r.master.History().Recent(context.Background(), 10)
		if err != nil {
			return false
		}
		for _, e := range events {
			if e.Kind == store.EventBroadcast {
				return true
			}
		}
		return false
	}, 2*time.Second, 20*time.Millisecond)
}

func TestStatusEndpoint(t *testing.T) {
	cfg := testConfig(t)
	cfg.Server.HealthAddr = freeAddr(t)
	start(t, cfg)

	var resp *http.Response
	require.Eventually(t, func() bool {
		var err error
		resp, err = http.Get("http://" + cfg.Server.HealthAddr + "/health")
		return err == nil
	}, 2*time.Second, 20*time.Millisecond)
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "OK", string(body))
}

func TestRun_CancelReturnsNil(t *testing.T) {
	cfg := testConfig(t)
	r := start(t, cfg)

	conn, err := net.Dial("tcp", r.addr)
	require.NoError(t, err)
	defer conn.Close()

	r.cancel()
	select {
	case err := <-r.done:
		assert.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("master did not stop")
	}
	r.done <- nil

	// The agent socket is closed during shutdown.
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
	_, err = command.ReadFrame(conn)
	assert.Error(t, err)
}

func TestRunWithListener_StatusBindFailure(t *testing.T) {
	taken, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	defer taken.Close()

	cfg := testConfig(t)
	cfg.Server.HealthAddr = taken.Addr().String()
	m, err := New(cfg, nil)
	require.NoError(t, err)

	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)

	err = m.RunWithListener(context.Background(), ln)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "health address")
}

func TestResolveTailscaleAuthKey(t *testing.T) {
	t.Setenv("TS_AUTHKEY", "")
	_, err := resolveTailscaleAuthKey("")
	assert.Error(t, err)

	key, err := resolveTailscaleAuthKey("tskey-config")
	require.NoError(t, err)
	assert.Equal(t, "tskey-config", key)

	t.Setenv("TS_AUTHKEY", "tskey-env")
	key, err = resolveTailscaleAuthKey("")
	require.NoError(t, err)
	assert.Equal(t, "tskey-env", key)
}

func TestResolveTailscaleStateDir(t *testing.T) {
	dir, err := resolveTailscaleStateDir("/var/lib/netsync/ts")
	require.NoError(t, err)
	assert.Equal(t, "/var/lib/netsync/ts", dir)

	t.Setenv("HOME", "/home/ops")
	dir, err = resolveTailscaleStateDir("")
	require.NoError(t, err)
	assert.Equal(t, filepath.Join("/home/ops", ".local", "share", "netsync", "tailscale"), dir)
}
