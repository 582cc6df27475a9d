// ABOUTME: Master orchestrator that wires the hub, watcher, ledger, and status servers
// ABOUTME: Manages listener setup (TCP or tailnet) and the graceful shutdown sequence

package master

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"os"
	"path/filepath"
	"strconv"
	"sync"
	"time"

	"tailscale.com/ipn/ipnstate"
	"tailscale.com/tsnet"

	"github.com/2389/netsync/internal/agent"
	"github.com/2389/netsync/internal/config"
	"github.com/2389/netsync/internal/hub"
	"github.com/2389/netsync/internal/status"
	"github.com/2389/netsync/internal/store"
	"github.com/2389/netsync/internal/watcher"
)

// Master orchestrates the netsync-master components.
type Master struct {
	config      *config.Config
	registry    *agent.Manager
	ledger      store.Ledger
	hasLedger   bool
	hub         *hub.Hub
	watcher     *watcher.Watcher
	httpServer  *http.Server
	grpcHealth  *status.GRPCServer
	tsnetServer *tsnet.Server
	logger      *slog.Logger
}

// initLedger opens the fleet event ledger, or returns store.Nop when
// database.path is empty.
func initLedger(cfg *config.Config) (store.Ledger, bool, error) {
	if cfg.Database.Path == "" {
		return store.Nop{}, false, nil
	}
	s, err := store.NewSQLiteStore(cfg.Database.Path)
	if err != nil {
		return nil, false, fmt.Errorf("initializing store: %w", err)
	}
	return s, true, nil
}

// New creates a Master from a validated configuration.
func New(cfg *config.Config, logger *slog.Logger) (*Master, error) {
	if logger == nil {
		logger = slog.Default()
	}

	ledger, hasLedger, err := initLedger(cfg)
	if err != nil {
		return nil, err
	}

	registry := agent.NewManager(logger.With("component", "registry"))
	h := hub.New(hub.Config{
		HeartbeatInterval: cfg.Agents.HeartbeatInterval,
		HeartbeatTimeout:  cfg.Agents.HeartbeatTimeout,
		ReadTimeout:       cfg.Agents.ReadTimeout,
		WriteTimeout:      cfg.Agents.WriteTimeout,
	}, registry, ledger, logger)

	w, err := watcher.New(cfg.Watch.Path, cfg.Watch.Debounce, func(ctx context.Context, path string) {
		h.OnChange(ctx, path)
	}, logger)
	if err != nil {
		_ = ledger.Close()
		return nil, err
	}

	m := &Master{
		config:    cfg,
		registry:  registry,
		ledger:    ledger,
		hasLedger: hasLedger,
		hub:       h,
		watcher:   w,
		logger:    logger.With("component", "master"),
	}

	if cfg.Server.HealthAddr != "" {
		mux := http.NewServeMux()
		var events status.EventLister
		if hasLedger {
			events = ledger
		}
		status.NewHandler(registry, events, logger).RegisterRoutes(mux)
		m.httpServer = &http.Server{
			Addr:              cfg.Server.HealthAddr,
			Handler:           mux,
			ReadHeaderTimeout: 10 * time.Second,
		}
	}
	if cfg.Server.GRPCHealthAddr != "" {
		m.grpcHealth = status.NewGRPCServer(logger)
	}

	return m, nil
}

// Hub returns the connection hub.
func (m *Master) Hub() *hub.Hub {
	return m.hub
}

// History returns the event ledger, or nil when it is disabled.
func (m *Master) History() store.Ledger {
	if !m.hasLedger {
		return nil
	}
	return m.ledger
}

// Run binds the agent port and serves until ctx is canceled.
// Returns nil on graceful shutdown, or an error if a server fails.
func (m *Master) Run(ctx context.Context) error {
	agentLn, err := m.setupAgentListener(ctx)
	if err != nil {
		m.closeComponents()
		return err
	}
	return m.RunWithListener(ctx, agentLn)
}

// RunWithListener serves agents on ln until ctx is canceled.
func (m *Master) RunWithListener(ctx context.Context, ln net.Listener) error {
	httpLn, grpcLn, err := m.setupStatusListeners()
	if err != nil {
		_ = ln.Close()
		m.closeComponents()
		return err
	}

	runCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	var wg sync.WaitGroup
	errCh := m.startServers(runCtx, &wg, ln, httpLn, grpcLn)
	serverErr := m.waitForShutdownSignal(ctx, errCh)

	// Stop the hub and watcher before tearing down the rest.
	cancel()
	wg.Wait()
	m.drainErrors(errCh)

	shutdownErr := m.gracefulShutdown()
	if serverErr != nil {
		return serverErr
	}
	return shutdownErr
}

// setupAgentListener binds the agent port on TCP or on the tailnet.
func (m *Master) setupAgentListener(ctx context.Context) (net.Listener, error) {
	if m.config.Tailscale.Enabled {
		return m.setupTailscaleListener(ctx)
	}

	addr := m.config.Server.ListenAddr()
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return nil, fmt.Errorf("listening on agent port %s: %w", addr, err)
	}
	return ln, nil
}

// setupStatusListeners binds the optional HTTP and gRPC status ports.
func (m *Master) setupStatusListeners() (httpLn, grpcLn net.Listener, err error) {
	if m.httpServer != nil {
		httpLn, err = net.Listen("tcp", m.config.Server.HealthAddr)
		if err != nil {
			return nil, nil, fmt.Errorf("listening on health address: %w", err)
		}
	}
	if m.grpcHealth != nil {
		grpcLn, err = net.Listen("tcp", m.config.Server.GRPCHealthAddr)
		if err != nil {
			if httpLn != nil {
				_ = httpLn.Close()
			}
			return nil, nil, fmt.Errorf("listening on gRPC health address: %w", err)
		}
	}
	return httpLn, grpcLn, nil
}

// startServers starts every server in its own goroutine, returning the error channel.
// Hub and watcher goroutines are tracked by wg; they stop when ctx is canceled.
func (m *Master) startServers(ctx context.Context, wg *sync.WaitGroup, agentLn, httpLn, grpcLn net.Listener) chan error {
	errCh := make(chan error, 4)

	wg.Add(2)
	go func() {
		defer wg.Done()
		if err := m.hub.Run(ctx, agentLn); err != nil {
			errCh <- fmt.Errorf("agent listener: %w", err)
		}
	}()
	go func() {
		defer wg.Done()
		if err := m.watcher.Run(ctx); err != nil {
			errCh <- fmt.Errorf("watcher: %w", err)
		}
	}()

	if httpLn != nil {
		go func() {
			m.logger.Info("HTTP status server listening", "addr", httpLn.Addr().String())
			if err := m.httpServer.Serve(httpLn); err != nil && !errors.Is(err, http.ErrServerClosed) {
				errCh <- fmt.Errorf("HTTP server: %w", err)
			}
		}()
	}
	if grpcLn != nil {
		go func() {
			m.logger.Info("gRPC health server listening", "addr", grpcLn.Addr().String())
			if err := m.grpcHealth.Server.Serve(grpcLn); err != nil {
				errCh <- fmt.Errorf("gRPC server: %w", err)
			}
		}()
	}

	return errCh
}

// waitForShutdownSignal waits for context cancellation or server error.
func (m *Master) waitForShutdownSignal(ctx context.Context, errCh chan error) error {
	select {
	case <-ctx.Done():
		m.logger.Info("context canceled, initiating shutdown")
		return nil
	case err := <-errCh:
		m.logger.Error("server error", "error", err)
		return err
	}
}

// drainErrors logs any errors left in the channel.
func (m *Master) drainErrors(errCh chan error) {
	for {
		select {
		case err := <-errCh:
			m.logger.Error("additional server error", "error", err)
		default:
			return
		}
	}
}

// gracefulShutdown performs shutdown with a fresh context and timeout.
// Uses context.Background() since the original context is already canceled.
func (m *Master) gracefulShutdown() error {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return m.Shutdown(ctx)
}

// resolveTailscaleStateDir returns the state directory, using default if not configured.
func resolveTailscaleStateDir(configured string) (string, error) {
	if configured != "" {
		return configured, nil
	}
	homeDir, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("cannot determine home directory for tailscale state (set tailscale.state_dir explicitly): %w", err)
	}
	return filepath.Join(homeDir, ".local", "share", "netsync", "tailscale"), nil
}

// resolveTailscaleAuthKey returns the auth key from config or environment.
func resolveTailscaleAuthKey(configured string) (string, error) {
	authKey := configured
	if authKey == "" {
		authKey = os.Getenv("TS_AUTHKEY")
	}
	if authKey == "" {
		return "", errors.New("tailscale auth key required: set tailscale.auth_key in config or TS_AUTHKEY environment variable")
	}
	return authKey, nil
}

// setupTailscaleListener starts a tsnet node and listens for agents on the tailnet.
func (m *Master) setupTailscaleListener(ctx context.Context) (net.Listener, error) {
	tsCfg := m.config.Tailscale

	stateDir, err := resolveTailscaleStateDir(tsCfg.StateDir)
	if err != nil {
		return nil, err
	}
	if err := os.MkdirAll(stateDir, 0700); err != nil {
		return nil, fmt.Errorf("creating tailscale state dir: %w", err)
	}

	authKey, err := resolveTailscaleAuthKey(tsCfg.AuthKey)
	if err != nil {
		return nil, err
	}

	m.tsnetServer = &tsnet.Server{
		Hostname:  tsCfg.Hostname,
		Dir:       stateDir,
		Ephemeral: tsCfg.Ephemeral,
		AuthKey:   authKey,
	}

	m.logger.Info("starting tailscale node", "hostname", tsCfg.Hostname, "state_dir", stateDir, "ephemeral", tsCfg.Ephemeral)
	st, err := m.tsnetServer.Up(ctx)
	if err != nil {
		_ = m.tsnetServer.Close()
		m.tsnetServer = nil
		return nil, fmt.Errorf("starting tailscale: %w", err)
	}
	m.logTailscaleStatus(tsCfg.Hostname, st)

	ln, err := m.tsnetServer.Listen("tcp", ":"+strconv.Itoa(m.config.Server.Port))
	if err != nil {
		_ = m.tsnetServer.Close()
		m.tsnetServer = nil
		return nil, fmt.Errorf("listening on tailscale agent port: %w", err)
	}
	return ln, nil
}

// logTailscaleStatus logs info about the tailscale node status.
func (m *Master) logTailscaleStatus(hostname string, st *ipnstate.Status) {
	var tsAddr, dnsName string
	if len(st.TailscaleIPs) > 0 {
		tsAddr = st.TailscaleIPs[0].String()
	} else {
		m.logger.Warn("tailscale node has no IP addresses assigned")
	}
	if st.Self != nil {
		dnsName = st.Self.DNSName
	}
	m.logger.Info("tailscale node ready", "hostname", hostname, "tailscale_ip", tsAddr, "dns_name", dnsName)
}

// appendCloseError appends an error with label if err is non-nil.
func appendCloseError(errs []error, label string, err error) []error {
	if err != nil {
		return append(errs, fmt.Errorf("%s: %w", label, err))
	}
	return errs
}

// closeComponents releases what New opened, for startup failures in Run.
func (m *Master) closeComponents() {
	_ = m.watcher.Close()
	_ = m.ledger.Close()
}

// Shutdown stops the status servers and releases resources.
// The hub must already have stopped (its context canceled).
func (m *Master) Shutdown(ctx context.Context) error {
	m.logger.Info("shutting down master")

	var errs []error
	if m.httpServer != nil {
		errs = appendCloseError(errs, "HTTP shutdown", m.httpServer.Shutdown(ctx))
	}
	if m.grpcHealth != nil {
		m.grpcHealth.Shutdown(ctx)
	}
	if m.tsnetServer != nil {
		errs = appendCloseError(errs, "tailscale shutdown", m.tsnetServer.Close())
	}
	errs = appendCloseError(errs, "watcher close", m.watcher.Close())
	errs = appendCloseError(errs, "store close", m.ledger.Close())

	if len(errs) > 0 {
		return errors.Join(errs...)
	}
	return nil
}
