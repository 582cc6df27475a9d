// ABOUTME: Hub accepts agent connections and runs one receive loop per connection.
// ABOUTME: It wires the registry, heartbeat, dispatcher, and event ledger together.

package hub

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/2389/netsync/internal/agent"
	"github.com/2389/netsync/internal/command"
	"github.com/2389/netsync/internal/store"
)

// Defaults for Config fields left at zero.
const (
	DefaultHeartbeatInterval = 5 * time.Second
	DefaultHeartbeatTimeout  = 10 * time.Second
	DefaultReadTimeout       = 10 * time.Second
	DefaultWriteTimeout      = agent.DefaultWriteTimeout
)

// ledgerTimeout bounds a single ledger write so a slow disk never stalls a
// receive loop or the heartbeat.
const ledgerTimeout = 2 * time.Second

// maxAcceptDelay caps the backoff after accept errors.
const maxAcceptDelay = time.Second

// Config holds the liveness and I/O timings for a Hub.
type Config struct {
	HeartbeatInterval time.Duration
	HeartbeatTimeout  time.Duration
	ReadTimeout       time.Duration
	WriteTimeout      time.Duration
}

// withDefaults fills zero fields with the package defaults.
func (c Config) withDefaults() Config {
	if c.HeartbeatInterval <= 0 {
		c.HeartbeatInterval = DefaultHeartbeatInterval
	}
	if c.HeartbeatTimeout <= 0 {
		c.HeartbeatTimeout = DefaultHeartbeatTimeout
	}
	if c.ReadTimeout <= 0 {
		c.ReadTimeout = DefaultReadTimeout
	}
	if c.WriteTimeout <= 0 {
		c.WriteTimeout = DefaultWriteTimeout
	}
	return c
}

// Hub is the master's connection server.
type Hub struct {
	cfg        Config
	registry   *agent.Manager
	ledger     store.Recorder
	heartbeat  *Heartbeat
	dispatcher *Dispatcher
	logger     *slog.Logger

	// wg tracks receive loops so Serve can wait for them on shutdown.
	wg sync.WaitGroup

	now func() time.Time
}

// New creates a Hub around an existing registry. A nil ledger disables
// event recording.
func New(cfg Config, registry *agent.Manager, ledger store.Recorder, logger *slog.Logger) *Hub {
	if logger == nil {
		logger = slog.Default()
	}
	if ledger == nil {
		ledger = store.Nop{}
	}
	cfg = cfg.withDefaults()

	h := &Hub{
		cfg:      cfg,
		registry: registry,
		ledger:   ledger,
		logger:   logger.With("component", "hub"),
		now:      time.Now,
	}
	h.heartbeat = NewHeartbeat(registry, cfg.HeartbeatInterval, cfg.HeartbeatTimeout, ledger, logger)
	h.dispatcher = NewDispatcher(registry, ledger, logger)
	return h
}

// Registry returns the registry the hub registers agents in.
func (h *Hub) Registry() *agent.Manager {
	return h.registry
}

// Dispatcher returns the hub's broadcast/unicast dispatcher.
func (h *Hub) Dispatcher() *Dispatcher {
	return h.dispatcher
}

// Heartbeat returns the hub's heartbeat cycle.
func (h *Hub) Heartbeat() *Heartbeat {
	return h.heartbeat
}

// OnChange is the single entry point for "something changed": it broadcasts
// Update to every registered agent. path is only used for logging.
func (h *Hub) OnChange(ctx context.Context, path string) BroadcastResult {
	h.logger.Info("change detected, notifying agents", "path", path)
	res, err := h.dispatcher.Broadcast(ctx)
	if err != nil {
		h.logger.Error("broadcast failed", "error", err)
	}
	return res
}

// Run starts the heartbeat and serves ln until ctx is canceled.
func (h *Hub) Run(ctx context.Context, ln net.Listener) error {
	hbCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	hbDone := make(chan struct{})
	go func() {
		defer close(hbDone)
		h.heartbeat.Run(hbCtx)
	}()

	err := h.Serve(ctx, ln)
	cancel()
	<-hbDone
	return err
}

// Serve accepts connections on ln until ctx is canceled, registering each
// one and starting its receive loop. It closes ln when ctx is done, then
// closes every registered connection and waits for receive loops to exit.
// Returns nil after ctx cancellation.
func (h *Hub) Serve(ctx context.Context, ln net.Listener) error {
	h.logger.Info("listening for agents", "addr", ln.Addr().String())

	stop := context.AfterFunc(ctx, func() {
		_ = ln.Close()
	})
	defer stop()
	defer h.closeAll()

	var tempDelay time.Duration
	for {
		conn, err := ln.Accept()
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			if errors.Is(err, net.ErrClosed) {
				return fmt.Errorf("accepting connections: %w", err)
			}

			// Back off the way net/http does. Temporary errors (e.g. EMFILE)
			// are expected to clear; anything else is logged louder but still
			// retried with the same delay so a persistent failure cannot spin.
			if tempDelay == 0 {
				tempDelay = 5 * time.Millisecond
			} else {
				tempDelay *= 2
			}
			if tempDelay > maxAcceptDelay {
				tempDelay = maxAcceptDelay
			}
			if ne, ok := err.(interface{ Temporary() bool }); ok && ne.Temporary() {
				h.logger.Warn("accept error, retrying", "error", err, "delay", tempDelay)
			} else {
				h.logger.Error("accept error, retrying", "error", err, "delay", tempDelay)
			}
			select {
			case <-time.After(tempDelay):
			case <-ctx.Done():
				return nil
			}
			continue
		}
		tempDelay = 0

		h.handleConn(ctx, conn)
	}
}

// handleConn registers conn and starts its receive loop.
func (h *Hub) handleConn(ctx context.Context, conn net.Conn) {
	c := agent.NewConnection(conn, h.cfg.WriteTimeout)
	now := h.now()
	rec := &agent.Record{
		ID:            c.RemoteAddr(),
		SessionID:     uuid.New().String(),
		Conn:          c,
		LastHeartbeat: now,
		ConnectedAt:   now,
	}

	if err := h.registry.Insert(rec); err != nil {
		h.logger.Warn("rejecting connection", "addr", rec.ID, "error", err)
		_ = c.Close()
		return
	}
	h.record(&store.Event{Kind: store.EventConnect, AgentAddr: rec.ID, Detail: rec.SessionID})

	h.wg.Add(1)
	go h.receiveLoop(ctx, rec)
}

// receiveLoop reads frames from one agent until the connection ends.
func (h *Hub) receiveLoop(ctx context.Context, rec *agent.Record) {
	defer h.wg.Done()

	logger := h.logger.With("addr", rec.ID, "session_id", rec.SessionID)
	for {
		body, err := rec.Conn.ReadFrame(h.cfg.ReadTimeout)
		if err != nil {
			var reason string
			switch {
			case errors.Is(err, io.EOF):
				reason = "closed by agent"
				logger.Info("connection closed by agent")
			case ctx.Err() != nil:
				reason = "shutdown"
			default:
				reason = err.Error()
				logger.Warn("read failed, dropping agent", "error", err)
			}
			h.drop(rec, reason)
			return
		}

		cmd, err := command.Decode(body)
		if err != nil {
			logger.Warn("dropping malformed frame", "error", err, "bytes", len(body))
			continue
		}
		h.handleCommand(rec, cmd, logger)
	}
}

// handleCommand applies one decoded command from an agent.
func (h *Hub) handleCommand(rec *agent.Record, cmd command.Command, logger *slog.Logger) {
	switch {
	case cmd.Kind() == command.KindIdentify:
		h.identify(rec, cmd.Hostname(), logger)
	case cmd.IsPong():
		if h.registry.Touch(rec.ID, h.now()) {
			logger.Debug("heartbeat acknowledged")
		}
	default:
		logger.Info("unhandled command from agent", "command", cmd.String())
	}
}

// identify binds hostname to rec unless it already has one.
func (h *Hub) identify(rec *agent.Record, hostname string, logger *slog.Logger) {
	bound, err := h.registry.SetHostname(rec.ID, hostname)
	switch {
	case errors.Is(err, agent.ErrHostnameBound):
		logger.Warn("ignoring repeated identify", "hostname", bound, "announced", hostname)
		return
	case errors.Is(err, agent.ErrEmptyHostname):
		logger.Warn("ignoring identify with empty hostname")
		return
	case err != nil:
		logger.Debug("identify for unregistered agent", "hostname", hostname)
		return
	}

	if other, ok := h.registry.FindByHostname(hostname); ok && other.ID != rec.ID {
		logger.Warn("hostname already announced by another agent", "hostname", hostname, "other_addr", other.ID)
	}
	logger.Info("agent identified", "hostname", hostname)
	h.record(&store.Event{Kind: store.EventIdentify, AgentAddr: rec.ID, Hostname: hostname})
}

// drop removes rec if it is still registered and closes its socket.
func (h *Hub) drop(rec *agent.Record, reason string) {
	removed := h.registry.RemoveRecords([]*agent.Record{rec})
	_ = rec.Conn.Close()
	if len(removed) == 0 {
		// Already evicted by the heartbeat.
		return
	}
	h.record(&store.Event{
		Kind:      store.EventDisconnect,
		AgentAddr: rec.ID,
		Hostname:  removed[0].Hostname,
		Detail:    reason,
	})
}

// closeAll closes every registered connection and waits for receive loops.
func (h *Hub) closeAll() {
	var conns []*agent.Connection
	h.registry.ForEachMut(func(rec *agent.Record) {
		conns = append(conns, rec.Conn)
	})
	for _, c := range conns {
		_ = c.Close()
	}
	h.wg.Wait()
}

func (h *Hub) record(e *store.Event) {
	recordEvent(h.ledger, e, h.logger)
}

// recordEvent appends e to the ledger, logging failures. Ledger errors are
// never fatal.
func recordEvent(ledger store.Recorder, e *store.Event, logger *slog.Logger) {
	ctx, cancel := context.WithTimeout(context.Background(), ledgerTimeout)
	defer cancel()
	if err := ledger.Append(ctx, e); err != nil {
		logger.Warn("failed to record fleet event", "kind", e.Kind, "error", err)
	}
}
