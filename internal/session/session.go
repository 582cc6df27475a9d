// ABOUTME: Agent-side session: dial the master, identify, answer pings, and dispatch updates.
// ABOUTME: Reconnects after a fixed delay until the context is canceled.

package session

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"sync"
	"time"

	"github.com/2389/netsync/internal/command"
)

// Defaults for Config fields left at zero.
const (
	DefaultReconnectDelay = 5 * time.Second
	DefaultReadTimeout    = 10 * time.Second
	DefaultWriteTimeout   = 2 * time.Second
	DefaultDialTimeout    = 5 * time.Second
)

// handlerQueueSize bounds pending Update/Custom work.
const handlerQueueSize = 64

// Handler reacts to commands pushed by the master.
type Handler interface {
	OnUpdate(ctx context.Context) error
	OnCustom(ctx context.Context, data string) error
}

// Config configures a Session.
type Config struct {
	MasterAddr     string
	Hostname       string
	ReconnectDelay time.Duration
	ReadTimeout    time.Duration
	WriteTimeout   time.Duration
	DialTimeout    time.Duration
}

func (c Config) withDefaults() Config {
	if c.ReconnectDelay <= 0 {
		c.ReconnectDelay = DefaultReconnectDelay
	}
	if c.ReadTimeout <= 0 {
		c.ReadTimeout = DefaultReadTimeout
	}
	if c.WriteTimeout <= 0 {
		c.WriteTimeout = DefaultWriteTimeout
	}
	if c.DialTimeout <= 0 {
		c.DialTimeout = DefaultDialTimeout
	}
	return c
}

// Session maintains the agent's connection to the master.
type Session struct {
	cfg     Config
	handler Handler
	logger  *slog.Logger
}

// New creates a session. handler receives Update and Custom commands.
func New(cfg Config, handler Handler, logger *slog.Logger) *Session {
	if logger == nil {
		logger = slog.Default()
	}
	return &Session{
		cfg:     cfg.withDefaults(),
		handler: handler,
		logger:  logger.With("component", "session", "master", cfg.MasterAddr),
	}
}

// Run connects and reconnects until ctx is canceled. It returns nil on
// cancellation; connection failures are logged and retried.
// Update and Custom commands are handled by one worker that outlives
// individual connections, so a slow hook never delays reconnecting.
func (s *Session) Run(ctx context.Context) error {
	jobs := make(chan command.Command, handlerQueueSize)
	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		s.runHandlers(ctx, jobs)
	}()
	defer func() {
		close(jobs)
		wg.Wait()
	}()

	for {
		err := s.runOnce(ctx, jobs)
		if ctx.Err() != nil {
			s.logger.Info("session stopped")
			return nil
		}
		if err != nil {
			s.logger.Warn("connection lost", "error", err, "retry_in", s.cfg.ReconnectDelay)
		} else {
			s.logger.Info("master closed connection", "retry_in", s.cfg.ReconnectDelay)
		}

		select {
		case <-ctx.Done():
			s.logger.Info("session stopped")
			return nil
		case <-time.After(s.cfg.ReconnectDelay):
		}
	}
}

// runOnce handles a single connection. Returns nil when the master closes
// the connection cleanly.
func (s *Session) runOnce(ctx context.Context, jobs chan<- command.Command) error {
	dialer := net.Dialer{Timeout: s.cfg.DialTimeout}
	conn, err := dialer.DialContext(ctx, "tcp", s.cfg.MasterAddr)
	if err != nil {
		return fmt.Errorf("dialing master: %w", err)
	}
	defer conn.Close()

	stop := context.AfterFunc(ctx, func() {
		_ = conn.Close()
	})
	defer stop()

	s.logger.Info("connected to master", "local_addr", conn.LocalAddr().String())

	if err := s.send(conn, command.Identify(s.cfg.Hostname)); err != nil {
		return fmt.Errorf("sending identify: %w", err)
	}
	s.logger.Info("identified", "hostname", s.cfg.Hostname)

	for {
		if err := conn.SetReadDeadline(time.Now().Add(s.cfg.ReadTimeout)); err != nil {
			return err
		}
		body, err := command.ReadFrame(conn)
		if err != nil {
			if errors.Is(err, io.EOF) {
				return nil
			}
			return fmt.Errorf("reading from master: %w", err)
		}

		cmd, err := command.Decode(body)
		if err != nil {
			s.logger.Warn("dropping malformed frame", "error", err, "bytes", len(body))
			continue
		}

		switch cmd.Kind() {
		case command.KindPing:
			if err := s.send(conn, command.Pong()); err != nil {
				return fmt.Errorf("sending heartbeat reply: %w", err)
			}
			s.logger.Debug("heartbeat answered")
		case command.KindUpdate, command.KindCustom:
			select {
			case jobs <- cmd:
			default:
				s.logger.Warn("handler queue full, dropping command", "command", cmd.String())
			}
		default:
			s.logger.Info("ignoring command", "command", cmd.String())
		}
	}
}

// runHandlers feeds queued commands to the handler one at a time. After
// ctx is canceled, remaining queued commands are discarded.
func (s *Session) runHandlers(ctx context.Context, jobs <-chan command.Command) {
	for cmd := range jobs {
		if ctx.Err() != nil {
			continue
		}
		var err error
		switch cmd.Kind() {
		case command.KindUpdate:
			s.logger.Info("update received from master")
			err = s.handler.OnUpdate(ctx)
		case command.KindCustom:
			s.logger.Info("custom command received", "data", cmd.Data())
			err = s.handler.OnCustom(ctx, cmd.Data())
		}
		if err != nil {
			s.logger.Error("handler failed", "command", cmd.String(), "error", err)
		}
	}
}

func (s *Session) send(conn net.Conn, cmd command.Command) error {
	if err := conn.SetWriteDeadline(time.Now().Add(s.cfg.WriteTimeout)); err != nil {
		return err
	}
	return command.WriteCommand(conn, cmd)
}
