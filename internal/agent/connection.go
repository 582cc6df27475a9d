// ABOUTME: Represents a single connected agent socket with bounded reads and serialized writes.
// ABOUTME: Every outbound send carries its own write deadline so one stuck peer cannot stall others.

package agent

import (
	"net"
	"sync"
	"time"

	"github.com/2389/netsync/internal/command"
)

// DefaultWriteTimeout bounds a single outbound send when none is configured.
const DefaultWriteTimeout = 2 * time.Second

// Connection wraps an accepted agent socket.
//
// Reads belong to the hub's receive loop for this connection. Writes may come
// from any goroutine (heartbeat, broadcast, unicast); they are serialized so
// frames never interleave on the wire.
type Connection struct {
	conn         net.Conn
	writeTimeout time.Duration

	sendMu    sync.Mutex
	closeOnce sync.Once
	closeErr  error
}

// NewConnection wraps conn. A non-positive writeTimeout uses DefaultWriteTimeout.
func NewConnection(conn net.Conn, writeTimeout time.Duration) *Connection {
	if writeTimeout <= 0 {
		writeTimeout = DefaultWriteTimeout
	}
	return &Connection{
		conn:         conn,
		writeTimeout: writeTimeout,
	}
}

// RemoteAddr returns the peer address, used as the connection identity.
func (c *Connection) RemoteAddr() string {
	if addr := c.conn.RemoteAddr(); addr != nil {
		return addr.String()
	}
	return "unknown"
}

// Send writes a pre-encoded frame to the agent within the write timeout.
func (c *Connection) Send(frame []byte) error {
	c.sendMu.Lock()
	defer c.sendMu.Unlock()

	if err := c.conn.SetWriteDeadline(time.Now().Add(c.writeTimeout)); err != nil {
		return err
	}
	_, err := c.conn.Write(frame)
	return err
}

// SendCommand encodes cmd and sends it as one frame.
func (c *Connection) SendCommand(cmd command.Command) error {
	frame, err := command.EncodeFrame(cmd)
	if err != nil {
		return err
	}
	return c.Send(frame)
}

// ReadFrame blocks for at most timeout waiting for the next frame body.
// A non-positive timeout disables the deadline.
func (c *Connection) ReadFrame(timeout time.Duration) ([]byte, error) {
	var deadline time.Time
	if timeout > 0 {
		deadline = time.Now().Add(timeout)
	}
	if err := c.conn.SetReadDeadline(deadline); err != nil {
		return nil, err
	}
	return command.ReadFrame(c.conn)
}

// Close closes the underlying socket. Safe to call more than once.
func (c *Connection) Close() error {
	c.closeOnce.Do(func() {
		c.closeErr = c.conn.Close()
	})
	return c.closeErr
}
