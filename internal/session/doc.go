// Package session is the agent side of netsync: it keeps one connection to
// the master open, identifies itself, answers heartbeats and hands updates
// to a Handler.
//
// # Lifecycle
//
//	s := session.New(cfg, handler, logger)
//	err := s.Run(ctx) // returns nil once ctx is canceled
//
// Run dials the master, sends Identify, then reads frames until the
// connection fails or stays silent longer than ReadTimeout. It then waits
// ReconnectDelay and dials again, forever, until ctx is canceled.
//
// # Commands
//
//   - Ping: answered immediately with Custom("PONG")
//   - Update: passed to Handler.OnUpdate
//   - Custom: passed to Handler.OnCustom with the payload
//   - anything else is logged and ignored
//
// Handler calls run on one worker goroutine owned by Run, one at a time and
// in arrival order. The worker outlives individual connections, so a slow
// hook delays neither heartbeat replies nor reconnecting after a drop.
//
// # Hooks
//
// ExecHandler runs operator-configured shell commands for Update and Custom.
// Hook failures are logged and never end the session.
package session
