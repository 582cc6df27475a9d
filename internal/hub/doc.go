// Package hub runs the master side of netsync: it accepts agent connections,
// reads what they send, keeps them alive with heartbeats, and pushes updates.
//
// # Architecture
//
// One Hub owns an agent.Manager (the registry), a Heartbeat and a Dispatcher:
//
//	                 +--------------------+
//	  TCP accept --> |        Hub         | --> receive loop (1 goroutine per agent)
//	                 +--------------------+
//	                   |        |        |
//	               Heartbeat Dispatcher  OnChange (watcher / operator)
//	                   |        |
//	                   +--> agent.Manager <--+
//
// # Concurrency
//
// Every connection gets its own receive goroutine. The heartbeat runs on its
// own ticker. Broadcasts and unicasts run on the caller's goroutine and fan
// out one goroutine per target. None of them write to a socket while holding
// the registry lock.
//
// # Liveness
//
// Every HeartbeatInterval the hub sends Ping to every agent. Agents reply
// with Custom("PONG"), which refreshes LastHeartbeat. Agents whose last
// acknowledgement is older than HeartbeatTimeout, or whose Ping write fails,
// are removed in one pass and their sockets closed.
//
// # Delivery
//
// Broadcast failures are logged and counted but never evict. Only the
// heartbeat and the receive loop remove agents.
package hub
