// Package master assembles and runs the netsync master process.
//
// # Overview
//
// Master owns every long-lived component of the master side:
//
//	type Master struct {
//	    config      *config.Config
//	    registry    *agent.Manager      // live connections
//	    ledger      store.Ledger        // fleet event audit trail
//	    hub         *hub.Hub            // accept/receive/heartbeat/dispatch
//	    watcher     *watcher.Watcher    // filesystem changes -> hub.OnChange
//	    httpServer  *http.Server        // optional status endpoints
//	    grpcHealth  *status.GRPCServer  // optional gRPC health service
//	    tsnetServer *tsnet.Server       // optional tailnet listener
//	}
//
// # Startup
//
// New opens the ledger and validates the watch path, so a missing
// directory or unwritable database fails before any socket is bound.
// Run binds the agent port (TCP, or the tailnet when tailscale.enabled),
// plus the optional status listeners, then blocks until the context is
// canceled or a server fails.
//
// # Shutdown
//
// On cancellation the hub stops accepting, closes every agent socket and
// waits for receive loops; then the HTTP and gRPC servers drain, the
// tailnet node and watcher close, and the ledger is closed last.
package master
