// Package status exposes read-only views of the master over HTTP and gRPC.
//
// # HTTP
//
//   - GET /health: 200 "OK" while the process is up
//   - GET /health/ready: 200 with the agent count when at least one agent is
//     connected, 503 otherwise
//   - GET /api/agents: JSON list of connected agents
//   - GET /api/events?limit=N: JSON list of recent fleet events, newest first
//
// # gRPC
//
// NewGRPCServer returns a server carrying the standard grpc.health.v1 service.
// The overall status and the "netsync.Hub" service report SERVING until
// Shutdown is called.
package status
