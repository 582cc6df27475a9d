// Package agent holds the master's registry of connected netsync agents.
//
// # Overview
//
// Every accepted TCP connection gets exactly one Record, keyed by the
// peer's remote address. The record is inserted on accept, mutated when the
// agent identifies itself or acknowledges a heartbeat, and removed when the
// connection closes, fails, or is evicted for missing heartbeats.
//
// # Manager
//
// Manager is the Registry implementation:
//
//	reg := agent.NewManager(logger)
//
// Key operations:
//
//   - Insert(rec): add a record for a newly accepted connection
//   - GetMut(id, fn): mutate one record under the lock
//   - Remove(id) / RemoveRecords(recs): delete records
//   - ForEachMut(fn): visit every record under the lock
//   - FindByHostname(name): first record whose agent announced name
//
// # Connection
//
// Connection wraps the socket. Reads are owned by one receive loop. Sends are
// serialized by a per-connection mutex and bounded by a write deadline.
//
// # Locking Discipline
//
// The registry lock is never held across network I/O. Callers that need to
// write to many agents copy the Connection handles inside ForEachMut, release
// the lock, then Send. A slow or dead peer therefore delays only its own send,
// never accepts, heartbeat replies, or other agents.
//
// # Hostnames
//
// Hostnames are self-reported and not unique. The first Identify on a
// connection wins; later ones are ignored. When two connections announce the
// same hostname, FindByHostname returns the one with the lowest ID.
package agent
