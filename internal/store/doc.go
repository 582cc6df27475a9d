// Package store keeps the master's fleet event ledger in SQLite.
//
// # Scope
//
// The ledger is an append-only audit trail of what happened to the fleet:
// connects, identifies, disconnects, heartbeat evictions, broadcasts, and
// unicasts. It is never used to rebuild the connection registry; after a
// restart the registry starts empty and agents reconnect on their own.
//
// # Interfaces
//
//   - Recorder: append-only sink used by the hub
//   - Ledger: Recorder plus Recent, used by the control surface
//
// SQLiteStore implements Ledger. Nop implements Ledger and discards events.
//
// # SQLite Configuration
//
// The store uses modernc.org/sqlite (pure Go) with WAL mode:
//
//	PRAGMA journal_mode=WAL;
//
// Use NewSQLiteStore(":memory:") in tests.
package store
