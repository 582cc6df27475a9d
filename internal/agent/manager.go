// ABOUTME: Connection registry: the one shared table of live agent connections.
// ABOUTME: All operations serialize on a single mutex; socket I/O never happens under it.

package agent

import (
	"errors"
	"log/slog"
	"sort"
	"strings"
	"sync"
	"time"
)

// ErrAlreadyRegistered indicates a record with the same connection identity exists.
var ErrAlreadyRegistered = errors.New("agent already registered")

// ErrAgentNotFound indicates the connection identity is not registered.
var ErrAgentNotFound = errors.New("agent not found")

// ErrHostnameBound indicates the record already carries a hostname.
var ErrHostnameBound = errors.New("hostname already bound")

// ErrEmptyHostname indicates an Identify without a usable hostname.
var ErrEmptyHostname = errors.New("empty hostname")

// Record is the registry entry for one live connection.
type Record struct {
	// ID is the connection identity (remote address). Stable for one TCP
	// session and never reused while that session is registered.
	ID string

	// SessionID correlates log lines and ledger events for this session.
	SessionID string

	Conn *Connection

	// Hostname is empty until the agent sends Identify.
	Hostname string

	LastHeartbeat time.Time
	ConnectedAt   time.Time
}

// HasHostname reports whether the agent has identified itself.
func (r *Record) HasHostname() bool {
	return r.Hostname != ""
}

// Registry is the shared table of live agent connections.
// Implementations must make every method atomic with respect to the others.
type Registry interface {
	// Insert adds rec. Returns ErrAlreadyRegistered if rec.ID is present.
	Insert(rec *Record) error

	// GetMut runs fn on the record for id while holding the registry lock.
	// Reports whether the record was found. fn must not block.
	GetMut(id string, fn func(*Record)) bool

	// Remove deletes the record for id and returns it.
	Remove(id string) (*Record, bool)

	// ForEachMut runs fn on every record while holding the registry lock,
	// in ascending ID order. fn must not block.
	ForEachMut(fn func(*Record))

	// FindByHostname returns a copy of the first record (in ID order) whose
	// hostname equals name. Duplicate hostnames are not rejected.
	FindByHostname(name string) (Record, bool)
}

// Manager is the mutex-guarded Registry used by the master.
type Manager struct {
	agents map[string]*Record
	mu     sync.Mutex
	logger *slog.Logger
}

var _ Registry = (*Manager)(nil)

// NewManager creates an empty registry.
func NewManager(logger *slog.Logger) *Manager {
	if logger == nil {
		logger = slog.Default()
	}
	return &Manager{
		agents: make(map[string]*Record),
		logger: logger,
	}
}

// Insert adds a new record.
func (m *Manager) Insert(rec *Record) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, exists := m.agents[rec.ID]; exists {
		return ErrAlreadyRegistered
	}

	m.agents[rec.ID] = rec
	m.logger.Info("=== AGENT CONNECTED ===",
		"addr", rec.ID,
		"session_id", rec.SessionID,
		"total_agents", len(m.agents),
	)
	return nil
}

// GetMut runs fn on the record for id under the lock.
func (m *Manager) GetMut(id string, fn func(*Record)) bool {
	m.mu.Lock()
	defer m.mu.Unlock()

	rec, ok := m.agents[id]
	if !ok {
		return false
	}
	fn(rec)
	return true
}

// Remove deletes the record for id.
func (m *Manager) Remove(id string) (*Record, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()

	rec, ok := m.agents[id]
	if !ok {
		return nil, false
	}
	m.removeLocked(rec)
	return rec, true
}

// RemoveRecords deletes each given record in one pass, but only if the
// registry still holds that exact record for its ID. Returns the records
// actually removed.
func (m *Manager) RemoveRecords(recs []*Record) []*Record {
	return m.RemoveRecordsFunc(recs, nil)
}

// RemoveRecordsFunc is RemoveRecords, except a record is only removed when
// fn, evaluated under the lock against the live record, returns true. A nil
// fn removes every record still registered.
func (m *Manager) RemoveRecordsFunc(recs []*Record, fn func(*Record) bool) []*Record {
	m.mu.Lock()
	defer m.mu.Unlock()

	removed := make([]*Record, 0, len(recs))
	for _, rec := range recs {
		if cur, ok := m.agents[rec.ID]; ok && cur == rec && (fn == nil || fn(rec)) {
			m.removeLocked(rec)
			removed = append(removed, rec)
		}
	}
	return removed
}

// removeLocked deletes rec. Must be called with mu held.
func (m *Manager) removeLocked(rec *Record) {
	delete(m.agents, rec.ID)
	m.logger.Info("=== AGENT DISCONNECTED ===",
		"addr", rec.ID,
		"hostname", rec.Hostname,
		"session_id", rec.SessionID,
		"total_agents", len(m.agents),
	)
}

// ForEachMut runs fn on every record under the lock, in ID order.
func (m *Manager) ForEachMut(fn func(*Record)) {
	m.mu.Lock()
	defer m.mu.Unlock()

	for _, id := range m.sortedIDsLocked() {
		fn(m.agents[id])
	}
}

// FindByHostname returns a copy of the first record with the given hostname.
func (m *Manager) FindByHostname(name string) (Record, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()

	for _, id := range m.sortedIDsLocked() {
		if rec := m.agents[id]; rec.HasHostname() && rec.Hostname == name {
			return *rec, true
		}
	}
	return Record{}, false
}

// SetHostname binds hostname to the record if it has none yet. The first
// successful call wins: later calls return the bound hostname together with
// ErrHostnameBound. Blank hostnames are rejected with ErrEmptyHostname and
// leave the record unbound.
func (m *Manager) SetHostname(id, hostname string) (string, error) {
	if strings.TrimSpace(hostname) == "" {
		return "", ErrEmptyHostname
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	rec, ok := m.agents[id]
	if !ok {
		return "", ErrAgentNotFound
	}
	if rec.HasHostname() {
		return rec.Hostname, ErrHostnameBound
	}
	rec.Hostname = hostname
	return hostname, nil
}

// Touch records a heartbeat acknowledgement at t.
func (m *Manager) Touch(id string, t time.Time) bool {
	return m.GetMut(id, func(rec *Record) {
		rec.LastHeartbeat = t
	})
}

// Snapshot returns copies of all records in ID order.
func (m *Manager) Snapshot() []Record {
	m.mu.Lock()
	defer m.mu.Unlock()

	out := make([]Record, 0, len(m.agents))
	for _, id := range m.sortedIDsLocked() {
		out = append(out, *m.agents[id])
	}
	return out
}

// Len returns the number of registered connections.
func (m *Manager) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.agents)
}

// sortedIDsLocked returns the registered IDs in ascending order. Must be
// called with mu held.
func (m *Manager) sortedIDsLocked() []string {
	ids := make([]string, 0, len(m.agents))
	for id := range m.agents {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}
