// ABOUTME: HTTP health, readiness, agent listing, and fleet event endpoints.
// ABOUTME: Handlers only read registry snapshots and the ledger; they never touch sockets.

package status

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/2389/netsync/internal/agent"
	"github.com/2389/netsync/internal/store"
)

// AgentLister provides point-in-time copies of registry entries.
type AgentLister interface {
	Snapshot() []agent.Record
}

// EventLister lists recent fleet events.
type EventLister interface {
	Recent(ctx context.Context, limit int) ([]store.Event, error)
}

// AgentInfoResponse is the JSON shape of one agent in GET /api/agents.
type AgentInfoResponse struct {
	Address       string    `json:"address"`
	Hostname      string    `json:"hostname,omitempty"`
	SessionID     string    `json:"session_id"`
	ConnectedAt   time.Time `json:"connected_at"`
	LastHeartbeat time.Time `json:"last_heartbeat"`
}

// EventResponse is the JSON shape of one ledger event in GET /api/events.
type EventResponse struct {
	ID        string    `json:"id"`
	Kind      string    `json:"kind"`
	AgentAddr string    `json:"agent_addr,omitempty"`
	Hostname  string    `json:"hostname,omitempty"`
	Detail    string    `json:"detail,omitempty"`
	Timestamp time.Time `json:"timestamp"`
}

// Handler serves the HTTP status endpoints.
type Handler struct {
	agents AgentLister
	events EventLister
	logger *slog.Logger
}

// NewHandler creates the HTTP handler. events may be nil, in which case
// /api/events returns an empty list.
func NewHandler(agents AgentLister, events EventLister, logger *slog.Logger) *Handler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Handler{
		agents: agents,
		events: events,
		logger: logger.With("component", "status"),
	}
}

// RegisterRoutes adds the status routes to mux.
func (h *Handler) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc("/health", h.handleHealth)
	mux.HandleFunc("/health/ready", h.handleReady)
	mux.HandleFunc("/api/agents", h.handleListAgents)
	mux.HandleFunc("/api/events", h.handleListEvents)
}

// handleHealth returns 200 OK if the server is alive.
func (h *Handler) handleHealth(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("OK"))
}

// handleReady returns 200 OK if the server has at least one agent connected.
func (h *Handler) handleReady(w http.ResponseWriter, r *http.Request) {
	agents := h.agents.Snapshot()
	if len(agents) == 0 {
		w.WriteHeader(http.StatusServiceUnavailable)
		_, _ = w.Write([]byte("no agents connected"))
		return
	}
	w.WriteHeader(http.StatusOK)
	_, _ = fmt.Fprintf(w, "ready (%d agents)", len(agents))
}

func (h *Handler) handleListAgents(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}

	agents := h.agents.Snapshot()
	response := make([]AgentInfoResponse, 0, len(agents))
	for _, a := range agents {
		response = append(response, AgentInfoResponse{
			Address:       a.ID,
			Hostname:      a.Hostname,
			SessionID:     a.SessionID,
			ConnectedAt:   a.ConnectedAt.UTC(),
			LastHeartbeat: a.LastHeartbeat.UTC(),
		})
	}
	h.writeJSON(w, http.StatusOK, response)
}

func (h *Handler) handleListEvents(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}

	limit := 0
	if raw := r.URL.Query().Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 0 {
			h.writeJSON(w, http.StatusBadRequest, map[string]string{"error": "limit must be a non-negative integer"})
			return
		}
		limit = n
	}

	response := []EventResponse{}
	if h.events != nil {
		events, err := h.events.Recent(r.Context(), limit)
		if err != nil {
			h.logger.Error("listing fleet events", "error", err)
			h.writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "failed to list events"})
			return
		}
		for _, e := range events {
			response = append(response, EventResponse{
				ID:        e.ID,
				Kind:      string(e.Kind),
				AgentAddr: e.AgentAddr,
				Hostname:  e.Hostname,
				Detail:    e.Detail,
				Timestamp: e.Timestamp.UTC(),
			})
		}
	}
	h.writeJSON(w, http.StatusOK, response)
}

func (h *Handler) writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		h.logger.Debug("writing JSON response", "error", err)
	}
}
