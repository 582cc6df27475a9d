// ABOUTME: Periodic liveness cycle: pings every agent and evicts silent or unwritable ones.
// ABOUTME: Targets are collected under the registry lock; pings are written outside it.

package hub

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/2389/netsync/internal/agent"
	"github.com/2389/netsync/internal/command"
	"github.com/2389/netsync/internal/store"
)

// Heartbeat pings agents on a fixed interval and evicts stale ones.
type Heartbeat struct {
	registry *agent.Manager
	interval time.Duration
	timeout  time.Duration
	ledger   store.Recorder
	logger   *slog.Logger
}

// NewHeartbeat creates a heartbeat cycle over registry. An agent is stale
// when its last acknowledgement is more than timeout old.
func NewHeartbeat(registry *agent.Manager, interval, timeout time.Duration, ledger store.Recorder, logger *slog.Logger) *Heartbeat {
	if logger == nil {
		logger = slog.Default()
	}
	if ledger == nil {
		ledger = store.Nop{}
	}
	return &Heartbeat{
		registry: registry,
		interval: interval,
		timeout:  timeout,
		ledger:   ledger,
		logger:   logger.With("component", "heartbeat"),
	}
}

// Run ticks until ctx is canceled.
func (hb *Heartbeat) Run(ctx context.Context) {
	ticker := time.NewTicker(hb.interval)
	defer ticker.Stop()

	hb.logger.Debug("heartbeat started", "interval", hb.interval, "timeout", hb.timeout)
	for {
		select {
		case <-ctx.Done():
			return
		case now := <-ticker.C:
			hb.Tick(now)
		}
	}
}

type pingTarget struct {
	rec  *agent.Record
	conn *agent.Connection
	last time.Time
}

type eviction struct {
	rec    *agent.Record
	reason string
	stale  bool // re-checked at removal; a late acknowledgement cancels it
}

// Tick runs one heartbeat cycle at now and returns the IDs of evicted agents.
func (hb *Heartbeat) Tick(now time.Time) []string {
	frame, err := command.EncodeFrame(command.Ping())
	if err != nil {
		hb.logger.Error("encoding ping", "error", err)
		return nil
	}

	var targets []pingTarget
	hb.registry.ForEachMut(func(rec *agent.Record) {
		targets = append(targets, pingTarget{rec: rec, conn: rec.Conn, last: rec.LastHeartbeat})
	})
	if len(targets) == 0 {
		return nil
	}

	var (
		mu      sync.Mutex
		evicted []eviction
		wg      sync.WaitGroup
	)
	for _, t := range targets {
		if age := now.Sub(t.last); age > hb.timeout {
			evicted = append(evicted, eviction{rec: t.rec, reason: fmt.Sprintf("no heartbeat for %s", age.Round(time.Millisecond)), stale: true})
			continue
		}

		wg.Add(1)
		go func(t pingTarget) {
			defer wg.Done()
			if err := t.conn.Send(frame); err != nil {
				mu.Lock()
				evicted = append(evicted, eviction{rec: t.rec, reason: "ping failed: " + err.Error()})
				mu.Unlock()
			}
		}(t)
	}
	wg.Wait()

	if len(evicted) == 0 {
		return nil
	}

	byRec := make(map[*agent.Record]eviction, len(evicted))
	recs := make([]*agent.Record, 0, len(evicted))
	for _, e := range evicted {
		byRec[e.rec] = e
		recs = append(recs, e.rec)
	}

	removed := hb.registry.RemoveRecordsFunc(recs, func(rec *agent.Record) bool {
		if !byRec[rec].stale {
			return true
		}
		return now.Sub(rec.LastHeartbeat) > hb.timeout
	})
	ids := make([]string, 0, len(removed))
	for _, rec := range removed {
		_ = rec.Conn.Close()
		hb.logger.Warn("evicted agent",
			"addr", rec.ID,
			"hostname", rec.Hostname,
			"reason", byRec[rec].reason,
		)
		recordEvent(hb.ledger, &store.Event{
			Kind:      store.EventEvict,
			AgentAddr: rec.ID,
			Hostname:  rec.Hostname,
			Detail:    byRec[rec].reason,
		}, hb.logger)
		ids = append(ids, rec.ID)
	}
	return ids
}
