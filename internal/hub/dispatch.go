// ABOUTME: Dispatcher delivers Update broadcasts and Custom unicasts to connected agents.
// ABOUTME: Delivery failures are logged and reported, never treated as evictions.

package hub

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"sync"

	"github.com/2389/netsync/internal/agent"
	"github.com/2389/netsync/internal/command"
	"github.com/2389/netsync/internal/store"
)

// ErrNoSuchAgent is returned by SendTo when no agent announced the hostname.
var ErrNoSuchAgent = errors.New("no agent with that hostname")

// BroadcastResult summarizes one broadcast.
type BroadcastResult struct {
	Attempted int
	Delivered int
	// Failed lists the IDs of agents whose write failed, in ID order.
	Failed []string
}

// Dispatcher sends commands to agents in the registry.
type Dispatcher struct {
	registry *agent.Manager
	ledger   store.Recorder
	logger   *slog.Logger
}

// NewDispatcher creates a dispatcher over registry.
func NewDispatcher(registry *agent.Manager, ledger store.Recorder, logger *slog.Logger) *Dispatcher {
	if logger == nil {
		logger = slog.Default()
	}
	if ledger == nil {
		ledger = store.Nop{}
	}
	return &Dispatcher{
		registry: registry,
		ledger:   ledger,
		logger:   logger.With("component", "dispatcher"),
	}
}

// Broadcast sends Update to every registered agent. Writes run concurrently,
// each bounded by the connection's write timeout. Failed agents stay
// registered; the heartbeat decides whether they are dead.
func (d *Dispatcher) Broadcast(ctx context.Context) (BroadcastResult, error) {
	if err := ctx.Err(); err != nil {
		return BroadcastResult{}, err
	}
	frame, err := command.EncodeFrame(command.Update())
	if err != nil {
		return BroadcastResult{}, err
	}

	type target struct {
		id   string
		conn *agent.Connection
	}
	var targets []target
	d.registry.ForEachMut(func(rec *agent.Record) {
		targets = append(targets, target{id: rec.ID, conn: rec.Conn})
	})

	res := BroadcastResult{Attempted: len(targets)}
	if len(targets) == 0 {
		d.logger.Info("no agents connected, nothing to broadcast")
		return res, nil
	}

	var (
		mu sync.Mutex
		wg sync.WaitGroup
	)
	for _, t := range targets {
		wg.Add(1)
		go func(t target) {
			defer wg.Done()
			if err := t.conn.Send(frame); err != nil {
				d.logger.Warn("update not delivered", "addr", t.id, "error", err)
				mu.Lock()
				res.Failed = append(res.Failed, t.id)
				mu.Unlock()
				return
			}
			d.logger.Debug("update delivered", "addr", t.id)
		}(t)
	}
	wg.Wait()

	sort.Strings(res.Failed)
	res.Delivered = res.Attempted - len(res.Failed)

	d.logger.Info("broadcast update",
		"attempted", res.Attempted,
		"delivered", res.Delivered,
		"failed", len(res.Failed),
	)
	recordEvent(d.ledger, &store.Event{
		Kind:   store.EventBroadcast,
		Detail: fmt.Sprintf("delivered %d/%d", res.Delivered, res.Attempted),
	}, d.logger)
	return res, nil
}

// SendTo sends Custom(data) to the first agent that announced hostname.
// Returns ErrNoSuchAgent on a miss, or the write error.
func (d *Dispatcher) SendTo(ctx context.Context, hostname, data string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	rec, ok := d.registry.FindByHostname(hostname)
	if !ok {
		return fmt.Errorf("%w: %q", ErrNoSuchAgent, hostname)
	}

	if err := rec.Conn.SendCommand(command.Custom(data)); err != nil {
		d.logger.Warn("unicast failed", "addr", rec.ID, "hostname", hostname, "error", err)
		return fmt.Errorf("sending to %s: %w", hostname, err)
	}

	d.logger.Info("sent custom command", "addr", rec.ID, "hostname", hostname, "bytes", len(data))
	recordEvent(d.ledger, &store.Event{
		Kind:      store.EventUnicast,
		AgentAddr: rec.ID,
		Hostname:  hostname,
		Detail:    data,
	}, d.logger)
	return nil
}
