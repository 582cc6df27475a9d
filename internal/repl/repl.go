// ABOUTME: Operator console for the master: list agents, unicast, broadcast, and event history.
// ABOUTME: Reads commands from any io.Reader and writes human-readable output to an io.Writer.

package repl

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strconv"
	"strings"
	"text/tabwriter"

	"github.com/fatih/color"

	"github.com/2389/netsync/internal/agent"
	"github.com/2389/netsync/internal/hub"
	"github.com/2389/netsync/internal/store"
)

const defaultHistory = 20

const unknownCommand = "Unknown command. Try 'list', 'send <hostname> <data>', 'broadcast', 'history', or 'quit'."

// Lister provides point-in-time copies of registry entries.
type Lister interface {
	Snapshot() []agent.Record
}

// Sender delivers operator commands to agents.
type Sender interface {
	Broadcast(ctx context.Context) (hub.BroadcastResult, error)
	SendTo(ctx context.Context, hostname, data string) error
}

// History lists recent fleet events.
type History interface {
	Recent(ctx context.Context, limit int) ([]store.Event, error)
}

// REPL is the operator console.
type REPL struct {
	agents  Lister
	sender  Sender
	history History
	out     io.Writer
	logger  *slog.Logger

	prompt string
	cyan   *color.Color
	green  *color.Color
	yellow *color.Color
	red    *color.Color
}

// New creates a console writing to out. history may be nil when the ledger
// is disabled.
func New(agents Lister, sender Sender, history History, out io.Writer, logger *slog.Logger) *REPL {
	if logger == nil {
		logger = slog.Default()
	}
	return &REPL{
		agents:  agents,
		sender:  sender,
		history: history,
		out:     out,
		logger:  logger.With("component", "repl"),
		prompt:  "netsync> ",
		cyan:    color.New(color.FgCyan),
		green:   color.New(color.FgGreen),
		yellow:  color.New(color.FgYellow),
		red:     color.New(color.FgRed),
	}
}

// Run reads commands from in until quit, end of input, or ctx cancellation.
func (r *REPL) Run(ctx context.Context, in io.Reader) error {
	lines := make(chan string)
	scanErr := make(chan error, 1)
	go func() {
		defer close(lines)
		scanner := bufio.NewScanner(in)
		for scanner.Scan() {
			select {
			case lines <- scanner.Text():
			case <-ctx.Done():
				return
			}
		}
		scanErr <- scanner.Err()
	}()

	for {
		fmt.Fprint(r.out, r.prompt)
		select {
		case <-ctx.Done():
			fmt.Fprintln(r.out)
			return nil
		case line, ok := <-lines:
			if !ok {
				fmt.Fprintln(r.out)
				select {
				case err := <-scanErr:
					if err != nil {
						return fmt.Errorf("reading commands: %w", err)
					}
				default:
				}
				return nil
			}
			if quit := r.Execute(ctx, line); quit {
				return nil
			}
		}
	}
}

// Execute runs one command line and reports whether the console should exit.
func (r *REPL) Execute(ctx context.Context, line string) bool {
	tokens := strings.Fields(line)
	if len(tokens) == 0 {
		return false
	}

	switch tokens[0] {
	case "list":
		r.list()
	case "send":
		if len(tokens) < 3 {
			fmt.Fprintln(r.out, unknownCommand)
			return false
		}
		r.send(ctx, tokens[1], strings.Join(tokens[2:], " "))
	case "broadcast":
		r.broadcast(ctx)
	case "history":
		limit := defaultHistory
		if len(tokens) > 1 {
			n, err := strconv.Atoi(tokens[1])
			if err != nil || n <= 0 {
				fmt.Fprintln(r.out, "Usage: history [n], where n is a positive number.")
				return false
			}
			limit = n
		}
		r.showHistory(ctx, limit)
	case "help":
		r.help()
	case "quit", "exit":
		fmt.Fprintln(r.out, "Leaving console; the master keeps running.")
		return true
	default:
		fmt.Fprintln(r.out, unknownCommand)
	}
	return false
}

func (r *REPL) list() {
	agents := r.agents.Snapshot()
	r.cyan.Fprintln(r.out, "Currently connected agents:")
	if len(agents) == 0 {
		fmt.Fprintln(r.out, "  (no agents connected)")
		return
	}
	for _, a := range agents {
		hostname := a.Hostname
		if !a.HasHostname() {
			hostname = "<no-hostname>"
		}
		fmt.Fprintf(r.out, " - %s (hostname: %s)\n", a.ID, hostname)
	}
}

func (r *REPL) send(ctx context.Context, hostname, data string) {
	err := r.sender.SendTo(ctx, hostname, data)
	switch {
	case err == nil:
		r.green.Fprintf(r.out, "Sent to '%s'.\n", hostname)
	case errors.Is(err, hub.ErrNoSuchAgent):
		fmt.Fprintf(r.out, "No agent found with hostname '%s'.\n", hostname)
	default:
		r.red.Fprintf(r.out, "Failed to send to '%s': %v\n", hostname, err)
	}
}

func (r *REPL) broadcast(ctx context.Context) {
	res, err := r.sender.Broadcast(ctx)
	if err != nil {
		r.red.Fprintf(r.out, "Broadcast failed: %v\n", err)
		return
	}
	if res.Attempted == 0 {
		fmt.Fprintln(r.out, "No agents connected.")
		return
	}
	r.green.Fprintf(r.out, "Update delivered to %d/%d agents.\n", res.Delivered, res.Attempted)
	for _, id := range res.Failed {
		r.yellow.Fprintf(r.out, " ! %s did not accept the update\n", id)
	}
}

func (r *REPL) showHistory(ctx context.Context, limit int) {
	if r.history == nil {
		fmt.Fprintln(r.out, "Event history is disabled (no database configured).")
		return
	}
	events, err := r.history.Recent(ctx, limit)
	if err != nil {
		r.logger.Error("reading fleet events", "error", err)
		r.red.Fprintf(r.out, "Could not read history: %v\n", err)
		return
	}

	r.cyan.Fprintln(r.out, "Recent fleet events:")
	if len(events) == 0 {
		fmt.Fprintln(r.out, "  (no events)")
		return
	}

	w := tabwriter.NewWriter(r.out, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "  TIME\tEVENT\tAGENT\tHOSTNAME\tDETAIL")
	for _, e := range events {
		fmt.Fprintf(w, "  %s\t%s\t%s\t%s\t%s\n",
			e.Timestamp.Local().Format("Jan 02 15:04:05"),
			e.Kind,
			dash(e.AgentAddr),
			dash(e.Hostname),
			e.Detail,
		)
	}
	_ = w.Flush()
}

func (r *REPL) help() {
	r.cyan.Fprintln(r.out, "Commands:")
	fmt.Fprintln(r.out, "  list                       show connected agents")
	fmt.Fprintln(r.out, "  send <hostname> <data...>  send a custom command to one agent")
	fmt.Fprintln(r.out, "  broadcast                  push an update to every agent")
	fmt.Fprintln(r.out, "  history [n]                show the last n fleet events (default 20)")
	fmt.Fprintln(r.out, "  quit                       leave the console")
}

func dash(s string) string {
	if s == "" {
		return "-"
	}
	return s
}
