// ABOUTME: Tests for the operator console command parsing and output.
// ABOUTME: Uses fake listers and senders; color output is disabled for stable assertions.

package repl

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"testing"
	"time"

	"github.com/fatih/color"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/2389/netsync/internal/agent"
	"github.com/2389/netsync/internal/hub"
	"github.com/2389/netsync/internal/store"
)

func init() {
	color.NoColor = true
}

type fakeAgents []agent.Record

func (f fakeAgents) Snapshot() []agent.Record { return f }

type sent struct {
	hostname, data string
}

type fakeSender struct {
	known      map[string]bool
	sendErr    error
	sent       []sent
	broadcasts int
	result     hub.BroadcastResult
}

func (f *fakeSender) Broadcast(context.Context) (hub.BroadcastResult, error) {
	f.broadcasts++
	return f.result, nil
}

func (f *fakeSender) SendTo(_ context.Context, hostname, data string) error {
	if !f.known[hostname] {
		return fmt.Errorf("%w: %q", hub.ErrNoSuchAgent, hostname)
	}
	if f.sendErr != nil {
		return f.sendErr
	}
	f.sent = append(f.sent, sent{hostname, data})
	return nil
}

type fakeHistory struct {
	events []store.Event
	limit  int
}

func (f *fakeHistory) Recent(_ context.Context, limit int) ([]store.Event, error) {
	f.limit = limit
	return f.events, nil
}

func newTestREPL(agents fakeAgents, sender *fakeSender, history History) (*REPL, *bytes.Buffer) {
	var out bytes.Buffer
	return New(agents, sender, history, &out, slog.New(slog.DiscardHandler)), &out
}

func TestList(t *testing.T) {
	r, out := newTestREPL(fakeAgents{
		{ID: "10.0.0.1:5000", Hostname: "web-1"},
		{ID: "10.0.0.2:5000"},
	}, &fakeSender{}, nil)

	assert.False(t, r.Execute(context.Background(), "list"))
	assert.Equal(t,
		"Currently connected agents:\n"+
			" - 10.0.0.1:5000 (hostname: web-1)\n"+
			" - 10.0.0.2:5000 (hostname: <no-hostname>)\n",
		out.String())
}

func TestList_Empty(t *testing.T) {
	r, out := newTestREPL(nil, &fakeSender{}, nil)
	r.Execute(context.Background(), "list")
	assert.Contains(t, out.String(), "(no agents connected)")
}

func TestSend(t *testing.T) {
	t.Run("payload is remaining tokens joined by single spaces", func(t *testing.T) {
		sender := &fakeSender{known: map[string]bool{"h1": true}}
		r, out := newTestREPL(nil, sender, nil)

		r.Execute(context.Background(), "send h1   restart   the    service")
		require.Len(t, sender.sent, 1)
		assert.Equal(t, sent{"h1", "restart the service"}, sender.sent[0])
		assert.Contains(t, out.String(), "Sent to 'h1'.")
	})

	t.Run("unknown hostname", func(t *testing.T) {
		r, out := newTestREPL(nil, &fakeSender{}, nil)
		r.Execute(context.Background(), "send ghost hello")
		assert.Equal(t, "No agent found with hostname 'ghost'.\n", out.String())
	})

	t.Run("write failure", func(t *testing.T) {
		sender := &fakeSender{known: map[string]bool{"h1": true}, sendErr: errors.New("broken pipe")}
		r, out := newTestREPL(nil, sender, nil)
		r.Execute(context.Background(), "send h1 x")
		assert.Contains(t, out.String(), "Failed to send to 'h1': broken pipe")
	})

	t.Run("missing payload", func(t *testing.T) {
		sender := &fakeSender{known: map[string]bool{"h1": true}}
		r, out := newTestREPL(nil, sender, nil)
		r.Execute(context.Background(), "send h1")
		assert.Empty(t, sender.sent)
		assert.Equal(t, unknownCommand+"\n", out.String())
	})
}

func TestBroadcast(t *testing.T) {
	sender := &fakeSender{result: hub.BroadcastResult{Attempted: 3, Delivered: 2, Failed: []string{"10.0.0.3:1"}}}
	r, out := newTestREPL(nil, sender, nil)

	r.Execute(context.Background(), "broadcast")
	assert.Equal(t, 1, sender.broadcasts)
	assert.Contains(t, out.String(), "Update delivered to 2/3 agents.")
	assert.Contains(t, out.String(), "10.0.0.3:1 did not accept the update")
}

func TestBroadcast_NoAgents(t *testing.T) {
	r, out := newTestREPL(nil, &fakeSender{}, nil)
	r.Execute(context.Background(), "broadcast")
	assert.Contains(t, out.String(), "No agents connected.")
}

func TestHistory(t *testing.T) {
	ts := time.Date(2026, 4, 2, 9, 30, 0, 0, time.UTC)
	history := &fakeHistory{events: []store.Event{
		{Kind: store.EventEvict, AgentAddr: "10.0.0.9:1", Hostname: "db-1", Detail: "no heartbeat for 11s", Timestamp: ts},
		{Kind: store.EventBroadcast, Detail: "delivered 2/2", Timestamp: ts},
	}}
	r, out := newTestREPL(nil, &fakeSender{}, history)

	r.Execute(context.Background(), "history")
	assert.Equal(t, defaultHistory, history.limit)
	assert.Contains(t, out.String(), "Recent fleet events:")
	assert.Contains(t, out.String(), "evict")
	assert.Contains(t, out.String(), "no heartbeat for 11s")

	r.Execute(context.Background(), "history 5")
	assert.Equal(t, 5, history.limit)

	out.Reset()
	r.Execute(context.Background(), "history zero")
	assert.Contains(t, out.String(), "Usage: history [n]")
}

func TestHistory_Disabled(t *testing.T) {
	r, out := newTestREPL(nil, &fakeSender{}, nil)
	r.Execute(context.Background(), "history")
	assert.Contains(t, out.String(), "disabled")
}

func TestUnknownAndEmpty(t *testing.T) {
	r, out := newTestREPL(nil, &fakeSender{}, nil)

	assert.False(t, r.Execute(context.Background(), "   "))
	assert.Empty(t, out.String())

	assert.False(t, r.Execute(context.Background(), "reboot everything"))
	assert.Equal(t, unknownCommand+"\n", out.String())
}

func TestRun_QuitEndsConsole(t *testing.T) {
	sender := &fakeSender{known: map[string]bool{"h1": true}}
	r, out := newTestREPL(fakeAgents{{ID: "a:1", Hostname: "h1"}}, sender, nil)

	in := strings.NewReader("list\nsend h1 go\nquit\nsend h1 never\n")
	require.NoError(t, r.Run(context.Background(), in))

	assert.Len(t, sender.sent, 1)
	assert.Contains(t, out.String(), "Leaving console")
}

func TestRun_EOFBehavesLikeQuit(t *testing.T) {
	r, _ := newTestREPL(nil, &fakeSender{}, nil)
	assert.NoError(t, r.Run(context.Background(), strings.NewReader("help\n")))
}

func TestRun_ContextCancel(t *testing.T) {
	r, _ := newTestREPL(nil, &fakeSender{}, nil)
	pr, pw := io.Pipe()
	defer pw.Close()

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- r.Run(ctx, pr) }()

	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(time.Second):
		t.Fatal("Run did not return after cancel")
	}
}
