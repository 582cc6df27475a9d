// ABOUTME: Tests for the recursive directory watcher using real temp directories.
// ABOUTME: Covers missing roots, nested and newly created directories, and debouncing.

package watcher

import (
	"context"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type changes struct {
	mu    sync.Mutex
	paths []string
}

func (c *changes) record(_ context.Context, path string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.paths = append(c.paths, path)
}

func (c *changes) has(path string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	for _, p := range c.paths {
		if p == path {
			return true
		}
	}
	return false
}

func (c *changes) count(path string) int {
	c.mu.Lock()
	defer c.mu.Unlock()
	n := 0
	for _, p := range c.paths {
		if p == path {
			n++
		}
	}
	return n
}

func startWatcher(t *testing.T, root string, debounce time.Duration) *changes {
	t.Helper()
	c := &changes{}
	w, err := New(root, debounce, c.record, slog.New(slog.DiscardHandler))
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		defer close(done)
		_ = w.Run(ctx)
	}()
	t.Cleanup(func() {
		cancel()
		<-done
		_ = w.Close()
	})
	return c
}

func TestNew_MissingPath(t *testing.T) {
	_, err := New(filepath.Join(t.TempDir(), "nope"), 0, nil, nil)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "does not exist")
}

func TestWatcher_FileRootReportsChanges(t *testing.T) {
	f := filepath.Join(t.TempDir(), "config.txt")
	require.NoError(t, os.WriteFile(f, []byte("v1"), 0o644))

	c := startWatcher(t, f, 0)

	require.NoError(t, os.WriteFile(f, []byte("v2"), 0o644))
	require.Eventually(t, func() bool { return c.has(f) }, 3*time.Second, 10*time.Millisecond)
}

func TestWatcher_ReportsNestedChanges(t *testing.T) {
	root := t.TempDir()
	nested := filepath.Join(root, "a", "b")
	require.NoError(t, os.MkdirAll(nested, 0o755))

	c := startWatcher(t, root, 0)

	target := filepath.Join(nested, "config.yaml")
	require.NoError(t, os.WriteFile(target, []byte("v: 1"), 0o644))

	require.Eventually(t, func() bool { return c.has(target) }, 3*time.Second, 10*time.Millisecond)
}

func TestWatcher_WatchesNewDirectories(t *testing.T) {
	root := t.TempDir()
	c := startWatcher(t, root, 0)

	dir := filepath.Join(root, "new")
	require.NoError(t, os.Mkdir(dir, 0o755))
	require.Eventually(t, func() bool { return c.has(dir) }, 3*time.Second, 10*time.Millisecond)

	target := filepath.Join(dir, "file.txt")
	require.Eventually(t, func() bool {
		// Retry the write until the new directory's watch is in place.
		_ = os.WriteFile(target, []byte("x"), 0o644)
		return c.has(target)
	}, 3*time.Second, 20*time.Millisecond)
}

func TestWatcher_DebouncesBursts(t *testing.T) {
	root := t.TempDir()
	c := startWatcher(t, root, time.Minute)

	target := filepath.Join(root, "burst.txt")
	for i := 0; i < 10; i++ {
		require.NoError(t, os.WriteFile(target, []byte{byte(i)}, 0o644))
	}

	require.Eventually(t, func() bool { return c.has(target) }, 3*time.Second, 10*time.Millisecond)
	time.Sleep(100 * time.Millisecond)
	assert.Equal(t, 1, c.count(target))
}

func TestWatcher_RecreatedPathBypassesDebounce(t *testing.T) {
	root := t.TempDir()
	c := startWatcher(t, root, time.Minute)

	target := filepath.Join(root, "release.tar")
	require.NoError(t, os.WriteFile(target, []byte("v1"), 0o644))
	require.Eventually(t, func() bool { return c.count(target) == 1 }, 3*time.Second, 10*time.Millisecond)

	require.NoError(t, os.Remove(target))
	require.Eventually(t, func() bool {
		// Recreate until the removal has been handled and the new file reported.
		if _, err := os.Stat(target); err != nil {
			_ = os.WriteFile(target, []byte("v2"), 0o644)
		}
		return c.count(target) >= 2
	}, 3*time.Second, 20*time.Millisecond)
}
