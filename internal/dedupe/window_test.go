// ABOUTME: Tests for the debounce window used to coalesce repeated filesystem events.
// ABOUTME: Uses a fake clock to check expiry, eviction, sweeping, and concurrent Allow.

package dedupe

import (
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

type fakeClock struct {
	mu sync.Mutex
	t  time.Time
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.t
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.t = c.t.Add(d)
}

func newTestWindow(ttl time.Duration, maxKeys int) (*Window, *fakeClock) {
	clock := &fakeClock{t: time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)}
	w := NewWindow(ttl, maxKeys)
	w.mu.Lock()
	w.now = clock.Now
	w.mu.Unlock()
	return w, clock
}

func TestWindow_AllowSuppressesRepeats(t *testing.T) {
	w, clock := newTestWindow(time.Second, 100)
	defer w.Close()

	assert.True(t, w.Allow("/repo/a.txt"))
	assert.False(t, w.Allow("/repo/a.txt"))
	assert.True(t, w.Allow("/repo/b.txt"), "different keys are independent")

	clock.Advance(999 * time.Millisecond)
	assert.False(t, w.Allow("/repo/a.txt"))

	clock.Advance(time.Millisecond)
	assert.True(t, w.Allow("/repo/a.txt"), "window expired")
}

func TestWindow_RepeatsDoNotExtendWindow(t *testing.T) {
	w, clock := newTestWindow(100*time.Millisecond, 100)
	defer w.Close()

	assert.True(t, w.Allow("k"))
	passed := 0
	for i := 0; i < 5; i++ {
		clock.Advance(30 * time.Millisecond)
		if w.Allow("k") {
			passed++
		}
	}
	// Events every 30ms still pass once the first 100ms window closes.
	assert.Equal(t, 1, passed)
}

func TestWindow_Forget(t *testing.T) {
	w, _ := newTestWindow(time.Minute, 100)
	defer w.Close()

	assert.True(t, w.Allow("k"))
	w.Forget("k")
	w.Forget("never-added")
	assert.True(t, w.Allow("k"))
}

func TestWindow_EvictsOldestWhenFull(t *testing.T) {
	w, clock := newTestWindow(time.Minute, 3)
	defer w.Close()

	for _, k := range []string{"first", "second", "third"} {
		w.Allow(k)
		clock.Advance(time.Millisecond)
	}
	w.Allow("fourth")
	assert.Equal(t, 3, w.Len())

	for _, k := range []string{"second", "third", "fourth"} {
		assert.False(t, w.Allow(k), "%s is still inside its window", k)
	}
	assert.True(t, w.Allow("first"), "oldest key was evicted")

	// Re-adding "first" evicted the next oldest.
	assert.True(t, w.Allow("second"))
	assert.Equal(t, 3, w.Len())
}

func TestWindow_SweepRemovesExpired(t *testing.T) {
	w, clock := newTestWindow(50*time.Millisecond, 100)
	defer w.Close()

	w.Allow("a")
	w.Allow("b")
	clock.Advance(40 * time.Millisecond)
	w.Allow("c")
	clock.Advance(20 * time.Millisecond)

	w.sweep()
	assert.Equal(t, 1, w.Len())
	assert.False(t, w.Allow("c"), "live key survives the sweep")
}

func TestWindow_ConcurrentAllowSingleWinner(t *testing.T) {
	w := NewWindow(time.Minute, 1000)
	defer w.Close()

	const n = 100
	var winners atomic.Int32
	var wg sync.WaitGroup
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			if w.Allow("contested") {
				winners.Add(1)
			}
			w.Allow(fmt.Sprintf("key-%d", i%10))
		}(i)
	}
	wg.Wait()

	assert.Equal(t, int32(1), winners.Load())
	assert.Equal(t, 11, w.Len())
}

func TestWindow_CloseIsIdempotent(t *testing.T) {
	w := NewWindow(time.Minute, 10)
	w.Close()
	w.Close()
}
