// ABOUTME: Thread-safe, size-bounded TTL window for debouncing repeated keys.
// ABOUTME: Used by the watcher to coalesce bursts of events for the same path.

package dedupe

import (
	"container/list"
	"sync"
	"time"
)

// Cleanup runs at the TTL, clamped to this range.
const (
	minSweepInterval = time.Second
	maxSweepInterval = time.Minute
)

type entry struct {
	seenAt time.Time
	elem   *list.Element
}

// Window remembers keys for ttl after they were last allowed.
// Insertion order is kept in a linked list so eviction of the oldest key is O(1).
type Window struct {
	mu      sync.Mutex
	keys    map[string]*entry
	order   *list.List // oldest at front
	ttl     time.Duration
	maxKeys int
	now     func() time.Time

	done      chan struct{}
	closeOnce sync.Once
}

// NewWindow creates a window. A background goroutine sweeps expired keys
// until Close is called.
func NewWindow(ttl time.Duration, maxKeys int) *Window {
	if maxKeys <= 0 {
		maxKeys = 1
	}
	w := &Window{
		keys:    make(map[string]*entry),
		order:   list.New(),
		ttl:     ttl,
		maxKeys: maxKeys,
		now:     time.Now,
		done:    make(chan struct{}),
	}
	go w.sweepLoop()
	return w
}

// Allow reports whether key is outside the window, and if so opens a new
// window for it. Repeats inside the window return false and do not extend it,
// so a steady stream of events still passes once per ttl.
func (w *Window) Allow(key string) bool {
	w.mu.Lock()
	defer w.mu.Unlock()

	now := w.now()
	if e, ok := w.keys[key]; ok && now.Sub(e.seenAt) < w.ttl {
		return false
	}
	w.touchLocked(key, now)
	return true
}

// Forget drops key so the next Allow passes.
func (w *Window) Forget(key string) {
	w.mu.Lock()
	defer w.mu.Unlock()

	if e, ok := w.keys[key]; ok {
		w.order.Remove(e.elem)
		delete(w.keys, key)
	}
}

// Len returns the number of remembered keys, expired or not.
func (w *Window) Len() int {
	w.mu.Lock()
	defer w.mu.Unlock()
	return len(w.keys)
}

// touchLocked stamps key with now and moves it to the back. Must be called
// with mu held.
func (w *Window) touchLocked(key string, now time.Time) {
	if e, ok := w.keys[key]; ok {
		e.seenAt = now
		w.order.MoveToBack(e.elem)
		return
	}

	if len(w.keys) >= w.maxKeys {
		if front := w.order.Front(); front != nil {
			oldest, _ := front.Value.(string)
			w.order.Remove(front)
			delete(w.keys, oldest)
		}
	}

	w.keys[key] = &entry{seenAt: now, elem: w.order.PushBack(key)}
}

func (w *Window) sweepLoop() {
	interval := min(max(w.ttl, minSweepInterval), maxSweepInterval)
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			w.sweep()
		case <-w.done:
			return
		}
	}
}

// sweep removes expired keys. Entries are ordered by last touch, so it stops
// at the first live one.
func (w *Window) sweep() {
	w.mu.Lock()
	defer w.mu.Unlock()

	now := w.now()
	for front := w.order.Front(); front != nil; front = w.order.Front() {
		key, _ := front.Value.(string)
		if now.Sub(w.keys[key].seenAt) < w.ttl {
			return
		}
		w.order.Remove(front)
		delete(w.keys, key)
	}
}

// Close stops the sweeper. Safe to call more than once.
func (w *Window) Close() {
	w.closeOnce.Do(func() {
		close(w.done)
	})
}
