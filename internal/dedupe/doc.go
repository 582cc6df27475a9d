// Package dedupe suppresses repeated keys inside a sliding time window.
//
// The watcher uses it to debounce filesystem events: an editor saving one
// file can emit several events for the same path within milliseconds, and
// each of them would otherwise trigger a fleet-wide Update broadcast.
//
//	w := dedupe.NewWindow(250*time.Millisecond, 4096)
//	defer w.Close()
//	if w.Allow(path) {
//	    notify()
//	}
//
// Allow is leading-edge: the first occurrence passes, repeats inside the
// window are dropped. The window is bounded; when full the oldest key is
// forgotten first.
package dedupe
