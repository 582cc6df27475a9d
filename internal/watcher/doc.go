// Package watcher turns filesystem changes under a directory tree into
// change notifications for the hub.
//
// The root must exist when the watcher is created. Every directory under it
// is watched, and directories created later are added as they appear. Each
// event calls the configured ChangeFunc with the affected path; when a
// debounce interval is set, repeated events for the same path inside that
// interval are dropped.
package watcher
