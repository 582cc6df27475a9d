// Package logging builds the slog.Logger shared by both netsync binaries.
//
// Text format uses a colorized handler (fatih/color) on the console; json
// format uses slog.JSONHandler. When a log file is configured, records are
// also written to it in plain logfmt so the file stays free of escape codes.
package logging
