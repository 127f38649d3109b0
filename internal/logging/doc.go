// Package logging provides slog helpers with consistent attribute naming
// across the gateway. All loggers write to stderr so the stdio transport can
// keep stdout reserved for protocol responses.
package logging
