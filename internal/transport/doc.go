// Package transport contains the three front doors of the gateway: HTTP
// POST, WebSocket and line-delimited stdio. Each adapter only does framing
// and channel I/O; protocol logic lives entirely in the dispatcher. A body
// or line that does not parse yields a parse-error envelope in-band instead
// of tearing down the adapter.
package transport
