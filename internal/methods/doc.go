// Package methods implements the handlers behind the gateway's method
// surface: discovery, session lifecycle, the initialization handshake, the
// resource catalog and the trading tools.
//
// Handlers receive decoded params and return plain values; the dispatcher
// owns envelope building. Tool failures are reported inside the result
// object so a bad parameter never shows up as a protocol-level error.
package methods
