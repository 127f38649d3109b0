// Package server wires the gateway's HTTP surface: the protocol endpoint,
// the WebSocket upgrade, the OAuth callback, the token webhook, the health
// endpoint and the dedicated metrics listener.
package server
