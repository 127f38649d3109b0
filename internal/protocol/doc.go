// Package protocol defines the JSON-RPC 2.0 envelope types and error codes
// used across every transport of the MCP gateway.
//
// A request envelope is {"jsonrpc":"2.0","id":...,"method":...,"params":...}
// and every response echoes the request id with either a result or an error,
// never both. Error codes follow the JSON-RPC 2.0 reserved range, with one
// implementation-defined code for session failures.
package protocol
