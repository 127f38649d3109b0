// Package upstox is a thin client for the Upstox v2 REST API.
//
// Every method is one HTTP call: attach the bearer token, issue the request,
// unwrap the {status,data} response envelope. The one piece of behavior
// beyond plumbing is the 401 reaction: an unauthorized response forces a
// logout on the auth manager before the error is returned, since Upstox
// tokens cannot be refreshed.
package upstox
