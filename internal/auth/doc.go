// Package auth owns the process-wide Upstox authentication state.
//
// The broker connection is one account shared by every session, so there is
// a single token/expiry pair for the whole process. It can be populated from
// a directly configured token, by exchanging an OAuth authorization code, or
// by explicit injection through the token webhook. Upstox does not issue
// refresh tokens: once a token lapses, a human has to authorize again.
//
// Upstox tokens expire at 03:30 IST on the day after issuance. Sandbox
// tokens are long-lived by convention and get an extra 30 days.
package auth
