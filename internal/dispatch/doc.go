// Package dispatch routes request envelopes to registered method handlers.
//
// All three transports funnel into the same Dispatch entry point. The
// dispatcher validates the envelope, enforces the session requirement for
// non-exempt methods, invokes the handler and wraps the outcome into a
// response envelope. Handler failures never escape as dispatcher failures.
package dispatch
