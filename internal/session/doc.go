// Package session implements the in-memory session registry.
//
// A session identifies one logical client conversation independent of the
// transport connection it arrived on. Sessions expire after one hour of
// inactivity; a background sweeper removes expired records every thirty
// minutes. Nothing is persisted across restarts.
package session
