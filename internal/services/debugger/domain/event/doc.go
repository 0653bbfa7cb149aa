// Package event defines the recognizer execution events recorded by a debug
// session.
//
// Events are immutable facts reported by a live parser or lexer: token
// consumption, lookahead, rule entry and exit, grammar locations, exceptions and
// backtracking markers. Each event carries the trace position it was appended
// at, so the event log can be replayed forward or backward deterministically.
package event
