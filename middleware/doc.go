// Package middleware wires goSession.Engine into net/http.
//
// # Middleware
//
//   - [Sessions] loads the session before the handler and commits it once
//     before the first byte of the response.
//   - [RequireAuthenticated] answers 401 when the session has no subject.
//   - [RequireAttribute] additionally answers 403 when a session attribute
//     does not hold the expected value.
//   - [RequestMetadata] attaches request ID and client IP for logs and audit.
//
// # Architecture boundaries
//
// This package translates HTTP semantics into Engine calls. Token checks,
// store traffic and cookie construction all live in the Engine. The guards
// read the session only and never touch the store.
package middleware
