// Package token defines the client-held session token: its claims, the [Codec]
// contract that signs and verifies it, and the closed set of verification
// failures.
//
// # Architecture boundaries
//
// This package has no dependencies. Concrete codecs (see package jwt) import it;
// the engine and middleware consume only [Codec] and the sentinel errors.
//
// # What this package must NOT do
//
//   - Carry session attributes. A token points at a store record and nothing else.
//   - Surface verification failures to HTTP clients. Callers degrade to an
//     anonymous session.
package token
