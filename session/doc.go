// Package session owns server-side session state: the per-request [Session]
// context, the [Record] envelope persisted by stores, and the [Store] adapters
// for Redis, Postgres and bbolt.
//
// # Store contract
//
// Stores are keyed by opaque, unguessable keys produced by [NewKey]. Every
// save is "set if absent" with an absolute expiry; a record is never updated
// in place. A missing or expired key loads as (nil, false, nil).
//
// # Architecture boundaries
//
// This package does NOT interpret tokens or cookies. It does not import the
// root package, jwt, or middleware.
package session
