// Package goSession provides hybrid session authentication for net/http
// servers: attributes live server-side in a [session.Store] under an opaque
// random key, and the client holds only a signed, expiring token naming that
// key in an HttpOnly cookie.
//
// Every response that carries a non-empty session rotates it to a fresh key.
// A session that ends empty after starting non-empty clears the cookie. A
// request that never had a session writes nothing.
//
// # Architecture boundaries
//
// goSession is the public surface: [Engine], [Builder], [Config] and the
// audit and metrics value types. Token signing lives in jwt (behind the
// token.Codec interface), storage adapters in session, and the HTTP wiring
// in middleware. Store clients are constructed by the caller and injected
// through [Builder.WithStore].
//
// # Failure model
//
// Token and store failures never become HTTP errors. A bad token or an
// unreachable store on load yields an anonymous session. A failed save
// leaves the response intact and omits Set-Cookie. Route-level 401 and 403
// responses come only from the guards in middleware.
package goSession
