// Package rate implements the Redis-backed failed-login throttle used by
// goSession.Engine.Login.
//
// # Window semantics
//
// Fixed-window counters: INCR + EXPIRE on the first hit. Keys:
//   - <prefix>:login:u:<username>  per normalized username
//   - <prefix>:login:ip:<ip>       per client IP, when enabled
//
// Only failures are counted. A successful login resets the username counter.
package rate
