// Package jwt implements the session token codec on top of JWT compact
// serialization. The algorithm and keys are fixed when a Manager is built; a
// token signed with any other algorithm is rejected as a signature mismatch.
package jwt
