package goSession

import "errors"

var (
	// ErrConfig wraps every configuration validation failure. Build fails with it.
	ErrConfig = errors.New("invalid session configuration")
	// ErrEngineNotReady is returned when an Engine method is called on a nil or unbuilt engine.
	ErrEngineNotReady = errors.New("session engine not initialized")
	// ErrBuilderUsed is returned when Build is called twice on the same Builder.
	ErrBuilderUsed = errors.New("builder already used")
	// ErrStoreRequired is returned by Build when no session store was supplied.
	ErrStoreRequired = errors.New("session store required")
	// ErrInvalidCredentials is returned by a CredentialVerifier when the username or password is wrong.
	ErrInvalidCredentials = errors.New("invalid credentials")
	// ErrLoginThrottled is returned by Login while the username or client IP is over its failure budget.
	ErrLoginThrottled = errors.New("too many failed login attempts")
	// ErrNoSession is returned by Login and Logout when the request carries no session context.
	ErrNoSession = errors.New("no session in request context")
	// ErrUnauthenticated marks a request without an authenticated subject. Route guards map it to 401.
	ErrUnauthenticated = errors.New("not authenticated")
	// ErrForbidden marks an authenticated request lacking a required attribute. Route guards map it to 403.
	ErrForbidden = errors.New("forbidden")
)
