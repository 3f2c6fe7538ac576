package goSession

import (
	"net/http"
	"strings"
	"time"
)

// clearedCookieValue is the literal value written when a session is cleared.
const clearedCookieValue = "null"

func (e *Engine) sessionCookie(r *http.Request, value string, now time.Time) *http.Cookie {
	ttl := e.config.Session.TTL
	return &http.Cookie{
		Name:     e.config.Cookie.Name,
		Value:    value,
		Path:     e.config.Cookie.Path,
		Domain:   e.config.Cookie.Domain,
		MaxAge:   int(ttl / time.Second),
		Expires:  now.Add(ttl).UTC(),
		HttpOnly: true,
		Secure:   e.cookieSecure(r),
		SameSite: e.config.Cookie.SameSite,
	}
}

// clearingCookie instructs the client to drop the cookie immediately
// (Max-Age=0, Expires at the Unix epoch).
func (e *Engine) clearingCookie(r *http.Request) *http.Cookie {
	return &http.Cookie{
		Name:     e.config.Cookie.Name,
		Value:    clearedCookieValue,
		Path:     e.config.Cookie.Path,
		Domain:   e.config.Cookie.Domain,
		MaxAge:   -1,
		Expires:  time.Unix(0, 0).UTC(),
		HttpOnly: true,
		Secure:   e.cookieSecure(r),
		SameSite: e.config.Cookie.SameSite,
	}
}

func (e *Engine) cookieSecure(r *http.Request) bool {
	// browsers reject SameSite=None without Secure
	if e.config.Cookie.SameSite == http.SameSiteNoneMode {
		return true
	}
	switch e.config.Cookie.Secure {
	case SecureAlways:
		return true
	case SecureNever:
		return false
	default:
		return requestIsSecure(r, e.config.Cookie.TrustForwardedProto)
	}
}

func requestIsSecure(r *http.Request, trustProxy bool) bool {
	if r == nil {
		return false
	}
	if r.TLS != nil {
		return true
	}
	if !trustProxy {
		return false
	}
	proto, _, _ := strings.Cut(r.Header.Get("X-Forwarded-Proto"), ",")
	if strings.EqualFold(strings.TrimSpace(proto), "https") {
		return true
	}
	return strings.Contains(strings.ToLower(r.Header.Get("Forwarded")), "proto=https")
}
