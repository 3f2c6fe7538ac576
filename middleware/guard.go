package middleware

import (
	"context"
	"errors"
	"net/http"

	goSession "github.com/MrEthical07/goSession"
	"github.com/MrEthical07/goSession/session"
)

type subjectContextKey struct{}

// SubjectFromContext returns the subject stored by [RequireAuthenticated].
func SubjectFromContext(ctx context.Context) (string, bool) {
	subject, ok := ctx.Value(subjectContextKey{}).(string)
	return subject, ok && subject != ""
}

// RequireAuthenticated rejects requests whose session has no subject with
// 401 "Not authenticated". It must run inside [Sessions].
func RequireAuthenticated(engine *goSession.Engine) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			subject, err := authenticate(engine, r)
			if err != nil {
				writeGuardError(w, err)
				return
			}
			ctx := context.WithValue(r.Context(), subjectContextKey{}, subject)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// RequireAttribute is [RequireAuthenticated] plus a check that the session
// attribute key holds want. A mismatch is answered with 403.
func RequireAttribute(engine *goSession.Engine, key, want string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			subject, err := authenticate(engine, r)
			if err == nil {
				err = authorize(r, key, want)
			}
			if err != nil {
				writeGuardError(w, err)
				return
			}
			ctx := context.WithValue(r.Context(), subjectContextKey{}, subject)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

func authenticate(engine *goSession.Engine, r *http.Request) (string, error) {
	if engine == nil {
		return "", goSession.ErrUnauthenticated
	}
	sess, ok := session.FromContext(r.Context())
	if !ok {
		return "", goSession.ErrUnauthenticated
	}
	subject := engine.Subject(sess)
	if subject == "" {
		return "", goSession.ErrUnauthenticated
	}
	return subject, nil
}

func authorize(r *http.Request, key, want string) error {
	sess, _ := session.FromContext(r.Context())
	got, ok := sess.GetString(key)
	if !ok || got != want {
		return goSession.ErrForbidden
	}
	return nil
}

func writeGuardError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, goSession.ErrForbidden):
		http.Error(w, "Forbidden", http.StatusForbidden)
	default:
		w.Header().Set("WWW-Authenticate", "Session")
		http.Error(w, "Not authenticated", http.StatusUnauthorized)
	}
}
