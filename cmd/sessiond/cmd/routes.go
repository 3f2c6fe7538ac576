package cmd

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"

	goSession "github.com/MrEthical07/goSession"
	"github.com/MrEthical07/goSession/metrics/export/prometheus"
	sessionmw "github.com/MrEthical07/goSession/middleware"
	"github.com/MrEthical07/goSession/session"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
)

// healthCheck reports whether the session store is reachable.
type healthCheck func(ctx context.Context) error

type server struct {
	engine *goSession.Engine
	health healthCheck
	logger *slog.Logger
}

func (s *server) routes() http.Handler {
	r := chi.NewRouter()
	r.Use(sessionmw.RequestMetadata)
	r.Use(requestLogger(s.logger))
	r.Use(middleware.Recoverer)

	r.Get("/health", s.handleHealth)
	if s.engine.Config().Metrics.Enabled {
		r.Handle("/metrics", prometheus.NewCollector(s.engine).Handler())
	}

	r.Route("/api", func(r chi.Router) {
		r.Use(sessionmw.Sessions(s.engine))

		r.Post("/login", s.handleLogin)
		r.Get("/logout", s.handleLogout)

		r.Group(func(r chi.Router) {
			r.Use(sessionmw.RequireAuthenticated(s.engine))
			r.Get("/authenticated", s.handleAuthenticated)
			r.With(sessionmw.RequireAttribute(s.engine, "role", "admin")).
				Get("/admin", s.handleAdmin)
		})
	})
	return r
}

func (s *server) handleHealth(w http.ResponseWriter, r *http.Request) {
	if s.health != nil {
		if err := s.health(r.Context()); err != nil {
			s.logger.Warn("health check failed", "err", err)
			http.Error(w, "store unavailable", http.StatusServiceUnavailable)
			return
		}
	}
	w.Write([]byte("OK"))
}

func (s *server) handleLogin(w http.ResponseWriter, r *http.Request) {
	sess, ok := session.FromContext(r.Context())
	if !ok {
		http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
		return
	}
	if err := r.ParseForm(); err != nil {
		http.Error(w, "invalid form", http.StatusBadRequest)
		return
	}

	_, err := s.engine.Login(r.Context(), sess, r.PostForm.Get("username"), r.PostForm.Get("password"))
	switch {
	case err == nil:
		http.Redirect(w, r, "/api/authenticated", http.StatusSeeOther)
	case errors.Is(err, goSession.ErrInvalidCredentials):
		writeJSON(w, http.StatusUnauthorized, map[string]string{"detail": "Invalid Credentials"})
	case errors.Is(err, goSession.ErrLoginThrottled):
		w.Header().Set("Retry-After", strconv.Itoa(int(s.engine.Config().Login.Window.Seconds())))
		writeJSON(w, http.StatusTooManyRequests, map[string]string{"detail": "Too many failed login attempts"})
	default:
		s.logger.Error("login failed", "err", err, "request_id", goSession.RequestIDFromContext(r.Context()))
		http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
	}
}

func (s *server) handleLogout(w http.ResponseWriter, r *http.Request) {
	sess, _ := session.FromContext(r.Context())
	if err := s.engine.Logout(r.Context(), sess); err != nil && !errors.Is(err, goSession.ErrNoSession) {
		http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "logged out"})
}

func (s *server) handleAuthenticated(w http.ResponseWriter, r *http.Request) {
	subject, _ := sessionmw.SubjectFromContext(r.Context())
	writeJSON(w, http.StatusOK, map[string]string{"user_id": subject})
}

func (s *server) handleAdmin(w http.ResponseWriter, r *http.Request) {
	subject, _ := sessionmw.SubjectFromContext(r.Context())
	writeJSON(w, http.StatusOK, map[string]string{"user_id": subject, "role": "admin"})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}
