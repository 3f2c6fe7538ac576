package goSession

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/MrEthical07/goSession/internal/rate"
	"github.com/MrEthical07/goSession/session"
)

// Login checks the credentials and, on success, writes the subject and any
// returned authorization attributes into sess and marks it for regeneration.
// If sess already belongs to an authenticated subject it is emptied first, so
// nothing from the earlier login survives. The record is persisted when the
// response is committed.
//
// Login returns an error wrapping [ErrInvalidCredentials] for a wrong
// username or password. sess is left untouched on failure.
func (e *Engine) Login(ctx context.Context, sess *session.Session, username, password string) (string, error) {
	if e == nil || e.verifier == nil {
		return "", ErrEngineNotReady
	}
	if sess == nil {
		return "", ErrNoSession
	}

	ip := clientIPFromContext(ctx)
	if err := e.checkThrottle(ctx, username, ip); err != nil {
		e.metricInc(MetricLoginThrottled)
		e.emitAudit(ctx, AuditLoginFailure, false, "", err)
		return "", err
	}

	subject, attrs, err := e.verifier.Verify(ctx, username, password)
	if err == nil && subject == "" {
		err = fmt.Errorf("%w: empty subject", ErrInvalidCredentials)
	}
	if err != nil {
		e.metricInc(MetricLoginFailure)
		if errors.Is(err, ErrInvalidCredentials) {
			e.recordLoginFailure(ctx, username, ip)
		}
		e.emitAudit(ctx, AuditLoginFailure, false, "", err)
		e.logger.LogAttrs(ctx, slog.LevelInfo, "login rejected",
			slog.String("component", "login"),
			slog.Bool("invalid_credentials", errors.Is(err, ErrInvalidCredentials)),
			slog.String("request_id", RequestIDFromContext(ctx)),
		)
		return "", err
	}

	// attributes written by an earlier login belong to that login; only
	// anonymous pre-login state carries over
	if e.Subject(sess) != "" {
		sess.Clear()
	}
	if err := sess.Set(e.config.Session.SubjectAttribute, subject); err != nil {
		return "", err
	}
	for k, v := range attrs {
		if k == e.config.Session.SubjectAttribute {
			continue
		}
		if err := sess.Set(k, v); err != nil {
			return "", err
		}
	}
	sess.Regenerate()
	e.resetThrottle(ctx, username)

	e.metricInc(MetricLoginSuccess)
	e.emitAudit(ctx, AuditLoginSuccess, true, subject, nil)
	return subject, nil
}

// Logout empties sess. When the response is committed the prior record is
// deleted and the client cookie expired.
func (e *Engine) Logout(ctx context.Context, sess *session.Session) error {
	if e == nil {
		return ErrEngineNotReady
	}
	if sess == nil {
		return ErrNoSession
	}
	subject := e.Subject(sess)
	sess.Clear()
	e.emitAudit(ctx, AuditLogout, true, subject, nil)
	return nil
}

// Subject returns the authenticated subject stored in sess, or "".
func (e *Engine) Subject(sess *session.Session) string {
	if e == nil || sess == nil {
		return ""
	}
	subject, _ := sess.GetString(e.config.Session.SubjectAttribute)
	return subject
}

// checkThrottle fails open: a throttle backend outage must not block logins.
func (e *Engine) checkThrottle(ctx context.Context, username, ip string) error {
	if e.throttle == nil {
		return nil
	}
	err := e.throttle.Check(ctx, username, ip)
	switch {
	case err == nil:
		return nil
	case errors.Is(err, rate.ErrRateLimited):
		e.logger.LogAttrs(ctx, slog.LevelWarn, "login throttled",
			slog.String("component", "login"),
			slog.String("request_id", RequestIDFromContext(ctx)),
		)
		return ErrLoginThrottled
	default:
		e.throttleUnavailable(ctx, err)
		return nil
	}
}

func (e *Engine) recordLoginFailure(ctx context.Context, username, ip string) {
	if e.throttle == nil {
		return
	}
	if err := e.throttle.Failure(ctx, username, ip); err != nil {
		e.throttleUnavailable(ctx, err)
	}
}

func (e *Engine) resetThrottle(ctx context.Context, username string) {
	if e.throttle == nil {
		return
	}
	if err := e.throttle.Reset(ctx, username); err != nil {
		e.throttleUnavailable(ctx, err)
	}
}

func (e *Engine) throttleUnavailable(ctx context.Context, err error) {
	e.logger.LogAttrs(ctx, slog.LevelWarn, "login throttle unavailable",
		slog.String("component", "login"),
		slog.String("err", err.Error()),
		slog.String("request_id", RequestIDFromContext(ctx)),
	)
}
