package goSession

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/MrEthical07/goSession/internal/rate"
	"github.com/MrEthical07/goSession/session"
	"github.com/MrEthical07/goSession/token"
)

// Outcome names what Commit did with a session.
type Outcome string

const (
	// OutcomeNoop means the session started and ended empty. Nothing was written.
	OutcomeNoop Outcome = "noop"
	// OutcomeCreated means a session that started empty was persisted.
	OutcomeCreated Outcome = "created"
	// OutcomeRotated means a loaded session was persisted under a fresh key.
	OutcomeRotated Outcome = "rotated"
	// OutcomeCleared means a loaded session ended empty and the cookie is expired.
	OutcomeCleared Outcome = "cleared"
	// OutcomePersistFailed means save or sign failed. No cookie is emitted.
	OutcomePersistFailed Outcome = "persist_failed"
	// OutcomeSkipped means the request was cancelled before commit.
	OutcomeSkipped Outcome = "skipped"
)

// Decision is the result of [Engine.Commit]. Cookie is nil when the response
// must not carry a Set-Cookie header.
type Decision struct {
	Outcome Outcome
	Cookie  *http.Cookie
	Err     error
}

// CredentialVerifier checks a username and password. It returns the subject
// stored under Config.Session.SubjectAttribute plus optional authorization
// attributes, or an error wrapping [ErrInvalidCredentials].
type CredentialVerifier interface {
	Verify(ctx context.Context, username, password string) (subject string, attrs map[string]string, err error)
}

// Engine runs the two-phase session lifecycle: [Engine.Begin] resolves the
// request cookie into a [session.Session], [Engine.Commit] persists, rotates
// or clears it before the response is written.
//
// An Engine is immutable after Build and safe for concurrent use.
type Engine struct {
	config   Config
	codec    token.Codec
	store    session.Store
	verifier CredentialVerifier
	throttle *rate.Limiter
	logger   *slog.Logger
	audit    *auditDispatcher
	metrics  *Metrics
	now      func() time.Time
}

// Close stops the audit dispatcher after draining queued events. Store
// clients belong to the caller and stay open.
func (e *Engine) Close() {
	if e == nil {
		return
	}
	if e.audit != nil {
		e.audit.Close()
	}
}

// AuditDropped reports audit events discarded because the buffer was full.
func (e *Engine) AuditDropped() uint64 {
	if e == nil || e.audit == nil {
		return 0
	}
	return e.audit.Dropped()
}

// MetricsSnapshot returns a copy of the engine counters.
func (e *Engine) MetricsSnapshot() MetricsSnapshot {
	if e == nil || e.metrics == nil {
		return MetricsSnapshot{
			Counters:   map[MetricID]uint64{},
			Histograms: map[MetricID][]uint64{},
		}
	}
	return e.metrics.Snapshot()
}

// Config returns a copy of the engine configuration.
func (e *Engine) Config() Config {
	return cloneConfig(e.config)
}

// CookieName is the name of the transport cookie.
func (e *Engine) CookieName() string {
	return e.config.Cookie.Name
}

func (e *Engine) metricInc(id MetricID) {
	if e == nil || e.metrics == nil {
		return
	}
	e.metrics.Inc(id)
}

func (e *Engine) observeStore(start time.Time) {
	if e == nil || e.metrics == nil {
		return
	}
	e.metrics.Observe(MetricStoreLatency, time.Since(start))
}

// Begin resolves the request cookie into a session. It never fails: a
// missing, invalid or expired token, a missing record and a store outage all
// yield an empty session.
func (e *Engine) Begin(r *http.Request) *session.Session {
	if e == nil || r == nil {
		return session.New()
	}
	ctx := r.Context()

	c, err := r.Cookie(e.config.Cookie.Name)
	if err != nil || c.Value == "" || c.Value == clearedCookieValue {
		e.metricInc(MetricSessionAnonymous)
		return session.New()
	}

	claims, err := e.codec.Verify(c.Value)
	if err != nil {
		kind := token.Kind(err)
		switch kind {
		case "expired":
			e.metricInc(MetricTokenExpired)
		case "bad_signature":
			e.metricInc(MetricTokenBadSignature)
		default:
			e.metricInc(MetricTokenMalformed)
		}
		e.metricInc(MetricSessionAnonymous)
		e.logger.LogAttrs(ctx, slog.LevelWarn, "session token rejected",
			slog.String("component", "session"),
			slog.String("token_error", kind),
			slog.String("request_id", RequestIDFromContext(ctx)),
		)
		return session.New()
	}

	start := time.Now()
	attrs, found, err := e.store.Load(ctx, claims.StoreKey)
	e.observeStore(start)
	if err != nil {
		e.metricInc(MetricStoreLoadFailure)
		e.metricInc(MetricSessionAnonymous)
		e.logger.LogAttrs(ctx, slog.LevelWarn, "session load failed",
			slog.String("component", "session"),
			slog.String("err", err.Error()),
			slog.String("request_id", RequestIDFromContext(ctx)),
		)
		return session.New()
	}
	if !found {
		e.metricInc(MetricSessionAnonymous)
		e.logger.LogAttrs(ctx, slog.LevelDebug, "session record not found",
			slog.String("component", "session"),
			slog.String("request_id", RequestIDFromContext(ctx)),
		)
		return session.New()
	}

	e.metricInc(MetricSessionLoaded)
	e.logger.LogAttrs(ctx, slog.LevelDebug, "session loaded",
		slog.String("component", "session"),
		slog.Int("attributes", len(attrs)),
		slog.String("request_id", RequestIDFromContext(ctx)),
	)
	return session.Resume(claims.StoreKey, attrs)
}

// Commit decides the session outcome for one response. ctx is the request
// context: if it is already cancelled nothing is written. Once a save starts
// it runs detached from cancellation so the record and the cookie stay
// consistent.
func (e *Engine) Commit(ctx context.Context, sess *session.Session, r *http.Request) Decision {
	if e == nil || sess == nil {
		return Decision{Outcome: OutcomeNoop}
	}
	if ctx == nil {
		ctx = context.Background()
	}
	if err := ctx.Err(); err != nil {
		e.metricInc(MetricCommitSkippedCancelled)
		e.logger.LogAttrs(ctx, slog.LevelDebug, "session commit skipped",
			slog.String("component", "session"),
			slog.String("outcome", string(OutcomeSkipped)),
			slog.String("request_id", RequestIDFromContext(ctx)),
		)
		return Decision{Outcome: OutcomeSkipped, Err: err}
	}

	values := sess.Values()
	if len(values) == 0 {
		if sess.StartedEmpty() {
			return Decision{Outcome: OutcomeNoop}
		}
		return e.clear(ctx, sess, r)
	}
	return e.persist(ctx, sess, values, r)
}

func (e *Engine) clear(ctx context.Context, sess *session.Session, r *http.Request) Decision {
	if prior := sess.PriorKey(); prior != "" {
		e.deleteKey(context.WithoutCancel(ctx), prior)
	}

	e.metricInc(MetricSessionCleared)
	e.emitAudit(ctx, AuditSessionCleared, true, "", nil)
	e.logger.LogAttrs(ctx, slog.LevelDebug, "session cleared",
		slog.String("component", "session"),
		slog.String("outcome", string(OutcomeCleared)),
		slog.String("request_id", RequestIDFromContext(ctx)),
	)
	return Decision{Outcome: OutcomeCleared, Cookie: e.clearingCookie(r)}
}

func (e *Engine) persist(ctx context.Context, sess *session.Session, values session.Attributes, r *http.Request) Decision {
	storeCtx := context.WithoutCancel(ctx)
	ttl := e.config.Session.TTL

	key, err := session.NewKey()
	if err != nil {
		return e.persistFailed(ctx, sess, err)
	}

	start := time.Now()
	err = e.store.Save(storeCtx, key, values, ttl)
	e.observeStore(start)
	if err != nil {
		return e.persistFailed(ctx, sess, err)
	}

	now := e.now()
	value, err := e.codec.Sign(token.Claims{
		StoreKey:  key,
		IssuedAt:  now,
		ExpiresAt: now.Add(ttl),
	})
	if err != nil {
		e.deleteKey(storeCtx, key)
		return e.persistFailed(ctx, sess, err)
	}

	outcome, metric, event := OutcomeRotated, MetricSessionRotated, AuditSessionRotated
	if sess.StartedEmpty() {
		outcome, metric, event = OutcomeCreated, MetricSessionCreated, AuditSessionCreated
	}
	e.metricInc(metric)
	e.emitAudit(ctx, event, true, e.subjectOf(values), nil)

	if prior := sess.PriorKey(); prior != "" && (sess.RegenerateRequested() || e.config.Session.DeletePreviousOnRotate) {
		e.deleteKey(storeCtx, prior)
	}

	e.logger.LogAttrs(ctx, slog.LevelDebug, "session persisted",
		slog.String("component", "session"),
		slog.String("outcome", string(outcome)),
		slog.String("request_id", RequestIDFromContext(ctx)),
	)
	return Decision{Outcome: outcome, Cookie: e.sessionCookie(r, value, now)}
}

func (e *Engine) persistFailed(ctx context.Context, sess *session.Session, err error) Decision {
	e.metricInc(MetricSessionPersistFailed)
	e.emitAudit(ctx, AuditSessionPersistFailed, false, "", err)
	e.logger.LogAttrs(ctx, slog.LevelError, "session persist failed",
		slog.String("component", "session"),
		slog.String("outcome", string(OutcomePersistFailed)),
		slog.Bool("started_empty", sess.StartedEmpty()),
		slog.String("err", err.Error()),
		slog.String("request_id", RequestIDFromContext(ctx)),
	)
	return Decision{Outcome: OutcomePersistFailed, Err: err}
}

// deleteKey is best effort: failures are logged and counted, never returned.
func (e *Engine) deleteKey(ctx context.Context, key string) {
	start := time.Now()
	err := e.store.Delete(ctx, key)
	e.observeStore(start)
	if err == nil {
		return
	}
	e.metricInc(MetricStoreDeleteFailure)
	e.logger.LogAttrs(ctx, slog.LevelWarn, "session delete failed",
		slog.String("component", "session"),
		slog.String("err", err.Error()),
		slog.String("request_id", RequestIDFromContext(ctx)),
	)
}

func (e *Engine) subjectOf(values session.Attributes) string {
	subject, _ := values.GetString(e.config.Session.SubjectAttribute)
	return subject
}

func (e *Engine) emitAudit(ctx context.Context, eventType string, success bool, subject string, err error) {
	if e == nil || e.audit == nil {
		return
	}
	event := newAuditEvent(ctx, eventType, success)
	event.Subject = subject
	if err != nil {
		event.Error = auditErrorCode(err)
	}
	e.audit.Emit(ctx, event)
}

// auditErrorCode reduces err to a stable code. Raw driver messages can carry
// hostnames and are kept out of audit records.
func auditErrorCode(err error) string {
	switch {
	case err == nil:
		return ""
	case errors.Is(err, ErrInvalidCredentials):
		return "invalid_credentials"
	case errors.Is(err, ErrLoginThrottled):
		return "login_throttled"
	case errors.Is(err, session.ErrStoreTimeout):
		return "store_timeout"
	case errors.Is(err, session.ErrStoreUnavailable):
		return "store_unavailable"
	case errors.Is(err, session.ErrKeyExists):
		return "key_exists"
	case errors.Is(err, session.ErrRecordTooLarge):
		return "record_too_large"
	default:
		return "internal_error"
	}
}
