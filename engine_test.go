package goSession

import (
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/MrEthical07/goSession/session"
	"github.com/MrEthical07/goSession/token"
	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
)

type testEngine struct {
	*Engine
	mr *miniredis.Miniredis
}

func newSessionTestEngine(t *testing.T, mutate func(*Config), opts ...func(*Builder)) *testEngine {
	t.Helper()

	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("miniredis start: %v", err)
	}
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr(), MaxRetries: -1})

	cfg := validTestConfig()
	if mutate != nil {
		mutate(&cfg)
	}
	b := New().WithConfig(cfg).WithStore(session.NewRedisStore(rdb, cfg.Store.Prefix))
	for _, opt := range opts {
		opt(b)
	}
	engine, err := b.Build()
	if err != nil {
		rdb.Close()
		mr.Close()
		t.Fatalf("Build failed: %v", err)
	}

	t.Cleanup(func() {
		engine.Close()
		rdb.Close()
		mr.Close()
	})
	return &testEngine{Engine: engine, mr: mr}
}

func newRequest(c *http.Cookie) *http.Request {
	r := httptest.NewRequest(http.MethodGet, "http://example.com/", nil)
	if c != nil {
		r.AddCookie(&http.Cookie{Name: c.Name, Value: c.Value})
	}
	return r
}

// establish commits a fresh session holding user_id=u1 and returns its cookie.
func (te *testEngine) establish(t *testing.T) *http.Cookie {
	t.Helper()
	r := newRequest(nil)
	sess := te.Begin(r)
	if err := sess.Set("user_id", "u1"); err != nil {
		t.Fatalf("set: %v", err)
	}
	d := te.Commit(r.Context(), sess, r)
	if d.Outcome != OutcomeCreated || d.Cookie == nil {
		t.Fatalf("expected created decision with cookie, got %+v", d)
	}
	return d.Cookie
}

func (te *testEngine) storeKey(t *testing.T, c *http.Cookie) string {
	t.Helper()
	claims, err := te.codec.Verify(c.Value)
	if err != nil {
		t.Fatalf("verify cookie: %v", err)
	}
	return claims.StoreKey
}

func (te *testEngine) recordExists(key string) bool {
	return te.mr.Exists(te.config.Store.Prefix + ":" + key)
}

func TestEngineAnonymousRequestIsNoop(t *testing.T) {
	te := newSessionTestEngine(t, nil)

	r := newRequest(nil)
	sess := te.Begin(r)
	if !sess.IsEmpty() || !sess.StartedEmpty() {
		t.Fatal("expected empty session without cookie")
	}

	d := te.Commit(r.Context(), sess, r)
	if d.Outcome != OutcomeNoop || d.Cookie != nil {
		t.Fatalf("expected noop without cookie, got %+v", d)
	}
	if n := len(te.mr.Keys()); n != 0 {
		t.Fatalf("expected no store writes, found %d keys", n)
	}
	if got := te.MetricsSnapshot().Counters[MetricSessionAnonymous]; got != 1 {
		t.Fatalf("expected 1 anonymous, got %d", got)
	}
}

func TestEngineCreateThenLoad(t *testing.T) {
	te := newSessionTestEngine(t, nil)
	c := te.establish(t)

	if c.Name != "session" || c.Path != "/" || !c.HttpOnly {
		t.Fatalf("unexpected cookie attributes: %+v", c)
	}
	if c.SameSite != http.SameSiteLaxMode {
		t.Fatalf("expected SameSite=Lax, got %v", c.SameSite)
	}
	if c.Secure {
		t.Fatal("plain http request must not get a Secure cookie under auto policy")
	}
	if c.MaxAge != int((14 * 24 * time.Hour).Seconds()) {
		t.Fatalf("expected Max-Age of 14 days, got %d", c.MaxAge)
	}

	r := newRequest(c)
	sess := te.Begin(r)
	if got, _ := sess.GetString("user_id"); got != "u1" {
		t.Fatalf("expected user_id=u1, got %q", got)
	}
	if sess.StartedEmpty() {
		t.Fatal("loaded session must not report started empty")
	}
	if sess.PriorKey() != te.storeKey(t, c) {
		t.Fatal("prior key should match the token's store key")
	}
	if got := te.MetricsSnapshot().Counters[MetricSessionLoaded]; got != 1 {
		t.Fatalf("expected 1 loaded, got %d", got)
	}
}

func TestEngineRotationNeverReusesKey(t *testing.T) {
	te := newSessionTestEngine(t, nil)
	c := te.establish(t)

	seen := map[string]bool{te.storeKey(t, c): true}
	first := te.storeKey(t, c)
	for i := 0; i < 5; i++ {
		r := newRequest(c)
		sess := te.Begin(r)
		d := te.Commit(r.Context(), sess, r)
		if d.Outcome != OutcomeRotated || d.Cookie == nil {
			t.Fatalf("round %d: expected rotation, got %+v", i, d)
		}
		if d.Cookie.Value == c.Value {
			t.Fatalf("round %d: token reused", i)
		}
		key := te.storeKey(t, d.Cookie)
		if seen[key] {
			t.Fatalf("round %d: store key reused", i)
		}
		seen[key] = true
		c = d.Cookie
	}

	if !te.recordExists(first) {
		t.Fatal("prior record should stay readable until its TTL")
	}
	te.mr.FastForward(te.config.Session.TTL + time.Second)
	if te.recordExists(first) {
		t.Fatal("prior record should be gone after TTL")
	}
}

func TestEngineTamperedTokenIsAnonymous(t *testing.T) {
	te := newSessionTestEngine(t, nil)
	c := te.establish(t)

	b := []byte(c.Value)
	idx := strings.LastIndexByte(c.Value, '.') + 3
	if b[idx] == 'A' {
		b[idx] = 'B'
	} else {
		b[idx] = 'A'
	}

	r := newRequest(&http.Cookie{Name: c.Name, Value: string(b)})
	sess := te.Begin(r)
	if !sess.IsEmpty() || !sess.StartedEmpty() {
		t.Fatal("tampered token must yield an anonymous session")
	}
	if got := te.MetricsSnapshot().Counters[MetricTokenBadSignature]; got != 1 {
		t.Fatalf("expected 1 bad signature, got %d", got)
	}
	if d := te.Commit(r.Context(), sess, r); d.Outcome != OutcomeNoop || d.Cookie != nil {
		t.Fatalf("anonymous commit should be a noop, got %+v", d)
	}
}

func TestEngineExpiredTokenIsAnonymous(t *testing.T) {
	te := newSessionTestEngine(t, nil)
	c := te.establish(t)
	key := te.storeKey(t, c)

	now := time.Now()
	expired, err := te.codec.Sign(token.Claims{
		StoreKey:  key,
		IssuedAt:  now.Add(-2 * time.Hour),
		ExpiresAt: now.Add(-time.Hour),
	})
	if err != nil {
		t.Fatalf("sign: %v", err)
	}

	sess := te.Begin(newRequest(&http.Cookie{Name: c.Name, Value: expired}))
	if !sess.IsEmpty() {
		t.Fatal("expired token must not load the record")
	}
	if got := te.MetricsSnapshot().Counters[MetricTokenExpired]; got != 1 {
		t.Fatalf("expected 1 expired, got %d", got)
	}
}

func TestEngineMalformedAndClearedCookies(t *testing.T) {
	te := newSessionTestEngine(t, nil)

	for _, value := range []string{"garbage", "a.b.c", clearedCookieValue} {
		sess := te.Begin(newRequest(&http.Cookie{Name: "session", Value: value}))
		if !sess.IsEmpty() {
			t.Fatalf("%q: expected anonymous session", value)
		}
	}
	counters := te.MetricsSnapshot().Counters
	if counters[MetricTokenMalformed] != 2 {
		t.Fatalf("expected 2 malformed, got %d", counters[MetricTokenMalformed])
	}
	if counters[MetricSessionAnonymous] != 3 {
		t.Fatalf("expected 3 anonymous, got %d", counters[MetricSessionAnonymous])
	}
}

func TestEngineUnknownKeyIsAnonymous(t *testing.T) {
	te := newSessionTestEngine(t, nil)
	c := te.establish(t)
	te.mr.FlushAll()

	sess := te.Begin(newRequest(c))
	if !sess.IsEmpty() || !sess.StartedEmpty() {
		t.Fatal("missing record must yield an anonymous session")
	}
}

func TestEngineClearOnLogout(t *testing.T) {
	te := newSessionTestEngine(t, nil)
	c := te.establish(t)
	key := te.storeKey(t, c)

	r := newRequest(c)
	sess := te.Begin(r)
	if err := te.Logout(r.Context(), sess); err != nil {
		t.Fatalf("logout: %v", err)
	}
	d := te.Commit(r.Context(), sess, r)
	if d.Outcome != OutcomeCleared || d.Cookie == nil {
		t.Fatalf("expected cleared decision, got %+v", d)
	}
	if d.Cookie.Value != "null" || d.Cookie.MaxAge >= 0 {
		t.Fatalf("expected null value with Max-Age=0, got %+v", d.Cookie)
	}
	if !d.Cookie.Expires.Equal(time.Unix(0, 0)) {
		t.Fatalf("expected epoch expiry, got %v", d.Cookie.Expires)
	}
	if header := d.Cookie.String(); !strings.Contains(header, "Max-Age=0") || !strings.Contains(header, "Expires=Thu, 01 Jan 1970") {
		t.Fatalf("unexpected Set-Cookie header %q", header)
	}
	if te.recordExists(key) {
		t.Fatal("prior record should be deleted on logout")
	}
}

func TestEngineLoadFailureIsAnonymous(t *testing.T) {
	fs := &faultyStore{}
	te := newSessionTestEngine(t, nil)
	c := te.establish(t)

	engine, err := New().WithConfig(validTestConfig()).WithStore(fs).Build()
	if err != nil {
		t.Fatalf("Build: %v", err)
	}
	defer engine.Close()

	fs.failLoad = true
	r := newRequest(c)
	sess := engine.Begin(r)
	if !sess.IsEmpty() {
		t.Fatal("store outage must yield an anonymous session")
	}
	if got := engine.MetricsSnapshot().Counters[MetricStoreLoadFailure]; got != 1 {
		t.Fatalf("expected 1 load failure, got %d", got)
	}
}

func TestEnginePersistFailureOmitsCookie(t *testing.T) {
	fs := &faultyStore{failSave: true}
	sink := newCaptureSink(4)
	cfg := validTestConfig()
	cfg.Audit.Enabled = true
	engine, err := New().WithConfig(cfg).WithStore(fs).WithAuditSink(sink).Build()
	if err != nil {
		t.Fatalf("Build: %v", err)
	}
	defer engine.Close()

	r := newRequest(nil)
	sess := engine.Begin(r)
	_ = sess.Set("user_id", "u1")
	d := engine.Commit(r.Context(), sess, r)
	if d.Outcome != OutcomePersistFailed || d.Cookie != nil {
		t.Fatalf("expected persist failure without cookie, got %+v", d)
	}
	if !errors.Is(d.Err, session.ErrStoreUnavailable) {
		t.Fatalf("expected ErrStoreUnavailable, got %v", d.Err)
	}
	if got := engine.MetricsSnapshot().Counters[MetricSessionPersistFailed]; got != 1 {
		t.Fatalf("expected 1 persist failure, got %d", got)
	}

	select {
	case ev := <-sink.events:
		if ev.EventType != AuditSessionPersistFailed || ev.Success || ev.Error != "store_unavailable" {
			t.Fatalf("unexpected audit event %+v", ev)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("expected persist failure audit event")
	}
}

func TestEngineStoreTimeoutOnSave(t *testing.T) {
	cfg := validTestConfig()
	cfg.Store.OpTimeout = 20 * time.Millisecond
	engine, err := New().WithConfig(cfg).WithStore(&faultyStore{block: true}).Build()
	if err != nil {
		t.Fatalf("Build: %v", err)
	}
	defer engine.Close()

	r := newRequest(nil)
	sess := engine.Begin(r)
	_ = sess.Set("user_id", "u1")
	d := engine.Commit(r.Context(), sess, r)
	if d.Outcome != OutcomePersistFailed || !errors.Is(d.Err, session.ErrStoreTimeout) {
		t.Fatalf("expected timeout persist failure, got %+v", d)
	}
}

func TestEngineCommitSkippedWhenCancelled(t *testing.T) {
	te := newSessionTestEngine(t, nil)

	r := newRequest(nil)
	sess := te.Begin(r)
	_ = sess.Set("user_id", "u1")

	ctx, cancel := context.WithCancel(r.Context())
	cancel()
	d := te.Commit(ctx, sess, r)
	if d.Outcome != OutcomeSkipped || d.Cookie != nil {
		t.Fatalf("expected skipped decision, got %+v", d)
	}
	if n := len(te.mr.Keys()); n != 0 {
		t.Fatalf("cancelled request must not write, found %d keys", n)
	}
	if got := te.MetricsSnapshot().Counters[MetricCommitSkippedCancelled]; got != 1 {
		t.Fatalf("expected 1 skipped commit, got %d", got)
	}
}

func TestEngineDeletePreviousOnRotate(t *testing.T) {
	te := newSessionTestEngine(t, func(c *Config) { c.Session.DeletePreviousOnRotate = true })
	c := te.establish(t)
	prior := te.storeKey(t, c)

	r := newRequest(c)
	d := te.Commit(r.Context(), te.Begin(r), r)
	if d.Outcome != OutcomeRotated {
		t.Fatalf("expected rotation, got %+v", d)
	}
	if te.recordExists(prior) {
		t.Fatal("prior record should be deleted after rotation")
	}
	if !te.recordExists(te.storeKey(t, d.Cookie)) {
		t.Fatal("new record should exist")
	}
}

func TestEngineDeleteFailureStillClears(t *testing.T) {
	fs := &faultyStore{}
	engine, err := New().WithConfig(validTestConfig()).WithStore(fs).Build()
	if err != nil {
		t.Fatalf("Build: %v", err)
	}
	defer engine.Close()

	r := newRequest(nil)
	sess := engine.Begin(r)
	_ = sess.Set("user_id", "u1")
	c := engine.Commit(r.Context(), sess, r).Cookie

	fs.failDelete = true
	r = newRequest(c)
	sess = engine.Begin(r)
	sess.Clear()
	d := engine.Commit(r.Context(), sess, r)
	if d.Outcome != OutcomeCleared || d.Cookie == nil {
		t.Fatalf("expected cleared decision despite delete failure, got %+v", d)
	}
	if got := engine.MetricsSnapshot().Counters[MetricStoreDeleteFailure]; got != 1 {
		t.Fatalf("expected 1 delete failure, got %d", got)
	}
}

func TestEngineCookieSecurePolicy(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
		req    func(*http.Request)
		want   bool
	}{
		{name: "auto plain http", want: false},
		{name: "auto tls", req: func(r *http.Request) { r.TLS = &tls.ConnectionState{} }, want: true},
		{
			name: "auto forwarded proto untrusted",
			req:  func(r *http.Request) { r.Header.Set("X-Forwarded-Proto", "https") },
			want: false,
		},
		{
			name:   "auto forwarded proto trusted",
			mutate: func(c *Config) { c.Cookie.TrustForwardedProto = true },
			req:    func(r *http.Request) { r.Header.Set("X-Forwarded-Proto", "https") },
			want:   true,
		},
		{
			name:   "auto forwarded header trusted",
			mutate: func(c *Config) { c.Cookie.TrustForwardedProto = true },
			req:    func(r *http.Request) { r.Header.Set("Forwarded", "for=192.0.2.60;proto=https") },
			want:   true,
		},
		{name: "always", mutate: func(c *Config) { c.Cookie.Secure = SecureAlways }, want: true},
		{
			name:   "never over tls",
			mutate: func(c *Config) { c.Cookie.Secure = SecureNever },
			req:    func(r *http.Request) { r.TLS = &tls.ConnectionState{} },
			want:   false,
		},
		{
			name: "samesite none forces secure",
			mutate: func(c *Config) {
				c.Cookie.Secure = SecureNever
				c.Cookie.SameSite = http.SameSiteNoneMode
			},
			want: true,
		},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			te := newSessionTestEngine(t, tc.mutate)
			r := newRequest(nil)
			if tc.req != nil {
				tc.req(r)
			}
			sess := te.Begin(r)
			_ = sess.Set("user_id", "u1")
			d := te.Commit(r.Context(), sess, r)
			if d.Cookie == nil {
				t.Fatalf("expected cookie, got %+v", d)
			}
			if d.Cookie.Secure != tc.want {
				t.Fatalf("Secure=%v, want %v", d.Cookie.Secure, tc.want)
			}
		})
	}
}

func TestEngineCookieDomainAndName(t *testing.T) {
	te := newSessionTestEngine(t, func(c *Config) {
		c.Cookie.Name = "sid"
		c.Cookie.Domain = "example.com"
		c.Cookie.Path = "/app"
		c.Session.TTL = time.Hour
	})

	r := newRequest(nil)
	sess := te.Begin(r)
	_ = sess.Set("user_id", "u1")
	d := te.Commit(r.Context(), sess, r)
	if d.Cookie.Name != "sid" || d.Cookie.Domain != "example.com" || d.Cookie.Path != "/app" {
		t.Fatalf("unexpected cookie %+v", d.Cookie)
	}
	if d.Cookie.MaxAge != 3600 {
		t.Fatalf("expected Max-Age=3600, got %d", d.Cookie.MaxAge)
	}
	if ttl := te.mr.TTL(te.config.Store.Prefix + ":" + te.storeKey(t, d.Cookie)); ttl != time.Hour {
		t.Fatalf("expected record TTL of 1h, got %v", ttl)
	}
}

func TestEngineLoginRegenerates(t *testing.T) {
	verifier := staticVerifier{"alice": {password: "pw-alice", subject: "u1", attrs: map[string]string{"role": "admin"}}}
	te := newSessionTestEngine(t, nil, func(b *Builder) { b.WithCredentialVerifier(verifier) })

	// anonymous visitor with a pre-login attribute
	r := newRequest(nil)
	sess := te.Begin(r)
	_ = sess.Set("theme", "dark")
	c := te.Commit(r.Context(), sess, r).Cookie
	prior := te.storeKey(t, c)

	r = newRequest(c)
	sess = te.Begin(r)
	subject, err := te.Login(r.Context(), sess, "alice", "pw-alice")
	if err != nil || subject != "u1" {
		t.Fatalf("login: subject=%q err=%v", subject, err)
	}
	if got, _ := sess.GetString("role"); got != "admin" {
		t.Fatalf("expected role attribute, got %q", got)
	}
	if !sess.RegenerateRequested() {
		t.Fatal("login must request regeneration")
	}

	d := te.Commit(r.Context(), sess, r)
	if d.Outcome != OutcomeRotated {
		t.Fatalf("expected rotation, got %+v", d)
	}
	if te.recordExists(prior) {
		t.Fatal("pre-login record must be deleted after login")
	}
	if got := te.Subject(te.Begin(newRequest(d.Cookie))); got != "u1" {
		t.Fatalf("expected subject u1, got %q", got)
	}
	if got := te.MetricsSnapshot().Counters[MetricLoginSuccess]; got != 1 {
		t.Fatalf("expected 1 login success, got %d", got)
	}
}

func TestEngineReloginDropsPreviousAttributes(t *testing.T) {
	verifier := staticVerifier{
		"alice": {password: "pw-alice", subject: "u1", attrs: map[string]string{"role": "admin"}},
		"bob":   {password: "pw-bob", subject: "u2"},
	}
	te := newSessionTestEngine(t, nil, func(b *Builder) { b.WithCredentialVerifier(verifier) })

	r := newRequest(nil)
	sess := te.Begin(r)
	if _, err := te.Login(r.Context(), sess, "alice", "pw-alice"); err != nil {
		t.Fatalf("login alice: %v", err)
	}
	_ = sess.Set("cart", 3)
	c := te.Commit(r.Context(), sess, r).Cookie

	r = newRequest(c)
	sess = te.Begin(r)
	if got, _ := sess.GetString("role"); got != "admin" {
		t.Fatalf("expected alice's role to load, got %q", got)
	}
	if _, err := te.Login(r.Context(), sess, "bob", "pw-bob"); err != nil {
		t.Fatalf("login bob: %v", err)
	}
	d := te.Commit(r.Context(), sess, r)
	if d.Outcome != OutcomeRotated {
		t.Fatalf("expected rotation, got %+v", d)
	}

	loaded := te.Begin(newRequest(d.Cookie))
	if got := te.Subject(loaded); got != "u2" {
		t.Fatalf("expected subject u2, got %q", got)
	}
	for _, k := range []string{"role", "cart"} {
		if loaded.Has(k) {
			t.Fatalf("attribute %q from the previous login must not survive", k)
		}
	}
}

func TestEngineLoginRejected(t *testing.T) {
	verifier := staticVerifier{"alice": {password: "pw-alice", subject: "u1"}}
	te := newSessionTestEngine(t, nil, func(b *Builder) { b.WithCredentialVerifier(verifier) })

	r := newRequest(nil)
	sess := te.Begin(r)
	if _, err := te.Login(r.Context(), sess, "alice", "wrong"); !errors.Is(err, ErrInvalidCredentials) {
		t.Fatalf("expected ErrInvalidCredentials, got %v", err)
	}
	if !sess.IsEmpty() || sess.RegenerateRequested() {
		t.Fatal("failed login must leave the session untouched")
	}
	if d := te.Commit(r.Context(), sess, r); d.Outcome != OutcomeNoop {
		t.Fatalf("expected noop after failed login, got %+v", d)
	}
	if got := te.MetricsSnapshot().Counters[MetricLoginFailure]; got != 1 {
		t.Fatalf("expected 1 login failure, got %d", got)
	}
}

func TestEngineLoginThrottle(t *testing.T) {
	throttleRedis := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: throttleRedis.Addr(), MaxRetries: -1})
	t.Cleanup(func() { rdb.Close() })

	verifier := staticVerifier{"alice": {password: "pw-alice", subject: "u1"}}
	te := newSessionTestEngine(t, func(cfg *Config) {
		cfg.Login.MaxAttempts = 2
		cfg.Login.Window = time.Minute
	}, func(b *Builder) {
		b.WithCredentialVerifier(verifier).WithThrottleRedis(rdb)
	})
	ctx := context.Background()

	for i := 0; i < 2; i++ {
		if _, err := te.Login(ctx, session.New(), "alice", "wrong"); !errors.Is(err, ErrInvalidCredentials) {
			t.Fatalf("attempt %d: expected ErrInvalidCredentials, got %v", i, err)
		}
	}
	// correct password is refused while throttled
	if _, err := te.Login(ctx, session.New(), "alice", "pw-alice"); !errors.Is(err, ErrLoginThrottled) {
		t.Fatalf("expected ErrLoginThrottled, got %v", err)
	}
	if got := te.MetricsSnapshot().Counters[MetricLoginThrottled]; got != 1 {
		t.Fatalf("expected 1 throttled login, got %d", got)
	}

	throttleRedis.FastForward(time.Minute + time.Second)
	if _, err := te.Login(ctx, session.New(), "alice", "pw-alice"); err != nil {
		t.Fatalf("expected login after window, got %v", err)
	}
	if throttleRedis.Exists(validTestConfig().Store.Prefix + ":login:u:alice") {
		t.Fatal("successful login must reset the failure counter")
	}
}

func TestEngineLoginThrottleFailsOpen(t *testing.T) {
	throttleRedis := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: throttleRedis.Addr(), MaxRetries: -1})
	t.Cleanup(func() { rdb.Close() })

	verifier := staticVerifier{"alice": {password: "pw-alice", subject: "u1"}}
	te := newSessionTestEngine(t, nil, func(b *Builder) {
		b.WithCredentialVerifier(verifier).WithThrottleRedis(rdb)
	})
	throttleRedis.Close()

	if _, err := te.Login(context.Background(), session.New(), "alice", "pw-alice"); err != nil {
		t.Fatalf("throttle outage must not block login, got %v", err)
	}
}

func TestEngineLoginWithoutVerifierOrSession(t *testing.T) {
	te := newSessionTestEngine(t, nil)
	if _, err := te.Login(context.Background(), session.New(), "a", "b"); !errors.Is(err, ErrEngineNotReady) {
		t.Fatalf("expected ErrEngineNotReady, got %v", err)
	}

	te = newSessionTestEngine(t, nil, func(b *Builder) { b.WithCredentialVerifier(staticVerifier{}) })
	if _, err := te.Login(context.Background(), nil, "a", "b"); !errors.Is(err, ErrNoSession) {
		t.Fatalf("expected ErrNoSession, got %v", err)
	}
	if err := te.Logout(context.Background(), nil); !errors.Is(err, ErrNoSession) {
		t.Fatalf("expected ErrNoSession, got %v", err)
	}
}

func TestBuilderMetricsToggles(t *testing.T) {
	te := newSessionTestEngine(t, nil, func(b *Builder) { b.WithLatencyHistograms(false) })
	te.Begin(newRequest(te.establish(t)))
	snap := te.MetricsSnapshot()
	if got := snap.Counters[MetricSessionLoaded]; got != 1 {
		t.Fatalf("expected 1 loaded session, got %d", got)
	}
	var observed uint64
	for _, n := range snap.Histograms[MetricStoreLatency] {
		observed += n
	}
	if observed != 0 {
		t.Fatalf("expected no latency samples with histograms off, got %d", observed)
	}

	te = newSessionTestEngine(t, nil, func(b *Builder) { b.WithMetricsEnabled(false) })
	te.establish(t)
	if got := te.MetricsSnapshot().Counters[MetricSessionCreated]; got != 0 {
		t.Fatalf("expected counters to stay at zero when disabled, got %d", got)
	}
}

func TestBuilderErrors(t *testing.T) {
	if _, err := New().WithConfig(validTestConfig()).Build(); !errors.Is(err, ErrStoreRequired) {
		t.Fatalf("expected ErrStoreRequired, got %v", err)
	}

	if _, err := New().WithStore(&faultyStore{}).Build(); !errors.Is(err, ErrConfig) {
		t.Fatalf("expected ErrConfig without a secret, got %v", err)
	}

	cfg := validTestConfig()
	cfg.Token.Secret = []byte("short")
	if _, err := New().WithConfig(cfg).WithStore(&faultyStore{}).Build(); !errors.Is(err, ErrConfig) {
		t.Fatalf("expected ErrConfig for a short secret, got %v", err)
	}

	b := New().WithConfig(validTestConfig()).WithStore(&faultyStore{})
	engine, err := b.Build()
	if err != nil {
		t.Fatalf("first Build: %v", err)
	}
	defer engine.Close()
	if _, err := b.Build(); !errors.Is(err, ErrBuilderUsed) {
		t.Fatalf("expected ErrBuilderUsed, got %v", err)
	}
}

func TestNilEngineIsSafe(t *testing.T) {
	var e *Engine
	e.Close()
	if e.AuditDropped() != 0 {
		t.Fatal("nil engine should report zero drops")
	}
	if len(e.MetricsSnapshot().Counters) != 0 {
		t.Fatal("nil engine should report no counters")
	}
	if !e.Begin(newRequest(nil)).IsEmpty() {
		t.Fatal("nil engine should begin empty sessions")
	}
	if d := e.Commit(context.Background(), session.New(), nil); d.Outcome != OutcomeNoop {
		t.Fatalf("nil engine commit should be a noop, got %+v", d)
	}
}

// faultyStore is an in-memory store with switchable failures.
type faultyStore struct {
	failLoad   bool
	failSave   bool
	failDelete bool
	block      bool
	records    map[string]session.Attributes
}

func (s *faultyStore) Load(ctx context.Context, key string) (session.Attributes, bool, error) {
	if s.block {
		<-ctx.Done()
		return nil, false, ctx.Err()
	}
	if s.failLoad {
		return nil, false, fmt.Errorf("%w: connection refused", session.ErrStoreUnavailable)
	}
	attrs, ok := s.records[key]
	return attrs.Clone(), ok, nil
}

func (s *faultyStore) Save(ctx context.Context, key string, attrs session.Attributes, ttl time.Duration) error {
	if s.block {
		<-ctx.Done()
		return ctx.Err()
	}
	if s.failSave {
		return fmt.Errorf("%w: connection refused", session.ErrStoreUnavailable)
	}
	if s.records == nil {
		s.records = map[string]session.Attributes{}
	}
	if _, exists := s.records[key]; exists {
		return session.ErrKeyExists
	}
	s.records[key] = attrs.Clone()
	return nil
}

func (s *faultyStore) Delete(ctx context.Context, key string) error {
	if s.block {
		<-ctx.Done()
		return ctx.Err()
	}
	if s.failDelete {
		return fmt.Errorf("%w: connection refused", session.ErrStoreUnavailable)
	}
	delete(s.records, key)
	return nil
}

type staticUser struct {
	password string
	subject  string
	attrs    map[string]string
}

type staticVerifier map[string]staticUser

func (v staticVerifier) Verify(_ context.Context, username, password string) (string, map[string]string, error) {
	u, ok := v[username]
	if !ok || u.password != password {
		return "", nil, ErrInvalidCredentials
	}
	return u.subject, u.attrs, nil
}
