package goSession

import (
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/MrEthical07/goSession/jwt"
)

// Config is the immutable engine configuration. Build it with [DefaultConfig]
// or [LoadConfigFromEnv], adjust fields, and pass it to [Builder.WithConfig].
type Config struct {
	Token   TokenConfig
	Session SessionConfig
	Cookie  CookieConfig
	Store   StoreConfig
	Login   LoginConfig
	Audit   AuditConfig
	Metrics MetricsConfig
}

/*
====================================
TOKEN CONFIG
====================================
*/

// TokenConfig selects the signing algorithm and key material for session tokens.
type TokenConfig struct {
	SigningMethod string // "hs256" (default), "hs384", "hs512", "ed25519"
	// Secret is the HMAC secret, or the Ed25519 private key (raw or PEM).
	Secret    []byte
	PublicKey []byte
	// VerifyKeys are retired secrets or public keys accepted during rotation.
	VerifyKeys [][]byte
	Issuer     string
	Leeway     time.Duration
}

/*
====================================
SESSION CONFIG
====================================
*/

// SessionConfig controls record lifetime and rotation.
type SessionConfig struct {
	// TTL bounds both the stored record and the token expiry.
	TTL time.Duration
	// DeletePreviousOnRotate deletes the prior record after each successful
	// rotation instead of leaving it to expire.
	DeletePreviousOnRotate bool
	// SubjectAttribute is the attribute Login writes and Subject reads.
	SubjectAttribute string
}

/*
====================================
COOKIE CONFIG
====================================
*/

// SecurePolicy decides when the Secure cookie attribute is set.
type SecurePolicy string

const (
	// SecureAuto sets Secure only when the request arrived over TLS, or via a
	// trusted proxy that reports https.
	SecureAuto SecurePolicy = "auto"
	// SecureAlways always sets Secure.
	SecureAlways SecurePolicy = "always"
	// SecureNever never sets Secure. SameSite=None overrides it.
	SecureNever SecurePolicy = "never"
)

// CookieConfig describes the transport cookie. HttpOnly is always set.
type CookieConfig struct {
	Name     string
	Path     string
	Domain   string
	SameSite http.SameSite
	Secure   SecurePolicy
	// TrustForwardedProto honours X-Forwarded-Proto and Forwarded headers under SecureAuto.
	TrustForwardedProto bool
}

/*
====================================
STORE CONFIG
====================================
*/

// Store backends understood by cmd/sessiond.
const (
	StoreBackendRedis    = "redis"
	StoreBackendPostgres = "postgres"
	StoreBackendBolt     = "bolt"
)

// StoreConfig bounds store calls and names the backend for servers that
// construct their own store.
type StoreConfig struct {
	Backend   string
	Prefix    string
	OpTimeout time.Duration

	RedisDSN    string
	PostgresDSN string
	BoltPath    string
	// SweepInterval paces expired-record cleanup for the bolt and postgres backends.
	SweepInterval time.Duration
}

/*
====================================
LOGIN CONFIG
====================================
*/

// LoginConfig throttles failed logins. It takes effect only when the engine
// is built with [Builder.WithThrottleRedis]. MaxAttempts 0 disables it.
type LoginConfig struct {
	MaxAttempts int
	Window      time.Duration
	PerIP       bool
}

/*
====================================
OBSERVABILITY CONFIG
====================================
*/

// AuditConfig controls the asynchronous audit dispatcher.
type AuditConfig struct {
	Enabled    bool
	BufferSize int
	DropIfFull bool
}

// MetricsConfig controls the in-process counters.
type MetricsConfig struct {
	Enabled                 bool
	EnableLatencyHistograms bool
}

/*
====================================
DEFAULT CONFIG
====================================
*/

// DefaultConfig returns the baseline configuration. Token.Secret must still be set.
func DefaultConfig() Config {
	return Config{
		Token: TokenConfig{
			SigningMethod: string(jwt.MethodHS256),
		},
		Session: SessionConfig{
			TTL:              14 * 24 * time.Hour,
			SubjectAttribute: "user_id",
		},
		Cookie: CookieConfig{
			Name:     "session",
			Path:     "/",
			SameSite: http.SameSiteLaxMode,
			Secure:   SecureAuto,
		},
		Store: StoreConfig{
			Backend:       StoreBackendRedis,
			Prefix:        "sess",
			OpTimeout:     2 * time.Second,
			RedisDSN:      "redis://localhost:6379/0",
			BoltPath:      "sessions.db",
			SweepInterval: time.Minute,
		},
		Login: LoginConfig{
			MaxAttempts: 5,
			Window:      15 * time.Minute,
		},
		Audit: AuditConfig{
			Enabled:    false,
			BufferSize: 1024,
			DropIfFull: true,
		},
		Metrics: MetricsConfig{
			Enabled:                 true,
			EnableLatencyHistograms: true,
		},
	}
}

func cloneConfig(cfg Config) Config {
	out := cfg
	out.Token.Secret = cloneBytes(cfg.Token.Secret)
	out.Token.PublicKey = cloneBytes(cfg.Token.PublicKey)
	if cfg.Token.VerifyKeys != nil {
		out.Token.VerifyKeys = make([][]byte, len(cfg.Token.VerifyKeys))
		for i, k := range cfg.Token.VerifyKeys {
			out.Token.VerifyKeys[i] = cloneBytes(k)
		}
	}
	return out
}

func cloneBytes(b []byte) []byte {
	if b == nil {
		return nil
	}
	out := make([]byte, len(b))
	copy(out, b)
	return out
}

/*
====================================
VALIDATION
====================================
*/

// Validate checks field-level constraints. Key material is checked again
// when the token codec is constructed in Build. Every error wraps [ErrConfig].
func (c *Config) Validate() error {
	// Token
	if _, err := jwt.ParseSigningMethod(c.Token.SigningMethod); err != nil {
		return fmt.Errorf("%w: Token.SigningMethod: %v", ErrConfig, err)
	}
	if len(c.Token.Secret) == 0 {
		return fmt.Errorf("%w: Token.Secret is required", ErrConfig)
	}
	if c.Token.Leeway < 0 || c.Token.Leeway > 2*time.Minute {
		return fmt.Errorf("%w: Token.Leeway must be within [0, 2m]", ErrConfig)
	}

	// Session
	if c.Session.TTL <= 0 {
		return fmt.Errorf("%w: Session.TTL must be > 0", ErrConfig)
	}
	if c.Session.TTL < time.Second {
		return fmt.Errorf("%w: Session.TTL must be at least 1s", ErrConfig)
	}
	if strings.TrimSpace(c.Session.SubjectAttribute) == "" {
		return fmt.Errorf("%w: Session.SubjectAttribute is required", ErrConfig)
	}

	// Cookie
	if !validCookieName(c.Cookie.Name) {
		return fmt.Errorf("%w: Cookie.Name %q is not a valid cookie name", ErrConfig, c.Cookie.Name)
	}
	if !strings.HasPrefix(c.Cookie.Path, "/") {
		return fmt.Errorf("%w: Cookie.Path must start with /", ErrConfig)
	}
	switch c.Cookie.SameSite {
	case http.SameSiteLaxMode, http.SameSiteStrictMode, http.SameSiteNoneMode:
	default:
		return fmt.Errorf("%w: Cookie.SameSite must be lax, strict or none", ErrConfig)
	}
	switch c.Cookie.Secure {
	case SecureAuto, SecureAlways, SecureNever:
	default:
		return fmt.Errorf("%w: Cookie.Secure must be auto, always or never", ErrConfig)
	}

	// Store
	if c.Store.OpTimeout < 0 {
		return fmt.Errorf("%w: Store.OpTimeout must be >= 0", ErrConfig)
	}
	switch c.Store.Backend {
	case StoreBackendRedis, StoreBackendPostgres, StoreBackendBolt:
	default:
		return fmt.Errorf("%w: Store.Backend %q is not supported", ErrConfig, c.Store.Backend)
	}

	// Login
	if c.Login.MaxAttempts < 0 {
		return fmt.Errorf("%w: Login.MaxAttempts must be >= 0", ErrConfig)
	}
	if c.Login.MaxAttempts > 0 && c.Login.Window <= 0 {
		return fmt.Errorf("%w: Login.Window must be > 0 when throttling is enabled", ErrConfig)
	}

	// Audit
	if c.Audit.Enabled && c.Audit.BufferSize <= 0 {
		return fmt.Errorf("%w: Audit.BufferSize must be > 0 when audit is enabled", ErrConfig)
	}

	return nil
}

// validCookieName accepts RFC 6265 token characters.
func validCookieName(name string) bool {
	if name == "" {
		return false
	}
	for i := 0; i < len(name); i++ {
		c := name[i]
		if c <= ' ' || c >= 0x7f || strings.IndexByte("()<>@,;:\\\"/[]?={}", c) >= 0 {
			return false
		}
	}
	return true
}

// ParseSameSite maps "lax", "strict" and "none" (case-insensitive) to http.SameSite.
func ParseSameSite(s string) (http.SameSite, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "lax", "":
		return http.SameSiteLaxMode, nil
	case "strict":
		return http.SameSiteStrictMode, nil
	case "none":
		return http.SameSiteNoneMode, nil
	default:
		return 0, fmt.Errorf("%w: unknown SameSite mode %q", ErrConfig, s)
	}
}

// ParseSecurePolicy accepts auto/always/never and the boolean spellings true/false.
func ParseSecurePolicy(s string) (SecurePolicy, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "auto", "":
		return SecureAuto, nil
	case "always", "true", "1":
		return SecureAlways, nil
	case "never", "false", "0":
		return SecureNever, nil
	default:
		return "", fmt.Errorf("%w: unknown secure policy %q", ErrConfig, s)
	}
}
