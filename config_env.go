package goSession

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

// Environment variables read by LoadConfigFromEnv.
const (
	EnvJWTSecretKey          = "JWT_SECRET_KEY"
	EnvJWTPreviousSecretKeys = "JWT_PREVIOUS_SECRET_KEYS"
	EnvJWTAlgorithm          = "JWT_ALGORITHM"
	EnvJWTIssuer             = "JWT_ISSUER"
	EnvJWTLeeway             = "JWT_LEEWAY"
	EnvSessionTTL            = "SESSION_TTL"
	EnvSessionDeletePrevious = "SESSION_DELETE_PREVIOUS_ON_ROTATE"
	EnvCookieName            = "SESSION_COOKIE_NAME"
	EnvCookiePath            = "SESSION_COOKIE_PATH"
	EnvCookieSameSite        = "SESSION_COOKIE_SAMESITE"
	EnvCookieSecure          = "SESSION_COOKIE_SECURE"
	EnvCookieDomain          = "SESSION_COOKIE_DOMAIN"
	EnvCookieTrustProxy      = "SESSION_COOKIE_TRUST_PROXY"
	EnvStoreBackend          = "SESSION_STORE_BACKEND"
	EnvStorePrefix           = "SESSION_STORE_PREFIX"
	EnvStoreTimeout          = "SESSION_STORE_TIMEOUT"
	EnvRedisDSN              = "REDIS_DSN"
	EnvPostgresDSN           = "POSTGRES_DSN"
	EnvBoltPath              = "BOLT_PATH"
	EnvLoginMaxAttempts      = "LOGIN_MAX_ATTEMPTS"
	EnvLoginWindow           = "LOGIN_WINDOW"
	EnvLoginPerIP            = "LOGIN_THROTTLE_PER_IP"
	EnvMetricsEnabled        = "METRICS_ENABLED"
	EnvAuditEnabled          = "AUDIT_ENABLED"
)

// LoadConfigFromEnv starts from [DefaultConfig] and applies every variable
// that is set. The result is validated.
func LoadConfigFromEnv() (Config, error) {
	return LoadConfigFromLookup(os.LookupEnv)
}

// LoadConfigFromLookup is LoadConfigFromEnv with an injectable lookup.
func LoadConfigFromLookup(lookup func(string) (string, bool)) (Config, error) {
	cfg := DefaultConfig()
	l := envLoader{lookup: lookup}

	if v, ok := l.str(EnvJWTSecretKey); ok {
		cfg.Token.Secret = []byte(v)
	}
	if v, ok := l.str(EnvJWTPreviousSecretKeys); ok {
		for _, k := range strings.Split(v, ",") {
			if k = strings.TrimSpace(k); k != "" {
				cfg.Token.VerifyKeys = append(cfg.Token.VerifyKeys, []byte(k))
			}
		}
	}
	if v, ok := l.str(EnvJWTAlgorithm); ok {
		cfg.Token.SigningMethod = strings.ToLower(v)
	}
	if v, ok := l.str(EnvJWTIssuer); ok {
		cfg.Token.Issuer = v
	}
	l.duration(EnvJWTLeeway, &cfg.Token.Leeway)

	l.duration(EnvSessionTTL, &cfg.Session.TTL)
	l.boolean(EnvSessionDeletePrevious, &cfg.Session.DeletePreviousOnRotate)

	if v, ok := l.str(EnvCookieName); ok {
		cfg.Cookie.Name = v
	}
	if v, ok := l.str(EnvCookiePath); ok {
		cfg.Cookie.Path = v
	}
	if v, ok := l.str(EnvCookieDomain); ok {
		cfg.Cookie.Domain = v
	}
	if v, ok := l.str(EnvCookieSameSite); ok {
		mode, err := ParseSameSite(v)
		if err != nil {
			l.fail(EnvCookieSameSite, err)
		}
		cfg.Cookie.SameSite = mode
	}
	if v, ok := l.str(EnvCookieSecure); ok {
		policy, err := ParseSecurePolicy(v)
		if err != nil {
			l.fail(EnvCookieSecure, err)
		}
		cfg.Cookie.Secure = policy
	}
	l.boolean(EnvCookieTrustProxy, &cfg.Cookie.TrustForwardedProto)

	if v, ok := l.str(EnvStoreBackend); ok {
		cfg.Store.Backend = strings.ToLower(v)
	}
	if v, ok := l.str(EnvStorePrefix); ok {
		cfg.Store.Prefix = v
	}
	l.duration(EnvStoreTimeout, &cfg.Store.OpTimeout)
	if v, ok := l.str(EnvRedisDSN); ok {
		cfg.Store.RedisDSN = v
	}
	if v, ok := l.str(EnvPostgresDSN); ok {
		cfg.Store.PostgresDSN = v
	}
	if v, ok := l.str(EnvBoltPath); ok {
		cfg.Store.BoltPath = v
	}

	l.integer(EnvLoginMaxAttempts, &cfg.Login.MaxAttempts)
	l.duration(EnvLoginWindow, &cfg.Login.Window)
	l.boolean(EnvLoginPerIP, &cfg.Login.PerIP)

	l.boolean(EnvMetricsEnabled, &cfg.Metrics.Enabled)
	cfg.Metrics.EnableLatencyHistograms = cfg.Metrics.Enabled
	l.boolean(EnvAuditEnabled, &cfg.Audit.Enabled)

	if l.err != nil {
		return Config{}, l.err
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

type envLoader struct {
	lookup func(string) (string, bool)
	err    error
}

func (l *envLoader) str(name string) (string, bool) {
	v, ok := l.lookup(name)
	if !ok {
		return "", false
	}
	v = strings.TrimSpace(v)
	return v, v != ""
}

func (l *envLoader) duration(name string, dst *time.Duration) {
	v, ok := l.str(name)
	if !ok {
		return
	}
	// bare integers are seconds
	if n, err := strconv.ParseInt(v, 10, 64); err == nil {
		*dst = time.Duration(n) * time.Second
		return
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		l.fail(name, err)
		return
	}
	*dst = d
}

func (l *envLoader) boolean(name string, dst *bool) {
	v, ok := l.str(name)
	if !ok {
		return
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		l.fail(name, err)
		return
	}
	*dst = b
}

func (l *envLoader) integer(name string, dst *int) {
	v, ok := l.str(name)
	if !ok {
		return
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		l.fail(name, err)
		return
	}
	*dst = n
}

func (l *envLoader) fail(name string, err error) {
	if l.err == nil {
		l.err = fmt.Errorf("%w: %s: %v", ErrConfig, name, err)
	}
}
