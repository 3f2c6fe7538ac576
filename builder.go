package goSession

import (
	"fmt"
	"io"
	"log/slog"
	"time"

	"github.com/MrEthical07/goSession/internal/rate"
	"github.com/MrEthical07/goSession/jwt"
	"github.com/MrEthical07/goSession/session"
	"github.com/MrEthical07/goSession/token"
	"github.com/redis/go-redis/v9"
)

// Builder assembles an [Engine]. Configure it once, then call Build.
type Builder struct {
	config    Config
	store     session.Store
	codec     token.Codec
	verifier  CredentialVerifier
	logger    *slog.Logger
	auditSink AuditSink
	throttle  redis.UniversalClient
	now       func() time.Time

	built bool
}

// New returns a builder seeded with [DefaultConfig].
func New() *Builder {
	return &Builder{
		config: DefaultConfig(),
	}
}

// WithConfig replaces the configuration. cfg is copied.
func (b *Builder) WithConfig(cfg Config) *Builder {
	b.config = cloneConfig(cfg)
	return b
}

// WithStore sets the session store. Build wraps it with Config.Store.OpTimeout.
func (b *Builder) WithStore(store session.Store) *Builder {
	b.store = store
	return b
}

// WithCodec overrides the token codec Build would construct from Config.Token.
func (b *Builder) WithCodec(codec token.Codec) *Builder {
	b.codec = codec
	return b
}

// WithCredentialVerifier enables [Engine.Login].
func (b *Builder) WithCredentialVerifier(v CredentialVerifier) *Builder {
	b.verifier = v
	return b
}

// WithLogger sets the structured logger. The default discards output.
func (b *Builder) WithLogger(logger *slog.Logger) *Builder {
	b.logger = logger
	return b
}

// WithAuditSink sets the audit destination. Audit must also be enabled in Config.
func (b *Builder) WithAuditSink(sink AuditSink) *Builder {
	b.auditSink = sink
	return b
}

// WithThrottleRedis enables the failed-login throttle described by
// Config.Login, counting attempts in rdb.
func (b *Builder) WithThrottleRedis(rdb redis.UniversalClient) *Builder {
	b.throttle = rdb
	return b
}

// WithMetricsEnabled turns the in-process counters on or off.
func (b *Builder) WithMetricsEnabled(enabled bool) *Builder {
	b.config.Metrics.Enabled = enabled
	return b
}

// WithLatencyHistograms toggles the store latency histogram. It has no
// effect while metrics are disabled.
func (b *Builder) WithLatencyHistograms(enabled bool) *Builder {
	b.config.Metrics.EnableLatencyHistograms = enabled
	return b
}

// WithClock overrides the time source used for token timestamps and cookie expiry.
func (b *Builder) WithClock(now func() time.Time) *Builder {
	b.now = now
	return b
}

// Build validates the configuration and returns a ready engine. A Builder
// can be built once.
func (b *Builder) Build() (*Engine, error) {
	if b.built {
		return nil, ErrBuilderUsed
	}

	cfg := cloneConfig(b.config)
	if b.codec != nil && len(cfg.Token.Secret) == 0 {
		// codec supplied directly, key material lives with it
		cfg.Token.Secret = []byte("external")
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if b.store == nil {
		return nil, ErrStoreRequired
	}

	now := b.now
	if now == nil {
		now = time.Now
	}

	codec := b.codec
	if codec == nil {
		method, err := jwt.ParseSigningMethod(cfg.Token.SigningMethod)
		if err != nil {
			return nil, fmt.Errorf("%w: %v", ErrConfig, err)
		}
		mgr, err := jwt.NewManager(jwt.Config{
			TTL:           cfg.Session.TTL,
			SigningMethod: method,
			PrivateKey:    cfg.Token.Secret,
			PublicKey:     cfg.Token.PublicKey,
			VerifyKeys:    cfg.Token.VerifyKeys,
			Issuer:        cfg.Token.Issuer,
			Leeway:        cfg.Token.Leeway,
			Now:           now,
		})
		if err != nil {
			return nil, fmt.Errorf("%w: %v", ErrConfig, err)
		}
		codec = mgr
	}

	logger := b.logger
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}

	var throttle *rate.Limiter
	if b.throttle != nil && cfg.Login.MaxAttempts > 0 {
		throttle = rate.New(b.throttle, rate.Config{
			MaxAttempts: cfg.Login.MaxAttempts,
			Window:      cfg.Login.Window,
			PerIP:       cfg.Login.PerIP,
			Prefix:      cfg.Store.Prefix,
		})
	}

	b.built = true

	return &Engine{
		config:   cfg,
		codec:    codec,
		store:    session.WithTimeout(b.store, cfg.Store.OpTimeout),
		verifier: b.verifier,
		throttle: throttle,
		logger:   logger,
		audit:    newAuditDispatcher(cfg.Audit, b.auditSink),
		metrics:  NewMetrics(cfg.Metrics),
		now:      now,
	}, nil
}
