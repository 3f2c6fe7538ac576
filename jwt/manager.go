package jwt

import (
	"crypto/ed25519"
	"encoding/base64"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/MrEthical07/goSession/token"
	gjwt "github.com/golang-jwt/jwt/v5"
)

// SigningMethod selects the JWS algorithm used for session tokens. It is fixed
// for the lifetime of a [Manager].
type SigningMethod string

const (
	// MethodHS256 signs with HMAC-SHA256 over a shared secret.
	MethodHS256 SigningMethod = "hs256"
	// MethodHS384 signs with HMAC-SHA384 over a shared secret.
	MethodHS384 SigningMethod = "hs384"
	// MethodHS512 signs with HMAC-SHA512 over a shared secret.
	MethodHS512 SigningMethod = "hs512"
	// MethodEd25519 signs with an Ed25519 private key (JWS "EdDSA").
	MethodEd25519 SigningMethod = "ed25519"
)

// MinHMACKeyBytes is the smallest accepted HMAC secret.
const MinHMACKeyBytes = 32

const maxLeeway = 2 * time.Minute

// ErrInvalidConfig is returned by [NewManager] for unusable signing configuration.
var ErrInvalidConfig = errors.New("invalid token signing configuration")

// Config describes the process-wide signing configuration.
type Config struct {
	TTL           time.Duration
	SigningMethod SigningMethod
	// PrivateKey is the HMAC secret, or the Ed25519 private key (raw or PEM).
	PrivateKey []byte
	// PublicKey is the Ed25519 public key (raw or PEM). Derived from PrivateKey when empty.
	PublicKey []byte
	Issuer    string
	Leeway    time.Duration
	// VerifyKeys holds retired secrets (HMAC) or public keys (Ed25519) that are
	// still accepted for verification but never used for signing.
	VerifyKeys [][]byte
	// Now overrides the clock. Nil means time.Now.
	Now func() time.Time
}

// Manager is the JWT implementation of [token.Codec].
//
// Manager instances are immutable after [NewManager] and safe for concurrent use.
type Manager struct {
	config     Config
	method     gjwt.SigningMethod
	signKey    any
	verifyKeys []any
	parser     *gjwt.Parser
}

var _ token.Codec = (*Manager)(nil)

type sessionClaims struct {
	StoreKey string `json:"session_key"`
	gjwt.RegisteredClaims
}

// ParseSigningMethod accepts the usual spellings ("HS256", "hs256", "EdDSA", "ed25519").
func ParseSigningMethod(name string) (SigningMethod, error) {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "hs256":
		return MethodHS256, nil
	case "hs384":
		return MethodHS384, nil
	case "hs512":
		return MethodHS512, nil
	case "ed25519", "eddsa":
		return MethodEd25519, nil
	default:
		return "", fmt.Errorf("%w: unsupported signing method %q", ErrInvalidConfig, name)
	}
}

// NewManager validates cfg and returns a ready codec. Every error wraps
// [ErrInvalidConfig]; callers must treat it as fatal.
func NewManager(cfg Config) (*Manager, error) {
	if cfg.TTL <= 0 {
		return nil, fmt.Errorf("%w: ttl must be positive", ErrInvalidConfig)
	}
	if cfg.Leeway < 0 || cfg.Leeway > maxLeeway {
		return nil, fmt.Errorf("%w: leeway must be within [0, %s]", ErrInvalidConfig, maxLeeway)
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}

	m := &Manager{config: cfg}

	switch cfg.SigningMethod {
	case MethodHS256, MethodHS384, MethodHS512:
		m.method = hmacMethod(cfg.SigningMethod)
		if len(cfg.PrivateKey) < MinHMACKeyBytes {
			return nil, fmt.Errorf("%w: %s secret must be at least %d bytes", ErrInvalidConfig, cfg.SigningMethod, MinHMACKeyBytes)
		}
		secret := cloneBytes(cfg.PrivateKey)
		m.signKey = secret
		m.verifyKeys = append(m.verifyKeys, secret)
		for i, k := range cfg.VerifyKeys {
			if len(k) < MinHMACKeyBytes {
				return nil, fmt.Errorf("%w: verify key %d shorter than %d bytes", ErrInvalidConfig, i, MinHMACKeyBytes)
			}
			m.verifyKeys = append(m.verifyKeys, cloneBytes(k))
		}
	case MethodEd25519:
		m.method = gjwt.SigningMethodEdDSA
		priv, err := parseEdPrivateKey(cfg.PrivateKey)
		if err != nil {
			return nil, err
		}
		m.signKey = priv
		pub := priv.Public().(ed25519.PublicKey)
		if len(cfg.PublicKey) > 0 {
			explicit, err := parseEdPublicKey(cfg.PublicKey)
			if err != nil {
				return nil, err
			}
			if !explicit.Equal(pub) {
				return nil, fmt.Errorf("%w: ed25519 public key does not match private key", ErrInvalidConfig)
			}
		}
		m.verifyKeys = append(m.verifyKeys, pub)
		for i, k := range cfg.VerifyKeys {
			retired, err := parseEdPublicKey(k)
			if err != nil {
				return nil, fmt.Errorf("verify key %d: %w", i, err)
			}
			m.verifyKeys = append(m.verifyKeys, retired)
		}
	default:
		return nil, fmt.Errorf("%w: unsupported signing method %q", ErrInvalidConfig, cfg.SigningMethod)
	}

	options := []gjwt.ParserOption{
		gjwt.WithValidMethods([]string{m.method.Alg()}),
		gjwt.WithExpirationRequired(),
		gjwt.WithTimeFunc(cfg.Now),
		gjwt.WithStrictDecoding(),
	}
	if cfg.Leeway > 0 {
		options = append(options, gjwt.WithLeeway(cfg.Leeway))
	}
	if cfg.Issuer != "" {
		options = append(options, gjwt.WithIssuer(cfg.Issuer))
	}
	m.parser = gjwt.NewParser(options...)

	return m, nil
}

// TTL reports the configured token lifetime.
func (m *Manager) TTL() time.Duration {
	return m.config.TTL
}

// Sign issues a token for claims. A zero IssuedAt means now; a zero ExpiresAt
// means IssuedAt plus the configured TTL.
func (m *Manager) Sign(c token.Claims) (string, error) {
	if c.StoreKey == "" {
		return "", errors.New("store key required")
	}
	if c.IssuedAt.IsZero() {
		c.IssuedAt = m.config.Now()
	}
	if c.ExpiresAt.IsZero() {
		c.ExpiresAt = c.IssuedAt.Add(m.config.TTL)
	}

	claims := sessionClaims{
		StoreKey: c.StoreKey,
		RegisteredClaims: gjwt.RegisteredClaims{
			Issuer:    m.config.Issuer,
			IssuedAt:  gjwt.NewNumericDate(c.IssuedAt),
			ExpiresAt: gjwt.NewNumericDate(c.ExpiresAt),
		},
	}

	return gjwt.NewWithClaims(m.method, claims).SignedString(m.signKey)
}

// Verify checks the signature over the raw header and payload text before
// anything is decoded, then validates claims. Every failure wraps exactly one
// of [token.ErrMalformed], [token.ErrBadSignature] or [token.ErrExpired].
func (m *Manager) Verify(raw string) (token.Claims, error) {
	parts := strings.Split(raw, ".")
	if len(parts) != 3 || parts[0] == "" || parts[1] == "" {
		return token.Claims{}, fmt.Errorf("%w: expected three segments", token.ErrMalformed)
	}

	sig, err := base64.RawURLEncoding.Strict().DecodeString(parts[2])
	if err != nil || len(sig) == 0 {
		return token.Claims{}, fmt.Errorf("%w: signature segment not decodable", token.ErrBadSignature)
	}

	signingString := parts[0] + "." + parts[1]
	var matched any
	for _, key := range m.verifyKeys {
		if m.method.Verify(signingString, sig, key) == nil {
			matched = key
			break
		}
	}
	if matched == nil {
		return token.Claims{}, token.ErrBadSignature
	}

	parsed, err := m.parser.ParseWithClaims(raw, &sessionClaims{}, func(*gjwt.Token) (any, error) {
		return matched, nil
	})
	if err != nil {
		return token.Claims{}, classify(err)
	}

	claims, ok := parsed.Claims.(*sessionClaims)
	if !ok || !parsed.Valid {
		return token.Claims{}, fmt.Errorf("%w: unexpected claims type", token.ErrMalformed)
	}
	if claims.StoreKey == "" {
		return token.Claims{}, fmt.Errorf("%w: missing session_key", token.ErrMalformed)
	}

	out := token.Claims{StoreKey: claims.StoreKey, ExpiresAt: claims.ExpiresAt.Time}
	if claims.IssuedAt != nil {
		out.IssuedAt = claims.IssuedAt.Time
	}
	return out, nil
}

func classify(err error) error {
	switch {
	case errors.Is(err, gjwt.ErrTokenExpired):
		return fmt.Errorf("%w: %v", token.ErrExpired, err)
	case errors.Is(err, gjwt.ErrTokenSignatureInvalid):
		// the header names an algorithm other than the configured one
		return fmt.Errorf("%w: %v", token.ErrBadSignature, err)
	default:
		return fmt.Errorf("%w: %v", token.ErrMalformed, err)
	}
}

func hmacMethod(m SigningMethod) gjwt.SigningMethod {
	switch m {
	case MethodHS384:
		return gjwt.SigningMethodHS384
	case MethodHS512:
		return gjwt.SigningMethodHS512
	default:
		return gjwt.SigningMethodHS256
	}
}

func cloneBytes(b []byte) []byte {
	out := make([]byte, len(b))
	copy(out, b)
	return out
}

func parseEdPrivateKey(key []byte) (ed25519.PrivateKey, error) {
	if len(key) == ed25519.PrivateKeySize {
		return ed25519.PrivateKey(cloneBytes(key)), nil
	}
	if len(key) == ed25519.SeedSize {
		return ed25519.NewKeyFromSeed(key), nil
	}
	parsed, err := gjwt.ParseEdPrivateKeyFromPEM(key)
	if err != nil {
		return nil, fmt.Errorf("%w: invalid ed25519 private key", ErrInvalidConfig)
	}
	edKey, ok := parsed.(ed25519.PrivateKey)
	if !ok {
		return nil, fmt.Errorf("%w: invalid ed25519 private key type", ErrInvalidConfig)
	}
	return edKey, nil
}

func parseEdPublicKey(key []byte) (ed25519.PublicKey, error) {
	if len(key) == ed25519.PublicKeySize {
		return ed25519.PublicKey(cloneBytes(key)), nil
	}
	parsed, err := gjwt.ParseEdPublicKeyFromPEM(key)
	if err != nil {
		return nil, fmt.Errorf("%w: invalid ed25519 public key", ErrInvalidConfig)
	}
	edKey, ok := parsed.(ed25519.PublicKey)
	if !ok {
		return nil, fmt.Errorf("%w: invalid ed25519 public key type", ErrInvalidConfig)
	}
	return edKey, nil
}
