package goSession

import (
	"errors"
	"net/http"
	"testing"
	"time"
)

func validTestConfig() Config {
	cfg := DefaultConfig()
	cfg.Token.Secret = []byte("0123456789abcdef0123456789abcdef")
	return cfg
}

func TestConfigValidate(t *testing.T) {
	tests := []struct {
		name      string
		mutate    func(*Config)
		wantValid bool
	}{
		{name: "defaults with secret", mutate: func(*Config) {}, wantValid: true},
		{name: "missing secret", mutate: func(c *Config) { c.Token.Secret = nil }, wantValid: false},
		{name: "signing ed25519 spelling", mutate: func(c *Config) { c.Token.SigningMethod = "EdDSA" }, wantValid: true},
		{name: "signing invalid", mutate: func(c *Config) { c.Token.SigningMethod = "rs256" }, wantValid: false},
		{name: "leeway valid", mutate: func(c *Config) { c.Token.Leeway = 45 * time.Second }, wantValid: true},
		{name: "leeway too large", mutate: func(c *Config) { c.Token.Leeway = 3 * time.Minute }, wantValid: false},
		{name: "ttl zero", mutate: func(c *Config) { c.Session.TTL = 0 }, wantValid: false},
		{name: "ttl sub-second", mutate: func(c *Config) { c.Session.TTL = 500 * time.Millisecond }, wantValid: false},
		{name: "blank subject attribute", mutate: func(c *Config) { c.Session.SubjectAttribute = " " }, wantValid: false},
		{name: "cookie name with space", mutate: func(c *Config) { c.Cookie.Name = "my session" }, wantValid: false},
		{name: "cookie name with separator", mutate: func(c *Config) { c.Cookie.Name = "a;b" }, wantValid: false},
		{name: "cookie path relative", mutate: func(c *Config) { c.Cookie.Path = "api" }, wantValid: false},
		{name: "samesite default mode", mutate: func(c *Config) { c.Cookie.SameSite = http.SameSiteDefaultMode }, wantValid: false},
		{name: "samesite none", mutate: func(c *Config) { c.Cookie.SameSite = http.SameSiteNoneMode }, wantValid: true},
		{name: "secure policy unknown", mutate: func(c *Config) { c.Cookie.Secure = "sometimes" }, wantValid: false},
		{name: "store backend unknown", mutate: func(c *Config) { c.Store.Backend = "mongo" }, wantValid: false},
		{name: "store backend bolt", mutate: func(c *Config) { c.Store.Backend = StoreBackendBolt }, wantValid: true},
		{name: "negative store timeout", mutate: func(c *Config) { c.Store.OpTimeout = -time.Second }, wantValid: false},
		{name: "login throttle disabled", mutate: func(c *Config) { c.Login.MaxAttempts = 0; c.Login.Window = 0 }, wantValid: true},
		{name: "login attempts negative", mutate: func(c *Config) { c.Login.MaxAttempts = -1 }, wantValid: false},
		{name: "login window missing", mutate: func(c *Config) { c.Login.Window = 0 }, wantValid: false},
		{name: "audit enabled without buffer", mutate: func(c *Config) { c.Audit.Enabled = true; c.Audit.BufferSize = 0 }, wantValid: false},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			cfg := validTestConfig()
			tc.mutate(&cfg)
			err := cfg.Validate()
			if tc.wantValid && err != nil {
				t.Fatalf("expected valid config, got %v", err)
			}
			if !tc.wantValid {
				if err == nil {
					t.Fatal("expected validation error")
				}
				if !errors.Is(err, ErrConfig) {
					t.Fatalf("expected ErrConfig, got %v", err)
				}
			}
		})
	}
}

func TestDefaultConfigValues(t *testing.T) {
	cfg := DefaultConfig()
	if cfg.Session.TTL != 14*24*time.Hour {
		t.Fatalf("expected 14 day ttl, got %s", cfg.Session.TTL)
	}
	if cfg.Cookie.Name != "session" || cfg.Cookie.Path != "/" {
		t.Fatalf("unexpected cookie defaults %+v", cfg.Cookie)
	}
	if cfg.Cookie.SameSite != http.SameSiteLaxMode || cfg.Cookie.Secure != SecureAuto {
		t.Fatalf("unexpected cookie policy defaults %+v", cfg.Cookie)
	}
	if cfg.Session.DeletePreviousOnRotate {
		t.Fatal("previous records must be kept by default")
	}
}

func TestLoadConfigFromLookup(t *testing.T) {
	env := map[string]string{
		EnvJWTSecretKey:          "0123456789abcdef0123456789abcdef",
		EnvJWTPreviousSecretKeys: "old-secret-old-secret-old-secret-1, old-secret-old-secret-old-secret-2",
		EnvJWTAlgorithm:          "HS512",
		EnvJWTLeeway:             "30s",
		EnvSessionTTL:            "3600",
		EnvCookieName:            "sid",
		EnvCookieSameSite:        "Strict",
		EnvCookieSecure:          "true",
		EnvCookieDomain:          "example.com",
		EnvStoreBackend:          "BOLT",
		EnvStoreTimeout:          "250ms",
		EnvAuditEnabled:          "1",
		EnvMetricsEnabled:        "false",
		EnvLoginMaxAttempts:      "10",
		EnvLoginWindow:           "5m",
		EnvLoginPerIP:            "true",
	}
	cfg, err := LoadConfigFromLookup(func(k string) (string, bool) {
		v, ok := env[k]
		return v, ok
	})
	if err != nil {
		t.Fatalf("load: %v", err)
	}

	if string(cfg.Token.Secret) != env[EnvJWTSecretKey] || cfg.Token.SigningMethod != "hs512" {
		t.Fatalf("unexpected token config %+v", cfg.Token)
	}
	if len(cfg.Token.VerifyKeys) != 2 {
		t.Fatalf("expected 2 previous keys, got %d", len(cfg.Token.VerifyKeys))
	}
	if cfg.Token.Leeway != 30*time.Second || cfg.Session.TTL != time.Hour {
		t.Fatalf("unexpected durations leeway=%s ttl=%s", cfg.Token.Leeway, cfg.Session.TTL)
	}
	if cfg.Cookie.Name != "sid" || cfg.Cookie.SameSite != http.SameSiteStrictMode || cfg.Cookie.Secure != SecureAlways || cfg.Cookie.Domain != "example.com" {
		t.Fatalf("unexpected cookie config %+v", cfg.Cookie)
	}
	if cfg.Store.Backend != StoreBackendBolt || cfg.Store.OpTimeout != 250*time.Millisecond {
		t.Fatalf("unexpected store config %+v", cfg.Store)
	}
	if cfg.Login.MaxAttempts != 10 || cfg.Login.Window != 5*time.Minute || !cfg.Login.PerIP {
		t.Fatalf("unexpected login config %+v", cfg.Login)
	}
	if !cfg.Audit.Enabled || cfg.Metrics.Enabled {
		t.Fatalf("unexpected toggles audit=%v metrics=%v", cfg.Audit.Enabled, cfg.Metrics.Enabled)
	}
}

func TestLoadConfigFromLookupErrors(t *testing.T) {
	cases := map[string]map[string]string{
		"missing secret": {},
		"bad duration":   {EnvJWTSecretKey: "0123456789abcdef0123456789abcdef", EnvSessionTTL: "forever"},
		"bad bool":       {EnvJWTSecretKey: "0123456789abcdef0123456789abcdef", EnvAuditEnabled: "maybe"},
		"bad samesite":   {EnvJWTSecretKey: "0123456789abcdef0123456789abcdef", EnvCookieSameSite: "loose"},
		"bad int":        {EnvJWTSecretKey: "0123456789abcdef0123456789abcdef", EnvLoginMaxAttempts: "five"},
	}
	for name, env := range cases {
		_, err := LoadConfigFromLookup(func(k string) (string, bool) {
			v, ok := env[k]
			return v, ok
		})
		if !errors.Is(err, ErrConfig) {
			t.Fatalf("%s: expected ErrConfig, got %v", name, err)
		}
	}
}

func TestParseSecurePolicy(t *testing.T) {
	for in, want := range map[string]SecurePolicy{"": SecureAuto, "AUTO": SecureAuto, "false": SecureNever, "always": SecureAlways} {
		got, err := ParseSecurePolicy(in)
		if err != nil || got != want {
			t.Fatalf("%q: got %q, %v", in, got, err)
		}
	}
}
